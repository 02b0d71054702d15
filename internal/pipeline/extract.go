package pipeline

import (
	"encoding/json"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/sells-group/funding-cli/internal/model"
)

// topicPattern matches Horizon cluster topic identifiers such as
// HORIZON-CL2-2027-01-DEMOCRACY-06 or HORIZON-CL2-2025-02-TRANSFO-04-two-stage,
// but not bare call sections like HORIZON-CL2-2027-01.
var topicPattern = regexp.MustCompile(`^HORIZON-CL([1-6])-(\d{4})-\d{2}-[A-Za-z0-9][A-Za-z0-9-]*$`)

// identifierPattern recovers cluster and year from any Horizon cluster
// identifier, topic or call.
var identifierPattern = regexp.MustCompile(`^HORIZON-CL([1-6])-(\d{4})(?:-|$)`)

// ExtractOptions selects which identifiers the extractor keeps.
type ExtractOptions struct {
	Years    []int
	Clusters []int
	// Inject lists cluster-1 identifiers the facet search does not surface.
	Inject *LookupMap
}

// ExtractStats summarizes one extraction.
type ExtractStats struct {
	Candidates int `json:"candidates"`
	Kept       int `json:"kept"`
	Injected   int `json:"injected"`
	Skipped    int `json:"skipped"`
}

// ParseTopicIdentifier returns the cluster and year encoded in a Horizon
// cluster identifier.
func ParseTopicIdentifier(id string) (cluster, year int, ok bool) {
	m := identifierPattern.FindStringSubmatch(strings.TrimSpace(id))
	if m == nil {
		return 0, 0, false
	}
	cluster, _ = strconv.Atoi(m[1])
	year, _ = strconv.Atoi(m[2])
	return cluster, year, true
}

// IsTopicIdentifier reports whether s is a full Horizon cluster topic identifier.
func IsTopicIdentifier(s string) bool {
	return topicPattern.MatchString(strings.TrimSpace(s))
}

func (o ExtractOptions) validate() error {
	if len(o.Years) == 0 {
		return configurationf(StageExtract, "at least one target year is required")
	}
	if len(o.Clusters) == 0 {
		return configurationf(StageExtract, "at least one target cluster is required")
	}
	for _, y := range o.Years {
		if y <= 0 {
			return configurationf(StageExtract, "invalid target year %d", y)
		}
	}
	for _, c := range o.Clusters {
		if c < model.MinCluster || c > model.MaxCluster {
			return configurationf(StageExtract, "target cluster %d outside %d-%d", c, model.MinCluster, model.MaxCluster)
		}
	}
	if o.Inject != nil && o.Inject.Cluster != 1 {
		return configurationf(StageExtract, "injection map must be a cluster 1 map, got cluster %d", o.Inject.Cluster)
	}
	return nil
}

// Extract walks a facet-search document and returns the deduplicated topic
// references whose year and cluster are both targeted, in order of first
// appearance.
func Extract(doc []byte, opts ExtractOptions) ([]model.TopicRef, ExtractStats, error) {
	var stats ExtractStats
	if err := opts.validate(); err != nil {
		return nil, stats, err
	}

	if !gjson.ValidBytes(doc) {
		return nil, stats, validationf(StageExtract, nil, "facet document is not valid JSON")
	}
	root := gjson.ParseBytes(doc)
	if !root.IsObject() && !root.IsArray() {
		return nil, stats, validationf(StageExtract, nil, "facet document must be a JSON object or array")
	}
	if res := root.Get("results"); root.IsObject() && res.Exists() && !res.IsArray() {
		return nil, stats, validationf(StageExtract, nil, "facet document field \"results\" must be an array")
	}

	years := intSet(opts.Years)
	clusters := intSet(opts.Clusters)

	// The first occurrence of an identifier decides whether it is kept;
	// nested copies (metadata blocks, string values) are ignored.
	seen := make(map[string]bool)
	var out []model.TopicRef
	walkDocument(root, func(v gjson.Result) {
		ref, ok := candidateFrom(v)
		if !ok || seen[ref.ID] {
			return
		}
		seen[ref.ID] = true
		stats.Candidates++
		if ref.Year == 0 || ref.Cluster == 0 || !years[ref.Year] || !clusters[ref.Cluster] {
			stats.Skipped++
			return
		}
		out = append(out, ref)
	})
	stats.Kept = len(out)

	if opts.Inject != nil && clusters[1] {
		for _, id := range opts.Inject.IDs() {
			if seen[id] {
				continue
			}
			ref := model.TopicRef{ID: id, Cluster: 1}
			if _, y, ok := ParseTopicIdentifier(id); ok {
				if !years[y] {
					continue
				}
				ref.Year = y
			}
			seen[id] = true
			out = append(out, ref)
			stats.Injected++
		}
	}

	zap.L().Debug("extract: walked facet document",
		zap.Int("candidates", stats.Candidates),
		zap.Int("kept", stats.Kept),
		zap.Int("injected", stats.Injected),
		zap.Int("skipped", stats.Skipped),
	)
	return out, stats, nil
}

// walkDocument visits every object and string in document order, parents
// before children.
func walkDocument(v gjson.Result, visit func(gjson.Result)) {
	switch {
	case v.IsObject():
		visit(v)
		v.ForEach(func(_, child gjson.Result) bool {
			walkDocument(child, visit)
			return true
		})
	case v.IsArray():
		v.ForEach(func(_, child gjson.Result) bool {
			walkDocument(child, visit)
			return true
		})
	case v.Type == gjson.String:
		visit(v)
	}
}

// candidateFrom turns a visited node into a topic reference. Objects need an
// identifier; year and cluster come from explicit fields first and the
// identifier pattern second. Bare strings must be full topic identifiers.
func candidateFrom(v gjson.Result) (model.TopicRef, bool) {
	if v.Type == gjson.String {
		s := strings.TrimSpace(v.Str)
		if !IsTopicIdentifier(s) {
			return model.TopicRef{}, false
		}
		c, y, _ := ParseTopicIdentifier(s)
		return model.TopicRef{ID: s, Cluster: c, Year: y}, true
	}

	id := objectIdentifier(v)
	if id == "" {
		return model.TopicRef{}, false
	}
	ref := model.TopicRef{ID: id}
	ref.Cluster = objectInt(v, "cluster", "metadata.cluster")
	ref.Year = objectInt(v, "year", "metadata.year")
	if ref.Cluster == 0 || ref.Year == 0 {
		if c, y, ok := ParseTopicIdentifier(id); ok {
			if ref.Cluster == 0 {
				ref.Cluster = c
			}
			if ref.Year == 0 {
				ref.Year = y
			}
		}
	}
	return ref, true
}

func objectIdentifier(v gjson.Result) string {
	for _, path := range []string{"id", "identifier", "metadata.identifier"} {
		f := v.Get(path)
		switch {
		case f.Type == gjson.String:
			if s := strings.TrimSpace(f.Str); s != "" {
				return s
			}
		case f.IsArray():
			for _, el := range f.Array() {
				if el.Type == gjson.String && strings.TrimSpace(el.Str) != "" {
					return strings.TrimSpace(el.Str)
				}
			}
		}
	}
	return ""
}

func objectInt(v gjson.Result, paths ...string) int {
	for _, path := range paths {
		f := v.Get(path)
		if !f.Exists() {
			continue
		}
		if n, ok := model.FlexibleInt(json.RawMessage(f.Raw)); ok {
			return n
		}
	}
	return 0
}

func intSet(vals []int) map[int]bool {
	m := make(map[int]bool, len(vals))
	for _, v := range vals {
		m[v] = true
	}
	return m
}

// SortedInts returns a sorted, deduplicated copy of vals.
func SortedInts(vals []int) []int {
	set := intSet(vals)
	out := make([]int, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

// ExtractFile runs Extract over the facet document at input and writes the
// identifier list to output.
func ExtractFile(input, output string, opts ExtractOptions) ([]model.TopicRef, ExtractStats, error) {
	data, err := ReadArtifact(input)
	if err != nil {
		return nil, ExtractStats{}, err
	}
	refs, stats, err := Extract(data, opts)
	if err != nil {
		return nil, stats, eris.Wrapf(err, "extract %s", input)
	}
	if refs == nil {
		refs = []model.TopicRef{}
	}
	if err := WriteJSON(output, refs); err != nil {
		return nil, stats, err
	}
	return refs, stats, nil
}
