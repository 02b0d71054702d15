package pipeline

import (
	"encoding/json"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/funding-cli/internal/model"
)

// Default output naming templates. {cluster} is replaced by the cluster number.
const (
	ClusterPlaceholder     = "{cluster}"
	DefaultClusterTemplate = "cluster_{cluster}.grouped.json"
	DefaultSummaryTemplate = "cluster_{cluster}.summary.json"
)

// SplitOptions configures the cluster splitter.
type SplitOptions struct {
	OutputDir       string
	Template        string
	Summaries       bool
	SummaryTemplate string
	// Index, when set, retitles destination codes before splitting.
	Index *DestinationIndex
	// UpdatedPath, when set, receives the whole grouped collection after
	// retitling.
	UpdatedPath string
	DryRun      bool
}

func (o *SplitOptions) normalize() error {
	if o.Template == "" {
		o.Template = DefaultClusterTemplate
	}
	if o.SummaryTemplate == "" {
		o.SummaryTemplate = DefaultSummaryTemplate
	}
	if err := checkTemplate("filename", o.Template); err != nil {
		return err
	}
	if o.Summaries {
		if err := checkTemplate("summary", o.SummaryTemplate); err != nil {
			return err
		}
		if o.SummaryTemplate == o.Template {
			return configurationf(StageSplit, "summary template must differ from filename template %q", o.Template)
		}
	}
	return nil
}

func checkTemplate(kind, tmpl string) error {
	if !strings.Contains(tmpl, ClusterPlaceholder) {
		return configurationf(StageSplit, "%s template %q has no %s placeholder", kind, tmpl, ClusterPlaceholder)
	}
	if filepath.Base(tmpl) != tmpl {
		return configurationf(StageSplit, "%s template %q must be a file name, not a path", kind, tmpl)
	}
	return nil
}

// RenderTemplate substitutes cluster into tmpl.
func RenderTemplate(tmpl string, cluster int) string {
	return strings.ReplaceAll(tmpl, ClusterPlaceholder, strconv.Itoa(cluster))
}

// SplitResult is the outcome of one split.
type SplitResult struct {
	Outputs  []model.ClusterOutput
	Files    []string
	Input    int
	Excluded int
	Retitle  *RetitleStats
	// Grouped is the split input after retitling.
	Grouped *model.GroupedCollection
}

// Written returns the number of records placed in cluster outputs.
func (r *SplitResult) Written() int {
	n := 0
	for _, o := range r.Outputs {
		n += o.Destinations.Count()
	}
	return n
}

// Split partitions g by record cluster. Outputs are ordered by cluster number;
// within one output destinations keep their first appearance in g. Records
// without a valid cluster are counted in Excluded and left out.
func Split(g *model.GroupedCollection, opts SplitOptions) (*SplitResult, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}

	res := &SplitResult{Input: g.Count()}
	if opts.Index != nil {
		var stats RetitleStats
		g, stats = opts.Index.Retitle(g)
		res.Retitle = &stats
		if g.Count() != res.Input {
			return nil, consistencyf(StageSplit, "retitle changed record count from %d to %d", res.Input, g.Count())
		}
	}
	res.Grouped = g

	byCluster := make(map[int]*model.GroupedCollection)
	for _, key := range g.Keys() {
		for _, rec := range g.Get(key) {
			if !rec.HasCluster() {
				res.Excluded++
				continue
			}
			dst, ok := byCluster[rec.Cluster]
			if !ok {
				dst = model.NewGroupedCollection()
				byCluster[rec.Cluster] = dst
			}
			dst.Append(key, rec)
		}
	}

	clusters := make([]int, 0, len(byCluster))
	for c := range byCluster {
		clusters = append(clusters, c)
	}
	sort.Ints(clusters)

	for _, c := range clusters {
		out := model.ClusterOutput{Cluster: c, Destinations: byCluster[c]}
		if opts.Summaries {
			out.Summary = model.SummarizeGroups(out.Destinations)
			if err := checkSummary(out); err != nil {
				return nil, err
			}
		}
		res.Outputs = append(res.Outputs, out)
	}

	if written := res.Written(); written+res.Excluded != res.Input {
		return nil, consistencyf(StageSplit, "split wrote %d and excluded %d of %d records", written, res.Excluded, res.Input)
	}
	if res.Excluded > 0 {
		zap.L().Warn("split: records without cluster excluded",
			zap.Int("excluded", res.Excluded),
			zap.Int("input", res.Input),
		)
	}
	return res, nil
}

func checkSummary(out model.ClusterOutput) error {
	keys := out.Summary.Keys()
	if len(keys) != out.Destinations.Len() {
		return consistencyf(StageSplit, "cluster %d summary has %d keys for %d destinations",
			out.Cluster, len(keys), out.Destinations.Len())
	}
	for _, k := range keys {
		if got, want := out.Summary.Count(k), len(out.Destinations.Get(k)); got != want {
			return consistencyf(StageSplit, "cluster %d summary for %q is %d, destination holds %d",
				out.Cluster, k, got, want)
		}
	}
	return nil
}

// WriteOutputs writes each cluster document, and its summary when present,
// under opts.OutputDir, then the updated grouped document when
// opts.UpdatedPath is set. It returns the written paths in that order.
func WriteOutputs(res *SplitResult, opts SplitOptions) ([]string, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}
	var files []string
	for _, out := range res.Outputs {
		path := filepath.Join(opts.OutputDir, RenderTemplate(opts.Template, out.Cluster))
		if err := WriteJSON(path, out.Destinations); err != nil {
			return files, err
		}
		files = append(files, path)

		if out.Summary != nil {
			spath := filepath.Join(opts.OutputDir, RenderTemplate(opts.SummaryTemplate, out.Cluster))
			if err := WriteJSON(spath, out.Summary); err != nil {
				return files, err
			}
			files = append(files, spath)
		}
	}
	if opts.UpdatedPath != "" && res.Grouped != nil {
		if err := WriteJSON(opts.UpdatedPath, res.Grouped); err != nil {
			return files, err
		}
		files = append(files, opts.UpdatedPath)
	}
	return files, nil
}

// DecodeGrouped parses a grouped document.
func DecodeGrouped(data []byte) (*model.GroupedCollection, error) {
	var g model.GroupedCollection
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, validationf(StageSplit, err, "grouped document must be an object of destination -> records")
	}
	for _, k := range g.Keys() {
		for i, r := range g.Get(k) {
			if r.ID == "" {
				return nil, validationf(StageSplit, nil, "destination %q record %d has no id", k, i)
			}
		}
	}
	return &g, nil
}

// SplitFile reads the grouped document at input, splits it and, unless
// opts.DryRun is set, writes the cluster outputs.
func SplitFile(input string, opts SplitOptions) (*SplitResult, error) {
	data, err := ReadArtifact(input)
	if err != nil {
		return nil, err
	}
	g, err := DecodeGrouped(data)
	if err != nil {
		return nil, eris.Wrapf(err, "split %s", input)
	}
	res, err := Split(g, opts)
	if err != nil {
		return nil, err
	}
	if opts.DryRun {
		return res, nil
	}
	res.Files, err = WriteOutputs(res, opts)
	if err != nil {
		return res, err
	}
	return res, nil
}
