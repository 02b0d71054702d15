package pipeline

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// LookupMap is a static per-cluster table from destination name to the topic
// identifiers known to belong to it. JSON and YAML files are both accepted;
// members may be plain identifiers or objects carrying a call_id.
type LookupMap struct {
	Cluster int
	Source  string

	dests   []string
	members map[string][]string
}

// LoadLookupMap reads a lookup map file for the given cluster.
func LoadLookupMap(path string, cluster int) (*LookupMap, error) {
	data, err := ReadArtifact(path)
	if err != nil {
		return nil, err
	}
	m, err := parseLookupMap(data, cluster, formatFor(path))
	if err != nil {
		return nil, eris.Wrapf(err, "lookup map %s", filepath.Base(path))
	}
	m.Source = path
	return m, nil
}

// ParseLookupMap decodes lookup map bytes, JSON when the document opens with
// '{' or '[' and YAML otherwise. Destination order is kept.
func ParseLookupMap(data []byte, cluster int) (*LookupMap, error) {
	return parseLookupMap(data, cluster, formatAuto)
}

func parseLookupMap(data []byte, cluster int, format docFormat) (*LookupMap, error) {
	if cluster < 1 || cluster > 6 {
		return nil, configurationf(StageGroup, "lookup map cluster %d outside 1-6", cluster)
	}

	root, err := parseOrderedDoc(data, format)
	if err != nil {
		return nil, validationf(StageGroup, err, "lookup map is not valid JSON or YAML")
	}
	if root.Kind != yaml.MappingNode {
		return nil, validationf(StageGroup, nil, "lookup map must be an object of destination -> identifiers")
	}

	m := &LookupMap{Cluster: cluster, members: make(map[string][]string)}
	for i := 0; i+1 < len(root.Content); i += 2 {
		dest := NormalizeDestination(root.Content[i].Value)
		val := root.Content[i+1]
		if dest == "" {
			continue
		}
		if val.Kind != yaml.SequenceNode {
			return nil, validationf(StageGroup, nil, "lookup map destination %q must list identifiers", dest)
		}
		if _, ok := m.members[dest]; !ok {
			m.dests = append(m.dests, dest)
		}
		for _, item := range val.Content {
			id := memberID(item)
			if id == "" {
				continue
			}
			m.members[dest] = append(m.members[dest], id)
		}
	}
	return m, nil
}

func memberID(n *yaml.Node) string {
	switch n.Kind {
	case yaml.ScalarNode:
		return strings.TrimSpace(n.Value)
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			switch n.Content[i].Value {
			case "call_id", "id", "identifier":
				if v := n.Content[i+1]; v.Kind == yaml.ScalarNode {
					return strings.TrimSpace(v.Value)
				}
			}
		}
	}
	return ""
}

// Destinations returns destination names in file order.
func (m *LookupMap) Destinations() []string {
	out := make([]string, len(m.dests))
	copy(out, m.dests)
	return out
}

// Members returns the identifiers listed under dest.
func (m *LookupMap) Members(dest string) []string {
	return m.members[dest]
}

// IDs returns every identifier in the map, deduplicated, in file order.
func (m *LookupMap) IDs() []string {
	seen := make(map[string]bool)
	var out []string
	for _, d := range m.dests {
		for _, id := range m.members[d] {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

type lookupHit struct {
	dest    string
	cluster int
	source  string
}

// LookupIndex is the reverse view of one or more LookupMaps: identifier to
// destination, per cluster and merged across clusters.
type LookupIndex struct {
	byCluster map[int]map[string]lookupHit
	merged    map[string]lookupHit
}

// NewLookupIndex builds a reverse index over maps. An identifier listed under
// two different destinations, within one map or across maps, is a
// ConsistencyError: there is no precedence order to pick one.
func NewLookupIndex(maps ...*LookupMap) (*LookupIndex, error) {
	ix := &LookupIndex{
		byCluster: make(map[int]map[string]lookupHit),
		merged:    make(map[string]lookupHit),
	}
	for _, m := range maps {
		if m == nil {
			continue
		}
		if ix.byCluster[m.Cluster] == nil {
			ix.byCluster[m.Cluster] = make(map[string]lookupHit)
		}
		for _, dest := range m.dests {
			for _, id := range m.members[dest] {
				hit := lookupHit{dest: dest, cluster: m.Cluster, source: m.Source}
				if prev, ok := ix.merged[id]; ok && prev.dest != dest {
					return nil, consistencyf(StageGroup,
						"identifier %s maps to %q (cluster %d) and %q (cluster %d)",
						id, prev.dest, prev.cluster, dest, m.Cluster)
				}
				ix.merged[id] = hit
				ix.byCluster[m.Cluster][id] = hit
			}
		}
	}
	return ix, nil
}

// HasCluster reports whether a map was supplied for cluster.
func (ix *LookupIndex) HasCluster(cluster int) bool {
	if ix == nil {
		return false
	}
	_, ok := ix.byCluster[cluster]
	return ok
}

// Resolve returns the backfill destination for id. A record with a known
// cluster only consults that cluster's map; a record without one consults
// every supplied map.
func (ix *LookupIndex) Resolve(id string, cluster int) (string, bool) {
	if ix == nil {
		return "", false
	}
	if cluster != 0 {
		hit, ok := ix.byCluster[cluster][id]
		return hit.dest, ok
	}
	hit, ok := ix.merged[id]
	return hit.dest, ok
}

// Size returns the number of distinct identifiers indexed.
func (ix *LookupIndex) Size() int {
	if ix == nil {
		return 0
	}
	return len(ix.merged)
}
