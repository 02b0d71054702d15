package pipeline

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/funding-cli/internal/model"
)

// DestinationInfo is one destination entry of a DestinationIndex.
type DestinationInfo struct {
	Programme string
	Code      string
	Title     string
}

// DestinationIndex resolves destination codes, including alternate codes,
// to their canonical destination and display title. Index files are keyed by
// programme:
//
//	{"HORIZON-CL2": [{"destination_code": "...", "destination_title": "...", "alt_codes": ["..."]}]}
type DestinationIndex struct {
	byCode map[string]DestinationInfo
	alts   int
}

// LoadDestinationIndex reads an index file (JSON or YAML).
func LoadDestinationIndex(path string) (*DestinationIndex, error) {
	data, err := ReadArtifact(path)
	if err != nil {
		return nil, err
	}
	ix, err := parseDestinationIndex(data, formatFor(path))
	if err != nil {
		return nil, eris.Wrapf(err, "destination index %s", filepath.Base(path))
	}
	return ix, nil
}

// ParseDestinationIndex decodes index bytes. Entries without a code or title
// are ignored, as are alternate codes whose canonical entry is missing.
func ParseDestinationIndex(data []byte) (*DestinationIndex, error) {
	return parseDestinationIndex(data, formatAuto)
}

func parseDestinationIndex(data []byte, format docFormat) (*DestinationIndex, error) {
	root, err := parseOrderedDoc(data, format)
	if err != nil {
		return nil, validationf(StageSplit, err, "destination index is not valid JSON or YAML")
	}
	if root.Kind != yaml.MappingNode {
		return nil, validationf(StageSplit, nil, "destination index must be keyed by programme")
	}

	ix := &DestinationIndex{byCode: make(map[string]DestinationInfo)}
	altToCode := make(map[string]string)
	for i := 0; i+1 < len(root.Content); i += 2 {
		programme := root.Content[i].Value
		list := root.Content[i+1]
		if list.Kind != yaml.SequenceNode {
			continue
		}
		for _, entry := range list.Content {
			var e struct {
				Code     string   `yaml:"destination_code"`
				Title    string   `yaml:"destination_title"`
				AltCodes []string `yaml:"alt_codes"`
			}
			if entry.Kind != yaml.MappingNode || entry.Decode(&e) != nil {
				continue
			}
			code, title := strings.TrimSpace(e.Code), strings.TrimSpace(e.Title)
			if code == "" || title == "" {
				continue
			}
			ix.byCode[code] = DestinationInfo{Programme: programme, Code: code, Title: title}
			for _, a := range e.AltCodes {
				if a = strings.TrimSpace(a); a != "" {
					altToCode[a] = code
				}
			}
		}
	}
	for alt, code := range altToCode {
		if info, ok := ix.byCode[code]; ok {
			if _, taken := ix.byCode[alt]; !taken {
				ix.byCode[alt] = info
				ix.alts++
			}
		}
	}
	return ix, nil
}

// Lookup resolves a canonical or alternate destination code.
func (ix *DestinationIndex) Lookup(code string) (DestinationInfo, bool) {
	if ix == nil {
		return DestinationInfo{}, false
	}
	info, ok := ix.byCode[strings.TrimSpace(code)]
	return info, ok
}

// Len returns the number of resolvable codes, alternates included.
func (ix *DestinationIndex) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.byCode)
}

// Alternates returns how many alternate codes resolve to a canonical entry.
func (ix *DestinationIndex) Alternates() int {
	if ix == nil {
		return 0
	}
	return ix.alts
}

// RetitleStats reports what Retitle changed.
type RetitleStats struct {
	Renamed  int
	Merged   int
	Unmapped []string
}

// Retitle renames destination keys that resolve through the index to their
// title. Groups that resolve to the same title are merged; merged keys keep the
// position of the first one and records keep traversal order. Keys the index
// does not know are left as they are.
func (ix *DestinationIndex) Retitle(g *model.GroupedCollection) (*model.GroupedCollection, RetitleStats) {
	var stats RetitleStats
	out := model.NewGroupedCollection()
	used := make(map[string]bool)
	for _, key := range g.Keys() {
		target := key
		if info, ok := ix.Lookup(key); ok {
			target = info.Title
			if target != key {
				stats.Renamed++
			}
		} else {
			stats.Unmapped = append(stats.Unmapped, key)
		}
		if used[target] {
			stats.Merged++
		}
		used[target] = true

		out.AddKey(target)
		for _, r := range g.Get(key) {
			out.Append(target, r)
		}
	}
	return out, stats
}
