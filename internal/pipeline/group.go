package pipeline

import (
	"bytes"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/funding-cli/internal/model"
)

// DefaultUnknownKey is the fallback group for records with no resolvable destination.
const DefaultUnknownKey = "Unknown"

// GroupOptions configures destination resolution.
type GroupOptions struct {
	Lookup     *LookupIndex
	UnknownKey string
}

// GroupStats counts how each record's destination was resolved.
type GroupStats struct {
	Records      int `json:"records"`
	FromMetadata int `json:"from_metadata"`
	FromLookup   int `json:"from_lookup"`
	Fallback     int `json:"fallback"`
}

// DecodeRecords parses an enriched record array.
func DecodeRecords(data []byte) ([]model.CallRecord, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, validationf(StageGroup, nil, "record document must be a JSON array")
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(trimmed, &raws); err != nil {
		return nil, validationf(StageGroup, err, "record document is not valid JSON")
	}
	recs := make([]model.CallRecord, 0, len(raws))
	for i, raw := range raws {
		var rec model.CallRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, validationf(StageGroup, err, "record %d", i)
		}
		if rec.ID == "" {
			return nil, validationf(StageGroup, nil, "record %d has no id", i)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// Group assigns every record to exactly one destination key: its own
// destinationDescription when present, else the lookup backfill for its
// cluster, else the unknown key. Input order is kept within each group and
// groups appear in order of first use.
func Group(recs []model.CallRecord, opts GroupOptions) (*model.GroupedCollection, GroupStats, error) {
	unknown := opts.UnknownKey
	if unknown == "" {
		unknown = DefaultUnknownKey
	}

	stats := GroupStats{Records: len(recs)}
	out := model.NewGroupedCollection()
	for i, rec := range recs {
		if rec.ID == "" {
			return nil, stats, validationf(StageGroup, nil, "record %d has no id", i)
		}
		key, source := resolveDestination(rec, opts.Lookup)
		switch source {
		case sourceMetadata:
			stats.FromMetadata++
		case sourceLookup:
			stats.FromLookup++
		default:
			key = unknown
			stats.Fallback++
		}
		out.Append(key, rec)
	}

	if got := out.Count(); got != len(recs) {
		return nil, stats, consistencyf(StageGroup, "grouped %d records from %d inputs", got, len(recs))
	}

	zap.L().Debug("group: resolved destinations",
		zap.Int("records", stats.Records),
		zap.Int("destinations", out.Len()),
		zap.Int("from_metadata", stats.FromMetadata),
		zap.Int("from_lookup", stats.FromLookup),
		zap.Int("fallback", stats.Fallback),
	)
	return out, stats, nil
}

type destinationSource int

const (
	sourceNone destinationSource = iota
	sourceMetadata
	sourceLookup
)

func resolveDestination(rec model.CallRecord, lookup *LookupIndex) (string, destinationSource) {
	if d := NormalizeDestination(rec.DestinationDescription); d != "" {
		return d, sourceMetadata
	}
	if d, ok := lookup.Resolve(rec.ID, rec.Cluster); ok {
		return d, sourceLookup
	}
	return "", sourceNone
}

// GroupFile runs Group over the record array at input and writes the grouped
// document to output.
func GroupFile(input, output string, opts GroupOptions) (*model.GroupedCollection, GroupStats, error) {
	data, err := ReadArtifact(input)
	if err != nil {
		return nil, GroupStats{}, err
	}
	recs, err := DecodeRecords(data)
	if err != nil {
		return nil, GroupStats{}, eris.Wrapf(err, "group %s", input)
	}
	grouped, stats, err := Group(recs, opts)
	if err != nil {
		return nil, stats, err
	}
	if err := WriteJSON(output, grouped); err != nil {
		return nil, stats, err
	}
	return grouped, stats, nil
}
