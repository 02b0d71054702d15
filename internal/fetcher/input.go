package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/funding-cli/internal/model"
	"github.com/sells-group/funding-cli/internal/pipeline"
)

// DecodeIdentifiers reads a fetch input document: either the extractor's
// array of {id, cluster, year} objects or a plain array of identifier
// strings. Duplicates are dropped, first occurrence wins.
func DecodeIdentifiers(data []byte) ([]model.TopicRef, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, &pipeline.ValidationError{Stage: pipeline.StageFetch, Msg: "identifier document must be a JSON array"}
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, &pipeline.ValidationError{Stage: pipeline.StageFetch, Msg: "identifier document is not valid JSON", Err: err}
	}

	seen := make(map[string]bool, len(items))
	refs := make([]model.TopicRef, 0, len(items))
	for i, raw := range items {
		var ref model.TopicRef
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			ref.ID = strings.TrimSpace(s)
		} else {
			var rec model.CallRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				return nil, &pipeline.ValidationError{Stage: pipeline.StageFetch, Msg: "identifier entry must be a string or object", Err: err}
			}
			ref = model.TopicRef{ID: rec.ID, Cluster: rec.Cluster, Year: rec.Year}
		}
		if ref.ID == "" {
			return nil, &pipeline.ValidationError{Stage: pipeline.StageFetch, Msg: fmt.Sprintf("identifier entry %d is empty", i)}
		}
		if seen[ref.ID] {
			continue
		}
		seen[ref.ID] = true
		refs = append(refs, ref)
	}
	return refs, nil
}

// FileOptions configures FetchFile.
type FileOptions struct {
	// Limit keeps only the first Limit identifiers; zero keeps all.
	Limit int
	// DeadLetterPath, when set, receives the failed identifiers. The file is
	// itself valid fetch input.
	DeadLetterPath string
}

// FetchFile reads identifiers from input, fetches them and writes the
// enriched records to output. A *pipeline.PartialFetchFailure is returned
// after the surviving records have been written.
func (f *Fetcher) FetchFile(ctx context.Context, input, output string, fo FileOptions) (*Report, error) {
	data, err := pipeline.ReadArtifact(input)
	if err != nil {
		return nil, err
	}
	refs, err := DecodeIdentifiers(data)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch %s", input)
	}
	if fo.Limit > 0 && len(refs) > fo.Limit {
		refs = refs[:fo.Limit]
	}

	records, report, fetchErr := f.Fetch(ctx, refs)
	var partial *pipeline.PartialFetchFailure
	if fetchErr != nil && !errors.As(fetchErr, &partial) {
		return report, fetchErr
	}
	if records == nil {
		records = []model.CallRecord{}
	}
	if err := pipeline.WriteJSON(output, records); err != nil {
		return report, err
	}
	if fo.DeadLetterPath != "" && len(report.Failures) > 0 {
		if err := pipeline.WriteJSON(fo.DeadLetterPath, report.Failures); err != nil {
			return report, err
		}
	}
	return report, fetchErr
}
