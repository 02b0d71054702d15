package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/funding-cli/internal/model"
	"github.com/sells-group/funding-cli/internal/pipeline"
)

func TestFetch_PreservesInputOrder(t *testing.T) {
	t.Parallel()

	search := newFakeSearch()
	search.delay = 2 * time.Millisecond
	var refs []model.TopicRef
	for _, id := range []string{"T5", "T1", "T4", "T2", "T3", "T9", "T7", "T8"} {
		search.responses[id] = topicResponse(id, "Dest "+id)
		refs = append(refs, model.TopicRef{ID: id, Cluster: 1, Year: 2026})
	}

	f := New(search, nil, Options{Concurrency: 3})
	recs, report, err := f.Fetch(context.Background(), refs)
	require.NoError(t, err)
	require.Len(t, recs, len(refs))
	for i, r := range recs {
		assert.Equal(t, refs[i].ID, r.ID)
		assert.Equal(t, "Dest "+refs[i].ID, r.DestinationDescription)
		assert.Equal(t, 1, r.Cluster)
	}
	assert.Equal(t, len(refs), report.Fetched)
	assert.LessOrEqual(t, search.maxFlight, 3)
}

func TestFetch_PartialFailure(t *testing.T) {
	t.Parallel()

	search := newFakeSearch()
	search.responses["OK1"] = topicResponse("OK1", "A")
	search.responses["OK2"] = topicResponse("OK2", "B")
	search.errs["BAD"] = transient429()
	// "MISS" has no response at all.

	f := New(search, nil, Options{MaxAttempts: 3})
	refs := []model.TopicRef{{ID: "OK1"}, {ID: "BAD"}, {ID: "MISS"}, {ID: "OK2"}}
	recs, report, err := f.Fetch(context.Background(), refs)

	var partial *pipeline.PartialFetchFailure
	require.True(t, errors.As(err, &partial))
	assert.True(t, pipeline.IsRecoverable(err))
	assert.Equal(t, []string{"BAD", "MISS"}, partial.FailedIDs())
	assert.Equal(t, 4, partial.Requested)

	require.Len(t, recs, 2)
	assert.Equal(t, "OK1", recs[0].ID)
	assert.Equal(t, "OK2", recs[1].ID)

	require.Len(t, report.Failures, 2)
	assert.Equal(t, "transient", report.Failures[0].ErrorType)
	assert.Equal(t, 3, report.Failures[0].Attempts)
	assert.Equal(t, "permanent", report.Failures[1].ErrorType)
}

func TestFetch_Cache(t *testing.T) {
	t.Parallel()

	search := newFakeSearch()
	search.responses["T1"] = topicResponse("T1", "HLTH")
	cache := newMemCache()

	f := New(search, cache, Options{IncludeRaw: true})
	refs := []model.TopicRef{{ID: "T1", Cluster: 1}}

	first, report, err := f.Fetch(context.Background(), refs)
	require.NoError(t, err)
	assert.Equal(t, 0, report.CacheHits)

	second, report, err := f.Fetch(context.Background(), refs)
	require.NoError(t, err)
	assert.Equal(t, 1, report.CacheHits)
	assert.Equal(t, 1, search.callCount("T1"))

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	assert.JSONEq(t, string(a), string(b))
}

func TestFetch_ContextCancelled(t *testing.T) {
	t.Parallel()

	search := newFakeSearch()
	search.delay = time.Second
	search.responses["T1"] = topicResponse("T1", "A")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := New(search, nil, Options{}).Fetch(ctx, []model.TopicRef{{ID: "T1"}})
	require.Error(t, err)
	var partial *pipeline.PartialFetchFailure
	assert.False(t, errors.As(err, &partial))
}

func TestFetch_Empty(t *testing.T) {
	t.Parallel()

	recs, report, err := New(newFakeSearch(), nil, Options{}).Fetch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Equal(t, 0, report.Requested)
}

func TestDecodeIdentifiers(t *testing.T) {
	t.Parallel()

	refs, err := DecodeIdentifiers([]byte(`["A", {"id": "B", "cluster": 2, "year": 2027}, "A", {"id": "C", "error": "x"}]`))
	require.NoError(t, err)
	assert.Equal(t, []model.TopicRef{{ID: "A"}, {ID: "B", Cluster: 2, Year: 2027}, {ID: "C"}}, refs)

	for _, doc := range []string{`{"id":"A"}`, `[""]`, `[1]`, `[`} {
		_, err := DecodeIdentifiers([]byte(doc))
		var ve *pipeline.ValidationError
		assert.True(t, errors.As(err, &ve), "doc %q: %v", doc, err)
	}
}

func TestFetchFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := filepath.Join(dir, "ids.json")
	out := filepath.Join(dir, "records.json")
	dead := filepath.Join(dir, "failed.json")
	require.NoError(t, writeTestFile(in, `[{"id":"HORIZON-CL2-2027-01-DEMOCRACY-06","cluster":2,"year":2027},{"id":"GONE","cluster":1,"year":2026},{"id":"SKIPPED"}]`))

	search := newFakeSearch()
	search.responses["HORIZON-CL2-2027-01-DEMOCRACY-06"] = topicResponse("HORIZON-CL2-2027-01-DEMOCRACY-06", "Democracy")

	f := New(search, nil, Options{})
	report, err := f.FetchFile(context.Background(), in, out, FileOptions{Limit: 2, DeadLetterPath: dead})
	var partial *pipeline.PartialFetchFailure
	require.True(t, errors.As(err, &partial))
	assert.Equal(t, 2, report.Requested)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	recs, err := pipeline.DecodeRecords(data)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Democracy", recs[0].DestinationDescription)
	assert.Equal(t, "HORIZON-CL2-2027-01-DEMOCRACY-06", recs[0].ExtraString(FieldTitle))

	deadData, err := os.ReadFile(dead)
	require.NoError(t, err)
	retry, err := DecodeIdentifiers(deadData)
	require.NoError(t, err)
	assert.Equal(t, []model.TopicRef{{ID: "GONE"}}, retry)
	assert.Zero(t, search.callCount("SKIPPED"))
}

func TestAdaptiveLimiter(t *testing.T) {
	t.Parallel()

	l := NewAdaptiveLimiter(4, 2)
	l.OnRateLimit()
	assert.InDelta(t, 2.0, float64(l.Limit()), 0.001)
	l.OnRateLimit()
	l.OnRateLimit()
	assert.InDelta(t, 1.0, float64(l.Limit()), 0.001)
	for i := 0; i < 20; i++ {
		l.OnSuccess()
	}
	assert.InDelta(t, 8.0, float64(l.Limit()), 0.001)

	unlimited := NewAdaptiveLimiter(0, 0)
	unlimited.OnRateLimit()
	require.NoError(t, unlimited.Wait(context.Background()))
}
