package main

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/funding-cli/internal/model"
	"github.com/sells-group/funding-cli/internal/pipeline"
	"github.com/sells-group/funding-cli/internal/store"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2026, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:        "abc12345-6789-0000-0000-000000000000",
			Params:    model.RunParams{FacetInput: "facet.json"},
			Status:    model.RunStatusComplete,
			Result:    &model.RunResult{Identifiers: 12, Records: 11, Clusters: 3},
			CreatedAt: now,
			UpdatedAt: now.Add(2 * time.Minute),
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			Params:    model.RunParams{FacetInput: "/very/long/path/to/a/facet/search/export.json"},
			Status:    model.RunStatusFetching,
			CreatedAt: now.Add(-1 * time.Hour),
			UpdatedAt: now.Add(-30 * time.Minute),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "abc12345")
	assert.NotContains(t, output, "abc12345-6789")
	assert.Contains(t, output, "complete")
	assert.Contains(t, output, "11/12")
	assert.Contains(t, output, "fetching")
	assert.Contains(t, output, "...")
	assert.Contains(t, output, "2026-06-15 10:30")
	assert.Contains(t, output, "2m0s")
}

func TestFormatRunSummary_FailedRun(t *testing.T) {
	run := &model.Run{
		ID:     "abc12345-6789-0000-0000-000000000000",
		Status: model.RunStatusFailed,
		Result: &model.RunResult{Identifiers: 4, Error: "split: configuration error: bad template"},
	}

	var buf bytes.Buffer
	formatRunSummary(&buf, run)

	output := buf.String()
	assert.Contains(t, output, "failed")
	assert.Contains(t, output, "bad template")
	assert.Contains(t, output, "Identifiers")
}

func TestFormatPhases(t *testing.T) {
	phases := []model.RunPhase{
		{Name: "extract", Status: model.PhaseStatusComplete, Result: &model.PhaseResult{Duration: 1500, Artifact: "work/identifiers.json"}},
		{Name: "fetch", Status: model.PhaseStatusRunning},
	}

	var buf bytes.Buffer
	formatPhases(&buf, phases)

	output := buf.String()
	assert.Contains(t, output, "extract")
	assert.Contains(t, output, "1.5s")
	assert.Contains(t, output, "work/identifiers.json")
	assert.Contains(t, output, "running")
}

func TestFormatSplitResult(t *testing.T) {
	g := model.NewGroupedCollection()
	g.Append("A", model.CallRecord{ID: "a1", Cluster: 2})
	g.Append("B", model.CallRecord{ID: "b1", Cluster: 2})
	g.Append("A", model.CallRecord{ID: "a2", Cluster: 5})

	opts := pipeline.SplitOptions{OutputDir: "out", Template: pipeline.DefaultClusterTemplate, DryRun: true}
	res, err := pipeline.Split(g, opts)
	require.NoError(t, err)

	var buf bytes.Buffer
	formatSplitResult(&buf, res, opts)

	output := buf.String()
	assert.Contains(t, output, filepath.Join("out", "cluster_2.grouped.json"))
	assert.Contains(t, output, "(dry run)")
	assert.Contains(t, output, "CLUSTER")
}

func TestRunsList_FromStore(t *testing.T) {
	testConfig(t)

	st, err := store.NewSQLite(cfg.Store.DatabaseURL)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(t.Context()))
	_, err = st.CreateRun(t.Context(), model.RunParams{FacetInput: "facet.json"})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	require.NoError(t, execute(t, "runs", "list"))
	require.NoError(t, execute(t, "cache", "prune"))
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789"))
	assert.Equal(t, "short", truncateID("short"))
}

func TestRunsStats(t *testing.T) {
	now := time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)
	runs := []model.Run{
		{ID: "1", Status: model.RunStatusComplete, Result: &model.RunResult{Records: 10, FetchFailures: 1}, CreatedAt: now, UpdatedAt: now.Add(30 * time.Second)},
		{ID: "2", Status: model.RunStatusComplete, Result: &model.RunResult{Records: 5}, CreatedAt: now, UpdatedAt: now.Add(90 * time.Second)},
		{ID: "3", Status: model.RunStatusFailed, CreatedAt: now, UpdatedAt: now},
		{ID: "4", Status: model.RunStatusFetching, CreatedAt: now, UpdatedAt: now},
		{ID: "5", Status: model.RunStatusComplete, CreatedAt: now.Add(-48 * time.Hour), UpdatedAt: now.Add(-47 * time.Hour)},
	}

	s := computeRunStats(runs, now.Add(-24*time.Hour))
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 2, s.Complete)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Other)
	assert.Equal(t, 15, s.Records)
	assert.Equal(t, 1, s.FetchFailures)
	assert.InDelta(t, 60.0, s.AvgDurSecs, 0.01)

	assert.Equal(t, 5, computeRunStats(runs, time.Time{}).Total)

	var buf bytes.Buffer
	formatRunStats(&buf, s)
	assert.Contains(t, buf.String(), "Total runs")
	assert.Contains(t, buf.String(), "60.0s")
}
