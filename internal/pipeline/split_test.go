package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/funding-cli/internal/model"
)

func grouped(t *testing.T, doc string) *model.GroupedCollection {
	t.Helper()
	g, err := DecodeGrouped([]byte(doc))
	require.NoError(t, err)
	return g
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestSplitFile_Scenario(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := filepath.Join(dir, "grouped.json")
	require.NoError(t, os.WriteFile(in, []byte(`{"HLTH": [{"id":"T1","cluster":1},{"id":"T2","cluster":2}]}`), 0o644))

	out := filepath.Join(dir, "out")
	res, err := SplitFile(in, SplitOptions{OutputDir: out, Summaries: true})
	require.NoError(t, err)
	require.Len(t, res.Outputs, 2)

	assert.Equal(t, []string{
		filepath.Join(out, "cluster_1.grouped.json"),
		filepath.Join(out, "cluster_1.summary.json"),
		filepath.Join(out, "cluster_2.grouped.json"),
		filepath.Join(out, "cluster_2.summary.json"),
	}, res.Files)

	assert.JSONEq(t, `{"HLTH":[{"id":"T1","cluster":1}]}`, readFile(t, res.Files[0]))
	assert.JSONEq(t, `{"HLTH":1}`, readFile(t, res.Files[1]))
	assert.JSONEq(t, `{"HLTH":[{"id":"T2","cluster":2}]}`, readFile(t, res.Files[2]))
	assert.JSONEq(t, `{"HLTH":1}`, readFile(t, res.Files[3]))
}

func TestSplit_DestinationOrderAndSummary(t *testing.T) {
	t.Parallel()

	g := grouped(t, `{
	  "B": [{"id":"b1","cluster":2},{"id":"b2","cluster":1}],
	  "A": [{"id":"a1","cluster":1},{"id":"a2","cluster":1},{"id":"a3","cluster":2}],
	  "C": [{"id":"c1","cluster":3}]
	}`)
	res, err := Split(g, SplitOptions{Summaries: true})
	require.NoError(t, err)
	require.Len(t, res.Outputs, 3)

	c1 := res.Outputs[0]
	assert.Equal(t, 1, c1.Cluster)
	assert.Equal(t, []string{"B", "A"}, c1.Destinations.Keys())
	for _, out := range res.Outputs {
		for _, k := range out.Summary.Keys() {
			assert.Equal(t, len(out.Destinations.Get(k)), out.Summary.Count(k))
		}
	}
	assert.Equal(t, 2, c1.Summary.Count("A"))
	assert.Equal(t, 6, res.Written())
}

func TestSplit_ExcludesRecordsWithoutCluster(t *testing.T) {
	t.Parallel()

	g := grouped(t, `{"X": [{"id":"x1"},{"id":"x2","cluster":2},{"id":"x3","cluster":9}]}`)
	res, err := Split(g, SplitOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Excluded)
	assert.Equal(t, 1, res.Written())
	assert.Nil(t, res.Outputs[0].Summary)
}

func TestSplit_TemplateErrors(t *testing.T) {
	t.Parallel()

	g := grouped(t, `{"X": [{"id":"x1","cluster":1}]}`)
	tests := []struct {
		name string
		opts SplitOptions
	}{
		{"no placeholder", SplitOptions{Template: "clusters.json"}},
		{"path template", SplitOptions{Template: "sub/cluster_{cluster}.json"}},
		{"summary no placeholder", SplitOptions{Summaries: true, SummaryTemplate: "summary.json"}},
		{"summary same as output", SplitOptions{Summaries: true, Template: "c{cluster}.json", SummaryTemplate: "c{cluster}.json"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Split(g, tt.opts)
			var ce *ConfigurationError
			require.True(t, errors.As(err, &ce), "got %v", err)
		})
	}
}

func TestSplit_CustomTemplate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	g := grouped(t, `{"X": [{"id":"x1","cluster":4}]}`)
	opts := SplitOptions{OutputDir: dir, Template: "HORIZON-CL{cluster}.json"}
	res, err := Split(g, opts)
	require.NoError(t, err)
	files, err := WriteOutputs(res, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "HORIZON-CL4.json")}, files)
}

func TestSplit_Retitle(t *testing.T) {
	t.Parallel()

	ix, err := ParseDestinationIndex([]byte(`{
	  "HORIZON-CL2": [
	    {"destination_code": "DEMOCRACY", "destination_title": "Innovative research on democracy", "alt_codes": ["DEMO"]},
	    {"destination_code": "HERITAGE", "destination_title": "Cultural heritage"}
	  ]
	}`))
	require.NoError(t, err)

	g := grouped(t, `{
	  "DEMO": [{"id":"d1","cluster":2}],
	  "Other": [{"id":"o1","cluster":2}],
	  "DEMOCRACY": [{"id":"d2","cluster":2}]
	}`)
	res, err := Split(g, SplitOptions{Index: ix, Summaries: true})
	require.NoError(t, err)
	require.Len(t, res.Outputs, 1)

	out := res.Outputs[0]
	assert.Equal(t, []string{"Innovative research on democracy", "Other"}, out.Destinations.Keys())
	assert.Equal(t, 2, out.Summary.Count("Innovative research on democracy"))
	require.NotNil(t, res.Retitle)
	assert.Equal(t, 2, res.Retitle.Renamed)
	assert.Equal(t, 1, res.Retitle.Merged)
	assert.Equal(t, []string{"Other"}, res.Retitle.Unmapped)
}

func TestSplitFile_WritesUpdatedGrouped(t *testing.T) {
	t.Parallel()

	ix, err := ParseDestinationIndex([]byte(`{"HORIZON-CL2": [{"destination_code": "DEMOCRACY", "destination_title": "Innovative research on democracy", "alt_codes": ["DEMO"]}]}`))
	require.NoError(t, err)

	dir := t.TempDir()
	in := filepath.Join(dir, "grouped.json")
	require.NoError(t, os.WriteFile(in, []byte(`{
	  "DEMO": [{"id":"d1","cluster":2}],
	  "Other": [{"id":"o1"}],
	  "DEMOCRACY": [{"id":"d2","cluster":2}]
	}`), 0o644))

	updated := filepath.Join(dir, "grouped.updated.json")
	res, err := SplitFile(in, SplitOptions{OutputDir: filepath.Join(dir, "out"), Index: ix, UpdatedPath: updated})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Excluded)
	require.NotEmpty(t, res.Files)
	assert.Equal(t, updated, res.Files[len(res.Files)-1])

	g, err := DecodeGrouped([]byte(readFile(t, updated)))
	require.NoError(t, err)
	assert.Equal(t, []string{"Innovative research on democracy", "Other"}, g.Keys())
	assert.Equal(t, []string{"d1", "d2"}, groupIDs(g, "Innovative research on democracy"))
	assert.Equal(t, 3, g.Count())

	dry := filepath.Join(dir, "dry.updated.json")
	_, err = SplitFile(in, SplitOptions{OutputDir: filepath.Join(dir, "dry"), Index: ix, UpdatedPath: dry, DryRun: true})
	require.NoError(t, err)
	assert.NoFileExists(t, dry)
}

func TestSplitFile_DryRun(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := filepath.Join(dir, "grouped.json")
	require.NoError(t, os.WriteFile(in, []byte(`{"X": [{"id":"x1","cluster":1}]}`), 0o644))

	res, err := SplitFile(in, SplitOptions{OutputDir: filepath.Join(dir, "out"), DryRun: true})
	require.NoError(t, err)
	assert.Empty(t, res.Files)
	_, err = os.Stat(filepath.Join(dir, "out"))
	assert.True(t, os.IsNotExist(err))
}

func TestDecodeGrouped_Invalid(t *testing.T) {
	t.Parallel()

	for _, doc := range []string{`[]`, `{"X": {"id": "x"}}`, `{"X": [{"cluster": 1}]}`, `{`} {
		_, err := DecodeGrouped([]byte(doc))
		var ve *ValidationError
		assert.True(t, errors.As(err, &ve), "doc %q: %v", doc, err)
	}
}

// Running the chain twice over the same inputs must produce byte-identical files.
func TestPipeline_Idempotent(t *testing.T) {
	t.Parallel()

	records := `[
	  {"id":"T1","cluster":1,"destinationDescription":"HLTH","title":"One","budget":{"amount":5000000}},
	  {"id":"T2","cluster":1},
	  {"id":"T3","cluster":2,"destinationDescription":"Democracy","tags":["b","a"]},
	  {"id":"T4"}
	]`
	lookup := mustIndex(t, mustLookup(t, 1, `{"HLTH": ["T2"]}`))

	run := func(dir string) map[string]string {
		in := filepath.Join(dir, "records.json")
		require.NoError(t, os.WriteFile(in, []byte(records), 0o644))
		groupedPath := filepath.Join(dir, "grouped.json")
		_, _, err := GroupFile(in, groupedPath, GroupOptions{Lookup: lookup})
		require.NoError(t, err)
		res, err := SplitFile(groupedPath, SplitOptions{OutputDir: filepath.Join(dir, "out"), Summaries: true})
		require.NoError(t, err)

		files := map[string]string{"grouped.json": readFile(t, groupedPath)}
		for _, f := range res.Files {
			files[filepath.Base(f)] = readFile(t, f)
		}
		return files
	}

	first := run(t.TempDir())
	second := run(t.TempDir())
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("outputs differ between runs (-first +second):\n%s", diff)
	}
	assert.Len(t, first, 5)
}

func TestPipeline_PreservesNonCanonicalTypedFields(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := filepath.Join(dir, "records.json")
	require.NoError(t, os.WriteFile(in, []byte(`[
	  {"id":"T1","cluster":"CL2","year":"2026-2027","destinationDescription":["A","B"],"x":1},
	  {"id":"T2","cluster":"2","year":"2026-2027","destinationDescription":["A","B"],"x":2}
	]`), 0o644))

	groupedPath := filepath.Join(dir, "grouped.json")
	_, stats, err := GroupFile(in, groupedPath, GroupOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FromMetadata)
	assert.JSONEq(t, `{"A":[
	  {"id":"T1","cluster":"CL2","year":"2026-2027","destinationDescription":["A","B"],"x":1},
	  {"id":"T2","cluster":"2","year":"2026-2027","destinationDescription":["A","B"],"x":2}
	]}`, readFile(t, groupedPath))

	res, err := SplitFile(groupedPath, SplitOptions{OutputDir: filepath.Join(dir, "out")})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Excluded)
	require.Len(t, res.Files, 1)
	assert.JSONEq(t, `{"A":[{"id":"T2","cluster":"2","year":"2026-2027","destinationDescription":["A","B"],"x":2}]}`,
		readFile(t, res.Files[0]))
}
