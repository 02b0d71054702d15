package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLookupMap_Formats(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
	}{
		{"plain identifiers", `{"Tackling diseases": ["A", "B"], "Health care": ["C"]}`},
		{"call objects", `{"Tackling diseases": [{"call_id": "A", "title": "a"}, {"call_id": "B"}], "Health care": [{"id": "C"}]}`},
		{"yaml", "Tackling diseases:\n  - A\n  - call_id: B\nHealth care:\n  - C\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, err := ParseLookupMap([]byte(tt.doc), 1)
			require.NoError(t, err)
			assert.Equal(t, []string{"Tackling diseases", "Health care"}, m.Destinations())
			assert.Equal(t, []string{"A", "B"}, m.Members("Tackling diseases"))
			assert.Equal(t, []string{"A", "B", "C"}, m.IDs())
		})
	}
}

func TestParseLookupMap_NormalizesDestination(t *testing.T) {
	t.Parallel()

	m, err := ParseLookupMap([]byte(`{"  Climate,\n energy  ": ["X"]}`), 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"Climate, energy"}, m.Destinations())
}

func TestParseLookupMap_Errors(t *testing.T) {
	t.Parallel()

	_, err := ParseLookupMap([]byte(`{"A": ["X"]}`), 0)
	var ce *ConfigurationError
	assert.True(t, errors.As(err, &ce))

	for _, doc := range []string{`["X"]`, `{"A": "X"}`, ``, `{"A": [`} {
		_, err := ParseLookupMap([]byte(doc), 1)
		var ve *ValidationError
		assert.True(t, errors.As(err, &ve), "doc %q: %v", doc, err)
	}
}

func TestLoadLookupMap(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cl2.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"Democracy": ["HORIZON-CL2-2027-01-DEMOCRACY-06"]}`), 0o644))

	m, err := LoadLookupMap(path, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Cluster)
	assert.Equal(t, path, m.Source)

	_, err = LoadLookupMap(filepath.Join(t.TempDir(), "missing.json"), 2)
	assert.Error(t, err)
}

func TestParseLookupMap_JSONEscapes(t *testing.T) {
	t.Parallel()

	m, err := ParseLookupMap([]byte(`{"Z\/B": ["T\/2"], "A\u0020C": [{"call_id": "T\/3"}]}`), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Z/B", "A C"}, m.Destinations())
	assert.Equal(t, []string{"T/2"}, m.Members("Z/B"))
	assert.Equal(t, []string{"T/3"}, m.Members("A C"))
}

func TestLoadLookupMap_FormatByExtension(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "cl1.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"A\/B": ["T\/2"]}`), 0o644))
	m, err := LoadLookupMap(jsonPath, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"A/B"}, m.Destinations())
	assert.Equal(t, []string{"T/2"}, m.Members("A/B"))

	yamlPath := filepath.Join(dir, "cl1.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("Second:\n  - T2\nFirst:\n  - T1\n"), 0o644))
	m, err = LoadLookupMap(yamlPath, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Second", "First"}, m.Destinations())

	badPath := filepath.Join(dir, "cl1b.json")
	require.NoError(t, os.WriteFile(badPath, []byte("A:\n  - T1\n"), 0o644))
	_, err = LoadLookupMap(badPath, 1)
	var ve *ValidationError
	assert.True(t, errors.As(err, &ve), "yaml body in a .json file: %v", err)
}

func TestLookupIndex_NilSafe(t *testing.T) {
	t.Parallel()

	var ix *LookupIndex
	_, ok := ix.Resolve("X", 1)
	assert.False(t, ok)
	assert.False(t, ix.HasCluster(1))
	assert.Equal(t, 0, ix.Size())

	ix = mustIndex(t, nil, mustLookup(t, 3, `{"D": ["X"]}`))
	assert.True(t, ix.HasCluster(3))
	assert.False(t, ix.HasCluster(1))
}
