package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDestinationIndex_Formats(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		file string
		doc  string
	}{
		{"json escapes", "index.json", `{"HORIZON-CL5": [{"destination_code": "D3\/ENERGY", "destination_title": "Energy & supply", "alt_codes": ["D3\/EN"]}]}`},
		{"yaml", "index.yaml", "HORIZON-CL5:\n  - destination_code: D3/ENERGY\n    destination_title: Energy & supply\n    alt_codes: [D3/EN]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), tt.file)
			require.NoError(t, os.WriteFile(path, []byte(tt.doc), 0o644))

			ix, err := LoadDestinationIndex(path)
			require.NoError(t, err)
			assert.Equal(t, 2, ix.Len())
			assert.Equal(t, 1, ix.Alternates())

			info, ok := ix.Lookup("D3/EN")
			require.True(t, ok)
			assert.Equal(t, DestinationInfo{Programme: "HORIZON-CL5", Code: "D3/ENERGY", Title: "Energy & supply"}, info)
		})
	}
}

func TestParseDestinationIndex_Invalid(t *testing.T) {
	t.Parallel()

	for _, doc := range []string{``, `["x"]`, `{"P": [`, `{"P": []} trailing`} {
		_, err := ParseDestinationIndex([]byte(doc))
		assert.Error(t, err, "doc %q", doc)
	}
}
