package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupedCollection_KeepsInsertionOrder(t *testing.T) {
	t.Parallel()

	g := NewGroupedCollection()
	g.Append("Zulu", CallRecord{ID: "T1"})
	g.Append("Alpha", CallRecord{ID: "T2"})
	g.Append("Zulu", CallRecord{ID: "T3"})

	assert.Equal(t, []string{"Zulu", "Alpha"}, g.Keys())
	assert.Equal(t, 2, g.Len())
	assert.Equal(t, 3, g.Count())

	out, err := json.Marshal(g)
	require.NoError(t, err)
	assert.Equal(t, `{"Zulu":[{"id":"T1"},{"id":"T3"}],"Alpha":[{"id":"T2"}]}`, string(out))
}

func TestGroupedCollection_UnmarshalKeepsFileOrder(t *testing.T) {
	t.Parallel()

	in := `{"b":[{"id":"T1","cluster":1}],"a":[],"c":[{"id":"T2"},{"id":"T3"}]}`

	g := NewGroupedCollection()
	require.NoError(t, json.Unmarshal([]byte(in), g))

	assert.Equal(t, []string{"b", "a", "c"}, g.Keys())
	assert.Empty(t, g.Get("a"))
	assert.Equal(t, 3, g.Count())

	out, err := json.Marshal(g)
	require.NoError(t, err)
	assert.Equal(t, in, string(out))
}

func TestGroupedCollection_UnmarshalErrors(t *testing.T) {
	t.Parallel()

	for _, in := range []string{`[]`, `{"a":"x"}`, `{"a":[1]}`, `{"a":[{"id":"T1"}]`} {
		g := NewGroupedCollection()
		assert.Error(t, json.Unmarshal([]byte(in), g), in)
	}
}

func TestSummarizeGroups(t *testing.T) {
	t.Parallel()

	g := NewGroupedCollection()
	g.Append("HLTH", CallRecord{ID: "T1"})
	g.Append("HLTH", CallRecord{ID: "T2"})
	g.Append("CIVSEC", CallRecord{ID: "T3"})

	s := SummarizeGroups(g)
	assert.Equal(t, 2, s.Count("HLTH"))
	assert.Equal(t, 1, s.Count("CIVSEC"))
	assert.Equal(t, 3, s.Total())

	out, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Equal(t, `{"HLTH":2,"CIVSEC":1}`, string(out))
}
