package model

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/rotisserie/eris"
)

// GroupedCollection maps destination keys to ordered record sequences.
// Keys keep their first-insertion order, which is also the JSON key order.
type GroupedCollection struct {
	keys   []string
	groups map[string][]CallRecord
}

// NewGroupedCollection returns an empty collection.
func NewGroupedCollection() *GroupedCollection {
	return &GroupedCollection{groups: make(map[string][]CallRecord)}
}

// Append adds rec to the end of key's sequence, registering key on first use.
func (g *GroupedCollection) Append(key string, rec CallRecord) {
	g.ensure(key)
	g.groups[key] = append(g.groups[key], rec)
}

// AddKey registers key with an empty sequence if it is not present yet.
func (g *GroupedCollection) AddKey(key string) {
	g.ensure(key)
}

func (g *GroupedCollection) ensure(key string) {
	if g.groups == nil {
		g.groups = make(map[string][]CallRecord)
	}
	if _, ok := g.groups[key]; !ok {
		g.keys = append(g.keys, key)
		g.groups[key] = []CallRecord{}
	}
}

// Keys returns destination keys in insertion order.
func (g *GroupedCollection) Keys() []string {
	out := make([]string, len(g.keys))
	copy(out, g.keys)
	return out
}

// Get returns the records stored under key.
func (g *GroupedCollection) Get(key string) []CallRecord {
	return g.groups[key]
}

// Len returns the number of destination keys.
func (g *GroupedCollection) Len() int {
	return len(g.keys)
}

// Count returns the total number of records across all keys.
func (g *GroupedCollection) Count() int {
	n := 0
	for _, recs := range g.groups {
		n += len(recs)
	}
	return n
}

// MarshalJSON encodes the collection as an object in insertion order.
func (g *GroupedCollection) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range g.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, eris.Wrapf(err, "model: marshal group key %s", k)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(g.groups[k])
		if err != nil {
			return nil, eris.Wrapf(err, "model: marshal group %s", k)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object of record arrays, keeping file key order.
func (g *GroupedCollection) UnmarshalJSON(data []byte) error {
	*g = GroupedCollection{groups: make(map[string][]CallRecord)}

	dec := json.NewDecoder(bytes.NewReader(data))
	if err := expectDelim(dec, '{'); err != nil {
		return eris.Wrap(err, "model: grouped collection")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return eris.Wrap(err, "model: read group key")
		}
		key, _ := tok.(string)

		var recs []CallRecord
		if err := dec.Decode(&recs); err != nil {
			return eris.Wrapf(err, "model: group %q must be an array of record objects", key)
		}
		g.ensure(key)
		g.groups[key] = append(g.groups[key], recs...)
	}
	if err := expectDelim(dec, '}'); err != nil {
		return eris.Wrap(err, "model: grouped collection")
	}
	return nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return eris.Wrap(err, "read token")
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return eris.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

// Summary maps destination keys to record counts, in insertion order.
type Summary struct {
	keys   []string
	counts map[string]int
}

// SummarizeGroups counts the records under each key of g.
func SummarizeGroups(g *GroupedCollection) *Summary {
	s := &Summary{counts: make(map[string]int, g.Len())}
	for _, k := range g.Keys() {
		s.keys = append(s.keys, k)
		s.counts[k] = len(g.Get(k))
	}
	return s
}

// Keys returns destination keys in insertion order.
func (s *Summary) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Count returns the count recorded for key.
func (s *Summary) Count(key string) int {
	return s.counts[key]
}

// Total returns the sum of all counts.
func (s *Summary) Total() int {
	n := 0
	for _, c := range s.counts {
		n += c
	}
	return n
}

// MarshalJSON encodes the summary as an ordered object.
func (s *Summary) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range s.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, eris.Wrapf(err, "model: marshal summary key %s", k)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(s.counts[k]))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ClusterOutput is one cluster's slice of a GroupedCollection.
type ClusterOutput struct {
	Cluster      int
	Destinations *GroupedCollection
	Summary      *Summary // nil unless summaries were requested
}
