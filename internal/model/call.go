package model

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Reserved JSON keys for the typed CallRecord fields.
const (
	FieldID          = "id"
	FieldCluster     = "cluster"
	FieldYear        = "year"
	FieldDestination = "destinationDescription"
)

// MinCluster and MaxCluster bound the Horizon Europe Pillar II cluster numbers.
const (
	MinCluster = 1
	MaxCluster = 6
)

// CallRecord is one funding call/topic flowing through the pipeline.
// Unknown upstream fields are kept verbatim in Extra and re-emitted on encode.
type CallRecord struct {
	ID                     string
	Cluster                int // 0 when absent
	Year                   int // 0 when absent
	DestinationDescription string
	Extra                  map[string]json.RawMessage

	// source holds typed fields whose input form is not the canonical
	// encoding of the decoded value. They are written back verbatim while
	// the typed value is unchanged.
	source map[string]sourceField
}

type sourceField struct {
	raw     json.RawMessage
	decoded any
}

// sourceRaw returns the input form of key when current still equals the
// value decoded from it.
func (r CallRecord) sourceRaw(key string, current any) (json.RawMessage, bool) {
	sf, ok := r.source[key]
	if !ok || sf.decoded != current {
		return nil, false
	}
	return sf.raw, true
}

// HasCluster reports whether the record carries a valid cluster number.
func (r CallRecord) HasCluster() bool {
	return r.Cluster >= MinCluster && r.Cluster <= MaxCluster
}

// SetExtra stores v under key in the pass-through bag. Reserved keys are rejected.
func (r *CallRecord) SetExtra(key string, v any) error {
	if isReserved(key) {
		return eris.Errorf("model: %q is a reserved record field", key)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return eris.Wrapf(err, "model: marshal extra field %s", key)
	}
	if r.Extra == nil {
		r.Extra = make(map[string]json.RawMessage)
	}
	r.Extra[key] = raw
	return nil
}

// ExtraString returns a pass-through field as a string, or "" when it is
// missing or not a JSON string.
func (r CallRecord) ExtraString(key string) string {
	raw, ok := r.Extra[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// MarshalJSON writes the typed fields first, then the extra fields in sorted
// key order so encoding is deterministic.
func (r CallRecord) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	first := true
	writeField := func(key string, raw []byte) {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, _ := json.Marshal(key)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(raw)
	}

	for _, f := range []struct {
		key     string
		current any
	}{
		{FieldID, r.ID},
		{FieldCluster, r.Cluster},
		{FieldYear, r.Year},
		{FieldDestination, r.DestinationDescription},
	} {
		if raw, ok := r.sourceRaw(f.key, f.current); ok {
			writeField(f.key, raw)
			continue
		}
		raw, err := canonicalField(f.key, f.current)
		if err != nil {
			return nil, err
		}
		if raw != nil {
			writeField(f.key, raw)
		}
	}

	keys := make([]string, 0, len(r.Extra))
	for k := range r.Extra {
		if !isReserved(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		raw := r.Extra[k]
		if len(raw) == 0 {
			raw = json.RawMessage("null")
		}
		writeField(k, raw)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// canonicalField encodes a typed field value. Zero cluster, year and empty
// destination are omitted (nil).
func canonicalField(key string, v any) ([]byte, error) {
	switch val := v.(type) {
	case int:
		if val == 0 {
			return nil, nil
		}
		return []byte(strconv.Itoa(val)), nil
	case string:
		if val == "" && key != FieldID {
			return nil, nil
		}
		b, err := json.Marshal(val)
		if err != nil {
			return nil, eris.Wrapf(err, "model: marshal %s", key)
		}
		return b, nil
	}
	return nil, eris.Errorf("model: unsupported value for %s", key)
}

// keepSource records raw as the input form of key when it differs from the
// canonical encoding of decoded.
func (r *CallRecord) keepSource(key string, raw json.RawMessage, decoded any) {
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return
	}
	canonical, err := canonicalField(key, decoded)
	if err == nil && bytes.Equal(compact.Bytes(), canonical) {
		return
	}
	if r.source == nil {
		r.source = make(map[string]sourceField)
	}
	r.source[key] = sourceField{raw: append(json.RawMessage(nil), compact.Bytes()...), decoded: decoded}
}

// UnmarshalJSON reads a record object. Typed fields are parsed leniently:
// numbers or numeric strings for cluster/year, a string or the first string
// of an array for destinationDescription. A typed field whose input is not in
// canonical form is re-emitted exactly as read, so values that do not parse
// (a cluster of "CL2", a destination list) survive every stage.
func (r *CallRecord) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return eris.Wrap(err, "model: record is not a JSON object")
	}
	if fields == nil {
		return eris.New("model: record is null")
	}

	*r = CallRecord{}
	for k, raw := range fields {
		switch k {
		case FieldID:
			r.ID = strings.TrimSpace(firstString(raw))
			r.keepSource(k, raw, r.ID)
		case FieldCluster:
			if n, ok := FlexibleInt(raw); ok {
				r.Cluster = n
			}
			r.keepSource(k, raw, r.Cluster)
		case FieldYear:
			if n, ok := FlexibleInt(raw); ok {
				r.Year = n
			}
			r.keepSource(k, raw, r.Year)
		case FieldDestination:
			r.DestinationDescription = firstString(raw)
			r.keepSource(k, raw, r.DestinationDescription)
		default:
			if r.Extra == nil {
				r.Extra = make(map[string]json.RawMessage)
			}
			r.Extra[k] = raw
		}
	}
	return nil
}

// FlexibleInt decodes a JSON number, numeric string, or single-element array
// of either into an int.
func FlexibleInt(raw json.RawMessage) (int, bool) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
		if f, err := n.Float64(); err == nil && f == float64(int(f)) {
			return int(f), true
		}
		return 0, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		i, err := strconv.Atoi(strings.TrimSpace(s))
		return i, err == nil
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil && len(arr) > 0 {
		return FlexibleInt(arr[0])
	}
	return 0, false
}

func firstString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil {
		for _, el := range arr {
			if err := json.Unmarshal(el, &s); err == nil {
				return s
			}
		}
	}
	return ""
}

func isReserved(key string) bool {
	switch key {
	case FieldID, FieldCluster, FieldYear, FieldDestination:
		return true
	}
	return false
}

// TopicRef is the extractor's output tuple.
type TopicRef struct {
	ID      string `json:"id"`
	Cluster int    `json:"cluster"`
	Year    int    `json:"year,omitempty"`
}
