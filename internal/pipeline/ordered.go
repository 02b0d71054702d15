package pipeline

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// docFormat selects the decoder for lookup maps and destination indexes.
type docFormat int

const (
	formatAuto docFormat = iota
	formatJSON
	formatYAML
)

// formatFor picks the decoder from a file extension.
func formatFor(path string) docFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return formatJSON
	case ".yaml", ".yml":
		return formatYAML
	}
	return formatAuto
}

// parseOrderedDoc decodes data into a node tree that keeps mapping key order.
// JSON goes through encoding/json so the full JSON escape set is honoured;
// formatAuto treats input starting with '{' or '[' as JSON.
func parseOrderedDoc(data []byte, format docFormat) (*yaml.Node, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, eris.New("empty document")
	}
	if format == formatAuto {
		format = formatYAML
		if trimmed[0] == '{' || trimmed[0] == '[' {
			format = formatJSON
		}
	}
	if format == formatJSON {
		return parseJSONDoc(trimmed)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "decode yaml")
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, eris.New("empty document")
	}
	return doc.Content[0], nil
}

func parseJSONDoc(data []byte) (*yaml.Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	root, err := jsonNode(dec)
	if err != nil {
		return nil, eris.Wrap(err, "decode json")
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, eris.New("decode json: trailing data after document")
	}
	return root, nil
}

// jsonNode reads one JSON value from dec as a yaml node.
func jsonNode(dec *json.Decoder) (*yaml.Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := kt.(string)
				if !ok {
					return nil, eris.Errorf("unexpected object key %v", kt)
				}
				val, err := jsonNode(dec)
				if err != nil {
					return nil, err
				}
				n.Content = append(n.Content, scalarNode("!!str", key), val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return n, nil
		case '[':
			n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
			for dec.More() {
				val, err := jsonNode(dec)
				if err != nil {
					return nil, err
				}
				n.Content = append(n.Content, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return n, nil
		}
		return nil, eris.Errorf("unexpected delimiter %q", v)
	case string:
		return scalarNode("!!str", v), nil
	case json.Number:
		if strings.ContainsAny(v.String(), ".eE") {
			return scalarNode("!!float", v.String()), nil
		}
		return scalarNode("!!int", v.String()), nil
	case bool:
		return scalarNode("!!bool", strconv.FormatBool(v)), nil
	case nil:
		return scalarNode("!!null", "null"), nil
	}
	return nil, eris.Errorf("unexpected token %v", tok)
}

func scalarNode(tag, value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}
