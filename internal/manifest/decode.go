package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// TOML decodes into Go maps, so key order is recovered from the metadata
// key list, which is in document order.

func parseTOML(data []byte) (*Table, error) {
	var raw map[string]any
	md, err := toml.Decode(string(data), &raw)
	if err != nil {
		return nil, err
	}
	order := make(map[string]int)
	for i, k := range md.Keys() {
		p := tomlPath(k)
		if _, seen := order[p]; !seen {
			order[p] = i
		}
	}
	return tomlTable(raw, nil, order)
}

func tomlPath(k []string) string { return strings.Join(k, "\x00") }

func tomlTable(raw map[string]any, path []string, order map[string]int) (*Table, error) {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	pos := func(k string) int {
		if i, ok := order[tomlPath(append(path[:len(path):len(path)], k))]; ok {
			return i
		}
		return math.MaxInt
	}
	sort.SliceStable(keys, func(i, j int) bool {
		pi, pj := pos(keys[i]), pos(keys[j])
		if pi != pj {
			return pi < pj
		}
		return keys[i] < keys[j]
	})

	t := newTable("", "")
	for _, k := range keys {
		v, err := tomlValue(raw[k], append(path[:len(path):len(path)], k), order)
		if err != nil {
			return nil, err
		}
		t.Set(k, v)
	}
	return t, nil
}

func tomlValue(v any, path []string, order map[string]int) (any, error) {
	switch x := v.(type) {
	case string, int64, float64, bool:
		return x, nil
	case map[string]any:
		return tomlTable(x, path, order)
	case []map[string]any:
		out := make([]any, len(x))
		for i, m := range x {
			sub, err := tomlTable(m, path, order)
			if err != nil {
				return nil, err
			}
			out[i] = sub
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			ev, err := tomlValue(e, path, order)
			if err != nil {
				return nil, err
			}
			out[i] = ev
		}
		return out, nil
	default:
		return nil, &ConfigError{Field: strings.Join(path, "."), Err: fmt.Errorf("%w: unsupported value %T", errType, v)}
	}
}

func parseYAML(data []byte) (*Table, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind == 0 {
		return newTable("", ""), nil
	}
	root := &doc
	if root.Kind == yaml.DocumentNode {
		if len(root.Content) == 0 {
			return newTable("", ""), nil
		}
		root = root.Content[0]
	}
	v, err := yamlValue(root, "")
	if err != nil {
		return nil, err
	}
	t, ok := v.(*Table)
	if !ok {
		return nil, &ConfigError{Err: fmt.Errorf("%w: manifest root must be a mapping", errType)}
	}
	return t, nil
}

func yamlValue(n *yaml.Node, path string) (any, error) {
	fail := func(err error) error {
		return &ConfigError{Field: path, Err: fmt.Errorf("line %d: %w", n.Line, err)}
	}
	switch n.Kind {
	case yaml.AliasNode:
		return yamlValue(n.Alias, path)
	case yaml.MappingNode:
		t := newTable("", "")
		for i := 0; i+1 < len(n.Content); i += 2 {
			kn, vn := n.Content[i], n.Content[i+1]
			if kn.Kind != yaml.ScalarNode {
				return nil, fail(fmt.Errorf("%w: mapping keys must be scalars", errType))
			}
			key := kn.Value
			if t.Has(key) {
				return nil, fail(fmt.Errorf("duplicate key %q", key))
			}
			v, err := yamlValue(vn, joinPath(path, key))
			if err != nil {
				return nil, err
			}
			t.Set(key, v)
		}
		return t, nil
	case yaml.SequenceNode:
		out := make([]any, len(n.Content))
		for i, c := range n.Content {
			v, err := yamlValue(c, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case yaml.ScalarNode:
		switch n.ShortTag() {
		case "!!str":
			return n.Value, nil
		case "!!int":
			var i int64
			if err := n.Decode(&i); err != nil {
				return nil, fail(err)
			}
			return i, nil
		case "!!float":
			var f float64
			if err := n.Decode(&f); err != nil {
				return nil, fail(err)
			}
			return f, nil
		case "!!bool":
			var b bool
			if err := n.Decode(&b); err != nil {
				return nil, fail(err)
			}
			return b, nil
		default:
			return nil, fail(fmt.Errorf("%w: unsupported scalar %s", errType, n.ShortTag()))
		}
	default:
		return nil, fail(fmt.Errorf("%w: unsupported node", errType))
	}
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

// JSON objects are walked token by token to keep member order.

func parseJSON(data []byte) (*Table, error) {
	if !json.Valid(data) {
		return nil, errors.New("invalid JSON document")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, &ConfigError{Err: fmt.Errorf("%w: manifest root must be an object", errType)}
	}
	return jsonObject(dec, "")
}

func jsonObject(dec *json.Decoder, path string) (*Table, error) {
	t := newTable("", "")
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		if d, ok := tok.(json.Delim); ok && d == '}' {
			return t, nil
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key at %q, got %v", path, tok)
		}
		if t.Has(key) {
			return nil, &ConfigError{Field: joinPath(path, key), Err: errors.New("duplicate key")}
		}
		v, err := jsonValue(dec, joinPath(path, key))
		if err != nil {
			return nil, err
		}
		t.Set(key, v)
	}
}

func jsonValue(dec *json.Decoder, path string) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	switch x := tok.(type) {
	case json.Delim:
		switch x {
		case '{':
			return jsonObject(dec, path)
		case '[':
			var out []any
			for i := 0; ; i++ {
				if !dec.More() {
					if _, err := dec.Token(); err != nil {
						return nil, err
					}
					if out == nil {
						out = []any{}
					}
					return out, nil
				}
				v, err := jsonValue(dec, fmt.Sprintf("%s[%d]", path, i))
				if err != nil {
					return nil, err
				}
				out = append(out, v)
			}
		default:
			return nil, fmt.Errorf("unexpected %v at %q", x, path)
		}
	case json.Number:
		s := string(x)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, &ConfigError{Field: path, Err: fmt.Errorf("%w: bad number %q", errType, s)}
		}
		return f, nil
	case string, bool:
		return x, nil
	case nil:
		return nil, &ConfigError{Field: path, Err: fmt.Errorf("%w: null is not supported", errType)}
	default:
		return nil, &ConfigError{Field: path, Err: fmt.Errorf("%w: unsupported value %T", errType, tok)}
	}
}
