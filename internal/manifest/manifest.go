// Package manifest loads packaging manifests into ordered task tables.
//
// A manifest is a TOML, YAML or JSON document whose top-level tables are
// tasks, keyed by task key, in the order they appear in the file:
//
//	[card]
//	task = "add-model-card"
//	name = "tiny"
//
// The optional top-level integer manifest_version must be 0 when present.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// VersionKey is the only top-level key that is not a task.
const VersionKey = "manifest_version"

type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFromPath picks a format by file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", &ConfigError{Err: fmt.Errorf("unsupported manifest extension %q", filepath.Ext(path))}
	}
}

// Task is one top-level manifest table.
type Task struct {
	Key   string
	Table *Table
}

type Manifest struct {
	Path  string
	Tasks []Task
}

// Dir returns the directory holding the manifest file.
func (m *Manifest) Dir() string {
	if m.Path == "" {
		return "."
	}
	return filepath.Dir(m.Path)
}

// Load reads and parses the manifest at path.
func Load(path string) (*Manifest, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.Path = path
	return m, nil
}

// Parse decodes a manifest document.
func Parse(data []byte, format Format) (*Manifest, error) {
	var (
		root *Table
		err  error
	)
	switch format {
	case FormatTOML:
		root, err = parseTOML(data)
	case FormatYAML:
		root, err = parseYAML(data)
	case FormatJSON:
		root, err = parseJSON(data)
	default:
		return nil, &ConfigError{Err: fmt.Errorf("unknown manifest format %q", format)}
	}
	if err != nil {
		var ce *ConfigError
		if errors.As(err, &ce) {
			return nil, err
		}
		return nil, &ConfigError{Err: fmt.Errorf("parse %s: %w", format, err)}
	}
	return fromRoot(root)
}

func fromRoot(root *Table) (*Manifest, error) {
	m := &Manifest{}
	for _, key := range root.keys {
		v := root.values[key]
		if key == VersionKey {
			ver, ok := v.(int64)
			if !ok || ver != 0 {
				return nil, &ConfigError{Field: key, Err: fmt.Errorf("unsupported manifest version %v", v)}
			}
			continue
		}
		t, ok := v.(*Table)
		if !ok {
			return nil, &ConfigError{Task: key, Err: fmt.Errorf("%w: task must be a table, got %s", errType, typeName(v))}
		}
		t.reroot(key, "")
		m.Tasks = append(m.Tasks, Task{Key: key, Table: t})
	}
	return m, nil
}
