package manifest

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrConfig matches every ConfigError.
var ErrConfig = errors.New("manifest: invalid configuration")

var (
	errMissing = errors.New("missing required field")
	errType    = errors.New("wrong type")
	errRange   = errors.New("value out of range")
)

// ConfigError names the task and field of a malformed configuration value.
type ConfigError struct {
	Task  string
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	switch {
	case e.Task == "" && e.Field == "":
		return "config: " + e.Err.Error()
	case e.Field == "":
		return fmt.Sprintf("task %q: %v", e.Task, e.Err)
	case e.Task == "":
		return fmt.Sprintf("field %q: %v", e.Field, e.Err)
	default:
		return fmt.Sprintf("task %q: field %q: %v", e.Task, e.Field, e.Err)
	}
}

func (e *ConfigError) Unwrap() error { return e.Err }

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

// Table is an ordered configuration table. Values are string, int64,
// float64, bool, *Table or []any.
type Table struct {
	task   string
	path   string
	keys   []string
	values map[string]any
}

func newTable(task, path string) *Table {
	return &Table{task: task, path: path, values: make(map[string]any)}
}

// NewTable returns an empty table for the given task key.
func NewTable(task string) *Table {
	return newTable(task, "")
}

// Set appends key, or replaces its value in place.
func (t *Table) Set(key string, v any) {
	if _, ok := t.values[key]; !ok {
		t.keys = append(t.keys, key)
	}
	if sub, ok := v.(*Table); ok {
		sub.reroot(t.task, t.field(key))
	}
	t.values[key] = v
}

func (t *Table) reroot(task, path string) {
	t.task, t.path = task, path
	for _, k := range t.keys {
		if sub, ok := t.values[k].(*Table); ok {
			sub.reroot(task, t.field(k))
		}
	}
}

// Task returns the task key this table belongs to.
func (t *Table) Task() string { return t.task }

// Keys returns the keys in file order.
func (t *Table) Keys() []string { return append([]string(nil), t.keys...) }

func (t *Table) Len() int { return len(t.keys) }

func (t *Table) Has(key string) bool {
	_, ok := t.values[key]
	return ok
}

func (t *Table) Get(key string) (any, bool) {
	v, ok := t.values[key]
	return v, ok
}

func (t *Table) field(key string) string {
	if t.path == "" {
		return key
	}
	return t.path + "." + key
}

// Errorf builds a ConfigError for key in this table.
func (t *Table) Errorf(key string, format string, args ...any) error {
	return &ConfigError{Task: t.task, Field: t.field(key), Err: fmt.Errorf(format, args...)}
}

func (t *Table) fail(key string, err error) error {
	return &ConfigError{Task: t.task, Field: t.field(key), Err: err}
}

func (t *Table) require(key string) (any, error) {
	v, ok := t.values[key]
	if !ok {
		return nil, t.fail(key, errMissing)
	}
	return v, nil
}

func (t *Table) String(key string) (string, error) {
	v, err := t.require(key)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", t.fail(key, fmt.Errorf("%w: want string, got %s", errType, typeName(v)))
	}
	return s, nil
}

func (t *Table) Int64(key string) (int64, error) {
	v, err := t.require(key)
	if err != nil {
		return 0, err
	}
	i, ok := v.(int64)
	if !ok {
		return 0, t.fail(key, fmt.Errorf("%w: want integer, got %s", errType, typeName(v)))
	}
	return i, nil
}

func (t *Table) Uint64(key string) (uint64, error) {
	i, err := t.Int64(key)
	if err != nil {
		return 0, err
	}
	if i < 0 {
		return 0, t.fail(key, fmt.Errorf("%w: %d is negative", errRange, i))
	}
	return uint64(i), nil
}

func (t *Table) Uint32(key string) (uint32, error) {
	i, err := t.Uint64(key)
	if err != nil {
		return 0, err
	}
	if i > math.MaxUint32 {
		return 0, t.fail(key, fmt.Errorf("%w: %d exceeds u32", errRange, i))
	}
	return uint32(i), nil
}

// Float64 accepts integers as well as floats.
func (t *Table) Float64(key string) (float64, error) {
	v, err := t.require(key)
	if err != nil {
		return 0, err
	}
	switch f := v.(type) {
	case float64:
		return f, nil
	case int64:
		return float64(f), nil
	default:
		return 0, t.fail(key, fmt.Errorf("%w: want number, got %s", errType, typeName(v)))
	}
}

func (t *Table) Float32(key string) (float32, error) {
	f, err := t.Float64(key)
	if err != nil {
		return 0, err
	}
	if math.Abs(f) > math.MaxFloat32 {
		return 0, t.fail(key, fmt.Errorf("%w: %g exceeds f32", errRange, f))
	}
	return float32(f), nil
}

func (t *Table) Bool(key string) (bool, error) {
	v, err := t.require(key)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, t.fail(key, fmt.Errorf("%w: want bool, got %s", errType, typeName(v)))
	}
	return b, nil
}

// OptionalBool returns def when key is absent.
func (t *Table) OptionalBool(key string, def bool) (bool, error) {
	if !t.Has(key) {
		return def, nil
	}
	return t.Bool(key)
}

func (t *Table) Table(key string) (*Table, error) {
	v, err := t.require(key)
	if err != nil {
		return nil, err
	}
	sub, ok := v.(*Table)
	if !ok {
		return nil, t.fail(key, fmt.Errorf("%w: want table, got %s", errType, typeName(v)))
	}
	return sub, nil
}

// Uint64List reads an array of non-negative integers.
func (t *Table) Uint64List(key string) ([]uint64, error) {
	v, err := t.require(key)
	if err != nil {
		return nil, err
	}
	list, ok := v.([]any)
	if !ok {
		return nil, t.fail(key, fmt.Errorf("%w: want array, got %s", errType, typeName(v)))
	}
	out := make([]uint64, len(list))
	for i, e := range list {
		n, ok := e.(int64)
		if !ok || n < 0 {
			return nil, t.fail(fmt.Sprintf("%s[%d]", key, i), fmt.Errorf("%w: want non-negative integer, got %v", errType, e))
		}
		out[i] = uint64(n)
	}
	return out, nil
}

// Only fails when the table holds a key outside allowed.
func (t *Table) Only(allowed ...string) error {
	for _, k := range t.keys {
		found := false
		for _, a := range allowed {
			if k == a {
				found = true
				break
			}
		}
		if !found {
			return t.fail(k, fmt.Errorf("unknown field (allowed: %s)", strings.Join(allowed, ", ")))
		}
	}
	return nil
}

func typeName(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case int64:
		return "integer"
	case float64:
		return "float"
	case bool:
		return "bool"
	case *Table:
		return "table"
	case []any:
		return "array"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", v)
	}
}
