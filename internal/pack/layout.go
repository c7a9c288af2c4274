package pack

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/samcharles93/ggufpack/internal/manifest"
	"github.com/samcharles93/ggufpack/pkg/gguf"
)

// Placeholder is replaced by the index in templated tensor groups.
const Placeholder = "$"

var rangeKey = regexp.MustCompile(`^@range\(\s*(\d+)\s*,\s*(\d+)\s*\)$`)

// tensorSpec is one output tensor requested by the manifest.
type tensorSpec struct {
	Name       string
	Source     string
	Type       gguf.TensorType
	Dimensions gguf.Dimensions
}

// parseTensorSpecs expands a tensors table. Plain keys name one tensor;
// keys of the form @range(START,END) hold a table of templates that is
// instantiated for every index in [START, END), index-major.
func parseTensorSpecs(tensors *manifest.Table) ([]tensorSpec, error) {
	var specs []tensorSpec
	for _, key := range tensors.Keys() {
		entry, err := tensors.Table(key)
		if err != nil {
			return nil, err
		}
		if !strings.HasPrefix(key, "@") {
			spec, err := parseTensorSpec(entry, key)
			if err != nil {
				return nil, err
			}
			specs = append(specs, spec)
			continue
		}

		start, end, err := parseRange(key)
		if err != nil {
			return nil, tensors.Errorf(key, "%v", err)
		}
		templates := make([]tensorSpec, 0, entry.Len())
		for _, name := range entry.Keys() {
			tt, err := entry.Table(name)
			if err != nil {
				return nil, err
			}
			spec, err := parseTensorSpec(tt, name)
			if err != nil {
				return nil, err
			}
			if !strings.Contains(spec.Name, Placeholder) {
				return nil, entry.Errorf(name, "templated name has no %q placeholder", Placeholder)
			}
			templates = append(templates, spec)
		}
		specs = append(specs, expandRange(templates, start, end)...)
	}
	return specs, nil
}

func parseRange(key string) (uint64, uint64, error) {
	m := rangeKey.FindStringSubmatch(key)
	if m == nil {
		return 0, 0, fmt.Errorf("invalid group key, want @range(START,END)")
	}
	start, err := strconv.ParseUint(m[1], 10, 32)
	if err != nil {
		return 0, 0, err
	}
	end, err := strconv.ParseUint(m[2], 10, 32)
	if err != nil {
		return 0, 0, err
	}
	if end < start {
		return 0, 0, fmt.Errorf("range end %d before start %d", end, start)
	}
	if end-start > gguf.MaxEntries {
		return 0, 0, fmt.Errorf("range of %d exceeds %d tensors", end-start, gguf.MaxEntries)
	}
	return start, end, nil
}

func expandRange(templates []tensorSpec, start, end uint64) []tensorSpec {
	out := make([]tensorSpec, 0, int(end-start)*len(templates))
	for i := start; i < end; i++ {
		idx := strconv.FormatUint(i, 10)
		for _, tmpl := range templates {
			spec := tmpl
			spec.Name = strings.ReplaceAll(tmpl.Name, Placeholder, idx)
			spec.Source = strings.ReplaceAll(tmpl.Source, Placeholder, idx)
			out = append(out, spec)
		}
	}
	return out
}

func parseTensorSpec(t *manifest.Table, name string) (tensorSpec, error) {
	spec := tensorSpec{Name: name}
	if err := t.Only("source", "type", "dimensions"); err != nil {
		return spec, err
	}
	var err error
	if spec.Source, err = t.String("source"); err != nil {
		return spec, err
	}

	typeName, err := t.String("type")
	if err != nil {
		return spec, err
	}
	typ, ok := gguf.ParseTensorType(typeName)
	if !ok || (typ != gguf.TensorF16 && typ != gguf.TensorF32) {
		return spec, t.Errorf("type", "unsupported target type %q (want F16 or F32)", typeName)
	}
	spec.Type = typ

	dims, err := t.Uint64List("dimensions")
	if err != nil {
		return spec, err
	}
	if len(dims) == 0 {
		return spec, t.Errorf("dimensions", "at least one dimension is required")
	}
	if spec.Dimensions, err = gguf.DimensionsFromSlice(dims); err != nil {
		return spec, t.Errorf("dimensions", "%v", err)
	}
	return spec, nil
}
