package pack

import (
	"fmt"
	"math"
	"math/bits"
	"path/filepath"
	"reflect"

	"github.com/samcharles93/ggufpack/pkg/gguf"
)

// BuildContext accumulates the header during the contribute phase. One
// context is created per run and handed to each task in turn.
type BuildContext struct {
	sourceRoot string

	metadata []gguf.MetadataEntry
	keys     map[string]int

	tensors    []gguf.TensorInfo
	names      map[string]struct{}
	nextOffset uint64
}

func NewBuildContext(sourceRoot string) *BuildContext {
	return &BuildContext{
		sourceRoot: sourceRoot,
		keys:       make(map[string]int),
		names:      make(map[string]struct{}),
	}
}

// SourcePath resolves a manifest path against the source root.
func (c *BuildContext) SourcePath(rel string) string {
	return resolveSource(c.sourceRoot, rel)
}

func resolveSource(root, rel string) string {
	if filepath.IsAbs(rel) || root == "" {
		return rel
	}
	return filepath.Join(root, rel)
}

// PushMetadata appends an entry. Re-pushing an equal value under an existing
// key keeps the first entry; a different value fails with ErrDuplicateMetadata.
func (c *BuildContext) PushMetadata(key string, v gguf.Value) error {
	if i, ok := c.keys[key]; ok {
		if reflect.DeepEqual(c.metadata[i].Value, v) {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrDuplicateMetadata, key)
	}
	c.keys[key] = len(c.metadata)
	c.metadata = append(c.metadata, gguf.MetadataEntry{Key: key, Value: v})
	return nil
}

func (c *BuildContext) PushString(key, v string) error {
	return c.PushMetadata(key, gguf.Str(v))
}

func (c *BuildContext) PushUint32(key string, v uint32) error {
	return c.PushMetadata(key, gguf.Uint32(v))
}

func (c *BuildContext) PushFloat32(key string, v float32) error {
	return c.PushMetadata(key, gguf.Float32(v))
}

// AddTensor records a descriptor at the next free offset and advances the
// offset past its payload, rounded up to the alignment.
func (c *BuildContext) AddTensor(name string, typ gguf.TensorType, dims gguf.Dimensions) (gguf.TensorInfo, error) {
	if _, ok := c.names[name]; ok {
		return gguf.TensorInfo{}, fmt.Errorf("%w: %s", ErrDuplicateTensor, name)
	}
	info := gguf.TensorInfo{
		Name:       name,
		Type:       typ,
		Dimensions: dims,
		Offset:     c.nextOffset,
	}
	if dims.Count() == 0 {
		return gguf.TensorInfo{}, fmt.Errorf("tensor %s: %w: no dimensions", name, gguf.ErrInvalidDimension)
	}
	if typ.ElementSize() == 0 {
		return gguf.TensorInfo{}, fmt.Errorf("tensor %s: %w: %s %s", name, gguf.ErrUnsupportedTensorType, typ, dims)
	}
	size := info.ByteSize()
	if size == 0 {
		return gguf.TensorInfo{}, fmt.Errorf("tensor %s: %w: %s %s", name, ErrTensorTooLarge, typ, dims)
	}
	// The end is rounded up to the alignment, so leave room for the padding.
	end, carry := bits.Add64(info.Offset, size, 0)
	if carry != 0 || end > math.MaxUint64-(gguf.Alignment-1) {
		return gguf.TensorInfo{}, fmt.Errorf("tensor %s: %w: %d bytes at offset %d", name, ErrTensorTooLarge, size, info.Offset)
	}
	c.names[name] = struct{}{}
	c.tensors = append(c.tensors, info)
	c.nextOffset = gguf.Align(end)
	return info, nil
}

// Header returns the accumulated header.
func (c *BuildContext) Header() *gguf.Header {
	return &gguf.Header{
		Metadata: append([]gguf.MetadataEntry(nil), c.metadata...),
		Tensors:  append([]gguf.TensorInfo(nil), c.tensors...),
	}
}
