package gguf

import (
	"fmt"
	"io"
	"math/bits"
)

// MetadataEntry is one key/value pair of the header. Entry order is preserved
// and keys are not deduplicated by the codec.
type MetadataEntry struct {
	Key   string
	Value Value
}

// TensorInfo describes one tensor. Offset is relative to the start of the
// tensor data region.
type TensorInfo struct {
	Name       string
	Type       TensorType
	Dimensions Dimensions
	Offset     uint64
}

// ByteSize returns the payload size of t, or 0 for block-quantized types
// and for sizes that do not fit in a uint64.
func (t TensorInfo) ByteSize() uint64 {
	hi, lo := bits.Mul64(t.Dimensions.Total(), t.Type.ElementSize())
	if hi != 0 {
		return 0
	}
	return lo
}

type Header struct {
	Metadata []MetadataEntry
	Tensors  []TensorInfo
}

// WriteHeader encodes h at version Version. It does not pad to the data region;
// use Writer for a complete container.
func WriteHeader(w io.Writer, h *Header) error {
	_, err := writeHeader(NewEncoder(w), h)
	return err
}

func writeHeader(e *Encoder, h *Header) (int64, error) {
	if len(h.Tensors) > MaxEntries {
		return e.Written(), fmt.Errorf("%w: %d tensors", ErrExcessiveCount, len(h.Tensors))
	}
	if len(h.Metadata) > MaxEntries {
		return e.Written(), fmt.Errorf("%w: %d metadata entries", ErrExcessiveCount, len(h.Metadata))
	}

	if err := e.write([]byte(Magic)); err != nil {
		return e.Written(), err
	}
	if err := e.WriteU32(Version); err != nil {
		return e.Written(), err
	}
	if err := e.WriteU64(uint64(len(h.Tensors))); err != nil {
		return e.Written(), err
	}
	if err := e.WriteU64(uint64(len(h.Metadata))); err != nil {
		return e.Written(), err
	}

	for _, m := range h.Metadata {
		if err := WriteMetadataEntry(e, m.Key, m.Value); err != nil {
			return e.Written(), fmt.Errorf("gguf: write metadata: %w", err)
		}
	}
	for i := range h.Tensors {
		if err := writeTensorInfo(e, &h.Tensors[i]); err != nil {
			return e.Written(), fmt.Errorf("gguf: write tensor %q: %w", h.Tensors[i].Name, err)
		}
	}
	return e.Written(), nil
}

func writeTensorInfo(e *Encoder, t *TensorInfo) error {
	if !t.Type.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidTensorType, uint32(t.Type))
	}
	if err := e.WriteString([]byte(t.Name)); err != nil {
		return err
	}
	n := t.Dimensions.Count()
	if err := e.WriteU32(uint32(n)); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := e.WriteU64(t.Dimensions[i]); err != nil {
			return err
		}
	}
	if err := e.WriteU32(uint32(t.Type)); err != nil {
		return err
	}
	return e.WriteU64(t.Offset)
}

// ReadHeader decodes a header, validating the magic and version and bounding
// every count and length it reads.
func ReadHeader(r io.Reader) (*Header, error) {
	_, h, err := readHeader(NewDecoder(r))
	return h, err
}

func readHeader(d *Decoder) (uint32, *Header, error) {
	magic := make([]byte, len(Magic))
	if err := d.fill(magic); err != nil {
		return 0, nil, fmt.Errorf("gguf: read magic: %w", err)
	}
	if string(magic) != Magic {
		return 0, nil, fmt.Errorf("%w: %q", ErrInvalidMagic, magic)
	}

	// Version 1 used 32-bit counts and is not supported.
	version, err := d.ReadU32()
	if err != nil {
		return 0, nil, fmt.Errorf("gguf: read version: %w", err)
	}
	if version != 2 && version != 3 {
		return 0, nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	tensorCount, err := d.ReadU64()
	if err != nil {
		return 0, nil, fmt.Errorf("gguf: read tensor count: %w", err)
	}
	kvCount, err := d.ReadU64()
	if err != nil {
		return 0, nil, fmt.Errorf("gguf: read metadata count: %w", err)
	}
	if tensorCount > MaxEntries {
		return 0, nil, fmt.Errorf("%w: %d tensors", ErrExcessiveCount, tensorCount)
	}
	if kvCount > MaxEntries {
		return 0, nil, fmt.Errorf("%w: %d metadata entries", ErrExcessiveCount, kvCount)
	}

	h := &Header{
		Metadata: make([]MetadataEntry, 0, kvCount),
		Tensors:  make([]TensorInfo, 0, tensorCount),
	}
	for i := range kvCount {
		key, v, err := ReadMetadataEntry(d)
		if err != nil {
			return 0, nil, fmt.Errorf("gguf: metadata entry %d: %w", i, err)
		}
		h.Metadata = append(h.Metadata, MetadataEntry{Key: key, Value: v})
	}
	for i := range tensorCount {
		t, err := readTensorInfo(d)
		if err != nil {
			return 0, nil, fmt.Errorf("gguf: tensor info %d: %w", i, err)
		}
		h.Tensors = append(h.Tensors, t)
	}
	return version, h, nil
}

func readTensorInfo(d *Decoder) (TensorInfo, error) {
	var t TensorInfo
	name, err := d.ReadString()
	if err != nil {
		return t, fmt.Errorf("read name: %w", err)
	}
	t.Name = string(name)

	n, err := d.ReadU32()
	if err != nil {
		return t, fmt.Errorf("tensor %q: read dimension count: %w", t.Name, err)
	}
	if n > MaxDimensions {
		return t, fmt.Errorf("tensor %q: %w: %d", t.Name, ErrTooManyDimensions, n)
	}
	for i := range n {
		v, err := d.ReadU64()
		if err != nil {
			return t, fmt.Errorf("tensor %q: read dimension %d: %w", t.Name, i, err)
		}
		if v == 0 {
			return t, fmt.Errorf("tensor %q: %w at index %d", t.Name, ErrInvalidDimension, i)
		}
		t.Dimensions[i] = v
	}
	if _, ok := t.Dimensions.checkedTotal(); !ok {
		return t, fmt.Errorf("tensor %q: %w: %s", t.Name, ErrDimensionOverflow, t.Dimensions)
	}

	tag, err := d.ReadU32()
	if err != nil {
		return t, fmt.Errorf("tensor %q: read type: %w", t.Name, err)
	}
	t.Type = TensorType(tag)
	if !t.Type.Valid() {
		return t, fmt.Errorf("tensor %q: %w: %d", t.Name, ErrInvalidTensorType, tag)
	}

	if t.Offset, err = d.ReadU64(); err != nil {
		return t, fmt.Errorf("tensor %q: read offset: %w", t.Name, err)
	}
	return t, nil
}
