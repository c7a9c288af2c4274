// Package safetensors reads the header of a safetensors file and locates
// tensor payloads inside it.
package safetensors

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/bits"
	"os"
	"strings"

	json "github.com/goccy/go-json"
)

// maxHeaderLen bounds the JSON header; real headers are a few MiB at most.
const maxHeaderLen = 100 << 20

// ReservedPrefix marks bookkeeping entries such as __metadata__.
const ReservedPrefix = "__"

var (
	ErrInvalidHeader  = errors.New("safetensors: invalid header")
	ErrTensorNotFound = errors.New("safetensors: tensor not found")
)

// TensorInfo describes one tensor. Shape is width-last; Start and End are
// relative to DataStart.
type TensorInfo struct {
	DType string
	Shape []uint64
	Start uint64
	End   uint64
}

// Len returns the byte length of the payload.
func (t TensorInfo) Len() uint64 { return t.End - t.Start }

// Elements returns the product of the shape. A scalar (empty shape) has one
// element. ReadHeader rejects shapes whose product overflows.
func (t TensorInfo) Elements() uint64 {
	n := uint64(1)
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

func shapeProduct(shape []uint64) (uint64, bool) {
	n := uint64(1)
	for _, d := range shape {
		hi, lo := bits.Mul64(n, d)
		if hi != 0 {
			return 0, false
		}
		n = lo
	}
	return n, true
}

type File struct {
	Path      string
	DataStart uint64
	Tensors   map[string]TensorInfo
}

type tensorHeader struct {
	DType       string   `json:"dtype"`
	Shape       []uint64 `json:"shape"`
	DataOffsets []uint64 `json:"data_offsets"`
}

// Open reads the header of the file at path.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	sf, err := ReadHeader(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	sf.Path = path
	return sf, nil
}

// ReadHeader parses the length-prefixed JSON header from r.
func ReadHeader(r io.Reader) (*File, error) {
	var lenBuf [8]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("%w: read header length: %v", ErrInvalidHeader, err)
	}
	headerLen := binary.LittleEndian.Uint64(lenBuf[:])
	if headerLen > maxHeaderLen {
		return nil, fmt.Errorf("%w: header length %d", ErrInvalidHeader, headerLen)
	}
	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrInvalidHeader, err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}

	tensors := make(map[string]TensorInfo, len(raw))
	for name, msg := range raw {
		if strings.HasPrefix(name, ReservedPrefix) {
			continue
		}
		var th tensorHeader
		if err := json.Unmarshal(msg, &th); err != nil {
			return nil, fmt.Errorf("%w: tensor %s: %v", ErrInvalidHeader, name, err)
		}
		if len(th.DataOffsets) != 2 || th.DataOffsets[1] < th.DataOffsets[0] {
			return nil, fmt.Errorf("%w: tensor %s: invalid data_offsets %v", ErrInvalidHeader, name, th.DataOffsets)
		}
		if _, ok := shapeProduct(th.Shape); !ok {
			return nil, fmt.Errorf("%w: tensor %s: shape %v overflows", ErrInvalidHeader, name, th.Shape)
		}
		tensors[name] = TensorInfo{
			DType: th.DType,
			Shape: th.Shape,
			Start: th.DataOffsets[0],
			End:   th.DataOffsets[1],
		}
	}
	return &File{
		DataStart: 8 + headerLen,
		Tensors:   tensors,
	}, nil
}

func (f *File) Tensor(name string) (TensorInfo, bool) {
	t, ok := f.Tensors[name]
	return t, ok
}

// Section returns a reader over the payload of name within ra, which must be
// the file the header was read from.
func (f *File) Section(ra io.ReaderAt, name string) (*io.SectionReader, TensorInfo, error) {
	t, ok := f.Tensors[name]
	if !ok {
		return nil, TensorInfo{}, fmt.Errorf("%w: %s", ErrTensorNotFound, name)
	}
	return io.NewSectionReader(ra, int64(f.DataStart+t.Start), int64(t.Len())), t, nil
}

// DTypeSize returns the byte width of one element of a safetensors dtype,
// or 0 if the dtype is unknown.
func DTypeSize(dtype string) uint64 {
	switch dtype {
	case "BOOL", "U8", "I8", "F8_E4M3", "F8_E5M2":
		return 1
	case "U16", "I16", "F16", "BF16":
		return 2
	case "U32", "I32", "F32":
		return 4
	case "U64", "I64", "F64":
		return 8
	default:
		return 0
	}
}
