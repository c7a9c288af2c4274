package safetensors

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"
)

// writeSafetensors creates a minimal safetensors file for testing.
// header values are marshalled as-is so tests can inject malformed entries.
func writeSafetensors(t *testing.T, path string, header map[string]any, data []byte) {
	t.Helper()
	headerBytes, err := json.Marshal(header)
	if err != nil {
		t.Fatalf("marshal header: %v", err)
	}

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	defer func() { _ = f.Close() }()

	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(headerBytes)))
	if _, err := f.Write(lenBuf[:]); err != nil {
		t.Fatalf("write header len: %v", err)
	}
	if _, err := f.Write(headerBytes); err != nil {
		t.Fatalf("write header: %v", err)
	}
	if _, err := f.Write(data); err != nil {
		t.Fatalf("write data: %v", err)
	}
}

func tensor(dtype string, shape []uint64, start, end uint64) map[string]any {
	return map[string]any{
		"dtype":        dtype,
		"shape":        shape,
		"data_offsets": []uint64{start, end},
	}
}

func TestOpenValidFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "test.safetensors")
	writeSafetensors(t, path, map[string]any{
		"weight": tensor("BF16", []uint64{2, 3}, 0, 12),
		"bias":   tensor("F32", []uint64{3}, 12, 24),
	}, make([]byte, 24))

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if f.Path != path {
		t.Fatalf("expected path %q, got %q", path, f.Path)
	}
	if len(f.Tensors) != 2 {
		t.Fatalf("expected 2 tensors, got %d", len(f.Tensors))
	}

	info, ok := f.Tensor("weight")
	if !ok {
		t.Fatal("tensor 'weight' not found")
	}
	if info.DType != "BF16" {
		t.Fatalf("expected dtype BF16, got %q", info.DType)
	}
	if len(info.Shape) != 2 || info.Shape[0] != 2 || info.Shape[1] != 3 {
		t.Fatalf("unexpected shape: %v", info.Shape)
	}
	if info.Elements() != 6 || info.Len() != 12 {
		t.Fatalf("elements=%d len=%d", info.Elements(), info.Len())
	}
}

func TestDataStartFollowsHeader(t *testing.T) {
	t.Parallel()
	header := []byte(`{"x":{"dtype":"U8","shape":[2],"data_offsets":[0,2]}}`)
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, uint64(len(header)))
	buf.Write(header)
	buf.Write([]byte{0xaa, 0xbb})

	f, err := ReadHeader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if f.DataStart != uint64(8+len(header)) {
		t.Fatalf("DataStart = %d", f.DataStart)
	}
	sr, _, err := f.Section(bytes.NewReader(buf.Bytes()), "x")
	if err != nil {
		t.Fatalf("Section: %v", err)
	}
	got, _ := io.ReadAll(sr)
	if !bytes.Equal(got, []byte{0xaa, 0xbb}) {
		t.Fatalf("payload = %x", got)
	}
}

func TestOpenNonexistentFile(t *testing.T) {
	t.Parallel()
	if _, err := Open("/nonexistent/file.safetensors"); err == nil {
		t.Fatal("expected error for nonexistent file")
	}
}

func TestOpenTruncatedFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "truncated.safetensors")
	if err := os.WriteFile(path, []byte{0, 0, 0, 0}, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := Open(path); !errors.Is(err, ErrInvalidHeader) {
		t.Fatalf("expected ErrInvalidHeader, got %v", err)
	}
}

func TestOpenInvalidJSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, uint64(12))
	buf.WriteString("not valid js")
	if _, err := ReadHeader(&buf); !errors.Is(err, ErrInvalidHeader) {
		t.Fatalf("expected ErrInvalidHeader, got %v", err)
	}
}

func TestOversizedHeaderLength(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, uint64(1<<40))
	if _, err := ReadHeader(&buf); !errors.Is(err, ErrInvalidHeader) {
		t.Fatalf("expected ErrInvalidHeader, got %v", err)
	}
}

func TestInvalidDataOffsets(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cases := map[string]any{
		"one": map[string]any{"dtype": "F32", "shape": []int{1}, "data_offsets": []int64{0}},
		"rev": tensor("F32", []uint64{1}, 8, 4),
		// 2^96 elements does not fit in a uint64.
		"overflow": tensor("F32", []uint64{1 << 32, 1 << 32, 1 << 32}, 0, 4),
	}
	for name, entry := range cases {
		path := filepath.Join(dir, name+".safetensors")
		writeSafetensors(t, path, map[string]any{"bad_tensor": entry}, nil)
		if _, err := Open(path); !errors.Is(err, ErrInvalidHeader) {
			t.Fatalf("%s: expected ErrInvalidHeader, got %v", name, err)
		}
	}
}

func TestReservedEntriesIgnored(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "metadata.safetensors")
	writeSafetensors(t, path, map[string]any{
		"__metadata__": map[string]string{"format": "pt"},
		"__other":      map[string]string{"x": "y"},
		"tensor1":      tensor("F32", []uint64{4}, 0, 16),
	}, make([]byte, 16))

	sf, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(sf.Tensors) != 1 {
		t.Fatalf("expected 1 tensor (reserved entries excluded), got %d", len(sf.Tensors))
	}
}

func TestSection(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bf16.safetensors")
	data := make([]byte, 6)
	binary.LittleEndian.PutUint16(data[0:], 0x3F80) // 1.0
	binary.LittleEndian.PutUint16(data[2:], 0x4000) // 2.0
	binary.LittleEndian.PutUint16(data[4:], 0xBF80) // -1.0
	writeSafetensors(t, path, map[string]any{
		"a": tensor("BF16", []uint64{1}, 0, 2),
		"b": tensor("BF16", []uint64{2}, 2, 6),
	}, data)

	sf, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = f.Close() }()

	sr, info, err := sf.Section(f, "b")
	if err != nil {
		t.Fatalf("Section: %v", err)
	}
	raw, err := io.ReadAll(sr)
	if err != nil {
		t.Fatalf("read section: %v", err)
	}
	if info.DType != "BF16" || !bytes.Equal(raw, data[2:]) {
		t.Fatalf("Section = %x (%s)", raw, info.DType)
	}

	if _, _, err := sf.Section(f, "nonexistent"); !errors.Is(err, ErrTensorNotFound) {
		t.Fatalf("expected ErrTensorNotFound, got %v", err)
	}
}

func TestDTypeSize(t *testing.T) {
	t.Parallel()
	cases := map[string]uint64{"BF16": 2, "F16": 2, "F32": 4, "I64": 8, "U8": 1, "Q4": 0}
	for dtype, want := range cases {
		if got := DTypeSize(dtype); got != want {
			t.Errorf("DTypeSize(%q) = %d, want %d", dtype, got, want)
		}
	}
}
