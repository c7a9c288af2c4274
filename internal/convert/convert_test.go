package convert

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/samcharles93/ggufpack/pkg/gguf"
	"github.com/x448/float16"
)

// referenceBF16ToF16 widens bf16 by bit shift and narrows with x448/float16.
func referenceBF16ToF16(u uint16) uint16 {
	return float16.Fromfloat32(math.Float32frombits(uint32(u) << 16)).Bits()
}

func TestBF16ToF16KnownValues(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		bf16 uint16
		want uint16
	}{
		{"zero", 0x0000, 0x0000},
		{"negative zero", 0x8000, 0x8000},
		{"one", 0x3F80, 0x3C00},
		{"minus one", 0xBF80, 0xBC00},
		{"bf16 max normal", 0x7F7F, 0x7C00},
		{"bf16 min subnormal", 0x0001, 0x0000},
		{"fp16 min subnormal", 0x3380, 0x0001},
		{"65280", 0x477F, 0x7BF8},
		{"inf", 0x7F80, 0x7C00},
	}
	for _, tc := range cases {
		got := BF16ToF16(tc.bf16)
		if got != tc.want {
			t.Errorf("%s: BF16ToF16(%#04x) = %#04x, want %#04x", tc.name, tc.bf16, got, tc.want)
		}
		if ref := referenceBF16ToF16(tc.bf16); got != ref {
			t.Errorf("%s: BF16ToF16(%#04x) = %#04x, reference %#04x", tc.name, tc.bf16, got, ref)
		}
	}
}

func TestBF16ToF16MatchesReference(t *testing.T) {
	t.Parallel()
	for u := 0; u <= 0xFFFF; u++ {
		b := uint16(u)
		if math.IsNaN(float64(BF16ToF32(b))) {
			if got := BF16ToF16(b); got&0x7C00 != 0x7C00 || got&0x3FF == 0 {
				t.Fatalf("NaN %#04x converted to %#04x", b, got)
			}
			continue
		}
		if got, want := BF16ToF16(b), referenceBF16ToF16(b); got != want {
			t.Fatalf("BF16ToF16(%#04x) = %#04x, reference %#04x", b, got, want)
		}
	}
}

func TestF16ToF32MatchesReference(t *testing.T) {
	t.Parallel()
	for u := 0; u <= 0xFFFF; u++ {
		h := uint16(u)
		got := F16ToF32(h)
		want := float16.Frombits(h).Float32()
		if math.IsNaN(float64(want)) {
			if !math.IsNaN(float64(got)) {
				t.Fatalf("F16ToF32(%#04x) = %v, want NaN", h, got)
			}
			continue
		}
		if got != want {
			t.Fatalf("F16ToF32(%#04x) = %v, want %v", h, got, want)
		}
	}
}

func bf16Bytes(vals ...uint16) []byte {
	b := make([]byte, 2*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint16(b[i*2:], v)
	}
	return b
}

func TestConvertStream(t *testing.T) {
	t.Parallel()
	src := bf16Bytes(0x3F80, 0xBF80, 0x4040, 0x0000, 0x3F00)

	// A small buffer forces several chunks.
	c := NewConverter(4)

	var f16 bytes.Buffer
	n, err := c.Convert(&f16, bytes.NewReader(src), "BF16", gguf.TensorF16, 5)
	if err != nil {
		t.Fatalf("Convert f16: %v", err)
	}
	if n != 10 || f16.Len() != 10 {
		t.Fatalf("wrote %d bytes (buffer %d), want 10", n, f16.Len())
	}
	want := []float32{1, -1, 3, 0, 0.5}
	for i, w := range want {
		got := F16ToF32(binary.LittleEndian.Uint16(f16.Bytes()[i*2:]))
		if got != w {
			t.Fatalf("f16 element %d = %v, want %v", i, got, w)
		}
	}

	var f32 bytes.Buffer
	n, err = c.Convert(&f32, bytes.NewReader(src), "BF16", gguf.TensorF32, 5)
	if err != nil {
		t.Fatalf("Convert f32: %v", err)
	}
	if n != 20 {
		t.Fatalf("wrote %d bytes, want 20", n)
	}
	for i, w := range want {
		got := math.Float32frombits(binary.LittleEndian.Uint32(f32.Bytes()[i*4:]))
		if got != w {
			t.Fatalf("f32 element %d = %v, want %v", i, got, w)
		}
	}
}

func TestConvertErrors(t *testing.T) {
	t.Parallel()
	c := NewConverter(0)

	if _, err := c.Convert(io.Discard, bytes.NewReader(nil), "F32", gguf.TensorF16, 1); !errors.Is(err, ErrUnsupportedDType) {
		t.Fatalf("dtype: got %v", err)
	}
	if _, err := c.Convert(io.Discard, bytes.NewReader(nil), "BF16", gguf.TensorQ8_0, 1); !errors.Is(err, ErrUnsupportedTarget) {
		t.Fatalf("target: got %v", err)
	}
	if _, err := c.Convert(io.Discard, bytes.NewReader(bf16Bytes(1)), "BF16", gguf.TensorF16, 2); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("short source: got %v", err)
	}
}
