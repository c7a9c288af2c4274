// Package convert re-encodes tensor payloads between element types.
package convert

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/samcharles93/ggufpack/pkg/gguf"
)

const defaultBufSize = 1 << 20

var (
	ErrUnsupportedDType  = errors.New("convert: unsupported source dtype")
	ErrUnsupportedTarget = errors.New("convert: unsupported target type")
)

// Converter streams element conversions through reusable buffers.
// It is not safe for concurrent use.
type Converter struct {
	inBuf  []byte
	outBuf []byte
}

// NewConverter allocates buffers for chunks of up to bufSize input bytes.
func NewConverter(bufSize int) *Converter {
	if bufSize < 4 {
		bufSize = defaultBufSize
	}
	bufSize &^= 1
	return &Converter{
		inBuf:  make([]byte, bufSize),
		outBuf: make([]byte, bufSize*2),
	}
}

// Supported reports whether Convert accepts the pair.
func Supported(from string, to gguf.TensorType) error {
	if from != "BF16" {
		return fmt.Errorf("%w: %s", ErrUnsupportedDType, from)
	}
	if to != gguf.TensorF16 && to != gguf.TensorF32 {
		return fmt.Errorf("%w: %s", ErrUnsupportedTarget, to)
	}
	return nil
}

// Convert reads n elements of dtype from src and writes them to dst encoded
// as to. It returns the number of bytes written.
func (c *Converter) Convert(dst io.Writer, src io.Reader, from string, to gguf.TensorType, n uint64) (uint64, error) {
	if err := Supported(from, to); err != nil {
		return 0, err
	}
	switch to {
	case gguf.TensorF16:
		return c.convertU16(dst, src, n, 2, func(u uint16, out []byte) {
			binary.LittleEndian.PutUint16(out, BF16ToF16(u))
		})
	default:
		return c.convertU16(dst, src, n, 4, func(u uint16, out []byte) {
			binary.LittleEndian.PutUint32(out, math.Float32bits(BF16ToF32(u)))
		})
	}
}

// convertU16 applies fn to each 16-bit input element, producing outWidth
// bytes per element.
func (c *Converter) convertU16(dst io.Writer, src io.Reader, nElem uint64, outWidth int, fn func(u uint16, out []byte)) (uint64, error) {
	wantIn := nElem * 2
	var readTotal, wroteTotal uint64
	for readTotal < wantIn {
		toRead := int(min(uint64(len(c.inBuf)), wantIn-readTotal))
		in := c.inBuf[:toRead]
		if _, err := io.ReadFull(src, in); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return wroteTotal, err
		}
		readTotal += uint64(toRead)

		m := toRead / 2
		out := c.outBuf[:m*outWidth]
		for i := 0; i < m; i++ {
			fn(binary.LittleEndian.Uint16(in[i*2:]), out[i*outWidth:])
		}
		if _, err := dst.Write(out); err != nil {
			return wroteTotal, err
		}
		wroteTotal += uint64(len(out))
	}
	return wroteTotal, nil
}

func BF16ToF32(u uint16) float32 {
	return math.Float32frombits(uint32(u) << 16)
}

func BF16ToF16(u uint16) uint16 {
	return F32ToF16(BF16ToF32(u))
}

// F32ToF16 implements IEEE 754 binary16 rounding (nearest-even).
func F32ToF16(f float32) uint16 {
	u := math.Float32bits(f)
	sign := uint16((u >> 16) & 0x8000)
	exp := int((u >> 23) & 0xFF)
	frac := u & 0x7FFFFF

	switch exp {
	case 0xFF:
		if frac != 0 {
			return sign | 0x7E00 // NaN
		}
		return sign | 0x7C00 // Inf
	case 0:
		// float32 subnormals are far below the smallest fp16 subnormal.
		return sign
	}

	e := exp - 127 + 15
	if e >= 31 {
		return sign | 0x7C00
	}
	if e <= 0 {
		// subnormal fp16
		if e < -10 {
			return sign
		}
		m := frac | 0x800000
		shift := uint32(14 - e)
		round := uint32(1) << (shift - 1)
		m = m + round - 1 + ((m >> shift) & 1)
		return sign | uint16(m>>shift)
	}

	m := frac
	m = m + 0x0FFF + ((m >> 13) & 1)
	if (m & 0x800000) != 0 {
		m = 0
		e++
		if e >= 31 {
			return sign | 0x7C00
		}
	}
	return sign | uint16(e<<10) | uint16(m>>13)
}

func F16ToF32(h uint16) float32 {
	sign := uint32(h>>15) & 0x1
	exp := uint32(h>>10) & 0x1F
	frac := uint32(h & 0x3FF)

	var f uint32
	switch exp {
	case 0:
		if frac == 0 {
			f = sign << 31
		} else {
			e := uint32(127 - 15 + 1)
			for (frac & 0x400) == 0 {
				frac <<= 1
				e--
			}
			frac &= 0x3FF
			f = (sign << 31) | (e << 23) | (frac << 13)
		}
	case 0x1F:
		f = (sign << 31) | 0x7F800000 | (frac << 13)
	default:
		e := exp + (127 - 15)
		f = (sign << 31) | (e << 23) | (frac << 13)
	}
	return math.Float32frombits(f)
}
