package gguf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Decoder reads little-endian primitives and tracks the number of bytes consumed.
// A short read never yields a partial value; it fails with ErrTruncatedInput.
type Decoder struct {
	r   io.Reader
	off int64
	buf [8]byte
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Offset returns the number of bytes consumed so far.
func (d *Decoder) Offset() int64 { return d.off }

func (d *Decoder) fill(p []byte) error {
	n, err := io.ReadFull(d.r, p)
	d.off += int64(n)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: need %d bytes at offset %d", ErrTruncatedInput, len(p), d.off-int64(n))
		}
		return err
	}
	return nil
}

func (d *Decoder) readN(n int) ([]byte, error) {
	b := d.buf[:n]
	if err := d.fill(b); err != nil {
		return nil, err
	}
	return b, nil
}

func (d *Decoder) ReadU8() (uint8, error) {
	b, err := d.readN(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Decoder) ReadI8() (int8, error) {
	v, err := d.ReadU8()
	return int8(v), err
}

func (d *Decoder) ReadU16() (uint16, error) {
	b, err := d.readN(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (d *Decoder) ReadI16() (int16, error) {
	v, err := d.ReadU16()
	return int16(v), err
}

func (d *Decoder) ReadU32() (uint32, error) {
	b, err := d.readN(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (d *Decoder) ReadI32() (int32, error) {
	v, err := d.ReadU32()
	return int32(v), err
}

func (d *Decoder) ReadU64() (uint64, error) {
	b, err := d.readN(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (d *Decoder) ReadI64() (int64, error) {
	v, err := d.ReadU64()
	return int64(v), err
}

func (d *Decoder) ReadF32() (float32, error) {
	u, err := d.ReadU32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(u), nil
}

func (d *Decoder) ReadF64() (float64, error) {
	u, err := d.ReadU64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(u), nil
}

func (d *Decoder) ReadBool() (bool, error) {
	v, err := d.ReadU8()
	return v != 0, err
}

// ReadString reads a u64 length prefix followed by that many raw bytes.
// The content is not required to be valid UTF-8.
func (d *Decoder) ReadString() ([]byte, error) {
	n, err := d.ReadU64()
	if err != nil {
		return nil, err
	}
	if n > MaxStringLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrStringTooLong, n)
	}
	b := make([]byte, n)
	if err := d.fill(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Encoder writes little-endian primitives and counts the bytes written.
type Encoder struct {
	w   io.Writer
	n   int64
	buf [8]byte
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Written returns the number of bytes written so far.
func (e *Encoder) Written() int64 { return e.n }

func (e *Encoder) write(p []byte) error {
	n, err := e.w.Write(p)
	e.n += int64(n)
	if err == nil && n != len(p) {
		err = io.ErrShortWrite
	}
	return err
}

func (e *Encoder) WriteU8(v uint8) error {
	e.buf[0] = v
	return e.write(e.buf[:1])
}

func (e *Encoder) WriteI8(v int8) error { return e.WriteU8(uint8(v)) }

func (e *Encoder) WriteU16(v uint16) error {
	binary.LittleEndian.PutUint16(e.buf[:2], v)
	return e.write(e.buf[:2])
}

func (e *Encoder) WriteI16(v int16) error { return e.WriteU16(uint16(v)) }

func (e *Encoder) WriteU32(v uint32) error {
	binary.LittleEndian.PutUint32(e.buf[:4], v)
	return e.write(e.buf[:4])
}

func (e *Encoder) WriteI32(v int32) error { return e.WriteU32(uint32(v)) }

func (e *Encoder) WriteU64(v uint64) error {
	binary.LittleEndian.PutUint64(e.buf[:8], v)
	return e.write(e.buf[:8])
}

func (e *Encoder) WriteI64(v int64) error { return e.WriteU64(uint64(v)) }

func (e *Encoder) WriteF32(v float32) error { return e.WriteU32(math.Float32bits(v)) }

func (e *Encoder) WriteF64(v float64) error { return e.WriteU64(math.Float64bits(v)) }

func (e *Encoder) WriteBool(v bool) error {
	if v {
		return e.WriteU8(1)
	}
	return e.WriteU8(0)
}

// WriteString writes a u64 length prefix followed by the raw bytes of s.
func (e *Encoder) WriteString(s []byte) error {
	if len(s) > MaxStringLength {
		return fmt.Errorf("%w: %d bytes", ErrStringTooLong, len(s))
	}
	if err := e.WriteU64(uint64(len(s))); err != nil {
		return err
	}
	if len(s) == 0 {
		return nil
	}
	return e.write(s)
}
