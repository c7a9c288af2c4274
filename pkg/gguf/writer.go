package gguf

import (
	"errors"
	"fmt"
	"io"
)

const writerPadBufSize = 4096

// Writer streams a container: the header first, then tensor payloads in
// offset order. Positions are tracked by counting bytes, so the target only
// needs to be an io.Writer.
//
// A Writer is not safe for concurrent use; the packer hands it to one task
// at a time.
type Writer struct {
	w         io.Writer
	pos       uint64
	dataStart uint64
	header    bool
	padBuf    []byte
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{
		w:      w,
		padBuf: make([]byte, writerPadBufSize),
	}
}

// WriteHeader encodes h and pads up to the aligned start of the tensor data region.
func (w *Writer) WriteHeader(h *Header) error {
	if w.header {
		return ErrHeaderWritten
	}
	if w.w == nil {
		return errors.New("gguf: nil writer")
	}
	n, err := writeHeader(NewEncoder(w.w), h)
	w.pos += uint64(n)
	if err != nil {
		return err
	}
	if err := w.writeZeros(Align(w.pos) - w.pos); err != nil {
		return err
	}
	w.dataStart = w.pos
	w.header = true
	return nil
}

// DataStart returns the absolute file offset of the tensor data region.
func (w *Writer) DataStart() uint64 { return w.dataStart }

// Position returns the current offset relative to the tensor data region.
func (w *Writer) Position() uint64 { return w.pos - w.dataStart }

// Align writes zero padding until Position is a multiple of Alignment and
// returns the new position.
func (w *Writer) Align() (uint64, error) {
	if !w.header {
		return 0, ErrHeaderNotWritten
	}
	rel := w.Position()
	if err := w.writeZeros(Align(rel) - rel); err != nil {
		return 0, err
	}
	return w.Position(), nil
}

// Write appends tensor payload bytes.
func (w *Writer) Write(p []byte) (int, error) {
	if !w.header {
		return 0, ErrHeaderNotWritten
	}
	n, err := w.w.Write(p)
	w.pos += uint64(n)
	if err == nil && n != len(p) {
		err = io.ErrShortWrite
	}
	return n, err
}

func (w *Writer) writeZeros(n uint64) error {
	for n > 0 {
		chunk := min(n, uint64(len(w.padBuf)))
		m, err := w.w.Write(w.padBuf[:chunk])
		w.pos += uint64(m)
		if err == nil && uint64(m) != chunk {
			err = io.ErrShortWrite
		}
		if err != nil {
			return fmt.Errorf("gguf: write padding: %w", err)
		}
		n -= uint64(m)
	}
	return nil
}
