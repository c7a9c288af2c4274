package gguf

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// File is a finished container opened for reading.
type File struct {
	Path       string
	Version    uint32
	Header     *Header
	DataOffset uint64
	Data       []byte
	mmapped    bool
}

// Open maps a container read-only and decodes its header.
// If mmap is unavailable, it falls back to reading the whole file.
// The returned file must be closed to release any mapping.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := st.Size()
	if size < int64(len(Magic)) || size > int64(int(^uint(0)>>1)) {
		return nil, fmt.Errorf("%w: file size %d", ErrTruncatedInput, size)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err == nil {
		gf, parseErr := parseFileData(path, data, true)
		if parseErr != nil {
			_ = unix.Munmap(data)
			return nil, parseErr
		}
		return gf, nil
	}

	data = make([]byte, size)
	if _, err := io.ReadFull(f, data); err != nil {
		return nil, err
	}
	return parseFileData(path, data, false)
}

func parseFileData(path string, data []byte, mmapped bool) (*File, error) {
	d := NewDecoder(bytes.NewReader(data))
	version, h, err := readHeader(d)
	if err != nil {
		return nil, err
	}
	return &File{
		Path:       path,
		Version:    version,
		Header:     h,
		DataOffset: Align(uint64(d.Offset())),
		Data:       data,
		mmapped:    mmapped,
	}, nil
}

// Close releases the mapping, if any.
func (f *File) Close() error {
	if f == nil || f.Data == nil {
		return nil
	}
	var err error
	if f.mmapped {
		err = unix.Munmap(f.Data)
	}
	f.Data = nil
	f.mmapped = false
	return err
}

// TensorData returns a zero-copy view of a tensor payload.
// The caller must not retain the slice after Close.
func (f *File) TensorData(name string) ([]byte, TensorInfo, error) {
	info, ok := f.Header.Tensor(name)
	if !ok {
		return nil, TensorInfo{}, fmt.Errorf("%w: %s", ErrTensorNotFound, name)
	}
	if info.Type.ElementSize() == 0 {
		return nil, info, fmt.Errorf("%w: %s (%s)", ErrUnsupportedTensorType, name, info.Type)
	}
	size := info.ByteSize()
	if size == 0 {
		return nil, info, fmt.Errorf("%w: tensor %s size overflows", ErrTruncatedInput, name)
	}
	start := f.DataOffset + info.Offset
	end := start + size
	if end < start || end > uint64(len(f.Data)) {
		return nil, info, fmt.Errorf("%w: tensor %s ends at %d, file has %d bytes", ErrTruncatedInput, name, end, len(f.Data))
	}
	return f.Data[start:end], info, nil
}
