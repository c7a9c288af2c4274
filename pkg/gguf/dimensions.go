package gguf

import (
	"fmt"
	"math/bits"
	"strings"
)

// Dimensions is a fixed four-slot tensor shape, width first
// (Width x Height x Channel x Batch). Unused trailing slots are zero,
// which a real extent can never be.
type Dimensions [MaxDimensions]uint64

// DimensionsFromWidthLast converts a width-last shape, as stored by
// safetensors, into width-first slots.
func DimensionsFromWidthLast(shape []uint64) (Dimensions, error) {
	var d Dimensions
	if len(shape) > MaxDimensions {
		return d, fmt.Errorf("%w: %d", ErrTooManyDimensions, len(shape))
	}
	for i, v := range shape {
		d[len(shape)-1-i] = v
	}
	if _, ok := d.checkedTotal(); !ok {
		return Dimensions{}, fmt.Errorf("%w: %v", ErrDimensionOverflow, shape)
	}
	return d, nil
}

// DimensionsFromSlice copies a width-first shape into slots.
func DimensionsFromSlice(dims []uint64) (Dimensions, error) {
	var d Dimensions
	if len(dims) > MaxDimensions {
		return d, fmt.Errorf("%w: %d", ErrTooManyDimensions, len(dims))
	}
	for i, v := range dims {
		if v == 0 {
			return d, fmt.Errorf("%w at index %d", ErrInvalidDimension, i)
		}
		d[i] = v
	}
	if _, ok := d.checkedTotal(); !ok {
		return Dimensions{}, fmt.Errorf("%w: %v", ErrDimensionOverflow, dims)
	}
	return d, nil
}

// Count returns the index of the first zero slot.
func (d Dimensions) Count() int {
	for i, v := range d {
		if v == 0 {
			return i
		}
	}
	return MaxDimensions
}

// Total returns the number of scalars, or 0 when no slot is used or the
// product does not fit in a uint64. The constructors reject the latter.
func (d Dimensions) Total() uint64 {
	total, ok := d.checkedTotal()
	if !ok {
		return 0
	}
	return total
}

func (d Dimensions) checkedTotal() (uint64, bool) {
	n := d.Count()
	if n == 0 {
		return 0, true
	}
	total := d[0]
	for i := 1; i < n; i++ {
		hi, lo := bits.Mul64(total, d[i])
		if hi != 0 {
			return 0, false
		}
		total = lo
	}
	return total, true
}

// Slice returns the used slots, width first.
func (d Dimensions) Slice() []uint64 {
	return append([]uint64(nil), d[:d.Count()]...)
}

// WidthLast returns the used slots in safetensors order.
func (d Dimensions) WidthLast() []uint64 {
	n := d.Count()
	out := make([]uint64, n)
	for i := 0; i < n; i++ {
		out[i] = d[n-1-i]
	}
	return out
}

func (d Dimensions) String() string {
	n := d.Count()
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprintf("%d", d[i])
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
