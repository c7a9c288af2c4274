// Package gguf implements the GGUF model container format.
//
// A container starts with a header (magic, version, counts, metadata
// entries and tensor descriptors) followed by a tensor data region whose
// start is aligned to Alignment bytes. All multi-byte values are little-endian.
package gguf

import "fmt"

// Format constants must never change.
const (
	// Magic is the file magic for all GGUF containers.
	Magic = "GGUF"

	// Version is the version written by this package. Versions 2 and 3 are
	// accepted on read; version 3 only adds an unused big-endian note and is
	// otherwise identical to 2.
	Version uint32 = 3

	// Alignment of the tensor data region and every tensor payload in it.
	Alignment = 32

	MaxStringLength = 65535
	MaxArrayLength  = 524288
	MaxArrayDepth   = 2
	MaxEntries      = 1024
	MaxDimensions   = 4
)

type ValueType uint32

const (
	TypeUint8   ValueType = 0
	TypeInt8    ValueType = 1
	TypeUint16  ValueType = 2
	TypeInt16   ValueType = 3
	TypeUint32  ValueType = 4
	TypeInt32   ValueType = 5
	TypeFloat32 ValueType = 6
	TypeBool    ValueType = 7
	TypeString  ValueType = 8
	TypeArray   ValueType = 9
	TypeUint64  ValueType = 10
	TypeInt64   ValueType = 11
	TypeFloat64 ValueType = 12
)

func (t ValueType) Valid() bool {
	return t <= TypeFloat64
}

func (t ValueType) String() string {
	switch t {
	case TypeUint8:
		return "u8"
	case TypeInt8:
		return "i8"
	case TypeUint16:
		return "u16"
	case TypeInt16:
		return "i16"
	case TypeUint32:
		return "u32"
	case TypeInt32:
		return "i32"
	case TypeUint64:
		return "u64"
	case TypeInt64:
		return "i64"
	case TypeFloat32:
		return "f32"
	case TypeFloat64:
		return "f64"
	case TypeBool:
		return "bool"
	case TypeString:
		return "string"
	case TypeArray:
		return "array"
	default:
		return fmt.Sprintf("type(%d)", uint32(t))
	}
}

// TensorType is the element encoding of a tensor payload. Only F32 and F16
// are produced by the packer; the block-quantized types are recognised on
// read so existing containers can be inspected.
type TensorType uint32

const (
	TensorF32  TensorType = 0
	TensorF16  TensorType = 1
	TensorQ4_0 TensorType = 2
	TensorQ4_1 TensorType = 3
	TensorQ5_0 TensorType = 6
	TensorQ5_1 TensorType = 7
	TensorQ8_0 TensorType = 8
	TensorQ8_1 TensorType = 9
	TensorQ2_K TensorType = 10
	TensorQ3_K TensorType = 11
	TensorQ4_K TensorType = 12
	TensorQ5_K TensorType = 13
	TensorQ6_K TensorType = 14
	TensorQ8_K TensorType = 15
	TensorI8   TensorType = 16
	TensorI16  TensorType = 17
	TensorI32  TensorType = 18
	TensorI64  TensorType = 19
	TensorF64  TensorType = 20
)

var tensorTypeNames = map[TensorType]string{
	TensorF32:  "F32",
	TensorF16:  "F16",
	TensorQ4_0: "Q4_0",
	TensorQ4_1: "Q4_1",
	TensorQ5_0: "Q5_0",
	TensorQ5_1: "Q5_1",
	TensorQ8_0: "Q8_0",
	TensorQ8_1: "Q8_1",
	TensorQ2_K: "Q2_K",
	TensorQ3_K: "Q3_K",
	TensorQ4_K: "Q4_K",
	TensorQ5_K: "Q5_K",
	TensorQ6_K: "Q6_K",
	TensorQ8_K: "Q8_K",
	TensorI8:   "I8",
	TensorI16:  "I16",
	TensorI32:  "I32",
	TensorI64:  "I64",
	TensorF64:  "F64",
}

// Valid reports whether t is a recognised tensor type tag.
func (t TensorType) Valid() bool {
	_, ok := tensorTypeNames[t]
	return ok
}

func (t TensorType) String() string {
	if s, ok := tensorTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("type(%d)", uint32(t))
}

// ElementSize returns the byte width of one element, or 0 for block-quantized
// types that have no per-element width.
func (t TensorType) ElementSize() uint64 {
	switch t {
	case TensorI8:
		return 1
	case TensorF16, TensorI16:
		return 2
	case TensorF32, TensorI32:
		return 4
	case TensorF64, TensorI64:
		return 8
	default:
		return 0
	}
}

// ParseTensorType maps a type name such as "F16" to its tag.
func ParseTensorType(name string) (TensorType, bool) {
	for t, s := range tensorTypeNames {
		if s == name {
			return t, true
		}
	}
	return 0, false
}

// Align rounds offset up to the next multiple of Alignment.
func Align(offset uint64) uint64 {
	return offset + (Alignment-offset%Alignment)%Alignment
}
