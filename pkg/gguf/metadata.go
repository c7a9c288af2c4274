package gguf

import "fmt"

// Value is a metadata value. The set of implementations is closed: the
// scalar kinds below plus Array, so every value has a well-defined wire tag.
type Value interface {
	Type() ValueType
	encodePayload(e *Encoder, depth int) error
}

type (
	Uint8   uint8
	Int8    int8
	Uint16  uint16
	Int16   int16
	Uint32  uint32
	Int32   int32
	Float32 float32
	Bool    bool
	Uint64  uint64
	Int64   int64
	Float64 float64

	// String is a raw byte sequence. Vocabulary tokens are not always valid UTF-8.
	String []byte
)

func (Uint8) Type() ValueType   { return TypeUint8 }
func (Int8) Type() ValueType    { return TypeInt8 }
func (Uint16) Type() ValueType  { return TypeUint16 }
func (Int16) Type() ValueType   { return TypeInt16 }
func (Uint32) Type() ValueType  { return TypeUint32 }
func (Int32) Type() ValueType   { return TypeInt32 }
func (Float32) Type() ValueType { return TypeFloat32 }
func (Bool) Type() ValueType    { return TypeBool }
func (String) Type() ValueType  { return TypeString }
func (Uint64) Type() ValueType  { return TypeUint64 }
func (Int64) Type() ValueType   { return TypeInt64 }
func (Float64) Type() ValueType { return TypeFloat64 }

func (v Uint8) encodePayload(e *Encoder, _ int) error   { return e.WriteU8(uint8(v)) }
func (v Int8) encodePayload(e *Encoder, _ int) error    { return e.WriteI8(int8(v)) }
func (v Uint16) encodePayload(e *Encoder, _ int) error  { return e.WriteU16(uint16(v)) }
func (v Int16) encodePayload(e *Encoder, _ int) error   { return e.WriteI16(int16(v)) }
func (v Uint32) encodePayload(e *Encoder, _ int) error  { return e.WriteU32(uint32(v)) }
func (v Int32) encodePayload(e *Encoder, _ int) error   { return e.WriteI32(int32(v)) }
func (v Float32) encodePayload(e *Encoder, _ int) error { return e.WriteF32(float32(v)) }
func (v Bool) encodePayload(e *Encoder, _ int) error    { return e.WriteBool(bool(v)) }
func (v String) encodePayload(e *Encoder, _ int) error  { return e.WriteString(v) }
func (v Uint64) encodePayload(e *Encoder, _ int) error  { return e.WriteU64(uint64(v)) }
func (v Int64) encodePayload(e *Encoder, _ int) error   { return e.WriteI64(int64(v)) }
func (v Float64) encodePayload(e *Encoder, _ int) error { return e.WriteF64(float64(v)) }

// AnyArray is implemented by every Array instantiation.
type AnyArray interface {
	Value
	ElemType() ValueType
	Len() int
}

// Array is a homogeneous metadata array. E is one of the scalar kinds, or
// AnyArray for an array of arrays.
type Array[E Value] []E

func (Array[E]) Type() ValueType { return TypeArray }

func (a Array[E]) Len() int { return len(a) }

func (Array[E]) ElemType() ValueType {
	var zero E
	if any(zero) == nil {
		// E is an interface; only AnyArray is a valid interface element.
		return TypeArray
	}
	return zero.Type()
}

func (a Array[E]) encodePayload(e *Encoder, depth int) error {
	if depth > MaxArrayDepth {
		return ErrArrayTooDeep
	}
	if len(a) > MaxArrayLength {
		return fmt.Errorf("%w: %d elements", ErrArrayTooLong, len(a))
	}
	elem := a.ElemType()
	for i, v := range a {
		if any(v) == nil {
			return fmt.Errorf("gguf: nil element %d in array", i)
		}
		// The tag is written once for the whole array, so every element
		// must carry it.
		if v.Type() != elem {
			return fmt.Errorf("%w: element %d is %s, array holds %s", ErrMixedArray, i, v.Type(), elem)
		}
	}
	if err := e.WriteU32(uint32(elem)); err != nil {
		return err
	}
	if err := e.WriteU64(uint64(len(a))); err != nil {
		return err
	}
	for _, v := range a {
		if err := v.encodePayload(e, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// Str is shorthand for a String value built from text.
func Str(s string) String { return String(s) }

// Strings builds a string array from byte tokens.
func Strings(tokens [][]byte) Array[String] {
	out := make(Array[String], len(tokens))
	for i, t := range tokens {
		out[i] = String(t)
	}
	return out
}

// WriteValue writes the type tag of v followed by its payload.
func WriteValue(e *Encoder, v Value) error {
	if v == nil {
		return fmt.Errorf("gguf: nil metadata value")
	}
	if err := e.WriteU32(uint32(v.Type())); err != nil {
		return err
	}
	return v.encodePayload(e, 0)
}

// WriteMetadataEntry writes a length-prefixed key, the type tag and the payload.
func WriteMetadataEntry(e *Encoder, key string, v Value) error {
	if err := e.WriteString([]byte(key)); err != nil {
		return fmt.Errorf("key %q: %w", key, err)
	}
	if err := WriteValue(e, v); err != nil {
		return fmt.Errorf("value %q: %w", key, err)
	}
	return nil
}

// ReadValue reads a type tag and the payload it announces.
func ReadValue(d *Decoder) (Value, error) {
	tag, err := d.ReadU32()
	if err != nil {
		return nil, err
	}
	return readPayload(d, ValueType(tag), 0)
}

// ReadMetadataEntry reads a key and its tagged value.
func ReadMetadataEntry(d *Decoder) (string, Value, error) {
	key, err := d.ReadString()
	if err != nil {
		return "", nil, fmt.Errorf("read key: %w", err)
	}
	v, err := ReadValue(d)
	if err != nil {
		return "", nil, fmt.Errorf("read value for %q: %w", key, err)
	}
	return string(key), v, nil
}

func readPayload(d *Decoder, t ValueType, depth int) (Value, error) {
	switch t {
	case TypeUint8:
		v, err := d.ReadU8()
		return Uint8(v), err
	case TypeInt8:
		v, err := d.ReadI8()
		return Int8(v), err
	case TypeUint16:
		v, err := d.ReadU16()
		return Uint16(v), err
	case TypeInt16:
		v, err := d.ReadI16()
		return Int16(v), err
	case TypeUint32:
		v, err := d.ReadU32()
		return Uint32(v), err
	case TypeInt32:
		v, err := d.ReadI32()
		return Int32(v), err
	case TypeFloat32:
		v, err := d.ReadF32()
		return Float32(v), err
	case TypeBool:
		v, err := d.ReadBool()
		return Bool(v), err
	case TypeString:
		v, err := d.ReadString()
		return String(v), err
	case TypeArray:
		return readArray(d, depth)
	case TypeUint64:
		v, err := d.ReadU64()
		return Uint64(v), err
	case TypeInt64:
		v, err := d.ReadI64()
		return Int64(v), err
	case TypeFloat64:
		v, err := d.ReadF64()
		return Float64(v), err
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidTypeTag, uint32(t))
	}
}

func readArray(d *Decoder, depth int) (AnyArray, error) {
	if depth > MaxArrayDepth {
		return nil, ErrArrayTooDeep
	}
	tag, err := d.ReadU32()
	if err != nil {
		return nil, err
	}
	elem := ValueType(tag)
	if !elem.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTypeTag, tag)
	}
	n, err := d.ReadU64()
	if err != nil {
		return nil, err
	}
	// Large enough for real vocabularies, small enough to reject garbage lengths.
	if n > MaxArrayLength {
		return nil, fmt.Errorf("%w: %d elements", ErrArrayTooLong, n)
	}

	switch elem {
	case TypeUint8:
		return readElems[Uint8](d, elem, n, depth)
	case TypeInt8:
		return readElems[Int8](d, elem, n, depth)
	case TypeUint16:
		return readElems[Uint16](d, elem, n, depth)
	case TypeInt16:
		return readElems[Int16](d, elem, n, depth)
	case TypeUint32:
		return readElems[Uint32](d, elem, n, depth)
	case TypeInt32:
		return readElems[Int32](d, elem, n, depth)
	case TypeFloat32:
		return readElems[Float32](d, elem, n, depth)
	case TypeBool:
		return readElems[Bool](d, elem, n, depth)
	case TypeString:
		return readElems[String](d, elem, n, depth)
	case TypeArray:
		return readElems[AnyArray](d, elem, n, depth)
	case TypeUint64:
		return readElems[Uint64](d, elem, n, depth)
	case TypeInt64:
		return readElems[Int64](d, elem, n, depth)
	default:
		return readElems[Float64](d, elem, n, depth)
	}
}

func readElems[E Value](d *Decoder, elem ValueType, n uint64, depth int) (Array[E], error) {
	out := make(Array[E], 0, n)
	for i := uint64(0); i < n; i++ {
		v, err := readPayload(d, elem, depth+1)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out = append(out, v.(E))
	}
	return out, nil
}
