package gguf

import "fmt"

// Lookup returns the first metadata value stored under key.
func (h *Header) Lookup(key string) (Value, bool) {
	for _, m := range h.Metadata {
		if m.Key == key {
			return m.Value, true
		}
	}
	return nil, false
}

// Tensor returns the descriptor for the given name.
func (h *Header) Tensor(name string) (TensorInfo, bool) {
	for _, t := range h.Tensors {
		if t.Name == name {
			return t, true
		}
	}
	return TensorInfo{}, false
}

func GetString(h *Header, key string) (string, bool) {
	v, ok := h.Lookup(key)
	if !ok {
		return "", false
	}
	s, ok := v.(String)
	return string(s), ok
}

func GetUint64(h *Header, key string) (uint64, bool) {
	v, ok := h.Lookup(key)
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case Uint8:
		return uint64(t), true
	case Uint16:
		return uint64(t), true
	case Uint32:
		return uint64(t), true
	case Uint64:
		return uint64(t), true
	case Int8:
		return uint64(t), t >= 0
	case Int16:
		return uint64(t), t >= 0
	case Int32:
		return uint64(t), t >= 0
	case Int64:
		return uint64(t), t >= 0
	default:
		return 0, false
	}
}

func GetFloat64(h *Header, key string) (float64, bool) {
	v, ok := h.Lookup(key)
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case Float32:
		return float64(t), true
	case Float64:
		return float64(t), true
	default:
		return 0, false
	}
}

// GetArray retrieves an array whose elements are of kind E.
func GetArray[E Value](h *Header, key string) (Array[E], bool) {
	v, ok := h.Lookup(key)
	if !ok {
		return nil, false
	}
	arr, ok := v.(Array[E])
	return arr, ok
}

// FormatValue renders v for human inspection. Long arrays are summarised.
func FormatValue(v Value, maxElems int) string {
	switch t := v.(type) {
	case String:
		return fmt.Sprintf("%q", []byte(t))
	case AnyArray:
		return formatArray(t, maxElems)
	default:
		return fmt.Sprint(t)
	}
}

func formatArray(a AnyArray, maxElems int) string {
	head := fmt.Sprintf("[%s x %d]", a.ElemType(), a.Len())
	if maxElems <= 0 || a.Len() == 0 {
		return head
	}
	var elems []Value
	switch t := a.(type) {
	case Array[String]:
		elems = toValues(t)
	case Array[Uint32]:
		elems = toValues(t)
	case Array[Int32]:
		elems = toValues(t)
	case Array[Float32]:
		elems = toValues(t)
	default:
		return head
	}
	out := head + " {"
	for i, e := range elems {
		if i == maxElems {
			out += " ..."
			break
		}
		if i > 0 {
			out += ","
		}
		out += " " + FormatValue(e, 0)
	}
	return out + " }"
}

func toValues[E Value](a Array[E]) []Value {
	out := make([]Value, len(a))
	for i, v := range a {
		out[i] = v
	}
	return out
}
