package gguf

import "errors"

// ErrFormat matches every malformed-container error below via errors.Is.
var ErrFormat = errors.New("gguf: format error")

type formatError struct {
	msg string
}

func (e *formatError) Error() string { return "gguf: " + e.msg }

func (e *formatError) Is(target error) bool { return target == ErrFormat }

var (
	ErrInvalidMagic       error = &formatError{"invalid magic"}
	ErrUnsupportedVersion error = &formatError{"unsupported version"}
	ErrExcessiveCount     error = &formatError{"excessive entry count"}
	ErrInvalidTypeTag     error = &formatError{"invalid metadata type tag"}
	ErrStringTooLong      error = &formatError{"string too long"}
	ErrArrayTooLong       error = &formatError{"array too long"}
	ErrArrayTooDeep       error = &formatError{"array nesting too deep"}
	ErrTooManyDimensions  error = &formatError{"too many dimensions"}
	ErrInvalidDimension   error = &formatError{"zero dimension"}
	ErrInvalidTensorType  error = &formatError{"invalid tensor type"}
	ErrMixedArray         error = &formatError{"array element type mismatch"}
	ErrDimensionOverflow  error = &formatError{"dimension product overflows"}
)

var (
	// ErrTruncatedInput reports fewer bytes than a field declares.
	ErrTruncatedInput = errors.New("gguf: truncated input")

	ErrHeaderWritten         = errors.New("gguf: header already written")
	ErrHeaderNotWritten      = errors.New("gguf: header not written")
	ErrUnsupportedTensorType = errors.New("gguf: tensor type has no element size")
	ErrTensorNotFound        = errors.New("gguf: tensor not found")
)
