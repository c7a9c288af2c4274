package pack

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownTaskType   = errors.New("pack: unknown task type")
	ErrShapeMismatch     = errors.New("pack: shape mismatch")
	ErrSizeMismatch      = errors.New("pack: size mismatch")
	ErrDuplicateMetadata = errors.New("pack: conflicting metadata key")
	ErrDuplicateTensor   = errors.New("pack: duplicate tensor name")
	ErrVocabTooLarge     = errors.New("pack: vocabulary larger than token_count")
	ErrTensorTooLarge    = errors.New("pack: tensor does not fit in the data region")

	// ErrLayoutInvariant means the payload phase reached a stream position
	// other than the offset assigned during the contribute phase. It is a
	// bug in a task, never bad input.
	ErrLayoutInvariant = errors.New("pack: layout invariant violated")
)

// Phase names the pipeline pass a TaskError came from.
type Phase string

const (
	PhaseLoad    Phase = "load"
	PhaseProcess Phase = "process"
	PhaseWrite   Phase = "write"
)

// TaskError attributes a failure to the task that raised it.
type TaskError struct {
	Key   string
	Type  string
	Phase Phase
	Err   error
}

func (e *TaskError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("%s task %q: %v", e.Phase, e.Key, e.Err)
	}
	return fmt.Sprintf("%s task %q (%s): %v", e.Phase, e.Key, e.Type, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }
