package analysis

import (
	"errors"
	"fmt"
)

// ErrInvalidRequest marks bad submit input; never retried.
var ErrInvalidRequest = errors.New("invalid analysis request")

// ErrInvalidStateTransition marks an operation attempted on a terminal run.
var ErrInvalidStateTransition = errors.New("invalid state transition")

// ErrRunNotFound when the referenced run id does not exist.
var ErrRunNotFound = errors.New("analysis run not found")

// StageError wraps a fatal stage failure so failure attribution always names
// the stage.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// NewStageError wraps err with the failing stage name.
func NewStageError(stage string, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}
