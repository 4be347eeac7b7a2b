package state

import (
	"fmt"

	"github.com/rohmanhakim/saas-intel/pkg/failure"
)

type StateErrorCause string

const (
	ErrCauseReadFailure   StateErrorCause = "read failed"
	ErrCauseDecodeFailure StateErrorCause = "decode failed"
	ErrCauseEncodeFailure StateErrorCause = "encode failed"
	ErrCauseWriteFailure  StateErrorCause = "write failed"
)

type StateError struct {
	Message   string
	Retryable bool
	Cause     StateErrorCause
	Path      string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("state error: %s: %s: %s", e.Cause, e.Path, e.Message)
}

// A state that cannot be read or written stops the run.
func (e *StateError) Severity() failure.Severity {
	return failure.SeverityFatal
}

func (e *StateError) IsRetryable() bool {
	return e.Retryable
}
