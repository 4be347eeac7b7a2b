package store

import (
	"fmt"

	"github.com/rohmanhakim/saas-intel/internal/metadata"
	"github.com/rohmanhakim/saas-intel/pkg/failure"
)

type StoreErrorCause string

const (
	ErrCauseReadFailure   StoreErrorCause = "read failed"
	ErrCauseWriteFailure  StoreErrorCause = "write failed"
	ErrCauseEncodeFailure StoreErrorCause = "encode failed"
	ErrCauseInvalidEntity StoreErrorCause = "invalid entity"
	ErrCauseNotFound      StoreErrorCause = "not found"
)

type StoreError struct {
	Message   string
	Retryable bool
	Cause     StoreErrorCause
	Path      string
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error: %s: %s", e.Cause, e.Message)
}

func (e *StoreError) Severity() failure.Severity {
	switch e.Cause {
	case ErrCauseInvalidEntity, ErrCauseNotFound:
		return failure.SeverityRecoverable
	}
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *StoreError) IsRetryable() bool {
	return e.Retryable
}

// observational only
func mapStoreErrorToMetadataCause(err *StoreError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseReadFailure, ErrCauseWriteFailure, ErrCauseEncodeFailure:
		return metadata.CauseStorageFailure
	case ErrCauseInvalidEntity:
		return metadata.CauseContentInvalid
	case ErrCauseNotFound:
		return metadata.CauseInvariantViolation
	default:
		return metadata.CauseUnknown
	}
}
