package storage

import (
	"fmt"

	"github.com/rohmanhakim/saas-intel/internal/metadata"
	"github.com/rohmanhakim/saas-intel/pkg/failure"
)

type StorageErrorCause string

const (
	ErrCauseDiskFull      StorageErrorCause = "disk is full"
	ErrCauseWriteFailure  StorageErrorCause = "write failed"
	ErrCauseReadFailure   StorageErrorCause = "read failed"
	ErrCauseEncodeFailure StorageErrorCause = "encode failed"
	ErrCauseMissingURL    StorageErrorCause = "record has no homepage url"
)

type StorageError struct {
	Message   string
	Retryable bool
	Cause     StorageErrorCause
	Path      string
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: %s: %s", e.Cause, e.Message)
}

// A failing output file stops the run: continuing would mark products
// completed whose rows never reached disk.
func (e *StorageError) Severity() failure.Severity {
	if e.Cause == ErrCauseMissingURL {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *StorageError) IsRetryable() bool {
	return e.Retryable
}

// mapStorageErrorToMetadataCause maps storage-local error semantics
// to the canonical metadata.ErrorCause table.
//
// This mapping is observational only and MUST NOT be used
// to derive control-flow decisions.
func mapStorageErrorToMetadataCause(err *StorageError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseDiskFull, ErrCauseWriteFailure, ErrCauseReadFailure:
		return metadata.CauseStorageFailure
	case ErrCauseEncodeFailure, ErrCauseMissingURL:
		return metadata.CauseInvariantViolation
	default:
		return metadata.CauseUnknown
	}
}
