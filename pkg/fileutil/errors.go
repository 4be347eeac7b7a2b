package fileutil

import (
	"fmt"

	"github.com/rohmanhakim/saas-intel/pkg/failure"
)

type FileErrorCause string

const (
	ErrCausePathError   FileErrorCause = "path error"
	ErrCauseWriteFailed FileErrorCause = "write failed"
	ErrCauseSyncFailed  FileErrorCause = "sync failed"
	ErrCauseRenameFail  FileErrorCause = "rename failed"
)

type FileError struct {
	Message   string
	Retryable bool
	Cause     FileErrorCause
	Path      string
	Err       error
}

func (e *FileError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("file error: %s: %s: %s", e.Cause, e.Path, e.Message)
	}
	return fmt.Sprintf("file error: %s: %s", e.Cause, e.Message)
}

func (e *FileError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *FileError) IsRetryable() bool {
	return e.Retryable
}

func (e *FileError) Unwrap() error {
	return e.Err
}
