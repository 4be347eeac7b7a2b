package export

import (
	"fmt"

	"github.com/rohmanhakim/saas-intel/internal/metadata"
	"github.com/rohmanhakim/saas-intel/pkg/failure"
)

type ExportErrorCause string

const (
	ErrCauseOpenFailed   ExportErrorCause = "open failed"
	ErrCauseSchemaFailed ExportErrorCause = "schema init failed"
	ErrCauseWriteFailed  ExportErrorCause = "write failed"
	ErrCauseReadFailed   ExportErrorCause = "read failed"
)

type ExportError struct {
	Message string
	Cause   ExportErrorCause
	Path    string
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export error: %s: %s", e.Cause, e.Message)
}

func (e *ExportError) Severity() failure.Severity {
	return failure.SeverityFatal
}

func (e *ExportError) IsRetryable() bool {
	return false
}

// observational only
func mapExportErrorToMetadataCause(err *ExportError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseOpenFailed, ErrCauseSchemaFailed, ErrCauseWriteFailed, ErrCauseReadFailed:
		return metadata.CauseStorageFailure
	default:
		return metadata.CauseUnknown
	}
}
