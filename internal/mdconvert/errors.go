package mdconvert

import (
	"fmt"

	"github.com/rohmanhakim/saas-intel/internal/metadata"
	"github.com/rohmanhakim/saas-intel/pkg/failure"
)

type ConversionErrorCause string

const (
	ErrCauseEmptyDocument     ConversionErrorCause = "empty document"
	ErrCauseParseFailure      ConversionErrorCause = "html parse failed"
	ErrCauseConversionFailure ConversionErrorCause = "conversion failed"
)

type ConversionError struct {
	Message   string
	Retryable bool
	Cause     ConversionErrorCause
}

func (e *ConversionError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("conversion error: %s", e.Cause)
	}
	return fmt.Sprintf("conversion error: %s: %s", e.Cause, e.Message)
}

// Severity is recoverable: a page that does not convert fails only its
// own product.
func (e *ConversionError) Severity() failure.Severity {
	return failure.SeverityRecoverable
}

func (e *ConversionError) IsRetryable() bool {
	return e.Retryable
}

func mapConversionErrorToMetadataCause(err *ConversionError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseEmptyDocument, ErrCauseParseFailure, ErrCauseConversionFailure:
		return metadata.CauseContentInvalid
	default:
		return metadata.CauseUnknown
	}
}
