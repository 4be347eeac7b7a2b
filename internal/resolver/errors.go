package resolver

import (
	"fmt"

	"github.com/rohmanhakim/saas-intel/internal/metadata"
	"github.com/rohmanhakim/saas-intel/pkg/failure"
)

type ResolveErrorCause string

const (
	ErrCauseNoListingURL   ResolveErrorCause = "no listing url"
	ErrCauseFetchFailed    ResolveErrorCause = "listing page fetch failed"
	ErrCauseParseFailed    ResolveErrorCause = "listing page parse failed"
	ErrCauseNoConfidentURL ResolveErrorCause = "no confident homepage"
)

// ResolveError is never fatal: a product that cannot be resolved is
// simply left without a homepage.
type ResolveError struct {
	Message string
	Cause   ResolveErrorCause
	URL     string
}

func (e *ResolveError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("resolver error: %s", e.Cause)
	}
	return fmt.Sprintf("resolver error: %s: %s", e.Cause, e.Message)
}

func (e *ResolveError) Severity() failure.Severity {
	return failure.SeverityRecoverable
}

func (e *ResolveError) IsRetryable() bool {
	return false
}

// mapResolveErrorToMetadataCause maps resolver-local error semantics
// to the canonical metadata.ErrorCause table.
//
// This mapping is observational only and MUST NOT be used
// to derive control-flow decisions.
func mapResolveErrorToMetadataCause(err *ResolveError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseFetchFailed:
		return metadata.CauseNetworkFailure
	case ErrCauseParseFailed:
		return metadata.CauseContentInvalid
	case ErrCauseNoListingURL:
		return metadata.CauseInvariantViolation
	default:
		return metadata.CauseUnknown
	}
}
