package fetcher

import (
	"fmt"
	"time"

	"github.com/rohmanhakim/saas-intel/internal/metadata"
	"github.com/rohmanhakim/saas-intel/pkg/failure"
)

type FetchErrorCause string

const (
	ErrCauseNetworkFailure        FetchErrorCause = "network issues"
	ErrCauseReadResponseBodyError FetchErrorCause = "failed to read response body"
	ErrCauseMalformedBody         FetchErrorCause = "malformed response body"
	ErrCauseUnauthorized          FetchErrorCause = "unauthorized"
	ErrCauseNotFound              FetchErrorCause = "not found"
	ErrCauseBadRequest            FetchErrorCause = "bad request"
	ErrCauseRequestTooMany        FetchErrorCause = "too many requests"
	ErrCauseRequest5xx            FetchErrorCause = "5xx"
)

type FetchError struct {
	Message    string
	Retryable  bool
	Cause      FetchErrorCause
	StatusCode int
	// Server-provided Retry-After, zero when absent.
	Wait time.Duration
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetcher error: %s: %s", e.Cause, e.Message)
}

// A rejected credential stops the run; every other failure is scoped to
// the seed or entity that triggered it.
func (e *FetchError) Severity() failure.Severity {
	if e.Cause == ErrCauseUnauthorized {
		return failure.SeverityFatal
	}
	return failure.SeverityRecoverable
}

// IsRetryable returns whether this error is retryable
func (e *FetchError) IsRetryable() bool {
	return e.Retryable
}

func (e *FetchError) IsRateLimit() bool {
	return e.Cause == ErrCauseRequestTooMany
}

func (e *FetchError) RetryAfter() time.Duration {
	return e.Wait
}

// mapFetchErrorToMetadataCause maps fetcher-local error semantics
// to the canonical metadata.ErrorCause table.
//
// This mapping is observational only and MUST NOT be used
// to derive control-flow decisions.
func mapFetchErrorToMetadataCause(err *FetchError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseNetworkFailure, ErrCauseReadResponseBodyError, ErrCauseRequest5xx:
		return metadata.CauseNetworkFailure
	case ErrCauseRequestTooMany:
		return metadata.CauseRateLimited
	case ErrCauseUnauthorized:
		return metadata.CauseConfiguration
	case ErrCauseMalformedBody:
		return metadata.CauseContentInvalid
	case ErrCauseBadRequest, ErrCauseNotFound:
		return metadata.CausePolicyDisallow
	default:
		return metadata.CauseUnknown
	}
}
