package discovery

import (
	"errors"
	"fmt"
	"time"

	"github.com/rohmanhakim/saas-intel/internal/fetcher"
	"github.com/rohmanhakim/saas-intel/internal/metadata"
	"github.com/rohmanhakim/saas-intel/internal/product"
	"github.com/rohmanhakim/saas-intel/pkg/failure"
)

// RateLimitError is the distinguishable error a source raises on 429.
type RateLimitError struct {
	Source  product.Source
	Message string
	Wait    time.Duration
}

func (e *RateLimitError) Error() string {
	if e.Wait > 0 {
		return fmt.Sprintf("%s rate limit exceeded (retry after %s): %s", e.Source, e.Wait, e.Message)
	}
	return fmt.Sprintf("%s rate limit exceeded: %s", e.Source, e.Message)
}

func (e *RateLimitError) Severity() failure.Severity {
	return failure.SeverityRecoverable
}

func (e *RateLimitError) IsRetryable() bool {
	return false
}

func (e *RateLimitError) IsRateLimit() bool {
	return true
}

func (e *RateLimitError) RetryAfter() time.Duration {
	return e.Wait
}

// APIError is any other failed call. It is scoped to one seed unless the
// credential was rejected.
type APIError struct {
	Source     product.Source
	Message    string
	StatusCode int
	Fatal      bool
	Cause      error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s api error (%d): %s", e.Source, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s api error: %s", e.Source, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Cause
}

func (e *APIError) Severity() failure.Severity {
	if e.Fatal {
		return failure.SeverityFatal
	}
	return failure.SeverityRecoverable
}

func (e *APIError) IsRetryable() bool {
	return false
}

// FromFetchError lifts a transport error into the discovery taxonomy.
func FromFetchError(source product.Source, err error) error {
	if err == nil {
		return nil
	}
	var fetchErr *fetcher.FetchError
	if !errors.As(err, &fetchErr) {
		return &APIError{Source: source, Message: err.Error(), Cause: err}
	}
	if fetchErr.IsRateLimit() {
		return &RateLimitError{Source: source, Message: fetchErr.Message, Wait: fetchErr.RetryAfter()}
	}
	return &APIError{
		Source:     source,
		Message:    fetchErr.Message,
		StatusCode: fetchErr.StatusCode,
		Fatal:      fetchErr.Severity() == failure.SeverityFatal,
		Cause:      fetchErr,
	}
}

// MapErrorToMetadataCause is observational only and MUST NOT be used
// to derive control-flow decisions.
func MapErrorToMetadataCause(err error) metadata.ErrorCause {
	var rl *RateLimitError
	var api *APIError
	switch {
	case errors.As(err, &rl):
		return metadata.CauseRateLimited
	case errors.As(err, &api) && api.Fatal:
		return metadata.CauseConfiguration
	case errors.As(err, &api):
		return metadata.CauseNetworkFailure
	default:
		return metadata.CauseUnknown
	}
}
