package limiter

import (
	"context"
	"fmt"

	"github.com/rohmanhakim/saas-intel/pkg/failure"
)

// ExhaustedError is returned by Execute when a source keeps rate-limiting
// after every allowed retry. It wraps the last error.
type ExhaustedError struct {
	Source   string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("rate limit on %s: exhausted %d attempts: %v", e.Source, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

func (e *ExhaustedError) Severity() failure.Severity {
	return failure.SeverityRecoverable
}

func (e *ExhaustedError) IsRetryable() bool {
	return false
}

// IsRateLimit lets predicates recognise an exhausted retry as a rate limit.
func (e *ExhaustedError) IsRateLimit() bool {
	return true
}

// Execute waits for the source's budget, runs op, and retries rate-limit
// errors with backoff up to maxRetries times. Any other error is returned
// immediately without retry. A success resets the source's failure streak.
func Execute[T any](
	ctx context.Context,
	l *Limiter,
	source string,
	maxRetries int,
	op func(ctx context.Context) (T, error),
) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		if err := l.Wait(ctx, source); err != nil {
			return zero, err
		}

		result, err := op(ctx)
		if err == nil {
			l.RecordSuccess(source)
			return result, nil
		}
		if !l.IsRateLimit(source, err) {
			return zero, err
		}
		if attempt >= maxRetries {
			return zero, &ExhaustedError{Source: source, Attempts: attempt + 1, Last: err}
		}
		if _, pauseErr := l.HandleRateLimit(ctx, source, err); pauseErr != nil {
			return zero, pauseErr
		}
	}
}
