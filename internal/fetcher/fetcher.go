package fetcher

import (
	"context"

	"github.com/rohmanhakim/saas-intel/pkg/failure"
	"github.com/rohmanhakim/saas-intel/pkg/retry"
)

// Fetcher performs one logical API call. Transient failures are retried
// inside Do; rate limits are not, they belong to the caller's limiter.
type Fetcher interface {
	Do(
		ctx context.Context,
		request Request,
		retryParam retry.RetryParam,
	) (Response, failure.ClassifiedError)
}
