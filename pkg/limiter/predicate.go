package limiter

import (
	"errors"
	"strings"
	"time"
)

// Predicate decides whether an error means "slow down".
type Predicate func(err error) bool

var genericSignals = []string{"429", "rate limit", "too many requests"}

// rateLimited is implemented by typed errors that already know they are
// rate-limit errors.
type rateLimited interface {
	IsRateLimit() bool
}

type retryAfterHinter interface {
	RetryAfter() time.Duration
}

// GenericPredicate matches typed rate-limit errors and the vocabulary every
// HTTP API uses for throttling.
func GenericPredicate(err error) bool {
	if err == nil {
		return false
	}
	var rl rateLimited
	if errors.As(err, &rl) && rl.IsRateLimit() {
		return true
	}
	return containsAny(strings.ToLower(err.Error()), genericSignals)
}

// SignalPredicate extends GenericPredicate with source-specific phrases,
// e.g. a quota-exceeded code.
func SignalPredicate(signals ...string) Predicate {
	lowered := make([]string, 0, len(signals))
	for _, s := range signals {
		if s != "" {
			lowered = append(lowered, strings.ToLower(s))
		}
	}
	return func(err error) bool {
		if GenericPredicate(err) {
			return true
		}
		if err == nil {
			return false
		}
		return containsAny(strings.ToLower(err.Error()), lowered)
	}
}

// RetryAfter extracts a server-provided retry hint, or 0.
func RetryAfter(err error) time.Duration {
	var h retryAfterHinter
	if errors.As(err, &h) {
		return h.RetryAfter()
	}
	return 0
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
