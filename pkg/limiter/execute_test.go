package limiter_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rohmanhakim/saas-intel/pkg/limiter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecute_SuccessFirstTry(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)
	calls := 0

	got, err := limiter.Execute(context.Background(), l, "saashub", 3, func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 1, calls)
}

func TestExecute_RetriesRateLimitThenSucceeds(t *testing.T) {
	// GIVEN an operation that is rate limited twice
	clock := newFakeClock()
	l := newTestLimiter(clock)
	calls := 0

	// WHEN it is executed with three retries
	got, err := limiter.Execute(context.Background(), l, "saashub", 3, func(context.Context) (int, error) {
		calls++
		if calls <= 2 {
			return 0, errors.New("HTTP 429: Too Many Requests")
		}
		return 42, nil
	})

	// THEN it succeeds on the third call and the streak is reset
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 0, l.State("saashub").ConsecutiveFailures)
}

func TestExecute_NonRateLimitErrorIsNotRetried(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)
	calls := 0
	boom := errors.New("connection refused")

	_, err := limiter.Execute(context.Background(), l, "saashub", 3, func(context.Context) (int, error) {
		calls++
		return 0, boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, l.State("saashub").ConsecutiveFailures)
}

func TestExecute_ExhaustedWrapsLastError(t *testing.T) {
	// GIVEN an operation that is always rate limited
	clock := newFakeClock()
	l := newTestLimiter(clock)
	calls := 0
	last := errors.New("rate limit exceeded")

	// WHEN it is executed with two retries
	_, err := limiter.Execute(context.Background(), l, "producthunt", 2, func(context.Context) (int, error) {
		calls++
		return 0, last
	})

	// THEN it gives up after 3 calls with an ExhaustedError around the last error
	var exhausted *limiter.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, "producthunt", exhausted.Source)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.ErrorIs(t, err, last)
	assert.Equal(t, 3, calls)
	assert.True(t, limiter.GenericPredicate(err))
	assert.Equal(t, 2, l.State("producthunt").ConsecutiveFailures)
}

func TestExecute_CustomPredicate(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)
	l.SetPredicate("openai", limiter.SignalPredicate("quota"))
	l.SetFallback(testConfig())
	calls := 0

	_, err := limiter.Execute(context.Background(), l, "openai", 1, func(context.Context) (int, error) {
		calls++
		return 0, errors.New("insufficient_quota")
	})

	var exhausted *limiter.ExhaustedError
	assert.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 2, calls)
	assert.Contains(t, clock.Sleeps(), 5*time.Second)
}
