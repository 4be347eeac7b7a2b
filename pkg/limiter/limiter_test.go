package limiter_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rohmanhakim/saas-intel/pkg/limiter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances only when the limiter sleeps.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return ctx.Err()
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.sleeps))
	copy(out, c.sleeps)
	return out
}

func testConfig() limiter.Config {
	return limiter.Config{
		RequestsPerPeriod: 10,
		Period:            10 * time.Second,
		DefaultRetryDelay: 5 * time.Second,
		MaxRetryDelay:     60 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

func newTestLimiter(clock *fakeClock) *limiter.Limiter {
	l := limiter.New(map[string]limiter.Config{
		"saashub":     testConfig(),
		"producthunt": testConfig(),
	})
	l.SetClock(clock.Now, clock.Sleep)
	return l
}

type hintedError struct{ after time.Duration }

func (e hintedError) Error() string             { return "429 too many requests" }
func (e hintedError) RetryAfter() time.Duration { return e.after }

func TestConfig_MinInterval(t *testing.T) {
	assert.Equal(t, time.Second, testConfig().MinInterval())
	assert.Equal(t, time.Duration(0), limiter.Config{}.MinInterval())
	assert.Equal(t, time.Duration(0), limiter.Config{RequestsPerPeriod: 5}.MinInterval())
}

func TestWait_SpacesRequestsByMinInterval(t *testing.T) {
	// GIVEN a source with a budget of 10 requests per 10 seconds
	clock := newFakeClock()
	l := newTestLimiter(clock)

	// WHEN three requests are made back to back
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(context.Background(), "saashub"))
	}

	// THEN the first goes immediately and the rest are spaced one second apart
	assert.Equal(t, []time.Duration{time.Second, time.Second}, clock.Sleeps())
}

func TestWait_HonoursRestoredResumeAt(t *testing.T) {
	// GIVEN a persisted state that says the source is paused for 30s more
	clock := newFakeClock()
	l := newTestLimiter(clock)
	resume := clock.Now().Add(30 * time.Second)
	l.Restore(map[string]limiter.State{"saashub": {ResumeAt: &resume, ConsecutiveFailures: 2}})

	// WHEN the next request waits
	require.NoError(t, l.Wait(context.Background(), "saashub"))

	// THEN it sleeps until the stored resume time
	assert.Equal(t, []time.Duration{30 * time.Second}, clock.Sleeps())
}

func TestWait_SourcesAreIndependent(t *testing.T) {
	// GIVEN one source paused for a long time
	clock := newFakeClock()
	l := newTestLimiter(clock)
	resume := clock.Now().Add(time.Hour)
	l.Restore(map[string]limiter.State{"saashub": {ResumeAt: &resume}})

	// WHEN another source waits
	require.NoError(t, l.Wait(context.Background(), "producthunt"))

	// THEN it is not delayed
	assert.Empty(t, clock.Sleeps())
}

func TestWait_CancelledContext(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := l.Wait(ctx, "saashub")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHandleRateLimit_BackoffGrowsAndIsCapped(t *testing.T) {
	// GIVEN a source with default 5s, multiplier 2 and cap 60s
	clock := newFakeClock()
	l := newTestLimiter(clock)
	cause := errors.New("429 too many requests")

	// WHEN rate-limit errors keep arriving
	var delays []time.Duration
	for i := 0; i < 6; i++ {
		d, err := l.HandleRateLimit(context.Background(), "saashub", cause)
		require.NoError(t, err)
		delays = append(delays, d)
	}

	// THEN the delay starts at the default, doubles, and stops at the cap
	want := []time.Duration{
		5 * time.Second, 10 * time.Second, 20 * time.Second,
		40 * time.Second, 60 * time.Second, 60 * time.Second,
	}
	assert.Equal(t, want, delays)
	for i := 1; i < len(delays); i++ {
		assert.GreaterOrEqual(t, delays[i], delays[i-1])
	}
	assert.Equal(t, 6, l.State("saashub").ConsecutiveFailures)
}

func TestHandleRateLimit_RetryAfterHintWins(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)

	d, err := l.HandleRateLimit(context.Background(), "saashub", hintedError{after: 17 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, 17*time.Second, d)
}

func TestHandleRateLimit_PauseReportedBeforeSleep(t *testing.T) {
	// GIVEN a pause hook that records the state and the sleeps seen so far
	clock := newFakeClock()
	l := newTestLimiter(clock)
	var (
		reported      limiter.State
		sleepsAtPause int
	)
	l.SetOnPause(func(source string, st limiter.State) error {
		assert.Equal(t, "saashub", source)
		reported = st
		sleepsAtPause = len(clock.Sleeps())
		return nil
	})
	start := clock.Now()

	// WHEN a rate limit is handled
	_, err := l.HandleRateLimit(context.Background(), "saashub", errors.New("rate limit"))
	require.NoError(t, err)

	// THEN the hook saw the scheduled resume time before any sleep happened
	assert.Equal(t, 0, sleepsAtPause)
	require.NotNil(t, reported.ResumeAt)
	require.NotNil(t, reported.PausedAt)
	assert.Equal(t, start.Add(5*time.Second), *reported.ResumeAt)
	assert.Equal(t, start, *reported.PausedAt)
}

func TestHandleRateLimit_PauseHookErrorAborts(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)
	hookErr := errors.New("disk full")
	l.SetOnPause(func(string, limiter.State) error { return hookErr })

	_, err := l.HandleRateLimit(context.Background(), "saashub", errors.New("429"))
	assert.ErrorIs(t, err, hookErr)
	assert.Empty(t, clock.Sleeps())
}

func TestRecordSuccess_ResetsBackoff(t *testing.T) {
	// GIVEN two consecutive failures
	clock := newFakeClock()
	l := newTestLimiter(clock)
	cause := errors.New("429")
	_, _ = l.HandleRateLimit(context.Background(), "saashub", cause)
	_, _ = l.HandleRateLimit(context.Background(), "saashub", cause)

	// WHEN a call succeeds
	l.RecordSuccess("saashub")

	// THEN the streak and the pause are cleared and the next failure starts over
	st := l.State("saashub")
	assert.Equal(t, 0, st.ConsecutiveFailures)
	assert.Nil(t, st.ResumeAt)
	assert.Nil(t, st.PausedAt)

	d, err := l.HandleRateLimit(context.Background(), "saashub", cause)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, d)
}

func TestSnapshotRestore_RoundTrip(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(clock)
	_, _ = l.HandleRateLimit(context.Background(), "producthunt", errors.New("429"))

	snap := l.Snapshot()
	other := newTestLimiter(newFakeClock())
	other.Restore(snap)

	assert.Equal(t, l.State("producthunt"), other.State("producthunt"))
}

func TestFallbackConfig(t *testing.T) {
	l := limiter.New(nil)
	l.SetFallback(testConfig())
	assert.Equal(t, testConfig(), l.Config("unknown"))
}
