package limiter

import (
	"context"
	"sync"
	"time"

	"github.com/rohmanhakim/saas-intel/pkg/timeutil"
)

// Limiter
// Per-source throttling and adaptive backoff.
// Responsibilities:
// - Space requests to each source to respect its request budget
// - Grow the pause on consecutive rate-limit errors, capped per source
// - Announce a scheduled pause before sleeping so the owner can persist it
// - Keep every source independent: throttling one never delays another
type Limiter struct {
	mu         sync.Mutex
	configs    map[string]Config
	fallback   Config
	states     map[string]State
	predicates map[string]Predicate
	onPause    PauseFunc
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
}

func New(configs map[string]Config) *Limiter {
	copied := make(map[string]Config, len(configs))
	for k, v := range configs {
		copied[k] = v
	}
	return &Limiter{
		configs:    copied,
		states:     make(map[string]State),
		predicates: make(map[string]Predicate),
		now:        time.Now,
		sleep:      timeutil.SleepContext,
	}
}

// SetFallback sets the policy used for sources without an explicit config.
func (l *Limiter) SetFallback(cfg Config) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fallback = cfg
}

func (l *Limiter) SetPredicate(source string, predicate Predicate) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.predicates[source] = predicate
}

func (l *Limiter) SetOnPause(fn PauseFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onPause = fn
}

// SetClock replaces the time source and the sleeper, for tests.
func (l *Limiter) SetClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if now != nil {
		l.now = now
	}
	if sleep != nil {
		l.sleep = sleep
	}
}

func (l *Limiter) Config(source string) Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.configFor(source)
}

// does NOT take lock; caller must hold l.mu
func (l *Limiter) configFor(source string) Config {
	if cfg, ok := l.configs[source]; ok {
		return cfg
	}
	return l.fallback
}

// IsRateLimit applies the source's predicate, or GenericPredicate.
func (l *Limiter) IsRateLimit(source string, err error) bool {
	if err == nil {
		return false
	}
	l.mu.Lock()
	p, ok := l.predicates[source]
	l.mu.Unlock()
	if !ok || p == nil {
		return GenericPredicate(err)
	}
	return p(err)
}

// Wait blocks until the next request to source is allowed, then books it.
func (l *Limiter) Wait(ctx context.Context, source string) error {
	delay := l.reserve(source)
	l.mu.Lock()
	sleep := l.sleep
	l.mu.Unlock()
	if delay > 0 {
		return sleep(ctx, delay)
	}
	return ctx.Err()
}

// reserve computes when the next request may start and books that slot
// immediately, so concurrent callers queue behind each other instead of
// all observing the same free slot.
func (l *Limiter) reserve(source string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	cfg := l.configFor(source)
	st := l.states[source]
	now := l.now()
	at := now

	if st.ResumeAt != nil && st.ResumeAt.After(at) {
		at = *st.ResumeAt
	}
	if interval := cfg.MinInterval(); interval > 0 && !st.LastRequestAt.IsZero() {
		if next := st.LastRequestAt.Add(interval); next.After(at) {
			at = next
		}
	}
	if cfg.Period > 0 {
		switch {
		case st.PeriodStartedAt.IsZero() || at.Sub(st.PeriodStartedAt) >= cfg.Period:
			st.PeriodStartedAt = at
			st.RequestCount = 0
		case cfg.RequestsPerPeriod > 0 && st.RequestCount >= cfg.RequestsPerPeriod:
			at = st.PeriodStartedAt.Add(cfg.Period)
			st.PeriodStartedAt = at
			st.RequestCount = 0
		}
	}

	st.RequestCount++
	st.LastRequestAt = at
	l.states[source] = st
	return at.Sub(now)
}

// HandleRateLimit records a rate-limit failure, computes the pause, reports
// it through the pause hook and sleeps. The returned duration is the pause
// that was applied.
//
// Delay policy:
//   - a server retry-after hint wins
//   - the first consecutive failure uses DefaultRetryDelay
//   - later failures multiply the previous delay, capped at MaxRetryDelay
func (l *Limiter) HandleRateLimit(ctx context.Context, source string, cause error) (time.Duration, error) {
	l.mu.Lock()
	cfg := l.configFor(source)
	st := l.states[source]
	st.ConsecutiveFailures++
	delay := nextDelay(cfg, st, RetryAfter(cause))
	st.CurrentDelay = delay

	pausedAt := l.now()
	resumeAt := pausedAt.Add(delay)
	st.PausedAt = &pausedAt
	st.ResumeAt = &resumeAt
	l.states[source] = st

	onPause := l.onPause
	sleep := l.sleep
	l.mu.Unlock()

	if onPause != nil {
		if err := onPause(source, st); err != nil {
			return delay, err
		}
	}

	if err := sleep(ctx, delay); err != nil {
		return delay, err
	}

	l.mu.Lock()
	st = l.states[source]
	st.PeriodStartedAt = l.now()
	st.RequestCount = 0
	l.states[source] = st
	l.mu.Unlock()
	return delay, nil
}

func nextDelay(cfg Config, st State, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return retryAfter
	}
	if st.ConsecutiveFailures <= 1 || st.CurrentDelay <= 0 {
		return capDelay(cfg.DefaultRetryDelay, cfg.MaxRetryDelay)
	}
	multiplier := cfg.BackoffMultiplier
	if multiplier < 1 {
		multiplier = 1
	}
	next := time.Duration(float64(st.CurrentDelay) * multiplier)
	return capDelay(next, cfg.MaxRetryDelay)
}

func capDelay(d, max time.Duration) time.Duration {
	if max > 0 && d > max {
		return max
	}
	return d
}

// RecordSuccess clears the failure streak, the backoff and any pause.
func (l *Limiter) RecordSuccess(source string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := l.states[source]
	st.ConsecutiveFailures = 0
	st.CurrentDelay = 0
	st.PausedAt = nil
	st.ResumeAt = nil
	l.states[source] = st
}

func (l *Limiter) State(source string) State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.states[source]
}

// Snapshot returns a copy of every source's state for persistence.
func (l *Limiter) Snapshot() map[string]State {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]State, len(l.states))
	for k, v := range l.states {
		out[k] = v
	}
	return out
}

// Restore loads persisted states. A future ResumeAt is honoured by the next
// Wait on that source.
func (l *Limiter) Restore(states map[string]State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, v := range states {
		l.states[k] = v
	}
}
