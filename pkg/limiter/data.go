package limiter

import "time"

// Config is the throttling and backoff policy of one source.
type Config struct {
	// Request budget: at most RequestsPerPeriod calls per Period.
	RequestsPerPeriod int
	Period            time.Duration
	// First pause after a rate-limit error when the server gives no hint.
	DefaultRetryDelay time.Duration
	// Cap for the multiplied backoff.
	MaxRetryDelay     time.Duration
	BackoffMultiplier float64
}

// MinInterval spreads the budget evenly over the period.
func (c Config) MinInterval() time.Duration {
	if c.RequestsPerPeriod <= 0 || c.Period <= 0 {
		return 0
	}
	return c.Period / time.Duration(c.RequestsPerPeriod)
}

// State is the per-source bookkeeping. It is exported so the owner of the
// collection state can persist and restore it between runs.
type State struct {
	LastRequestAt       time.Time     `json:"last_request_at"`
	RequestCount        int           `json:"request_count"`
	PeriodStartedAt     time.Time     `json:"period_started_at"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	CurrentDelay        time.Duration `json:"current_delay"`
	PausedAt            *time.Time    `json:"paused_at,omitempty"`
	ResumeAt            *time.Time    `json:"resume_at,omitempty"`
}

// PauseFunc is invoked with the freshly computed state after a rate-limit
// pause has been scheduled and before the limiter sleeps.
type PauseFunc func(source string, state State) error
