package failure

import "errors"

type Severity int

// orchestrator loop control
const (
	SeverityFatal Severity = iota
	SeverityRecoverable
)

type ClassifiedError interface {
	error
	Severity() Severity
}

// Retryable is implemented by errors that know whether repeating the same
// call could succeed.
type Retryable interface {
	IsRetryable() bool
}

// IsRetryable reports whether err, or an error it wraps, declares itself
// retryable. Errors that say nothing are treated as not retryable.
func IsRetryable(err error) bool {
	var r Retryable
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	return false
}

// IsFatal reports whether err must stop the current run.
// Unclassified errors are fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var c ClassifiedError
	if errors.As(err, &c) {
		return c.Severity() == SeverityFatal
	}
	return true
}
