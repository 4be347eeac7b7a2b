package config

import (
	"errors"
	"fmt"

	"github.com/rohmanhakim/saas-intel/pkg/failure"
)

var ErrFileDoesNotExist = errors.New("config file does not exist")
var ErrReadConfigFail = errors.New("failed to read config file")
var ErrConfigParsingFail = errors.New("failed to parse config file")
var ErrInvalidConfig = errors.New("invalid config")

// ConfigurationError is fatal at startup, never a per-product condition.
type ConfigurationError struct {
	Message string
	Missing []string
}

func (e *ConfigurationError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("configuration error: %s: %v", e.Message, e.Missing)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

func (e *ConfigurationError) Severity() failure.Severity {
	return failure.SeverityFatal
}

func (e *ConfigurationError) IsRetryable() bool {
	return false
}
