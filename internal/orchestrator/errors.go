package orchestrator

import (
	"errors"
	"fmt"

	"github.com/rohmanhakim/saas-intel/internal/metadata"
	"github.com/rohmanhakim/saas-intel/pkg/failure"
)

// ErrHalted is returned by Run when the persisted state is halted. Only an
// operator reset clears it.
var ErrHalted = errors.New("collection is halted")

type OrchestratorErrorCause string

const (
	ErrCauseCheckpointFailed OrchestratorErrorCause = "checkpoint failed"
	ErrCauseStoreFailed      OrchestratorErrorCause = "target store failed"
	ErrCauseOutputFailed     OrchestratorErrorCause = "output write failed"
	ErrCauseDiscoveryFailed  OrchestratorErrorCause = "discovery failed"
)

type OrchestratorError struct {
	Message string
	Cause   OrchestratorErrorCause
	Phase   string
	Err     error
}

func (e *OrchestratorError) Error() string {
	return fmt.Sprintf("orchestrator error (%s): %s: %s", e.Phase, e.Cause, e.Message)
}

func (e *OrchestratorError) Unwrap() error {
	return e.Err
}

// Severity is always fatal: an OrchestratorError ends the run.
func (e *OrchestratorError) Severity() failure.Severity {
	return failure.SeverityFatal
}

func (e *OrchestratorError) IsRetryable() bool {
	return false
}

// mapOrchestratorErrorToMetadataCause is observational only and MUST NOT
// be used to derive control-flow decisions.
func mapOrchestratorErrorToMetadataCause(err *OrchestratorError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseCheckpointFailed, ErrCauseStoreFailed, ErrCauseOutputFailed:
		return metadata.CauseStorageFailure
	case ErrCauseDiscoveryFailed:
		return metadata.CauseConfiguration
	default:
		return metadata.CauseUnknown
	}
}
