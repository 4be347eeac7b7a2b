package extraction

import (
	"fmt"

	"github.com/rohmanhakim/saas-intel/internal/metadata"
	"github.com/rohmanhakim/saas-intel/pkg/failure"
)

// PageError means the homepage itself could not be turned into text, so
// the model was never asked.
type PageError struct {
	URL     string
	Status  int
	Message string
}

func (e *PageError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("page fetch failed (%d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("page fetch failed: %s", e.Message)
}

func (e *PageError) Severity() failure.Severity {
	return failure.SeverityRecoverable
}

func (e *PageError) IsRetryable() bool {
	return false
}

// mapKindToMetadataCause maps an outcome onto the canonical cause table.
//
// This mapping is observational only and MUST NOT be used
// to derive control-flow decisions.
func mapKindToMetadataCause(o Outcome) metadata.ErrorCause {
	if o.IsRateLimit {
		return metadata.CauseRateLimited
	}
	switch o.Kind {
	case KindFetchFailure:
		return metadata.CauseNetworkFailure
	case KindParseFailure, KindStructuredError:
		return metadata.CauseContentInvalid
	default:
		return metadata.CauseUnknown
	}
}
