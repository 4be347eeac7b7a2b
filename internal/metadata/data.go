package metadata

import (
	"time"
)

/*
RunStats
  - Terminal summary of one collection run
  - Derived from the orchestrator's counters, never accumulated here
  - Recorded exactly once, after the run stops (complete, halted or interrupted)
*/
type RunStats struct {
	RunID      string
	Discovered int
	Resolved   int
	Extracted  int
	Failed     int
	Merged     int
	Halted     bool
	HaltReason string
	Duration   time.Duration
}

type ArtifactKind string

const (
	ArtifactTargets ArtifactKind = "targets"
	ArtifactState   ArtifactKind = "state"
	ArtifactOutput  ArtifactKind = "output"
	ArtifactExport  ArtifactKind = "export"
)

/*
	ErrorCause is a closed classification used only for observability.

	Rules:
	 - It must never drive retry, continuation or halt decisions.
	 - Packages map their local errors onto it but do not invent new meanings.
	 - It does not encode severity or retryability.

If a failure does not clearly match a defined cause, CauseUnknown MUST be used.
*/
type ErrorCause int

/*
Canonical ErrorCause Table

# CauseUnknown

Fallback for failures that fit nowhere else.

# CauseNetworkFailure

Transport or remote availability: timeouts, DNS, resets, 5xx.

# CauseRateLimited

A source told us to slow down: HTTP 429, quota or throttle messages.
Recorded even when the limiter recovers on retry.

# CausePolicyDisallow

Access refused by the remote: 401, 403, robots disallow.

# CauseContentInvalid

Content arrived but could not be used: wrong content type, undecodable
JSON, empty pages, schema-invalid extraction output.

# CauseStorageFailure

Persisting targets, state or output failed.

# CauseConfiguration

Missing credentials, unreadable config or seed files.

# CauseRetryFailure

A bounded retry gave up. The wrapped error carries the underlying cause.

# CauseInvariantViolation

Internal consistency checks failed, e.g. two entities sharing a URL key.
*/
const (
	CauseUnknown ErrorCause = iota
	CauseNetworkFailure
	CauseRateLimited
	CausePolicyDisallow
	CauseContentInvalid
	CauseStorageFailure
	CauseConfiguration
	CauseRetryFailure
	CauseInvariantViolation
)

func (c ErrorCause) String() string {
	switch c {
	case CauseNetworkFailure:
		return "network_failure"
	case CauseRateLimited:
		return "rate_limited"
	case CausePolicyDisallow:
		return "policy_disallow"
	case CauseContentInvalid:
		return "content_invalid"
	case CauseStorageFailure:
		return "storage_failure"
	case CauseConfiguration:
		return "configuration"
	case CauseRetryFailure:
		return "retry_failure"
	case CauseInvariantViolation:
		return "invariant_violation"
	default:
		return "unknown"
	}
}

type Attribute struct {
	Key   AttributeKey
	Value string
}

func NewAttr(key AttributeKey, val string) Attribute {
	return Attribute{
		Key:   key,
		Value: val,
	}
}

type AttributeKey string

const (
	AttrTime       AttributeKey = "time"
	AttrURL        AttributeKey = "url"
	AttrHost       AttributeKey = "host"
	AttrHTTPStatus AttributeKey = "http_status"
	AttrWritePath  AttributeKey = "write_path"
	AttrMessage    AttributeKey = "message"
	AttrSource     AttributeKey = "source"
	AttrTargetID   AttributeKey = "target_id"
	AttrSeed       AttributeKey = "seed"
	AttrPhase      AttributeKey = "phase"
	AttrStrategy   AttributeKey = "strategy"
	AttrDelay      AttributeKey = "delay"
)
