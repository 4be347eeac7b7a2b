package metadata_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/rohmanhakim/saas-intel/internal/metadata"
	"github.com/stretchr/testify/assert"
)

func TestRecorder_RecordErrorWritesFields(t *testing.T) {
	// GIVEN a recorder writing to a buffer
	var buf bytes.Buffer
	rec := metadata.NewRecorder(metadata.NewLogger(&buf, false), "run-1")

	// WHEN an error is recorded
	rec.RecordError(time.Now(), "resolver", "Resolve", metadata.CauseNetworkFailure, "dial timeout",
		[]metadata.Attribute{metadata.NewAttr(metadata.AttrTargetID, "acme")})

	// THEN the log line carries the structured fields
	out := buf.String()
	assert.Contains(t, out, "level=error")
	assert.Contains(t, out, "cause=network_failure")
	assert.Contains(t, out, "target_id=acme")
	assert.Contains(t, out, "run_id=run-1")
	assert.Contains(t, out, "dial timeout")
}

func TestRecorder_RateLimitIsWarning(t *testing.T) {
	var buf bytes.Buffer
	rec := metadata.NewRecorder(metadata.NewLogger(&buf, false), "run-1")

	rec.RecordError(time.Now(), "extraction", "Extract", metadata.CauseRateLimited, "429", nil)

	assert.Contains(t, buf.String(), "level=warning")
}

func TestRecorder_FetchOnlyInVerbose(t *testing.T) {
	var quiet, verbose bytes.Buffer
	metadata.NewRecorder(metadata.NewLogger(&quiet, false), "r").RecordFetch("https://x", 200, time.Second, "application/json", 0)
	metadata.NewRecorder(metadata.NewLogger(&verbose, true), "r").RecordFetch("https://x", 200, time.Second, "application/json", 0)

	assert.Empty(t, quiet.String())
	assert.Contains(t, verbose.String(), "http_status=200")
}

func TestRecorder_FinalStats(t *testing.T) {
	var buf bytes.Buffer
	rec := metadata.NewRecorder(metadata.NewLogger(&buf, false), "r")

	rec.RecordFinalRunStats(metadata.RunStats{Extracted: 4, Halted: true, HaltReason: "Rate limit: 3 consecutive failures"})

	out := buf.String()
	assert.Contains(t, out, "run halted")
	assert.Contains(t, out, "extracted=4")
}

func TestErrorCause_String(t *testing.T) {
	assert.Equal(t, "unknown", metadata.CauseUnknown.String())
	assert.Equal(t, "rate_limited", metadata.CauseRateLimited.String())
	assert.Equal(t, "unknown", metadata.ErrorCause(99).String())
}
