package metadata

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

/*
Logging goals
- Debuggable collection behavior
- Post-run auditability
- Failure diagnostics

Metadata is write-only.
No component may read metadata to influence collection decisions.
*/

// NewLogger builds the process logger. Verbose switches to debug level.
func NewLogger(out io.Writer, verbose bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
	return logger
}

/*
Recorder writes structured collection events to a logrus logger.
It must not:
- make I/O decisions for the pipeline
- affect control flow
*/
type Recorder struct {
	log *logrus.Entry
}

func NewRecorder(logger *logrus.Logger, runID string) *Recorder {
	return &Recorder{
		log: logger.WithField("run_id", runID),
	}
}

func fields(attrs []Attribute) logrus.Fields {
	f := make(logrus.Fields, len(attrs))
	for _, a := range attrs {
		f[string(a.Key)] = a.Value
	}
	return f
}

func (r *Recorder) RecordError(
	observedAt time.Time,
	packageName string,
	action string,
	cause ErrorCause,
	details string,
	attrs []Attribute,
) {
	entry := r.log.WithFields(fields(attrs)).WithFields(logrus.Fields{
		"package": packageName,
		"action":  action,
		"cause":   cause.String(),
	}).WithTime(observedAt)

	if cause == CauseRateLimited {
		entry.Warn(details)
		return
	}
	entry.Error(details)
}

func (r *Recorder) RecordFetch(
	fetchURL string,
	httpStatus int,
	duration time.Duration,
	contentType string,
	retryCount int,
) {
	r.log.WithFields(logrus.Fields{
		"url":          fetchURL,
		"http_status":  httpStatus,
		"duration":     duration,
		"content_type": contentType,
		"retries":      retryCount,
	}).Debug("fetch")
}

func (r *Recorder) RecordArtifact(kind ArtifactKind, path string, attrs []Attribute) {
	r.log.WithFields(fields(attrs)).WithFields(logrus.Fields{
		"kind": string(kind),
		"path": path,
	}).Debug("artifact written")
}

// RecordProgress logs a user-facing progress line for a phase.
func (r *Recorder) RecordProgress(phase string, message string, attrs []Attribute) {
	r.log.WithFields(fields(attrs)).WithField("phase", phase).Info(message)
}

/*
RecordFinalRunStats records the terminal summary of a run.

Contract:
  - MUST be called exactly once per run, after it stops.
  - The stats MUST be derived from orchestrator state.
*/
func (r *Recorder) RecordFinalRunStats(stats RunStats) {
	entry := r.log.WithFields(logrus.Fields{
		"discovered":  stats.Discovered,
		"resolved":    stats.Resolved,
		"extracted":   stats.Extracted,
		"failed":      stats.Failed,
		"merged":      stats.Merged,
		"duration_ms": stats.Duration.Milliseconds(),
	})
	if stats.Halted {
		entry.WithField("halt_reason", stats.HaltReason).Warn("run halted")
		return
	}
	entry.Info("run finished")
}

type MetadataSink interface {
	RecordError(
		observedAt time.Time,
		packageName string,
		action string,
		cause ErrorCause,
		details string,
		attrs []Attribute,
	)
	RecordFetch(
		fetchURL string,
		httpStatus int,
		duration time.Duration,
		contentType string,
		retryCount int,
	)
	RecordArtifact(kind ArtifactKind, path string, attrs []Attribute)
	RecordProgress(phase string, message string, attrs []Attribute)
}

type RunFinalizer interface {
	RecordFinalRunStats(stats RunStats)
}

// NoopSink implements MetadataSink and RunFinalizer and drops everything.
// Tests inject it when events do not matter.
type NoopSink struct{}

func (n *NoopSink) RecordError(time.Time, string, string, ErrorCause, string, []Attribute) {}

func (n *NoopSink) RecordFetch(string, int, time.Duration, string, int) {}

func (n *NoopSink) RecordArtifact(ArtifactKind, string, []Attribute) {}

func (n *NoopSink) RecordProgress(string, string, []Attribute) {}

func (n *NoopSink) RecordFinalRunStats(RunStats) {}
