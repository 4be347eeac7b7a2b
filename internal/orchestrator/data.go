package orchestrator

import (
	"context"
	"time"

	"github.com/rohmanhakim/saas-intel/internal/extraction"
	"github.com/rohmanhakim/saas-intel/internal/product"
	"github.com/rohmanhakim/saas-intel/internal/resolver"
	"github.com/rohmanhakim/saas-intel/internal/state"
	"github.com/rohmanhakim/saas-intel/internal/storage"
	"github.com/rohmanhakim/saas-intel/pkg/failure"
)

const (
	DefaultCheckpointEvery = 10
	DefaultHaltThreshold   = 3
)

// Seed is one discovery query bound to the source that runs it.
type Seed struct {
	Source product.Source
	Query  string
}

type Options struct {
	SkipDiscovery  bool
	SkipHomepages  bool
	SkipExtraction bool
	// MaxPerSeed caps the records taken from one discovery call.
	MaxPerSeed int
	// ExtractLimit caps the entities extracted in one run; 0 means no cap.
	ExtractLimit    int
	CheckpointEvery int
	HaltThreshold   int
}

func (o Options) withDefaults() Options {
	if o.CheckpointEvery <= 0 {
		o.CheckpointEvery = DefaultCheckpointEvery
	}
	if o.HaltThreshold <= 0 {
		o.HaltThreshold = DefaultHaltThreshold
	}
	return o
}

// HomepageResolver is the part of resolver.Resolver the orchestrator drives.
type HomepageResolver interface {
	ResolveBatch(ctx context.Context, targets []resolver.Target, onResult func(resolver.Result)) []resolver.Result
}

// Extractor is the part of extraction.Adapter the orchestrator drives.
type Extractor interface {
	Extract(ctx context.Context, homepageURL string) (extraction.Outcome, error)
	Backoff(ctx context.Context, outcome extraction.Outcome) (time.Duration, error)
}

// OutputSink is the collected-output writer. Has reports whether a record
// for the homepage was already written, by this run or an earlier one.
type OutputSink interface {
	Write(record extraction.CollectedProduct) (storage.WriteResult, failure.ClassifiedError)
	Has(homepageURL string) bool
}

// Result is what a run leaves behind.
type Result struct {
	Phase       state.Phase
	Halted      bool
	HaltReason  string
	Interrupted bool
	Summary     state.Summary
	// Written is the number of output rows appended by this run.
	Written int
}
