// Package orchestrator drives a collection run through its phases and is
// the only place that persists progress or decides to halt.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rohmanhakim/saas-intel/internal/discovery"
	"github.com/rohmanhakim/saas-intel/internal/extraction"
	"github.com/rohmanhakim/saas-intel/internal/metadata"
	"github.com/rohmanhakim/saas-intel/internal/product"
	"github.com/rohmanhakim/saas-intel/internal/resolver"
	"github.com/rohmanhakim/saas-intel/internal/state"
	"github.com/rohmanhakim/saas-intel/internal/store"
	"github.com/rohmanhakim/saas-intel/pkg/failure"
	"github.com/rohmanhakim/saas-intel/pkg/limiter"
)

/*
 Orchestrator is the sole control-plane authority of a collection run.

 Phase order is discovery -> homepage_resolution -> extraction -> done.
 halted is absorbing: a halted state refuses to run until an operator
 clears it.

 Guarantees:
 - Every phase is re-entrant. Processed seeds, checked homepages and
   completed entities are skipped on the next run.
 - State and store are checkpointed after every seed and every
   CheckpointEvery entities, and once more when the run stops for any
   reason.
 - A limiter pause is persisted before the limiter sleeps, so a restart
   honours the stored resume time.
 - Collaborators classify failures; only the orchestrator decides to
   continue, skip, halt or abort.

 Metadata emission is observational only and MUST NOT influence
 control flow.
*/
type Orchestrator struct {
	metadataSink metadata.MetadataSink
	finalizer    metadata.RunFinalizer

	state     *state.State
	statePath string
	store     *store.Store
	limiter   *limiter.Limiter
	sources   map[product.Source]discovery.Source
	seeds     []Seed
	resolver  HomepageResolver
	extractor Extractor
	output    OutputSink

	opts    Options
	now     func() time.Time
	written int
}

// Dependencies groups the collaborators of one run. Resolver, Extractor
// and Output may be nil when the matching phase is skipped.
type Dependencies struct {
	MetadataSink metadata.MetadataSink
	Finalizer    metadata.RunFinalizer
	State        *state.State
	StatePath    string
	Store        *store.Store
	Limiter      *limiter.Limiter
	Sources      []discovery.Source
	Seeds        []Seed
	Resolver     HomepageResolver
	Extractor    Extractor
	Output       OutputSink
}

func New(deps Dependencies, opts Options) *Orchestrator {
	sources := make(map[product.Source]discovery.Source, len(deps.Sources))
	for _, src := range deps.Sources {
		sources[src.Name()] = src
	}
	sink := deps.MetadataSink
	if sink == nil {
		sink = &metadata.NoopSink{}
	}
	finalizer := deps.Finalizer
	if finalizer == nil {
		finalizer = &metadata.NoopSink{}
	}
	return &Orchestrator{
		metadataSink: sink,
		finalizer:    finalizer,
		state:        deps.State,
		statePath:    deps.StatePath,
		store:        deps.Store,
		limiter:      deps.Limiter,
		sources:      sources,
		seeds:        deps.Seeds,
		resolver:     deps.Resolver,
		extractor:    deps.Extractor,
		output:       deps.Output,
		opts:         opts.withDefaults(),
		now:          time.Now,
	}
}

// SetClock replaces the clock used for timestamps.
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.now = now
}

// Run executes the phases not skipped by Options. It returns ErrHalted
// without doing any work when the state is already halted, and ctx.Err()
// after a best-effort checkpoint when ctx is cancelled. Reaching the halt
// threshold during the run is not an error: Result.Halted reports it.
func (o *Orchestrator) Run(ctx context.Context) (Result, error) {
	if o.state.IsHalted() {
		return o.result(), ErrHalted
	}

	startedAt := o.now()
	defer func() {
		summary := o.state.Summary()
		o.finalizer.RecordFinalRunStats(metadata.RunStats{
			RunID:      summary.RunID,
			Discovered: summary.Totals.Discovered,
			Resolved:   summary.Totals.Resolved,
			Extracted:  summary.Totals.Extracted,
			Failed:     summary.Totals.Failed,
			Merged:     summary.Totals.Merged,
			Halted:     summary.Halted,
			HaltReason: summary.HaltReason,
			Duration:   o.now().Sub(startedAt),
		})
	}()

	o.state.TargetsFile = o.store.Path()
	if o.limiter != nil {
		o.limiter.Restore(o.state.RateLimitSnapshot())
		o.limiter.SetOnPause(func(source string, st limiter.State) error {
			o.state.SetRateLimit(source, st)
			return o.checkpoint()
		})
		defer o.limiter.SetOnPause(nil)
	}

	if err := o.importLegacy(); err != nil {
		return o.stop(err)
	}

	phases := []struct {
		phase state.Phase
		skip  bool
		run   func(context.Context) error
	}{
		{state.PhaseDiscovery, o.opts.SkipDiscovery, o.discover},
		{state.PhaseHomepageResolution, o.opts.SkipHomepages, o.resolveHomepages},
		{state.PhaseExtraction, o.opts.SkipExtraction, o.extract},
	}
	for _, p := range phases {
		if p.skip {
			continue
		}
		o.state.SetPhase(p.phase)
		o.metadataSink.RecordProgress(string(p.phase), "phase started", nil)
		if err := p.run(ctx); err != nil {
			return o.stop(err)
		}
		if o.state.IsHalted() {
			o.metadataSink.RecordProgress(string(state.PhaseHalted), o.state.Summary().HaltReason, nil)
			return o.stop(nil)
		}
		if err := o.checkpoint(); err != nil {
			return o.stop(err)
		}
	}

	o.state.SetPhase(state.PhaseDone)
	return o.stop(nil)
}

// stop writes the final checkpoint. On cancellation or a fatal error the
// checkpoint is best effort and the original error wins.
func (o *Orchestrator) stop(err error) (Result, error) {
	cpErr := o.checkpoint()
	res := o.result()
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			res.Interrupted = true
		}
		return res, err
	}
	if cpErr != nil {
		return res, cpErr
	}
	return res, nil
}

func (o *Orchestrator) result() Result {
	summary := o.state.Summary()
	return Result{
		Phase:      summary.Phase,
		Halted:     summary.Halted,
		HaltReason: summary.HaltReason,
		Summary:    summary,
		Written:    o.written,
	}
}

// checkpoint persists store changes, the index cache, limiter states and
// the state document, in that order.
func (o *Orchestrator) checkpoint() error {
	if err := o.store.Flush(); err != nil {
		return o.fatal("checkpoint", ErrCauseCheckpointFailed, err)
	}
	o.state.SetURLIndex(o.store.IndexSnapshot())
	if o.limiter != nil {
		o.state.SetRateLimits(o.limiter.Snapshot())
	}
	if err := o.state.Save(o.statePath, o.now()); err != nil {
		return o.fatal("checkpoint", ErrCauseCheckpointFailed, err)
	}
	o.metadataSink.RecordArtifact(metadata.ArtifactState, o.statePath, nil)
	return nil
}

func (o *Orchestrator) fatal(phase string, cause OrchestratorErrorCause, err error) error {
	oerr := &OrchestratorError{Message: err.Error(), Cause: cause, Phase: phase, Err: err}
	o.metadataSink.RecordError(
		o.now(),
		"orchestrator",
		phase,
		mapOrchestratorErrorToMetadataCause(oerr),
		oerr.Error(),
		nil,
	)
	return oerr
}

// importLegacy moves entities embedded in a version 1 state document into
// the target store.
func (o *Orchestrator) importLegacy() error {
	legacy := o.state.LegacyProducts()
	if len(legacy) == 0 {
		return nil
	}
	for _, p := range legacy {
		if _, err := o.store.Add(p); err != nil {
			if failure.IsFatal(err) {
				return o.fatal("import", ErrCauseStoreFailed, err)
			}
		}
	}
	o.metadataSink.RecordProgress("import", fmt.Sprintf("imported %d legacy products", len(legacy)), nil)
	return o.checkpoint()
}

// discover queries every seed not yet processed. A rate limit that
// survived the limiter's retries halts the run; any other recoverable
// error skips the seed, which stays unprocessed for the next run.
func (o *Orchestrator) discover(ctx context.Context) error {
	for _, seed := range o.seeds {
		if err := ctx.Err(); err != nil {
			return err
		}
		key := state.SeedKey(seed.Source, seed.Query)
		if o.state.IsSeedProcessed(key) {
			continue
		}
		src, ok := o.sources[seed.Source]
		if !ok {
			continue
		}

		records, err := src.Discover(ctx, seed.Query, o.opts.MaxPerSeed)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			attrs := []metadata.Attribute{
				metadata.NewAttr(metadata.AttrSource, string(seed.Source)),
				metadata.NewAttr(metadata.AttrSeed, seed.Query),
			}
			o.metadataSink.RecordError(o.now(), "orchestrator", "discover",
				discovery.MapErrorToMetadataCause(err), err.Error(), attrs)
			if limiter.GenericPredicate(err) {
				o.state.Halt(fmt.Sprintf("Rate limit during %s discovery (seed %q): %v", seed.Source, seed.Query, err))
				return nil
			}
			if failure.IsFatal(err) {
				return o.fatal("discover", ErrCauseDiscoveryFailed, err)
			}
			o.state.RecordFailure(err.Error())
			continue
		}

		for _, rec := range records {
			if err := o.ingest(rec); err != nil {
				return err
			}
		}
		o.state.MarkSeedProcessed(key)
		o.metadataSink.RecordProgress(string(state.PhaseDiscovery),
			fmt.Sprintf("seed done: %d records", len(records)),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrSource, string(seed.Source)),
				metadata.NewAttr(metadata.AttrSeed, seed.Query),
			})
		if err := o.checkpoint(); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) ingest(rec discovery.Record) error {
	res, err := o.store.Add(rec.ToProduct(o.now()))
	if err != nil {
		if failure.IsFatal(err) {
			return o.fatal("discover", ErrCauseStoreFailed, err)
		}
		return nil
	}
	switch res.Outcome {
	case store.Inserted:
		o.state.AddDiscovered(rec.Source)
	case store.Merged:
		if res.CrossSource {
			o.state.AddMerged(rec.Source)
		}
	}
	return nil
}

// resolveHomepages runs the resolver over every product that still lacks
// a homepage, one checkpoint-sized batch at a time.
func (o *Orchestrator) resolveHomepages(ctx context.Context) error {
	if o.resolver == nil {
		return nil
	}
	pending := o.store.NeedingHomepage()
	targets := make([]resolver.Target, 0, len(pending))
	for _, p := range pending {
		listing := p.SourceURL
		if listing == "" {
			listing = p.RedirectURL
		}
		if listing == "" {
			if err := o.markChecked(p.Key()); err != nil {
				return err
			}
			continue
		}
		targets = append(targets, resolver.Target{Key: p.Key(), Name: p.Name, Slug: p.Slug, ListingURL: listing})
	}

	for start := 0; start < len(targets); start += o.opts.CheckpointEvery {
		end := min(start+o.opts.CheckpointEvery, len(targets))
		results := o.resolver.ResolveBatch(ctx, targets[start:end], nil)
		for _, r := range results {
			if r.Err != nil && ctx.Err() != nil {
				break
			}
			if err := o.applyHomepage(r); err != nil {
				return err
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := o.checkpoint(); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) applyHomepage(r resolver.Result) error {
	// The listing never loaded, so the miss says nothing about the product.
	// It stays unchecked and the next run tries again.
	if r.Err != nil {
		return nil
	}
	if !r.Found {
		return o.markChecked(r.Key)
	}
	var source product.Source
	if p, ok := o.store.Get(r.Key); ok {
		source = p.Source
	}
	res, err := o.store.SetHomepage(r.Key, r.URL, product.OriginResolved)
	if err != nil {
		if failure.IsFatal(err) {
			return o.fatal("resolve", ErrCauseStoreFailed, err)
		}
		return nil
	}
	o.state.AddResolved()
	if res.MergedInto && res.CrossSource {
		o.state.AddMerged(source)
	}
	o.metadataSink.RecordProgress(string(state.PhaseHomepageResolution), "homepage resolved",
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrTargetID, res.Key),
			metadata.NewAttr(metadata.AttrURL, r.URL),
			metadata.NewAttr(metadata.AttrStrategy, r.Strategy),
		})
	return nil
}

func (o *Orchestrator) markChecked(key string) error {
	if err := o.store.MarkHomepageChecked(key); err != nil && failure.IsFatal(err) {
		return o.fatal("resolve", ErrCauseStoreFailed, err)
	}
	return nil
}

// extract runs the extraction adapter over pending entities with a
// homepage. Rate-limited failures keep the entity pending and feed the
// halt streak; any other failure is terminal for the entity until an
// operator reset. A success resets the streak.
func (o *Orchestrator) extract(ctx context.Context) error {
	if o.extractor == nil || o.output == nil {
		return nil
	}
	items := o.store.NeedingExtraction(o.opts.ExtractLimit)
	for i, p := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 && i%o.opts.CheckpointEvery == 0 {
			if err := o.checkpoint(); err != nil {
				return err
			}
		}
		if err := o.extractOne(ctx, p); err != nil {
			return err
		}
		if o.state.IsHalted() {
			return nil
		}
	}
	return nil
}

func (o *Orchestrator) extractOne(ctx context.Context, p *product.Product) error {
	key := p.Key()
	attrs := []metadata.Attribute{
		metadata.NewAttr(metadata.AttrTargetID, key),
		metadata.NewAttr(metadata.AttrURL, p.HomepageURL),
	}

	// written by an earlier run that stopped before marking the entity
	if o.output.Has(p.HomepageURL) {
		return o.storeUpdate(o.store.MarkCompleted(key))
	}

	outcome, err := o.extractor.Extract(ctx, p.HomepageURL)
	if err != nil {
		return err
	}

	if outcome.Success() {
		rec := extraction.NewCollectedProduct(p, outcome.Info, o.now())
		res, werr := o.output.Write(rec)
		if werr != nil {
			if werr.Severity() == failure.SeverityFatal {
				return o.fatal("extract", ErrCauseOutputFailed, werr)
			}
			o.state.AddFailed(p.Source)
			o.state.RecordFailure(werr.Error())
			return o.storeUpdate(o.store.MarkFailed(key, werr.Error()))
		}
		if !res.Duplicate() {
			o.written++
		}
		o.state.AddExtracted(p.Source)
		o.state.RecordSuccess()
		o.metadataSink.RecordProgress(string(state.PhaseExtraction), "extracted", attrs)
		return o.storeUpdate(o.store.MarkCompleted(key))
	}

	reason := outcome.Reason()
	if !outcome.IsRateLimit {
		o.state.AddFailed(p.Source)
		o.state.RecordFailure(reason)
		return o.storeUpdate(o.store.MarkFailed(key, reason))
	}

	if err := o.storeUpdate(o.store.RecordAttempt(key, reason)); err != nil {
		return err
	}
	if o.state.RecordRateLimitFailure(reason, o.opts.HaltThreshold) {
		return nil
	}
	if _, err := o.extractor.Backoff(ctx, outcome); err != nil {
		return err
	}
	return nil
}

func (o *Orchestrator) storeUpdate(err error) error {
	if err != nil && failure.IsFatal(err) {
		return o.fatal("extract", ErrCauseStoreFailed, err)
	}
	return nil
}
