package orchestrator_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rohmanhakim/saas-intel/internal/discovery"
	"github.com/rohmanhakim/saas-intel/internal/extraction"
	"github.com/rohmanhakim/saas-intel/internal/metadata"
	"github.com/rohmanhakim/saas-intel/internal/orchestrator"
	"github.com/rohmanhakim/saas-intel/internal/product"
	"github.com/rohmanhakim/saas-intel/internal/resolver"
	"github.com/rohmanhakim/saas-intel/internal/state"
	"github.com/rohmanhakim/saas-intel/internal/storage"
	"github.com/rohmanhakim/saas-intel/internal/store"
	"github.com/rohmanhakim/saas-intel/pkg/limiter"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// env holds the on-disk artifacts of one test run. reopen simulates a
// process restart over the same files.
type env struct {
	dir        string
	statePath  string
	targetPath string
	outputPath string

	state   *state.State
	store   *store.Store
	output  *storage.JSONLSink
	limiter *limiter.Limiter
	sleeps  []time.Duration
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	e := &env{
		dir:        dir,
		statePath:  filepath.Join(dir, "state.json"),
		targetPath: filepath.Join(dir, "targets.jsonl"),
		outputPath: filepath.Join(dir, "products.jsonl"),
	}
	e.reopen(t)
	return e
}

func (e *env) reopen(t *testing.T) {
	t.Helper()
	st, _, err := state.Load(e.statePath, testNow)
	require.NoError(t, err)
	s, err := store.Open(e.targetPath, &metadata.NoopSink{}, store.WithIndexCache(st.URLIndex, st.URLIndexFingerprint))
	require.NoError(t, err)
	out, werr := storage.OpenJSONLSink(e.outputPath, &metadata.NoopSink{})
	require.Nil(t, werr)

	l := limiter.New(map[string]limiter.Config{
		"saashub": {RequestsPerPeriod: 5, Period: time.Minute, DefaultRetryDelay: time.Minute, MaxRetryDelay: 10 * time.Minute, BackoffMultiplier: 2},
	})
	l.SetClock(func() time.Time { return testNow }, func(ctx context.Context, d time.Duration) error {
		e.sleeps = append(e.sleeps, d)
		return ctx.Err()
	})

	e.state, e.store, e.output, e.limiter = st, s, out, l
}

func (e *env) orchestrator(deps orchestrator.Dependencies, opts orchestrator.Options) *orchestrator.Orchestrator {
	deps.State = e.state
	deps.StatePath = e.statePath
	deps.Store = e.store
	deps.Limiter = e.limiter
	if deps.Output == nil {
		deps.Output = e.output
	}
	if deps.MetadataSink == nil {
		deps.MetadataSink = &metadata.NoopSink{}
	}
	o := orchestrator.New(deps, opts)
	o.SetClock(func() time.Time { return testNow })
	return o
}

func (e *env) addWithHomepage(t *testing.T, id, name, homepage string) {
	t.Helper()
	_, err := e.store.Add(&product.Product{
		ID:             id,
		Name:           name,
		HomepageURL:    homepage,
		HomepageOrigin: product.OriginAPI,
		Source:         product.SourceSaaSHub,
		Status:         product.StatusPending,
	})
	require.NoError(t, err)
}

// fakeSource answers Discover from a per-seed table.
type fakeSource struct {
	name    product.Source
	mu      sync.Mutex
	records map[string][]discovery.Record
	errs    map[string]error
	hook    func(ctx context.Context, seed string)
	calls   []string
}

func newFakeSource(name product.Source) *fakeSource {
	return &fakeSource{name: name, records: map[string][]discovery.Record{}, errs: map[string]error{}}
}

func (f *fakeSource) Name() product.Source { return f.name }

func (f *fakeSource) Discover(ctx context.Context, seed string, limit int) ([]discovery.Record, error) {
	f.mu.Lock()
	f.calls = append(f.calls, seed)
	hook := f.hook
	f.mu.Unlock()
	if hook != nil {
		hook(ctx, seed)
	}
	if err := f.errs[seed]; err != nil {
		return nil, err
	}
	recs := f.records[seed]
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

func (f *fakeSource) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// fakeResolver finds the homepages listed in found and nothing else.
// Keys in failed come back with that error, as when the listing never loads.
type fakeResolver struct {
	found   map[string]string
	failed  map[string]error
	batches [][]resolver.Target
}

func (f *fakeResolver) ResolveBatch(_ context.Context, targets []resolver.Target, _ func(resolver.Result)) []resolver.Result {
	f.batches = append(f.batches, targets)
	out := make([]resolver.Result, len(targets))
	for i, target := range targets {
		out[i] = resolver.Result{Key: target.Key}
		if u, ok := f.found[target.Key]; ok {
			out[i].URL, out[i].Found, out[i].Strategy = u, true, "visit_website"
		}
		if err, ok := f.failed[target.Key]; ok {
			out[i].Err = err
		}
	}
	return out
}

func (f *fakeResolver) targetCount() int {
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

type extractorMock struct {
	mock.Mock
}

func (m *extractorMock) Extract(ctx context.Context, homepageURL string) (extraction.Outcome, error) {
	args := m.Called(homepageURL)
	return args.Get(0).(extraction.Outcome), args.Error(1)
}

func (m *extractorMock) Backoff(ctx context.Context, outcome extraction.Outcome) (time.Duration, error) {
	args := m.Called(outcome.Kind)
	return args.Get(0).(time.Duration), args.Error(1)
}

func rateLimited(msg string) extraction.Outcome {
	return extraction.Outcome{Kind: extraction.KindStructuredError, Message: msg, IsRateLimit: true}
}

func succeeded(name string) extraction.Outcome {
	info := &extraction.ProductInfo{Name: name}
	info.Normalize()
	return extraction.Outcome{Kind: extraction.KindSuccess, Info: info}
}

// finalizerMock counts final stats calls.
type finalizerMock struct {
	calls int
	last  metadata.RunStats
}

func (f *finalizerMock) RecordFinalRunStats(stats metadata.RunStats) {
	f.calls++
	f.last = stats
}

func intPtr(v int) *int { return &v }
