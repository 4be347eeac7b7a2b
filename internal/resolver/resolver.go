// Package resolver finds a product's own homepage from its listing page on
// a discovery site. It fails closed: no answer is better than a wrong one.
package resolver

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rohmanhakim/saas-intel/internal/metadata"
	"github.com/rohmanhakim/saas-intel/internal/render"
	"github.com/rohmanhakim/saas-intel/pkg/timeutil"
	"github.com/rohmanhakim/saas-intel/pkg/urlutil"
)

const (
	DefaultConcurrency   = 3
	DefaultDispatchDelay = 500 * time.Millisecond
)

// Target is one product waiting for a homepage.
type Target struct {
	Key  string
	Name string
	Slug string
	// ListingURL is the page to inspect, usually the SaaSHub listing or
	// the Product Hunt launch page.
	ListingURL string
}

// Result is the outcome for one Target. Found is false whenever URL is
// empty, including after an error.
type Result struct {
	Key      string
	URL      string
	Found    bool
	Strategy string
	Score    int
	Err      error
}

type Option func(*Resolver)

func WithStrategies(strategies ...Strategy) Option {
	return func(r *Resolver) { r.strategies = strategies }
}

func WithDenylist(hosts []string) Option {
	return func(r *Resolver) { r.denylist = hosts }
}

func WithConcurrency(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

func WithDispatchDelay(d time.Duration) Option {
	return func(r *Resolver) { r.dispatchDelay = d }
}

// WithSleep replaces the dispatch pause, for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Resolver) { r.sleep = sleep }
}

/*
Resolver

Responsibilities
  - Render the listing page of a product
  - Run the strategy chain and keep the first confident candidate
  - Reject anything under MinConfidence
  - Bound concurrent page loads in batch mode

A failed render or an empty chain yields Found=false, never a guess.
*/
type Resolver struct {
	renderer      render.Renderer
	metadataSink  metadata.MetadataSink
	strategies    []Strategy
	denylist      []string
	concurrency   int
	dispatchDelay time.Duration
	renderOpts    render.Options
	sleep         func(ctx context.Context, d time.Duration) error
}

func NewResolver(renderer render.Renderer, metadataSink metadata.MetadataSink, opts ...Option) *Resolver {
	r := &Resolver{
		renderer:      renderer,
		metadataSink:  metadataSink,
		strategies:    DefaultStrategies(),
		denylist:      DefaultDenylist,
		concurrency:   DefaultConcurrency,
		dispatchDelay: DefaultDispatchDelay,
		renderOpts:    render.Options{WaitDOMReady: true},
		sleep:         timeutil.SleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) Resolve(ctx context.Context, target Target) Result {
	res := Result{Key: target.Key}
	listing := strings.TrimSpace(target.ListingURL)
	if listing == "" {
		res.Err = r.fail(target, &ResolveError{Cause: ErrCauseNoListingURL})
		return res
	}

	page := r.renderer.Fetch(ctx, listing, r.renderOpts)
	if !page.Success {
		res.Err = r.fail(target, &ResolveError{Cause: ErrCauseFetchFailed, Message: page.Error, URL: listing})
		return res
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		res.Err = r.fail(target, &ResolveError{Cause: ErrCauseParseFailed, Message: err.Error(), URL: listing})
		return res
	}

	in := Input{
		Target:     target,
		HTML:       page.HTML,
		Doc:        doc,
		Links:      page.Links,
		Denylist:   r.denylist,
		SourceHost: urlutil.RegistrableDomain(urlutil.Host(listing)),
	}
	for _, s := range r.strategies {
		c, ok := s.Propose(in)
		if !ok || c.Score < MinConfidence {
			continue
		}
		res.URL, res.Found, res.Strategy, res.Score = c.URL, true, c.Strategy, c.Score
		r.metadataSink.RecordProgress("homepage_resolution", "homepage resolved", []metadata.Attribute{
			metadata.NewAttr(metadata.AttrTargetID, target.Key),
			metadata.NewAttr(metadata.AttrURL, c.URL),
			metadata.NewAttr(metadata.AttrStrategy, c.Strategy),
		})
		return res
	}
	return res
}

func (r *Resolver) fail(target Target, err *ResolveError) error {
	r.metadataSink.RecordError(
		time.Now(),
		"resolver",
		"Resolver.Resolve",
		mapResolveErrorToMetadataCause(err),
		err.Error(),
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrTargetID, target.Key),
			metadata.NewAttr(metadata.AttrURL, err.URL),
		},
	)
	return err
}

// ResolveBatch resolves targets with at most the configured number in
// flight, pausing between dispatches. onResult, when set, is called from
// one goroutine at a time as results arrive. The returned slice follows
// the order of targets. A cancelled ctx stops dispatching; undispatched
// targets get a Result carrying ctx.Err().
func (r *Resolver) ResolveBatch(ctx context.Context, targets []Target, onResult func(Result)) []Result {
	results := make([]Result, len(targets))
	sem := make(chan struct{}, r.concurrency)
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	deliver := func(i int, res Result) {
		mu.Lock()
		defer mu.Unlock()
		results[i] = res
		if onResult != nil {
			onResult(res)
		}
	}

	for i, t := range targets {
		if err := r.acquire(ctx, sem, i); err != nil {
			r.abandon(results, targets, i, err, &mu)
			break
		}
		wg.Add(1)
		go func(i int, t Target) {
			defer wg.Done()
			defer func() { <-sem }()
			deliver(i, r.Resolve(ctx, t))
		}(i, t)
	}
	wg.Wait()
	return results
}

func (r *Resolver) acquire(ctx context.Context, sem chan struct{}, i int) error {
	if i > 0 && r.dispatchDelay > 0 {
		if err := r.sleep(ctx, r.dispatchDelay); err != nil {
			return err
		}
	}
	select {
	case sem <- struct{}{}:
		return ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Resolver) abandon(results []Result, targets []Target, from int, err error, mu *sync.Mutex) {
	mu.Lock()
	defer mu.Unlock()
	for j := from; j < len(targets); j++ {
		if results[j].Key == "" {
			results[j] = Result{Key: targets[j].Key, Err: err}
		}
	}
}
