package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/rohmanhakim/saas-intel/internal/config"
	"github.com/rohmanhakim/saas-intel/internal/discovery"
	"github.com/rohmanhakim/saas-intel/internal/discovery/producthunt"
	"github.com/rohmanhakim/saas-intel/internal/discovery/saashub"
	"github.com/rohmanhakim/saas-intel/internal/extraction"
	"github.com/rohmanhakim/saas-intel/internal/fetcher"
	"github.com/rohmanhakim/saas-intel/internal/mdconvert"
	"github.com/rohmanhakim/saas-intel/internal/metadata"
	"github.com/rohmanhakim/saas-intel/internal/orchestrator"
	"github.com/rohmanhakim/saas-intel/internal/product"
	"github.com/rohmanhakim/saas-intel/internal/render"
	"github.com/rohmanhakim/saas-intel/internal/resolver"
	"github.com/rohmanhakim/saas-intel/internal/seeds"
	"github.com/rohmanhakim/saas-intel/internal/state"
	"github.com/rohmanhakim/saas-intel/internal/storage"
	"github.com/rohmanhakim/saas-intel/internal/store"
	"github.com/rohmanhakim/saas-intel/pkg/fileutil"
	"github.com/rohmanhakim/saas-intel/pkg/limiter"
	"github.com/rohmanhakim/saas-intel/pkg/retry"
	"github.com/rohmanhakim/saas-intel/pkg/timeutil"
)

// app is the on-disk side of a collection: state, target store and the
// logger bound to the run id. Network collaborators are added per command.
type app struct {
	cfg      config.Config
	recorder *metadata.Recorder
	state    *state.State
	store    *store.Store
}

func openApp(cfg config.Config, logOut io.Writer) (*app, error) {
	for _, f := range []string{cfg.StateFile(), cfg.TargetsFile(), cfg.OutputFile()} {
		if err := fileutil.EnsureParent(f); err != nil {
			return nil, err
		}
	}
	st, _, err := state.Load(cfg.StateFile(), time.Now())
	if err != nil {
		return nil, err
	}
	recorder := metadata.NewRecorder(metadata.NewLogger(logOut, verbose), st.RunID)
	s, err := store.Open(cfg.TargetsFile(), recorder, store.WithIndexCache(st.URLIndex, st.URLIndexFingerprint))
	if err != nil {
		return nil, err
	}
	if s.Skipped() > 0 {
		recorder.RecordProgress("load", fmt.Sprintf("skipped %d malformed target lines", s.Skipped()), nil)
	}
	return &app{cfg: cfg, recorder: recorder, state: st, store: s}, nil
}

// pipeline is everything one orchestrator run needs beyond the app.
type pipeline struct {
	sources   []discovery.Source
	seeds     []orchestrator.Seed
	renderer  render.Renderer
	resolver  orchestrator.HomepageResolver
	extractor orchestrator.Extractor
	output    *storage.JSONLSink
	limiter   *limiter.Limiter
}

func (p *pipeline) Close() error {
	if p.renderer != nil {
		return p.renderer.Close()
	}
	return nil
}

func newLimiter(cfg config.Config) *limiter.Limiter {
	l := limiter.New(cfg.RateLimits())
	l.SetPredicate(config.SourceOpenAI, extraction.RateLimitPredicate)
	l.SetPredicate(string(product.SourceProductHunt), limiter.SignalPredicate("throttl"))
	return l
}

func newRetryParam(cfg config.Config) retry.RetryParam {
	return retry.NewRetryParam(
		cfg.Jitter(),
		cfg.RandomSeed(),
		cfg.MaxAttempt(),
		timeutil.NewBackoffParam(cfg.BackoffInitialDuration(), cfg.BackoffMultiplier(), cfg.BackoffMaxDuration()),
	)
}

// buildPipeline wires the collaborators the enabled phases need. Credentials
// are checked first so a missing key fails before any request is sent.
func (a *app) buildPipeline(opts orchestrator.Options, src string) (*pipeline, error) {
	useSaaSHub := !opts.SkipDiscovery && (src == "all" || src == string(product.SourceSaaSHub))
	useProductHunt := !opts.SkipDiscovery && (src == "all" || src == string(product.SourceProductHunt))
	if !opts.SkipDiscovery && !useSaaSHub && !useProductHunt {
		return nil, &config.ConfigurationError{Message: fmt.Sprintf("unknown source %q", src)}
	}

	creds := config.CredentialsFromEnv()
	if err := creds.Require(config.Need{
		SaaSHub:     useSaaSHub,
		ProductHunt: useProductHunt,
		OpenAI:      !opts.SkipExtraction,
	}); err != nil {
		return nil, err
	}

	cfg := a.cfg
	p := &pipeline{limiter: newLimiter(cfg)}
	retryParam := newRetryParam(cfg)
	f := fetcher.NewHTTPFetcher(a.recorder, cfg.Timeout(), cfg.UserAgent())

	if useSaaSHub {
		queries, err := saashubSeeds(cfg)
		if err != nil {
			return nil, err
		}
		p.sources = append(p.sources, saashub.NewClient(f, p.limiter, cfg.SaaSHubBaseURL(), creds.SaaSHubAPIKey, retryParam, cfg.MaxRetries()))
		for _, q := range queries {
			p.seeds = append(p.seeds, orchestrator.Seed{Source: product.SourceSaaSHub, Query: q})
		}
	}
	if useProductHunt {
		p.sources = append(p.sources, producthunt.NewClient(f, p.limiter, cfg.ProductHuntBaseURL(), creds.ProductHuntAccessToken, cfg.MinVotes(), retryParam, cfg.MaxRetries()))
		for _, t := range cfg.Topics() {
			p.seeds = append(p.seeds, orchestrator.Seed{Source: product.SourceProductHunt, Query: t})
		}
	}

	if !opts.SkipHomepages || !opts.SkipExtraction {
		r, err := render.New(cfg.Renderer(), render.Settings{
			UserAgent:     cfg.UserAgent(),
			Timeout:       cfg.Timeout(),
			RespectRobots: cfg.RespectRobots(),
		}, a.recorder)
		if err != nil {
			return nil, &config.ConfigurationError{Message: err.Error()}
		}
		p.renderer = r
	}
	if !opts.SkipHomepages {
		p.resolver = resolver.NewResolver(p.renderer, a.recorder,
			resolver.WithConcurrency(cfg.HomepageConcurrency()),
			resolver.WithDispatchDelay(cfg.HomepageDispatchDelay()),
		)
	}
	if !opts.SkipExtraction {
		out, err := storage.OpenJSONLSink(cfg.OutputFile(), a.recorder)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.output = out
		collaborator := extraction.NewLLMCollaborator(
			p.renderer,
			mdconvert.NewRule(a.recorder, mdconvert.DefaultMaxChars),
			f,
			cfg.LLMBaseURL(),
			creds.OpenAIAPIKey,
			cfg.LLMModel(),
			retryParam,
		)
		p.extractor = extraction.NewAdapter(collaborator, p.limiter, a.recorder)
	}
	return p, nil
}

// saashubSeeds prefers explicit seeds and falls back to the seeds file.
func saashubSeeds(cfg config.Config) ([]string, error) {
	if s := cfg.Seeds(); len(s) > 0 {
		return seeds.Dedupe(s), nil
	}
	queries, err := seeds.Load(cfg.SeedsFile())
	if err != nil {
		return nil, &config.ConfigurationError{Message: err.Error()}
	}
	return queries, nil
}

func (a *app) orchestrator(p *pipeline, opts orchestrator.Options) *orchestrator.Orchestrator {
	deps := orchestrator.Dependencies{
		MetadataSink: a.recorder,
		Finalizer:    a.recorder,
		State:        a.state,
		StatePath:    a.cfg.StateFile(),
		Store:        a.store,
		Limiter:      p.limiter,
		Sources:      p.sources,
		Seeds:        p.seeds,
		Resolver:     p.resolver,
		Extractor:    p.extractor,
	}
	// a nil *JSONLSink must not become a non-nil interface
	if p.output != nil {
		deps.Output = p.output
	}
	opts.MaxPerSeed = a.cfg.MaxPerSeed()
	opts.ExtractLimit = a.cfg.BatchSize()
	opts.CheckpointEvery = a.cfg.CheckpointEvery()
	opts.HaltThreshold = a.cfg.HaltThreshold()
	return orchestrator.New(deps, opts)
}
