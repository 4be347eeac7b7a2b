package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rohmanhakim/saas-intel/internal/product"
	"github.com/rohmanhakim/saas-intel/pkg/limiter"
)

// SourceOpenAI is the rate-limit key of the extraction model API.
const SourceOpenAI = "openai"

// PriorityTopics are the Product Hunt topics queried when none are given.
var PriorityTopics = []string{
	"saas", "developer-tools", "productivity", "marketing", "analytics",
	"artificial-intelligence", "design-tools", "no-code", "automation", "api",
	"sales", "project-management", "customer-support", "collaboration",
	"finance", "email", "crm", "data-visualization", "security", "infrastructure",
}

type Config struct {
	//===============
	// Files
	//===============
	// Collection state document (JSON)
	stateFile string
	// Target store journal (JSONL)
	targetsFile string
	// Collected products (JSONL, append-only)
	outputFile string
	// SaaSHub seed queries (YAML)
	seedsFile string

	//===============
	// Discovery
	//===============
	seeds      []string
	topics     []string
	minVotes   int
	maxPerSeed int

	//===============
	// Homepage resolution
	//===============
	// Parallel resolutions in flight
	homepageConcurrency int
	// Pause between two dispatches of the resolution batch
	homepageDispatchDelay time.Duration
	// "http" (colly) or "rod" (headless Chrome)
	renderer string
	// Whether the colly renderer obeys robots.txt
	respectRobots bool

	//===============
	// Extraction
	//===============
	// Maximum products extracted per run
	batchSize  int
	llmModel   string
	llmBaseURL string

	//===============
	// Orchestration
	//===============
	checkpointEvery int
	// Consecutive rate-limited extraction failures before halting
	haltThreshold int
	// Rate-limit retries per call inside limiter.Execute
	maxRetries int

	//===============
	// Transport
	//===============
	timeout   time.Duration
	userAgent string
	// Transient network retry: attempts, jitter and exponential backoff
	maxAttempt             int
	jitter                 time.Duration
	randomSeed             int64
	backoffInitialDuration time.Duration
	backoffMultiplier      float64
	backoffMaxDuration     time.Duration

	saashubBaseURL     string
	producthuntBaseURL string

	//===============
	// Rate limits
	//===============
	rateLimits map[string]limiter.Config
}

type rateLimitDTO struct {
	RequestsPerPeriod int           `json:"requestsPerPeriod,omitempty"`
	Period            time.Duration `json:"period,omitempty"`
	DefaultRetryDelay time.Duration `json:"defaultRetryDelay,omitempty"`
	MaxRetryDelay     time.Duration `json:"maxRetryDelay,omitempty"`
	BackoffMultiplier float64       `json:"backoffMultiplier,omitempty"`
}

type configDTO struct {
	StateFile              string                  `json:"stateFile,omitempty"`
	TargetsFile            string                  `json:"targetsFile,omitempty"`
	OutputFile             string                  `json:"outputFile,omitempty"`
	SeedsFile              string                  `json:"seedsFile,omitempty"`
	Seeds                  []string                `json:"seeds,omitempty"`
	Topics                 []string                `json:"topics,omitempty"`
	MinVotes               int                     `json:"minVotes,omitempty"`
	MaxPerSeed             int                     `json:"maxPerSeed,omitempty"`
	HomepageConcurrency    int                     `json:"homepageConcurrency,omitempty"`
	HomepageDispatchDelay  time.Duration           `json:"homepageDispatchDelay,omitempty"`
	Renderer               string                  `json:"renderer,omitempty"`
	RespectRobots          *bool                   `json:"respectRobots,omitempty"`
	BatchSize              int                     `json:"batchSize,omitempty"`
	LLMModel               string                  `json:"llmModel,omitempty"`
	LLMBaseURL             string                  `json:"llmBaseUrl,omitempty"`
	CheckpointEvery        int                     `json:"checkpointEvery,omitempty"`
	HaltThreshold          int                     `json:"haltThreshold,omitempty"`
	MaxRetries             int                     `json:"maxRetries,omitempty"`
	Timeout                time.Duration           `json:"timeout,omitempty"`
	UserAgent              string                  `json:"userAgent,omitempty"`
	MaxAttempt             int                     `json:"maxAttempt,omitempty"`
	Jitter                 time.Duration           `json:"jitter,omitempty"`
	RandomSeed             int64                   `json:"randomSeed,omitempty"`
	BackoffInitialDuration time.Duration           `json:"backoffInitialDuration,omitempty"`
	BackoffMultiplier      float64                 `json:"backoffMultiplier,omitempty"`
	BackoffMaxDuration     time.Duration           `json:"backoffMaxDuration,omitempty"`
	SaaSHubBaseURL         string                  `json:"saashubBaseUrl,omitempty"`
	ProductHuntBaseURL     string                  `json:"producthuntBaseUrl,omitempty"`
	RateLimits             map[string]rateLimitDTO `json:"rateLimits,omitempty"`
}

func newConfigFromDTO(dto configDTO) (Config, error) {
	cfg := WithDefault()

	setString := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, v int) {
		if v != 0 {
			*dst = v
		}
	}
	setDuration := func(dst *time.Duration, v time.Duration) {
		if v != 0 {
			*dst = v
		}
	}

	setString(&cfg.stateFile, dto.StateFile)
	setString(&cfg.targetsFile, dto.TargetsFile)
	setString(&cfg.outputFile, dto.OutputFile)
	setString(&cfg.seedsFile, dto.SeedsFile)
	if len(dto.Seeds) > 0 {
		cfg.seeds = dto.Seeds
	}
	if len(dto.Topics) > 0 {
		cfg.topics = dto.Topics
	}
	setInt(&cfg.minVotes, dto.MinVotes)
	setInt(&cfg.maxPerSeed, dto.MaxPerSeed)
	setInt(&cfg.homepageConcurrency, dto.HomepageConcurrency)
	setDuration(&cfg.homepageDispatchDelay, dto.HomepageDispatchDelay)
	setString(&cfg.renderer, dto.Renderer)
	if dto.RespectRobots != nil {
		cfg.respectRobots = *dto.RespectRobots
	}
	setInt(&cfg.batchSize, dto.BatchSize)
	setString(&cfg.llmModel, dto.LLMModel)
	setString(&cfg.llmBaseURL, dto.LLMBaseURL)
	setInt(&cfg.checkpointEvery, dto.CheckpointEvery)
	setInt(&cfg.haltThreshold, dto.HaltThreshold)
	setInt(&cfg.maxRetries, dto.MaxRetries)
	setDuration(&cfg.timeout, dto.Timeout)
	setString(&cfg.userAgent, dto.UserAgent)
	setInt(&cfg.maxAttempt, dto.MaxAttempt)
	setDuration(&cfg.jitter, dto.Jitter)
	if dto.RandomSeed != 0 {
		cfg.randomSeed = dto.RandomSeed
	}
	setDuration(&cfg.backoffInitialDuration, dto.BackoffInitialDuration)
	if dto.BackoffMultiplier != 0 {
		cfg.backoffMultiplier = dto.BackoffMultiplier
	}
	setDuration(&cfg.backoffMaxDuration, dto.BackoffMaxDuration)
	setString(&cfg.saashubBaseURL, dto.SaaSHubBaseURL)
	setString(&cfg.producthuntBaseURL, dto.ProductHuntBaseURL)

	// A partial override keeps the remaining defaults of that source.
	for source, rl := range dto.RateLimits {
		current := cfg.rateLimits[source]
		if rl.RequestsPerPeriod != 0 {
			current.RequestsPerPeriod = rl.RequestsPerPeriod
		}
		if rl.Period != 0 {
			current.Period = rl.Period
		}
		if rl.DefaultRetryDelay != 0 {
			current.DefaultRetryDelay = rl.DefaultRetryDelay
		}
		if rl.MaxRetryDelay != 0 {
			current.MaxRetryDelay = rl.MaxRetryDelay
		}
		if rl.BackoffMultiplier != 0 {
			current.BackoffMultiplier = rl.BackoffMultiplier
		}
		cfg.rateLimits[source] = current
	}

	return cfg.Build()
}

func WithConfigFile(path string) (Config, error) {
	_, err := os.Stat(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrFileDoesNotExist, err.Error())
	}
	configContent, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrReadConfigFail, err.Error())
	}
	cfgDTO := configDTO{}

	err = json.Unmarshal(configContent, &cfgDTO)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrConfigParsingFail, err.Error())
	}

	return newConfigFromDTO(cfgDTO)
}

// DefaultRateLimits returns the per-source budgets. Min spacing is derived
// from the budget, e.g. SaaSHub's 5 per minute gives 12s between calls.
func DefaultRateLimits() map[string]limiter.Config {
	return map[string]limiter.Config{
		string(product.SourceProductHunt): {
			RequestsPerPeriod: 500,
			Period:            15 * time.Minute,
			DefaultRetryDelay: 15 * time.Minute,
			MaxRetryDelay:     time.Hour,
			BackoffMultiplier: 2.0,
		},
		SourceOpenAI: {
			RequestsPerPeriod: 60,
			Period:            time.Minute,
			DefaultRetryDelay: time.Minute,
			MaxRetryDelay:     5 * time.Minute,
			BackoffMultiplier: 2.0,
		},
		string(product.SourceSaaSHub): {
			RequestsPerPeriod: 5,
			Period:            time.Minute,
			DefaultRetryDelay: time.Minute,
			MaxRetryDelay:     10 * time.Minute,
			BackoffMultiplier: 2.0,
		},
	}
}

// WithDefault creates a Config with every field at its default value.
func WithDefault() *Config {
	return &Config{
		stateFile:              "data/market_intel_state.json",
		targetsFile:            "data/targets.jsonl",
		outputFile:             "data/market_intel_products.jsonl",
		seedsFile:              "configs/market_intel_seeds.yml",
		topics:                 append([]string(nil), PriorityTopics...),
		minVotes:               20,
		maxPerSeed:             50,
		homepageConcurrency:    3,
		homepageDispatchDelay:  500 * time.Millisecond,
		renderer:               "http",
		respectRobots:          false,
		batchSize:              5,
		llmModel:               "gpt-4o",
		llmBaseURL:             "https://api.openai.com/v1",
		checkpointEvery:        10,
		haltThreshold:          3,
		maxRetries:             3,
		timeout:                30 * time.Second,
		userAgent:              "saas-intel/1.0",
		maxAttempt:             3,
		jitter:                 250 * time.Millisecond,
		randomSeed:             time.Now().UnixNano(),
		backoffInitialDuration: time.Second,
		backoffMultiplier:      2.0,
		backoffMaxDuration:     30 * time.Second,
		saashubBaseURL:         "https://www.saashub.com/api",
		producthuntBaseURL:     "https://api.producthunt.com/v2/api/graphql",
		rateLimits:             DefaultRateLimits(),
	}
}

func (c *Config) WithStateFile(path string) *Config {
	c.stateFile = path
	return c
}

func (c *Config) WithTargetsFile(path string) *Config {
	c.targetsFile = path
	return c
}

func (c *Config) WithOutputFile(path string) *Config {
	c.outputFile = path
	return c
}

func (c *Config) WithSeedsFile(path string) *Config {
	c.seedsFile = path
	return c
}

func (c *Config) WithSeeds(seeds []string) *Config {
	c.seeds = seeds
	return c
}

func (c *Config) WithTopics(topics []string) *Config {
	c.topics = topics
	return c
}

func (c *Config) WithMinVotes(v int) *Config {
	c.minVotes = v
	return c
}

func (c *Config) WithMaxPerSeed(n int) *Config {
	c.maxPerSeed = n
	return c
}

func (c *Config) WithHomepageConcurrency(n int) *Config {
	c.homepageConcurrency = n
	return c
}

func (c *Config) WithHomepageDispatchDelay(d time.Duration) *Config {
	c.homepageDispatchDelay = d
	return c
}

func (c *Config) WithRenderer(name string) *Config {
	c.renderer = name
	return c
}

func (c *Config) WithRespectRobots(v bool) *Config {
	c.respectRobots = v
	return c
}

func (c *Config) WithBatchSize(n int) *Config {
	c.batchSize = n
	return c
}

func (c *Config) WithLLMModel(model string) *Config {
	c.llmModel = model
	return c
}

func (c *Config) WithLLMBaseURL(u string) *Config {
	c.llmBaseURL = u
	return c
}

func (c *Config) WithCheckpointEvery(n int) *Config {
	c.checkpointEvery = n
	return c
}

func (c *Config) WithHaltThreshold(n int) *Config {
	c.haltThreshold = n
	return c
}

func (c *Config) WithMaxRetries(n int) *Config {
	c.maxRetries = n
	return c
}

func (c *Config) WithTimeout(d time.Duration) *Config {
	c.timeout = d
	return c
}

func (c *Config) WithUserAgent(agent string) *Config {
	c.userAgent = agent
	return c
}

func (c *Config) WithMaxAttempt(n int) *Config {
	c.maxAttempt = n
	return c
}

func (c *Config) WithRandomSeed(seed int64) *Config {
	c.randomSeed = seed
	return c
}

func (c *Config) WithSaaSHubBaseURL(u string) *Config {
	c.saashubBaseURL = u
	return c
}

func (c *Config) WithProductHuntBaseURL(u string) *Config {
	c.producthuntBaseURL = u
	return c
}

func (c *Config) WithRateLimit(source string, rl limiter.Config) *Config {
	if c.rateLimits == nil {
		c.rateLimits = map[string]limiter.Config{}
	}
	c.rateLimits[source] = rl
	return c
}

func (c *Config) Build() (Config, error) {
	switch {
	case c.stateFile == "":
		return Config{}, fmt.Errorf("%w: stateFile cannot be empty", ErrInvalidConfig)
	case c.targetsFile == "":
		return Config{}, fmt.Errorf("%w: targetsFile cannot be empty", ErrInvalidConfig)
	case c.outputFile == "":
		return Config{}, fmt.Errorf("%w: outputFile cannot be empty", ErrInvalidConfig)
	case c.batchSize < 0:
		return Config{}, fmt.Errorf("%w: batchSize must not be negative", ErrInvalidConfig)
	case c.homepageConcurrency < 1:
		return Config{}, fmt.Errorf("%w: homepageConcurrency must be at least 1", ErrInvalidConfig)
	case c.checkpointEvery < 1:
		return Config{}, fmt.Errorf("%w: checkpointEvery must be at least 1", ErrInvalidConfig)
	case c.haltThreshold < 1:
		return Config{}, fmt.Errorf("%w: haltThreshold must be at least 1", ErrInvalidConfig)
	case c.renderer != "http" && c.renderer != "rod":
		return Config{}, fmt.Errorf("%w: unknown renderer %q", ErrInvalidConfig, c.renderer)
	}
	return *c, nil
}

func (c Config) StateFile() string   { return c.stateFile }
func (c Config) TargetsFile() string { return c.targetsFile }
func (c Config) OutputFile() string  { return c.outputFile }
func (c Config) SeedsFile() string   { return c.seedsFile }

func (c Config) Seeds() []string {
	return append([]string(nil), c.seeds...)
}

func (c Config) Topics() []string {
	return append([]string(nil), c.topics...)
}

func (c Config) MinVotes() int                         { return c.minVotes }
func (c Config) MaxPerSeed() int                       { return c.maxPerSeed }
func (c Config) HomepageConcurrency() int              { return c.homepageConcurrency }
func (c Config) HomepageDispatchDelay() time.Duration  { return c.homepageDispatchDelay }
func (c Config) Renderer() string                      { return c.renderer }
func (c Config) RespectRobots() bool                   { return c.respectRobots }
func (c Config) BatchSize() int                        { return c.batchSize }
func (c Config) LLMModel() string                      { return c.llmModel }
func (c Config) LLMBaseURL() string                    { return c.llmBaseURL }
func (c Config) CheckpointEvery() int                  { return c.checkpointEvery }
func (c Config) HaltThreshold() int                    { return c.haltThreshold }
func (c Config) MaxRetries() int                       { return c.maxRetries }
func (c Config) Timeout() time.Duration                { return c.timeout }
func (c Config) UserAgent() string                     { return c.userAgent }
func (c Config) MaxAttempt() int                       { return c.maxAttempt }
func (c Config) Jitter() time.Duration                 { return c.jitter }
func (c Config) RandomSeed() int64                     { return c.randomSeed }
func (c Config) BackoffInitialDuration() time.Duration { return c.backoffInitialDuration }
func (c Config) BackoffMultiplier() float64            { return c.backoffMultiplier }
func (c Config) BackoffMaxDuration() time.Duration     { return c.backoffMaxDuration }
func (c Config) SaaSHubBaseURL() string                { return c.saashubBaseURL }
func (c Config) ProductHuntBaseURL() string            { return c.producthuntBaseURL }

func (c Config) RateLimits() map[string]limiter.Config {
	out := make(map[string]limiter.Config, len(c.rateLimits))
	for k, v := range c.rateLimits {
		out[k] = v
	}
	return out
}
