package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rohmanhakim/saas-intel/internal/config"
	"github.com/rohmanhakim/saas-intel/internal/orchestrator"
	"github.com/spf13/cobra"
)

const (
	ExitOK          = 0
	ExitError       = 1
	ExitHalted      = 3
	ExitInterrupted = 130
)

var (
	cfgFile     string
	stateFile   string
	targetsFile string
	outputFile  string
	verbose     bool

	source         string
	seedQueries    []string
	seedsFile      string
	topics         []string
	minVotes       int
	maxPerSeed     int
	skipDiscovery  bool
	skipHomepages  bool
	skipExtraction bool
	renderer       string
	batch          int
	llmModel       string
)

// ErrRunHalted is returned by a command whose run ended halted.
var ErrRunHalted = errors.New("run halted")

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "saas-intel",
	Short: "A resumable SaaS market-intel collector.",
	Long: `saas-intel discovers SaaS products on SaaSHub and Product Hunt,
resolves their official homepages and extracts structured product
intelligence from them with a language model.

Every phase checkpoints its progress, so an interrupted or halted
collection resumes where it stopped without repeating finished work.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and runs it with a
// context cancelled by SIGINT or SIGTERM. It exits with the code of the
// outcome: 0 done, 1 error, 3 halted, 130 interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	code := ExitCode(err)
	if err != nil && code != ExitHalted {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
	os.Exit(code)
}

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrRunHalted), errors.Is(err, orchestrator.ErrHalted):
		return ExitHalted
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	default:
		return ExitError
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "config file path (e.g., /home/myuser/config.json)")
	rootCmd.PersistentFlags().StringVar(&stateFile, "state-file", "", "collection state file")
	rootCmd.PersistentFlags().StringVar(&targetsFile, "targets-file", "", "target store journal (JSONL)")
	rootCmd.PersistentFlags().StringVar(&outputFile, "output", "", "collected products file (JSONL)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(buildTargetsCmd, extractCmd, runCmd, statusCmd, resetCmd, exportCmd, versionCmd)
}

func addDiscoveryFlags(c *cobra.Command) {
	c.Flags().StringVar(&source, "source", "all", "discovery source: saashub, producthunt or all")
	c.Flags().StringArrayVar(&seedQueries, "seed", []string{}, "SaaSHub seed query (can be repeated)")
	c.Flags().StringVar(&seedsFile, "seeds-file", "", "SaaSHub seeds YAML file")
	c.Flags().StringArrayVar(&topics, "topic", []string{}, "Product Hunt topic (can be repeated)")
	c.Flags().IntVar(&minVotes, "min-votes", 0, "minimum Product Hunt votes")
	c.Flags().IntVar(&maxPerSeed, "max-per-seed", 0, "maximum products per seed")
	c.Flags().BoolVar(&skipHomepages, "skip-homepages", false, "skip homepage resolution")
	c.Flags().StringVar(&renderer, "renderer", "", "page renderer: http or rod")
}

func addExtractionFlags(c *cobra.Command) {
	c.Flags().IntVar(&batch, "batch", 0, "maximum products to extract in this run")
	c.Flags().StringVar(&llmModel, "llm-model", "", "extraction model")
	if c.Flags().Lookup("renderer") == nil {
		c.Flags().StringVar(&renderer, "renderer", "", "page renderer: http or rod")
	}
}

// InitConfigWithError builds the configuration from the config file when
// one is given, otherwise from defaults overridden by flags.
func InitConfigWithError() (config.Config, error) {
	if cfgFile != "" {
		cfg, err := config.WithConfigFile(cfgFile)
		if err != nil {
			return cfg, fmt.Errorf("error initializing config from file: %w", err)
		}
		return cfg, nil
	}

	configBuilder := config.WithDefault()

	if stateFile != "" {
		configBuilder = configBuilder.WithStateFile(stateFile)
	}
	if targetsFile != "" {
		configBuilder = configBuilder.WithTargetsFile(targetsFile)
	}
	if outputFile != "" {
		configBuilder = configBuilder.WithOutputFile(outputFile)
	}
	if seedsFile != "" {
		configBuilder = configBuilder.WithSeedsFile(seedsFile)
	}
	if len(seedQueries) > 0 {
		configBuilder = configBuilder.WithSeeds(seedQueries)
	}
	if len(topics) > 0 {
		configBuilder = configBuilder.WithTopics(topics)
	}
	if minVotes > 0 {
		configBuilder = configBuilder.WithMinVotes(minVotes)
	}
	if maxPerSeed > 0 {
		configBuilder = configBuilder.WithMaxPerSeed(maxPerSeed)
	}
	if renderer != "" {
		configBuilder = configBuilder.WithRenderer(renderer)
	}
	if batch > 0 {
		configBuilder = configBuilder.WithBatchSize(batch)
	}
	if llmModel != "" {
		configBuilder = configBuilder.WithLLMModel(llmModel)
	}

	return configBuilder.Build()
}

func ResetFlags() {
	cfgFile = ""
	stateFile = ""
	targetsFile = ""
	outputFile = ""
	verbose = false
	source = "all"
	seedQueries = []string{}
	seedsFile = ""
	topics = []string{}
	minVotes = 0
	maxPerSeed = 0
	skipDiscovery = false
	skipHomepages = false
	skipExtraction = false
	renderer = ""
	batch = 0
	llmModel = ""
	resetFailed = false
	resetAll = false
	resetHalt = false
	resetState = false
	sqlitePath = ""
	statusJSON = false
}

// RootCommandForTest exposes the command tree so tests can run it with
// SetArgs and captured output.
func RootCommandForTest() *cobra.Command {
	return rootCmd
}

func SetConfigFileForTest(path string) {
	cfgFile = path
}

func SetFilesForTest(state, targets, output string) {
	stateFile, targetsFile, outputFile = state, targets, output
}

func SetSourceForTest(s string) {
	source = s
}

func SetSeedsForTest(queries []string, file string) {
	seedQueries, seedsFile = queries, file
}

func SetTopicsForTest(t []string) {
	topics = t
}

func SetMinVotesForTest(v int) {
	minVotes = v
}

func SetBatchForTest(n int) {
	batch = n
}

func SetRendererForTest(name string) {
	renderer = name
}
