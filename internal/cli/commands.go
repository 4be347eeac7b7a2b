package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/rohmanhakim/saas-intel/internal/build"
	"github.com/rohmanhakim/saas-intel/internal/config"
	"github.com/rohmanhakim/saas-intel/internal/export"
	"github.com/rohmanhakim/saas-intel/internal/orchestrator"
	"github.com/rohmanhakim/saas-intel/internal/product"
	"github.com/rohmanhakim/saas-intel/internal/state"
	"github.com/rohmanhakim/saas-intel/internal/store"
	"github.com/spf13/cobra"
)

var (
	resetFailed bool
	resetAll    bool
	resetHalt   bool
	resetState  bool
	sqlitePath  string
	statusJSON  bool
)

var buildTargetsCmd = &cobra.Command{
	Use:   "build-targets",
	Short: "Discover products and resolve their homepages.",
	RunE: func(c *cobra.Command, args []string) error {
		return runPhases(c, orchestrator.Options{SkipHomepages: skipHomepages, SkipExtraction: true})
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract product intelligence from resolved homepages.",
	RunE: func(c *cobra.Command, args []string) error {
		return runPhases(c, orchestrator.Options{SkipDiscovery: true, SkipHomepages: true})
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run discovery, homepage resolution and extraction.",
	RunE: func(c *cobra.Command, args []string) error {
		return runPhases(c, orchestrator.Options{
			SkipDiscovery:  skipDiscovery,
			SkipHomepages:  skipHomepages,
			SkipExtraction: skipExtraction,
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show collection progress.",
	RunE: func(c *cobra.Command, args []string) error {
		a, err := loadApp(c)
		if err != nil {
			return err
		}
		return printStatus(c.OutOrStdout(), a.state.Summary(), a.store.Stats(), statusJSON)
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset failed or all targets, clear a halt, or delete the state.",
	RunE: func(c *cobra.Command, args []string) error {
		selected := 0
		for _, f := range []bool{resetFailed, resetAll, resetHalt, resetState} {
			if f {
				selected++
			}
		}
		if selected != 1 {
			return fmt.Errorf("%w: choose exactly one of --failed, --all, --halt, --state", config.ErrInvalidConfig)
		}
		out := c.OutOrStdout()

		cfg, err := InitConfigWithError()
		if err != nil {
			return err
		}
		if resetState {
			if err := os.Remove(cfg.StateFile()); err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			fmt.Fprintf(out, "State file removed: %s\n", cfg.StateFile())
			return nil
		}

		a, err := openApp(cfg, c.ErrOrStderr())
		if err != nil {
			return err
		}
		switch {
		case resetHalt:
			a.state.ClearHalt()
			if err := a.state.Save(cfg.StateFile(), time.Now()); err != nil {
				return err
			}
			fmt.Fprintln(out, "Halt cleared")
		case resetFailed:
			n, err := a.store.ResetFailed()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Reset %d failed targets to pending\n", n)
		case resetAll:
			n, err := a.store.ResetAll()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Reset %d targets to pending\n", n)
		}
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export targets and the run summary to SQLite.",
	RunE: func(c *cobra.Command, args []string) error {
		if sqlitePath == "" {
			return fmt.Errorf("%w: --sqlite is required", config.ErrInvalidConfig)
		}
		a, err := loadApp(c)
		if err != nil {
			return err
		}
		db, err := export.OpenSQLite(sqlitePath, a.recorder)
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := db.ExportTargets(a.store.List(nil, 0), time.Now())
		if err != nil {
			return err
		}
		if err := db.ExportRun(a.state.Summary()); err != nil {
			return err
		}
		fmt.Fprintf(c.OutOrStdout(), "Exported %d targets to %s\n", n, sqlitePath)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version.",
	Run: func(c *cobra.Command, args []string) {
		fmt.Fprintf(c.OutOrStdout(), "saas-intel %s (built %s)\n", build.FullVersion(), build.BuildTime)
	},
}

func init() {
	rootCmd.PersistentPreRunE = func(c *cobra.Command, args []string) error {
		return config.LoadDotEnv()
	}

	addDiscoveryFlags(buildTargetsCmd)
	addExtractionFlags(extractCmd)
	addDiscoveryFlags(runCmd)
	addExtractionFlags(runCmd)
	runCmd.Flags().BoolVar(&skipDiscovery, "skip-discovery", false, "skip discovery")
	runCmd.Flags().BoolVar(&skipExtraction, "skip-extraction", false, "skip extraction")

	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print status as JSON")

	resetCmd.Flags().BoolVar(&resetFailed, "failed", false, "return failed targets to pending")
	resetCmd.Flags().BoolVar(&resetAll, "all", false, "return every target to pending")
	resetCmd.Flags().BoolVar(&resetHalt, "halt", false, "clear a halted state")
	resetCmd.Flags().BoolVar(&resetState, "state", false, "delete the state file")

	exportCmd.Flags().StringVar(&sqlitePath, "sqlite", "", "SQLite database path")
}

func loadApp(c *cobra.Command) (*app, error) {
	cfg, err := InitConfigWithError()
	if err != nil {
		return nil, err
	}
	return openApp(cfg, c.ErrOrStderr())
}

func runPhases(c *cobra.Command, opts orchestrator.Options) error {
	a, err := loadApp(c)
	if err != nil {
		return err
	}
	p, err := a.buildPipeline(opts, source)
	if err != nil {
		return err
	}
	defer p.Close()

	res, runErr := a.orchestrator(p, opts).Run(c.Context())
	printResult(c.OutOrStdout(), res)
	if runErr != nil {
		return runErr
	}
	if res.Halted {
		return fmt.Errorf("%w: %s", ErrRunHalted, res.HaltReason)
	}
	return nil
}

func printResult(w io.Writer, res orchestrator.Result) {
	t := res.Summary.Totals
	switch {
	case res.Halted:
		fmt.Fprintf(w, "Halted: %s\n", res.HaltReason)
		fmt.Fprintln(w, "Clear the halt with: saas-intel reset --halt")
	case res.Interrupted:
		fmt.Fprintln(w, "Interrupted; progress saved")
	default:
		fmt.Fprintf(w, "Phase: %s\n", res.Phase)
	}
	fmt.Fprintf(w, "Discovered: %d  Resolved: %d  Extracted: %d  Failed: %d  Merged: %d  Written: %d\n",
		t.Discovered, t.Resolved, t.Extracted, t.Failed, t.Merged, res.Written)
}

func printStatus(w io.Writer, summary state.Summary, stats store.Stats, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			State   state.Summary `json:"state"`
			Targets store.Stats   `json:"targets"`
		}{summary, stats})
	}

	fmt.Fprintf(w, "Run:              %s\n", summary.RunID)
	fmt.Fprintf(w, "Phase:            %s\n", summary.Phase)
	if summary.Halted {
		fmt.Fprintf(w, "Halted:           %s\n", summary.HaltReason)
	}
	fmt.Fprintf(w, "Seeds processed:  %d\n", summary.SeedsProcessed)
	fmt.Fprintf(w, "Rate-limit streak: %d\n", summary.ConsecutiveRateLimitFailures)
	fmt.Fprintf(w, "Targets:          %d total, %d pending, %d completed, %d failed, %d without homepage\n",
		stats.Total, stats.Pending, stats.Completed, stats.Failed, stats.NoHomepage)

	sources := make([]string, 0, len(stats.PerSource))
	for src := range stats.PerSource {
		sources = append(sources, string(src))
	}
	sort.Strings(sources)
	for _, src := range sources {
		fmt.Fprintf(w, "  %-14s  %d\n", src, stats.PerSource[product.Source(src)])
	}

	t := summary.Totals
	fmt.Fprintf(w, "Totals:           %d discovered, %d resolved, %d extracted, %d failed, %d merged\n",
		t.Discovered, t.Resolved, t.Extracted, t.Failed, t.Merged)
	return nil
}
