package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/painpoint/internal/logging"
	"github.com/ppiankov/painpoint/internal/metrics"
	"github.com/ppiankov/painpoint/internal/pipeline"
)

var metricsAddr string

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect signals from every enabled source and deliver new ones",
	Long: `Collect runs every enabled source concurrently, drops invalid and
already-sent signals, and delivers the rest in batches. Only batches the sink
accepted are recorded in the dedup ledger.

Example:
  painpoint collect --config painpoint.yaml
  PAINPOINT_SINK_WEBHOOK_URL=https://hooks.example.com/in painpoint collect`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			report := a.pipeline.Collect(ctx)
			printCollect(cmd.OutOrStdout(), report)
			return nil
		})
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Profile companies and derive tooling, insurance and compliance signals",
	Long: `Analyze looks up every company not yet analyzed (or analyzed more than
analysis.refresh_days ago) with the configured profile provider, merges
industry, size and technologies into the company row, and delivers the
derived signals through the same dedup ledger and sinks as collect.

Example:
  painpoint analyze
  PAINPOINT_ANALYSIS_PROVIDER=file PAINPOINT_ANALYSIS_URL=profiles.json painpoint analyze`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			printAnalyze(cmd.OutOrStdout(), a.pipeline.Analyze(ctx))
			return nil
		})
	},
}

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score unscored companies and admit qualified prospects",
	Long: `Score runs one pass over every company with new evidence: aggregates
its signals, computes the five EDP sub-scores and the composite pain score,
assigns a segment, and offers qualified companies to the outreach gate.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			report := a.pipeline.Score(ctx)
			printScore(cmd.OutOrStdout(), report)
			return nil
		})
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a full cycle: reset the daily budget, collect, analyze, score",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			report, err := a.pipeline.RunCycle(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Run %s\n\n", report.RunID)
			printCollect(cmd.OutOrStdout(), report.Collect)
			if report.Analyze != nil {
				fmt.Fprintln(cmd.OutOrStdout())
				printAnalyze(cmd.OutOrStdout(), report.Analyze)
			}
			if report.Score != nil {
				fmt.Fprintln(cmd.OutOrStdout())
				printScore(cmd.OutOrStdout(), report.Score)
			}
			return nil
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{collectCmd, analyzeCmd, scoreCmd, runCmd} {
		c.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics and /healthz on this address (overrides metrics.addr)")
		rootCmd.AddCommand(c)
	}
}

// withApp loads config, wires the pipeline and runs fn until it returns or
// SIGINT/SIGTERM arrives. Work in flight finishes its current unit.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("close failed", logging.Error(err))
		}
	}()

	addr := cfg.Metrics.Addr
	if metricsAddr != "" {
		addr = metricsAddr
	}
	if addr != "" {
		srvCtx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			if err := metrics.Serve(srvCtx, addr, logger); err != nil {
				logger.Error("metrics server failed", logging.Error(err))
			}
		}()
	}

	if err := fn(ctx, a); err != nil {
		return err
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		logger.Warn("interrupted, partial results committed")
	}
	return nil
}

func printCollect(w io.Writer, r *pipeline.CollectReport) {
	fmt.Fprintln(w, "Collection")
	for _, s := range r.Sources {
		if s.Err != nil {
			fmt.Fprintf(w, "  %-20s failed: %v\n", s.Source, s.Err)
			continue
		}
		fmt.Fprintf(w, "  %-20s %4d signals  %3d dropped  %s\n", s.Source, s.Collected, s.Dropped, s.Duration.Round(time.Millisecond))
	}
	fmt.Fprintf(w, "  collected %d, duplicates %d, delivered %d, failed %d, ledger %d\n",
		r.Collected, r.Duplicates, r.Delivered, r.Failed, r.LedgerSize)
}

func printAnalyze(w io.Writer, r *pipeline.AnalyzeReport) {
	fmt.Fprintln(w, "Analysis")
	fmt.Fprintf(w, "  analyzed %d (%d profiled), signals %d, duplicates %d, delivered %d, failed %d\n",
		r.Analyzed, r.Profiled, r.Signals, r.Duplicates, r.Delivered, r.Failed)
	if r.Interrupted {
		fmt.Fprintln(w, "  interrupted before every company was analyzed")
	}
}

func printScore(w io.Writer, r *pipeline.ScoreReport) {
	fmt.Fprintln(w, "Scoring")
	for _, p := range r.Prospects {
		status := "monitor"
		switch {
		case p.Admitted:
			status = "admitted"
		case p.Qualified:
			status = "deferred"
		}
		fmt.Fprintf(w, "  %-32s %5.1f  %-24s %-8s %s\n", p.Domain, p.PainScore, p.Segment, status, p.Recommendation)
	}
	fmt.Fprintf(w, "  scored %d, qualified %d, admitted %d, deferred %d, failed %d\n",
		r.Scored, r.Qualified, r.Admitted, r.Deferred, r.Failed)
	if r.Remaining >= 0 {
		fmt.Fprintf(w, "  outreach budget remaining %d\n", r.Remaining)
	}
	if r.Interrupted {
		fmt.Fprintln(w, "  interrupted before every company was scored")
	}
}
