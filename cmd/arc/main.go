// Command arc runs the idea-generation pipeline: the daily discovery lane,
// the weekly research lane and maintenance, on demand or on a schedule.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/arc-research/arc-pipeline/internal/domain"
	"github.com/arc-research/arc-pipeline/internal/pipeline"
	"github.com/arc-research/arc-pipeline/internal/platform/env"
	"github.com/arc-research/arc-pipeline/internal/platform/httpserver"
	"github.com/arc-research/arc-pipeline/internal/repo"
	repopg "github.com/arc-research/arc-pipeline/internal/repo/postgres"
)

const serviceName = "arc-pipeline"

type rootOptions struct {
	verbose    bool
	configPath string
	logger     *slog.Logger
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "arc",
		Short:         "Investment idea pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			opts.logger = newLogger(cmd.ErrOrStderr(), opts.verbose)
			return nil
		},
	}
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
	root.PersistentFlags().StringVar(&opts.configPath, "config", env.String("ARC_PIPELINE_CONFIG", ""), "pipeline tuning file (YAML)")

	novelty := &cobra.Command{Use: "novelty", Short: "Novelty state maintenance"}
	novelty.AddCommand(newNoveltyDecayCmd(opts))

	root.AddCommand(
		newRunCmd(opts),
		newStatusCmd(opts),
		newSourcesCmd(opts),
		newServeCmd(opts),
		newMigrateCmd(opts),
		novelty,
	)
	return root
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	var (
		dryRun bool
		force  bool
		asOf   string
	)
	cmd := &cobra.Command{
		Use:   "run <lane_a_daily|lane_b_weekly|maintenance>",
		Short: "Execute one pipeline run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runType, err := domain.ParseRunType(args[0])
			if err != nil {
				return err
			}
			at, err := parseAsOf(asOf)
			if err != nil {
				return fmt.Errorf("--as-of: %w", err)
			}
			a, err := openApp(cmd.Context(), opts.logger, opts.configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			return runOnce(cmd.Context(), cmd.OutOrStdout(), a.orch, runType, pipeline.RunOptions{DryRun: dryRun, Force: force, AsOf: at})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "run without persisting or notifying")
	cmd.Flags().BoolVar(&force, "force", false, "run even if this date already completed")
	cmd.Flags().StringVar(&asOf, "as-of", "", "as-of date (YYYY-MM-DD); defaults to today")
	return cmd
}

func newNoveltyDecayCmd(opts *rootOptions) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "decay",
		Short: "Drop novelty appearances that fell out of the window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts.logger, opts.configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			return runOnce(cmd.Context(), cmd.OutOrStdout(), a.orch, domain.RunMaintenance, pipeline.RunOptions{DryRun: dryRun, Force: true})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report without persisting")
	return cmd
}

type summaryView struct {
	RunID      string          `json:"run_id,omitempty"`
	RunType    domain.RunType  `json:"run_type"`
	AsOf       string          `json:"as_of"`
	Status     string          `json:"status,omitempty"`
	DryRun     bool            `json:"dry_run,omitempty"`
	Skipped    bool            `json:"skipped,omitempty"`
	SkipReason string          `json:"skip_reason,omitempty"`
	Error      string          `json:"error,omitempty"`
	Stats      domain.Metadata `json:"stats,omitempty"`
	Ideas      []ideaView      `json:"ideas,omitempty"`
	Packets    []string        `json:"packets,omitempty"`
}

type ideaView struct {
	Ticker    string  `json:"ticker"`
	Version   int     `json:"version"`
	Style     string  `json:"style"`
	Headline  string  `json:"headline"`
	Score     float64 `json:"score"`
	Threshold float64 `json:"threshold"`
}

func newSummaryView(s pipeline.Summary) summaryView {
	v := summaryView{
		RunID:      s.RunID,
		RunType:    s.Type,
		AsOf:       s.AsOf.Format(time.DateOnly),
		Status:     string(s.Status),
		DryRun:     s.DryRun,
		Skipped:    s.Skipped,
		SkipReason: s.SkipReason,
		Error:      s.Error,
		Stats:      s.Stats,
	}
	for _, idea := range s.Ideas {
		v.Ideas = append(v.Ideas, ideaView{
			Ticker:    idea.Ticker,
			Version:   idea.Version,
			Style:     string(idea.Style),
			Headline:  idea.Headline,
			Score:     idea.Score.Total,
			Threshold: idea.Threshold,
		})
	}
	for _, p := range s.Packets {
		v.Packets = append(v.Packets, p.Key)
	}
	return v
}

func runOnce(ctx context.Context, out io.Writer, r runner, runType domain.RunType, opts pipeline.RunOptions) error {
	summary, err := r.Run(ctx, runType, opts)
	if err != nil {
		return err
	}
	if err := writeIndented(out, newSummaryView(summary)); err != nil {
		return err
	}
	if summary.Status == domain.RunStatusFailed {
		return fmt.Errorf("run %s failed: %s", summary.RunID, summary.Error)
	}
	return nil
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status [type]",
		Short: "Show the latest run of each type",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			types := []domain.RunType{domain.RunLaneADaily, domain.RunLaneBWeekly, domain.RunMaintenance}
			if len(args) == 1 {
				t, err := domain.ParseRunType(args[0])
				if err != nil {
					return err
				}
				types = []domain.RunType{t}
			}
			a, err := openApp(cmd.Context(), opts.logger, opts.configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			views, err := latestRuns(cmd.Context(), a.orch, types)
			if err != nil {
				return err
			}
			return writeIndented(cmd.OutOrStdout(), views)
		},
	}
}

type statusView struct {
	RunType domain.RunType `json:"run_type"`
	Run     *runView       `json:"run,omitempty"`
}

func latestRuns(ctx context.Context, r runner, types []domain.RunType) ([]statusView, error) {
	out := make([]statusView, 0, len(types))
	for _, t := range types {
		rec, err := r.Latest(ctx, t)
		switch {
		case errors.Is(err, repo.ErrNotFound):
			out = append(out, statusView{RunType: t})
		case err != nil:
			return nil, fmt.Errorf("latest %s run: %w", t, err)
		default:
			view := newRunView(rec)
			out = append(out, statusView{RunType: t, Run: &view})
		}
	}
	return out, nil
}

func newSourcesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List data sources and their circuit state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), opts.logger, opts.configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			statuses := a.hub.Statuses()
			sort.Slice(statuses, func(i, j int) bool { return statuses[i].Source < statuses[j].Source })
			return writeIndented(cmd.OutOrStdout(), statuses)
		},
	}
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !databaseConfigured() {
				return errors.New("ARC_DATABASE_URL is required")
			}
			db, err := openDatabase(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			if err := repopg.Migrate(cmd.Context(), db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			opts.logger.Info("schema applied")
			return nil
		},
	}
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var noSchedule bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and the HTTP status surface",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := opts.logger
			httpCfg, err := httpserver.ConfigFromEnv(serviceName)
			if err != nil {
				return fmt.Errorf("invalid http config: %w", err)
			}
			a, err := openApp(ctx, logger, opts.configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			schedules, err := a.cfg.Schedule.Build()
			if err != nil {
				return err
			}
			scheduler := pipeline.NewScheduler(logger, a.orch.Run, schedules)

			api := newPipelineAPI(ctx, logger, a.orch, a.hub)
			mux := http.NewServeMux()
			mux.HandleFunc("/healthz", httpserver.Healthz(serviceName))
			mux.HandleFunc("/readyz", httpserver.ReadyzWithChecks(serviceName, a.readinessChecks()...))
			api.register(mux)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return httpserver.Run(gctx, logger, httpCfg, httpserver.Wrap(logger, serviceName, mux))
			})
			if !noSchedule {
				g.Go(func() error { return scheduler.Run(gctx) })
			}
			err = g.Wait()
			api.Wait()
			return err
		},
	}
	cmd.Flags().BoolVar(&noSchedule, "no-schedule", false, "serve HTTP only; runs start via POST /v1/runs/{type}")
	return cmd
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "arc:", err)
		stop()
		os.Exit(1)
	}
}
