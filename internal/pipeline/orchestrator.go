package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/arc-research/arc-pipeline/internal/config"
	"github.com/arc-research/arc-pipeline/internal/datahub"
	"github.com/arc-research/arc-pipeline/internal/domain"
	"github.com/arc-research/arc-pipeline/internal/enrich"
	"github.com/arc-research/arc-pipeline/internal/gates"
	"github.com/arc-research/arc-pipeline/internal/notify"
	"github.com/arc-research/arc-pipeline/internal/novelty"
	"github.com/arc-research/arc-pipeline/internal/platform/auditlog"
	"github.com/arc-research/arc-pipeline/internal/ranking"
	"github.com/arc-research/arc-pipeline/internal/reasoning"
	"github.com/arc-research/arc-pipeline/internal/research"
	"github.com/arc-research/arc-pipeline/internal/workflow"
)

var (
	ErrRunInProgress  = errors.New("run already in progress")
	ErrUnknownRunType = errors.New("unknown run type")
)

const auditActor = "arc-pipeline"

// Hub is the part of the data hub a run uses.
type Hub interface {
	enrich.Hub
	Universe(ctx context.Context, filter map[string]string) datahub.Result
	Cache() *datahub.Cache
}

type Options struct {
	Logger   *slog.Logger
	Config   config.Pipeline
	Hub      Hub
	Router   reasoning.Router
	Repos    Repos
	Notifier notify.Notifier
	// Universe overrides the source derived from Config.
	Universe UniverseSource
	// Rand drives exploration sampling; nil seeds from the clock.
	Rand *rand.Rand
}

type RunOptions struct {
	DryRun bool
	// Force bypasses the already-ran-today guard.
	Force bool
	AsOf  time.Time
}

// Summary is the outcome of one Run call.
type Summary struct {
	RunID      string
	Type       domain.RunType
	AsOf       time.Time
	Status     domain.RunStatus
	DryRun     bool
	Skipped    bool
	SkipReason string
	Error      string
	Result     workflow.RunResult
	Stats      domain.Metadata
	Ideas      []domain.Idea
	Packets    []domain.PacketRef
}

type Orchestrator struct {
	logger     *slog.Logger
	cfg        config.Pipeline
	cfgHash    string
	hub        Hub
	router     reasoning.Router
	repos      Repos
	notifier   notify.Notifier
	universe   UniverseSource
	novelty    *novelty.Engine
	gates      *gates.Engine
	scorer     *ranking.Scorer
	enricher   *enrich.Enricher
	researcher *research.Researcher
	now        func() time.Time

	mu      sync.Mutex
	running map[domain.RunType]bool
}

func New(opts Options) (*Orchestrator, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Hub == nil {
		return nil, errors.New("hub is required")
	}
	if err := opts.Repos.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	hash, err := opts.Config.Hash()
	if err != nil {
		return nil, err
	}

	universe := opts.Universe
	if universe == nil {
		if len(opts.Config.Universe.Tickers) > 0 {
			universe = StaticUniverse(opts.Config.Universe.Tickers)
		} else {
			universe = NewScreenerUniverse(opts.Hub, opts.Config.Universe.Screener)
		}
	}

	discovery := opts.Router.For(reasoning.LaneDiscovery)
	discovery.Temperature = opts.Config.Enrichment.Temperature
	discovery.MaxTokens = opts.Config.Enrichment.MaxTokens
	deep := opts.Router.For(reasoning.LaneResearch)
	deep.Temperature = opts.Config.Research.Temperature
	deep.MaxTokens = opts.Config.Research.MaxTokens

	return &Orchestrator{
		logger:     opts.Logger,
		cfg:        opts.Config,
		cfgHash:    hash,
		hub:        opts.Hub,
		router:     opts.Router,
		repos:      opts.Repos,
		notifier:   opts.Notifier,
		universe:   universe,
		novelty:    novelty.NewEngine(opts.Config.Novelty, opts.Rand),
		gates:      gates.NewEngine(opts.Config.Gates),
		scorer:     ranking.NewScorer(opts.Config.Ranking.Weights),
		enricher:   enrich.New(opts.Logger, opts.Hub, discovery, opts.Config.Batch),
		researcher: research.New(opts.Logger, opts.Hub, deep, opts.Config.Batch),
		now:        time.Now,
		running:    map[domain.RunType]bool{},
	}, nil
}

// ConfigHash is the SHA-256 of the effective pipeline configuration.
func (o *Orchestrator) ConfigHash() string { return o.cfgHash }

func (o *Orchestrator) acquire(runType domain.RunType) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running[runType] {
		return false
	}
	o.running[runType] = true
	return true
}

func (o *Orchestrator) release(runType domain.RunType) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.running, runType)
}

// Running lists the run types currently executing.
func (o *Orchestrator) Running() []domain.RunType {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]domain.RunType, 0, len(o.running))
	for t := range o.running {
		out = append(out, t)
	}
	return out
}

// Latest returns the most recent run record of the type.
func (o *Orchestrator) Latest(ctx context.Context, runType domain.RunType) (domain.RunRecord, error) {
	return o.repos.Runs.Latest(ctx, runType)
}

func (o *Orchestrator) steps(runType domain.RunType, repos Repos) ([]workflow.Step[*RunContext], error) {
	switch runType {
	case domain.RunLaneADaily:
		return o.laneASteps(repos), nil
	case domain.RunLaneBWeekly:
		return o.laneBSteps(repos), nil
	case domain.RunMaintenance:
		return o.maintenanceSteps(repos), nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownRunType, runType)
	}
}

// Run executes one run of the given type. A run that already completed for
// the as-of date is skipped without error unless Force is set. A returned
// error means the run could not be started or recorded; step failures are
// reported through Summary.Status.
func (o *Orchestrator) Run(ctx context.Context, runType domain.RunType, opts RunOptions) (Summary, error) {
	asOf := opts.AsOf
	if asOf.IsZero() {
		asOf = o.now()
	}
	asOf = asOf.UTC()
	summary := Summary{Type: runType, AsOf: asOf, DryRun: opts.DryRun}

	repos := o.repos
	if opts.DryRun {
		repos = scratchRepos(ctx, o.logger, o.repos, asOf)
	}
	steps, err := o.steps(runType, repos)
	if err != nil {
		return summary, err
	}

	if !o.acquire(runType) {
		return summary, fmt.Errorf("%s: %w", runType, ErrRunInProgress)
	}
	defer o.release(runType)

	logger := o.logger.With("run_type", runType, "as_of", asOf.Format(time.DateOnly), "dry_run", opts.DryRun)
	if !opts.Force && !opts.DryRun {
		exists, err := repos.Runs.ExistsForDate(ctx, runType, asOf)
		if err != nil {
			return summary, fmt.Errorf("check idempotency: %w", err)
		}
		if exists {
			logger.Info("run already completed for date; skipping")
			summary.Skipped = true
			summary.SkipReason = "already completed for " + asOf.Format(time.DateOnly)
			summary.Status = domain.RunStatusCompleted
			return summary, nil
		}
	}

	rec, err := repos.Runs.Create(ctx, runType, asOf, domain.RunStatusRunning)
	if err != nil {
		return summary, fmt.Errorf("create run record: %w", err)
	}
	summary.RunID = rec.ID
	logger = logger.With("run_id", rec.ID)
	logger.Info("run started", "config_sha256", o.cfgHash)
	o.audit(ctx, repos, logger, auditlog.Event{
		Action: auditlog.ActionRunStarted, ResourceType: "run", ResourceID: rec.ID, RunID: rec.ID,
		Payload: map[string]any{"run_type": runType, "as_of": asOf.Format(time.DateOnly), "dry_run": opts.DryRun, "config_sha256": o.cfgHash},
	})

	rc := &RunContext{RunID: rec.ID, Type: runType, AsOf: asOf, DryRun: opts.DryRun}
	runner := workflow.NewRunner[*RunContext](logger, NewRecorder(repos.Steps, logger))
	if err := runner.Register(steps...); err != nil {
		return summary, o.finishBroken(ctx, repos, logger, rec.ID, err)
	}
	result, err := runner.Run(ctx, rec.ID, rc)
	if err != nil {
		return summary, o.finishBroken(ctx, repos, logger, rec.ID, err)
	}

	summary.Result = result
	if result.Abandoned {
		// A step may still be writing rc.
		summary.Stats = domain.Metadata{"dry_run": opts.DryRun, "abandoned": true}
	} else {
		summary.Ideas = rc.Promoted()
		summary.Packets = rc.PacketRefs
		summary.Stats = rc.Stats()
	}
	summary.Stats["config_sha256"] = o.cfgHash
	summary.Stats["duration_ms"] = result.DurationMs()
	summary.Stats["steps_completed"] = len(result.Completed)
	if len(result.BestEffortFailures) > 0 {
		failed := make([]string, 0, len(result.BestEffortFailures))
		for _, f := range result.BestEffortFailures {
			failed = append(failed, f.StepID)
		}
		summary.Stats["best_effort_failures"] = failed
	}

	summary.Status = domain.RunStatusCompleted
	action := auditlog.ActionRunCompleted
	if first, failed := result.FirstFailure(); failed {
		summary.Status = domain.RunStatusFailed
		summary.Error = fmt.Sprintf("step %s failed after %d attempt(s): %s", first.StepID, first.Attempts, first.Message)
		summary.Stats["failed_step"] = first.StepID
		action = auditlog.ActionRunFailed
	}

	bg := context.WithoutCancel(ctx)
	if err := repos.Runs.UpdateStatus(bg, rec.ID, summary.Status, summary.Error, summary.Stats); err != nil {
		return summary, fmt.Errorf("update run record: %w", err)
	}
	o.audit(bg, repos, logger, auditlog.Event{
		Action: action, ResourceType: "run", ResourceID: rec.ID, RunID: rec.ID, Payload: summary.Stats,
	})
	if summary.Status == domain.RunStatusFailed {
		logger.Error("run failed", "error", summary.Error, "duration_ms", result.DurationMs())
	} else {
		logger.Info("run completed", "duration_ms", result.DurationMs(), "promoted", len(summary.Ideas), "packets", len(summary.Packets))
	}
	return summary, nil
}

// finishBroken marks a run failed when its workflow could not be planned.
func (o *Orchestrator) finishBroken(ctx context.Context, repos Repos, logger *slog.Logger, runID string, cause error) error {
	bg := context.WithoutCancel(ctx)
	logger.Error("run could not start", "error", cause)
	if err := repos.Runs.UpdateStatus(bg, runID, domain.RunStatusFailed, cause.Error(), domain.Metadata{"config_sha256": o.cfgHash}); err != nil {
		return errors.Join(cause, fmt.Errorf("update run record: %w", err))
	}
	o.audit(bg, repos, logger, auditlog.Event{
		Action: auditlog.ActionRunFailed, ResourceType: "run", ResourceID: runID, RunID: runID,
		Payload: map[string]any{"error": cause.Error()},
	})
	return cause
}

func (o *Orchestrator) audit(ctx context.Context, repos Repos, logger *slog.Logger, event auditlog.Event) {
	event.Actor = auditActor
	if event.OccurredAt.IsZero() {
		event.OccurredAt = o.now().UTC()
	}
	if err := repos.Audit.Append(ctx, event); err != nil {
		logger.Warn("audit append failed", "action", event.Action, "error", err)
	}
}
