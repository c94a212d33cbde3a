package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/arc-research/arc-pipeline/internal/datahub"
	"github.com/arc-research/arc-pipeline/internal/domain"
	"github.com/arc-research/arc-pipeline/internal/pipeline"
	"github.com/arc-research/arc-pipeline/internal/platform/httpserver"
	"github.com/arc-research/arc-pipeline/internal/repo"
)

type runner interface {
	Run(ctx context.Context, runType domain.RunType, opts pipeline.RunOptions) (pipeline.Summary, error)
	Latest(ctx context.Context, runType domain.RunType) (domain.RunRecord, error)
	Running() []domain.RunType
}

type sourceLister interface {
	Statuses() []datahub.SourceStatus
}

type pipelineAPI struct {
	logger  *slog.Logger
	runs    runner
	sources sourceLister
	// base outlives the request that triggered a run.
	base context.Context
	wg   sync.WaitGroup
}

func newPipelineAPI(base context.Context, logger *slog.Logger, runs runner, sources sourceLister) *pipelineAPI {
	return &pipelineAPI{logger: logger, runs: runs, sources: sources, base: base}
}

func (api *pipelineAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/runs/{type}/latest", api.handleLatestRun)
	mux.HandleFunc("POST /v1/runs/{type}", api.handleTriggerRun)
	mux.HandleFunc("GET /v1/sources", api.handleSources)
}

// Wait blocks until runs triggered over HTTP have finished.
func (api *pipelineAPI) Wait() { api.wg.Wait() }

type runView struct {
	RunID     string          `json:"run_id"`
	RunType   domain.RunType  `json:"run_type"`
	AsOf      string          `json:"as_of"`
	Status    string          `json:"status"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   *time.Time      `json:"ended_at,omitempty"`
	Error     string          `json:"error,omitempty"`
	Stats     domain.Metadata `json:"stats,omitempty"`
}

func newRunView(rec domain.RunRecord) runView {
	return runView{
		RunID:     rec.ID,
		RunType:   rec.Type,
		AsOf:      rec.AsOf.Format(time.DateOnly),
		Status:    string(rec.Status),
		StartedAt: rec.StartedAt,
		EndedAt:   rec.EndedAt,
		Error:     rec.Error,
		Stats:     rec.Stats,
	}
}

type triggerRunRequest struct {
	DryRun bool   `json:"dry_run"`
	Force  bool   `json:"force"`
	AsOf   string `json:"as_of"`
}

func (api *pipelineAPI) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	runType, err := domain.ParseRunType(r.PathValue("type"))
	if err != nil {
		httpserver.WriteError(w, r, http.StatusNotFound, "unknown_run_type")
		return
	}
	rec, err := api.runs.Latest(r.Context(), runType)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		httpserver.WriteError(w, r, http.StatusNotFound, "no_runs")
		return
	case err != nil:
		api.logger.Error("load latest run", "run_type", runType, "error", err)
		httpserver.WriteError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	view := newRunView(rec)
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{
		"run":     view,
		"running": slices.Contains(api.runs.Running(), runType),
	})
}

func (api *pipelineAPI) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	runType, err := domain.ParseRunType(r.PathValue("type"))
	if err != nil {
		httpserver.WriteError(w, r, http.StatusNotFound, "unknown_run_type")
		return
	}
	var req triggerRunRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			httpserver.WriteError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}
	}
	asOf, err := parseAsOf(req.AsOf)
	if err != nil {
		httpserver.WriteError(w, r, http.StatusBadRequest, "invalid_as_of")
		return
	}
	if slices.Contains(api.runs.Running(), runType) {
		httpserver.WriteError(w, r, http.StatusConflict, "run_in_progress")
		return
	}

	opts := pipeline.RunOptions{DryRun: req.DryRun, Force: req.Force, AsOf: asOf}
	requestID := r.Header.Get("X-Request-Id")
	api.wg.Add(1)
	go func() {
		defer api.wg.Done()
		summary, err := api.runs.Run(api.base, runType, opts)
		if err != nil {
			api.logger.Error("triggered run failed to start", "run_type", runType, "request_id", requestID, "error", err)
			return
		}
		api.logger.Info("triggered run finished", "run_type", runType, "request_id", requestID,
			"run_id", summary.RunID, "status", summary.Status, "skipped", summary.Skipped)
	}()

	httpserver.WriteJSON(w, http.StatusAccepted, map[string]any{
		"run_type": runType,
		"status":   "accepted",
		"dry_run":  opts.DryRun,
		"force":    opts.Force,
	})
}

func (api *pipelineAPI) handleSources(w http.ResponseWriter, r *http.Request) {
	statuses := api.sources.Statuses()
	available := 0
	for _, s := range statuses {
		if s.Available {
			available++
		}
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{
		"sources":   statuses,
		"available": available,
		"total":     len(statuses),
	})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("multiple JSON values")
	}
	return nil
}

// parseAsOf reads a YYYY-MM-DD date; empty means now.
func parseAsOf(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, raw, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}
