package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/arc-research/arc-pipeline/internal/config"
	"github.com/arc-research/arc-pipeline/internal/datahub"
	"github.com/arc-research/arc-pipeline/internal/notify"
	"github.com/arc-research/arc-pipeline/internal/pipeline"
	"github.com/arc-research/arc-pipeline/internal/platform/auditlog"
	"github.com/arc-research/arc-pipeline/internal/platform/env"
	"github.com/arc-research/arc-pipeline/internal/platform/httpserver"
	"github.com/arc-research/arc-pipeline/internal/platform/objectstore"
	"github.com/arc-research/arc-pipeline/internal/platform/postgres"
	"github.com/arc-research/arc-pipeline/internal/providers"
	"github.com/arc-research/arc-pipeline/internal/reasoning"
	repopg "github.com/arc-research/arc-pipeline/internal/repo/postgres"
)

const (
	packetStoreMemory = "memory"
	packetStoreMinIO  = "minio"
)

// app holds the wired dependencies shared by the commands.
type app struct {
	logger   *slog.Logger
	cfg      config.Pipeline
	db       *sql.DB
	store    *minio.Client
	storeCfg objectstore.Config
	hub      *datahub.Hub
	orch     *pipeline.Orchestrator
}

func (a *app) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
}

func databaseConfigured() bool {
	return strings.TrimSpace(os.Getenv("ARC_DATABASE_URL")) != ""
}

func openDatabase(ctx context.Context) (*sql.DB, error) {
	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}
	db, err := postgres.Open(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("database unavailable: %w", err)
	}
	return db, nil
}

func openApp(ctx context.Context, logger *slog.Logger, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	a := &app{logger: logger, cfg: cfg}

	repos := pipeline.MemoryRepos()
	if databaseConfigured() {
		db, err := openDatabase(ctx)
		if err != nil {
			return nil, err
		}
		a.db = db
		repos.Ideas = repopg.NewIdeaStore(db)
		repos.Novelty = repopg.NewNoveltyStore(db)
		repos.Quota = repopg.NewQuotaStore(db)
		repos.Promotions = repopg.NewPromotionStore(db)
		repos.Runs = repopg.NewRunStore(db)
		repos.Rejections = repopg.NewRejectionStore(db)
		repos.Steps = repopg.NewStepExecutionStore(db)
		repos.Audit = auditlog.NewWriter(db)
	} else {
		logger.Warn("ARC_DATABASE_URL not set; state is kept in memory and lost on exit")
	}

	switch kind := env.String("ARC_PACKET_STORE", packetStoreMemory); kind {
	case packetStoreMemory:
	case packetStoreMinIO:
		packets, err := a.openPacketBucket(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
		repos.Packets = packets
	default:
		a.Close()
		return nil, fmt.Errorf("ARC_PACKET_STORE must be %q or %q, got %q", packetStoreMemory, packetStoreMinIO, kind)
	}

	hub, router, err := buildHub(ctx, logger, cfg.DataHub)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.hub = hub

	notifyCfg, err := notify.ConfigFromEnv()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("invalid notify config: %w", err)
	}
	notifier, err := notify.Build(logger, notifyCfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	orch, err := pipeline.New(pipeline.Options{
		Logger:   logger,
		Config:   cfg,
		Hub:      hub,
		Router:   router,
		Repos:    repos,
		Notifier: notifier,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.orch = orch
	logger.Debug("pipeline ready", "config_sha256", orch.ConfigHash(), "sources", hub.Sources())
	return a, nil
}

func (a *app) openPacketBucket(ctx context.Context) (*pipeline.BucketPackets, error) {
	storeCfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("invalid object store config: %w", err)
	}
	client, err := objectstore.NewMinIOClient(storeCfg)
	if err != nil {
		return nil, fmt.Errorf("object store client init failed: %w", err)
	}
	startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := objectstore.EnsureBucket(startupCtx, client, storeCfg.BucketPackets, storeCfg.Region); err != nil {
		return nil, fmt.Errorf("object store unavailable: %w", err)
	}
	bucket, err := objectstore.NewJSONBucket(client, storeCfg.BucketPackets)
	if err != nil {
		return nil, err
	}
	a.store, a.storeCfg = client, storeCfg
	return pipeline.NewBucketPackets(bucket)
}

// buildHub registers every configured provider plus the reasoning source.
func buildHub(ctx context.Context, logger *slog.Logger, cfg datahub.Config) (*datahub.Hub, reasoning.Router, error) {
	providerCfg, err := providers.ConfigFromEnv()
	if err != nil {
		return nil, reasoning.Router{}, fmt.Errorf("invalid provider config: %w", err)
	}
	reasonerCfg, err := reasoning.ConfigFromEnv()
	if err != nil {
		return nil, reasoning.Router{}, fmt.Errorf("invalid reasoner config: %w", err)
	}
	router := reasonerCfg.Router()

	var completer reasoning.Completer = reasoning.Unavailable{}
	if strings.TrimSpace(reasonerCfg.APIKey) != "" {
		g, err := reasoning.NewGenAI(ctx, reasonerCfg.APIKey, router.Default.Model)
		if err != nil {
			return nil, reasoning.Router{}, err
		}
		completer = g
	} else {
		logger.Warn("GEMINI_API_KEY not set; enrichment and research will fail")
	}

	list := append(providers.Build(providerCfg), reasoning.AsProvider(completer, router.Default))
	hub, err := datahub.New(logger, cfg, list...)
	if err != nil {
		return nil, reasoning.Router{}, err
	}
	return hub, router, nil
}

func (a *app) readinessChecks() []httpserver.ReadinessCheck {
	var checks []httpserver.ReadinessCheck
	if a.db != nil {
		checks = append(checks, httpserver.ReadinessCheck{Name: "postgres", Check: func(ctx context.Context) error {
			return postgres.Ping(ctx, a.db, 750*time.Millisecond)
		}})
	}
	if a.store != nil {
		checks = append(checks, httpserver.ReadinessCheck{Name: "minio", Check: func(ctx context.Context) error {
			checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
			defer cancel()
			return objectstore.CheckBucket(checkCtx, a.store, a.storeCfg.BucketPackets)
		}})
	}
	checks = append(checks, httpserver.ReadinessCheck{Name: "sources", Check: func(context.Context) error {
		for _, s := range a.hub.Statuses() {
			if s.Available {
				return nil
			}
		}
		return errors.New("no data source available")
	}})
	return checks
}
