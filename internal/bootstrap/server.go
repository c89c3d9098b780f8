package bootstrap

import (
	"context"
	"database/sql"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/mirzemehdi/ArchGee-All/internal/api"
	"github.com/mirzemehdi/ArchGee-All/internal/classify"
	"github.com/mirzemehdi/ArchGee-All/internal/config"
	"github.com/mirzemehdi/ArchGee-All/internal/database"
	"github.com/mirzemehdi/ArchGee-All/internal/enrich"
	"github.com/mirzemehdi/ArchGee-All/internal/events"
	"github.com/mirzemehdi/ArchGee-All/internal/logger"
	"github.com/mirzemehdi/ArchGee-All/internal/metrics"
	"github.com/mirzemehdi/ArchGee-All/internal/server"
	"github.com/mirzemehdi/ArchGee-All/internal/service"
	"github.com/mirzemehdi/ArchGee-All/internal/sweeper"
)

// App bundles the HTTP server with the background loops it runs alongside.
type App struct {
	Server  *server.Server
	Worker  *enrich.Worker
	Sweeper *sweeper.Sweeper
}

// StartBackground launches the worker pool (async mode only) and the expiry
// sweeper.
func (a *App) StartBackground(ctx context.Context) {
	if a.Worker != nil {
		a.Worker.Start(ctx)
	}

	a.Sweeper.Start(ctx)
}

// StopBackground drains the background loops.
func (a *App) StopBackground() {
	if a.Worker != nil {
		a.Worker.Stop()
	}

	a.Sweeper.Stop()
}

// BuildApp wires every component of the engine. redisClient may be nil, in
// which case moderation events are dropped.
func BuildApp(cfg *config.Config, db *sql.DB, redisClient *redis.Client, log logger.Logger) *App {
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	jobs := database.NewJobRepository(db)
	tasks := database.NewTaskRepository(db)
	attempts := database.NewAttemptRepository(db)

	var publisher *events.Publisher
	if redisClient != nil {
		publisher = events.NewPublisher(redisClient, cfg.Redis.Stream, log)
	}

	classifier := classify.NewClient(cfg.Providers.MaxInputChars, m, log)
	if cfg.Providers.Anthropic.APIKey != "" {
		classifier.Register(
			classify.NewAnthropicProvider(cfg.Providers.Anthropic.APIKey, cfg.Providers.Anthropic.Model),
			cfg.Providers.Anthropic.RPS,
		)
	}
	if cfg.Providers.MLService.BaseURL != "" {
		classifier.Register(
			classify.NewMLServiceProvider(cfg.Providers.MLService.BaseURL),
			cfg.Providers.MLService.RPS,
		)
	}

	orch := enrich.NewOrchestrator(jobs, attempts, classifier, publisher, m, enrich.Config{
		MaxAttempts:     cfg.Enrichment.MaxAttempts,
		BackoffBase:     cfg.Enrichment.BackoffBase,
		BackoffCap:      cfg.Enrichment.BackoffCap,
		ReviewThreshold: cfg.Enrichment.ReviewThreshold,
		JobTTL:          cfg.Enrichment.JobTTL,
	}, log)

	var (
		enqueuer enrich.Enqueuer
		worker   *enrich.Worker
	)
	if cfg.Enrichment.Mode == config.ModeInline {
		enqueuer = enrich.NewInlineEnqueuer(orch, log)
	} else {
		enqueuer = enrich.NewTaskEnqueuer(tasks)
		worker = enrich.NewWorker(tasks, orch, enrich.WorkerConfig{
			PollInterval: cfg.Enrichment.PollInterval,
			BatchSize:    cfg.Enrichment.BatchSize,
			Workers:      cfg.Enrichment.Workers,
			StaleAge:     cfg.Enrichment.StaleAge,
		}, log)
	}

	ingestSvc := service.NewIngestService(jobs, enqueuer, m, log)
	handler := api.NewIngestHandler(ingestSvc, jobs, attempts, cfg.Service.BatchLimit)

	srv := server.New(server.Config{
		Port:  cfg.Service.Port,
		Debug: cfg.Service.Debug,
	}, log, func(router *gin.Engine) {
		api.SetupRoutes(router, handler, jobs, registry, cfg.Auth.IngestToken)
	})

	return &App{
		Server:  srv,
		Worker:  worker,
		Sweeper: sweeper.New(jobs, cfg.Sweeper.Interval, m, log),
	}
}
