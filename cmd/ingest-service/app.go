package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"

	"leadflow/internal/config"
	"leadflow/internal/constants"
	"leadflow/internal/ingestion"
	"leadflow/internal/logger"
	"leadflow/internal/scheduler"
	"leadflow/internal/storage"
	"leadflow/pkg/bootstrap"
	"leadflow/pkg/health"
	"leadflow/pkg/metrics"
	"leadflow/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	redis          *redis.Client
	leads          *storage.LeadStore
	queue          scheduler.Queue
	server         *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{Base: bootstrap.NewBase(cfg, log)}
}

func (a *App) Initialize(ctx context.Context) error {
	tp, err := tracing.Init(a.Config.Tracing, constants.ServiceIngest)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.OnShutdown("tracing", tp.Shutdown)

	if a.Config.Database.Redis.Enabled() {
		if a.redis, err = a.InitRedis(ctx); err != nil {
			return fmt.Errorf("failed to initialize Redis: %w", err)
		}
	}

	objects, err := a.InitObjectStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize object store: %w", err)
	}
	a.leads = storage.NewLeadStore(objects, a.Config.Storage)

	if a.queue, err = a.InitQueue(a.redis); err != nil {
		return fmt.Errorf("failed to initialize delay queue: %w", err)
	}

	normalizer, err := ingestion.NewNormalizer(a.Config.Ingestion)
	if err != nil {
		return fmt.Errorf("failed to initialize normalizer: %w", err)
	}
	service := ingestion.NewService(normalizer, a.leads, a.queue,
		a.Config.Scheduler.Delay, a.Config.Ingestion.Retry.Policy(), a.Logger)

	metrics.RegisterIngestMetrics()

	checks := health.NewCheckerRegistry()
	checks.Register(health.NewCheckFunc("object_store", a.leads.Ping))
	if a.redis != nil {
		checks.Register(health.NewRedisChecker(a.redis))
	}

	router := a.NewRouter(constants.ServiceIngest, checks)
	ingestion.NewHandler(service, a.Config.Server.MaxBodyBytes, a.Logger).RegisterRoutes(router)
	a.server = a.NewServer(router)

	a.Logger.InfowCtx(ctx, "Ingest service initialized",
		"bucket", a.leads.Bucket(),
		"delay", a.Config.Scheduler.Delay,
		"scheduler_backend", a.Config.Scheduler.Backend,
	)
	return nil
}

func (a *App) Run(ctx context.Context) error {
	err := a.Serve(ctx, a.server)
	if shutdownErr := a.Shutdown(context.WithoutCancel(ctx)); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	return err
}
