package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"golang.org/x/sync/errgroup"

	"leadflow/internal/admin"
	"leadflow/internal/config"
	"leadflow/internal/constants"
	"leadflow/internal/logger"
	"leadflow/internal/storage"
	"leadflow/pkg/bootstrap"
	"leadflow/pkg/health"
	"leadflow/pkg/metrics"
	"leadflow/pkg/ratelimit"
	"leadflow/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	redis   *redis.Client
	limiter *ratelimit.Store
	server  *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{Base: bootstrap.NewBase(cfg, log)}
}

func (a *App) Initialize(ctx context.Context) error {
	tp, err := tracing.Init(a.Config.Tracing, constants.ServiceAdmin)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.OnShutdown("tracing", tp.Shutdown)

	if a.Config.Database.Redis.Enabled() {
		if a.redis, err = a.InitRedis(ctx); err != nil {
			return fmt.Errorf("failed to initialize Redis: %w", err)
		}
	}
	postgres, err := a.InitPostgreSQL(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}

	objects, err := a.InitObjectStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize object store: %w", err)
	}
	leads := storage.NewLeadStore(objects, a.Config.Storage)

	queue, err := a.InitQueue(a.redis)
	if err != nil {
		return fmt.Errorf("failed to initialize delay queue: %w", err)
	}

	records, err := a.InitRecordStore(postgres)
	if err != nil {
		return fmt.Errorf("failed to initialize notification records: %w", err)
	}

	metrics.RegisterAdminMetrics()

	checks := health.NewCheckerRegistry()
	checks.Register(health.NewCheckFunc("object_store", leads.Ping))
	if a.redis != nil {
		checks.Register(health.NewRedisChecker(a.redis))
	}
	if postgres != nil {
		checks.Register(health.NewPostgreSQLChecker(postgres))
	}

	router := a.NewRouter(constants.ServiceAdmin, checks)
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := router.Group("")
	if rl := a.Config.Admin.RateLimit; rl.Enabled {
		a.limiter = ratelimit.NewStore(ratelimit.Config{
			RPS:             rl.RPS,
			Burst:           rl.Burst,
			CleanupInterval: rl.CleanupInterval,
			MaxAge:          rl.MaxAge,
		})
		api.Use(ratelimit.Middleware(a.limiter))
		a.Logger.InfowCtx(ctx, "Rate limiting enabled", "rps", rl.RPS, "burst", rl.Burst)
	}
	admin.NewHandler(queue, leads, records, a.Logger).RegisterRoutes(api)

	a.server = a.NewServer(router)
	return nil
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.Serve(gCtx, a.server)
	})
	if a.limiter != nil {
		g.Go(func() error {
			a.limiter.RunCleanup(gCtx)
			return nil
		})
	}

	err := g.Wait()
	if shutdownErr := a.Shutdown(context.WithoutCancel(ctx)); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	return err
}
