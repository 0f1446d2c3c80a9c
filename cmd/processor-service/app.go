package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"leadflow/internal/broker"
	"leadflow/internal/config"
	"leadflow/internal/constants"
	"leadflow/internal/enrichment"
	"leadflow/internal/logger"
	"leadflow/internal/notification"
	"leadflow/internal/owner"
	"leadflow/internal/processor"
	"leadflow/internal/scheduler"
	"leadflow/internal/storage"
	"leadflow/pkg/bootstrap"
	"leadflow/pkg/health"
	"leadflow/pkg/metrics"
	"leadflow/pkg/migrations"
	"leadflow/pkg/models"
	"leadflow/pkg/tracing"
)

const queueStatsInterval = 15 * time.Second

type App struct {
	*bootstrap.Base
	redis    *redis.Client
	mongo    *mongo.Database
	postgres *sql.DB
	nats     *nats.Conn
	objects  storage.ObjectStore
	queue    scheduler.Queue
	worker   *processor.Worker
	sweeper  *processor.Reconciler
	server   *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{Base: bootstrap.NewBase(cfg, log)}
}

func (a *App) Initialize(ctx context.Context) error {
	tp, err := tracing.Init(a.Config.Tracing, constants.ServiceProcessor)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.OnShutdown("tracing", tp.Shutdown)

	if err := a.initDatabases(ctx); err != nil {
		return err
	}

	if a.objects, err = a.InitObjectStore(ctx); err != nil {
		return fmt.Errorf("failed to initialize object store: %w", err)
	}
	if a.queue, err = a.InitQueue(a.redis); err != nil {
		return fmt.Errorf("failed to initialize delay queue: %w", err)
	}

	resolver, err := owner.NewFromConfig(a.Config, owner.Deps{
		Objects:  a.objects,
		Mongo:    a.mongo,
		Postgres: a.postgres,
		Redis:    a.redis,
		Logger:   a.Logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize owner resolver: %w", err)
	}

	dispatcher, err := a.initDispatcher(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize notifications: %w", err)
	}

	leads := storage.NewLeadStore(a.objects, a.Config.Storage)
	proc := processor.New(a.queue, leads, resolver, enrichment.NewMerger(a.Config.Owner.Defaults), dispatcher, a.Logger)
	a.worker = processor.NewWorker(a.queue, proc, processor.WorkerConfig{
		Concurrency:       a.Config.Worker.Concurrency,
		VisibilityTimeout: a.Config.Scheduler.VisibilityTimeout,
		PollInterval:      a.Config.Scheduler.PollInterval,
		ServiceName:       constants.ServiceProcessor,
	}, a.Logger)
	a.sweeper = processor.NewReconciler(a.queue, leads, processor.ReconcilerConfig{
		Interval: a.Config.Scheduler.ReconcileInterval,
		Batch:    a.Config.Scheduler.ReconcileBatch,
		Delay:    a.Config.Scheduler.Delay,
	}, a.Logger)

	metrics.RegisterProcessorMetrics()
	metrics.RegisterBrokerMetrics()

	a.server = a.NewServer(a.NewRouter(constants.ServiceProcessor, a.healthChecks(leads)))

	a.Logger.InfowCtx(ctx, "Processor service initialized",
		"owner_source", a.Config.Owner.Source,
		"channels", dispatcher.Channels(),
		"concurrency", a.Config.Worker.Concurrency,
	)
	return nil
}

func (a *App) initDatabases(ctx context.Context) error {
	var err error
	if a.Config.Database.Redis.Enabled() {
		if a.redis, err = a.InitRedis(ctx); err != nil {
			return fmt.Errorf("failed to initialize Redis: %w", err)
		}
	}
	if a.postgres, err = a.InitPostgreSQL(ctx); err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	if a.mongo, err = a.InitMongoDB(ctx); err != nil {
		return fmt.Errorf("failed to initialize MongoDB: %w", err)
	}
	if a.mongo != nil && a.Config.Owner.Source == constants.OwnerSourceMongoDB && a.Config.Database.RunMigrations {
		if err := migrations.EnsureOwnerIndexes(ctx, a.mongo, a.Config.Owner.MongoDB.Collection); err != nil {
			a.Logger.WarnwCtx(ctx, "Failed to ensure owner indexes", "error", err)
		}
	}
	return nil
}

// initDispatcher builds the notification fan-out. The broker producer is only
// opened when the email channel is enabled.
func (a *App) initDispatcher(ctx context.Context) (*notification.Dispatcher, error) {
	records, err := a.InitRecordStore(a.postgres)
	if err != nil {
		return nil, err
	}

	var producer broker.Producer
	for _, ch := range a.Config.Notification.Channels {
		if models.Channel(ch) != models.ChannelEmail {
			continue
		}
		if a.nats, err = a.InitNATS(); err != nil {
			return nil, err
		}
		if producer, err = broker.NewProducer(a.Config.Broker, a.nats, constants.ServiceProcessor, a.Logger); err != nil {
			return nil, err
		}
		a.OnShutdown("broker producer", func(context.Context) error { return producer.Close() })
		a.Logger.InfowCtx(ctx, "Email events enabled", "broker", a.Config.Broker.Type, "topic", a.Config.Notification.Email.Topic)
		break
	}

	guard := a.NewGuard(a.redis, constants.CacheKeyPrefixGuard)
	return notification.NewFromConfig(a.Config, guard, records, producer, a.Logger)
}

func (a *App) healthChecks(leads *storage.LeadStore) *health.CheckerRegistry {
	checks := health.NewCheckerRegistry()
	checks.Register(health.NewCheckFunc("object_store", leads.Ping))
	if a.redis != nil {
		checks.Register(health.NewRedisChecker(a.redis))
	}
	if a.postgres != nil {
		checks.Register(health.NewPostgreSQLChecker(a.postgres))
	}
	if a.mongo != nil {
		checks.Register(health.NewMongoDBChecker(a.mongo.Client()))
	}
	if a.nats != nil {
		checks.Register(health.NewNATSChecker(a.nats))
	}
	return checks
}

// Run serves /health and /metrics next to the worker pool and the reconcile
// sweep. The pool stops
// claiming on cancellation and lets in-flight tasks settle.
func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.Serve(gCtx, a.server)
	})
	g.Go(func() error {
		return a.worker.Run(gCtx)
	})
	g.Go(func() error {
		return a.sweeper.Run(gCtx)
	})
	g.Go(func() error {
		a.publishQueueStats(gCtx)
		return nil
	})

	err := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.Config.Worker.ShutdownTimeout)
	defer cancel()
	if shutdownErr := a.Shutdown(shutdownCtx); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	return err
}

func (a *App) publishQueueStats(ctx context.Context) {
	ticker := time.NewTicker(queueStatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.queue.Stats(ctx); err != nil {
				a.Logger.WarnwCtx(ctx, "Failed to read queue stats", "error", err)
			}
		}
	}
}
