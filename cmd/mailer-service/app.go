package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"leadflow/internal/broker"
	"leadflow/internal/config"
	"leadflow/internal/constants"
	"leadflow/internal/logger"
	"leadflow/internal/mailer"
	"leadflow/pkg/bootstrap"
	"leadflow/pkg/health"
	"leadflow/pkg/logging"
	"leadflow/pkg/metrics"
	"leadflow/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	redis    *redis.Client
	nats     *nats.Conn
	consumer broker.Consumer
	handler  *mailer.Handler
	server   *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{Base: bootstrap.NewBase(cfg, log)}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := config.ValidateMailer(a.Config.Mailer); err != nil {
		return fmt.Errorf("invalid mailer configuration: %w", err)
	}

	tp, err := tracing.Init(a.Config.Tracing, constants.ServiceMailer)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.OnShutdown("tracing", tp.Shutdown)

	if a.Config.Database.Redis.Enabled() {
		if a.redis, err = a.InitRedis(ctx); err != nil {
			return fmt.Errorf("failed to initialize Redis: %w", err)
		}
	}
	if a.nats, err = a.InitNATS(); err != nil {
		return fmt.Errorf("failed to initialize NATS: %w", err)
	}

	if a.consumer, err = broker.NewConsumer(a.Config.Broker, a.nats, a.Logger); err != nil {
		return fmt.Errorf("failed to initialize broker consumer: %w", err)
	}
	a.consumer.SetServiceName(constants.ServiceMailer)
	a.OnShutdown("broker consumer", func(context.Context) error { return a.consumer.Close() })

	guard := a.NewGuard(a.redis, constants.CacheKeyPrefixMailer)
	a.handler = mailer.NewHandler(mailer.NewSMTPSender(a.Config.Mailer.SMTP), guard, a.Config.Mailer, a.Logger)

	metrics.RegisterMailerMetrics()
	metrics.RegisterBrokerMetrics()

	checks := health.NewCheckerRegistry()
	if a.redis != nil {
		checks.Register(health.NewRedisChecker(a.redis))
	}
	if a.nats != nil {
		checks.Register(health.NewNATSChecker(a.nats))
	}
	a.server = a.NewServer(a.NewRouter(constants.ServiceMailer, checks))

	a.Logger.InfowCtx(ctx, "Mailer service initialized",
		"broker", a.Config.Broker.Type,
		"topic", a.Config.Mailer.Topic,
		"smtp_host", a.Config.Mailer.SMTP.Host,
	)
	return nil
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.Serve(gCtx, a.server)
	})
	g.Go(func() error {
		consumeCtx := logging.WithServiceName(gCtx, constants.ServiceMailer)
		return a.consumer.Consume(consumeCtx, a.Config.Mailer.Topic, a.handler.Handle)
	})

	err := g.Wait()
	if shutdownErr := a.Shutdown(context.WithoutCancel(ctx)); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	return err
}
