package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"leadflow/internal/config"
	"leadflow/internal/logger"
)

// Base holds what every service shares: config, logger and an ordered list
// of closers run on shutdown.
type Base struct {
	Config  *config.Config
	Logger  logger.Logger
	closers []namedCloser
}

type namedCloser struct {
	name string
	fn   func(ctx context.Context) error
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{
		Config: cfg,
		Logger: log,
	}
}

// OnShutdown registers fn to run during Shutdown. Closers run in reverse
// registration order.
func (b *Base) OnShutdown(name string, fn func(ctx context.Context) error) {
	b.closers = append(b.closers, namedCloser{name: name, fn: fn})
}

func (b *Base) Shutdown(ctx context.Context) error {
	b.Logger.Infow("Shutting down application")

	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		c := b.closers[i]
		if err := c.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s close error: %w", c.name, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	b.Logger.Infow("Application exited successfully")
	return nil
}
