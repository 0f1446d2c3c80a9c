// Package scheduler releases delivery tasks after a delay window and owns the
// retry and dead-letter policy for them.
package scheduler

import (
	"context"
	"errors"
	"time"

	"leadflow/internal/config"
	"leadflow/pkg/models"
	"leadflow/pkg/retry"
)

var (
	// ErrClaimLost means the task was reclaimed by another worker after its
	// visibility timeout expired.
	ErrClaimLost = errors.New("task claim lost")
	// ErrTaskNotFound is returned by Requeue for an unknown dead letter.
	ErrTaskNotFound = errors.New("task not found")
)

// Outcome is the result of a nack.
type Outcome string

const (
	OutcomeRequeued     Outcome = "requeued"
	OutcomeDeadLettered Outcome = "dead_lettered"
)

// Queue is the delay queue contract shared by the Redis and in-memory
// implementations. Tasks are keyed by lead id.
type Queue interface {
	// Schedule enqueues a task that becomes visible after delay. A task that
	// already exists for leadID is returned unchanged with created=false.
	Schedule(ctx context.Context, leadID, rawRef string, delay time.Duration) (task *models.DeliveryTask, created bool, err error)
	// Dequeue blocks until a task is visible, claims it for the visibility
	// timeout and returns it. It returns ctx.Err() when ctx is done.
	Dequeue(ctx context.Context) (*models.DeliveryTask, error)
	// Ack removes a processed task permanently.
	Ack(ctx context.Context, task *models.DeliveryTask) error
	// Nack records a failed attempt. The task is requeued with backoff, or
	// dead-lettered once its attempts reach the configured maximum.
	Nack(ctx context.Context, task *models.DeliveryTask, cause error) (Outcome, error)
	// DeadLetter moves a task that failed terminally straight to the
	// dead-letter set.
	DeadLetter(ctx context.Context, task *models.DeliveryTask, reason string) error
	DeadLetters(ctx context.Context, limit int) ([]*models.DeliveryTask, error)
	// Requeue moves a dead letter back to the queue with a fresh attempt budget.
	Requeue(ctx context.Context, leadID string) error
	Stats(ctx context.Context) (Stats, error)
}

type Stats struct {
	Delayed  int64 `json:"delayed"`
	Visible  int64 `json:"visible"`
	Inflight int64 `json:"inflight"`
	Dead     int64 `json:"dead"`
}

type Options struct {
	MaxAttempts       int
	VisibilityTimeout time.Duration
	PollInterval      time.Duration
	Retry             config.RetryConfig
	Now               func() time.Time
}

func OptionsFromConfig(cfg config.SchedulerConfig) Options {
	return Options{
		MaxAttempts:       cfg.MaxAttempts,
		VisibilityTimeout: cfg.VisibilityTimeout,
		PollInterval:      cfg.PollInterval,
		Retry:             cfg.Retry,
		Now:               time.Now,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.VisibilityTimeout <= 0 {
		o.VisibilityTimeout = 2 * time.Minute
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// retryDelay is the backoff before the given failed attempt becomes visible
// again. attempt is 1-based.
func (o Options) retryDelay(attempt int) time.Duration {
	return retry.BackoffFor(attempt, o.Retry.InitialInterval, o.Retry.Multiplier, o.Retry.MaxInterval)
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
