package processor

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"leadflow/internal/logger"
	"leadflow/internal/scheduler"
	apperrors "leadflow/pkg/errors"
	"leadflow/pkg/logging"
	"leadflow/pkg/metrics"
	"leadflow/pkg/models"
)

const settleTimeout = 5 * time.Second

type WorkerConfig struct {
	Concurrency       int
	VisibilityTimeout time.Duration
	PollInterval      time.Duration
	ServiceName       string
}

// Worker drains the delay queue with a fixed pool of goroutines.
type Worker struct {
	queue     scheduler.Queue
	processor *Processor
	cfg       WorkerConfig
	logger    logger.Logger
}

func NewWorker(queue scheduler.Queue, processor *Processor, cfg WorkerConfig, log logger.Logger) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Worker{queue: queue, processor: processor, cfg: cfg, logger: log}
}

// Run blocks until ctx is done. In-flight tasks finish or hit their
// visibility deadline before Run returns.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Infow("Starting workers", "concurrency", w.cfg.Concurrency)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.cfg.Concurrency; i++ {
		g.Go(func() error {
			w.loop(ctx, i)
			return nil
		})
	}
	return g.Wait()
}

func (w *Worker) loop(ctx context.Context, id int) {
	for {
		task, err := w.queue.Dequeue(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			w.logger.Errorw("Failed to dequeue task", "worker", id, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.cfg.PollInterval):
			}
			continue
		}
		w.handle(ctx, task)
	}
}

func (w *Worker) handle(ctx context.Context, task *models.DeliveryTask) {
	start := time.Now()
	if task.AttemptCount == 0 {
		metrics.ObserveTaskDelay(start.Sub(task.ScheduledAt))
	}

	// Settling must survive shutdown so that a finished task is not redone.
	taskCtx := logging.WithServiceName(context.WithoutCancel(ctx), w.cfg.ServiceName)
	taskCtx = logging.WithLeadID(taskCtx, task.LeadID)
	taskCtx = logging.WithTaskID(taskCtx, task.ID)

	timeout := w.cfg.VisibilityTimeout
	if task.VisibilityTimeout > 0 {
		timeout = task.VisibilityTimeout
	}
	taskCtx, cancel := context.WithTimeout(taskCtx, timeout+settleTimeout)
	defer cancel()

	outcome, err := w.process(taskCtx, task)
	if err != nil {
		w.logger.ErrorwCtx(taskCtx, "Task not settled, it will be reclaimed after its visibility timeout",
			"outcome", outcome,
			"error", err,
		)
	}
	metrics.ObserveTask(time.Since(start), outcome)
}

func (w *Worker) process(ctx context.Context, task *models.DeliveryTask) (outcome string, err error) {
	defer func() {
		if r := recover(); r != nil {
			panicErr := apperrors.RecoverPanic(r)
			w.logger.ErrorwCtx(ctx, "Panic while processing task", "error", panicErr)
			outcome, err = w.processor.fail(ctx, task, panicErr)
		}
	}()
	return w.processor.Process(ctx, task)
}
