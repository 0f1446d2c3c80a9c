// Package processor turns due delivery tasks into enriched leads and
// notifications.
package processor

import (
	"context"
	"errors"
	"time"

	"leadflow/internal/enrichment"
	"leadflow/internal/logger"
	"leadflow/internal/owner"
	"leadflow/internal/scheduler"
	"leadflow/internal/storage"
	apperrors "leadflow/pkg/errors"
	"leadflow/pkg/models"
	"leadflow/pkg/tracing"
)

const (
	OutcomeProcessed    = "processed"
	OutcomeRequeued     = "requeued"
	OutcomeDeadLettered = "dead_lettered"
	OutcomeClaimLost    = "claim_lost"
	OutcomeAbandoned    = "abandoned"
)

// errNotificationDeferred requeues a task whose channel lease is held by
// another worker, so the channel is revisited after that lease settles.
var errNotificationDeferred = apperrors.ErrConflict.WithMessage("notification in progress on another worker")

// Notifier delivers an enriched lead to every configured channel.
type Notifier interface {
	NotifyAll(ctx context.Context, lead *models.EnrichedLead) []models.NotificationRecord
}

// Processor runs one delivery task end to end: load raw, resolve owner,
// merge, persist, notify, ack. Enrichment is persisted before any
// notification is attempted.
type Processor struct {
	queue    scheduler.Queue
	leads    *storage.LeadStore
	resolver owner.Resolver
	merger   *enrichment.Merger
	notifier Notifier
	logger   logger.Logger
	now      func() time.Time
}

func New(queue scheduler.Queue, leads *storage.LeadStore, resolver owner.Resolver, merger *enrichment.Merger, notifier Notifier, log logger.Logger) *Processor {
	return &Processor{
		queue:    queue,
		leads:    leads,
		resolver: resolver,
		merger:   merger,
		notifier: notifier,
		logger:   log,
		now:      time.Now,
	}
}

// Process handles a claimed task and settles it with the queue. The
// returned string is the outcome used for metrics.
func (p *Processor) Process(ctx context.Context, task *models.DeliveryTask) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "processor.process")
	defer span.End()

	if err := p.waitUntilDue(ctx, task); err != nil {
		return OutcomeAbandoned, err
	}

	lead, err := p.enrich(ctx, task)
	if err != nil {
		return p.fail(ctx, task, err)
	}

	records := p.notifier.NotifyAll(ctx, lead)
	for _, rec := range records {
		if rec.Status == models.NotificationFailed {
			p.logger.WarnwCtx(ctx, "Notification channel failed, task still acknowledged",
				"channel", rec.Channel,
				"error", rec.Error,
			)
		}
	}

	if models.HasDeferred(records) {
		return p.fail(ctx, task, errNotificationDeferred)
	}

	if err := p.queue.Ack(ctx, task); err != nil {
		if errors.Is(err, scheduler.ErrClaimLost) {
			p.logger.WarnwCtx(ctx, "Task claim lost before ack", "attempt", task.AttemptCount)
			return OutcomeClaimLost, nil
		}
		return OutcomeAbandoned, err
	}

	p.logger.InfowCtx(ctx, "Lead processed",
		"enrichment_status", lead.Status,
		"owner_name", lead.OwnerName,
		"notifications", len(records),
	)
	return OutcomeProcessed, nil
}

// waitUntilDue holds a task claimed early, e.g. under clock skew between
// instances, until its delay window has elapsed.
func (p *Processor) waitUntilDue(ctx context.Context, task *models.DeliveryTask) error {
	wait := task.NotBefore.Sub(p.now())
	if wait <= 0 {
		return nil
	}
	p.logger.WarnwCtx(ctx, "Task claimed before not_before, waiting", "wait", wait)
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// enrich is idempotent. enriched_at is the end of the delay window measured
// from the first receipt of the lead, so retries and webhook redeliveries
// rewrite identical bytes.
func (p *Processor) enrich(ctx context.Context, task *models.DeliveryTask) (*models.EnrichedLead, error) {
	event, err := p.leads.GetRaw(ctx, task.LeadID)
	if err != nil {
		return nil, err
	}

	rec, err := p.resolver.Resolve(ctx, task.LeadID)
	if err != nil {
		return nil, err
	}

	enrichedAt := event.ReceivedAt.Add(task.NotBefore.Sub(task.ScheduledAt))
	lead, err := p.merger.Merge(event, rec, enrichedAt)
	if err != nil {
		return nil, err
	}

	if _, _, err := p.leads.PutEnriched(ctx, lead); err != nil {
		return nil, err
	}
	return lead, nil
}

func (p *Processor) fail(ctx context.Context, task *models.DeliveryTask, cause error) (string, error) {
	if !apperrors.IsRetryable(cause) || apperrors.IsNotFound(cause) {
		if err := p.queue.DeadLetter(ctx, task, cause.Error()); err != nil {
			return p.settleError(ctx, err)
		}
		p.logger.ErrorwCtx(ctx, "Task failed terminally, dead-lettered", "error", cause)
		return OutcomeDeadLettered, nil
	}

	outcome, err := p.queue.Nack(ctx, task, cause)
	if err != nil {
		return p.settleError(ctx, err)
	}
	if outcome == scheduler.OutcomeDeadLettered {
		p.logger.ErrorwCtx(ctx, "Task exhausted its attempts, dead-lettered",
			"attempt", task.AttemptCount,
			"error", cause,
		)
		return OutcomeDeadLettered, nil
	}
	p.logger.WarnwCtx(ctx, "Task failed, requeued",
		"attempt", task.AttemptCount,
		"error", cause,
	)
	return OutcomeRequeued, nil
}

func (p *Processor) settleError(ctx context.Context, err error) (string, error) {
	if errors.Is(err, scheduler.ErrClaimLost) {
		p.logger.WarnwCtx(ctx, "Task claim lost before settling failure")
		return OutcomeClaimLost, nil
	}
	return OutcomeAbandoned, err
}
