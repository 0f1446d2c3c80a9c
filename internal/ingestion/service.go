package ingestion

import (
	"context"
	"time"

	"leadflow/internal/logger"
	"leadflow/internal/scheduler"
	"leadflow/internal/storage"
	apperrors "leadflow/pkg/errors"
	"leadflow/pkg/retry"
	"leadflow/pkg/tracing"
)

// Result is the acknowledgment returned to the webhook caller.
type Result struct {
	LeadID   string `json:"lead_id"`
	Key      string `json:"s3_key"`
	Accepted bool   `json:"accepted"`
	// Stored is false when an identical raw record already existed.
	Stored bool `json:"stored"`
	// Scheduled is false when a task for the lead was already pending.
	Scheduled bool `json:"scheduled"`
}

// Service stores the raw record and schedules its delivery task. A request
// only succeeds once both are durable, so a raw record never exists without
// an eventual task; failed requests are redelivered by the CRM and both
// steps are idempotent.
type Service struct {
	normalizer *Normalizer
	leads      *storage.LeadStore
	queue      scheduler.Queue
	delay      time.Duration
	policy     retry.Policy
	logger     logger.Logger
	now        func() time.Time
}

func NewService(normalizer *Normalizer, leads *storage.LeadStore, queue scheduler.Queue, delay time.Duration, policy retry.Policy, log logger.Logger) *Service {
	return &Service{
		normalizer: normalizer,
		leads:      leads,
		queue:      queue,
		delay:      delay,
		policy:     policy,
		logger:     log,
		now:        time.Now,
	}
}

func (s *Service) Ingest(ctx context.Context, body []byte) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "ingestion.ingest")
	defer span.End()

	event, err := s.normalizer.Normalize(body, s.now())
	if err != nil {
		return nil, err
	}
	result := &Result{LeadID: event.LeadID, Key: s.leads.RawKey(event.LeadID)}

	accepted, err := s.normalizer.Accept(ctx, event)
	if err != nil {
		return nil, apperrors.ErrInternal.WithCause(err)
	}
	if !accepted {
		s.logger.InfowCtx(ctx, "Lead rejected by acceptance filter", "lead_id", event.LeadID)
		return result, nil
	}
	result.Accepted = true

	err = s.withRetry(ctx, "store_raw", event.LeadID, func() error {
		_, written, err := s.leads.PutRaw(ctx, event)
		result.Stored = written
		return err
	})
	if err != nil {
		return nil, err
	}

	err = s.withRetry(ctx, "schedule", event.LeadID, func() error {
		_, created, err := s.queue.Schedule(ctx, event.LeadID, result.Key, s.delay)
		if err != nil {
			return apperrors.TransientStorage(err)
		}
		result.Scheduled = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfowCtx(ctx, "Lead stored successfully",
		"lead_id", event.LeadID,
		"s3_key", result.Key,
		"stored", result.Stored,
		"scheduled", result.Scheduled,
	)
	return result, nil
}

func (s *Service) withRetry(ctx context.Context, step, leadID string, fn func() error) error {
	return retry.DoWithCallback(ctx, s.policy, fn, func(attempt int, err error, next time.Duration) {
		s.logger.WarnwCtx(ctx, "Retrying after error",
			"step", step,
			"lead_id", leadID,
			"attempt", attempt,
			"max_attempts", s.policy.MaxAttempts,
			"next_delay", next,
			"error", err,
		)
	})
}

