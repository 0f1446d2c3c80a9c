package mailer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leadflow/internal/config"
	"leadflow/internal/idempotency"
	"leadflow/internal/logger"
	apperrors "leadflow/pkg/errors"
	"leadflow/pkg/metrics"
	"leadflow/pkg/models"
	"leadflow/pkg/retry"
	"leadflow/pkg/tracing"
)

// errInFlight makes the broker retry an event another replica is sending.
var errInFlight = errors.New("email event is being delivered by another consumer")

// Handler consumes email events. The envelope id is the per-lead dedup key,
// so a redelivered or republished event sends mail at most once.
type Handler struct {
	sender   Sender
	guard    idempotency.Guard
	dedupTTL time.Duration
	leaseTTL time.Duration
	logger   logger.Logger
}

func NewHandler(sender Sender, guard idempotency.Guard, cfg config.MailerConfig, log logger.Logger) *Handler {
	return &Handler{
		sender:   sender,
		guard:    guard,
		dedupTTL: cfg.DedupTTL,
		leaseTTL: cfg.LeaseTTL,
		logger:   log,
	}
}

// Handle has the broker.HandlerFunc signature. Malformed events are fatal
// and go straight to the DLQ; SMTP failures are retried.
func (h *Handler) Handle(ctx context.Context, msg models.MessageEnvelope) error {
	ctx, span := tracing.StartSpan(ctx, "mailer.handle")
	defer span.End()

	event, err := models.EmailEventFromPayload(msg.Payload)
	if err != nil {
		metrics.IncEmailSent("invalid")
		return retry.NewFatalError(apperrors.Validation("invalid email event %s: %v", msg.ID, err))
	}

	key := msg.ID
	if key == "" {
		key = event.DedupKey
	}
	if key == "" {
		metrics.IncEmailSent("invalid")
		return retry.NewFatalError(apperrors.Validation("email event for lead %s has no dedup key", event.LeadID))
	}

	lease, status, err := h.guard.Acquire(ctx, key, h.leaseTTL)
	if err != nil {
		return fmt.Errorf("acquire email dedup key: %w", err)
	}
	switch status {
	case idempotency.AlreadyDone:
		metrics.IncEmailSent("duplicate")
		h.logger.InfowCtx(ctx, "Email already sent, dropping duplicate event",
			"lead_id", event.LeadID,
			"message_id", msg.ID,
		)
		return nil
	case idempotency.InProgress:
		return errInFlight
	}

	if err := h.sender.Send(ctx, event); err != nil {
		if relErr := h.guard.Release(ctx, lease); relErr != nil {
			h.logger.WarnwCtx(ctx, "Failed to release email dedup key", "error", relErr)
		}
		metrics.IncEmailSent("failed")
		h.logger.ErrorwCtx(ctx, "Failed to send email",
			"lead_id", event.LeadID,
			"recipients", len(event.Recipients),
			"error", err,
		)
		return err
	}

	if err := h.guard.Complete(ctx, lease, h.dedupTTL); err != nil {
		h.logger.WarnwCtx(ctx, "Failed to mark email sent", "error", err)
	}
	metrics.IncEmailSent("sent")
	h.logger.InfowCtx(ctx, "Email sent",
		"lead_id", event.LeadID,
		"recipients", len(event.Recipients),
	)
	return nil
}
