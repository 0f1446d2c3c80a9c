package notification

import (
	"context"
	"time"

	"leadflow/internal/broker"
	"leadflow/internal/config"
	"leadflow/internal/constants"
	"leadflow/internal/logger"
	apperrors "leadflow/pkg/errors"
	"leadflow/pkg/logging"
	"leadflow/pkg/models"
	"leadflow/pkg/retry"
)

// EmailChannel publishes an email event for the mailer. The envelope id is
// the dedup key so that the mailer can drop duplicates.
type EmailChannel struct {
	producer     broker.Producer
	topic        string
	recipients   []string
	includeOwner bool
	policy       retry.Policy
	logger       logger.Logger
	now          func() time.Time
}

func NewEmailChannel(producer broker.Producer, cfg config.EmailConfig, policy retry.Policy, log logger.Logger) *EmailChannel {
	return &EmailChannel{
		producer:     producer,
		topic:        cfg.Topic,
		recipients:   cfg.Recipients,
		includeOwner: cfg.IncludeOwner,
		policy:       policy,
		logger:       log,
		now:          time.Now,
	}
}

func (c *EmailChannel) Type() models.Channel {
	return models.ChannelEmail
}

func (c *EmailChannel) Send(ctx context.Context, msg Message) error {
	event := FormatEmail(msg.Lead, msg.DedupKey, c.recipients, c.includeOwner)
	if len(event.Recipients) == 0 {
		return apperrors.NotificationChannel(string(models.ChannelEmail),
			apperrors.Validation("no email recipients for lead %s", msg.Lead.LeadID))
	}

	envelope := models.NewMessageEnvelopeBuilder().
		WithID(msg.DedupKey).
		WithSource(constants.ServiceProcessor).
		WithTimestamp(c.now().UTC()).
		WithLead(msg.Lead.LeadID, models.ChannelEmail).
		WithTraceID(logging.GetTraceID(ctx)).
		WithPayload(event.ToPayload()).
		Build()

	err := retry.DoWithCallback(ctx, c.policy, func() error {
		return c.producer.Publish(ctx, c.topic, *envelope)
	}, func(attempt int, err error, next time.Duration) {
		c.logger.WarnwCtx(ctx, "Retrying email event publish",
			"attempt", attempt,
			"next_delay", next,
			"topic", c.topic,
			"error", err,
		)
	})
	if err != nil {
		return apperrors.NotificationChannel(string(models.ChannelEmail), err)
	}
	return nil
}
