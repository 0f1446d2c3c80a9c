package broker

import (
	"context"
	"fmt"
	"time"

	"leadflow/internal/config"
	"leadflow/internal/logger"
	"leadflow/pkg/errors"
	"leadflow/pkg/logging"
	"leadflow/pkg/metrics"
	"leadflow/pkg/models"
	"leadflow/pkg/retry"
)

// deliverer runs a handler with retries and dead-letters what still fails.
// Kafka, NATS and memory consumers share it.
type deliverer struct {
	serviceName string
	policy      retry.Policy
	dlq         Producer
	dlqTopic    string
	logger      logger.Logger
}

func newDeliverer(cfg config.BrokerConfig, dlq Producer, log logger.Logger) *deliverer {
	policy := retry.Policy{
		MaxAttempts:     3,
		InitialInterval: 1 * time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
		Jitter:          -1,
	}
	if cfg.Retry.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.Retry.MaxAttempts
	}
	if cfg.Retry.InitialInterval > 0 {
		policy.InitialInterval = cfg.Retry.InitialInterval
	}
	if cfg.Retry.MaxInterval > 0 {
		policy.MaxInterval = cfg.Retry.MaxInterval
	}
	if cfg.Retry.Multiplier > 0 {
		policy.Multiplier = cfg.Retry.Multiplier
	}
	if cfg.Retry.MaxElapsedTime > 0 {
		policy.MaxElapsedTime = cfg.Retry.MaxElapsedTime
	}

	return &deliverer{
		serviceName: "unknown",
		policy:      policy,
		dlq:         dlq,
		dlqTopic:    cfg.DLQTopic,
		logger:      log,
	}
}

// messageContext decorates ctx with the envelope's correlation ids.
func (d *deliverer) messageContext(ctx context.Context, envelope models.MessageEnvelope) context.Context {
	if envelope.Metadata.TraceID != "" {
		ctx = logging.WithTraceID(ctx, envelope.Metadata.TraceID)
	}
	ctx = logging.WithMessageID(ctx, envelope.ID)
	ctx = logging.WithLeadID(ctx, envelope.Metadata.LeadID)
	return logging.WithServiceName(ctx, d.serviceName)
}

// deliver processes one envelope. It returns nil once the message may be
// acknowledged on the transport, i.e. after success or a successful DLQ
// publish.
func (d *deliverer) deliver(ctx context.Context, envelope models.MessageEnvelope, handler HandlerFunc, topic string) error {
	metrics.IncBrokerMessagesRead(d.serviceName, topic)

	err := d.processWithRetry(ctx, envelope, handler, topic)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	d.logger.ErrorwCtx(ctx, "Failed to process message after retries",
		"error", err,
		"topic", topic,
	)
	if d.dlq == nil || d.dlqTopic == "" {
		d.logger.WarnwCtx(ctx, "No DLQ configured, dropping message to avoid blocking",
			"topic", topic,
		)
		return nil
	}
	if dlqErr := d.sendToDLQ(ctx, envelope, err, topic); dlqErr != nil {
		d.logger.ErrorwCtx(ctx, "Failed to send message to DLQ",
			"error", dlqErr,
			"topic", topic,
		)
		return dlqErr
	}
	return nil
}

func (d *deliverer) processWithRetry(ctx context.Context, envelope models.MessageEnvelope, handler HandlerFunc, topic string) error {
	return retry.DoWithCallback(ctx, d.policy, func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = errors.RecoverPanic(r)
				d.logger.ErrorwCtx(ctx, "Panic recovered during message processing",
					"error", err,
					"topic", topic,
				)
			}
		}()
		return handler(ctx, envelope)
	}, func(attempt int, err error, nextDelay time.Duration) {
		metrics.RetryAttemptsTotal.WithLabelValues(d.serviceName, topic).Inc()
		d.logger.WarnwCtx(ctx, "Retrying message processing",
			"attempt", attempt,
			"max_attempts", d.policy.MaxAttempts,
			"next_delay", nextDelay,
			"error", err,
			"topic", topic,
		)
	})
}

func (d *deliverer) sendToDLQ(ctx context.Context, envelope models.MessageEnvelope, originalErr error, sourceTopic string) error {
	envelope.Metadata.DeadLetter = &models.DeadLetterInfo{
		Reason:      originalErr.Error(),
		SourceTopic: sourceTopic,
		Timestamp:   time.Now().UTC(),
	}

	if err := d.dlq.Publish(ctx, d.dlqTopic, envelope); err != nil {
		return fmt.Errorf("failed to publish to DLQ: %w", err)
	}

	reason := "max_retries_exceeded"
	if !errors.IsRetryable(originalErr) {
		reason = "fatal"
	}
	metrics.DLQMessagesTotal.WithLabelValues(d.serviceName, sourceTopic, reason).Inc()
	d.logger.InfowCtx(ctx, "Message sent to DLQ",
		"source_topic", sourceTopic,
		"dlq_topic", d.dlqTopic,
		"reason", originalErr.Error(),
	)
	return nil
}
