package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"leadflow/internal/config"
	"leadflow/internal/constants"
	"leadflow/internal/logger"
	"leadflow/pkg/circuitbreaker"
	apperrors "leadflow/pkg/errors"
	"leadflow/pkg/models"
	"leadflow/pkg/retry"
)

const IdempotencyKeyHeader = "X-Idempotency-Key"

// ChatChannel posts to an incoming chat webhook.
type ChatChannel struct {
	webhookURL string
	client     *http.Client
	policy     retry.Policy
	cb         *circuitbreaker.Wrapper
	logger     logger.Logger
}

func NewChatChannel(cfg config.ChatConfig, policy retry.Policy, cb *circuitbreaker.Wrapper, log logger.Logger) *ChatChannel {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultHTTPTimeout
	}
	return &ChatChannel{
		webhookURL: cfg.WebhookURL,
		client:     &http.Client{Timeout: timeout},
		policy:     policy,
		cb:         cb,
		logger:     log,
	}
}

func (c *ChatChannel) Type() models.Channel {
	return models.ChannelChat
}

func (c *ChatChannel) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(FormatChat(msg.Lead))
	if err != nil {
		return apperrors.NotificationChannel(string(models.ChannelChat), err).AsFatal()
	}

	err = retry.DoWithCallback(ctx, c.policy, func() error {
		if c.cb == nil {
			return c.post(ctx, body, msg.DedupKey)
		}
		return c.cb.Do(ctx, func(ctx context.Context) error {
			return c.post(ctx, body, msg.DedupKey)
		})
	}, func(attempt int, err error, next time.Duration) {
		c.logger.WarnwCtx(ctx, "Retrying chat notification",
			"attempt", attempt,
			"next_delay", next,
			"error", err,
		)
	})
	if err != nil {
		return apperrors.NotificationChannel(string(models.ChannelChat), err)
	}
	return nil
}

func (c *ChatChannel) post(ctx context.Context, body []byte, dedupKey string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return retry.NewFatalError(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(IdempotencyKeyHeader, dedupKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("chat webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= constants.HTTPStatusOKMin && resp.StatusCode < constants.HTTPStatusOKMax:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("chat webhook returned status: %d", resp.StatusCode)
	default:
		// A rejected payload or a revoked webhook will not recover on retry.
		return retry.NewFatalError(fmt.Errorf("chat webhook returned status: %d", resp.StatusCode))
	}
}
