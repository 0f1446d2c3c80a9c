package notification

import (
	"fmt"

	"leadflow/internal/broker"
	"leadflow/internal/config"
	"leadflow/internal/idempotency"
	"leadflow/internal/logger"
	"leadflow/pkg/circuitbreaker"
	"leadflow/pkg/models"
)

// NewFromConfig wires the channels named in cfg.Notification.Channels.
// producer is only needed when email is enabled.
func NewFromConfig(cfg *config.Config, guard idempotency.Guard, records RecordStore, producer broker.Producer, log logger.Logger) (*Dispatcher, error) {
	ncfg := cfg.Notification
	policy := ncfg.Retry.Policy()

	var channels []Channel
	for _, name := range ncfg.Channels {
		channel, err := models.ParseChannel(name)
		if err != nil {
			return nil, err
		}
		switch channel {
		case models.ChannelChat:
			if ncfg.Chat.WebhookURL == "" {
				return nil, fmt.Errorf("chat channel requires notification.chat.webhook_url")
			}
			var cb *circuitbreaker.Wrapper
			if cfg.CircuitBreaker.Enabled {
				cb = circuitbreaker.NewWrapper(circuitbreaker.Config{
					Name:         "chat-webhook",
					MaxRequests:  cfg.CircuitBreaker.MaxRequests,
					Interval:     cfg.CircuitBreaker.Interval,
					Timeout:      cfg.CircuitBreaker.Timeout,
					MinRequests:  cfg.CircuitBreaker.MinRequests,
					FailureRatio: cfg.CircuitBreaker.FailureRatio,
				})
			}
			channels = append(channels, NewChatChannel(ncfg.Chat, policy, cb, log))
		case models.ChannelEmail:
			if producer == nil {
				return nil, fmt.Errorf("email channel requires a broker producer")
			}
			channels = append(channels, NewEmailChannel(producer, ncfg.Email, policy, log))
		}
	}

	return NewDispatcher(guard, records, DispatcherConfig{
		LeaseTTL:  ncfg.LeaseTTL,
		MarkerTTL: ncfg.MarkerTTL,
	}, log, channels...), nil
}
