// Package broker carries email events between the processor and the mailer
// over Kafka or NATS.
package broker

import (
	"context"

	"leadflow/pkg/models"
)

type Producer interface {
	Publish(ctx context.Context, topic string, msg models.MessageEnvelope) error
	Close() error
}

// Consumer delivers messages of one topic to a handler until ctx is done.
// Failed messages are retried with the broker retry policy and then routed
// to the DLQ topic.
type Consumer interface {
	Consume(ctx context.Context, topic string, handler HandlerFunc) error
	Close() error
	SetServiceName(name string)
}

type HandlerFunc func(ctx context.Context, msg models.MessageEnvelope) error
