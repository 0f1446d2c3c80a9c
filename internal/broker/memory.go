package broker

import (
	"context"
	"sync"

	"leadflow/internal/config"
	"leadflow/internal/logger"
	"leadflow/pkg/models"
)

// MemoryBroker is an in-process Producer and Consumer. Messages published
// before a consumer subscribes are kept and delivered on subscription.
type MemoryBroker struct {
	mu        sync.Mutex
	published map[string][]models.MessageEnvelope
	pending   map[string][]models.MessageEnvelope
	notify    map[string]chan struct{}
	failNext  error
	deliverer *deliverer
}

func NewMemoryBroker(cfg config.BrokerConfig, log logger.Logger) *MemoryBroker {
	b := &MemoryBroker{
		published: make(map[string][]models.MessageEnvelope),
		pending:   make(map[string][]models.MessageEnvelope),
		notify:    make(map[string]chan struct{}),
	}
	b.deliverer = newDeliverer(cfg, b, log)
	return b
}

// FailNextPublish makes the next Publish return err.
func (b *MemoryBroker) FailNextPublish(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failNext = err
}

func (b *MemoryBroker) Publish(ctx context.Context, topic string, msg models.MessageEnvelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.failNext; err != nil {
		b.failNext = nil
		return err
	}
	b.published[topic] = append(b.published[topic], msg)
	b.pending[topic] = append(b.pending[topic], msg)
	b.signal(topic)
	return nil
}

// signal wakes the consumer of topic. Callers hold mu.
func (b *MemoryBroker) signal(topic string) {
	ch, ok := b.notify[topic]
	if !ok {
		ch = make(chan struct{}, 1)
		b.notify[topic] = ch
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Published returns every message ever published to topic.
func (b *MemoryBroker) Published(topic string) []models.MessageEnvelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.MessageEnvelope, len(b.published[topic]))
	copy(out, b.published[topic])
	return out
}

func (b *MemoryBroker) SetServiceName(name string) {
	b.deliverer.serviceName = name
}

func (b *MemoryBroker) Consume(ctx context.Context, topic string, handler HandlerFunc) error {
	b.mu.Lock()
	b.signal(topic)
	wake := b.notify[topic]
	b.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wake:
		}

		for {
			b.mu.Lock()
			queue := b.pending[topic]
			if len(queue) == 0 {
				b.mu.Unlock()
				break
			}
			msg := queue[0]
			b.pending[topic] = queue[1:]
			b.mu.Unlock()

			msgCtx := b.deliverer.messageContext(ctx, msg)
			_ = b.deliverer.deliver(msgCtx, msg, handler, topic)
		}
	}
}

func (b *MemoryBroker) Close() error {
	return nil
}
