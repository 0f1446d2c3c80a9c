package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"leadflow/internal/config"
	"leadflow/internal/logger"
	"leadflow/pkg/logging"
	"leadflow/pkg/metrics"
	"leadflow/pkg/models"
	"leadflow/pkg/tracing"
)

const natsMsgIDHeader = "Nats-Msg-Id"

// ConnectNATS opens a connection that logs disconnects and reconnects.
func ConnectNATS(cfg config.NATSConfig, log logger.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnw("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			log.Infow("NATS reconnected", "url", conn.ConnectedUrl())
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}

type NATSProducer struct {
	conn        *nats.Conn
	timeout     time.Duration
	serviceName string
}

func NewNATSProducer(conn *nats.Conn, cfg config.NATSConfig, serviceName string) *NATSProducer {
	return &NATSProducer{conn: conn, timeout: cfg.Timeout, serviceName: serviceName}
}

// Publish sends msg and flushes so that the call only returns once the server
// has the message.
func (p *NATSProducer) Publish(ctx context.Context, topic string, msg models.MessageEnvelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	natsMsg := &nats.Msg{Subject: topic, Data: body, Header: nats.Header{}}
	natsMsg.Header.Set(natsMsgIDHeader, msg.ID)
	tracing.InjectNATSHeaders(ctx, natsMsg)

	start := time.Now()
	if err := p.conn.PublishMsg(natsMsg); err != nil {
		return fmt.Errorf("failed to publish nats message: %w", err)
	}

	flushCtx := ctx
	if _, ok := ctx.Deadline(); !ok && p.timeout > 0 {
		var cancel context.CancelFunc
		flushCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	if err := p.conn.FlushWithContext(flushCtx); err != nil {
		return fmt.Errorf("failed to flush nats connection: %w", err)
	}

	metrics.ObserveBrokerWriteDuration(p.serviceName, topic, time.Since(start))
	metrics.IncBrokerMessagesWritten(p.serviceName, topic)
	return nil
}

// Close is a no-op; the connection belongs to the caller.
func (p *NATSProducer) Close() error {
	return nil
}

type NATSConsumer struct {
	conn       *nats.Conn
	queueGroup string
	logger     logger.Logger
	deliverer  *deliverer
	sub        *nats.Subscription
}

func NewNATSConsumer(conn *nats.Conn, cfg config.BrokerConfig, log logger.Logger) *NATSConsumer {
	var dlq Producer
	if cfg.DLQTopic != "" {
		dlq = NewNATSProducer(conn, cfg.NATS, "dlq")
	}
	return &NATSConsumer{
		conn:       conn,
		queueGroup: cfg.NATS.QueueGroup,
		logger:     log,
		deliverer:  newDeliverer(cfg, dlq, log),
	}
}

func (c *NATSConsumer) SetServiceName(name string) {
	c.deliverer.serviceName = name
}

// Consume joins the queue group for topic so that several mailer instances
// share the load, then handles messages one at a time until ctx is done.
func (c *NATSConsumer) Consume(ctx context.Context, topic string, handler HandlerFunc) error {
	ch := make(chan *nats.Msg, 64)
	sub, err := c.conn.ChanQueueSubscribe(topic, c.queueGroup, ch)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}
	c.sub = sub

	consumeCtx := logging.WithServiceName(ctx, c.deliverer.serviceName)
	c.logger.InfowCtx(consumeCtx, "Started consuming",
		"topic", topic,
		"queue_group", c.queueGroup,
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.InfowCtx(consumeCtx, "Stopped consuming",
				"topic", topic,
				"reason", "context canceled",
			)
			return ctx.Err()
		case msg := <-ch:
			c.handle(ctx, msg, topic, handler)
		}
	}
}

func (c *NATSConsumer) handle(ctx context.Context, msg *nats.Msg, topic string, handler HandlerFunc) {
	var envelope models.MessageEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logger.ErrorwCtx(ctx, "Failed to unmarshal message",
			"error", err,
			"topic", topic,
		)
		return
	}

	msgCtx := tracing.ExtractNATSHeaders(ctx, msg)
	msgCtx, span := tracing.StartSpan(msgCtx, "nats.consume")
	defer span.End()
	msgCtx = c.deliverer.messageContext(msgCtx, envelope)

	_ = c.deliverer.deliver(msgCtx, envelope, handler, topic)
}

func (c *NATSConsumer) Close() error {
	if c.sub != nil {
		return c.sub.Unsubscribe()
	}
	return nil
}
