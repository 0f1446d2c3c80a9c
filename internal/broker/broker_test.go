package broker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadflow/internal/config"
	"leadflow/internal/logger"
	apperrors "leadflow/pkg/errors"
	"leadflow/pkg/models"
)

func testBrokerConfig() config.BrokerConfig {
	return config.BrokerConfig{
		Type:     "memory",
		DLQTopic: "emails_dlq",
		Retry: config.RetryConfig{
			MaxAttempts:     3,
			InitialInterval: time.Millisecond,
			MaxInterval:     5 * time.Millisecond,
			Multiplier:      2,
		},
	}
}

func envelope(id string) models.MessageEnvelope {
	return *models.NewMessageEnvelopeBuilder().
		WithID(id).
		WithSource("test").
		WithLead("L1", models.ChannelEmail).
		WithPayload(map[string]interface{}{"subject": "New Lead: Acme Co"}).
		Build()
}

func consume(t *testing.T, b *MemoryBroker, handler HandlerFunc) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = b.Consume(ctx, "emails", handler)
	}()
	return func() {
		cancel()
		<-done
	}
}

func TestMemoryBrokerDelivers(t *testing.T) {
	b := NewMemoryBroker(testBrokerConfig(), logger.NopLogger())
	ctx := context.Background()

	// Published before the consumer starts.
	require.NoError(t, b.Publish(ctx, "emails", envelope("m1")))

	var got int32
	stop := consume(t, b, func(_ context.Context, msg models.MessageEnvelope) error {
		assert.Equal(t, "L1", msg.Metadata.LeadID)
		atomic.AddInt32(&got, 1)
		return nil
	})
	defer stop()

	require.NoError(t, b.Publish(ctx, "emails", envelope("m2")))
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&got) == 2 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, b.Published("emails_dlq"))
}

func TestRetryThenDeadLetter(t *testing.T) {
	b := NewMemoryBroker(testBrokerConfig(), logger.NopLogger())

	var calls int32
	stop := consume(t, b, func(context.Context, models.MessageEnvelope) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("smtp unavailable")
	})
	defer stop()

	require.NoError(t, b.Publish(context.Background(), "emails", envelope("m1")))
	require.Eventually(t, func() bool { return len(b.Published("emails_dlq")) == 1 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	dead := b.Published("emails_dlq")[0]
	require.NotNil(t, dead.Metadata.DeadLetter)
	assert.Equal(t, "emails", dead.Metadata.DeadLetter.SourceTopic)
	assert.Contains(t, dead.Metadata.DeadLetter.Reason, "smtp unavailable")
}

func TestFatalErrorSkipsRetries(t *testing.T) {
	b := NewMemoryBroker(testBrokerConfig(), logger.NopLogger())

	var calls int32
	stop := consume(t, b, func(context.Context, models.MessageEnvelope) error {
		atomic.AddInt32(&calls, 1)
		return apperrors.Validation("missing recipients")
	})
	defer stop()

	require.NoError(t, b.Publish(context.Background(), "emails", envelope("m1")))
	require.Eventually(t, func() bool { return len(b.Published("emails_dlq")) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestPanicIsRecovered(t *testing.T) {
	b := NewMemoryBroker(testBrokerConfig(), logger.NopLogger())

	stop := consume(t, b, func(context.Context, models.MessageEnvelope) error {
		panic("boom")
	})
	defer stop()

	require.NoError(t, b.Publish(context.Background(), "emails", envelope("m1")))
	assert.Eventually(t, func() bool { return len(b.Published("emails_dlq")) == 1 }, time.Second, 5*time.Millisecond)
}

func TestFactoryRejectsUnknownType(t *testing.T) {
	cfg := testBrokerConfig()
	cfg.Type = "rabbitmq"

	_, err := NewProducer(cfg, nil, "test", logger.NopLogger())
	assert.Error(t, err)
	_, err = NewConsumer(cfg, nil, logger.NopLogger())
	assert.Error(t, err)

	cfg.Type = "nats"
	_, err = NewProducer(cfg, nil, "test", logger.NopLogger())
	assert.Error(t, err)
}
