//go:build integration

package broker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadflow/internal/logger"
	"leadflow/internal/testinfra"
	"leadflow/pkg/models"
	"leadflow/pkg/retry"
)

func TestKafkaRoundTripWithDLQ(t *testing.T) {
	cfg := testBrokerConfig()
	cfg.Type = "kafka"
	cfg.Kafka.Brokers = testinfra.Kafka(t)
	cfg.Kafka.GroupID = "leadflow-it"

	producer, err := NewProducer(cfg, nil, "it", logger.NopLogger())
	require.NoError(t, err)
	defer producer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	require.NoError(t, producer.Publish(ctx, "emails", envelope("ok")))
	require.NoError(t, producer.Publish(ctx, "emails", envelope("bad")))

	consumer, err := NewConsumer(cfg, nil, logger.NopLogger())
	require.NoError(t, err)
	consumer.SetServiceName("it")

	var (
		mu   sync.Mutex
		seen []string
	)
	consumeCtx, stop := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = consumer.Consume(consumeCtx, "emails", func(_ context.Context, msg models.MessageEnvelope) error {
			mu.Lock()
			seen = append(seen, msg.ID)
			mu.Unlock()
			if msg.ID == "bad" {
				return retry.NewFatalError(errors.New("malformed email event"))
			}
			return nil
		})
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) >= 2
	}, 90*time.Second, 200*time.Millisecond)

	stop()
	<-done
	require.NoError(t, consumer.Close())

	mu.Lock()
	assert.ElementsMatch(t, []string{"ok", "bad"}, seen)
	mu.Unlock()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Kafka.Brokers,
		GroupID: "leadflow-it-dlq",
		Topic:   cfg.DLQTopic,
	})
	defer reader.Close()

	m, err := reader.ReadMessage(ctx)
	require.NoError(t, err)
	var dead models.MessageEnvelope
	require.NoError(t, json.Unmarshal(m.Value, &dead))
	assert.Equal(t, "bad", dead.ID)
	require.NotNil(t, dead.Metadata.DeadLetter)
	assert.Equal(t, "emails", dead.Metadata.DeadLetter.SourceTopic)
}
