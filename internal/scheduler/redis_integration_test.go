//go:build integration

package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadflow/internal/testinfra"
)

func TestRedisQueueAcrossReplicas(t *testing.T) {
	client := testinfra.Redis(t)
	clock := newFakeClock()
	ctx := context.Background()

	replicas := []Queue{
		NewRedisQueue(client, "it:queue", testOptions(clock)),
		NewRedisQueue(client, "it:queue", testOptions(clock)),
	}

	_, created, err := replicas[0].Schedule(ctx, "L1", "source/crm_event_L1.json", 600*time.Second)
	require.NoError(t, err)
	assert.True(t, created)
	_, created, err = replicas[1].Schedule(ctx, "L1", "source/crm_event_L1.json", 600*time.Second)
	require.NoError(t, err)
	assert.False(t, created)

	clock.Advance(600 * time.Second)

	dctx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()

	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		owned []Queue
	)
	for i := 0; i < 6; i++ {
		q := replicas[i%2]
		wg.Add(1)
		go func() {
			defer wg.Done()
			if task, err := q.Dequeue(dctx); err == nil && task != nil {
				mu.Lock()
				owned = append(owned, q)
				mu.Unlock()
				_, _ = q.Nack(ctx, task, errors.New("owner store unavailable"))
			}
		}()
	}
	wg.Wait()
	assert.Len(t, owned, 1)

	stats, err := replicas[1].Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Delayed: 1}, stats)
}

func TestRedisQueueDeadLetterRoundTrip(t *testing.T) {
	client := testinfra.Redis(t)
	clock := newFakeClock()
	ctx := context.Background()
	q := NewRedisQueue(client, "it:dlq", testOptions(clock))

	_, _, err := q.Schedule(ctx, "L2", "raw", 0)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		task := dequeueNow(t, q)
		_, err := q.Nack(ctx, task, errors.New("boom"))
		require.NoError(t, err)
		clock.Advance(10 * time.Minute)
	}

	dead, err := q.DeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, 3, dead[0].AttemptCount)

	require.NoError(t, q.Requeue(ctx, "L2"))
	task := dequeueNow(t, q)
	assert.Equal(t, 0, task.AttemptCount)
	require.NoError(t, q.Ack(ctx, task))
}
