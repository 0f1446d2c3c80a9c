package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadflow/internal/config"
	"leadflow/pkg/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testOptions(clock *fakeClock) Options {
	return Options{
		MaxAttempts:       3,
		VisibilityTimeout: 2 * time.Minute,
		PollInterval:      5 * time.Millisecond,
		Retry: config.RetryConfig{
			InitialInterval: 30 * time.Second,
			MaxInterval:     5 * time.Minute,
			Multiplier:      2,
		},
		Now: clock.Now,
	}
}

// forEachQueue runs fn against the Redis and the in-memory queue.
func forEachQueue(t *testing.T, fn func(t *testing.T, q Queue, clock *fakeClock)) {
	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })

		clock := newFakeClock()
		fn(t, NewRedisQueue(client, "test:queue", testOptions(clock)), clock)
	})
	t.Run("memory", func(t *testing.T) {
		clock := newFakeClock()
		fn(t, NewMemoryQueue(testOptions(clock)), clock)
	})
}

func dequeueNow(t *testing.T, q Queue) *models.DeliveryTask {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	task, err := q.Dequeue(ctx)
	require.NoError(t, err)
	return task
}

func assertNothingVisible(t *testing.T, q Queue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	task, err := q.Dequeue(ctx)
	assert.Nil(t, task)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestScheduleIsIdempotentPerLead(t *testing.T) {
	forEachQueue(t, func(t *testing.T, q Queue, clock *fakeClock) {
		ctx := context.Background()

		first, created, err := q.Schedule(ctx, "L1", "source/crm_event_L1.json", 600*time.Second)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, models.TaskDelayed, first.State)
		assert.Equal(t, clock.Now().Add(600*time.Second), first.NotBefore)

		clock.Advance(10 * time.Second)
		second, created, err := q.Schedule(ctx, "L1", "source/crm_event_L1.json", 600*time.Second)
		require.NoError(t, err)
		assert.False(t, created)
		assert.True(t, first.NotBefore.Equal(second.NotBefore))

		stats, err := q.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, Stats{Delayed: 1}, stats)
	})
}

func TestDequeueWaitsForNotBefore(t *testing.T) {
	forEachQueue(t, func(t *testing.T, q Queue, clock *fakeClock) {
		_, _, err := q.Schedule(context.Background(), "L1", "raw", 600*time.Second)
		require.NoError(t, err)

		clock.Advance(599 * time.Second)
		assertNothingVisible(t, q)

		clock.Advance(time.Second)
		task := dequeueNow(t, q)
		assert.Equal(t, "L1", task.LeadID)
		assert.Equal(t, "raw", task.RawStorageRef)
		assert.Equal(t, models.TaskClaimed, task.State)
		assert.Equal(t, 0, task.AttemptCount)
		assert.NotEmpty(t, task.ClaimToken)
		assert.True(t, task.Ready(clock.Now()))
	})
}

func TestAckRemovesTask(t *testing.T) {
	forEachQueue(t, func(t *testing.T, q Queue, clock *fakeClock) {
		ctx := context.Background()
		_, _, err := q.Schedule(ctx, "L1", "raw", 0)
		require.NoError(t, err)

		task := dequeueNow(t, q)
		require.NoError(t, q.Ack(ctx, task))
		assert.Equal(t, models.TaskProcessed, task.State)

		stats, err := q.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, Stats{}, stats)

		_, created, err := q.Schedule(ctx, "L1", "raw", 0)
		require.NoError(t, err)
		assert.True(t, created)
	})
}

func TestNackDeadLettersExactlyOnce(t *testing.T) {
	forEachQueue(t, func(t *testing.T, q Queue, clock *fakeClock) {
		ctx := context.Background()
		_, _, err := q.Schedule(ctx, "L1", "raw", 0)
		require.NoError(t, err)

		cause := errors.New("owner store unavailable")
		for attempt := 1; attempt <= 2; attempt++ {
			task := dequeueNow(t, q)
			outcome, err := q.Nack(ctx, task, cause)
			require.NoError(t, err)
			assert.Equal(t, OutcomeRequeued, outcome)
			assert.Equal(t, attempt, task.AttemptCount)
			assert.Equal(t, models.TaskDelayed, task.State)

			// Requeued with backoff, so not visible yet.
			assertNothingVisible(t, q)
			clock.Advance(5 * time.Minute)
		}

		task := dequeueNow(t, q)
		assert.Equal(t, 2, task.AttemptCount)
		outcome, err := q.Nack(ctx, task, cause)
		require.NoError(t, err)
		assert.Equal(t, OutcomeDeadLettered, outcome)
		assert.Equal(t, models.TaskDeadLettered, task.State)

		// A stale nack cannot bury the task a second time.
		_, err = q.Nack(ctx, task, cause)
		assert.ErrorIs(t, err, ErrClaimLost)

		clock.Advance(time.Hour)
		assertNothingVisible(t, q)

		dead, err := q.DeadLetters(ctx, 10)
		require.NoError(t, err)
		require.Len(t, dead, 1)
		assert.Equal(t, "L1", dead[0].LeadID)
		assert.Equal(t, 3, dead[0].AttemptCount)
		assert.Equal(t, "owner store unavailable", dead[0].LastError)
		assert.Equal(t, reasonMaxAttempts, dead[0].DeadLetterReason)
		assert.Equal(t, models.TaskDeadLettered, dead[0].State)

		stats, err := q.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, Stats{Dead: 1}, stats)
	})
}

func TestNackBackoffGrows(t *testing.T) {
	forEachQueue(t, func(t *testing.T, q Queue, clock *fakeClock) {
		ctx := context.Background()
		_, _, err := q.Schedule(ctx, "L1", "raw", 0)
		require.NoError(t, err)

		_, err = q.Nack(ctx, dequeueNow(t, q), errors.New("boom"))
		require.NoError(t, err)

		clock.Advance(29 * time.Second)
		assertNothingVisible(t, q)
		clock.Advance(time.Second)
		task := dequeueNow(t, q)

		_, err = q.Nack(ctx, task, errors.New("boom"))
		require.NoError(t, err)
		clock.Advance(59 * time.Second)
		assertNothingVisible(t, q)
		clock.Advance(time.Second)
		assert.Equal(t, 2, dequeueNow(t, q).AttemptCount)
	})
}

func TestExpiredClaimIsReclaimed(t *testing.T) {
	forEachQueue(t, func(t *testing.T, q Queue, clock *fakeClock) {
		ctx := context.Background()
		_, _, err := q.Schedule(ctx, "L1", "raw", 0)
		require.NoError(t, err)

		stale := dequeueNow(t, q)
		assertNothingVisible(t, q)

		clock.Advance(2*time.Minute + time.Second)
		fresh := dequeueNow(t, q)
		assert.Equal(t, 1, fresh.AttemptCount)
		assert.NotEqual(t, stale.ClaimToken, fresh.ClaimToken)

		assert.ErrorIs(t, q.Ack(ctx, stale), ErrClaimLost)
		require.NoError(t, q.Ack(ctx, fresh))
	})
}

func TestDeadLetterAndRequeue(t *testing.T) {
	forEachQueue(t, func(t *testing.T, q Queue, clock *fakeClock) {
		ctx := context.Background()
		_, _, err := q.Schedule(ctx, "L1", "raw", 0)
		require.NoError(t, err)

		task := dequeueNow(t, q)
		require.NoError(t, q.DeadLetter(ctx, task, "lead record is incomplete"))
		assert.Equal(t, models.TaskDeadLettered, task.State)
		assert.Equal(t, 1, task.AttemptCount)

		dead, err := q.DeadLetters(ctx, 10)
		require.NoError(t, err)
		require.Len(t, dead, 1)
		assert.Equal(t, "lead record is incomplete", dead[0].DeadLetterReason)

		assert.ErrorIs(t, q.Requeue(ctx, "unknown"), ErrTaskNotFound)
		require.NoError(t, q.Requeue(ctx, "L1"))

		again := dequeueNow(t, q)
		assert.Equal(t, "L1", again.LeadID)
		assert.Equal(t, 0, again.AttemptCount)
		require.NoError(t, q.Ack(ctx, again))
	})
}

func TestConcurrentDequeueClaimsOnce(t *testing.T) {
	forEachQueue(t, func(t *testing.T, q Queue, clock *fakeClock) {
		_, _, err := q.Schedule(context.Background(), "L1", "raw", 0)
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		var mu sync.Mutex
		claims := 0
		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if task, err := q.Dequeue(ctx); err == nil && task != nil {
					mu.Lock()
					claims++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, claims)
	})
}
