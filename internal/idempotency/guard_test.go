package idempotency

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDedupKeyIsStable(t *testing.T) {
	assert.Equal(t, DedupKey("L1", "chat"), DedupKey("L1", "chat"))
	assert.NotEqual(t, DedupKey("L1", "chat"), DedupKey("L1", "email"))
	assert.NotEqual(t, ComputeHash("ab", "c"), ComputeHash("a", "bc"))
	assert.Len(t, DedupKey("L1", "chat"), 64)
	assert.Equal(t, "notified:chat:L1", MarkerKey("chat", "L1"))
}

func guards(t *testing.T) map[string]func() (Guard, func(time.Duration)) {
	return map[string]func() (Guard, func(time.Duration)){
		"redis": func() (Guard, func(time.Duration)) {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			return NewRedisGuard(client, "test:"), mr.FastForward
		},
		"memory": func() (Guard, func(time.Duration)) {
			var mu sync.Mutex
			now := time.Now()
			g := NewMemoryGuard().WithClock(func() time.Time {
				mu.Lock()
				defer mu.Unlock()
				return now
			})
			return g, func(d time.Duration) {
				mu.Lock()
				defer mu.Unlock()
				now = now.Add(d)
			}
		},
	}
}

func TestGuardLifecycle(t *testing.T) {
	for name, build := range guards(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			g, _ := build()
			key := MarkerKey("chat", "L1")

			lease, status, err := g.Acquire(ctx, key, time.Minute)
			require.NoError(t, err)
			assert.Equal(t, Acquired, status)
			assert.Equal(t, key, lease.Key)
			assert.NotEmpty(t, lease.Token)

			_, status, err = g.Acquire(ctx, key, time.Minute)
			require.NoError(t, err)
			assert.Equal(t, InProgress, status)

			require.NoError(t, g.Complete(ctx, lease, time.Hour))

			_, status, err = g.Acquire(ctx, key, time.Minute)
			require.NoError(t, err)
			assert.Equal(t, AlreadyDone, status)

			// Release never removes a completion marker.
			require.NoError(t, g.Release(ctx, lease))
			_, status, err = g.Acquire(ctx, key, time.Minute)
			require.NoError(t, err)
			assert.Equal(t, AlreadyDone, status)
		})
	}
}

func TestReleaseAllowsRetry(t *testing.T) {
	for name, build := range guards(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			g, _ := build()

			lease, _, err := g.Acquire(ctx, "k", time.Minute)
			require.NoError(t, err)
			require.NoError(t, g.Release(ctx, lease))

			_, status, err := g.Acquire(ctx, "k", time.Minute)
			require.NoError(t, err)
			assert.Equal(t, Acquired, status)
		})
	}
}

func TestLeaseExpires(t *testing.T) {
	for name, build := range guards(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			g, advance := build()

			_, _, err := g.Acquire(ctx, "k", time.Minute)
			require.NoError(t, err)
			advance(2 * time.Minute)

			_, status, err := g.Acquire(ctx, "k", time.Minute)
			require.NoError(t, err)
			assert.Equal(t, Acquired, status)
		})
	}
}

func TestStaleReleaseKeepsSuccessorLease(t *testing.T) {
	for name, build := range guards(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			g, advance := build()

			first, status, err := g.Acquire(ctx, "k", time.Second)
			require.NoError(t, err)
			require.Equal(t, Acquired, status)
			advance(2 * time.Second)

			second, status, err := g.Acquire(ctx, "k", time.Minute)
			require.NoError(t, err)
			require.Equal(t, Acquired, status)
			assert.NotEqual(t, first.Token, second.Token)

			// The first holder's send failed after its lease ran out.
			require.NoError(t, g.Release(ctx, first))

			_, status, err = g.Acquire(ctx, "k", time.Minute)
			require.NoError(t, err)
			assert.Equal(t, InProgress, status)

			require.NoError(t, g.Release(ctx, second))
			_, status, err = g.Acquire(ctx, "k", time.Minute)
			require.NoError(t, err)
			assert.Equal(t, Acquired, status)
		})
	}
}

func TestLateCompleteSuppressesSuccessor(t *testing.T) {
	for name, build := range guards(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			g, advance := build()

			first, _, err := g.Acquire(ctx, "k", time.Second)
			require.NoError(t, err)
			advance(2 * time.Second)
			second, status, err := g.Acquire(ctx, "k", time.Minute)
			require.NoError(t, err)
			require.Equal(t, Acquired, status)

			// The first send went through; the marker wins over the newer lease.
			require.NoError(t, g.Complete(ctx, first, time.Hour))
			require.NoError(t, g.Release(ctx, second))

			_, status, err = g.Acquire(ctx, "k", time.Minute)
			require.NoError(t, err)
			assert.Equal(t, AlreadyDone, status)
		})
	}
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "acquired", Acquired.String())
	assert.Equal(t, "already_done", AlreadyDone.String())
	assert.Equal(t, "in_progress", InProgress.String())
}
