package idempotency

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryGuard is a process-local Guard.
type MemoryGuard struct {
	mu      sync.Mutex
	entries map[string]memEntry
	now     func() time.Time
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{entries: make(map[string]memEntry), now: time.Now}
}

// WithClock replaces the time source, for tests.
func (g *MemoryGuard) WithClock(now func() time.Time) *MemoryGuard {
	g.now = now
	return g
}

func (g *MemoryGuard) live(key string) (memEntry, bool) {
	e, ok := g.entries[key]
	if !ok {
		return memEntry{}, false
	}
	if !e.expiresAt.IsZero() && !g.now().Before(e.expiresAt) {
		delete(g.entries, key)
		return memEntry{}, false
	}
	return e, true
}

func (g *MemoryGuard) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return g.now().Add(ttl)
}

func (g *MemoryGuard) Acquire(_ context.Context, key string, ttl time.Duration) (Lease, Status, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if e, ok := g.live(key); ok {
		if e.value == valueDone {
			return Lease{}, AlreadyDone, nil
		}
		return Lease{}, InProgress, nil
	}
	lease := newLease(key)
	g.entries[key] = memEntry{value: lease.Token, expiresAt: g.expiry(ttl)}
	return lease, Acquired, nil
}

func (g *MemoryGuard) Complete(_ context.Context, lease Lease, ttl time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entries[lease.Key] = memEntry{value: valueDone, expiresAt: g.expiry(ttl)}
	return nil
}

func (g *MemoryGuard) Release(_ context.Context, lease Lease) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if e, ok := g.live(lease.Key); ok && lease.Token != "" && e.value == lease.Token {
		delete(g.entries, lease.Key)
	}
	return nil
}
