// Package idempotency provides the claim-then-mark guard that keeps side
// effects at most once per key.
package idempotency

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Status is the result of an Acquire call.
type Status int

const (
	// Acquired means the caller holds the lease and must Complete or Release.
	Acquired Status = iota
	// AlreadyDone means a completion marker exists.
	AlreadyDone
	// InProgress means another holder owns an unexpired lease.
	InProgress
)

func (s Status) String() string {
	switch s {
	case Acquired:
		return "acquired"
	case AlreadyDone:
		return "already_done"
	case InProgress:
		return "in_progress"
	}
	return "unknown"
}

const valueDone = "done"

// Lease identifies one holder's claim on a key. Token is unique per Acquire
// so that a holder whose lease expired cannot release its successor's claim.
type Lease struct {
	Key   string
	Token string
}

// Guard claims a key before a side effect and marks it afterwards. A lease
// that is neither completed nor released expires after its TTL so that a
// crashed holder does not block the key forever.
type Guard interface {
	// Acquire claims key for ttl. The returned Lease is only meaningful when
	// the status is Acquired.
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, Status, error)
	// Complete writes the completion marker. It overwrites a successor's
	// lease: the side effect has happened and must not be repeated.
	Complete(ctx context.Context, lease Lease, ttl time.Duration) error
	// Release drops the claim if, and only if, lease still holds it.
	Release(ctx context.Context, lease Lease) error
}

func newLease(key string) Lease {
	return Lease{Key: key, Token: uuid.NewString()}
}

// MarkerKey names the completion marker for one lead on one channel.
func MarkerKey(channel, leadID string) string {
	return "notified:" + channel + ":" + leadID
}
