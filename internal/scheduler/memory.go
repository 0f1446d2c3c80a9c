package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"leadflow/pkg/models"
)

type memEntry struct {
	task      models.DeliveryTask
	visibleAt time.Time
	deadline  time.Time
	inflight  bool
	dead      bool
}

// MemoryQueue implements Queue in process. It follows the same claim and
// dead-letter rules as RedisQueue and is used by tests and local runs.
type MemoryQueue struct {
	mu      sync.Mutex
	opts    Options
	entries map[string]*memEntry
}

func NewMemoryQueue(opts Options) *MemoryQueue {
	return &MemoryQueue{
		opts:    opts.withDefaults(),
		entries: make(map[string]*memEntry),
	}
}

func (q *MemoryQueue) Schedule(_ context.Context, leadID, rawRef string, delay time.Duration) (*models.DeliveryTask, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if e, ok := q.entries[leadID]; ok {
		task := e.task
		return &task, false, nil
	}

	task := models.NewDeliveryTask(leadID, rawRef, q.opts.Now(), delay)
	task.VisibilityTimeout = q.opts.VisibilityTimeout
	if err := task.Transition(models.TaskDelayed); err != nil {
		return nil, false, err
	}
	q.entries[leadID] = &memEntry{task: *task, visibleAt: task.NotBefore}
	out := *task
	return &out, true, nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (*models.DeliveryTask, error) {
	for {
		if task := q.claim(); task != nil {
			return task, nil
		}
		if err := sleep(ctx, q.opts.PollInterval); err != nil {
			return nil, err
		}
	}
}

func (q *MemoryQueue) claim() *models.DeliveryTask {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.opts.Now()
	q.reclaimLocked(now)

	var next *memEntry
	for _, e := range q.entries {
		if e.dead || e.inflight || now.Before(e.visibleAt) {
			continue
		}
		if next == nil || e.visibleAt.Before(next.visibleAt) {
			next = e
		}
	}
	if next == nil {
		return nil
	}

	next.task.State = models.TaskDelayed
	_ = next.task.Transition(models.TaskClaimed)
	next.task.ClaimToken = uuid.NewString()
	next.task.ClaimedAt = now
	next.inflight = true
	next.deadline = now.Add(q.opts.VisibilityTimeout)

	task := next.task
	return &task
}

func (q *MemoryQueue) reclaimLocked(now time.Time) {
	for _, e := range q.entries {
		if !e.inflight || now.Before(e.deadline) {
			continue
		}
		e.inflight = false
		e.task.ClaimToken = ""
		e.task.AttemptCount++
		e.task.LastError = reasonVisibilityExpired
		if e.task.AttemptCount >= q.opts.MaxAttempts {
			q.buryLocked(e, reasonMaxAttempts, now)
			continue
		}
		e.task.State = models.TaskDelayed
		e.visibleAt = now
	}
}

func (q *MemoryQueue) buryLocked(e *memEntry, reason string, now time.Time) {
	e.dead = true
	e.task.State = models.TaskDeadLettered
	e.task.DeadLetterReason = reason
	e.task.DeadLetteredAt = now
}

// claimed returns the entry held under task's claim token.
func (q *MemoryQueue) claimed(task *models.DeliveryTask) (*memEntry, error) {
	e, ok := q.entries[task.ID]
	if !ok || !e.inflight || e.task.ClaimToken != task.ClaimToken {
		return nil, ErrClaimLost
	}
	return e, nil
}

func (q *MemoryQueue) Ack(_ context.Context, task *models.DeliveryTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, err := q.claimed(task); err != nil {
		return err
	}
	delete(q.entries, task.ID)
	return task.Transition(models.TaskProcessed)
}

func (q *MemoryQueue) Nack(_ context.Context, task *models.DeliveryTask, cause error) (Outcome, error) {
	return q.fail(task, cause, false, reasonMaxAttempts)
}

func (q *MemoryQueue) DeadLetter(_ context.Context, task *models.DeliveryTask, reason string) error {
	_, err := q.fail(task, errors.New(reason), true, reason)
	return err
}

func (q *MemoryQueue) fail(task *models.DeliveryTask, cause error, terminal bool, reason string) (Outcome, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, err := q.claimed(task)
	if err != nil {
		return "", err
	}

	now := q.opts.Now()
	e.inflight = false
	e.task.ClaimToken = ""
	e.task.AttemptCount++
	e.task.LastError = errorText(cause)

	task.AttemptCount = e.task.AttemptCount
	task.LastError = e.task.LastError

	dead := terminal || e.task.AttemptCount >= q.opts.MaxAttempts
	if dead {
		q.buryLocked(e, reason, now)
	} else {
		e.task.State = models.TaskDelayed
		e.visibleAt = now.Add(q.opts.retryDelay(e.task.AttemptCount))
	}
	return applyFailure(task, dead, terminal, reason, now)
}

func (q *MemoryQueue) DeadLetters(_ context.Context, limit int) ([]*models.DeliveryTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if limit <= 0 {
		limit = 100
	}
	out := make([]*models.DeliveryTask, 0)
	for _, e := range q.entries {
		if e.dead {
			task := e.task
			out = append(out, &task)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DeadLetteredAt.After(out[j].DeadLetteredAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (q *MemoryQueue) Requeue(_ context.Context, leadID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[leadID]
	if !ok || !e.dead {
		return ErrTaskNotFound
	}
	e.dead = false
	e.task.State = models.TaskDelayed
	e.task.AttemptCount = 0
	e.task.DeadLetterReason = ""
	e.task.DeadLetteredAt = time.Time{}
	e.visibleAt = q.opts.Now()
	return nil
}

func (q *MemoryQueue) Stats(_ context.Context) (Stats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.opts.Now()
	var s Stats
	for _, e := range q.entries {
		switch {
		case e.dead:
			s.Dead++
		case e.inflight:
			s.Inflight++
		case now.Before(e.visibleAt):
			s.Delayed++
		default:
			s.Visible++
		}
	}
	s.publish()
	return s, nil
}
