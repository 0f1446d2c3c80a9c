package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	apperrors "leadflow/pkg/errors"
	"leadflow/pkg/metrics"
	"leadflow/pkg/models"
)

const (
	reasonMaxAttempts       = "max attempts exceeded"
	reasonVisibilityExpired = "visibility timeout expired"
	reclaimBatch            = 100
)

// RedisQueue is a delay queue on Redis sorted sets. State changes run as Lua
// scripts so that concurrent workers never claim the same visible task.
type RedisQueue struct {
	client *redis.Client
	opts   Options
	keys   []string
}

func NewRedisQueue(client *redis.Client, prefix string, opts Options) *RedisQueue {
	if prefix == "" {
		prefix = "leadflow:queue"
	}
	// Hash tag keeps every key in one cluster slot.
	tag := "{" + prefix + "}"
	return &RedisQueue{
		client: client,
		opts:   opts.withDefaults(),
		keys: []string{
			tag + ":tasks",
			tag + ":ready",
			tag + ":inflight",
			tag + ":claims",
			tag + ":attempts",
			tag + ":errors",
			tag + ":dead",
			tag + ":reasons",
		},
	}
}

func (q *RedisQueue) Schedule(ctx context.Context, leadID, rawRef string, delay time.Duration) (*models.DeliveryTask, bool, error) {
	task := models.NewDeliveryTask(leadID, rawRef, q.opts.Now(), delay)
	task.VisibilityTimeout = q.opts.VisibilityTimeout
	if err := task.Transition(models.TaskDelayed); err != nil {
		return nil, false, apperrors.ErrInternal.WithCause(err)
	}

	data, err := json.Marshal(task)
	if err != nil {
		return nil, false, apperrors.ErrInternal.WithCause(err)
	}

	existing, err := scheduleScript.Run(ctx, q.client, q.keys, task.ID, data, task.NotBefore.UnixMilli()).Text()
	if err != nil {
		return nil, false, apperrors.TransientStorage(fmt.Errorf("schedule %s: %w", leadID, err))
	}
	if existing == "" {
		return task, true, nil
	}

	var stored models.DeliveryTask
	if err := json.Unmarshal([]byte(existing), &stored); err != nil {
		return nil, false, apperrors.ErrInternal.WithCause(err)
	}
	return &stored, false, nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (*models.DeliveryTask, error) {
	for {
		if err := q.reclaim(ctx); err != nil {
			return nil, err
		}
		task, err := q.claim(ctx)
		if err != nil {
			return nil, err
		}
		if task != nil {
			return task, nil
		}
		if err := sleep(ctx, q.opts.PollInterval); err != nil {
			return nil, err
		}
	}
}

func (q *RedisQueue) claim(ctx context.Context) (*models.DeliveryTask, error) {
	now := q.opts.Now()
	token := uuid.NewString()
	deadline := now.Add(q.opts.VisibilityTimeout)

	res, err := claimScript.Run(ctx, q.client, q.keys, now.UnixMilli(), deadline.UnixMilli(), token).StringSlice()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.TransientStorage(fmt.Errorf("claim task: %w", err))
	}
	if len(res) != 3 || res[1] == "" {
		// Orphaned id without a task body; it has been dropped from ready.
		return nil, nil
	}

	var task models.DeliveryTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		return nil, apperrors.ErrInternal.WithCause(fmt.Errorf("decode task %s: %w", res[0], err))
	}
	task.AttemptCount, _ = strconv.Atoi(res[2])
	task.State = models.TaskDelayed
	if err := task.Transition(models.TaskClaimed); err != nil {
		return nil, apperrors.ErrInternal.WithCause(err)
	}
	task.ClaimToken = token
	task.ClaimedAt = now
	return &task, nil
}

func (q *RedisQueue) reclaim(ctx context.Context) error {
	now := q.opts.Now().UnixMilli()
	res, err := reclaimScript.Run(ctx, q.client, q.keys, now, q.opts.MaxAttempts, reclaimBatch, reasonVisibilityExpired, reasonMaxAttempts).Int64Slice()
	if err != nil {
		return apperrors.TransientStorage(fmt.Errorf("reclaim expired claims: %w", err))
	}
	if len(res) == 2 {
		for i := int64(0); i < res[1]; i++ {
			metrics.IncDeadLetter("max_attempts")
		}
	}
	return nil
}

func (q *RedisQueue) Ack(ctx context.Context, task *models.DeliveryTask) error {
	ok, err := ackScript.Run(ctx, q.client, q.keys, task.ID, task.ClaimToken).Int64()
	if err != nil {
		return apperrors.TransientStorage(fmt.Errorf("ack %s: %w", task.ID, err))
	}
	if ok == 0 {
		return ErrClaimLost
	}
	return task.Transition(models.TaskProcessed)
}

func (q *RedisQueue) Nack(ctx context.Context, task *models.DeliveryTask, cause error) (Outcome, error) {
	return q.fail(ctx, task, cause, false, reasonMaxAttempts)
}

func (q *RedisQueue) DeadLetter(ctx context.Context, task *models.DeliveryTask, reason string) error {
	_, err := q.fail(ctx, task, errors.New(reason), true, reason)
	return err
}

func (q *RedisQueue) fail(ctx context.Context, task *models.DeliveryTask, cause error, terminal bool, reason string) (Outcome, error) {
	now := q.opts.Now()
	retryAt := now.Add(q.opts.retryDelay(task.AttemptCount + 1))
	terminalFlag := "0"
	if terminal {
		terminalFlag = "1"
	}

	res, err := failScript.Run(ctx, q.client, q.keys,
		task.ID, task.ClaimToken, q.opts.MaxAttempts, retryAt.UnixMilli(),
		errorText(cause), now.UnixMilli(), terminalFlag, reason,
	).Int64Slice()
	if err != nil {
		return "", apperrors.TransientStorage(fmt.Errorf("fail %s: %w", task.ID, err))
	}
	if len(res) != 2 || res[0] < 0 {
		return "", ErrClaimLost
	}

	task.AttemptCount = int(res[1])
	task.LastError = errorText(cause)
	return applyFailure(task, res[0] == 2, terminal, reason, now)
}

// applyFailure walks task through the failure states and records metrics.
func applyFailure(task *models.DeliveryTask, dead, terminal bool, reason string, now time.Time) (Outcome, error) {
	failed := models.TaskFailedRetryable
	if terminal {
		failed = models.TaskFailedTerminal
	}
	if err := task.Transition(failed); err != nil {
		return "", err
	}
	task.ClaimToken = ""

	if !dead {
		return OutcomeRequeued, task.Transition(models.TaskDelayed)
	}

	task.DeadLetterReason = reason
	task.DeadLetteredAt = now
	if terminal {
		metrics.IncDeadLetter("terminal")
	} else {
		metrics.IncDeadLetter("max_attempts")
	}
	return OutcomeDeadLettered, task.Transition(models.TaskDeadLettered)
}

func (q *RedisQueue) DeadLetters(ctx context.Context, limit int) ([]*models.DeliveryTask, error) {
	if limit <= 0 {
		limit = 100
	}
	entries, err := q.client.ZRevRangeWithScores(ctx, q.keys[6], 0, int64(limit-1)).Result()
	if err != nil {
		return nil, apperrors.TransientStorage(fmt.Errorf("list dead letters: %w", err))
	}
	if len(entries) == 0 {
		return []*models.DeliveryTask{}, nil
	}

	type row struct {
		body, attempts, lastErr, reason *redis.StringCmd
	}
	rows := make([]row, len(entries))
	_, err = q.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, entry := range entries {
			id := entry.Member.(string)
			rows[i] = row{
				body:     p.HGet(ctx, q.keys[0], id),
				attempts: p.HGet(ctx, q.keys[4], id),
				lastErr:  p.HGet(ctx, q.keys[5], id),
				reason:   p.HGet(ctx, q.keys[7], id),
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, apperrors.TransientStorage(fmt.Errorf("load dead letters: %w", err))
	}

	tasks := make([]*models.DeliveryTask, 0, len(entries))
	for i, entry := range entries {
		var task models.DeliveryTask
		if err := json.Unmarshal([]byte(rows[i].body.Val()), &task); err != nil {
			task = models.DeliveryTask{ID: entry.Member.(string), LeadID: entry.Member.(string)}
		}
		task.AttemptCount, _ = strconv.Atoi(rows[i].attempts.Val())
		task.LastError = rows[i].lastErr.Val()
		task.DeadLetterReason = rows[i].reason.Val()
		task.DeadLetteredAt = time.UnixMilli(int64(entry.Score)).UTC()
		task.State = models.TaskDeadLettered
		tasks = append(tasks, &task)
	}
	return tasks, nil
}

func (q *RedisQueue) Requeue(ctx context.Context, leadID string) error {
	ok, err := requeueScript.Run(ctx, q.client, q.keys, leadID, q.opts.Now().UnixMilli()).Int64()
	if err != nil {
		return apperrors.TransientStorage(fmt.Errorf("requeue %s: %w", leadID, err))
	}
	if ok == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (q *RedisQueue) Stats(ctx context.Context) (Stats, error) {
	now := strconv.FormatInt(q.opts.Now().UnixMilli(), 10)

	var visible, ready, inflight, dead *redis.IntCmd
	_, err := q.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		visible = p.ZCount(ctx, q.keys[1], "-inf", now)
		ready = p.ZCard(ctx, q.keys[1])
		inflight = p.ZCard(ctx, q.keys[2])
		dead = p.ZCard(ctx, q.keys[6])
		return nil
	})
	if err != nil {
		return Stats{}, apperrors.TransientStorage(fmt.Errorf("queue stats: %w", err))
	}

	stats := Stats{
		Delayed:  ready.Val() - visible.Val(),
		Visible:  visible.Val(),
		Inflight: inflight.Val(),
		Dead:     dead.Val(),
	}
	stats.publish()
	return stats, nil
}

func (s Stats) publish() {
	metrics.SetQueueDepth("delayed", s.Delayed)
	metrics.SetQueueDepth("visible", s.Visible)
	metrics.SetQueueDepth("inflight", s.Inflight)
	metrics.SetQueueDepth("dead", s.Dead)
}
