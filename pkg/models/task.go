package models

import (
	"fmt"
	"time"
)

// TaskState is the lifecycle position of a DeliveryTask.
type TaskState string

const (
	TaskScheduled       TaskState = "scheduled"
	TaskDelayed         TaskState = "delayed"
	TaskClaimed         TaskState = "claimed"
	TaskProcessed       TaskState = "processed"
	TaskFailedRetryable TaskState = "failed_retryable"
	TaskFailedTerminal  TaskState = "failed_terminal"
	TaskDeadLettered    TaskState = "dead_lettered"
)

var taskTransitions = map[TaskState][]TaskState{
	TaskScheduled:       {TaskDelayed},
	TaskDelayed:         {TaskClaimed},
	TaskClaimed:         {TaskProcessed, TaskFailedRetryable, TaskFailedTerminal},
	TaskFailedRetryable: {TaskDelayed, TaskDeadLettered},
	TaskFailedTerminal:  {TaskDeadLettered},
	// Operator requeue from the dead-letter inspection path.
	TaskDeadLettered: {TaskDelayed},
}

func (s TaskState) CanTransition(to TaskState) bool {
	for _, next := range taskTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further automatic transition exists.
func (s TaskState) IsTerminal() bool {
	return s == TaskProcessed || s == TaskDeadLettered
}

// DeliveryTask triggers delayed processing of one raw lead record.
// ID equals LeadID so that scheduling the same lead twice is a no-op.
type DeliveryTask struct {
	ID                string        `json:"id"`
	LeadID            string        `json:"lead_id"`
	RawStorageRef     string        `json:"raw_storage_ref"`
	AttemptCount      int           `json:"attempt_count"`
	ScheduledAt       time.Time     `json:"scheduled_at"`
	NotBefore         time.Time     `json:"not_before"`
	VisibilityTimeout time.Duration `json:"visibility_timeout"`
	State             TaskState     `json:"state"`
	ClaimToken        string        `json:"claim_token,omitempty"`
	ClaimedAt         time.Time     `json:"claimed_at,omitempty"`
	LastError         string        `json:"last_error,omitempty"`
	DeadLetterReason  string        `json:"dead_letter_reason,omitempty"`
	DeadLetteredAt    time.Time     `json:"dead_lettered_at,omitempty"`
}

func NewDeliveryTask(leadID, rawRef string, scheduledAt time.Time, delay time.Duration) *DeliveryTask {
	return &DeliveryTask{
		ID:            leadID,
		LeadID:        leadID,
		RawStorageRef: rawRef,
		ScheduledAt:   scheduledAt.UTC(),
		NotBefore:     scheduledAt.Add(delay).UTC(),
		State:         TaskScheduled,
	}
}

// Transition moves the task to the next state or reports an illegal move.
func (t *DeliveryTask) Transition(to TaskState) error {
	if !t.State.CanTransition(to) {
		return fmt.Errorf("illegal task transition %s -> %s", t.State, to)
	}
	t.State = to
	return nil
}

// Ready reports whether the delay window has elapsed at now.
func (t *DeliveryTask) Ready(now time.Time) bool {
	return !now.Before(t.NotBefore)
}
