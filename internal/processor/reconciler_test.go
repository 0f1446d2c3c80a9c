package processor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadflow/internal/logger"
	"leadflow/internal/scheduler"
	"leadflow/pkg/models"
)

func (h *harness) storeRaw(t *testing.T, leadID string) {
	t.Helper()
	fields := map[string]interface{}{"lead_id": leadID, "name": "Lead " + leadID}
	_, _, err := h.leads.PutRaw(context.Background(), &models.LeadEvent{
		LeadID:        leadID,
		ReceivedAt:    h.clock.Now(),
		SchemaVersion: "1",
		Fields:        fields,
		SourcePayload: fields,
	})
	require.NoError(t, err)
}

func TestSweepSchedulesOnlyOrphanedLeads(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// R1 was processed, R2 is waiting in the delay window, R3 and R4 were
	// stored without a task.
	h.ingest(t, "R1", map[string]interface{}{"lead_id": "R1", "name": "Done"})
	h.clock.Advance(delay)
	_, err := h.proc.Process(ctx, h.next(t))
	require.NoError(t, err)
	h.ingest(t, "R2", map[string]interface{}{"lead_id": "R2", "name": "Waiting"})
	h.storeRaw(t, "R3")
	h.storeRaw(t, "R4")

	rec := NewReconciler(h.queue, h.leads, ReconcilerConfig{Batch: 2, Delay: delay}, logger.NopLogger())
	res, err := rec.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Scanned: 4, Pending: 3, Scheduled: 2}, res)

	stats, err := h.queue.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, scheduler.Stats{Delayed: 3}, stats)

	// A second sweep finds every pending lead already queued.
	res, err = rec.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Scheduled)

	h.clock.Advance(delay)
	for i := 0; i < 3; i++ {
		outcome, err := h.proc.Process(ctx, h.next(t))
		require.NoError(t, err)
		assert.Equal(t, OutcomeProcessed, outcome)
	}
	assert.Len(t, h.chat.sent(), 4)

	lead, err := h.leads.GetEnriched(ctx, "R3")
	require.NoError(t, err)
	raw, err := h.leads.GetRaw(ctx, "R3")
	require.NoError(t, err)
	assert.Equal(t, raw.ReceivedAt.Add(delay), lead.EnrichedAt)
}

func TestSweepLeavesDeadLettersAlone(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.ingest(t, "D1", map[string]interface{}{"lead_id": "D1"})
	h.clock.Advance(delay)
	require.NoError(t, h.queue.DeadLetter(ctx, h.next(t), "incomplete"))

	rec := NewReconciler(h.queue, h.leads, ReconcilerConfig{Delay: delay}, logger.NopLogger())
	res, err := rec.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Scanned: 1, Pending: 1}, res)

	stats, err := h.queue.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, scheduler.Stats{Dead: 1}, stats)
}

func TestReconcilerRunDisabled(t *testing.T) {
	h := newHarness(t)
	rec := NewReconciler(h.queue, h.leads, ReconcilerConfig{}, logger.NopLogger())
	assert.NoError(t, rec.Run(context.Background()))
}

func TestReconcilerRunSweepsOnStart(t *testing.T) {
	h := newHarness(t)
	h.storeRaw(t, "S1")

	rec := NewReconciler(h.queue, h.leads, ReconcilerConfig{Interval: time.Hour, Delay: delay}, logger.NopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rec.Run(ctx) }()

	require.Eventually(t, func() bool {
		stats, err := h.queue.Stats(context.Background())
		return err == nil && stats.Delayed == 1
	}, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}
