package processor

import (
	"context"
	"time"

	"leadflow/internal/logger"
	"leadflow/internal/scheduler"
	"leadflow/internal/storage"
	"leadflow/pkg/metrics"
)

type ReconcilerConfig struct {
	// Interval between sweeps. Zero disables the loop.
	Interval time.Duration
	// Batch is the page size used to list raw records.
	Batch int
	// Delay is the full delay window. Reconciled tasks get the whole window
	// so that enriched_at stays received_at plus the delay.
	Delay time.Duration
}

type SweepResult struct {
	Scanned   int
	Pending   int
	Scheduled int
}

// Reconciler schedules a delivery task for every raw record that has no
// enriched record yet. Ingestion writes the raw record before scheduling,
// so a schedule failure or a crash in between leaves a record without a
// task. Schedule is keyed by lead id: leads that are queued, in flight or
// dead-lettered keep their existing task.
type Reconciler struct {
	queue  scheduler.Queue
	leads  *storage.LeadStore
	cfg    ReconcilerConfig
	logger logger.Logger
}

func NewReconciler(queue scheduler.Queue, leads *storage.LeadStore, cfg ReconcilerConfig, log logger.Logger) *Reconciler {
	if cfg.Batch <= 0 {
		cfg.Batch = 100
	}
	return &Reconciler{queue: queue, leads: leads, cfg: cfg, logger: log}
}

// Run sweeps once at start and then every Interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context) error {
	if r.cfg.Interval <= 0 {
		r.logger.InfowCtx(ctx, "Reconcile sweep disabled")
		return nil
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		r.sweepAndLog(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (r *Reconciler) sweepAndLog(ctx context.Context) {
	res, err := r.Sweep(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.logger.WarnwCtx(ctx, "Reconcile sweep failed",
			"scanned", res.Scanned,
			"scheduled", res.Scheduled,
			"error", err,
		)
		return
	}
	if res.Scheduled > 0 {
		r.logger.WarnwCtx(ctx, "Reconcile sweep scheduled orphaned leads",
			"scanned", res.Scanned,
			"pending", res.Pending,
			"scheduled", res.Scheduled,
		)
	}
}

// Sweep pages through every raw record once.
func (r *Reconciler) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	after := ""
	for {
		page, err := r.leads.ListRaw(ctx, after, r.cfg.Batch)
		if err != nil {
			return res, err
		}

		for i, leadID := range page.LeadIDs {
			res.Scanned++
			enriched, err := r.leads.HasEnriched(ctx, leadID)
			if err != nil {
				return res, err
			}
			if enriched {
				continue
			}

			res.Pending++
			_, created, err := r.queue.Schedule(ctx, leadID, page.Keys[i], r.cfg.Delay)
			if err != nil {
				return res, err
			}
			if !created {
				metrics.IncReconciled("queued")
				continue
			}
			res.Scheduled++
			metrics.IncReconciled("scheduled")
			r.logger.WarnwCtx(ctx, "Scheduled raw lead without a delivery task", "lead_id", leadID)
		}

		if page.Next == "" {
			return res, nil
		}
		after = page.Next
	}
}
