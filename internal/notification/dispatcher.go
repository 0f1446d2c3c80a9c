package notification

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"leadflow/internal/idempotency"
	"leadflow/internal/logger"
	"leadflow/pkg/metrics"
	"leadflow/pkg/models"
)

type DispatcherConfig struct {
	// LeaseTTL bounds how long an in-flight send blocks other workers.
	LeaseTTL time.Duration
	// MarkerTTL is how long a sent marker suppresses repeat alerts.
	MarkerTTL time.Duration
}

// Dispatcher fans an enriched lead out to channels. Each channel is guarded
// by a (lead_id, channel) marker: claim, send, then mark sent, or release the
// claim on failure. Channels never affect each other.
type Dispatcher struct {
	channels map[models.Channel]Channel
	order    []models.Channel
	guard    idempotency.Guard
	records  RecordStore
	cfg      DispatcherConfig
	logger   logger.Logger
	now      func() time.Time
}

func NewDispatcher(guard idempotency.Guard, records RecordStore, cfg DispatcherConfig, log logger.Logger, channels ...Channel) *Dispatcher {
	d := &Dispatcher{
		channels: make(map[models.Channel]Channel, len(channels)),
		guard:    guard,
		records:  records,
		cfg:      cfg,
		logger:   log,
		now:      time.Now,
	}
	for _, ch := range channels {
		if _, dup := d.channels[ch.Type()]; !dup {
			d.order = append(d.order, ch.Type())
		}
		d.channels[ch.Type()] = ch
	}
	return d
}

// Channels lists the configured channels in registration order.
func (d *Dispatcher) Channels() []models.Channel {
	out := make([]models.Channel, len(d.order))
	copy(out, d.order)
	return out
}

// Notify delivers lead to every channel in channels concurrently and returns
// one record per channel. It never returns an error: failures are isolated
// per channel and reported in the records.
func (d *Dispatcher) Notify(ctx context.Context, lead *models.EnrichedLead, channels []models.Channel) []models.NotificationRecord {
	results := make([]models.NotificationRecord, len(channels))

	var g errgroup.Group
	for i, channel := range channels {
		g.Go(func() error {
			results[i] = d.notifyOne(ctx, lead, channel)
			return nil
		})
	}
	_ = g.Wait()

	for _, rec := range results {
		if d.records == nil {
			break
		}
		if err := d.records.Save(ctx, rec); err != nil {
			d.logger.WarnwCtx(ctx, "Failed to save notification record",
				"channel", rec.Channel,
				"error", err,
			)
		}
	}
	return results
}

// NotifyAll delivers to every configured channel.
func (d *Dispatcher) NotifyAll(ctx context.Context, lead *models.EnrichedLead) []models.NotificationRecord {
	return d.Notify(ctx, lead, d.order)
}

func (d *Dispatcher) notifyOne(ctx context.Context, lead *models.EnrichedLead, channel models.Channel) models.NotificationRecord {
	rec := models.NotificationRecord{
		LeadID:      lead.LeadID,
		Channel:     channel,
		DedupKey:    idempotency.DedupKey(lead.LeadID, string(channel)),
		AttemptedAt: d.now().UTC(),
	}
	defer func() {
		metrics.IncNotification(string(rec.Channel), string(rec.Status))
	}()

	impl, ok := d.channels[channel]
	if !ok {
		rec.Status = models.NotificationFailed
		rec.Error = fmt.Sprintf("channel %s is not configured", channel)
		d.logger.ErrorwCtx(ctx, "Notification channel not configured", "channel", channel)
		return rec
	}

	marker := idempotency.MarkerKey(string(channel), lead.LeadID)
	lease, status, err := d.guard.Acquire(ctx, marker, d.cfg.LeaseTTL)
	if err != nil {
		// Without the marker a send could duplicate an alert.
		rec.Status = models.NotificationFailed
		rec.Error = err.Error()
		d.logger.ErrorwCtx(ctx, "Notification marker unavailable, not sending",
			"channel", channel,
			"error", err,
		)
		return rec
	}
	switch status {
	case idempotency.AlreadyDone:
		rec.Status = models.NotificationSkipped
		d.logger.InfowCtx(ctx, "Notification skipped", "channel", channel, "reason", status.String())
		return rec
	case idempotency.InProgress:
		// The holder may still fail and release; the caller retries later.
		rec.Status = models.NotificationDeferred
		rec.Error = "notification in progress on another worker"
		d.logger.InfowCtx(ctx, "Notification deferred", "channel", channel, "reason", status.String())
		return rec
	}

	if err := impl.Send(ctx, Message{Lead: lead, DedupKey: rec.DedupKey}); err != nil {
		if relErr := d.guard.Release(ctx, lease); relErr != nil {
			d.logger.WarnwCtx(ctx, "Failed to release notification marker",
				"channel", channel,
				"error", relErr,
			)
		}
		rec.Status = models.NotificationFailed
		rec.Error = err.Error()
		d.logger.ErrorwCtx(ctx, "Notification failed",
			"channel", channel,
			"error", err,
		)
		return rec
	}

	if err := d.guard.Complete(ctx, lease, d.cfg.MarkerTTL); err != nil {
		d.logger.WarnwCtx(ctx, "Failed to mark notification sent",
			"channel", channel,
			"error", err,
		)
	}
	rec.Status = models.NotificationSent
	d.logger.InfowCtx(ctx, "Notification sent", "channel", channel)
	return rec
}
