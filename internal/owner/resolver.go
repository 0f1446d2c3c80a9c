// Package owner looks up the sales owner of a lead in the external owner
// store. Resolvers return (nil, nil) when no record exists and a transient
// lookup error when the store cannot be reached.
package owner

import (
	"context"
	"time"

	"leadflow/internal/logger"
	apperrors "leadflow/pkg/errors"
	"leadflow/pkg/metrics"
	"leadflow/pkg/models"
)

type Resolver interface {
	Resolve(ctx context.Context, leadID string) (*models.OwnerRecord, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, leadID string) (*models.OwnerRecord, error)

func (f ResolverFunc) Resolve(ctx context.Context, leadID string) (*models.OwnerRecord, error) {
	return f(ctx, leadID)
}

// pickRecord applies most-recent-wins when the store holds several records
// for one lead.
func pickRecord(log logger.Logger, source, leadID string, records []models.OwnerRecord) *models.OwnerRecord {
	rec, ok := models.MostRecent(records)
	if !ok {
		return nil
	}
	if len(records) > 1 {
		log.Warnw("Multiple owner records for lead, using most recent",
			"lead_id", leadID,
			"source", source,
			"count", len(records),
			"updated_at", rec.UpdatedAt,
		)
	}
	if rec.LeadID == "" {
		rec.LeadID = leadID
	}
	return &rec
}

// instrumented records lookup outcome and latency per source.
type instrumented struct {
	next   Resolver
	source string
}

func withMetrics(next Resolver, source string) Resolver {
	return &instrumented{next: next, source: source}
}

func (r *instrumented) Resolve(ctx context.Context, leadID string) (*models.OwnerRecord, error) {
	start := time.Now()
	rec, err := r.next.Resolve(ctx, leadID)

	result := "found"
	switch {
	case err != nil:
		result = "error"
	case rec == nil:
		result = "not_found"
	}
	metrics.ObserveOwnerLookup(r.source, result, time.Since(start))

	if err != nil && !apperrors.IsTransient(err) {
		err = apperrors.TransientLookup(err)
	}
	return rec, err
}
