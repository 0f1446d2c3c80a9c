package owner

import (
	"context"
	"fmt"

	"leadflow/pkg/circuitbreaker"
	apperrors "leadflow/pkg/errors"
	"leadflow/pkg/models"
)

// BreakerResolver stops calling a failing owner store until it recovers.
// Breaker rejections surface as transient lookup errors.
type BreakerResolver struct {
	next Resolver
	cb   *circuitbreaker.Wrapper
}

func NewBreakerResolver(next Resolver, cfg circuitbreaker.Config) *BreakerResolver {
	return &BreakerResolver{next: next, cb: circuitbreaker.NewWrapper(cfg)}
}

func (r *BreakerResolver) Resolve(ctx context.Context, leadID string) (*models.OwnerRecord, error) {
	var rec *models.OwnerRecord
	err := r.cb.Do(ctx, func(ctx context.Context) error {
		var err error
		rec, err = r.next.Resolve(ctx, leadID)
		return err
	})
	if err != nil {
		if circuitbreaker.IsBreakerError(err) {
			return nil, apperrors.TransientLookup(fmt.Errorf("circuit breaker %s: %w", r.cb.Name(), err))
		}
		return nil, err
	}
	return rec, nil
}

func (r *BreakerResolver) State() string {
	return r.cb.State().String()
}
