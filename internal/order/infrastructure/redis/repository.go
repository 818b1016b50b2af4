package redis

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dmehra2102/order-payment-service/internal/order/application"
	"github.com/dmehra2102/order-payment-service/internal/order/domain"
	"github.com/dmehra2102/order-payment-service/pkg/cache"
	"github.com/dmehra2102/order-payment-service/pkg/outbox"
)

// CachedRepository serves single-order reads from Redis and falls back to the
// wrapped repository on a miss. Cache errors never fail a read.
type CachedRepository struct {
	log   *slog.Logger
	next  application.OrderRepository
	cache *cache.Store
}

func NewCachedRepository(log *slog.Logger, next application.OrderRepository, c *cache.Store) *CachedRepository {
	return &CachedRepository{log: log, next: next, cache: c}
}

func (r *CachedRepository) Create(ctx context.Context, o *domain.Order, ev outbox.Event) error {
	return r.next.Create(ctx, o, ev)
}

func (r *CachedRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	key := r.cache.Key("order", id)

	var o domain.Order
	err := r.cache.Get(ctx, key, &o)
	if err == nil {
		return o, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		r.log.Warn("order cache read failed", "order_id", id, "err", err)
	}

	version, verr := r.cache.Version(ctx, key)
	o, err = r.next.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if verr != nil {
		return o, nil
	}
	switch err := r.cache.Fill(ctx, key, version, o); {
	case errors.Is(err, cache.ErrStale):
		r.log.Debug("order changed while loading, not cached", "order_id", id)
	case err != nil:
		r.log.Warn("order cache write failed", "order_id", id, "err", err)
	}
	return o, nil
}

func (r *CachedRepository) List(ctx context.Context) ([]domain.Order, error) {
	return r.next.List(ctx)
}

func (r *CachedRepository) Delete(ctx context.Context, id string) error {
	if err := r.next.Delete(ctx, id); err != nil {
		return err
	}
	return r.Forget(ctx, id)
}

// Forget drops the cached copy of an order. A read that loaded the order
// before the call will not cache its copy.
func (r *CachedRepository) Forget(ctx context.Context, orderID string) error {
	return r.cache.Invalidate(ctx, r.cache.Key("order", orderID))
}
