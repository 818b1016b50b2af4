package memory

import (
	"context"
	"maps"

	orderdomain "github.com/dmehra2102/order-payment-service/internal/order/domain"
	paymentapp "github.com/dmehra2102/order-payment-service/internal/payment/application"
	"github.com/dmehra2102/order-payment-service/internal/payment/domain"
	"github.com/dmehra2102/order-payment-service/pkg/outbox"
)

type op func(s *Store)

type unitTx struct {
	store    *Store
	ops      *[]op
	releases *[]func()
	held     map[string]bool
}

func (t *unitTx) release() {
	if t.releases == nil {
		return
	}
	for _, r := range *t.releases {
		r()
	}
}

func (t *unitTx) LockOrder(ctx context.Context, orderID string) (orderdomain.Order, error) {
	if t.held == nil {
		t.held = map[string]bool{}
		t.releases = &[]func(){}
	}
	if !t.held[orderID] {
		release, err := t.store.acquire(ctx, orderID)
		if err != nil {
			return orderdomain.Order{}, err
		}
		t.held[orderID] = true
		*t.releases = append(*t.releases, release)
	}

	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	row, ok := t.store.orders[orderID]
	if !ok {
		return orderdomain.Order{}, orderdomain.ErrOrderNotFound
	}
	return t.store.withPaymentsLocked(row.order), nil
}

func (t *unitTx) InsertPayment(_ context.Context, p *domain.Payment) error {
	now := t.store.now()
	p.CreatedAt, p.UpdatedAt = now, now
	cp := *p
	cp.ResponseData = maps.Clone(p.ResponseData)
	t.push(func(s *Store) {
		s.payments[cp.OrderID] = append(s.payments[cp.OrderID], cp)
	})
	return nil
}

func (t *unitTx) UpdatePayment(_ context.Context, p *domain.Payment) error {
	p.UpdatedAt = t.store.now()
	cp := *p
	cp.ResponseData = maps.Clone(p.ResponseData)
	t.push(func(s *Store) {
		list := s.payments[cp.OrderID]
		for i := range list {
			if list[i].ID == cp.ID {
				list[i] = cp
				return
			}
		}
	})
	return nil
}

func (t *unitTx) UpdateOrderStatus(_ context.Context, o *orderdomain.Order) error {
	o.UpdatedAt = t.store.now()
	id, status, updated := o.ID, o.Status, o.UpdatedAt
	t.push(func(s *Store) {
		if row, ok := s.orders[id]; ok {
			row.order.Status = status
			row.order.UpdatedAt = updated
		}
	})
	return nil
}

func (t *unitTx) AppendEvent(_ context.Context, ev outbox.Event) error {
	t.push(func(s *Store) { s.appendEventLocked(ev) })
	return nil
}

func (t *unitTx) Savepoint(ctx context.Context, fn func(ctx context.Context, tx paymentapp.Tx) error) error {
	mark := len(*t.ops)
	if err := fn(ctx, t); err != nil {
		*t.ops = (*t.ops)[:mark]
		return err
	}
	return nil
}

func (t *unitTx) push(o op) {
	*t.ops = append(*t.ops, o)
}
