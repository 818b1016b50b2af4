// Package memory is a process-local store for orders, payments and outbox
// events. It provides the same guarantees the Postgres store gets from row
// locks and transactions: one writer per order at a time and atomic commits.
package memory

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	orderdomain "github.com/dmehra2102/order-payment-service/internal/order/domain"
	paymentapp "github.com/dmehra2102/order-payment-service/internal/payment/application"
	"github.com/dmehra2102/order-payment-service/internal/payment/domain"
	"github.com/dmehra2102/order-payment-service/pkg/outbox"
)

const maxOutboxRetries = 5

type orderRow struct {
	order orderdomain.Order
	seq   int64
}

type Store struct {
	mu       sync.RWMutex
	orders   map[string]*orderRow
	payments map[string][]domain.Payment
	events   []outbox.Event
	leases   map[int64]time.Time
	seq      int64
	eventSeq int64

	locksMu sync.Mutex
	locks   map[string]chan struct{}

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		orders:   map[string]*orderRow{},
		payments: map[string][]domain.Payment{},
		leases:   map[int64]time.Time{},
		locks:    map[string]chan struct{}{},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Create(_ context.Context, o *orderdomain.Order, ev outbox.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	o.CreatedAt, o.UpdatedAt = now, now
	s.seq++
	stored := *o
	stored.Payments = nil
	s.orders[o.ID] = &orderRow{order: stored, seq: s.seq}
	s.appendEventLocked(ev)
	return nil
}

func (s *Store) Get(_ context.Context, id string) (orderdomain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.orders[id]
	if !ok {
		return orderdomain.Order{}, orderdomain.ErrOrderNotFound
	}
	return s.withPaymentsLocked(row.order), nil
}

func (s *Store) List(context.Context) ([]orderdomain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]*orderRow, 0, len(s.orders))
	for _, r := range s.orders {
		rows = append(rows, r)
	}
	slices.SortFunc(rows, func(a, b *orderRow) int { return cmp.Compare(b.seq, a.seq) })

	out := make([]orderdomain.Order, 0, len(rows))
	for _, r := range rows {
		out = append(out, s.withPaymentsLocked(r.order))
	}
	return out, nil
}

// Delete removes the order together with its payments.
func (s *Store) Delete(ctx context.Context, id string) error {
	release, err := s.acquire(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[id]; !ok {
		return orderdomain.ErrOrderNotFound
	}
	delete(s.orders, id)
	delete(s.payments, id)
	return nil
}

func (s *Store) ListByOrder(_ context.Context, orderID string) ([]domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.orders[orderID]; !ok {
		return nil, orderdomain.ErrOrderNotFound
	}
	return s.paymentsLocked(orderID), nil
}

// Do runs fn as a unit of work. Writes are buffered and applied under the
// store lock only when fn succeeds.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, tx paymentapp.Tx) error) error {
	tx := &unitTx{store: s, ops: &[]op{}}
	defer tx.release()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, apply := range *tx.ops {
		apply(s)
	}
	return nil
}

// Events returns a copy of the outbox, oldest first.
func (s *Store) Events() []outbox.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.events)
}

func (s *Store) acquire(ctx context.Context, orderID string) (func(), error) {
	s.locksMu.Lock()
	ch, ok := s.locks[orderID]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[orderID] = ch
	}
	s.locksMu.Unlock()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Store) withPaymentsLocked(o orderdomain.Order) orderdomain.Order {
	o.Payments = s.paymentsLocked(o.ID)
	return o
}

func (s *Store) paymentsLocked(orderID string) []domain.Payment {
	stored := s.payments[orderID]
	out := make([]domain.Payment, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		p := stored[i]
		p.ResponseData = maps.Clone(p.ResponseData)
		out = append(out, p)
	}
	return out
}

func (s *Store) appendEventLocked(ev outbox.Event) {
	s.eventSeq++
	ev.ID = s.eventSeq
	ev.Status = outbox.StatusPending
	ev.CreatedAt = s.now()
	s.events = append(s.events, ev)
}
