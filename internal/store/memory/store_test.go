package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	orderdomain "github.com/dmehra2102/order-payment-service/internal/order/domain"
	paymentapp "github.com/dmehra2102/order-payment-service/internal/payment/application"
	"github.com/dmehra2102/order-payment-service/internal/payment/domain"
	"github.com/dmehra2102/order-payment-service/pkg/outbox"
)

func seedOrder(t *testing.T, s *Store, name string) orderdomain.Order {
	t.Helper()
	o := orderdomain.NewOrder(name, decimal.RequireFromString("150.50"))
	require.NoError(t, s.Create(context.Background(), &o, outbox.Event{Type: orderdomain.EventOrderCreated, AggregateID: o.ID}))
	return o
}

func addPayment(t *testing.T, s *Store, orderID string) domain.Payment {
	t.Helper()
	var p domain.Payment
	err := s.Do(context.Background(), func(ctx context.Context, tx paymentapp.Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		p = domain.NewPayment(o.ID, o.TotalAmount)
		return tx.InsertPayment(ctx, &p)
	})
	require.NoError(t, err)
	return p
}

func TestStore_CreateGetList(t *testing.T) {
	s := NewStore()
	first := seedOrder(t, s, "first")
	second := seedOrder(t, s, "second")

	assert.False(t, first.CreatedAt.IsZero())

	got, err := s.Get(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", got.CustomerName)
	assert.Equal(t, orderdomain.StatusPending, got.Status)

	list, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)

	_, err = s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, orderdomain.ErrOrderNotFound)

	events := s.Events()
	require.Len(t, events, 2)
	assert.Equal(t, int64(1), events[0].ID)
	assert.Equal(t, outbox.StatusPending, events[0].Status)
}

func TestStore_PaymentsNewestFirst(t *testing.T) {
	s := NewStore()
	o := seedOrder(t, s, "a")
	p1 := addPayment(t, s, o.ID)
	p2 := addPayment(t, s, o.ID)

	payments, err := s.ListByOrder(context.Background(), o.ID)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, p2.ID, payments[0].ID)
	assert.Equal(t, p1.ID, payments[1].ID)

	got, err := s.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.PaymentAttempts())

	_, err = s.ListByOrder(context.Background(), "missing")
	assert.ErrorIs(t, err, orderdomain.ErrOrderNotFound)
}

func TestStore_DeleteCascadesPayments(t *testing.T) {
	s := NewStore()
	o := seedOrder(t, s, "a")
	addPayment(t, s, o.ID)

	require.NoError(t, s.Delete(context.Background(), o.ID))

	_, err := s.Get(context.Background(), o.ID)
	assert.ErrorIs(t, err, orderdomain.ErrOrderNotFound)
	_, err = s.ListByOrder(context.Background(), o.ID)
	assert.ErrorIs(t, err, orderdomain.ErrOrderNotFound)
	assert.Empty(t, s.payments[o.ID])
	assert.ErrorIs(t, s.Delete(context.Background(), o.ID), orderdomain.ErrOrderNotFound)
}

func TestStore_Do_RollsBackOnError(t *testing.T) {
	s := NewStore()
	o := seedOrder(t, s, "a")
	boom := errors.New("boom")

	err := s.Do(context.Background(), func(ctx context.Context, tx paymentapp.Tx) error {
		locked, err := tx.LockOrder(ctx, o.ID)
		require.NoError(t, err)
		p := domain.NewPayment(locked.ID, locked.TotalAmount)
		require.NoError(t, tx.InsertPayment(ctx, &p))
		require.NoError(t, locked.MarkPaid())
		require.NoError(t, tx.UpdateOrderStatus(ctx, &locked))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusPending, got.Status)
	assert.Empty(t, got.Payments)
}

func TestStore_Savepoint_KeepsEarlierWrites(t *testing.T) {
	s := NewStore()
	o := seedOrder(t, s, "a")

	err := s.Do(context.Background(), func(ctx context.Context, tx paymentapp.Tx) error {
		locked, err := tx.LockOrder(ctx, o.ID)
		if err != nil {
			return err
		}
		p := domain.NewPayment(locked.ID, locked.TotalAmount)
		if err := tx.InsertPayment(ctx, &p); err != nil {
			return err
		}
		spErr := tx.Savepoint(ctx, func(ctx context.Context, tx paymentapp.Tx) error {
			attempt := p
			_ = attempt.MarkSucceeded("txn_1", nil)
			_ = tx.UpdatePayment(ctx, &attempt)
			return errors.New("crash")
		})
		assert.Error(t, spErr)
		return nil
	})
	require.NoError(t, err)

	payments, err := s.ListByOrder(context.Background(), o.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, domain.StatusPending, payments[0].Status)
}

func TestStore_LockOrder_SerializesWriters(t *testing.T) {
	s := NewStore()
	o := seedOrder(t, s, "a")

	entered := make(chan struct{})
	proceed := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.Do(context.Background(), func(ctx context.Context, tx paymentapp.Tx) error {
			locked, err := tx.LockOrder(ctx, o.ID)
			if err != nil {
				return err
			}
			close(entered)
			<-proceed
			_ = locked.MarkPaid()
			return tx.UpdateOrderStatus(ctx, &locked)
		})
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.Do(ctx, func(ctx context.Context, tx paymentapp.Tx) error {
		_, err := tx.LockOrder(ctx, o.ID)
		return err
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(proceed)
	wg.Wait()

	err = s.Do(context.Background(), func(ctx context.Context, tx paymentapp.Tx) error {
		locked, err := tx.LockOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, orderdomain.StatusPaid, locked.Status)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_OutboxLeasing(t *testing.T) {
	s := NewStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	seedOrder(t, s, "a")
	seedOrder(t, s, "b")
	ctx := context.Background()

	batch, err := s.LockBatch(ctx, "r1", 10, time.Second)
	require.NoError(t, err)
	require.Len(t, batch, 2)

	again, err := s.LockBatch(ctx, "r2", 10, time.Second)
	require.NoError(t, err)
	assert.Empty(t, again, "leased events are not handed out twice")

	require.NoError(t, s.MarkSent(ctx, []int64{batch[0].ID}))
	require.NoError(t, s.MarkFailed(ctx, batch[1].ID, "broker down"))

	retry, err := s.LockBatch(ctx, "r2", 10, time.Second)
	require.NoError(t, err)
	require.Len(t, retry, 1)
	assert.Equal(t, batch[1].ID, retry[0].ID)
	assert.Equal(t, 1, retry[0].RetryCount)

	now = now.Add(2 * time.Second)
	expired, err := s.LockBatch(ctx, "r3", 10, time.Second)
	require.NoError(t, err)
	require.Len(t, expired, 1, "expired lease is reclaimed")
	assert.Equal(t, "r3", expired[0].RelayID)
}

func TestStore_OutboxGivesUpAfterRetries(t *testing.T) {
	s := NewStore()
	seedOrder(t, s, "a")
	ctx := context.Background()

	for range maxOutboxRetries {
		batch, err := s.LockBatch(ctx, "r", 1, time.Minute)
		require.NoError(t, err)
		require.Len(t, batch, 1)
		require.NoError(t, s.MarkFailed(ctx, batch[0].ID, "nope"))
	}

	batch, err := s.LockBatch(ctx, "r", 1, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, batch)
	assert.Equal(t, outbox.StatusFailed, s.Events()[0].Status)
}
