package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	orderdomain "github.com/dmehra2102/order-payment-service/internal/order/domain"
	orderpg "github.com/dmehra2102/order-payment-service/internal/order/infrastructure/postgres"
	"github.com/dmehra2102/order-payment-service/internal/payment/application"
	"github.com/dmehra2102/order-payment-service/internal/payment/domain"
	"github.com/dmehra2102/order-payment-service/pkg/outbox"
)

// Repository is the payment side of the Postgres store: the unit of work used
// by the orchestrator and the payment reads.
type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) Do(ctx context.Context, fn func(ctx context.Context, tx application.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *Repository) ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error) {
	if uuid.Validate(orderID) != nil {
		return nil, orderdomain.ErrOrderNotFound
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id=$1)`, orderID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, orderdomain.ErrOrderNotFound
	}
	payments, err := orderpg.LoadPayments(ctx, r.pool, orderID)
	if err != nil {
		return nil, err
	}
	return payments[orderID], nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockOrder(ctx context.Context, orderID string) (orderdomain.Order, error) {
	if uuid.Validate(orderID) != nil {
		return orderdomain.Order{}, orderdomain.ErrOrderNotFound
	}
	o, err := orderpg.ScanOrder(t.tx.QueryRow(ctx, `SELECT `+orderpg.OrderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, orderID))
	if err != nil {
		return orderdomain.Order{}, err
	}
	payments, err := orderpg.LoadPayments(ctx, t.tx, o.ID)
	if err != nil {
		return orderdomain.Order{}, err
	}
	o.Payments = payments[o.ID]
	return o, nil
}

func (t *pgTx) InsertPayment(ctx context.Context, p *domain.Payment) error {
	return t.tx.QueryRow(ctx, `INSERT INTO payments (id, order_id, amount, status)
		VALUES ($1,$2,$3::text::numeric,$4)
		RETURNING created_at, updated_at`,
		p.ID, p.OrderID, p.Amount.StringFixed(2), string(p.Status)).
		Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (t *pgTx) UpdatePayment(ctx context.Context, p *domain.Payment) error {
	ct, err := t.tx.Exec(ctx, `UPDATE payments
		SET status=$2, transaction_id=$3, error_message=$4, response_data=$5, updated_at=now()
		WHERE id=$1`,
		p.ID, string(p.Status), nullable(p.TransactionID), nullable(p.ErrorMessage), p.ResponseData)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errors.New("payment row missing")
	}
	return nil
}

func (t *pgTx) UpdateOrderStatus(ctx context.Context, o *orderdomain.Order) error {
	return t.tx.QueryRow(ctx, `UPDATE orders SET status=$2, updated_at=now() WHERE id=$1 RETURNING updated_at`,
		o.ID, string(o.Status)).Scan(&o.UpdatedAt)
}

func (t *pgTx) AppendEvent(ctx context.Context, ev outbox.Event) error {
	return orderpg.InsertEvent(ctx, t.tx, ev)
}

// Savepoint runs fn inside a nested transaction, which pgx maps to SAVEPOINT /
// ROLLBACK TO SAVEPOINT.
func (t *pgTx) Savepoint(ctx context.Context, fn func(ctx context.Context, tx application.Tx) error) error {
	nested, err := t.tx.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(ctx, &pgTx{tx: nested}); err != nil {
		if rbErr := nested.Rollback(ctx); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return nested.Commit(ctx)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
