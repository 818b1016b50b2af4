package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/order-payment-service/internal/order/domain"
	paymentdomain "github.com/dmehra2102/order-payment-service/internal/payment/domain"
	"github.com/dmehra2102/order-payment-service/pkg/outbox"
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// OrderColumns is the select list ScanOrder expects.
const OrderColumns = `id::text, customer_name, total_amount::text, status, created_at, updated_at`

const paymentColumns = `id::text, order_id::text, amount::text, status, transaction_id, error_message, response_data, created_at, updated_at`

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *Repository) Create(ctx context.Context, o *domain.Order, ev outbox.Event) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	err = tx.QueryRow(ctx, `INSERT INTO orders (id, customer_name, total_amount, status)
			VALUES ($1,$2,$3::text::numeric,$4)
			RETURNING created_at, updated_at`,
		o.ID, o.CustomerName, o.TotalAmount.StringFixed(2), string(o.Status)).
		Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	if err := InsertEvent(ctx, tx, ev); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

var snapshotTx = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}

// readSnapshot runs fn in a read-only repeatable read transaction so that an
// order and its payments come from the same commit.
func (r *Repository) readSnapshot(ctx context.Context, fn func(pgx.Tx) error) error {
	return pgx.BeginTxFunc(ctx, r.pool, snapshotTx, fn)
}

func (r *Repository) Get(ctx context.Context, id string) (domain.Order, error) {
	if uuid.Validate(id) != nil {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	var o domain.Order
	err := r.readSnapshot(ctx, func(tx pgx.Tx) error {
		var err error
		o, err = ScanOrder(tx.QueryRow(ctx, `SELECT `+OrderColumns+` FROM orders WHERE id=$1`, id))
		if err != nil {
			return err
		}
		payments, err := LoadPayments(ctx, tx, o.ID)
		if err != nil {
			return err
		}
		o.Payments = payments[o.ID]
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func (r *Repository) List(ctx context.Context) ([]domain.Order, error) {
	orders := []domain.Order{}
	err := r.readSnapshot(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT `+OrderColumns+` FROM orders ORDER BY seq DESC`)
		if err != nil {
			return err
		}
		orders, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Order, error) {
			return ScanOrder(row)
		})
		if err != nil || len(orders) == 0 {
			return err
		}

		ids := make([]string, 0, len(orders))
		for _, o := range orders {
			ids = append(ids, o.ID)
		}
		payments, err := LoadPayments(ctx, tx, ids...)
		if err != nil {
			return err
		}
		for i := range orders {
			orders[i].Payments = payments[orders[i].ID]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return []domain.Order{}, nil
	}
	return orders, nil
}

// Delete removes the order; its payments go with it through the foreign key.
func (r *Repository) Delete(ctx context.Context, id string) error {
	if uuid.Validate(id) != nil {
		return domain.ErrOrderNotFound
	}
	ct, err := r.pool.Exec(ctx, `DELETE FROM orders WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

// ScanOrder reads one row selected with OrderColumns. Payments are left empty.
func ScanOrder(row pgx.Row) (domain.Order, error) {
	var (
		o      domain.Order
		total  string
		status string
	)
	err := row.Scan(&o.ID, &o.CustomerName, &total, &status, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, err
	}
	o.TotalAmount, err = decimal.NewFromString(total)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order %s total: %w", o.ID, err)
	}
	o.Status = domain.OrderStatus(status)
	o.CreatedAt, o.UpdatedAt = o.CreatedAt.UTC(), o.UpdatedAt.UTC()
	return o, nil
}

// LoadPayments returns the payments of the given orders keyed by order id,
// newest first. Orders without payments map to an empty slice.
func LoadPayments(ctx context.Context, q Querier, orderIDs ...string) (map[string][]paymentdomain.Payment, error) {
	rows, err := q.Query(ctx, `SELECT `+paymentColumns+` FROM payments
		WHERE order_id = ANY($1::uuid[])
		ORDER BY seq DESC`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]paymentdomain.Payment, len(orderIDs))
	for _, id := range orderIDs {
		out[id] = []paymentdomain.Payment{}
	}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out[p.OrderID] = append(out[p.OrderID], p)
	}
	return out, rows.Err()
}

func scanPayment(row pgx.Row) (paymentdomain.Payment, error) {
	var (
		p                paymentdomain.Payment
		amount, status   string
		txID, errMessage *string
		created, updated time.Time
	)
	if err := row.Scan(&p.ID, &p.OrderID, &amount, &status, &txID, &errMessage, &p.ResponseData, &created, &updated); err != nil {
		return paymentdomain.Payment{}, err
	}
	var err error
	p.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return paymentdomain.Payment{}, fmt.Errorf("payment %s amount: %w", p.ID, err)
	}
	p.Status = paymentdomain.Status(status)
	if txID != nil {
		p.TransactionID = *txID
	}
	if errMessage != nil {
		p.ErrorMessage = *errMessage
	}
	p.CreatedAt, p.UpdatedAt = created.UTC(), updated.UTC()
	return p, nil
}

// InsertEvent appends an outbox row inside the caller's transaction.
func InsertEvent(ctx context.Context, q Querier, ev outbox.Event) error {
	headers := ev.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	_, err := q.Exec(ctx, `INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, headers, traceparent, status)
		VALUES ($1,$2,$3,$4,$5,$6,'pending')`,
		ev.AggregateType, ev.AggregateID, ev.Type, ev.Payload, headers, ev.Traceparent)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}
