package application

import (
	"context"

	"github.com/shopspring/decimal"

	orderdomain "github.com/dmehra2102/order-payment-service/internal/order/domain"
	"github.com/dmehra2102/order-payment-service/internal/payment/domain"
	"github.com/dmehra2102/order-payment-service/pkg/outbox"
)

// UnitOfWork runs fn inside a single store transaction. The transaction is
// committed when fn returns nil and rolled back otherwise.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the write side available to the orchestrator inside a unit of work.
type Tx interface {
	// LockOrder loads the order and holds it against concurrent writers until
	// the unit of work ends. Returns orderdomain.ErrOrderNotFound when absent.
	LockOrder(ctx context.Context, orderID string) (orderdomain.Order, error)
	InsertPayment(ctx context.Context, p *domain.Payment) error
	UpdatePayment(ctx context.Context, p *domain.Payment) error
	UpdateOrderStatus(ctx context.Context, o *orderdomain.Order) error
	AppendEvent(ctx context.Context, ev outbox.Event) error
	// Savepoint runs fn in a nested scope; writes made by fn are discarded
	// when it returns an error, earlier writes of the unit of work are kept.
	Savepoint(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

type PaymentReader interface {
	// ListByOrder returns the order's payments newest first, or
	// orderdomain.ErrOrderNotFound when the order does not exist.
	ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error)
}

// Gateway is the external payment processor. Implementations never return a
// transport fault; every problem is reported as a domain.GatewayFailure.
type Gateway interface {
	ProcessPayment(ctx context.Context, amount decimal.Decimal, metadata map[string]string) domain.GatewayResult
}

// OrderCache is notified after a payment attempt changes an order.
type OrderCache interface {
	Forget(ctx context.Context, orderID string) error
}
