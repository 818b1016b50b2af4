package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	paymentdomain "github.com/dmehra2102/order-payment-service/internal/payment/domain"
)

type OrderStatus string

const (
	StatusPending OrderStatus = "pending"
	StatusPaid    OrderStatus = "paid"
	StatusFailed  OrderStatus = "failed"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrOrderNotEligible  = errors.New("order cannot receive payments")
	ErrInvalidTransition = errors.New("invalid order status transition")
)

var (
	MinAmount = decimal.RequireFromString("0.01")
	MaxAmount = decimal.RequireFromString("999999.99")
)

type Order struct {
	ID           string
	CustomerName string
	TotalAmount  decimal.Decimal
	Status       OrderStatus
	// Payments are ordered newest first.
	Payments  []paymentdomain.Payment
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewOrder(customerName string, total decimal.Decimal) Order {
	return Order{
		ID:           uuid.NewString(),
		CustomerName: customerName,
		TotalAmount:  total.Round(2),
		Status:       StatusPending,
	}
}

func (o Order) IsPending() bool { return o.Status == StatusPending }
func (o Order) IsPaid() bool    { return o.Status == StatusPaid }
func (o Order) IsFailed() bool  { return o.Status == StatusFailed }

// CanReceivePayment reports whether a new payment attempt may be made.
// Paid is the only terminal state.
func (o Order) CanReceivePayment() bool {
	return o.Status != StatusPaid
}

func (o Order) PaymentAttempts() int {
	return len(o.Payments)
}

// Transition moves the order to the given status. failed -> failed is allowed
// so that repeated declines keep the order retryable.
func (o *Order) Transition(to OrderStatus) error {
	if !o.CanReceivePayment() {
		return fmt.Errorf("%w: current status %s", ErrOrderNotEligible, o.Status)
	}
	switch to {
	case StatusPaid, StatusFailed:
		o.Status = to
		return nil
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
	}
}

func (o *Order) MarkPaid() error   { return o.Transition(StatusPaid) }
func (o *Order) MarkFailed() error { return o.Transition(StatusFailed) }
