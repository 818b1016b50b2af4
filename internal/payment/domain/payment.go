package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// ErrPaymentFinalized is returned when a settled payment is asked to change again.
var ErrPaymentFinalized = errors.New("payment already finalized")

// Payment is a single attempt to settle an order through the gateway.
type Payment struct {
	ID            string
	OrderID       string
	Amount        decimal.Decimal
	Status        Status
	TransactionID string
	ErrorMessage  string
	ResponseData  map[string]any
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func NewPayment(orderID string, amount decimal.Decimal) Payment {
	return Payment{
		ID:      uuid.NewString(),
		OrderID: orderID,
		Amount:  amount.Round(2),
		Status:  StatusPending,
	}
}

func (p Payment) IsPending() bool    { return p.Status == StatusPending }
func (p Payment) IsSuccessful() bool { return p.Status == StatusSuccess }
func (p Payment) IsFailed() bool     { return p.Status == StatusFailed }

func (p *Payment) MarkSucceeded(transactionID string, data map[string]any) error {
	if !p.IsPending() {
		return ErrPaymentFinalized
	}
	p.Status = StatusSuccess
	p.TransactionID = transactionID
	p.ResponseData = data
	return nil
}

func (p *Payment) MarkFailed(errMsg string, data map[string]any) error {
	if !p.IsPending() {
		return ErrPaymentFinalized
	}
	p.Status = StatusFailed
	p.ErrorMessage = errMsg
	p.ResponseData = data
	return nil
}
