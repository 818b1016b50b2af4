package http

import (
	"time"

	"github.com/dmehra2102/order-payment-service/internal/order/domain"
	paymentdomain "github.com/dmehra2102/order-payment-service/internal/payment/domain"
)

type orderResponse struct {
	ID              string            `json:"id"`
	CustomerName    string            `json:"customer_name"`
	TotalAmount     string            `json:"total_amount"`
	Status          string            `json:"status"`
	PaymentAttempts int               `json:"payment_attempts"`
	Payments        []paymentResponse `json:"payments"`
	CreatedAt       string            `json:"created_at"`
	UpdatedAt       string            `json:"updated_at"`
}

type paymentResponse struct {
	ID            string         `json:"id"`
	OrderID       string         `json:"order_id"`
	Amount        string         `json:"amount"`
	Status        string         `json:"status"`
	TransactionID *string        `json:"transaction_id"`
	ErrorMessage  *string        `json:"error_message"`
	ResponseData  map[string]any `json:"response_data"`
	CreatedAt     string         `json:"created_at"`
	UpdatedAt     string         `json:"updated_at"`
}

func toOrderResponse(o domain.Order) orderResponse {
	payments := make([]paymentResponse, 0, len(o.Payments))
	for _, p := range o.Payments {
		payments = append(payments, toPaymentResponse(p))
	}
	return orderResponse{
		ID:              o.ID,
		CustomerName:    o.CustomerName,
		TotalAmount:     o.TotalAmount.StringFixed(2),
		Status:          string(o.Status),
		PaymentAttempts: o.PaymentAttempts(),
		Payments:        payments,
		CreatedAt:       timestamp(o.CreatedAt),
		UpdatedAt:       timestamp(o.UpdatedAt),
	}
}

func toPaymentResponse(p paymentdomain.Payment) paymentResponse {
	return paymentResponse{
		ID:            p.ID,
		OrderID:       p.OrderID,
		Amount:        p.Amount.StringFixed(2),
		Status:        string(p.Status),
		TransactionID: optional(p.TransactionID),
		ErrorMessage:  optional(p.ErrorMessage),
		ResponseData:  p.ResponseData,
		CreatedAt:     timestamp(p.CreatedAt),
		UpdatedAt:     timestamp(p.UpdatedAt),
	}
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
