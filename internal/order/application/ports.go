package application

import (
	"context"

	"github.com/dmehra2102/order-payment-service/internal/order/domain"
	"github.com/dmehra2102/order-payment-service/pkg/outbox"
)

type OrderRepository interface {
	// Create persists the order and its creation event atomically. The store
	// sets CreatedAt/UpdatedAt on o.
	Create(ctx context.Context, o *domain.Order, ev outbox.Event) error
	// Get returns the order with its payments, or domain.ErrOrderNotFound.
	Get(ctx context.Context, id string) (domain.Order, error)
	// List returns all orders newest first, payments included.
	List(ctx context.Context) ([]domain.Order, error)
	// Delete removes the order and its payments.
	Delete(ctx context.Context, id string) error
}
