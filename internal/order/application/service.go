package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/order-payment-service/internal/order/domain"
	"github.com/dmehra2102/order-payment-service/pkg/outbox"
)

// CreateOrderInput carries the raw client values. TotalAmount is the textual
// form of the amount, either a JSON number or a numeric string.
type CreateOrderInput struct {
	CustomerName string `json:"customer_name" validate:"required,max=255"`
	TotalAmount  string `json:"total_amount" validate:"required,numeric,money"`
}

type Service struct {
	log      *slog.Logger
	repo     OrderRepository
	validate *validator.Validate
	tracer   trace.Tracer
}

func NewService(log *slog.Logger, repo OrderRepository) *Service {
	return &Service{
		log:      log,
		repo:     repo,
		validate: newValidator(),
		tracer:   otel.Tracer("order-service"),
	}
}

// CreateOrder validates the input and stores a pending order together with
// its order.created event. Surrounding whitespace is trimmed first, so a blank
// name counts as missing. Invalid input is reported as *ValidationError.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "CreateOrder")
	defer span.End()

	in.CustomerName = strings.TrimSpace(in.CustomerName)
	in.TotalAmount = strings.TrimSpace(in.TotalAmount)
	if err := s.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return domain.Order{}, toValidationError(verrs)
		}
		return domain.Order{}, err
	}

	o := domain.NewOrder(in.CustomerName, decimal.RequireFromString(in.TotalAmount))
	ev, err := outbox.NewEvent(ctx, "order", o.ID, domain.EventOrderCreated, domain.OrderCreated{
		OrderID:      o.ID,
		CustomerName: o.CustomerName,
		TotalAmount:  o.TotalAmount.StringFixed(2),
	})
	if err != nil {
		return domain.Order{}, err
	}
	if err := s.repo.Create(ctx, &o, ev); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}

	span.SetAttributes(attribute.String("order.id", o.ID))
	s.log.Info("order created", "order_id", o.ID, "total_amount", o.TotalAmount.StringFixed(2))
	return o, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "GetOrder", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()
	return s.repo.Get(ctx, id)
}

func (s *Service) ListOrders(ctx context.Context) ([]domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "ListOrders")
	defer span.End()
	return s.repo.List(ctx)
}
