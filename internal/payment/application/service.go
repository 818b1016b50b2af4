package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	orderdomain "github.com/dmehra2102/order-payment-service/internal/order/domain"
	"github.com/dmehra2102/order-payment-service/internal/payment/domain"
	"github.com/dmehra2102/order-payment-service/pkg/outbox"
)

const (
	MsgPaymentProcessed = "Payment processed successfully"
	MsgPaymentFailed    = "Payment processing failed"
	MsgUnexpectedFault  = "An error occurred processing the payment"
)

var errNoTransactionID = errors.New("gateway reported success without a transaction id")

// Outcome is the result of one payment attempt. Payment is nil when the order
// was not eligible and no attempt was recorded.
type Outcome struct {
	Success bool
	Message string
	Payment *domain.Payment
}

type Service struct {
	log      *slog.Logger
	uow      UnitOfWork
	payments PaymentReader
	gateway  Gateway
	cache    OrderCache
	tracer   trace.Tracer
}

type Option func(*Service)

func WithOrderCache(c OrderCache) Option {
	return func(s *Service) { s.cache = c }
}

func NewService(log *slog.Logger, uow UnitOfWork, payments PaymentReader, gateway Gateway, opts ...Option) *Service {
	s := &Service{
		log:      log,
		uow:      uow,
		payments: payments,
		gateway:  gateway,
		tracer:   otel.Tracer("payment-service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProcessPayment charges the order's total through the gateway and records the
// attempt. Only orderdomain.ErrOrderNotFound and store failures are returned as
// errors; every payment problem is reported through the Outcome.
func (s *Service) ProcessPayment(ctx context.Context, orderID string) (Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "ProcessPayment", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	var (
		out        Outcome
		unabsorbed error
	)
	err := s.uow.Do(ctx, func(ctx context.Context, tx Tx) error {
		order, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.CanReceivePayment() {
			out = Outcome{Message: fmt.Sprintf("Order cannot receive payments. Current status: %s", order.Status)}
			return nil
		}

		p := domain.NewPayment(order.ID, order.TotalAmount)
		if err := tx.InsertPayment(ctx, &p); err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}

		err = tx.Savepoint(ctx, func(ctx context.Context, tx Tx) error {
			attempt, o := p, order
			res, err := s.charge(ctx, order)
			if err != nil {
				return err
			}
			settled, err := s.settle(ctx, tx, &o, &attempt, res)
			if err != nil {
				return err
			}
			p, out = attempt, settled
			return nil
		})
		if err != nil {
			s.log.Error("payment processing fault", "order_id", order.ID, "payment_id", p.ID, "err", err)
			span.RecordError(err)
			if absorbErr := s.absorbFault(ctx, tx, order, &p, err); absorbErr != nil {
				unabsorbed = err
				return absorbErr
			}
			out = Outcome{Message: MsgUnexpectedFault}
		}
		out.Payment = &p
		return nil
	})
	if err != nil && unabsorbed != nil {
		s.log.Error("fault could not be recorded with its attempt, retrying", "order_id", orderID, "err", err)
		var p domain.Payment
		p, err = s.recordFault(ctx, orderID, unabsorbed)
		if err == nil {
			out = Outcome{Message: MsgUnexpectedFault, Payment: &p}
		}
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, orderdomain.ErrOrderNotFound) {
			return Outcome{}, err
		}
		return Outcome{}, fmt.Errorf("process payment for order %s: %w", orderID, err)
	}

	if out.Payment != nil && s.cache != nil {
		if err := s.cache.Forget(ctx, orderID); err != nil {
			s.log.Warn("order cache invalidation failed", "order_id", orderID, "err", err)
		}
	}
	span.SetAttributes(attribute.Bool("payment.success", out.Success))
	return out, nil
}

func (s *Service) ListPayments(ctx context.Context, orderID string) ([]domain.Payment, error) {
	return s.payments.ListByOrder(ctx, orderID)
}

func (s *Service) charge(ctx context.Context, o orderdomain.Order) (res domain.GatewayResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("gateway panic: %v", r)
		}
	}()
	res = s.gateway.ProcessPayment(ctx, o.TotalAmount, map[string]string{
		"order_id":      o.ID,
		"customer_name": o.CustomerName,
	})
	if res == nil {
		return nil, errors.New("gateway returned no result")
	}
	return res, nil
}

func (s *Service) settle(ctx context.Context, tx Tx, o *orderdomain.Order, p *domain.Payment, res domain.GatewayResult) (Outcome, error) {
	switch r := res.(type) {
	case domain.GatewaySuccess:
		if r.TransactionID == "" {
			return Outcome{}, errNoTransactionID
		}
		if err := p.MarkSucceeded(r.TransactionID, r.Data); err != nil {
			return Outcome{}, err
		}
		if err := o.MarkPaid(); err != nil {
			return Outcome{}, err
		}
		if err := s.persist(ctx, tx, o, p, domain.EventPaymentSucceeded, domain.PaymentSucceeded{
			OrderID:       o.ID,
			PaymentID:     p.ID,
			Amount:        p.Amount.StringFixed(2),
			TransactionID: p.TransactionID,
		}); err != nil {
			return Outcome{}, err
		}
		s.log.Info("payment processed", "order_id", o.ID, "payment_id", p.ID, "transaction_id", p.TransactionID)
		return Outcome{Success: true, Message: MsgPaymentProcessed}, nil

	case domain.GatewayFailure:
		msg := r.Message
		if msg == "" {
			msg = MsgPaymentFailed
		}
		if err := p.MarkFailed(msg, r.Data); err != nil {
			return Outcome{}, err
		}
		if err := o.MarkFailed(); err != nil {
			return Outcome{}, err
		}
		if err := s.persist(ctx, tx, o, p, domain.EventPaymentFailed, domain.PaymentFailed{
			OrderID:   o.ID,
			PaymentID: p.ID,
			Amount:    p.Amount.StringFixed(2),
			Reason:    r.ErrorCode,
		}); err != nil {
			return Outcome{}, err
		}
		s.log.Warn("payment failed", "order_id", o.ID, "payment_id", p.ID, "error_code", r.ErrorCode, "message", msg)
		return Outcome{Message: msg}, nil

	default:
		return Outcome{}, fmt.Errorf("unknown gateway result %T", res)
	}
}

// absorbFault records a crashed attempt as failed so it still leaves a trace.
func (s *Service) absorbFault(ctx context.Context, tx Tx, o orderdomain.Order, p *domain.Payment, fault error) error {
	if err := p.MarkFailed(fault.Error(), nil); err != nil {
		return err
	}
	if err := o.MarkFailed(); err != nil {
		return err
	}
	return s.persist(ctx, tx, &o, p, domain.EventPaymentFailed, domain.PaymentFailed{
		OrderID:   o.ID,
		PaymentID: p.ID,
		Amount:    p.Amount.StringFixed(2),
		Reason:    "processing_error",
	})
}

// recordFault stores a failed attempt in a fresh unit of work when the
// attempt's own transaction was rolled back.
func (s *Service) recordFault(ctx context.Context, orderID string, fault error) (domain.Payment, error) {
	var p domain.Payment
	err := s.uow.Do(ctx, func(ctx context.Context, tx Tx) error {
		order, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.CanReceivePayment() {
			return fmt.Errorf("record fault: order is %s", order.Status)
		}
		p = domain.NewPayment(order.ID, order.TotalAmount)
		if err := tx.InsertPayment(ctx, &p); err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}
		return s.absorbFault(ctx, tx, order, &p, fault)
	})
	return p, err
}

func (s *Service) persist(ctx context.Context, tx Tx, o *orderdomain.Order, p *domain.Payment, eventType string, payload any) error {
	if err := tx.UpdatePayment(ctx, p); err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if err := tx.UpdateOrderStatus(ctx, o); err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	ev, err := outbox.NewEvent(ctx, "payment", o.ID, eventType, payload)
	if err != nil {
		return err
	}
	return tx.AppendEvent(ctx, ev)
}
