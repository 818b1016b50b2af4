package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/order-payment-service/internal/order/application"
	"github.com/dmehra2102/order-payment-service/internal/order/domain"
	paymentapp "github.com/dmehra2102/order-payment-service/internal/payment/application"
)

type Handler struct {
	log      *slog.Logger
	orders   *application.Service
	payments *paymentapp.Service
	tracer   trace.Tracer
}

func NewHandler(log *slog.Logger, orders *application.Service, payments *paymentapp.Service) *Handler {
	return &Handler{
		log:      log,
		orders:   orders,
		payments: payments,
		tracer:   otel.Tracer("order-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(traceContext)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, message{Message: "Not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, message{Message: "Method not allowed"})
	})

	r.Route("/api/v1/orders", func(r chi.Router) {
		r.Get("/", h.listOrders)
		r.Post("/", h.createOrder)
		r.Get("/{id}", h.getOrder)
		r.Post("/{id}/payments", h.processPayment)
		r.Get("/{id}/payments", h.listPayments)
	})
	return r
}

type createOrderReq struct {
	CustomerName json.RawMessage `json:"customer_name"`
	TotalAmount  json.RawMessage `json:"total_amount"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateOrder")
	defer span.End()

	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, message{Message: "Malformed JSON request body"})
		return
	}

	in, typeErrs := req.input()
	if typeErrs != nil {
		writeValidation(w, typeErrs)
		return
	}

	o, err := h.orders.CreateOrder(ctx, in)
	var verr *application.ValidationError
	switch {
	case errors.As(err, &verr):
		writeValidation(w, verr)
	case err != nil:
		h.internalError(w, "create order", err)
	default:
		writeJSON(w, http.StatusCreated, struct {
			Message string        `json:"message"`
			Data    orderResponse `json:"data"`
		}{"Order created successfully", toOrderResponse(o)})
	}
}

// input maps the raw JSON values to their textual form. The amount may be a
// JSON number or a string.
func (req createOrderReq) input() (application.CreateOrderInput, *application.ValidationError) {
	var (
		in   application.CreateOrderInput
		verr application.ValidationError
	)
	if !isNull(req.CustomerName) {
		if err := json.Unmarshal(req.CustomerName, &in.CustomerName); err != nil {
			verr.Add("customer_name", "The customer name field must be a string.")
		}
	}
	if !isNull(req.TotalAmount) {
		var n json.Number
		if err := json.Unmarshal(req.TotalAmount, &n); err == nil {
			in.TotalAmount = n.String()
		} else if err := json.Unmarshal(req.TotalAmount, &in.TotalAmount); err != nil {
			verr.Add("total_amount", "The total amount field must be a number.")
		}
	}
	if len(verr.Fields) > 0 {
		return in, &verr
	}
	return in, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListOrders")
	defer span.End()

	orders, err := h.orders.ListOrders(ctx)
	if err != nil {
		h.internalError(w, "list orders", err)
		return
	}
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, data[[]orderResponse]{Data: out})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, span := h.tracer.Start(r.Context(), "GetOrder", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	o, err := h.orders.GetOrder(ctx, id)
	if err != nil {
		h.lookupError(w, "get order", err)
		return
	}
	writeJSON(w, http.StatusOK, data[orderResponse]{Data: toOrderResponse(o)})
}

type paymentResult struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Data    *paymentResponse `json:"data,omitempty"`
}

func (h *Handler) processPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	// A payment attempt runs to completion once started, even if the client
	// goes away.
	ctx := context.WithoutCancel(r.Context())
	ctx, span := h.tracer.Start(ctx, "ProcessPayment", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	out, err := h.payments.ProcessPayment(ctx, id)
	if err != nil {
		h.lookupError(w, "process payment", err)
		return
	}

	res := paymentResult{Success: out.Success, Message: out.Message}
	if out.Payment != nil {
		p := toPaymentResponse(*out.Payment)
		res.Data = &p
	}
	status := http.StatusCreated
	if !out.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, span := h.tracer.Start(r.Context(), "ListPayments", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	payments, err := h.payments.ListPayments(ctx, id)
	if err != nil {
		h.lookupError(w, "list payments", err)
		return
	}
	out := make([]paymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, toPaymentResponse(p))
	}
	writeJSON(w, http.StatusOK, data[[]paymentResponse]{Data: out})
}

func (h *Handler) lookupError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, domain.ErrOrderNotFound) {
		writeJSON(w, http.StatusNotFound, message{Message: "Order not found"})
		return
	}
	h.internalError(w, op, err)
}

func (h *Handler) internalError(w http.ResponseWriter, op string, err error) {
	h.log.Error(op+" failed", "err", err)
	writeJSON(w, http.StatusInternalServerError, message{Message: "Internal server error"})
}

type message struct {
	Message string `json:"message"`
}

type data[T any] struct {
	Data T `json:"data"`
}

func writeValidation(w http.ResponseWriter, verr *application.ValidationError) {
	writeJSON(w, http.StatusUnprocessableEntity, struct {
		Message string              `json:"message"`
		Errors  map[string][]string `json:"errors"`
	}{verr.Message(), verr.Fields})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
