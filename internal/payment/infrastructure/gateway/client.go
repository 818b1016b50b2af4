// Package gateway talks to the external payment processor. Client is the real
// HTTP integration; Simulator stands in for it in development and tests.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/order-payment-service/internal/config"
	"github.com/dmehra2102/order-payment-service/internal/payment/domain"
)

const currency = "USD"

type Client struct {
	log      *slog.Logger
	http     *http.Client
	baseURL  string
	timeout  time.Duration
	attempts int
	backoff  time.Duration
	tracer   trace.Tracer
}

func NewClient(log *slog.Logger, cfg config.Gateway) *Client {
	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Client{
		log:      log,
		http:     &http.Client{},
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		timeout:  cfg.Timeout.Std(),
		attempts: attempts,
		backoff:  cfg.RetryBackoff.Std(),
		tracer:   otel.Tracer("payment-gateway"),
	}
}

type chargeRequest struct {
	Amount   string            `json:"amount"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata"`
}

// ProcessPayment charges amount. Transport faults are retried with a fixed
// backoff; any HTTP response ends the call.
func (c *Client) ProcessPayment(ctx context.Context, amount decimal.Decimal, metadata map[string]string) (res domain.GatewayResult) {
	ctx, span := c.tracer.Start(ctx, "gateway.ProcessPayment", trace.WithAttributes(
		attribute.String("payment.amount", amount.StringFixed(2)),
		attribute.String("order.id", metadata["order_id"]),
	))
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("gateway client panic: %v", r)
			span.SetStatus(codes.Error, err.Error())
			c.log.Error("payment gateway failure", "order_id", metadata["order_id"], "err", err)
			res = domain.GatewayFailure{ErrorCode: domain.ErrCodeUnavailable, Message: err.Error()}
		}
	}()

	body, err := json.Marshal(chargeRequest{Amount: amount.StringFixed(2), Currency: currency, Metadata: metadata})
	if err != nil {
		return c.unavailable(span, metadata, err)
	}

	c.log.Info("processing payment", "order_id", metadata["order_id"], "amount", amount.StringFixed(2), "currency", currency)

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, c.backoff); err != nil {
				lastErr = err
				break
			}
		}
		status, payload, err := c.post(ctx, body)
		if err != nil {
			lastErr = err
			c.log.Warn("payment gateway attempt failed", "order_id", metadata["order_id"], "attempt", attempt, "err", err)
			continue
		}
		span.SetAttributes(attribute.Int("http.status_code", status), attribute.Int("gateway.attempts", attempt))
		return c.interpret(span, metadata, status, payload)
	}
	return c.unavailable(span, metadata, lastErr)
}

func (c *Client) post(ctx context.Context, body []byte) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, payload, nil
}

func (c *Client) interpret(span trace.Span, metadata map[string]string, status int, payload []byte) domain.GatewayResult {
	data := decodeObject(payload)

	if status < 200 || status > 299 {
		msg := strings.TrimSpace(string(payload))
		if msg == "" {
			msg = http.StatusText(status)
		}
		span.SetStatus(codes.Error, "payment rejected")
		c.log.Warn("payment rejected", "order_id", metadata["order_id"], "status", status, "body", msg)
		return domain.GatewayFailure{ErrorCode: domain.ErrCodeRejected, Message: msg, Data: data}
	}

	txID := transactionID(data)
	if txID == "" {
		txID = "txn_" + uuid.NewString()
	}
	if data == nil {
		data = map[string]any{}
	}
	c.log.Info("payment processed", "order_id", metadata["order_id"], "transaction_id", txID)
	return domain.GatewaySuccess{TransactionID: txID, Data: data}
}

func (c *Client) unavailable(span trace.Span, metadata map[string]string, err error) domain.GatewayResult {
	if err == nil {
		err = errors.New("no attempt was made")
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	c.log.Error("payment gateway unavailable", "order_id", metadata["order_id"], "err", err)
	return domain.GatewayFailure{ErrorCode: domain.ErrCodeUnavailable, Message: err.Error()}
}

// CheckTransactionStatus asks the gateway about an earlier transaction.
func (c *Client) CheckTransactionStatus(ctx context.Context, transactionID string) domain.TransactionStatus {
	ctx, span := c.tracer.Start(ctx, "gateway.CheckTransactionStatus", trace.WithAttributes(attribute.String("transaction.id", transactionID)))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/payments/"+url.PathEscape(transactionID), nil)
	if err != nil {
		return statusError(err)
	}
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Error("transaction status check failed", "transaction_id", transactionID, "err", err)
		return statusError(err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return statusError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.TransactionStatus{Status: "unknown", Data: decodeObject(payload)}
	}
	return domain.TransactionStatus{Success: true, Status: "completed", Data: decodeObject(payload)}
}

func statusError(err error) domain.TransactionStatus {
	return domain.TransactionStatus{Status: "error", Data: map[string]any{"error": err.Error()}}
}

func decodeObject(payload []byte) map[string]any {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil
	}
	return m
}

func transactionID(data map[string]any) string {
	switch v := data["id"].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
