package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/order-payment-service/internal/order/application"
	"github.com/dmehra2102/order-payment-service/internal/order/domain"
	paymentapp "github.com/dmehra2102/order-payment-service/internal/payment/application"
	paymentdomain "github.com/dmehra2102/order-payment-service/internal/payment/domain"
	"github.com/dmehra2102/order-payment-service/internal/store/memory"
	"github.com/dmehra2102/order-payment-service/pkg/logging"
)

type scriptedGateway struct {
	results []paymentdomain.GatewayResult
}

func (g *scriptedGateway) ProcessPayment(context.Context, decimal.Decimal, map[string]string) paymentdomain.GatewayResult {
	r := g.results[0]
	if len(g.results) > 1 {
		g.results = g.results[1:]
	}
	return r
}

func newRouter(t *testing.T, results ...paymentdomain.GatewayResult) http.Handler {
	t.Helper()
	store := memory.NewStore()
	log := logging.Discard()
	orders := application.NewService(log, store)
	payments := paymentapp.NewService(log, store, store, &scriptedGateway{results: results})
	return NewHandler(log, orders, payments).Routes()
}

func do(t *testing.T, h http.Handler, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec.Code, out
}

func createOrder(t *testing.T, h http.Handler, body string) map[string]any {
	t.Helper()
	code, out := do(t, h, http.MethodPost, "/api/v1/orders", body)
	require.Equal(t, http.StatusCreated, code, out)
	return out["data"].(map[string]any)
}

var (
	declined = paymentdomain.GatewayFailure{ErrorCode: paymentdomain.ErrCodeDeclined, Message: "Insufficient funds or card declined"}
	approved = paymentdomain.GatewaySuccess{TransactionID: "txn_123", Data: map[string]any{"id": "txn_123", "status": "completed"}}
)

func TestPaymentRetryScenario(t *testing.T) {
	h := newRouter(t, declined, approved)

	code, out := do(t, h, http.MethodPost, "/api/v1/orders", `{"customer_name":"Juan Pérez","total_amount":150.50}`)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "Order created successfully", out["message"])
	order := out["data"].(map[string]any)
	id := order["id"].(string)
	assert.Equal(t, "Juan Pérez", order["customer_name"])
	assert.Equal(t, "150.50", order["total_amount"])
	assert.Equal(t, "pending", order["status"])
	assert.Equal(t, float64(0), order["payment_attempts"])
	assert.Empty(t, order["payments"])

	// first attempt is declined
	code, out = do(t, h, http.MethodPost, "/api/v1/orders/"+id+"/payments", "")
	require.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "Insufficient funds or card declined", out["message"])
	payment := out["data"].(map[string]any)
	assert.Equal(t, "failed", payment["status"])
	assert.Equal(t, "150.50", payment["amount"])
	assert.Nil(t, payment["transaction_id"])
	assert.Equal(t, "Insufficient funds or card declined", payment["error_message"])

	_, out = do(t, h, http.MethodGet, "/api/v1/orders/"+id, "")
	order = out["data"].(map[string]any)
	assert.Equal(t, "failed", order["status"])
	assert.Equal(t, float64(1), order["payment_attempts"])

	// retry succeeds
	code, out = do(t, h, http.MethodPost, "/api/v1/orders/"+id+"/payments", "")
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "Payment processed successfully", out["message"])
	payment = out["data"].(map[string]any)
	assert.Equal(t, "success", payment["status"])
	assert.Equal(t, "txn_123", payment["transaction_id"])
	assert.Nil(t, payment["error_message"])
	assert.Equal(t, "completed", payment["response_data"].(map[string]any)["status"])

	_, out = do(t, h, http.MethodGet, "/api/v1/orders/"+id, "")
	order = out["data"].(map[string]any)
	assert.Equal(t, "paid", order["status"])
	assert.Equal(t, float64(2), order["payment_attempts"])

	// a paid order takes no further payments
	code, out = do(t, h, http.MethodPost, "/api/v1/orders/"+id+"/payments", "")
	require.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, false, out["success"])
	assert.Contains(t, out["message"], "Current status: paid")
	assert.NotContains(t, out, "data")

	code, out = do(t, h, http.MethodGet, "/api/v1/orders/"+id+"/payments", "")
	require.Equal(t, http.StatusOK, code)
	list := out["data"].([]any)
	require.Len(t, list, 2)
	assert.Equal(t, "success", list[0].(map[string]any)["status"])
	assert.Equal(t, "failed", list[1].(map[string]any)["status"])
}

func TestCreateOrder_Validation(t *testing.T) {
	h := newRouter(t, approved)

	tests := []struct {
		name   string
		body   string
		fields []string
	}{
		{"missing fields", `{}`, []string{"customer_name", "total_amount"}},
		{"blank name", `{"customer_name":"   ","total_amount":10}`, []string{"customer_name"}},
		{"blank amount string", `{"customer_name":"Ana","total_amount":"  "}`, []string{"total_amount"}},
		{"zero amount", `{"customer_name":"Ana","total_amount":0}`, []string{"total_amount"}},
		{"amount too large", `{"customer_name":"Ana","total_amount":10000000.00}`, []string{"total_amount"}},
		{"amount not numeric", `{"customer_name":"Ana","total_amount":"ten"}`, []string{"total_amount"}},
		{"amount wrong type", `{"customer_name":"Ana","total_amount":true}`, []string{"total_amount"}},
		{"name wrong type", `{"customer_name":42,"total_amount":10}`, []string{"customer_name"}},
		{"name too long", `{"customer_name":"` + strings.Repeat("x", 256) + `","total_amount":10}`, []string{"customer_name"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, out := do(t, h, http.MethodPost, "/api/v1/orders", tt.body)
			require.Equal(t, http.StatusUnprocessableEntity, code)
			assert.NotEmpty(t, out["message"])
			errs := out["errors"].(map[string]any)
			assert.Len(t, errs, len(tt.fields))
			for _, f := range tt.fields {
				assert.Contains(t, errs, f)
			}
		})
	}

	_, out := do(t, h, http.MethodGet, "/api/v1/orders", "")
	assert.Empty(t, out["data"])
}

func TestCreateOrder_AmountAsString(t *testing.T) {
	h := newRouter(t, approved)

	order := createOrder(t, h, `{"customer_name":"Ana","total_amount":"99.9"}`)
	assert.Equal(t, "99.90", order["total_amount"])
}

func TestCreateOrder_MalformedJSON(t *testing.T) {
	h := newRouter(t, approved)

	code, out := do(t, h, http.MethodPost, "/api/v1/orders", `{"customer_name":`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Malformed JSON request body", out["message"])
}

func TestListOrders_NewestFirst(t *testing.T) {
	h := newRouter(t, approved)
	first := createOrder(t, h, `{"customer_name":"first","total_amount":1}`)
	second := createOrder(t, h, `{"customer_name":"second","total_amount":2}`)

	code, out := do(t, h, http.MethodGet, "/api/v1/orders", "")
	require.Equal(t, http.StatusOK, code)
	list := out["data"].([]any)
	require.Len(t, list, 2)
	assert.Equal(t, second["id"], list[0].(map[string]any)["id"])
	assert.Equal(t, first["id"], list[1].(map[string]any)["id"])
}

func TestNotFound(t *testing.T) {
	h := newRouter(t, approved)

	for _, req := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/orders/missing"},
		{http.MethodPost, "/api/v1/orders/missing/payments"},
		{http.MethodGet, "/api/v1/orders/missing/payments"},
	} {
		code, out := do(t, h, req.method, req.path, "")
		assert.Equal(t, http.StatusNotFound, code, req.path)
		assert.Equal(t, "Order not found", out["message"])
	}
}

type brokenRepo struct{ application.OrderRepository }

func (brokenRepo) List(context.Context) ([]domain.Order, error) {
	return nil, errors.New("connection reset by peer")
}

func TestStoreFailureIsInternalError(t *testing.T) {
	log := logging.Discard()
	store := memory.NewStore()
	h := NewHandler(log,
		application.NewService(log, brokenRepo{}),
		paymentapp.NewService(log, store, store, &scriptedGateway{results: []paymentdomain.GatewayResult{approved}}),
	).Routes()

	code, out := do(t, h, http.MethodGet, "/api/v1/orders", "")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Internal server error", out["message"])
}
