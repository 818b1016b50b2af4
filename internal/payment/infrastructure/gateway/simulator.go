package gateway

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/order-payment-service/internal/payment/domain"
)

const declinedMessage = "Insufficient funds or card declined"

// Simulator approves or declines payments at random. It is safe for
// concurrent use.
type Simulator struct {
	log         *slog.Logger
	mu          sync.Mutex
	rng         *rand.Rand
	failureRate float64
}

func NewSimulator(log *slog.Logger, rng *rand.Rand, failureRate float64) *Simulator {
	return &Simulator{log: log, rng: rng, failureRate: failureRate}
}

func (s *Simulator) ProcessPayment(_ context.Context, amount decimal.Decimal, metadata map[string]string) domain.GatewayResult {
	s.log.Info("processing payment", "order_id", metadata["order_id"], "amount", amount.StringFixed(2), "currency", currency, "simulated", true)

	s.mu.Lock()
	roll := s.rng.Float64()
	s.mu.Unlock()

	if roll < s.failureRate {
		s.log.Warn("payment rejected", "order_id", metadata["order_id"], "error_code", domain.ErrCodeDeclined)
		return domain.GatewayFailure{ErrorCode: domain.ErrCodeDeclined, Message: declinedMessage}
	}

	txID := "txn_" + uuid.NewString()
	meta := make(map[string]any, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	s.log.Info("payment processed", "order_id", metadata["order_id"], "transaction_id", txID)
	return domain.GatewaySuccess{
		TransactionID: txID,
		Data: map[string]any{
			"id":       txID,
			"amount":   amount.StringFixed(2),
			"currency": currency,
			"status":   "completed",
			"metadata": meta,
		},
	}
}
