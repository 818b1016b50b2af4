//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/order-payment-service/internal/order/application"
	"github.com/dmehra2102/order-payment-service/internal/order/domain"
	orderkafka "github.com/dmehra2102/order-payment-service/internal/order/infrastructure/kafka"
	orderpg "github.com/dmehra2102/order-payment-service/internal/order/infrastructure/postgres"
	"github.com/dmehra2102/order-payment-service/pkg/logging"
	"github.com/dmehra2102/order-payment-service/pkg/outbox"
	"github.com/dmehra2102/order-payment-service/test/intergration"
)

func TestRelay_PublishesOrderCreated(t *testing.T) {
	ctx := context.Background()
	env, err := intergration.Setup(ctx, intergration.WithKafka())
	require.NoError(t, err)
	defer env.Teardown(ctx)

	log := logging.Discard()
	svc := application.NewService(log, orderpg.NewRepository(log, env.Pool))
	o, err := svc.CreateOrder(ctx, application.CreateOrderInput{CustomerName: "Juan Pérez", TotalAmount: "150.50"})
	require.NoError(t, err)

	writer := orderkafka.NewWriter(log, env.KAddr)
	defer writer.Close()
	relay := outbox.NewRelay(log, orderpg.NewOutboxStore(log, env.Pool), outbox.NewDispatcher(log, writer, "order.events"), "test-relay")

	require.Eventually(t, func() bool {
		n, err := relay.RunOnce(ctx)
		return err == nil && n == 1
	}, 30*time.Second, 500*time.Millisecond)

	reader := kafka.NewReader(kafka.ReaderConfig{Brokers: env.KAddr, Topic: "order.events", Partition: 0})
	defer reader.Close()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	msg, err := reader.ReadMessage(readCtx)
	require.NoError(t, err)

	assert.Equal(t, o.ID, string(msg.Key))
	var got domain.OrderCreated
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, domain.OrderCreated{OrderID: o.ID, CustomerName: "Juan Pérez", TotalAmount: decimal.RequireFromString("150.50").StringFixed(2)}, got)

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, domain.EventOrderCreated, headers["event_type"])
	assert.Equal(t, "order", headers["aggregate_type"])
}
