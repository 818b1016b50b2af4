package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/order-payment-service/pkg/tracing"
)

// Envelope is one outbox message as seen by a consumer.
type Envelope struct {
	Topic     string            `json:"topic"`
	Partition int               `json:"partition"`
	Offset    int64             `json:"offset"`
	Key       string            `json:"key"`
	Type      string            `json:"type"`
	Headers   map[string]string `json:"headers"`
	Payload   json.RawMessage   `json:"payload"`
}

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads the events the relay publishes and hands them to a callback.
type Consumer struct {
	log    *slog.Logger
	reader MessageReader
	tracer trace.Tracer
}

func NewConsumer(log *slog.Logger, brokers []string, topic, group string) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: group,
	})
	return NewConsumerWithReader(log, r)
}

func NewConsumerWithReader(log *slog.Logger, r MessageReader) *Consumer {
	return &Consumer{log: log, reader: r, tracer: otel.Tracer("outbox-consumer")}
}

// Run fetches messages until ctx is done. A message is committed after the
// handler returns, whatever the handler's result.
func (c *Consumer) Run(ctx context.Context, handle func(ctx context.Context, ev Envelope) error) error {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}

		ev := toEnvelope(msg)
		msgCtx := tracing.ContextWithTraceparent(ctx, ev.Headers[tracing.TraceparentHeader])
		msgCtx, span := c.tracer.Start(msgCtx, "outbox.consume")

		if err := handle(msgCtx, ev); err != nil {
			c.log.Error("event handling failed", "type", ev.Type, "key", ev.Key, "offset", msg.Offset, "err", err)
		}
		span.End()
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.log.Warn("commit failed", "offset", msg.Offset, "err", err)
		}
	}
}

func toEnvelope(msg kafka.Message) Envelope {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	payload := json.RawMessage(msg.Value)
	if !json.Valid(payload) {
		quoted, _ := json.Marshal(string(msg.Value))
		payload = quoted
	}
	return Envelope{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       string(msg.Key),
		Type:      headers["event_type"],
		Headers:   headers,
		Payload:   payload,
	}
}
