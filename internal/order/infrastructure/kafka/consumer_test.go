package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/order-payment-service/pkg/logging"
)

type fakeReader struct {
	msgs      []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		return kafka.Message{}, context.Canceled
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func TestConsumer_Run(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{
		{Topic: "order.events", Offset: 1, Key: []byte("o-1"), Value: []byte(`{"order_id":"o-1"}`), Headers: []kafka.Header{{Key: "event_type", Value: []byte("order.created")}}},
		{Topic: "order.events", Offset: 2, Key: []byte("o-1"), Value: []byte(`not json`), Headers: []kafka.Header{{Key: "event_type", Value: []byte("payment.failed")}}},
	}}
	c := NewConsumerWithReader(logging.Discard(), reader)

	var seen []Envelope
	err := c.Run(context.Background(), func(_ context.Context, ev Envelope) error {
		seen = append(seen, ev)
		if ev.Type == "payment.failed" {
			return errors.New("handler failed")
		}
		return nil
	})
	require.NoError(t, err)

	require.Len(t, seen, 2)
	assert.Equal(t, "order.created", seen[0].Type)
	assert.Equal(t, "o-1", seen[0].Key)
	assert.JSONEq(t, `{"order_id":"o-1"}`, string(seen[0].Payload))
	assert.JSONEq(t, `"not json"`, string(seen[1].Payload))
	assert.Equal(t, []int64{1, 2}, reader.committed, "failed events are committed too")
	assert.True(t, reader.closed)
}
