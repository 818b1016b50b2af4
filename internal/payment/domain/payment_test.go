package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPayment(t *testing.T) {
	p := NewPayment("order-1", decimal.RequireFromString("99.9"))

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "order-1", p.OrderID)
	assert.Equal(t, "99.90", p.Amount.StringFixed(2))
	assert.True(t, p.IsPending())
}

func TestPayment_SettlesExactlyOnce(t *testing.T) {
	p := NewPayment("order-1", decimal.NewFromInt(10))
	data := map[string]any{"id": "txn_1"}

	require.NoError(t, p.MarkSucceeded("txn_1", data))
	assert.True(t, p.IsSuccessful())
	assert.Equal(t, "txn_1", p.TransactionID)
	assert.Equal(t, data, p.ResponseData)

	assert.ErrorIs(t, p.MarkFailed("late failure", nil), ErrPaymentFinalized)
	assert.ErrorIs(t, p.MarkSucceeded("txn_2", nil), ErrPaymentFinalized)
	assert.Equal(t, StatusSuccess, p.Status)
	assert.Empty(t, p.ErrorMessage)
}

func TestPayment_MarkFailed(t *testing.T) {
	p := NewPayment("order-1", decimal.NewFromInt(10))

	require.NoError(t, p.MarkFailed("Insufficient funds or card declined", nil))
	assert.True(t, p.IsFailed())
	assert.Empty(t, p.TransactionID)
	assert.Nil(t, p.ResponseData)
}
