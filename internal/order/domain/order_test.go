package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrder_StartsPending(t *testing.T) {
	o := NewOrder("Juan Pérez", decimal.RequireFromString("150.505"))

	assert.NotEmpty(t, o.ID)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, "150.51", o.TotalAmount.StringFixed(2))
	assert.Zero(t, o.PaymentAttempts())
}

func TestOrder_CanReceivePayment(t *testing.T) {
	cases := map[OrderStatus]bool{
		StatusPending: true,
		StatusFailed:  true,
		StatusPaid:    false,
	}
	for status, want := range cases {
		o := Order{Status: status}
		assert.Equal(t, want, o.CanReceivePayment(), "status %s", status)
	}
}

func TestOrder_Transition(t *testing.T) {
	tests := []struct {
		name    string
		from    OrderStatus
		to      OrderStatus
		wantErr error
	}{
		{"pending to paid", StatusPending, StatusPaid, nil},
		{"pending to failed", StatusPending, StatusFailed, nil},
		{"failed to paid", StatusFailed, StatusPaid, nil},
		{"failed to failed", StatusFailed, StatusFailed, nil},
		{"paid to failed", StatusPaid, StatusFailed, ErrOrderNotEligible},
		{"paid to paid", StatusPaid, StatusPaid, ErrOrderNotEligible},
		{"failed to pending", StatusFailed, StatusPending, ErrInvalidTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := Order{Status: tt.from}
			err := o.Transition(tt.to)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, tt.from, o.Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, o.Status)
		})
	}
}

func TestOrder_StatusPredicates(t *testing.T) {
	o := Order{Status: StatusFailed}
	assert.True(t, o.IsFailed())
	assert.False(t, o.IsPaid())
	assert.False(t, o.IsPending())

	require.NoError(t, o.MarkPaid())
	assert.True(t, o.IsPaid())
	assert.ErrorIs(t, o.MarkFailed(), ErrOrderNotEligible)
}
