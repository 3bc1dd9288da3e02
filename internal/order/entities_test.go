package order

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPaidOrder(t *testing.T) {
	// Arrange
	items := []OrderItem{
		{ProductID: 1, ProductName: "Lamp", Quantity: 3, PriceAtPurchase: decimal.RequireFromString("19.99")},
		{ProductID: 2, ProductName: "Bulb", Quantity: 1, PriceAtPurchase: decimal.RequireFromString("0.01")},
	}

	// Act
	o := NewPaidOrder("order-123", 42, "pi_123", items)

	// Assert
	assert.Equal(t, "order-123", o.ID)
	assert.Equal(t, int64(42), o.UserID)
	assert.Equal(t, StatusPaid, o.Status)
	assert.Equal(t, "59.98", o.TotalAmount.StringFixed(2))
	for _, item := range o.Items {
		assert.Equal(t, "order-123", item.OrderID)
	}
	assert.Empty(t, items[0].OrderID, "input items must not be mutated")
	assert.WithinDuration(t, time.Now(), o.CreatedAt, time.Second)
	require.NoError(t, o.Validate())
}

func TestOrder_Validate(t *testing.T) {
	base := func() *Order {
		return NewPaidOrder("o", 1, "pi_1", []OrderItem{
			{ProductID: 1, Quantity: 2, PriceAtPurchase: decimal.RequireFromString("1.10")},
		})
	}

	tests := []struct {
		name    string
		mutate  func(o *Order)
		wantErr error
	}{
		{name: "valid", mutate: func(*Order) {}},
		{name: "tampered total", mutate: func(o *Order) { o.TotalAmount = decimal.RequireFromString("2.19") }, wantErr: ErrTotalMismatch},
		{name: "no items", mutate: func(o *Order) { o.Items = nil }, wantErr: ErrNoItems},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := base()
			tt.mutate(o)

			err := o.Validate()

			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestStatus_Valid(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusPaid, StatusShipped, StatusDelivered, StatusCancelled} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, Status("refunded").Valid())
}
