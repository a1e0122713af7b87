package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrder_Validation(t *testing.T) {
	_, err := NewOrder("", SideBuy, OrderTypeLimit, 10000, 10)
	assert.ErrorIs(t, err, ErrEmptySymbol)

	_, err = NewOrder("AAPL", SideBuy, OrderTypeLimit, 10000, 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = NewOrder("AAPL", SideBuy, OrderTypeLimit, 0, 10)
	assert.ErrorIs(t, err, ErrInvalidPrice)

	_, err = NewOrder("AAPL", SideSell, OrderTypeStop, -1, 10)
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

func TestNewOrder_MarketIgnoresPrice(t *testing.T) {
	o, err := NewOrder("AAPL", SideBuy, OrderTypeMarket, 12345, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), o.Price)
	assert.Equal(t, OrderStatusNew, o.Status)
	assert.Equal(t, int64(10), o.RemainingQuantity)
	assert.True(t, o.Active())
}

func TestNewOrder_IDsStrictlyIncrease(t *testing.T) {
	var last int64 = -1
	for i := 0; i < 100; i++ {
		o, err := NewOrder("AAPL", SideBuy, OrderTypeLimit, 100, 1)
		require.NoError(t, err)
		assert.Greater(t, o.ID, last)
		last = o.ID
	}
}

func TestOrder_Reduce(t *testing.T) {
	o, err := NewOrder("AAPL", SideSell, OrderTypeLimit, 10000, 100)
	require.NoError(t, err)

	require.NoError(t, o.Reduce(30))
	assert.Equal(t, int64(70), o.RemainingQuantity)
	assert.Equal(t, int64(30), o.FilledQuantity)
	assert.Equal(t, OrderStatusPartiallyFilled, o.Status)

	assert.Error(t, o.Reduce(0))
	assert.Error(t, o.Reduce(71))

	require.NoError(t, o.Reduce(70))
	assert.Equal(t, OrderStatusFilled, o.Status)
	assert.False(t, o.Active())
	assert.Equal(t, int64(100), o.FilledQuantity)
}

func TestOrder_Modify(t *testing.T) {
	o, err := NewOrder("AAPL", SideBuy, OrderTypeLimit, 10000, 100)
	require.NoError(t, err)

	require.NoError(t, o.Modify(10100, 50))
	assert.Equal(t, int64(10100), o.Price)
	assert.Equal(t, int64(50), o.RemainingQuantity)

	assert.ErrorIs(t, o.Modify(0, 50), ErrInvalidPrice)
	assert.ErrorIs(t, o.Modify(10100, -1), ErrInvalidQuantity)

	require.NoError(t, o.Modify(10100, 0))
	assert.Equal(t, OrderStatusCanceled, o.Status)
	assert.False(t, o.Active())

	assert.ErrorIs(t, o.Modify(10100, 10), ErrInactiveOrder)
}

func TestOrder_Cancel(t *testing.T) {
	o, err := NewOrder("AAPL", SideBuy, OrderTypeLimit, 10000, 100)
	require.NoError(t, err)

	o.Cancel()
	assert.False(t, o.Active())
	assert.Equal(t, int64(0), o.RemainingQuantity)
	assert.Equal(t, OrderStatusCanceled, o.Status)
}
