package runner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tradecore/tradecore/internal/domain"
)

func newTestOrder(t *testing.T, side domain.Side, typ domain.OrderType, price, qty int64) *domain.Order {
	t.Helper()
	o, err := domain.NewOrder("AAPL", side, typ, price, qty)
	require.NoError(t, err)
	return o
}

// collectEvents polls until n events arrived or the test times out.
func collectEvents(t *testing.T, r *Runner, n int) []Event {
	t.Helper()
	var events []Event
	deadline := time.Now().Add(2 * time.Second)
	for len(events) < n {
		if ev, ok := r.Poll(); ok {
			events = append(events, ev)
			continue
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d events, got %d", n, len(events))
		}
		time.Sleep(time.Millisecond)
	}
	return events
}

// assertNoEvent verifies the outbound queue stays empty for a moment.
func assertNoEvent(t *testing.T, r *Runner) {
	t.Helper()
	time.Sleep(50 * time.Millisecond)
	_, ok := r.Poll()
	assert.False(t, ok)
}

func TestNewOrderEmitsTopOfBook(t *testing.T) {
	r := New(zap.NewNop())
	defer r.Stop()

	sell := newTestOrder(t, domain.SideSell, domain.OrderTypeLimit, 15000, 40)
	require.True(t, r.Push(NewOrder{Order: sell}))

	events := collectEvents(t, r, 1)
	tob, ok := events[0].(TopOfBookEvent)
	require.True(t, ok)
	assert.Equal(t, "AAPL", tob.Book.Symbol)
	assert.Equal(t, int64(0), tob.Book.BidPrice)
	assert.Equal(t, int64(0), tob.Book.BidQty)
	assert.Equal(t, int64(15000), tob.Book.AskPrice)
	assert.Equal(t, int64(40), tob.Book.AskQty)
}

func TestTradesPrecedeTopOfBook(t *testing.T) {
	r := New(zap.NewNop())
	defer r.Stop()

	sell := newTestOrder(t, domain.SideSell, domain.OrderTypeLimit, 15000, 40)
	buy := newTestOrder(t, domain.SideBuy, domain.OrderTypeMarket, 0, 35)
	require.True(t, r.Push(NewOrder{Order: sell}))
	require.True(t, r.Push(NewOrder{Order: buy}))

	events := collectEvents(t, r, 3)

	_, ok := events[0].(TopOfBookEvent)
	require.True(t, ok, "first event is the sell's top of book")

	trade, ok := events[1].(TradeEvent)
	require.True(t, ok, "the trade precedes the buy's top of book")
	assert.Equal(t, buy.ID, trade.Trade.BuyID)
	assert.Equal(t, sell.ID, trade.Trade.SellID)
	assert.Equal(t, int64(15000), trade.Trade.Price)
	assert.Equal(t, int64(35), trade.Trade.Quantity)

	tob, ok := events[2].(TopOfBookEvent)
	require.True(t, ok)
	// the snapshot reflects the fully processed command
	assert.Equal(t, int64(15000), tob.Book.AskPrice)
	assert.Equal(t, int64(5), tob.Book.AskQty)
	assert.Equal(t, int64(0), tob.Book.BidPrice)
}

func TestCommandsAppliedInPushOrder(t *testing.T) {
	r := New(zap.NewNop())
	defer r.Stop()

	require.True(t, r.Push(NewOrder{Order: newTestOrder(t, domain.SideBuy, domain.OrderTypeLimit, 14900, 10)}))
	require.True(t, r.Push(NewOrder{Order: newTestOrder(t, domain.SideBuy, domain.OrderTypeLimit, 14950, 10)}))

	events := collectEvents(t, r, 2)
	first := events[0].(TopOfBookEvent)
	second := events[1].(TopOfBookEvent)
	assert.Equal(t, int64(14900), first.Book.BidPrice)
	assert.Equal(t, int64(14950), second.Book.BidPrice)
}

func TestCancelEmitsTopOfBook(t *testing.T) {
	r := New(zap.NewNop())
	defer r.Stop()

	sell := newTestOrder(t, domain.SideSell, domain.OrderTypeLimit, 15000, 40)
	require.True(t, r.Push(NewOrder{Order: sell}))
	collectEvents(t, r, 1)

	require.True(t, r.Push(Cancel{OrderID: sell.ID}))
	events := collectEvents(t, r, 1)
	tob, ok := events[0].(TopOfBookEvent)
	require.True(t, ok)
	assert.Equal(t, domain.TopOfBook{Symbol: "AAPL"}, tob.Book)
}

func TestModifyEmitsTradeThenTopOfBook(t *testing.T) {
	r := New(zap.NewNop())
	defer r.Stop()

	buy := newTestOrder(t, domain.SideBuy, domain.OrderTypeLimit, 14900, 50)
	sell := newTestOrder(t, domain.SideSell, domain.OrderTypeLimit, 15100, 50)
	require.True(t, r.Push(NewOrder{Order: buy}))
	require.True(t, r.Push(NewOrder{Order: sell}))
	collectEvents(t, r, 2)

	newPrice := int64(15200)
	require.True(t, r.Push(Modify{OrderID: buy.ID, Price: &newPrice}))

	events := collectEvents(t, r, 2)
	trade, ok := events[0].(TradeEvent)
	require.True(t, ok)
	assert.Equal(t, int64(50), trade.Trade.Quantity)
	assert.Equal(t, int64(15100), trade.Trade.Price)

	tob, ok := events[1].(TopOfBookEvent)
	require.True(t, ok)
	assert.Equal(t, domain.TopOfBook{Symbol: "AAPL"}, tob.Book)
}

func TestUnknownIDProducesNoEvent(t *testing.T) {
	r := New(zap.NewNop())
	defer r.Stop()

	require.True(t, r.Push(Cancel{OrderID: 987654}))
	price := int64(10000)
	require.True(t, r.Push(Modify{OrderID: 987654, Price: &price}))
	assertNoEvent(t, r)
}

func TestRejectedOrderProducesNoEvent(t *testing.T) {
	r := New(zap.NewNop())
	defer r.Stop()
	r.Engine().SetMaxOrderQty(5)

	require.True(t, r.Push(NewOrder{Order: newTestOrder(t, domain.SideBuy, domain.OrderTypeLimit, 14900, 10)}))
	assertNoEvent(t, r)

	// the worker survived the reject
	require.True(t, r.Push(NewOrder{Order: newTestOrder(t, domain.SideBuy, domain.OrderTypeLimit, 14900, 5)}))
	collectEvents(t, r, 1)
}

func TestPushAfterStopIsRejected(t *testing.T) {
	r := New(zap.NewNop())
	r.Stop()

	ok := r.Push(NewOrder{Order: newTestOrder(t, domain.SideBuy, domain.OrderTypeLimit, 14900, 10)})
	assert.False(t, ok)
}

func TestStopIsIdempotentAndEventsRemainPollable(t *testing.T) {
	r := New(zap.NewNop())

	sell := newTestOrder(t, domain.SideSell, domain.OrderTypeLimit, 15000, 40)
	require.True(t, r.Push(NewOrder{Order: sell}))
	collectEvents(t, r, 1)

	buy := newTestOrder(t, domain.SideBuy, domain.OrderTypeMarket, 0, 35)
	require.True(t, r.Push(NewOrder{Order: buy}))
	// wait until the command is fully processed before stopping: its
	// trade and top of book are queued and nothing is left inbound
	require.Eventually(t, func() bool {
		in, out := r.QueueDepths()
		return in == 0 && out == 2
	}, 2*time.Second, time.Millisecond)

	r.Stop()
	r.Stop()

	// events queued before stop are still pollable afterwards
	events := collectEvents(t, r, 2)
	require.Len(t, events, 2)
	_, ok := events[0].(TradeEvent)
	assert.True(t, ok)
	_, ok = events[1].(TopOfBookEvent)
	assert.True(t, ok)

	// polling after stop drains whatever is left without hanging
	_, ok = r.Poll()
	assert.False(t, ok)
}

func TestQueueDepths(t *testing.T) {
	r := New(zap.NewNop())
	defer r.Stop()

	require.True(t, r.Push(NewOrder{Order: newTestOrder(t, domain.SideSell, domain.OrderTypeLimit, 15000, 1)}))
	collectEvents(t, r, 1)

	in, out := r.QueueDepths()
	assert.Zero(t, in)
	assert.Zero(t, out)
}
