package domain

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// Side represents the order side (buy or sell).
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderType represents the type of order.
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
	// OrderTypeStop is accepted by the constructor and rests at its limit
	// price; no trigger semantics are implemented.
	OrderTypeStop OrderType = "stop"
)

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "new"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCanceled        OrderStatus = "canceled"
)

var (
	ErrEmptySymbol     = errors.New("symbol must not be empty")
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrInvalidPrice    = errors.New("price must be positive for non-market orders")
	ErrInactiveOrder   = errors.New("order is no longer active")
)

// nextOrderID assigns process-wide order identities. IDs are strictly
// increasing and never reused.
var nextOrderID atomic.Int64

// Order represents a single working order.
// Prices are in ticks (cents, int64) to avoid floating-point issues.
// ID, Symbol, Side and Type are immutable after construction; the
// remaining quantity and status mutate under the owning book's lock.
type Order struct {
	ID                int64       `json:"order_id"`
	Symbol            string      `json:"symbol"`
	Side              Side        `json:"side"`
	Type              OrderType   `json:"type"`
	Price             int64       `json:"price"` // in ticks, 0 for market orders
	Quantity          int64       `json:"quantity"`
	FilledQuantity    int64       `json:"filled_quantity"`
	RemainingQuantity int64       `json:"remaining_quantity"`
	Status            OrderStatus `json:"status"`
	CreatedAt         time.Time   `json:"created_at"`

	// SequenceID is the book insertion stamp: re-stamped whenever the
	// order (re-)enters a queue, so a modified order counts as newly
	// arrived for time priority.
	SequenceID uint64 `json:"sequence_id"`
}

// NewOrder validates and constructs an order, assigning its identity.
// Market orders ignore the supplied price and carry price 0.
func NewOrder(symbol string, side Side, typ OrderType, price, quantity int64) (*Order, error) {
	if symbol == "" {
		return nil, ErrEmptySymbol
	}
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if typ == OrderTypeMarket {
		price = 0
	} else if price <= 0 {
		return nil, ErrInvalidPrice
	}

	return &Order{
		ID:                nextOrderID.Add(1) - 1,
		Symbol:            symbol,
		Side:              side,
		Type:              typ,
		Price:             price,
		Quantity:          quantity,
		RemainingQuantity: quantity,
		Status:            OrderStatusNew,
		CreatedAt:         time.Now(),
	}, nil
}

// Active reports whether the order can still trade.
func (o *Order) Active() bool {
	return o.Status != OrderStatusFilled && o.Status != OrderStatusCanceled
}

// Modify replaces the order's price and remaining quantity. A new
// quantity of zero cancels the order. Modifying an inactive order or
// setting a non-positive price on a non-market order is a hard error.
// Market orders ignore the supplied price and keep price 0.
func (o *Order) Modify(price, quantity int64) error {
	if !o.Active() {
		return ErrInactiveOrder
	}
	if quantity < 0 {
		return ErrInvalidQuantity
	}
	if o.Type == OrderTypeMarket {
		price = 0
	} else if price <= 0 {
		return ErrInvalidPrice
	}

	o.Price = price
	o.RemainingQuantity = quantity
	o.Quantity = o.FilledQuantity + quantity
	if quantity == 0 {
		o.Status = OrderStatusCanceled
	}
	return nil
}

// Reduce consumes quantity from the order after a fill.
func (o *Order) Reduce(qty int64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if qty > o.RemainingQuantity {
		return fmt.Errorf("fill of %d exceeds remaining %d on order %d", qty, o.RemainingQuantity, o.ID)
	}

	o.FilledQuantity += qty
	o.RemainingQuantity -= qty
	if o.RemainingQuantity == 0 {
		o.Status = OrderStatusFilled
	} else {
		o.Status = OrderStatusPartiallyFilled
	}
	return nil
}

// Cancel deactivates the order and zeroes its remaining quantity.
func (o *Order) Cancel() {
	o.RemainingQuantity = 0
	o.Status = OrderStatusCanceled
}

// Match is one execution produced by a book's matching loop.
type Match struct {
	BuyID    int64 `json:"buy_order_id"`
	SellID   int64 `json:"sell_order_id"`
	Price    int64 `json:"price"`
	Quantity int64 `json:"quantity"`
}

// Trade is a match with venue context attached by the engine.
type Trade struct {
	TradeID   string    `json:"trade_id"`
	Symbol    string    `json:"symbol"`
	BuyID     int64     `json:"buy_order_id"`
	SellID    int64     `json:"sell_order_id"`
	Price     int64     `json:"price"`
	Quantity  int64     `json:"quantity"`
	Timestamp time.Time `json:"timestamp"`
}

// TopOfBook is a best bid/ask snapshot. Fields are zero when a side
// holds no quotable orders.
type TopOfBook struct {
	Symbol   string `json:"symbol"`
	BidPrice int64  `json:"bid_price"`
	BidQty   int64  `json:"bid_qty"`
	AskPrice int64  `json:"ask_price"`
	AskQty   int64  `json:"ask_qty"`
}

// DepthLevel is one (price, quantity) row of a depth query.
type DepthLevel struct {
	Price    int64 `json:"price"`
	Quantity int64 `json:"quantity"`
}

// L2OrderBook is an aggregated order book snapshot.
type L2OrderBook struct {
	Symbol string       `json:"symbol"`
	Bids   []DepthLevel `json:"bids"`
	Asks   []DepthLevel `json:"asks"`
}

// Candlestick represents OHLCV data for a time interval.
type Candlestick struct {
	Symbol    string    `json:"symbol"`
	Open      int64     `json:"open"`
	High      int64     `json:"high"`
	Low       int64     `json:"low"`
	Close     int64     `json:"close"`
	Volume    int64     `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
	Interval  string    `json:"interval"` // e.g. "1m"
}
