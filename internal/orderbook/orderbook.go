package orderbook

import (
	"container/list"
	"errors"
	"fmt"
	"sync"

	"github.com/google/btree"

	"github.com/tradecore/tradecore/internal/domain"
)

var (
	ErrNilOrder       = errors.New("nil order")
	ErrSymbolMismatch = errors.New("order symbol does not match book")
)

// bookLevel is a FIFO queue of orders resting at one price.
type bookLevel struct {
	price       int64
	totalVolume int64
	orders      *list.List // of *domain.Order
}

// bidsBefore orders bid levels highest price first.
func bidsBefore(a, b *bookLevel) bool {
	return a.price > b.price
}

// asksBefore orders ask levels lowest price first.
func asksBefore(a, b *bookLevel) bool {
	return a.price < b.price
}

// bookSide holds one side of the book: a price-ordered tree of limit
// levels plus a dedicated FIFO of market orders. The market queue is
// consulted before any level, which gives market orders priority
// without sentinel price keys.
type bookSide struct {
	side     domain.Side
	levels   *btree.BTreeG[*bookLevel]
	levelMap map[int64]*bookLevel
	market   *list.List // of *domain.Order
}

func newBookSide(side domain.Side) *bookSide {
	less := asksBefore
	if side == domain.SideBuy {
		less = bidsBefore
	}
	return &bookSide{
		side:     side,
		levels:   btree.NewG(2, less),
		levelMap: make(map[int64]*bookLevel),
		market:   list.New(),
	}
}

// insert appends the order to the tail of its queue and returns the
// list element plus the level it joined (nil for market orders).
func (s *bookSide) insert(o *domain.Order) (*list.Element, *bookLevel) {
	if o.Type == domain.OrderTypeMarket {
		return s.market.PushBack(o), nil
	}

	level, exists := s.levelMap[o.Price]
	if !exists {
		level = &bookLevel{price: o.Price, orders: list.New()}
		s.levelMap[o.Price] = level
		s.levels.ReplaceOrInsert(level)
	}
	level.totalVolume += o.RemainingQuantity
	return level.orders.PushBack(o), level
}

// dropLevel erases a level that has become empty.
func (s *bookSide) dropLevel(level *bookLevel) {
	delete(s.levelMap, level.price)
	s.levels.Delete(level)
}

// best returns the head order of the best limit level, or nil.
func (s *bookSide) best() *domain.Order {
	level, ok := s.levels.Min()
	if !ok {
		return nil
	}
	return level.orders.Front().Value.(*domain.Order)
}

// marketHead returns the oldest resting market order, or nil.
func (s *bookSide) marketHead() *domain.Order {
	front := s.market.Front()
	if front == nil {
		return nil
	}
	return front.Value.(*domain.Order)
}

// orderEntry ties an order to its queue position for O(1) removal.
// level is nil when the order rests in the market FIFO.
type orderEntry struct {
	order   *domain.Order
	element *list.Element
	level   *bookLevel
}

// Book is the price-time-priority order book for a single symbol.
// All exported operations take the book mutex and are atomic with
// respect to each other. Orders leave their queues eagerly on cancel,
// modify and fill, so queue heads are always active.
type Book struct {
	mu     sync.Mutex
	symbol string
	bids   *bookSide
	asks   *bookSide
	orders map[int64]*orderEntry

	// insertSeq stamps every queue insertion. A lower stamp means
	// earlier arrival; a re-inserted (modified) order is stamped anew.
	insertSeq uint64
}

// NewBook creates an empty order book for a symbol.
func NewBook(symbol string) *Book {
	return &Book{
		symbol: symbol,
		bids:   newBookSide(domain.SideBuy),
		asks:   newBookSide(domain.SideSell),
		orders: make(map[int64]*orderEntry),
	}
}

// Symbol returns the symbol this book trades.
func (b *Book) Symbol() string {
	return b.symbol
}

func (b *Book) sideFor(side domain.Side) *bookSide {
	if side == domain.SideBuy {
		return b.bids
	}
	return b.asks
}

// AddOrder inserts an order at the tail of its queue and indexes it by
// id. It does not run the matching loop. Nil orders and symbol
// mismatches are hard errors.
func (b *Book) AddOrder(o *domain.Order) (int64, error) {
	if o == nil {
		return 0, ErrNilOrder
	}
	if o.Symbol != b.symbol {
		return 0, fmt.Errorf("%w: order %q, book %q", ErrSymbolMismatch, o.Symbol, b.symbol)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.insert(o)
	return o.ID, nil
}

func (b *Book) insert(o *domain.Order) {
	b.insertSeq++
	o.SequenceID = b.insertSeq

	side := b.sideFor(o.Side)
	element, level := side.insert(o)
	b.orders[o.ID] = &orderEntry{order: o, element: element, level: level}
}

// unlink removes the entry from its queue and the id index, erasing
// the level if it empties.
func (b *Book) unlink(entry *orderEntry) {
	side := b.sideFor(entry.order.Side)
	if entry.level == nil {
		side.market.Remove(entry.element)
	} else {
		entry.level.orders.Remove(entry.element)
		entry.level.totalVolume -= entry.order.RemainingQuantity
		if entry.level.orders.Len() == 0 {
			side.dropLevel(entry.level)
		}
	}
	delete(b.orders, entry.order.ID)
}

// RemoveOrder cancels an order and removes it from the book.
// Unknown ids return false.
func (b *Book) RemoveOrder(id int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, exists := b.orders[id]
	if !exists {
		return false
	}

	b.unlink(entry)
	entry.order.Cancel()
	return true
}

// ModifyOrder changes an order's price and/or remaining quantity.
// The order is re-inserted at the tail of its destination queue, so any
// modify loses time priority. A new quantity of zero or below cancels
// the order. Unknown or inactive ids return false; an invalid price for
// a non-market order is a hard error.
func (b *Book) ModifyOrder(id int64, newPrice, newQty *int64) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, exists := b.orders[id]
	if !exists {
		return false, nil
	}
	o := entry.order
	if !o.Active() {
		return false, nil
	}

	price := o.Price
	if newPrice != nil {
		price = *newPrice
	}
	qty := o.RemainingQuantity
	if newQty != nil {
		qty = *newQty
	}

	if qty <= 0 {
		b.unlink(entry)
		o.Cancel()
		return true, nil
	}
	if o.Type != domain.OrderTypeMarket && price <= 0 {
		return false, domain.ErrInvalidPrice
	}

	b.unlink(entry)
	if err := o.Modify(price, qty); err != nil {
		return false, err
	}
	b.insert(o)
	return true, nil
}

// Order returns the resting order with the given id, or nil.
func (b *Book) Order(id int64) *domain.Order {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, exists := b.orders[id]
	if !exists {
		return nil
	}
	return entry.order
}

// BestBid returns the highest-priced resting buy order, or nil.
// Market orders are excluded: a market order is not a quotable price.
func (b *Book) BestBid() *domain.Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bids.best()
}

// BestAsk returns the lowest-priced resting sell order, or nil.
func (b *Book) BestAsk() *domain.Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.asks.best()
}

// BuyOrders returns all active buy orders, market orders first, then
// best price first and FIFO within a level.
func (b *Book) BuyOrders() []*domain.Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	return collectSide(b.bids)
}

// SellOrders returns all active sell orders in matching priority order.
func (b *Book) SellOrders() []*domain.Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	return collectSide(b.asks)
}

func collectSide(side *bookSide) []*domain.Order {
	var out []*domain.Order
	for e := side.market.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*domain.Order))
	}
	side.levels.Ascend(func(level *bookLevel) bool {
		for e := level.orders.Front(); e != nil; e = e.Next() {
			out = append(out, e.Value.(*domain.Order))
		}
		return true
	})
	return out
}

// Match runs the matching loop to fixpoint and returns the executions
// in the order they occurred. When it returns the book is
// non-crossing: either side is empty, or best bid < best ask and no
// market order rests while priced opposing liquidity remains.
func (b *Book) Match() []domain.Match {
	b.mu.Lock()
	defer b.mu.Unlock()

	var matches []domain.Match
	for {
		buy, sell := b.headOrders()
		if buy == nil || sell == nil {
			break
		}

		buyMarket := buy.Type == domain.OrderTypeMarket
		sellMarket := sell.Type == domain.OrderTypeMarket
		if !buyMarket && !sellMarket && buy.Price < sell.Price {
			break
		}

		qty := min(buy.RemainingQuantity, sell.RemainingQuantity)

		var price int64
		switch {
		case buyMarket:
			price = sell.Price
		case sellMarket:
			price = buy.Price
		case buy.SequenceID < sell.SequenceID:
			// the resting (earlier) side sets the price
			price = buy.Price
		default:
			price = sell.Price
		}

		b.fill(buy, qty)
		b.fill(sell, qty)

		matches = append(matches, domain.Match{
			BuyID:    buy.ID,
			SellID:   sell.ID,
			Price:    price,
			Quantity: qty,
		})
	}
	return matches
}

// headOrders selects the next candidate pair: the market FIFO head if
// one rests, otherwise the best limit head. Two market orders never
// trade with each other; when both heads are market orders one side
// falls back to its best limit, and with no limit liquidity at all
// matching stops.
func (b *Book) headOrders() (*domain.Order, *domain.Order) {
	buy := b.bids.marketHead()
	if buy == nil {
		buy = b.bids.best()
	}
	sell := b.asks.marketHead()
	if sell == nil {
		sell = b.asks.best()
	}
	if buy == nil || sell == nil {
		return nil, nil
	}

	if buy.Type == domain.OrderTypeMarket && sell.Type == domain.OrderTypeMarket {
		if limit := b.asks.best(); limit != nil {
			sell = limit
		} else if limit := b.bids.best(); limit != nil {
			buy = limit
		} else {
			return nil, nil
		}
	}
	return buy, sell
}

// fill reduces an order by the traded quantity and unlinks it once it
// is fully filled.
func (b *Book) fill(o *domain.Order, qty int64) {
	entry := b.orders[o.ID]
	if entry.level != nil {
		entry.level.totalVolume -= qty
	}
	if err := o.Reduce(qty); err != nil {
		panic(fmt.Sprintf("orderbook: %v", err))
	}
	if !o.Active() {
		b.unlink(entry)
	}
}

// Depth returns up to levels rows per side, one row per active order
// (two orders at the same price produce two rows), in matching
// priority order. Market orders appear first with price 0.
func (b *Book) Depth(levels int) (bids, asks []domain.DepthLevel) {
	b.mu.Lock()
	defer b.mu.Unlock()

	bids = flattenSide(b.bids, levels)
	asks = flattenSide(b.asks, levels)
	return bids, asks
}

func flattenSide(side *bookSide, levels int) []domain.DepthLevel {
	out := []domain.DepthLevel{}
	for _, o := range collectSide(side) {
		if levels > 0 && len(out) >= levels {
			break
		}
		out = append(out, domain.DepthLevel{Price: o.Price, Quantity: o.RemainingQuantity})
	}
	return out
}

// L2Snapshot returns an aggregated view of the limit levels, best
// price first, up to depth levels per side. Market orders carry no
// price and are not part of the L2 view.
func (b *Book) L2Snapshot(depth int) *domain.L2OrderBook {
	b.mu.Lock()
	defer b.mu.Unlock()

	return &domain.L2OrderBook{
		Symbol: b.symbol,
		Bids:   aggregateSide(b.bids, depth),
		Asks:   aggregateSide(b.asks, depth),
	}
}

func aggregateSide(side *bookSide, depth int) []domain.DepthLevel {
	out := []domain.DepthLevel{}
	side.levels.Ascend(func(level *bookLevel) bool {
		if depth > 0 && len(out) >= depth {
			return false
		}
		out = append(out, domain.DepthLevel{Price: level.price, Quantity: level.totalVolume})
		return true
	})
	return out
}
