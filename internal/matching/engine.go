package matching

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tradecore/tradecore/internal/domain"
	"github.com/tradecore/tradecore/internal/orderbook"
)

// DefaultMaxOrderQty is the per-order quantity ceiling applied until
// SetMaxOrderQty overrides it.
const DefaultMaxOrderQty = 1_000_000

var (
	ErrNilOrder      = errors.New("nil order")
	ErrQuantityLimit = errors.New("order quantity exceeds limit")
)

// TradeHandler receives each trade synchronously as the engine produces
// it. A handler must not block for long and must not fail: the engine
// invokes it while the triggering Submit or Modify call is still in
// flight, after the book's matching loop has returned.
type TradeHandler interface {
	HandleTrade(trade domain.Trade)
}

// TradeHandlerFunc adapts a function to the TradeHandler interface.
type TradeHandlerFunc func(trade domain.Trade)

func (f TradeHandlerFunc) HandleTrade(trade domain.Trade) { f(trade) }

// Engine routes orders to per-symbol books, enforces the pre-trade
// quantity ceiling and dispatches trades to the configured sink.
//
// The registry mutex guards only the two maps; book operations run
// outside it so traffic on different symbols does not serialize.
type Engine struct {
	mu       sync.RWMutex
	books    map[string]*orderbook.Book // symbol -> owned book
	idToBook map[int64]*orderbook.Book  // live order id -> its book

	maxOrderQty int64
	handler     TradeHandler
}

// NewEngine creates an engine with no books and the default quantity
// ceiling.
func NewEngine() *Engine {
	return &Engine{
		books:       make(map[string]*orderbook.Book),
		idToBook:    make(map[int64]*orderbook.Book),
		maxOrderQty: DefaultMaxOrderQty,
	}
}

// SetMaxOrderQty replaces the per-order quantity ceiling. Configure
// before concurrent submission begins.
func (e *Engine) SetMaxOrderQty(n int64) {
	e.maxOrderQty = n
}

// SetTradeHandler installs the trade sink. Configure before concurrent
// submission begins.
func (e *Engine) SetTradeHandler(h TradeHandler) {
	e.handler = h
}

// EnsureBook idempotently creates the book for a symbol.
func (e *Engine) EnsureBook(symbol string) *orderbook.Book {
	e.mu.RLock()
	book, exists := e.books[symbol]
	e.mu.RUnlock()
	if exists {
		return book
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if book, exists = e.books[symbol]; exists {
		return book
	}
	book = orderbook.NewBook(symbol)
	e.books[symbol] = book
	return book
}

// Book returns the book for a symbol, or nil.
func (e *Engine) Book(symbol string) *orderbook.Book {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.books[symbol]
}

// SymbolFor resolves the symbol an order id currently rests on.
func (e *Engine) SymbolFor(id int64) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	book, exists := e.idToBook[id]
	if !exists {
		return "", false
	}
	return book.Symbol(), true
}

func (e *Engine) bookFor(id int64) *orderbook.Book {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.idToBook[id]
}

// Submit adds an order to its symbol's book, runs the matching loop
// and dispatches the resulting trades. Nil orders and quantities above
// the ceiling are hard errors; the book is left untouched.
func (e *Engine) Submit(o *domain.Order) (int64, error) {
	if o == nil {
		return 0, ErrNilOrder
	}
	if o.Quantity > e.maxOrderQty {
		return 0, fmt.Errorf("%w: %d > %d", ErrQuantityLimit, o.Quantity, e.maxOrderQty)
	}

	book := e.EnsureBook(o.Symbol)
	id, err := book.AddOrder(o)
	if err != nil {
		return 0, err
	}

	e.mu.Lock()
	e.idToBook[id] = book
	e.mu.Unlock()

	e.publish(book, book.Match())
	return id, nil
}

// Cancel removes an order by id alone, routed through the id index.
// Unknown ids return false.
func (e *Engine) Cancel(id int64) bool {
	book := e.bookFor(id)
	if book == nil {
		return false
	}

	if !book.RemoveOrder(id) {
		return false
	}

	e.mu.Lock()
	delete(e.idToBook, id)
	e.mu.Unlock()
	return true
}

// Modify amends an order's price and/or quantity, then re-runs the
// matching loop and publishes any trades. Unknown ids return false.
// A modify to zero quantity cancels the order and evicts its index
// entry.
func (e *Engine) Modify(id int64, newPrice, newQty *int64) (bool, error) {
	book := e.bookFor(id)
	if book == nil {
		return false, nil
	}

	ok, err := book.ModifyOrder(id, newPrice, newQty)
	if err != nil || !ok {
		return ok, err
	}

	if book.Order(id) == nil {
		e.mu.Lock()
		delete(e.idToBook, id)
		e.mu.Unlock()
	}

	e.publish(book, book.Match())
	return true, nil
}

// publish wraps matches into trades, dispatches them to the sink and
// prunes index entries of orders the sweep fully filled.
func (e *Engine) publish(book *orderbook.Book, matches []domain.Match) {
	if len(matches) == 0 {
		return
	}

	now := time.Now()
	for _, m := range matches {
		if e.handler != nil {
			e.handler.HandleTrade(domain.Trade{
				TradeID:   uuid.New().String(),
				Symbol:    book.Symbol(),
				BuyID:     m.BuyID,
				SellID:    m.SellID,
				Price:     m.Price,
				Quantity:  m.Quantity,
				Timestamp: now,
			})
		}
	}

	var dead []int64
	for _, m := range matches {
		if book.Order(m.BuyID) == nil {
			dead = append(dead, m.BuyID)
		}
		if book.Order(m.SellID) == nil {
			dead = append(dead, m.SellID)
		}
	}
	if len(dead) == 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range dead {
		delete(e.idToBook, id)
	}
}

// L2Snapshot returns an aggregated book snapshot for a symbol. Unknown
// symbols yield an empty snapshot.
func (e *Engine) L2Snapshot(symbol string, depth int) *domain.L2OrderBook {
	book := e.Book(symbol)
	if book == nil {
		return &domain.L2OrderBook{
			Symbol: symbol,
			Bids:   []domain.DepthLevel{},
			Asks:   []domain.DepthLevel{},
		}
	}
	return book.L2Snapshot(depth)
}

// Depth returns up to levels per-order (price, quantity) rows per side
// for a symbol, best first.
func (e *Engine) Depth(symbol string, levels int) (bids, asks []domain.DepthLevel) {
	book := e.Book(symbol)
	if book == nil {
		return []domain.DepthLevel{}, []domain.DepthLevel{}
	}
	return book.Depth(levels)
}
