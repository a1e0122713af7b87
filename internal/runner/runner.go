package runner

import (
	"sync"

	"go.uber.org/zap"

	"github.com/tradecore/tradecore/internal/domain"
	"github.com/tradecore/tradecore/internal/matching"
)

// Command is one inbound instruction for the runner's worker.
type Command interface {
	isCommand()
}

// NewOrder submits a fully constructed order.
type NewOrder struct {
	Order *domain.Order
}

// Cancel removes a working order by id.
type Cancel struct {
	OrderID int64
}

// Modify amends a working order's price and/or quantity. Nil fields
// keep the current value.
type Modify struct {
	OrderID  int64
	Price    *int64
	Quantity *int64
}

func (NewOrder) isCommand() {}
func (Cancel) isCommand()   {}
func (Modify) isCommand()   {}

// Event is one outbound message for consumers to poll.
type Event interface {
	isEvent()
}

// TradeEvent reports one execution.
type TradeEvent struct {
	Trade domain.Trade
}

// TopOfBookEvent reports the best bid/ask of the affected book after a
// command has been fully processed.
type TopOfBookEvent struct {
	Book domain.TopOfBook
}

func (TradeEvent) isEvent()     {}
func (TopOfBookEvent) isEvent() {}

// Runner serializes concurrent producers into a single stream of
// engine operations and publishes trade and top-of-book events back to
// polling consumers.
//
// One mutex guards both queues; the worker blocks on the condition
// variable while the inbound queue is empty. The engine's trade sink is
// the runner itself: it appends a TradeEvent while the triggering
// submit or modify is still in flight, so all trades of a command are
// queued before that command's TopOfBookEvent. The runner mutex is
// never held across an engine call.
type Runner struct {
	engine *matching.Engine
	log    *zap.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	inQ     []Command
	outQ    []Event
	running bool
	wg      sync.WaitGroup
}

// New creates a runner with its own engine and starts the worker.
func New(log *zap.Logger) *Runner {
	r := &Runner{
		engine:  matching.NewEngine(),
		log:     log,
		running: true,
	}
	r.cond = sync.NewCond(&r.mu)
	r.engine.SetTradeHandler(r)

	r.wg.Add(1)
	go r.loop()
	return r
}

// Engine exposes the underlying engine for read-only queries such as
// depth snapshots.
func (r *Runner) Engine() *matching.Engine {
	return r.engine
}

// Push enqueues a command. It returns false once the runner has been
// stopped; nothing is silently queued after shutdown.
func (r *Runner) Push(cmd Command) bool {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return false
	}
	r.inQ = append(r.inQ, cmd)
	r.mu.Unlock()

	r.cond.Signal()
	return true
}

// Poll dequeues one event without blocking. It returns false when the
// outbound queue is empty. Events remain pollable after Stop.
func (r *Runner) Poll() (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.outQ) == 0 {
		return nil, false
	}
	ev := r.outQ[0]
	r.outQ = r.outQ[1:]
	return ev, true
}

// QueueDepths reports the current inbound and outbound queue lengths.
func (r *Runner) QueueDepths() (in, out int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inQ), len(r.outQ)
}

// Stop shuts the worker down and joins it. Commands still queued are
// abandoned. Stop is idempotent.
func (r *Runner) Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	r.cond.Broadcast()
	r.wg.Wait()
}

// HandleTrade implements matching.TradeHandler. It runs synchronously
// inside Submit/Modify, so all trades of a command are enqueued before
// that command's TopOfBookEvent.
func (r *Runner) HandleTrade(trade domain.Trade) {
	r.mu.Lock()
	r.outQ = append(r.outQ, TradeEvent{Trade: trade})
	r.mu.Unlock()
}

func (r *Runner) loop() {
	defer r.wg.Done()
	r.log.Info("runner started")

	for {
		r.mu.Lock()
		for len(r.inQ) == 0 && r.running {
			r.cond.Wait()
		}
		if !r.running {
			r.mu.Unlock()
			r.log.Info("runner stopped")
			return
		}
		cmd := r.inQ[0]
		r.inQ = r.inQ[1:]
		r.mu.Unlock()

		symbol := r.dispatch(cmd)
		if symbol == "" {
			continue
		}
		r.emitTopOfBook(symbol)
	}
}

// dispatch applies one command to the engine and returns the affected
// symbol, or "" when no book changed. Engine faults are logged here
// rather than crashing the worker.
func (r *Runner) dispatch(cmd Command) string {
	switch c := cmd.(type) {
	case NewOrder:
		if c.Order == nil {
			r.log.Warn("new order command without order")
			return ""
		}
		if _, err := r.engine.Submit(c.Order); err != nil {
			r.log.Warn("order rejected",
				zap.Int64("order_id", c.Order.ID),
				zap.String("symbol", c.Order.Symbol),
				zap.Error(err))
			return ""
		}
		return c.Order.Symbol

	case Cancel:
		symbol, ok := r.engine.SymbolFor(c.OrderID)
		if !ok {
			r.log.Debug("cancel of unknown order", zap.Int64("order_id", c.OrderID))
			return ""
		}
		if !r.engine.Cancel(c.OrderID) {
			return ""
		}
		return symbol

	case Modify:
		symbol, ok := r.engine.SymbolFor(c.OrderID)
		if !ok {
			r.log.Debug("modify of unknown order", zap.Int64("order_id", c.OrderID))
			return ""
		}
		ok, err := r.engine.Modify(c.OrderID, c.Price, c.Quantity)
		if err != nil {
			r.log.Warn("modify rejected", zap.Int64("order_id", c.OrderID), zap.Error(err))
			return ""
		}
		if !ok {
			return ""
		}
		return symbol
	}
	return ""
}

// emitTopOfBook snapshots the book after the command completed and
// enqueues the event. Empty sides report zero price and quantity.
func (r *Runner) emitTopOfBook(symbol string) {
	book := r.engine.Book(symbol)
	if book == nil {
		return
	}

	tob := domain.TopOfBook{Symbol: symbol}
	if bid := book.BestBid(); bid != nil {
		tob.BidPrice = bid.Price
		tob.BidQty = bid.RemainingQuantity
	}
	if ask := book.BestAsk(); ask != nil {
		tob.AskPrice = ask.Price
		tob.AskQty = ask.RemainingQuantity
	}

	r.mu.Lock()
	r.outQ = append(r.outQ, TopOfBookEvent{Book: tob})
	r.mu.Unlock()
}
