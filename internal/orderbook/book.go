// Package orderbook holds the resting limit orders of one player.
//
// Bids are ordered by price descending, asks by price ascending, and
// within a price level by Seq ascending. Distinct prices live in binary
// heaps for O(1) best-price peeks; each level keeps a FIFO queue, and an
// id index makes cancellation cheap.
//
// The book does not match. The matching engine walks it to plan fills,
// then applies them with Fill once they are durable.
package orderbook

import (
	"container/heap"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/fanshares/exchange-core/internal/model"
)

var (
	ErrDuplicateOrder = errors.New("orderbook: order already resting")
	ErrInvalidEntry   = errors.New("orderbook: invalid entry")
	ErrOverfill       = errors.New("orderbook: fill exceeds remaining quantity")
)

// Entry is one resting order as the book sees it.
type Entry struct {
	OrderID   string          `json:"order_id"`
	UserID    string          `json:"user_id"`
	Side      model.Side      `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Remaining int64           `json:"remaining"`
	Seq       int64           `json:"seq"`
}

// Level is an aggregated price level.
type Level struct {
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity"`
	Orders   int             `json:"orders"`
}

type priceLevel struct {
	price   decimal.Decimal
	entries []*Entry // FIFO by Seq
}

type bookSide struct {
	heap   *priceHeap
	levels map[string]*priceLevel // canonical price string -> level
}

func newBookSide(desc bool) *bookSide {
	h := &priceHeap{desc: desc}
	heap.Init(h)
	return &bookSide{heap: h, levels: make(map[string]*priceLevel)}
}

// Book is safe for concurrent use. Walk, Depth and the best-price peeks
// take the read lock only.
type Book struct {
	mu sync.RWMutex

	bids *bookSide
	asks *bookSide

	index map[string]*Entry // order ID -> entry
}

// New creates an empty book.
func New() *Book {
	return &Book{
		bids:  newBookSide(true),
		asks:  newBookSide(false),
		index: make(map[string]*Entry),
	}
}

// priceKey canonicalizes a price so that 10 and 10.00 share a level.
func priceKey(p decimal.Decimal) string { return p.String() }

func (b *Book) side(s model.Side) *bookSide {
	if s == model.SideBuy {
		return b.bids
	}
	return b.asks
}

// Insert rests an entry at the back of its price level's queue.
func (b *Book) Insert(e Entry) error {
	if !e.Side.Valid() || e.Remaining <= 0 || !e.Price.IsPositive() {
		return fmt.Errorf("%w: %s side=%s remaining=%d price=%s", ErrInvalidEntry, e.OrderID, e.Side, e.Remaining, e.Price)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.index[e.OrderID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateOrder, e.OrderID)
	}

	bs := b.side(e.Side)
	key := priceKey(e.Price)
	lvl, ok := bs.levels[key]
	if !ok {
		lvl = &priceLevel{price: e.Price}
		bs.levels[key] = lvl
		heap.Push(bs.heap, e.Price)
	}

	cp := e
	// Keep the queue in Seq order even if a caller inserts out of order.
	i := len(lvl.entries)
	for i > 0 && lvl.entries[i-1].Seq > cp.Seq {
		i--
	}
	lvl.entries = append(lvl.entries, nil)
	copy(lvl.entries[i+1:], lvl.entries[i:])
	lvl.entries[i] = &cp

	b.index[e.OrderID] = &cp
	return nil
}

// Remove takes an order off the book. A missing id is a no-op and
// returns false, since cancels race with fills.
func (b *Book) Remove(orderID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.removeLocked(orderID)
}

func (b *Book) removeLocked(orderID string) bool {
	e, ok := b.index[orderID]
	if !ok {
		return false
	}
	bs := b.side(e.Side)
	key := priceKey(e.Price)
	lvl := bs.levels[key]
	for i, cur := range lvl.entries {
		if cur.OrderID == orderID {
			lvl.entries = append(lvl.entries[:i], lvl.entries[i+1:]...)
			break
		}
	}
	if len(lvl.entries) == 0 {
		delete(bs.levels, key)
		if i := bs.heap.indexOf(lvl.price); i >= 0 {
			heap.Remove(bs.heap, i)
		}
	}
	delete(b.index, orderID)
	return true
}

// Fill reduces a resting order by qty and removes it once exhausted.
// It reports whether the order left the book.
func (b *Book) Fill(orderID string, qty int64) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.index[orderID]
	if !ok {
		return false, fmt.Errorf("fill %s: not resting", orderID)
	}
	if qty <= 0 || qty > e.Remaining {
		return false, fmt.Errorf("%w: %s remaining %d, fill %d", ErrOverfill, orderID, e.Remaining, qty)
	}
	e.Remaining -= qty
	if e.Remaining == 0 {
		return b.removeLocked(orderID), nil
	}
	return false, nil
}

// Get returns a copy of a resting entry.
func (b *Book) Get(orderID string) (Entry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.index[orderID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// BestBid returns the highest resting bid price.
func (b *Book) BestBid() (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bids.heap.Peek()
}

// BestAsk returns the lowest resting ask price.
func (b *Book) BestAsk() (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.asks.heap.Peek()
}

// Len is the number of resting orders.
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.index)
}

// Walk visits resting entries of the given side in priority order until
// fn returns false. Entries are copies. fn must not call back into the
// book.
func (b *Book) Walk(side model.Side, fn func(Entry) bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	bs := b.side(side)
	h := bs.heap.clone()
	for h.Len() > 0 {
		p := heap.Pop(h).(decimal.Decimal)
		for _, e := range bs.levels[priceKey(p)].entries {
			if !fn(*e) {
				return
			}
		}
	}
}

// Depth returns up to n aggregated levels of one side, best first.
func (b *Book) Depth(side model.Side, n int) []Level {
	b.mu.RLock()
	defer b.mu.RUnlock()

	bs := b.side(side)
	h := bs.heap.clone()
	out := make([]Level, 0, min(n, h.Len()))
	for h.Len() > 0 && len(out) < n {
		p := heap.Pop(h).(decimal.Decimal)
		lvl := bs.levels[priceKey(p)]
		agg := Level{Price: lvl.price, Orders: len(lvl.entries)}
		for _, e := range lvl.entries {
			agg.Quantity += e.Remaining
		}
		out = append(out, agg)
	}
	return out
}
