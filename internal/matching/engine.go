// Package matching implements the continuous double auction: price-time
// priority matching of limit and market orders against per-player books.
//
// Placement and cancellation for one player are serialized by an
// instrument lock. Under that lock the engine plans the walk against the
// in-memory book, commits every economic effect in one store transaction
// through the ledger, and only then applies the fills to the book. A
// rolled-back transaction therefore leaves the book untouched.
package matching

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fanshares/exchange-core/internal/catalog"
	"github.com/fanshares/exchange-core/internal/event"
	"github.com/fanshares/exchange-core/internal/keylock"
	"github.com/fanshares/exchange-core/internal/ledger"
	"github.com/fanshares/exchange-core/internal/limits"
	"github.com/fanshares/exchange-core/internal/metrics"
	"github.com/fanshares/exchange-core/internal/model"
	"github.com/fanshares/exchange-core/internal/orderbook"
	"github.com/fanshares/exchange-core/internal/store"
)

// ErrInvalidOrder is returned for malformed orders, unknown or inactive
// players, and other requests rejected before any reservation.
var ErrInvalidOrder = errors.New("matching: invalid order")

const (
	defaultDepthLevels = 10
	maxDepthLevels     = 100
	defaultTradeLimit  = 50
	maxTradeLimit      = 500
)

// Deps are the engine's collaborators. Store and Catalog are required.
type Deps struct {
	Store   store.Store
	Catalog catalog.Catalog
	Ledger  *ledger.Ledger          // nil uses ledger.New()
	Limiter *limits.PositionLimiter // nil disables position limits
	Events  event.Publisher         // nil drops events
	Logger  *zap.Logger
	Now     func() time.Time
}

// Engine owns one order book per player.
type Engine struct {
	store   store.Store
	catalog catalog.Catalog
	ledger  *ledger.Ledger
	limiter *limits.PositionLimiter
	events  event.Publisher
	logger  *zap.Logger
	now     func() time.Time

	locks *keylock.Map // per-player instrument lock

	mu    sync.RWMutex
	books map[string]*orderbook.Book

	seq atomic.Int64
}

// New creates an engine with empty books. Call Restore before serving.
func New(d Deps) *Engine {
	e := &Engine{
		store:   d.Store,
		catalog: d.Catalog,
		ledger:  d.Ledger,
		limiter: d.Limiter,
		events:  d.Events,
		logger:  d.Logger,
		now:     d.Now,
		locks:   keylock.New(),
		books:   make(map[string]*orderbook.Book),
	}
	if e.ledger == nil {
		e.ledger = ledger.New()
	}
	if e.events == nil {
		e.events = event.Nop{}
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.now == nil {
		e.now = func() time.Time { return time.Now().UTC() }
	}
	return e
}

// book returns the player's book, creating it on first use.
func (e *Engine) book(playerID string) *orderbook.Book {
	e.mu.RLock()
	b, ok := e.books[playerID]
	e.mu.RUnlock()
	if ok {
		return b
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if b, ok = e.books[playerID]; !ok {
		b = orderbook.New()
		e.books[playerID] = b
	}
	return b
}

// peekBook returns the player's book or nil without creating one.
func (e *Engine) peekBook(playerID string) *orderbook.Book {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.books[playerID]
}

// Restore rebuilds every book from persisted resting orders and seeds the
// sequence counter. It returns the number of orders restored.
func (e *Engine) Restore(ctx context.Context) (int, error) {
	orders, err := e.store.ListRestingOrders(ctx)
	if err != nil {
		return 0, fmt.Errorf("list resting orders: %w", err)
	}
	for _, o := range orders {
		err := e.book(o.PlayerID).Insert(orderbook.Entry{
			OrderID:   o.ID,
			UserID:    o.UserID,
			Side:      o.Side,
			Price:     o.LimitPrice,
			Remaining: o.Remaining(),
			Seq:       o.Seq,
		})
		if err != nil {
			return 0, fmt.Errorf("restore order %s: %w", o.ID, err)
		}
	}

	top, err := e.store.MaxOrderSeq(ctx)
	if err != nil {
		return 0, fmt.Errorf("max order seq: %w", err)
	}
	e.seq.Store(top)
	metrics.RestingOrders.Set(float64(len(orders)))

	e.logger.Info("order books restored",
		zap.Int("orders", len(orders)),
		zap.Int64("seq", top))
	return len(orders), nil
}

// BookDepth is the externally visible view of one book.
type BookDepth struct {
	PlayerID string            `json:"player_id"`
	Bids     []orderbook.Level `json:"bids"`
	Asks     []orderbook.Level `json:"asks"`
}

// Depth returns up to levels aggregated price levels per side.
// levels ≤ 0 means 10; at most 100 are returned.
func (e *Engine) Depth(playerID string, levels int) *BookDepth {
	if levels <= 0 {
		levels = defaultDepthLevels
	}
	if levels > maxDepthLevels {
		levels = maxDepthLevels
	}
	out := &BookDepth{PlayerID: playerID, Bids: []orderbook.Level{}, Asks: []orderbook.Level{}}
	if b := e.peekBook(playerID); b != nil {
		out.Bids = b.Depth(model.SideBuy, levels)
		out.Asks = b.Depth(model.SideSell, levels)
	}
	return out
}

// RecentTrades returns the player's newest trades first.
func (e *Engine) RecentTrades(ctx context.Context, playerID string, limit int) ([]model.Trade, error) {
	if limit <= 0 {
		limit = defaultTradeLimit
	}
	if limit > maxTradeLimit {
		limit = maxTradeLimit
	}
	trades, err := e.store.ListTradesByPlayer(ctx, playerID, limit)
	if err != nil {
		return nil, err
	}
	if trades == nil {
		trades = []model.Trade{}
	}
	return trades, nil
}

// GetOrder returns the persisted order.
func (e *Engine) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	return e.store.GetOrder(ctx, orderID)
}

// activePlayer resolves a tradable player.
func (e *Engine) activePlayer(ctx context.Context, playerID string) (*model.Player, error) {
	p, err := e.catalog.GetPlayer(ctx, playerID)
	if errors.Is(err, catalog.ErrUnknownPlayer) {
		return nil, fmt.Errorf("%w: unknown player %s", ErrInvalidOrder, playerID)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup player %s: %w", playerID, err)
	}
	if !p.IsActive {
		return nil, fmt.Errorf("%w: player %s is not tradable", ErrInvalidOrder, playerID)
	}
	return p, nil
}

func newID() string { return uuid.NewString() }
