// Package event defines the change events emitted by the exchange core.
//
// Event is a closed set: every payload is a concrete struct in this package
// and consumers type-switch over them instead of probing loose maps.
package event

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fanshares/exchange-core/internal/model"
)

// Kind names an event type on the wire.
type Kind string

const (
	KindOrderPlaced    Kind = "order_placed"
	KindOrderFilled    Kind = "order_filled"
	KindOrderCancelled Kind = "order_cancelled"
	KindTradeExecuted  Kind = "trade_executed"
	KindVestingClaimed Kind = "vesting_claimed"
	KindContestSettled Kind = "contest_settled"
)

// Event is implemented only by the payload types below.
type Event interface {
	Kind() Kind
	OccurredAt() time.Time
	sealed()
}

// OrderPlaced is emitted once per accepted order.
type OrderPlaced struct {
	Order model.Order `json:"order"`
	At    time.Time   `json:"at"`
}

// OrderFilled is emitted when an order's filled quantity reaches its quantity.
type OrderFilled struct {
	OrderID  string    `json:"order_id"`
	UserID   string    `json:"user_id"`
	PlayerID string    `json:"player_id"`
	Quantity int64     `json:"quantity"`
	At       time.Time `json:"at"`
}

// OrderCancelled covers user cancellation and the cancelled remainder of a
// market order.
type OrderCancelled struct {
	OrderID           string    `json:"order_id"`
	UserID            string    `json:"user_id"`
	PlayerID          string    `json:"player_id"`
	CancelledQuantity int64     `json:"cancelled_quantity"`
	At                time.Time `json:"at"`
}

// TradeExecuted carries one immutable trade.
type TradeExecuted struct {
	Trade model.Trade `json:"trade"`
}

// VestingClaimed is emitted after a claim commits.
type VestingClaimed struct {
	Claim model.VestingClaim `json:"claim"`
}

// ContestSettled is emitted after payouts are durably written.
type ContestSettled struct {
	ContestID    string          `json:"contest_id"`
	EntriesPaid  int             `json:"entries_paid"`
	TotalPaidOut decimal.Decimal `json:"total_paid_out"`
	At           time.Time       `json:"at"`
}

func (OrderPlaced) Kind() Kind    { return KindOrderPlaced }
func (OrderFilled) Kind() Kind    { return KindOrderFilled }
func (OrderCancelled) Kind() Kind { return KindOrderCancelled }
func (TradeExecuted) Kind() Kind  { return KindTradeExecuted }
func (VestingClaimed) Kind() Kind { return KindVestingClaimed }
func (ContestSettled) Kind() Kind { return KindContestSettled }

func (e OrderPlaced) OccurredAt() time.Time    { return e.At }
func (e OrderFilled) OccurredAt() time.Time    { return e.At }
func (e OrderCancelled) OccurredAt() time.Time { return e.At }
func (e TradeExecuted) OccurredAt() time.Time  { return e.Trade.ExecutedAt }
func (e VestingClaimed) OccurredAt() time.Time { return e.Claim.ClaimedAt }
func (e ContestSettled) OccurredAt() time.Time { return e.At }

func (OrderPlaced) sealed()    {}
func (OrderFilled) sealed()    {}
func (OrderCancelled) sealed() {}
func (TradeExecuted) sealed()  {}
func (VestingClaimed) sealed() {}
func (ContestSettled) sealed() {}

// Publisher receives events after the unit of work that produced them has
// committed. Implementations must not block the caller.
type Publisher interface {
	Publish(Event)
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(Event) {}

// Multi fans an event out to several publishers.
type Multi []Publisher

func (m Multi) Publish(e Event) {
	for _, p := range m {
		p.Publish(e)
	}
}

// Recorder keeps events in memory. Used by tests. Publish may be called
// concurrently; read Events once publishers are done.
type Recorder struct {
	mu     sync.Mutex
	Events []Event
}

func (r *Recorder) Publish(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, e)
}

// OfKind returns the recorded events of kind k.
func (r *Recorder) OfKind(k Kind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.Events {
		if e.Kind() == k {
			out = append(out, e)
		}
	}
	return out
}
