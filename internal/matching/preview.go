package matching

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fanshares/exchange-core/internal/model"
	"github.com/fanshares/exchange-core/internal/orderbook"
)

// pricePlaces is the precision of reported average prices and slippage.
const pricePlaces = 4

var hundred = decimal.NewFromInt(100)

// plannedFill is one step of a walk against a resting order.
type plannedFill struct {
	maker    orderbook.Entry
	quantity int64
}

func (f plannedFill) price() decimal.Decimal { return f.maker.Price }

// walkPlan is the matching walk. Both placement and preview use it, so a
// preview forecasts exactly what placement would do against the same book.
// It does not mutate the book.
type walkPlan struct {
	fills  []plannedFill
	filled int64
	cost   decimal.Decimal // Σ quantity × maker price
	// selfMatch is set when the walk stopped at a resting order of the
	// taker's own user. The taker's remainder is then cancelled, not rested.
	selfMatch bool
}

// planWalk walks the side opposite to side in priority order until qty is
// satisfied, the book is exhausted, (for limit orders) prices stop
// crossing, or it reaches a resting order owned by userID. An empty userID
// disables the self-match stop.
func planWalk(b *orderbook.Book, userID string, side model.Side, typ model.OrderType, limit decimal.Decimal, qty int64) walkPlan {
	p := walkPlan{cost: decimal.Zero}
	if b == nil || qty <= 0 {
		return p
	}
	remaining := qty
	b.Walk(side.Opposite(), func(e orderbook.Entry) bool {
		if typ == model.OrderLimit && !crosses(side, limit, e.Price) {
			return false
		}
		if userID != "" && e.UserID == userID {
			p.selfMatch = true
			return false
		}
		q := min(remaining, e.Remaining)
		p.fills = append(p.fills, plannedFill{maker: e, quantity: q})
		p.filled += q
		p.cost = p.cost.Add(e.Price.Mul(decimal.NewFromInt(q)))
		remaining -= q
		return remaining > 0
	})
	return p
}

// crosses reports whether an incoming limit at limit can trade with a
// resting order at resting.
func crosses(side model.Side, limit, resting decimal.Decimal) bool {
	if side == model.SideBuy {
		return limit.GreaterThanOrEqual(resting)
	}
	return limit.LessThanOrEqual(resting)
}

// userIDs lists the taker and every maker the walk trades with.
func (p walkPlan) userIDs(taker string) []string {
	ids := make([]string, 0, len(p.fills)+1)
	ids = append(ids, taker)
	for _, f := range p.fills {
		ids = append(ids, f.maker.UserID)
	}
	return ids
}

func (p walkPlan) avgPrice() decimal.Decimal {
	if p.filled == 0 {
		return decimal.Zero
	}
	return p.cost.Div(decimal.NewFromInt(p.filled)).RoundBank(pricePlaces)
}

// PreviewFill is the quantity a market order would take at one price level.
type PreviewFill struct {
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity"`
}

// Preview forecasts a market order against the current book.
type Preview struct {
	PlayerID          string          `json:"player_id"`
	Side              model.Side      `json:"side"`
	RequestedQuantity int64           `json:"requested_quantity"`
	FillableQuantity  int64           `json:"fillable_quantity"`
	Fills             []PreviewFill   `json:"fills"`
	AvgPrice          decimal.Decimal `json:"avg_price"`
	BestPrice         decimal.Decimal `json:"best_price"`
	WorstPrice        decimal.Decimal `json:"worst_price"`
	SlippagePct       decimal.Decimal `json:"slippage_pct"`
	EstimatedCost     decimal.Decimal `json:"estimated_cost"`
	FullyFillable     bool            `json:"fully_fillable"`
}

// PreviewMarketOrder simulates a market order without locking the
// instrument. The book may change before the order is placed, so the
// result is a forecast, not a quote.
func (e *Engine) PreviewMarketOrder(ctx context.Context, playerID string, side model.Side, qty int64) (*Preview, error) {
	if !side.Valid() {
		return nil, fmt.Errorf("%w: side %q", ErrInvalidOrder, side)
	}
	if qty <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidOrder)
	}
	if _, err := e.activePlayer(ctx, playerID); err != nil {
		return nil, err
	}

	p := planWalk(e.peekBook(playerID), "", side, model.OrderMarket, decimal.Zero, qty)
	return buildPreview(playerID, side, qty, p), nil
}

func buildPreview(playerID string, side model.Side, qty int64, p walkPlan) *Preview {
	out := &Preview{
		PlayerID:          playerID,
		Side:              side,
		RequestedQuantity: qty,
		FillableQuantity:  p.filled,
		Fills:             []PreviewFill{},
		AvgPrice:          decimal.Zero,
		BestPrice:         decimal.Zero,
		WorstPrice:        decimal.Zero,
		SlippagePct:       decimal.Zero,
		EstimatedCost:     p.cost,
		FullyFillable:     p.filled == qty,
	}
	if len(p.fills) == 0 {
		return out
	}

	// Aggregate per price level; the walk visits levels contiguously.
	for _, f := range p.fills {
		n := len(out.Fills)
		if n > 0 && out.Fills[n-1].Price.Equal(f.price()) {
			out.Fills[n-1].Quantity += f.quantity
			continue
		}
		out.Fills = append(out.Fills, PreviewFill{Price: f.price(), Quantity: f.quantity})
	}

	out.BestPrice = p.fills[0].price()
	out.WorstPrice = p.fills[len(p.fills)-1].price()
	out.AvgPrice = p.avgPrice()
	rawAvg := p.cost.Div(decimal.NewFromInt(p.filled))
	out.SlippagePct = rawAvg.Sub(out.BestPrice).
		Div(out.BestPrice).
		Mul(hundred).
		Abs().
		RoundBank(pricePlaces)
	return out
}
