package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fanshares/exchange-core/internal/event"
	"github.com/fanshares/exchange-core/internal/ledger"
	"github.com/fanshares/exchange-core/internal/limits"
	"github.com/fanshares/exchange-core/internal/metrics"
	"github.com/fanshares/exchange-core/internal/model"
	"github.com/fanshares/exchange-core/internal/orderbook"
	"github.com/fanshares/exchange-core/internal/store"
)

// PlaceOrderRequest is an incoming order.
type PlaceOrderRequest struct {
	UserID     string          `json:"user_id"`
	PlayerID   string          `json:"player_id"`
	Side       model.Side      `json:"side"`
	Type       model.OrderType `json:"type"`
	Quantity   int64           `json:"quantity"`
	LimitPrice decimal.Decimal `json:"limit_price"` // required for limit, zero for market
}

// Fill is one realized match of the incoming order.
type Fill struct {
	TradeID      string          `json:"trade_id"`
	MakerOrderID string          `json:"maker_order_id"`
	Price        decimal.Decimal `json:"price"`
	Quantity     int64           `json:"quantity"`
}

// PlaceOrderResult reports what happened to an order.
type PlaceOrderResult struct {
	Order             model.Order     `json:"order"`
	Fills             []Fill          `json:"fills"`
	FilledQuantity    int64           `json:"filled_quantity"`
	CancelledQuantity int64           `json:"cancelled_quantity"` // remainder that did not rest
	AvgFillPrice      decimal.Decimal `json:"avg_fill_price"`
}

func (r PlaceOrderRequest) validate() error {
	switch {
	case r.UserID == "":
		return fmt.Errorf("%w: user_id is required", ErrInvalidOrder)
	case r.PlayerID == "":
		return fmt.Errorf("%w: player_id is required", ErrInvalidOrder)
	case !r.Side.Valid():
		return fmt.Errorf("%w: side %q", ErrInvalidOrder, r.Side)
	case !r.Type.Valid():
		return fmt.Errorf("%w: type %q", ErrInvalidOrder, r.Type)
	case r.Quantity <= 0:
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidOrder)
	case r.Type == model.OrderLimit && !r.LimitPrice.IsPositive():
		return fmt.Errorf("%w: limit price must be positive", ErrInvalidOrder)
	case r.Type == model.OrderMarket && !r.LimitPrice.IsZero():
		return fmt.Errorf("%w: market orders take no limit price", ErrInvalidOrder)
	}
	return nil
}

// PlaceOrder validates, reserves, matches and persists one order.
//
// Reservation failure returns ledger.ErrInsufficientBalance or
// ledger.ErrInsufficientShares with nothing written. A market order's
// unfilled remainder is cancelled and reported, never rested. An order
// never trades with its own user's resting orders: matching stops there
// and the remainder is cancelled.
func (e *Engine) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	start := time.Now()
	res, err := e.placeOrder(ctx, req)
	if err != nil {
		metrics.OrderRejections.WithLabelValues(rejectReason(err)).Inc()
		e.logger.Info("order rejected",
			zap.String("user_id", req.UserID),
			zap.String("player_id", req.PlayerID),
			zap.String("side", string(req.Side)),
			zap.String("type", string(req.Type)),
			zap.Int64("quantity", req.Quantity),
			zap.Error(err))
		return nil, err
	}
	metrics.OrdersTotal.WithLabelValues(string(req.Side), string(req.Type)).Inc()
	metrics.MatchLatency.WithLabelValues(string(req.Type)).Observe(time.Since(start).Seconds())
	return res, nil
}

func (e *Engine) placeOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	player, err := e.activePlayer(ctx, req.PlayerID)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.Lock(req.PlayerID)
	defer unlock()

	book := e.book(req.PlayerID)
	plan := planWalk(book, req.UserID, req.Side, req.Type, req.LimitPrice, req.Quantity)

	if req.Side == model.SideBuy && e.limiter.Enabled() {
		delta := req.Quantity
		if req.Type == model.OrderMarket {
			delta = plan.filled
		}
		if err := e.checkLimits(ctx, req.UserID, player, delta); err != nil {
			metrics.PositionLimitRejections.Inc()
			return nil, err
		}
	}

	now := e.now()
	order := model.Order{
		ID:         newID(),
		UserID:     req.UserID,
		PlayerID:   req.PlayerID,
		Side:       req.Side,
		Type:       req.Type,
		Quantity:   req.Quantity,
		LimitPrice: req.LimitPrice,
		Status:     model.StatusOpen,
		Seq:        e.seq.Add(1),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	var (
		trades      []model.Trade
		filledMaker []model.Order
		cancelled   int64
	)
	err = e.store.InTx(ctx, func(tx store.Tx) error {
		if err := e.ledger.LockAccounts(ctx, tx, plan.userIDs(order.UserID)...); err != nil {
			return err
		}
		if err := e.reserve(ctx, tx, order, plan); err != nil {
			return err
		}
		if err := tx.InsertOrder(ctx, &order); err != nil {
			return err
		}

		for _, f := range plan.fills {
			trade, maker, err := e.applyFill(ctx, tx, &order, f, now)
			if err != nil {
				return err
			}
			trades = append(trades, trade)
			if maker.Status == model.StatusFilled {
				filledMaker = append(filledMaker, maker)
			}
		}

		order.FilledQuantity = plan.filled
		if order.Remaining() > 0 && (order.Type == model.OrderMarket || plan.selfMatch) {
			cancelled = order.Remaining()
			if err := e.releaseRemainder(ctx, tx, order, cancelled); err != nil {
				return err
			}
		}
		order.Status = model.DeriveStatus(order.FilledQuantity, order.Quantity, cancelled > 0)
		order.UpdatedAt = now
		if err := tx.UpdateOrder(ctx, &order); err != nil {
			return err
		}

		if len(trades) > 0 {
			last := trades[len(trades)-1].Price
			if err := tx.UpdatePlayerPrices(ctx, order.PlayerID, last); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("place order: %w", err)
	}

	// Durable; now mirror it in the book.
	e.applyToBook(book, order, plan)

	result := &PlaceOrderResult{
		Order:             order,
		Fills:             make([]Fill, 0, len(trades)),
		FilledQuantity:    order.FilledQuantity,
		CancelledQuantity: cancelled,
		AvgFillPrice:      plan.avgPrice(),
	}
	for i, t := range trades {
		result.Fills = append(result.Fills, Fill{
			TradeID:      t.ID,
			MakerOrderID: plan.fills[i].maker.OrderID,
			Price:        t.Price,
			Quantity:     t.Quantity,
		})
	}

	e.publishPlacement(order, trades, filledMaker, cancelled, now)

	e.logger.Info("order placed",
		zap.String("order_id", order.ID),
		zap.String("user_id", order.UserID),
		zap.String("player_id", order.PlayerID),
		zap.String("side", string(order.Side)),
		zap.String("type", string(order.Type)),
		zap.Int64("quantity", order.Quantity),
		zap.Int64("filled", order.FilledQuantity),
		zap.Int64("cancelled", cancelled),
		zap.String("status", string(order.Status)))
	return result, nil
}

// reserve earmarks what the order may spend: the limit notional for limit
// buys, the exact planned cost for market buys, the full quantity of
// shares for sells.
func (e *Engine) reserve(ctx context.Context, tx store.Tx, o model.Order, plan walkPlan) error {
	if o.Side == model.SideSell {
		return e.ledger.LockShares(ctx, tx, o.UserID, o.PlayerID, o.Quantity)
	}
	amount := plan.cost
	if o.Type == model.OrderLimit {
		amount = o.LimitPrice.Mul(decimal.NewFromInt(o.Quantity))
	}
	return e.ledger.ReserveCash(ctx, tx, o.UserID, amount)
}

// releaseRemainder frees what reserve held for qty unfilled units. Market
// buys reserved the exact walk cost, so nothing is left to release.
func (e *Engine) releaseRemainder(ctx context.Context, tx store.Tx, o model.Order, qty int64) error {
	switch {
	case o.Side == model.SideSell:
		return e.ledger.UnlockShares(ctx, tx, o.UserID, o.PlayerID, qty)
	case o.Type == model.OrderLimit:
		return e.ledger.ReleaseCash(ctx, tx, o.UserID, o.LimitPrice.Mul(decimal.NewFromInt(qty)))
	}
	return nil
}

// applyFill settles one planned fill inside the transaction and returns
// the trade and the maker order's new state.
func (e *Engine) applyFill(ctx context.Context, tx store.Tx, taker *model.Order, f plannedFill, now time.Time) (model.Trade, model.Order, error) {
	maker, err := tx.GetOrder(ctx, f.maker.OrderID)
	if err != nil {
		return model.Trade{}, model.Order{}, fmt.Errorf("load maker %s: %w", f.maker.OrderID, err)
	}
	if maker.Status.Terminal() || maker.Remaining() < f.quantity {
		// The book and the store disagree; refuse rather than overfill.
		return model.Trade{}, model.Order{}, fmt.Errorf("maker %s has %d remaining (%s), planned %d",
			maker.ID, maker.Remaining(), maker.Status, f.quantity)
	}

	trade := model.Trade{
		ID:            newID(),
		PlayerID:      taker.PlayerID,
		Price:         f.price(),
		Quantity:      f.quantity,
		AggressorSide: taker.Side,
		ExecutedAt:    now,
	}
	fill := ledger.Fill{
		TradeID:  trade.ID,
		PlayerID: taker.PlayerID,
		Price:    trade.Price,
		Quantity: trade.Quantity,
	}
	if taker.Side == model.SideBuy {
		trade.BuyOrderID, trade.BuyerID = taker.ID, taker.UserID
		trade.SellOrderID, trade.SellerID = maker.ID, maker.UserID
		fill.BuyerReservedPrice = trade.Price // market buys reserve the exact walk
		if taker.Type == model.OrderLimit {
			fill.BuyerReservedPrice = taker.LimitPrice
		}
	} else {
		trade.BuyOrderID, trade.BuyerID = maker.ID, maker.UserID
		trade.SellOrderID, trade.SellerID = taker.ID, taker.UserID
		fill.BuyerReservedPrice = maker.LimitPrice
	}
	fill.BuyerID, fill.SellerID = trade.BuyerID, trade.SellerID

	if err := e.ledger.ApplyFill(ctx, tx, fill); err != nil {
		return model.Trade{}, model.Order{}, err
	}

	maker.FilledQuantity += f.quantity
	maker.Status = model.DeriveStatus(maker.FilledQuantity, maker.Quantity, false)
	maker.UpdatedAt = now
	if err := tx.UpdateOrder(ctx, maker); err != nil {
		return model.Trade{}, model.Order{}, err
	}
	if err := tx.InsertTrade(ctx, &trade); err != nil {
		return model.Trade{}, model.Order{}, err
	}
	return trade, *maker, nil
}

// applyToBook mirrors a committed placement in the in-memory book.
func (e *Engine) applyToBook(book *orderbook.Book, order model.Order, plan walkPlan) {
	removed := 0
	for _, f := range plan.fills {
		gone, err := book.Fill(f.maker.OrderID, f.quantity)
		if err != nil {
			e.logger.Error("book out of sync after commit",
				zap.String("player_id", order.PlayerID),
				zap.String("maker_order_id", f.maker.OrderID),
				zap.Error(err))
			continue
		}
		if gone {
			removed++
		}
	}
	metrics.RestingOrders.Sub(float64(removed))

	if order.Type != model.OrderLimit || order.Status.Terminal() {
		return
	}
	err := book.Insert(orderbook.Entry{
		OrderID:   order.ID,
		UserID:    order.UserID,
		Side:      order.Side,
		Price:     order.LimitPrice,
		Remaining: order.Remaining(),
		Seq:       order.Seq,
	})
	if err != nil {
		e.logger.Error("rest order failed after commit",
			zap.String("order_id", order.ID),
			zap.Error(err))
		return
	}
	metrics.RestingOrders.Inc()
}

func (e *Engine) publishPlacement(order model.Order, trades []model.Trade, filledMakers []model.Order, cancelled int64, at time.Time) {
	e.events.Publish(event.OrderPlaced{Order: order, At: at})
	for _, t := range trades {
		e.events.Publish(event.TradeExecuted{Trade: t})
		metrics.TradesTotal.WithLabelValues(string(t.AggressorSide)).Inc()
		metrics.PlayerVolume.WithLabelValues(t.PlayerID).Add(float64(t.Quantity))
	}
	for _, m := range filledMakers {
		e.events.Publish(event.OrderFilled{OrderID: m.ID, UserID: m.UserID, PlayerID: m.PlayerID, Quantity: m.Quantity, At: at})
	}
	if order.Status == model.StatusFilled {
		e.events.Publish(event.OrderFilled{OrderID: order.ID, UserID: order.UserID, PlayerID: order.PlayerID, Quantity: order.Quantity, At: at})
	}
	if cancelled > 0 {
		e.events.Publish(event.OrderCancelled{OrderID: order.ID, UserID: order.UserID, PlayerID: order.PlayerID, CancelledQuantity: cancelled, At: at})
	}
}

// checkLimits applies the position limiter to a prospective buy of delta
// shares. Team membership comes from the catalog.
func (e *Engine) checkLimits(ctx context.Context, userID string, player *model.Player, delta int64) error {
	holdings, err := e.store.ListHoldings(ctx, userID)
	if err != nil {
		return fmt.Errorf("load holdings: %w", err)
	}
	existing := make([]limits.Exposure, 0, len(holdings))
	for _, h := range holdings {
		if h.AssetType != model.AssetPlayer || h.Quantity == 0 {
			continue
		}
		team := ""
		if h.AssetID == player.ID {
			team = player.TeamID
		} else if p, err := e.catalog.GetPlayer(ctx, h.AssetID); err == nil {
			team = p.TeamID
		}
		existing = append(existing, limits.Exposure{PlayerID: h.AssetID, TeamID: team, Shares: h.Quantity})
	}
	return e.limiter.CheckLimit(limits.Exposure{PlayerID: player.ID, TeamID: player.TeamID}, delta, existing)
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidOrder):
		return "invalid"
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ledger.ErrInsufficientShares):
		return "insufficient_shares"
	case errors.Is(err, limits.ErrPerPlayerLimitExceeded), errors.Is(err, limits.ErrTeamLimitExceeded):
		return "position_limit"
	default:
		return "internal"
	}
}
