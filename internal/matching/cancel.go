package matching

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fanshares/exchange-core/internal/event"
	"github.com/fanshares/exchange-core/internal/metrics"
	"github.com/fanshares/exchange-core/internal/model"
	"github.com/fanshares/exchange-core/internal/store"
)

// CancelResult reports the outcome of a cancellation. A cancel that finds
// the order already filled or cancelled succeeds with zero quantity.
type CancelResult struct {
	OrderID           string            `json:"order_id"`
	Status            model.OrderStatus `json:"status"`
	CancelledQuantity int64             `json:"cancelled_quantity"`
}

// CancelOrder cancels the unfilled remainder of the user's order.
// Unknown orders and orders owned by someone else return store.ErrNotFound.
func (e *Engine) CancelOrder(ctx context.Context, orderID, userID string) (*CancelResult, error) {
	o, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, fmt.Errorf("order %s: %w", orderID, store.ErrNotFound)
	}

	unlock := e.locks.Lock(o.PlayerID)
	defer unlock()

	var (
		cur       model.Order
		cancelled int64
	)
	now := e.now()
	err = e.store.InTx(ctx, func(tx store.Tx) error {
		fresh, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		cur = *fresh
		if cur.Status.Terminal() {
			return nil
		}

		cancelled = cur.Remaining()
		if cur.Side == model.SideBuy {
			release := cur.LimitPrice.Mul(decimal.NewFromInt(cancelled))
			if err := e.ledger.ReleaseCash(ctx, tx, cur.UserID, release); err != nil {
				return err
			}
		} else if err := e.ledger.UnlockShares(ctx, tx, cur.UserID, cur.PlayerID, cancelled); err != nil {
			return err
		}

		cur.Status = model.DeriveStatus(cur.FilledQuantity, cur.Quantity, true)
		cur.UpdatedAt = now
		return tx.UpdateOrder(ctx, &cur)
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("cancel order %s: %w", orderID, err)
	}

	res := &CancelResult{OrderID: orderID, Status: cur.Status, CancelledQuantity: cancelled}
	if cancelled == 0 {
		e.logger.Debug("cancel was a no-op",
			zap.String("order_id", orderID),
			zap.String("status", string(cur.Status)))
		return res, nil
	}

	if b := e.peekBook(cur.PlayerID); b != nil && b.Remove(orderID) {
		metrics.RestingOrders.Dec()
	}
	e.events.Publish(event.OrderCancelled{
		OrderID:           orderID,
		UserID:            cur.UserID,
		PlayerID:          cur.PlayerID,
		CancelledQuantity: cancelled,
		At:                now,
	})
	e.logger.Info("order cancelled",
		zap.String("order_id", orderID),
		zap.String("user_id", cur.UserID),
		zap.Int64("cancelled", cancelled))
	return res, nil
}
