// Package model defines the core domain types shared across the exchange core.
// All monetary values use shopspring/decimal, never float64.
// Share quantities are whole shares (int64).
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether s is a known side.
func (s Side) Valid() bool { return s == SideBuy || s == SideSell }

// Opposite returns the side an order of side s matches against.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType distinguishes resting limit orders from immediate market orders.
type OrderType string

const (
	OrderLimit  OrderType = "limit"
	OrderMarket OrderType = "market"
)

// Valid reports whether t is a known order type.
func (t OrderType) Valid() bool { return t == OrderLimit || t == OrderMarket }

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	StatusOpen            OrderStatus = "open"
	StatusPartiallyFilled OrderStatus = "partially_filled"
	StatusFilled          OrderStatus = "filled"
	StatusCancelled       OrderStatus = "cancelled"
)

// Terminal reports whether no further fills or cancellation can apply.
func (s OrderStatus) Terminal() bool { return s == StatusFilled || s == StatusCancelled }

// DeriveStatus is the only way an order's status is computed: it is a
// function of fill progress plus explicit cancellation.
func DeriveStatus(filled, quantity int64, cancelled bool) OrderStatus {
	switch {
	case filled >= quantity:
		return StatusFilled
	case cancelled:
		return StatusCancelled
	case filled > 0:
		return StatusPartiallyFilled
	default:
		return StatusOpen
	}
}

// Order is one trading intent, resting or fully processed.
type Order struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	PlayerID       string          `json:"player_id"`
	Side           Side            `json:"side"`
	Type           OrderType       `json:"type"`
	Quantity       int64           `json:"quantity"`
	LimitPrice     decimal.Decimal `json:"limit_price"` // zero for market orders
	FilledQuantity int64           `json:"filled_quantity"`
	Status         OrderStatus     `json:"status"`
	Seq            int64           `json:"seq"` // time priority within a price level
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Remaining is the unfilled quantity.
func (o *Order) Remaining() int64 { return o.Quantity - o.FilledQuantity }

// Trade is an immutable record of one match. Price is always the resting
// (maker) order's price.
type Trade struct {
	ID            string          `json:"id"`
	PlayerID      string          `json:"player_id"`
	BuyOrderID    string          `json:"buy_order_id"`
	SellOrderID   string          `json:"sell_order_id"`
	BuyerID       string          `json:"buyer_id"`
	SellerID      string          `json:"seller_id"`
	Price         decimal.Decimal `json:"price"`
	Quantity      int64           `json:"quantity"`
	AggressorSide Side            `json:"aggressor_side"`
	ExecutedAt    time.Time       `json:"executed_at"`
}

// Notional is price × quantity.
func (t *Trade) Notional() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(t.Quantity))
}

// Player is a tradable instrument from the reference catalog.
type Player struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	TeamID         string          `json:"team_id"`
	CurrentPrice   decimal.Decimal `json:"current_price"`
	LastTradePrice decimal.Decimal `json:"last_trade_price"`
	IsActive       bool            `json:"is_active"`
}

// Game is one scheduled sporting event.
type Game struct {
	ID       string    `json:"id"`
	GameDate time.Time `json:"game_date"` // midnight UTC of the game's date
	Status   string    `json:"status"`
}

// PlayerGameStat is the already-normalized fantasy score of a player in a game.
type PlayerGameStat struct {
	PlayerID      string          `json:"player_id"`
	GameID        string          `json:"game_id"`
	FantasyPoints decimal.Decimal `json:"fantasy_points"`
}

// DateOnly truncates t to midnight UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
