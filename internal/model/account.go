package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssetType classifies a holding.
type AssetType string

const (
	AssetPlayer  AssetType = "player"
	AssetPremium AssetType = "premium" // non-tradable
)

// Account is a user's cash position. ReservedCash backs resting and
// in-flight buy orders.
type Account struct {
	UserID       string          `json:"user_id"`
	CashBalance  decimal.Decimal `json:"cash_balance"`
	ReservedCash decimal.Decimal `json:"reserved_cash"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Available is cash not committed to open orders.
func (a *Account) Available() decimal.Decimal {
	return a.CashBalance.Sub(a.ReservedCash)
}

// Holding is a user's position in one asset.
type Holding struct {
	UserID         string          `json:"user_id"`
	AssetID        string          `json:"asset_id"`
	AssetType      AssetType       `json:"asset_type"`
	Quantity       int64           `json:"quantity"`
	LockedQuantity int64           `json:"locked_quantity"` // backs open sells
	AvgCostBasis   decimal.Decimal `json:"avg_cost_basis"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Available is the quantity not locked by open sell orders.
func (h *Holding) Available() int64 { return h.Quantity - h.LockedQuantity }

// JournalKind says which balance a journal row moved.
type JournalKind string

const (
	JournalCash   JournalKind = "cash"
	JournalShares JournalKind = "shares"
)

// Journal reasons.
const (
	ReasonTradeBuy  = "trade_buy"
	ReasonTradeSell = "trade_sell"
	ReasonPayout    = "payout"
	ReasonVesting   = "vesting"
	ReasonDeposit   = "deposit"
)

// JournalEntry is an immutable record of one balance movement.
// Once created, these are never modified or deleted.
type JournalEntry struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	AssetID   string          `json:"asset_id,omitempty"` // empty for cash
	Kind      JournalKind     `json:"kind"`
	Reason    string          `json:"reason"`
	Delta     decimal.Decimal `json:"delta"` // signed
	RefID     string          `json:"ref_id"`
	CreatedAt time.Time       `json:"created_at"`
}

// Portfolio is a read model of a user's cash and holdings.
type Portfolio struct {
	Account  Account   `json:"account"`
	Holdings []Holding `json:"holdings"`
}
