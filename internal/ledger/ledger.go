// Package ledger is the only code that moves cash or share ownership.
//
// Every operation runs against a store.Tx supplied by the caller, so the
// caller decides the transaction boundary: a fill's buyer debit, seller
// credit and both holding updates commit together. Each movement also
// appends an immutable journal row.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fanshares/exchange-core/internal/model"
	"github.com/fanshares/exchange-core/internal/store"
)

var (
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	ErrInsufficientShares  = errors.New("ledger: insufficient shares")
	ErrInvalidAmount       = errors.New("ledger: amount must be positive")
	// ErrReservation means a release or fill exceeded what was reserved.
	ErrReservation = errors.New("ledger: reservation mismatch")
	ErrSelfTrade   = errors.New("ledger: buyer and seller are the same user")
)

// costBasisPlaces matches the NUMERIC(20,8) column.
const costBasisPlaces = 8

// Ledger applies balance movements inside caller-owned transactions.
type Ledger struct {
	now   func() time.Time
	newID func() string
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates a Ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Fill describes one matched trade from the ledger's point of view.
type Fill struct {
	TradeID  string
	PlayerID string
	BuyerID  string
	SellerID string
	Price    decimal.Decimal
	Quantity int64
	// BuyerReservedPrice is the per-share amount the buyer reserved for
	// this quantity: the limit price for limit buys, the fill price for
	// market buys and for resting buyers hit at their own price.
	BuyerReservedPrice decimal.Decimal
}

// Notional is Price × Quantity.
func (f Fill) Notional() decimal.Decimal {
	return f.Price.Mul(decimal.NewFromInt(f.Quantity))
}

// --- Cash ---

// Deposit adds cash to a user's balance.
func (l *Ledger) Deposit(ctx context.Context, tx store.Tx, userID string, amount decimal.Decimal, refID string) error {
	return l.CreditCash(ctx, tx, userID, amount, model.ReasonDeposit, refID)
}

// CreditCash adds cash for the given reason (payouts, deposits).
func (l *Ledger) CreditCash(ctx context.Context, tx store.Tx, userID string, amount decimal.Decimal, reason, refID string) error {
	if !amount.IsPositive() {
		return fmt.Errorf("credit %s to %s: %w", amount, userID, ErrInvalidAmount)
	}
	acct, err := l.account(ctx, tx, userID)
	if err != nil {
		return err
	}
	acct.CashBalance = acct.CashBalance.Add(amount)
	if err := l.putAccount(ctx, tx, acct); err != nil {
		return err
	}
	return l.journal(ctx, tx, userID, "", model.JournalCash, reason, amount, refID)
}

// ReserveCash earmarks available cash for a buy order.
func (l *Ledger) ReserveCash(ctx context.Context, tx store.Tx, userID string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("reserve %s: %w", amount, ErrInvalidAmount)
	}
	if amount.IsZero() {
		return nil
	}
	acct, err := l.account(ctx, tx, userID)
	if err != nil {
		return err
	}
	if acct.Available().LessThan(amount) {
		return fmt.Errorf("%w: need %s, available %s", ErrInsufficientBalance, amount, acct.Available())
	}
	acct.ReservedCash = acct.ReservedCash.Add(amount)
	return l.putAccount(ctx, tx, acct)
}

// ReleaseCash returns reserved cash to the available balance.
func (l *Ledger) ReleaseCash(ctx context.Context, tx store.Tx, userID string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("release %s: %w", amount, ErrInvalidAmount)
	}
	if amount.IsZero() {
		return nil
	}
	acct, err := l.account(ctx, tx, userID)
	if err != nil {
		return err
	}
	if acct.ReservedCash.LessThan(amount) {
		return fmt.Errorf("%w: release %s of %s reserved for %s", ErrReservation, amount, acct.ReservedCash, userID)
	}
	acct.ReservedCash = acct.ReservedCash.Sub(amount)
	return l.putAccount(ctx, tx, acct)
}

// --- Shares ---

// LockShares reserves unlocked shares for a sell order.
func (l *Ledger) LockShares(ctx context.Context, tx store.Tx, userID, playerID string, qty int64) error {
	if qty <= 0 {
		return fmt.Errorf("lock %d shares: %w", qty, ErrInvalidAmount)
	}
	h, err := l.holding(ctx, tx, userID, playerID, model.AssetPlayer)
	if err != nil {
		return err
	}
	if h.Available() < qty {
		return fmt.Errorf("%w: need %d of %s, available %d", ErrInsufficientShares, qty, playerID, h.Available())
	}
	h.LockedQuantity += qty
	return l.putHolding(ctx, tx, h)
}

// UnlockShares releases locked shares back to available.
func (l *Ledger) UnlockShares(ctx context.Context, tx store.Tx, userID, playerID string, qty int64) error {
	if qty <= 0 {
		return nil
	}
	h, err := l.holding(ctx, tx, userID, playerID, model.AssetPlayer)
	if err != nil {
		return err
	}
	if h.LockedQuantity < qty {
		return fmt.Errorf("%w: unlock %d of %d locked %s", ErrReservation, qty, h.LockedQuantity, playerID)
	}
	h.LockedQuantity -= qty
	return l.putHolding(ctx, tx, h)
}

// CreditShares adds shares without a purchase (vesting claims). The cost
// basis of an existing position is unchanged; a new one starts at zero.
func (l *Ledger) CreditShares(ctx context.Context, tx store.Tx, userID, assetID string, assetType model.AssetType, qty int64, reason, refID string) error {
	if qty <= 0 {
		return fmt.Errorf("credit %d shares: %w", qty, ErrInvalidAmount)
	}
	h, err := l.holding(ctx, tx, userID, assetID, assetType)
	if err != nil {
		return err
	}
	h.Quantity += qty
	if err := l.putHolding(ctx, tx, h); err != nil {
		return err
	}
	return l.journal(ctx, tx, userID, assetID, model.JournalShares, reason, decimal.NewFromInt(qty), refID)
}

// --- Fills ---

// ApplyFill settles one trade: the seller's locked shares move to the
// buyer, the buyer's reserved cash pays the seller, and any reservation
// above the fill price is released. All four balance rows are written
// through tx.
func (l *Ledger) ApplyFill(ctx context.Context, tx store.Tx, f Fill) error {
	if f.Quantity <= 0 || !f.Price.IsPositive() {
		return fmt.Errorf("fill %s: %w", f.TradeID, ErrInvalidAmount)
	}
	if f.BuyerID == f.SellerID {
		return fmt.Errorf("fill %s by %s: %w", f.TradeID, f.BuyerID, ErrSelfTrade)
	}
	qty := decimal.NewFromInt(f.Quantity)
	notional := f.Notional()
	reserved := f.BuyerReservedPrice.Mul(qty)
	if reserved.LessThan(notional) {
		return fmt.Errorf("%w: fill %s costs %s, reserved %s", ErrReservation, f.TradeID, notional, reserved)
	}

	// Accounts first, in user-ID order, so fills between the same two users
	// on different players cannot lock them in opposite orders.
	accts, err := l.lockAccounts(ctx, tx, f.BuyerID, f.SellerID)
	if err != nil {
		return err
	}
	ba, sa := accts[f.BuyerID], accts[f.SellerID]

	// Seller shares out.
	sh, err := l.holding(ctx, tx, f.SellerID, f.PlayerID, model.AssetPlayer)
	if err != nil {
		return err
	}
	if sh.LockedQuantity < f.Quantity {
		return fmt.Errorf("%w: seller %s has %d locked, fill %d", ErrInsufficientShares, f.SellerID, sh.LockedQuantity, f.Quantity)
	}
	sh.Quantity -= f.Quantity
	sh.LockedQuantity -= f.Quantity
	if err := l.putHolding(ctx, tx, sh); err != nil {
		return err
	}

	// Buyer shares in, cost-weighted.
	bh, err := l.holding(ctx, tx, f.BuyerID, f.PlayerID, model.AssetPlayer)
	if err != nil {
		return err
	}
	oldQty := decimal.NewFromInt(bh.Quantity)
	newQty := oldQty.Add(qty)
	bh.AvgCostBasis = bh.AvgCostBasis.Mul(oldQty).Add(notional).
		Div(newQty).RoundBank(costBasisPlaces)
	bh.Quantity += f.Quantity
	if err := l.putHolding(ctx, tx, bh); err != nil {
		return err
	}

	// Buyer cash out of the reservation.
	if ba.ReservedCash.LessThan(reserved) || ba.CashBalance.LessThan(notional) {
		return fmt.Errorf("%w: buyer %s reserved %s, fill needs %s", ErrInsufficientBalance, f.BuyerID, ba.ReservedCash, reserved)
	}
	ba.CashBalance = ba.CashBalance.Sub(notional)
	ba.ReservedCash = ba.ReservedCash.Sub(reserved)
	if err := l.putAccount(ctx, tx, ba); err != nil {
		return err
	}

	// Seller cash in.
	sa.CashBalance = sa.CashBalance.Add(notional)
	if err := l.putAccount(ctx, tx, sa); err != nil {
		return err
	}

	entries := []struct {
		user, asset string
		kind        model.JournalKind
		reason      string
		delta       decimal.Decimal
	}{
		{f.BuyerID, "", model.JournalCash, model.ReasonTradeBuy, notional.Neg()},
		{f.BuyerID, f.PlayerID, model.JournalShares, model.ReasonTradeBuy, qty},
		{f.SellerID, "", model.JournalCash, model.ReasonTradeSell, notional},
		{f.SellerID, f.PlayerID, model.JournalShares, model.ReasonTradeSell, qty.Neg()},
	}
	for _, e := range entries {
		if err := l.journal(ctx, tx, e.user, e.asset, e.kind, e.reason, e.delta, f.TradeID); err != nil {
			return err
		}
	}
	return nil
}

// --- Reads ---

// Portfolio returns the user's cash and holdings. Users with no activity
// get a zero account rather than an error.
func Portfolio(ctx context.Context, r store.Reader, userID string) (*model.Portfolio, error) {
	acct, err := r.GetAccount(ctx, userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		acct = &model.Account{UserID: userID}
	case err != nil:
		return nil, err
	}
	holdings, err := r.ListHoldings(ctx, userID)
	if err != nil {
		return nil, err
	}
	if holdings == nil {
		holdings = []model.Holding{}
	}
	return &model.Portfolio{Account: *acct, Holdings: holdings}, nil
}

// --- Helpers ---

// LockAccounts locks the given accounts in user-ID order. A transaction
// that will touch several accounts calls it before any other ledger
// operation, so every transaction acquires account rows in one order.
func (l *Ledger) LockAccounts(ctx context.Context, tx store.Tx, userIDs ...string) error {
	_, err := l.lockAccounts(ctx, tx, userIDs...)
	return err
}

func (l *Ledger) lockAccounts(ctx context.Context, tx store.Tx, userIDs ...string) (map[string]*model.Account, error) {
	ids := slices.Clone(userIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)
	out := make(map[string]*model.Account, len(ids))
	for _, id := range ids {
		a, err := l.account(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		out[id] = a
	}
	return out, nil
}

func (l *Ledger) account(ctx context.Context, tx store.Tx, userID string) (*model.Account, error) {
	acct, err := tx.LockAccount(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", userID, err)
	}
	return acct, nil
}

func (l *Ledger) holding(ctx context.Context, tx store.Tx, userID, assetID string, assetType model.AssetType) (*model.Holding, error) {
	h, err := tx.LockHolding(ctx, userID, assetID, assetType)
	if err != nil {
		return nil, fmt.Errorf("load holding %s/%s: %w", userID, assetID, err)
	}
	return h, nil
}

func (l *Ledger) putAccount(ctx context.Context, tx store.Tx, a *model.Account) error {
	if a.CashBalance.IsNegative() || a.ReservedCash.IsNegative() || a.ReservedCash.GreaterThan(a.CashBalance) {
		return fmt.Errorf("%w: account %s balance %s reserved %s", ErrInsufficientBalance, a.UserID, a.CashBalance, a.ReservedCash)
	}
	a.UpdatedAt = l.now()
	return tx.PutAccount(ctx, a)
}

func (l *Ledger) putHolding(ctx context.Context, tx store.Tx, h *model.Holding) error {
	if h.Quantity < 0 || h.LockedQuantity < 0 || h.LockedQuantity > h.Quantity {
		return fmt.Errorf("%w: holding %s/%s quantity %d locked %d", ErrInsufficientShares, h.UserID, h.AssetID, h.Quantity, h.LockedQuantity)
	}
	h.UpdatedAt = l.now()
	return tx.PutHolding(ctx, h)
}

func (l *Ledger) journal(ctx context.Context, tx store.Tx, userID, assetID string, kind model.JournalKind, reason string, delta decimal.Decimal, refID string) error {
	return tx.InsertJournal(ctx, &model.JournalEntry{
		ID:        l.newID(),
		UserID:    userID,
		AssetID:   assetID,
		Kind:      kind,
		Reason:    reason,
		Delta:     delta,
		RefID:     refID,
		CreatedAt: l.now(),
	})
}
