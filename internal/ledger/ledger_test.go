package ledger_test

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fanshares/exchange-core/internal/ledger"
	"github.com/fanshares/exchange-core/internal/model"
	"github.com/fanshares/exchange-core/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func inTx(t *testing.T, ms *store.MemoryStore, fn func(tx store.Tx) error) error {
	t.Helper()
	return ms.InTx(context.Background(), fn)
}

func seedShares(t *testing.T, ms *store.MemoryStore, l *ledger.Ledger, user, player string, qty int64) {
	t.Helper()
	require.NoError(t, inTx(t, ms, func(tx store.Tx) error {
		return l.CreditShares(context.Background(), tx, user, player, model.AssetPlayer, qty, model.ReasonVesting, "seed")
	}))
}

func TestReserveCash_Insufficient(t *testing.T) {
	ms := store.NewMemoryStore()
	l := ledger.New()
	ctx := context.Background()

	require.NoError(t, inTx(t, ms, func(tx store.Tx) error { return l.Deposit(ctx, tx, "u1", d(100), "dep") }))

	err := inTx(t, ms, func(tx store.Tx) error { return l.ReserveCash(ctx, tx, "u1", d(100.01)) })
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	require.NoError(t, inTx(t, ms, func(tx store.Tx) error { return l.ReserveCash(ctx, tx, "u1", d(60)) }))
	err = inTx(t, ms, func(tx store.Tx) error { return l.ReserveCash(ctx, tx, "u1", d(41)) })
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	a, err := ms.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, a.ReservedCash.Equal(d(60)))
	assert.True(t, a.Available().Equal(d(40)))
}

func TestLockShares_Insufficient(t *testing.T) {
	ms := store.NewMemoryStore()
	l := ledger.New()
	ctx := context.Background()
	seedShares(t, ms, l, "u1", "p1", 10)

	require.NoError(t, inTx(t, ms, func(tx store.Tx) error { return l.LockShares(ctx, tx, "u1", "p1", 7) }))
	err := inTx(t, ms, func(tx store.Tx) error { return l.LockShares(ctx, tx, "u1", "p1", 4) })
	assert.ErrorIs(t, err, ledger.ErrInsufficientShares)

	err = inTx(t, ms, func(tx store.Tx) error { return l.LockShares(ctx, tx, "nobody", "p1", 1) })
	assert.ErrorIs(t, err, ledger.ErrInsufficientShares)

	require.NoError(t, inTx(t, ms, func(tx store.Tx) error { return l.UnlockShares(ctx, tx, "u1", "p1", 7) }))
	h, err := ms.GetHolding(ctx, "u1", "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), h.LockedQuantity)
	assert.Equal(t, int64(10), h.Quantity)
}

func TestApplyFill_MovesCashAndShares(t *testing.T) {
	ms := store.NewMemoryStore()
	l := ledger.New()
	ctx := context.Background()
	seedShares(t, ms, l, "seller", "p1", 10)

	require.NoError(t, inTx(t, ms, func(tx store.Tx) error {
		if err := l.Deposit(ctx, tx, "buyer", d(100), "dep"); err != nil {
			return err
		}
		// Limit buy 4 @ 10 reserves 40; fills at maker price 8.
		if err := l.ReserveCash(ctx, tx, "buyer", d(40)); err != nil {
			return err
		}
		if err := l.LockShares(ctx, tx, "seller", "p1", 4); err != nil {
			return err
		}
		return l.ApplyFill(ctx, tx, ledger.Fill{
			TradeID: "t1", PlayerID: "p1", BuyerID: "buyer", SellerID: "seller",
			Price: d(8), Quantity: 4, BuyerReservedPrice: d(10),
		})
	}))

	buyer, err := ms.GetAccount(ctx, "buyer")
	require.NoError(t, err)
	assert.True(t, buyer.CashBalance.Equal(d(68)), "got %s", buyer.CashBalance)
	assert.True(t, buyer.ReservedCash.IsZero(), "price improvement must be released")

	seller, err := ms.GetAccount(ctx, "seller")
	require.NoError(t, err)
	assert.True(t, seller.CashBalance.Equal(d(32)))

	bh, err := ms.GetHolding(ctx, "buyer", "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), bh.Quantity)
	assert.True(t, bh.AvgCostBasis.Equal(d(8)))

	sh, err := ms.GetHolding(ctx, "seller", "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(6), sh.Quantity)
	assert.Equal(t, int64(0), sh.LockedQuantity)

	journal, err := ms.ListJournal(ctx, "buyer")
	require.NoError(t, err)
	// deposit + cash out + shares in
	assert.Len(t, journal, 3)
}

func TestApplyFill_AvgCostWeighted(t *testing.T) {
	ms := store.NewMemoryStore()
	l := ledger.New()
	ctx := context.Background()
	seedShares(t, ms, l, "seller", "p1", 20)

	fill := func(price float64, qty int64) {
		require.NoError(t, inTx(t, ms, func(tx store.Tx) error {
			cost := d(price).Mul(decimal.NewFromInt(qty))
			if err := l.Deposit(ctx, tx, "buyer", cost, "dep"); err != nil {
				return err
			}
			if err := l.ReserveCash(ctx, tx, "buyer", cost); err != nil {
				return err
			}
			if err := l.LockShares(ctx, tx, "seller", "p1", qty); err != nil {
				return err
			}
			return l.ApplyFill(ctx, tx, ledger.Fill{
				TradeID: "t", PlayerID: "p1", BuyerID: "buyer", SellerID: "seller",
				Price: d(price), Quantity: qty, BuyerReservedPrice: d(price),
			})
		}))
	}
	fill(10, 2)
	fill(16, 1)

	h, err := ms.GetHolding(ctx, "buyer", "p1")
	require.NoError(t, err)
	assert.True(t, h.AvgCostBasis.Equal(d(12)), "got %s", h.AvgCostBasis)

	// Vesting credits leave cost basis alone.
	seedShares(t, ms, l, "buyer", "p1", 3)
	h, err = ms.GetHolding(ctx, "buyer", "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(6), h.Quantity)
	assert.True(t, h.AvgCostBasis.Equal(d(12)))
}

func TestApplyFill_UnlockedSellerRollsBack(t *testing.T) {
	ms := store.NewMemoryStore()
	l := ledger.New()
	ctx := context.Background()
	seedShares(t, ms, l, "seller", "p1", 5)

	err := inTx(t, ms, func(tx store.Tx) error {
		if err := l.Deposit(ctx, tx, "buyer", d(50), "dep"); err != nil {
			return err
		}
		if err := l.ReserveCash(ctx, tx, "buyer", d(50)); err != nil {
			return err
		}
		return l.ApplyFill(ctx, tx, ledger.Fill{
			TradeID: "t1", PlayerID: "p1", BuyerID: "buyer", SellerID: "seller",
			Price: d(10), Quantity: 5, BuyerReservedPrice: d(10),
		})
	})
	assert.ErrorIs(t, err, ledger.ErrInsufficientShares)

	_, err = ms.GetAccount(ctx, "buyer")
	assert.ErrorIs(t, err, store.ErrNotFound, "deposit must roll back with the failed fill")
	sh, err := ms.GetHolding(ctx, "seller", "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), sh.Quantity)
}

func TestCreditCash_RejectsNonPositive(t *testing.T) {
	ms := store.NewMemoryStore()
	l := ledger.New()
	ctx := context.Background()

	err := inTx(t, ms, func(tx store.Tx) error {
		return l.CreditCash(ctx, tx, "u1", decimal.Zero, model.ReasonPayout, "k1")
	})
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

func TestPortfolio_UnknownUserIsEmpty(t *testing.T) {
	ms := store.NewMemoryStore()

	p, err := ledger.Portfolio(context.Background(), ms, "ghost")
	require.NoError(t, err)
	assert.Equal(t, "ghost", p.Account.UserID)
	assert.True(t, p.Account.CashBalance.IsZero())
	assert.Empty(t, p.Holdings)
}

// lockRecorder notes the order in which rows are locked.
type lockRecorder struct {
	store.Tx
	mu    sync.Mutex
	locks []string
}

func (r *lockRecorder) LockAccount(ctx context.Context, userID string) (*model.Account, error) {
	r.mu.Lock()
	r.locks = append(r.locks, "account:"+userID)
	r.mu.Unlock()
	return r.Tx.LockAccount(ctx, userID)
}

func (r *lockRecorder) LockHolding(ctx context.Context, userID, assetID string, assetType model.AssetType) (*model.Holding, error) {
	r.mu.Lock()
	r.locks = append(r.locks, "holding:"+userID+"/"+assetID)
	r.mu.Unlock()
	return r.Tx.LockHolding(ctx, userID, assetID, assetType)
}

func TestApplyFill_LocksAccountsInUserOrder(t *testing.T) {
	ctx := context.Background()
	l := ledger.New()

	// Same two users, roles swapped: both fills must lock amy before zed.
	for _, tc := range []struct{ buyer, seller string }{{"zed", "amy"}, {"amy", "zed"}} {
		ms := store.NewMemoryStore()
		seedShares(t, ms, l, tc.seller, "p1", 5)
		require.NoError(t, inTx(t, ms, func(tx store.Tx) error {
			if err := l.Deposit(ctx, tx, tc.buyer, d(50), "dep"); err != nil {
				return err
			}
			if err := l.ReserveCash(ctx, tx, tc.buyer, d(10)); err != nil {
				return err
			}
			return l.LockShares(ctx, tx, tc.seller, "p1", 5)
		}))

		rec := &lockRecorder{}
		require.NoError(t, inTx(t, ms, func(tx store.Tx) error {
			rec.Tx = tx
			return l.ApplyFill(ctx, rec, ledger.Fill{
				TradeID: "t1", PlayerID: "p1", BuyerID: tc.buyer, SellerID: tc.seller,
				Price: d(2), Quantity: 5, BuyerReservedPrice: d(2),
			})
		}))
		require.GreaterOrEqual(t, len(rec.locks), 2)
		assert.Equal(t, []string{"account:amy", "account:zed"}, rec.locks[:2], "buyer %s", tc.buyer)
	}
}

func TestLockAccounts_SortsAndDedupes(t *testing.T) {
	ms := store.NewMemoryStore()
	l := ledger.New()
	rec := &lockRecorder{}
	require.NoError(t, inTx(t, ms, func(tx store.Tx) error {
		rec.Tx = tx
		return l.LockAccounts(context.Background(), rec, "carol", "alice", "carol", "bob")
	}))
	assert.Equal(t, []string{"account:alice", "account:bob", "account:carol"}, rec.locks)
}

func TestApplyFill_RejectsSelfTrade(t *testing.T) {
	ms := store.NewMemoryStore()
	l := ledger.New()
	err := inTx(t, ms, func(tx store.Tx) error {
		return l.ApplyFill(context.Background(), tx, ledger.Fill{
			TradeID: "t1", PlayerID: "p1", BuyerID: "u1", SellerID: "u1",
			Price: d(5), Quantity: 1, BuyerReservedPrice: d(5),
		})
	})
	assert.ErrorIs(t, err, ledger.ErrSelfTrade)
}
