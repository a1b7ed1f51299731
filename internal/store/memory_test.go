package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fanshares/exchange-core/internal/model"
	"github.com/fanshares/exchange-core/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestMemoryStore_CommitIsVisible(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	err := ms.InTx(ctx, func(tx store.Tx) error {
		return tx.PutAccount(ctx, &model.Account{UserID: "u1", CashBalance: d(50)})
	})
	require.NoError(t, err)

	a, err := ms.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, a.CashBalance.Equal(d(50)))
}

func TestMemoryStore_FailedTxLeavesNoTrace(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	boom := errors.New("boom")

	err := ms.InTx(ctx, func(tx store.Tx) error {
		if err := tx.PutAccount(ctx, &model.Account{UserID: "u1", CashBalance: d(50)}); err != nil {
			return err
		}
		if err := tx.InsertTrade(ctx, &model.Trade{ID: "t1", PlayerID: "p1", Quantity: 1}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = ms.GetAccount(ctx, "u1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	trades, err := ms.ListTradesByPlayer(ctx, "p1", 10)
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestMemoryStore_TxSeesOwnWrites(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	err := ms.InTx(ctx, func(tx store.Tx) error {
		require.NoError(t, tx.PutHolding(ctx, &model.Holding{UserID: "u1", AssetID: "p1", AssetType: model.AssetPlayer, Quantity: 5}))
		h, err := tx.GetHolding(ctx, "u1", "p1")
		require.NoError(t, err)
		assert.Equal(t, int64(5), h.Quantity)

		// Not yet published.
		_, err = ms.GetHolding(ctx, "u1", "p1")
		assert.ErrorIs(t, err, store.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryStore_RejectsInvalidHolding(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	err := ms.InTx(ctx, func(tx store.Tx) error {
		return tx.PutHolding(ctx, &model.Holding{UserID: "u1", AssetID: "p1", Quantity: 2, LockedQuantity: 3})
	})
	assert.Error(t, err)
}

func TestMemoryStore_RestingOrdersInSeqOrder(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	orders := []model.Order{
		{ID: "c", Type: model.OrderLimit, Status: model.StatusOpen, Quantity: 1, Seq: 3},
		{ID: "a", Type: model.OrderLimit, Status: model.StatusPartiallyFilled, Quantity: 2, FilledQuantity: 1, Seq: 1},
		{ID: "b", Type: model.OrderLimit, Status: model.StatusFilled, Quantity: 1, FilledQuantity: 1, Seq: 2},
		{ID: "m", Type: model.OrderMarket, Status: model.StatusCancelled, Quantity: 1, Seq: 4},
	}
	require.NoError(t, ms.InTx(ctx, func(tx store.Tx) error {
		for i := range orders {
			if err := tx.InsertOrder(ctx, &orders[i]); err != nil {
				return err
			}
		}
		return nil
	}))

	resting, err := ms.ListRestingOrders(ctx)
	require.NoError(t, err)
	require.Len(t, resting, 2)
	assert.Equal(t, "a", resting[0].ID)
	assert.Equal(t, "c", resting[1].ID)

	top, err := ms.MaxOrderSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), top)
}

func TestMemoryStore_SumFantasyPoints(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	day := time.Date(2026, 1, 4, 18, 0, 0, 0, time.UTC)

	require.NoError(t, ms.InTx(ctx, func(tx store.Tx) error {
		for _, g := range []model.Game{{ID: "g1", GameDate: day}, {ID: "g2", GameDate: day}, {ID: "g3", GameDate: day.AddDate(0, 0, 1)}} {
			if err := tx.PutGame(ctx, &g); err != nil {
				return err
			}
		}
		for _, st := range []model.PlayerGameStat{
			{PlayerID: "p1", GameID: "g1", FantasyPoints: d(12.5)},
			{PlayerID: "p1", GameID: "g2", FantasyPoints: d(7.5)},
			{PlayerID: "p1", GameID: "g3", FantasyPoints: d(99)},
		} {
			if err := tx.PutPlayerGameStat(ctx, &st); err != nil {
				return err
			}
		}
		return nil
	}))

	games, err := ms.ListGamesByDate(ctx, day)
	require.NoError(t, err)
	require.Len(t, games, 2)

	total, err := ms.SumFantasyPoints(ctx, "p1", []string{games[0].ID, games[1].ID})
	require.NoError(t, err)
	assert.True(t, total.Equal(d(20)), "got %s", total)

	none, err := ms.SumFantasyPoints(ctx, "p2", []string{"g1"})
	require.NoError(t, err)
	assert.True(t, none.IsZero())
}

func TestMemoryStore_EntriesOrderedByCreation(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	t0 := time.Now().UTC()

	require.NoError(t, ms.InTx(ctx, func(tx store.Tx) error {
		for _, e := range []model.ContestEntry{
			{ID: "e3", ContestID: "k", CreatedAt: t0.Add(time.Second)},
			{ID: "e2", ContestID: "k", CreatedAt: t0},
			{ID: "e1", ContestID: "k", CreatedAt: t0},
			{ID: "x", ContestID: "other", CreatedAt: t0},
		} {
			if err := tx.InsertEntry(ctx, &e); err != nil {
				return err
			}
		}
		return nil
	}))

	entries, err := ms.ListEntries(ctx, "k")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"e1", "e2", "e3"}, []string{entries[0].ID, entries[1].ID, entries[2].ID})
}

// An unreachable Redis degrades the cache to the primary store.
func TestCachedStore_FallsBackWhenRedisDown(t *testing.T) {
	ms := store.NewMemoryStore()
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()
	cs := store.NewCachedStore(ms, rdb, time.Minute)
	ctx := context.Background()

	require.NoError(t, cs.InTx(ctx, func(tx store.Tx) error {
		if err := tx.PutPlayer(ctx, &model.Player{ID: "p1", Name: "Ace", IsActive: true}); err != nil {
			return err
		}
		return tx.PutAccount(ctx, &model.Account{UserID: "u1", CashBalance: d(10)})
	}))

	p, err := cs.GetPlayer(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Ace", p.Name)

	a, err := cs.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, a.CashBalance.Equal(d(10)))

	_, err = cs.GetContest(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
