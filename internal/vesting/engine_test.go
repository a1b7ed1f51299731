package vesting_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fanshares/exchange-core/internal/catalog"
	"github.com/fanshares/exchange-core/internal/event"
	"github.com/fanshares/exchange-core/internal/model"
	"github.com/fanshares/exchange-core/internal/store"
	"github.com/fanshares/exchange-core/internal/vesting"
)

var tiers = []vesting.Tier{
	{Name: "free", SharesPerHour: 10, CapLimit: 100},
	{Name: "premium", SharesPerHour: 30, CapLimit: 500},
	{Name: "trial", SharesPerHour: 60, CapLimit: 5},
}

type fixture struct {
	store  *store.MemoryStore
	engine *vesting.Engine
	events *event.Recorder
	now    time.Time
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  store.NewMemoryStore(),
		events: &event.Recorder{},
		now:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	ctx := context.Background()
	require.NoError(t, f.store.InTx(ctx, func(tx store.Tx) error {
		for _, p := range []model.Player{
			{ID: "p1", Name: "Ace", IsActive: true},
			{ID: "p2", Name: "Deuce", IsActive: true},
			{ID: "retired", Name: "Gone", IsActive: false},
		} {
			if err := tx.PutPlayer(ctx, &p); err != nil {
				return err
			}
		}
		return nil
	}))

	eng, err := vesting.New(vesting.Deps{
		Store:       f.store,
		Catalog:     catalog.NewStoreCatalog(f.store),
		Events:      f.events,
		Now:         func() time.Time { return f.now },
		Tiers:       tiers,
		DefaultTier: "free",
	})
	require.NoError(t, err)
	f.engine = eng
	return f
}

func TestNew_RejectsBadTiers(t *testing.T) {
	ms := store.NewMemoryStore()
	_, err := vesting.New(vesting.Deps{Store: ms, Tiers: []vesting.Tier{{Name: "x", SharesPerHour: 7, CapLimit: 10}}, DefaultTier: "x"})
	assert.Error(t, err)
	_, err = vesting.New(vesting.Deps{Store: ms, Tiers: tiers, DefaultTier: "gold"})
	assert.ErrorIs(t, err, vesting.ErrUnknownTier)
	_, err = vesting.New(vesting.Deps{Store: ms, DefaultTier: "free"})
	assert.Error(t, err)
}

func TestProjection_LazyInit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.engine.Projection(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "free", p.Tier)
	assert.Equal(t, int64(0), p.ProjectedNow)
	assert.Equal(t, int64(360_000), p.NextShareInMs)

	f.advance(30 * time.Minute)
	p, err = f.engine.Projection(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), p.ProjectedNow)
	assert.Equal(t, int64(0), p.SharesAccumulated, "projection does not persist accrual")
}

func TestClaim_CreditsHoldings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.engine.Projection(ctx, "u1")
	require.NoError(t, err)

	f.advance(time.Hour + 3*time.Minute)
	res, err := f.engine.Claim(ctx, "u1", []model.Allocation{
		{PlayerID: "p1", Shares: 6},
		{PlayerID: "p2", Shares: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(9), res.TotalSharesRedeemed)
	assert.Equal(t, int64(1), res.Remaining)
	assert.NotEmpty(t, res.ClaimID)

	h, err := f.store.GetHolding(ctx, "u1", "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(6), h.Quantity)
	assert.Equal(t, model.AssetPlayer, h.AssetType)

	claims, err := f.engine.Claims(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.Equal(t, int64(9), claims[0].TotalShares)
	assert.Len(t, claims[0].Distribution, 2)

	require.Len(t, f.events.OfKind(event.KindVestingClaimed), 1)

	// The 3 minutes of residual carry into the next share.
	f.advance(3 * time.Minute)
	p, err := f.engine.Projection(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.ProjectedNow)
}

func TestClaim_OverAllocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.engine.Projection(ctx, "u1")
	require.NoError(t, err)
	f.advance(time.Hour)

	_, err = f.engine.Claim(ctx, "u1", []model.Allocation{{PlayerID: "p1", Shares: 7}, {PlayerID: "p2", Shares: 4}})
	assert.ErrorIs(t, err, vesting.ErrOverAllocation)

	_, err = f.store.GetHolding(ctx, "u1", "p1")
	assert.ErrorIs(t, err, store.ErrNotFound, "nothing credited")
	s, err := f.store.GetVestingState(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), s.SharesAccumulated)
	assert.Empty(t, f.events.Events)

	res, err := f.engine.Claim(ctx, "u1", []model.Allocation{{PlayerID: "p1", Shares: 10}})
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Remaining)
}

func TestClaim_InvalidDistribution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		dist  []model.Allocation
		isErr error
	}{
		{"negative", []model.Allocation{{PlayerID: "p1", Shares: -1}}, vesting.ErrInvalidClaim},
		{"duplicate", []model.Allocation{{PlayerID: "p1", Shares: 1}, {PlayerID: "p1", Shares: 1}}, vesting.ErrInvalidClaim},
		{"unknown player", []model.Allocation{{PlayerID: "ghost", Shares: 1}}, vesting.ErrInvalidClaim},
		{"inactive player", []model.Allocation{{PlayerID: "retired", Shares: 1}}, vesting.ErrInvalidClaim},
		{"missing player", []model.Allocation{{Shares: 1}}, vesting.ErrInvalidClaim},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Claim(ctx, "u1", tt.dist)
			assert.ErrorIs(t, err, tt.isErr)
		})
	}
}

func TestClaim_ZeroIsCheckpoint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.engine.Projection(ctx, "u1")
	require.NoError(t, err)

	f.advance(10 * time.Minute)
	res, err := f.engine.Claim(ctx, "u1", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.TotalSharesRedeemed)
	assert.Equal(t, int64(1), res.Remaining)
	assert.Empty(t, res.ClaimID)

	s, err := f.store.GetVestingState(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(240_000), s.ResidualMs)

	f.advance(2 * time.Minute)
	p, err := f.engine.Projection(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.ProjectedNow, "same as if no checkpoint happened")

	claims, err := f.engine.Claims(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, claims)
}

func TestSetTier_Prospective(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.engine.Projection(ctx, "u1")
	require.NoError(t, err)

	f.advance(time.Hour + 3*time.Minute) // 10 shares + half a share at 10/h
	p, err := f.engine.SetTier(ctx, "u1", "premium")
	require.NoError(t, err)
	assert.Equal(t, int64(10), p.SharesAccumulated)
	assert.Equal(t, int64(30), p.SharesPerHour)

	// Half a share carries over: 1 more share after 1 minute at 30/h.
	f.advance(time.Minute)
	p, err = f.engine.Projection(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(11), p.ProjectedNow)

	f.advance(time.Hour)
	p, err = f.engine.Projection(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(41), p.ProjectedNow)

	_, err = f.engine.SetTier(ctx, "u1", "platinum")
	assert.ErrorIs(t, err, vesting.ErrUnknownTier)
}

func TestSetTier_LowerCapKeepsShares(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.engine.Projection(ctx, "u1")
	require.NoError(t, err)

	f.advance(2 * time.Hour)
	p, err := f.engine.SetTier(ctx, "u1", "trial")
	require.NoError(t, err)
	assert.Equal(t, int64(20), p.SharesAccumulated, "no clawback above the new cap")
	assert.Equal(t, int64(5), p.CapLimit)

	f.advance(time.Hour)
	p, err = f.engine.Projection(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(20), p.ProjectedNow)

	res, err := f.engine.Claim(ctx, "u1", []model.Allocation{{PlayerID: "p1", Shares: 18}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Remaining)

	f.advance(2 * time.Minute)
	p, err = f.engine.Projection(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), p.ProjectedNow)
}

func TestClaim_ConcurrentClaimsNeverExceedAccrual(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.engine.Projection(ctx, "u1")
	require.NoError(t, err)
	f.advance(time.Hour) // 10 shares accrued

	var (
		wg      sync.WaitGroup
		ok      atomic.Int64
		refused atomic.Int64
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			player := "p1"
			if i%2 == 1 {
				player = "p2"
			}
			_, err := f.engine.Claim(ctx, "u1", []model.Allocation{{PlayerID: player, Shares: 3}})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, vesting.ErrOverAllocation):
				refused.Add(1)
			default:
				t.Errorf("claim: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(3), ok.Load(), "10 accrued shares cover three claims of 3")
	assert.Equal(t, int64(5), refused.Load())

	var credited int64
	for _, p := range []string{"p1", "p2"} {
		if h, err := f.store.GetHolding(ctx, "u1", p); err == nil {
			credited += h.Quantity
		}
	}
	assert.Equal(t, int64(9), credited)

	s, err := f.store.GetVestingState(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.SharesAccumulated)

	claims, err := f.engine.Claims(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, claims, 3)
}
