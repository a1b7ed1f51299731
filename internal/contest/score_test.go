package contest

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/fanshares/exchange-core/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

var base = time.Date(2026, 4, 1, 18, 0, 0, 0, time.UTC)

func entry(id string, minute int) model.ContestEntry {
	return model.ContestEntry{ID: id, ContestID: "c1", UserID: "user-" + id, CreatedAt: base.Add(time.Duration(minute) * time.Minute)}
}

func lineup(id, entryID, player string, shares int64) model.ContestLineup {
	return model.ContestLineup{ID: id, EntryID: entryID, ContestID: "c1", PlayerID: player, SharesEntered: shares}
}

func TestCompute_Dilution(t *testing.T) {
	entries := []model.ContestEntry{entry("a", 0), entry("b", 1)}
	lineups := []model.ContestLineup{
		lineup("l1", "a", "x", 50),
		lineup("l2", "b", "x", 50),
	}
	s, err := Compute(entries, lineups, map[string]decimal.Decimal{"x": d(40)}, d(10))
	require.NoError(t, err)

	for _, l := range s.Lineups {
		assert.Equal(t, "20", l.EarnedScore.String())
		assert.True(t, l.FantasyPoints.Equal(d(40)))
	}
}

func TestCompute_FourEntryScenario(t *testing.T) {
	entries := []model.ContestEntry{entry("c", 2), entry("a", 0), entry("d", 3), entry("b", 1)}
	lineups := []model.ContestLineup{
		lineup("l1", "a", "x", 10),
		lineup("l2", "b", "x", 10),
		lineup("l3", "c", "y", 5),
		lineup("l4", "d", "z", 5),
	}
	points := map[string]decimal.Decimal{"x": d(30), "y": decimal.Zero, "z": decimal.Zero}

	s, err := Compute(entries, lineups, points, d(100))
	require.NoError(t, err)

	require.Len(t, s.Entries, 4)
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(s.Entries))
	assert.True(t, s.Entries[0].TotalScore.Equal(d(15)))
	assert.True(t, s.Entries[1].TotalScore.Equal(d(15)))
	assert.Equal(t, 2, s.WinnerCount)
	assert.True(t, s.PayoutPerWinner.Equal(d(50)))
	assert.True(t, s.Entries[0].Payout.Equal(d(50)))
	assert.True(t, s.Entries[1].Payout.Equal(d(50)))
	assert.True(t, s.Entries[2].Payout.IsZero())
	assert.True(t, s.Entries[3].Payout.IsZero())
	assert.True(t, s.TotalPaidOut.Equal(d(100)))
	for i, e := range s.Entries {
		assert.Equal(t, i+1, e.Rank)
	}
}

func TestCompute_ScoreRounding(t *testing.T) {
	entries := []model.ContestEntry{entry("a", 0), entry("b", 1)}
	lineups := []model.ContestLineup{
		lineup("l1", "a", "x", 1),
		lineup("l2", "b", "x", 2),
	}
	s, err := Compute(entries, lineups, map[string]decimal.Decimal{"x": d(10)}, d(0))
	require.NoError(t, err)
	assert.Equal(t, "3.333333", s.Lineups[0].EarnedScore.String())
	assert.Equal(t, "6.666667", s.Lineups[1].EarnedScore.String())
	assert.Equal(t, "b", s.Entries[0].ID)
	assert.True(t, s.TotalPaidOut.IsZero())
}

func TestCompute_OrphanLineupIsInconsistent(t *testing.T) {
	entries := []model.ContestEntry{entry("a", 0)}
	lineups := []model.ContestLineup{
		lineup("l1", "a", "x", 10),
		lineup("l2", "ghost", "y", 10),
	}
	points := map[string]decimal.Decimal{"x": d(1), "y": d(1)}

	_, err := Compute(entries, lineups, points, d(10))
	assert.ErrorIs(t, err, ErrDataInconsistency)
}

func TestCompute_DoesNotMutateInputs(t *testing.T) {
	entries := []model.ContestEntry{entry("b", 1), entry("a", 0)}
	lineups := []model.ContestLineup{lineup("l1", "a", "x", 1), lineup("l2", "b", "x", 3)}

	_, err := Compute(entries, lineups, map[string]decimal.Decimal{"x": d(8)}, d(10))
	require.NoError(t, err)
	assert.Equal(t, "b", entries[0].ID)
	assert.Equal(t, 0, entries[0].Rank)
	assert.True(t, lineups[0].EarnedScore.IsZero())
}

func TestPayout(t *testing.T) {
	tests := []struct {
		n       int
		pool    float64
		winners int
		each    string
	}{
		{4, 100, 2, "50"},
		{3, 100, 2, "50"},
		{1, 100, 1, "100"},
		{5, 100, 3, "33.33"},
		{7, 10, 4, "2.5"},
		{0, 100, 0, "0"},
		{2, 0, 1, "0"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d entries %v pool", tt.n, tt.pool), func(t *testing.T) {
			w, each := Payout(tt.n, d(tt.pool))
			assert.Equal(t, tt.winners, w)
			assert.Equal(t, tt.each, each.String())
		})
	}
}

func TestCompute_PayoutConservation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 30).Draw(t, "entries")
		pool := decimal.New(rapid.Int64Range(0, 1_000_000).Draw(t, "poolCents"), -2)
		players := []string{"x", "y", "z"}

		var (
			entries []model.ContestEntry
			lineups []model.ContestLineup
		)
		for i := 0; i < n; i++ {
			id := fmt.Sprintf("e%02d", i)
			entries = append(entries, entry(id, rapid.IntRange(0, 5).Draw(t, "minute-"+id)))
			for _, p := range players {
				if rapid.Bool().Draw(t, id+"-"+p) {
					lineups = append(lineups, lineup(id+p, id, p, rapid.Int64Range(1, 100).Draw(t, "shares-"+id+p)))
				}
			}
		}
		points := map[string]decimal.Decimal{}
		for _, p := range players {
			points[p] = decimal.New(rapid.Int64Range(0, 5000).Draw(t, "points-"+p), -1)
		}

		s, err := Compute(entries, lineups, points, pool)
		if err != nil {
			t.Fatalf("compute: %v", err)
		}

		paid := decimal.Zero
		for i, e := range s.Entries {
			paid = paid.Add(e.Payout)
			if i > 0 && e.TotalScore.GreaterThan(s.Entries[i-1].TotalScore) {
				t.Fatalf("rank %d scores above rank %d", e.Rank, s.Entries[i-1].Rank)
			}
		}
		if !paid.Equal(s.PayoutPerWinner.Mul(decimal.NewFromInt(int64(s.WinnerCount)))) {
			t.Fatalf("paid %s != %s × %d", paid, s.PayoutPerWinner, s.WinnerCount)
		}
		if paid.GreaterThan(pool) {
			t.Fatalf("paid %s above pool %s", paid, pool)
		}
		if s.WinnerCount != (n+1)/2 {
			t.Fatalf("winners %d for %d entries", s.WinnerCount, n)
		}
	})
}

func ids(entries []model.ContestEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}
