package contest

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/fanshares/exchange-core/internal/model"
)

// scorePlaces is the precision of lineup and entry scores.
const scorePlaces = 6

// Standings is the scored, ranked and paid state of a contest's entries.
type Standings struct {
	Entries         []model.ContestEntry  // rank order
	Lineups         []model.ContestLineup // input order
	WinnerCount     int
	PayoutPerWinner decimal.Decimal
	TotalPaidOut    decimal.Decimal
}

// Compute scores every lineup by dilution, totals and ranks the entries
// and applies the 50/50 payout. It does not mutate its inputs.
//
// A lineup's score is sharesEntered / totalShares(player) × points(player),
// where totalShares sums the player's committed shares across every entry.
// A lineup whose entry or player is missing from that total is reported as
// ErrDataInconsistency.
func Compute(entries []model.ContestEntry, lineups []model.ContestLineup, points map[string]decimal.Decimal, pool decimal.Decimal) (*Standings, error) {
	byID := make(map[string]int, len(entries))
	for i, e := range entries {
		byID[e.ID] = i
	}

	// One denominator for every entry, built once from the entries'
	// own lineups.
	totalShares := make(map[string]int64)
	for _, l := range lineups {
		if _, ok := byID[l.EntryID]; ok {
			totalShares[l.PlayerID] += l.SharesEntered
		}
	}

	out := &Standings{
		Entries:         make([]model.ContestEntry, len(entries)),
		Lineups:         make([]model.ContestLineup, len(lineups)),
		PayoutPerWinner: decimal.Zero,
		TotalPaidOut:    decimal.Zero,
	}
	copy(out.Entries, entries)
	for i := range out.Entries {
		out.Entries[i].TotalScore = decimal.Zero
	}

	for i, l := range lineups {
		idx, ok := byID[l.EntryID]
		if !ok {
			return nil, fmt.Errorf("%w: lineup %s references unknown entry %s", ErrDataInconsistency, l.ID, l.EntryID)
		}
		total, ok := totalShares[l.PlayerID]
		if !ok {
			return nil, fmt.Errorf("%w: player %s of lineup %s missing from contest share totals", ErrDataInconsistency, l.PlayerID, l.ID)
		}
		pts, ok := points[l.PlayerID]
		if !ok {
			return nil, fmt.Errorf("no fantasy points resolved for player %s", l.PlayerID)
		}

		l.FantasyPoints = pts
		l.EarnedScore = dilutedScore(l.SharesEntered, total, pts)
		out.Lineups[i] = l
		out.Entries[idx].TotalScore = out.Entries[idx].TotalScore.Add(l.EarnedScore)
	}

	Rank(out.Entries)

	out.WinnerCount, out.PayoutPerWinner = Payout(len(out.Entries), pool)
	for i := range out.Entries {
		if i < out.WinnerCount {
			out.Entries[i].Payout = out.PayoutPerWinner
			out.TotalPaidOut = out.TotalPaidOut.Add(out.PayoutPerWinner)
		} else {
			out.Entries[i].Payout = decimal.Zero
		}
	}
	return out, nil
}

// dilutedScore is shares / total × points rounded half-even to 6 places,
// or zero when no shares back the player.
func dilutedScore(shares, total int64, points decimal.Decimal) decimal.Decimal {
	if total == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(shares).
		Mul(points).
		Div(decimal.NewFromInt(total)).
		RoundBank(scorePlaces)
}

// Rank sorts entries by score descending, then earliest entry, then ID,
// and assigns 1-based ranks.
func Rank(entries []model.ContestEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if c := a.TotalScore.Cmp(b.TotalScore); c != 0 {
			return c > 0
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
}

// Payout splits pool evenly across the top half of n entries, rounding
// each share down to the cent so the total never exceeds the pool.
func Payout(n int, pool decimal.Decimal) (winners int, perWinner decimal.Decimal) {
	if n <= 0 || !pool.IsPositive() {
		return (n + 1) / 2, decimal.Zero
	}
	winners = (n + 1) / 2
	return winners, pool.Div(decimal.NewFromInt(int64(winners))).RoundFloor(2)
}
