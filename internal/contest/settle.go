package contest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fanshares/exchange-core/internal/event"
	"github.com/fanshares/exchange-core/internal/metrics"
	"github.com/fanshares/exchange-core/internal/model"
	"github.com/fanshares/exchange-core/internal/store"
)

// SettleResult reports one settlement attempt. Settling a completed
// contest is a successful no-op with AlreadySettled set; a contest that is
// not yet eligible is reported with Skipped and a reason.
type SettleResult struct {
	ContestID       string          `json:"contest_id"`
	AlreadySettled  bool            `json:"already_settled"`
	Skipped         bool            `json:"skipped"`
	Reason          string          `json:"reason,omitempty"`
	EntriesPaid     int             `json:"entries_paid"`
	WinnerCount     int             `json:"winner_count"`
	PayoutPerWinner decimal.Decimal `json:"payout_per_winner"`
	TotalPaidOut    decimal.Decimal `json:"total_paid_out"`
}

func newResult(contestID string) *SettleResult {
	return &SettleResult{ContestID: contestID, PayoutPerWinner: decimal.Zero, TotalPaidOut: decimal.Zero}
}

// Settle scores, ranks and pays a live contest that has ended, then marks
// it completed, all in one transaction. Fantasy points are fetched before
// the contest lock is taken.
func (s *Service) Settle(ctx context.Context, contestID string) (*SettleResult, error) {
	start := time.Now()
	res, err := s.settle(ctx, contestID)
	metrics.SettlementDuration.Observe(time.Since(start).Seconds())
	switch {
	case err != nil:
		metrics.ContestsSettled.WithLabelValues("failed").Inc()
		s.logger.Error("contest settlement failed",
			zap.String("contest_id", contestID),
			zap.Error(err))
	case res.AlreadySettled:
		metrics.ContestsSettled.WithLabelValues("already_settled").Inc()
	case res.Skipped:
		metrics.ContestsSettled.WithLabelValues("skipped").Inc()
	default:
		metrics.ContestsSettled.WithLabelValues("settled").Inc()
	}
	return res, err
}

func (s *Service) settle(ctx context.Context, contestID string) (*SettleResult, error) {
	res := newResult(contestID)

	c, err := s.store.GetContest(ctx, contestID)
	if err != nil {
		return nil, err
	}
	if done := s.guard(c, res); done {
		return res, nil
	}

	lineups, err := s.store.ListLineups(ctx, contestID)
	if err != nil {
		return nil, fmt.Errorf("list lineups: %w", err)
	}
	points, err := s.fetchPoints(ctx, c.GameDate, lineups)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(contestID)
	defer unlock()

	now := s.now()
	var standings *Standings
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		c, err := tx.GetContest(ctx, contestID)
		if err != nil {
			return err
		}
		if done := s.guard(c, res); done {
			return nil
		}

		entries, err := tx.ListEntries(ctx, contestID)
		if err != nil {
			return err
		}
		lineups, err := tx.ListLineups(ctx, contestID)
		if err != nil {
			return err
		}
		standings, err = Compute(entries, lineups, points, c.TotalPrizePool)
		if err != nil {
			return err
		}

		var paid []string
		for _, e := range standings.Entries {
			if e.Payout.IsPositive() {
				paid = append(paid, e.UserID)
			}
		}
		if err := s.ledger.LockAccounts(ctx, tx, paid...); err != nil {
			return err
		}

		for i := range standings.Lineups {
			if err := tx.UpdateLineup(ctx, &standings.Lineups[i]); err != nil {
				return err
			}
		}
		for i := range standings.Entries {
			e := &standings.Entries[i]
			if err := tx.UpdateEntry(ctx, e); err != nil {
				return err
			}
			if e.Payout.IsPositive() {
				if err := s.ledger.CreditCash(ctx, tx, e.UserID, e.Payout, model.ReasonPayout, e.ID); err != nil {
					return fmt.Errorf("pay entry %s: %w", e.ID, err)
				}
			}
		}

		// Completed only once every payout is written.
		c.Status = model.ContestCompleted
		c.SettledAt = &now
		return tx.UpdateContest(ctx, c)
	})
	if err != nil {
		return nil, fmt.Errorf("settle contest %s: %w", contestID, err)
	}
	if res.AlreadySettled || res.Skipped {
		return res, nil
	}

	res.WinnerCount = standings.WinnerCount
	res.PayoutPerWinner = standings.PayoutPerWinner
	res.TotalPaidOut = standings.TotalPaidOut
	for _, e := range standings.Entries {
		if e.Payout.IsPositive() {
			res.EntriesPaid++
		}
	}

	s.events.Publish(event.ContestSettled{
		ContestID:    contestID,
		EntriesPaid:  res.EntriesPaid,
		TotalPaidOut: res.TotalPaidOut,
		At:           now,
	})
	s.logger.Info("contest settled",
		zap.String("contest_id", contestID),
		zap.Int("entries", len(standings.Entries)),
		zap.Int("winners", res.WinnerCount),
		zap.String("payout_per_winner", res.PayoutPerWinner.String()),
		zap.String("total_paid_out", res.TotalPaidOut.String()))
	return res, nil
}

// guard fills res and reports true when c must not be settled now.
func (s *Service) guard(c *model.Contest, res *SettleResult) bool {
	switch {
	case c.Status == model.ContestCompleted:
		res.AlreadySettled = true
		res.Reason = ErrAlreadySettled.Error()
		s.logger.Info("contest already settled", zap.String("contest_id", c.ID))
		return true
	case c.Status != model.ContestLive:
		res.Skipped = true
		res.Reason = fmt.Sprintf("contest is %s", c.Status)
		return true
	case c.EndsAt.After(s.now()):
		res.Skipped = true
		res.Reason = "contest has not ended"
		return true
	}
	return false
}

// fetchPoints resolves the fantasy points of every player in the lineups
// across the games on the contest date.
func (s *Service) fetchPoints(ctx context.Context, gameDate time.Time, lineups []model.ContestLineup) (map[string]decimal.Decimal, error) {
	points := make(map[string]decimal.Decimal)
	if len(lineups) == 0 {
		return points, nil
	}

	games, err := s.feed.GamesOn(ctx, gameDate)
	if err != nil {
		return nil, fmt.Errorf("games on %s: %w", gameDate.Format(time.DateOnly), err)
	}
	gameIDs := make([]string, len(games))
	for i, g := range games {
		gameIDs[i] = g.ID
	}

	players := make(map[string]struct{})
	for _, l := range lineups {
		players[l.PlayerID] = struct{}{}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fetchConcurrency)
	for id := range players {
		g.Go(func() error {
			pts, err := s.feed.FantasyPoints(gctx, id, gameIDs)
			if err != nil {
				return fmt.Errorf("fantasy points for %s: %w", id, err)
			}
			mu.Lock()
			points[id] = pts
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return points, nil
}

// SweepDue settles every live contest that ended by now. A failing
// contest is logged and left live for the next sweep; the others proceed.
func (s *Service) SweepDue(ctx context.Context, now time.Time) (int, error) {
	live, err := s.store.ListContestsByStatus(ctx, model.ContestLive)
	if err != nil {
		return 0, fmt.Errorf("list live contests: %w", err)
	}

	var (
		settled int
		errs    []error
	)
	for _, c := range live {
		if c.EndsAt.After(now) {
			continue
		}
		res, err := s.Settle(ctx, c.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !res.AlreadySettled && !res.Skipped {
			settled++
		}
	}
	if len(errs) > 0 {
		s.logger.Warn("settlement sweep finished with failures",
			zap.Int("settled", settled),
			zap.Int("failed", len(errs)))
	}
	return settled, errors.Join(errs...)
}
