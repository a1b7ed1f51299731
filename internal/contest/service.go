// Package contest runs fantasy contests: entry, activation, dilution
// scoring, ranking and 50/50 settlement.
//
// A contest moves open → live → completed. Entries are accepted only
// while open; settlement runs once the contest is live and has ended.
// Entry and settlement for one contest are serialized by a contest lock
// plus a row lock on the contest inside the store transaction.
package contest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fanshares/exchange-core/internal/catalog"
	"github.com/fanshares/exchange-core/internal/event"
	"github.com/fanshares/exchange-core/internal/feed"
	"github.com/fanshares/exchange-core/internal/keylock"
	"github.com/fanshares/exchange-core/internal/ledger"
	"github.com/fanshares/exchange-core/internal/model"
	"github.com/fanshares/exchange-core/internal/store"
)

var (
	// ErrDataInconsistency aborts settlement when lineups and share totals
	// disagree. It needs operator attention; the contest stays live.
	ErrDataInconsistency = errors.New("contest: data inconsistency")

	// ErrContestClosed is returned for entries into a contest that is not open.
	ErrContestClosed = errors.New("contest: not open for entries")

	// ErrInvalidEntry is returned for malformed lineups and contests.
	ErrInvalidEntry = errors.New("contest: invalid entry")

	// ErrAlreadySettled marks a settlement of a completed contest. Settle
	// reports it through SettleResult.AlreadySettled, never as an error.
	ErrAlreadySettled = errors.New("contest: already settled")
)

const defaultFetchConcurrency = 8

// Deps are the service's collaborators. Store, Catalog and Feed are required.
type Deps struct {
	Store   store.Store
	Catalog catalog.Catalog
	Feed    feed.Feed
	Ledger  *ledger.Ledger
	Events  event.Publisher
	Logger  *zap.Logger
	Now     func() time.Time

	// FetchConcurrency bounds parallel fantasy-point lookups.
	FetchConcurrency int
}

// Service manages the contest lifecycle.
type Service struct {
	store            store.Store
	catalog          catalog.Catalog
	feed             feed.Feed
	ledger           *ledger.Ledger
	events           event.Publisher
	logger           *zap.Logger
	now              func() time.Time
	fetchConcurrency int

	locks *keylock.Map // per contest
}

// New creates a contest service.
func New(d Deps) *Service {
	s := &Service{
		store:            d.Store,
		catalog:          d.Catalog,
		feed:             d.Feed,
		ledger:           d.Ledger,
		events:           d.Events,
		logger:           d.Logger,
		now:              d.Now,
		fetchConcurrency: d.FetchConcurrency,
		locks:            keylock.New(),
	}
	if s.ledger == nil {
		s.ledger = ledger.New()
	}
	if s.events == nil {
		s.events = event.Nop{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.fetchConcurrency <= 0 {
		s.fetchConcurrency = defaultFetchConcurrency
	}
	return s
}

// CreateRequest describes a new contest.
type CreateRequest struct {
	Name           string          `json:"name"`
	GameDate       time.Time       `json:"game_date"`
	TotalPrizePool decimal.Decimal `json:"total_prize_pool"`
	StartsAt       time.Time       `json:"starts_at"`
	EndsAt         time.Time       `json:"ends_at"`
}

// Create opens a contest for entries.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*model.Contest, error) {
	switch {
	case req.Name == "":
		return nil, fmt.Errorf("%w: name is required", ErrInvalidEntry)
	case req.GameDate.IsZero():
		return nil, fmt.Errorf("%w: game_date is required", ErrInvalidEntry)
	case req.TotalPrizePool.IsNegative():
		return nil, fmt.Errorf("%w: prize pool must not be negative", ErrInvalidEntry)
	case !req.EndsAt.After(req.StartsAt):
		return nil, fmt.Errorf("%w: ends_at must be after starts_at", ErrInvalidEntry)
	}

	c := model.Contest{
		ID:             uuid.NewString(),
		Name:           req.Name,
		GameDate:       model.DateOnly(req.GameDate),
		Status:         model.ContestOpen,
		TotalPrizePool: req.TotalPrizePool,
		StartsAt:       req.StartsAt.UTC(),
		EndsAt:         req.EndsAt.UTC(),
		CreatedAt:      s.now(),
	}
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		return tx.InsertContest(ctx, &c)
	})
	if err != nil {
		return nil, fmt.Errorf("create contest: %w", err)
	}

	s.logger.Info("contest created",
		zap.String("contest_id", c.ID),
		zap.String("name", c.Name),
		zap.Time("game_date", c.GameDate),
		zap.String("prize_pool", c.TotalPrizePool.String()))
	return &c, nil
}

// Get returns one contest.
func (s *Service) Get(ctx context.Context, contestID string) (*model.Contest, error) {
	return s.store.GetContest(ctx, contestID)
}

// Slot commits shares of one player to a lineup.
type Slot struct {
	PlayerID string `json:"player_id"`
	Shares   int64  `json:"shares"`
}

// EnterRequest is one user's lineup for a contest.
type EnterRequest struct {
	ContestID string `json:"contest_id"`
	UserID    string `json:"user_id"`
	Lineup    []Slot `json:"lineup"`
}

func (r EnterRequest) validate() error {
	if r.UserID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidEntry)
	}
	if len(r.Lineup) == 0 {
		return fmt.Errorf("%w: lineup is empty", ErrInvalidEntry)
	}
	seen := make(map[string]bool, len(r.Lineup))
	for _, sl := range r.Lineup {
		switch {
		case sl.PlayerID == "":
			return fmt.Errorf("%w: player_id is required", ErrInvalidEntry)
		case sl.Shares <= 0:
			return fmt.Errorf("%w: shares for %s must be positive", ErrInvalidEntry, sl.PlayerID)
		case seen[sl.PlayerID]:
			return fmt.Errorf("%w: duplicate player %s", ErrInvalidEntry, sl.PlayerID)
		}
		seen[sl.PlayerID] = true
	}
	return nil
}

// Enter records a lineup. The user must hold the committed shares, not
// locked by open sells, when entering; the commitment is frozen on the
// lineup and later trading does not change it. One entry per user.
func (s *Service) Enter(ctx context.Context, req EnterRequest) (*model.ContestEntry, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	for _, sl := range req.Lineup {
		p, err := s.catalog.GetPlayer(ctx, sl.PlayerID)
		if errors.Is(err, catalog.ErrUnknownPlayer) {
			return nil, fmt.Errorf("%w: unknown player %s", ErrInvalidEntry, sl.PlayerID)
		}
		if err != nil {
			return nil, fmt.Errorf("lookup player %s: %w", sl.PlayerID, err)
		}
		if !p.IsActive {
			return nil, fmt.Errorf("%w: player %s is inactive", ErrInvalidEntry, sl.PlayerID)
		}
	}

	unlock := s.locks.Lock(req.ContestID)
	defer unlock()

	now := s.now()
	entry := model.ContestEntry{
		ID:         uuid.NewString(),
		ContestID:  req.ContestID,
		UserID:     req.UserID,
		TotalScore: decimal.Zero,
		Payout:     decimal.Zero,
		CreatedAt:  now,
	}
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		c, err := tx.GetContest(ctx, req.ContestID)
		if err != nil {
			return err
		}
		if c.Status != model.ContestOpen {
			return fmt.Errorf("%w: contest %s is %s", ErrContestClosed, c.ID, c.Status)
		}

		entries, err := tx.ListEntries(ctx, c.ID)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.UserID == req.UserID {
				return fmt.Errorf("%w: user %s already entered", ErrInvalidEntry, req.UserID)
			}
		}

		// Holding rows are locked in player order, as claims lock them.
		checks := slices.Clone(req.Lineup)
		slices.SortFunc(checks, func(a, b Slot) int { return strings.Compare(a.PlayerID, b.PlayerID) })
		for _, sl := range checks {
			h, err := tx.GetHolding(ctx, req.UserID, sl.PlayerID)
			available := int64(0)
			switch {
			case err == nil:
				available = h.Available()
			case !errors.Is(err, store.ErrNotFound):
				return err
			}
			if available < sl.Shares {
				return fmt.Errorf("%w: %s has %d of %s available, lineup commits %d",
					ledger.ErrInsufficientShares, req.UserID, available, sl.PlayerID, sl.Shares)
			}
			entry.TotalSharesEntered += sl.Shares
		}

		if err := tx.InsertEntry(ctx, &entry); err != nil {
			return err
		}
		for _, sl := range req.Lineup {
			err := tx.InsertLineup(ctx, &model.ContestLineup{
				ID:            uuid.NewString(),
				EntryID:       entry.ID,
				ContestID:     c.ID,
				PlayerID:      sl.PlayerID,
				SharesEntered: sl.Shares,
				FantasyPoints: decimal.Zero,
				EarnedScore:   decimal.Zero,
			})
			if err != nil {
				return err
			}
		}
		c.EntryCount++
		return tx.UpdateContest(ctx, c)
	})
	if err != nil {
		return nil, fmt.Errorf("enter contest %s: %w", req.ContestID, err)
	}

	s.logger.Info("contest entered",
		zap.String("contest_id", req.ContestID),
		zap.String("entry_id", entry.ID),
		zap.String("user_id", req.UserID),
		zap.Int64("shares", entry.TotalSharesEntered))
	return &entry, nil
}

// Activate moves every open contest whose start has passed to live and
// returns how many it moved.
func (s *Service) Activate(ctx context.Context, now time.Time) (int, error) {
	open, err := s.store.ListContestsByStatus(ctx, model.ContestOpen)
	if err != nil {
		return 0, fmt.Errorf("list open contests: %w", err)
	}

	n := 0
	for _, c := range open {
		if c.StartsAt.After(now) {
			continue
		}
		moved, err := s.activate(ctx, c.ID)
		if err != nil {
			return n, err
		}
		if moved {
			n++
		}
	}
	return n, nil
}

func (s *Service) activate(ctx context.Context, contestID string) (bool, error) {
	unlock := s.locks.Lock(contestID)
	defer unlock()

	moved := false
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		c, err := tx.GetContest(ctx, contestID)
		if err != nil {
			return err
		}
		if c.Status != model.ContestOpen {
			return nil
		}
		c.Status = model.ContestLive
		moved = true
		return tx.UpdateContest(ctx, c)
	})
	if err != nil {
		return false, fmt.Errorf("activate contest %s: %w", contestID, err)
	}
	if moved {
		s.logger.Info("contest live", zap.String("contest_id", contestID))
	}
	return moved, nil
}

// Leaderboard is a contest with its entries in standing order.
type Leaderboard struct {
	Contest model.Contest        `json:"contest"`
	Entries []model.ContestEntry `json:"entries"`
}

// Leaderboard returns entries by rank once settled, by entry time before.
func (s *Service) Leaderboard(ctx context.Context, contestID string) (*Leaderboard, error) {
	c, err := s.store.GetContest(ctx, contestID)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.ListEntries(ctx, contestID)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []model.ContestEntry{}
	}
	if c.Status == model.ContestCompleted {
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].Rank < entries[j].Rank })
	}
	return &Leaderboard{Contest: *c, Entries: entries}, nil
}
