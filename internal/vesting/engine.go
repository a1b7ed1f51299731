package vesting

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fanshares/exchange-core/internal/catalog"
	"github.com/fanshares/exchange-core/internal/event"
	"github.com/fanshares/exchange-core/internal/keylock"
	"github.com/fanshares/exchange-core/internal/ledger"
	"github.com/fanshares/exchange-core/internal/metrics"
	"github.com/fanshares/exchange-core/internal/model"
	"github.com/fanshares/exchange-core/internal/store"
)

var (
	// ErrOverAllocation is returned when a claim distributes more shares
	// than have accrued at the instant of the claim.
	ErrOverAllocation = errors.New("vesting: claim exceeds accrued shares")

	// ErrInvalidClaim is returned for malformed distributions.
	ErrInvalidClaim = errors.New("vesting: invalid claim")

	// ErrUnknownTier is returned for tier names missing from the config.
	ErrUnknownTier = errors.New("vesting: unknown tier")
)

// Tier is one accrual rate and cap.
type Tier struct {
	Name          string `mapstructure:"name"`
	SharesPerHour int64  `mapstructure:"shares_per_hour"`
	CapLimit      int64  `mapstructure:"cap_limit"`
}

// Validate checks that the tier accrues in whole milliseconds.
func (t Tier) Validate() error {
	switch {
	case t.Name == "":
		return errors.New("tier name is required")
	case t.SharesPerHour <= 0:
		return fmt.Errorf("tier %s: shares_per_hour must be positive", t.Name)
	case MsPerHour%t.SharesPerHour != 0:
		return fmt.Errorf("tier %s: shares_per_hour %d does not divide %d ms", t.Name, t.SharesPerHour, MsPerHour)
	case t.CapLimit <= 0:
		return fmt.Errorf("tier %s: cap_limit must be positive", t.Name)
	}
	return nil
}

// Deps are the engine's collaborators. Store and Catalog are required.
type Deps struct {
	Store       store.Store
	Catalog     catalog.Catalog
	Ledger      *ledger.Ledger
	Events      event.Publisher
	Logger      *zap.Logger
	Now         func() time.Time
	Tiers       []Tier
	DefaultTier string
}

// Engine persists accrual state and redeems it into player holdings.
type Engine struct {
	store       store.Store
	catalog     catalog.Catalog
	ledger      *ledger.Ledger
	events      event.Publisher
	logger      *zap.Logger
	now         func() time.Time
	tiers       map[string]Tier
	defaultTier Tier

	locks *keylock.Map // per user
}

// New validates the tier table and creates an engine.
func New(d Deps) (*Engine, error) {
	if len(d.Tiers) == 0 {
		return nil, errors.New("vesting: no tiers configured")
	}
	tiers := make(map[string]Tier, len(d.Tiers))
	for _, t := range d.Tiers {
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("vesting: %w", err)
		}
		if _, dup := tiers[t.Name]; dup {
			return nil, fmt.Errorf("vesting: duplicate tier %s", t.Name)
		}
		tiers[t.Name] = t
	}
	def, ok := tiers[d.DefaultTier]
	if !ok {
		return nil, fmt.Errorf("%w: default %q", ErrUnknownTier, d.DefaultTier)
	}

	e := &Engine{
		store:       d.Store,
		catalog:     d.Catalog,
		ledger:      d.Ledger,
		events:      d.Events,
		logger:      d.Logger,
		now:         d.Now,
		tiers:       tiers,
		defaultTier: def,
		locks:       keylock.New(),
	}
	if e.ledger == nil {
		e.ledger = ledger.New()
	}
	if e.events == nil {
		e.events = event.Nop{}
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.now == nil {
		e.now = func() time.Time { return time.Now().UTC() }
	}
	return e, nil
}

// Projection is what a user could claim right now.
type Projection struct {
	UserID            string `json:"user_id"`
	Tier              string `json:"tier"`
	SharesAccumulated int64  `json:"shares_accumulated"`
	ProjectedNow      int64  `json:"projected_now"`
	CapLimit          int64  `json:"cap_limit"`
	SharesPerHour     int64  `json:"shares_per_hour"`
	NextShareInMs     int64  `json:"next_share_in_ms"`
}

// Projection reads the user's state and projects it to now. A user
// without state starts accruing at the default tier from this call.
func (e *Engine) Projection(ctx context.Context, userID string) (*Projection, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidClaim)
	}
	s, err := e.store.GetVestingState(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		s, err = e.initState(ctx, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("load vesting state: %w", err)
	}

	now := e.now()
	return &Projection{
		UserID:            userID,
		Tier:              s.Tier,
		SharesAccumulated: s.SharesAccumulated,
		ProjectedNow:      Project(*s, now),
		CapLimit:          s.CapLimit,
		SharesPerHour:     s.SharesPerHour,
		NextShareInMs:     NextShareIn(*s, now).Milliseconds(),
	}, nil
}

// initState persists a fresh default-tier state unless another caller
// got there first.
func (e *Engine) initState(ctx context.Context, userID string) (*model.VestingState, error) {
	unlock := e.locks.Lock(userID)
	defer unlock()

	var out model.VestingState
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		s, err := e.loadState(ctx, tx, userID)
		if err != nil {
			return err
		}
		out = *s
		return nil
	})
	return &out, err
}

// loadState returns the user's state, creating and persisting the
// default one when missing.
func (e *Engine) loadState(ctx context.Context, tx store.Tx, userID string) (*model.VestingState, error) {
	s, err := tx.GetVestingState(ctx, userID)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	s = &model.VestingState{
		UserID:        userID,
		Tier:          e.defaultTier.Name,
		LastAccruedAt: e.now(),
		SharesPerHour: e.defaultTier.SharesPerHour,
		CapLimit:      e.defaultTier.CapLimit,
	}
	if err := tx.PutVestingState(ctx, s); err != nil {
		return nil, err
	}
	e.logger.Info("vesting started",
		zap.String("user_id", userID),
		zap.String("tier", s.Tier))
	return s, nil
}

// ClaimResult reports a redemption.
type ClaimResult struct {
	ClaimID             string    `json:"claim_id,omitempty"`
	TotalSharesRedeemed int64     `json:"total_shares_redeemed"`
	Remaining           int64     `json:"remaining"`
	ClaimedAt           time.Time `json:"claimed_at"`
}

// Claim redeems accrued shares into the named players' holdings.
//
// The claimable amount is recomputed at the claim instant and is the only
// bound checked; a distribution above it fails with ErrOverAllocation and
// writes nothing. An empty or all-zero distribution only checkpoints the
// accrual.
func (e *Engine) Claim(ctx context.Context, userID string, distribution []model.Allocation) (*ClaimResult, error) {
	allocs, total, err := e.validateDistribution(ctx, userID, distribution)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.Lock(userID)
	defer unlock()

	now := e.now()
	res := &ClaimResult{TotalSharesRedeemed: total, ClaimedAt: now}
	var claim model.VestingClaim
	err = e.store.InTx(ctx, func(tx store.Tx) error {
		s, err := e.loadState(ctx, tx, userID)
		if err != nil {
			return err
		}
		accrued := Accrue(*s, now)
		if total > accrued.SharesAccumulated {
			return fmt.Errorf("%w: requested %d, accrued %d", ErrOverAllocation, total, accrued.SharesAccumulated)
		}
		accrued.SharesAccumulated -= total
		if err := tx.PutVestingState(ctx, &accrued); err != nil {
			return err
		}
		res.Remaining = accrued.SharesAccumulated

		if total == 0 {
			return nil
		}
		claim = model.VestingClaim{
			ID:           uuid.NewString(),
			UserID:       userID,
			TotalShares:  total,
			Distribution: allocs,
			ClaimedAt:    now,
		}
		// Credit in player order so holding rows lock in one order.
		credits := slices.Clone(allocs)
		slices.SortFunc(credits, func(a, b model.Allocation) int { return strings.Compare(a.PlayerID, b.PlayerID) })
		for _, a := range credits {
			if err := e.ledger.CreditShares(ctx, tx, userID, a.PlayerID, model.AssetPlayer, a.Shares, model.ReasonVesting, claim.ID); err != nil {
				return err
			}
		}
		return tx.InsertVestingClaim(ctx, &claim)
	})
	if err != nil {
		if errors.Is(err, ErrOverAllocation) {
			return nil, err
		}
		return nil, fmt.Errorf("claim vesting: %w", err)
	}
	if total == 0 {
		return res, nil
	}

	res.ClaimID = claim.ID
	metrics.VestingSharesClaimed.Add(float64(total))
	e.events.Publish(event.VestingClaimed{Claim: claim})
	e.logger.Info("vesting claimed",
		zap.String("user_id", userID),
		zap.String("claim_id", claim.ID),
		zap.Int64("shares", total),
		zap.Int("players", len(allocs)),
		zap.Int64("remaining", res.Remaining))
	return res, nil
}

// validateDistribution drops zero allocations and rejects negative
// shares, duplicate players and players that cannot be held.
func (e *Engine) validateDistribution(ctx context.Context, userID string, distribution []model.Allocation) ([]model.Allocation, int64, error) {
	if userID == "" {
		return nil, 0, fmt.Errorf("%w: user_id is required", ErrInvalidClaim)
	}
	seen := make(map[string]bool, len(distribution))
	allocs := make([]model.Allocation, 0, len(distribution))
	var total int64
	for _, a := range distribution {
		switch {
		case a.PlayerID == "":
			return nil, 0, fmt.Errorf("%w: player_id is required", ErrInvalidClaim)
		case a.Shares < 0:
			return nil, 0, fmt.Errorf("%w: negative shares for %s", ErrInvalidClaim, a.PlayerID)
		case seen[a.PlayerID]:
			return nil, 0, fmt.Errorf("%w: duplicate player %s", ErrInvalidClaim, a.PlayerID)
		}
		seen[a.PlayerID] = true
		if a.Shares == 0 {
			continue
		}

		p, err := e.catalog.GetPlayer(ctx, a.PlayerID)
		if errors.Is(err, catalog.ErrUnknownPlayer) {
			return nil, 0, fmt.Errorf("%w: unknown player %s", ErrInvalidClaim, a.PlayerID)
		}
		if err != nil {
			return nil, 0, fmt.Errorf("lookup player %s: %w", a.PlayerID, err)
		}
		if !p.IsActive {
			return nil, 0, fmt.Errorf("%w: player %s is inactive", ErrInvalidClaim, a.PlayerID)
		}
		allocs = append(allocs, a)
		total += a.Shares
	}
	return allocs, total, nil
}

// SetTier moves the user to tier. Time up to now accrues at the old rate;
// the new rate and cap apply from now on. Shares already accumulated are
// kept even when they exceed the new cap.
func (e *Engine) SetTier(ctx context.Context, userID, tier string) (*Projection, error) {
	t, ok := e.tiers[tier]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidClaim)
	}

	unlock := e.locks.Lock(userID)
	defer unlock()

	now := e.now()
	var (
		next model.VestingState
		prev string
	)
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		s, err := e.loadState(ctx, tx, userID)
		if err != nil {
			return err
		}
		prev = s.Tier
		next = Accrue(*s, now)
		next.ResidualMs = rescaleResidual(next.ResidualMs, next.SharesPerHour, t.SharesPerHour)
		next.Tier = t.Name
		next.SharesPerHour = t.SharesPerHour
		next.CapLimit = t.CapLimit
		if next.SharesAccumulated >= next.CapLimit {
			next.ResidualMs = 0
		}
		return tx.PutVestingState(ctx, &next)
	})
	if err != nil {
		return nil, fmt.Errorf("set vesting tier: %w", err)
	}

	e.logger.Info("vesting tier changed",
		zap.String("user_id", userID),
		zap.String("from", prev),
		zap.String("to", t.Name),
		zap.Int64("accumulated", next.SharesAccumulated))
	return &Projection{
		UserID:            userID,
		Tier:              next.Tier,
		SharesAccumulated: next.SharesAccumulated,
		ProjectedNow:      next.SharesAccumulated,
		CapLimit:          next.CapLimit,
		SharesPerHour:     next.SharesPerHour,
		NextShareInMs:     NextShareIn(next, now).Milliseconds(),
	}, nil
}

// Claims returns the user's redemption history, oldest first.
func (e *Engine) Claims(ctx context.Context, userID string) ([]model.VestingClaim, error) {
	claims, err := e.store.ListVestingClaims(ctx, userID)
	if err != nil {
		return nil, err
	}
	if claims == nil {
		claims = []model.VestingClaim{}
	}
	return claims, nil
}
