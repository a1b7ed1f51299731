// Package limits caps how many shares a user may hold, per player and
// across correlated players.
//
// Players on the same team tend to score together: a user who buys the
// whole roster of one team has concentrated risk. Two players are treated
// as correlated when they share a non-empty team ID, and the limiter caps
// the aggregate holding across that group.
package limits

import (
	"errors"
	"fmt"
)

var (
	// ErrPerPlayerLimitExceeded is returned when a buy would push a single
	// player's position beyond the per-player maximum.
	ErrPerPlayerLimitExceeded = errors.New("limits: per-player position limit exceeded")

	// ErrTeamLimitExceeded is returned when a buy would push the aggregate
	// position across one team's players beyond the team maximum.
	ErrTeamLimitExceeded = errors.New("limits: team exposure limit exceeded")
)

// Exposure is a user's share count in one player.
type Exposure struct {
	PlayerID string
	TeamID   string
	Shares   int64
}

// PositionLimiter enforces share caps. A zero limit disables that check.
type PositionLimiter struct {
	// MaxPerPlayer is the maximum shares held in any single player.
	MaxPerPlayer int64

	// MaxPerTeam is the maximum aggregate shares held across all players
	// that share a team ID.
	MaxPerTeam int64
}

// NewPositionLimiter creates a limiter with the given caps.
func NewPositionLimiter(maxPerPlayer, maxPerTeam int64) *PositionLimiter {
	return &PositionLimiter{
		MaxPerPlayer: maxPerPlayer,
		MaxPerTeam:   maxPerTeam,
	}
}

// Enabled reports whether any cap is set.
func (l *PositionLimiter) Enabled() bool {
	return l != nil && (l.MaxPerPlayer > 0 || l.MaxPerTeam > 0)
}

// CheckLimit validates whether acquiring delta shares of target respects
// the caps, given the user's existing exposures. Only increases are
// checked; sells always reduce risk.
func (l *PositionLimiter) CheckLimit(target Exposure, delta int64, existing []Exposure) error {
	if !l.Enabled() || delta <= 0 {
		return nil
	}

	// 1. Per-player limit.
	current := int64(0)
	for _, e := range existing {
		if e.PlayerID == target.PlayerID {
			current += e.Shares
		}
	}
	next := current + delta
	if l.MaxPerPlayer > 0 && next > l.MaxPerPlayer {
		return fmt.Errorf("%w: %s would hold %d, max %d", ErrPerPlayerLimitExceeded, target.PlayerID, next, l.MaxPerPlayer)
	}

	// 2. Team exposure: sum across teammates including the new position.
	if l.MaxPerTeam <= 0 || target.TeamID == "" {
		return nil
	}
	total := next
	for _, e := range existing {
		if e.PlayerID == target.PlayerID {
			continue // counted via next above
		}
		if e.TeamID == target.TeamID {
			total += e.Shares
		}
	}
	if total > l.MaxPerTeam {
		return fmt.Errorf("%w: team %s would hold %d, max %d", ErrTeamLimitExceeded, target.TeamID, total, l.MaxPerTeam)
	}
	return nil
}
