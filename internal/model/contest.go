package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ContestStatus is the contest state machine: open → live → completed.
type ContestStatus string

const (
	ContestOpen      ContestStatus = "open"
	ContestLive      ContestStatus = "live"
	ContestCompleted ContestStatus = "completed"
)

// Contest is a time-boxed competition over one game date.
type Contest struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	GameDate       time.Time       `json:"game_date"`
	Status         ContestStatus   `json:"status"`
	TotalPrizePool decimal.Decimal `json:"total_prize_pool"`
	EntryCount     int             `json:"entry_count"`
	StartsAt       time.Time       `json:"starts_at"`
	EndsAt         time.Time       `json:"ends_at"`
	SettledAt      *time.Time      `json:"settled_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// ContestEntry is one user's participation in a contest.
type ContestEntry struct {
	ID                 string          `json:"id"`
	ContestID          string          `json:"contest_id"`
	UserID             string          `json:"user_id"`
	TotalSharesEntered int64           `json:"total_shares_entered"`
	TotalScore         decimal.Decimal `json:"total_score"`
	Rank               int             `json:"rank"`
	Payout             decimal.Decimal `json:"payout"`
	CreatedAt          time.Time       `json:"created_at"`
}

// ContestLineup is one player commitment inside an entry. SharesEntered is
// frozen at entry time.
type ContestLineup struct {
	ID            string          `json:"id"`
	EntryID       string          `json:"entry_id"`
	ContestID     string          `json:"contest_id"`
	PlayerID      string          `json:"player_id"`
	SharesEntered int64           `json:"shares_entered"`
	FantasyPoints decimal.Decimal `json:"fantasy_points"`
	EarnedScore   decimal.Decimal `json:"earned_score"`
}
