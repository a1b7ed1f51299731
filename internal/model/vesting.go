package model

import "time"

// VestingState is the persisted accrual record of one user.
type VestingState struct {
	UserID            string    `json:"user_id"`
	Tier              string    `json:"tier"`
	SharesAccumulated int64     `json:"shares_accumulated"`
	ResidualMs        int64     `json:"residual_ms"`
	LastAccruedAt     time.Time `json:"last_accrued_at"`
	SharesPerHour     int64     `json:"shares_per_hour"`
	CapLimit          int64     `json:"cap_limit"`
}

// Allocation assigns vested shares to one player.
type Allocation struct {
	PlayerID string `json:"player_id"`
	Shares   int64  `json:"shares"`
}

// VestingClaim is the audit row of one redemption.
type VestingClaim struct {
	ID           string       `json:"id"`
	UserID       string       `json:"user_id"`
	TotalShares  int64        `json:"total_shares"`
	Distribution []Allocation `json:"distribution"`
	ClaimedAt    time.Time    `json:"claimed_at"`
}
