// Package vesting turns idle time into claimable pooled shares.
//
// A user accrues one share every 3,600,000 / sharesPerHour milliseconds up
// to a cap. Rates must divide an hour into a whole number of milliseconds,
// so the time not yet converted into a share (the residual) is an exact
// integer and carries over between computations without loss.
package vesting

import (
	"time"

	"github.com/fanshares/exchange-core/internal/model"
)

// MsPerHour is the accrual time unit.
const MsPerHour int64 = 3_600_000

// intervalMs is the time one share takes to accrue, or 0 when the rate
// does not accrue.
func intervalMs(sharesPerHour int64) int64 {
	if sharesPerHour <= 0 || MsPerHour%sharesPerHour != 0 {
		return 0
	}
	return MsPerHour / sharesPerHour
}

// Accrue folds the time elapsed since LastAccruedAt into
// SharesAccumulated and returns the new state. The remainder below one
// share stays in ResidualMs. Once the cap is reached the residual is
// dropped: time spent at the cap does not accrue.
//
// Shares above the cap (left over from a tier downgrade) are kept.
// A now earlier than LastAccruedAt accrues nothing.
func Accrue(s model.VestingState, now time.Time) model.VestingState {
	elapsed := now.Sub(s.LastAccruedAt).Milliseconds()
	if elapsed < 0 {
		elapsed = 0
	}
	s.LastAccruedAt = s.LastAccruedAt.Add(time.Duration(elapsed) * time.Millisecond)

	if s.SharesAccumulated >= s.CapLimit {
		s.ResidualMs = 0
		return s
	}
	interval := intervalMs(s.SharesPerHour)
	if interval == 0 {
		return s
	}

	total := s.ResidualMs + elapsed
	s.SharesAccumulated += total / interval
	s.ResidualMs = total % interval
	if s.SharesAccumulated >= s.CapLimit {
		s.SharesAccumulated = s.CapLimit
		s.ResidualMs = 0
	}
	return s
}

// Project returns the shares claimable at now without changing s:
// min(cap, accumulated + floor((residual + elapsed) × rate / 1h)).
func Project(s model.VestingState, now time.Time) int64 {
	return Accrue(s, now).SharesAccumulated
}

// NextShareIn is how long until the next share accrues, or 0 when the
// state is capped or does not accrue.
func NextShareIn(s model.VestingState, now time.Time) time.Duration {
	a := Accrue(s, now)
	interval := intervalMs(a.SharesPerHour)
	if interval == 0 || a.SharesAccumulated >= a.CapLimit {
		return 0
	}
	return time.Duration(interval-a.ResidualMs) * time.Millisecond
}

// rescaleResidual converts progress toward the next share from one rate
// to another, keeping the completed fraction of a share.
func rescaleResidual(residual, fromRate, toRate int64) int64 {
	from, to := intervalMs(fromRate), intervalMs(toRate)
	if from == 0 || to == 0 {
		return 0
	}
	return residual * to / from
}
