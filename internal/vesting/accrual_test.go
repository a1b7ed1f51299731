package vesting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/fanshares/exchange-core/internal/model"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func state(rate, limit int64) model.VestingState {
	return model.VestingState{UserID: "u1", LastAccruedAt: t0, SharesPerHour: rate, CapLimit: limit}
}

func TestProject(t *testing.T) {
	tests := []struct {
		name    string
		s       model.VestingState
		elapsed time.Duration
		want    int64
	}{
		{"nothing elapsed", state(10, 100), 0, 0},
		{"just short of a share", state(10, 100), 6*time.Minute - time.Millisecond, 0},
		{"exactly one share", state(10, 100), 6 * time.Minute, 1},
		{"one hour", state(10, 100), time.Hour, 10},
		{"capped", state(10, 100), 48 * time.Hour, 100},
		{"residual counts", model.VestingState{LastAccruedAt: t0, SharesPerHour: 10, CapLimit: 100, ResidualMs: 300_000}, time.Minute, 1},
		{"accumulated plus elapsed", model.VestingState{LastAccruedAt: t0, SharesPerHour: 60, CapLimit: 100, SharesAccumulated: 7}, 3 * time.Minute, 10},
		{"clock behind", state(10, 100), -time.Hour, 0},
		{"above cap is kept", model.VestingState{LastAccruedAt: t0, SharesPerHour: 10, CapLimit: 5, SharesAccumulated: 8}, time.Hour, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Project(tt.s, t0.Add(tt.elapsed)))
		})
	}
}

func TestAccrue_KeepsResidual(t *testing.T) {
	s := Accrue(state(10, 100), t0.Add(13*time.Minute+500*time.Millisecond))
	assert.Equal(t, int64(2), s.SharesAccumulated)
	assert.Equal(t, int64(60_500), s.ResidualMs)
	assert.Equal(t, t0.Add(13*time.Minute+500*time.Millisecond), s.LastAccruedAt)
}

func TestAccrue_CapDropsResidual(t *testing.T) {
	s := Accrue(state(10, 3), t0.Add(25*time.Minute))
	assert.Equal(t, int64(3), s.SharesAccumulated)
	assert.Equal(t, int64(0), s.ResidualMs)

	// Claiming below the cap restarts accrual from the claim instant.
	s.SharesAccumulated = 1
	assert.Equal(t, int64(1), Project(s, t0.Add(30*time.Minute)))
	assert.Equal(t, int64(2), Project(s, t0.Add(31*time.Minute)))
}

func TestNextShareIn(t *testing.T) {
	assert.Equal(t, 4*time.Minute, NextShareIn(state(10, 100), t0.Add(2*time.Minute)))
	assert.Equal(t, time.Duration(0), NextShareIn(state(10, 1), t0.Add(time.Hour)))
}

func TestRescaleResidual(t *testing.T) {
	// Halfway to a share at 10/h stays halfway at 20/h.
	assert.Equal(t, int64(90_000), rescaleResidual(180_000, 10, 20))
	assert.Equal(t, int64(0), rescaleResidual(180_000, 10, 0))
}

func TestTierValidate(t *testing.T) {
	assert.NoError(t, Tier{Name: "free", SharesPerHour: 10, CapLimit: 100}.Validate())
	assert.Error(t, Tier{Name: "odd", SharesPerHour: 7, CapLimit: 100}.Validate())
	assert.Error(t, Tier{Name: "zero", SharesPerHour: 0, CapLimit: 100}.Validate())
	assert.Error(t, Tier{Name: "nocap", SharesPerHour: 10}.Validate())
	assert.Error(t, Tier{SharesPerHour: 10, CapLimit: 100}.Validate())
}

var rates = []int64{1, 2, 3, 4, 5, 6, 8, 10, 12, 15, 20, 24, 30, 60, 120, 3600}

func TestProject_MonotonicAndCapped(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := model.VestingState{
			LastAccruedAt:     t0,
			SharesPerHour:     rapid.SampledFrom(rates).Draw(t, "rate"),
			CapLimit:          rapid.Int64Range(1, 500).Draw(t, "cap"),
			SharesAccumulated: rapid.Int64Range(0, 50).Draw(t, "acc"),
		}
		s.ResidualMs = rapid.Int64Range(0, MsPerHour/s.SharesPerHour-1).Draw(t, "residual")
		a := rapid.Int64Range(0, 100*MsPerHour).Draw(t, "a")
		b := rapid.Int64Range(0, 100*MsPerHour).Draw(t, "b")
		if a > b {
			a, b = b, a
		}

		pa := Project(s, t0.Add(time.Duration(a)*time.Millisecond))
		pb := Project(s, t0.Add(time.Duration(b)*time.Millisecond))
		if pa > pb {
			t.Fatalf("projection decreased: %d at %dms, %d at %dms", pa, a, pb, b)
		}
		if limit := max(s.CapLimit, s.SharesAccumulated); pb > limit {
			t.Fatalf("projection %d above cap %d", pb, limit)
		}
	})
}

func TestAccrue_ZeroClaimIsLossless(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := model.VestingState{
			LastAccruedAt: t0,
			SharesPerHour: rapid.SampledFrom(rates).Draw(t, "rate"),
			CapLimit:      rapid.Int64Range(1, 1000).Draw(t, "cap"),
		}
		first := rapid.Int64Range(0, 10*MsPerHour).Draw(t, "first")
		second := rapid.Int64Range(0, 10*MsPerHour).Draw(t, "second")
		t1 := t0.Add(time.Duration(first) * time.Millisecond)
		t2 := t1.Add(time.Duration(second) * time.Millisecond)

		checkpoint := Accrue(s, t1)
		if got, want := Project(checkpoint, t2), Project(s, t2); got != want {
			t.Fatalf("checkpoint at %dms lost accrual: %d, want %d", first, got, want)
		}
	})
}
