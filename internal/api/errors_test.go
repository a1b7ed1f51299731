package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fanshares/exchange-core/internal/contest"
	"github.com/fanshares/exchange-core/internal/ledger"
	"github.com/fanshares/exchange-core/internal/limits"
	"github.com/fanshares/exchange-core/internal/matching"
	"github.com/fanshares/exchange-core/internal/store"
	"github.com/fanshares/exchange-core/internal/vesting"
)

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{store.ErrNotFound, http.StatusNotFound},
		{matching.ErrInvalidOrder, http.StatusBadRequest},
		{vesting.ErrInvalidClaim, http.StatusBadRequest},
		{vesting.ErrUnknownTier, http.StatusBadRequest},
		{contest.ErrInvalidEntry, http.StatusBadRequest},
		{ledger.ErrInvalidAmount, http.StatusBadRequest},
		{contest.ErrContestClosed, http.StatusConflict},
		{ledger.ErrInsufficientBalance, http.StatusUnprocessableEntity},
		{ledger.ErrInsufficientShares, http.StatusUnprocessableEntity},
		{vesting.ErrOverAllocation, http.StatusUnprocessableEntity},
		{limits.ErrPerPlayerLimitExceeded, http.StatusUnprocessableEntity},
		{limits.ErrTeamLimitExceeded, http.StatusUnprocessableEntity},
		{contest.ErrDataInconsistency, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, errorStatus(tt.err))
			assert.Equal(t, tt.want, errorStatus(fmt.Errorf("wrapped: %w", tt.err)))
		})
	}
}

func TestParseKinds(t *testing.T) {
	assert.Nil(t, parseKinds(""))
	k := parseKinds("trade_executed, order_placed,,")
	assert.Len(t, k, 2)
	assert.True(t, k["order_placed"])
}
