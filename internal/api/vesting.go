package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fanshares/exchange-core/internal/ledger"
	"github.com/fanshares/exchange-core/internal/model"
)

// ClaimRequest is the JSON body for POST /vesting/{userID}/claim.
type ClaimRequest struct {
	Distribution []model.Allocation `json:"distribution"`
}

// TierRequest is the JSON body for PUT /vesting/{userID}/tier.
type TierRequest struct {
	Tier string `json:"tier"`
}

// GetVesting handles GET /api/v1/vesting/{userID}.
func (s *Server) GetVesting(w http.ResponseWriter, r *http.Request) {
	p, err := s.vesting.Projection(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ClaimVesting handles POST /api/v1/vesting/{userID}/claim.
func (s *Server) ClaimVesting(w http.ResponseWriter, r *http.Request) {
	var req ClaimRequest
	if err := decode(r, &req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	res, err := s.vesting.Claim(r.Context(), chi.URLParam(r, "userID"), req.Distribution)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SetVestingTier handles PUT /api/v1/vesting/{userID}/tier.
func (s *Server) SetVestingTier(w http.ResponseWriter, r *http.Request) {
	var req TierRequest
	if err := decode(r, &req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	p, err := s.vesting.SetTier(r.Context(), chi.URLParam(r, "userID"), req.Tier)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ListVestingClaims handles GET /api/v1/vesting/{userID}/claims.
func (s *Server) ListVestingClaims(w http.ResponseWriter, r *http.Request) {
	claims, err := s.vesting.Claims(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, claims)
}

// GetPortfolio handles GET /api/v1/portfolio/{userID}.
// Returns cash, reservations and every holding.
func (s *Server) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	p, err := ledger.Portfolio(r.Context(), s.store, chi.URLParam(r, "userID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
