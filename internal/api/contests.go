package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fanshares/exchange-core/internal/contest"
)

// EntryRequest is the JSON body for POST /contests/{contestID}/entries.
type EntryRequest struct {
	UserID string         `json:"user_id"`
	Lineup []contest.Slot `json:"lineup"`
}

// CreateContest handles POST /api/v1/contests.
func (s *Server) CreateContest(w http.ResponseWriter, r *http.Request) {
	var req contest.CreateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	c, err := s.contests.Create(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// GetContest handles GET /api/v1/contests/{contestID}.
func (s *Server) GetContest(w http.ResponseWriter, r *http.Request) {
	c, err := s.contests.Get(r.Context(), chi.URLParam(r, "contestID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// EnterContest handles POST /api/v1/contests/{contestID}/entries.
func (s *Server) EnterContest(w http.ResponseWriter, r *http.Request) {
	var req EntryRequest
	if err := decode(r, &req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	e, err := s.contests.Enter(r.Context(), contest.EnterRequest{
		ContestID: chi.URLParam(r, "contestID"),
		UserID:    req.UserID,
		Lineup:    req.Lineup,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// GetLeaderboard handles GET /api/v1/contests/{contestID}/leaderboard.
func (s *Server) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	lb, err := s.contests.Leaderboard(r.Context(), chi.URLParam(r, "contestID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

// SettleContest handles POST /api/v1/contests/{contestID}/settle.
// Settling a completed contest returns 200 with already_settled set.
func (s *Server) SettleContest(w http.ResponseWriter, r *http.Request) {
	res, err := s.contests.Settle(r.Context(), chi.URLParam(r, "contestID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
