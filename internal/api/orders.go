package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fanshares/exchange-core/internal/matching"
	"github.com/fanshares/exchange-core/internal/model"
)

// PlaceOrder handles POST /api/v1/orders.
func (s *Server) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req matching.PlaceOrderRequest
	if err := decode(r, &req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	res, err := s.matching.PlaceOrder(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// GetOrder handles GET /api/v1/orders/{orderID}.
func (s *Server) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.matching.GetOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// CancelOrder handles DELETE /api/v1/orders/{orderID}?user_id=.
func (s *Server) CancelOrder(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}
	res, err := s.matching.CancelOrder(r.Context(), chi.URLParam(r, "orderID"), userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// PreviewMarketOrder handles GET /api/v1/players/{playerID}/preview?side=&quantity=.
func (s *Server) PreviewMarketOrder(w http.ResponseWriter, r *http.Request) {
	qty, err := intParam(r, "quantity", 0)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	side := model.Side(r.URL.Query().Get("side"))
	p, err := s.matching.PreviewMarketOrder(r.Context(), chi.URLParam(r, "playerID"), side, int64(qty))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// GetBook handles GET /api/v1/players/{playerID}/book?levels=.
func (s *Server) GetBook(w http.ResponseWriter, r *http.Request) {
	levels, err := intParam(r, "levels", 0)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.matching.Depth(chi.URLParam(r, "playerID"), levels))
}

// GetTrades handles GET /api/v1/players/{playerID}/trades?limit=.
func (s *Server) GetTrades(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	playerID := chi.URLParam(r, "playerID")
	trades, err := s.matching.RecentTrades(r.Context(), playerID, limit)
	if err != nil {
		s.fail(w, r, fmt.Errorf("trades for %s: %w", playerID, err))
		return
	}
	writeJSON(w, http.StatusOK, trades)
}
