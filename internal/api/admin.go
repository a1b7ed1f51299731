package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fanshares/exchange-core/internal/ledger"
	"github.com/fanshares/exchange-core/internal/model"
	"github.com/fanshares/exchange-core/internal/store"
)

// DepositRequest is the JSON body for POST /admin/deposits.
type DepositRequest struct {
	UserID string          `json:"user_id"`
	Amount decimal.Decimal `json:"amount"`
	RefID  string          `json:"ref_id"`
}

// PlayerRequest is the JSON body for PUT /admin/players/{playerID}.
type PlayerRequest struct {
	Name         string          `json:"name"`
	TeamID       string          `json:"team_id"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	IsActive     bool            `json:"is_active"`
}

// GameRequest is the JSON body for PUT /admin/games/{gameID}. Stats are
// already-normalized fantasy points per player.
type GameRequest struct {
	GameDate time.Time              `json:"game_date"`
	Status   string                 `json:"status"`
	Stats    []model.PlayerGameStat `json:"stats"`
}

// Deposit handles POST /api/v1/admin/deposits.
func (s *Server) Deposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if err := decode(r, &req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}
	if req.RefID == "" {
		req.RefID = uuid.NewString()
	}

	ctx := r.Context()
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		return s.ledger.Deposit(ctx, tx, req.UserID, req.Amount, req.RefID)
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info("cash deposited",
		zap.String("user_id", req.UserID),
		zap.String("amount", req.Amount.String()),
		zap.String("ref_id", req.RefID))
	p, err := ledger.Portfolio(ctx, s.store, req.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// PutPlayer handles PUT /api/v1/admin/players/{playerID}.
func (s *Server) PutPlayer(w http.ResponseWriter, r *http.Request) {
	var req PlayerRequest
	if err := decode(r, &req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	playerID := chi.URLParam(r, "playerID")
	if req.Name == "" || req.TeamID == "" {
		writeError(w, "name and team_id are required", http.StatusBadRequest)
		return
	}
	if req.CurrentPrice.IsNegative() {
		writeError(w, "current_price must not be negative", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	var p model.Player
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		p = model.Player{
			ID:           playerID,
			Name:         req.Name,
			TeamID:       req.TeamID,
			CurrentPrice: req.CurrentPrice,
			IsActive:     req.IsActive,
		}
		// Keep the last trade price across catalog updates.
		if prev, err := tx.GetPlayer(ctx, playerID); err == nil {
			p.LastTradePrice = prev.LastTradePrice
		}
		return tx.PutPlayer(ctx, &p)
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.invalidate(playerID)
	writeJSON(w, http.StatusOK, p)
}

// PutGame handles PUT /api/v1/admin/games/{gameID}.
func (s *Server) PutGame(w http.ResponseWriter, r *http.Request) {
	var req GameRequest
	if err := decode(r, &req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.GameDate.IsZero() {
		writeError(w, "game_date is required", http.StatusBadRequest)
		return
	}
	for _, st := range req.Stats {
		if st.PlayerID == "" {
			writeError(w, "stats require player_id", http.StatusBadRequest)
			return
		}
	}

	ctx := r.Context()
	g := model.Game{
		ID:       chi.URLParam(r, "gameID"),
		GameDate: model.DateOnly(req.GameDate),
		Status:   req.Status,
	}
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		if err := tx.PutGame(ctx, &g); err != nil {
			return err
		}
		for _, st := range req.Stats {
			st.GameID = g.ID
			if err := tx.PutPlayerGameStat(ctx, &st); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}
