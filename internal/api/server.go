// Package api exposes the exchange core over HTTP and WebSocket.
//
// Handlers decode JSON, call one service operation and encode its result.
// All monetary values travel as decimal strings.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/fanshares/exchange-core/internal/catalog"
	"github.com/fanshares/exchange-core/internal/contest"
	"github.com/fanshares/exchange-core/internal/ledger"
	"github.com/fanshares/exchange-core/internal/limits"
	"github.com/fanshares/exchange-core/internal/matching"
	"github.com/fanshares/exchange-core/internal/metrics"
	"github.com/fanshares/exchange-core/internal/store"
	"github.com/fanshares/exchange-core/internal/vesting"
)

// Deps wires the services behind the handlers. Hub may be nil, in which
// case /api/v1/ws is not mounted.
type Deps struct {
	Store    store.Store
	Ledger   *ledger.Ledger
	Matching *matching.Engine
	Vesting  *vesting.Engine
	Contests *contest.Service
	Hub      *WSHub
	Logger   *zap.Logger

	// Invalidate drops a cached catalog entry after an admin write.
	Invalidate func(playerID string)
}

// Server holds the HTTP handlers.
type Server struct {
	store      store.Store
	ledger     *ledger.Ledger
	matching   *matching.Engine
	vesting    *vesting.Engine
	contests   *contest.Service
	hub        *WSHub
	logger     *zap.Logger
	invalidate func(string)
}

func New(d Deps) *Server {
	s := &Server{
		store:      d.Store,
		ledger:     d.Ledger,
		matching:   d.Matching,
		vesting:    d.Vesting,
		contests:   d.Contests,
		hub:        d.Hub,
		logger:     d.Logger,
		invalidate: d.Invalidate,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.invalidate == nil {
		s.invalidate = func(string) {}
	}
	return s
}

// RouterOptions tunes the middleware stack.
type RouterOptions struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// Routes builds the chi router with every endpoint mounted.
func (s *Server) Routes(opts RouterOptions) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	}).Handler)

	r.Get("/health", s.Health)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// The WebSocket route stays outside the request timeout.
		if s.hub != nil {
			r.Get("/ws", s.hub.HandleWS)
		}

		r.Group(func(r chi.Router) {
			if opts.RequestTimeout > 0 {
				r.Use(middleware.Timeout(opts.RequestTimeout))
			}

			r.Post("/orders", s.PlaceOrder)
			r.Get("/orders/{orderID}", s.GetOrder)
			r.Delete("/orders/{orderID}", s.CancelOrder)

			r.Get("/players/{playerID}/preview", s.PreviewMarketOrder)
			r.Get("/players/{playerID}/book", s.GetBook)
			r.Get("/players/{playerID}/trades", s.GetTrades)

			r.Get("/vesting/{userID}", s.GetVesting)
			r.Post("/vesting/{userID}/claim", s.ClaimVesting)
			r.Put("/vesting/{userID}/tier", s.SetVestingTier)
			r.Get("/vesting/{userID}/claims", s.ListVestingClaims)

			r.Get("/portfolio/{userID}", s.GetPortfolio)

			r.Post("/contests", s.CreateContest)
			r.Get("/contests/{contestID}", s.GetContest)
			r.Post("/contests/{contestID}/entries", s.EnterContest)
			r.Get("/contests/{contestID}/leaderboard", s.GetLeaderboard)
			r.Post("/contests/{contestID}/settle", s.SettleContest)

			r.Route("/admin", func(r chi.Router) {
				r.Post("/deposits", s.Deposit)
				r.Put("/players/{playerID}", s.PutPlayer)
				r.Put("/games/{gameID}", s.PutGame)
			})
		})
	})
	return r
}

// Health handles GET /health.
func (s *Server) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// --- Codec helpers ---

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// fail maps a service error to its HTTP status. Unclassified errors are
// logged and reported without detail.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		writeError(w, "internal error", status)
		return
	}
	writeError(w, err.Error(), status)
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, catalog.ErrUnknownPlayer):
		return http.StatusNotFound
	case errors.Is(err, matching.ErrInvalidOrder),
		errors.Is(err, vesting.ErrInvalidClaim),
		errors.Is(err, vesting.ErrUnknownTier),
		errors.Is(err, contest.ErrInvalidEntry),
		errors.Is(err, ledger.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, contest.ErrContestClosed):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrInsufficientShares),
		errors.Is(err, vesting.ErrOverAllocation),
		errors.Is(err, limits.ErrPerPlayerLimitExceeded),
		errors.Is(err, limits.ErrTeamLimitExceeded):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// intParam reads an optional integer query parameter.
func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(name + " must be an integer")
	}
	return n, nil
}
