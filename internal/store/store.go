// Package store defines the persistence interface for the exchange core.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing and development).
//
// Every economic mutation goes through InTx: the callback's writes commit
// together or not at all.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fanshares/exchange-core/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// Reader is the read side shared by the store and its transactions.
// Reads made through a Tx lock the returned rows until commit where the
// backend supports it.
type Reader interface {
	// --- Cash and holdings ---

	// GetAccount returns ErrNotFound for users that never held cash.
	GetAccount(ctx context.Context, userID string) (*model.Account, error)

	// GetHolding returns ErrNotFound when the user never held the asset.
	GetHolding(ctx context.Context, userID, assetID string) (*model.Holding, error)

	// ListHoldings returns the user's holdings ordered by asset ID.
	ListHoldings(ctx context.Context, userID string) ([]model.Holding, error)

	// ListJournal returns the user's balance movements, oldest first.
	ListJournal(ctx context.Context, userID string) ([]model.JournalEntry, error)

	// --- Orders and trades ---

	GetOrder(ctx context.Context, id string) (*model.Order, error)

	// ListRestingOrders returns open and partially filled limit orders in
	// seq order. Used to rebuild books at startup.
	ListRestingOrders(ctx context.Context) ([]model.Order, error)

	// MaxOrderSeq returns the highest seq ever assigned, or 0.
	MaxOrderSeq(ctx context.Context) (int64, error)

	// ListTradesByPlayer returns the newest trades first.
	ListTradesByPlayer(ctx context.Context, playerID string, limit int) ([]model.Trade, error)

	// --- Catalog and feed ---

	GetPlayer(ctx context.Context, id string) (*model.Player, error)
	ListGamesByDate(ctx context.Context, date time.Time) ([]model.Game, error)

	// SumFantasyPoints adds the player's points across the given games.
	// Games the player did not appear in contribute zero.
	SumFantasyPoints(ctx context.Context, playerID string, gameIDs []string) (decimal.Decimal, error)

	// --- Vesting ---

	GetVestingState(ctx context.Context, userID string) (*model.VestingState, error)
	ListVestingClaims(ctx context.Context, userID string) ([]model.VestingClaim, error)

	// --- Contests ---

	GetContest(ctx context.Context, id string) (*model.Contest, error)

	// ListContestsByStatus returns contests ordered by EndsAt.
	ListContestsByStatus(ctx context.Context, status model.ContestStatus) ([]model.Contest, error)

	// ListEntries returns entries ordered by CreatedAt, then ID.
	ListEntries(ctx context.Context, contestID string) ([]model.ContestEntry, error)

	// ListLineups returns every lineup row of the contest ordered by ID.
	ListLineups(ctx context.Context, contestID string) ([]model.ContestLineup, error)
}

// Writer holds the mutations. It is only reachable through a Tx.
type Writer interface {
	// LockAccount returns the user's account locked until commit. A missing
	// row is created at zero first, so two transactions that both start
	// from "no account" queue on the same row lock instead of racing.
	LockAccount(ctx context.Context, userID string) (*model.Account, error)

	// LockHolding is LockAccount for a holding row.
	LockHolding(ctx context.Context, userID, assetID string, assetType model.AssetType) (*model.Holding, error)

	PutAccount(ctx context.Context, a *model.Account) error
	PutHolding(ctx context.Context, h *model.Holding) error
	InsertJournal(ctx context.Context, e *model.JournalEntry) error

	InsertOrder(ctx context.Context, o *model.Order) error
	// UpdateOrder persists FilledQuantity, Status and UpdatedAt.
	UpdateOrder(ctx context.Context, o *model.Order) error
	InsertTrade(ctx context.Context, t *model.Trade) error

	PutPlayer(ctx context.Context, p *model.Player) error
	// UpdatePlayerPrices records the last trade price, which also becomes
	// the player's current price.
	UpdatePlayerPrices(ctx context.Context, playerID string, lastTrade decimal.Decimal) error
	PutGame(ctx context.Context, g *model.Game) error
	PutPlayerGameStat(ctx context.Context, s *model.PlayerGameStat) error

	PutVestingState(ctx context.Context, v *model.VestingState) error
	InsertVestingClaim(ctx context.Context, c *model.VestingClaim) error

	InsertContest(ctx context.Context, c *model.Contest) error
	// UpdateContest persists Status, EntryCount and SettledAt.
	UpdateContest(ctx context.Context, c *model.Contest) error
	InsertEntry(ctx context.Context, e *model.ContestEntry) error
	// UpdateEntry persists TotalScore, Rank and Payout.
	UpdateEntry(ctx context.Context, e *model.ContestEntry) error
	InsertLineup(ctx context.Context, l *model.ContestLineup) error
	// UpdateLineup persists FantasyPoints and EarnedScore.
	UpdateLineup(ctx context.Context, l *model.ContestLineup) error
}

// Tx is one unit of work.
type Tx interface {
	Reader
	Writer
}

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	Reader

	// InTx runs fn in a transaction. A non-nil error from fn rolls back
	// every write fn made and is returned unchanged.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
}
