package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/shopspring/decimal"

	"github.com/fanshares/exchange-core/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
// Rows read inside a transaction are locked with FOR UPDATE, which is what
// serializes concurrent fills touching the same account.
type PostgresStore struct {
	db *sql.DB
	pgReader
}

// PoolConfig sizes the connection pool.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// OpenPostgres connects through the pgx driver and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string, pool PoolConfig) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return NewPostgresStore(db), nil
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, pgReader: pgReader{q: db}}
}

// Migrate applies the embedded schema. Statements are idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// InTx runs fn inside a READ COMMITTED transaction with row locks.
func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&pgTx{pgReader{q: sqlTx, forUpdate: " FOR UPDATE"}}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error { return s.db.Close() }

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type pgReader struct {
	q         querier
	forUpdate string // " FOR UPDATE" inside transactions
}

// rowScanner reads one row from *sql.Row or *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// --- Cash and holdings ---

func (r pgReader) GetAccount(ctx context.Context, userID string) (*model.Account, error) {
	var a model.Account
	err := r.q.QueryRowContext(ctx,
		`SELECT user_id, cash_balance, reserved_cash, updated_at
		 FROM accounts WHERE user_id = $1`+r.forUpdate, userID).
		Scan(&a.UserID, &a.CashBalance, &a.ReservedCash, &a.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "get account "+userID)
	}
	return &a, nil
}

const holdingColumns = `user_id, asset_id, asset_type, quantity, locked_quantity, avg_cost_basis, updated_at`

func scanHolding(row rowScanner) (model.Holding, error) {
	var h model.Holding
	err := row.Scan(&h.UserID, &h.AssetID, &h.AssetType, &h.Quantity, &h.LockedQuantity, &h.AvgCostBasis, &h.UpdatedAt)
	return h, err
}

func (r pgReader) GetHolding(ctx context.Context, userID, assetID string) (*model.Holding, error) {
	h, err := scanHolding(r.q.QueryRowContext(ctx,
		`SELECT `+holdingColumns+` FROM holdings WHERE user_id = $1 AND asset_id = $2`+r.forUpdate,
		userID, assetID))
	if err != nil {
		return nil, notFound(err, "get holding "+userID+"/"+assetID)
	}
	return &h, nil
}

func (r pgReader) ListHoldings(ctx context.Context, userID string) ([]model.Holding, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+holdingColumns+` FROM holdings WHERE user_id = $1 ORDER BY asset_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list holdings: %w", err)
	}
	defer rows.Close()

	var out []model.Holding
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r pgReader) ListJournal(ctx context.Context, userID string) ([]model.JournalEntry, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, user_id, asset_id, kind, reason, delta, ref_id, created_at
		 FROM journal_entries WHERE user_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}
	defer rows.Close()

	var out []model.JournalEntry
	for rows.Next() {
		var e model.JournalEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.AssetID, &e.Kind, &e.Reason, &e.Delta, &e.RefID, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- Orders and trades ---

const orderColumns = `id, user_id, player_id, side, type, quantity, limit_price,
	filled_quantity, status, seq, created_at, updated_at`

func scanOrder(row rowScanner) (model.Order, error) {
	var o model.Order
	err := row.Scan(&o.ID, &o.UserID, &o.PlayerID, &o.Side, &o.Type, &o.Quantity, &o.LimitPrice,
		&o.FilledQuantity, &o.Status, &o.Seq, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func (r pgReader) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	o, err := scanOrder(r.q.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`+r.forUpdate, id))
	if err != nil {
		return nil, notFound(err, "get order "+id)
	}
	return &o, nil
}

func (r pgReader) ListRestingOrders(ctx context.Context) ([]model.Order, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE type = 'limit' AND status IN ('open', 'partially_filled')
		 ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list resting orders: %w", err)
	}
	defer rows.Close()

	var out []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r pgReader) MaxOrderSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := r.q.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM orders`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("max order seq: %w", err)
	}
	return seq, nil
}

func (r pgReader) ListTradesByPlayer(ctx context.Context, playerID string, limit int) ([]model.Trade, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, player_id, buy_order_id, sell_order_id, buyer_id, seller_id,
		        price, quantity, aggressor_side, executed_at
		 FROM trades WHERE player_id = $1
		 ORDER BY executed_at DESC, id DESC LIMIT $2`, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	defer rows.Close()

	var out []model.Trade
	for rows.Next() {
		var t model.Trade
		if err := rows.Scan(&t.ID, &t.PlayerID, &t.BuyOrderID, &t.SellOrderID, &t.BuyerID, &t.SellerID,
			&t.Price, &t.Quantity, &t.AggressorSide, &t.ExecutedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// --- Catalog and feed ---

func (r pgReader) GetPlayer(ctx context.Context, id string) (*model.Player, error) {
	var p model.Player
	err := r.q.QueryRowContext(ctx,
		`SELECT id, name, team_id, current_price, last_trade_price, is_active
		 FROM players WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.TeamID, &p.CurrentPrice, &p.LastTradePrice, &p.IsActive)
	if err != nil {
		return nil, notFound(err, "get player "+id)
	}
	return &p, nil
}

func (r pgReader) ListGamesByDate(ctx context.Context, date time.Time) ([]model.Game, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, game_date, status FROM games WHERE game_date = $1::date ORDER BY id`,
		model.DateOnly(date))
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	defer rows.Close()

	var out []model.Game
	for rows.Next() {
		var g model.Game
		if err := rows.Scan(&g.ID, &g.GameDate, &g.Status); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r pgReader) SumFantasyPoints(ctx context.Context, playerID string, gameIDs []string) (decimal.Decimal, error) {
	if len(gameIDs) == 0 {
		return decimal.Zero, nil
	}
	var total decimal.Decimal
	err := r.q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(fantasy_points), 0)
		 FROM player_game_stats WHERE player_id = $1 AND game_id = ANY($2)`,
		playerID, gameIDs).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum fantasy points %s: %w", playerID, err)
	}
	return total, nil
}

// --- Vesting ---

func (r pgReader) GetVestingState(ctx context.Context, userID string) (*model.VestingState, error) {
	var v model.VestingState
	err := r.q.QueryRowContext(ctx,
		`SELECT user_id, tier, shares_accumulated, residual_ms, last_accrued_at, shares_per_hour, cap_limit
		 FROM vesting_states WHERE user_id = $1`+r.forUpdate, userID).
		Scan(&v.UserID, &v.Tier, &v.SharesAccumulated, &v.ResidualMs, &v.LastAccruedAt, &v.SharesPerHour, &v.CapLimit)
	if err != nil {
		return nil, notFound(err, "get vesting state "+userID)
	}
	return &v, nil
}

func (r pgReader) ListVestingClaims(ctx context.Context, userID string) ([]model.VestingClaim, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, user_id, total_shares, distribution, claimed_at
		 FROM vesting_claims WHERE user_id = $1 ORDER BY claimed_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list vesting claims: %w", err)
	}
	defer rows.Close()

	var out []model.VestingClaim
	for rows.Next() {
		var c model.VestingClaim
		var dist []byte
		if err := rows.Scan(&c.ID, &c.UserID, &c.TotalShares, &dist, &c.ClaimedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(dist, &c.Distribution); err != nil {
			return nil, fmt.Errorf("decode claim %s distribution: %w", c.ID, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- Contests ---

const contestColumns = `id, name, game_date, status, total_prize_pool, entry_count,
	starts_at, ends_at, settled_at, created_at`

func scanContest(row rowScanner) (model.Contest, error) {
	var c model.Contest
	var settled sql.NullTime
	err := row.Scan(&c.ID, &c.Name, &c.GameDate, &c.Status, &c.TotalPrizePool, &c.EntryCount,
		&c.StartsAt, &c.EndsAt, &settled, &c.CreatedAt)
	if settled.Valid {
		t := settled.Time
		c.SettledAt = &t
	}
	return c, err
}

func (r pgReader) GetContest(ctx context.Context, id string) (*model.Contest, error) {
	c, err := scanContest(r.q.QueryRowContext(ctx,
		`SELECT `+contestColumns+` FROM contests WHERE id = $1`+r.forUpdate, id))
	if err != nil {
		return nil, notFound(err, "get contest "+id)
	}
	return &c, nil
}

func (r pgReader) ListContestsByStatus(ctx context.Context, status model.ContestStatus) ([]model.Contest, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+contestColumns+` FROM contests WHERE status = $1 ORDER BY ends_at, id`, status)
	if err != nil {
		return nil, fmt.Errorf("list contests: %w", err)
	}
	defer rows.Close()

	var out []model.Contest
	for rows.Next() {
		c, err := scanContest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r pgReader) ListEntries(ctx context.Context, contestID string) ([]model.ContestEntry, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, contest_id, user_id, total_shares_entered, total_score, rank, payout, created_at
		 FROM contest_entries WHERE contest_id = $1 ORDER BY created_at, id`, contestID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var out []model.ContestEntry
	for rows.Next() {
		var e model.ContestEntry
		if err := rows.Scan(&e.ID, &e.ContestID, &e.UserID, &e.TotalSharesEntered,
			&e.TotalScore, &e.Rank, &e.Payout, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r pgReader) ListLineups(ctx context.Context, contestID string) ([]model.ContestLineup, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, entry_id, contest_id, player_id, shares_entered, fantasy_points, earned_score
		 FROM contest_lineups WHERE contest_id = $1 ORDER BY id`, contestID)
	if err != nil {
		return nil, fmt.Errorf("list lineups: %w", err)
	}
	defer rows.Close()

	var out []model.ContestLineup
	for rows.Next() {
		var l model.ContestLineup
		if err := rows.Scan(&l.ID, &l.EntryID, &l.ContestID, &l.PlayerID, &l.SharesEntered,
			&l.FantasyPoints, &l.EarnedScore); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// pgTx adds the write side on top of a locked reader.
type pgTx struct {
	pgReader
}

func (t *pgTx) exec(ctx context.Context, what, query string, args ...any) error {
	if _, err := t.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}

// execOne is exec for updates that must hit exactly one row.
func (t *pgTx) execOne(ctx context.Context, what, query string, args ...any) error {
	res, err := t.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

// LockAccount inserts a zero row if none exists and then locks it. Under
// READ COMMITTED a bare SELECT ... FOR UPDATE on a missing row locks
// nothing, and the following upsert would overwrite a concurrent credit.
func (t *pgTx) LockAccount(ctx context.Context, userID string) (*model.Account, error) {
	if err := t.exec(ctx, "ensure account "+userID,
		`INSERT INTO accounts (user_id, cash_balance, reserved_cash, updated_at)
		 VALUES ($1, 0, 0, now())
		 ON CONFLICT (user_id) DO NOTHING`, userID); err != nil {
		return nil, err
	}
	return t.GetAccount(ctx, userID)
}

func (t *pgTx) LockHolding(ctx context.Context, userID, assetID string, assetType model.AssetType) (*model.Holding, error) {
	if err := t.exec(ctx, "ensure holding "+userID+"/"+assetID,
		`INSERT INTO holdings (user_id, asset_id, asset_type, quantity, locked_quantity, avg_cost_basis, updated_at)
		 VALUES ($1, $2, $3, 0, 0, 0, now())
		 ON CONFLICT (user_id, asset_id) DO NOTHING`, userID, assetID, assetType); err != nil {
		return nil, err
	}
	return t.GetHolding(ctx, userID, assetID)
}

func (t *pgTx) PutAccount(ctx context.Context, a *model.Account) error {
	return t.exec(ctx, "put account",
		`INSERT INTO accounts (user_id, cash_balance, reserved_cash, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id) DO UPDATE
		 SET cash_balance = EXCLUDED.cash_balance,
		     reserved_cash = EXCLUDED.reserved_cash,
		     updated_at = EXCLUDED.updated_at`,
		a.UserID, a.CashBalance, a.ReservedCash, a.UpdatedAt)
}

func (t *pgTx) PutHolding(ctx context.Context, h *model.Holding) error {
	return t.exec(ctx, "put holding",
		`INSERT INTO holdings (user_id, asset_id, asset_type, quantity, locked_quantity, avg_cost_basis, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (user_id, asset_id) DO UPDATE
		 SET quantity = EXCLUDED.quantity,
		     locked_quantity = EXCLUDED.locked_quantity,
		     avg_cost_basis = EXCLUDED.avg_cost_basis,
		     updated_at = EXCLUDED.updated_at`,
		h.UserID, h.AssetID, h.AssetType, h.Quantity, h.LockedQuantity, h.AvgCostBasis, h.UpdatedAt)
}

func (t *pgTx) InsertJournal(ctx context.Context, e *model.JournalEntry) error {
	return t.exec(ctx, "insert journal entry",
		`INSERT INTO journal_entries (id, user_id, asset_id, kind, reason, delta, ref_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.UserID, e.AssetID, e.Kind, e.Reason, e.Delta, e.RefID, e.CreatedAt)
}

func (t *pgTx) InsertOrder(ctx context.Context, o *model.Order) error {
	return t.exec(ctx, "insert order",
		`INSERT INTO orders (`+orderColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		o.ID, o.UserID, o.PlayerID, o.Side, o.Type, o.Quantity, o.LimitPrice,
		o.FilledQuantity, o.Status, o.Seq, o.CreatedAt, o.UpdatedAt)
}

func (t *pgTx) UpdateOrder(ctx context.Context, o *model.Order) error {
	return t.execOne(ctx, "update order "+o.ID,
		`UPDATE orders SET filled_quantity = $2, status = $3, updated_at = $4 WHERE id = $1`,
		o.ID, o.FilledQuantity, o.Status, o.UpdatedAt)
}

func (t *pgTx) InsertTrade(ctx context.Context, tr *model.Trade) error {
	return t.exec(ctx, "insert trade",
		`INSERT INTO trades (id, player_id, buy_order_id, sell_order_id, buyer_id, seller_id,
		                     price, quantity, aggressor_side, executed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		tr.ID, tr.PlayerID, tr.BuyOrderID, tr.SellOrderID, tr.BuyerID, tr.SellerID,
		tr.Price, tr.Quantity, tr.AggressorSide, tr.ExecutedAt)
}

func (t *pgTx) PutPlayer(ctx context.Context, p *model.Player) error {
	return t.exec(ctx, "put player",
		`INSERT INTO players (id, name, team_id, current_price, last_trade_price, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE
		 SET name = EXCLUDED.name, team_id = EXCLUDED.team_id,
		     current_price = EXCLUDED.current_price,
		     last_trade_price = EXCLUDED.last_trade_price,
		     is_active = EXCLUDED.is_active`,
		p.ID, p.Name, p.TeamID, p.CurrentPrice, p.LastTradePrice, p.IsActive)
}

func (t *pgTx) UpdatePlayerPrices(ctx context.Context, playerID string, lastTrade decimal.Decimal) error {
	return t.execOne(ctx, "update player prices "+playerID,
		`UPDATE players SET last_trade_price = $2, current_price = $2 WHERE id = $1`,
		playerID, lastTrade)
}

func (t *pgTx) PutGame(ctx context.Context, g *model.Game) error {
	return t.exec(ctx, "put game",
		`INSERT INTO games (id, game_date, status) VALUES ($1, $2::date, $3)
		 ON CONFLICT (id) DO UPDATE SET game_date = EXCLUDED.game_date, status = EXCLUDED.status`,
		g.ID, model.DateOnly(g.GameDate), g.Status)
}

func (t *pgTx) PutPlayerGameStat(ctx context.Context, st *model.PlayerGameStat) error {
	return t.exec(ctx, "put player game stat",
		`INSERT INTO player_game_stats (player_id, game_id, fantasy_points) VALUES ($1, $2, $3)
		 ON CONFLICT (player_id, game_id) DO UPDATE SET fantasy_points = EXCLUDED.fantasy_points`,
		st.PlayerID, st.GameID, st.FantasyPoints)
}

func (t *pgTx) PutVestingState(ctx context.Context, v *model.VestingState) error {
	return t.exec(ctx, "put vesting state",
		`INSERT INTO vesting_states (user_id, tier, shares_accumulated, residual_ms, last_accrued_at, shares_per_hour, cap_limit)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (user_id) DO UPDATE
		 SET tier = EXCLUDED.tier,
		     shares_accumulated = EXCLUDED.shares_accumulated,
		     residual_ms = EXCLUDED.residual_ms,
		     last_accrued_at = EXCLUDED.last_accrued_at,
		     shares_per_hour = EXCLUDED.shares_per_hour,
		     cap_limit = EXCLUDED.cap_limit`,
		v.UserID, v.Tier, v.SharesAccumulated, v.ResidualMs, v.LastAccruedAt, v.SharesPerHour, v.CapLimit)
}

func (t *pgTx) InsertVestingClaim(ctx context.Context, c *model.VestingClaim) error {
	dist, err := json.Marshal(c.Distribution)
	if err != nil {
		return fmt.Errorf("encode claim distribution: %w", err)
	}
	return t.exec(ctx, "insert vesting claim",
		`INSERT INTO vesting_claims (id, user_id, total_shares, distribution, claimed_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.UserID, c.TotalShares, dist, c.ClaimedAt)
}

func (t *pgTx) InsertContest(ctx context.Context, c *model.Contest) error {
	return t.exec(ctx, "insert contest",
		`INSERT INTO contests (`+contestColumns+`)
		 VALUES ($1, $2, $3::date, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.Name, model.DateOnly(c.GameDate), c.Status, c.TotalPrizePool, c.EntryCount,
		c.StartsAt, c.EndsAt, c.SettledAt, c.CreatedAt)
}

func (t *pgTx) UpdateContest(ctx context.Context, c *model.Contest) error {
	return t.execOne(ctx, "update contest "+c.ID,
		`UPDATE contests SET status = $2, entry_count = $3, settled_at = $4 WHERE id = $1`,
		c.ID, c.Status, c.EntryCount, c.SettledAt)
}

func (t *pgTx) InsertEntry(ctx context.Context, e *model.ContestEntry) error {
	return t.exec(ctx, "insert entry",
		`INSERT INTO contest_entries (id, contest_id, user_id, total_shares_entered, total_score, rank, payout, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.ContestID, e.UserID, e.TotalSharesEntered, e.TotalScore, e.Rank, e.Payout, e.CreatedAt)
}

func (t *pgTx) UpdateEntry(ctx context.Context, e *model.ContestEntry) error {
	return t.execOne(ctx, "update entry "+e.ID,
		`UPDATE contest_entries SET total_score = $2, rank = $3, payout = $4 WHERE id = $1`,
		e.ID, e.TotalScore, e.Rank, e.Payout)
}

func (t *pgTx) InsertLineup(ctx context.Context, l *model.ContestLineup) error {
	return t.exec(ctx, "insert lineup",
		`INSERT INTO contest_lineups (id, entry_id, contest_id, player_id, shares_entered, fantasy_points, earned_score)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		l.ID, l.EntryID, l.ContestID, l.PlayerID, l.SharesEntered, l.FantasyPoints, l.EarnedScore)
}

func (t *pgTx) UpdateLineup(ctx context.Context, l *model.ContestLineup) error {
	return t.execOne(ctx, "update lineup "+l.ID,
		`UPDATE contest_lineups SET fantasy_points = $2, earned_score = $3 WHERE id = $1`,
		l.ID, l.FantasyPoints, l.EarnedScore)
}
