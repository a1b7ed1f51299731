package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/fanshares/exchange-core/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache after the
// transaction commits; reads check Redis first then fall back to the primary.
// Cached values are stamped with a per-key version that every commit bumps,
// so a value loaded before a commit is never served after it.
//
// Reads inside a transaction always hit the primary so that row locks apply.
type CachedStore struct {
	primary Store
	rdb     redis.UniversalClient
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb redis.UniversalClient, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// InTx runs fn on the primary and, once it has committed, bumps the
// version of every cache key the transaction wrote and drops the key.
func (s *CachedStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	var dirty []string
	err := s.primary.InTx(ctx, func(tx Tx) error {
		return fn(&invalidatingTx{Tx: tx, dirty: &dirty})
	})
	if err != nil {
		return err
	}
	for _, key := range dirty {
		s.rdb.Incr(ctx, versionKey(key))
		s.rdb.Del(ctx, key)
	}
	return nil
}

// Close closes the primary; the Redis client is owned by the caller.
func (s *CachedStore) Close() error { return s.primary.Close() }

// --- Read-through (check cache first) ---

func (s *CachedStore) GetAccount(ctx context.Context, userID string) (*model.Account, error) {
	return readThrough(ctx, s, accountKey(userID), func() (*model.Account, error) {
		return s.primary.GetAccount(ctx, userID)
	})
}

func (s *CachedStore) ListHoldings(ctx context.Context, userID string) ([]model.Holding, error) {
	out, err := readThrough(ctx, s, holdingsKey(userID), func() (*[]model.Holding, error) {
		h, err := s.primary.ListHoldings(ctx, userID)
		return &h, err
	})
	if err != nil {
		return nil, err
	}
	return *out, nil
}

func (s *CachedStore) GetPlayer(ctx context.Context, id string) (*model.Player, error) {
	return readThrough(ctx, s, playerKey(id), func() (*model.Player, error) {
		return s.primary.GetPlayer(ctx, id)
	})
}

func (s *CachedStore) GetVestingState(ctx context.Context, userID string) (*model.VestingState, error) {
	return readThrough(ctx, s, vestingKey(userID), func() (*model.VestingState, error) {
		return s.primary.GetVestingState(ctx, userID)
	})
}

func (s *CachedStore) GetContest(ctx context.Context, id string) (*model.Contest, error) {
	return readThrough(ctx, s, contestKey(id), func() (*model.Contest, error) {
		return s.primary.GetContest(ctx, id)
	})
}

// cacheEntry stamps a cached value with the key's version at the time
// the value was loaded.
type cacheEntry[T any] struct {
	Version int64 `json:"v"`
	Value   *T    `json:"d"`
}

// readThrough serves key from Redis, or loads and caches it. Errors from
// the primary, including ErrNotFound, are not cached.
//
// The version is read before loading. A commit that lands between the
// load and the Set bumps the version, so the late Set is stamped with
// the old one and never served.
func readThrough[T any](ctx context.Context, s *CachedStore, key string, load func() (*T, error)) (*T, error) {
	vals, cacheErr := s.rdb.MGet(ctx, versionKey(key), key).Result()
	var version int64
	if cacheErr == nil && len(vals) == 2 {
		version = parseVersion(vals[0])
		if raw, ok := vals[1].(string); ok {
			var e cacheEntry[T]
			if json.Unmarshal([]byte(raw), &e) == nil && e.Version == version && e.Value != nil {
				return e.Value, nil
			}
		}
	}

	v, err := load()
	if err != nil {
		return nil, err
	}
	if cacheErr != nil {
		return v, nil
	}
	if data, err := json.Marshal(cacheEntry[T]{Version: version, Value: v}); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
	return v, nil
}

func parseVersion(v any) int64 {
	str, ok := v.(string)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// --- Passthrough (not cached) ---

func (s *CachedStore) GetHolding(ctx context.Context, userID, assetID string) (*model.Holding, error) {
	return s.primary.GetHolding(ctx, userID, assetID)
}

func (s *CachedStore) ListJournal(ctx context.Context, userID string) ([]model.JournalEntry, error) {
	return s.primary.ListJournal(ctx, userID)
}

func (s *CachedStore) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	return s.primary.GetOrder(ctx, id)
}

func (s *CachedStore) ListRestingOrders(ctx context.Context) ([]model.Order, error) {
	return s.primary.ListRestingOrders(ctx)
}

func (s *CachedStore) MaxOrderSeq(ctx context.Context) (int64, error) {
	return s.primary.MaxOrderSeq(ctx)
}

func (s *CachedStore) ListTradesByPlayer(ctx context.Context, playerID string, limit int) ([]model.Trade, error) {
	return s.primary.ListTradesByPlayer(ctx, playerID, limit)
}

func (s *CachedStore) ListGamesByDate(ctx context.Context, date time.Time) ([]model.Game, error) {
	return s.primary.ListGamesByDate(ctx, date)
}

func (s *CachedStore) SumFantasyPoints(ctx context.Context, playerID string, gameIDs []string) (decimal.Decimal, error) {
	return s.primary.SumFantasyPoints(ctx, playerID, gameIDs)
}

func (s *CachedStore) ListVestingClaims(ctx context.Context, userID string) ([]model.VestingClaim, error) {
	return s.primary.ListVestingClaims(ctx, userID)
}

func (s *CachedStore) ListContestsByStatus(ctx context.Context, status model.ContestStatus) ([]model.Contest, error) {
	return s.primary.ListContestsByStatus(ctx, status)
}

func (s *CachedStore) ListEntries(ctx context.Context, contestID string) ([]model.ContestEntry, error) {
	return s.primary.ListEntries(ctx, contestID)
}

func (s *CachedStore) ListLineups(ctx context.Context, contestID string) ([]model.ContestLineup, error) {
	return s.primary.ListLineups(ctx, contestID)
}

// invalidatingTx records the cache keys its writes make stale.
type invalidatingTx struct {
	Tx
	dirty *[]string
}

func (t *invalidatingTx) touch(keys ...string) { *t.dirty = append(*t.dirty, keys...) }

func (t *invalidatingTx) PutAccount(ctx context.Context, a *model.Account) error {
	if err := t.Tx.PutAccount(ctx, a); err != nil {
		return err
	}
	t.touch(accountKey(a.UserID))
	return nil
}

func (t *invalidatingTx) PutHolding(ctx context.Context, h *model.Holding) error {
	if err := t.Tx.PutHolding(ctx, h); err != nil {
		return err
	}
	t.touch(holdingsKey(h.UserID))
	return nil
}

func (t *invalidatingTx) PutPlayer(ctx context.Context, p *model.Player) error {
	if err := t.Tx.PutPlayer(ctx, p); err != nil {
		return err
	}
	t.touch(playerKey(p.ID))
	return nil
}

func (t *invalidatingTx) UpdatePlayerPrices(ctx context.Context, playerID string, lastTrade decimal.Decimal) error {
	if err := t.Tx.UpdatePlayerPrices(ctx, playerID, lastTrade); err != nil {
		return err
	}
	t.touch(playerKey(playerID))
	return nil
}

func (t *invalidatingTx) PutVestingState(ctx context.Context, v *model.VestingState) error {
	if err := t.Tx.PutVestingState(ctx, v); err != nil {
		return err
	}
	t.touch(vestingKey(v.UserID))
	return nil
}

func (t *invalidatingTx) UpdateContest(ctx context.Context, c *model.Contest) error {
	if err := t.Tx.UpdateContest(ctx, c); err != nil {
		return err
	}
	t.touch(contestKey(c.ID))
	return nil
}

// --- Cache keys ---

// Keys carry a hash tag so a key and its version share a cluster slot.
func accountKey(uid string) string  { return fmt.Sprintf("{account:%s}", uid) }
func holdingsKey(uid string) string { return fmt.Sprintf("{holdings:%s}", uid) }
func playerKey(id string) string    { return fmt.Sprintf("{player:%s}", id) }
func vestingKey(uid string) string  { return fmt.Sprintf("{vesting:%s}", uid) }
func contestKey(id string) string   { return fmt.Sprintf("{contest:%s}", id) }
func versionKey(key string) string  { return key + ":v" }
