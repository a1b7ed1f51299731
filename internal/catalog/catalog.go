// Package catalog resolves player metadata for the trading and contest
// services.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"

	"github.com/fanshares/exchange-core/internal/metrics"
	"github.com/fanshares/exchange-core/internal/model"
	"github.com/fanshares/exchange-core/internal/store"
)

// ErrUnknownPlayer is returned for player IDs the catalog does not know.
var ErrUnknownPlayer = errors.New("catalog: unknown player")

// Catalog looks up players.
type Catalog interface {
	GetPlayer(ctx context.Context, playerID string) (*model.Player, error)
}

// StoreCatalog reads players straight from the store.
type StoreCatalog struct {
	r store.Reader
}

// NewStoreCatalog creates a store-backed catalog.
func NewStoreCatalog(r store.Reader) *StoreCatalog {
	return &StoreCatalog{r: r}
}

func (c *StoreCatalog) GetPlayer(ctx context.Context, playerID string) (*model.Player, error) {
	p, err := c.r.GetPlayer(ctx, playerID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlayer, playerID)
	}
	return p, err
}

// CacheConfig sizes the in-process player cache.
type CacheConfig struct {
	NumCounters int64 // keys to track frequency (10x max items)
	MaxCost     int64 // max items, each costs 1
	BufferItems int64 // keys per Get buffer
	TTL         time.Duration
}

// CachedCatalog fronts a Catalog with a ristretto cache. Player rows
// change rarely, so entries live for TTL. Invalidate after writes that
// must be seen immediately.
type CachedCatalog struct {
	next   Catalog
	cache  *ristretto.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedCatalog wraps next with a ristretto cache.
func NewCachedCatalog(next Catalog, cfg CacheConfig, logger *zap.Logger) (*CachedCatalog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
	})
	if err != nil {
		return nil, fmt.Errorf("create player cache: %w", err)
	}
	return &CachedCatalog{next: next, cache: cache, ttl: cfg.TTL, logger: logger}, nil
}

func (c *CachedCatalog) GetPlayer(ctx context.Context, playerID string) (*model.Player, error) {
	if v, ok := c.cache.Get(playerID); ok {
		metrics.CacheRequests.WithLabelValues("catalog", "hit").Inc()
		p := v.(model.Player)
		return &p, nil
	}
	metrics.CacheRequests.WithLabelValues("catalog", "miss").Inc()

	p, err := c.next.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if !c.cache.SetWithTTL(playerID, *p, 1, c.ttl) {
		c.logger.Debug("player cache set dropped", zap.String("player_id", playerID))
	}
	return p, nil
}

// Invalidate drops one player.
func (c *CachedCatalog) Invalidate(playerID string) {
	c.cache.Del(playerID)
}

// Wait blocks until pending cache writes are applied.
func (c *CachedCatalog) Wait() {
	c.cache.Wait()
}

// Close releases the cache's goroutines.
func (c *CachedCatalog) Close() {
	c.cache.Close()
}
