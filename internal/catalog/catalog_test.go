package catalog_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fanshares/exchange-core/internal/catalog"
	"github.com/fanshares/exchange-core/internal/model"
	"github.com/fanshares/exchange-core/internal/store"
)

type countingCatalog struct {
	next  catalog.Catalog
	calls int
}

func (c *countingCatalog) GetPlayer(ctx context.Context, id string) (*model.Player, error) {
	c.calls++
	return c.next.GetPlayer(ctx, id)
}

func seedPlayer(t *testing.T, ms *store.MemoryStore, p model.Player) {
	t.Helper()
	require.NoError(t, ms.InTx(context.Background(), func(tx store.Tx) error {
		return tx.PutPlayer(context.Background(), &p)
	}))
}

func TestStoreCatalog_UnknownPlayer(t *testing.T) {
	c := catalog.NewStoreCatalog(store.NewMemoryStore())

	_, err := c.GetPlayer(context.Background(), "ghost")
	assert.ErrorIs(t, err, catalog.ErrUnknownPlayer)
}

func TestCachedCatalog_ServesFromCache(t *testing.T) {
	ms := store.NewMemoryStore()
	seedPlayer(t, ms, model.Player{ID: "p1", Name: "Ace", TeamID: "BOS", IsActive: true})

	counting := &countingCatalog{next: catalog.NewStoreCatalog(ms)}
	cc, err := catalog.NewCachedCatalog(counting, catalog.CacheConfig{
		NumCounters: 1000, MaxCost: 100, BufferItems: 64, TTL: time.Minute,
	}, nil)
	require.NoError(t, err)
	defer cc.Close()

	ctx := context.Background()
	p, err := cc.GetPlayer(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Ace", p.Name)
	cc.Wait()

	p, err = cc.GetPlayer(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "BOS", p.TeamID)
	assert.Equal(t, 1, counting.calls)

	cc.Invalidate("p1")
	_, err = cc.GetPlayer(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, counting.calls)
}

func TestCachedCatalog_ErrorsNotCached(t *testing.T) {
	ms := store.NewMemoryStore()
	counting := &countingCatalog{next: catalog.NewStoreCatalog(ms)}
	cc, err := catalog.NewCachedCatalog(counting, catalog.CacheConfig{
		NumCounters: 1000, MaxCost: 100, BufferItems: 64, TTL: time.Minute,
	}, nil)
	require.NoError(t, err)
	defer cc.Close()

	ctx := context.Background()
	_, err = cc.GetPlayer(ctx, "p1")
	assert.ErrorIs(t, err, catalog.ErrUnknownPlayer)
	cc.Wait()

	seedPlayer(t, ms, model.Player{ID: "p1", Name: "Late", IsActive: true})
	p, err := cc.GetPlayer(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Late", p.Name)
}
