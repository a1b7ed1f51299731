package matching_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fanshares/exchange-core/internal/catalog"
	"github.com/fanshares/exchange-core/internal/ledger"
	"github.com/fanshares/exchange-core/internal/matching"
	"github.com/fanshares/exchange-core/internal/model"
	"github.com/fanshares/exchange-core/internal/store"
)

// TestPlaceAndCancel_ConcurrentOnOnePlayer races placements and
// cancellations on a single player, then checks that cash and shares are
// conserved and that the book agrees with the stored reservations.
func TestPlaceAndCancel_ConcurrentOnOnePlayer(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	lg := ledger.New()
	clock := &testClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	eng := matching.New(matching.Deps{
		Store:   ms,
		Catalog: catalog.NewStoreCatalog(ms),
		Ledger:  lg,
		Now:     clock.Now,
	})
	require.NoError(t, seedPropertyUsers(ctx, ms, lg))

	const (
		workers   = 8
		perWorker = 25
	)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			user := propertyUsers[w%len(propertyUsers)]
			for i := 0; i < perWorker; i++ {
				req := matching.PlaceOrderRequest{
					UserID:     user,
					PlayerID:   "p1",
					Side:       model.SideBuy,
					Type:       model.OrderLimit,
					Quantity:   int64(1 + i%5),
					LimitPrice: decimal.New(int64(200+((w*7+i*13)%60)*5), -2),
				}
				if (w+i)%2 == 1 {
					req.Side = model.SideSell
				}
				if i%6 == 5 {
					req.Type, req.LimitPrice = model.OrderMarket, decimal.Zero
				}

				res, err := eng.PlaceOrder(ctx, req)
				if err != nil {
					assert.True(t, errors.Is(err, ledger.ErrInsufficientBalance) || errors.Is(err, ledger.ErrInsufficientShares),
						"unexpected rejection: %v", err)
					continue
				}
				if i%3 == 0 {
					_, err := eng.CancelOrder(ctx, res.Order.ID, user)
					assert.NoError(t, err)
				}
			}
		}(w)
	}
	wg.Wait()

	checkConservation(t, ms)
	checkBook(t, ms, eng.Depth("p1", 100))
}
