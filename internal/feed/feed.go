// Package feed reads finalized fantasy points for contest settlement.
package feed

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fanshares/exchange-core/internal/model"
	"github.com/fanshares/exchange-core/internal/store"
)

// Feed is the fantasy-points source consumed by settlement.
type Feed interface {
	// GamesOn returns the games played on the calendar date of day.
	GamesOn(ctx context.Context, day time.Time) ([]model.Game, error)

	// FantasyPoints sums a player's points across the given games.
	// A player absent from every game scores zero.
	FantasyPoints(ctx context.Context, playerID string, gameIDs []string) (decimal.Decimal, error)
}

// StoreFeed serves points that an ingestion job has written to the store.
type StoreFeed struct {
	r store.Reader
}

// NewStoreFeed creates a store-backed feed.
func NewStoreFeed(r store.Reader) *StoreFeed {
	return &StoreFeed{r: r}
}

func (f *StoreFeed) GamesOn(ctx context.Context, day time.Time) ([]model.Game, error) {
	return f.r.ListGamesByDate(ctx, day)
}

func (f *StoreFeed) FantasyPoints(ctx context.Context, playerID string, gameIDs []string) (decimal.Decimal, error) {
	return f.r.SumFantasyPoints(ctx, playerID, gameIDs)
}
