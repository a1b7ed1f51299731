package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fanshares/exchange-core/internal/metrics"
	"github.com/fanshares/exchange-core/internal/model"
)

const (
	defaultBaseDelay = 200 * time.Millisecond
	defaultMaxDelay  = 5 * time.Second
)

// RetryConfig controls feed retries.
type RetryConfig struct {
	MaxAttempts int // total attempts including the first; <1 means 1
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Retrying retries a Feed with exponential backoff. It never holds locks;
// callers fetch before entering their critical section.
type Retrying struct {
	next   Feed
	cfg    RetryConfig
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewRetrying wraps next.
func NewRetrying(next Feed, cfg RetryConfig, logger *zap.Logger) *Retrying {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrying{next: next, cfg: cfg, logger: logger, sleep: sleepCtx}
}

func (r *Retrying) GamesOn(ctx context.Context, day time.Time) ([]model.Game, error) {
	var games []model.Game
	err := r.do(ctx, "games_on", func() error {
		var err error
		games, err = r.next.GamesOn(ctx, day)
		return err
	})
	return games, err
}

func (r *Retrying) FantasyPoints(ctx context.Context, playerID string, gameIDs []string) (decimal.Decimal, error) {
	var pts decimal.Decimal
	err := r.do(ctx, "fantasy_points", func() error {
		var err error
		pts, err = r.next.FantasyPoints(ctx, playerID, gameIDs)
		return err
	})
	return pts, err
}

func (r *Retrying) do(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := Backoff(attempt-1, r.cfg.BaseDelay, r.cfg.MaxDelay)
			metrics.FeedRetries.Inc()
			r.logger.Warn("feed call failed, retrying",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err))
			if serr := r.sleep(ctx, delay); serr != nil {
				return serr
			}
		}
		if err = fn(); err == nil {
			return nil
		}
	}
	return fmt.Errorf("feed %s after %d attempts: %w", op, r.cfg.MaxAttempts, err)
}

// Backoff returns base × 2^retry, capped at ceiling.
func Backoff(retry int, base, ceiling time.Duration) time.Duration {
	if retry < 0 {
		return base
	}
	// 2^30 × any sane base is already past the ceiling.
	if retry > 30 {
		return ceiling
	}
	d := base * time.Duration(1<<retry)
	if d > ceiling || d <= 0 {
		return ceiling
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
