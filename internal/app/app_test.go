package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fanshares/exchange-core/internal/config"
	"github.com/fanshares/exchange-core/internal/store"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Server.HTTPAddr = "127.0.0.1:0"
	return cfg
}

func TestNew_InMemory(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer a.Close()

	_, ok := a.Store.(*store.MemoryStore)
	assert.True(t, ok)

	w := httptest.NewRecorder()
	a.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNew_BadTierConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Vesting.DefaultTier = "gold"
	_, err := New(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestNew_UnreachableRedisIsIgnoredWithoutDB(t *testing.T) {
	cfg := testConfig(t)
	cfg.Redis.URL = "redis://127.0.0.1:1/0"
	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.NoError(t, a.Close())
}

func TestScheduler_RejectsBadSpec(t *testing.T) {
	cfg := testConfig(t)
	cfg.Contest.SweepSpec = "not a spec"
	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Scheduler(context.Background())
	assert.Error(t, err)
}

func TestRun_StopsOnCancel(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
