package cronrunner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestAdd_RejectsBadSpec(t *testing.T) {
	r := New(context.Background(), nil)
	_, err := r.Add("bad", "every tuesday", func(context.Context) error { return nil })
	assert.Error(t, err)

	_, err = r.Add("good", "*/5 * * * * *", func(context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestRun_LogsFailuresAndPanics(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	type ctxKey struct{}
	base := context.WithValue(context.Background(), ctxKey{}, "base")
	r := New(base, zap.New(core))

	var got any
	r.run("ok", func(ctx context.Context) error {
		got = ctx.Value(ctxKey{})
		return nil
	})
	r.run("fails", func(context.Context) error { return errors.New("feed down") })
	r.run("panics", func(context.Context) error { panic("boom") })

	assert.Equal(t, "base", got)
	require.Equal(t, 1, logs.FilterMessage("cron job failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("cron job panicked").Len())
	assert.Equal(t, 1, logs.FilterMessage("cron job done").Len())
}

func TestStartStop(t *testing.T) {
	r := New(context.Background(), nil)
	r.Start()
	r.Stop()
}
