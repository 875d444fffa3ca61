package observability

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownManager_RunsAllFuncs(t *testing.T) {
	logger, hook := test.NewNullLogger()
	sm := NewShutdownManager(logger, nil, time.Second)

	var calls atomic.Int32
	for range 3 {
		sm.RegisterShutdownFunc(func(context.Context) error {
			calls.Add(1)
			return nil
		})
	}

	require.NoError(t, sm.Shutdown())
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, "Graceful shutdown complete", hook.LastEntry().Message)
}

func TestShutdownManager_CountsErrors(t *testing.T) {
	sm := NewShutdownManager(nil, nil, time.Second)
	sm.RegisterShutdownFunc(func(context.Context) error { return errors.New("close failed") })
	sm.RegisterShutdownFunc(func(context.Context) error { return nil })

	err := sm.Shutdown()
	assert.EqualError(t, err, "shutdown completed with 1 errors")
}

func TestShutdownManager_Timeout(t *testing.T) {
	sm := NewShutdownManager(nil, nil, 20*time.Millisecond)
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		time.Sleep(200 * time.Millisecond)
		return nil
	})

	assert.EqualError(t, sm.Shutdown(), "shutdown timeout reached")
}

func TestShutdownManager_StopsServer(t *testing.T) {
	server := &http.Server{Addr: "127.0.0.1:0"}
	sm := NewShutdownManager(nil, server, time.Second)
	require.NoError(t, sm.Shutdown())
	assert.ErrorIs(t, server.ListenAndServe(), http.ErrServerClosed)
}

func TestShutdownManager_WaitForShutdownContext(t *testing.T) {
	sm := NewShutdownManager(nil, nil, time.Second)
	var ran atomic.Bool
	sm.RegisterShutdownFunc(func(context.Context) error {
		ran.Store(true)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, sm.WaitForShutdown(ctx))
	assert.True(t, ran.Load())
}

func TestRecoverPanic(t *testing.T) {
	logger, hook := test.NewNullLogger()

	func() {
		defer RecoverPanic(logger, "billing job")
		panic("boom")
	}()

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "PANIC recovered", entry.Message)
	assert.Equal(t, "boom", entry.Data["panic"])
	assert.Equal(t, "billing job", entry.Data["context"])
	assert.NotEmpty(t, entry.Data["stack"])
}

func TestRecoverPanicWithCallback(t *testing.T) {
	called := false
	func() {
		defer RecoverPanicWithCallback(nil, "worker", func() { called = true })
	}()
	assert.False(t, called, "no panic means no callback")

	func() {
		defer RecoverPanicWithCallback(nil, "worker", func() { called = true })
		panic("boom")
	}()
	assert.True(t, called)
}
