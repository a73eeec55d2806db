package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"txcell/logger"
)

func TestPoolDispatchRunsContinuationAsynchronously(t *testing.T) {
	p := NewPool(2)
	defer p.Close()

	var ran bool
	var mu sync.Mutex
	done := make(chan struct{})
	p.Dispatch(func(ctx Context) {
		mu.Lock()
		ran = true
		mu.Unlock()
		close(done)
	}, Context{CommitID: 1})

	mu.Lock()
	stillFalse := !ran
	mu.Unlock()
	assert.True(t, stillFalse, "continuation must not run synchronously inside Dispatch")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("continuation never ran")
	}
}

func TestPoolTrackPublishesHandleAfterRunning(t *testing.T) {
	p := NewPool(1)
	defer p.Close()

	slot := NewFuture()
	started := make(chan struct{})
	release := make(chan struct{})
	p.Track(func(ctx Context) {
		close(started)
		<-release
	}, Context{CommitID: 3}, slot)

	<-started
	assert.False(t, slot.Ready(), "handle must not be published while the continuation is still running")
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	h, err := slot.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), h.CommitID)
}

func TestPoolRecoversContinuationPanic(t *testing.T) {
	p := NewPool(1)
	defer p.Close()

	next := make(chan struct{})
	p.Dispatch(func(ctx Context) { panic("boom") }, Context{})
	p.Dispatch(func(ctx Context) { close(next) }, Context{})

	select {
	case <-next:
	case <-time.After(time.Second):
		t.Fatal("pool worker died after a panicking continuation")
	}
}

func TestPoolLogsRecoveredPanic(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	restore := logger.SetForTest(zap.New(core).Sugar())
	defer restore()

	p := NewPool(1)
	defer p.Close()

	next := make(chan struct{})
	p.Dispatch(func(ctx Context) { panic("boom") }, Context{CommitID: 9})
	p.Dispatch(func(ctx Context) { close(next) }, Context{})

	select {
	case <-next:
	case <-time.After(time.Second):
		t.Fatal("pool worker died after a panicking continuation")
	}

	require.Eventually(t, func() bool { return logs.Len() == 1 }, time.Second, time.Millisecond)
	entry := logs.All()[0]
	assert.Equal(t, "dispatch: continuation panicked", entry.Message)
	assert.Equal(t, uint64(9), entry.ContextMap()["commit_id"])
}
