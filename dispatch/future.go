package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Handle is the awaitable token a successful Dispatch publishes into a
// Future. Its ID is a UUID rather than a sequence number so that handles
// logged or compared across independent Dispatcher instances never collide.
type Handle struct {
	ID        uuid.UUID
	CommitID  uint64
	Attempt   uint64
	createdAt time.Time
}

// Future is a caller-allocated slot a Transaction's Async call binds a
// continuation to. The zero value is not usable; construct with NewFuture.
type Future struct {
	mu     sync.Mutex
	ready  chan struct{}
	once   sync.Once
	handle Handle
}

// NewFuture allocates an unset Future.
func NewFuture() *Future {
	return &Future{ready: make(chan struct{})}
}

// Set publishes h into the future and wakes any waiters. Set is idempotent:
// only the first call has any effect, matching the at-most-once guarantee a
// Dispatcher gives each continuation's handle.
func (f *Future) Set(h Handle) {
	f.once.Do(func() {
		f.mu.Lock()
		f.handle = h
		f.mu.Unlock()
		close(f.ready)
	})
}

// Ready reports whether the future has been published to, without blocking.
func (f *Future) Ready() bool {
	select {
	case <-f.ready:
		return true
	default:
		return false
	}
}

// Await blocks until a Handle is published into f or ctx is done, whichever
// comes first.
func (f *Future) Await(ctx context.Context) (Handle, error) {
	select {
	case <-f.ready:
		f.mu.Lock()
		h := f.handle
		f.mu.Unlock()
		return h, nil
	case <-ctx.Done():
		return Handle{}, ctx.Err()
	}
}
