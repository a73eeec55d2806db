package dispatch

import (
	"time"

	"github.com/google/uuid"

	"txcell/config"
	"txcell/logger"
)

// job is one unit of dispatched work: a continuation plus the context it
// runs with and the future (if any) to publish its handle into.
type job struct {
	fn     Continuation
	ctx    Context
	slot   *Future
	handle Handle
}

// Pool is the default Dispatcher: continuations run on a bounded goroutine
// pool, each guarded by a panic recover so one misbehaving continuation
// cannot take down the worker or the committing goroutine that enqueued it.
// A background reaper periodically drops the pool's own record of each
// handle registered through Track once it is older than the pool's TTL; it
// does not track whether anyone awaited the handle.
type Pool struct {
	jobs  chan job
	track chan Handle
	done  chan struct{}
	ttl   time.Duration

	tracked map[uuid.UUID]Handle
}

// NewPool starts a Pool with n workers. n<=0 falls back to
// config.DefaultDispatchWorkers.
func NewPool(n int) *Pool {
	if n <= 0 {
		n = config.DefaultDispatchWorkers
	}
	p := &Pool{
		jobs:    make(chan job, 64),
		track:   make(chan Handle, 64),
		done:    make(chan struct{}),
		ttl:     config.DefaultFutureTTL,
		tracked: make(map[uuid.UUID]Handle),
	}
	for i := 0; i < n; i++ {
		go p.worker()
	}
	go p.reaper()
	return p
}

// Dispatch implements Dispatcher. It never calls fn synchronously: the
// continuation is handed to a worker goroutine and Dispatch returns as soon
// as the handle is minted and the job is queued.
func (p *Pool) Dispatch(fn Continuation, ctx Context) Handle {
	h := Handle{ID: uuid.New(), CommitID: ctx.CommitID, Attempt: ctx.Attempt}
	p.jobs <- job{fn: fn, ctx: ctx, handle: h}
	return h
}

// Track registers fn to run and binds its handle into slot, publishing the
// handle once fn has returned (or panicked), so a waiter on slot observes
// fn's side effects. This is the path txn.Transaction.Commit uses for every
// Async entry when the dispatcher is a Pool, with or without a slot.
func (p *Pool) Track(fn Continuation, ctx Context, slot *Future) Handle {
	h := Handle{ID: uuid.New(), CommitID: ctx.CommitID, Attempt: ctx.Attempt, createdAt: now()}
	select {
	case p.track <- h:
	default:
	}
	p.jobs <- job{fn: fn, ctx: ctx, slot: slot, handle: h}
	return h
}

func (p *Pool) worker() {
	for {
		select {
		case j, ok := <-p.jobs:
			if !ok {
				return
			}
			p.run(j)
		case <-p.done:
			return
		}
	}
}

func (p *Pool) run(j job) {
	defer func() {
		if r := recover(); r != nil {
			logger.Inst.Warnw("dispatch: continuation panicked", "commit_id", j.ctx.CommitID, "attempt", j.ctx.Attempt, "panic", r)
		}
		if j.slot != nil {
			j.slot.Set(j.handle)
		}
	}()
	logger.Inst.Debugw("dispatch: running continuation", "commit_id", j.ctx.CommitID, "handle", j.handle.ID)
	j.fn(j.ctx)
}

func (p *Pool) reaper() {
	ticker := time.NewTicker(config.DefaultReapInterval)
	defer ticker.Stop()
	for {
		select {
		case h := <-p.track:
			p.tracked[h.ID] = h
		case <-ticker.C:
			p.reap()
		case <-p.done:
			return
		}
	}
}

func (p *Pool) reap() {
	cutoff := now().Add(-p.ttl)
	for id, h := range p.tracked {
		if h.createdAt.Before(cutoff) {
			delete(p.tracked, id)
			logger.Inst.Debugw("dispatch: reaped stale handle", "handle", id)
		}
	}
}

// Close stops all workers and the reaper. Close does not wait for queued
// jobs, and a job still queued when a worker sees Close may never run.
func (p *Pool) Close() {
	close(p.done)
}

// now is a seam over time.Now, kept as a var rather than a direct call so
// tests can pin reaping to deterministic instants if they need to.
var now = time.Now
