// Package dispatch is the engine's external-collaborator contract for
// deferred asynchronous continuations: code a committed transaction wants
// run after, never during, its commit. It defines the Dispatcher interface
// a transaction's commit phase 4 calls into, plus a default bounded-pool
// implementation.
package dispatch

// Context is the information available to a continuation when it finally
// runs: which commit produced it and the attempt id the txn.Factory stamped
// on the committing Transaction (a per-Factory sequence number, not a count
// of retries within one atomic block). Continuations never receive a
// reference back into the transaction or cells that committed them.
type Context struct {
	CommitID uint64
	Attempt  uint64
}

// Continuation is a deferred side-effect enqueued by txn.Transaction.Async.
// It closes over whatever values it needs by value at enqueue time; the
// engine never rebinds anything into it post-commit.
type Continuation func(Context)

// Dispatcher is the contract a Transaction's commit phase 4 calls into.
// Dispatch must not invoke fn synchronously from within the caller's call
// to Dispatch -- the committing goroutine must be free to proceed to phase 5
// without waiting on fn. fn is guaranteed to run exactly once.
type Dispatcher interface {
	Dispatch(fn Continuation, ctx Context) Handle
}

// Tracker is an optional extension a Dispatcher may implement to bind a
// dispatched continuation's handle into a caller-supplied Future, publishing
// the handle once the continuation has run. txn.Transaction.Commit checks for
// this interface via a type assertion rather than requiring it on
// Dispatcher, so a minimal hand-written test double can satisfy Dispatcher
// alone and still be usable for fire-and-forget (nil-slot) Async entries.
type Tracker interface {
	Track(fn Continuation, ctx Context, slot *Future) Handle
}
