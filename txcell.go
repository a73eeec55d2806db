package txcell

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"txcell/backoffpolicy"
	"txcell/cell"
	"txcell/config"
	"txcell/dispatch"
	"txcell/logger"
	"txcell/txn"
)

// LocalHandle is a transaction-scoped view over a single Cell[T]. It owns
// nothing; the cell and transaction both outlive it. A LocalHandle must
// never be retained past the atomic block it was created in.
type LocalHandle[T any] struct {
	tx *txn.Transaction
	c  *cell.Cell[T]
}

// In attaches a transactional view of c to tx.
func In[T any](tx *txn.Transaction, c *cell.Cell[T]) *LocalHandle[T] {
	return &LocalHandle[T]{tx: tx, c: c}
}

// Get reads c through the handle's transaction.
func (h *LocalHandle[T]) Get() T {
	return cell.Value[T](h.tx.Read(h.c))
}

// Set writes v to c through the handle's transaction.
func (h *LocalHandle[T]) Set(v T) {
	h.tx.Write(h.c, cell.NewSnapshot(v))
}

// options carries Atomically's configuration, assembled from functional
// options rather than a config struct passed at construction time.
type options struct {
	maxAttempts uint64
	backoff     backoffpolicy.Policy
	logger      *zap.SugaredLogger
}

// Option configures a call to Atomically.
type Option func(*options)

// WithMaxAttempts caps the number of attempts Atomically will make before
// giving up and returning txn.ErrConflict. n<=0 means unbounded, the
// default.
func WithMaxAttempts(n uint64) Option {
	return func(o *options) { o.maxAttempts = n }
}

// WithBackoff installs a wait strategy between failed attempts. The default
// is backoffpolicy.None(), i.e. retry immediately.
func WithBackoff(p backoffpolicy.Policy) Option {
	return func(o *options) { o.backoff = p }
}

// WithLogger overrides the logger Atomically reports retry exhaustion
// through, instead of the package-level logger.Inst. Useful for callers who
// want their atomic blocks' contention warnings routed into their own
// zap instance rather than this module's default.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *options) { o.logger = l }
}

// Engine owns a Factory and the dispatcher its transactions publish async
// continuations through. Most callers can use the package-level Atomically,
// which uses a default Engine built at package initialization; construct an Engine directly to
// share one dispatcher (and its worker pool) across many Atomically calls,
// or to supply a non-default Dispatcher.
type Engine struct {
	factory *txn.Factory
}

// NewEngine builds an Engine backed by a default dispatch.Pool.
func NewEngine() *Engine {
	return NewEngineWithDispatcher(dispatch.NewPool(config.DefaultDispatchWorkers))
}

// NewEngineWithDispatcher builds an Engine whose transactions dispatch
// async continuations through d.
func NewEngineWithDispatcher(d dispatch.Dispatcher) *Engine {
	return &Engine{factory: txn.NewFactory(d)}
}

// Atomically runs body against a fresh transaction, commits it, and retries
// on conflict until it succeeds, the context is done, or (if
// WithMaxAttempts was given) the attempt cap is reached. If body returns a
// non-nil error, the transaction is abandoned without committing and that
// error is returned directly -- no writes, no async dispatch.
func (e *Engine) Atomically(ctx context.Context, body func(*txn.Transaction) error, opts ...Option) error {
	o := options{maxAttempts: config.DefaultMaxAttempts, backoff: backoffpolicy.None(), logger: logger.Inst}
	for _, opt := range opts {
		opt(&o)
	}

	var attempt uint64
	for {
		attempt++
		tx := e.factory.New()
		if err := body(tx); err != nil {
			return err
		}

		err := tx.Commit()
		if err == nil {
			return nil
		}
		if !errors.Is(err, txn.ErrConflict) {
			return err
		}

		if o.maxAttempts > 0 && attempt >= o.maxAttempts {
			o.logger.Warnw("txcell: giving up after max attempts", "attempts", attempt)
			return err
		}
		if werr := o.backoff.Wait(ctx, attempt); werr != nil {
			return werr
		}
	}
}

var defaultEngine = NewEngine()

// Atomically runs body against the package-level default Engine. See
// (*Engine).Atomically.
func Atomically(ctx context.Context, body func(*txn.Transaction) error, opts ...Option) error {
	return defaultEngine.Atomically(ctx, body, opts...)
}
