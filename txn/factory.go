package txn

import (
	"sync/atomic"

	"txcell/dispatch"
)

// Factory hands out fresh Transaction values stamped with a monotonically
// increasing attempt id, mirroring the teacher's TxnManager.NewTxn except
// that a Factory here is purely a counter plus a dispatcher reference -- it
// holds no registry of outstanding transactions, since nothing in this
// engine needs to enumerate in-flight attempts.
type Factory struct {
	dispatcher     dispatch.Dispatcher
	attemptCounter uint64
}

// NewFactory builds a Factory whose transactions dispatch async
// continuations through dispatcher.
func NewFactory(dispatcher dispatch.Dispatcher) *Factory {
	return &Factory{dispatcher: dispatcher}
}

// New returns an empty Transaction stamped with the next attempt id.
func (f *Factory) New() *Transaction {
	id := atomic.AddUint64(&f.attemptCounter, 1)
	return newTransaction(f.dispatcher, id)
}
