/*
Package txcell provides software transactional memory with deferred
asynchronous continuations for Go.

Create cells to hold shared mutable state:

	balance := cell.NewCell(100)

Then use Atomically to read and write cells as if by a single atomic
operation. Inside the body, attach a transaction-scoped handle to each cell
with In:

	err := txcell.Atomically(ctx, func(tx *txn.Transaction) error {
		h := txcell.In(tx, balance)
		h.Set(h.Get() - 10)
		return nil
	})

If the transaction's read set is invalidated by a concurrent commit before
it completes, Atomically retries the body from scratch; it never returns a
partially-applied result. A transaction may also enqueue a continuation to
run only if its attempt commits, optionally binding it to a future the
caller can await:

	f := dispatch.NewFuture()
	err := txcell.Atomically(ctx, func(tx *txn.Transaction) error {
		h := txcell.In(tx, balance)
		h.Set(h.Get() - 10)
		tx.Async(f, func(c dispatch.Context) {
			sendReceipt(c.CommitID)
		})
		return nil
	})

Atomically takes functional options to bound the number of retries
(WithMaxAttempts) or to wait between retries (WithBackoff).
*/
package txcell
