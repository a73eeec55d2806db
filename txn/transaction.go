// Package txn implements the engine's commit protocol: buffering reads and
// writes against a working set, validating against live cell state, and
// applying or discarding the attempt as a unit.
package txn

import (
	"errors"
	"sort"
	"sync/atomic"

	"txcell/cell"
	"txcell/dispatch"
)

// ErrConflict is returned by Commit when read-log validation fails. It is a
// recoverable condition the driver retries; it is never a programmer error.
var ErrConflict = errors.New("txn: conflict")

var commitCounter uint64

// entry is one working-set slot: a cell reference and the Snapshot the
// transaction currently associates with it.
type entry struct {
	ref   cell.Ref
	value *cell.Snapshot
}

// asyncEntry is one deferred continuation queued by Async.
type asyncEntry struct {
	slot *dispatch.Future
	fn   dispatch.Continuation
}

// Transaction is a single attempt's mutable state: the working set, the
// read log (the value observed at each cell's first read this attempt,
// kept independent of any later local write to the same cell -- see Write),
// the write set (tracked in written), and the async queue. A Transaction is
// reused across retries of the same atomic-block invocation via Clear, or
// discarded in favor of a fresh one from the Factory; the two are
// equivalent.
type Transaction struct {
	dispatcher dispatch.Dispatcher
	attemptID  uint64

	// working is kept sorted by ref.ID() so Commit's phase 1 lock
	// acquisition and phase 3 write application both iterate in the fixed
	// total order that makes the protocol deadlock-free.
	working []*entry
	// readLog holds, for each cell first read this attempt, the Snapshot as
	// observed at that first read -- independent of any later local write
	// to the same cell, per the working-set/read-log separation the
	// protocol requires.
	readLog map[uint64]*cell.Snapshot
	written map[uint64]bool
	async   []asyncEntry
}

func newTransaction(dispatcher dispatch.Dispatcher, attemptID uint64) *Transaction {
	return &Transaction{
		dispatcher: dispatcher,
		attemptID:  attemptID,
		readLog:    make(map[uint64]*cell.Snapshot),
		written:    make(map[uint64]bool),
	}
}

// AttemptID returns the attempt number the Factory stamped this Transaction
// with when it was created, for diagnostics and for tests asserting retry
// counts.
func (t *Transaction) AttemptID() uint64 { return t.attemptID }

func (t *Transaction) findIndex(id uint64) int {
	return sort.Search(len(t.working), func(i int) bool { return t.working[i].ref.ID() >= id })
}

func (t *Transaction) find(ref cell.Ref) *entry {
	i := t.findIndex(ref.ID())
	if i < len(t.working) && t.working[i].ref.ID() == ref.ID() {
		return t.working[i]
	}
	return nil
}

func (t *Transaction) insertWorking(e *entry) {
	i := t.findIndex(e.ref.ID())
	t.working = append(t.working, nil)
	copy(t.working[i+1:], t.working[i:])
	t.working[i] = e
}

// Read returns the value this transaction currently associates with ref: a
// pending local write or earlier read if one exists, otherwise a fresh
// CloneValue from the cell, recorded as this attempt's first-read value for
// that cell.
func (t *Transaction) Read(ref cell.Ref) *cell.Snapshot {
	if ref == nil {
		panic("txn: nil cell reference")
	}
	if e := t.find(ref); e != nil {
		return e.value
	}
	snap := ref.CloneValue()
	t.insertWorking(&entry{ref: ref, value: snap})
	t.readLog[ref.ID()] = snap
	return snap
}

// Write records value as ref's pending value for the remainder of this
// attempt. If ref was never read this attempt, the write is blind: it is
// added to the write set but the read log gains no entry for it, so
// validation at commit will not demand read-consistency on ref.
func (t *Transaction) Write(ref cell.Ref, value *cell.Snapshot) {
	if ref == nil {
		panic("txn: nil cell reference")
	}
	if e := t.find(ref); e != nil {
		e.value = value
	} else {
		t.insertWorking(&entry{ref: ref, value: value})
	}
	t.written[ref.ID()] = true
}

// Async enqueues fn to run via the dispatcher only if this attempt commits.
// slot may be nil for fire-and-forget; if non-nil, it receives the
// dispatcher's handle: after fn has run when the dispatcher is a
// dispatch.Tracker (such as dispatch.Pool), or as soon as Dispatch returns
// otherwise.
func (t *Transaction) Async(slot *dispatch.Future, fn dispatch.Continuation) {
	t.async = append(t.async, asyncEntry{slot: slot, fn: fn})
}

// Clear discards all buffered state, returning the Transaction to the state
// a freshly constructed one from the Factory would have (apart from
// attemptID, which Clear does not touch -- callers that want a new attempt
// id should obtain a new Transaction from the Factory instead).
func (t *Transaction) Clear() {
	t.working = nil
	t.readLog = make(map[uint64]*cell.Snapshot)
	t.written = make(map[uint64]bool)
	t.async = nil
}

// Commit runs the five-phase protocol described in the engine's design:
// lock acquisition in cell-id order, read-log validation, write
// application, async dispatch, and release. It returns nil on success,
// ErrConflict on a validation failure, and any other error only for
// conditions this package cannot reach (reserved for future fatal paths).
func (t *Transaction) Commit() error {
	for _, e := range t.working {
		e.ref.Lock()
	}

	for id, want := range t.readLog {
		e := t.entryByID(id)
		if e == nil || !e.ref.Equals(want) {
			t.unlockAll()
			t.Clear()
			return ErrConflict
		}
	}

	for _, e := range t.working {
		if t.written[e.ref.ID()] {
			e.ref.WriteFrom(e.value)
		}
	}

	commitID := atomic.AddUint64(&commitCounter, 1)
	for _, a := range t.async {
		t.dispatchOne(a, commitID)
	}

	t.unlockAll()
	return nil
}

func (t *Transaction) entryByID(id uint64) *entry {
	i := t.findIndex(id)
	if i < len(t.working) && t.working[i].ref.ID() == id {
		return t.working[i]
	}
	return nil
}

func (t *Transaction) dispatchOne(a asyncEntry, commitID uint64) {
	ctx := dispatch.Context{CommitID: commitID, Attempt: t.attemptID}
	if tracker, ok := t.dispatcher.(dispatch.Tracker); ok {
		tracker.Track(a.fn, ctx, a.slot)
		return
	}
	h := t.dispatcher.Dispatch(a.fn, ctx)
	if a.slot != nil {
		a.slot.Set(h)
	}
}

func (t *Transaction) unlockAll() {
	for i := len(t.working) - 1; i >= 0; i-- {
		t.working[i].ref.Unlock()
	}
}
