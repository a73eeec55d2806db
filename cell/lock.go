package cell

import "sync"

// lockTicket is one pending or active attempt to acquire a fairLock.
// Renamed from the teacher's pkg/locks/rwlock.go Task, which kept a
// *txns.Txn on each waiting task; this package has no txn type to reference
// (txn depends on cell, not the other way around), so tickets are identified
// by a lock-local monotonic id instead of a transaction identity.
type lockTicket struct {
	id     uint64
	isRead bool
	next   *lockTicket
}

// fairLock is a FIFO-ordered exclusive/shared lock, adapted from the
// teacher's pkg/locks/rwlock.go RWLock. It drops the Operator/ActiveLock/
// InactiveLock hooks the teacher used to feed a deadlock detector (this
// engine's commit protocol acquires cell locks in a fixed global order and
// so cannot deadlock) and the CancelTask/tryUpgrade paths that existed
// solely to support that detector's rollback.
type fairLock struct {
	mu   sync.Mutex
	cond *sync.Cond

	waitingHead, waitingTail *lockTicket
	ticketCounter            uint64
	allowTicketID            uint64

	writing bool
	readers map[uint64]struct{}
}

func newFairLock() *fairLock {
	l := &fairLock{readers: map[uint64]struct{}{}}
	l.cond = sync.NewCond(&l.mu)
	return l
}

func (l *fairLock) pushTicket(isRead bool) *lockTicket {
	l.ticketCounter++
	t := &lockTicket{id: l.ticketCounter, isRead: isRead}
	if l.waitingTail == nil {
		l.waitingHead = t
	} else {
		l.waitingTail.next = t
	}
	l.waitingTail = t
	return t
}

func (l *fairLock) popTicket() {
	if l.waitingHead == nil {
		return
	}
	l.waitingHead = l.waitingHead.next
	if l.waitingHead == nil {
		l.waitingTail = nil
	}
}

// admitNextWaiters pops the next run of waiters that may now proceed: either
// every contiguous reader at the head of the queue, or a single writer. The
// lock is handed to them here (readers registered, writer marked as writing),
// so no newcomer can acquire it before they wake.
func (l *fairLock) admitNextWaiters() {
	if l.waitingHead == nil {
		return
	}
	if l.waitingHead.isRead {
		max := l.waitingHead.id
		l.readers[max] = struct{}{}
		l.popTicket()
		for l.waitingHead != nil && l.waitingHead.isRead {
			max = l.waitingHead.id
			l.readers[max] = struct{}{}
			l.popTicket()
		}
		l.allowTicketID = max
	} else {
		l.allowTicketID = l.waitingHead.id
		l.writing = true
		l.popTicket()
	}
}

func (l *fairLock) waitTicket(t *lockTicket) {
	for t.id > l.allowTicketID {
		l.cond.Wait()
	}
}

// Lock acquires the exclusive section, blocking until no reader or writer
// holds it and this attempt reaches the front of the FIFO queue.
func (l *fairLock) Lock() {
	l.mu.Lock()
	if l.writing || len(l.readers) != 0 || l.waitingHead != nil {
		t := l.pushTicket(false)
		l.waitTicket(t)
	}
	l.writing = true
	l.mu.Unlock()
}

// Unlock releases the exclusive section and admits the next waiter(s).
func (l *fairLock) Unlock() {
	l.mu.Lock()
	l.writing = false
	l.admitNextWaiters()
	l.mu.Unlock()
	l.cond.Broadcast()
}

// RLock acquires a shared reader slot and returns a ticket id to hand back
// to RUnlock.
func (l *fairLock) RLock() uint64 {
	l.mu.Lock()
	if l.writing || l.waitingHead != nil {
		t := l.pushTicket(true)
		l.waitTicket(t)
		l.mu.Unlock()
		return t.id // registered as a reader by admitNextWaiters
	}
	l.ticketCounter++
	id := l.ticketCounter
	l.readers[id] = struct{}{}
	l.mu.Unlock()
	return id
}

// RUnlock releases the reader slot identified by id.
func (l *fairLock) RUnlock(id uint64) {
	l.mu.Lock()
	delete(l.readers, id)
	broadcast := false
	if len(l.readers) == 0 {
		l.admitNextWaiters()
		broadcast = true
	}
	l.mu.Unlock()
	if broadcast {
		l.cond.Broadcast()
	}
}
