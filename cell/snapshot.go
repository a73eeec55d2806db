package cell

import "fmt"

// Snapshot is an owned, detached value copy with no identity, independent of
// any Cell. A transaction's working set, read log, and pending writes are
// all made of Snapshots. A first read stores the same *Snapshot in both the
// working set and the read log; the engine never writes through an existing
// Snapshot, and a later write to the cell replaces its working-set pointer,
// so the read-log entry keeps the value as first read.
type Snapshot struct {
	value any
}

// NewSnapshot wraps a caller-supplied value, for seeding a Cell's initial
// state or for staging a blind write.
func NewSnapshot[T any](v T) *Snapshot {
	return &Snapshot{value: v}
}

// Value type-asserts s's payload back to T. A mismatch means a Snapshot
// produced for one Cell's element type was handed to code expecting
// another, which is a programmer error the engine cannot recover from.
func Value[T any](s *Snapshot) T {
	v, ok := s.value.(T)
	if !ok {
		var zero T
		panic(fmt.Sprintf("cell: type violation: snapshot holds %T, want %T", s.value, zero))
	}
	return v
}
