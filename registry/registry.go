// Package registry is an opt-in diagnostics and testing directory for
// cells, entirely orthogonal to the commit protocol: nothing in txn or cell
// consults it, and a program that never touches this package still gets a
// fully working engine.
package registry

import "txcell/cell"

// Directory combines ByID and Names lookup behind a single registration
// call, for callers who want both an id-ordered view and a name-keyed view
// of the same cells.
type Directory struct {
	ByID  *ByID
	Names *Names
}

// NewDirectory builds an empty Directory.
func NewDirectory() *Directory {
	return &Directory{ByID: NewByID(), Names: NewNames()}
}

// Register binds ref under its own id (always) and under name (if name is
// non-empty).
func (d *Directory) Register(name string, ref cell.Ref) {
	d.ByID.Put(ref.ID(), ref)
	if name != "" {
		d.Names.Register(name, ref)
	}
}

// Deregister removes ref's id binding and, if name is non-empty, its name
// binding.
func (d *Directory) Deregister(name string, ref cell.Ref) {
	d.ByID.Remove(ref.ID())
	if name != "" {
		d.Names.Deregister(name)
	}
}
