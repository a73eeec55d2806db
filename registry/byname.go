package registry

import (
	"sync"

	"github.com/cespare/xxhash"

	"txcell/cell"
	"txcell/config"
	"txcell/logger"
)

// nameShard is one bucket of Names' sharded map, each independently locked
// so that registrations under different shards never contend.
type nameShard struct {
	mu      sync.RWMutex
	entries map[string]cell.Ref
}

// Names is a string-keyed directory of cells, adapted from the teacher's
// engines.StringEngine: the teacher hashes a string key with xxhash and
// hands the resulting uint64 to its numeric engine so one storage engine
// serves both key types. This registry has no numeric engine to delegate
// to (ByID already exists for that), so the hash instead picks which of a
// fixed number of independently-locked shards a name lives in, to keep
// contention on a busy name directory low.
type Names struct {
	shards []*nameShard
}

// NewNames builds a Names directory with config.DefaultRegistryShards
// shards.
func NewNames() *Names {
	return NewNamesWithShardCount(config.DefaultRegistryShards)
}

// NewNamesWithShardCount builds a Names directory with n shards. n<=0 falls
// back to config.DefaultRegistryShards.
func NewNamesWithShardCount(n int) *Names {
	if n <= 0 {
		n = config.DefaultRegistryShards
	}
	shards := make([]*nameShard, n)
	for i := range shards {
		shards[i] = &nameShard{entries: make(map[string]cell.Ref)}
	}
	return &Names{shards: shards}
}

func (n *Names) shardFor(name string) *nameShard {
	h := xxhash.Sum64String(name)
	return n.shards[h%uint64(len(n.shards))]
}

// Register binds name to ref, overwriting any prior binding.
func (n *Names) Register(name string, ref cell.Ref) {
	s := n.shardFor(name)
	s.mu.Lock()
	s.entries[name] = ref
	s.mu.Unlock()
	logger.Inst.Debugw("registry: registered cell by name", "name", name)
}

// Lookup returns the ref bound to name, or nil if there is none.
func (n *Names) Lookup(name string) cell.Ref {
	s := n.shardFor(name)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[name]
}

// Deregister removes name's binding, reporting whether one existed.
func (n *Names) Deregister(name string) bool {
	s := n.shardFor(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[name]; !ok {
		return false
	}
	delete(s.entries, name)
	logger.Inst.Debugw("registry: deregistered cell by name", "name", name)
	return true
}
