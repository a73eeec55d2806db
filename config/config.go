// Package config collects the tunable defaults used across the engine's
// ambient packages. It holds named constants rather than a file or
// environment loader — there is no persisted configuration anywhere in this
// module.
package config

import "time"

// DefaultMaxAttempts is the attempt cap Atomically uses when the caller does
// not supply WithMaxAttempts. Zero means unbounded.
const DefaultMaxAttempts = 0

// AttemptWarnThreshold is the number of consecutive conflicts on the same
// logical body after which the backoff policy logs a warning, so pathological
// contention is visible without the caller having to instrument their own
// retry loop.
const AttemptWarnThreshold = 25

// DefaultRegistryShards is the number of buckets registry.Names spreads its
// name->cell entries across.
const DefaultRegistryShards = 16

// DefaultBackoffInitialInterval and DefaultBackoffMaxInterval seed the
// exponential backoff policy's cenkalti/backoff.ExponentialBackOff.
const (
	DefaultBackoffInitialInterval = 500 * time.Microsecond
	DefaultBackoffMaxInterval     = 50 * time.Millisecond
)

// DefaultDispatchWorkers is the size of the default AsyncDispatcher's worker
// pool.
const DefaultDispatchWorkers = 8

// DefaultReapInterval is how often the default dispatcher's reaper sweeps its
// records of tracked handles for ones older than DefaultFutureTTL.
const DefaultReapInterval = 50 * time.Millisecond

// DefaultFutureTTL is how long the default dispatcher keeps its record of a
// tracked handle before the reaper drops it, whether or not it was awaited.
const DefaultFutureTTL = 5 * time.Minute

// SkipListMaxLevel and SkipListProp tune registry.ByID's probabilistic
// skip list, the same two knobs the teacher's index package exposed.
const (
	SkipListMaxLevel = 32
	SkipListProp     = 0.5
)
