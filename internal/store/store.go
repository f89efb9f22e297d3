// Package store defines the record-store contract every subsystem persists
// through: key/value with TTL, counters, sets, sorted sets, pattern scans,
// and pub/sub. It is modeled one-for-one on the original Redis client
// trait this control plane was built against, with the sorted-set and
// pattern-scan operations spec.md §6 adds on top.
package store

import (
	"context"
	"time"
)

// ScoredMember is one entry of a sorted-set range result.
type ScoredMember struct {
	Member string
	Score  float64
}

// Subscription delivers messages published to a channel until Close is
// called. Canceling the context passed to Subscribe does not end it.
type Subscription interface {
	Channel() <-chan string
	Close() error
}

// Store is the full record-store contract. Every subsystem package
// depends on this interface, never on a concrete driver, so tests can run
// against the in-memory implementation.
type Store interface {
	// Get decodes the value stored at key into dst. It returns
	// apperr.NotFound if the key doesn't exist or has expired.
	Get(ctx context.Context, key string, dst any) error

	// Set encodes value and stores it at key. A zero ttl means no
	// expiration.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error

	// SetIfAbsent stores value at key only if key does not already
	// exist, returning true if the set happened.
	SetIfAbsent(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)

	// Delete removes key, returning true if it existed.
	Delete(ctx context.Context, key string) (bool, error)

	// Increment adds by to the integer counter at key, creating it at
	// 0 first if absent, and returns the new value.
	Increment(ctx context.Context, key string, by int64) (int64, error)

	// AddToSet adds member to the set at key, returning true if it was
	// newly added.
	AddToSet(ctx context.Context, key string, member string) (bool, error)

	// SetMembers returns every member of the set at key.
	SetMembers(ctx context.Context, key string) ([]string, error)

	// SortedSetAdd adds or updates member with score in the sorted set
	// at key.
	SortedSetAdd(ctx context.Context, key string, member string, score float64) error

	// SortedSetRangeByScore returns members with score in [min, max],
	// ascending.
	SortedSetRangeByScore(ctx context.Context, key string, min, max float64) ([]ScoredMember, error)

	// SortedSetTrimToRank keeps only the top-scoring keepCount members
	// of the sorted set at key, discarding the rest.
	SortedSetTrimToRank(ctx context.Context, key string, keepCount int) error

	// KeysByPattern returns every key matching a glob-style pattern
	// (e.g. "exec:logs:*"). Intended only for background sweeps.
	KeysByPattern(ctx context.Context, pattern string) ([]string, error)

	// Publish encodes message and publishes it to channel, returning
	// the number of subscribers that received it.
	Publish(ctx context.Context, channel string, message any) (int64, error)

	// Subscribe opens a subscription to channel.
	Subscribe(ctx context.Context, channel string) (Subscription, error)

	// HealthCheck reports whether the underlying store is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases any underlying connection resources.
	Close() error
}
