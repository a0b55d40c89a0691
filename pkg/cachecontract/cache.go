// Package cachecontract defines the Cache external-collaborator contract
// the base-condition evaluator and the eligible-predicate-set cache depend
// on, plus a default in-process implementation backed by ristretto's
// W-TinyLFU admission cache.
package cachecontract

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Cache is a bounded, thread-safe key/value store with per-entry TTL. It is
// an external collaborator: the engine depends only on this interface, not
// on any particular cache implementation or backing store.
//
// Implementations must be safe for concurrent use by multiple goroutines.
// A cache miss and a cache error are indistinguishable to callers — Get
// simply returns ok == false in both cases, per the evaluator's graceful-
// degradation requirement (a cache outage degrades to recomputation, never
// to an evaluation error).
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	SetWithTTL(key K, value V, cost int64, ttl time.Duration)
	Del(key K)
	Close()
}

// Ristretto adapts github.com/dgraph-io/ristretto/v2 to the Cache contract.
type Ristretto[K comparable, V any] struct {
	cache *ristretto.Cache[K, V]
}

// RistrettoConfig tunes the admission cache's size bookkeeping.
type RistrettoConfig struct {
	// NumCounters should be roughly 10x the expected number of distinct
	// keys, per ristretto's sizing guidance.
	NumCounters int64
	// MaxCost bounds total accounted cost (here, one unit per entry unless
	// the caller passes a larger cost to SetWithTTL).
	MaxCost int64
	// BufferItems is ristretto's internal ring-buffer size; 64 is the
	// library's own recommended default.
	BufferItems int64
}

// DefaultRistrettoConfig returns sane defaults for a cache expected to hold
// on the order of capacity entries.
func DefaultRistrettoConfig(capacity int64) RistrettoConfig {
	return RistrettoConfig{
		NumCounters: capacity * 10,
		MaxCost:     capacity,
		BufferItems: 64,
	}
}

// NewRistretto constructs a Ristretto-backed Cache. An error here means
// ristretto itself rejected the configuration (e.g. non-positive
// NumCounters); it is not a runtime cache-operation error.
func NewRistretto[K comparable, V any](cfg RistrettoConfig) (*Ristretto[K, V], error) {
	c, err := ristretto.NewCache(&ristretto.Config[K, V]{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
	})
	if err != nil {
		return nil, err
	}
	return &Ristretto[K, V]{cache: c}, nil
}

// Get implements Cache.
func (r *Ristretto[K, V]) Get(key K) (V, bool) {
	return r.cache.Get(key)
}

// SetWithTTL implements Cache. It does not block for the value to become
// visible to subsequent Get calls — ristretto applies writes asynchronously
// through an internal buffer, which is why a Set-then-immediate-Get can
// legitimately miss; callers must tolerate that as an ordinary cache miss.
func (r *Ristretto[K, V]) SetWithTTL(key K, value V, cost int64, ttl time.Duration) {
	r.cache.SetWithTTL(key, value, cost, ttl)
}

// Del implements Cache.
func (r *Ristretto[K, V]) Del(key K) {
	r.cache.Del(key)
}

// Close implements Cache.
func (r *Ristretto[K, V]) Close() {
	r.cache.Close()
}

// Wait blocks until all pending writes have been applied. Tests use this to
// make SetWithTTL-then-Get deterministic; production code should not need
// it.
func (r *Ristretto[K, V]) Wait() {
	r.cache.Wait()
}
