// Package concurrent provides the small set of concurrency primitives
// the parallel dataflow solver needs: a sharded concurrent map for
// publishing per-block results and tracking per-component dependency
// counts, and a fixed-size worker pool for running component solves
// as tasks over the SCC scheduling DAG.
//
// Neither primitive aims to be a general-purpose library; both are
// sized to the solver's access pattern (disjoint-key writers, many
// readers, no contention on any single key once published) rather
// than to arbitrary concurrent workloads.
package concurrent

import "sync"

const defaultShardCount = 16

// ShardedMap is a concurrent map keyed by a small integer type (block
// or component indices), split across a fixed number of mutex-guarded
// shards. Correctness of the dataflow solver does not depend on the
// shard count or hash function — only on each key being written by
// exactly one goroutine, which the scheduler guarantees.
type ShardedMap[K ~int, V any] struct {
	shards []shard[K, V]
}

type shard[K ~int, V any] struct {
	mu sync.Mutex
	m  map[K]V
}

// NewShardedMap returns an empty ShardedMap with capacity hints spread
// across its shards.
func NewShardedMap[K ~int, V any](sizeHint int) *ShardedMap[K, V] {
	n := defaultShardCount
	sm := &ShardedMap[K, V]{shards: make([]shard[K, V], n)}
	perShard := sizeHint / n
	for i := range sm.shards {
		sm.shards[i].m = make(map[K]V, perShard)
	}
	return sm
}

func (sm *ShardedMap[K, V]) shardFor(k K) *shard[K, V] {
	idx := int(k) % len(sm.shards)
	if idx < 0 {
		idx += len(sm.shards)
	}
	return &sm.shards[idx]
}

// Store publishes the value for key k. Callers must never call Store
// twice for the same key from different goroutines: each key has
// exactly one writer by construction of the solver's schedule.
func (sm *ShardedMap[K, V]) Store(k K, v V) {
	s := sm.shardFor(k)
	s.mu.Lock()
	s.m[k] = v
	s.mu.Unlock()
}

// Load returns the value stored for k, if any.
func (sm *ShardedMap[K, V]) Load(k K) (V, bool) {
	s := sm.shardFor(k)
	s.mu.Lock()
	v, ok := s.m[k]
	s.mu.Unlock()
	return v, ok
}

// Len returns the total number of entries across all shards.
func (sm *ShardedMap[K, V]) Len() int {
	n := 0
	for i := range sm.shards {
		sm.shards[i].mu.Lock()
		n += len(sm.shards[i].m)
		sm.shards[i].mu.Unlock()
	}
	return n
}

// Range calls fn for every (key, value) pair currently stored. fn
// must not call back into sm.
func (sm *ShardedMap[K, V]) Range(fn func(K, V)) {
	for i := range sm.shards {
		sm.shards[i].mu.Lock()
		for k, v := range sm.shards[i].m {
			fn(k, v)
		}
		sm.shards[i].mu.Unlock()
	}
}

// CounterMap is a sharded map of remaining-dependency counters, one
// per scheduling-graph vertex, with atomic decrement-and-test. The
// component that brings a counter to zero is the sole one that may
// spawn the corresponding task, per the parallel solver's scheduling
// contract.
type CounterMap[K ~int] struct {
	shards []counterShard[K]
}

type counterShard[K ~int] struct {
	mu sync.Mutex
	m  map[K]int
}

// NewCounterMap returns an empty CounterMap.
func NewCounterMap[K ~int](sizeHint int) *CounterMap[K] {
	n := defaultShardCount
	cm := &CounterMap[K]{shards: make([]counterShard[K], n)}
	perShard := sizeHint / n
	for i := range cm.shards {
		cm.shards[i].m = make(map[K]int, perShard)
	}
	return cm
}

func (cm *CounterMap[K]) shardFor(k K) *counterShard[K] {
	idx := int(k) % len(cm.shards)
	if idx < 0 {
		idx += len(cm.shards)
	}
	return &cm.shards[idx]
}

// Set initializes the counter for k. Must be called before any
// DecrementAndCheckZero for the same key, and only once per key.
func (cm *CounterMap[K]) Set(k K, n int) {
	s := cm.shardFor(k)
	s.mu.Lock()
	s.m[k] = n
	s.mu.Unlock()
}

// DecrementAndCheckZero atomically decrements the counter at key k and
// reports whether this call brought it to zero. Exactly one caller,
// across all goroutines, ever observes that transition for a given
// key.
func (cm *CounterMap[K]) DecrementAndCheckZero(k K) bool {
	s := cm.shardFor(k)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[k]--
	return s.m[k] == 0
}
