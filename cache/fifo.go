// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package cache implements the bounded lookup cache placed in front of remote
// debug symbol lookups.
package cache // import "github.com/stacksym/stacksym/cache"

import (
	"sync"
	"sync/atomic"

	lru "github.com/elastic/go-freelru"
	"github.com/zeebo/xxh3"
)

// FIFO is a fixed capacity key/value store that evicts in insertion order.
//
// Reads never refresh an entry, so the least recently inserted entry is always the
// next one to go. A FIFO created with a capacity <= 0 is disabled: every call is a
// no-op. FIFO is safe for concurrent use.
type FIFO[V any] struct {
	mu  sync.Mutex
	lru *lru.LRU[string, V]

	// Internal statistics
	hit     atomic.Uint64
	miss    atomic.Uint64
	added   atomic.Uint64
	evicted atomic.Uint64
}

type Statistics struct {
	// Number of lookups that found an entry.
	Hit uint64
	// Number of lookups that found nothing.
	Miss uint64
	// Number of entries that were added to the cache.
	Added uint64
	// Number of entries that were evicted to make room.
	Evicted uint64
}

func hashString(s string) uint32 {
	return uint32(xxh3.HashString(s))
}

// New creates a cache holding at most capacity entries.
func New[V any](capacity int) (*FIFO[V], error) {
	c := &FIFO[V]{}
	if capacity <= 0 {
		return c, nil
	}
	store, err := lru.New[string, V](uint32(capacity), hashString)
	if err != nil {
		return nil, err
	}
	c.lru = store
	return c, nil
}

// Enabled reports whether the cache can hold entries at all.
func (c *FIFO[V]) Enabled() bool {
	return c.lru != nil
}

// Insert stores value under key and returns it. If key is already present the
// stored value is kept and the call still succeeds. The boolean is false only for
// a disabled cache.
func (c *FIFO[V]) Insert(key string, value V) (V, bool) {
	if c.lru == nil {
		var zero V
		return zero, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lru.Contains(key) {
		return value, true
	}
	if c.lru.Add(key, value) {
		c.evicted.Add(1)
	}
	c.added.Add(1)
	return value, true
}

// Get returns the value stored under key without changing eviction order.
func (c *FIFO[V]) Get(key string) (V, bool) {
	if c.lru == nil {
		var zero V
		return zero, false
	}

	c.mu.Lock()
	value, ok := c.lru.Peek(key)
	c.mu.Unlock()

	if ok {
		c.hit.Add(1)
	} else {
		c.miss.Add(1)
	}
	return value, ok
}

// Len returns the number of entries currently held.
func (c *FIFO[V]) Len() int {
	if c.lru == nil {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// GetAndResetStatistics returns the internal statistics and resets all values to 0.
func (c *FIFO[V]) GetAndResetStatistics() Statistics {
	return Statistics{
		Hit:     c.hit.Swap(0),
		Miss:    c.miss.Swap(0),
		Added:   c.added.Swap(0),
		Evicted: c.evicted.Swap(0),
	}
}
