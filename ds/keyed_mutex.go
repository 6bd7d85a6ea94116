// Copyright 2024 The docai Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package ds

import "sync"

// KeyedMutex provides mutual exclusion per key. Goroutines locking different
// keys never block each other. Locks are allocated on demand and released
// when the last holder or waiter unlocks, so the structure does not grow with
// number of distinct keys seen over time.
type KeyedMutex[K comparable] struct {
	mu    sync.Mutex
	locks map[K]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

// NewKeyedMutex returns new KeyedMutex.
func NewKeyedMutex[K comparable]() *KeyedMutex[K] {
	return &KeyedMutex[K]{locks: make(map[K]*refMutex)}
}

// Lock locks given key and returns function which unlocks it. The unlock
// function must be called exactly once.
func (km *KeyedMutex[K]) Lock(key K) (unlock func()) {
	km.mu.Lock()
	rm, exists := km.locks[key]
	if !exists {
		rm = &refMutex{}
		km.locks[key] = rm
	}
	rm.refs++
	km.mu.Unlock()

	rm.Lock()
	return func() {
		rm.Unlock()
		km.mu.Lock()
		rm.refs--
		if rm.refs == 0 {
			delete(km.locks, key)
		}
		km.mu.Unlock()
	}
}

// Len returns number of keys which are currently locked or awaited.
func (km *KeyedMutex[K]) Len() int {
	km.mu.Lock()
	defer km.mu.Unlock()
	return len(km.locks)
}
