// Copyright 2024 The docai Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package ds

import (
	"sort"
	"sync"
)

// Analog of standard map but safe to use among many goroutines.
type AsyncMap[K comparable, V any] struct {
	sync.Mutex
	data map[K]V
}

// Instantiate new empty AsyncMap of given types.
func NewAsyncMap[K comparable, V any]() *AsyncMap[K, V] {
	return &AsyncMap[K, V]{
		data: map[K]V{},
	}
}

// Add value for a given key to the map. If given key already exists in the map
// it will be overwritten (consistent with standard map[K]V).
func (am *AsyncMap[K, V]) Add(key K, value V) {
	am.Lock()
	am.data[key] = value
	am.Unlock()
}

// AddIfAbsent adds value for given key only when the key is not in the map
// yet. Returns true if the value was added.
func (am *AsyncMap[K, V]) AddIfAbsent(key K, value V) bool {
	am.Lock()
	defer am.Unlock()
	if _, exists := am.data[key]; exists {
		return false
	}
	am.data[key] = value
	return true
}

// Get gets value from the map for given key. If given key does not exists, the
// second return value will be false.
func (am *AsyncMap[K, V]) Get(key K) (V, bool) {
	am.Lock()
	defer am.Unlock()
	value, exists := am.data[key]
	return value, exists
}

// Delete deletes key and corresponding value from the map.
func (am *AsyncMap[K, V]) Delete(key K) {
	am.Lock()
	delete(am.data, key)
	am.Unlock()
}

// Len returns size of the map.
func (am *AsyncMap[K, V]) Len() int {
	am.Lock()
	defer am.Unlock()
	return len(am.data)
}

// SortedKeys returns keys of the map sorted by given less function.
func (am *AsyncMap[K, V]) SortedKeys(less func(a, b K) bool) []K {
	am.Lock()
	keys := make([]K, 0, len(am.data))
	for key := range am.data {
		keys = append(keys, key)
	}
	am.Unlock()
	sort.Slice(keys, func(i, j int) bool { return less(keys[i], keys[j]) })
	return keys
}
