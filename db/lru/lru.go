// Package lru wraps hashicorp/golang-lru with typed accessors.
package lru

import (
	glru "github.com/hashicorp/golang-lru"
)

// Cache implements a least-recently-used cache that is safe for concurrent use.
type Cache[K comparable, V any] struct {
	lru *glru.Cache
}

// New creates a new LRU Cache with a given maximum number of entries.
func New[K comparable, V any](size int) *Cache[K, V] {
	lru, err := glru.New(size)
	if err != nil {
		panic(err)
	}
	return &Cache[K, V]{lru: lru}
}

// Add inserts a new element to the cache
func (l *Cache[K, V]) Add(key K, value V) {
	l.lru.Add(key, value)
}

// Get retrieves an element from the cache
func (l *Cache[K, V]) Get(key K) (V, bool) {
	value, ok := l.lru.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	return value.(V), true
}

// Remove drops key from the cache.
func (l *Cache[K, V]) Remove(key K) {
	l.lru.Remove(key)
}

// Len returns the number of cached entries.
func (l *Cache[K, V]) Len() int {
	return l.lru.Len()
}
