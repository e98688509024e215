// Package pool wraps sync.Pool with a typed interface.
package pool

import "sync"

// Pool is a generic free-list built on sync.Pool.
type Pool[T any] struct {
	inner sync.Pool
}

// New creates a pool whose items are produced by newFn when empty.
func New[T any](newFn func() T) *Pool[T] {
	return &Pool[T]{
		inner: sync.Pool{New: func() any { return newFn() }},
	}
}

// Get takes an item from the pool, constructing one if needed.
func (p *Pool[T]) Get() T {
	return p.inner.Get().(T)
}

// Put returns an item for reuse.
func (p *Pool[T]) Put(item T) {
	p.inner.Put(item)
}
