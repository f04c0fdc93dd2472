package generic

import (
	"sync"
	"sync/atomic"
)

// Pool recycles values of one type on top of sync.Pool.
type Pool[T any] struct {
	pool      sync.Pool
	reset     func(T)
	keep      func(T) bool
	discarded atomic.Uint64
}

// PoolOption configures a Pool.
type PoolOption[T any] func(*Pool[T], func() T)

// WithReset clears values as they are returned.
func WithReset[T any](reset func(T)) PoolOption[T] {
	return func(p *Pool[T], _ func() T) { p.reset = reset }
}

// WithKeep drops returned values that fail keep, such as buffers that grew
// past a useful size.
func WithKeep[T any](keep func(T) bool) PoolOption[T] {
	return func(p *Pool[T], _ func() T) { p.keep = keep }
}

// WithWarm pre-fills the pool with n fresh values.
func WithWarm[T any](n int) PoolOption[T] {
	return func(p *Pool[T], generate func() T) {
		for i := 0; i < n; i++ {
			p.pool.Put(generate())
		}
	}
}

func NewPool[T any](generate func() T, opts ...PoolOption[T]) *Pool[T] {
	p := &Pool[T]{}
	p.pool.New = func() any { return generate() }
	for _, opt := range opts {
		opt(p, generate)
	}
	return p
}

func (p *Pool[T]) Get() T {
	return p.pool.Get().(T)
}

func (p *Pool[T]) Put(value T) {
	if p.keep != nil && !p.keep(value) {
		p.discarded.Add(1)
		return
	}
	if p.reset != nil {
		p.reset(value)
	}
	p.pool.Put(value)
}

// Discarded counts values rejected by the keep option.
func (p *Pool[T]) Discarded() uint64 { return p.discarded.Load() }
