package logctx

import (
	"sync"
	"sync/atomic"
)

// lazy holds a value that is created at most once, on first use.
//
// Readers take the atomic fast path once the value is published; the
// first callers race for the mutex and re-check before running init.
type lazy[T any] struct {
	mu  sync.Mutex
	val atomic.Pointer[T]
}

// get returns the value, calling init to create it if needed. init must
// not return nil.
func (l *lazy[T]) get(init func() *T) *T {
	if v := l.val.Load(); v != nil {
		return v
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if v := l.val.Load(); v != nil {
		return v
	}
	v := init()
	l.val.Store(v)
	return v
}

// peek returns the value if it has been created.
func (l *lazy[T]) peek() *T {
	return l.val.Load()
}
