// Package kobj implements a tiny mutex-guarded, append-only object
// collection: a handle table handing out dense indices for host objects
// that a native module wants to expose to Wasm code as opaque externref
// handles (§4.5, §5). Grounded on original_source's
// kernel/src/runtime/kernel_objects.rs (KernelObjectCollection), built as
// an explicit, constructible type rather than a process-wide static per
// spec.md §9's Go-rewrite guidance to pass such state as explicit context
// where possible.
package kobj

import "sync"

// Collection holds objects of type T, addressed by a dense, monotonically
// increasing Index. The zero value is ready to use.
type Collection[T any] struct {
	mu    sync.Mutex
	items []T
}

// Index is a Collection handle: a plain position, not a generation-checked
// reference (§9 Non-goals exclude externref beyond opaque handles — no
// revocation or reuse is implemented).
type Index uint32

// New returns an empty Collection.
func New[T any]() *Collection[T] {
	return &Collection[T]{}
}

// Insert appends object to the collection and returns its new Index.
func (c *Collection[T]) Insert(object T) Index {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := Index(len(c.items))
	c.items = append(c.items, object)
	return idx
}

// Get retrieves the object at idx, or the zero value and false if idx is
// out of range.
func (c *Collection[T]) Get(idx Index) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if int(idx) >= len(c.items) {
		var zero T
		return zero, false
	}
	return c.items[idx], true
}

// Len returns the current number of objects in the collection.
func (c *Collection[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
