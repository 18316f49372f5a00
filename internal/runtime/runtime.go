// Package runtime implements the allocator contract (§4.3): the one
// collaborator the Instance materializer depends on for pages of code,
// heap, and table memory, with a callback-driven W^X discipline.
package runtime

import (
	"github.com/charlycst/coral/api"
	"github.com/charlycst/coral/internal/wasmir"
)

// MemoryArea is an opaque chunk of memory with an explicit permission
// state. Contents may be accessed only through this interface; callers
// must not retain a writable view past a permission transition.
type MemoryArea interface {
	// AsPtr returns the address of the first byte of the area.
	AsPtr() uintptr
	// AsBytes returns a read-only view of the area.
	AsBytes() []byte
	// AsBytesMut returns a writable view of the area. The caller must
	// hold write permission (SetWrite) or this traps at the machine
	// level.
	AsBytesMut() []byte
	// Size returns the size of the area, in bytes.
	Size() int

	// SetExecutable disables write and sets execute permission.
	SetExecutable() error
	// SetWrite disables execute and sets write permission.
	SetWrite() error
	// SetReadOnly disables execute and write permissions.
	SetReadOnly() error

	// ExtendBy grows the area by at least n bytes. Non-goals exclude
	// memory growth for Wasm-visible heaps; this exists for the
	// allocator contract's own bookkeeping (e.g. growing a table arena)
	// and is not wired to any Wasm-visible grow instruction.
	ExtendBy(n int) error
}

// AllocErrorKind classifies a Runtime contract violation (§4.3 invariant,
// §7 RuntimeError).
type AllocErrorKind byte

const (
	// CallbackNotInvoked means the runtime failed to invoke the supplied
	// fill/initialize callback exactly once.
	CallbackNotInvoked AllocErrorKind = iota
	// OutOfMemory means the underlying page allocator refused the
	// request.
	OutOfMemory
	// PermissionDenied means an mprotect-style transition failed.
	PermissionDenied
)

// AllocError is returned by Runtime methods on allocator contract
// violations.
type AllocError struct {
	Kind   AllocErrorKind
	Detail string
}

func (e *AllocError) Error() string {
	switch e.Kind {
	case CallbackNotInvoked:
		return "runtime: fill callback was not invoked: " + e.Detail
	case OutOfMemory:
		return "runtime: out of memory: " + e.Detail
	case PermissionDenied:
		return "runtime: permission denied: " + e.Detail
	}
	return "runtime: allocation error: " + e.Detail
}

// Runtime is the collaborator supplied from outside the core that
// provides pages of code, heap, and table memory under a W^X policy.
type Runtime interface {
	// AllocCode allocates a memory area of at least size bytes in
	// write-only mode, invokes fill to populate and relocate it, then
	// atomically transitions the area to execute-only. fill must be
	// invoked exactly once; if the runtime fails to do so, AllocCode
	// returns a RuntimeError-class AllocError.
	AllocCode(size int, fill func(area MemoryArea) error) (MemoryArea, error)

	// AllocHeap allocates a readable/writable area of at least sizeBytes
	// and invokes initialize exactly once to zero-fill it and apply data
	// segments.
	AllocHeap(sizeBytes int, kind wasmir.HeapKind, initialize func(area MemoryArea) error) (MemoryArea, error)

	// AllocTable returns a fixed-length backing store sized to cover a
	// table with the given bounds; slots are initialized to the
	// host-chosen "invalid handle" value (zero).
	AllocTable(min, max uint32, elementType api.ValueType) ([]uint64, error)
}
