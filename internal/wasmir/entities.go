package wasmir

import "github.com/charlycst/coral/api"

// EntityShape tags which of the three storage shapes an entity descriptor
// takes: owned by this module, forwarded to an import, or (funcs and tables
// only) backed directly by host-native state.
type EntityShape byte

const (
	// ShapeOwned means the entity is materialized by this module's own
	// instantiation (a heap allocated fresh, a function compiled into the
	// code blob, ...).
	ShapeOwned EntityShape = iota
	// ShapeImported means the entity is a forwarding record: resolution
	// recurses into a named dependency instance.
	ShapeImported
	// ShapeNative means the entity is backed directly by host-provided
	// state (a SystemV-callable code pointer, a pre-built table array). Only valid
	// for FuncInfo and TableInfo; see nativemod.
	ShapeNative
)

// HeapKind distinguishes a heap with an immediate (static) page bound from
// one whose bound must be checked dynamically.
type HeapKind struct {
	// Dynamic is true when the heap has no fixed maximum; MaxPages is
	// unused in that case.
	Dynamic  bool
	MaxPages uint32
}

// HeapPageSize is the fixed WebAssembly page size in bytes.
const HeapPageSize = 65536

// FuncInfo describes a single function index's storage shape.
type FuncInfo struct {
	Shape EntityShape

	// ShapeOwned: byte offset of the function's first instruction within
	// the module's code blob. Invariant: Offset < len(code) after
	// instantiation, and the byte at Offset is the start of a valid
	// generated function.
	Offset uint32

	// ShapeImported.
	ImportModule ImportIndex
	ImportName   string

	// ShapeNative: host-provided code pointer, set by nativemod.
	NativePtr uintptr

	// Type is the function's signature. Present for every shape so that
	// import type-checking (§4.5) has a concrete signature to compare
	// against — not carried by the original Rust IR ("TODO: add
	// signatures" in FuncInfo there), supplemented here since structural
	// checking needs it.
	Type api.FuncType
}

// IsImported reports whether f forwards to a dependency instance.
func (f FuncInfo) IsImported() bool { return f.Shape == ShapeImported }

// HeapInfo describes a single heap index's storage shape.
type HeapInfo struct {
	Shape EntityShape

	// ShapeOwned.
	MinPages uint32
	Kind     HeapKind

	// ShapeImported.
	ImportModule ImportIndex
	ImportName   string
}

// GlobInit is the initial value of an owned global, tagged by its wasm
// value type. Only one field is meaningful, selected by Type.
type GlobInit struct {
	Type api.ValueType
	I32  int32
	I64  int64
	F32  uint32 // raw bits, see api.EncodeF32/DecodeF32
	F64  uint64 // raw bits, see api.EncodeF64/DecodeF64
}

// AsU64 returns the 8-byte inline VMContext encoding of the initializer.
func (g GlobInit) AsU64() uint64 {
	switch g.Type {
	case api.ValueTypeI32:
		return uint64(uint32(g.I32))
	case api.ValueTypeI64:
		return uint64(g.I64)
	case api.ValueTypeF32:
		return uint64(g.F32)
	case api.ValueTypeF64:
		return g.F64
	}
	return 0
}

// GlobInfo describes a single global index's storage shape. Globals are
// mutable by default and are not marked readonly, reserving the option of
// a future hot-swap protocol (spec §9; no such protocol is implemented).
type GlobInfo struct {
	Shape EntityShape

	// ShapeOwned.
	Init GlobInit

	// ShapeImported.
	ImportModule ImportIndex
	ImportName   string
}

// TableInfo describes a single table index's storage shape. Tables are
// fixed-size for the lifetime of the instance: Non-goals exclude table
// growth.
type TableInfo struct {
	Shape EntityShape

	// ShapeOwned.
	Min, Max    uint32
	ElementType api.ValueType

	// ShapeImported.
	ImportModule ImportIndex
	ImportName   string

	// ShapeNative: host-supplied backing array, set by nativemod.
	NativeArray []uint64
}

// Size returns the fixed element count of an owned/native table: Max if
// present (Max != 0), else Min.
func (t TableInfo) Size() uint32 {
	if t.Max != 0 {
		return t.Max
	}
	return t.Min
}
