package wasmir

// VMContextLayout is the ordered list of which heaps, imported functions,
// imported modules, and globals occupy VMContext slots, in the fixed
// region order of §4.6: heaps, imported funcs, imported modules, globals.
// Tables is a fifth region, appended after globals. §4.1 describes tables
// as two-slot VMContext entries (array pointer + bound) but §4.6's literal
// region list predates tables, which have no counterpart in the original
// system at all; this repo resolves the tension by giving every declared
// table (owned, imported, or native) its own two-slot region rather than
// dropping §4.1's addressing description. See DESIGN.md.
type VMContextLayout struct {
	Heaps   []HeapIndex
	Funcs   []FuncIndex // imported functions only; owned functions need no slot
	Globs   []GlobIndex
	Imports []ImportIndex
	Tables  []TableIndex
}

// DataSegment targets an owned heap with a byte range applied at
// instantiation time. Supplemented from the original's env.rs, which
// tracks segments on the builder rather than the immutable Module IR; kept
// here so the Instance materializer needs no separate parser-event replay.
type DataSegment struct {
	Heap   HeapIndex
	Offset uint32
	Data   []byte
}

// ElementSegment targets an owned table with a sequence of function
// indices applied at instantiation time. Supplemented alongside
// DataSegment for the same reason.
type ElementSegment struct {
	Table  TableIndex
	Offset uint32
	Funcs  []FuncIndex
}

// Module is the immutable module-level IR produced by the module
// environment: the layout contract between compilation and
// instantiation. Nothing here changes after compilation returns it.
type Module struct {
	Funcs   map[FuncIndex]FuncInfo
	Heaps   map[HeapIndex]HeapInfo
	Globs   map[GlobIndex]GlobInfo
	Tables  map[TableIndex]TableInfo
	Imports map[ImportIndex]string // imported module name, by index

	// Code is the flat, not-yet-relocated code blob. Function offsets in
	// FuncInfo.Owned index into this slice.
	Code []byte

	Relocs []Reloc

	// Exports maps an export name to the entity it refers to.
	Exports map[string]ItemRef

	// Start, if StartSet, is the function to invoke once the instance is
	// fully materialized (§8 "Start function" scenario).
	Start    FuncIndex
	StartSet bool

	VMContext VMContextLayout

	DataSegments    []DataSegment
	ElementSegments []ElementSegment

	// TypeSection records every function's declared signature by index, for
	// callers that want a FuncType before instantiation without walking
	// Funcs. Supplemented from the original IR, which deferred signatures
	// to a later TODO.
	TypeSection map[TypeIndex]FuncTypeEntry
}

// FuncTypeEntry is a single type-section entry: the parameter and result
// types of the signature at its TypeIndex, recorded by the module
// environment's DeclareType.
type FuncTypeEntry struct {
	Params  []byte
	Results []byte
}

// Export looks up name in the module's export table. A missing name
// returns the zero ItemRef and false — absence, not an error (§6).
func (m *Module) Export(name string) (ItemRef, bool) {
	ref, ok := m.Exports[name]
	return ref, ok
}

// NewModule returns an empty, writable Module. The module environment
// populates it via the Declare* methods on Environment before handing it
// to an Instance as read-only.
func NewModule() *Module {
	return &Module{
		Funcs:       make(map[FuncIndex]FuncInfo),
		Heaps:       make(map[HeapIndex]HeapInfo),
		Globs:       make(map[GlobIndex]GlobInfo),
		Tables:      make(map[TableIndex]TableInfo),
		Imports:     make(map[ImportIndex]string),
		Exports:     make(map[string]ItemRef),
		TypeSection: make(map[TypeIndex]FuncTypeEntry),
	}
}
