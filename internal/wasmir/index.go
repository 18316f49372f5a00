// Package wasmir implements the module-level intermediate representation:
// the layout contract between the module environment (compilation
// front-end) and the instance materializer. Everything here is immutable
// once a Module is built.
package wasmir

// FuncIndex, HeapIndex, GlobIndex, TableIndex, ImportIndex, and TypeIndex
// are dense, zero-based indices issued by the module environment during
// compilation and reused by the Instance. They never cross module
// boundaries at runtime; cross-module references are resolved by name
// through an instance's exported-items map.
type (
	FuncIndex   uint32
	HeapIndex   uint32
	GlobIndex   uint32
	TableIndex  uint32
	ImportIndex uint32
	TypeIndex   uint32
)

// ItemKind tags the entity an ItemRef points at.
type ItemKind byte

const (
	ItemFunc ItemKind = iota
	ItemHeap
	ItemGlob
	ItemTable
	ItemImport
)

func (k ItemKind) String() string {
	switch k {
	case ItemFunc:
		return "func"
	case ItemHeap:
		return "heap"
	case ItemGlob:
		return "glob"
	case ItemTable:
		return "table"
	case ItemImport:
		return "import"
	}
	return "unknown"
}

// ItemRef is a tagged reference to any module-level entity. At relocation
// time only Func variants are honored; all other kinds are a relocation
// error (see Instance.relocate).
type ItemRef struct {
	Kind  ItemKind
	Index uint32
}

// FuncRef builds an ItemRef pointing at a function.
func FuncRef(idx FuncIndex) ItemRef { return ItemRef{Kind: ItemFunc, Index: uint32(idx)} }

// HeapRef builds an ItemRef pointing at a heap.
func HeapRef(idx HeapIndex) ItemRef { return ItemRef{Kind: ItemHeap, Index: uint32(idx)} }

// GlobRef builds an ItemRef pointing at a global.
func GlobRef(idx GlobIndex) ItemRef { return ItemRef{Kind: ItemGlob, Index: uint32(idx)} }

// TableRefOf builds an ItemRef pointing at a table.
func TableRefOf(idx TableIndex) ItemRef { return ItemRef{Kind: ItemTable, Index: uint32(idx)} }

// ImportRef builds an ItemRef pointing at an imported module.
func ImportRef(idx ImportIndex) ItemRef { return ItemRef{Kind: ItemImport, Index: uint32(idx)} }

// AsFunc returns the FuncIndex held by r, or (0, false) if r is not a Func.
func (r ItemRef) AsFunc() (FuncIndex, bool) {
	if r.Kind != ItemFunc {
		return 0, false
	}
	return FuncIndex(r.Index), true
}

// AsHeap returns the HeapIndex held by r, or (0, false) if r is not a Heap.
func (r ItemRef) AsHeap() (HeapIndex, bool) {
	if r.Kind != ItemHeap {
		return 0, false
	}
	return HeapIndex(r.Index), true
}

// AsGlob returns the GlobIndex held by r, or (0, false) if r is not a Glob.
func (r ItemRef) AsGlob() (GlobIndex, bool) {
	if r.Kind != ItemGlob {
		return 0, false
	}
	return GlobIndex(r.Index), true
}

// AsTable returns the TableIndex held by r, or (0, false) if r is not a Table.
func (r ItemRef) AsTable() (TableIndex, bool) {
	if r.Kind != ItemTable {
		return 0, false
	}
	return TableIndex(r.Index), true
}
