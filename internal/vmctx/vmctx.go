// Package vmctx implements the VMContext storage block: the hidden
// trailing argument every generated function receives, carrying heap
// bases, imported-function pointers, imported-module VMContext pointers,
// and global cells (§4.6).
package vmctx

import (
	"encoding/binary"
	"unsafe"

	"github.com/charlycst/coral/internal/wasmir"
)

// itemWidth is the fixed width of every VMContext slot, in bytes. A future
// extension (e.g. 128-bit globals) would need variable-width slots; not
// needed by the supported Op subset.
const itemWidth = 8

// Layout computes the five region offsets (heaps, imported funcs, imported
// modules, globals, tables) from a wasmir.VMContextLayout by prefix
// summation, in that fixed order.
type Layout struct {
	numHeaps, numFuncs, numImports, numGlobs, numTables int

	funcOffset   int
	importOffset int
	globOffset   int
	tableOffset  int
	size         int
}

// tableSlotWidth is two 8-byte slots per table: array pointer, then bound.
const tableSlotWidth = itemWidth * 2

// NewLayout computes slot offsets for l, in region order heaps, imported
// funcs, imports, globals, tables.
func NewLayout(l wasmir.VMContextLayout) Layout {
	funcOffset := len(l.Heaps) * itemWidth
	importOffset := funcOffset + len(l.Funcs)*itemWidth
	globOffset := importOffset + len(l.Imports)*itemWidth
	tableOffset := globOffset + len(l.Globs)*itemWidth
	size := tableOffset + len(l.Tables)*tableSlotWidth
	return Layout{
		numHeaps:     len(l.Heaps),
		numFuncs:     len(l.Funcs),
		numImports:   len(l.Imports),
		numGlobs:     len(l.Globs),
		numTables:    len(l.Tables),
		funcOffset:   funcOffset,
		importOffset: importOffset,
		globOffset:   globOffset,
		tableOffset:  tableOffset,
		size:         size,
	}
}

// Size is the total byte size of the storage block described by l.
func (l Layout) Size() int { return l.size }

// SlotCount returns the total number of 8-byte slots, used by the §8
// property check that every declared slot gets initialized.
func (l Layout) SlotCount() int {
	return l.numHeaps + l.numFuncs + l.numImports + l.numGlobs + l.numTables*2
}

// FuncOffset is the byte offset of the imported-function region.
func (l Layout) FuncOffset() int { return l.funcOffset }

// ImportOffset is the byte offset of the imported-module region.
func (l Layout) ImportOffset() int { return l.importOffset }

// GlobOffset is the byte offset of the global region.
func (l Layout) GlobOffset() int { return l.globOffset }

// TableOffset is the byte offset of the table region.
func (l Layout) TableOffset() int { return l.tableOffset }

// Block is an allocated VMContext storage buffer. The zero value is not
// usable; build one with NewBlock. A Block must never be read by
// generated code until every slot declared by its Layout has been
// written (§3 invariant).
type Block struct {
	layout Layout
	buf    []byte
}

// NewBlock allocates a zeroed storage block sized for l. The buffer is
// 8-byte aligned because Go slice backing arrays returned by make([]byte,
// n) for n >= 8 are at least word-aligned in practice; pointer writes
// below use binary/unsafe access at 8-byte-aligned offsets only. A layout
// with no slots still gets one 8-byte buffer, so that AsPointer always has
// an address to return.
func NewBlock(l Layout) *Block {
	size := l.Size()
	if size < itemWidth {
		size = itemWidth
	}
	buf := make([]byte, size)
	return &Block{layout: l, buf: buf}
}

func (b *Block) ptrAt(offset int) unsafe.Pointer {
	return unsafe.Pointer(&b.buf[offset])
}

// SetHeap writes the base pointer of heap idx into its slot.
func (b *Block) SetHeap(idx wasmir.HeapIndex, ptr uintptr) {
	b.writePtr(int(idx)*itemWidth, ptr)
}

// SetFunc writes the code pointer of imported function idx into its slot.
// idx must be one of the dense, low-numbered imported FuncIndex values
// (§4.1: imports are assigned before local functions).
func (b *Block) SetFunc(idx wasmir.FuncIndex, ptr uintptr) {
	b.writePtr(b.layout.funcOffset+int(idx)*itemWidth, ptr)
}

// SetImport writes the VMContext pointer of imported module idx into its
// slot.
func (b *Block) SetImport(idx wasmir.ImportIndex, vmctxPtr uintptr) {
	b.writePtr(b.layout.importOffset+int(idx)*itemWidth, vmctxPtr)
}

// SetGlobInline writes an owned global's value inline into its slot.
func (b *Block) SetGlobInline(idx wasmir.GlobIndex, value uint64) {
	binary.LittleEndian.PutUint64(b.buf[b.globOffsetOf(idx):], value)
}

// SetGlobPtr writes an imported global's remote-cell pointer into its
// slot.
func (b *Block) SetGlobPtr(idx wasmir.GlobIndex, cellPtr uintptr) {
	b.writePtr(b.globOffsetOf(idx), cellPtr)
}

// GlobPtr returns the address of global idx's slot, used both to read an
// owned global's inline value and as the "remote cell" address handed to
// an importer.
func (b *Block) GlobPtr(idx wasmir.GlobIndex) uintptr {
	return uintptr(b.ptrAt(b.globOffsetOf(idx)))
}

func (b *Block) globOffsetOf(idx wasmir.GlobIndex) int {
	return b.layout.globOffset + int(idx)*itemWidth
}

// tableOffsetOf returns the byte offset of table idx's two-slot entry
// (array pointer, then bound).
func (b *Block) tableOffsetOf(idx wasmir.TableIndex) int {
	return b.layout.tableOffset + int(idx)*tableSlotWidth
}

// SetTablePtr writes table idx's backing array pointer into its first slot.
func (b *Block) SetTablePtr(idx wasmir.TableIndex, ptr uintptr) {
	b.writePtr(b.tableOffsetOf(idx), ptr)
}

// SetTableBound writes table idx's element count into its second slot.
func (b *Block) SetTableBound(idx wasmir.TableIndex, bound uint32) {
	binary.LittleEndian.PutUint64(b.buf[b.tableOffsetOf(idx)+itemWidth:], uint64(bound))
}

// TablePtr returns table idx's backing array pointer.
func (b *Block) TablePtr(idx wasmir.TableIndex) uintptr {
	return uintptr(b.readU64(b.tableOffsetOf(idx)))
}

// TableBound returns table idx's element count.
func (b *Block) TableBound(idx wasmir.TableIndex) uint32 {
	return uint32(b.readU64(b.tableOffsetOf(idx) + itemWidth))
}

// AsPointer returns the address of the storage block, to be passed as the
// VMContext argument to generated and native functions.
func (b *Block) AsPointer() uintptr {
	return uintptr(b.ptrAt(0))
}

func (b *Block) writePtr(offset int, ptr uintptr) {
	binary.LittleEndian.PutUint64(b.buf[offset:], uint64(ptr))
}

// readU64 reads a raw slot value, used by tests, by the table accessors,
// and by GlobValue (which Instance.GlobalValue reads globals through).
func (b *Block) readU64(offset int) uint64 {
	return binary.LittleEndian.Uint64(b.buf[offset:])
}

// GlobValue reads the 8-byte value currently stored at global idx's slot
// (the inline value for an owned global, or the remote-cell pointer for
// an imported one — callers distinguish by consulting the module IR).
func (b *Block) GlobValue(idx wasmir.GlobIndex) uint64 {
	return b.readU64(b.globOffsetOf(idx))
}
