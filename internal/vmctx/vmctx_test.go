package vmctx

import (
	"testing"

	"github.com/charlycst/coral/internal/wasmir"
	"github.com/stretchr/testify/require"
)

func testLayout() wasmir.VMContextLayout {
	return wasmir.VMContextLayout{
		Heaps:   []wasmir.HeapIndex{0},
		Funcs:   []wasmir.FuncIndex{0, 1},
		Imports: []wasmir.ImportIndex{0},
		Globs:   []wasmir.GlobIndex{0, 1},
	}
}

func testLayoutWithTable() wasmir.VMContextLayout {
	l := testLayout()
	l.Tables = []wasmir.TableIndex{0}
	return l
}

func TestLayoutOffsets(t *testing.T) {
	l := NewLayout(testLayout())
	require.Equal(t, 6, l.SlotCount())
	require.Equal(t, 6*8, l.Size())
}

func TestLayoutOffsetsWithTable(t *testing.T) {
	l := NewLayout(testLayoutWithTable())
	require.Equal(t, 8, l.SlotCount())
	require.Equal(t, 8*8, l.Size())
	require.Equal(t, l.globOffset+2*8, l.TableOffset())
}

func TestBlockTableRoundTrip(t *testing.T) {
	l := NewLayout(testLayoutWithTable())
	b := NewBlock(l)

	b.SetTablePtr(0, 0x5000)
	b.SetTableBound(0, 3)

	require.Equal(t, uintptr(0x5000), b.TablePtr(0))
	require.Equal(t, uint32(3), b.TableBound(0))
}

func TestBlockRoundTrip(t *testing.T) {
	l := NewLayout(testLayout())
	b := NewBlock(l)

	b.SetHeap(0, 0x1000)
	b.SetFunc(0, 0x2000)
	b.SetFunc(1, 0x2008)
	b.SetImport(0, 0x3000)
	b.SetGlobInline(0, 99)
	b.SetGlobPtr(1, 0x4000)

	require.Equal(t, uintptr(0x1000), uintptr(b.readU64(0)))
	require.Equal(t, uintptr(0x2000), uintptr(b.readU64(b.layout.funcOffset)))
	require.Equal(t, uintptr(0x2008), uintptr(b.readU64(b.layout.funcOffset+8)))
	require.Equal(t, uintptr(0x3000), uintptr(b.readU64(b.layout.importOffset)))
	require.Equal(t, uint64(99), b.GlobValue(0))
	require.Equal(t, uint64(0x4000), b.GlobValue(1))
	require.NotZero(t, b.AsPointer())
}
