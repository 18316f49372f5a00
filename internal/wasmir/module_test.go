package wasmir

import (
	"testing"

	"github.com/charlycst/coral/api"
	"github.com/stretchr/testify/require"
)

func TestItemRefAccessors(t *testing.T) {
	f := FuncRef(FuncIndex(3))
	idx, ok := f.AsFunc()
	require.True(t, ok)
	require.Equal(t, FuncIndex(3), idx)

	_, ok = f.AsHeap()
	require.False(t, ok)

	h := HeapRef(HeapIndex(1))
	hi, ok := h.AsHeap()
	require.True(t, ok)
	require.Equal(t, HeapIndex(1), hi)

	tb := TableRefOf(TableIndex(2))
	ti, ok := tb.AsTable()
	require.True(t, ok)
	require.Equal(t, TableIndex(2), ti)
}

func TestRelocKindWidth(t *testing.T) {
	require.Equal(t, uint32(8), RelocAbs8.Width())
	require.Equal(t, uint32(4), RelocX86CallPCRel4.Width())
}

func TestGlobInitAsU64(t *testing.T) {
	require.Equal(t, uint64(42), GlobInit{Type: api.ValueTypeI32, I32: 42}.AsU64())
	require.Equal(t, uint64(0xffffffffffffffff), GlobInit{Type: api.ValueTypeI64, I64: -1}.AsU64())

	bits := api.EncodeF64(3.5)
	require.Equal(t, bits, GlobInit{Type: api.ValueTypeF64, F64: bits}.AsU64())
}

func TestTableInfoSize(t *testing.T) {
	require.Equal(t, uint32(4), TableInfo{Min: 4}.Size())
	require.Equal(t, uint32(8), TableInfo{Min: 4, Max: 8}.Size())
}

func TestModuleExportLookup(t *testing.T) {
	m := NewModule()
	m.Exports["main"] = FuncRef(FuncIndex(0))

	ref, ok := m.Export("main")
	require.True(t, ok)
	idx, ok := ref.AsFunc()
	require.True(t, ok)
	require.Equal(t, FuncIndex(0), idx)

	_, ok = m.Export("missing")
	require.False(t, ok)
}

func TestFuncInfoIsImported(t *testing.T) {
	require.True(t, FuncInfo{Shape: ShapeImported}.IsImported())
	require.False(t, FuncInfo{Shape: ShapeOwned}.IsImported())
}

func TestCompileErrorString(t *testing.T) {
	err := &CompileError{Kind: Unsupported, Detail: "table.grow"}
	require.Equal(t, "unsupported operation: table.grow", err.Error())
}

func TestModuleErrorString(t *testing.T) {
	err := &ModuleError{Kind: TypeError}
	require.Equal(t, "type error", err.Error())
}
