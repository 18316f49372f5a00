package moduleenv

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlycst/coral/api"
	"github.com/charlycst/coral/internal/wasmir"
)

// TestCompileAnswer42 mirrors the §8 "answer" scenario: a single exported
// function with no parameters returning the constant 42.
func TestCompileAnswer42(t *testing.T) {
	e := New()
	ty := e.DeclareType(nil, []api.ValueType{api.ValueTypeI32})
	answer := e.DeclareFunc(ty)
	err := e.DefineFunctionBody(answer, 0, []Op{
		{Kind: OpI32Const, I32: 42},
		{Kind: OpReturn},
	})
	require.NoError(t, err)
	e.DeclareExport("answer", wasmir.FuncRef(answer))

	m, err := e.Compile()
	require.NoError(t, err)
	require.NotEmpty(t, m.Code)

	ref, ok := m.Export("answer")
	require.True(t, ok)
	idx, ok := ref.AsFunc()
	require.True(t, ok)
	require.Equal(t, answer, idx)
}

func TestCompileRejectsUnsupportedOp(t *testing.T) {
	e := New()
	ty := e.DeclareType(nil, nil)
	fn := e.DeclareFunc(ty)
	err := e.DefineFunctionBody(fn, 0, []Op{{Kind: wasmir.OpUnsupportedMemoryGrow}})
	require.Error(t, err)
	var compileErr *wasmir.CompileError
	require.ErrorAs(t, err, &compileErr)
	require.Equal(t, wasmir.Unsupported, compileErr.Kind)
}

func TestCompileWithCallAndImport(t *testing.T) {
	e := New()
	mod := e.DeclareImportModule("host")
	importedTy := e.DeclareType([]api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32})
	sum := e.DeclareImportedFunc(mod, "sum", importedTy)

	callerTy := e.DeclareType(nil, []api.ValueType{api.ValueTypeI32})
	caller := e.DeclareFunc(callerTy)
	err := e.DefineFunctionBody(caller, 0, []Op{
		{Kind: OpI32Const, I32: 1},
		{Kind: OpI32Const, I32: 2},
		{Kind: OpCall, Index: uint32(sum)},
		{Kind: OpReturn},
	})
	require.NoError(t, err)

	m, err := e.Compile()
	require.NoError(t, err)
	require.Len(t, m.Relocs, 1)
	require.Equal(t, wasmir.RelocX86CallPCRel4, m.Relocs[0].Kind)
	require.Len(t, m.VMContext.Funcs, 1)
	require.Equal(t, sum, m.VMContext.Funcs[0])
}

func TestBuildVMContextLayoutFillsEveryRegion(t *testing.T) {
	e := New()
	mod := e.DeclareImportModule("host")
	e.DeclareHeap(1, wasmir.HeapKind{})
	e.DeclareImportedTable(mod, "tbl")
	e.DeclareGlob(wasmir.GlobInit{Type: api.ValueTypeI32, I32: 7})

	layout := e.buildVMContextLayout()
	require.Len(t, layout.Heaps, 1)
	require.Len(t, layout.Imports, 1)
	require.Len(t, layout.Globs, 1)
	require.Len(t, layout.Tables, 1)
}
