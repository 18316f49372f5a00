package nativemod

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlycst/coral/api"
	"github.com/charlycst/coral/internal/instance"
	"github.com/charlycst/coral/internal/kobj"
	"github.com/charlycst/coral/internal/moduleenv"
	"github.com/charlycst/coral/internal/runtime"
	"github.com/charlycst/coral/internal/wasmir"
)

// TestBuildSumNativeModule mirrors kernel/src/syscalls.rs's
// build_syscall_module: a standalone native module exporting a host
// function, instantiable with no imports of its own.
func TestBuildSumNativeModule(t *testing.T) {
	b := NewBuilder()
	sig := api.FuncType{Params: []byte{api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32}, Results: []byte{api.ValueTypeI32}}
	_, err := b.AddFunc("sum3", sig, 0, []moduleenv.Op{
		{Kind: moduleenv.OpLocalGet, Index: 0},
		{Kind: moduleenv.OpLocalGet, Index: 1},
		{Kind: moduleenv.OpI32Add},
		{Kind: moduleenv.OpLocalGet, Index: 2},
		{Kind: moduleenv.OpI32Add},
		{Kind: moduleenv.OpReturn},
	})
	require.NoError(t, err)

	m, err := b.Build()
	require.NoError(t, err)

	rt := runtime.NewMmapRuntime()
	inst, err := instance.Instantiate(m, nil, rt)
	require.NoError(t, err)

	ptr, ty, ok := inst.FuncAddr("sum3")
	require.True(t, ok)
	require.NotZero(t, ptr)
	require.Equal(t, sig, ty)
}

// TestBuildHandlesTable mirrors build_syscall_module's
// add_table("handles", ...): a native table backed by a fixed host array.
func TestBuildHandlesTable(t *testing.T) {
	b := NewBuilder()
	b.AddTable("handles", []uint64{7, 0}, api.ValueTypeExternRef)

	m, err := b.Build()
	require.NoError(t, err)
	require.Len(t, m.VMContext.Tables, 1)

	rt := runtime.NewMmapRuntime()
	inst, err := instance.Instantiate(m, nil, rt)
	require.NoError(t, err)

	v, ok := inst.TableEntry("handles", 0)
	require.True(t, ok)
	require.Equal(t, uint64(7), v)
}

// TestAddHandleTableResolvesObjects mirrors build_syscall_module handing
// out externref handles backed by KernelObjectCollection: each host
// object gets a handle table slot whose value resolves back through
// Objects() to the original object.
func TestAddHandleTableResolvesObjects(t *testing.T) {
	b := NewBuilder()
	b.AddHandleTable("handles", []any{"buffer-a", "buffer-b"}, api.ValueTypeExternRef)

	m, err := b.Build()
	require.NoError(t, err)

	rt := runtime.NewMmapRuntime()
	inst, err := instance.Instantiate(m, nil, rt)
	require.NoError(t, err)

	v, ok := inst.TableEntry("handles", 1)
	require.True(t, ok)
	obj, ok := b.Objects().Get(kobj.Index(api.DecodeExternRef(v)))
	require.True(t, ok)
	require.Equal(t, "buffer-b", obj)
}

// TestAddRawFuncDeclaresNativeShape checks that a caller-supplied code
// pointer round-trips through the module IR untouched, without requiring
// Instantiate (a real pointer is needed to exercise a call; this only
// checks the declarative path).
func TestAddRawFuncDeclaresNativeShape(t *testing.T) {
	b := NewBuilder()
	sig := api.FuncType{Results: []byte{api.ValueTypeI32}}
	idx := b.AddRawFunc("raw", sig, 0xdeadbeef)

	m, err := b.Build()
	require.NoError(t, err)
	info := m.Funcs[idx]
	require.Equal(t, wasmir.ShapeNative, info.Shape)
	require.Equal(t, uintptr(0xdeadbeef), info.NativePtr)
}
