package runtime

import (
	"testing"

	"github.com/charlycst/coral/api"
	"github.com/charlycst/coral/internal/wasmir"
	"github.com/stretchr/testify/require"
)

func TestMmapRuntimeAllocCodeInvokesFillAndTransitions(t *testing.T) {
	rt := NewMmapRuntime()
	code := []byte{0xc3} // ret
	invoked := false

	area, err := rt.AllocCode(len(code), func(a MemoryArea) error {
		invoked = true
		copy(a.AsBytesMut(), code)
		return nil
	})
	require.NoError(t, err)
	require.True(t, invoked)
	require.NotZero(t, area.AsPtr())
	require.Equal(t, code, area.AsBytes()[:len(code)])
}

func TestMmapRuntimeAllocHeapInvokesInitialize(t *testing.T) {
	rt := NewMmapRuntime()
	var sawSize int

	area, err := rt.AllocHeap(wasmir.HeapPageSize, wasmir.HeapKind{}, func(a MemoryArea) error {
		sawSize = a.Size()
		return nil
	})
	require.NoError(t, err)
	require.GreaterOrEqual(t, sawSize, wasmir.HeapPageSize)
	require.GreaterOrEqual(t, area.Size(), wasmir.HeapPageSize)
}

func TestMmapRuntimeAllocTable(t *testing.T) {
	rt := NewMmapRuntime()
	arr, err := rt.AllocTable(2, 4, api.ValueTypeExternRef)
	require.NoError(t, err)
	require.Len(t, arr, 4)
	for _, v := range arr {
		require.Zero(t, v)
	}
}

func TestConcurrentTableArena(t *testing.T) {
	arena := NewConcurrentTableArena(2)
	require.True(t, arena.Set(0, 0x42))
	require.True(t, arena.Set(1, 0x54))
	require.False(t, arena.Set(2, 0xff))

	v, ok := arena.Get(0)
	require.True(t, ok)
	require.Equal(t, uint64(0x42), v)

	require.Equal(t, []uint64{0x42, 0x54}, arena.Snapshot())
}
