package instance

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlycst/coral/api"
	"github.com/charlycst/coral/internal/moduleenv"
	"github.com/charlycst/coral/internal/runtime"
	"github.com/charlycst/coral/internal/wasmir"
)

func compileAnswerModule(t *testing.T) *wasmir.Module {
	t.Helper()
	e := moduleenv.New()
	ty := e.DeclareType(nil, []api.ValueType{api.ValueTypeI32})
	answer := e.DeclareFunc(ty)
	require.NoError(t, e.DefineFunctionBody(answer, 0, []moduleenv.Op{
		{Kind: moduleenv.OpI32Const, I32: 42},
		{Kind: moduleenv.OpReturn},
	}))
	e.DeclareExport("answer", wasmir.FuncRef(answer))
	e.DeclareStart(answer)
	m, err := e.Compile()
	require.NoError(t, err)
	return m
}

func TestComponentRunsStartFunctionOnConstruction(t *testing.T) {
	m := compileAnswerModule(t)
	rt := runtime.NewMmapRuntime()
	inst, err := Instantiate(m, nil, rt)
	require.NoError(t, err)

	c := NewComponent(inst)
	results, status, err := c.Run("answer")
	require.NoError(t, err)
	require.Equal(t, RunOK, status)
	require.Equal(t, []uint64{42}, results)
}

func TestComponentRejectsConcurrentRun(t *testing.T) {
	m := compileAnswerModule(t)
	rt := runtime.NewMmapRuntime()
	inst, err := Instantiate(m, nil, rt)
	require.NoError(t, err)
	c := NewComponent(inst)

	c.busy.Store(true)
	_, status, err := c.Run("answer")
	require.NoError(t, err)
	require.Equal(t, RunBusy, status)
	c.busy.Store(false)

	var wg sync.WaitGroup
	results := make(chan RunStatus, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, status, err := c.Run("answer")
			require.NoError(t, err)
			results <- status
		}()
	}
	wg.Wait()
	close(results)
	okCount := 0
	for status := range results {
		if status == RunOK {
			okCount++
		}
	}
	require.GreaterOrEqual(t, okCount, 1)
}

func TestComponentRunUnknownExport(t *testing.T) {
	m := compileAnswerModule(t)
	rt := runtime.NewMmapRuntime()
	inst, err := Instantiate(m, nil, rt)
	require.NoError(t, err)
	c := NewComponent(inst)

	_, _, err = c.Run("missing")
	require.Error(t, err)
}
