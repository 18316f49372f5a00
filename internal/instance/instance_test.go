package instance

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlycst/coral/api"
	"github.com/charlycst/coral/internal/invoke"
	"github.com/charlycst/coral/internal/moduleenv"
	"github.com/charlycst/coral/internal/runtime"
	"github.com/charlycst/coral/internal/wasmir"
)

func buildHostSumModule(t *testing.T) *wasmir.Module {
	t.Helper()
	e := moduleenv.New()
	ty := e.DeclareType([]api.ValueType{api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32})
	sum := e.DeclareFunc(ty)
	require.NoError(t, e.DefineFunctionBody(sum, 0, []moduleenv.Op{
		{Kind: moduleenv.OpLocalGet, Index: 0},
		{Kind: moduleenv.OpLocalGet, Index: 1},
		{Kind: moduleenv.OpI32Add},
		{Kind: moduleenv.OpLocalGet, Index: 2},
		{Kind: moduleenv.OpI32Add},
		{Kind: moduleenv.OpReturn},
	}))
	e.DeclareExport("sum", wasmir.FuncRef(sum))
	m, err := e.Compile()
	require.NoError(t, err)
	return m
}

// buildCallerModule declares an import of "host.sum" and a function
// "run" that forwards three constants to it, mirroring spec.md §8's
// native-host import scenario.
func buildCallerModule(t *testing.T, importedSig api.FuncType) *wasmir.Module {
	t.Helper()
	e := moduleenv.New()
	mod := e.DeclareImportModule("host")
	ty := e.DeclareType(importedSig.Params, importedSig.Results)
	sum := e.DeclareImportedFunc(mod, "sum", ty)

	runTy := e.DeclareType(nil, []api.ValueType{api.ValueTypeI32})
	run := e.DeclareFunc(runTy)
	require.NoError(t, e.DefineFunctionBody(run, 0, []moduleenv.Op{
		{Kind: moduleenv.OpI32Const, I32: 10},
		{Kind: moduleenv.OpI32Const, I32: 20},
		{Kind: moduleenv.OpI32Const, I32: 12},
		{Kind: moduleenv.OpCall, Index: uint32(sum)},
		{Kind: moduleenv.OpReturn},
	}))
	e.DeclareExport("run", wasmir.FuncRef(run))
	m, err := e.Compile()
	require.NoError(t, err)
	return m
}

func TestInstantiateResolvesCrossInstanceImport(t *testing.T) {
	rt := runtime.NewMmapRuntime()
	hostModule := buildHostSumModule(t)
	host, err := Instantiate(hostModule, nil, rt)
	require.NoError(t, err)

	sig := api.FuncType{
		Params:  []api.ValueType{api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32},
		Results: []api.ValueType{api.ValueTypeI32},
	}
	callerModule := buildCallerModule(t, sig)
	caller, err := Instantiate(callerModule, map[string]*Instance{"host": host}, rt)
	require.NoError(t, err)

	results, err := invoke.Invoke(caller, "run")
	require.NoError(t, err)
	require.Equal(t, []uint64{42}, results)
}

func TestInstantiateRejectsImportTypeMismatch(t *testing.T) {
	rt := runtime.NewMmapRuntime()
	hostModule := buildHostSumModule(t)
	host, err := Instantiate(hostModule, nil, rt)
	require.NoError(t, err)

	mismatchedSig := api.FuncType{
		Params:  []api.ValueType{api.ValueTypeI64, api.ValueTypeI32, api.ValueTypeI32},
		Results: []api.ValueType{api.ValueTypeI32},
	}
	callerModule := buildCallerModule(t, mismatchedSig)
	_, err = Instantiate(callerModule, map[string]*Instance{"host": host}, rt)
	require.Error(t, err)
	var modErr *wasmir.ModuleError
	require.ErrorAs(t, err, &modErr)
	require.Equal(t, wasmir.TypeError, modErr.Kind)
}

func TestInstantiateRejectsMissingImport(t *testing.T) {
	rt := runtime.NewMmapRuntime()
	sig := api.FuncType{
		Params:  []api.ValueType{api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32},
		Results: []api.ValueType{api.ValueTypeI32},
	}
	callerModule := buildCallerModule(t, sig)
	_, err := Instantiate(callerModule, nil, rt)
	require.Error(t, err)
	var modErr *wasmir.ModuleError
	require.ErrorAs(t, err, &modErr)
	require.Equal(t, wasmir.FailedToInstantiate, modErr.Kind)
}

func TestInstantiateTableGetSet(t *testing.T) {
	e := moduleenv.New()
	e.DeclareTable(4, 4, api.ValueTypeExternRef)
	e.DeclareExport("t", wasmir.TableRefOf(0))
	m, err := e.Compile()
	require.NoError(t, err)

	rt := runtime.NewMmapRuntime()
	inst, err := Instantiate(m, nil, rt)
	require.NoError(t, err)

	ok := inst.SetTableEntry("t", 2, api.EncodeExternRef(7))
	require.True(t, ok)
	v, ok := inst.TableEntry("t", 2)
	require.True(t, ok)
	require.Equal(t, uintptr(7), api.DecodeExternRef(v))

	_, ok = inst.TableEntry("t", 99)
	require.False(t, ok)
}

func TestInstantiateGlobalCrossInstance(t *testing.T) {
	rt := runtime.NewMmapRuntime()

	providerEnv := moduleenv.New()
	g := providerEnv.DeclareGlob(wasmir.GlobInit{Type: api.ValueTypeI32, I32: 123})
	providerEnv.DeclareExport("g", wasmir.GlobRef(g))
	providerModule, err := providerEnv.Compile()
	require.NoError(t, err)
	provider, err := Instantiate(providerModule, nil, rt)
	require.NoError(t, err)

	consumerEnv := moduleenv.New()
	mod := consumerEnv.DeclareImportModule("provider")
	importedGlob := consumerEnv.DeclareImportedGlob(mod, "g")
	consumerEnv.DeclareExport("forwarded", wasmir.GlobRef(importedGlob))
	consumerModule, err := consumerEnv.Compile()
	require.NoError(t, err)
	consumer, err := Instantiate(consumerModule, map[string]*Instance{"provider": provider}, rt)
	require.NoError(t, err)

	v, ok := consumer.GlobalValue("forwarded")
	require.True(t, ok)
	require.Equal(t, uint64(123), v)
}
