// Package moduleenv implements the module environment: the sink for
// parser callbacks that populates a wasmir.Module (§4.1). The
// WebAssembly decoder that drives these calls is out of scope (spec §1);
// callers invoke the Declare* methods directly, or via a decoder they
// supply themselves.
package moduleenv

import (
	"github.com/charlycst/coral/api"
	"github.com/charlycst/coral/internal/compiler"
	"github.com/charlycst/coral/internal/wasmir"
)

// Op and OpKind are re-exported from wasmir so callers can write
// moduleenv.Op literals without importing wasmir directly, matching the
// "DefineFunctionBody accepts []moduleenv.Op" shape named in this
// package's design doc.
type Op = wasmir.Op
type OpKind = wasmir.OpKind

const (
	OpI32Const  = wasmir.OpI32Const
	OpI64Const  = wasmir.OpI64Const
	OpLocalGet  = wasmir.OpLocalGet
	OpLocalSet  = wasmir.OpLocalSet
	OpGlobalGet = wasmir.OpGlobalGet
	OpGlobalSet = wasmir.OpGlobalSet
	OpI32Add    = wasmir.OpI32Add
	OpI32Load   = wasmir.OpI32Load
	OpI32Store  = wasmir.OpI32Store
	OpCall      = wasmir.OpCall
	OpTableGet  = wasmir.OpTableGet
	OpTableSet  = wasmir.OpTableSet
	OpDrop      = wasmir.OpDrop
	OpReturn    = wasmir.OpReturn
)

// funcBody holds a declared function's body until Compile() lowers it.
type funcBody struct {
	idx       wasmir.FuncIndex
	typ       wasmir.TypeIndex
	numLocals uint32
	ops       []Op
}

// Environment accumulates Declare*/DefineFunctionBody calls into a
// wasmir.Module. It assigns indices deterministically: imported entities
// before local ones, in declaration order (§4.1), so the code generator
// can emit relocations by index without a separate symbol table.
type Environment struct {
	module *wasmir.Module

	nextType   wasmir.TypeIndex
	nextFunc   wasmir.FuncIndex
	nextHeap   wasmir.HeapIndex
	nextTable  wasmir.TableIndex
	nextGlob   wasmir.GlobIndex
	nextImport wasmir.ImportIndex

	bodies []funcBody
}

// New returns an empty Environment ready to receive Declare* calls.
func New() *Environment {
	return &Environment{module: wasmir.NewModule()}
}

// DeclareImportModule registers a dependency module name and returns its
// ImportIndex, assigning a fresh index the first time a given name is
// seen.
func (e *Environment) DeclareImportModule(name string) wasmir.ImportIndex {
	for idx, n := range e.module.Imports {
		if n == name {
			return idx
		}
	}
	idx := e.nextImport
	e.nextImport++
	e.module.Imports[idx] = name
	return idx
}

// DeclareType records a function signature and returns its TypeIndex.
func (e *Environment) DeclareType(params, results []api.ValueType) wasmir.TypeIndex {
	idx := e.nextType
	e.nextType++
	e.module.TypeSection[idx] = wasmir.FuncTypeEntry{Params: params, Results: results}
	return idx
}

func (e *Environment) typeOf(typ wasmir.TypeIndex) api.FuncType {
	entry := e.module.TypeSection[typ]
	return api.FuncType{Params: entry.Params, Results: entry.Results}
}

// DeclareImportedFunc declares a function imported from module, assigning
// it the next FuncIndex. Per §4.1, callers must declare all imported
// functions before any DeclareFunc call in the same module.
func (e *Environment) DeclareImportedFunc(module wasmir.ImportIndex, name string, typ wasmir.TypeIndex) wasmir.FuncIndex {
	idx := e.nextFunc
	e.nextFunc++
	e.module.Funcs[idx] = wasmir.FuncInfo{
		Shape:        wasmir.ShapeImported,
		ImportModule: module,
		ImportName:   name,
		Type:         e.typeOf(typ),
	}
	return idx
}

// DeclareFunc declares a locally defined function, assigning it the next
// FuncIndex. Its body must later be supplied via DefineFunctionBody.
func (e *Environment) DeclareFunc(typ wasmir.TypeIndex) wasmir.FuncIndex {
	idx := e.nextFunc
	e.nextFunc++
	e.module.Funcs[idx] = wasmir.FuncInfo{Shape: wasmir.ShapeOwned, Type: e.typeOf(typ)}
	return idx
}

// DeclareNativeFunc declares a function backed directly by a
// host-provided, already SystemV-callable code pointer (§4.1's
// ShapeNative), used by nativemod.Builder.AddRawFunc.
func (e *Environment) DeclareNativeFunc(sig api.FuncType, ptr uintptr) wasmir.FuncIndex {
	idx := e.nextFunc
	e.nextFunc++
	e.module.Funcs[idx] = wasmir.FuncInfo{Shape: wasmir.ShapeNative, NativePtr: ptr, Type: sig}
	return idx
}

// DeclareImportedHeap declares a heap imported from module.
func (e *Environment) DeclareImportedHeap(module wasmir.ImportIndex, name string) wasmir.HeapIndex {
	idx := e.nextHeap
	e.nextHeap++
	e.module.Heaps[idx] = wasmir.HeapInfo{Shape: wasmir.ShapeImported, ImportModule: module, ImportName: name}
	return idx
}

// DeclareHeap declares an owned heap with the given minimum page count and
// kind.
func (e *Environment) DeclareHeap(minPages uint32, kind wasmir.HeapKind) wasmir.HeapIndex {
	idx := e.nextHeap
	e.nextHeap++
	e.module.Heaps[idx] = wasmir.HeapInfo{Shape: wasmir.ShapeOwned, MinPages: minPages, Kind: kind}
	return idx
}

// DeclareImportedTable declares a table imported from module.
func (e *Environment) DeclareImportedTable(module wasmir.ImportIndex, name string) wasmir.TableIndex {
	idx := e.nextTable
	e.nextTable++
	e.module.Tables[idx] = wasmir.TableInfo{Shape: wasmir.ShapeImported, ImportModule: module, ImportName: name}
	return idx
}

// DeclareTable declares an owned table.
func (e *Environment) DeclareTable(min, max uint32, elementType api.ValueType) wasmir.TableIndex {
	idx := e.nextTable
	e.nextTable++
	e.module.Tables[idx] = wasmir.TableInfo{Shape: wasmir.ShapeOwned, Min: min, Max: max, ElementType: elementType}
	return idx
}

// DeclareNativeTable declares a table backed directly by a host-supplied
// array (§4.1's ShapeNative), used by nativemod.Builder.AddTable. data's
// length is both Min and Max: a native table's size is fixed by its
// backing array.
func (e *Environment) DeclareNativeTable(data []uint64, elementType api.ValueType) wasmir.TableIndex {
	idx := e.nextTable
	e.nextTable++
	e.module.Tables[idx] = wasmir.TableInfo{
		Shape:       wasmir.ShapeNative,
		Min:         uint32(len(data)),
		Max:         uint32(len(data)),
		ElementType: elementType,
		NativeArray: data,
	}
	return idx
}

// DeclareImportedGlob declares a global imported from module.
func (e *Environment) DeclareImportedGlob(module wasmir.ImportIndex, name string) wasmir.GlobIndex {
	idx := e.nextGlob
	e.nextGlob++
	e.module.Globs[idx] = wasmir.GlobInfo{Shape: wasmir.ShapeImported, ImportModule: module, ImportName: name}
	return idx
}

// DeclareGlob declares an owned global with the given initializer.
func (e *Environment) DeclareGlob(init wasmir.GlobInit) wasmir.GlobIndex {
	idx := e.nextGlob
	e.nextGlob++
	e.module.Globs[idx] = wasmir.GlobInfo{Shape: wasmir.ShapeOwned, Init: init}
	return idx
}

// DeclareExport records that ref is reachable under name.
func (e *Environment) DeclareExport(name string, ref wasmir.ItemRef) {
	e.module.Exports[name] = ref
}

// DeclareStart marks idx as the function to invoke once instantiation
// completes (§8 "Start function" scenario).
func (e *Environment) DeclareStart(idx wasmir.FuncIndex) {
	e.module.Start = idx
	e.module.StartSet = true
}

// DeclareDataSegment records a data segment applied to heap at offset
// during instantiation step 3 (§4.4).
func (e *Environment) DeclareDataSegment(heap wasmir.HeapIndex, offset uint32, data []byte) {
	e.module.DataSegments = append(e.module.DataSegments, wasmir.DataSegment{Heap: heap, Offset: offset, Data: data})
}

// DeclareElementSegment records an element segment applied to table at
// offset during instantiation step 4 (§4.4).
func (e *Environment) DeclareElementSegment(table wasmir.TableIndex, offset uint32, funcs []wasmir.FuncIndex) {
	e.module.ElementSegments = append(e.module.ElementSegments, wasmir.ElementSegment{Table: table, Offset: offset, Funcs: funcs})
}

// DefineFunctionBody supplies the already-decoded operation list for a
// function declared with DeclareFunc. Any op outside the supported subset
// is rejected immediately with wasmir.CompileError{Kind: Unsupported}.
func (e *Environment) DefineFunctionBody(idx wasmir.FuncIndex, numLocals uint32, ops []Op) error {
	info, ok := e.module.Funcs[idx]
	if !ok || info.Shape != wasmir.ShapeOwned {
		return &wasmir.CompileError{Kind: wasmir.FailedToCompile, Detail: "DefineFunctionBody: not a local function"}
	}
	for _, op := range ops {
		if !op.Kind.Supported() {
			return &wasmir.CompileError{Kind: wasmir.Unsupported, Detail: op.Kind.String()}
		}
	}
	e.bodies = append(e.bodies, funcBody{idx: idx, typ: 0, numLocals: numLocals, ops: ops})
	return nil
}

// Compile lowers every declared function body through compiler.Compiler,
// assembles the resulting code, relocations, and VMContext layout, and
// returns the finished, immutable Module IR. The VMContext layout is
// computed before any function body is lowered, since codegen needs to
// know the final slot offsets for globals and tables.
func (e *Environment) Compile() (*wasmir.Module, error) {
	m := e.module
	c := compiler.New()

	m.VMContext = e.buildVMContextLayout()
	env := compiler.FuncEnv{
		Layout:       m.VMContext,
		Calls:        e.buildCallTargets(),
		GlobImported: e.buildGlobImported(),
	}

	var code []byte
	var relocs []wasmir.Reloc

	for _, body := range e.bodies {
		info := m.Funcs[body.idx]
		fnCode, fnRelocs, err := c.CompileFunction(info.Type, body.numLocals, body.ops, env)
		if err != nil {
			return nil, err
		}
		base := uint32(len(code))
		for _, r := range fnRelocs {
			r.Offset += base
			relocs = append(relocs, r)
		}
		code = append(code, fnCode...)
		info.Offset = base
		m.Funcs[body.idx] = info
	}

	m.Code = code
	m.Relocs = relocs
	return m, nil
}

// buildCallTargets gives the compiler, for every declared FuncIndex, the
// information it needs to lower an OpCall referencing it: whether the
// target is imported (so the call routes its VMContext argument through
// an import slot) and its signature (so the compiler knows the arity and
// result count without holding the whole module).
func (e *Environment) buildCallTargets() map[wasmir.FuncIndex]compiler.CallTarget {
	targets := make(map[wasmir.FuncIndex]compiler.CallTarget, len(e.module.Funcs))
	for idx, info := range e.module.Funcs {
		targets[idx] = compiler.CallTarget{
			Imported:     info.IsImported(),
			ImportModule: info.ImportModule,
			Sig:          info.Type,
		}
	}
	return targets
}

// buildGlobImported tells the compiler, for every declared GlobIndex,
// whether reading or writing it means dereferencing a remote cell pointer
// (imported) or touching the inline slot value directly (owned).
func (e *Environment) buildGlobImported() map[wasmir.GlobIndex]bool {
	imported := make(map[wasmir.GlobIndex]bool, len(e.module.Globs))
	for idx, info := range e.module.Globs {
		imported[idx] = info.Shape == wasmir.ShapeImported
	}
	return imported
}

// buildVMContextLayout derives the five VMContext regions from the
// declared entities: every heap (owned or imported) gets a slot, only
// imported functions get a slot (owned functions are reached via
// relocatable direct calls, §4.1), every import gets a slot, every
// global gets a slot, and every table gets a two-slot entry.
func (e *Environment) buildVMContextLayout() wasmir.VMContextLayout {
	var layout wasmir.VMContextLayout
	for i := wasmir.HeapIndex(0); i < e.nextHeap; i++ {
		layout.Heaps = append(layout.Heaps, i)
	}
	for i := wasmir.FuncIndex(0); i < e.nextFunc; i++ {
		if e.module.Funcs[i].IsImported() {
			layout.Funcs = append(layout.Funcs, i)
		}
	}
	for i := wasmir.ImportIndex(0); i < e.nextImport; i++ {
		layout.Imports = append(layout.Imports, i)
	}
	for i := wasmir.GlobIndex(0); i < e.nextGlob; i++ {
		layout.Globs = append(layout.Globs, i)
	}
	for i := wasmir.TableIndex(0); i < e.nextTable; i++ {
		layout.Tables = append(layout.Tables, i)
	}
	return layout
}
