// Package instance implements the instance materializer (§4.4): turning an
// immutable wasmir.Module plus a set of already-instantiated dependencies
// into a live Instance whose VMContext, heaps, tables, and relocated code
// are ready to run. Grounded on the original system's
// Instance::instantiate (instances.rs), translated from its Owned /
// Imported / Native enum match into Go's flatter EntityShape-tagged
// structs.
package instance

import (
	"fmt"

	"github.com/charlycst/coral/api"
	"github.com/charlycst/coral/internal/runtime"
	"github.com/charlycst/coral/internal/vmctx"
	"github.com/charlycst/coral/internal/wasmir"
)

// funcEntry is the materialized, per-instance counterpart of wasmir.FuncInfo:
// the shape plus whatever address information that shape makes available
// immediately (an owned function only has a code offset; funcPtr turns it
// into an address once allocateCode has assigned the code area).
type funcEntry struct {
	shape        wasmir.EntityShape
	offset       uint32
	importFrom   wasmir.ImportIndex
	importTarget wasmir.FuncIndex
	nativePtr    uintptr
	sig          api.FuncType
}

type heapEntry struct {
	shape        wasmir.EntityShape
	area         runtime.MemoryArea
	importFrom   wasmir.ImportIndex
	importTarget wasmir.HeapIndex
}

type tableEntry struct {
	shape        wasmir.EntityShape
	data         []uint64
	importFrom   wasmir.ImportIndex
	importTarget wasmir.TableIndex
}

type globEntry struct {
	shape        wasmir.EntityShape
	init         wasmir.GlobInit
	importFrom   wasmir.ImportIndex
	importTarget wasmir.GlobIndex
}

// Instance is one materialized, isolated copy of a module. Its VMContext,
// code, heaps, and tables are private; the only things visible to the
// outside are its exported items (§3, §4.6 isolation invariant).
type Instance struct {
	items map[string]wasmir.ItemRef

	vmctx *vmctx.Block

	heaps   map[wasmir.HeapIndex]heapEntry
	tables  map[wasmir.TableIndex]tableEntry
	funcs   map[wasmir.FuncIndex]funcEntry
	globs   map[wasmir.GlobIndex]globEntry
	imports map[wasmir.ImportIndex]*Instance

	code runtime.MemoryArea

	start    wasmir.FuncIndex
	hasStart bool
}

// Instantiate materializes module against the named dependency instances
// supplied in imports (keyed by the dependency module name as declared by
// the module environment), allocating all state through rt. On any
// failure, instantiation aborts fully: no partial Instance is ever
// returned (§4.4 invariant).
func Instantiate(module *wasmir.Module, imports map[string]*Instance, rt runtime.Runtime) (*Instance, error) {
	resolvedImports, err := resolveImports(module, imports)
	if err != nil {
		return nil, err
	}

	funcs, err := resolveFuncs(module, resolvedImports)
	if err != nil {
		return nil, err
	}

	globs, err := resolveGlobs(module, resolvedImports)
	if err != nil {
		return nil, err
	}

	heaps, err := allocateHeaps(module, resolvedImports, rt)
	if err != nil {
		return nil, err
	}

	tables, err := allocateTables(module, resolvedImports, rt)
	if err != nil {
		return nil, err
	}

	items := make(map[string]wasmir.ItemRef, len(module.Exports))
	for name, ref := range module.Exports {
		items[name] = ref
	}

	inst := &Instance{
		items:    items,
		heaps:    heaps,
		tables:   tables,
		funcs:    funcs,
		globs:    globs,
		imports:  resolvedImports,
		start:    module.Start,
		hasStart: module.StartSet,
	}

	if err := inst.allocateCode(module, rt); err != nil {
		return nil, err
	}

	inst.vmctx = vmctx.NewBlock(vmctx.NewLayout(module.VMContext))
	inst.initVMContext(module.VMContext)

	return inst, nil
}

func resolveImports(module *wasmir.Module, imports map[string]*Instance) (map[wasmir.ImportIndex]*Instance, error) {
	resolved := make(map[wasmir.ImportIndex]*Instance, len(module.Imports))
	for idx, name := range module.Imports {
		dep, ok := imports[name]
		if !ok {
			return nil, &wasmir.ModuleError{Kind: wasmir.FailedToInstantiate, Detail: fmt.Sprintf("missing dependency %q", name)}
		}
		resolved[idx] = dep
	}
	return resolved, nil
}

func resolveFuncs(module *wasmir.Module, imports map[wasmir.ImportIndex]*Instance) (map[wasmir.FuncIndex]funcEntry, error) {
	funcs := make(map[wasmir.FuncIndex]funcEntry, len(module.Funcs))
	for idx, info := range module.Funcs {
		switch info.Shape {
		case wasmir.ShapeOwned:
			funcs[idx] = funcEntry{shape: wasmir.ShapeOwned, offset: info.Offset, sig: info.Type}
		case wasmir.ShapeNative:
			funcs[idx] = funcEntry{shape: wasmir.ShapeNative, nativePtr: info.NativePtr, sig: info.Type}
		case wasmir.ShapeImported:
			dep := imports[info.ImportModule]
			ref, ok := dep.items[info.ImportName]
			if !ok {
				return nil, &wasmir.ModuleError{Kind: wasmir.FailedToInstantiate, Detail: fmt.Sprintf("missing export %q", info.ImportName)}
			}
			target, ok := ref.AsFunc()
			if !ok {
				return nil, &wasmir.ModuleError{Kind: wasmir.TypeError, Detail: fmt.Sprintf("export %q is not a function", info.ImportName)}
			}
			targetEntry := dep.funcs[target]
			if !info.Type.Equal(targetEntry.sig) {
				return nil, &wasmir.ModuleError{Kind: wasmir.TypeError, Detail: fmt.Sprintf("import %q: expected %s, found %s", info.ImportName, info.Type, targetEntry.sig)}
			}
			funcs[idx] = funcEntry{shape: wasmir.ShapeImported, importFrom: info.ImportModule, importTarget: target, sig: info.Type}
		}
	}
	return funcs, nil
}

func resolveGlobs(module *wasmir.Module, imports map[wasmir.ImportIndex]*Instance) (map[wasmir.GlobIndex]globEntry, error) {
	globs := make(map[wasmir.GlobIndex]globEntry, len(module.Globs))
	for idx, info := range module.Globs {
		switch info.Shape {
		case wasmir.ShapeOwned:
			globs[idx] = globEntry{shape: wasmir.ShapeOwned, init: info.Init}
		case wasmir.ShapeImported:
			dep := imports[info.ImportModule]
			ref, ok := dep.items[info.ImportName]
			if !ok {
				return nil, &wasmir.ModuleError{Kind: wasmir.FailedToInstantiate, Detail: fmt.Sprintf("missing export %q", info.ImportName)}
			}
			target, ok := ref.AsGlob()
			if !ok {
				return nil, &wasmir.ModuleError{Kind: wasmir.TypeError, Detail: fmt.Sprintf("export %q is not a global", info.ImportName)}
			}
			globs[idx] = globEntry{shape: wasmir.ShapeImported, importFrom: info.ImportModule, importTarget: target}
		}
	}
	return globs, nil
}

func allocateHeaps(module *wasmir.Module, imports map[wasmir.ImportIndex]*Instance, rt runtime.Runtime) (map[wasmir.HeapIndex]heapEntry, error) {
	heaps := make(map[wasmir.HeapIndex]heapEntry, len(module.Heaps))
	for idx, info := range module.Heaps {
		switch info.Shape {
		case wasmir.ShapeOwned:
			sizeBytes := int(info.MinPages) * wasmir.HeapPageSize
			area, err := rt.AllocHeap(sizeBytes, info.Kind, func(area runtime.MemoryArea) error {
				buf := area.AsBytesMut()
				for i := range buf {
					buf[i] = 0
				}
				return applyDataSegments(buf, idx, module.DataSegments)
			})
			if err != nil {
				if modErr, ok := err.(*wasmir.ModuleError); ok {
					return nil, modErr
				}
				return nil, &wasmir.ModuleError{Kind: wasmir.RuntimeError, Detail: err.Error()}
			}
			heaps[idx] = heapEntry{shape: wasmir.ShapeOwned, area: area}
		case wasmir.ShapeImported:
			dep := imports[info.ImportModule]
			ref, ok := dep.items[info.ImportName]
			if !ok {
				return nil, &wasmir.ModuleError{Kind: wasmir.FailedToInstantiate, Detail: fmt.Sprintf("missing export %q", info.ImportName)}
			}
			target, ok := ref.AsHeap()
			if !ok {
				return nil, &wasmir.ModuleError{Kind: wasmir.TypeError, Detail: fmt.Sprintf("export %q is not a memory", info.ImportName)}
			}
			heaps[idx] = heapEntry{shape: wasmir.ShapeImported, importFrom: info.ImportModule, importTarget: target}
		}
	}
	return heaps, nil
}

func applyDataSegments(heap []byte, idx wasmir.HeapIndex, segments []wasmir.DataSegment) error {
	for _, seg := range segments {
		if seg.Heap != idx {
			continue
		}
		end := int(seg.Offset) + len(seg.Data)
		if end > len(heap) {
			return &wasmir.ModuleError{Kind: wasmir.FailedToInstantiate, Detail: "data segment out of bounds"}
		}
		copy(heap[seg.Offset:end], seg.Data)
	}
	return nil
}

func allocateTables(module *wasmir.Module, imports map[wasmir.ImportIndex]*Instance, rt runtime.Runtime) (map[wasmir.TableIndex]tableEntry, error) {
	tables := make(map[wasmir.TableIndex]tableEntry, len(module.Tables))
	for idx, info := range module.Tables {
		switch info.Shape {
		case wasmir.ShapeOwned:
			data, err := rt.AllocTable(info.Min, info.Max, info.ElementType)
			if err != nil {
				return nil, &wasmir.ModuleError{Kind: wasmir.RuntimeError, Detail: err.Error()}
			}
			if err := applyElementSegments(data, idx, module.ElementSegments); err != nil {
				return nil, err
			}
			tables[idx] = tableEntry{shape: wasmir.ShapeOwned, data: data}
		case wasmir.ShapeNative:
			tables[idx] = tableEntry{shape: wasmir.ShapeNative, data: info.NativeArray}
		case wasmir.ShapeImported:
			dep := imports[info.ImportModule]
			ref, ok := dep.items[info.ImportName]
			if !ok {
				return nil, &wasmir.ModuleError{Kind: wasmir.FailedToInstantiate, Detail: fmt.Sprintf("missing export %q", info.ImportName)}
			}
			target, ok := ref.AsTable()
			if !ok {
				return nil, &wasmir.ModuleError{Kind: wasmir.TypeError, Detail: fmt.Sprintf("export %q is not a table", info.ImportName)}
			}
			tables[idx] = tableEntry{shape: wasmir.ShapeImported, importFrom: info.ImportModule, importTarget: target}
		}
	}
	return tables, nil
}

// applyElementSegments writes each element segment's function indices into
// the table as raw FuncIndex handles. A table populated this way only
// becomes callable once resolveFuncs has already run and code has been
// relocated, since the materializer resolves call targets by relocation
// rather than by reading table contents at call time; the element values
// here are the funcref handles table.get/table.set expose to Wasm code.
func applyElementSegments(data []uint64, idx wasmir.TableIndex, segments []wasmir.ElementSegment) error {
	for _, seg := range segments {
		if seg.Table != idx {
			continue
		}
		end := int(seg.Offset) + len(seg.Funcs)
		if end > len(data) {
			return &wasmir.ModuleError{Kind: wasmir.FailedToInstantiate, Detail: "element segment out of bounds"}
		}
		for i, fn := range seg.Funcs {
			data[int(seg.Offset)+i] = uint64(fn)
		}
	}
	return nil
}

func (inst *Instance) allocateCode(module *wasmir.Module, rt runtime.Runtime) error {
	if len(module.Code) == 0 {
		// No owned function was compiled: there is no code area to
		// allocate or relocate.
		return nil
	}
	area, err := rt.AllocCode(len(module.Code), func(area runtime.MemoryArea) error {
		buf := area.AsBytesMut()
		copy(buf, module.Code)
		return inst.relocate(buf, module.Relocs)
	})
	if err != nil {
		if modErr, ok := err.(*wasmir.ModuleError); ok {
			return modErr
		}
		return &wasmir.ModuleError{Kind: wasmir.RuntimeError, Detail: err.Error()}
	}
	inst.code = area
	return nil
}

// relocate patches every relocation site in code. Only RelocAbs8 and
// RelocX86CallPCRel4 are honored; any other kind, or any non-function
// relocation target, is an instantiation error (§4.4).
func (inst *Instance) relocate(code []byte, relocs []wasmir.Reloc) error {
	for _, r := range relocs {
		fn, ok := r.Target.AsFunc()
		if !ok {
			return &wasmir.ModuleError{Kind: wasmir.FailedToInstantiate, Detail: "relocation target is not a function"}
		}
		addr := int64(inst.funcAddrRelativeTo(code, fn))
		value := addr + r.Addend

		off := int(r.Offset)
		width := int(r.Kind.Width())
		if off+width > len(code) {
			return &wasmir.ModuleError{Kind: wasmir.FailedToInstantiate, Detail: "relocation out of bounds"}
		}

		switch r.Kind {
		case wasmir.RelocAbs8:
			putLE64(code[off:off+8], uint64(value))
		case wasmir.RelocX86CallPCRel4:
			pc := int64(codeBaseAddr(code)) + int64(r.Offset)
			rel := int32(value - pc)
			putLE32(code[off:off+4], uint32(rel))
		default:
			return &wasmir.ModuleError{Kind: wasmir.FailedToInstantiate, Detail: "unsupported relocation kind: " + r.Kind.String()}
		}
	}
	return nil
}

func (inst *Instance) initVMContext(layout wasmir.VMContextLayout) {
	for _, idx := range layout.Heaps {
		inst.vmctx.SetHeap(idx, inst.heapPtr(idx))
	}
	for _, idx := range layout.Funcs {
		inst.vmctx.SetFunc(idx, inst.funcPtr(idx))
	}
	for _, idx := range layout.Imports {
		inst.vmctx.SetImport(idx, inst.imports[idx].VMContextPtr())
	}
	for _, idx := range layout.Globs {
		entry := inst.globs[idx]
		if entry.shape == wasmir.ShapeImported {
			inst.vmctx.SetGlobPtr(idx, inst.globPtr(idx))
		} else {
			inst.vmctx.SetGlobInline(idx, entry.init.AsU64())
		}
	}
	for _, idx := range layout.Tables {
		ptr, bound := inst.tablePtrAndBound(idx)
		inst.vmctx.SetTablePtr(idx, ptr)
		inst.vmctx.SetTableBound(idx, bound)
	}
}

// funcPtr resolves the address of func idx, recursing through imports
// (§4.4 "recursive cross-instance resolution").
func (inst *Instance) funcPtr(idx wasmir.FuncIndex) uintptr {
	entry := inst.funcs[idx]
	switch entry.shape {
	case wasmir.ShapeOwned:
		return inst.funcAddrRelativeTo(inst.code.AsBytes(), idx)
	case wasmir.ShapeNative:
		return entry.nativePtr
	case wasmir.ShapeImported:
		return inst.imports[entry.importFrom].funcPtr(entry.importTarget)
	}
	return 0
}

// funcAddrRelativeTo computes an owned function's address relative to a
// code buffer that may not yet be inst.code (used during relocation,
// before inst.code is assigned).
func (inst *Instance) funcAddrRelativeTo(code []byte, idx wasmir.FuncIndex) uintptr {
	entry := inst.funcs[idx]
	switch entry.shape {
	case wasmir.ShapeOwned:
		return codeBaseAddr(code) + uintptr(entry.offset)
	case wasmir.ShapeNative:
		return entry.nativePtr
	case wasmir.ShapeImported:
		return inst.imports[entry.importFrom].funcPtr(entry.importTarget)
	}
	return 0
}

func (inst *Instance) heapPtr(idx wasmir.HeapIndex) uintptr {
	entry := inst.heaps[idx]
	if entry.shape == wasmir.ShapeImported {
		return inst.imports[entry.importFrom].heapPtr(entry.importTarget)
	}
	return entry.area.AsPtr()
}

func (inst *Instance) tablePtrAndBound(idx wasmir.TableIndex) (uintptr, uint32) {
	entry := inst.tables[idx]
	if entry.shape == wasmir.ShapeImported {
		return inst.imports[entry.importFrom].tablePtrAndBound(entry.importTarget)
	}
	if len(entry.data) == 0 {
		return 0, 0
	}
	return dataPtr(entry.data), uint32(len(entry.data))
}

func (inst *Instance) globPtr(idx wasmir.GlobIndex) uintptr {
	entry := inst.globs[idx]
	if entry.shape == wasmir.ShapeImported {
		return inst.imports[entry.importFrom].globPtr(entry.importTarget)
	}
	return inst.vmctx.GlobPtr(idx)
}

// VMContextPtr returns the address of this instance's VMContext storage
// block, passed as the hidden first argument to every generated and
// native function (§4.6).
func (inst *Instance) VMContextPtr() uintptr {
	return inst.vmctx.AsPointer()
}

// StartFunc returns the designated start function, if one was declared.
func (inst *Instance) StartFunc() (wasmir.FuncIndex, bool) {
	return inst.start, inst.hasStart
}

// Export looks up name in this instance's export table.
func (inst *Instance) Export(name string) (wasmir.ItemRef, bool) {
	ref, ok := inst.items[name]
	return ref, ok
}

// FuncAddr returns the callable address and signature of exported function
// name.
func (inst *Instance) FuncAddr(name string) (uintptr, api.FuncType, bool) {
	ref, ok := inst.items[name]
	if !ok {
		return 0, api.FuncType{}, false
	}
	idx, ok := ref.AsFunc()
	if !ok {
		return 0, api.FuncType{}, false
	}
	return inst.funcPtr(idx), inst.funcs[idx].sig, true
}

// FuncAddrByIndex returns the callable address and signature of func idx
// directly, used by the invoker once it already holds a resolved index
// (e.g. the start function).
func (inst *Instance) FuncAddrByIndex(idx wasmir.FuncIndex) (uintptr, api.FuncType) {
	return inst.funcPtr(idx), inst.funcs[idx].sig
}

// GlobalValue returns the current 8-byte value of exported global name.
func (inst *Instance) GlobalValue(name string) (uint64, bool) {
	ref, ok := inst.items[name]
	if !ok {
		return 0, false
	}
	idx, ok := ref.AsGlob()
	if !ok {
		return 0, false
	}
	entry := inst.globs[idx]
	if entry.shape == wasmir.ShapeImported {
		return readU64(inst.imports[entry.importFrom].globPtr(entry.importTarget)), true
	}
	return inst.vmctx.GlobValue(idx), true
}

// TableEntry returns the raw slot value at index within exported table
// name.
func (inst *Instance) TableEntry(name string, index uint32) (uint64, bool) {
	ref, ok := inst.items[name]
	if !ok {
		return 0, false
	}
	idx, ok := ref.AsTable()
	if !ok {
		return 0, false
	}
	return inst.tableGet(idx, index)
}

// SetTableEntry writes a raw slot value at index within exported table
// name.
func (inst *Instance) SetTableEntry(name string, index uint32, value uint64) bool {
	ref, ok := inst.items[name]
	if !ok {
		return false
	}
	idx, ok := ref.AsTable()
	if !ok {
		return false
	}
	return inst.tableSet(idx, index, value)
}

func (inst *Instance) tableGet(idx wasmir.TableIndex, index uint32) (uint64, bool) {
	entry := inst.tables[idx]
	if entry.shape == wasmir.ShapeImported {
		return inst.imports[entry.importFrom].tableGet(entry.importTarget, index)
	}
	if index >= uint32(len(entry.data)) {
		return 0, false
	}
	return entry.data[index], true
}

func (inst *Instance) tableSet(idx wasmir.TableIndex, index uint32, value uint64) bool {
	entry := inst.tables[idx]
	if entry.shape == wasmir.ShapeImported {
		return inst.imports[entry.importFrom].tableSet(entry.importTarget, index, value)
	}
	if index >= uint32(len(entry.data)) {
		return false
	}
	entry.data[index] = value
	return true
}
