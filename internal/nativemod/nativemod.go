// Package nativemod builds native modules: modules with no Wasm bytecode
// of their own, whose functions and tables are backed directly by
// host-provided state instead of compiled code (§4.1's ShapeNative
// storage shape). Grounded on the original's crates/wasm/src/funcs.rs
// (NativeFunc, the as_native_func! macro) and kernel/src/syscalls.rs
// (build_syscall_module, print_char, buffer_write).
//
// A native function's body still has to be real, callable x86-64 machine
// code: a relocated CALL instruction in a dependent module's generated
// code jumps straight to it, with no trampoline in between. The original
// gets this for free because Rust's extern "sysv64" fn is already
// SystemV-ABI machine code. Go closures are not: calling one from a raw
// relocated CALL would require a hand-written assembly bridge whose
// frame-size accounting the Go assembler checks at build time, which this
// repo cannot run (see DESIGN.md). Builder.AddFunc sidesteps the gap by
// compiling the native function's body through the same
// compiler.CompileFunction used for every other function, so its code
// pointer is ordinary relocatable machine code; AddRawFunc remains for a
// genuinely pre-built code pointer (e.g. produced by a cgo export or a
// platform callback thunk obtained elsewhere).
package nativemod

import (
	"github.com/charlycst/coral/api"
	"github.com/charlycst/coral/internal/kobj"
	"github.com/charlycst/coral/internal/moduleenv"
	"github.com/charlycst/coral/internal/wasmir"
)

// Builder accumulates native function and table declarations into a
// moduleenv.Environment, then compiles them into a plain wasmir.Module
// with no imports — ready for instance.Instantiate. It also owns a handle
// table for host objects exposed to Wasm code as opaque externref values
// (§4.5, §5), matching kernel/src/syscalls.rs's build_syscall_module,
// which hands out such handles alongside its native funcs and tables.
type Builder struct {
	env     *moduleenv.Environment
	objects *kobj.Collection[any]
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{env: moduleenv.New(), objects: kobj.New[any]()}
}

// AddFunc declares a native function whose body is the given operation
// sequence, compiled exactly like any owned function, and exports it
// under name. This is the realistic path for host services expressible
// in the supported Op subset — arithmetic glue, memory/table
// manipulation — matching spec.md §8's "native-host import" scenario.
func (b *Builder) AddFunc(name string, sig api.FuncType, numLocals uint32, ops []moduleenv.Op) (wasmir.FuncIndex, error) {
	typ := b.env.DeclareType(sig.Params, sig.Results)
	idx := b.env.DeclareFunc(typ)
	if err := b.env.DefineFunctionBody(idx, numLocals, ops); err != nil {
		return 0, err
	}
	b.env.DeclareExport(name, wasmir.FuncRef(idx))
	return idx, nil
}

// AddRawFunc declares a native function backed directly by an
// already-built SystemV-callable code pointer (ShapeNative), exported
// under name. Callers are responsible for ptr's calling convention
// matching §4.7 exactly: VMContext in RDI, up to five Wasm arguments in
// RSI, RDX, RCX, R8, R9, and (when sig has more than one result) a
// caller-allocated return-area pointer as the leading argument.
func (b *Builder) AddRawFunc(name string, sig api.FuncType, ptr uintptr) wasmir.FuncIndex {
	idx := b.env.DeclareNativeFunc(sig, ptr)
	b.env.DeclareExport(name, wasmir.FuncRef(idx))
	return idx
}

// AddTable declares a native table backed directly by data, exported
// under name. data's length is the table's fixed size; Non-goals exclude
// table growth. Mirrors kernel/src/syscalls.rs's
// add_table("handles", vec![ExternRef::Buffer(BufferIndex(0))]).
func (b *Builder) AddTable(name string, data []uint64, elementType api.ValueType) wasmir.TableIndex {
	idx := b.env.DeclareNativeTable(data, elementType)
	b.env.DeclareExport(name, wasmir.TableRefOf(idx))
	return idx
}

// AddHandleTable registers each of objects in the builder's handle table
// and exports a native table of externref handles pointing at them, one
// handle per object in declaration order — the shape
// kernel/src/syscalls.rs's add_table("handles", ...) uses to expose host
// buffers to Wasm code. Objects resolves a handle read back out of the
// table to the object it names.
func (b *Builder) AddHandleTable(name string, objects []any, elementType api.ValueType) wasmir.TableIndex {
	data := make([]uint64, len(objects))
	for i, obj := range objects {
		idx := b.objects.Insert(obj)
		data[i] = api.EncodeExternRef(uintptr(idx))
	}
	return b.AddTable(name, data, elementType)
}

// Objects returns the builder's handle table, for host-side callers that
// need to resolve an externref value (e.g. one read back via
// Instance.TableEntry) to the object it names.
func (b *Builder) Objects() *kobj.Collection[any] {
	return b.objects
}

// Build compiles the declared functions and finalizes the module. The
// result has no imports: Instantiate(module, nil, rt) materializes it.
func (b *Builder) Build() (*wasmir.Module, error) {
	return b.env.Compile()
}
