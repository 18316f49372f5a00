package api

// WasmValue is the set of Go types that can cross the Wasm/host boundary as
// a single value. It mirrors the original runtime's WasmType trait
// (crates/wasm/src/abi.rs), restated with Go generics instead of Rust
// marker traits.
type WasmValue interface {
	int32 | int64 | float32 | float64 | uintptr
}

// ValueTypeOf returns the ValueType that represents T.
func ValueTypeOf[T WasmValue]() ValueType {
	var zero T
	switch any(zero).(type) {
	case int32:
		return ValueTypeI32
	case int64:
		return ValueTypeI64
	case float32:
		return ValueTypeF32
	case float64:
		return ValueTypeF64
	case uintptr:
		return ValueTypeExternRef
	}
	panic("unreachable")
}

// EncodeValue packs v into a uint64 register/stack slot.
func EncodeValue[T WasmValue](v T) uint64 {
	switch x := any(v).(type) {
	case int32:
		return uint64(uint32(x))
	case int64:
		return uint64(x)
	case float32:
		return EncodeF32(x)
	case float64:
		return EncodeF64(x)
	case uintptr:
		return uint64(x)
	}
	panic("unreachable")
}

// DecodeValue unpacks a uint64 register/stack slot into T.
func DecodeValue[T WasmValue](u uint64) T {
	var zero T
	switch any(zero).(type) {
	case int32:
		return any(int32(uint32(u))).(T)
	case int64:
		return any(int64(u)).(T)
	case float32:
		return any(DecodeF32(u)).(T)
	case float64:
		return any(DecodeF64(u)).(T)
	case uintptr:
		return any(uintptr(u)).(T)
	}
	panic("unreachable")
}

// NativeFunc is a host-side handle to a function reachable by the
// Host↔Wasm invoker: either a compiled Wasm export (RawPtr points at
// generated machine code) or a native host function registered through
// nativemod.Builder. Params and Results are the declared signature, used
// only for documentation and type-checking at call sites; the actual
// marshalling happens through EncodeValue/DecodeValue and the invoke
// package, since Go forbids variadic generic type parameters.
//
// This mirrors the original's NativeFunc<Params, Results> (crates/wasm/src/funcs.rs),
// which is itself a thin PhantomData-tagged wrapper around a raw function
// pointer plus a SystemV trampoline generated per arity by a macro.
type NativeFunc[Params, Results any] struct {
	// RawPtr is the address of the callee: either emitted Wasm machine
	// code or a SystemV-callable code pointer registered through nativemod.
	RawPtr uintptr
	Type   FuncType
}

// IsNil reports whether the native function has not been bound to code yet.
func (f NativeFunc[Params, Results]) IsNil() bool {
	return f.RawPtr == 0
}
