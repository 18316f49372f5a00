// Package api includes the value and function types shared between the
// compiler, the instance materializer, and host code.
package api

import "math"

// ValueType describes a numeric type carried across the Wasm/host boundary.
// Every value, regardless of ValueType, is passed as a uint64-wide register
// or stack slot; see EncodeF32/DecodeF32/EncodeF64/DecodeF64 for the types
// that need a bit-level conversion to fit that slot.
type ValueType = byte

const (
	// ValueTypeI32 is a 32-bit integer, stored in the low 32 bits of a slot.
	ValueTypeI32 ValueType = 0x7f
	// ValueTypeI64 is a 64-bit integer.
	ValueTypeI64 ValueType = 0x7e
	// ValueTypeF32 is a 32-bit float; use EncodeF32/DecodeF32 to convert.
	ValueTypeF32 ValueType = 0x7d
	// ValueTypeF64 is a 64-bit float; use EncodeF64/DecodeF64 to convert.
	ValueTypeF64 ValueType = 0x7c
	// ValueTypeFuncRef is an opaque pointer to a Wasm function.
	ValueTypeFuncRef ValueType = 0x70
	// ValueTypeExternRef is an opaque host-provided handle. Handles are not
	// interpreted by the runtime; see the kobj package for one way a host
	// can mint them.
	ValueTypeExternRef ValueType = 0x6f
)

// ValueTypeName returns the Wasm text-format name of t, or "unknown".
func ValueTypeName(t ValueType) string {
	switch t {
	case ValueTypeI32:
		return "i32"
	case ValueTypeI64:
		return "i64"
	case ValueTypeF32:
		return "f32"
	case ValueTypeF64:
		return "f64"
	case ValueTypeFuncRef:
		return "funcref"
	case ValueTypeExternRef:
		return "externref"
	}
	return "unknown"
}

// ExternType classifies an imported or exported item.
type ExternType = byte

const (
	ExternTypeFunc   ExternType = 0x00
	ExternTypeTable  ExternType = 0x01
	ExternTypeMemory ExternType = 0x02
	ExternTypeGlobal ExternType = 0x03
)

// ExternTypeName returns the Wasm text-format field name of et.
func ExternTypeName(et ExternType) string {
	switch et {
	case ExternTypeFunc:
		return "func"
	case ExternTypeTable:
		return "table"
	case ExternTypeMemory:
		return "memory"
	case ExternTypeGlobal:
		return "global"
	}
	return "unknown"
}

// FuncType is a function signature: parameter types followed by result
// types. At most one value may be returned across the host boundary without
// a caller-allocated return area; see the invoke package.
type FuncType struct {
	Params  []ValueType
	Results []ValueType
}

// Equal reports whether f and other describe the same signature.
func (f FuncType) Equal(other FuncType) bool {
	if len(f.Params) != len(other.Params) || len(f.Results) != len(other.Results) {
		return false
	}
	for i, p := range f.Params {
		if p != other.Params[i] {
			return false
		}
	}
	for i, r := range f.Results {
		if r != other.Results[i] {
			return false
		}
	}
	return true
}

// String renders f in a form close to the Wasm text format, e.g.
// "(i32, i32) -> (i32)".
func (f FuncType) String() string {
	s := "("
	for i, p := range f.Params {
		if i > 0 {
			s += ", "
		}
		s += ValueTypeName(p)
	}
	s += ") -> ("
	for i, r := range f.Results {
		if i > 0 {
			s += ", "
		}
		s += ValueTypeName(r)
	}
	return s + ")"
}

// EncodeF32 encodes input as a ValueTypeF32 register/stack slot value.
//
// See DecodeF32.
func EncodeF32(input float32) uint64 {
	return uint64(math.Float32bits(input))
}

// DecodeF32 decodes a ValueTypeF32 slot value back to a float32.
//
// See EncodeF32.
func DecodeF32(input uint64) float32 {
	return math.Float32frombits(uint32(input))
}

// EncodeF64 encodes input as a ValueTypeF64 register/stack slot value.
//
// See DecodeF64.
func EncodeF64(input float64) uint64 {
	return math.Float64bits(input)
}

// DecodeF64 decodes a ValueTypeF64 slot value back to a float64.
//
// See EncodeF64.
func DecodeF64(input uint64) float64 {
	return math.Float64frombits(input)
}

// EncodeExternRef encodes a host handle as a ValueTypeExternRef slot value.
func EncodeExternRef(input uintptr) uint64 {
	return uint64(input)
}

// DecodeExternRef decodes a ValueTypeExternRef slot value back to a host
// handle.
func DecodeExternRef(input uint64) uintptr {
	return uintptr(input)
}
