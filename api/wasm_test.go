package api

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValueTypeName(t *testing.T) {
	tests := []struct {
		name string
		vt   ValueType
		want string
	}{
		{"i32", ValueTypeI32, "i32"},
		{"i64", ValueTypeI64, "i64"},
		{"f32", ValueTypeF32, "f32"},
		{"f64", ValueTypeF64, "f64"},
		{"funcref", ValueTypeFuncRef, "funcref"},
		{"externref", ValueTypeExternRef, "externref"},
		{"unknown", 0xff, "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ValueTypeName(tt.vt))
		})
	}
}

func TestExternTypeName(t *testing.T) {
	require.Equal(t, "func", ExternTypeName(ExternTypeFunc))
	require.Equal(t, "table", ExternTypeName(ExternTypeTable))
	require.Equal(t, "memory", ExternTypeName(ExternTypeMemory))
	require.Equal(t, "global", ExternTypeName(ExternTypeGlobal))
	require.Equal(t, "unknown", ExternTypeName(0xff))
}

func TestFuncTypeEqual(t *testing.T) {
	a := FuncType{Params: []ValueType{ValueTypeI32, ValueTypeI32}, Results: []ValueType{ValueTypeI32}}
	b := FuncType{Params: []ValueType{ValueTypeI32, ValueTypeI32}, Results: []ValueType{ValueTypeI32}}
	c := FuncType{Params: []ValueType{ValueTypeI64}, Results: []ValueType{ValueTypeI32}}

	require.True(t, a.Equal(b))
	require.False(t, a.Equal(c))
	require.Equal(t, "(i32, i32) -> (i32)", a.String())
}

func TestEncodeDecodeF32(t *testing.T) {
	require.Equal(t, float32(3.5), DecodeF32(EncodeF32(3.5)))
}

func TestEncodeDecodeF64(t *testing.T) {
	require.Equal(t, 3.5, DecodeF64(EncodeF64(3.5)))
}

func TestEncodeDecodeExternRef(t *testing.T) {
	var x int
	p := uintptr(EncodeExternRef(uintptr(0xdeadbeef)))
	require.Equal(t, uintptr(0xdeadbeef), DecodeExternRef(p))
	_ = x
}

func TestEncodeDecodeValueGenerics(t *testing.T) {
	require.Equal(t, ValueTypeI32, ValueTypeOf[int32]())
	require.Equal(t, ValueTypeI64, ValueTypeOf[int64]())
	require.Equal(t, ValueTypeF32, ValueTypeOf[float32]())
	require.Equal(t, ValueTypeF64, ValueTypeOf[float64]())
	require.Equal(t, ValueTypeExternRef, ValueTypeOf[uintptr]())

	require.Equal(t, int32(-7), DecodeValue[int32](EncodeValue(int32(-7))))
	require.Equal(t, int64(-7), DecodeValue[int64](EncodeValue(int64(-7))))
	require.Equal(t, float32(1.25), DecodeValue[float32](EncodeValue(float32(1.25))))
	require.Equal(t, 1.25, DecodeValue[float64](EncodeValue(1.25)))
	require.Equal(t, uintptr(42), DecodeValue[uintptr](EncodeValue(uintptr(42))))
}

func TestNativeFuncIsNil(t *testing.T) {
	var f NativeFunc[struct{}, struct{}]
	require.True(t, f.IsNil())
	f.RawPtr = 1
	require.False(t, f.IsNil())
}
