package amd64asm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRet(t *testing.T) {
	a := New()
	a.Ret()
	require.Equal(t, []byte{0xC3}, a.Bytes())
}

func TestMovRegImm32(t *testing.T) {
	a := New()
	a.MovRegImm32(RAX, 42)
	require.Equal(t, []byte{0xB8, 42, 0, 0, 0}, a.Bytes())
}

func TestPushPopRbp(t *testing.T) {
	a := New()
	a.PushReg64(RBP)
	a.MovRegReg64(RBP, RSP)
	a.PopReg64(RBP)
	require.Equal(t, []byte{0x55, 0x48, 0x89, 0xE5, 0x5D}, a.Bytes())
}

func TestCallRel32PlaceholderOffset(t *testing.T) {
	a := New()
	a.PushReg64(RBP)
	off := a.CallRel32()
	require.Equal(t, uint32(2), off)
	require.Len(t, a.Bytes(), 6)
	require.Equal(t, byte(0xE8), a.Bytes()[1])
}

func TestMovLoadStore64RoundTripEncodingLength(t *testing.T) {
	a := New()
	a.MovLoad64(RAX, RBP, -8)
	a.MovStore64(RBP, -16, RAX)
	// REX + opcode + modrm + disp32, twice
	require.Len(t, a.Bytes(), 14)
}

func TestAssertNoSIBNeededPanics(t *testing.T) {
	a := New()
	require.Panics(t, func() { a.MovLoad64(RAX, RSP, 0) })
}
