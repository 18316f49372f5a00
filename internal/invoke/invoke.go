// Package invoke implements the host-side half of the Host↔Wasm ABI
// (§4.7): calling an already-materialized instance's exported function
// using the same SystemV calling convention generated code uses for
// direct calls. Grounded on the original's kernel/src/wasm.rs
// (Component::call, its inline asm! block: VMContext in RDI, up to five
// Wasm arguments in RSI..R9, RAX/R10/R11 clobbered) and the teacher's own
// internal/engine/compiler amd64 assembly entry stub (nativecall,
// referenced by its surviving Go call sites as a raw-uintptr assembly
// trampoline).
package invoke

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/charlycst/coral/api"
)

// maxArgRegs is the number of integer registers available to carry Wasm
// arguments and, when present, the leading return-area pointer — RSI,
// RDX, RCX, R8, R9, matching compiler.maxRegArgs.
const maxArgRegs = 5

// maxResults is this repository's supported result-count ceiling (§4.7,
// §9's "host→Wasm results wider than one value beyond the return-pointer
// convention" Non-goal): one value in RAX plus up to one more in the
// return area.
const maxResults = 2

// Target is anything an exported function can be called on: a materialized
// instance, a native module, or any future polymorphic module kind (§9
// "Polymorphism"). instance.Instance and nativemod's built instances both
// satisfy it via instance.Instance's own methods.
type Target interface {
	FuncAddr(name string) (uintptr, api.FuncType, bool)
	VMContextPtr() uintptr
}

// callCompiled is the assembly trampoline implemented in call_amd64.s. It
// issues a single CALL to fn with the SystemV register assignment vmctx
// (RDI), a0..a4 (RSI, RDX, RCX, R8, R9), and returns the raw RAX value as
// r0 and the raw RDX value as r1. Call ignores r1: results beyond the
// first are read back out of the caller-allocated return area, not a
// register.
//
//go:noescape
func callCompiled(fn, vmctx uintptr, a0, a1, a2, a3, a4 uint64) (r0, r1 uint64)

// Invoke calls the function exported under name on target with args. See
// Call for the calling-convention details.
func Invoke(target Target, name string, args ...uint64) ([]uint64, error) {
	fn, sig, ok := target.FuncAddr(name)
	if !ok {
		return nil, fmt.Errorf("invoke: no export named %q", name)
	}
	results, err := Call(fn, target.VMContextPtr(), sig, args...)
	if err != nil {
		return nil, fmt.Errorf("invoke %q: %w", name, err)
	}
	return results, nil
}

// Call issues one SystemV call to fn (a generated or native function's
// entry point) with vmctx and args, mirroring Component::call's register
// assignment and assertions (argument count must match the signature
// exactly; more than two results is out of scope). When sig returns more
// than one result, Call allocates the return-area buffer and passes its
// address as the leading argument register, exactly as
// compiler.CompileFunction's OpCall lowering does for an intra-module
// call.
func Call(fn, vmctx uintptr, sig api.FuncType, args ...uint64) ([]uint64, error) {
	if len(args) != len(sig.Params) {
		return nil, fmt.Errorf("expects %d arguments, got %d", len(sig.Params), len(args))
	}
	if len(sig.Results) > maxResults {
		return nil, fmt.Errorf("returns %d results, at most %d supported", len(sig.Results), maxResults)
	}

	hasRetArea := len(sig.Results) > 1
	regOffset := 0
	var retArea []uint64
	if hasRetArea {
		retArea = make([]uint64, len(sig.Results)-1)
		regOffset = 1
	}
	if regOffset+len(args) > maxArgRegs {
		return nil, errors.New("takes too many arguments for the register-only ABI")
	}

	var regs [maxArgRegs]uint64
	if hasRetArea {
		regs[0] = uint64(uintptr(unsafe.Pointer(&retArea[0])))
	}
	copy(regs[regOffset:], args)

	r0, _ := callCompiled(fn, vmctx, regs[0], regs[1], regs[2], regs[3], regs[4])

	if len(sig.Results) == 0 {
		return nil, nil
	}
	results := make([]uint64, len(sig.Results))
	results[0] = r0
	copy(results[1:], retArea)
	return results, nil
}
