// Package compiler implements the in-scope slice of code generation named
// by spec §4.1: the layout contract between the module environment and the
// runtime. It deliberately has no register allocator or instruction
// selector — every value lives in a fixed stack slot, the simplest
// non-allocating strategy, which is exactly the complexity spec §1
// excludes from this repository's scope. It mirrors the teacher's own
// split between an IR and a lowering stage (internal/wazeroir +
// internal/engine/compiler), collapsed to a single non-optimizing pass,
// and its amd64 backend's hand-rolled encoding style
// (internal/asm/amd64/impl.go) rather than a general assembler dependency.
package compiler

import (
	"github.com/charlycst/coral/api"
	"github.com/charlycst/coral/internal/compiler/amd64asm"
	"github.com/charlycst/coral/internal/vmctx"
	"github.com/charlycst/coral/internal/wasmir"
)

// maxRegArgs is the number of Wasm-argument integer registers available
// after the VMContext and (optionally) the return-area pointer, per §4.7
// step 4: "Up to 5 Wasm arguments beyond the VMContext are supported via
// registers; passing more ... is out of scope here."
const maxRegArgs = 5

// argRegs are the SystemV integer argument registers used for Wasm
// arguments, in order, after RDI (always the VMContext).
var argRegs = []amd64asm.Reg{amd64asm.RSI, amd64asm.RDX, amd64asm.RCX, amd64asm.R8, amd64asm.R9}

// CallTarget describes what a Call op's FuncIndex resolves to, supplied by
// the caller (moduleenv.Environment.Compile, which already knows every
// declared function's shape) since the compiler does not itself hold the
// whole module.
type CallTarget struct {
	Imported     bool
	ImportModule wasmir.ImportIndex
	Sig          api.FuncType
}

// FuncEnv is everything CompileFunction needs about the rest of the module
// to lower calls, globals, and tables: the finished VMContext layout
// (so slot offsets are known) and per-index descriptors for anything an
// Op can reference.
type FuncEnv struct {
	Layout         wasmir.VMContextLayout
	Calls          map[wasmir.FuncIndex]CallTarget
	GlobImported   map[wasmir.GlobIndex]bool
}

// Compiler lowers one function body at a time to machine code plus
// relocations.
type Compiler struct{}

// New returns a Compiler.
func New() *Compiler { return &Compiler{} }

// frame describes the fixed stack-slot layout chosen for one function.
type frame struct {
	vmctxOff   int32
	retAreaOff int32
	paramBase  int32
	localBase  int32
	stackBase  int32
	scratchOff int32
	numScratch int
	size       uint32
}

func newFrame(numParams, numLocals, maxDepth int, scratchSlots int) frame {
	f := frame{vmctxOff: -8, retAreaOff: -16}
	f.paramBase = -16
	f.localBase = f.paramBase - int32(numParams)*8
	f.stackBase = f.localBase - int32(numLocals)*8
	f.scratchOff = f.stackBase - int32(maxDepth)*8
	f.numScratch = scratchSlots
	total := 16 + numParams*8 + numLocals*8 + maxDepth*8 + scratchSlots*8
	if total%16 != 0 {
		total += 16 - total%16
	}
	f.size = uint32(total)
	return f
}

// scratchBase is the lowest (most negative) address of the call
// scratch-return-area region, reused by every OpCall in the body: at most
// one call's secondary results are ever in flight, since each call's
// results are moved onto the operand stack before any subsequent call is
// emitted.
func (f frame) scratchBase() int32 {
	if f.numScratch == 0 {
		return f.scratchOff
	}
	return f.scratchSlot(f.numScratch - 1)
}

func (f frame) paramSlot(i int) int32 { return f.paramBase - int32(i+1)*8 }
func (f frame) localSlot(i int) int32 { return f.localBase - int32(i+1)*8 }
func (f frame) stackSlot(depth int) int32 { return f.stackBase - int32(depth+1)*8 }
func (f frame) scratchSlot(k int) int32   { return f.scratchOff - int32(k+1)*8 }

// stackEffect returns the (pop, push) counts of op on the operand stack,
// consulting env for Call (whose arity depends on the callee's signature).
func stackEffect(op wasmir.Op, env FuncEnv) (pop, push int) {
	switch op.Kind {
	case wasmir.OpI32Const, wasmir.OpI64Const, wasmir.OpLocalGet, wasmir.OpGlobalGet:
		return 0, 1
	case wasmir.OpLocalSet, wasmir.OpGlobalSet, wasmir.OpDrop:
		return 1, 0
	case wasmir.OpI32Add:
		return 2, 1
	case wasmir.OpI32Load, wasmir.OpTableGet:
		return 1, 1
	case wasmir.OpI32Store, wasmir.OpTableSet:
		return 2, 0
	case wasmir.OpCall:
		target := env.Calls[wasmir.FuncIndex(op.Index)]
		return len(target.Sig.Params), len(target.Sig.Results)
	case wasmir.OpReturn:
		return 0, 0 // handled specially; consumes the live results, not a stack op
	}
	return 0, 0
}

// regionOffsets caches vmctx's own prefix-sum layout so the compiler and
// the materializer never disagree about where a slot lives.
type regionOffsets struct {
	glob       int32
	importBase int32
	table      int32
}

func computeRegionOffsets(layout wasmir.VMContextLayout) regionOffsets {
	l := vmctx.NewLayout(layout)
	return regionOffsets{
		glob:       int32(l.GlobOffset()),
		importBase: int32(l.ImportOffset()),
		table:      int32(l.TableOffset()),
	}
}

// CompileFunction lowers one function body to a relocatable code sequence.
// env carries the finished VMContext layout and per-Call/per-global
// metadata the module environment has already gathered about the rest of
// the module.
func (c *Compiler) CompileFunction(sig api.FuncType, numLocals uint32, ops []wasmir.Op, env FuncEnv) ([]byte, []wasmir.Reloc, error) {
	if len(sig.Params)+boolToInt(len(sig.Results) > 1) > maxRegArgs {
		return nil, nil, &wasmir.CompileError{Kind: wasmir.FailedToCompile, Detail: "too many parameters for the register-only ABI"}
	}
	for _, op := range ops {
		if !op.Kind.Supported() {
			return nil, nil, &wasmir.CompileError{Kind: wasmir.Unsupported, Detail: op.Kind.String()}
		}
	}

	maxDepth, scratchSlots := simulate(ops, env, len(sig.Results))
	f := newFrame(len(sig.Params), int(numLocals), maxDepth, scratchSlots)
	regions := computeRegionOffsets(env.Layout)

	// Wasm local indices number the parameters first, then the declared
	// locals.
	varSlot := func(i uint32) int32 {
		if int(i) < len(sig.Params) {
			return f.paramSlot(int(i))
		}
		return f.localSlot(int(i) - len(sig.Params))
	}

	asm := amd64asm.New()
	var relocs []wasmir.Reloc

	emitPrologue(asm, f, sig, len(sig.Params))
	zeroLocals(asm, f, int(numLocals))

	depth := 0
	returned := false

	for _, op := range ops {
		switch op.Kind {
		case wasmir.OpI32Const:
			asm.MovRegImm32(amd64asm.RAX, uint32(op.I32))
			store64(asm, f, depth, amd64asm.RAX)
			depth++
		case wasmir.OpI64Const:
			asm.MovRegImm64(amd64asm.RAX, uint64(op.I64))
			store64(asm, f, depth, amd64asm.RAX)
			depth++
		case wasmir.OpLocalGet:
			asm.MovLoad64(amd64asm.RAX, amd64asm.RBP, varSlot(op.Index))
			store64(asm, f, depth, amd64asm.RAX)
			depth++
		case wasmir.OpLocalSet:
			depth--
			load64(asm, f, depth, amd64asm.RAX)
			asm.MovStore64(amd64asm.RBP, varSlot(op.Index), amd64asm.RAX)
		case wasmir.OpGlobalGet:
			emitGlobalLoad(asm, f, regions, env, wasmir.GlobIndex(op.Index), amd64asm.RCX)
			store64(asm, f, depth, amd64asm.RCX)
			depth++
		case wasmir.OpGlobalSet:
			depth--
			load64(asm, f, depth, amd64asm.RCX)
			emitGlobalStore(asm, f, regions, env, wasmir.GlobIndex(op.Index), amd64asm.RCX)
		case wasmir.OpI32Add:
			depth--
			load64(asm, f, depth, amd64asm.RCX)
			depth--
			load64(asm, f, depth, amd64asm.RAX)
			asm.AddRegReg32(amd64asm.RAX, amd64asm.RCX)
			store64(asm, f, depth, amd64asm.RAX)
			depth++
		case wasmir.OpI32Load:
			depth--
			load64(asm, f, depth, amd64asm.RAX) // address
			emitHeapBase(asm, f, amd64asm.RCX)
			asm.AddRegReg64(amd64asm.RCX, amd64asm.RAX)
			asm.MovLoad32(amd64asm.RAX, amd64asm.RCX, int32(op.Offset))
			store64(asm, f, depth, amd64asm.RAX)
			depth++
		case wasmir.OpI32Store:
			depth--
			load64(asm, f, depth, amd64asm.RDX) // value
			depth--
			load64(asm, f, depth, amd64asm.RAX) // address
			emitHeapBase(asm, f, amd64asm.RCX)
			asm.AddRegReg64(amd64asm.RCX, amd64asm.RAX)
			asm.MovStore32(amd64asm.RCX, int32(op.Offset), amd64asm.RDX)
		case wasmir.OpTableGet:
			depth--
			load64(asm, f, depth, amd64asm.RAX) // index
			asm.ShlRegImm8(amd64asm.RAX, 3)
			emitTableBase(asm, f, regions, wasmir.TableIndex(op.Index), amd64asm.RCX)
			asm.AddRegReg64(amd64asm.RCX, amd64asm.RAX)
			asm.MovLoad64(amd64asm.RDX, amd64asm.RCX, 0)
			store64(asm, f, depth, amd64asm.RDX)
			depth++
		case wasmir.OpTableSet:
			depth--
			load64(asm, f, depth, amd64asm.RDX) // value
			depth--
			load64(asm, f, depth, amd64asm.RAX) // index
			asm.ShlRegImm8(amd64asm.RAX, 3)
			emitTableBase(asm, f, regions, wasmir.TableIndex(op.Index), amd64asm.RCX)
			asm.AddRegReg64(amd64asm.RCX, amd64asm.RAX)
			asm.MovStore64(amd64asm.RCX, 0, amd64asm.RDX)
		case wasmir.OpDrop:
			depth--
		case wasmir.OpCall:
			target := env.Calls[wasmir.FuncIndex(op.Index)]
			numArgs := len(target.Sig.Params)
			numResults := len(target.Sig.Results)
			hasRetArea := numResults > 1

			if numArgs+boolToInt(hasRetArea) > maxRegArgs {
				return nil, nil, &wasmir.CompileError{Kind: wasmir.FailedToCompile, Detail: "call exceeds register-only ABI"}
			}

			var retAreaOff int32
			if hasRetArea {
				retAreaOff = f.scratchBase()
				asm.Lea(argRegs[0], amd64asm.RBP, retAreaOff)
			}
			regOffset := boolToInt(hasRetArea)
			argBase := depth - numArgs
			for i := 0; i < numArgs; i++ {
				load64(asm, f, argBase+i, argRegs[regOffset+i])
			}
			depth -= numArgs

			asm.MovLoad64(amd64asm.RDI, amd64asm.RBP, f.vmctxOff)
			if target.Imported {
				asm.MovLoad64(amd64asm.RDI, amd64asm.RDI, int32(regions.importOffsetFor(target.ImportModule)))
			}

			relocOff := asm.CallRel32()
			relocs = append(relocs, wasmir.Reloc{
				Offset: relocOff,
				Kind:   wasmir.RelocX86CallPCRel4,
				Target: wasmir.FuncRef(wasmir.FuncIndex(op.Index)),
				// rel32 is measured from the end of the 4-byte disp field,
				// but CallRel32 returns the offset of its start; -4 shifts
				// the base to match, mirroring Cranelift's own addend for
				// this reloc kind.
				Addend: -4,
			})

			if numResults > 0 {
				store64(asm, f, depth, amd64asm.RAX)
				depth++
			}
			for k := 1; k < numResults; k++ {
				asm.MovLoad64(amd64asm.RCX, amd64asm.RBP, retAreaOff+int32(k-1)*8)
				store64(asm, f, depth, amd64asm.RCX)
				depth++
			}
		case wasmir.OpReturn:
			emitReturn(asm, f, depth, len(sig.Results))
			returned = true
		}
	}
	if !returned {
		emitReturn(asm, f, depth, len(sig.Results))
	}

	return asm.Bytes(), relocs, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func store64(asm *amd64asm.Assembler, f frame, depth int, reg amd64asm.Reg) {
	asm.MovStore64(amd64asm.RBP, f.stackSlot(depth), reg)
}

func load64(asm *amd64asm.Assembler, f frame, depth int, reg amd64asm.Reg) {
	asm.MovLoad64(reg, amd64asm.RBP, f.stackSlot(depth))
}

func emitPrologue(asm *amd64asm.Assembler, f frame, sig api.FuncType, numParams int) {
	asm.PushReg64(amd64asm.RBP)
	asm.MovRegReg64(amd64asm.RBP, amd64asm.RSP)
	asm.SubRspImm32(f.size)
	asm.MovStore64(amd64asm.RBP, f.vmctxOff, amd64asm.RDI)

	hasRetArea := len(sig.Results) > 1
	regOffset := boolToInt(hasRetArea)
	if hasRetArea {
		asm.MovStore64(amd64asm.RBP, f.retAreaOff, argRegs[0])
	}
	for i := 0; i < numParams; i++ {
		asm.MovStore64(amd64asm.RBP, f.paramSlot(i), argRegs[regOffset+i])
	}
}

func zeroLocals(asm *amd64asm.Assembler, f frame, numLocals int) {
	if numLocals == 0 {
		return
	}
	asm.MovRegImm32(amd64asm.RAX, 0)
	for i := 0; i < numLocals; i++ {
		asm.MovStore64(amd64asm.RBP, f.localSlot(i), amd64asm.RAX)
	}
}

func emitHeapBase(asm *amd64asm.Assembler, f frame, dst amd64asm.Reg) {
	// Heap index 0: HeapInfo region starts at VMContext offset 0, see
	// §4.6; the supported Op subset only ever addresses the first
	// (implicitly the module's single) memory, matching WebAssembly 1.0's
	// single-memory restriction.
	asm.MovLoad64(dst, amd64asm.RBP, f.vmctxOff)
	asm.MovLoad64(dst, dst, 0)
}

func emitGlobalLoad(asm *amd64asm.Assembler, f frame, regions regionOffsets, env FuncEnv, idx wasmir.GlobIndex, dst amd64asm.Reg) {
	asm.MovLoad64(dst, amd64asm.RBP, f.vmctxOff)
	off := regions.glob + int32(idx)*8
	if env.GlobImported[idx] {
		asm.MovLoad64(dst, dst, off)
		asm.MovLoad64(dst, dst, 0)
	} else {
		asm.MovLoad64(dst, dst, off)
	}
}

func emitGlobalStore(asm *amd64asm.Assembler, f frame, regions regionOffsets, env FuncEnv, idx wasmir.GlobIndex, src amd64asm.Reg) {
	asm.MovLoad64(amd64asm.RAX, amd64asm.RBP, f.vmctxOff)
	off := regions.glob + int32(idx)*8
	if env.GlobImported[idx] {
		asm.MovLoad64(amd64asm.RAX, amd64asm.RAX, off)
		asm.MovStore64(amd64asm.RAX, 0, src)
	} else {
		asm.MovStore64(amd64asm.RAX, off, src)
	}
}

// emitTableBase loads the backing-array pointer (the first of a table's
// two VMContext slots) of table idx into dst. Tables are this repository's
// own addition to the VMContext (the original system had no tables at
// all; spec §4.1 describes them as two-slot VMContext entries while §4.6's
// literal four-region layout predates their introduction) — see
// DESIGN.md for why this repo resolves that tension by giving tables a
// fifth region rather than dropping §4.1's addressing description.
func emitTableBase(asm *amd64asm.Assembler, f frame, regions regionOffsets, idx wasmir.TableIndex, dst amd64asm.Reg) {
	asm.MovLoad64(dst, amd64asm.RBP, f.vmctxOff)
	asm.MovLoad64(dst, dst, regions.table+int32(idx)*16)
}

func (r regionOffsets) importOffsetFor(idx wasmir.ImportIndex) int32 {
	return r.importBase + int32(idx)*8
}

func emitReturn(asm *amd64asm.Assembler, f frame, depth int, numResults int) {
	if numResults > 0 {
		load64(asm, f, depth-numResults, amd64asm.RAX)
	}
	if numResults > 1 {
		asm.MovLoad64(amd64asm.RDX, amd64asm.RBP, f.retAreaOff)
		for k := 1; k < numResults; k++ {
			load64(asm, f, depth-numResults+k, amd64asm.RCX)
			asm.MovStore64(amd64asm.RDX, int32(k-1)*8, amd64asm.RCX)
		}
	}
	asm.MovRegReg64(amd64asm.RSP, amd64asm.RBP)
	asm.PopReg64(amd64asm.RBP)
	asm.Ret()
}

func simulate(ops []wasmir.Op, env FuncEnv, numResults int) (maxDepth int, scratchSlots int) {
	depth := 0
	for _, op := range ops {
		if op.Kind == wasmir.OpCall {
			target := env.Calls[wasmir.FuncIndex(op.Index)]
			if len(target.Sig.Results) > 1 {
				need := len(target.Sig.Results) - 1
				if need > scratchSlots {
					scratchSlots = need
				}
			}
		}
		pop, push := stackEffect(op, env)
		depth -= pop
		depth += push
		if depth > maxDepth {
			maxDepth = depth
		}
	}
	if numResults > maxDepth {
		maxDepth = numResults
	}
	return maxDepth, scratchSlots
}
