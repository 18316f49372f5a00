// Package amd64asm is a tiny, non-register-allocating x86-64 instruction
// encoder: just enough MOVQ/MOVL/ADDL/CALL/RET/PUSH/POP/SUB forms to lower
// the fixed operation subset in moduleenv.Op, grounded on the teacher's own
// hand-rolled amd64 backend (internal/asm/amd64/impl.go) rather than a
// general-purpose assembler dependency (see DESIGN.md).
//
// Scope restriction: memory operands always address [base+disp32] with
// base one of rax, rcx, rdx, rbx, rbp, rsi, rdi, r8-r11 — never rsp or r12,
// which would require a SIB byte this encoder does not emit.
package amd64asm

// Reg is a general-purpose x86-64 register, numbered per the Intel
// encoding (0=rax..7=rdi, 8=r8..15=r15).
type Reg byte

const (
	RAX Reg = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

func (r Reg) low3() byte   { return byte(r) & 0x7 }
func (r Reg) extended() bool { return r >= R8 }

// Assembler accumulates encoded bytes for a single function body.
type Assembler struct {
	buf []byte
}

// New returns an empty Assembler.
func New() *Assembler { return &Assembler{} }

// Len returns the number of bytes emitted so far — the offset the next
// instruction will start at.
func (a *Assembler) Len() uint32 { return uint32(len(a.buf)) }

// Bytes returns the accumulated machine code.
func (a *Assembler) Bytes() []byte { return a.buf }

func (a *Assembler) emit(bs ...byte) { a.buf = append(a.buf, bs...) }

func (a *Assembler) emitU32(v uint32) {
	a.emit(byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func (a *Assembler) emitU64(v uint64) {
	a.emitU32(uint32(v))
	a.emitU32(uint32(v >> 32))
}

// rex builds a REX prefix. w selects the 64-bit operand size; r/x/b extend
// the ModRM.reg / SIB.index / ModRM.rm (or opcode) fields respectively.
func rex(w, r, x, b bool) byte {
	v := byte(0x40)
	if w {
		v |= 0x08
	}
	if r {
		v |= 0x04
	}
	if x {
		v |= 0x02
	}
	if b {
		v |= 0x01
	}
	return v
}

func modrm(mod, reg, rm byte) byte {
	return (mod << 6) | ((reg & 7) << 3) | (rm & 7)
}

func assertNoSIBNeeded(base Reg) {
	if base.low3() == 4 { // rsp or r12
		panic("amd64asm: base register requires a SIB byte, unsupported by this encoder")
	}
}

// PushReg64 emits PUSH reg.
func (a *Assembler) PushReg64(reg Reg) {
	if reg.extended() {
		a.emit(rex(false, false, false, true))
	}
	a.emit(0x50 + reg.low3())
}

// PopReg64 emits POP reg.
func (a *Assembler) PopReg64(reg Reg) {
	if reg.extended() {
		a.emit(rex(false, false, false, true))
	}
	a.emit(0x58 + reg.low3())
}

// MovRegReg64 emits MOV dst, src (64-bit register to register).
func (a *Assembler) MovRegReg64(dst, src Reg) {
	a.emit(rex(true, src.extended(), false, dst.extended()))
	a.emit(0x89)
	a.emit(modrm(3, byte(src.low3()), byte(dst.low3())))
}

// MovRegImm64 emits MOVABS dst, imm64.
func (a *Assembler) MovRegImm64(dst Reg, imm uint64) {
	a.emit(rex(true, false, false, dst.extended()))
	a.emit(0xB8 + dst.low3())
	a.emitU64(imm)
}

// MovRegImm32 emits MOV dst32, imm32 (zero-extends to 64 bits).
func (a *Assembler) MovRegImm32(dst Reg, imm uint32) {
	if dst.extended() {
		a.emit(rex(false, false, false, true))
	}
	a.emit(0xB8 + dst.low3())
	a.emitU32(imm)
}

// SubRspImm32 emits SUB rsp, imm32.
func (a *Assembler) SubRspImm32(imm uint32) {
	a.emit(rex(true, false, false, false))
	a.emit(0x81)
	a.emit(modrm(3, 5, RSP.low3()))
	a.emitU32(imm)
}

// AddRegReg32 emits ADD dst32, src32 (dst += src).
func (a *Assembler) AddRegReg32(dst, src Reg) {
	if dst.extended() || src.extended() {
		a.emit(rex(false, src.extended(), false, dst.extended()))
	}
	a.emit(0x01)
	a.emit(modrm(3, src.low3(), dst.low3()))
}

// MovLoad64 emits MOV dst, [base+disp32] (64-bit load).
func (a *Assembler) MovLoad64(dst, base Reg, disp int32) {
	assertNoSIBNeeded(base)
	a.emit(rex(true, dst.extended(), false, base.extended()))
	a.emit(0x8B)
	a.emit(modrm(2, dst.low3(), base.low3()))
	a.emitU32(uint32(disp))
}

// MovStore64 emits MOV [base+disp32], src (64-bit store).
func (a *Assembler) MovStore64(base Reg, disp int32, src Reg) {
	assertNoSIBNeeded(base)
	a.emit(rex(true, src.extended(), false, base.extended()))
	a.emit(0x89)
	a.emit(modrm(2, src.low3(), base.low3()))
	a.emitU32(uint32(disp))
}

// MovLoad32 emits MOV dst32, [base+disp32] (32-bit load, zero-extending).
func (a *Assembler) MovLoad32(dst, base Reg, disp int32) {
	assertNoSIBNeeded(base)
	if dst.extended() || base.extended() {
		a.emit(rex(false, dst.extended(), false, base.extended()))
	}
	a.emit(0x8B)
	a.emit(modrm(2, dst.low3(), base.low3()))
	a.emitU32(uint32(disp))
}

// MovStore32 emits MOV [base+disp32], src32 (32-bit store).
func (a *Assembler) MovStore32(base Reg, disp int32, src Reg) {
	assertNoSIBNeeded(base)
	if src.extended() || base.extended() {
		a.emit(rex(false, src.extended(), false, base.extended()))
	}
	a.emit(0x89)
	a.emit(modrm(2, src.low3(), base.low3()))
	a.emitU32(uint32(disp))
}

// AddRegReg64 emits ADD dst, src (64-bit, dst += src).
func (a *Assembler) AddRegReg64(dst, src Reg) {
	a.emit(rex(true, src.extended(), false, dst.extended()))
	a.emit(0x01)
	a.emit(modrm(3, src.low3(), dst.low3()))
}

// ShlRegImm8 emits SHL dst, imm8 (64-bit logical shift left).
func (a *Assembler) ShlRegImm8(dst Reg, imm uint8) {
	a.emit(rex(true, false, false, dst.extended()))
	a.emit(0xC1)
	a.emit(modrm(3, 4, dst.low3()))
	a.emit(imm)
}

// Lea emits LEA dst, [base+disp32].
func (a *Assembler) Lea(dst, base Reg, disp int32) {
	assertNoSIBNeeded(base)
	a.emit(rex(true, dst.extended(), false, base.extended()))
	a.emit(0x8D)
	a.emit(modrm(2, dst.low3(), base.low3()))
	a.emitU32(uint32(disp))
}

// CallRel32 emits CALL rel32 with a placeholder displacement (always
// patched by a relocation — the target is not known until instantiation)
// and returns the byte offset of the 4-byte displacement field.
func (a *Assembler) CallRel32() uint32 {
	a.emit(0xE8)
	off := a.Len()
	a.emitU32(0)
	return off
}

// Ret emits RET.
func (a *Assembler) Ret() { a.emit(0xC3) }
