package emitarm64

import (
	"encoding/binary"
	"fmt"

	"github.com/jordyorel/orus-lang-sub000/ir"
)

// AssemblyError reports an instruction this emitter declined to handle
// inline, or an unresolved branch target, mirroring emitamd64.AssemblyError.
type AssemblyError struct {
	Index  int
	Detail string
}

func (e *AssemblyError) Error() string {
	return fmt.Sprintf("emitarm64: instruction %d: %s", e.Index, e.Detail)
}

// relocKind distinguishes the two branch-encoding shapes this emitter
// patches, per the teacher's Relocation.Type field.
type relocKind byte

const (
	relocB    relocKind = 0 // unconditional B, imm26 at bits[25:0]
	relocCBNZ relocKind = 1 // CBZ/CBNZ, imm19 at bits[23:5]
)

// relocation is one patch site, following zhubert-rush/jit.Relocation's
// {Offset, Target, Type} shape, with Target carrying an IR instruction
// index instead of a bytecode index.
type relocation struct {
	offset int
	target int
	kind   relocKind
}

// Emitter is the AArch64 Linear Emitter. Register conventions:
//   - X19 holds the NativeContext pointer for the function's duration
//     (callee-saved, so it survives the BL into helperTrampoline).
//   - X9-X11 are caller-saved scratch registers, reloaded every
//     instruction.
//   - the exit status is kept in a stack slot (not a register) so it
//     survives calls without needing another callee-saved register.
type Emitter struct{}

// New constructs an AArch64 Emitter.
func New() *Emitter { return &Emitter{} }

const (
	regX0  = 0
	regX1  = 1
	regX9  = 9
	regX10 = 10
	regX11 = 11
	regX19 = 19
	regX29 = 29
	regX30 = 30
	regSP  = 31
	regZR  = 31
)

// frameSize is the emitter's fixed prologue allocation: 16 bytes for the
// saved frame pointer/link register pair, 16 for saved X19 and the
// status slot.
const frameSize = 32

// statusSlotOffset is the stack offset (from the post-prologue SP) of
// the saved X19; the int64 exit status sits right after it, at
// statusSlotOffset+8.
const statusSlotOffset = 16

type codeBuf struct {
	code   []byte
	labels map[int]int
	relocs []relocation
}

func (b *codeBuf) emit32(word uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], word)
	b.code = append(b.code, tmp[:]...)
}

func (b *codeBuf) pos() int { return len(b.code) }

// Compile assembles prog into straight-line AArch64 machine code.
func (em *Emitter) Compile(prog *ir.Program) ([]byte, error) {
	table := ir.BuildSideTable(prog)
	b := &codeBuf{labels: make(map[int]int)}

	em.emitPrologue(b)
	em.emitNullWindowGuard(b)

	for i := range prog.Instructions {
		b.labels[i] = b.pos()
		inst := &prog.Instructions[i]
		if err := em.emitInst(b, prog, table, i, inst); err != nil {
			return nil, err
		}
	}

	exitLabel := b.pos()
	em.emitEpilogue(b)

	if err := em.resolveRelocations(b, exitLabel); err != nil {
		return nil, err
	}

	out := make([]byte, len(b.code))
	copy(out, b.code)
	return out, nil
}

// CompileHelperStub assembles the AArch64 counterpart of
// emitamd64.Emitter.CompileHelperStub: a prologue, one BLR into
// stubTrampolineAddr, and an epilogue that returns its result.
func (em *Emitter) CompileHelperStub() []byte {
	b := &codeBuf{labels: make(map[int]int)}
	em.emitPrologue(b)

	b.emit32(encodeMovReg(regX0, regX19))
	lo := uint32(stubTrampolineAddr() & 0xFFFF)
	b.emit32(encodeMovzImm(regX9, lo))
	for shift := 1; shift < 4; shift++ {
		lane := uint32((stubTrampolineAddr() >> (16 * shift)) & 0xFFFF)
		if lane != 0 {
			b.emit32(encodeMovkImm(regX9, lane, shift))
		}
	}
	// blr x9
	b.emit32(0xD63F0000 | (uint32(regX9) << 5))
	b.emit32(encodeMovReg(regX9, regX0))
	b.emit32(encodeLoadStoreImm(true, false, regX9, regSP, statusSlotOffset+8))

	em.emitEpilogue(b)

	out := make([]byte, len(b.code))
	copy(out, b.code)
	return out
}

// emitPrologue saves FP/LR and X19, loads the context pointer (X0, per
// AAPCS64) into X19, and initializes the status slot to success (1).
func (em *Emitter) emitPrologue(b *codeBuf) {
	// stp x29, x30, [sp, #-32]!
	b.emit32(0xA9BE7BFD)
	// mov x29, sp
	b.emit32(0x910003FD)
	// str x19, [sp, #16]
	b.emit32(encodeLoadStoreImm(true, false, regX19, regSP, 16))
	// mov x19, x0
	b.emit32(encodeMovReg(regX19, regX0))
	// mov x9, #1 ; str x9, [sp, #24] (status = success)
	b.emit32(encodeMovzImm(regX9, 1))
	b.emit32(encodeLoadStoreImm(true, false, regX9, regSP, statusSlotOffset+8))
}

// emitEpilogue loads the status slot into X0, restores X19/FP/LR, and
// returns.
func (em *Emitter) emitEpilogue(b *codeBuf) {
	// ldr x0, [sp, #24]
	b.emit32(encodeLoadStoreImm(true, true, regX0, regSP, statusSlotOffset+8))
	// ldr x19, [sp, #16]
	b.emit32(encodeLoadStoreImm(true, true, regX19, regSP, 16))
	// ldp x29, x30, [sp], #32
	b.emit32(0xA8C27BFD)
	// ret
	b.emit32(0xD65F03C0)
}

// emitBailout writes 0 to the status slot and branches to exitLabel.
func (em *Emitter) emitBailout(b *codeBuf, idx int) {
	b.emit32(encodeMovzImm(regX9, 0))
	b.emit32(encodeLoadStoreImm(true, false, regX9, regSP, statusSlotOffset+8))
	em.emitBranchToExit(b, idx)
}

// bailoutDeoptWords is the fixed instruction count of emitBailoutDeopt's
// output: 6 for the trampoline call plus emitBailout's 3. Guard sequences
// branch over it with a hand-computed displacement, so the length must
// not drift.
const bailoutDeoptWords = 9

// emitCallBailoutTrampoline calls bailoutTrampoline(ctx), discarding the
// result. The address is always materialized with a full MOVZ+3xMOVK
// sequence (zero lanes included) so the emitted length is fixed.
func (em *Emitter) emitCallBailoutTrampoline(b *codeBuf) {
	b.emit32(encodeMovReg(regX0, regX19))
	addr := bailoutTrampolineAddr()
	b.emit32(encodeMovzImm(regX9, uint32(addr&0xFFFF)))
	for shift := 1; shift < 4; shift++ {
		b.emit32(encodeMovkImm(regX9, uint32((addr>>(16*shift))&0xFFFF), shift))
	}
	// blr x9
	b.emit32(0xD63F0000 | (uint32(regX9) << 5))
}

// emitBailoutDeopt is emitBailout for a guard checked entirely inline,
// with no preceding helper call to have already invoked
// bailout_and_deopt; exactly emitamd64.emitBailoutDeopt's role.
func (em *Emitter) emitBailoutDeopt(b *codeBuf, idx int) {
	em.emitCallBailoutTrampoline(b)
	em.emitBailout(b, idx)
}

// emitNullWindowGuard bails out before the body runs when the typed-
// register base pointer is null (§4.4 step 2).
func (em *Emitter) emitNullWindowGuard(b *codeBuf) {
	b.emit32(encodeLoadStoreImm(true, true, regX10, regX19, ctxOffI64))
	// cbnz x10, skip over the bailout-deopt sequence
	b.emit32(0xB5000000 | ((uint32(bailoutDeoptWords+1) & 0x7FFFF) << 5) | uint32(regX10))
	em.emitBailoutDeopt(b, 0)
}

// emitBranchToExit emits an unconditional B whose target is patched once
// the exit label's position is known.
func (em *Emitter) emitBranchToExit(b *codeBuf, idx int) {
	b.relocs = append(b.relocs, relocation{offset: b.pos(), target: -1, kind: relocB})
	b.emit32(0x14000000)
}

func (em *Emitter) resolveRelocations(b *codeBuf, exitLabel int) error {
	for _, r := range b.relocs {
		var targetOff int
		if r.target == -1 {
			targetOff = exitLabel
		} else {
			off, ok := b.labels[r.target]
			if !ok {
				return &AssemblyError{Detail: fmt.Sprintf("unresolved branch target %d", r.target)}
			}
			targetOff = off
		}
		delta := (targetOff - r.offset) / 4
		word := binary.LittleEndian.Uint32(b.code[r.offset : r.offset+4])
		switch r.kind {
		case relocB:
			if delta < -(1<<25) || delta >= (1<<25) {
				return &AssemblyError{Detail: "branch displacement out of range"}
			}
			word = (word &^ 0x03FFFFFF) | uint32(delta)&0x03FFFFFF
		case relocCBNZ:
			if delta < -(1<<18) || delta >= (1<<18) {
				return &AssemblyError{Detail: "cbnz displacement out of range"}
			}
			word = (word &^ (0x7FFFF << 5)) | ((uint32(delta) & 0x7FFFF) << 5)
		}
		binary.LittleEndian.PutUint32(b.code[r.offset:r.offset+4], word)
	}
	return nil
}

// --- raw instruction-word encoders, following the bit layouts
// zhubert-rush/jit.ARM64CodeGen uses for ADD/SUB-immediate and
// register-form ALU ops, extended here with load/store and data-
// movement encodings this emitter additionally needs. ---

func encodeLoadStoreImm(is64 bool, isLoad bool, rt, rn int, byteOffset int) uint32 {
	base := uint32(0xF9000000)
	if isLoad {
		base |= 1 << 22
	}
	if !is64 {
		base &^= 1 << 30
	}
	imm12 := uint32(byteOffset/8) & 0xFFF
	return base | (imm12 << 10) | (uint32(rn) << 5) | uint32(rt)
}

func encodeMovzImm(rd int, imm16 uint32) uint32 {
	return 0xD2800000 | ((imm16 & 0xFFFF) << 5) | uint32(rd)
}

func encodeMovReg(rd, rm int) uint32 {
	// mov xd, xm == orr xd, xzr, xm
	return 0xAA0003E0 | (uint32(rm) << 16) | uint32(rd)
}

func encodeAddSubReg(isSub bool, rd, rn, rm int) uint32 {
	base := uint32(0x8B000000)
	if isSub {
		base = 0xCB000000
	}
	return base | (uint32(rm) << 16) | (uint32(rn) << 5) | uint32(rd)
}

func encodeMul(rd, rn, rm int) uint32 {
	// mul xd, xn, xm == madd xd, xn, xm, xzr
	return 0x9B000000 | (uint32(rm) << 16) | (uint32(regZR) << 10) | (uint32(rn) << 5) | uint32(rd)
}

func encodeSDiv(rd, rn, rm int) uint32 {
	return 0x9AC00C00 | (uint32(rm) << 16) | (uint32(rn) << 5) | uint32(rd)
}

func encodeSubsReg(rn, rm int) uint32 {
	// cmp xn, xm == subs xzr, xn, xm
	return 0xEB00001F | (uint32(rm) << 16) | (uint32(rn) << 5)
}

func encodeCmpImm(rn int, imm12 uint32) uint32 {
	// cmp xn, #imm == subs xzr, xn, #imm
	return 0xF100001F | ((imm12 & 0xFFF) << 10) | (uint32(rn) << 5)
}

// encodeAddSubsFlags is the flags-setting form of encodeAddSubReg
// (ADDS/SUBS), used where a subsequent overflow check consumes PSTATE.V.
func encodeAddSubsFlags(isSub bool, rd, rn, rm int) uint32 {
	base := uint32(0xAB000000)
	if isSub {
		base = 0xEB000000
	}
	return base | (uint32(rm) << 16) | (uint32(rn) << 5) | uint32(rd)
}

// encodeBCond encodes "b.<cond> #deltaWords" with the displacement in
// instruction words relative to this instruction.
func encodeBCond(cond uint32, deltaWords int) uint32 {
	return 0x54000000 | ((uint32(deltaWords) & 0x7FFFF) << 5) | (cond & 0xF)
}

func encodeCSet(rd int, cond uint32) uint32 {
	// cset xd, cond == csinc xd, xzr, xzr, invert(cond)
	invCond := cond ^ 1
	return 0x9A9F07E0 | (invCond << 12) | uint32(rd)
}

// A64 condition codes used by CSET.
const (
	condLT = 0xB
	condLE = 0xD
	condGT = 0xC
	condGE = 0xA
	condEQ = 0x0
	condNE = 0x1
	condVC = 0x7
)
