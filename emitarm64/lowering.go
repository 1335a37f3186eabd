package emitarm64

import "github.com/jordyorel/orus-lang-sub000/ir"

// emitInst dispatches a single IR instruction. This emitter inlines only
// the I64 typed-register subset (load-const, move, Add/Sub/Mul compare,
// fused loops) plus control flow and safepoints; every other (opcode,
// value_kind) pair -- all I32/U32/U64/F64 arithmetic and compare, Div/Mod,
// conversions, string ops, containers, iteration, builtins and the
// boxed-register ops -- is routed through the uniform helper-call
// fallback, a narrower inline set than emitamd64's by deliberate choice
// (see DESIGN.md).
func (em *Emitter) emitInst(b *codeBuf, prog *ir.Program, table ir.SideTable, idx int, inst *ir.Instruction) error {
	switch {
	case inst.Op == ir.OpLoadI64Const:
		if inst.ConstIndex < 0 || inst.ConstIndex >= len(prog.SourceConstants) {
			em.emitHelperCall(b, idx)
			return nil
		}
		em.emitLoadI64Const(b, inst, prog.SourceConstants[inst.ConstIndex])
		return nil
	case inst.Op == ir.OpMoveTyped && inst.ValueKind == ir.KindI64:
		em.emitMoveI64(b, idx, inst)
		return nil
	case isI64Arith(inst.Op):
		em.emitArithI64(b, idx, inst)
		return nil
	case inst.Op.IsCompare() && inst.ValueKind == ir.KindI64:
		em.emitCompareI64(b, idx, inst)
		return nil
	case inst.Op.IsFusedLoop():
		return em.emitFusedLoop(b, table, idx, inst)
	case inst.Op == ir.OpJumpShort || inst.Op == ir.OpJumpBackShort:
		return em.emitJump(b, table, idx, inst)
	case inst.Op == ir.OpJumpIfNotShort:
		return em.emitJumpIfNot(b, table, idx, inst)
	case inst.Op == ir.OpLoopBack:
		return em.emitLoopBack(b, prog, table, idx)
	case inst.Op == ir.OpSafepoint:
		em.emitSafepointCall(b, idx)
		return nil
	case inst.Op == ir.OpReturn:
		em.emitBranchToExit(b, idx)
		return nil
	default:
		em.emitHelperCall(b, idx)
		return nil
	}
}

func isI64Arith(op ir.Opcode) bool {
	switch op {
	case ir.OpAddI64, ir.OpSubI64, ir.OpMulI64:
		return true
	}
	return false
}

// loadBasePtr64 loads the I64 backing array pointer from the context
// (held in X19) into a scratch register.
func loadBasePtr64(b *codeBuf, dst int) {
	b.emit32(encodeLoadStoreImm(true, true, dst, regX19, ctxOffI64))
}

func loadBoolBasePtr(b *codeBuf, dst int) {
	b.emit32(encodeLoadStoreImm(true, true, dst, regX19, ctxOffBool))
}

// emitKindGuard emits the inline typed-kind guard every typed read
// performs first (§4.4), branching over a bailout-deopt sequence of
// fixed length when the recorded kind matches. No helper call precedes
// this guard, so the failure edge invokes bailout_and_deopt itself via
// the trampoline.
func (em *Emitter) emitKindGuard(b *codeBuf, idx int, reg int, kind ir.ValueKind) {
	b.emit32(encodeLoadStoreImm(true, true, regX10, regX19, ctxOffKind))
	b.emit32(encodeLoadByteImm(regX9, regX10, reg))
	b.emit32(encodeCmpImm(regX9, uint32(kind)))
	b.emit32(encodeBCond(condEQ, bailoutDeoptWords+1))
	em.emitBailoutDeopt(b, idx)
}

// storeKindAndDirty writes the I64 (or Bool) kind tag and dirty flag for
// reg, mirroring TypedWindow.StoreI64/StoreBool's side effects.
func storeKindAndDirty(b *codeBuf, reg int, kind ir.ValueKind) {
	b.emit32(encodeLoadStoreImm(true, true, regX10, regX19, ctxOffKind))
	b.emit32(encodeMovzImm(regX11, uint32(kind)))
	b.emit32(encodeStoreByteImm(regX11, regX10, reg))

	b.emit32(encodeLoadStoreImm(true, true, regX10, regX19, ctxOffDirty))
	b.emit32(encodeMovzImm(regX11, 1))
	b.emit32(encodeStoreByteImm(regX11, regX10, reg))
}

// encodeStoreByteImm encodes "strb wt, [xn, #imm]" for a small byte
// offset (register-file index), used for the per-register Kind/Dirty
// byte arrays.
func encodeStoreByteImm(rt, rn, byteOffset int) uint32 {
	imm12 := uint32(byteOffset) & 0xFFF
	return 0x39000000 | (imm12 << 10) | (uint32(rn) << 5) | uint32(rt)
}

func (em *Emitter) emitLoadI64Const(b *codeBuf, inst *ir.Instruction, c ir.Constant) {
	loadBasePtr64(b, regX10)
	// A 64-bit immediate needs up to 4 MOVZ/MOVK instructions; this
	// emitter only inlines the low 16 bits plus a MOVK per remaining
	// 16-bit lane, matching how a real assembler would materialize an
	// arbitrary constant.
	bits := c.Bits
	b.emit32(encodeMovzImm(regX9, uint32(bits&0xFFFF)))
	for shift := 1; shift < 4; shift++ {
		lane := uint32((bits >> (16 * shift)) & 0xFFFF)
		if lane != 0 {
			b.emit32(encodeMovkImm(regX9, lane, shift))
		}
	}
	b.emit32(encodeLoadStoreImm(true, false, regX9, regX10, inst.Dst*8))
	storeKindAndDirty(b, inst.Dst, ir.KindI64)
}

func encodeMovkImm(rd int, imm16 uint32, shift int) uint32 {
	hw := uint32(shift) & 0x3
	return 0xF2800000 | (hw << 21) | ((imm16 & 0xFFFF) << 5) | uint32(rd)
}

func (em *Emitter) emitMoveI64(b *codeBuf, idx int, inst *ir.Instruction) {
	em.emitKindGuard(b, idx, inst.Lhs, ir.KindI64)
	loadBasePtr64(b, regX10)
	b.emit32(encodeLoadStoreImm(true, true, regX9, regX10, inst.Lhs*8))
	b.emit32(encodeLoadStoreImm(true, false, regX9, regX10, inst.Dst*8))
	storeKindAndDirty(b, inst.Dst, ir.KindI64)
}

func (em *Emitter) emitArithI64(b *codeBuf, idx int, inst *ir.Instruction) {
	em.emitKindGuard(b, idx, inst.Lhs, ir.KindI64)
	em.emitKindGuard(b, idx, inst.Rhs, ir.KindI64)
	loadBasePtr64(b, regX10)
	b.emit32(encodeLoadStoreImm(true, true, regX9, regX10, inst.Lhs*8))
	b.emit32(encodeLoadStoreImm(true, true, regX11, regX10, inst.Rhs*8))
	switch inst.Op {
	case ir.OpAddI64:
		b.emit32(encodeAddSubReg(false, regX9, regX9, regX11))
	case ir.OpSubI64:
		b.emit32(encodeAddSubReg(true, regX9, regX9, regX11))
	case ir.OpMulI64:
		b.emit32(encodeMul(regX9, regX9, regX11))
	}
	b.emit32(encodeLoadStoreImm(true, false, regX9, regX10, inst.Dst*8))
	storeKindAndDirty(b, inst.Dst, ir.KindI64)
}

func (em *Emitter) emitCompareI64(b *codeBuf, idx int, inst *ir.Instruction) {
	em.emitKindGuard(b, idx, inst.Lhs, ir.KindI64)
	em.emitKindGuard(b, idx, inst.Rhs, ir.KindI64)
	loadBasePtr64(b, regX10)
	b.emit32(encodeLoadStoreImm(true, true, regX9, regX10, inst.Lhs*8))
	b.emit32(encodeLoadStoreImm(true, true, regX11, regX10, inst.Rhs*8))
	b.emit32(encodeSubsReg(regX9, regX11))
	b.emit32(encodeCSet(regX9, condFor(inst.Op)))

	loadBoolBasePtr(b, regX10)
	b.emit32(encodeStoreByteImm(regX9, regX10, inst.Dst))
	storeKindAndDirty(b, inst.Dst, ir.KindBool)
}

func condFor(op ir.Opcode) uint32 {
	switch op {
	case ir.OpCmpLT:
		return condLT
	case ir.OpCmpLE:
		return condLE
	case ir.OpCmpGT:
		return condGT
	case ir.OpCmpGE:
		return condGE
	case ir.OpCmpEQ:
		return condEQ
	case ir.OpCmpNE:
		return condNE
	}
	return condEQ
}

func (em *Emitter) emitFusedLoop(b *codeBuf, table ir.SideTable, idx int, inst *ir.Instruction) error {
	targetIdx, ok := table.Resolve(inst.JumpOffset)
	if !ok {
		return &AssemblyError{Index: idx, Detail: "fused loop jump_offset unresolved"}
	}
	// Step preconditions (§4.3) are decidable at compile time; a program
	// that violates them is declined so the interpreter's runtime guard
	// produces the bailout instead.
	if inst.Step == 0 ||
		(inst.Op == ir.OpIncCmpJump && inst.Step < 0) ||
		(inst.Op == ir.OpDecCmpJump && inst.Step > 0) {
		return &AssemblyError{Index: idx, Detail: "fused loop step/direction invalid"}
	}

	em.emitKindGuard(b, idx, inst.CounterReg, ir.KindI64)
	em.emitKindGuard(b, idx, inst.LimitReg, ir.KindI64)
	loadBasePtr64(b, regX10)
	b.emit32(encodeLoadStoreImm(true, true, regX9, regX10, inst.CounterReg*8))

	step := int(inst.Step)
	if step < 0 {
		step = -step
	}
	b.emit32(encodeMovzImm(regX11, uint32(step)))
	// Flags-setting update so the overflow guard below can consume
	// PSTATE.V; overflow on the counter update is a guard failure (§4.3).
	b.emit32(encodeAddSubsFlags(inst.Op == ir.OpDecCmpJump, regX9, regX9, regX11))
	b.emit32(encodeBCond(condVC, bailoutDeoptWords+1))
	em.emitBailoutDeopt(b, idx)
	b.emit32(encodeLoadStoreImm(true, false, regX9, regX10, inst.CounterReg*8))

	b.emit32(encodeLoadStoreImm(true, true, regX11, regX10, inst.LimitReg*8))
	b.emit32(encodeSubsReg(regX9, regX11))

	cond := uint32(condLT)
	if inst.CompareKind == ir.CompareGT {
		cond = condGT
	}
	b.emit32(encodeCSet(regX9, cond))
	b.relocs = append(b.relocs, relocation{offset: b.pos(), target: targetIdx, kind: relocCBNZ})
	b.emit32(0xB5000000 | uint32(regX9))
	return nil
}

func (em *Emitter) emitJump(b *codeBuf, table ir.SideTable, idx int, inst *ir.Instruction) error {
	targetIdx, ok := table.Resolve(inst.JumpOffset)
	if !ok {
		return &AssemblyError{Index: idx, Detail: "jump target unresolved"}
	}
	b.relocs = append(b.relocs, relocation{offset: b.pos(), target: targetIdx, kind: relocB})
	b.emit32(0x14000000)
	return nil
}

func (em *Emitter) emitJumpIfNot(b *codeBuf, table ir.SideTable, idx int, inst *ir.Instruction) error {
	targetIdx, ok := table.Resolve(inst.JumpOffset)
	if !ok {
		return &AssemblyError{Index: idx, Detail: "jump_if_not target unresolved"}
	}
	em.emitKindGuard(b, idx, inst.Lhs, ir.KindBool)
	loadBoolBasePtr(b, regX10)
	b.emit32(encodeLoadByteImm(regX9, regX10, inst.Lhs))
	b.relocs = append(b.relocs, relocation{offset: b.pos(), target: targetIdx, kind: relocCBNZ})
	// cbz: branch when the predicate register is zero (false).
	b.emit32(0xB4000000 | uint32(regX9))
	return nil
}

func encodeLoadByteImm(rt, rn, byteOffset int) uint32 {
	imm12 := uint32(byteOffset) & 0xFFF
	return 0x39400000 | (imm12 << 10) | (uint32(rn) << 5) | uint32(rt)
}

func (em *Emitter) emitLoopBack(b *codeBuf, prog *ir.Program, table ir.SideTable, idx int) error {
	targetIdx, ok := table.LoopHeaderIndex(prog)
	if !ok {
		return &AssemblyError{Index: idx, Detail: "loop_back header unresolved"}
	}
	b.relocs = append(b.relocs, relocation{offset: b.pos(), target: targetIdx, kind: relocB})
	b.emit32(0x14000000)
	return nil
}

// emitSafepointCall is the unconditional call counterpart of
// emitHelperCall that does not test the result (§4.4).
func (em *Emitter) emitSafepointCall(b *codeBuf, instIndex int) {
	em.emitCallSequence(b, instIndex)
}

// emitHelperCall lowers any instruction this emitter does not inline to
// a call into helperTrampoline via NativeContext.HelperCall, testing the
// boolean result and bailing out on failure.
func (em *Emitter) emitHelperCall(b *codeBuf, idx int) {
	em.emitCallSequence(b, idx)
	// cbnz x0, +4 words: skip the 3-instruction bailout sequence
	// (movz, str, b) when the helper call reported success.
	b.emit32(0xB5000000 | (4 << 5) | uint32(regX0))
	em.emitBailout(b, idx)
}

// emitCallSequence builds the (ctx, instIndex) argument pair in X0/X1
// per AAPCS64 and BLs into NativeContext.HelperCall.
func (em *Emitter) emitCallSequence(b *codeBuf, instIndex int) {
	b.emit32(encodeMovReg(regX0, regX19))
	b.emit32(encodeMovzImm(regX10, uint32(instIndex)))
	b.emit32(encodeMovReg(regX1, regX10))
	b.emit32(encodeLoadStoreImm(true, true, regX9, regX19, ctxOffHelperCall))
	// blr x9
	b.emit32(0xD63F0000 | (uint32(regX9) << 5))
}
