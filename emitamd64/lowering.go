package emitamd64

import (
	asm "github.com/twitchyliquid64/golang-asm"
	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"

	"github.com/jordyorel/orus-lang-sub000/ir"
)

// kindInfo describes the register/memory shape of one of the typed-
// register kinds this emitter inlines directly: where its backing array
// lives in NativeContext and its element width.
type kindInfo struct {
	ctxOff   int64
	elemSize int64
	float    bool
	wide64   bool // true for I64 (64-bit GP ops); false for I32 (32-bit)
}

var inlinedKinds = map[ir.ValueKind]kindInfo{
	ir.KindI32: {ctxOff: ctxOffI32, elemSize: 4, wide64: false},
	ir.KindI64: {ctxOff: ctxOffI64, elemSize: 8, wide64: true},
	ir.KindF64: {ctxOff: ctxOffF64, elemSize: 8, float: true},
}

// Reserved scratch registers. None survive across instructions -- every
// instruction reloads what it needs, trading redundant loads for
// trivially simple register allocation, matching the teacher's own
// stated philosophy ("few attempts to optimize in order to keep things
// simple", amd64.go's header comment).
const (
	scratchPtrReg  = x86.REG_R11
	scratchPtrReg2 = x86.REG_R10
	boolScratchReg = x86.REG_CX
)

// emitInst dispatches a single IR instruction to its lowering.
func (em *Emitter) emitInst(b *asm.Builder, prog *ir.Program, table ir.SideTable, labels []*obj.Prog, exitLabel *obj.Prog, idx int, inst *ir.Instruction) error {
	switch {
	case isInlineLoadConst(inst.Op):
		if inst.ConstIndex < 0 || inst.ConstIndex >= len(prog.SourceConstants) {
			em.emitHelperCall(b, exitLabel, idx)
			return nil
		}
		em.emitLoadConst(b, inst, prog.SourceConstants[inst.ConstIndex])
		return nil
	case inst.Op == ir.OpMoveTyped:
		if _, ok := inlinedKinds[inst.ValueKind]; !ok {
			em.emitHelperCall(b, exitLabel, idx)
			return nil
		}
		em.emitMoveTyped(b, exitLabel, inst)
		return nil
	case inst.Op.IsArithmetic():
		if isDivMod(inst.Op) {
			em.emitHelperCall(b, exitLabel, idx)
			return nil
		}
		if _, ok := inlinedKinds[arithKindOf(inst.Op)]; !ok {
			em.emitHelperCall(b, exitLabel, idx)
			return nil
		}
		em.emitArithmetic(b, exitLabel, inst)
		return nil
	case inst.Op.IsCompare():
		if inst.ValueKind == ir.KindBool || !inlinableCompareKind(inst.ValueKind) {
			em.emitHelperCall(b, exitLabel, idx)
			return nil
		}
		em.emitCompare(b, exitLabel, inst)
		return nil
	case inst.Op.IsFusedLoop():
		return em.emitFusedLoop(b, table, labels, exitLabel, idx, inst)
	case inst.Op == ir.OpJumpShort || inst.Op == ir.OpJumpBackShort:
		return em.emitJump(b, table, labels, idx, inst)
	case inst.Op == ir.OpJumpIfNotShort:
		return em.emitJumpIfNot(b, table, labels, exitLabel, idx, inst)
	case inst.Op == ir.OpLoopBack:
		return em.emitLoopBack(b, prog, table, labels, idx)
	case inst.Op == ir.OpSafepoint:
		em.emitSafepointCall(b, exitLabel, idx)
		return nil
	case inst.Op == ir.OpReturn:
		jmp := b.NewProg()
		jmp.As = obj.AJMP
		jmp.To.Type = obj.TYPE_BRANCH
		jmp.To.Val = exitLabel
		b.AddInstruction(jmp)
		return nil
	default:
		em.emitHelperCall(b, exitLabel, idx)
		return nil
	}
}

func isInlineLoadConst(op ir.Opcode) bool {
	switch op {
	case ir.OpLoadI32Const, ir.OpLoadI64Const, ir.OpLoadF64Const, ir.OpLoadBoolConst:
		return true
	}
	return false
}

func isDivMod(op ir.Opcode) bool {
	switch op {
	case ir.OpDivI32, ir.OpModI32, ir.OpDivI64, ir.OpModI64,
		ir.OpDivU32, ir.OpModU32, ir.OpDivU64, ir.OpModU64,
		ir.OpDivF64, ir.OpModF64:
		return true
	}
	return false
}

func inlinableCompareKind(k ir.ValueKind) bool {
	_, ok := inlinedKinds[k]
	return ok
}

func arithKindOf(op ir.Opcode) ir.ValueKind {
	switch {
	case op >= ir.OpAddI32 && op <= ir.OpModI32:
		return ir.KindI32
	case op >= ir.OpAddI64 && op <= ir.OpModI64:
		return ir.KindI64
	case op >= ir.OpAddU32 && op <= ir.OpModU32:
		return ir.KindU32
	case op >= ir.OpAddU64 && op <= ir.OpModU64:
		return ir.KindU64
	case op >= ir.OpAddF64 && op <= ir.OpModF64:
		return ir.KindF64
	}
	return ir.KindInvalid
}

// loadBasePtr loads the backing array pointer for k's kind from
// NativeContext into dst.
func loadBasePtr(b *asm.Builder, k kindInfo, dst int16) {
	p := b.NewProg()
	p.As = x86.AMOVQ
	p.To.Type = obj.TYPE_REG
	p.To.Reg = dst
	p.From.Type = obj.TYPE_MEM
	p.From.Reg = ctxReg
	p.From.Offset = k.ctxOff
	b.AddInstruction(p)
}

// storeKindAndDirty writes the typed-kind tag and dirty flag for
// register reg, mirroring TypedWindow.StoreXxx's side effects exactly.
func storeKindAndDirty(b *asm.Builder, reg int, kind ir.ValueKind) {
	p := b.NewProg()
	p.As = x86.AMOVQ
	p.To.Type = obj.TYPE_REG
	p.To.Reg = scratchPtrReg
	p.From.Type = obj.TYPE_MEM
	p.From.Reg = ctxReg
	p.From.Offset = ctxOffKind
	b.AddInstruction(p)

	mk := b.NewProg()
	mk.As = x86.AMOVB
	mk.To.Type = obj.TYPE_MEM
	mk.To.Reg = scratchPtrReg
	mk.To.Offset = int64(reg)
	mk.From.Type = obj.TYPE_CONST
	mk.From.Offset = int64(kind)
	b.AddInstruction(mk)

	p2 := b.NewProg()
	p2.As = x86.AMOVQ
	p2.To.Type = obj.TYPE_REG
	p2.To.Reg = scratchPtrReg
	p2.From.Type = obj.TYPE_MEM
	p2.From.Reg = ctxReg
	p2.From.Offset = ctxOffDirty
	b.AddInstruction(p2)

	md := b.NewProg()
	md.As = x86.AMOVB
	md.To.Type = obj.TYPE_MEM
	md.To.Reg = scratchPtrReg
	md.To.Offset = int64(reg)
	md.From.Type = obj.TYPE_CONST
	md.From.Offset = 1
	b.AddInstruction(md)
}

// emitLoadConst materializes an inlined constant's bit pattern (read
// from the program's constant pool at compile time, since Program is a
// frozen, non-restartable snapshot per §3) directly into its typed-
// register slot.
func (em *Emitter) emitLoadConst(b *asm.Builder, inst *ir.Instruction, c ir.Constant) {
	var k kindInfo
	var kind ir.ValueKind
	var movOp obj.As
	switch inst.Op {
	case ir.OpLoadI32Const:
		k, kind, movOp = inlinedKinds[ir.KindI32], ir.KindI32, x86.AMOVL
	case ir.OpLoadI64Const:
		k, kind, movOp = inlinedKinds[ir.KindI64], ir.KindI64, x86.AMOVQ
	case ir.OpLoadF64Const:
		k, kind, movOp = inlinedKinds[ir.KindF64], ir.KindF64, x86.AMOVQ
	case ir.OpLoadBoolConst:
		k, kind, movOp = kindInfo{ctxOff: ctxOffBool, elemSize: 1}, ir.KindBool, x86.AMOVB
	}
	loadBasePtr(b, k, scratchPtrReg)
	p := b.NewProg()
	p.As = movOp
	p.To.Type = obj.TYPE_MEM
	p.To.Reg = scratchPtrReg
	p.To.Offset = int64(inst.Dst) * elemSizeOrOne(k)
	p.From.Type = obj.TYPE_CONST
	p.From.Offset = int64(c.Bits)
	b.AddInstruction(p)
	storeKindAndDirty(b, inst.Dst, kind)
}

func elemSizeOrOne(k kindInfo) int64 {
	if k.elemSize == 0 {
		return 1
	}
	return k.elemSize
}

// emitKindGuard emits the inline typed-kind guard every typed read
// performs first (§4.4: "cmp byte ptr [typed_reg_types + idx],
// expected_kind; jne bailout"). No helper call precedes this guard, so
// the failure edge must itself invoke bailout_and_deopt
// (emitBailoutDeopt); a bailed-out block's baseline resume then runs
// the interpreter's boxed-fallback path for the same register.
func (em *Emitter) emitKindGuard(b *asm.Builder, exitLabel *obj.Prog, reg int, kind ir.ValueKind) {
	p := b.NewProg()
	p.As = x86.AMOVQ
	p.To.Type = obj.TYPE_REG
	p.To.Reg = scratchPtrReg2
	p.From.Type = obj.TYPE_MEM
	p.From.Reg = ctxReg
	p.From.Offset = ctxOffKind
	b.AddInstruction(p)

	cmp := b.NewProg()
	cmp.As = x86.ACMPB
	cmp.From.Type = obj.TYPE_CONST
	cmp.From.Offset = int64(kind)
	cmp.To.Type = obj.TYPE_MEM
	cmp.To.Reg = scratchPtrReg2
	cmp.To.Offset = int64(reg)
	b.AddInstruction(cmp)

	skip := b.NewProg()
	skip.As = x86.AJEQ
	b.AddInstruction(skip)
	em.emitBailoutDeopt(b, exitLabel)
	okLabel := b.NewProg()
	okLabel.As = obj.ANOP
	skip.To.Type = obj.TYPE_BRANCH
	skip.To.Val = okLabel
	b.AddInstruction(okLabel)
}

// emitMoveTyped copies a typed register's raw bits to another slot of
// the same kind, guarded on the source's registered kind.
func (em *Emitter) emitMoveTyped(b *asm.Builder, exitLabel *obj.Prog, inst *ir.Instruction) {
	em.emitKindGuard(b, exitLabel, inst.Lhs, inst.ValueKind)
	k := inlinedKinds[inst.ValueKind]
	loadBasePtr(b, k, scratchPtrReg)
	mov := b.NewProg()
	if k.float || k.wide64 {
		// F64 bits travel through AX like I64's.
		mov.As = x86.AMOVQ
	} else {
		mov.As = x86.AMOVL
	}
	mov.To.Type = obj.TYPE_REG
	mov.To.Reg = x86.REG_AX
	mov.From.Type = obj.TYPE_MEM
	mov.From.Reg = scratchPtrReg
	mov.From.Offset = int64(inst.Lhs) * k.elemSize
	b.AddInstruction(mov)

	st := b.NewProg()
	st.As = mov.As
	st.To.Type = obj.TYPE_MEM
	st.To.Reg = scratchPtrReg
	st.To.Offset = int64(inst.Dst) * k.elemSize
	st.From.Type = obj.TYPE_REG
	st.From.Reg = x86.REG_AX
	b.AddInstruction(st)

	storeKindAndDirty(b, inst.Dst, inst.ValueKind)
}

// emitArithmetic inlines Add/Sub/Mul for I32/I64/F64, with both source
// operands kind-guarded.
func (em *Emitter) emitArithmetic(b *asm.Builder, exitLabel *obj.Prog, inst *ir.Instruction) {
	kind := arithKindOf(inst.Op)
	em.emitKindGuard(b, exitLabel, inst.Lhs, kind)
	em.emitKindGuard(b, exitLabel, inst.Rhs, kind)
	k := inlinedKinds[kind]
	loadBasePtr(b, k, scratchPtrReg)

	loadOp, opOp, storeOp := arithOps(inst.Op, k)

	lhs := b.NewProg()
	lhs.As = loadOp
	lhs.To.Type = obj.TYPE_REG
	lhs.To.Reg = regOf(k, 0)
	lhs.From.Type = obj.TYPE_MEM
	lhs.From.Reg = scratchPtrReg
	lhs.From.Offset = int64(inst.Lhs) * k.elemSize
	b.AddInstruction(lhs)

	rhs := b.NewProg()
	rhs.As = loadOp
	rhs.To.Type = obj.TYPE_REG
	rhs.To.Reg = regOf(k, 1)
	rhs.From.Type = obj.TYPE_MEM
	rhs.From.Reg = scratchPtrReg
	rhs.From.Offset = int64(inst.Rhs) * k.elemSize
	b.AddInstruction(rhs)

	op := b.NewProg()
	op.As = opOp
	op.From.Type = obj.TYPE_REG
	op.From.Reg = regOf(k, 1)
	op.To.Type = obj.TYPE_REG
	op.To.Reg = regOf(k, 0)
	b.AddInstruction(op)

	st := b.NewProg()
	st.As = storeOp
	st.To.Type = obj.TYPE_MEM
	st.To.Reg = scratchPtrReg
	st.To.Offset = int64(inst.Dst) * k.elemSize
	st.From.Type = obj.TYPE_REG
	st.From.Reg = regOf(k, 0)
	b.AddInstruction(st)

	storeKindAndDirty(b, inst.Dst, kind)
}

// regOf returns the scratch register for operand slot 0 (AX/X0) or 1
// (CX/X1), per kind.
func regOf(k kindInfo, slot int) int16 {
	if k.float {
		if slot == 0 {
			return x86.REG_X0
		}
		return x86.REG_X1
	}
	if slot == 0 {
		return x86.REG_AX
	}
	return x86.REG_CX
}

func arithOps(op ir.Opcode, k kindInfo) (load, arith, store obj.As) {
	if k.float {
		load, store = x86.AMOVSD, x86.AMOVSD
		switch op {
		case ir.OpAddF64:
			arith = x86.AADDSD
		case ir.OpSubF64:
			arith = x86.ASUBSD
		case ir.OpMulF64:
			arith = x86.AMULSD
		}
		return
	}
	if k.wide64 {
		load, store = x86.AMOVQ, x86.AMOVQ
	} else {
		load, store = x86.AMOVL, x86.AMOVL
	}
	switch {
	case op == ir.OpAddI32 || op == ir.OpAddI64:
		arith = pick(k.wide64, x86.AADDQ, x86.AADDL)
	case op == ir.OpSubI32 || op == ir.OpSubI64:
		arith = pick(k.wide64, x86.ASUBQ, x86.ASUBL)
	case op == ir.OpMulI32 || op == ir.OpMulI64:
		arith = pick(k.wide64, x86.AIMULQ, x86.AIMULL)
	}
	return
}

func pick(cond bool, a, b obj.As) obj.As {
	if cond {
		return a
	}
	return b
}

// emitCompare inlines LT/LE/GT/GE/EQ/NE for I32/I64/F64, storing the
// Bool result.
func (em *Emitter) emitCompare(b *asm.Builder, exitLabel *obj.Prog, inst *ir.Instruction) {
	em.emitKindGuard(b, exitLabel, inst.Lhs, inst.ValueKind)
	em.emitKindGuard(b, exitLabel, inst.Rhs, inst.ValueKind)
	k := inlinedKinds[inst.ValueKind]
	loadBasePtr(b, k, scratchPtrReg)

	loadOp := x86.AMOVL
	cmpOp := x86.ACMPL
	if k.float {
		loadOp, cmpOp = x86.AMOVSD, x86.AUCOMISD
	} else if k.wide64 {
		loadOp, cmpOp = x86.AMOVQ, x86.ACMPQ
	}

	lhs := b.NewProg()
	lhs.As = loadOp
	lhs.To.Type = obj.TYPE_REG
	lhs.To.Reg = regOf(k, 0)
	lhs.From.Type = obj.TYPE_MEM
	lhs.From.Reg = scratchPtrReg
	lhs.From.Offset = int64(inst.Lhs) * k.elemSize
	b.AddInstruction(lhs)

	rhs := b.NewProg()
	rhs.As = loadOp
	rhs.To.Type = obj.TYPE_REG
	rhs.To.Reg = regOf(k, 1)
	rhs.From.Type = obj.TYPE_MEM
	rhs.From.Reg = scratchPtrReg
	rhs.From.Offset = int64(inst.Rhs) * k.elemSize
	b.AddInstruction(rhs)

	cmp := b.NewProg()
	cmp.As = cmpOp
	cmp.From.Type = obj.TYPE_REG
	cmp.From.Reg = regOf(k, 0)
	cmp.To.Type = obj.TYPE_REG
	cmp.To.Reg = regOf(k, 1)
	b.AddInstruction(cmp)

	set := b.NewProg()
	set.As = setccFor(inst.Op)
	set.To.Type = obj.TYPE_REG
	set.To.Reg = boolScratchReg
	b.AddInstruction(set)

	loadBasePtr(b, kindInfo{ctxOff: ctxOffBool}, scratchPtrReg2)
	st := b.NewProg()
	st.As = x86.AMOVB
	st.To.Type = obj.TYPE_MEM
	st.To.Reg = scratchPtrReg2
	st.To.Offset = int64(inst.Dst)
	st.From.Type = obj.TYPE_REG
	st.From.Reg = boolScratchReg
	b.AddInstruction(st)

	storeKindAndDirty(b, inst.Dst, ir.KindBool)
}

func setccFor(op ir.Opcode) obj.As {
	switch op {
	case ir.OpCmpLT:
		return x86.ASETLT
	case ir.OpCmpLE:
		return x86.ASETLE
	case ir.OpCmpGT:
		return x86.ASETGT
	case ir.OpCmpGE:
		return x86.ASETGE
	case ir.OpCmpEQ:
		return x86.ASETEQ
	case ir.OpCmpNE:
		return x86.ASETNE
	}
	return x86.ASETEQ
}

// emitFusedLoop inlines IncCmpJump/DecCmpJump over the I64 typed window,
// with an overflow guard on the counter update (§4.3).
func (em *Emitter) emitFusedLoop(b *asm.Builder, table ir.SideTable, labels []*obj.Prog, exitLabel *obj.Prog, idx int, inst *ir.Instruction) error {
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

	em.emitKindGuard(b, exitLabel, inst.CounterReg, ir.KindI64)
	em.emitKindGuard(b, exitLabel, inst.LimitReg, ir.KindI64)
	k := inlinedKinds[ir.KindI64]
	loadBasePtr(b, k, scratchPtrReg)

	counter := b.NewProg()
	counter.As = x86.AMOVQ
	counter.To.Type = obj.TYPE_REG
	counter.To.Reg = x86.REG_AX
	counter.From.Type = obj.TYPE_MEM
	counter.From.Reg = scratchPtrReg
	counter.From.Offset = int64(inst.CounterReg) * 8
	b.AddInstruction(counter)

	upd := b.NewProg()
	if inst.Op == ir.OpIncCmpJump {
		upd.As = x86.AADDQ
	} else {
		upd.As = x86.ASUBQ
	}
	upd.From.Type = obj.TYPE_CONST
	upd.From.Offset = int64(abs8(inst.Step))
	upd.To.Type = obj.TYPE_REG
	upd.To.Reg = x86.REG_AX
	b.AddInstruction(upd)

	// jo exitLabel (bailout): overflow on the update.
	em.emitGuardJNE_JO(b, exitLabel)

	st := b.NewProg()
	st.As = x86.AMOVQ
	st.To.Type = obj.TYPE_MEM
	st.To.Reg = scratchPtrReg
	st.To.Offset = int64(inst.CounterReg) * 8
	st.From.Type = obj.TYPE_REG
	st.From.Reg = x86.REG_AX
	b.AddInstruction(st)

	limit := b.NewProg()
	limit.As = x86.AMOVQ
	limit.To.Type = obj.TYPE_REG
	limit.To.Reg = x86.REG_CX
	limit.From.Type = obj.TYPE_MEM
	limit.From.Reg = scratchPtrReg
	limit.From.Offset = int64(inst.LimitReg) * 8
	b.AddInstruction(limit)

	cmp := b.NewProg()
	cmp.As = x86.ACMPQ
	cmp.From.Type = obj.TYPE_REG
	cmp.From.Reg = x86.REG_AX
	cmp.To.Type = obj.TYPE_REG
	cmp.To.Reg = x86.REG_CX
	b.AddInstruction(cmp)

	jmp := b.NewProg()
	if inst.CompareKind == ir.CompareLT {
		jmp.As = x86.AJLT
	} else {
		jmp.As = x86.AJGT
	}
	jmp.To.Type = obj.TYPE_BRANCH
	jmp.To.Val = labels[targetIdx]
	b.AddInstruction(jmp)
	return nil
}

func abs8(v int8) int8 {
	if v < 0 {
		return -v
	}
	return v
}

// emitGuardJNE_JO jumps to a clear-status-then-exit sequence when the
// overflow flag is set (the update in emitFusedLoop overflowed). Unlike
// emitGuardJNE, this guard is checked entirely inline with no preceding
// helper call, so it must itself invoke bailout_and_deopt via
// emitBailoutDeopt (§4.6) -- nothing else along this path ever would.
func (em *Emitter) emitGuardJNE_JO(b *asm.Builder, exitLabel *obj.Prog) {
	skip := b.NewProg()
	skip.As = x86.AJOC // jump if overflow clear (no overflow) -> skip bailout
	b.AddInstruction(skip)
	em.emitBailoutDeopt(b, exitLabel)
	okLabel := b.NewProg()
	okLabel.As = obj.ANOP
	skip.To.Type = obj.TYPE_BRANCH
	skip.To.Val = okLabel
	b.AddInstruction(okLabel)
}

// emitJump lowers JumpShort/JumpBackShort: an unconditional branch to
// the side-table-resolved target.
func (em *Emitter) emitJump(b *asm.Builder, table ir.SideTable, labels []*obj.Prog, idx int, inst *ir.Instruction) error {
	targetIdx, ok := table.Resolve(inst.JumpOffset)
	if !ok {
		return &AssemblyError{Index: idx, Detail: "jump target unresolved"}
	}
	jmp := b.NewProg()
	jmp.As = obj.AJMP
	jmp.To.Type = obj.TYPE_BRANCH
	jmp.To.Val = labels[targetIdx]
	b.AddInstruction(jmp)
	return nil
}

// emitJumpIfNot branches to the target when the Bool predicate in Lhs
// is false, else falls through.
func (em *Emitter) emitJumpIfNot(b *asm.Builder, table ir.SideTable, labels []*obj.Prog, exitLabel *obj.Prog, idx int, inst *ir.Instruction) error {
	targetIdx, ok := table.Resolve(inst.JumpOffset)
	if !ok {
		return &AssemblyError{Index: idx, Detail: "jump_if_not target unresolved"}
	}
	em.emitKindGuard(b, exitLabel, inst.Lhs, ir.KindBool)
	loadBasePtr(b, kindInfo{ctxOff: ctxOffBool}, scratchPtrReg)
	cmp := b.NewProg()
	cmp.As = x86.ACMPB
	cmp.From.Type = obj.TYPE_CONST
	cmp.From.Offset = 0
	cmp.To.Type = obj.TYPE_MEM
	cmp.To.Reg = scratchPtrReg
	cmp.To.Offset = int64(inst.Lhs)
	b.AddInstruction(cmp)

	jmp := b.NewProg()
	jmp.As = x86.AJEQ
	jmp.To.Type = obj.TYPE_BRANCH
	jmp.To.Val = labels[targetIdx]
	b.AddInstruction(jmp)
	return nil
}

// emitLoopBack jumps to the program's loop header, resolved via
// loop_start_offset (mirrors helper.Executor.execLoopBack).
func (em *Emitter) emitLoopBack(b *asm.Builder, prog *ir.Program, table ir.SideTable, labels []*obj.Prog, idx int) error {
	targetIdx, ok := table.LoopHeaderIndex(prog)
	if !ok {
		return &AssemblyError{Index: idx, Detail: "loop_back header unresolved"}
	}
	jmp := b.NewProg()
	jmp.As = obj.AJMP
	jmp.To.Type = obj.TYPE_BRANCH
	jmp.To.Val = labels[targetIdx]
	b.AddInstruction(jmp)
	return nil
}

// emitSafepointCall emits the unconditional call described in §4.4:
// "mov rax, &linear_safepoint; call rax" (tail does not bail). Reuses
// the same helper-call convention as emitHelperCall but does not test
// the result, since a safepoint never itself fails -- any GC-induced
// slow path is handled by the helper marking the frame.
func (em *Emitter) emitSafepointCall(b *asm.Builder, exitLabel *obj.Prog, idx int) {
	em.emitCallSequence(b, idx)
	// result discarded: status register is left untouched.
}

// emitHelperCall lowers any (opcode, value_kind) this emitter does not
// inline to a call into helper.Executor.CallOp via the shared
// NativeContext.HelperCall trampoline, testing the boolean result and
// bailing out on failure, per §4.4's helper-call lowering rule.
func (em *Emitter) emitHelperCall(b *asm.Builder, exitLabel *obj.Prog, idx int) {
	em.emitCallSequence(b, idx)
	// cmp rax, 1: ZF set on success, so emitGuardJNE skips the bailout.
	test := b.NewProg()
	test.As = x86.ACMPQ
	test.From.Type = obj.TYPE_REG
	test.From.Reg = x86.REG_AX
	test.To.Type = obj.TYPE_CONST
	test.To.Offset = 1
	b.AddInstruction(test)
	em.emitGuardJNE(b, exitLabel)
}

// emitCallSequence writes the (ctx, instIndex) argument pair to a
// reserved stack frame and calls NativeContext.HelperCall, leaving the
// int64 result in AX. See trampoline.go for the ABI0 stack convention
// this assumes.
func (em *Emitter) emitCallSequence(b *asm.Builder, instIndex int) {
	sub := b.NewProg()
	sub.As = x86.ASUBQ
	sub.From.Type = obj.TYPE_CONST
	sub.From.Offset = 32
	sub.To.Type = obj.TYPE_REG
	sub.To.Reg = x86.REG_SP
	b.AddInstruction(sub)

	arg0 := b.NewProg()
	arg0.As = x86.AMOVQ
	arg0.To.Type = obj.TYPE_MEM
	arg0.To.Reg = x86.REG_SP
	arg0.To.Offset = 0
	arg0.From.Type = obj.TYPE_REG
	arg0.From.Reg = ctxReg
	b.AddInstruction(arg0)

	arg1 := b.NewProg()
	arg1.As = x86.AMOVQ
	arg1.To.Type = obj.TYPE_MEM
	arg1.To.Reg = x86.REG_SP
	arg1.To.Offset = 8
	arg1.From.Type = obj.TYPE_CONST
	arg1.From.Offset = int64(instIndex)
	b.AddInstruction(arg1)

	loadFn := b.NewProg()
	loadFn.As = x86.AMOVQ
	loadFn.To.Type = obj.TYPE_REG
	loadFn.To.Reg = scratchPtrReg
	loadFn.From.Type = obj.TYPE_MEM
	loadFn.From.Reg = ctxReg
	loadFn.From.Offset = ctxOffHelperCall
	b.AddInstruction(loadFn)

	call := b.NewProg()
	call.As = obj.ACALL
	call.To.Type = obj.TYPE_REG
	call.To.Reg = scratchPtrReg
	b.AddInstruction(call)

	result := b.NewProg()
	result.As = x86.AMOVQ
	result.To.Type = obj.TYPE_REG
	result.To.Reg = x86.REG_AX
	result.From.Type = obj.TYPE_MEM
	result.From.Reg = x86.REG_SP
	result.From.Offset = 16
	b.AddInstruction(result)

	add := b.NewProg()
	add.As = x86.AADDQ
	add.From.Type = obj.TYPE_CONST
	add.From.Offset = 32
	add.To.Type = obj.TYPE_REG
	add.To.Reg = x86.REG_SP
	b.AddInstruction(add)
}
