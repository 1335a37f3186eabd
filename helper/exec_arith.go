package helper

import "github.com/jordyorel/orus-lang-sub000/ir"

// execArithmetic implements Add/Sub/Mul/Div/Mod for I32/I64/U32/U64/F64,
// per §4.3: "compute result with defined overflow semantics (two's
// complement wrap for integers, IEEE-754 for F64; division by zero and
// INT_MIN / -1 are guard failures routed to bailout)."
func (e *Executor) execArithmetic(vm *VM, inst *ir.Instruction) outcome {
	kind := arithKind(inst.Op)
	if !vm.GuardKind(inst.Lhs, kind) || !vm.GuardKind(inst.Rhs, kind) {
		return outcomeBailout
	}

	switch kind {
	case ir.KindI32:
		a, b := vm.Typed.I32[inst.Lhs], vm.Typed.I32[inst.Rhs]
		r, ok := intBinOp32(inst.Op, a, b)
		if !ok {
			return outcomeBailout
		}
		vm.Typed.StoreI32(inst.Dst, r)
	case ir.KindI64:
		a, b := vm.Typed.I64[inst.Lhs], vm.Typed.I64[inst.Rhs]
		r, ok := intBinOp64(inst.Op, a, b)
		if !ok {
			return outcomeBailout
		}
		vm.Typed.StoreI64(inst.Dst, r)
	case ir.KindU32:
		a, b := vm.Typed.U32[inst.Lhs], vm.Typed.U32[inst.Rhs]
		r, ok := uintBinOp32(inst.Op, a, b)
		if !ok {
			return outcomeBailout
		}
		vm.Typed.StoreU32(inst.Dst, r)
	case ir.KindU64:
		a, b := vm.Typed.U64[inst.Lhs], vm.Typed.U64[inst.Rhs]
		r, ok := uintBinOp64(inst.Op, a, b)
		if !ok {
			return outcomeBailout
		}
		vm.Typed.StoreU64(inst.Dst, r)
	case ir.KindF64:
		a, b := vm.Typed.F64[inst.Lhs], vm.Typed.F64[inst.Rhs]
		r, ok := floatBinOp(inst.Op, a, b)
		if !ok {
			return outcomeBailout
		}
		vm.Typed.StoreF64(inst.Dst, r)
	default:
		return outcomeBailout
	}
	return outcomeContinue
}

func arithKind(op ir.Opcode) ir.ValueKind {
	switch op {
	case ir.OpAddI32, ir.OpSubI32, ir.OpMulI32, ir.OpDivI32, ir.OpModI32:
		return ir.KindI32
	case ir.OpAddI64, ir.OpSubI64, ir.OpMulI64, ir.OpDivI64, ir.OpModI64:
		return ir.KindI64
	case ir.OpAddU32, ir.OpSubU32, ir.OpMulU32, ir.OpDivU32, ir.OpModU32:
		return ir.KindU32
	case ir.OpAddU64, ir.OpSubU64, ir.OpMulU64, ir.OpDivU64, ir.OpModU64:
		return ir.KindU64
	case ir.OpAddF64, ir.OpSubF64, ir.OpMulF64, ir.OpDivF64, ir.OpModF64:
		return ir.KindF64
	default:
		return ir.KindInvalid
	}
}

func intBinOp32(op ir.Opcode, a, b int32) (int32, bool) {
	switch op {
	case ir.OpAddI32:
		return a + b, true
	case ir.OpSubI32:
		return a - b, true
	case ir.OpMulI32:
		return a * b, true
	case ir.OpDivI32:
		if b == 0 || (a == -1<<31 && b == -1) {
			return 0, false
		}
		return a / b, true
	case ir.OpModI32:
		if b == 0 || (a == -1<<31 && b == -1) {
			return 0, false
		}
		return a % b, true
	}
	return 0, false
}

func intBinOp64(op ir.Opcode, a, b int64) (int64, bool) {
	switch op {
	case ir.OpAddI64:
		return a + b, true
	case ir.OpSubI64:
		return a - b, true
	case ir.OpMulI64:
		return a * b, true
	case ir.OpDivI64:
		if b == 0 || (a == -1<<63 && b == -1) {
			return 0, false
		}
		return a / b, true
	case ir.OpModI64:
		if b == 0 || (a == -1<<63 && b == -1) {
			return 0, false
		}
		return a % b, true
	}
	return 0, false
}

func uintBinOp32(op ir.Opcode, a, b uint32) (uint32, bool) {
	switch op {
	case ir.OpAddU32:
		return a + b, true
	case ir.OpSubU32:
		return a - b, true
	case ir.OpMulU32:
		return a * b, true
	case ir.OpDivU32:
		if b == 0 {
			return 0, false
		}
		return a / b, true
	case ir.OpModU32:
		if b == 0 {
			return 0, false
		}
		return a % b, true
	}
	return 0, false
}

func uintBinOp64(op ir.Opcode, a, b uint64) (uint64, bool) {
	switch op {
	case ir.OpAddU64:
		return a + b, true
	case ir.OpSubU64:
		return a - b, true
	case ir.OpMulU64:
		return a * b, true
	case ir.OpDivU64:
		if b == 0 {
			return 0, false
		}
		return a / b, true
	case ir.OpModU64:
		if b == 0 {
			return 0, false
		}
		return a % b, true
	}
	return 0, false
}

func floatBinOp(op ir.Opcode, a, b float64) (float64, bool) {
	// No reassociation: each op computes directly from a and b, bit-exact
	// with the spec's "must be bit-exact vs the interpreter" requirement
	// for the emitters that mirror this.
	switch op {
	case ir.OpAddF64:
		return a + b, true
	case ir.OpSubF64:
		return a - b, true
	case ir.OpMulF64:
		return a * b, true
	case ir.OpDivF64:
		return a / b, true
	case ir.OpModF64:
		return floatMod(a, b), true
	}
	return 0, false
}

func floatMod(a, b float64) float64 {
	if b == 0 {
		return (a - a) / b // 0/0 or NaN/0: NaN, matching IEEE-754 fmod(x, 0)
	}
	q := a / b
	whole := float64(int64(q))
	if q < 0 && whole != q {
		whole -= 1
	}
	return a - whole*b
}

// vectorPairEligible checks the vector-pair fast-path precondition: "if
// instruction i has VectorHead and i+1 has VectorTail and both have
// identical opcode/kind and their dst, lhs, rhs are three consecutive
// registers" (§4.3).
func vectorPairEligible(a, b *ir.Instruction) bool {
	if a.Op != b.Op || a.ValueKind != b.ValueKind {
		return false
	}
	if !a.Op.IsArithmetic() {
		return false
	}
	if a.ValueKind != ir.KindI32 && a.ValueKind != ir.KindF64 {
		return false // SSE2 lanes supported: I32, F64 per §4.3.
	}
	return b.Dst == a.Dst+1 && b.Lhs == a.Lhs+1 && b.Rhs == a.Rhs+1
}

// execVectorPair executes two arithmetic instructions as a pair. The
// interpreter has no actual SIMD unit to dispatch to; it establishes the
// reference result by running both scalar operations in index order
// (first, then second), which is the exact semantics the spec requires
// any real 2-lane emission to reproduce (§5 ordering: "must match two
// scalar ops executed in index order").
func (e *Executor) execVectorPair(vm *VM, a, b *ir.Instruction) bool {
	if e.exec1(vm, a) != outcomeContinue {
		return false
	}
	return e.exec1(vm, b) == outcomeContinue
}

// exec1 runs a single non-control-flow instruction without touching pc,
// used by the vector-pair path.
func (e *Executor) exec1(vm *VM, inst *ir.Instruction) outcome {
	return e.execArithmetic(vm, inst)
}

// execCompare implements LT/LE/GT/GE/EQ/NE for numeric kinds and EQ/NE
// for Bool, including the string-coercion special case for Bool compares
// (§4.3).
func (e *Executor) execCompare(vm *VM, inst *ir.Instruction) outcome {
	kind := inst.ValueKind
	if kind == ir.KindBool {
		return e.execCompareBoolOrString(vm, inst)
	}
	if !vm.GuardKind(inst.Lhs, kind) || !vm.GuardKind(inst.Rhs, kind) {
		return outcomeBailout
	}

	var result bool
	switch kind {
	case ir.KindI32:
		result = compareOrdered(inst.Op, vm.Typed.I32[inst.Lhs], vm.Typed.I32[inst.Rhs])
	case ir.KindI64:
		result = compareOrdered(inst.Op, vm.Typed.I64[inst.Lhs], vm.Typed.I64[inst.Rhs])
	case ir.KindU32:
		result = compareOrdered(inst.Op, vm.Typed.U32[inst.Lhs], vm.Typed.U32[inst.Rhs])
	case ir.KindU64:
		result = compareOrdered(inst.Op, vm.Typed.U64[inst.Lhs], vm.Typed.U64[inst.Rhs])
	case ir.KindF64:
		result = compareOrdered(inst.Op, vm.Typed.F64[inst.Lhs], vm.Typed.F64[inst.Rhs])
	default:
		return outcomeBailout
	}
	vm.Typed.StoreBool(inst.Dst, result)
	return outcomeContinue
}

type ordered interface {
	~int32 | ~int64 | ~uint32 | ~uint64 | ~float64
}

func compareOrdered[T ordered](op ir.Opcode, a, b T) bool {
	switch op {
	case ir.OpCmpLT:
		return a < b
	case ir.OpCmpLE:
		return a <= b
	case ir.OpCmpGT:
		return a > b
	case ir.OpCmpGE:
		return a >= b
	case ir.OpCmpEQ:
		return a == b
	case ir.OpCmpNE:
		return a != b
	}
	return false
}

// execCompareBoolOrString handles Bool EQ/NE on typed bools, plus the
// string-coercion fallback: "Bool comparisons also accept string
// operands: if either is a string, coerce both to string... success
// requires both coercions to succeed and no GC pressure (otherwise set
// slow_path_requested and return a correct result)."
func (e *Executor) execCompareBoolOrString(vm *VM, inst *ir.Instruction) outcome {
	if inst.Op != ir.OpCmpEQ && inst.Op != ir.OpCmpNE {
		return outcomeBailout
	}

	lhsIsString := vm.Boxed[inst.Lhs].Kind == ir.KindString
	rhsIsString := vm.Boxed[inst.Rhs].Kind == ir.KindString
	if lhsIsString || rhsIsString {
		lhs, lok := e.ToString(vm, inst.Lhs)
		rhs, rok := e.ToString(vm, inst.Rhs)
		if !lok || !rok {
			return outcomeBailout
		}
		eq := lhs == rhs
		if inst.Op == ir.OpCmpNE {
			eq = !eq
		}
		vm.Typed.StoreBool(inst.Dst, eq)
		// A string coercion may allocate; mark the slow path pending so
		// the caller's next Safepoint observes and reconciles GC state,
		// matching "no GC pressure (otherwise set slow_path_requested)".
		if vm.NativeFrameTop != nil {
			vm.NativeFrameTop.SlowPathRequested = true
		}
		return outcomeContinue
	}

	if !vm.GuardKind(inst.Lhs, ir.KindBool) || !vm.GuardKind(inst.Rhs, ir.KindBool) {
		return outcomeBailout
	}
	eq := vm.Typed.Bool[inst.Lhs] == vm.Typed.Bool[inst.Rhs]
	if inst.Op == ir.OpCmpNE {
		eq = !eq
	}
	vm.Typed.StoreBool(inst.Dst, eq)
	return outcomeContinue
}

// ToString resolves reg's current value (typed or boxed) to a Go string
// via the inline cache, used by ConcatString and the Bool/string compare
// fallback.
func (e *Executor) ToString(vm *VM, reg int) (string, bool) {
	v := vm.Boxed[reg]
	if vm.Typed.Kind[reg] != ir.KindInvalid {
		v = vm.Typed.ToValue(reg)
	}
	return vm.ToString(&e.strings, v)
}

// execFusedLoop implements IncCmpJump/DecCmpJump (§4.3): preconditions
// step != 0 and direction matching the op, overflow on the update is a
// guard failure, then branch if the compare holds.
//
// The emitter Step values are generalized per §9's Open Question (see
// DESIGN.md): any nonzero int8 step is accepted, not just +-1.
func (e *Executor) execFusedLoop(vm *VM, table ir.SideTable, inst *ir.Instruction, pc *int) outcome {
	if inst.Step == 0 {
		return outcomeBailout
	}
	inc := inst.Op == ir.OpIncCmpJump
	if inc && inst.Step <= 0 {
		return outcomeBailout
	}
	if !inc && inst.Step >= 0 {
		return outcomeBailout
	}
	if !vm.GuardKind(inst.CounterReg, ir.KindI64) || !vm.GuardKind(inst.LimitReg, ir.KindI64) {
		return outcomeBailout
	}

	counter := vm.Typed.I64[inst.CounterReg]
	limit := vm.Typed.I64[inst.LimitReg]

	updated := counter + int64(inst.Step)
	// Overflow check on the update, per §4.3.
	if inc && updated < counter {
		return outcomeBailout
	}
	if !inc && updated > counter {
		return outcomeBailout
	}
	vm.Typed.StoreI64(inst.CounterReg, updated)

	var branch bool
	switch inst.CompareKind {
	case ir.CompareLT:
		branch = updated < limit
	case ir.CompareGT:
		branch = updated > limit
	default:
		return outcomeBailout
	}

	if !branch {
		return outcomeContinue
	}
	idx, ok := table.Resolve(inst.JumpOffset)
	if !ok {
		return outcomeBailout
	}
	*pc = idx
	return outcomeJumped
}
