package helper

import "github.com/jordyorel/orus-lang-sub000/ir"

// execRange implements the Range builtin: constructs a bounded range
// iterator from [Lhs, Rhs) with a step of 1 (or -1 when Rhs < Lhs),
// the same shape as the 0..n iterator
// GetIter synthesizes from an integer count (§4.3 "Iteration"/"Builtins").
func (e *Executor) execRange(vm *VM, inst *ir.Instruction) outcome {
	if !vm.GuardKind(inst.Lhs, ir.KindI64) || !vm.GuardKind(inst.Rhs, ir.KindI64) {
		return outcomeBailout
	}
	start, end := vm.Typed.I64[inst.Lhs], vm.Typed.I64[inst.Rhs]
	step := int64(1)
	if end < start {
		step = -1
	}
	vm.Boxed[inst.Dst] = Value{Kind: ir.KindBoxed, Iter: &IteratorValue{IsRange: true, Cur: start, End: end, Step: step}}
	vm.Typed.Clear(inst.Dst)
	return outcomeContinue
}

// execPrint coerces Lhs to a string and forwards it to the VM's Print
// sink.
func (e *Executor) execPrint(vm *VM, inst *ir.Instruction) outcome {
	s, ok := e.ToString(vm, inst.Lhs)
	if !ok {
		return outcomeBailout
	}
	if vm.Print != nil {
		vm.Print(s)
	}
	return outcomeContinue
}

// execAssertEq compares Lhs and Rhs for equality (numeric or coerced
// string), recording a failure on mismatch rather than bailing out: an
// assertion is a VM-level outcome, not a speculative-guard violation.
func (e *Executor) execAssertEq(vm *VM, inst *ir.Instruction) outcome {
	lhs := vm.regValue(inst.Lhs)
	rhs := vm.regValue(inst.Rhs)
	if !valuesEqual(lhs, rhs) {
		vm.AssertFailed = true
	}
	return outcomeContinue
}

func valuesEqual(a, b Value) bool {
	if a.Kind != b.Kind {
		as, aok := a.ToGoString()
		bs, bok := b.ToGoString()
		return aok && bok && as == bs
	}
	switch a.Kind {
	case ir.KindF64:
		return a.F64 == b.F64
	case ir.KindString:
		return a.Str == b.Str
	default:
		return a.I64 == b.I64
	}
}

// execTimeStamp stores a monotonic timestamp (via the VM's injectable
// clock) into Dst as a typed I64.
func (e *Executor) execTimeStamp(vm *VM, inst *ir.Instruction) outcome {
	now := int64(0)
	if vm.Now != nil {
		now = vm.Now()
	}
	vm.Typed.StoreI64(inst.Dst, now)
	return outcomeContinue
}

// execCallNative and execCallForeign both flush the instruction's spill
// range before transferring control to the dispatch table, per §4.3:
// "All calls must flush dirty typed registers in [spill_base,
// spill_base+spill_count) to the boxed register file before invoking
// foreign code."
func (e *Executor) execCallNative(vm *VM, inst *ir.Instruction) outcome {
	return callDispatch(vm, vm.Natives, inst)
}

func (e *Executor) execCallForeign(vm *VM, inst *ir.Instruction) outcome {
	return callDispatch(vm, vm.Foreigns, inst)
}

func callDispatch(vm *VM, table []NativeFunc, inst *ir.Instruction) outcome {
	if inst.SpillCount > 0 {
		vm.FlushTypedRange(inst.SpillBase, inst.SpillCount)
	}
	if inst.NativeIndex < 0 || inst.NativeIndex >= len(table) || table[inst.NativeIndex] == nil {
		return outcomeBailout
	}
	result, ok := table[inst.NativeIndex](vm, inst.FirstArgReg, inst.ArgCount)
	if !ok {
		return outcomeBailout
	}
	vm.Boxed[inst.Dst] = result
	vm.Typed.Clear(inst.Dst)
	return outcomeContinue
}
