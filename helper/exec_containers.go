package helper

import "github.com/jordyorel/orus-lang-sub000/ir"

// execMakeArray implements MakeArray: collects ArgCount boxed values
// starting at FirstArgReg into a new ArrayValue (§4.3 "Array/enum").
func (e *Executor) execMakeArray(vm *VM, inst *ir.Instruction) outcome {
	elems := make([]Value, inst.ArgCount)
	for i := 0; i < inst.ArgCount; i++ {
		elems[i] = vm.regValue(inst.FirstArgReg + i)
	}
	vm.Boxed[inst.Dst] = Value{Kind: ir.KindBoxed, Array: &ArrayValue{Elems: elems}}
	vm.Typed.Clear(inst.Dst)
	return outcomeContinue
}

// execArrayPush appends Rhs's value onto the array in Lhs, storing the
// (possibly reallocated) array back into Dst.
func (e *Executor) execArrayPush(vm *VM, inst *ir.Instruction) outcome {
	arr := vm.Boxed[inst.Lhs].Array
	if arr == nil {
		return outcomeBailout
	}
	arr.Elems = append(arr.Elems, vm.regValue(inst.Rhs))
	vm.Boxed[inst.Dst] = Value{Kind: ir.KindBoxed, Array: arr}
	vm.Typed.Clear(inst.Dst)
	return outcomeContinue
}

// execArrayPop removes and returns the last element of the array in Lhs,
// a guard failure (routed to bailout) if the array is empty.
func (e *Executor) execArrayPop(vm *VM, inst *ir.Instruction) outcome {
	arr := vm.Boxed[inst.Lhs].Array
	if arr == nil || len(arr.Elems) == 0 {
		return outcomeBailout
	}
	last := len(arr.Elems) - 1
	popped := arr.Elems[last]
	arr.Elems = arr.Elems[:last]
	vm.Boxed[inst.Dst] = popped
	vm.Typed.Clear(inst.Dst)
	return outcomeContinue
}

// execEnumNew constructs a tagged union instance from the payload window
// [PayloadStart, PayloadStart+PayloadCount).
func (e *Executor) execEnumNew(vm *VM, inst *ir.Instruction) outcome {
	payload := make([]Value, inst.PayloadCount)
	for i := 0; i < inst.PayloadCount; i++ {
		payload[i] = vm.regValue(inst.PayloadStart + i)
	}
	vm.Boxed[inst.Dst] = Value{
		Kind: ir.KindBoxed,
		Enum: &EnumValue{TypeConst: inst.TypeConst, VariantIndex: inst.VariantIndex, Payload: payload},
	}
	vm.Typed.Clear(inst.Dst)
	return outcomeContinue
}

// execGetIter constructs an iterator over Lhs: an existing range or array
// iterator is passed through boxed; an array produces an array cursor;
// an integer count produces a 0..n range iterator (§4.3 "Iteration").
func (e *Executor) execGetIter(vm *VM, inst *ir.Instruction) outcome {
	if src := vm.Boxed[inst.Lhs].Iter; src != nil {
		vm.Boxed[inst.Dst] = Value{Kind: ir.KindBoxed, Iter: src}
		vm.Typed.Clear(inst.Dst)
		return outcomeContinue
	}
	if arr := vm.Boxed[inst.Lhs].Array; arr != nil {
		vm.Boxed[inst.Dst] = Value{Kind: ir.KindBoxed, Iter: &IteratorValue{ArraySource: arr}}
		vm.Typed.Clear(inst.Dst)
		return outcomeContinue
	}
	if v := vm.regValue(inst.Lhs); v.Kind == ir.KindI64 || v.Kind == ir.KindI32 {
		n := v.AsI64()
		if n < 0 {
			return outcomeBailout
		}
		vm.Boxed[inst.Dst] = Value{Kind: ir.KindBoxed, Iter: &IteratorValue{IsRange: true, Cur: 0, End: n, Step: 1}}
		vm.Typed.Clear(inst.Dst)
		return outcomeContinue
	}
	return outcomeBailout
}

// execIterNext advances the iterator in IteratorReg, storing the next
// value into ValueReg and a has-value flag into HasValueReg, per §4.3
// "Iteration".
func (e *Executor) execIterNext(vm *VM, inst *ir.Instruction) outcome {
	it := vm.Boxed[inst.IteratorReg].Iter
	if it == nil {
		return outcomeBailout
	}
	if it.IsRange {
		if (it.Step > 0 && it.Cur >= it.End) || (it.Step < 0 && it.Cur <= it.End) || it.Step == 0 {
			vm.Typed.StoreBool(inst.HasValueReg, false)
			return outcomeContinue
		}
		vm.Typed.StoreI64(inst.ValueReg, it.Cur)
		it.Cur += it.Step
		vm.Typed.StoreBool(inst.HasValueReg, true)
		return outcomeContinue
	}

	if it.ArraySource == nil || it.ArrayIdx >= len(it.ArraySource.Elems) {
		vm.Typed.StoreBool(inst.HasValueReg, false)
		return outcomeContinue
	}
	vm.Boxed[inst.ValueReg] = it.ArraySource.Elems[it.ArrayIdx]
	vm.Typed.Clear(inst.ValueReg)
	it.ArrayIdx++
	vm.Typed.StoreBool(inst.HasValueReg, true)
	return outcomeContinue
}

// regValue reads reg's current value, preferring the typed cache when
// populated, else falling back to the boxed file.
func (vm *VM) regValue(reg int) Value {
	if vm.Typed.Kind[reg] != ir.KindInvalid {
		return vm.Typed.ToValue(reg)
	}
	return vm.Boxed[reg]
}
