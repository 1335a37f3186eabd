package helper

import "github.com/jordyorel/orus-lang-sub000/ir"

// execConcatString implements ConcatString: coerce both operands to
// string (via the ToString cache) and store the concatenation boxed,
// per §4.3. Either side already being KindString skips the coercion.
func (e *Executor) execConcatString(vm *VM, inst *ir.Instruction) outcome {
	lhs, ok := e.ToString(vm, inst.Lhs)
	if !ok {
		return outcomeBailout
	}
	rhs, ok := e.ToString(vm, inst.Rhs)
	if !ok {
		return outcomeBailout
	}
	vm.Boxed[inst.Dst] = StringValue(lhs + rhs)
	vm.Typed.Clear(inst.Dst)
	return outcomeContinue
}

// execToString implements the ToString op, storing the boxed string
// result and populating the inline cache as a side effect (§3).
func (e *Executor) execToString(vm *VM, inst *ir.Instruction) outcome {
	s, ok := e.ToString(vm, inst.Lhs)
	if !ok {
		return outcomeBailout
	}
	vm.Boxed[inst.Dst] = StringValue(s)
	vm.Typed.Clear(inst.Dst)
	return outcomeContinue
}

// execTypeOf stores the source register's runtime type tag as a boxed
// string.
func (e *Executor) execTypeOf(vm *VM, inst *ir.Instruction) outcome {
	var kind ir.ValueKind
	if vm.Typed.Kind[inst.Lhs] != ir.KindInvalid {
		kind = vm.Typed.Kind[inst.Lhs]
	} else {
		kind = vm.Boxed[inst.Lhs].Kind
	}
	vm.Boxed[inst.Dst] = StringValue(kind.String())
	vm.Typed.Clear(inst.Dst)
	return outcomeContinue
}

// execIsType implements the IsType predicate: true if the source
// register's current kind (typed or boxed) equals inst.ValueKind.
func (e *Executor) execIsType(vm *VM, inst *ir.Instruction) outcome {
	var kind ir.ValueKind
	if vm.Typed.Kind[inst.Lhs] != ir.KindInvalid {
		kind = vm.Typed.Kind[inst.Lhs]
	} else {
		kind = vm.Boxed[inst.Lhs].Kind
	}
	vm.Typed.StoreBool(inst.Dst, kind == inst.ValueKind)
	return outcomeContinue
}
