package helper

import (
	"math"

	"github.com/jordyorel/orus-lang-sub000/ir"
)

// execLoadConst reads the constant at ConstIndex and stores it into Dst
// using the kind-specific typed-store path, per §4.3 "Load constants".
func (e *Executor) execLoadConst(vm *VM, prog *ir.Program, inst *ir.Instruction) outcome {
	if inst.ConstIndex < 0 || inst.ConstIndex >= len(prog.SourceConstants) {
		return outcomeBailout
	}
	c := prog.SourceConstants[inst.ConstIndex]

	switch inst.Op {
	case ir.OpLoadI32Const:
		vm.Typed.StoreI32(inst.Dst, int32(c.Bits))
	case ir.OpLoadI64Const:
		vm.Typed.StoreI64(inst.Dst, int64(c.Bits))
	case ir.OpLoadU32Const:
		vm.Typed.StoreU32(inst.Dst, uint32(c.Bits))
	case ir.OpLoadU64Const:
		vm.Typed.StoreU64(inst.Dst, c.Bits)
	case ir.OpLoadF64Const:
		vm.Typed.StoreF64(inst.Dst, math.Float64frombits(c.Bits))
	case ir.OpLoadBoolConst:
		vm.Typed.StoreBool(inst.Dst, c.Bits != 0)
	case ir.OpLoadStringConst:
		if c.Kind != ir.KindString {
			return outcomeBailout
		}
		vm.Boxed[inst.Dst] = StringValue(vm.internedString(int(c.Bits)))
		vm.Typed.Clear(inst.Dst)
	case ir.OpLoadValueConst:
		vm.Boxed[inst.Dst] = vm.constantToValue(c)
		vm.Typed.Clear(inst.Dst)
	default:
		return outcomeBailout
	}
	return outcomeContinue
}

// internedString and constantToValue bridge an opaque Constant handle to
// a usable Value. The VM owns the actual string/constant pool (out of
// scope, §1); this backend only needs an index -> value mapping, modeled
// here as a side table the VM populates alongside SourceConstants.
func (vm *VM) internedString(index int) string {
	if vm.StringPool == nil || index < 0 || index >= len(vm.StringPool) {
		return ""
	}
	return vm.StringPool[index]
}

func (vm *VM) constantToValue(c ir.Constant) Value {
	// ValueConst covers constants with no dedicated load opcode (e.g. a
	// boxed container constant produced ahead of time by the
	// translator); those are looked up in ValuePool by index.
	if c.Kind == ir.KindBoxed {
		if vm.ValuePool == nil || int(c.Bits) >= len(vm.ValuePool) {
			return Value{}
		}
		return vm.ValuePool[c.Bits]
	}
	return Value{Kind: c.Kind, I64: int64(c.Bits), F64: math.Float64frombits(c.Bits)}
}

// execMoveTyped copies a typed register's contents, guarded on the
// source's registered kind (§4.3 "Moves").
func (e *Executor) execMoveTyped(vm *VM, inst *ir.Instruction) outcome {
	if !vm.GuardKind(inst.Lhs, inst.ValueKind) {
		return outcomeBailout
	}
	switch inst.ValueKind {
	case ir.KindI32:
		vm.Typed.StoreI32(inst.Dst, vm.Typed.I32[inst.Lhs])
	case ir.KindI64:
		vm.Typed.StoreI64(inst.Dst, vm.Typed.I64[inst.Lhs])
	case ir.KindU32:
		vm.Typed.StoreU32(inst.Dst, vm.Typed.U32[inst.Lhs])
	case ir.KindU64:
		vm.Typed.StoreU64(inst.Dst, vm.Typed.U64[inst.Lhs])
	case ir.KindF64:
		vm.Typed.StoreF64(inst.Dst, vm.Typed.F64[inst.Lhs])
	case ir.KindBool:
		vm.Typed.StoreBool(inst.Dst, vm.Typed.Bool[inst.Lhs])
	default:
		return outcomeBailout
	}
	return outcomeContinue
}

// execMoveBoxed copies a boxed register verbatim; no guard applies since
// the boxed file has no typed-kind discipline.
func (e *Executor) execMoveBoxed(vm *VM, inst *ir.Instruction) outcome {
	vm.Boxed[inst.Dst] = vm.Boxed[inst.Lhs]
	vm.Typed.Clear(inst.Dst)
	return outcomeContinue
}
