package helper

import (
	"math"

	"github.com/jordyorel/orus-lang-sub000/ir"
)

// execConvert implements OpConvert across the five numeric kinds (§4.3
// "Conversions"). A conversion that would lose information the spec
// defines as observable -- a float with a fractional part or out of the
// target integer's range, or an integer that cannot round-trip through
// the target exactly -- is a guard failure routed to bailout rather than
// a silent truncation, so the native emitters can mirror this with a
// cheap range check instead of reproducing C-style implicit-cast UB.
func (e *Executor) execConvert(vm *VM, inst *ir.Instruction) outcome {
	if !vm.GuardKind(inst.Lhs, inst.FromKind) {
		return outcomeBailout
	}

	switch inst.FromKind {
	case ir.KindI32:
		return convertFromI64(vm, inst, int64(vm.Typed.I32[inst.Lhs]), true)
	case ir.KindI64:
		return convertFromI64(vm, inst, vm.Typed.I64[inst.Lhs], true)
	case ir.KindU32:
		return convertFromI64(vm, inst, int64(vm.Typed.U32[inst.Lhs]), false)
	case ir.KindU64:
		v := vm.Typed.U64[inst.Lhs]
		if inst.ValueKind == ir.KindF64 {
			vm.Typed.StoreF64(inst.Dst, float64(v))
			return outcomeContinue
		}
		if v > math.MaxInt64 {
			return outcomeBailout
		}
		return convertFromI64(vm, inst, int64(v), false)
	case ir.KindF64:
		return convertFromF64(vm, inst, vm.Typed.F64[inst.Lhs])
	default:
		return outcomeBailout
	}
}

// convertFromI64 converts a value already widened to int64 (signExtended
// indicates whether the source was signed, relevant only for documentation
// here since Go's int64 carries the bits either way) to the target kind.
func convertFromI64(vm *VM, inst *ir.Instruction, v int64, signExtended bool) outcome {
	_ = signExtended
	switch inst.ValueKind {
	case ir.KindI32:
		if v < math.MinInt32 || v > math.MaxInt32 {
			return outcomeBailout
		}
		vm.Typed.StoreI32(inst.Dst, int32(v))
	case ir.KindI64:
		vm.Typed.StoreI64(inst.Dst, v)
	case ir.KindU32:
		if v < 0 || v > math.MaxUint32 {
			return outcomeBailout
		}
		vm.Typed.StoreU32(inst.Dst, uint32(v))
	case ir.KindU64:
		if v < 0 {
			return outcomeBailout
		}
		vm.Typed.StoreU64(inst.Dst, uint64(v))
	case ir.KindF64:
		vm.Typed.StoreF64(inst.Dst, float64(v))
	default:
		return outcomeBailout
	}
	return outcomeContinue
}

// convertFromF64 converts a float to an integer kind (truncating toward
// zero, guard-failing on NaN/Inf/out-of-range/non-integral values per
// the kind's exactness rule) or leaves it as F64 (a no-op convert, which
// the translator should not emit but which is handled defensively).
func convertFromF64(vm *VM, inst *ir.Instruction, v float64) outcome {
	if inst.ValueKind == ir.KindF64 {
		vm.Typed.StoreF64(inst.Dst, v)
		return outcomeContinue
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
		return outcomeBailout
	}
	switch inst.ValueKind {
	case ir.KindI32:
		if v < math.MinInt32 || v > math.MaxInt32 {
			return outcomeBailout
		}
		vm.Typed.StoreI32(inst.Dst, int32(v))
	case ir.KindI64:
		if v < math.MinInt64 || v >= math.MaxInt64 {
			return outcomeBailout
		}
		vm.Typed.StoreI64(inst.Dst, int64(v))
	case ir.KindU32:
		if v < 0 || v > math.MaxUint32 {
			return outcomeBailout
		}
		vm.Typed.StoreU32(inst.Dst, uint32(v))
	case ir.KindU64:
		if v < 0 || v >= math.MaxUint64 {
			return outcomeBailout
		}
		vm.Typed.StoreU64(inst.Dst, uint64(v))
	default:
		return outcomeBailout
	}
	return outcomeContinue
}
