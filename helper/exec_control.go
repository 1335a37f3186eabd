package helper

import "github.com/jordyorel/orus-lang-sub000/ir"

// execJumpShort resolves JumpOffset against the side table and
// unconditionally repoints pc, per §4.3 "Control flow". An unresolved
// target is a guard failure.
func (e *Executor) execJumpShort(table ir.SideTable, inst *ir.Instruction, pc *int) outcome {
	idx, ok := table.Resolve(inst.JumpOffset)
	if !ok {
		return outcomeBailout
	}
	*pc = idx
	return outcomeJumped
}

// execJumpBackShort is JumpShort's backward-branch counterpart; the
// target is expected to already have been emitted (it lies at or before
// the current position) but resolution uses the same side table lookup
// in this interpreter, which has no emission-order constraint.
func (e *Executor) execJumpBackShort(table ir.SideTable, inst *ir.Instruction, pc *int) outcome {
	idx, ok := table.Resolve(inst.JumpOffset)
	if !ok {
		return outcomeBailout
	}
	*pc = idx
	return outcomeJumped
}

// execJumpIfNotShort branches when the predicate register is false,
// else falls through.
func (e *Executor) execJumpIfNotShort(vm *VM, table ir.SideTable, inst *ir.Instruction, pc *int) outcome {
	if !vm.GuardKind(inst.Lhs, ir.KindBool) {
		return outcomeBailout
	}
	if vm.Typed.Bool[inst.Lhs] {
		return outcomeContinue
	}
	idx, ok := table.Resolve(inst.JumpOffset)
	if !ok {
		return outcomeBailout
	}
	*pc = idx
	return outcomeJumped
}

// execLoopBack jumps to the program's loop header, resolved via
// loop_start_offset.
func (e *Executor) execLoopBack(prog *ir.Program, table ir.SideTable, pc *int) outcome {
	idx, ok := table.LoopHeaderIndex(prog)
	if !ok {
		return outcomeBailout
	}
	*pc = idx
	return outcomeJumped
}
