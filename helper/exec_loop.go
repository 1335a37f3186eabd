package helper

import (
	"github.com/jordyorel/orus-lang-sub000/ir"
	"github.com/jordyorel/orus-lang-sub000/registry"
)

// Executor runs an ir.Program directly. It is the authoritative
// specification of IR semantics (§4.3): any emitter's output must
// observably match this interpreter for programs that neither bail out
// nor trigger deopt. It is used both as the slow-path fallback (when no
// native code exists or a linear emitter declined the program) and as the
// body the helper-stub emission strategy calls into from a thin native
// entry stub.
type Executor struct {
	strings ToStringCache
}

// NewExecutor constructs an Executor with an empty ToString cache.
func NewExecutor() *Executor {
	return &Executor{}
}

type outcome int

const (
	outcomeContinue outcome = iota
	outcomeJumped
	outcomeReturn
	outcomeBailout
	// outcomeSlowPath reports that Safepoint observed a GC, a pending
	// runtime error, or an already-sticky slow-path request (§4.5): the
	// block must exit and hand control back to the baseline interpreter,
	// but this is not a guard failure and must not invoke bailout_and_deopt
	// (the loop stays eligible for native re-entry next time).
	outcomeSlowPath
)

// Run executes block's program against vm until it returns normally, hits
// an unresolved control-flow target, or bails out. It reports true if the
// program reached a Return instruction normally.
func (e *Executor) Run(vm *VM, block *registry.NativeBlock) bool {
	prog := block.Program
	table := ir.BuildSideTable(prog)
	pc := 0

	for {
		vm.DispatchCount++
		if !vm.Safepoint() {
			return false
		}
		if pc < 0 || pc >= len(prog.Instructions) {
			vm.BailoutNow(block)
			return false
		}

		inst := &prog.Instructions[pc]

		if inst.OptFlags.Has(ir.FlagVectorHead) && pc+1 < len(prog.Instructions) {
			next := &prog.Instructions[pc+1]
			if next.OptFlags.Has(ir.FlagVectorTail) && vectorPairEligible(inst, next) {
				if !e.execVectorPair(vm, inst, next) {
					vm.BailoutNow(block)
					return false
				}
				pc += 2
				continue
			}
		}

		switch e.exec(vm, block, prog, table, inst, &pc) {
		case outcomeContinue:
			pc++
		case outcomeJumped:
			// pc already repointed by exec.
		case outcomeReturn:
			return true
		case outcomeBailout:
			vm.BailoutNow(block)
			return false
		case outcomeSlowPath:
			return false
		}
	}
}

// BailoutNow wires into the tier/deopt controller via the VM's installed
// hook (§4.6 bailout_and_deopt). Executor itself never imports the tier
// package to avoid a package cycle; the caller wires vm.Bailout (to
// backend's TierController().BailoutAndDeopt). Exported so the linear
// emitters' trampolines (the only
// other callers of bailout_and_deopt, for guard failures they detect
// entirely inline) can invoke the same hook without this package
// importing either of them back.
func (vm *VM) BailoutNow(block *registry.NativeBlock) {
	if vm.Bailout != nil {
		vm.Bailout(vm, block)
	}
}

// exec dispatches a single instruction, returning how the dispatch loop
// should proceed. pc is advanced in place for control-flow instructions.
func (e *Executor) exec(vm *VM, block *registry.NativeBlock, prog *ir.Program, table ir.SideTable, inst *ir.Instruction, pc *int) outcome {
	switch {
	case isLoadConst(inst.Op):
		return e.execLoadConst(vm, prog, inst)
	case inst.Op == ir.OpMoveTyped:
		return e.execMoveTyped(vm, inst)
	case inst.Op == ir.OpMoveBoxed:
		return e.execMoveBoxed(vm, inst)
	case inst.Op.IsArithmetic():
		return e.execArithmetic(vm, inst)
	case inst.Op.IsCompare():
		return e.execCompare(vm, inst)
	case inst.Op == ir.OpConvert:
		return e.execConvert(vm, inst)
	case inst.Op == ir.OpConcatString:
		return e.execConcatString(vm, inst)
	case inst.Op == ir.OpToString:
		return e.execToString(vm, inst)
	case inst.Op == ir.OpTypeOf:
		return e.execTypeOf(vm, inst)
	case inst.Op == ir.OpIsType:
		return e.execIsType(vm, inst)
	case inst.Op == ir.OpMakeArray:
		return e.execMakeArray(vm, inst)
	case inst.Op == ir.OpArrayPush:
		return e.execArrayPush(vm, inst)
	case inst.Op == ir.OpArrayPop:
		return e.execArrayPop(vm, inst)
	case inst.Op == ir.OpEnumNew:
		return e.execEnumNew(vm, inst)
	case inst.Op == ir.OpGetIter:
		return e.execGetIter(vm, inst)
	case inst.Op == ir.OpIterNext:
		return e.execIterNext(vm, inst)
	case inst.Op == ir.OpRange:
		return e.execRange(vm, inst)
	case inst.Op == ir.OpPrint:
		return e.execPrint(vm, inst)
	case inst.Op == ir.OpAssertEq:
		return e.execAssertEq(vm, inst)
	case inst.Op == ir.OpTimeStamp:
		return e.execTimeStamp(vm, inst)
	case inst.Op == ir.OpCallNative:
		return e.execCallNative(vm, inst)
	case inst.Op == ir.OpCallForeign:
		return e.execCallForeign(vm, inst)
	case inst.Op == ir.OpJumpShort:
		return e.execJumpShort(table, inst, pc)
	case inst.Op == ir.OpJumpBackShort:
		return e.execJumpBackShort(table, inst, pc)
	case inst.Op == ir.OpJumpIfNotShort:
		return e.execJumpIfNotShort(vm, table, inst, pc)
	case inst.Op == ir.OpLoopBack:
		return e.execLoopBack(prog, table, pc)
	case inst.Op == ir.OpReturn:
		return outcomeReturn
	case inst.Op.IsFusedLoop():
		return e.execFusedLoop(vm, table, inst, pc)
	case inst.Op == ir.OpSafepoint:
		if !vm.Safepoint() {
			return outcomeSlowPath
		}
		return outcomeContinue
	default:
		return outcomeBailout
	}
}

// CallOp executes exactly one non-control-flow instruction of block's
// program by index, reporting whether it succeeded. This is the entry
// point the x86-64 and AArch64 linear emitters call into for every
// opcode group §4.4 lowers to "a call to the runtime helper... then
// test the return value" rather than inlining (Div/Mod, conversions,
// string ops, containers, iteration, builtins, LoadStringConst/
// LoadValueConst, MoveBoxed). Control-flow opcodes are never lowered
// this way (the emitters inline or patch them directly), so the empty
// side table and discarded pc passed to exec here are never consulted.
//
// On a guard failure (outcomeBailout) this invokes bailout_and_deopt
// itself, mirroring Run: a guard failure detected inside a helper call
// is observed on the Go side only here, so nothing else would call the
// hook for it (§4.5 rule 1 — "false means the helper has called
// bailout_and_deopt"). A Safepoint op's slow-path
// request (outcomeSlowPath) is reported as failure too but must not
// deopt the block.
func (e *Executor) CallOp(vm *VM, block *registry.NativeBlock, instIndex int) bool {
	prog := block.Program
	if instIndex < 0 || instIndex >= len(prog.Instructions) {
		return false
	}
	inst := &prog.Instructions[instIndex]
	pc := instIndex
	switch e.exec(vm, block, prog, nil, inst, &pc) {
	case outcomeContinue, outcomeReturn:
		return true
	case outcomeBailout:
		vm.BailoutNow(block)
		return false
	default:
		return false
	}
}

func isLoadConst(op ir.Opcode) bool {
	switch op {
	case ir.OpLoadI32Const, ir.OpLoadI64Const, ir.OpLoadU32Const, ir.OpLoadU64Const,
		ir.OpLoadF64Const, ir.OpLoadBoolConst, ir.OpLoadStringConst, ir.OpLoadValueConst:
		return true
	}
	return false
}
