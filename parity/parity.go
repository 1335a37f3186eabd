// Package parity implements the Parity & Debug component (spec §2/§8):
// pure accounting over an ir.Program's instruction mix, used by tests and
// tooling to confirm a target architecture can represent every opcode a
// program uses before compilation is attempted.
//
// Grounded on the teacher's compile.Metrics / compile/native.Metrics
// structs ({MemoryReads, MemoryWrites, StackReads, StackWrites,
// IntegerOps, FloatOps}), generalized from wagon's stack-machine
// categories to this spec's typed-register opcode groups, per the round-
// trip law in §8: memory_ops + arithmetic_ops + comparison_ops +
// safepoints + conversion_ops + helper_ops == total categorized
// instructions.
package parity

import (
	"fmt"

	"github.com/jordyorel/orus-lang-sub000/ir"
)

// Target names the architecture collect_parity checks opcode coverage
// against. It mirrors backend.Target's value set without importing
// package backend, so backend can depend on parity (for
// PublishDisassembly) without a cycle; Backend.Availability().Target
// converts to this type via ParityTarget.
type Target int

const (
	TargetUnknown Target = iota
	TargetAMD64
	TargetARM64
)

func (t Target) String() string {
	switch t {
	case TargetAMD64:
		return "x86_64"
	case TargetARM64:
		return "AArch64"
	default:
		return "unknown"
	}
}

// Report is the per-category instruction count §8's round-trip law is
// defined over.
type Report struct {
	MemoryOps     int
	ArithmeticOps int
	ComparisonOps int
	ConversionOps int
	Safepoints    int
	HelperOps     int
}

// Total returns the sum of every category, which §8 requires to equal
// the number of instructions CollectParity examined.
func (r Report) Total() int {
	return r.MemoryOps + r.ArithmeticOps + r.ComparisonOps + r.ConversionOps + r.Safepoints + r.HelperOps
}

// UnsupportedTargetError reports that target has no backend
// implementation at all, per §6's `collect_parity` contract: "Returns
// Unsupported if any opcode/kind cannot be handled by target." This
// backend's architecture coverage is all-or-nothing per target (every
// opcode this IR defines either inlines or falls back to the uniform
// helper call both linear emitters provide), so the only way a target
// fails to handle an opcode is for the target itself to have no
// implementation.
type UnsupportedTargetError struct {
	Target Target
}

func (e *UnsupportedTargetError) Error() string {
	return fmt.Sprintf("parity: target %s has no backend implementation", e.Target)
}

// CollectParity classifies every instruction in prog into exactly one of
// Report's six categories and returns the tally, or an
// *UnsupportedTargetError if target cannot run any program at all.
func CollectParity(prog *ir.Program, target Target) (Report, error) {
	if target != TargetAMD64 && target != TargetARM64 {
		return Report{}, &UnsupportedTargetError{Target: target}
	}

	var r Report
	for i := range prog.Instructions {
		categorize(&r, prog.Instructions[i].Op)
	}
	return r, nil
}

// categorize buckets op into exactly one Report field. The switch is
// structured to mirror ir/opcode.go's own grouping comments, so adding an
// opcode group there has an obvious corresponding arm here.
func categorize(r *Report, op ir.Opcode) {
	switch {
	case isMemoryOp(op):
		r.MemoryOps++
	case op.IsArithmetic():
		r.ArithmeticOps++
	case op.IsCompare():
		r.ComparisonOps++
	case op == ir.OpConvert:
		r.ConversionOps++
	case op == ir.OpSafepoint:
		r.Safepoints++
	default:
		r.HelperOps++
	}
}

func isMemoryOp(op ir.Opcode) bool {
	switch op {
	case ir.OpLoadI32Const, ir.OpLoadI64Const, ir.OpLoadU32Const, ir.OpLoadU64Const,
		ir.OpLoadF64Const, ir.OpLoadBoolConst, ir.OpLoadStringConst, ir.OpLoadValueConst,
		ir.OpMoveTyped, ir.OpMoveBoxed:
		return true
	}
	return false
}
