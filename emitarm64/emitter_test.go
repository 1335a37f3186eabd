package emitarm64

import (
	"testing"

	"github.com/jordyorel/orus-lang-sub000/ir"
)

func TestCompileStraightLineI64ProgramProducesCode(t *testing.T) {
	prog := &ir.Program{
		Instructions: []ir.Instruction{
			{Op: ir.OpLoadI64Const, Dst: 0, ConstIndex: 0, BytecodeOffset: 0},
			{Op: ir.OpLoadI64Const, Dst: 1, ConstIndex: 1, BytecodeOffset: 1},
			{Op: ir.OpAddI64, Dst: 2, Lhs: 0, Rhs: 1, BytecodeOffset: 2},
			{Op: ir.OpReturn, BytecodeOffset: 3},
		},
		SourceConstants: []ir.Constant{
			{Kind: ir.KindI64, Bits: 5},
			{Kind: ir.KindI64, Bits: 7},
		},
	}
	code, err := New().Compile(prog)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if len(code)%4 != 0 {
		t.Fatalf("Compile() returned %d bytes, want a multiple of 4 (A64 word size)", len(code))
	}
	if len(code) == 0 {
		t.Fatal("Compile() returned empty code")
	}
}

func TestCompileFusedLoopResolvesSelfBranch(t *testing.T) {
	prog := &ir.Program{
		Instructions: []ir.Instruction{
			{Op: ir.OpLoadI64Const, Dst: 1, ConstIndex: 0, BytecodeOffset: 0},
			{
				Op: ir.OpDecCmpJump, CounterReg: 0, LimitReg: 1, Step: -2,
				CompareKind: ir.CompareGT, JumpOffset: 1, BytecodeOffset: 1,
			},
			{Op: ir.OpReturn, BytecodeOffset: 2},
		},
		SourceConstants: []ir.Constant{{Kind: ir.KindI64, Bits: 0}},
	}
	if _, err := New().Compile(prog); err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
}

func TestCompileRoutesI32ArithmeticThroughHelperCall(t *testing.T) {
	// This emitter only inlines I64; I32 arithmetic must fall back.
	prog := &ir.Program{
		Instructions: []ir.Instruction{
			{Op: ir.OpAddI32, Dst: 0, Lhs: 1, Rhs: 2, BytecodeOffset: 0},
			{Op: ir.OpReturn, BytecodeOffset: 1},
		},
	}
	code, err := New().Compile(prog)
	if err != nil {
		t.Fatalf("Compile() error = %v, want nil (helper-call fallback)", err)
	}
	if len(code) == 0 {
		t.Fatal("Compile() returned empty code for a helper-call-lowered program")
	}
}

func TestCompileHelperStubProducesWordAlignedCode(t *testing.T) {
	code := New().CompileHelperStub()
	if len(code) == 0 {
		t.Fatal("CompileHelperStub() returned empty code")
	}
	if len(code)%4 != 0 {
		t.Fatalf("CompileHelperStub() returned %d bytes, want a multiple of 4", len(code))
	}
}

func TestCompileUnresolvedJumpFails(t *testing.T) {
	prog := &ir.Program{
		Instructions: []ir.Instruction{
			{Op: ir.OpJumpShort, JumpOffset: 999, BytecodeOffset: 0},
			{Op: ir.OpReturn, BytecodeOffset: 1},
		},
	}
	if _, err := New().Compile(prog); err == nil {
		t.Fatal("Compile() = nil error, want AssemblyError for unresolved jump")
	}
}
