package emitamd64

import (
	"testing"

	"github.com/jordyorel/orus-lang-sub000/ir"
)

func straightLineAddProgram() *ir.Program {
	return &ir.Program{
		Instructions: []ir.Instruction{
			{Op: ir.OpLoadI32Const, Dst: 0, ConstIndex: 0, BytecodeOffset: 0},
			{Op: ir.OpLoadI32Const, Dst: 1, ConstIndex: 1, BytecodeOffset: 1},
			{Op: ir.OpAddI32, Dst: 2, Lhs: 0, Rhs: 1, BytecodeOffset: 2},
			{Op: ir.OpReturn, BytecodeOffset: 3},
		},
		SourceConstants: []ir.Constant{
			{Kind: ir.KindI32, Bits: 2},
			{Kind: ir.KindI32, Bits: 3},
		},
	}
}

func TestCompileStraightLineProgramProducesCode(t *testing.T) {
	code, err := New().Compile(straightLineAddProgram())
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if len(code) == 0 {
		t.Fatal("Compile() returned empty code for a non-trivial program")
	}
}

func TestCompileFusedLoopResolvesSelfBranch(t *testing.T) {
	prog := &ir.Program{
		Instructions: []ir.Instruction{
			{Op: ir.OpLoadI64Const, Dst: 0, ConstIndex: 0, BytecodeOffset: 0},
			{
				Op: ir.OpDecCmpJump, CounterReg: 0, LimitReg: 1, Step: -1,
				CompareKind: ir.CompareGT, JumpOffset: 1, BytecodeOffset: 1,
			},
			{Op: ir.OpReturn, BytecodeOffset: 2},
		},
		SourceConstants: []ir.Constant{{Kind: ir.KindI64, Bits: 3}},
	}
	code, err := New().Compile(prog)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if len(code) == 0 {
		t.Fatal("Compile() returned empty code")
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

func TestCompileHelperStubProducesCode(t *testing.T) {
	code := New().CompileHelperStub()
	if len(code) == 0 {
		t.Fatal("CompileHelperStub() returned empty code")
	}
}

func TestCompileRoutesUnsupportedKindThroughHelperCall(t *testing.T) {
	prog := &ir.Program{
		Instructions: []ir.Instruction{
			{Op: ir.OpConcatString, Dst: 0, Lhs: 1, Rhs: 2, BytecodeOffset: 0},
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
