package helper

import (
	"math/rand"
	"testing"

	"github.com/jordyorel/orus-lang-sub000/ir"
	"github.com/jordyorel/orus-lang-sub000/registry"
)

func runProgram(t *testing.T, vm *VM, insts []ir.Instruction, consts []ir.Constant) bool {
	t.Helper()
	prog := &ir.Program{Instructions: insts, SourceConstants: consts}
	block := &registry.NativeBlock{Program: prog}
	return NewExecutor().Run(vm, block)
}

func TestExecAddI32(t *testing.T) {
	vm := NewVM(4)
	insts := []ir.Instruction{
		{Op: ir.OpLoadI32Const, Dst: 0, ConstIndex: 0},
		{Op: ir.OpLoadI32Const, Dst: 1, ConstIndex: 1},
		{Op: ir.OpAddI32, ValueKind: ir.KindI32, Dst: 2, Lhs: 0, Rhs: 1},
		{Op: ir.OpReturn},
	}
	consts := []ir.Constant{{Kind: ir.KindI32, Bits: 2}, {Kind: ir.KindI32, Bits: 40}}
	if ok := runProgram(t, vm, insts, consts); !ok {
		t.Fatalf("expected normal return")
	}
	if vm.Typed.I32[2] != 42 {
		t.Fatalf("got %d, want 42", vm.Typed.I32[2])
	}
}

func TestExecDivByZeroBails(t *testing.T) {
	vm := NewVM(4)
	bailed := false
	vm.Bailout = func(*VM, *registry.NativeBlock) { bailed = true }
	insts := []ir.Instruction{
		{Op: ir.OpLoadI32Const, Dst: 0, ConstIndex: 0},
		{Op: ir.OpLoadI32Const, Dst: 1, ConstIndex: 1},
		{Op: ir.OpDivI32, ValueKind: ir.KindI32, Dst: 2, Lhs: 0, Rhs: 1},
		{Op: ir.OpReturn},
	}
	consts := []ir.Constant{{Kind: ir.KindI32, Bits: 10}, {Kind: ir.KindI32, Bits: 0}}
	if ok := runProgram(t, vm, insts, consts); ok {
		t.Fatalf("expected bailout, got normal return")
	}
	if !bailed {
		t.Fatalf("expected bailout hook to fire")
	}
}

func TestExecFusedLoopCountsDown(t *testing.T) {
	vm := NewVM(4)
	// counter starts at 3, limit 0, step -1, compare GT: the op branches
	// back to itself while counter > limit, so it runs 3 times and leaves
	// the counter at 0.
	insts := []ir.Instruction{
		{Op: ir.OpLoadI64Const, Dst: 0, ConstIndex: 0, BytecodeOffset: 0},  // counter
		{Op: ir.OpLoadI64Const, Dst: 1, ConstIndex: 1, BytecodeOffset: 1},  // limit
		{Op: ir.OpDecCmpJump, CounterReg: 0, LimitReg: 1, Step: -1,
			CompareKind: ir.CompareGT, JumpOffset: 2, BytecodeOffset: 2},
		{Op: ir.OpReturn, BytecodeOffset: 3},
	}
	consts := []ir.Constant{{Kind: ir.KindI64, Bits: 3}, {Kind: ir.KindI64, Bits: 0}}
	ok := runProgram(t, vm, insts, consts)
	if !ok {
		t.Fatalf("expected normal return once counter reaches limit")
	}
	if vm.Typed.I64[0] != 0 {
		t.Fatalf("counter = %d, want 0", vm.Typed.I64[0])
	}
}

func TestExecVectorPairI32(t *testing.T) {
	vm := NewVM(8)
	insts := []ir.Instruction{
		{Op: ir.OpLoadI32Const, Dst: 0, ConstIndex: 0},
		{Op: ir.OpLoadI32Const, Dst: 1, ConstIndex: 1},
		{Op: ir.OpLoadI32Const, Dst: 2, ConstIndex: 2},
		{Op: ir.OpLoadI32Const, Dst: 3, ConstIndex: 3},
		{Op: ir.OpAddI32, ValueKind: ir.KindI32, Dst: 4, Lhs: 0, Rhs: 2, OptFlags: ir.FlagVectorHead},
		{Op: ir.OpAddI32, ValueKind: ir.KindI32, Dst: 5, Lhs: 1, Rhs: 3, OptFlags: ir.FlagVectorTail},
		{Op: ir.OpReturn},
	}
	consts := []ir.Constant{
		{Kind: ir.KindI32, Bits: 1}, {Kind: ir.KindI32, Bits: 2},
		{Kind: ir.KindI32, Bits: 10}, {Kind: ir.KindI32, Bits: 20},
	}
	if ok := runProgram(t, vm, insts, consts); !ok {
		t.Fatalf("expected normal return")
	}
	if vm.Typed.I32[4] != 11 || vm.Typed.I32[5] != 22 {
		t.Fatalf("got (%d, %d), want (11, 22)", vm.Typed.I32[4], vm.Typed.I32[5])
	}
}

// TestVectorPairMatchesScalarDifferential runs the pair path and the
// scalar path over a million random input pairs and requires identical
// results, the differential form of the vector-pair ordering rule: the
// pair must match two scalar operations performed in index order.
func TestVectorPairMatchesScalarDifferential(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	e := NewExecutor()
	pairVM, scalarVM := NewVM(8), NewVM(8)

	head := ir.Instruction{Op: ir.OpAddI32, ValueKind: ir.KindI32, Dst: 4, Lhs: 0, Rhs: 2, OptFlags: ir.FlagVectorHead}
	tail := ir.Instruction{Op: ir.OpAddI32, ValueKind: ir.KindI32, Dst: 5, Lhs: 1, Rhs: 3, OptFlags: ir.FlagVectorTail}
	if !vectorPairEligible(&head, &tail) {
		t.Fatal("fixture pair is not vector-eligible")
	}

	for i := 0; i < 1_000_000; i++ {
		a, b, c, d := rng.Int31(), rng.Int31(), rng.Int31(), rng.Int31()
		for _, vm := range []*VM{pairVM, scalarVM} {
			vm.Typed.StoreI32(0, a)
			vm.Typed.StoreI32(1, b)
			vm.Typed.StoreI32(2, c)
			vm.Typed.StoreI32(3, d)
		}
		if !e.execVectorPair(pairVM, &head, &tail) {
			t.Fatalf("iteration %d: vector pair bailed out", i)
		}
		if e.execArithmetic(scalarVM, &head) != outcomeContinue ||
			e.execArithmetic(scalarVM, &tail) != outcomeContinue {
			t.Fatalf("iteration %d: scalar path bailed out", i)
		}
		if pairVM.Typed.I32[4] != scalarVM.Typed.I32[4] || pairVM.Typed.I32[5] != scalarVM.Typed.I32[5] {
			t.Fatalf("iteration %d: pair (%d, %d) != scalar (%d, %d) for inputs (%d+%d, %d+%d)",
				i, pairVM.Typed.I32[4], pairVM.Typed.I32[5],
				scalarVM.Typed.I32[4], scalarVM.Typed.I32[5], a, c, b, d)
		}
	}
}

// TestSafepointObservesGCRequestsSlowPath is the safepoint-observes-GC
// scenario: a GC at a safepoint flushes typed state, marks the active
// frame's slow-path flag, and makes the block return early without
// deopting.
func TestSafepointObservesGCRequestsSlowPath(t *testing.T) {
	vm := NewVM(4)
	calls := 0
	vm.RunGC = func(*VM) bool {
		calls++
		return calls > 1 // the first safepoint passes, the second observes a GC
	}
	f := vm.PushFrame(nil)

	insts := []ir.Instruction{
		{Op: ir.OpLoadI32Const, Dst: 0, ConstIndex: 0},
		{Op: ir.OpReturn},
	}
	consts := []ir.Constant{{Kind: ir.KindI32, Bits: 9}}
	if ok := runProgram(t, vm, insts, consts); ok {
		t.Fatal("expected early return once the safepoint observed a GC")
	}
	if !f.SlowPathRequested {
		t.Fatal("frame.SlowPathRequested = false, want true after GC at safepoint")
	}
	if vm.Boxed[0].AsI32() != 9 {
		t.Fatalf("boxed reg0 = %d, want 9 (typed state flushed before GC)", vm.Boxed[0].AsI32())
	}
	if vm.TypeDeopts != 0 {
		t.Fatalf("vm.TypeDeopts = %d, want 0: a safepoint exit is not a deopt", vm.TypeDeopts)
	}
	vm.PopFrame(f)
}

func TestExecConvertI32ToF64(t *testing.T) {
	vm := NewVM(4)
	insts := []ir.Instruction{
		{Op: ir.OpLoadI32Const, Dst: 0, ConstIndex: 0},
		{Op: ir.OpConvert, FromKind: ir.KindI32, ValueKind: ir.KindF64, Dst: 1, Lhs: 0},
		{Op: ir.OpReturn},
	}
	consts := []ir.Constant{{Kind: ir.KindI32, Bits: 7}}
	if ok := runProgram(t, vm, insts, consts); !ok {
		t.Fatalf("expected normal return")
	}
	if vm.Typed.F64[1] != 7.0 {
		t.Fatalf("got %v, want 7.0", vm.Typed.F64[1])
	}
}

func TestExecConvertOutOfRangeBails(t *testing.T) {
	vm := NewVM(4)
	bailed := false
	vm.Bailout = func(*VM, *registry.NativeBlock) { bailed = true }
	insts := []ir.Instruction{
		{Op: ir.OpLoadI64Const, Dst: 0, ConstIndex: 0},
		{Op: ir.OpConvert, FromKind: ir.KindI64, ValueKind: ir.KindI32, Dst: 1, Lhs: 0},
		{Op: ir.OpReturn},
	}
	consts := []ir.Constant{{Kind: ir.KindI64, Bits: uint64(1) << 40}}
	if ok := runProgram(t, vm, insts, consts); ok {
		t.Fatalf("expected bailout")
	}
	if !bailed {
		t.Fatalf("expected bailout hook to fire")
	}
}

func TestExecConcatString(t *testing.T) {
	vm := NewVM(4)
	vm.StringPool = []string{"hello "}
	insts := []ir.Instruction{
		{Op: ir.OpLoadStringConst, Dst: 0, ConstIndex: 0},
		{Op: ir.OpLoadI32Const, Dst: 1, ConstIndex: 1},
		{Op: ir.OpConcatString, Dst: 2, Lhs: 0, Rhs: 1},
		{Op: ir.OpReturn},
	}
	consts := []ir.Constant{{Kind: ir.KindString, Bits: 0}, {Kind: ir.KindI32, Bits: 42}}
	if ok := runProgram(t, vm, insts, consts); !ok {
		t.Fatalf("expected normal return")
	}
	if vm.Boxed[2].Str != "hello 42" {
		t.Fatalf("got %q, want %q", vm.Boxed[2].Str, "hello 42")
	}
}

func TestExecMakeArrayPushPop(t *testing.T) {
	vm := NewVM(8)
	insts := []ir.Instruction{
		{Op: ir.OpLoadI32Const, Dst: 0, ConstIndex: 0},
		{Op: ir.OpLoadI32Const, Dst: 1, ConstIndex: 1},
		{Op: ir.OpMakeArray, Dst: 2, FirstArgReg: 0, ArgCount: 2},
		{Op: ir.OpLoadI32Const, Dst: 3, ConstIndex: 2},
		{Op: ir.OpArrayPush, Dst: 4, Lhs: 2, Rhs: 3},
		{Op: ir.OpArrayPop, Dst: 5, Lhs: 4},
		{Op: ir.OpReturn},
	}
	consts := []ir.Constant{{Kind: ir.KindI32, Bits: 1}, {Kind: ir.KindI32, Bits: 2}, {Kind: ir.KindI32, Bits: 3}}
	if ok := runProgram(t, vm, insts, consts); !ok {
		t.Fatalf("expected normal return")
	}
	if vm.Boxed[5].AsI32() != 3 {
		t.Fatalf("popped %d, want 3", vm.Boxed[5].AsI32())
	}
	if len(vm.Boxed[4].Array.Elems) != 2 {
		t.Fatalf("array len = %d, want 2", len(vm.Boxed[4].Array.Elems))
	}
}

func TestExecGetIterFromCount(t *testing.T) {
	vm := NewVM(8)
	insts := []ir.Instruction{
		{Op: ir.OpLoadI64Const, Dst: 0, ConstIndex: 0},
		{Op: ir.OpGetIter, Dst: 1, Lhs: 0},
		{Op: ir.OpIterNext, ValueReg: 2, IteratorReg: 1, HasValueReg: 3},
		{Op: ir.OpIterNext, ValueReg: 2, IteratorReg: 1, HasValueReg: 3},
		{Op: ir.OpIterNext, ValueReg: 2, IteratorReg: 1, HasValueReg: 3},
		{Op: ir.OpReturn},
	}
	consts := []ir.Constant{{Kind: ir.KindI64, Bits: 2}}
	if ok := runProgram(t, vm, insts, consts); !ok {
		t.Fatalf("expected normal return")
	}
	if vm.Typed.Bool[3] != false {
		t.Fatalf("expected exhausted iterator on third call")
	}
}

func TestExecAssertEqRecordsFailure(t *testing.T) {
	vm := NewVM(4)
	insts := []ir.Instruction{
		{Op: ir.OpLoadI32Const, Dst: 0, ConstIndex: 0},
		{Op: ir.OpLoadI32Const, Dst: 1, ConstIndex: 1},
		{Op: ir.OpAssertEq, Lhs: 0, Rhs: 1},
		{Op: ir.OpReturn},
	}
	consts := []ir.Constant{{Kind: ir.KindI32, Bits: 1}, {Kind: ir.KindI32, Bits: 2}}
	if ok := runProgram(t, vm, insts, consts); !ok {
		t.Fatalf("expected normal return")
	}
	if !vm.AssertFailed {
		t.Fatalf("expected AssertFailed to be set")
	}
}

func TestExecCallNativeFlushesSpillRange(t *testing.T) {
	vm := NewVM(4)
	var sawBoxedZero Value
	vm.Natives = []NativeFunc{
		func(vm *VM, first, count int) (Value, bool) {
			sawBoxedZero = vm.Boxed[0]
			return I32Value(99), true
		},
	}
	insts := []ir.Instruction{
		{Op: ir.OpLoadI32Const, Dst: 0, ConstIndex: 0},
		{Op: ir.OpCallNative, Dst: 1, FirstArgReg: 0, ArgCount: 1, SpillBase: 0, SpillCount: 1},
		{Op: ir.OpReturn},
	}
	consts := []ir.Constant{{Kind: ir.KindI32, Bits: 5}}
	if ok := runProgram(t, vm, insts, consts); !ok {
		t.Fatalf("expected normal return")
	}
	if sawBoxedZero.AsI32() != 5 {
		t.Fatalf("native saw boxed reg0 = %d, want 5 (spill range flushed)", sawBoxedZero.AsI32())
	}
	if vm.Boxed[1].AsI32() != 99 {
		t.Fatalf("result = %d, want 99", vm.Boxed[1].AsI32())
	}
}

func TestGuardKindBoxedFallbackWritesThrough(t *testing.T) {
	vm := NewVM(4)
	// Register 0 holds an I64 only in the boxed file; the typed cache has
	// no kind recorded. A typed move must recover it via the boxed
	// fallback and write through into the typed cache.
	vm.Boxed[0] = I64Value(77)
	insts := []ir.Instruction{
		{Op: ir.OpMoveTyped, ValueKind: ir.KindI64, Dst: 1, Lhs: 0},
		{Op: ir.OpReturn},
	}
	if ok := runProgram(t, vm, insts, nil); !ok {
		t.Fatalf("expected normal return via boxed fallback")
	}
	if vm.Typed.I64[1] != 77 {
		t.Fatalf("dst = %d, want 77", vm.Typed.I64[1])
	}
	if vm.Typed.Kind[0] != ir.KindI64 {
		t.Fatalf("source kind = %v, want write-through to I64", vm.Typed.Kind[0])
	}
}

func TestGuardKindMismatchBails(t *testing.T) {
	vm := NewVM(4)
	bailed := false
	vm.Bailout = func(*VM, *registry.NativeBlock) { bailed = true }
	insts := []ir.Instruction{
		{Op: ir.OpLoadI32Const, Dst: 0, ConstIndex: 0},
		{Op: ir.OpMoveTyped, ValueKind: ir.KindI64, Dst: 1, Lhs: 0},
		{Op: ir.OpReturn},
	}
	consts := []ir.Constant{{Kind: ir.KindI32, Bits: 5}}
	if ok := runProgram(t, vm, insts, consts); ok {
		t.Fatalf("expected bailout on I64 move from I32-typed source")
	}
	if !bailed {
		t.Fatalf("expected bailout hook to fire")
	}
}

func TestFrameCanaryViolationPanics(t *testing.T) {
	vm := NewVM(2)
	f := vm.PushFrame(nil)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on canary violation")
		}
	}()
	_ = f
	other := &Frame{}
	vm.PopFrame(other)
}
