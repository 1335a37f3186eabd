package backend

import (
	"fmt"
	"math"
	"os"
	"testing"

	"github.com/jordyorel/orus-lang-sub000/helper"
	"github.com/jordyorel/orus-lang-sub000/ir"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	b := New(nil, nil)
	t.Cleanup(func() { _ = b.Close() })
	if b.Availability().Status != StatusOk {
		t.Skipf("backend unavailable on this host: %s", b.Availability().Message)
	}
	return b
}

func withEnv(t *testing.T, key, value string) {
	t.Helper()
	prev, had := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("Setenv(%s) error = %v", key, err)
	}
	t.Cleanup(func() {
		if had {
			os.Setenv(key, prev)
		} else {
			os.Unsetenv(key)
		}
	})
}

func TestAvailabilityReportsHostArchitecture(t *testing.T) {
	b := New(nil, nil)
	defer b.Close()

	avail := b.Availability()
	if avail.Status == StatusOk && avail.Target != TargetAMD64 && avail.Target != TargetARM64 {
		t.Fatalf("Availability() = %+v, want a concrete target when status is Ok", avail)
	}
}

func TestForceUnsupportedDisablesCompilation(t *testing.T) {
	withEnv(t, "ORUS_JIT_FORCE_UNSUPPORTED", "1")
	b := New(nil, nil)
	defer b.Close()

	if b.Availability().Status != StatusUnsupported {
		t.Fatalf("Availability().Status = %v, want StatusUnsupported", b.Availability().Status)
	}
	if _, err := b.CompileNoop(); err == nil {
		t.Fatal("CompileNoop() error = nil, want error when forced unsupported")
	}
}

func TestCompileNoopPublishesAnEnterableEntry(t *testing.T) {
	b := newTestBackend(t)

	entry, err := b.CompileNoop()
	if err != nil {
		t.Fatalf("CompileNoop() error = %v", err)
	}
	if entry.CodePtr == 0 {
		t.Fatal("CompileNoop() entry has zero CodePtr")
	}
	if entry.CodeSize == 0 {
		t.Fatal("CompileNoop() entry has zero CodeSize")
	}

	vm := helper.NewVM(8)
	if ok := b.Enter(entry, vm); !ok {
		t.Fatal("Enter() = false, want true for a bare Return program")
	}
}

func TestCompileIRForcedHelperStubRuns(t *testing.T) {
	withEnv(t, "ORUS_JIT_FORCE_HELPER_STUB", "1")
	b := newTestBackend(t)

	prog := &ir.Program{
		Instructions: []ir.Instruction{
			{Op: ir.OpLoadI64Const, Dst: 0, ConstIndex: 0},
			{Op: ir.OpReturn},
		},
		SourceConstants: []ir.Constant{{Kind: ir.KindI64, Bits: 42}},
	}
	entry, err := b.CompileIR(prog)
	if err != nil {
		t.Fatalf("CompileIR() error = %v", err)
	}
	if entry.Strategy != StrategyHelperStub {
		t.Fatalf("Strategy = %v, want StrategyHelperStub", entry.Strategy)
	}

	vm := helper.NewVM(8)
	if ok := b.Enter(entry, vm); !ok {
		t.Fatal("Enter() = false, want true")
	}
	if got := vm.Typed.I64[0]; got != 42 {
		t.Fatalf("vm.Typed.I64[0] = %d, want 42", got)
	}
}

func TestCompileIRForcedDynASMOnAMD64(t *testing.T) {
	b := newTestBackend(t)
	if b.target != TargetAMD64 {
		t.Skip("dynasm strategy is amd64-only")
	}
	withEnv(t, "ORUS_JIT_FORCE_DYNASM", "1")
	b = newTestBackend(t)

	prog := &ir.Program{
		Instructions: []ir.Instruction{
			{Op: ir.OpLoadI64Const, Dst: 0, ConstIndex: 0},
			{Op: ir.OpReturn},
		},
		SourceConstants: []ir.Constant{{Kind: ir.KindI64, Bits: 7}},
	}
	entry, err := b.CompileIR(prog)
	if err != nil {
		t.Fatalf("CompileIR() error = %v", err)
	}
	if entry.Strategy != StrategyDynASM {
		t.Fatalf("Strategy = %v, want StrategyDynASM", entry.Strategy)
	}

	vm := helper.NewVM(8)
	if ok := b.Enter(entry, vm); !ok {
		t.Fatal("Enter() = false, want true")
	}
	if got := vm.Typed.I64[0]; got != 7 {
		t.Fatalf("vm.Typed.I64[0] = %d, want 7", got)
	}
}

func TestReleaseEntryRemovesBlockFromRegistry(t *testing.T) {
	b := newTestBackend(t)

	entry, err := b.CompileNoop()
	if err != nil {
		t.Fatalf("CompileNoop() error = %v", err)
	}
	before := b.reg.Len()
	if err := b.ReleaseEntry(entry); err != nil {
		t.Fatalf("ReleaseEntry() error = %v", err)
	}
	if got := b.reg.Len(); got != before-1 {
		t.Fatalf("registry.Len() after release = %d, want %d", got, before-1)
	}
	if len(b.regions) != 0 {
		t.Fatalf("len(regions) = %d, want 0 after releasing the only entry", len(b.regions))
	}
}

func TestInvalidateReleasesMatchingBlock(t *testing.T) {
	b := newTestBackend(t)

	prog := &ir.Program{
		Instructions:   []ir.Instruction{{Op: ir.OpReturn}},
		FunctionIndex:  3,
		LoopIndex:      1,
	}
	if _, err := b.CompileIR(prog); err != nil {
		t.Fatalf("CompileIR() error = %v", err)
	}

	trigger := helper.DeoptTrigger{FunctionIndex: 3, LoopIndex: 1}
	if ok := b.Invalidate(trigger); !ok {
		t.Fatal("Invalidate() = false, want true for a live block")
	}
	if ok := b.Invalidate(trigger); ok {
		t.Fatal("Invalidate() = true on second call, want false (already gone)")
	}
}

func TestFlushReleasesEveryEntry(t *testing.T) {
	b := newTestBackend(t)

	for i := 0; i < 3; i++ {
		prog := &ir.Program{
			Instructions:  []ir.Instruction{{Op: ir.OpReturn}},
			FunctionIndex: i,
		}
		if _, err := b.CompileIR(prog); err != nil {
			t.Fatalf("CompileIR() error = %v", err)
		}
	}
	b.Flush()
	if got := b.reg.Len(); got != 0 {
		t.Fatalf("registry.Len() after Flush = %d, want 0", got)
	}
	if got := len(b.regions); got != 0 {
		t.Fatalf("len(regions) after Flush = %d, want 0", got)
	}
}

func TestVTableExposesStableSurface(t *testing.T) {
	b := newTestBackend(t)

	vt := b.VTable()
	entry, err := b.CompileNoop()
	if err != nil {
		t.Fatalf("CompileNoop() error = %v", err)
	}
	vm := helper.NewVM(8)
	if ok := vt.Enter(entry, vm); !ok {
		t.Fatal("VTable.Enter() = false, want true")
	}
	vt.Flush()
	if got := b.reg.Len(); got != 0 {
		t.Fatalf("registry.Len() after VTable.Flush = %d, want 0", got)
	}
}

func TestBailoutAndDeoptWiresIntoVM(t *testing.T) {
	b := newTestBackend(t)

	prog := &ir.Program{
		Instructions:  []ir.Instruction{{Op: ir.OpReturn}},
		FunctionIndex: 9,
		LoopIndex:     2,
	}
	entry, err := b.CompileIR(prog)
	if err != nil {
		t.Fatalf("CompileIR() error = %v", err)
	}

	vm := helper.NewVM(8)
	vm.Bailout = b.TierController().BailoutAndDeopt
	vm.Bailout(vm, entry.block)

	if vm.TypeDeopts != 1 {
		t.Fatalf("vm.TypeDeopts = %d, want 1", vm.TypeDeopts)
	}
	if !vm.PendingInvalidate {
		t.Fatal("vm.PendingInvalidate = false, want true after bailout")
	}
	if vm.PendingTrigger.FunctionIndex != 9 || vm.PendingTrigger.LoopIndex != 2 {
		t.Fatalf("vm.PendingTrigger = %+v, want {FunctionIndex:9 LoopIndex:2 ...}", vm.PendingTrigger)
	}
}

func TestEnterRunsFrameProtocol(t *testing.T) {
	b := newTestBackend(t)

	entry, err := b.CompileNoop()
	if err != nil {
		t.Fatalf("CompileNoop() error = %v", err)
	}
	vm := helper.NewVM(8)
	if ok := b.Enter(entry, vm); !ok {
		t.Fatal("Enter() = false, want true")
	}
	if vm.NativeFrameTop != nil {
		t.Fatal("vm.NativeFrameTop != nil after Enter returned: frame not popped")
	}
}

// TestEnterUnwindsPendingErrorThroughTryFrames drives §4.5's
// error-propagation rule end to end: a native call sets vm.LastError, the
// next safepoint requests the slow path, and the dispatcher side of Enter
// unwinds into the innermost try frame on return.
func TestEnterUnwindsPendingErrorThroughTryFrames(t *testing.T) {
	withEnv(t, "ORUS_JIT_FORCE_HELPER_STUB", "1")
	b := newTestBackend(t)

	prog := &ir.Program{
		Instructions: []ir.Instruction{
			{Op: ir.OpCallNative, Dst: 0, NativeIndex: 0},
			{Op: ir.OpReturn},
		},
	}
	entry, err := b.CompileIR(prog)
	if err != nil {
		t.Fatalf("CompileIR() error = %v", err)
	}

	vm := helper.NewVM(8)
	vm.Bailout = b.TierController().BailoutAndDeopt
	vm.TryFrames = []helper.TryFrame{{HandlerIP: 42, CatchReg: 3}}
	vm.Natives = []helper.NativeFunc{
		func(vm *helper.VM, first, count int) (helper.Value, bool) {
			vm.LastError = fmt.Errorf("user exception")
			return helper.Value{}, true
		},
	}

	if ok := b.Enter(entry, vm); ok {
		t.Fatal("Enter() = true, want false with a pending error")
	}
	if vm.LastError != nil {
		t.Fatalf("vm.LastError = %v, want cleared after unwinding to a handler", vm.LastError)
	}
	if vm.PendingResume == nil || vm.PendingResume.HandlerIP != 42 || vm.PendingResume.CatchReg != 3 {
		t.Fatalf("vm.PendingResume = %+v, want {HandlerIP:42 CatchReg:3}", vm.PendingResume)
	}
	if !vm.NativeSlowPathPending {
		t.Fatal("vm.NativeSlowPathPending = false, want sticky slow path after error unwind")
	}
	if vm.TypeDeopts != 0 {
		t.Fatalf("vm.TypeDeopts = %d, want 0: an error unwind is not a guard failure", vm.TypeDeopts)
	}
}

// TestEnterFusedLoopRunsToCompletion is the typed-add loop scenario: a
// counter incremented by a fused IncCmpJump until it reaches its limit,
// entered through a linear-emitter-compiled entry.
func TestEnterFusedLoopRunsToCompletion(t *testing.T) {
	withEnv(t, "ORUS_JIT_FORCE_LINEAR_EMITTER", "1")
	b := newTestBackend(t)

	prog := &ir.Program{
		Instructions: []ir.Instruction{
			{Op: ir.OpLoadI64Const, Dst: 0, ConstIndex: 0, BytecodeOffset: 0},
			{Op: ir.OpLoadI64Const, Dst: 1, ConstIndex: 1, BytecodeOffset: 1},
			{
				Op: ir.OpIncCmpJump, CounterReg: 0, LimitReg: 1, Step: 1,
				CompareKind: ir.CompareLT, JumpOffset: 2, BytecodeOffset: 2,
			},
			{Op: ir.OpReturn, BytecodeOffset: 3},
		},
		SourceConstants: []ir.Constant{
			{Kind: ir.KindI64, Bits: 0},
			{Kind: ir.KindI64, Bits: 1000},
		},
	}
	entry, err := b.CompileIR(prog)
	if err != nil {
		t.Fatalf("CompileIR() error = %v", err)
	}
	if entry.Strategy != StrategyLinearEmitter {
		t.Fatalf("Strategy = %v, want StrategyLinearEmitter", entry.Strategy)
	}

	vm := helper.NewVM(8)
	vm.Bailout = b.TierController().BailoutAndDeopt
	if ok := b.Enter(entry, vm); !ok {
		t.Fatal("Enter() = false, want true")
	}
	if got := vm.Typed.I64[0]; got != 1000 {
		t.Fatalf("counter = %d, want 1000", got)
	}
	if vm.TypeDeopts != 0 {
		t.Fatalf("vm.TypeDeopts = %d, want 0", vm.TypeDeopts)
	}
}

// TestEnterHelperCallGuardFailureDeopts drives a real divide-by-zero
// guard failure through a published, linear-emitter-compiled entry via
// Enter (not a manual vm.Bailout call): OpDivI32 always lowers to a
// helper call on both architectures (isDivMod in emitamd64/lowering.go,
// the AArch64 equivalent), so this exercises helper.Executor.CallOp's
// bailout path end to end.
func TestEnterHelperCallGuardFailureDeopts(t *testing.T) {
	withEnv(t, "ORUS_JIT_FORCE_LINEAR_EMITTER", "1")
	b := newTestBackend(t)

	prog := &ir.Program{
		Instructions: []ir.Instruction{
			{Op: ir.OpLoadI32Const, Dst: 0, ConstIndex: 0, BytecodeOffset: 0},
			{Op: ir.OpLoadI32Const, Dst: 1, ConstIndex: 1, BytecodeOffset: 1},
			{Op: ir.OpDivI32, Dst: 2, Lhs: 0, Rhs: 1, ValueKind: ir.KindI32, BytecodeOffset: 2},
			{Op: ir.OpReturn, BytecodeOffset: 3},
		},
		SourceConstants: []ir.Constant{
			{Kind: ir.KindI32, Bits: 10},
			{Kind: ir.KindI32, Bits: 0},
		},
		FunctionIndex: 4,
		LoopIndex:     1,
	}
	entry, err := b.CompileIR(prog)
	if err != nil {
		t.Fatalf("CompileIR() error = %v", err)
	}
	if entry.Strategy != StrategyLinearEmitter {
		t.Fatalf("Strategy = %v, want StrategyLinearEmitter", entry.Strategy)
	}

	vm := helper.NewVM(8)
	vm.Bailout = b.TierController().BailoutAndDeopt

	if ok := b.Enter(entry, vm); ok {
		t.Fatal("Enter() = true, want false for a divide-by-zero guard failure")
	}
	if vm.TypeDeopts != 1 {
		t.Fatalf("vm.TypeDeopts = %d, want 1", vm.TypeDeopts)
	}
	if !vm.PendingInvalidate {
		t.Fatal("vm.PendingInvalidate = false, want true after a native guard failure")
	}
	if vm.PendingTrigger.FunctionIndex != 4 || vm.PendingTrigger.LoopIndex != 1 {
		t.Fatalf("vm.PendingTrigger = %+v, want {FunctionIndex:4 LoopIndex:1 ...}", vm.PendingTrigger)
	}
}

// TestEnterFusedLoopOverflowGuardDeopts drives a counter-overflow guard
// failure through the fused IncCmpJump lowering, a pure-inline guard on
// amd64 that never calls into CallOp (emitGuardJNE_JO in
// emitamd64/lowering.go), so it reaches bailout_and_deopt through its
// own Go call (emitBailoutDeopt).
func TestEnterFusedLoopOverflowGuardDeopts(t *testing.T) {
	withEnv(t, "ORUS_JIT_FORCE_LINEAR_EMITTER", "1")
	b := newTestBackend(t)
	if b.target != TargetAMD64 {
		t.Skip("fused-loop overflow guard coverage is amd64-only")
	}

	prog := &ir.Program{
		Instructions: []ir.Instruction{
			{Op: ir.OpLoadI64Const, Dst: 0, ConstIndex: 0, BytecodeOffset: 0},
			{Op: ir.OpLoadI64Const, Dst: 1, ConstIndex: 1, BytecodeOffset: 1},
			{
				Op: ir.OpIncCmpJump, CounterReg: 0, LimitReg: 1, Step: 1,
				CompareKind: ir.CompareLT, JumpOffset: 2, BytecodeOffset: 2,
			},
			{Op: ir.OpReturn, BytecodeOffset: 3},
		},
		SourceConstants: []ir.Constant{
			{Kind: ir.KindI64, Bits: uint64(math.MaxInt64)},
			{Kind: ir.KindI64, Bits: 0},
		},
		FunctionIndex: 5,
		LoopIndex:     3,
	}
	entry, err := b.CompileIR(prog)
	if err != nil {
		t.Fatalf("CompileIR() error = %v", err)
	}
	if entry.Strategy != StrategyLinearEmitter {
		t.Fatalf("Strategy = %v, want StrategyLinearEmitter", entry.Strategy)
	}

	vm := helper.NewVM(8)
	vm.Bailout = b.TierController().BailoutAndDeopt

	if ok := b.Enter(entry, vm); ok {
		t.Fatal("Enter() = true, want false for a counter-overflow guard failure")
	}
	if vm.TypeDeopts != 1 {
		t.Fatalf("vm.TypeDeopts = %d, want 1", vm.TypeDeopts)
	}
	if !vm.PendingInvalidate {
		t.Fatal("vm.PendingInvalidate = false, want true after a native guard failure")
	}
	if vm.PendingTrigger.FunctionIndex != 5 || vm.PendingTrigger.LoopIndex != 3 {
		t.Fatalf("vm.PendingTrigger = %+v, want {FunctionIndex:5 LoopIndex:3 ...}", vm.PendingTrigger)
	}
}
