package helper

import "github.com/jordyorel/orus-lang-sub000/ir"

// FlushTypedRange flushes dirty typed registers in [base, base+count) back
// to the boxed register file, per §4.5 rule 3: "Before any GC-triggering
// op, flushes dirty typed registers of the active window back to the
// boxed register file." CallNative/CallForeign lowering in both linear
// emitters invoke the equivalent of this before transferring control.
func (vm *VM) FlushTypedRange(base, count int) {
	for i := base; i < base+count && i < vm.Typed.Len(); i++ {
		if !vm.Typed.Dirty[i] {
			continue
		}
		vm.Boxed[i] = vm.Typed.ToValue(i)
		vm.Typed.Dirty[i] = false
	}
}

// FlushAllTyped flushes every dirty typed register, used by Safepoint.
func (vm *VM) FlushAllTyped() {
	vm.FlushTypedRange(0, vm.Typed.Len())
}

// DiscardTypedState invalidates every typed-register slot and clears the
// dirty mask, leaving the boxed register file — the last safepoint's
// snapshot — as the sole authority. Called on bailout, so the baseline
// interpreter never resumes against speculative typed state a native
// block wrote after its last safepoint.
func (vm *VM) DiscardTypedState() {
	for i := range vm.Typed.Kind {
		vm.Typed.Kind[i] = ir.KindInvalid
		vm.Typed.Dirty[i] = false
	}
}

// Safepoint implements the protocol in §4.5: snapshot (flush) the active
// typed-register window, run GC and profiling, then observe whether a GC
// actually occurred. If so, or if a slow path / runtime error is already
// pending, the current frame is marked to request the slow path and the
// caller should unwind to the baseline interpreter.
//
// Ordering: this call is documented as a full acquire-release fence with
// respect to the GC thread even though the VM is single-threaded (§4.5);
// that has no observable effect in this single-threaded Go implementation
// beyond the flush-before-GC ordering already enforced by doing the flush
// first, but the comment preserves the spec's stated intent for a future
// concurrent collector.
func (vm *VM) Safepoint() (continueExecution bool) {
	vm.FlushAllTyped()

	collected := false
	if vm.RunGC != nil {
		collected = vm.RunGC(vm)
	}
	if vm.RunProfile != nil {
		vm.RunProfile(vm)
	}

	if collected || vm.NativeSlowPathPending || vm.LastError != nil {
		if vm.NativeFrameTop != nil {
			vm.NativeFrameTop.SlowPathRequested = true
		}
		return false
	}
	return true
}
