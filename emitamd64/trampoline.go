package emitamd64

import (
	"reflect"
	"unsafe"

	"github.com/jordyorel/orus-lang-sub000/helper"
	"github.com/jordyorel/orus-lang-sub000/registry"
)

// helperTrampoline is the single call target every helper-call lowering
// (§4.4: "emit a call to the runtime helper... then test the return
// value") invokes. Generated code passes a NativeContext pointer and an
// instruction index; this function recovers the typed vm/block pair and
// delegates to helper.Executor.CallOp, returning a 0/1 status in the
// same spot the caller will read it from (see callHelper in emitter.go).
//
// Any function whose address is taken this way receives an
// automatically generated ABI0-compatible entry stub from the Go
// toolchain, which is what makes it safe to invoke via a raw CALL to
// the address below using the stack-based argument convention the
// teacher's own code already assumes in emitPreamble/emitWasmStackLoad
// (reading arguments at fixed [SP+offset] slots).
var sharedExecutor = helper.NewExecutor()

func helperTrampoline(ctx *NativeContext, instIndex int64) int64 {
	vm := (*helper.VM)(ctx.VM)
	block := (*registry.NativeBlock)(ctx.Block)
	if sharedExecutor.CallOp(vm, block, int(instIndex)) {
		return 1
	}
	return 0
}

// helperTrampolineAddr returns helperTrampoline's entry address, the
// same trick wdamron-wagon's asmBlock.Invoke performs in reverse (there,
// a raw code pointer is cast to a Go func value; here, a Go func value's
// underlying code pointer is read out).
func helperTrampolineAddr() uintptr {
	return reflect.ValueOf(helperTrampoline).Pointer()
}

// stubTrampoline is the call target for the "helper stub" compilation
// strategy (§6: "skip the linear emitter; always emit thin stubs that
// call the IR interpreter"): rather than assembling one helper call per
// instruction, the published code is a single call into this function,
// which runs the entire program through helper.Executor.Run.
func stubTrampoline(ctx *NativeContext) int64 {
	vm := (*helper.VM)(ctx.VM)
	block := (*registry.NativeBlock)(ctx.Block)
	if sharedExecutor.Run(vm, block) {
		return 1
	}
	return 0
}

func stubTrampolineAddr() uintptr {
	return reflect.ValueOf(stubTrampoline).Pointer()
}

// bailoutTrampoline is the call target for a pure-inline guard failure
// that never otherwise reaches Go code (the inline kind guards, the
// null-window guard and the fused-loop overflow check: see
// emitBailoutDeopt in emitter.go). A guard failure detected inside
// helper.Executor.CallOp already calls vm.BailoutNow there, so this
// trampoline serves only the guards the emitter checks entirely inline.
func bailoutTrampoline(ctx *NativeContext) int64 {
	vm := (*helper.VM)(ctx.VM)
	block := (*registry.NativeBlock)(ctx.Block)
	vm.BailoutNow(block)
	return 0
}

func bailoutTrampolineAddr() uintptr {
	return reflect.ValueOf(bailoutTrampoline).Pointer()
}

// entryHandle wraps a published code pointer so it can be invoked as a
// Go func value. invoke uses the same double-unsafe-pointer cast as
// wdamron-wagon's compile.asmBlock.Invoke: take the address of the
// struct field holding the raw code pointer, reinterpret that address
// as a *func, and dereference it once to get a func value whose code
// pointer is the published entry.
type entryHandle struct {
	code unsafe.Pointer
}

// invoke calls into the published native code region, per the JITEntry
// invariant (§3) that entry_point is a pointer into the RX region at
// code_ptr. The entry-point shape is fn(ctx *NativeContext) (status int64).
func (h *entryHandle) invoke(ctx *NativeContext) int64 {
	f := (uintptr)(unsafe.Pointer(&h.code))
	fp := *(*func(unsafe.Pointer) int64)(unsafe.Pointer(&f))
	return fp(unsafe.Pointer(ctx))
}

// Invoke calls published code (a pointer into an RX region produced by
// Compile or CompileHelperStub) against ctx, for use by package backend
// once it has copied the emitted bytes into executable memory.
func Invoke(code unsafe.Pointer, ctx *NativeContext) int64 {
	h := entryHandle{code: code}
	return h.invoke(ctx)
}
