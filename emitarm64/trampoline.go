package emitarm64

import (
	"reflect"
	"unsafe"

	"github.com/jordyorel/orus-lang-sub000/helper"
	"github.com/jordyorel/orus-lang-sub000/registry"
)

var sharedExecutor = helper.NewExecutor()

// helperTrampoline is the AArch64 linear emitter's call target for every
// helper-call lowering, the same role emitamd64.helperTrampoline plays
// for the x86-64 emitter.
func helperTrampoline(ctx *NativeContext, instIndex int64) int64 {
	vm := (*helper.VM)(ctx.VM)
	block := (*registry.NativeBlock)(ctx.Block)
	if sharedExecutor.CallOp(vm, block, int(instIndex)) {
		return 1
	}
	return 0
}

func helperTrampolineAddr() uintptr {
	return reflect.ValueOf(helperTrampoline).Pointer()
}

// stubTrampoline is the AArch64 counterpart of emitamd64's stubTrampoline:
// the call target for the "helper stub" strategy, interpreting the whole
// program through helper.Executor.Run instead of per-instruction codegen.
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
// (kind guards, the null-window guard, the fused-loop overflow check)
// that never otherwise reaches Go code, mirroring
// emitamd64.bailoutTrampoline: every helper-call failure already deopts
// inside CallOp, so only the guards this emitter checks entirely inline
// need it.
func bailoutTrampoline(ctx *NativeContext) int64 {
	vm := (*helper.VM)(ctx.VM)
	block := (*registry.NativeBlock)(ctx.Block)
	vm.BailoutNow(block)
	return 0
}

func bailoutTrampolineAddr() uintptr {
	return reflect.ValueOf(bailoutTrampoline).Pointer()
}

// entryHandle wraps a published code pointer, invoked with the same
// double-unsafe-pointer cast wdamron-wagon's compile.asmBlock.Invoke
// performs (see emitamd64/trampoline.go for the full rationale).
type entryHandle struct {
	code unsafe.Pointer
}

func (h *entryHandle) invoke(ctx *NativeContext) int64 {
	f := (uintptr)(unsafe.Pointer(&h.code))
	fp := *(*func(unsafe.Pointer) int64)(unsafe.Pointer(&f))
	return fp(unsafe.Pointer(ctx))
}

// Invoke calls published code (a pointer into an RX region produced by
// Compile or CompileHelperStub) against ctx, for use by package backend.
func Invoke(code unsafe.Pointer, ctx *NativeContext) int64 {
	h := entryHandle{code: code}
	return h.invoke(ctx)
}
