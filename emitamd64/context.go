// Package emitamd64 implements the x86-64 Linear Emitter (spec §4.4):
// straight-line native code for a hot loop's IR program, with every
// instruction the emitter does not natively support routed through a
// helper call, and the interpreter reachable via a bailout edge.
//
// The generation style follows the teacher's AMD64Backend.Build
// (wdamron-wagon/exec/internal/compile/amd64.go): a golang-asm
// asm.Builder assembling one obj.Prog per micro-operation, with fixed
// reserved registers for the handful of base pointers every instruction
// needs, generalized from wagon's single wasm-stack pointer (R10) to
// the typed-register-window pointer struct this spec's ops actually
// touch.
package emitamd64

import (
	"unsafe"

	"github.com/jordyorel/orus-lang-sub000/helper"
	"github.com/jordyorel/orus-lang-sub000/registry"
)

// NativeContext is the flat, non-Go-managed pointer struct native code
// reaches through. Generated code never dereferences Go struct fields
// directly (Go does not guarantee field offsets across compiler
// versions); instead the backend rebuilds this struct before every
// entry-point invocation and native code reads its fixed-offset fields,
// mirroring the spec's own description of "&vm->typed_regs and the
// typed-I32 pointer" as a struct of per-kind base pointers.
type NativeContext struct {
	I32   unsafe.Pointer
	I64   unsafe.Pointer
	U32   unsafe.Pointer
	U64   unsafe.Pointer
	F64   unsafe.Pointer
	Bool  unsafe.Pointer
	Kind  unsafe.Pointer
	Dirty unsafe.Pointer

	VM    unsafe.Pointer // *helper.VM, passed through to helper calls unmodified.
	Block unsafe.Pointer // *registry.NativeBlock, ditto.

	// HelperCall holds the code address of helperTrampoline, materialized
	// via reflect at BuildContext time so generated code can CALL it
	// without the emitter package depending on reflect itself.
	HelperCall uintptr
}

// Offsets of NativeContext's fields, in declaration order, each a
// pointer width (8 bytes on amd64). The emitter uses these as
// [ctxReg+offset] addressing rather than unsafe.Offsetof at codegen
// time so the constants are visible at a glance next to their use.
const (
	ctxOffI32        = 0 * 8
	ctxOffI64        = 1 * 8
	ctxOffU32        = 2 * 8
	ctxOffU64        = 3 * 8
	ctxOffF64        = 4 * 8
	ctxOffBool       = 5 * 8
	ctxOffKind       = 6 * 8
	ctxOffDirty      = 7 * 8
	ctxOffVM         = 8 * 8
	ctxOffBlock      = 9 * 8
	ctxOffHelperCall = 10 * 8
)

// BuildContext rebuilds a NativeContext for vm/block immediately before
// invoking a published native entry point. Typed-window slices are
// assumed not to be reallocated while native code runs (the register
// window is sized once at VM construction, per helper.NewVM).
func BuildContext(vm *helper.VM, block *registry.NativeBlock) *NativeContext {
	return &NativeContext{
		I32:        slicePtr(vm.Typed.I32),
		I64:        slicePtr(vm.Typed.I64),
		U32:        slicePtr(vm.Typed.U32),
		U64:        slicePtr(vm.Typed.U64),
		F64:        slicePtr(vm.Typed.F64),
		Bool:       slicePtr(vm.Typed.Bool),
		Kind:       slicePtr(vm.Typed.Kind),
		Dirty:      slicePtr(vm.Typed.Dirty),
		VM:         unsafe.Pointer(vm),
		Block:      unsafe.Pointer(block),
		HelperCall: helperTrampolineAddr(),
	}
}

func slicePtr[T any](s []T) unsafe.Pointer {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Pointer(&s[0])
}
