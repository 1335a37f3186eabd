// Package emitarm64 implements the AArch64 Linear Emitter (spec §4.4): a
// narrower hot-path subset than emitamd64 (I64 load/move/arithmetic/
// compare, the fused loop ops, control flow and safepoints; everything
// else -- including all I32/U32/U64/F64 arithmetic and compare -- is
// routed through the same helper-call fallback), hand-encoding raw A64
// instruction words rather than using a builder library, since no pack
// example wires a golang-asm-style assembler for this architecture.
//
// Grounded on zhubert-rush/jit.ARM64CodeGen (other_examples): a
// byte-buffer generator with a labels map and a relocation list, patched
// in a single pass once every label position is known.
package emitarm64

import (
	"unsafe"

	"github.com/jordyorel/orus-lang-sub000/helper"
	"github.com/jordyorel/orus-lang-sub000/registry"
)

// NativeContext mirrors emitamd64.NativeContext's layout; both linear
// emitters rebuild the same flat, non-Go-managed pointer struct from a
// helper.VM/registry.NativeBlock pair immediately before invoking a
// published entry point.
type NativeContext struct {
	I32   unsafe.Pointer
	I64   unsafe.Pointer
	U32   unsafe.Pointer
	U64   unsafe.Pointer
	F64   unsafe.Pointer
	Bool  unsafe.Pointer
	Kind  unsafe.Pointer
	Dirty unsafe.Pointer

	VM    unsafe.Pointer
	Block unsafe.Pointer

	HelperCall uintptr
}

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
// invoking a published native entry point, mirroring
// emitamd64.BuildContext.
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
