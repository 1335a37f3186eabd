// Package dynasm implements the DynASM Fallback Emitter (spec §2/§6): a
// hand-rolled byte-patching x86-64 emitter for the narrow subset of
// programs too trivial to warrant the full golang-asm-backed Linear
// Emitter, selected when ORUS_JIT_FORCE_DYNASM is set or the Linear
// Emitter is unavailable.
//
// Grounded on launix-de/memcp's scm-jit: jitReturnLiteral and
// jitNthArgument build machine code as raw []byte literals with the
// immediate bytes patched in after the fact (via a direct unsafe write in
// the teacher; this package uses encoding/binary on the same idea),
// rather than going through an assembler builder. jitCompileProc's
// tag-based dispatch (literal return / local-var passthrough / nothing
// else) is the precedent for this package's equally narrow program-shape
// recognizer.
package dynasm

import (
	"unsafe"

	"github.com/jordyorel/orus-lang-sub000/helper"
	"github.com/jordyorel/orus-lang-sub000/registry"
)

// NativeContext mirrors emitamd64.NativeContext's layout; each backend
// package owns its own copy rather than sharing one, consistent with how
// emitamd64 and emitarm64 each carry their own glue. This emitter's
// compiled code only ever touches I64/Kind/Dirty (its supported program
// shapes never reach another typed kind), but the struct keeps the full
// field set so a single BuildContext/entryHandle pair works across every
// emitter the backend's strategy cascade might select.
type NativeContext struct {
	I32, I64, U32, U64, F64, Bool, Kind, Dirty unsafe.Pointer
	VM, Block                                  unsafe.Pointer
	HelperCall                                 uintptr
}

const (
	ctxOffI64   = 1 * 8
	ctxOffKind  = 6 * 8
	ctxOffDirty = 7 * 8
)

// BuildContext rebuilds a NativeContext for vm/block, matching
// emitamd64.BuildContext field-for-field.
func BuildContext(vm *helper.VM, block *registry.NativeBlock) *NativeContext {
	return &NativeContext{
		I32:   slicePtr(vm.Typed.I32),
		I64:   slicePtr(vm.Typed.I64),
		U32:   slicePtr(vm.Typed.U32),
		U64:   slicePtr(vm.Typed.U64),
		F64:   slicePtr(vm.Typed.F64),
		Bool:  slicePtr(vm.Typed.Bool),
		Kind:  slicePtr(vm.Typed.Kind),
		Dirty: slicePtr(vm.Typed.Dirty),
		VM:    unsafe.Pointer(vm),
		Block: unsafe.Pointer(block),
	}
}

func slicePtr[T any](s []T) unsafe.Pointer {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Pointer(&s[0])
}
