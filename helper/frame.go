package helper

import (
	"fmt"

	"github.com/jordyorel/orus-lang-sub000/registry"
)

// frameCanary is the fixed magic value written into every Frame on push
// and checked on every pop, per §4.5 "Frame canary". A mismatch means
// native code corrupted the frame stack and the process aborts rather
// than continuing with undefined state.
const frameCanary = uint64(0x4f525553_4a495421) // "ORUSJIT!" as bytes

// Frame is the stack-allocated record pushed by Enter and linked into
// vm.NativeFrameTop, per §3 "Native Frame".
type Frame struct {
	canary uint64

	Block *registry.NativeBlock
	Prev  *Frame

	// Window and RegisterWindowVersion snapshot the active typed-register
	// window and its version at push time, used to detect a window swap
	// underneath a suspended native call.
	Window                *TypedWindow
	RegisterWindowVersion uint64

	SlowPathRequested bool

	trailingCanary uint64
}

// PushFrame allocates and links a new frame for block atop vm's frame
// stack.
func (vm *VM) PushFrame(block *registry.NativeBlock) *Frame {
	f := &Frame{
		canary:                frameCanary,
		trailingCanary:        frameCanary,
		Block:                 block,
		Prev:                  vm.NativeFrameTop,
		Window:                &vm.Typed,
		RegisterWindowVersion: vm.RegisterWindowVersion,
	}
	vm.NativeFrameTop = f
	return f
}

// PopFrame verifies f's canaries and those of the frame it is popping back
// to, then restores vm.NativeFrameTop to f.Prev. A canary mismatch is
// unrecoverable: §4.5 requires aborting with a diagnostic rather than
// returning control to potentially corrupted state.
func (vm *VM) PopFrame(f *Frame) {
	if f.canary != frameCanary || f.trailingCanary != frameCanary {
		panic(fmt.Sprintf("jit: frame canary violation on block %v: native code corrupted the frame stack", blockName(f.Block)))
	}
	if f.Prev != nil && (f.Prev.canary != frameCanary || f.Prev.trailingCanary != frameCanary) {
		panic(fmt.Sprintf("jit: frame canary violation in caller of block %v", blockName(f.Block)))
	}
	if vm.NativeFrameTop != f {
		panic("jit: frame stack is not LIFO: PopFrame called out of order")
	}
	vm.NativeFrameTop = f.Prev
}

func blockName(b *registry.NativeBlock) string {
	if b == nil {
		return "<nil>"
	}
	if b.DebugName != "" {
		return b.DebugName
	}
	return b.ID.String()
}
