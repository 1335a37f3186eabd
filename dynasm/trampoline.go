package dynasm

import "unsafe"

// entryHandle wraps a published code pointer, invoked with the same
// double-unsafe-pointer cast wdamron-wagon's compile.asmBlock.Invoke
// performs and emitamd64/emitarm64 repeat for their own published code.
type entryHandle struct {
	code unsafe.Pointer
}

func (h *entryHandle) invoke(ctx *NativeContext) int64 {
	f := uintptr(unsafe.Pointer(&h.code))
	fp := *(*func(unsafe.Pointer) int64)(unsafe.Pointer(&f))
	return fp(unsafe.Pointer(ctx))
}

// Invoke calls published code (a pointer into an RX region produced by
// Compile) against ctx, for use by package backend.
func Invoke(code unsafe.Pointer, ctx *NativeContext) int64 {
	h := entryHandle{code: code}
	return h.invoke(ctx)
}
