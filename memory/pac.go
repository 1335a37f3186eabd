package memory

// SignEntryPoint runs a freshly published code address through the
// platform's pointer-authentication signer before it is used as a call
// target. On targets without pointer authentication this is the
// identity; the darwin/arm64 build carries the signing shim (see
// jit_write_protect_darwin_arm64.go).
func SignEntryPoint(fn uintptr) uintptr {
	return signEntryPoint(fn)
}
