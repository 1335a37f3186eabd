package memory

import "unsafe"

// addrOf returns the address of the first byte of b, or 0 for an empty
// slice. Used only for diagnostics (Region.Base()); the backend never
// does pointer arithmetic on the returned value outside this package.
func addrOf(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}
