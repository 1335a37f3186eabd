package memory

import (
	"fmt"
	"runtime/debug"
)

// Probe performs the startup availability check from §4.1: allocate one
// executable-capable page, make it executable, and attempt a write to
// confirm the host's W^X behavior matches this arena's assumptions (a
// write to an RX page must fault, not silently succeed). If the write
// does not fault, or allocation itself fails, Probe returns a
// human-readable diagnostic and the backend must report Unavailable.
//
// Go cannot install a POSIX sigaction-level SIGBUS/SIGSEGV handler with
// siglongjmp recovery without cgo; the idiomatic in-Go equivalent is
// runtime/debug.SetPanicOnFault, which turns a same-goroutine invalid
// memory access into a recoverable panic instead of a fatal crash. This
// probe uses that mechanism, which covers exactly the fault this check
// cares about (a write to a read/execute-only mapping).
func Probe() (err error) {
	defer debug.SetPanicOnFault(debug.SetPanicOnFault(true))

	arena := NewArena()
	region, allocErr := arena.AllocExecutable(1)
	if allocErr != nil {
		return fmt.Errorf("memory: probe alloc failed: %w", allocErr)
	}
	defer arena.ReleaseExecutable(region)

	if makeErr := arena.MakeExecutable(region); makeErr != nil {
		return fmt.Errorf("memory: probe make-executable failed: %w", makeErr)
	}

	faulted := false
	func() {
		defer func() {
			if r := recover(); r != nil {
				faulted = true
			}
		}()
		region.Bytes()[0] = 0x90
	}()

	if !faulted {
		// The write succeeded against an RX page: the host does not
		// enforce W^X the way this arena assumes. Restore RW before
		// release so the deferred Unmap below does not itself fault.
		_ = arena.SetWriteProtection(false)
		return fmt.Errorf("memory: probe write to RX page did not fault; host does not enforce W^X")
	}

	// The probe mutated protection mid-flight via the panic path above;
	// restore RW so ReleaseExecutable's unmap does not racily unmap an
	// RX page out from under another thread's expectations.
	_ = arena.SetWriteProtection(false)
	return nil
}
