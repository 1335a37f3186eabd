//go:build windows

package memory

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// AllocExecutable allocates a page-aligned region via VirtualAlloc, per
// §4.1: "rounds size up to page size; allocates via
// VirtualAlloc(EXECUTE_READWRITE) on Windows." Unlike the POSIX path this
// backend starts the Windows region RWX because VirtualProtect (not
// VirtualAlloc) is the primitive used for later RW<->RX transitions, and
// re-committing with a different protection would invalidate the
// returned pointer's identity; SetWriteProtection still enforces that no
// caller observes the region as executable until MakeExecutable runs.
func (a *Arena) AllocExecutable(size int) (*Region, error) {
	capacity := roundUpToPage(size)

	addr, err := windows.VirtualAlloc(0, uintptr(capacity), windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_EXECUTE_READWRITE)
	if err != nil {
		return nil, fmt.Errorf("memory: VirtualAlloc %d bytes: %w", capacity, err)
	}

	mem := unsafe.Slice((*byte)(unsafe.Pointer(addr)), capacity)
	r := &Region{
		base: addr,
		size: capacity,
		mem:  mem,
	}

	a.mu.Lock()
	a.regions = append(a.regions, r)
	a.mu.Unlock()
	return r, nil
}

// SetWriteProtection transitions all regions between PAGE_READWRITE and
// PAGE_EXECUTE_READ via VirtualProtect.
func (a *Arena) SetWriteProtection(enable bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	transitioned := make([]*Region, 0, len(a.regions))
	for _, r := range a.regions {
		if r.currentlyExecutable == enable {
			continue
		}
		if err := virtualProtectRegion(r, enable); err != nil {
			for _, done := range transitioned {
				_ = virtualProtectRegion(done, !enable)
			}
			return fmt.Errorf("memory: VirtualProtect region at %#x: %w", r.base, err)
		}
		r.currentlyExecutable = enable
		transitioned = append(transitioned, r)
	}
	return nil
}

func virtualProtectRegion(r *Region, executable bool) error {
	prot := uint32(windows.PAGE_READWRITE)
	if executable {
		prot = windows.PAGE_EXECUTE_READ
	}
	var old uint32
	return windows.VirtualProtect(r.base, uintptr(r.size), prot, &old)
}

// MakeExecutable transitions a single region to PAGE_EXECUTE_READ.
func (a *Arena) MakeExecutable(r *Region) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := virtualProtectRegion(r, true); err != nil {
		return fmt.Errorf("memory: make executable at %#x: %w", r.base, err)
	}
	r.currentlyExecutable = true
	FlushICache(r.base, r.size)
	return nil
}

// ReleaseExecutable unregisters and frees r via VirtualFree.
func (a *Arena) ReleaseExecutable(r *Region) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, candidate := range a.regions {
		if candidate == r {
			a.regions = append(a.regions[:i], a.regions[i+1:]...)
			break
		}
	}
	return windows.VirtualFree(r.base, 0, windows.MEM_RELEASE)
}

// FlushICache is a no-op on amd64 Windows, the only Windows target this
// backend supports as first-class (§1 Non-goals).
func FlushICache(base uintptr, size int) {
	_ = base
	_ = size
}
