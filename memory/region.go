// Package memory implements the Executable Memory Arena (spec §4.1): a
// page-aligned, W^X-disciplined allocator for native code blocks, built on
// the teacher's mmap-backed bump allocator (exec/internal/compile.MMapAllocator
// in github.com/go-interpreter/wagon) and generalized to support explicit
// RW<->RX protection transitions across Linux, macOS (including MAP_JIT on
// Apple Silicon) and Windows.
package memory

import "sync"

// pageSize is the allocation granularity. Real page sizes vary (4KiB on
// most platforms, 16KiB on Apple Silicon); rounding up to this constant
// keeps allocations aligned on every target the backend supports. Concrete
// syscalls additionally round to the OS's actual page size.
const pageSize = 16 * 1024

// Region tracks one executable allocation's lifecycle, matching the
// ExecutableRegion data model in spec §3: "(base, size, uses_mmap,
// requires_write_protect, currently_executable)".
type Region struct {
	base                 uintptr
	size                 int
	mem                  []byte
	usesMmap             bool
	requiresWriteProtect bool
	currentlyExecutable  bool
}

// Base returns the region's starting address.
func (r *Region) Base() uintptr { return r.base }

// Size returns the region's byte length.
func (r *Region) Size() int { return r.size }

// Bytes exposes the region's backing memory. Callers must not retain a
// slice across a protection transition performed by another goroutine;
// the backend is single-threaded with respect to compile/release (§5), so
// this is safe under that discipline.
func (r *Region) Bytes() []byte { return r.mem }

// Executable reports whether the region is currently mapped RX.
func (r *Region) Executable() bool { return r.currentlyExecutable }

// Arena owns the set of live executable regions and serializes all
// mutations to that set and to their protection state behind a single
// mutex, per §4.1 invariant (c) and §5 ("region list mutations are
// serialized by a mutex").
type Arena struct {
	mu      sync.Mutex
	regions []*Region
}

// NewArena constructs an empty arena.
func NewArena() *Arena {
	return &Arena{}
}

// Close releases every region still registered with the arena, mirroring
// the teacher's MMapAllocator.Close (which unmaps every tracked block on
// backend teardown).
func (a *Arena) Close() error {
	a.mu.Lock()
	regions := a.regions
	a.regions = nil
	a.mu.Unlock()

	var firstErr error
	for _, r := range regions {
		if err := a.ReleaseExecutable(r); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Len reports the number of currently registered regions, used by tests
// and by the registry's bijection checks.
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.regions)
}

func roundUpToPage(size int) int {
	if size <= 0 {
		return pageSize
	}
	return (size + pageSize - 1) &^ (pageSize - 1)
}
