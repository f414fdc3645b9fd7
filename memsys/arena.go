// Package memsys is the engine's slab arena, standing in for aistore's own
// memsys package (imported as "github.com/NVIDIA/aistore/memsys" in
// xact/xs/tcb.go and xact/xs/tcobjs.go, handed to xactions via
// cluster.T.PageMM().GetSlab(...)). Here it backs three spec.md
// allocations that must avoid per-call GC pressure: the queue builder's
// thread-local slabs (§4.1), the export table's per-thread regions
// (§3 "Export Record"), and the hsml loop's alternating redo queues
// (§9 "Alternating alloc slabs").
package memsys

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/cosmowalk/treewalk/cmn/debug"
)

// Arena is a single mmap-backed byte region carved into slabs. Carve
// holds the arena's mutex, so concurrent Carve calls are safe; callers
// carve once, up front, per parallel region, then write into their own
// slab without further arena calls.
type Arena struct {
	mu     sync.Mutex
	buf    []byte
	off    int
	closed bool
}

// NewArena mmaps size bytes (rounded up to a page) anonymously, outside
// the GC heap, mirroring memsys's large-slab-outside-the-heap design.
func NewArena(size int) (*Arena, error) {
	if size <= 0 {
		size = 1
	}
	pageSize := unix.Getpagesize()
	rounded := ((size + pageSize - 1) / pageSize) * pageSize
	buf, err := unix.Mmap(-1, 0, rounded, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, err
	}
	return &Arena{buf: buf}, nil
}

// Carve returns a slice of n bytes from the arena. The bytes are zero on
// a fresh arena; after Reset they hold whatever was written there
// before, since Reset does not clear the backing pages. Fatal
// (spec.md §4.1 "if a slab would overflow its capacity, this is a
// programming error") if the arena is exhausted.
func (a *Arena) Carve(n int) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	debug.Assert(!a.closed, "memsys: carve from closed arena")
	debug.Assertf(a.off+n <= len(a.buf), "memsys: arena overflow: off=%d n=%d cap=%d", a.off, n, len(a.buf))
	s := a.buf[a.off : a.off+n : a.off+n]
	a.off = a.off + n
	return s
}

// Reset rewinds the carve cursor to the start without unmapping,
// reusing the backing pages for the next iteration's allocations.
func (a *Arena) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.off = 0
}

// Cap returns the arena's total byte capacity.
func (a *Arena) Cap() int { return len(a.buf) }

// Used returns bytes carved so far.
func (a *Arena) Used() int { return a.off }

// Free munmaps the arena. Call once, in `finish`.
func (a *Arena) Free() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return unix.Munmap(a.buf)
}

// AlternatingPair models spec.md §9's "two arena regions toggled by
// iteration parity": the hsml loop needs both a shrinking redo queue
// (this pass) and a growing one (next pass) alive simultaneously while
// compacting, so a single arena would fragment between them.
type AlternatingPair struct {
	arenas [2]*Arena
}

// NewAlternatingPair allocates two arenas of the given size each.
func NewAlternatingPair(size int) (*AlternatingPair, error) {
	p := &AlternatingPair{}
	for i := range p.arenas {
		a, err := NewArena(size)
		if err != nil {
			for j := 0; j < i; j++ {
				_ = p.arenas[j].Free()
			}
			return nil, err
		}
		p.arenas[i] = a
	}
	return p, nil
}

// Current returns the arena for this iteration's parity (iter%2).
func (p *AlternatingPair) Current(iter int) *Arena { return p.arenas[iter%2] }

// Other returns the arena for the opposite parity, i.e. the one holding
// last iteration's (about to be superseded) redo queue.
func (p *AlternatingPair) Other(iter int) *Arena { return p.arenas[(iter+1)%2] }

// Free releases both arenas.
func (p *AlternatingPair) Free() error {
	var first error
	for _, a := range p.arenas {
		if err := a.Free(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
