package memsys

import "unsafe"

// CarveT carves a []T of length n (zeroed only as Carve's bytes are) directly out of the arena's
// backing bytes — the same "byte arena, typed view" idiom real slab
// allocators use to avoid a second GC-visible allocation for what is,
// underneath, a fixed-size POD buffer. T must have no pointer/slice
// fields (export records and int buffers both qualify).
func CarveT[T any](a *Arena, n int) []T {
	if n == 0 {
		return nil
	}
	var zero T
	sz := int(unsafe.Sizeof(zero))
	raw := a.Carve(n * sz)
	return unsafe.Slice((*T)(unsafe.Pointer(&raw[0])), n)
}

// CarveInts carves a []int of length n, with CarveT's zeroing.
func (a *Arena) CarveInts(n int) []int { return CarveT[int](a, n) }
