package main

import "github.com/bolthur/kernel/internal/mm/vmm"

// bumpStackAllocator hands out disjoint page-aligned ranges from a single
// growing region, the simplest thing satisfying kernel.StackRangeAllocator.
// Real bolthur/kernel carves stack ranges out of a process's own user
// context the same way vmm.Manager.FindFreeRange does for everything else;
// this REPL stands in with a flat bump allocator since it never needs to
// reclaim a range across process lifetimes, only within one (Release just
// forgets the range: freeing twice or an unknown base is a silent no-op
// here too).
type bumpStackAllocator struct {
	next uintptr
	end  uintptr
}

func newBumpStackAllocator(base, end uintptr) *bumpStackAllocator {
	return &bumpStackAllocator{next: base, end: end}
}

// Acquire reserves size bytes (rounded up to a page) and returns its base.
func (a *bumpStackAllocator) Acquire(size uintptr) (uintptr, bool) {
	pages := (size + vmm.PageSize - 1) &^ (vmm.PageSize - 1)
	if pages == 0 {
		pages = vmm.PageSize
	}
	if a.next+pages > a.end {
		return 0, false
	}
	base := a.next
	a.next += pages
	return base, true
}

// Release is a no-op: this allocator never reclaims. A real ranged
// allocator would.
func (a *bumpStackAllocator) Release(uintptr) {}
