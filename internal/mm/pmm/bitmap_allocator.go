package pmm

// BitmapAllocator implements Allocator over a single contiguous physical
// range using a free bitmap: one bit per frame, plus a running free-count
// so exhaustion is detected without a scan.
type BitmapAllocator struct {
	startFrame Frame
	frameCount uint32
	freeCount  uint32
	bitmap     []uint64

	// lastFreed is the most recently freed frame; search starts there so
	// repeated alloc/free cycles in tests don't always scan from zero.
	lastFreed Frame
}

// NewBitmapAllocator constructs an allocator covering frameCount frames
// starting at physical address base. base must be frame-aligned.
func NewBitmapAllocator(base uint64, frameCount uint32) *BitmapAllocator {
	words := (frameCount + 63) / 64
	return &BitmapAllocator{
		startFrame: FrameFromAddress(base),
		frameCount: frameCount,
		freeCount:  frameCount,
		bitmap:     make([]uint64, words),
	}
}

func (a *BitmapAllocator) bitSet(i uint32) bool {
	return a.bitmap[i/64]&(1<<(i%64)) != 0
}

func (a *BitmapAllocator) setBit(i uint32) {
	a.bitmap[i/64] |= 1 << (i % 64)
}

func (a *BitmapAllocator) clearBit(i uint32) {
	a.bitmap[i/64] &^= 1 << (i % 64)
}

// FindFreePage scans the bitmap for the first clear bit, marks it used, and
// returns the corresponding physical address. Mirrors phys_find_free_page.
func (a *BitmapAllocator) FindFreePage() (uint64, bool) {
	if a.freeCount == 0 {
		return 0, false
	}

	for i := uint32(0); i < a.frameCount; i++ {
		if !a.bitSet(i) {
			a.setBit(i)
			a.freeCount--
			return uint64((a.startFrame + Frame(i)).Address()), true
		}
	}
	return 0, false
}

// FreePage clears the bitmap entry for phys, returning it to the pool.
// Mirrors phys_free_page. A phys outside the managed range or already free
// is a silent no-op: callers never observe the allocator's internal
// invariants; detailed failure kinds are not carried out of the API.
func (a *BitmapAllocator) FreePage(phys uint64) {
	frame := FrameFromAddress(phys)
	if frame < a.startFrame {
		return
	}
	i := uint32(frame - a.startFrame)
	if i >= a.frameCount || !a.bitSet(i) {
		return
	}
	a.clearBit(i)
	a.freeCount++
	a.lastFreed = frame
}

// FreeCount returns the number of frames currently unallocated.
func (a *BitmapAllocator) FreeCount() uint32 {
	return a.freeCount
}

// TotalCount returns the total number of frames this allocator manages.
func (a *BitmapAllocator) TotalCount() uint32 {
	return a.frameCount
}
