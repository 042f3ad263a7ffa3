package vmm

import "github.com/bolthur/kernel/internal/kernel"

// tablePool is the manager's free-list of 1 KiB second-level table
// slots: a dynamically growing array of free table addresses, refilled by
// acquiring one frame and carving it into four entries whenever it runs
// empty. The pool's own allocation failure is the one panic-worthy path
// in this module.
type tablePool struct {
	free   []uintptr
	tables map[uintptr]*secondLevelTable

	// allocFrameFn acquires a fresh 4 KiB frame to carve into four table
	// slots. Mocked by tests.
	allocFrameFn func() (uintptr, *kernel.Error)

	// panicFn is called on reallocation failure. Mocked by tests so the
	// panic path itself can be exercised without crashing the suite.
	panicFn func(interface{})
}

// secondLevelTable is the in-memory representation of a 1 KiB second-level
// table: 256 small-page descriptors. The "physical address" a table lives
// at is a synthetic token (the frame address plus a 1 KiB-aligned offset)
// used consistently as the map key everywhere this manager needs to locate
// a table, standing in for what a real MMU would address directly.
type secondLevelTable struct {
	addr    uintptr
	entries [secondLevelEntries]*pageDescriptor
}

// pageDescriptor holds the encoded second-level small-page descriptor
// word, built by leafDescriptor. Everything
// this manager needs back out of a leaf — the frame, and (for Fork) the
// attribute bits — is recovered from word rather than kept alongside it, so
// the encoding in descriptor.go is the only place that bit layout exists.
type pageDescriptor struct {
	word uint32
}

// frame recovers the 4 KiB-aligned physical address from bits [31:12].
func (d *pageDescriptor) frame() uintptr {
	return uintptr(d.word & 0xFFFF_F000)
}

// withFrame returns a copy of word with its frame bits replaced by frame,
// leaving every attribute bit untouched. Used by Fork to retarget a copied
// leaf at a freshly allocated frame without re-deriving its attributes.
func withFrame(word uint32, frame uintptr) uint32 {
	return (word &^ 0xFFFF_F000) | (uint32(frame) &^ 0xFFF)
}

func newTablePool(allocFrame func() (uintptr, *kernel.Error), panicFn func(interface{})) *tablePool {
	return &tablePool{
		tables:       make(map[uintptr]*secondLevelTable),
		allocFrameFn: allocFrame,
		panicFn:      panicFn,
	}
}

// acquire returns a fresh table address, growing the pool from a new frame
// if the free list is empty. Returns 0 only if grow's panicFn returned
// (a recording fake in tests; the real one halts).
func (p *tablePool) acquire() uintptr {
	if len(p.free) == 0 {
		p.grow()
	}
	if len(p.free) == 0 {
		return 0
	}
	addr := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	p.tables[addr] = &secondLevelTable{addr: addr}
	return addr
}

// grow carves one freshly allocated 4 KiB frame into four 1 KiB table
// slots and appends them to the free list. Panics if the allocator cannot
// supply a frame: paging cannot proceed without table storage.
func (p *tablePool) grow() {
	frame, err := p.allocFrameFn()
	if err != nil {
		p.panicFn(kernel.New("vmm", kernel.KindNoMemory, "table-pool: out of physical frames"))
		return
	}
	for i := uintptr(0); i < 4; i++ {
		p.free = append(p.free, frame+i*1024)
	}
}

// release returns a table's slot to the free list and forgets its content.
func (p *tablePool) release(addr uintptr) {
	delete(p.tables, addr)
	p.free = append(p.free, addr)
}

func (p *tablePool) get(addr uintptr) *secondLevelTable {
	return p.tables[addr]
}
