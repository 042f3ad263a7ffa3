package vmm

import (
	"github.com/bolthur/kernel/internal/kernel"
	"github.com/bolthur/kernel/internal/kfmt"
)

// CacheController is the subset of hal.CacheController the manager
// drives. Declared locally (rather than imported from internal/hal) so
// this package's mockable collaborator fields can be swapped with small
// test fakes without pulling in the hal package.
type CacheController interface {
	DataMemoryBarrier()
	InvalidateICache()
	InvalidateDCache()
	InvalidatePrefetchBuffer()
	InvalidateTLBEntry(virt uintptr)
	InvalidateTLBAll()
	InstructionSyncBarrier()
	DataSyncBarrier()
}

// Allocator is the physical-frame allocator collaborator.
type Allocator interface {
	FindFreePage() (phys uint64, ok bool)
	FreePage(phys uint64)
}

// Context is a virtual address space: a first-level translation table
// and its type. Satisfies kernel.VirtualContext.
type Context struct {
	Type ContextType

	// firstLevel maps a first-level slot index (virt >> 20) to the encoded
	// first-level table descriptor installed there (tableDescriptor's
	// return value): the second-level table's address in bits [31:10]
	// plus its domain/NS attribute bits, mirroring the ARM short-
	// descriptor layout this manager simulates.
	firstLevel map[uint32]uint32

	// tableBase is a synthetic token standing in for the context's
	// first-level table's physical address, sized per ContextType.
	tableBase uintptr
}

// IsUser reports whether this is a user context.
func (c *Context) IsUser() bool { return c.Type.IsUser() }

// Manager implements the ARM short-descriptor virtual-memory operations.
// All mutable collaborators are function-valued or interface-valued
// fields so tests can substitute fakes.
type Manager struct {
	Alloc Allocator
	Cache CacheController

	// Log traces mapping attempts, replacing the C kernel's
	// PRINT_MM_VIRT compile-time macro with a runtime-gated logger.
	// Nil by default; a nil *kfmt.Logger is a silent no-op.
	Log *kfmt.Logger

	mem  *physMemory
	pool *tablePool

	kernelCtx  *Context
	activeUser *Context

	tempUsed [TempAreaSlots]bool

	// panicFn is called by the table pool on allocation exhaustion.
	// Defaults to kernel.Panic; tests override it.
	panicFn func(interface{})

	// nextTableBase hands out synthetic physical addresses for newly
	// created first-level tables, standing in for what a real aligned
	// physical-range allocator would return. Kept as a field (not a
	// package global) so multiple Managers in the same test process
	// never collide.
	nextTableBase uintptr
}

// New constructs a Manager and its kernel context. alloc and cache must be
// non-nil.
func New(alloc Allocator, cache CacheController) (*Manager, *kernel.Error) {
	m := &Manager{
		Alloc:         alloc,
		Cache:         cache,
		Log:           kfmt.NewLogger("[vmm] ", nil),
		mem:           newPhysMemory(),
		panicFn:       kernel.Panic,
		nextTableBase: 0x9000_0000, // arbitrary synthetic region, disjoint from TempArea/user space
	}
	m.pool = newTablePool(m.allocFrame, func(e interface{}) { m.panicFn(e) })

	kctx, err := m.Create(ContextKernel)
	if err != nil {
		return nil, err
	}
	m.kernelCtx = kctx
	return m, nil
}

// allocFrame draws one physical frame from Alloc, the collaborator the
// table pool calls through.
func (m *Manager) allocFrame() (uintptr, *kernel.Error) {
	phys, ok := m.Alloc.FindFreePage()
	if !ok {
		return 0, kernel.New("vmm", kernel.KindNoMemory, "no free physical frames")
	}
	return uintptr(phys), nil
}

func (m *Manager) newTableBase(size uintptr) uintptr {
	base := alignUp(m.nextTableBase, size)
	m.nextTableBase = base + size
	return base
}

// KernelContext returns the single kernel context created by New.
func (m *Manager) KernelContext() *Context { return m.kernelCtx }

// ActiveUserContext returns the currently active user context, or nil.
func (m *Manager) ActiveUserContext() *Context { return m.activeUser }
