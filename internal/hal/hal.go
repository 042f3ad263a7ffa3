// Package hal is the hardware-abstraction hub the rest of this module
// uses to reach platform collaborators: the physical-frame allocator, the
// cache/TLB maintenance primitives the VM manager and RPC engine need,
// the interrupt controller, the mailbox peripheral, and the event
// dispatcher the scheduler signals. It is a small set of package-level
// collaborator variables that a platform-specific Init assigns, so that
// every other package calls through an interface instead of importing a
// concrete driver. Every concrete implementation here is a test fake; a
// real ARM target supplies its own and assigns it the same way.
package hal

// PhysAllocator is the external physical-frame allocator: phys_find_free_page/phys_free_page.
type PhysAllocator interface {
	// FindFreePage returns the physical address of a free 4 KiB frame and
	// marks it used, or ok=false if none remain.
	FindFreePage() (phys uint64, ok bool)
	// FreePage returns a previously allocated frame to the free pool.
	FreePage(phys uint64)
}

// CacheController groups the cache/TLB/barrier primitives the VM manager
// (map/unmap/flush) and RPC engine (instruction patching) need, in the
// exact sequence self-modifying code requires: data memory barrier, then
// I-cache invalidate, D-cache invalidate, prefetch-buffer invalidate.
type CacheController interface {
	// DataMemoryBarrier issues a DMB: orders prior memory accesses
	// ahead of what follows.
	DataMemoryBarrier()
	// InvalidateICache invalidates the instruction cache (entire or by
	// line, architecture-dependent; callers treat it as "entire" here).
	InvalidateICache()
	// InvalidateDCache invalidates the data cache.
	InvalidateDCache()
	// InvalidatePrefetchBuffer flushes the CPU's prefetch/branch-predict
	// buffer so a patched instruction is actually fetched.
	InvalidatePrefetchBuffer()
	// InvalidateTLBEntry invalidates the single TLB entry covering virt.
	InvalidateTLBEntry(virt uintptr)
	// InvalidateTLBAll invalidates the entire TLB.
	InvalidateTLBAll()
	// InstructionSyncBarrier issues an ISB.
	InstructionSyncBarrier()
	// DataSyncBarrier issues a DSB.
	DataSyncBarrier()
}

// InterruptController is the platform interrupt controller (e.g. BCM2835's
// ARM interrupt controller on Raspberry Pi 1, or the GIC on later models).
type InterruptController interface {
	Enable(irq uint32)
	Disable(irq uint32)
	Ack(irq uint32)
}

// Mailbox is the VideoCore mailbox peripheral used for property-channel
// calls (framebuffer setup, clock rates, etc.) on the Raspberry Pi family.
type Mailbox interface {
	Call(channel uint8, data uint32) (uint32, error)
}

// EventDispatcher lets the scheduler and RPC engine signal interested
// external subsystems (the GDB stub, platform peripherals) without
// importing them.
type EventDispatcher interface {
	Dispatch(event string, data interface{})
}

var (
	// PhysMem is the active physical-frame allocator. Assigned by the
	// caller (cmd/koskit or a test) before internal/mm/vmm is used.
	PhysMem PhysAllocator

	// Cache is the active cache/TLB controller.
	Cache CacheController

	// Interrupts is the active interrupt controller.
	Interrupts InterruptController

	// MailboxDevice is the active mailbox peripheral.
	MailboxDevice Mailbox

	// Events is the active event dispatcher.
	Events EventDispatcher
)
