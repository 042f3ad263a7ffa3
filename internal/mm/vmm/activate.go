package vmm

import "github.com/bolthur/kernel/internal/kernel"

// SetContext installs ctx as the active user context: in a
// real implementation this writes TTBR0 and the matching domain-access
// control, then performs the full barrier sequence before the new tables
// take effect. Refuses a kernel context since TTBR0 only ever holds user
// translation tables; the kernel context lives in TTBR1 and is always
// active.
func (m *Manager) SetContext(ctx *Context) *kernel.Error {
	if ctx.Type != ContextUser {
		return kernel.New("vmm", kernel.KindInvalid, "active context must be a user context")
	}
	// Switch and flush only if the context actually changes.
	if ctx == m.activeUser {
		return nil
	}

	m.Cache.DataSyncBarrier()
	m.activeUser = ctx
	m.Cache.InstructionSyncBarrier()
	m.Cache.InvalidateTLBAll()
	m.Cache.InvalidateICache()
	m.Cache.InvalidateDCache()
	m.Cache.InvalidatePrefetchBuffer()
	return nil
}

// flushEntry is Map/Unmap's narrow invalidate: a barrier plus a
// single-entry TLB invalidate, skipped entirely when ctx is not live in
// the TLB — manipulating a foreign context through a temporary window
// must not disturb the active ones.
func (m *Manager) flushEntry(ctx *Context, virt uintptr) {
	if ctx != m.kernelCtx && ctx != m.activeUser {
		return
	}
	m.Cache.DataMemoryBarrier()
	m.Cache.InvalidateTLBEntry(virt)
}

// FlushComplete invalidates every TLB entry and both caches, the
// sequence required after a bulk change to the active context's tables.
func (m *Manager) FlushComplete() {
	m.Cache.DataMemoryBarrier()
	m.Cache.InvalidateTLBAll()
	m.Cache.InvalidateICache()
	m.Cache.InvalidateDCache()
	m.Cache.InvalidatePrefetchBuffer()
}

// FlushAddress invalidates the TLB entry for a single virtual address, the
// narrow flush issued after map/unmap touches exactly one page. A no-op
// when ctx is neither the kernel context nor the active user context: a
// non-active context's entries are not in the TLB.
func (m *Manager) FlushAddress(ctx *Context, virt uintptr) {
	if ctx != m.kernelCtx && ctx != m.activeUser {
		return
	}
	m.Cache.DataMemoryBarrier()
	m.Cache.InvalidateTLBEntry(virt)
	m.Cache.InvalidatePrefetchBuffer()
}
