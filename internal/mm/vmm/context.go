package vmm

import "github.com/bolthur/kernel/internal/kernel"

// Create allocates a new virtual context of the given type, choosing the
// first-level table size and alignment by type (kernel: 16 KiB / 16 KiB;
// user: 8 KiB / 8 KiB), and zeroing it.
func (m *Manager) Create(t ContextType) (*Context, *kernel.Error) {
	size := uintptr(UserFirstLevelSize)
	if t == ContextKernel {
		size = KernelFirstLevelSize
	}

	base := m.newTableBase(size)
	ctx := &Context{
		Type:       t,
		firstLevel: make(map[uint32]uint32),
		tableBase:  base,
	}
	return ctx, nil
}

// Fork duplicates a user context: every populated first-level slot gets a
// fresh second-level table, every populated leaf gets a fresh physical
// frame with the source's attributes and a byte-for-byte copy of its
// content. Failures unwind the partial fork via Destroy.
func (m *Manager) Fork(ctx *Context) (*Context, *kernel.Error) {
	if ctx.Type != ContextUser {
		return nil, kernel.New("vmm", kernel.KindInvalid, "fork requires a user context")
	}

	dst, err := m.Create(ContextUser)
	if err != nil {
		return nil, err
	}

	for slot, srcDesc := range ctx.firstLevel {
		srcTable := m.pool.get(tableAddress(srcDesc))
		if srcTable == nil {
			continue
		}

		dstTableAddr := m.pool.acquire()
		if dstTableAddr == 0 {
			m.Destroy(dst, false)
			return nil, kernel.New("vmm", kernel.KindNoMemory, "table pool exhausted")
		}
		dstTable := m.pool.get(dstTableAddr)
		dst.firstLevel[slot] = tableDescriptor(dstTableAddr, dst.Type)

		for i, leaf := range srcTable.entries {
			if leaf == nil {
				continue
			}

			newPhys, aerr := m.allocFrame()
			if aerr != nil {
				m.Destroy(dst, false)
				return nil, aerr
			}

			srcWin, werr := m.MapTemporary(uint64(leaf.frame()), PageSize)
			if werr != nil {
				m.Destroy(dst, false)
				return nil, werr
			}
			dstWin, werr := m.MapTemporary(uint64(newPhys), PageSize)
			if werr != nil {
				m.UnmapTemporary(srcWin)
				m.Destroy(dst, false)
				return nil, werr
			}
			m.mem.CopyFrame(newPhys, leaf.frame())
			m.UnmapTemporary(dstWin)
			m.UnmapTemporary(srcWin)
			dstTable.entries[i] = &pageDescriptor{
				word: withFrame(leaf.word, newPhys),
			}
		}
	}

	return dst, nil
}

// Destroy walks every populated first-level slot, frees every leaf's
// physical frame, returns each second-level table to the pool, and
// discards the context record, unless unmapOnly is set in which case the
// underlying frames and tables are left intact. Refuses
// to destroy the currently active user or kernel context unless unmapOnly.
func (m *Manager) Destroy(ctx *Context, unmapOnly bool) *kernel.Error {
	if !unmapOnly && (ctx == m.kernelCtx || ctx == m.activeUser) {
		return kernel.New("vmm", kernel.KindInvalid, "cannot destroy the active context")
	}

	for slot, desc := range ctx.firstLevel {
		table := m.pool.get(tableAddress(desc))
		if table == nil {
			continue
		}

		if !unmapOnly {
			for i, leaf := range table.entries {
				if leaf == nil {
					continue
				}
				m.Alloc.FreePage(uint64(leaf.frame()))
				table.entries[i] = nil
			}
			m.pool.release(tableAddress(desc))
		}

		delete(ctx.firstLevel, slot)
	}

	return nil
}
