package vmm

import "github.com/bolthur/kernel/internal/kernel"

// Map installs a leaf mapping for virt -> phys in ctx, allocating a
// second-level table for the containing 1 MiB slot if needed. Fails if
// the page is already mapped.
func (m *Manager) Map(ctx *Context, virt uintptr, phys uint64, memType MemType, flags Flags) *kernel.Error {
	m.Log.Tracef("map attempt virt=%#x phys=%#x type=%d flags=%#x\n", virt, phys, memType, flags)

	slot := firstLevelIndex(virt)
	desc, ok := ctx.firstLevel[slot]
	if !ok {
		tableAddr := m.pool.acquire()
		if tableAddr == 0 {
			return kernel.New("vmm", kernel.KindNoMemory, "table pool exhausted")
		}
		desc = tableDescriptor(tableAddr, ctx.Type)
		ctx.firstLevel[slot] = desc
	}

	table := m.pool.get(tableAddress(desc))
	idx := secondLevelIndex(virt)
	if table.entries[idx] != nil {
		m.Log.Tracef("map failed virt=%#x: already mapped\n", virt)
		return kernel.New("vmm", kernel.KindInUse, "address already mapped")
	}

	table.entries[idx] = &pageDescriptor{
		word: leafDescriptor(uintptr(phys), memType, flags, ctx.Type),
	}

	m.flushEntry(ctx, virt)
	return nil
}

// leafAt returns the descriptor mapping virt in ctx, or nil.
func (m *Manager) leafAt(ctx *Context, virt uintptr) *pageDescriptor {
	desc, ok := ctx.firstLevel[firstLevelIndex(virt)]
	if !ok {
		return nil
	}
	table := m.pool.get(tableAddress(desc))
	if table == nil {
		return nil
	}
	return table.entries[secondLevelIndex(virt)]
}

// IsMapped reports whether virt has a leaf mapping in ctx.
func (m *Manager) IsMapped(ctx *Context, virt uintptr) bool {
	return m.leafAt(ctx, virt) != nil
}

// GetMappedAddress returns the physical address virt maps to in ctx, and
// whether a mapping exists.
func (m *Manager) GetMappedAddress(ctx *Context, virt uintptr) (uint64, bool) {
	leaf := m.leafAt(ctx, virt)
	if leaf == nil {
		return 0, false
	}
	return uint64(leaf.frame()), true
}

// Unmap removes the leaf mapping for virt in ctx. Success is idempotent:
// an absent mapping is not an error. If freePhys is true,
// the underlying frame is released to Alloc.
func (m *Manager) Unmap(ctx *Context, virt uintptr, freePhys bool) *kernel.Error {
	desc, ok := ctx.firstLevel[firstLevelIndex(virt)]
	if !ok {
		return nil
	}
	table := m.pool.get(tableAddress(desc))
	if table == nil {
		return nil
	}

	idx := secondLevelIndex(virt)
	leaf := table.entries[idx]
	if leaf == nil {
		return nil
	}

	table.entries[idx] = nil
	if freePhys {
		m.Alloc.FreePage(uint64(leaf.frame()))
	}

	m.flushEntry(ctx, virt)
	return nil
}

// MapRange maps size bytes starting at virtBase to physBase page-by-page.
// On any failure, every page mapped so far by this call is unmapped before
// returning the failure.
func (m *Manager) MapRange(ctx *Context, virtBase uintptr, physBase uint64, size uintptr, memType MemType, flags Flags) *kernel.Error {
	n := pageCount(size)
	for i := uintptr(0); i < n; i++ {
		virt := virtBase + i*PageSize
		phys := physBase + uint64(i*PageSize)
		if err := m.Map(ctx, virt, phys, memType, flags); err != nil {
			for j := uintptr(0); j < i; j++ {
				m.Unmap(ctx, virtBase+j*PageSize, false)
			}
			return err
		}
	}
	return nil
}

// MapRangeRandom maps size bytes starting at virtBase, allocating each
// frame from Alloc. On any failure, every frame acquired by this call is
// released and every page mapped is unmapped.
func (m *Manager) MapRangeRandom(ctx *Context, virtBase uintptr, size uintptr, memType MemType, flags Flags) *kernel.Error {
	n := pageCount(size)
	acquired := make([]uintptr, 0, n)

	unwind := func() {
		for i, virt := 0, virtBase; i < len(acquired); i, virt = i+1, virt+PageSize {
			m.Unmap(ctx, virt, false)
		}
		for _, phys := range acquired {
			m.Alloc.FreePage(uint64(phys))
		}
	}

	for i := uintptr(0); i < n; i++ {
		virt := virtBase + i*PageSize
		phys, err := m.allocFrame()
		if err != nil {
			unwind()
			return err
		}
		acquired = append(acquired, phys)

		if merr := m.Map(ctx, virt, uint64(phys), memType, flags); merr != nil {
			m.Alloc.FreePage(uint64(phys))
			unwind()
			return merr
		}
	}
	return nil
}

// FindFreeRange walks ctx's address space from max(minAddress(ctx),
// startHint), returning the base of the first unmapped run of at least
// size bytes, or 0 if none exists. Page 0 is never part of a returned
// run, since 0 is the not-found result.
func (m *Manager) FindFreeRange(ctx *Context, size uintptr, startHint uintptr) uintptr {
	minAddr := UserStart
	maxAddr := UserEnd
	if ctx.Type == ContextKernel {
		minAddr = KernelStart
		maxAddr = KernelEnd
	}

	start := minAddr
	if startHint > start {
		start = startHint
	}
	start = alignUp(start, PageSize)
	if start == 0 {
		start = PageSize
	}

	need := pageCount(size)
	run := uintptr(0)
	runStart := start

	for addr := start; addr < maxAddr; addr += PageSize {
		if m.IsMapped(ctx, addr) {
			run = 0
			runStart = addr + PageSize
			continue
		}
		if run == 0 {
			runStart = addr
		}
		run++
		if run >= need {
			return runStart
		}
	}
	return 0
}

// MapTemporary finds a contiguous free span inside the Temporary Area
// sufficient for size bytes, offset-preserving with respect to phys, and
// installs non-cacheable privileged-RW leaf descriptors mapping it to
// phys. Callers must call UnmapTemporary before releasing the lease; this
// is the only mechanism for reaching a physical page that does not belong
// to the active context.
func (m *Manager) MapTemporary(phys uint64, size uintptr) (*TempWindow, *kernel.Error) {
	offset := uintptr(phys) & (PageSize - 1)
	n := pageCount(uintptr(offset) + size)

	startSlot := -1
	run := 0
	for i := 0; i < TempAreaSlots; i++ {
		if m.tempUsed[i] {
			run = 0
			continue
		}
		if run == 0 {
			startSlot = i
		}
		run++
		if uintptr(run) >= n {
			break
		}
	}
	if run < int(n) {
		return nil, kernel.New("vmm", kernel.KindNoMemory, "temporary area exhausted")
	}

	slots := make([]int, 0, n)
	physBase := uintptr(phys) &^ (PageSize - 1)
	for i := uintptr(0); i < n; i++ {
		slot := startSlot + int(i)
		m.tempUsed[slot] = true
		slots = append(slots, slot)

		virt := TempAreaBase + uintptr(slot)*PageSize
		if err := m.Map(m.kernelCtx, virt, uint64(physBase+i*PageSize), MemNormalNonCacheable, FlagRead|FlagWrite); err != nil {
			for _, s := range slots {
				m.tempUsed[s] = false
				m.Unmap(m.kernelCtx, TempAreaBase+uintptr(s)*PageSize, false)
			}
			return nil, err
		}
	}

	return &TempWindow{
		addr:  TempAreaBase + uintptr(startSlot)*PageSize + offset,
		phys:  uintptr(phys),
		size:  size,
		slots: slots,
	}, nil
}

// UnmapTemporary releases a temporary window acquired by MapTemporary.
func (m *Manager) UnmapTemporary(w *TempWindow) {
	if w == nil {
		return
	}
	for _, slot := range w.slots {
		m.Unmap(m.kernelCtx, TempAreaBase+uintptr(slot)*PageSize, false)
		m.tempUsed[slot] = false
	}
}

// Read copies len(dst) bytes out of the window's physical range, starting
// at the window's offset. Stands in for what real code would do by
// dereferencing w.Addr() directly.
func (m *Manager) Read(w *TempWindow, dst []byte) {
	m.mem.Read(w.phys, dst)
}

// Write copies src into the window's physical range, starting at the
// window's offset.
func (m *Manager) Write(w *TempWindow, src []byte) {
	m.mem.Write(w.phys, src)
}
