// Package shared implements shared memory segments: physical frames
// allocated once and mapped into more than one process's virtual
// context, outliving any single attach.
// Mirrors the C kernel's mm/shared.c shared_tree: an
// avl_tree_t of shared_memory_entry_t keyed by a monotonic id, each
// holding the segment's physical frame array and a list_manager_t of
// per-process (start, size) mappings. Adapted here to
// internal/container/avl keyed by the same monotonic id, over
// internal/container/list for the per-segment attach list, matching the
// C kernel's own choice of a list at that level.
package shared

import (
	"github.com/bolthur/kernel/internal/container/avl"
	"github.com/bolthur/kernel/internal/container/list"
	"github.com/bolthur/kernel/internal/kernel"
	"github.com/bolthur/kernel/internal/mm/vmm"
)

// ID is a shared memory segment's monotonic identifier.
type ID uint64

// attachment is one process's mapping of a segment, mirroring
// shared_memory_entry_mapped_t.
type attachment struct {
	Process kernel.ProcessID
	Start   uintptr
	Size    uintptr
}

// segment is one shared memory area: its owned physical frames and the
// list of processes currently attached to it, mirroring
// shared_memory_entry_t.
type segment struct {
	ID      ID
	Size    uintptr
	Frames  []uint64
	Mapping *list.List
}

func segmentCompare(a, b interface{}) int {
	sa, sb := a.(*segment).ID, b.(*segment).ID
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	default:
		return 0
	}
}

func segmentLookup(data interface{}, key interface{}) int {
	s, k := data.(*segment).ID, key.(ID)
	switch {
	case s > k:
		return 1
	case s < k:
		return -1
	default:
		return 0
	}
}

func attachmentLookup(data interface{}, key interface{}) bool {
	a, ok := data.(*attachment)
	return ok && a.Process == key.(kernel.ProcessID)
}

// Manager implements shared_memory_create/attach/detach/fork/
// cleanup_process and the shared-address query, grounded on shared.c in
// full. One Manager is shared kernel-wide, exactly as shared_tree is a
// single global in the C kernel.
type Manager struct {
	segments *avl.Tree
	nextID   ID

	VMM   *vmm.Manager
	Alloc vmm.Allocator
}

// New constructs an empty Manager over vm's allocator, mirroring
// shared_memory_init's avl_create_tree(NULL, NULL, NULL).
func New(vm *vmm.Manager) *Manager {
	return &Manager{
		segments: avl.New(segmentCompare, segmentLookup, nil),
		VMM:      vm,
		Alloc:    vm.Alloc,
	}
}

func (m *Manager) nextSegmentID() ID {
	m.nextID++
	return m.nextID
}

func (m *Manager) find(id ID) *segment {
	node := m.segments.Find(id)
	if node == nil {
		return nil
	}
	return node.Data.(*segment)
}

// Create allocates len (rounded up to a full page) worth of physical
// frames and registers a new segment, mirroring shared_memory_create. len
// of zero, or exhausting physical memory partway through, fails with
// KindInvalid/KindNoMemory; any frames already drawn before a mid-loop
// failure are returned to Alloc (create_entry's own destroy_entry-on-
// partial-failure path).
func (m *Manager) Create(size uintptr) (ID, *kernel.Error) {
	if size == 0 {
		return 0, kernel.New("shared", kernel.KindInvalid, "zero-length shared segment")
	}
	size = (size + vmm.PageSize - 1) &^ (vmm.PageSize - 1)
	count := int(size / vmm.PageSize)

	frames := make([]uint64, 0, count)
	for i := 0; i < count; i++ {
		phys, ok := m.Alloc.FindFreePage()
		if !ok {
			for _, f := range frames {
				m.Alloc.FreePage(f)
			}
			return 0, kernel.New("shared", kernel.KindNoMemory, "out of physical frames for shared segment")
		}
		frames = append(frames, phys)
	}

	seg := &segment{
		ID:      m.nextSegmentID(),
		Size:    size,
		Frames:  frames,
		Mapping: list.New(attachmentLookup, nil),
	}
	m.segments.Insert(seg)
	return seg.ID, nil
}

// Attach maps segment id into proc's virtual context, mirroring
// shared_memory_attach: a process already attached gets back its existing
// mapping's start address rather than a second mapping (the C kernel's
// "handle already attached" branch). hint is passed through to
// vmm.Manager.FindFreeRange as the search's starting point; zero lets the
// manager pick anywhere in proc's user range.
func (m *Manager) Attach(proc *kernel.Process, id ID, hint uintptr) (uintptr, *kernel.Error) {
	seg := m.find(id)
	if seg == nil {
		return 0, kernel.New("shared", kernel.KindNoEntity, "no shared segment with this id")
	}
	if item := seg.Mapping.LookupData(proc.ID); item != nil {
		return item.Data.(*attachment).Start, nil
	}

	ctx, ok := proc.Context.(*vmm.Context)
	if !ok {
		return 0, kernel.New("shared", kernel.KindInvalid, "process has no virtual context")
	}

	start := m.VMM.FindFreeRange(ctx, seg.Size, hint)
	if start == 0 {
		return 0, kernel.New("shared", kernel.KindNoMemory, "no free virtual range for shared segment")
	}

	mapped := 0
	for i, frame := range seg.Frames {
		virt := start + uintptr(i)*vmm.PageSize
		if err := m.VMM.Map(ctx, virt, frame, vmm.MemNormalCacheable, vmm.FlagRead|vmm.FlagWrite); err != nil {
			for j := 0; j < mapped; j++ {
				m.VMM.Unmap(ctx, start+uintptr(j)*vmm.PageSize, false)
			}
			return 0, err
		}
		mapped++
	}

	seg.Mapping.PushBack(&attachment{Process: proc.ID, Start: start, Size: seg.Size})
	return start, nil
}

// Detach unmaps segment id from proc, mirroring shared_memory_detach:
// idempotent success if the segment or the process's attachment does not
// exist. Once the last attachment is removed the segment itself is
// destroyed and its frames returned to Alloc (the C kernel's "handle
// empty, delete shared area" branch).
func (m *Manager) Detach(proc *kernel.Process, id ID) *kernel.Error {
	seg := m.find(id)
	if seg == nil {
		return nil
	}
	item := seg.Mapping.LookupData(proc.ID)
	if item == nil {
		return nil
	}
	mapping := item.Data.(*attachment)

	ctx, ok := proc.Context.(*vmm.Context)
	if !ok {
		return kernel.New("shared", kernel.KindInvalid, "process has no virtual context")
	}
	for i := 0; i < len(seg.Frames); i++ {
		m.VMM.Unmap(ctx, mapping.Start+uintptr(i)*vmm.PageSize, false)
	}
	seg.Mapping.Remove(item)

	if seg.Mapping.Empty() {
		m.segments.Remove(seg.ID)
		for _, f := range seg.Frames {
			m.Alloc.FreePage(f)
		}
	}
	return nil
}

// AddressIsShared reports whether [start, start+len) overlaps any of
// proc's current shared-segment attachments, mirroring
// shared_memory_address_is_shared. Used by the memory_release syscall to
// reject releasing a shared mapping through the plain unmap path.
func (m *Manager) AddressIsShared(proc *kernel.Process, start uintptr, size uintptr) bool {
	for node := m.segments.First(); node != nil; node = m.segments.Next(node) {
		seg := node.Data.(*segment)
		item := seg.Mapping.LookupData(proc.ID)
		if item == nil {
			continue
		}
		mapping := item.Data.(*attachment)
		if start <= mapping.Start+mapping.Size && start+size >= mapping.Start {
			return true
		}
	}
	return false
}

// Fork duplicates every shared-segment attachment of from onto to at the
// same virtual address, mirroring shared_memory_fork. Intended to run
// alongside the virtual context's own copy-on-fork step so a forked
// process keeps access to everything it was attached to.
func (m *Manager) Fork(from, to *kernel.Process) *kernel.Error {
	toCtx, ok := to.Context.(*vmm.Context)
	if !ok {
		return kernel.New("shared", kernel.KindInvalid, "process has no virtual context")
	}
	for node := m.segments.First(); node != nil; node = m.segments.Next(node) {
		seg := node.Data.(*segment)
		item := seg.Mapping.LookupData(from.ID)
		if item == nil {
			continue
		}
		mapping := item.Data.(*attachment)
		for i, frame := range seg.Frames {
			virt := mapping.Start + uintptr(i)*vmm.PageSize
			if err := m.VMM.Map(toCtx, virt, frame, vmm.MemNormalCacheable, vmm.FlagRead|vmm.FlagWrite); err != nil {
				return err
			}
		}
		seg.Mapping.PushBack(&attachment{Process: to.ID, Start: mapping.Start, Size: mapping.Size})
	}
	return nil
}

// CleanupProcess detaches proc from every shared segment it is attached
// to, mirroring shared_memory_cleanup_process. Called when a process
// exits so its attachments don't keep otherwise-unused segments alive.
func (m *Manager) CleanupProcess(proc *kernel.Process) *kernel.Error {
	var ids []ID
	for node := m.segments.First(); node != nil; node = m.segments.Next(node) {
		seg := node.Data.(*segment)
		if seg.Mapping.LookupData(proc.ID) != nil {
			ids = append(ids, seg.ID)
		}
	}
	for _, id := range ids {
		if err := m.Detach(proc, id); err != nil {
			return err
		}
	}
	return nil
}
