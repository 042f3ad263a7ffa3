package shared

import (
	"testing"

	"github.com/bolthur/kernel/internal/kernel"
	"github.com/bolthur/kernel/internal/mm/vmm"
)

type fakeAllocator struct {
	next uint64
	free []uint64
}

func newFakeAllocator() *fakeAllocator { return &fakeAllocator{next: 0x2000_0000} }

func (a *fakeAllocator) FindFreePage() (uint64, bool) {
	p := a.next
	a.next += vmm.PageSize
	return p, true
}

func (a *fakeAllocator) FreePage(p uint64) { a.free = append(a.free, p) }

type fakeCache struct{}

func (fakeCache) DataMemoryBarrier()         {}
func (fakeCache) InvalidateICache()          {}
func (fakeCache) InvalidateDCache()          {}
func (fakeCache) InvalidatePrefetchBuffer()  {}
func (fakeCache) InvalidateTLBEntry(uintptr) {}
func (fakeCache) InvalidateTLBAll()          {}
func (fakeCache) InstructionSyncBarrier()    {}
func (fakeCache) DataSyncBarrier()           {}

func newTestManager(t *testing.T) (*Manager, *vmm.Manager, *fakeAllocator) {
	t.Helper()
	alloc := newFakeAllocator()
	vm, err := vmm.New(alloc, fakeCache{})
	if err != nil {
		t.Fatalf("vmm.New: %v", err)
	}
	return New(vm), vm, alloc
}

func newProcess(t *testing.T, vm *vmm.Manager, pid kernel.ProcessID) *kernel.Process {
	t.Helper()
	ctx, err := vm.Create(vmm.ContextUser)
	if err != nil {
		t.Fatalf("Create context: %v", err)
	}
	return &kernel.Process{ID: pid, Context: ctx, Threads: map[kernel.ThreadID]*kernel.Thread{}}
}

func TestCreateRejectsZeroLength(t *testing.T) {
	m, _, _ := newTestManager(t)
	if _, err := m.Create(0); err == nil || err.Kind != kernel.KindInvalid {
		t.Fatalf("Create(0) = %v; want KindInvalid", err)
	}
}

func TestAttachIsIdempotentPerProcess(t *testing.T) {
	m, vm, _ := newTestManager(t)
	proc := newProcess(t, vm, 1)

	id, err := m.Create(vmm.PageSize * 2)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	start1, err := m.Attach(proc, id, 0)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	start2, err := m.Attach(proc, id, 0)
	if err != nil {
		t.Fatalf("second Attach: %v", err)
	}
	if start1 != start2 {
		t.Fatalf("second Attach() = %#x; want same address %#x as first", start2, start1)
	}

	ctx := proc.Context.(*vmm.Context)
	if !vm.IsMapped(ctx, start1) || !vm.IsMapped(ctx, start1+vmm.PageSize) {
		t.Fatal("attached range is not mapped")
	}
}

func TestAttachUnknownIDFails(t *testing.T) {
	m, vm, _ := newTestManager(t)
	proc := newProcess(t, vm, 1)
	if _, err := m.Attach(proc, 999, 0); err == nil || err.Kind != kernel.KindNoEntity {
		t.Fatalf("Attach(unknown id) = %v; want KindNoEntity", err)
	}
}

// TestDetachLastAttachmentFreesFrames is shared.c's "handle empty, delete
// shared area" branch: once the last attached process detaches, the
// segment's frames return to the allocator and a later Attach by id fails.
func TestDetachLastAttachmentFreesFrames(t *testing.T) {
	m, vm, alloc := newTestManager(t)
	proc := newProcess(t, vm, 1)

	id, err := m.Create(vmm.PageSize)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := m.Attach(proc, id, 0); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if err := m.Detach(proc, id); err != nil {
		t.Fatalf("Detach: %v", err)
	}
	if len(alloc.free) != 1 {
		t.Fatalf("len(alloc.free) = %d; want 1 frame returned", len(alloc.free))
	}
	if _, err := m.Attach(proc, id, 0); err == nil || err.Kind != kernel.KindNoEntity {
		t.Fatalf("Attach() after last detach = %v; want KindNoEntity (segment destroyed)", err)
	}
}

func TestDetachUnknownIsIdempotent(t *testing.T) {
	m, vm, _ := newTestManager(t)
	proc := newProcess(t, vm, 1)
	if err := m.Detach(proc, 42); err != nil {
		t.Fatalf("Detach(unknown id) = %v; want nil", err)
	}
	id, _ := m.Create(vmm.PageSize)
	other := newProcess(t, vm, 2)
	if err := m.Detach(other, id); err != nil {
		t.Fatalf("Detach(never attached) = %v; want nil", err)
	}
}

func TestAddressIsSharedOnlyWithinAttachedRange(t *testing.T) {
	m, vm, _ := newTestManager(t)
	proc := newProcess(t, vm, 1)
	id, _ := m.Create(vmm.PageSize)
	start, err := m.Attach(proc, id, 0)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}

	if !m.AddressIsShared(proc, start, vmm.PageSize) {
		t.Fatal("AddressIsShared() = false for the attached range itself")
	}
	if m.AddressIsShared(proc, start+10*vmm.PageSize, vmm.PageSize) {
		t.Fatal("AddressIsShared() = true for an unrelated range")
	}
}

func TestForkDuplicatesAttachmentsAtSameAddress(t *testing.T) {
	m, vm, _ := newTestManager(t)
	parent := newProcess(t, vm, 1)
	child := newProcess(t, vm, 2)

	id, _ := m.Create(vmm.PageSize)
	start, err := m.Attach(parent, id, 0)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}

	if err := m.Fork(parent, child); err != nil {
		t.Fatalf("Fork: %v", err)
	}
	childCtx := child.Context.(*vmm.Context)
	if !vm.IsMapped(childCtx, start) {
		t.Fatal("Fork() did not map the segment into the child at the parent's address")
	}
	if !m.AddressIsShared(child, start, vmm.PageSize) {
		t.Fatal("child is not recorded as attached after Fork()")
	}
}

func TestCleanupProcessDetachesEverything(t *testing.T) {
	m, vm, alloc := newTestManager(t)
	proc := newProcess(t, vm, 1)

	a, _ := m.Create(vmm.PageSize)
	b, _ := m.Create(vmm.PageSize)
	if _, err := m.Attach(proc, a, 0); err != nil {
		t.Fatalf("Attach a: %v", err)
	}
	if _, err := m.Attach(proc, b, 0); err != nil {
		t.Fatalf("Attach b: %v", err)
	}

	if err := m.CleanupProcess(proc); err != nil {
		t.Fatalf("CleanupProcess: %v", err)
	}
	if len(alloc.free) != 2 {
		t.Fatalf("len(alloc.free) = %d; want 2 (both segments destroyed)", len(alloc.free))
	}
}
