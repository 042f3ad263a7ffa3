// Package rpc implements the instruction-patching RPC engine: a
// container/entry registry of named topics, each entry mapping a handler
// process to the handler's entry virtual address, and the
// raise/restore pair that hijacks a target thread's next instruction to
// invoke that handler. The operation set is the C kernel's ipc/rpc.c
// (rpc_container_lookup/cleanup, rpc_entry_lookup/cleanup,
// rpc_queue_cleanup, rpc_init, rpc_register_handler,
// rpc_unregister_handler, rpc_raise, rpc_get_active), with its single
// global rpc_list of containers reshaped into a Registry value built on
// internal/container/avl (containers keyed by topic identifier) over
// internal/container/list (entries and backup FIFOs).
package rpc

import (
	"encoding/binary"
	"sort"

	"github.com/bolthur/kernel/internal/container/avl"
	"github.com/bolthur/kernel/internal/container/list"
	"github.com/bolthur/kernel/internal/ipc/message"
	"github.com/bolthur/kernel/internal/kernel"
	"github.com/bolthur/kernel/internal/kfmt"
	"github.com/bolthur/kernel/internal/mm/vmm"
)

// payloadType tags the message.Manager.SendByPID call a raise with a
// payload uses to ship it to the handler process, a sentinel distinguishing
// RPC payload deliveries from ordinary IPC traffic in the queue dump.
const payloadType uint32 = 0x52504300 // "RPC\x00"

const (
	armUndefinedInstruction   uint32 = 0xE7F000F0
	thumbUndefinedInstruction uint32 = 0x0000DEFF
)

// CacheController is the subset of hal.CacheController the engine drives
// while patching/restoring an instruction word. Declared locally, matching
// vmm.CacheController's reasoning: a small interface the engine can fake in
// tests without pulling in internal/hal.
type CacheController interface {
	DataMemoryBarrier()
	InvalidateICache()
	InvalidateDCache()
	InvalidatePrefetchBuffer()
}

// Entry is one process's registered handler for a topic: the handler's
// virtual address, and the FIFO of backups currently queued or active
// against this thread-process pairing.
type Entry struct {
	Process   kernel.ProcessID
	HandlerVA uintptr
	Queue     *list.List
}

// container is one named topic's registry of handler entries. Lowercase:
// callers only ever reach it through Registry's methods.
type container struct {
	Identifier string
	Entries    *list.List
}

func containerCompare(a, b interface{}) int {
	sa, sb := a.(*container).Identifier, b.(*container).Identifier
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	default:
		return 0
	}
}

func containerLookup(data interface{}, key interface{}) int {
	s, k := data.(*container).Identifier, key.(string)
	switch {
	case s > k:
		return 1
	case s < k:
		return -1
	default:
		return 0
	}
}

func entryLookup(data interface{}, key interface{}) bool {
	e, ok := data.(*Entry)
	if !ok {
		return false
	}
	pid, ok := key.(kernel.ProcessID)
	return ok && e.Process == pid
}

// defaultSelectThread picks the lowest-id thread of proc that is not in
// ThreadKill.
func defaultSelectThread(proc *kernel.Process) *kernel.Thread {
	ids := make([]kernel.ThreadID, 0, len(proc.Threads))
	for id := range proc.Threads {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if th := proc.Threads[id]; th.State != kernel.ThreadKill {
			return th
		}
	}
	return nil
}

// Registry implements the raise/restore/register/unregister operations.
// Satisfies kernel.RPCRegistry's Raise method, so a *Registry can be
// assigned directly to Kernel.RPC.
type Registry struct {
	containers *avl.Tree

	Arena    *kernel.Arena
	VMM      *vmm.Manager
	Cache    CacheController
	Messages *message.Manager

	// SelectThread picks which thread of a target process handles an
	// incoming raise. Defaults to defaultSelectThread; overridable.
	SelectThread func(*kernel.Process) *kernel.Thread

	// Log traces raise/restore, replacing the C kernel's PRINT_RPC
	// compile-time macro with a runtime-gated logger. Nil by default.
	Log *kfmt.Logger
}

// New constructs an empty Registry.
func New(arena *kernel.Arena, vm *vmm.Manager, cache CacheController, messages *message.Manager) *Registry {
	return &Registry{
		containers:   avl.New(containerCompare, containerLookup, nil),
		Arena:        arena,
		VMM:          vm,
		Cache:        cache,
		Messages:     messages,
		SelectThread: defaultSelectThread,
		Log:          kfmt.NewLogger("[rpc] ", nil),
	}
}

func (r *Registry) findContainer(identifier string) *container {
	node := r.containers.Find(identifier)
	if node == nil {
		return nil
	}
	return node.Data.(*container)
}

func (r *Registry) backupCleanup(data interface{}) {
	b, ok := data.(*kernel.RPCBackup)
	if !ok || b.MessageID == 0 || r.Messages == nil {
		return
	}
	if proc := r.Arena.Lookup(b.HandlerProcess); proc != nil {
		message.RemoveByID(proc, message.ID(b.MessageID))
	}
}

func (r *Registry) entryCleanup(data interface{}) {
	entry, ok := data.(*Entry)
	if !ok {
		return
	}
	entry.Queue.Destruct()
}

func (r *Registry) containerOrCreate(identifier string) *container {
	if c := r.findContainer(identifier); c != nil {
		return c
	}
	c := &container{
		Identifier: identifier,
		Entries:    list.New(entryLookup, r.entryCleanup),
	}
	r.containers.Insert(c)
	return c
}

func (r *Registry) entryOf(c *container, pid kernel.ProcessID) *Entry {
	item := c.Entries.LookupData(pid)
	if item == nil {
		return nil
	}
	return item.Data.(*Entry)
}

// Register adds proc's handlerVA as the handler for identifier, mirroring
// rpc_register_handler. Fails with KindAlreadyExists if proc already
// registered a handler for this identifier.
func (r *Registry) Register(identifier string, proc *kernel.Process, handlerVA uintptr) *kernel.Error {
	c := r.containerOrCreate(identifier)
	if r.entryOf(c, proc.ID) != nil {
		return kernel.New("rpc", kernel.KindAlreadyExists, "process already registered a handler for this identifier")
	}
	c.Entries.PushBack(&Entry{
		Process:   proc.ID,
		HandlerVA: handlerVA,
		Queue:     list.New(nil, r.backupCleanup),
	})
	return nil
}

// Unregister removes proc's handler for identifier, mirroring
// rpc_unregister_handler: idempotent success if the container or the
// process's entry does not exist, failure only when an entry exists but
// handlerVA does not match its registration. Removing the entry destroys
// its backup FIFO, freeing each queued backup's message.
func (r *Registry) Unregister(identifier string, proc *kernel.Process, handlerVA uintptr) *kernel.Error {
	c := r.findContainer(identifier)
	if c == nil {
		return nil
	}
	item := c.Entries.LookupData(proc.ID)
	if item == nil {
		return nil
	}
	entry := item.Data.(*Entry)
	if entry.HandlerVA != handlerVA {
		return kernel.New("rpc", kernel.KindInvalid, "handler address does not match registration")
	}
	c.Entries.Remove(item)
	return nil
}

func le32(v uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	return buf
}

// readInstruction fetches the 32-bit word at va in proc's context through a
// temporary mapping, mirroring rpc_raise's handler->context-relative
// instruction read.
func (r *Registry) readInstruction(proc *kernel.Process, va uintptr) (uint32, *kernel.Error) {
	ctx, ok := proc.Context.(*vmm.Context)
	if !ok {
		return 0, kernel.New("rpc", kernel.KindInvalid, "process has no virtual context")
	}
	phys, ok := r.VMM.GetMappedAddress(ctx, va)
	if !ok {
		return 0, kernel.New("rpc", kernel.KindIO, "rpc target instruction is not mapped")
	}
	phys += uint64(va & (vmm.PageSize - 1))
	win, err := r.VMM.MapTemporary(phys, 4)
	if err != nil {
		return 0, err
	}
	defer r.VMM.UnmapTemporary(win)
	buf := make([]byte, 4)
	r.VMM.Read(win, buf)
	return binary.LittleEndian.Uint32(buf), nil
}

// patchWord writes word at va in proc's context and runs the
// barrier/cache invalidation sequence required after patching or
// restoring code the CPU may have already prefetched (DMB, then I-cache,
// D-cache, prefetch buffer, matching vmm.Manager.FlushComplete's
// ordering).
func (r *Registry) patchWord(proc *kernel.Process, va uintptr, word uint32) *kernel.Error {
	ctx, ok := proc.Context.(*vmm.Context)
	if !ok {
		return kernel.New("rpc", kernel.KindInvalid, "process has no virtual context")
	}
	phys, ok := r.VMM.GetMappedAddress(ctx, va)
	if !ok {
		return kernel.New("rpc", kernel.KindIO, "rpc target instruction is not mapped")
	}
	phys += uint64(va & (vmm.PageSize - 1))
	win, err := r.VMM.MapTemporary(phys, 4)
	if err != nil {
		return err
	}
	defer r.VMM.UnmapTemporary(win)
	r.VMM.Write(win, le32(word))
	r.Cache.DataMemoryBarrier()
	r.Cache.InvalidateICache()
	r.Cache.InvalidateDCache()
	r.Cache.InvalidatePrefetchBuffer()
	return nil
}

// prepareInvoke patches target's page with an undefined instruction at
// backup's address, rewrites th's live register frame so it returns into
// the handler with the original PC stashed in LR, and flips th/proc into
// the RPC-active or RPC-queued state depending on whether th is the
// currently running thread.
func (r *Registry) prepareInvoke(th *kernel.Thread, proc *kernel.Process, entry *Entry, backup *kernel.RPCBackup) *kernel.Error {
	regs, ok := th.Registers.(*kernel.Registers)
	if !ok {
		return kernel.New("rpc", kernel.KindInvalid, "thread has no register frame")
	}
	if regs.SP < uint32(th.StackBase)+8 {
		return kernel.New("rpc", kernel.KindNoMemory, "insufficient user stack for rpc frame")
	}

	opcode := armUndefinedInstruction
	if backup.Thumb {
		opcode = thumbUndefinedInstruction
	}
	if err := r.patchWord(proc, backup.Address, opcode); err != nil {
		return err
	}

	regs.R[0] = uint32(backup.Source)
	regs.R[1] = uint32(backup.MessageID)
	backup.ReturnPC = uintptr(regs.PC)
	regs.LR = regs.PC
	regs.PC = uint32(entry.HandlerVA)

	if th.State == kernel.ThreadActive {
		th.State = kernel.ThreadRPCActive
		proc.State = kernel.ProcessRPCActive
	} else {
		th.State = kernel.ThreadRPCQueued
		proc.State = kernel.ProcessRPCQueued
	}
	backup.Prepared = true
	backup.Active = true
	return nil
}

// Raise delivers a topic's handler invocation to target, mirroring
// rpc_raise: look up the entry, select the handling thread, snapshot or
// share its saved context with any already-active backup, ship
// [dataAddress, dataAddress+dataSize) from source's address space as a
// message if dataSize > 0, and either patch the target thread in place
// (first raise) or append to its backup FIFO for later (stacked raise on
// a thread already mid-RPC).
func (r *Registry) Raise(identifier string, source kernel.ProcessID, target kernel.ProcessID, dataAddress, dataSize uintptr) *kernel.Error {
	r.Log.Tracef("raise identifier=%q source=%d target=%d\n", identifier, source, target)

	c := r.findContainer(identifier)
	if c == nil {
		return kernel.New("rpc", kernel.KindNoEntity, "no handler registered for this identifier")
	}
	targetProc := r.Arena.Lookup(target)
	if targetProc == nil {
		return kernel.New("rpc", kernel.KindNoEntity, "target process not found")
	}
	entry := r.entryOf(c, target)
	if entry == nil {
		return kernel.New("rpc", kernel.KindNoEntity, "target process has no handler for this identifier")
	}

	selectThread := r.SelectThread
	if selectThread == nil {
		selectThread = defaultSelectThread
	}
	th := selectThread(targetProc)
	if th == nil {
		return kernel.New("rpc", kernel.KindNoEntity, "target process has no eligible thread")
	}

	var data []byte
	if dataSize > 0 {
		sourceProc := r.Arena.Lookup(source)
		if sourceProc == nil {
			return kernel.New("rpc", kernel.KindNoEntity, "source process not found")
		}
		payload, rerr := r.readPayload(sourceProc, dataAddress, dataSize)
		if rerr != nil {
			return rerr
		}
		data = payload
	}

	alreadyMidRPC := th.RPCBackup != nil && th.RPCBackup.Active
	var backup *kernel.RPCBackup
	if alreadyMidRPC {
		active := th.RPCBackup
		backup = &kernel.RPCBackup{
			Address:      active.Address,
			Instruction:  active.Instruction,
			Thumb:        active.Thumb,
			SavedContext: active.SavedContext,
		}
	} else {
		regs, ok := th.Registers.(*kernel.Registers)
		if !ok {
			return kernel.New("rpc", kernel.KindInvalid, "thread has no register frame")
		}
		word, rerr := r.readInstruction(targetProc, uintptr(regs.PC))
		if rerr != nil {
			return rerr
		}
		backup = &kernel.RPCBackup{
			Address:      uintptr(regs.PC),
			Instruction:  word,
			Thumb:        regs.ThumbState(),
			SavedContext: regs.Clone(),
		}
	}
	backup.Source = source
	backup.Identifier = identifier
	backup.HandlerProcess = target

	if len(data) > 0 {
		id, serr := r.Messages.SendByPID(target, source, payloadType, data, 0)
		if serr != nil {
			return serr
		}
		backup.MessageID = uint64(id)
	}

	th.PushRPCBackup(backup)
	entry.Queue.PushBack(backup)

	if alreadyMidRPC {
		return nil
	}
	if err := r.prepareInvoke(th, targetProc, entry, backup); err != nil {
		th.PopRPCBackup()
		entry.Queue.RemoveData(backup)
		return err
	}
	return nil
}

// readPayload copies dataSize bytes starting at dataAddress out of proc's
// virtual context, one page at a time through a temporary mapping: the
// payload's backing frames need not be physically contiguous.
func (r *Registry) readPayload(proc *kernel.Process, dataAddress, dataSize uintptr) ([]byte, *kernel.Error) {
	ctx, ok := proc.Context.(*vmm.Context)
	if !ok {
		return nil, kernel.New("rpc", kernel.KindInvalid, "process has no virtual context")
	}

	buf := make([]byte, dataSize)
	for done := uintptr(0); done < dataSize; {
		va := dataAddress + done
		offset := va & (vmm.PageSize - 1)
		chunk := vmm.PageSize - offset
		if remaining := dataSize - done; chunk > remaining {
			chunk = remaining
		}

		phys, ok := r.VMM.GetMappedAddress(ctx, va)
		if !ok {
			return nil, kernel.New("rpc", kernel.KindIO, "rpc payload is not mapped")
		}
		win, err := r.VMM.MapTemporary(phys+uint64(offset), chunk)
		if err != nil {
			return nil, err
		}
		r.VMM.Read(win, buf[done:done+chunk])
		r.VMM.UnmapTemporary(win)
		done += chunk
	}
	return buf, nil
}

// ActiveBackup returns th's currently active backup (the one that has
// hijacked it), or nil. Exposed for the syscall gateway and for tests that
// need to inspect what a raise did without reaching into thread internals.
func (r *Registry) ActiveBackup(th *kernel.Thread) *kernel.RPCBackup {
	if th.RPCBackup != nil && th.RPCBackup.Active {
		return th.RPCBackup
	}
	return nil
}

func (r *Registry) removeFromEntry(backup *kernel.RPCBackup) {
	c := r.findContainer(backup.Identifier)
	if c == nil {
		return
	}
	entry := r.entryOf(c, backup.HandlerProcess)
	if entry == nil {
		return
	}
	entry.Queue.RemoveData(backup)
}

// RestoreThread undoes a raise once the handler runs off the end of its
// patched trampoline and traps on the patched undefined instruction,
// mirroring rpc_raise's restore half (the C kernel handles restore inline
// in the undefined-instruction exception path). Restores the original
// instruction word and th's pre-raise register frame into trapFrame, pops
// th's backup FIFO, and — if another backup was queued behind it — prepares
// that one against the frame just restored, chaining stacked raises in
// FIFO order.
func (r *Registry) RestoreThread(th *kernel.Thread, trapFrame *kernel.Registers) *kernel.Error {
	r.Log.Tracef("restore thread=%d process=%d\n", th.ID, th.Process)

	proc := r.Arena.Lookup(th.Process)
	if proc == nil {
		return kernel.New("rpc", kernel.KindInvalid, "thread has no owning process")
	}
	if th.State != kernel.ThreadRPCActive || proc.State != kernel.ProcessRPCActive {
		return kernel.New("rpc", kernel.KindInvalid, "thread is not in an active rpc")
	}
	backup := th.RPCBackup
	if backup == nil || !backup.Active || backup.Address != uintptr(trapFrame.PC) {
		return kernel.New("rpc", kernel.KindInvalid, "no matching active rpc backup for this trap")
	}

	if err := r.patchWord(proc, backup.Address, backup.Instruction); err != nil {
		return err
	}

	*trapFrame = *backup.SavedContext
	if regs, ok := th.Registers.(*kernel.Registers); ok {
		*regs = *backup.SavedContext
	}

	th.State = kernel.ThreadActive
	proc.State = kernel.ProcessActive

	th.PopRPCBackup()
	r.removeFromEntry(backup)

	if next := th.RPCBackup; next != nil {
		c := r.findContainer(next.Identifier)
		if c == nil {
			return nil
		}
		nextEntry := r.entryOf(c, next.HandlerProcess)
		if nextEntry == nil {
			return nil
		}
		if err := r.prepareInvoke(th, proc, nextEntry, next); err != nil {
			return err
		}
		// The trap returns through trapFrame; without this the thread
		// would resume at the just-restored PC, which prepareInvoke has
		// re-patched, and trap again without ever entering the handler.
		if regs, ok := th.Registers.(*kernel.Registers); ok {
			*trapFrame = *regs
		}
		return nil
	}
	return nil
}
