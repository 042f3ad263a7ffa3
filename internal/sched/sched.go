// Package sched implements the priority scheduler: a map keyed by
// priority (internal/container/avl) of per-priority FIFO thread queues
// (internal/container/list) with a round-robin cursor per level. The
// reset and cleanup sweeps mirror the C kernel's task/process.c
// (task_process_queue_reset, the min/max-priority walk that clears
// last_handled, and task_process_cleanup, the process_to_cleanup sweep
// that frees a process once every thread is in TASK_THREAD_STATE_KILL),
// adapted from its single global process_manager to a Scheduler value so
// multiple schedulers can coexist in tests.
package sched

import (
	"github.com/bolthur/kernel/internal/container/avl"
	"github.com/bolthur/kernel/internal/container/list"
	"github.com/bolthur/kernel/internal/ipc/message"
	"github.com/bolthur/kernel/internal/kernel"
	"github.com/bolthur/kernel/internal/kfmt"
	"github.com/bolthur/kernel/internal/mm/vmm"
)

// runnable reports whether th's state lets the scheduler pick it: ready
// and halt-switch (the transitional state a thread sits in between being
// chosen for eviction and actually switched out) are runnable, and so is
// rpc-queued; rpc-waiting is blocked until its message arrives.
func runnable(state kernel.ThreadState) bool {
	switch state {
	case kernel.ThreadReady, kernel.ThreadHalted, kernel.ThreadRPCQueued:
		return true
	default:
		return false
	}
}

// priorityLevel is one priority's structure: the priority value, a
// thread FIFO, a round-robin cursor, and the thread currently running at
// this level.
type priorityLevel struct {
	priority    uint8
	threads     *list.List
	lastHandled *list.Item
	current     *kernel.Thread
}

func priorityCompare(a, b interface{}) int {
	pa, pb := a.(*priorityLevel).priority, b.(*priorityLevel).priority
	switch {
	case pa < pb:
		return -1
	case pa > pb:
		return 1
	default:
		return 0
	}
}

func priorityLookup(data interface{}, key interface{}) int {
	p, k := data.(*priorityLevel).priority, key.(uint8)
	switch {
	case p > k:
		return 1
	case p < k:
		return -1
	default:
		return 0
	}
}

// nextItem returns the item following cur, wrapping to the list head —
// the round-robin advance step used by pick. nil (never handled) wraps to
// the head too, so the very first pick at a level starts from the front.
func (lvl *priorityLevel) nextItem(cur *list.Item) *list.Item {
	if cur == nil || cur.Next == nil {
		return lvl.threads.First
	}
	return cur.Next
}

// pick returns the first runnable thread starting at last_handled→next
// (wrapping to head), whose owning process is not in Kill state, advancing
// last_handled to the item it returns.
func (lvl *priorityLevel) pick(arena *kernel.Arena) *kernel.Thread {
	n := lvl.threads.Len()
	if n == 0 {
		return nil
	}
	item := lvl.nextItem(lvl.lastHandled)
	for i := 0; i < n; i++ {
		if th, ok := item.Data.(*kernel.Thread); ok && runnable(th.State) {
			if proc := arena.Lookup(th.Process); proc != nil && proc.State != kernel.ProcessKill {
				lvl.lastHandled = item
				return th
			}
		}
		item = lvl.nextItem(item)
	}
	return nil
}

// Scheduler implements set_current/reset_current/next/schedule/start
// plus the kill-list cleanup sweep. VMM and Arena are required;
// ReleaseStack is optional (nil is a legal no-op, e.g. in tests that
// don't model stack storage).
type Scheduler struct {
	levels *avl.Tree
	active *kernel.Thread

	Arena *kernel.Arena
	VMM   *vmm.Manager

	// Log traces scheduler picks, replacing the C kernel's
	// debug output with a runtime-gated logger. Nil by default.
	Log *kfmt.Logger

	// ReleaseStack unmaps a killed thread's stack and frees its frames
	// through the external allocator. Left as a hook because the
	// concrete unmap/free call needs the owning process's Context and
	// the physical allocator is an external collaborator.
	ReleaseStack func(proc *kernel.Process, th *kernel.Thread)

	killProcesses []*kernel.Process

	reschedule bool
}

// New constructs an empty Scheduler over arena and vmm.
func New(arena *kernel.Arena, vm *vmm.Manager) *Scheduler {
	return &Scheduler{
		levels: avl.New(priorityCompare, priorityLookup, nil),
		Arena:  arena,
		VMM:    vm,
		Log:    kfmt.NewLogger("[sched] ", nil),
	}
}

func (s *Scheduler) level(priority uint8) *priorityLevel {
	if node := s.levels.Find(priority); node != nil {
		return node.Data.(*priorityLevel)
	}
	return nil
}

func (s *Scheduler) levelOrCreate(priority uint8) *priorityLevel {
	if lvl := s.level(priority); lvl != nil {
		return lvl
	}
	lvl := &priorityLevel{priority: priority, threads: list.New(nil, nil)}
	s.levels.Insert(lvl)
	return lvl
}

// Enqueue adds th to its priority's run queue.
func (s *Scheduler) Enqueue(th *kernel.Thread) {
	s.levelOrCreate(th.Priority).threads.PushBack(th)
}

// Dequeue removes th from its priority's run queue, e.g. when it exits or
// is destroyed.
func (s *Scheduler) Dequeue(th *kernel.Thread) {
	if lvl := s.level(th.Priority); lvl != nil {
		if lvl.lastHandled != nil && lvl.lastHandled.Data == th {
			lvl.lastHandled = nil
		}
		lvl.threads.RemoveData(th)
	}
}

// SetCurrent updates the active-thread pointer, both globally and on th's
// priority level.
func (s *Scheduler) SetCurrent(th *kernel.Thread) {
	s.active = th
	if lvl := s.level(th.Priority); lvl != nil {
		lvl.current = th
	}
}

// ResetCurrent clears the active-thread pointer, both globally and on the
// previously active thread's level.
func (s *Scheduler) ResetCurrent() {
	if s.active != nil {
		if lvl := s.level(s.active.Priority); lvl != nil {
			lvl.current = nil
		}
	}
	s.active = nil
}

// Active returns the currently active thread, or nil.
func (s *Scheduler) Active() *kernel.Thread { return s.active }

// RequestReschedule records that a wake-up happened and the trap return
// path owes a Schedule call. message.Manager.OnWake is wired to this by
// whoever assembles the collaborators.
func (s *Scheduler) RequestReschedule() {
	s.reschedule = true
}

// TakeRescheduleRequest consumes a pending reschedule request, reporting
// whether one was outstanding.
func (s *Scheduler) TakeRescheduleRequest() bool {
	r := s.reschedule
	s.reschedule = false
	return r
}

// queueReset clears last_handled on every priority level, mirroring
// task_process_queue_reset's walk from the max to the min populated
// priority.
func (s *Scheduler) queueReset() {
	for node := s.levels.First(); node != nil; node = s.levels.Next(node) {
		node.Data.(*priorityLevel).lastHandled = nil
	}
}

// Next selects the next runnable thread by descending priority: the
// highest populated level is tried first; if no level yields a
// candidate, last_handled is cleared everywhere and the scan retries
// once before giving up.
func (s *Scheduler) Next() *kernel.Thread {
	if th := s.scan(); th != nil {
		return th
	}
	s.queueReset()
	return s.scan()
}

func (s *Scheduler) scan() *kernel.Thread {
	for node := s.levels.Last(); node != nil; node = s.levels.Previous(node) {
		lvl := node.Data.(*priorityLevel)
		if th := lvl.pick(s.Arena); th != nil {
			s.Log.Tracef("pick thread=%d process=%d priority=%d\n", th.ID, th.Process, lvl.priority)
			return th
		}
	}
	return nil
}

// sameContext reports whether a and b's owning processes share the same
// virtual context, the condition schedule() uses to decide whether a
// set_context/flush_complete pair is owed.
func (s *Scheduler) sameContext(a, b *kernel.Thread) bool {
	if a == nil || b == nil {
		return false
	}
	pa, pb := s.Arena.Lookup(a.Process), s.Arena.Lookup(b.Process)
	return pa != nil && pb != nil && pa.Context == pb.Context
}

func (s *Scheduler) activateContext(proc *kernel.Process) {
	if proc == nil || s.VMM == nil {
		return
	}
	if ctx, ok := proc.Context.(*vmm.Context); ok && ctx.Type == vmm.ContextUser {
		s.VMM.SetContext(ctx)
		s.VMM.FlushComplete()
	}
}

// Schedule is called from a trap's return path with the saved register
// frame of the thread that was interrupted.
// kernelMode must be true when the trap interrupted kernel code rather
// than a user thread, in which case Schedule is a no-op. Returns false
// when no runnable thread exists at all and the caller's trap handler
// must idle the CPU with interrupts enabled.
func (s *Scheduler) Schedule(trapFrame *kernel.Registers, kernelMode bool) bool {
	s.cleanup()

	if kernelMode {
		return true
	}

	outgoing := s.active
	if outgoing != nil {
		// trapFrame holds the interrupted thread's latest user state;
		// save it before the frame is overwritten with the successor's.
		if regs, ok := outgoing.Registers.(*kernel.Registers); ok && trapFrame != nil {
			*regs = *trapFrame
		}
		outgoing.State = kernel.ThreadHalted
		if proc := s.Arena.Lookup(outgoing.Process); proc != nil {
			proc.State = kernel.ProcessHaltSwitch
		}
	}

	next := s.Next()
	if next == nil {
		return false
	}

	if outgoing == nil || !s.sameContext(outgoing, next) {
		s.activateContext(s.Arena.Lookup(next.Process))
	}

	s.SetCurrent(next)
	if regs, ok := next.Registers.(*kernel.Registers); ok && trapFrame != nil {
		*trapFrame = *regs
	}

	if outgoing != nil {
		outgoing.State = kernel.ThreadReady
		if proc := s.Arena.Lookup(outgoing.Process); proc != nil && proc.State == kernel.ProcessHaltSwitch {
			proc.State = kernel.ProcessReady
		}
	}
	return true
}

// Start bootstraps execution from the first ready thread: selects, sets
// its context active, and returns the register frame to jump into without
// expecting a prior running thread.
func (s *Scheduler) Start() (*kernel.Registers, *kernel.Error) {
	next := s.Next()
	if next == nil {
		return nil, kernel.New("sched", kernel.KindNoEntity, "no runnable thread to start")
	}
	s.activateContext(s.Arena.Lookup(next.Process))
	s.SetCurrent(next)
	regs, _ := next.Registers.(*kernel.Registers)
	return regs, nil
}

// MarkThreadKill transitions th to Kill state. The owning process is
// queued for the cleanup sweep via MarkProcessKill once every one of its
// threads reaches this state.
func (s *Scheduler) MarkThreadKill(th *kernel.Thread) {
	th.State = kernel.ThreadKill
	s.Dequeue(th)
	if s.active == th {
		s.ResetCurrent()
	}
}

// MarkProcessKill transitions proc to Kill state and queues it for the
// cleanup sweep.
func (s *Scheduler) MarkProcessKill(proc *kernel.Process) {
	proc.State = kernel.ProcessKill
	for _, already := range s.killProcesses {
		if already == proc {
			return
		}
	}
	s.killProcesses = append(s.killProcesses, proc)
}

// cleanup sweeps the kill list, destroying every process whose threads
// are all in Kill state: it frees each thread's stack, the process's
// message queue, its virtual context, and finally removes the process
// record — mirroring task_process_cleanup's list_remove-while-iterating
// loop.
func (s *Scheduler) cleanup() {
	if len(s.killProcesses) == 0 {
		return
	}
	remaining := s.killProcesses[:0:0]
	for _, proc := range s.killProcesses {
		if !proc.AllThreadsKilled() {
			remaining = append(remaining, proc)
			continue
		}
		s.destroyProcess(proc)
	}
	s.killProcesses = remaining
}

func (s *Scheduler) destroyProcess(proc *kernel.Process) {
	for _, th := range proc.Threads {
		s.Dequeue(th)
		if s.ReleaseStack != nil {
			s.ReleaseStack(proc, th)
		}
	}
	message.Destroy(proc)
	if s.VMM != nil {
		if ctx, ok := proc.Context.(*vmm.Context); ok {
			s.VMM.Destroy(ctx, false)
		}
	}
	s.Arena.Remove(proc.ID)
}
