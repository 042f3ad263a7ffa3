package syscall

import (
	"github.com/bolthur/kernel/internal/kernel"
	"github.com/bolthur/kernel/internal/mm/vmm"
)

// processExit implements syscall_process_exit: marks every thread of the
// calling process Kill and queues the process for the scheduler's cleanup
// sweep. No failure mode.
func processExit(g *Gateway, proc *kernel.Process, th *kernel.Thread, regs *kernel.Registers) {
	for _, t := range proc.Threads {
		g.Sched.MarkThreadKill(t)
	}
	g.Sched.MarkProcessKill(proc)
	succeed(regs, 0)
}

// processCreate implements syscall_process_create: R0=name va, R1=name
// len, R2=priority. Allocates a fresh virtual context and an empty process
// record with no threads, mirroring task_process_create's own scope in the
// original — starting it is syscall_process_replace's job (loading code
// into the new context), which this module does not implement.
func processCreate(g *Gateway, proc *kernel.Process, th *kernel.Thread, regs *kernel.Registers) {
	name, err := readIdentifier(g, proc, uintptr(regs.R[0]), uintptr(regs.R[1]))
	if err != nil {
		fail(regs, errnoFor(err))
		return
	}
	priority := uint8(regs.R[2])

	ctx, verr := g.VMM.Create(vmm.ContextUser)
	if verr != nil {
		fail(regs, errnoFor(verr))
		return
	}

	child := &kernel.Process{
		ID:       g.Kernel.Arena.NewProcessID(),
		Parent:   proc.ID,
		Name:     name,
		Priority: priority,
		State:    kernel.ProcessInit,
		Context:  ctx,
		Threads:  make(map[kernel.ThreadID]*kernel.Thread),
		Stacks:   proc.Stacks,
	}
	g.Kernel.Arena.Add(child)

	succeed(regs, uintptr(child.ID))
}

// processFork implements syscall_process_fork: duplicates the calling
// process's virtual context and shared-memory attachments into a new
// process with a single thread, a clone of the caller's trapped frame.
// Matches the end-to-end fork contract: the child's saved R0 is 0, the
// parent's R0 is the child's pid.
func processFork(g *Gateway, proc *kernel.Process, th *kernel.Thread, regs *kernel.Registers) {
	ctx, ok := proc.Context.(*vmm.Context)
	if !ok {
		fail(regs, -errInval)
		return
	}

	childCtx, err := g.VMM.Fork(ctx)
	if err != nil {
		fail(regs, errnoFor(err))
		return
	}

	childID := g.Kernel.Arena.NewProcessID()
	child := &kernel.Process{
		ID:         childID,
		Parent:     proc.ID,
		Name:       proc.Name,
		Priority:   proc.Priority,
		Context:    childCtx,
		Threads:    make(map[kernel.ThreadID]*kernel.Thread),
		Stacks:     proc.Stacks,
		ForkedFrom: proc.ID,
	}

	if g.Shared != nil {
		if err := g.Shared.Fork(proc, child); err != nil {
			g.VMM.Destroy(childCtx, false)
			fail(regs, errnoFor(err))
			return
		}
	}

	childRegs := regs.Clone()
	childRegs.R[0] = 0

	childTh := &kernel.Thread{
		ID:        g.Kernel.Arena.NewThreadID(),
		Process:   childID,
		Priority:  th.Priority,
		State:     kernel.ThreadReady,
		StackBase: th.StackBase,
		StackSize: th.StackSize,
		Registers: childRegs,
	}
	child.Threads[childTh.ID] = childTh

	g.Kernel.Arena.Add(child)
	g.Kernel.Scheduler.Enqueue(childTh)

	succeed(regs, uintptr(childID))
}

// processReplace implements syscall_process_replace. Unimplemented:
// process-image replacement needs an ELF loader, which does not exist
// here yet.
func processReplace(g *Gateway, proc *kernel.Process, th *kernel.Thread, regs *kernel.Registers) {
	fail(regs, -errNoSys)
}
