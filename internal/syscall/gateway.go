// Package syscall implements the fixed syscall dispatch table: one
// Handler per syscall number, each pulling its parameters out of the
// architectural R0-R3 slots of the trapped thread's saved
// kernel.Registers and writing its result back into R0 — a success
// payload, or a negative POSIX-style errno per the Kind table in errno.go.
// Each Handler here is the Go shape of one of the C kernel's
// syscall_<name>(void* context) functions, with context's
// syscall_get_parameter/syscall_populate_success/syscall_populate_error
// calls replaced by direct Registers field access.
package syscall

import (
	"github.com/bolthur/kernel/internal/ipc/message"
	"github.com/bolthur/kernel/internal/ipc/rpc"
	"github.com/bolthur/kernel/internal/kernel"
	"github.com/bolthur/kernel/internal/mm/shared"
	"github.com/bolthur/kernel/internal/mm/vmm"
	"github.com/bolthur/kernel/internal/sched"
)

// Handler is one dispatch-table entry. proc/th identify the trapped
// thread's owner; regs is its saved frame, read for arguments (R0-R3, plus
// the user stack for any fifth+ argument) and written for the result: a
// Handler sets regs.R[0] itself to either a success payload or a negative
// POSIX-style errno, mirroring the C kernel's
// syscall_populate_success/syscall_populate_error pair acting only
// through the trap context rather than a function return value.
type Handler func(g *Gateway, proc *kernel.Process, th *kernel.Thread, regs *kernel.Registers)

// Gateway owns the dispatch table and every collaborator a dispatch entry
// needs. The Kernel aggregate carries the process/thread arena and the
// narrow Scheduler/RPC surfaces handlers dispatch through; the remaining
// fields are the concrete collaborators whose wider method sets
// (Registry.Register/Unregister/RestoreThread, Scheduler.MarkThreadKill)
// the aggregate's interfaces deliberately do not expose.
type Gateway struct {
	Kernel   *kernel.Kernel
	VMM      *vmm.Manager
	Messages *message.Manager
	RPC      *rpc.Registry
	Shared   *shared.Manager
	Sched    *sched.Scheduler

	table map[uint32]Handler
}

// Syscall numbers: memory, then message, then rpc, then process
// operations.
const (
	NumMemoryAcquire           uint32 = iota + 1
	NumMemoryRelease
	NumMemorySharedCreate
	NumMemorySharedAttach
	NumMemorySharedDetach
	NumMemoryTranslatePhysical
	NumMessageCreate
	NumMessageDestroy
	NumMessageSendByPID
	NumMessageSendByName
	NumMessageReceive
	NumMessageWaitForResponse
	NumRPCRegisterHandler
	NumRPCUnregisterHandler
	NumRPCRaise
	NumRPCSetReady
	NumProcessCreate
	NumProcessExit
	NumProcessFork
	NumProcessReplace
)

// New constructs a Gateway with the standard dispatch table installed and
// completes k's wiring: the scheduler and RPC registry are assigned onto
// the aggregate here, so handing a Kernel to the gateway is what makes it
// whole.
func New(k *kernel.Kernel, vm *vmm.Manager, messages *message.Manager, rpcReg *rpc.Registry, sharedMgr *shared.Manager, scheduler *sched.Scheduler) *Gateway {
	k.Scheduler = scheduler
	k.RPC = rpcReg
	g := &Gateway{
		Kernel:   k,
		VMM:      vm,
		Messages: messages,
		RPC:      rpcReg,
		Shared:   sharedMgr,
		Sched:    scheduler,
	}
	g.table = map[uint32]Handler{
		NumMemoryAcquire:           memoryAcquire,
		NumMemoryRelease:           memoryRelease,
		NumMemorySharedCreate:      memorySharedCreate,
		NumMemorySharedAttach:      memorySharedAttach,
		NumMemorySharedDetach:      memorySharedDetach,
		NumMemoryTranslatePhysical: memoryTranslatePhysical,
		NumMessageCreate:           messageCreate,
		NumMessageDestroy:          messageDestroy,
		NumMessageSendByPID:        messageSendByPID,
		NumMessageSendByName:       messageSendByName,
		NumMessageReceive:          messageReceive,
		NumMessageWaitForResponse:  messageWaitForResponse,
		NumRPCRegisterHandler:      rpcRegisterHandler,
		NumRPCUnregisterHandler:    rpcUnregisterHandler,
		NumRPCRaise:                rpcRaise,
		NumRPCSetReady:             rpcSetReady,
		NumProcessCreate:           processCreate,
		NumProcessExit:             processExit,
		NumProcessFork:             processFork,
		NumProcessReplace:          processReplace,
	}
	return g
}

// Dispatch looks up num in the table and runs it against th's trapped
// frame, writing the result into regs.R[0] itself (so callers never need
// to remember to). An unknown syscall number is -ENOSYS, the same code
// KindUnimplemented maps to.
func (g *Gateway) Dispatch(num uint32, proc *kernel.Process, th *kernel.Thread, regs *kernel.Registers) {
	handler, ok := g.table[num]
	if !ok {
		fail(regs, -errNoSys)
		return
	}
	handler(g, proc, th, regs)
}
