package syscall

import (
	"strings"

	"github.com/bolthur/kernel/internal/kernel"
)

func readIdentifier(g *Gateway, proc *kernel.Process, va, length uintptr) (string, *kernel.Error) {
	buf, err := readUserBytes(g, proc, va, length)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

// rpcRegisterHandler implements syscall_rpc_register_handler: R0=ident
// va, R1=ident len, R2=handler va.
func rpcRegisterHandler(g *Gateway, proc *kernel.Process, th *kernel.Thread, regs *kernel.Registers) {
	identifier, err := readIdentifier(g, proc, uintptr(regs.R[0]), uintptr(regs.R[1]))
	if err != nil {
		fail(regs, errnoFor(err))
		return
	}
	if err := g.RPC.Register(identifier, proc, uintptr(regs.R[2])); err != nil {
		fail(regs, errnoFor(err))
		return
	}
	succeed(regs, 0)
}

// rpcUnregisterHandler implements syscall_rpc_unregister_handler: R0=ident
// va, R1=ident len, R2=handler va.
func rpcUnregisterHandler(g *Gateway, proc *kernel.Process, th *kernel.Thread, regs *kernel.Registers) {
	identifier, err := readIdentifier(g, proc, uintptr(regs.R[0]), uintptr(regs.R[1]))
	if err != nil {
		fail(regs, errnoFor(err))
		return
	}
	if err := g.RPC.Unregister(identifier, proc, uintptr(regs.R[2])); err != nil {
		fail(regs, -errInval)
		return
	}
	succeed(regs, 0)
}

// raiseErrno distinguishes rpc_raise's two failure codes (-ENOENT and
// -ESRCH) even though Registry.Raise reports both as KindNoEntity: a
// missing handler registration is -ENOENT, a missing process/thread is
// -ESRCH, split on the error's message the same way the C kernel
// distinguishes them by which lookup failed.
func raiseErrno(err *kernel.Error) int32 {
	if err.Kind != kernel.KindNoEntity {
		return errnoFor(err)
	}
	if strings.Contains(err.Message, "handler") {
		return -errNoEnt
	}
	return -errSrch
}

// rpcRaise implements syscall_rpc_raise: R0=ident va, R1=ident len,
// R2=target pid, R3=data va, with data len as the first stack overflow
// argument.
func rpcRaise(g *Gateway, proc *kernel.Process, th *kernel.Thread, regs *kernel.Registers) {
	identifier, err := readIdentifier(g, proc, uintptr(regs.R[0]), uintptr(regs.R[1]))
	if err != nil {
		fail(regs, errnoFor(err))
		return
	}
	target := kernel.ProcessID(regs.R[2])
	dataVA := uintptr(regs.R[3])

	dataLen, rerr := readStackOverflowArg(g, proc, regs, 0)
	if rerr != nil {
		fail(regs, errnoFor(rerr))
		return
	}

	if err := g.Kernel.RPC.Raise(identifier, proc.ID, target, dataVA, uintptr(dataLen)); err != nil {
		fail(regs, raiseErrno(err))
		return
	}
	succeed(regs, 0)
}

// rpcSetReady implements syscall_rpc_set_ready: the handler thread calls
// this when it has finished servicing a raise, trapping on the undefined
// instruction the raise patched in, so RestoreThread can undo the patch and
// hand th's original register frame — and, if one was queued behind it,
// the next stacked raise — back to it.
func rpcSetReady(g *Gateway, proc *kernel.Process, th *kernel.Thread, regs *kernel.Registers) {
	if err := g.RPC.RestoreThread(th, regs); err != nil {
		fail(regs, errnoFor(err))
		return
	}
	// RestoreThread already overwrote regs with the pre-raise frame; there
	// is no R0 left to populate with a result the way succeed() would.
}
