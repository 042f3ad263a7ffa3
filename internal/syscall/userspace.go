package syscall

import (
	"github.com/bolthur/kernel/internal/kernel"
	"github.com/bolthur/kernel/internal/mm/vmm"
)

// eachUserPage walks [va, va+size) one page-bounded chunk at a time,
// resolving each chunk's physical address in proc's virtual context and
// handing fn a temporary window over it — the same MapTemporary mechanism
// internal/ipc/rpc.Registry.readPayload uses to reach a foreign process's
// memory from kernel code. Page-wise because a user buffer's backing
// frames need not be physically contiguous.
func eachUserPage(g *Gateway, proc *kernel.Process, va uintptr, size uintptr, fn func(win *vmm.TempWindow, done, chunk uintptr)) *kernel.Error {
	ctx, ok := proc.Context.(*vmm.Context)
	if !ok {
		return kernel.New("syscall", kernel.KindInvalid, "process has no virtual context")
	}
	for done := uintptr(0); done < size; {
		addr := va + done
		offset := addr & (vmm.PageSize - 1)
		chunk := vmm.PageSize - offset
		if remaining := size - done; chunk > remaining {
			chunk = remaining
		}

		phys, ok := g.VMM.GetMappedAddress(ctx, addr)
		if !ok {
			return kernel.New("syscall", kernel.KindInvalid, "user buffer is not mapped")
		}
		win, err := g.VMM.MapTemporary(phys+uint64(offset), chunk)
		if err != nil {
			return err
		}
		fn(win, done, chunk)
		g.VMM.UnmapTemporary(win)
		done += chunk
	}
	return nil
}

// readUserBytes copies size bytes out of proc's virtual context starting
// at va.
func readUserBytes(g *Gateway, proc *kernel.Process, va uintptr, size uintptr) ([]byte, *kernel.Error) {
	buf := make([]byte, size)
	err := eachUserPage(g, proc, va, size, func(win *vmm.TempWindow, done, chunk uintptr) {
		g.VMM.Read(win, buf[done:done+chunk])
	})
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// writeUserBytes copies data into proc's virtual context starting at va.
func writeUserBytes(g *Gateway, proc *kernel.Process, va uintptr, data []byte) *kernel.Error {
	return eachUserPage(g, proc, va, uintptr(len(data)), func(win *vmm.TempWindow, done, chunk uintptr) {
		g.VMM.Write(win, data[done:done+chunk])
	})
}

// readStackOverflowArg reads the nth argument beyond the four that fit in
// R0-R3, from proc's user stack at regs.SP + n*4 words — the ARM EABI
// convention (R0-R3 carry the first four arguments, the rest overflow
// onto the user stack), reached the same way any other foreign
// memory is: through a temporary mapping rather than a direct pointer
// dereference.
func readStackOverflowArg(g *Gateway, proc *kernel.Process, regs *kernel.Registers, n uintptr) (uint32, *kernel.Error) {
	buf, err := readUserBytes(g, proc, uintptr(regs.SP)+n*4, 4)
	if err != nil {
		return 0, err
	}
	return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24, nil
}
