package syscall

import (
	"github.com/bolthur/kernel/internal/kernel"
	"github.com/bolthur/kernel/internal/mm/shared"
	"github.com/bolthur/kernel/internal/mm/vmm"
)

// Protection/flag bit layout for memory_acquire, mirroring
// syscall_memory_acquire's MEMORY_ACQUIRE_PROTECTION_*/MEMORY_FLAG_*
// macros.
const (
	protRead  uint32 = 0x1
	protWrite uint32 = 0x2
	protExec  uint32 = 0x4

	flagPhys   uint32 = 0x1
	flagDevice uint32 = 0x2
)

func contextRange(ctx *vmm.Context) (min, max uintptr) {
	if ctx.Type == vmm.ContextKernel {
		return vmm.KernelStart, vmm.KernelEnd
	}
	return vmm.UserStart, vmm.UserEnd
}

func roundUpPage(n uintptr) uintptr {
	return (n + vmm.PageSize - 1) &^ (vmm.PageSize - 1)
}

func fail(regs *kernel.Registers, errno int32) {
	regs.R[0] = uint32(errno)
}

func succeed(regs *kernel.Registers, value uintptr) {
	regs.R[0] = uint32(value)
}

// memoryAcquire implements syscall_memory_acquire: R0=virt hint (0 for
// "anywhere"), R1=len, R2=protection bits, R3=flags bits. With flagPhys
// set, R0 instead carries the physical address to map 1:1 (the C kernel's
// "overwrite address with NULL" branch once phys is captured).
func memoryAcquire(g *Gateway, proc *kernel.Process, th *kernel.Thread, regs *kernel.Registers) {
	addr := uintptr(regs.R[0])
	length := uintptr(regs.R[1])
	protection := regs.R[2]
	flags := regs.R[3]

	if length == 0 {
		fail(regs, -errInval)
		return
	}
	length = roundUpPage(length)

	ctx, ok := proc.Context.(*vmm.Context)
	if !ok {
		fail(regs, -errInval)
		return
	}
	min, max := contextRange(ctx)

	var mapFlags vmm.Flags
	if protection&protRead != 0 {
		mapFlags |= vmm.FlagRead
	}
	if protection&protWrite != 0 {
		mapFlags |= vmm.FlagWrite
	}
	if protection&protExec != 0 {
		mapFlags |= vmm.FlagExecute
	}
	memType := vmm.MemNormalCacheable
	if flags&flagDevice != 0 {
		memType = vmm.MemDevice
	}

	if flags&flagPhys != 0 {
		phys := uint64(addr) &^ uint64(vmm.PageSize-1)
		start := g.VMM.FindFreeRange(ctx, length, min)
		if start == 0 {
			fail(regs, -errNoMem)
			return
		}
		if err := g.VMM.MapRange(ctx, start, phys, length, memType, mapFlags); err != nil {
			if err.Kind == kernel.KindInUse {
				fail(regs, -errAddrInUse)
				return
			}
			fail(regs, -errIO)
			return
		}
		succeed(regs, start)
		return
	}

	var start uintptr
	if addr != 0 {
		if addr < min || addr >= max || addr+length > max {
			fail(regs, -errNoMem)
			return
		}
		start = addr
	} else {
		start = g.VMM.FindFreeRange(ctx, length, min)
		if start == 0 {
			fail(regs, -errNoMem)
			return
		}
	}

	if err := g.VMM.MapRangeRandom(ctx, start, length, memType, mapFlags); err != nil {
		fail(regs, -errIO)
		return
	}
	succeed(regs, start)
}

// memoryRelease implements syscall_memory_release: R0=virt, R1=len.
// Rejects a range currently backed by a shared-memory attachment (those
// are released through memory_shared_detach instead, mirroring the
// C kernel's shared_memory_address_is_shared guard).
func memoryRelease(g *Gateway, proc *kernel.Process, th *kernel.Thread, regs *kernel.Registers) {
	addr := uintptr(regs.R[0])
	length := uintptr(regs.R[1])
	if length == 0 {
		fail(regs, -errInval)
		return
	}
	length = roundUpPage(length)

	ctx, ok := proc.Context.(*vmm.Context)
	if !ok {
		fail(regs, -errInval)
		return
	}
	min, max := contextRange(ctx)
	if addr < min || addr >= max || addr+length > max {
		fail(regs, -errInval)
		return
	}
	if g.Shared != nil && g.Shared.AddressIsShared(proc, addr, length) {
		fail(regs, -errAddrNotAvai)
		return
	}

	n := length / vmm.PageSize
	for i := uintptr(0); i < n; i++ {
		if err := g.VMM.Unmap(ctx, addr+i*vmm.PageSize, true); err != nil {
			fail(regs, -errIO)
			return
		}
	}
	succeed(regs, 0)
}

// memorySharedCreate implements syscall_memory_shared_create: R0=len,
// returns the new segment id in R0.
func memorySharedCreate(g *Gateway, proc *kernel.Process, th *kernel.Thread, regs *kernel.Registers) {
	length := uintptr(regs.R[0])
	id, err := g.Shared.Create(length)
	if err != nil {
		fail(regs, errnoFor(err))
		return
	}
	succeed(regs, uintptr(id))
}

// memorySharedAttach implements syscall_memory_shared_attach: R0=segment
// id, R1=virt hint. The C kernel collapses every attach failure (unknown
// id included) to a single -ENOMEM, since shared_memory_attach itself
// only ever signals failure by returning 0.
func memorySharedAttach(g *Gateway, proc *kernel.Process, th *kernel.Thread, regs *kernel.Registers) {
	id := shared.ID(regs.R[0])
	hint := uintptr(regs.R[1])
	addr, err := g.Shared.Attach(proc, id, hint)
	if err != nil {
		fail(regs, -errNoMem)
		return
	}
	succeed(regs, addr)
}

// memorySharedDetach implements syscall_memory_shared_detach: R0=segment
// id.
func memorySharedDetach(g *Gateway, proc *kernel.Process, th *kernel.Thread, regs *kernel.Registers) {
	id := shared.ID(regs.R[0])
	if err := g.Shared.Detach(proc, id); err != nil {
		fail(regs, -errIO)
		return
	}
	succeed(regs, 0)
}

// memoryTranslatePhysical implements syscall_memory_translate_physical:
// R0=virt, returns the mapped physical address in R0.
func memoryTranslatePhysical(g *Gateway, proc *kernel.Process, th *kernel.Thread, regs *kernel.Registers) {
	addr := uintptr(regs.R[0])
	ctx, ok := proc.Context.(*vmm.Context)
	if !ok {
		fail(regs, -errInval)
		return
	}
	min, max := contextRange(ctx)
	if addr < min || addr >= max {
		fail(regs, -errInval)
		return
	}
	phys, mapped := g.VMM.GetMappedAddress(ctx, addr)
	if !mapped {
		fail(regs, -errInval)
		return
	}
	succeed(regs, uintptr(phys))
}
