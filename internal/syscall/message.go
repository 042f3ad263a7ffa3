package syscall

import (
	"github.com/bolthur/kernel/internal/ipc/message"
	"github.com/bolthur/kernel/internal/kernel"
)

// messageCreate implements syscall_message_create: no arguments, installs
// proc's queue if it does not already have one.
func messageCreate(g *Gateway, proc *kernel.Process, th *kernel.Thread, regs *kernel.Registers) {
	if err := message.Setup(proc); err != nil {
		fail(regs, errnoFor(err))
		return
	}
	succeed(regs, 0)
}

// messageDestroy implements syscall_message_destroy: no arguments, no
// failure mode (mirroring the table's "—" return).
func messageDestroy(g *Gateway, proc *kernel.Process, th *kernel.Thread, regs *kernel.Registers) {
	message.Destroy(proc)
	succeed(regs, 0)
}

// messageSendByPID implements syscall_message_send_by_pid: R0=dst pid,
// R1=type, R2=data va, R3=data len, with request_id as the first stack
// overflow argument.
func messageSendByPID(g *Gateway, proc *kernel.Process, th *kernel.Thread, regs *kernel.Registers) {
	dst := kernel.ProcessID(regs.R[0])
	msgType := regs.R[1]
	dataVA := uintptr(regs.R[2])
	dataLen := uintptr(regs.R[3])

	requestID, rerr := readStackOverflowArg(g, proc, regs, 0)
	if rerr != nil {
		fail(regs, errnoFor(rerr))
		return
	}

	var data []byte
	if dataLen > 0 {
		buf, err := readUserBytes(g, proc, dataVA, dataLen)
		if err != nil {
			fail(regs, errnoFor(err))
			return
		}
		data = buf
	}

	id, err := g.Messages.SendByPID(dst, proc.ID, msgType, data, message.ID(requestID))
	if err != nil {
		fail(regs, errnoFor(err))
		return
	}
	succeed(regs, uintptr(id))
}

// messageSendByName implements syscall_message_send_by_name: R0=name va,
// R1=name len, R2=type, R3=data va, with data len and request_id as the
// first two stack overflow arguments.
func messageSendByName(g *Gateway, proc *kernel.Process, th *kernel.Thread, regs *kernel.Registers) {
	nameVA := uintptr(regs.R[0])
	nameLen := uintptr(regs.R[1])
	msgType := regs.R[2]
	dataVA := uintptr(regs.R[3])

	dataLen, rerr := readStackOverflowArg(g, proc, regs, 0)
	if rerr != nil {
		fail(regs, errnoFor(rerr))
		return
	}
	requestID, rerr := readStackOverflowArg(g, proc, regs, 1)
	if rerr != nil {
		fail(regs, errnoFor(rerr))
		return
	}

	nameBytes, err := readUserBytes(g, proc, nameVA, nameLen)
	if err != nil {
		fail(regs, errnoFor(err))
		return
	}
	name := string(nameBytes)

	var data []byte
	if dataLen > 0 {
		buf, err := readUserBytes(g, proc, dataVA, uintptr(dataLen))
		if err != nil {
			fail(regs, errnoFor(err))
			return
		}
		data = buf
	}

	id, err := g.Messages.SendByName(name, proc.ID, msgType, data, message.ID(requestID))
	if err != nil {
		fail(regs, errnoFor(err))
		return
	}
	succeed(regs, uintptr(id))
}

// messageReceive implements syscall_message_receive: R0=buf va, R1=buf
// len. On success, writes the payload into the user buffer and reports
// the sender in R1, the message id in R2, and the payload length in R3:
// out-parameters ride in spare result registers rather than through
// pointers the kernel would have to write user memory with.
func messageReceive(g *Gateway, proc *kernel.Process, th *kernel.Thread, regs *kernel.Registers) {
	bufVA := uintptr(regs.R[0])
	bufLen := int(regs.R[1])

	data, sender, id, err := message.Receive(proc, bufLen)
	if err != nil {
		fail(regs, errnoFor(err))
		return
	}
	if len(data) > 0 {
		if werr := writeUserBytes(g, proc, bufVA, data); werr != nil {
			fail(regs, errnoFor(werr))
			return
		}
	}
	regs.R[1] = uint32(sender)
	regs.R[2] = uint32(id)
	regs.R[3] = uint32(len(data))
	succeed(regs, 0)
}

// messageWaitForResponse implements syscall_message_wait_for_response:
// R0=buf va, R1=buf len, R2=request id. A miss blocks th in
// ThreadWaitingForMessage and returns -ENOMSG so the caller's trap
// handler knows to reschedule.
func messageWaitForResponse(g *Gateway, proc *kernel.Process, th *kernel.Thread, regs *kernel.Registers) {
	bufVA := uintptr(regs.R[0])
	bufLen := int(regs.R[1])
	requestID := message.ID(regs.R[2])

	data, err := g.Messages.WaitForResponse(th, proc, bufLen, requestID)
	if err != nil {
		fail(regs, errnoFor(err))
		return
	}
	if len(data) > 0 {
		if werr := writeUserBytes(g, proc, bufVA, data); werr != nil {
			fail(regs, errnoFor(werr))
			return
		}
	}
	regs.R[3] = uint32(len(data))
	succeed(regs, 0)
}
