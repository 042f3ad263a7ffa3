// koskit is an interactive console for driving the execution substrate
// (internal/kernel, internal/mm/vmm, internal/ipc/message, internal/ipc/rpc,
// internal/sched) from a terminal, without real ARM hardware or a QEMU
// harness underneath it. Modeled on smoynes-elsie's cmd/elsie: a small
// main that assembles one in-process machine and exercises it, except
// koskit keeps running as a line-oriented REPL (smoynes-elsie's
// internal/tty.Console pattern for putting the terminal into raw mode)
// instead of single-stepping a fixed instruction sequence.
//
// koskit is the one package in this tree allowed to touch a real terminal
// or a real physical-frame range; every other package stays host- and
// hardware-independent, driven entirely through its Go API in tests.
package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/bolthur/kernel/internal/ipc/message"
	"github.com/bolthur/kernel/internal/ipc/rpc"
	"github.com/bolthur/kernel/internal/kernel"
	"github.com/bolthur/kernel/internal/mm/pmm"
	"github.com/bolthur/kernel/internal/mm/shared"
	"github.com/bolthur/kernel/internal/mm/vmm"
	"github.com/bolthur/kernel/internal/sched"
	"golang.org/x/term"
)

// machine bundles every collaborator the syscall gateway would otherwise
// wire up, the same grouping internal/syscall.Gateway holds, but driven
// directly here instead of through the register-based ABI: koskit is a
// developer console, not a trap handler, so there is no saved R0-R3 frame
// to marshal through.
type machine struct {
	kern     *kernel.Kernel
	arena    *kernel.Arena
	vm       *vmm.Manager
	messages *message.Manager
	rpcReg   *rpc.Registry
	shared   *shared.Manager
	sched    *sched.Scheduler
	stacks   *bumpStackAllocator
}

// processSpan/codeOffset/stackOffset give each created process a disjoint slice of the
// user half of the address space: processes are spaced
// 1 MiB apart so a handful of REPL-created processes never collide.
const (
	processSpan uintptr = 1 << 20
	codeOffset  uintptr = 0x1000
	stackOffset uintptr = 0x8000
)

func newMachine() (*machine, error) {
	cache := noopCache{}
	alloc := pmm.NewBitmapAllocator(0x1000_0000, 4096)
	vm, err := vmm.New(alloc, cache)
	if err != nil {
		return nil, err
	}
	kern := kernel.NewKernel()
	arena := kern.Arena
	msgMgr := message.NewManager(arena)
	rpcReg := rpc.New(arena, vm, cache, msgMgr)
	sharedMgr := shared.New(vm)
	scheduler := sched.New(arena, vm)
	kern.Scheduler = scheduler
	kern.RPC = rpcReg
	msgMgr.OnWake = func(*kernel.Thread) { scheduler.RequestReschedule() }

	return &machine{
		kern:     kern,
		arena:    arena,
		vm:       vm,
		messages: msgMgr,
		rpcReg:   rpcReg,
		shared:   sharedMgr,
		sched:    scheduler,
		stacks:   newBumpStackAllocator(vmm.UserStart+processSpan*64, vmm.UserEnd),
	}, nil
}

// createProcess builds a user context, maps one code page and one stack
// page, and registers a single ready thread, mirroring the shape
// syscall.processFork builds for a child except this is a fresh process
// rather than a fork.
func (m *machine) createProcess(name string, priority uint8) (*kernel.Process, *kernel.Thread, error) {
	pid := m.arena.NewProcessID()
	base := vmm.UserStart + processSpan*uintptr(pid)
	if base+processSpan > vmm.UserEnd {
		return nil, nil, fmt.Errorf("process span exhausted")
	}

	ctx, kerr := m.vm.Create(vmm.ContextUser)
	if kerr != nil {
		return nil, nil, kerr
	}
	codeVA := base + codeOffset
	stackVA := base + stackOffset
	codePhys, ok := m.vm.Alloc.FindFreePage()
	if !ok {
		return nil, nil, fmt.Errorf("out of physical frames")
	}
	if kerr := m.vm.Map(ctx, codeVA, codePhys, vmm.MemNormalCacheable, vmm.FlagRead|vmm.FlagWrite|vmm.FlagExecute); kerr != nil {
		return nil, nil, kerr
	}
	stackPhys, ok := m.vm.Alloc.FindFreePage()
	if !ok {
		return nil, nil, fmt.Errorf("out of physical frames")
	}
	if kerr := m.vm.Map(ctx, stackVA, stackPhys, vmm.MemNormalCacheable, vmm.FlagRead|vmm.FlagWrite); kerr != nil {
		return nil, nil, kerr
	}

	tid := m.arena.NewThreadID()
	th := &kernel.Thread{
		ID:        tid,
		Process:   pid,
		Priority:  priority,
		State:     kernel.ThreadReady,
		Registers: &kernel.Registers{PC: uint32(codeVA), SP: uint32(stackVA)},
		StackBase: stackVA,
		StackSize: vmm.PageSize,
	}
	proc := &kernel.Process{
		ID:       pid,
		Name:     name,
		Priority: priority,
		State:    kernel.ProcessReady,
		Context:  ctx,
		Threads:  map[kernel.ThreadID]*kernel.Thread{tid: th},
		Stacks:   m.stacks,
	}
	if kerr := message.Setup(proc); kerr != nil {
		return nil, nil, kerr
	}
	m.arena.Add(proc)
	m.sched.Enqueue(th)
	return proc, th, nil
}

func main() {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		state, err := term.MakeRaw(fd)
		if err == nil {
			defer term.Restore(fd, state)
		}
	}

	t := term.NewTerminal(struct {
		io.Reader
		io.Writer
	}{os.Stdin, os.Stdout}, "koskit> ")

	mach, err := newMachine()
	if err != nil {
		fmt.Fprintln(os.Stderr, "koskit: init:", err)
		os.Exit(1)
	}

	fmt.Fprintln(t, "koskit -- bolthur/kernel execution substrate console")
	fmt.Fprintln(t, "type 'help' for commands, 'quit' to exit")

	for {
		line, err := t.ReadLine()
		if err != nil {
			return
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		if quit := dispatch(t, mach, line); quit {
			return
		}
	}
}

// dispatch runs one REPL line and reports whether the session should end.
func dispatch(t *term.Terminal, m *machine, line string) bool {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "quit", "exit":
		return true
	case "help":
		printHelp(t)
	case "ps":
		cmdPS(t, m)
	case "new":
		cmdNew(t, m, args)
	case "kill":
		cmdKill(t, m, args)
	case "send":
		cmdSend(t, m, args)
	case "recv":
		cmdRecv(t, m, args)
	case "wait":
		cmdWait(t, m, args)
	case "rpcreg":
		cmdRPCRegister(t, m, args)
	case "rpcraise":
		cmdRPCRaise(t, m, args)
	case "step":
		cmdStep(t, m)
	default:
		fmt.Fprintf(t, "unknown command %q, try 'help'\n", cmd)
	}
	return false
}

func printHelp(t *term.Terminal) {
	fmt.Fprint(t, `commands:
  ps                                   list processes and threads
  new <name> <priority>                create a process with one thread
  kill <pid>                           mark a process and its threads kill
  send <dst-pid> <src-pid> <text>      message_send_by_pid with request_id=0
  recv <pid>                           message_receive (dequeue head)
  wait <pid> <request-id>              message_wait_for_response
  rpcreg <identifier> <pid> <handler>  register an RPC handler (handler in hex)
  rpcraise <identifier> <src> <target> <text>   raise an RPC
  step                                 run one scheduler pick+switch cycle
  quit                                 leave koskit
`)
}

func cmdPS(t *term.Terminal, m *machine) {
	m.arena.Each(func(p *kernel.Process) {
		fmt.Fprintf(t, "pid=%d name=%q priority=%d state=%s\n", p.ID, p.Name, p.Priority, p.State)
		for _, th := range p.Threads {
			fmt.Fprintf(t, "  tid=%d state=%s pc=%#x sp=%#x\n", th.ID, th.State, th.Registers.(*kernel.Registers).PC, th.Registers.(*kernel.Registers).SP)
		}
	})
}

func cmdNew(t *term.Terminal, m *machine, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(t, "usage: new <name> <priority>")
		return
	}
	prio, err := strconv.Atoi(args[1])
	if err != nil {
		fmt.Fprintln(t, "bad priority:", err)
		return
	}
	proc, th, err := m.createProcess(args[0], uint8(prio))
	if err != nil {
		fmt.Fprintln(t, "new:", err)
		return
	}
	fmt.Fprintf(t, "created pid=%d tid=%d\n", proc.ID, th.ID)
}

func cmdKill(t *term.Terminal, m *machine, args []string) {
	pid, ok := parsePID(t, args, 0)
	if !ok {
		return
	}
	proc := m.arena.Lookup(pid)
	if proc == nil {
		fmt.Fprintln(t, "no such process")
		return
	}
	for _, th := range proc.Threads {
		m.sched.MarkThreadKill(th)
	}
	m.sched.MarkProcessKill(proc)
	fmt.Fprintln(t, "marked kill, will be swept on the next step")
}

func cmdSend(t *term.Terminal, m *machine, args []string) {
	if len(args) < 3 {
		fmt.Fprintln(t, "usage: send <dst-pid> <src-pid> <text...>")
		return
	}
	dst, ok1 := parsePID(t, args, 0)
	src, ok2 := parsePID(t, args, 1)
	if !ok1 || !ok2 {
		return
	}
	payload := []byte(strings.Join(args[2:], " "))
	id, kerr := m.messages.SendByPID(dst, src, 0, payload, 0)
	if kerr != nil {
		fmt.Fprintln(t, "send:", kerr)
		return
	}
	fmt.Fprintf(t, "sent message id=%d\n", id)
}

func cmdRecv(t *term.Terminal, m *machine, args []string) {
	pid, ok := parsePID(t, args, 0)
	if !ok {
		return
	}
	proc := m.arena.Lookup(pid)
	if proc == nil {
		fmt.Fprintln(t, "no such process")
		return
	}
	data, sender, id, kerr := message.Receive(proc, 4096)
	if kerr != nil {
		fmt.Fprintln(t, "recv:", kerr)
		return
	}
	fmt.Fprintf(t, "from pid=%d id=%d: %q\n", sender, id, data)
}

func cmdWait(t *term.Terminal, m *machine, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(t, "usage: wait <pid> <request-id>")
		return
	}
	pid, ok := parsePID(t, args, 0)
	if !ok {
		return
	}
	reqID, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		fmt.Fprintln(t, "bad request-id:", err)
		return
	}
	proc := m.arena.Lookup(pid)
	if proc == nil {
		fmt.Fprintln(t, "no such process")
		return
	}
	var th *kernel.Thread
	for _, cand := range proc.Threads {
		th = cand
		break
	}
	data, kerr := m.messages.WaitForResponse(th, proc, 4096, message.ID(reqID))
	if kerr != nil {
		fmt.Fprintln(t, "wait:", kerr)
		return
	}
	fmt.Fprintf(t, "matched: %q\n", data)
}

func cmdRPCRegister(t *term.Terminal, m *machine, args []string) {
	if len(args) < 3 {
		fmt.Fprintln(t, "usage: rpcreg <identifier> <pid> <handler-hex>")
		return
	}
	pid, ok := parsePID(t, args, 1)
	if !ok {
		return
	}
	proc := m.arena.Lookup(pid)
	if proc == nil {
		fmt.Fprintln(t, "no such process")
		return
	}
	handler, err := strconv.ParseUint(strings.TrimPrefix(args[2], "0x"), 16, 64)
	if err != nil {
		fmt.Fprintln(t, "bad handler address:", err)
		return
	}
	if kerr := m.rpcReg.Register(args[0], proc, uintptr(handler)); kerr != nil {
		fmt.Fprintln(t, "rpcreg:", kerr)
		return
	}
	fmt.Fprintln(t, "registered")
}

func cmdRPCRaise(t *term.Terminal, m *machine, args []string) {
	if len(args) < 3 {
		fmt.Fprintln(t, "usage: rpcraise <identifier> <src-pid> <target-pid> [text...]")
		return
	}
	src, ok1 := parsePID(t, args, 1)
	target, ok2 := parsePID(t, args, 2)
	if !ok1 || !ok2 {
		return
	}
	srcProc := m.arena.Lookup(src)
	if srcProc == nil {
		fmt.Fprintln(t, "no such source process")
		return
	}
	var dataVA, dataLen uintptr
	if len(args) > 3 {
		payload := []byte(strings.Join(args[3:], " "))
		var th *kernel.Thread
		for _, cand := range srcProc.Threads {
			th = cand
			break
		}
		stackVA := th.StackBase
		ctx := srcProc.Context.(*vmm.Context)
		phys, ok := m.vm.GetMappedAddress(ctx, stackVA)
		if !ok {
			fmt.Fprintln(t, "rpcraise: source stack page is not mapped")
			return
		}
		win, kerr := m.vm.MapTemporary(phys, uintptr(len(payload)))
		if kerr != nil {
			fmt.Fprintln(t, "rpcraise:", kerr)
			return
		}
		m.vm.Write(win, payload)
		m.vm.UnmapTemporary(win)
		dataVA, dataLen = stackVA, uintptr(len(payload))
	}
	if kerr := m.rpcReg.Raise(args[0], src, target, dataVA, dataLen); kerr != nil {
		fmt.Fprintln(t, "rpcraise:", kerr)
		return
	}
	fmt.Fprintln(t, "raised")
}

func cmdStep(t *term.Terminal, m *machine) {
	if m.sched.TakeRescheduleRequest() {
		fmt.Fprintln(t, "(a message wake-up had requested this reschedule)")
	}
	var frame kernel.Registers
	if !m.sched.Schedule(&frame, false) {
		fmt.Fprintln(t, "no runnable thread")
		return
	}
	active := m.sched.Active()
	fmt.Fprintf(t, "switched to tid=%d pc=%#x\n", active.ID, frame.PC)
}

func parsePID(t *term.Terminal, args []string, i int) (kernel.ProcessID, bool) {
	if i >= len(args) {
		fmt.Fprintln(t, "missing pid argument")
		return 0, false
	}
	v, err := strconv.ParseUint(args[i], 10, 32)
	if err != nil {
		fmt.Fprintln(t, "bad pid:", err)
		return 0, false
	}
	return kernel.ProcessID(v), true
}
