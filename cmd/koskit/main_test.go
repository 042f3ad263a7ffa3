package main

import (
	"testing"

	"github.com/bolthur/kernel/internal/ipc/message"
	"github.com/bolthur/kernel/internal/kernel"
)

func TestBumpStackAllocatorAcquireExhaustion(t *testing.T) {
	a := newBumpStackAllocator(0x1000, 0x3000)

	base, ok := a.Acquire(0x1000)
	if !ok || base != 0x1000 {
		t.Fatalf("first Acquire = (%#x, %v), want (0x1000, true)", base, ok)
	}
	base, ok = a.Acquire(0x1000)
	if !ok || base != 0x2000 {
		t.Fatalf("second Acquire = (%#x, %v), want (0x2000, true)", base, ok)
	}
	if _, ok := a.Acquire(0x1000); ok {
		t.Fatal("third Acquire should fail, region exhausted")
	}
	a.Release(0x1000) // no-op; region stays exhausted
	if _, ok := a.Acquire(1); ok {
		t.Fatal("Acquire after Release should still fail (bump allocator never reclaims)")
	}
}

func TestNewMachineCreatesKernelContext(t *testing.T) {
	m, err := newMachine()
	if err != nil {
		t.Fatalf("newMachine: %v", err)
	}
	if m.vm.KernelContext() == nil {
		t.Fatal("expected a kernel context to exist after newMachine")
	}
	if m.kern.Scheduler == nil || m.kern.RPC == nil {
		t.Fatal("expected newMachine to wire the Kernel aggregate's collaborators")
	}
	if m.kern.Arena != m.arena {
		t.Fatal("machine and Kernel aggregate must share one arena")
	}
}

func TestCreateProcessAndMessageRoundTrip(t *testing.T) {
	m, err := newMachine()
	if err != nil {
		t.Fatalf("newMachine: %v", err)
	}

	a, _, err := m.createProcess("sender", 1)
	if err != nil {
		t.Fatalf("createProcess(sender): %v", err)
	}
	b, _, err := m.createProcess("receiver", 1)
	if err != nil {
		t.Fatalf("createProcess(receiver): %v", err)
	}

	id, kerr := m.messages.SendByPID(b.ID, a.ID, 7, []byte("hi"), 0)
	if kerr != nil {
		t.Fatalf("SendByPID: %v", kerr)
	}
	if id == 0 {
		t.Fatal("expected a nonzero message id")
	}

	data, sender, gotID, kerr := message.Receive(b, 16)
	if kerr != nil {
		t.Fatalf("Receive: %v", kerr)
	}
	if sender != a.ID {
		t.Fatalf("sender = %d, want %d", sender, a.ID)
	}
	if gotID != id {
		t.Fatalf("message id = %d, want %d", gotID, id)
	}
	if string(data) != "hi" {
		t.Fatalf("payload = %q, want %q", data, "hi")
	}
}

func TestStepPicksAmongReadyThreads(t *testing.T) {
	m, err := newMachine()
	if err != nil {
		t.Fatalf("newMachine: %v", err)
	}
	if _, _, err := m.createProcess("only", 1); err != nil {
		t.Fatalf("createProcess: %v", err)
	}

	var frame kernel.Registers
	if !m.sched.Schedule(&frame, false) {
		t.Fatal("expected a runnable thread to be scheduled")
	}
	if m.sched.Active() == nil {
		t.Fatal("expected an active thread after scheduling")
	}
}
