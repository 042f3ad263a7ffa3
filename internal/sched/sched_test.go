package sched

import (
	"bytes"
	"strings"
	"testing"

	"github.com/bolthur/kernel/internal/kernel"
	"github.com/bolthur/kernel/internal/kfmt"
)

func newProcAndThread(arena *kernel.Arena, pid kernel.ProcessID, tid kernel.ThreadID, priority uint8, state kernel.ThreadState) (*kernel.Process, *kernel.Thread) {
	th := &kernel.Thread{ID: tid, Process: pid, Priority: priority, State: state, Registers: &kernel.Registers{PC: uintptr32(tid)}}
	proc := &kernel.Process{ID: pid, Priority: priority, State: kernel.ProcessReady, Threads: map[kernel.ThreadID]*kernel.Thread{tid: th}}
	arena.Add(proc)
	return proc, th
}

func uintptr32(id kernel.ThreadID) uint32 { return uint32(id) }

// TestRoundRobin: with N ready threads at the same priority and no other
// priority populated, successive schedule calls visit them in cyclic
// insertion order.
func TestRoundRobin(t *testing.T) {
	arena := kernel.NewArena()
	s := New(arena, nil)

	var threads []*kernel.Thread
	for i := kernel.ThreadID(1); i <= 3; i++ {
		_, th := newProcAndThread(arena, kernel.ProcessID(i), i, 5, kernel.ThreadReady)
		threads = append(threads, th)
		s.Enqueue(th)
	}

	var order []*kernel.Thread
	for i := 0; i < 6; i++ {
		next := s.Next()
		if next == nil {
			t.Fatalf("Next() = nil at step %d", i)
		}
		order = append(order, next)
		next.State = kernel.ThreadHalted
	}

	for i, th := range order {
		want := threads[i%3]
		if th != want {
			t.Fatalf("order[%d] = thread %d; want thread %d", i, th.ID, want.ID)
		}
	}
}

// TestPriorityPreemption: a higher-priority thread becoming ready
// displaces a lower-priority running thread on the next schedule call.
func TestPriorityPreemption(t *testing.T) {
	arena := kernel.NewArena()
	s := New(arena, nil)

	_, low := newProcAndThread(arena, 1, 1, 1, kernel.ThreadReady)
	s.Enqueue(low)

	frame := &kernel.Registers{}
	if ok := s.Schedule(frame, false); !ok {
		t.Fatal("Schedule() = false; want true (low-priority thread runnable)")
	}
	if s.Active() != low {
		t.Fatalf("Active() = %v; want low-priority thread", s.Active())
	}

	_, high := newProcAndThread(arena, 2, 2, 10, kernel.ThreadReady)
	s.Enqueue(high)

	if ok := s.Schedule(frame, false); !ok {
		t.Fatal("Schedule() = false; want true")
	}
	if s.Active() != high {
		t.Fatalf("Active() after higher-priority thread arrives = %v; want high-priority thread", s.Active())
	}
	if low.State != kernel.ThreadReady {
		t.Fatalf("outgoing thread state = %v; want ThreadReady", low.State)
	}
}

// TestScheduleSavesOutgoingFrame: the trap frame carries the interrupted
// thread's latest user state; a switch must store it on the outgoing
// thread before the successor's frame is copied over it.
func TestScheduleSavesOutgoingFrame(t *testing.T) {
	arena := kernel.NewArena()
	s := New(arena, nil)

	_, a := newProcAndThread(arena, 1, 1, 5, kernel.ThreadReady)
	_, b := newProcAndThread(arena, 2, 2, 5, kernel.ThreadReady)
	s.Enqueue(a)
	s.Enqueue(b)

	frame := &kernel.Registers{}
	if ok := s.Schedule(frame, false); !ok {
		t.Fatal("Schedule() = false; want true")
	}
	first := s.Active()

	// Simulate the running thread advancing before the next trap.
	frame.PC = 0xBEEF
	frame.R[4] = 42

	if ok := s.Schedule(frame, false); !ok {
		t.Fatal("Schedule() = false; want true")
	}
	if s.Active() == first {
		t.Fatal("round-robin did not switch threads")
	}
	saved := first.Registers.(*kernel.Registers)
	if saved.PC != 0xBEEF || saved.R[4] != 42 {
		t.Fatalf("outgoing frame not saved: PC=%#x R4=%d; want PC=0xBEEF R4=42", saved.PC, saved.R[4])
	}
}

func TestNextTracesPickWhenLogEnabled(t *testing.T) {
	arena := kernel.NewArena()
	s := New(arena, nil)

	var buf bytes.Buffer
	s.Log = kfmt.NewLogger("[sched] ", &buf)
	s.Log.Enabled = true

	_, th := newProcAndThread(arena, 1, 7, 5, kernel.ThreadReady)
	s.Enqueue(th)

	if got := s.Next(); got != th {
		t.Fatalf("Next() = %v, want thread 7", got)
	}
	if !strings.Contains(buf.String(), "pick thread=7 process=1 priority=5") {
		t.Fatalf("expected a pick trace line, got %q", buf.String())
	}
}

func TestScheduleKernelModeNoSwitch(t *testing.T) {
	arena := kernel.NewArena()
	s := New(arena, nil)
	_, th := newProcAndThread(arena, 1, 1, 1, kernel.ThreadReady)
	s.Enqueue(th)

	frame := &kernel.Registers{PC: 0xDEAD}
	if ok := s.Schedule(frame, true); !ok {
		t.Fatal("Schedule(kernelMode=true) = false; want true (no-op success)")
	}
	if s.Active() != nil {
		t.Fatal("Schedule(kernelMode=true) must not switch")
	}
	if frame.PC != 0xDEAD {
		t.Fatal("Schedule(kernelMode=true) must not touch the trap frame")
	}
}

func TestRescheduleRequestIsConsumedOnce(t *testing.T) {
	s := New(kernel.NewArena(), nil)
	if s.TakeRescheduleRequest() {
		t.Fatal("fresh scheduler reports a pending reschedule")
	}
	s.RequestReschedule()
	if !s.TakeRescheduleRequest() {
		t.Fatal("RequestReschedule() not observed")
	}
	if s.TakeRescheduleRequest() {
		t.Fatal("reschedule request not consumed by Take")
	}
}

func TestNextSkipsKillProcess(t *testing.T) {
	arena := kernel.NewArena()
	s := New(arena, nil)
	proc, th := newProcAndThread(arena, 1, 1, 1, kernel.ThreadReady)
	s.Enqueue(th)
	proc.State = kernel.ProcessKill

	if got := s.Next(); got != nil {
		t.Fatalf("Next() = %v; want nil (owning process killed)", got)
	}
}

func TestStartBootstraps(t *testing.T) {
	arena := kernel.NewArena()
	s := New(arena, nil)
	_, th := newProcAndThread(arena, 1, 1, 1, kernel.ThreadReady)
	s.Enqueue(th)

	regs, err := s.Start()
	if err != nil {
		t.Fatalf("Start() = %v; want nil", err)
	}
	if regs == nil {
		t.Fatal("Start() returned nil registers")
	}
	if s.Active() != th {
		t.Fatalf("Active() after Start() = %v; want %v", s.Active(), th)
	}
}

func TestMarkProcessKillCleansUpOnSchedule(t *testing.T) {
	arena := kernel.NewArena()
	s := New(arena, nil)
	proc, th := newProcAndThread(arena, 1, 1, 1, kernel.ThreadReady)
	s.Enqueue(th)

	s.MarkThreadKill(th)
	s.MarkProcessKill(proc)
	if arena.Lookup(1) == nil {
		t.Fatal("process removed before a Schedule cleanup sweep ran")
	}

	s.Schedule(&kernel.Registers{}, true)
	if arena.Lookup(1) != nil {
		t.Fatal("Schedule() did not sweep a fully-killed process")
	}
}
