package kernel

import "testing"

func TestThreadRPCBackupSingle(t *testing.T) {
	th := &Thread{ID: 1}
	b := &RPCBackup{Address: 0x1000}

	th.PushRPCBackup(b)
	if th.RPCBackup != b {
		t.Fatalf("RPCBackup = %v; want %v", th.RPCBackup, b)
	}

	done := th.PopRPCBackup()
	if done != b {
		t.Fatalf("PopRPCBackup() = %v; want %v", done, b)
	}
	if th.RPCBackup != nil {
		t.Fatalf("RPCBackup after pop = %v; want nil", th.RPCBackup)
	}
}

func TestThreadRPCBackupFIFOOrder(t *testing.T) {
	th := &Thread{ID: 1}
	b1 := &RPCBackup{Address: 0x1000}
	b2 := &RPCBackup{Address: 0x2000}
	b3 := &RPCBackup{Address: 0x3000}

	th.PushRPCBackup(b1)
	th.PushRPCBackup(b2)
	th.PushRPCBackup(b3)

	if th.RPCBackup != b1 {
		t.Fatalf("active backup = %v; want %v (first raise stays active)", th.RPCBackup, b1)
	}
	if len(th.RPCQueue) != 2 {
		t.Fatalf("RPCQueue len = %d; want 2", len(th.RPCQueue))
	}

	for i, want := range []*RPCBackup{b1, b2, b3} {
		got := th.PopRPCBackup()
		if got != want {
			t.Fatalf("pop #%d = %v; want %v (restore order must be FIFO)", i, got, want)
		}
	}

	if got := th.PopRPCBackup(); got != nil {
		t.Fatalf("pop on empty = %v; want nil", got)
	}
}

func TestThreadStateString(t *testing.T) {
	if got, want := ThreadActive.String(), "ThreadActive"; got != want {
		t.Errorf("ThreadActive.String() = %q; want %q", got, want)
	}
	if got, want := ThreadState(99).String(), "ThreadState(99)"; got != want {
		t.Errorf("ThreadState(99).String() = %q; want %q", got, want)
	}
}
