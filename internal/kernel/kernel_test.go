package kernel

import "testing"

func TestNew(t *testing.T) {
	k := NewKernel()
	if k.Arena == nil {
		t.Fatal("New() did not initialize Arena")
	}
	if k.Scheduler != nil || k.RPC != nil {
		t.Fatal("New() should leave Scheduler/RPC unassigned for the caller to wire")
	}
}

func TestErrKernelReturned(t *testing.T) {
	if err := ErrKernelReturned(); err.Module != "kernel" {
		t.Fatalf("ErrKernelReturned().Module = %q; want %q", err.Module, "kernel")
	}
}
