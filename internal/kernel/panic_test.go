package kernel

import (
	"bytes"
	"testing"

	"github.com/bolthur/kernel/internal/kfmt/early"
)

type bufSink struct {
	bytes.Buffer
}

func (b *bufSink) WriteByte(c byte) { b.Buffer.WriteByte(c) }
func (b *bufSink) Write(p []byte)   { b.Buffer.Write(p) }

type haltRecorder struct{ called bool }

func (h *haltRecorder) Halt() { h.called = true }

func TestPanicWithError(t *testing.T) {
	defer func() { haltFn = func() {} }()

	buf := &bufSink{}
	early.Sink = buf
	defer func() { early.Sink = nil }()

	h := &haltRecorder{}
	SetHalter(h)

	Panic(&Error{Module: "test", Message: "panic test"})

	want := "\n-----------------------------------\n[test] unrecoverable error: panic test\n*** kernel panic: system halted ***\n-----------------------------------"
	if got := buf.String(); got != want {
		t.Fatalf("output = %q; want %q", got, want)
	}
	if !h.called {
		t.Fatal("expected Halt() to be called by Panic")
	}
}

func TestPanicWithoutError(t *testing.T) {
	defer func() { haltFn = func() {} }()

	buf := &bufSink{}
	early.Sink = buf
	defer func() { early.Sink = nil }()

	h := &haltRecorder{}
	SetHalter(h)

	Panic(nil)

	want := "\n-----------------------------------\n*** kernel panic: system halted ***\n-----------------------------------"
	if got := buf.String(); got != want {
		t.Fatalf("output = %q; want %q", got, want)
	}
	if !h.called {
		t.Fatal("expected Halt() to be called by Panic")
	}
}

func TestPanicWithStringAndError(t *testing.T) {
	defer func() { haltFn = func() {} }()
	buf := &bufSink{}
	early.Sink = buf
	defer func() { early.Sink = nil }()
	SetHalter(&haltRecorder{})

	Panic("plain string cause")
	if got := buf.String(); got == "" {
		t.Fatal("expected Panic(string) to produce output")
	}
}
