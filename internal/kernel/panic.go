package kernel

import "github.com/bolthur/kernel/internal/kfmt/early"

// Halter stops the CPU permanently. On real ARM hardware this is a wfi
// loop with interrupts disabled; tests substitute a Halter that just
// records the call. An interface rather than a package function because
// this module has no single target architecture package to call into
// directly.
type Halter interface {
	Halt()
}

// haltFn is mocked by tests.
var haltFn func() = func() {}

var errRuntimePanic = &Error{Module: "rt", Kind: KindNone, Message: "unknown cause"}

// SetHalter installs h as the target of Panic's final halt call.
func SetHalter(h Halter) {
	haltFn = h.Halt
}

// Panic outputs the supplied error (if not nil) to the early console and
// halts. Calls to Panic never return. This is reserved for conditions the
// rest of the tree treats as unrecoverable: the table-pool allocator
// running out of backing frames.
func Panic(e interface{}) {
	var err *Error

	switch t := e.(type) {
	case *Error:
		err = t
	case string:
		errRuntimePanic.Message = t
		err = errRuntimePanic
	case error:
		errRuntimePanic.Message = t.Error()
		err = errRuntimePanic
	}

	early.Printf("\n-----------------------------------\n")
	if err != nil {
		early.Printf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
	}
	early.Printf("*** kernel panic: system halted ***")
	early.Printf("\n-----------------------------------")

	haltFn()
}
