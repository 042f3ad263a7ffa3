package kernel

// Scheduler is the subset of sched.Scheduler the kernel aggregate needs
// without importing internal/sched directly (sched imports kernel for
// *Process/*Thread, so the dependency can only run one way).
type Scheduler interface {
	Enqueue(t *Thread)
	Next() *Thread
}

// RPCRegistry is the subset of rpc.Registry the kernel aggregate drives.
type RPCRegistry interface {
	Raise(identifier string, source ProcessID, target ProcessID, dataAddress, dataSize uintptr) *Error
}

// Kernel aggregates the global state every syscall and scheduling
// decision threads through: the process/thread arena plus the Scheduler
// and RPCRegistry collaborators. A struct rather than a package-level
// singleton, since this module has no single entry point: both
// cmd/koskit and the test suites construct one.
type Kernel struct {
	Arena     *Arena
	Scheduler Scheduler
	RPC       RPCRegistry
}

// NewKernel constructs a Kernel with an empty Arena. Scheduler and RPC are
// assigned afterwards — by syscall.New when a gateway is built, or
// directly by a driver like cmd/koskit — mirroring hal.go's pattern of
// exposing collaborators that Init wires up rather than hiding them
// behind a constructor that would need to import every component package.
func NewKernel() *Kernel {
	return &Kernel{Arena: NewArena()}
}

// errKernelReturned is a sentinel passed to Panic if whatever top-level
// run loop calls into the Kernel ever returns, which should never happen
// for code driving real hardware.
var errKernelReturned = &Error{Module: "kernel", Kind: KindNone, Message: "run loop returned"}

// ErrKernelReturned reports the sentinel error used when a run loop
// unexpectedly returns. Exposed so cmd/koskit's interactive driver (which
// legitimately returns on quit) doesn't have to duplicate the message.
func ErrKernelReturned() *Error { return errKernelReturned }
