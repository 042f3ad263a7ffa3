package syscall

import "github.com/bolthur/kernel/internal/kernel"

// POSIX-style errno values used as the syscall ABI's negative-return
// encoding: negative values in [-4095, -1] encode error kinds. The kinds
// themselves are abstract; POSIX numbers are just the wire encoding.
const (
	errNoEnt       = 2
	errSrch        = 3
	errIO          = 5
	errNoMem       = 12
	errExist       = 17
	errInval       = 22
	errNoSys       = 38
	errMsgSize     = 90
	errNoMsg       = 42
	errAddrInUse   = 98
	errAddrNotAvai = 99
)

// errnoFor maps a *kernel.Error's Kind to its default negative-errno
// encoding, the fallback every handler uses unless an operation calls
// for a different code for the same Kind.
func errnoFor(err *kernel.Error) int32 {
	if err == nil {
		return 0
	}
	switch err.Kind {
	case kernel.KindInvalid:
		return -errInval
	case kernel.KindNoMemory:
		return -errNoMem
	case kernel.KindInUse:
		return -errAddrInUse
	case kernel.KindIO:
		return -errIO
	case kernel.KindNoEntity:
		return -errNoEnt
	case kernel.KindAlreadyExists:
		return -errExist
	case kernel.KindNoMessage:
		return -errNoMsg
	case kernel.KindMessageTooBig:
		return -errMsgSize
	case kernel.KindUnimplemented:
		return -errNoSys
	default:
		return -errIO
	}
}
