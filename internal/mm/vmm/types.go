package vmm

//go:generate stringer -type=ContextType -output context_type_string.go
//go:generate stringer -type=MemType -output memtype_string.go

// ContextType distinguishes a kernel context (upper half, one instance,
// TTBR1) from a user context (lower half, one active at a time, TTBR0).
type ContextType uint8

const (
	ContextKernel ContextType = iota
	ContextUser
)

// IsUser reports whether this is a user context. Satisfies
// kernel.VirtualContext so *Context can be stored on kernel.Process without
// that package importing vmm.
func (t ContextType) IsUser() bool { return t == ContextUser }

// MemType is the ARM short-descriptor memory attribute: normal
// cacheable/bufferable, normal noncacheable, device, or strongly
// ordered. Selects the TEX/C/B encoding of a leaf descriptor.
type MemType uint8

const (
	MemNormalCacheable MemType = iota
	MemNormalNonCacheable
	MemDevice
	MemStronglyOrdered
)

// Flags is the access-permission request passed to Map: readable, writable,
// executable. Device mappings always force execute-never regardless of
// Flags.
type Flags uint8

const (
	FlagRead Flags = 1 << iota
	FlagWrite
	FlagExecute
)

func (f Flags) has(want Flags) bool { return f&want != 0 }
