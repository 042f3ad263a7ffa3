package main

// noopCache is the CacheController this REPL wires into vmm.Manager and
// rpc.Registry. There is no real ARMv7 target behind koskit (it drives the
// execution substrate in-process on the host), so every barrier/invalidate
// call is a no-op; internal/hal's doc comment makes the same point about
// every concrete implementation in this tree being a test fake in the
// absence of real hardware. The call *sequence* koskit triggers through
// rpc.Registry.Raise/RestoreThread is still the real one -- only the
// hardware effect is missing.
type noopCache struct{}

func (noopCache) DataMemoryBarrier()         {}
func (noopCache) InvalidateICache()          {}
func (noopCache) InvalidateDCache()          {}
func (noopCache) InvalidatePrefetchBuffer()  {}
func (noopCache) InvalidateTLBEntry(uintptr) {}
func (noopCache) InvalidateTLBAll()          {}
func (noopCache) InstructionSyncBarrier()    {}
func (noopCache) DataSyncBarrier()           {}
