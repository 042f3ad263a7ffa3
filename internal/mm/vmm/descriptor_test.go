package vmm

import "testing"

func TestLeafDescriptorDeviceForcesExecuteNever(t *testing.T) {
	d := leafDescriptor(0x2000_0000, MemDevice, FlagRead|FlagWrite|FlagExecute, ContextUser)
	if d&1 == 0 {
		t.Fatalf("leafDescriptor(device) xn bit = 0, want 1 even though FlagExecute was requested")
	}

	// A non-device mapping that actually asks for execute gets xn clear.
	d = leafDescriptor(0x2000_0000, MemNormalCacheable, FlagRead|FlagExecute, ContextUser)
	if d&1 != 0 {
		t.Fatalf("leafDescriptor(normal, FlagExecute) xn bit = 1, want 0")
	}
}

func TestLeafDescriptorTEXPerMemType(t *testing.T) {
	const cb = (1 << 2) | (1 << 3)

	specs := []struct {
		memType MemType
		wantCB  uint32
	}{
		{MemNormalCacheable, cb},
		{MemNormalNonCacheable, 1 << 3},
		{MemDevice, 1 << 3},
		{MemStronglyOrdered, 0},
	}
	for _, s := range specs {
		d := leafDescriptor(0x1000_0000, s.memType, FlagRead, ContextUser)
		if got := d & cb; got != s.wantCB {
			t.Errorf("leafDescriptor(memType=%v) C|B bits = %#x, want %#x", s.memType, got, s.wantCB)
		}
	}
}

func TestLeafDescriptorAPKernelVsUser(t *testing.T) {
	const apMask = 0b11 << 4

	if got := leafDescriptor(0x1000_0000, MemNormalCacheable, FlagRead|FlagWrite, ContextKernel) & apMask; got != 0b01<<4 {
		t.Fatalf("kernel context AP bits = %#x, want privileged-only RW (0b01<<4)", got)
	}
	if got := leafDescriptor(0x1000_0000, MemNormalCacheable, FlagRead|FlagWrite, ContextUser) & apMask; got != 0b11<<4 {
		t.Fatalf("user context, FlagWrite, AP bits = %#x, want RW for both levels (0b11<<4)", got)
	}
	if got := leafDescriptor(0x1000_0000, MemNormalCacheable, FlagRead, ContextUser) & apMask; got != 0b10<<4 {
		t.Fatalf("user context, read-only, AP bits = %#x, want user-RO (0b10<<4)", got)
	}
}

func TestLeafDescriptorFrameRoundTrips(t *testing.T) {
	const frame = uintptr(0x3400_1000)
	d := &pageDescriptor{word: leafDescriptor(frame, MemNormalCacheable, FlagRead|FlagWrite, ContextUser)}
	if got := d.frame(); got != frame {
		t.Fatalf("frame() = %#x, want %#x", got, frame)
	}

	moved := withFrame(d.word, 0x5000_2000)
	d2 := &pageDescriptor{word: moved}
	if got := d2.frame(); got != 0x5000_2000 {
		t.Fatalf("withFrame().frame() = %#x, want %#x", got, 0x5000_2000)
	}
	// withFrame must not disturb the attribute bits.
	if moved&^0xFFFF_F000 != d.word&^0xFFFF_F000 {
		t.Fatalf("withFrame changed attribute bits: %#x vs %#x", moved&^0xFFFF_F000, d.word&^0xFFFF_F000)
	}
}

func TestTableDescriptorNonSecureForUserOnly(t *testing.T) {
	const tableAddr = uintptr(0x1234_5400)

	kernel := tableDescriptor(tableAddr, ContextKernel)
	if kernel&(1<<3) != 0 {
		t.Fatalf("kernel first-level descriptor NS bit set, want clear")
	}
	user := tableDescriptor(tableAddr, ContextUser)
	if user&(1<<3) == 0 {
		t.Fatalf("user first-level descriptor NS bit clear, want set")
	}

	if got := tableAddress(user); got != tableAddr {
		t.Fatalf("tableAddress() = %#x, want %#x", got, tableAddr)
	}
}
