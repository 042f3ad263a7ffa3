package kernel

import "testing"

func TestRegistersProgramCounter(t *testing.T) {
	r := &Registers{PC: 0x8000}
	if got, want := r.ProgramCounter(), uintptr(0x8000); got != want {
		t.Fatalf("ProgramCounter() = %#x; want %#x", got, want)
	}
}

func TestRegistersThumbState(t *testing.T) {
	r := &Registers{SPSR: 1 << 5}
	if !r.ThumbState() {
		t.Fatal("ThumbState() = false; want true")
	}
	r.SPSR = 0
	if r.ThumbState() {
		t.Fatal("ThumbState() = true; want false")
	}
}

func TestRegistersClone(t *testing.T) {
	r := &Registers{PC: 1, LR: 2}
	c := r.Clone()
	c.PC = 99
	if r.PC != 1 {
		t.Fatal("Clone() aliases the original")
	}
}
