package kfmt

import (
	"bytes"
	"testing"
)

func TestFprintfSupportsStructDumps(t *testing.T) {
	var buf bytes.Buffer
	type point struct{ X, Y int }

	Fprintf(&buf, "at %v size=%d\n", point{1, 2}, 4)

	if got, want := buf.String(), "at {1 2} size=4\n"; got != want {
		t.Fatalf("Fprintf output = %q, want %q", got, want)
	}
}

func TestFprintfNilWriterGoesToScrollback(t *testing.T) {
	scrollback = ringBuffer{}

	Fprintf(nil, "boot stage %d\n", 3)

	if got, want := string(Scrollback()), "boot stage 3\n"; got != want {
		t.Fatalf("scrollback = %q, want %q", got, want)
	}
}

func TestSetOutputSinkReplaysScrollback(t *testing.T) {
	scrollback = ringBuffer{}
	outputSink = nil

	Printf("buffered before sink attached\n")

	var buf bytes.Buffer
	SetOutputSink(&buf)
	t.Cleanup(func() { outputSink = nil })

	if got, want := buf.String(), "buffered before sink attached\n"; got != want {
		t.Fatalf("replayed output = %q, want %q", got, want)
	}

	Printf("after sink attached\n")
	if got, want := buf.String(), "buffered before sink attached\nafter sink attached\n"; got != want {
		t.Fatalf("combined output = %q, want %q", got, want)
	}
}

func TestLoggerTracefOnlyWritesWhenEnabled(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger("[vmm] ", &buf)

	log.Tracef("map va=%#x\n", 0x1000)
	if buf.Len() != 0 {
		t.Fatalf("disabled logger wrote %q, want nothing", buf.String())
	}

	log.Enabled = true
	log.Tracef("map va=%#x\n", 0x1000)
	if got, want := buf.String(), "[vmm] map va=0x1000\n"; got != want {
		t.Fatalf("Tracef output = %q, want %q", got, want)
	}
}

func TestNilLoggerTracefIsSafe(t *testing.T) {
	var log *Logger
	log.Tracef("never written %d", 1)
}
