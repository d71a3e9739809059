package kernel

import (
	"testing"

	"nyxos/kernel/cpu"
	"nyxos/kernel/kfmt/early"
)

// bufSink is a test-only early.Sink that records everything written to it
// in memory so assertions can compare against the exact Panic output.
type bufSink struct {
	buf []byte
}

func (s *bufSink) WriteByte(c byte) {
	s.buf = append(s.buf, c)
}

func (s *bufSink) Write(p []byte) {
	s.buf = append(s.buf, p...)
}

func TestPanic(t *testing.T) {
	defer func() {
		cpuHaltFn = cpu.Halt
	}()

	var cpuHaltCalled bool
	cpuHaltFn = func() {
		cpuHaltCalled = true
	}

	t.Run("with error", func(t *testing.T) {
		cpuHaltCalled = false
		sink := mockSink()
		err := &Error{Module: "test", Message: "panic test"}

		Panic(err)

		exp := "\n-----------------------------------\n[test] unrecoverable error: panic test\n*** kernel panic: system halted ***\n-----------------------------------"

		if got := string(sink.buf); got != exp {
			t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
		}

		if !cpuHaltCalled {
			t.Fatal("expected cpu.Halt() to be called by Panic")
		}
	})

	t.Run("without error", func(t *testing.T) {
		cpuHaltCalled = false
		sink := mockSink()

		Panic(nil)

		exp := "\n-----------------------------------\n*** kernel panic: system halted ***\n-----------------------------------"

		if got := string(sink.buf); got != exp {
			t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
		}

		if !cpuHaltCalled {
			t.Fatal("expected cpu.Halt() to be called by Panic")
		}
	})
}

func mockSink() *bufSink {
	sink := &bufSink{}
	early.SetOutput(sink)
	return sink
}
