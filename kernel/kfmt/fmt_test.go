package kfmt

import (
	"bytes"
	"testing"
)

func TestPrintf(t *testing.T) {
	defer SetOutputSink(nil)

	var buf bytes.Buffer
	SetOutputSink(&buf)

	specs := []struct {
		fn        func()
		expOutput string
	}{
		{
			func() { Printf("no args") },
			"no args",
		},
		{
			func() { Printf("%t", true) },
			"true",
		},
		{
			func() { Printf("%s arg", "STRING") },
			"STRING arg",
		},
		{
			func() { Printf("'%4s' arg with padding", "ABC") },
			"' ABC' arg with padding",
		},
		{
			func() { Printf("uint arg: %d", uint8(10)) },
			"uint arg: 10",
		},
		{
			func() { Printf("addr: 0x%08x", uintptr(0xbadf00)) },
			"addr: 0x00badf00",
		},
	}

	for specIndex, spec := range specs {
		buf.Reset()
		spec.fn()

		if got := buf.String(); got != spec.expOutput {
			t.Errorf("[spec %d] expected to get %q; got %q", specIndex, spec.expOutput, got)
		}
	}
}

func TestEarlyPrintBufferReplay(t *testing.T) {
	defer SetOutputSink(nil)

	SetOutputSink(nil)
	// drain anything left behind by other tests
	_, _ = earlyPrintBuffer.Read(make([]byte, defaultRingBufferSize))
	_, _ = earlyPrintBuffer.Read(make([]byte, defaultRingBufferSize))

	Printf("early %s", "output")

	var buf bytes.Buffer
	SetOutputSink(&buf)

	if exp, got := "early output", buf.String(); got != exp {
		t.Fatalf("expected early output to be replayed as %q; got %q", exp, got)
	}

	Fprintf(GetOutputSink(), "!")
	if exp, got := "early output!", buf.String(); got != exp {
		t.Fatalf("expected %q; got %q", exp, got)
	}
}
