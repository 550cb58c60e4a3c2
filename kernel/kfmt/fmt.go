// Package kfmt owns the kernel console. Output produced before a sink is
// attached is kept in a ring buffer and replayed once SetOutputSink is
// called.
package kfmt

import (
	"fmt"
	"io"
	"sync"
)

var (
	// sinkMu guards outputSink and earlyPrintBuffer.
	sinkMu sync.Mutex

	// earlyPrintBuffer is a ring buffer that stores Printf output before the
	// console is attached.
	earlyPrintBuffer = newRingBuffer(defaultRingBufferSize)

	// outputSink is a io.Writer where Printf will send its output. If set
	// to nil, then the output will be redirected to the earlyPrintBuffer.
	outputSink io.Writer

	// console is the writer handed out to code that needs an io.Writer
	// bound to whatever sink is currently active.
	console io.Writer = consoleWriter{}
)

// consoleWriter forwards writes to the currently active sink.
type consoleWriter struct{}

func (consoleWriter) Write(p []byte) (int, error) {
	sinkMu.Lock()
	defer sinkMu.Unlock()

	if outputSink == nil {
		return earlyPrintBuffer.Write(p)
	}
	return outputSink.Write(p)
}

// SetOutputSink routes console output to w after draining any buffered
// early output into it. A nil w detaches the sink; later output is buffered
// again until the next sink is attached.
func SetOutputSink(w io.Writer) {
	sinkMu.Lock()
	defer sinkMu.Unlock()

	outputSink = w
	if w != nil {
		_, _ = io.Copy(w, earlyPrintBuffer)
	}
}

// GetOutputSink returns a writer bound to the active console. Writes are
// buffered in the early ring buffer while no sink is attached.
func GetOutputSink() io.Writer {
	return console
}

// Printf formats according to a format specifier and writes to the kernel
// console. It accepts the same verbs as fmt.Printf.
func Printf(format string, args ...interface{}) {
	Fprintf(console, format, args...)
}

// Fprintf behaves exactly like Printf but it writes the formatted output to
// the specified io.Writer.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	_, _ = fmt.Fprintf(w, format, args...)
}
