package kfmt

import (
	"bytes"
	"io"
)

// PrefixWriter tags every line written to Sink with Prefix. The prefix is
// emitted lazily when the first byte of a line arrives, so output ending in a
// line feed never leaves a dangling prefix and Prefix may be swapped between
// lines.
type PrefixWriter struct {
	Sink   io.Writer
	Prefix []byte

	// midLine is set when the last write did not end with a line feed.
	midLine bool
}

// Write forwards p to Sink one line at a time. The returned count covers
// bytes of p only; a failed prefix write aborts before any of the line is
// sent.
func (w *PrefixWriter) Write(p []byte) (int, error) {
	var written int

	for len(p) != 0 {
		if !w.midLine {
			if _, err := w.Sink.Write(w.Prefix); err != nil {
				return written, err
			}
			w.midLine = true
		}

		line := p
		if nl := bytes.IndexByte(p, '\n'); nl != -1 {
			line = p[:nl+1]
		}

		n, err := w.Sink.Write(line)
		written += n
		if err != nil {
			return written, err
		}

		if line[len(line)-1] == '\n' {
			w.midLine = false
		}
		p = p[len(line):]
	}

	return written, nil
}
