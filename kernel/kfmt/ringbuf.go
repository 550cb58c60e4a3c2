package kfmt

import "io"

// defaultRingBufferSize is the capacity of the early print buffer. Boot
// output that exceeds it before a console is attached loses its oldest
// bytes.
const defaultRingBufferSize = 2048

// ringBuffer holds console output until SetOutputSink drains it into the
// next attached sink. The capacity is chosen at construction and must be a
// power of 2; a full buffer drops its oldest byte for every new one.
type ringBuffer struct {
	buffer         []byte
	mask           int
	rIndex, wIndex int
}

func newRingBuffer(size int) *ringBuffer {
	if size <= 0 || size&(size-1) != 0 {
		panic("kfmt: ring buffer size must be a power of 2")
	}
	return &ringBuffer{buffer: make([]byte, size), mask: size - 1}
}

// Len returns the number of unread bytes.
func (rb *ringBuffer) Len() int {
	return (rb.wIndex - rb.rIndex) & rb.mask
}

// Write appends p, overwriting unread bytes if p does not fit. It never
// fails.
func (rb *ringBuffer) Write(p []byte) (int, error) {
	for _, b := range p {
		rb.buffer[rb.wIndex] = b
		rb.wIndex = (rb.wIndex + 1) & rb.mask
		if rb.rIndex == rb.wIndex {
			rb.rIndex = (rb.rIndex + 1) & rb.mask
		}
	}

	return len(p), nil
}

// Read drains at most one contiguous run of unread bytes into p, so a
// wrapped buffer takes two calls to empty. It returns io.EOF when nothing is
// left.
func (rb *ringBuffer) Read(p []byte) (int, error) {
	if rb.rIndex == rb.wIndex {
		return 0, io.EOF
	}

	// Contiguous run from rIndex: either up to wIndex or up to the end of
	// the backing slice when the data wraps around.
	end := rb.wIndex
	if rb.rIndex > rb.wIndex {
		end = len(rb.buffer)
	}

	n := copy(p, rb.buffer[rb.rIndex:end])
	rb.rIndex = (rb.rIndex + n) & rb.mask
	return n, nil
}
