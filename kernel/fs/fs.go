// Package fs provides the file access capability used by the virtual memory
// subsystem to page segments and mapped files in and out. All transfers are
// serialized by a single file-system-wide lock.
package fs

import (
	"io"
	"os"
	"sync"

	"github.com/sbomb100/Pintos/kernel"
)

var (
	// lock serializes every file transfer performed by the kernel.
	lock sync.Mutex

	errNegativeOffset = &kernel.Error{Module: "fs", Message: "negative file offset", Kind: kernel.KindInvariantViolation}
)

// File is an open file that supports positional transfers.
type File interface {
	io.ReaderAt
	io.WriterAt

	// Length returns the size of the file in bytes.
	Length() int64
}

// ReadAt reads len(buf) bytes from f starting at off while holding the
// file-system lock. It returns the number of bytes read; reaching the end
// of the file is not reported as an error.
func ReadAt(f File, buf []byte, off int64) (int, *kernel.Error) {
	if off < 0 {
		return 0, errNegativeOffset
	}

	lock.Lock()
	n, err := f.ReadAt(buf, off)
	lock.Unlock()

	if err != nil && err != io.EOF {
		return n, &kernel.Error{Module: "fs", Message: "read failed: " + err.Error(), Kind: kernel.KindShortIO}
	}
	return n, nil
}

// WriteAt writes buf to f starting at off while holding the file-system lock
// and returns the number of bytes written.
func WriteAt(f File, buf []byte, off int64) (int, *kernel.Error) {
	if off < 0 {
		return 0, errNegativeOffset
	}

	lock.Lock()
	n, err := f.WriteAt(buf, off)
	lock.Unlock()

	if err != nil {
		return n, &kernel.Error{Module: "fs", Message: "write failed: " + err.Error(), Kind: kernel.KindShortIO}
	}
	return n, nil
}

// Length returns the size of f while holding the file-system lock.
func Length(f File) int64 {
	lock.Lock()
	defer lock.Unlock()
	return f.Length()
}

// MemFile is a fixed-size in-memory file. Writes never grow the file; bytes
// past its end are dropped.
type MemFile struct {
	mu   sync.RWMutex
	data []byte
}

// NewMemFile returns a file whose contents are a copy of data.
func NewMemFile(data []byte) *MemFile {
	return &MemFile{data: append([]byte(nil), data...)}
}

// ReadAt implements io.ReaderAt.
func (f *MemFile) ReadAt(p []byte, off int64) (int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if off >= int64(len(f.data)) {
		return 0, io.EOF
	}

	n := copy(p, f.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements io.WriterAt.
func (f *MemFile) WriteAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if off >= int64(len(f.data)) {
		return 0, io.ErrShortWrite
	}

	n := copy(f.data[off:], p)
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

// Length implements File.
func (f *MemFile) Length() int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return int64(len(f.data))
}

// Bytes returns a copy of the file contents.
func (f *MemFile) Bytes() []byte {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]byte(nil), f.data...)
}

// HostFile is a File backed by a file on the host.
type HostFile struct {
	*os.File
}

// Open opens the host file at path for reading and writing.
func Open(path string) (*HostFile, *kernel.Error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, &kernel.Error{Module: "fs", Message: "unable to open " + path + ": " + err.Error()}
	}
	return &HostFile{File: file}, nil
}

// Length implements File.
func (f *HostFile) Length() int64 {
	info, err := f.Stat()
	if err != nil {
		return 0
	}
	return info.Size()
}
