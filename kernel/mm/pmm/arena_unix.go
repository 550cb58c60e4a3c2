//go:build linux || darwin || freebsd || netbsd || openbsd

package pmm

import "golang.org/x/sys/unix"

// allocArena reserves an anonymous private mapping. The kernel hands it back
// zero-filled so a fresh arena needs no clearing.
func allocArena(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
}

func freeArena(mem []byte) error {
	return unix.Munmap(mem)
}
