//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd

package pmm

func allocArena(size int) ([]byte, error) {
	return make([]byte, size), nil
}

func freeArena(_ []byte) error {
	return nil
}
