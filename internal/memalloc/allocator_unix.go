//go:build unix

package memalloc

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// mapExecutablePage maps a new anonymous, private region that is readable,
// writable and executable. Trampolines are written into it after mapping
// (no W^X toggling — component D writes the generated body once, then the
// jumper's activation establishes a happens-before edge to the first
// execution per spec.md §5).
func mapExecutablePage(size int) ([]byte, error) {
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("mmap: %w", err)
	}
	return mem, nil
}

func unmapPage(mem []byte) error {
	if err := unix.Munmap(mem); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	return nil
}
