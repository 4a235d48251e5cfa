//go:build unix

package jumper

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

var pageSize = unix.Getpagesize()

func pageAlign(addr uintptr) uintptr {
	ps := uintptr(pageSize)
	return addr &^ (ps - 1)
}

func memSlice(addr uintptr, n int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
}

func readCode(addr uintptr, n int) []byte {
	out := make([]byte, n)
	copy(out, memSlice(addr, n))
	return out
}

// writeCode flips the containing page(s) writable, copies payload into
// place, flushes the instruction cache where the platform requires it, and
// then sets the page(s) to read+execute, whatever their protection was
// before the call. Callers must hold codePageMu.
func writeCode(addr uintptr, payload []byte) error {
	start := pageAlign(addr)
	end := pageAlign(addr+uintptr(len(payload))-1) + uintptr(pageSize)
	region := memSlice(start, int(end-start))

	if err := unix.Mprotect(region, unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC); err != nil {
		return fmt.Errorf("mprotect rwx: %w", err)
	}
	copy(memSlice(addr, len(payload)), payload)
	flushInstructionCache(addr, len(payload))
	if err := unix.Mprotect(region, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		return fmt.Errorf("mprotect rx: %w", err)
	}
	return nil
}
