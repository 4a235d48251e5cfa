//go:build windows

package memalloc

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

func unsafeSlice(addr uintptr, size int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
}

// mapExecutablePage maps a new region with PAGE_EXECUTE_READWRITE, mirroring
// the unix build's RWX mapping (trampolines are written once, then executed;
// see allocator_unix.go).
func mapExecutablePage(size int) ([]byte, error) {
	addr, err := windows.VirtualAlloc(0, uintptr(size), windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_EXECUTE_READWRITE)
	if err != nil {
		return nil, fmt.Errorf("VirtualAlloc: %w", err)
	}
	return unsafeSlice(addr, size), nil
}

func unmapPage(mem []byte) error {
	addr := addressOf(mem)
	if err := windows.VirtualFree(addr, 0, windows.MEM_RELEASE); err != nil {
		return fmt.Errorf("VirtualFree: %w", err)
	}
	return nil
}
