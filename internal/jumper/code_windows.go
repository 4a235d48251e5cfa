//go:build windows

package jumper

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

func memSlice(addr uintptr, n int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
}

func readCode(addr uintptr, n int) []byte {
	out := make([]byte, n)
	copy(out, memSlice(addr, n))
	return out
}

func writeCode(addr uintptr, payload []byte) error {
	var old uint32
	if err := windows.VirtualProtect(addr, uintptr(len(payload)), windows.PAGE_EXECUTE_READWRITE, &old); err != nil {
		return err
	}
	copy(memSlice(addr, len(payload)), payload)
	if err := windows.VirtualProtect(addr, uintptr(len(payload)), old, &old); err != nil {
		return err
	}
	return nil
}

func flushInstructionCache(addr uintptr, n int) {
	proc, _ := windows.GetCurrentProcess()
	_ = windows.FlushInstructionCache(proc, unsafe.Pointer(addr), uintptr(n))
}
