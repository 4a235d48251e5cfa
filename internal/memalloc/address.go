package memalloc

import "unsafe"

// addressOf returns the address of the first byte of mem. mem must be
// non-empty and must not be moved by the GC — true for mmap'd slices,
// which are never subject to Go's moving collector because they aren't
// allocated by it.
func addressOf(mem []byte) uintptr {
	return uintptr(unsafe.Pointer(&mem[0]))
}
