//go:build amd64

package jumper

// flushInstructionCache is a no-op on amd64: the architecture guarantees a
// coherent instruction cache with respect to self-modifying code observed
// by the same core, and cross-core visibility is already ordered by the
// codePageMu critical section plus the jumper's happens-before edge with
// the first patched call (spec.md §5).
func flushInstructionCache(addr uintptr, n int) {}
