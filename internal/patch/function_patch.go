// Package patch implements components D and E of spec.md: a function_patch
// (one jumper plus one trampoline, scoped to a single patched function) and
// an image patch manager (the per-module rva → patch state machine driving
// apply/revert asynchronously).
package patch

import (
	"github.com/hollowcore/profiler/internal/jumper"
	"github.com/hollowcore/profiler/internal/memalloc"
	"github.com/hollowcore/profiler/internal/trampoline"
)

// RVA is a relative virtual address within a module's image.
type RVA = uint32

// FunctionPatch combines a jumper and a trampoline into the exclusive owner
// of one patched function's interception (spec.md §4.D). Construction
// allocates a slot, builds the trampoline, and activates the jumper in one
// step; there is no "constructed but inactive" state, matching "allocate
// slot, construct trampoline for body, activate jumper → body entry".
type FunctionPatch struct {
	alloc *memalloc.Allocator
	slot  memalloc.Slot
	tr    *trampoline.Trampoline
	jp    *jumper.Jumper
}

// New constructs and immediately activates a FunctionPatch redirecting
// entry to a freshly built trampoline. The prologue bytes the jump will
// displace are read from entry by the jumper (constructed against the slot
// before anything is written) and copied into the trampoline's slot before
// the jump is activated.
func New(alloc *memalloc.Allocator, entry uintptr, hooks trampoline.Interceptor, clock trampoline.Clock) (*FunctionPatch, error) {
	slot, err := alloc.Allocate()
	if err != nil {
		return nil, err
	}

	// Capture the prologue bytes this patch will displace before any jump
	// is installed, by probing a jumper against the slot itself: the
	// jumper's constructor reads-but-does-not-write until Activate.
	probe, err := jumper.New(entry, slot.Pointer())
	if err != nil {
		slot.Release()
		return nil, err
	}

	tr := trampoline.New(slot, entry, probe.Original(), hooks, clock)

	if err := probe.Activate(true); err != nil {
		slot.Release()
		return nil, err
	}

	return &FunctionPatch{alloc: alloc, slot: slot, tr: tr, jp: probe}, nil
}

// Trampoline exposes the underlying trampoline, chiefly so tests and the
// image patch manager can drive Call/Enter/Exit directly.
func (p *FunctionPatch) Trampoline() *trampoline.Trampoline { return p.tr }

// Active reports whether the jumper redirect is currently installed.
func (p *FunctionPatch) Active() bool { return p.jp.Active() }

// Close deactivates the jumper, restoring the original bytes bit-exactly
// (property P1), then releases the slot. This is the patch's destruction
// path from spec.md §4.D: "deactivate jumper, release slot."
func (p *FunctionPatch) Close() error {
	err := p.jp.Activate(false)
	p.slot.Release()
	return err
}

// Discard releases the trampoline slot without touching the jumper's
// installed bytes, for use when the owning module has already been
// unmapped (spec.md §4.E: "no writes are issued to unmapped memory").
// The slot must still return to the allocator's freelist, or repeated
// load/unload of the same module exhausts executable memory permanently.
func (p *FunctionPatch) Discard() {
	p.slot.Release()
}
