// Package trace implements component F of spec.md: a double-buffered,
// single-producer/single-consumer per-thread trace ring, plus the shadow
// return stack that distinguishes regular nesting from tail-call
// optimization.
//
// Concurrency model (spec.md §4.F, §5): exactly one producer goroutine
// (the instrumented call site, via Thread.OnEnter/OnExit) and exactly one
// consumer (the collector's drain, via Thread.Drain) touch a Thread.
// Handoff between them is a three-step CAS protocol on the active buffer
// pointer, the same shape as the claim/append/release dance in the
// teacher's MicrotaskRing (joeycumines-go-utilpkg/eventloop/ingress.go),
// adapted here from an MPSC microtask queue to an SPSC record ring with an
// explicit back-pressure gate rather than an overflow slice, because
// spec.md requires blocking ("never loses events") instead of spilling.
package trace

import (
	"sync"
	"sync/atomic"
)

// Timestamp is a monotone-per-thread clock reading (spec.md §3
// "timestamp_t"). No cross-thread ordering is implied.
type Timestamp = int64

// Event is one (timestamp, callee) trace record. callee == 0 denotes "exit
// of current frame" (spec.md §3).
type Event struct {
	Timestamp Timestamp
	Callee    uintptr
}

// buffer is an append-only, fixed-capacity sequence of events. Only the
// producer appends; only the consumer reads/clears, and only after the
// buffer has been swapped out of the active position.
type buffer struct {
	events []Event
	limit  int // max events; the capacity is counted in events, not bytes
}

func newBuffer(limit int) *buffer {
	return &buffer{events: make([]Event, 0, limit), limit: limit}
}

func (b *buffer) full() bool { return len(b.events) >= b.limit }

func (b *buffer) clear() { b.events = b.events[:0] }

// returnEntry is one shadow return-stack frame (spec.md §4.F).
type returnEntry struct {
	sp            uintptr
	returnAddress uintptr
}

// Thread is one instrumented thread's trace state: the double buffer and
// the shadow return stack. The zero value is not valid; use New.
type Thread struct {
	// active points at one of &buffers[0]/&buffers[1], or nil while a
	// producer or consumer has claimed it mid-operation (the three-step
	// CAS protocol from spec.md §4.F).
	active atomic.Pointer[buffer]

	// inactive is owned exclusively by the consumer (the drain), never
	// touched by the producer.
	inactive *buffer

	// gate is raised by the producer when it finds the active buffer
	// full, and lowered (broadcast) by the drain after it swaps in a
	// fresh buffer. One-shot per block, edge-triggered per spec.md §5.
	gateMu sync.Mutex
	gateCV *sync.Cond

	// drainGen counts completed full-buffer drains, protected by gateMu.
	// The producer captures it before restoring the full buffer to the
	// active slot and loops while it is unchanged; a Wait with no
	// predicate can have its Broadcast happen entirely between the
	// producer's Store and its Lock, which loses the wakeup and blocks
	// the producer forever with no further drain to unblock it.
	drainGen uint64

	// shadow is the return-address shadow stack. It is only ever touched
	// by the producer, so it needs no synchronization of its own.
	shadow []returnEntry
}

// New creates a Thread whose ring buffers each hold capacityEvents events
// (a value ≤ 0 is raised to 1). spec.md's trace_limit is specified in
// bytes; the API here works in events directly for simplicity, since Go's
// Event has a fixed, non-negotiable in-memory size.
func New(capacityEvents int) *Thread {
	if capacityEvents <= 0 {
		capacityEvents = 1
	}
	t := &Thread{
		inactive: newBuffer(capacityEvents),
	}
	t.gateCV = sync.NewCond(&t.gateMu)
	t.active.Store(newBuffer(capacityEvents))
	// shadow stack starts with one sentinel entry representing "no
	// enclosing call", matching the original's push-on-construction of an
	// empty return_entry.
	t.shadow = append(t.shadow, returnEntry{})
	return t
}

// OnEnter records entry into callee at sp (the caller's stack-pointer
// analog — see trampoline package for how sp is synthesized in this Go
// rendition). It implements spec.md §4.F's on_enter:
//
//   - If the shadow stack's top sp differs from sp, this is regular
//     nesting: push a new shadow frame.
//   - Otherwise this is a tail call (same sp as the enclosing frame):
//     synthesize an exit event for the terminating frame before recording
//     the new entry; the shadow stack's depth does not change (property
//     P3).
func (t *Thread) OnEnter(callee uintptr, ts Timestamp, sp uintptr) {
	top := t.shadow[len(t.shadow)-1]
	if top.sp != sp {
		t.shadow = append(t.shadow, returnEntry{sp: sp})
	} else {
		t.track(Event{Timestamp: ts, Callee: 0})
	}
	t.track(Event{Timestamp: ts, Callee: callee})
}

// OnExit records exit of the current frame at ts and pops the shadow
// stack, returning the popped frame's return-address field. OnEnter stores
// only sp in a frame, so the value returned is always zero.
func (t *Thread) OnExit(ts Timestamp) uintptr {
	top := t.shadow[len(t.shadow)-1]
	t.shadow = t.shadow[:len(t.shadow)-1]
	t.track(Event{Timestamp: ts, Callee: 0})
	return top.returnAddress
}

// track implements the producer side of the three-step handoff protocol
// from spec.md §4.F, using atomic swap/store rather than compare-and-swap:
//
//  1. Swap the active pointer to nil (claim it).
//  2. Append the event.
//  3. Store the claimed buffer back.
//
// If the consumer swapped the buffer out from under us between steps 1 and
// 3 is impossible by construction (we hold nil in between, so the consumer
// cannot have observed our buffer to swap); the race this protects against
// is the producer observing nil at step 1 because the consumer is mid-swap,
// in which case the producer retries. When the claimed buffer is full, the
// producer blocks on the gate until a drain has happened, matching the
// "never lose events" guarantee (property P2).
func (t *Thread) track(e Event) {
	for {
		b := t.active.Swap(nil)
		if b == nil {
			// Consumer is mid-swap; spin briefly and retry.
			continue
		}
		if b.full() {
			// Put it back, then wait for the gate before trying again.
			t.waitForDrain(b)
			continue
		}
		b.events = append(b.events, e)
		t.active.Store(b)
		return
	}
}

// waitForDrain restores the full buffer b to the active slot and blocks
// until a drain of it has completed. gen is captured under gateMu before
// the restore, so a Broadcast racing with the restore can only land after
// this producer has already captured gen (and so is guaranteed to either
// still be inside the lock or already parked in Wait, never in the gap
// between Store and Lock where a signal would otherwise be lost).
func (t *Thread) waitForDrain(b *buffer) {
	t.gateMu.Lock()
	gen := t.drainGen
	t.active.Store(b)
	for gen == t.drainGen {
		t.gateCV.Wait()
	}
	t.gateMu.Unlock()
}

// Drain swaps the active buffer for the (now-stale) inactive one and
// delivers the drained slice to reader. It never blocks except inside
// reader itself. Returns the number of events delivered.
func (t *Thread) Drain(reader func(events []Event)) int {
	swapped := t.inactive
	swapped.clear()

	var got *buffer
	for {
		got = t.active.Swap(swapped)
		if got != nil {
			break
		}
		// The producer is mid-append (holds nil); yield and retry.
	}
	t.inactive = got

	wasFull := got.full()
	n := len(got.events)
	if n > 0 {
		reader(got.events)
	}

	if wasFull {
		t.gateMu.Lock()
		t.drainGen++
		t.gateCV.Broadcast()
		t.gateMu.Unlock()
	}
	return n
}

// ShadowDepth returns the current shadow-stack depth (including the
// sentinel root frame), useful for asserting invariants in tests.
func (t *Thread) ShadowDepth() int {
	return len(t.shadow)
}
