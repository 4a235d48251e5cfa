// Package jumper implements component B of spec.md: writing and reverting
// a jump at a function's entry point.
//
// A Jumper captures the first Len() bytes of a function (a platform
// constant equal to the length of the jump sequence; see the Len doc
// comment and spec.md §9 Open Questions on exact prologue length),
// rewrites them to transfer control to a trampoline, and
// can revert to the exact original bytes.
//
// The jumper does not relocate the displaced instructions — that's the
// trampoline's job (component C) — it only owns the entry-point bytes.
package jumper

import (
	"fmt"
	"sync"

	"github.com/hollowcore/profiler/internal/errkind"
)

// codePageMu serializes writes to code pages across all jumpers in the
// process, per spec.md §4.B: "Writes to code pages must be serialized
// against all other threads (stop-the-world window is bounded by a single
// memcpy plus icache flush)."
var codePageMu sync.Mutex

// Jumper owns one function entry point's original bytes and can toggle
// between the original body and a jump to a trampoline.
type Jumper struct {
	entry    uintptr
	target   uintptr
	original []byte // length == Len(), captured bit-exactly before first activation
	active   bool
}

// Len is the number of bytes a Jumper captures and overwrites at a
// function's entry point. It is a platform constant equal to the length of
// the fixed absolute jump encoding in jumper_amd64.go / jumper_arm64.go.
// The instructions at the entry point are not decoded, so the captured
// range is not extended to the next instruction boundary of the target
// and may end in the middle of one of its instructions.
func Len() int { return jumpLen }

// New captures the bytes at entry and prepares a jumper that will, once
// Activate(true) is called, redirect entry to target. It does not write
// anything yet.
func New(entry, target uintptr) (*Jumper, error) {
	if entry == 0 || target == 0 {
		return nil, errkind.NewProgrammer(fmt.Errorf("jumper: entry and target addresses must be non-zero"))
	}
	orig := make([]byte, jumpLen)
	copy(orig, readCode(entry, jumpLen))
	return &Jumper{entry: entry, target: target, original: orig}, nil
}

// Entry returns the function entry address this jumper owns.
func (j *Jumper) Entry() uintptr { return j.entry }

// Original returns a copy of the bytes captured at construction time.
func (j *Jumper) Original() []byte {
	out := make([]byte, len(j.original))
	copy(out, j.original)
	return out
}

// Active reports whether the jump is currently installed.
func (j *Jumper) Active() bool { return j.active }

// Activate installs the jump to target when on is true, or restores the
// original bytes verbatim when on is false. It is idempotent: activating an
// already-active (or deactivating an already-inactive) jumper is a no-op,
// matching the image patch manager's idempotence requirement (spec.md §4.E,
// property P6).
func (j *Jumper) Activate(on bool) error {
	if on == j.active {
		return nil
	}

	codePageMu.Lock()
	defer codePageMu.Unlock()

	var payload []byte
	if on {
		payload = encodeJump(j.entry, j.target)
	} else {
		payload = j.original
	}

	if err := writeCode(j.entry, payload); err != nil {
		return errkind.NewResource(fmt.Errorf("jumper: write code at %#x: %w", j.entry, err))
	}
	j.active = on
	return nil
}
