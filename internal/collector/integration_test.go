//go:build unix

package collector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hollowcore/profiler/internal/jumper"
	"github.com/hollowcore/profiler/internal/memalloc"
	"github.com/hollowcore/profiler/internal/patch"
	"github.com/hollowcore/profiler/internal/trace"
)

// threadBound adapts a Collector to trampoline.Interceptor for one fixed
// thread id, the way a real collector build would bind a trampoline to
// whichever native thread executes it.
type threadBound struct {
	c   *Collector
	tid ThreadID
}

func (t threadBound) OnEnter(callee uintptr, ts int64, sp uintptr) { t.c.OnEnter(t.tid, callee, ts, sp) }
func (t threadBound) OnExit(ts int64) uintptr                      { return t.c.OnExit(t.tid, ts) }

// newPatchableFunction allocates an executable slot filled with NOPs,
// standing in for a real function's prologue bytes the way
// patch.newPatchableFunction does in its own package's tests.
func newPatchableFunction(t *testing.T, alloc *memalloc.Allocator) uintptr {
	t.Helper()
	slot, err := alloc.Allocate()
	require.NoError(t, err)
	b := slot.Bytes()
	for i := range b {
		b[i] = 0x90
	}
	return slot.Pointer()
}

// TestPatchLifecycleProducesEnterExitEvents drives the A→B→C→D→F→G
// pipeline end to end against a fake patched function, asserting spec.md
// §8 scenario S4: apply moves to active and a subsequent execution
// produces exactly one (ts, callee) enter event followed by one (ts', 0)
// exit event; Close then deactivates the patch (the byte-exact restore is
// asserted by the jumper package's own tests).
func TestPatchLifecycleProducesEnterExitEvents(t *testing.T) {
	alloc, err := memalloc.New(jumper.Len() + 16)
	require.NoError(t, err)
	defer alloc.Close()

	entry := newPatchableFunction(t, alloc)

	col := New(64)
	const tid ThreadID = 1
	hooks := threadBound{c: col, tid: tid}

	var now int64
	clock := func() int64 { now++; return now }

	fp, err := patch.New(alloc, entry, hooks, clock)
	require.NoError(t, err)
	require.True(t, fp.Active())

	// exercise the patched entry point: the trampoline's Call drives
	// on_enter(callee=entry)/on_exit() around an empty body, the same
	// narrowing documented in internal/trampoline's package doc.
	fp.Trampoline().Call(0x2000, func() {})

	var captured []trace.Event
	col.ReadCollected(func(gotTID ThreadID, events []trace.Event) {
		require.Equal(t, tid, gotTID)
		captured = append(captured, events...)
	})

	require.Len(t, captured, 2)
	require.Equal(t, entry, captured[0].Callee, "enter event records the patched entry point as callee")
	require.NotZero(t, captured[0].Timestamp)
	require.EqualValues(t, 0, captured[1].Callee, "exit event uses the callee=0 convention")
	require.Greater(t, captured[1].Timestamp, captured[0].Timestamp)

	require.NoError(t, fp.Close())
	require.False(t, fp.Active())
}

// TestBackPressureBlocksProducerUntilDrain drives F/G together for spec.md
// §8 scenario S5: a small trace capacity, six enters with no drain, the
// drain reading a full buffer and unblocking the remainder.
func TestBackPressureBlocksProducerUntilDrain(t *testing.T) {
	col := New(4)
	const tid ThreadID = 7

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := int64(1); i <= 6; i++ {
			col.OnEnter(tid, uintptr(i), i, uintptr(i))
		}
	}()

	// give the producer a chance to fill the buffer and block on the 5th.
	var first []trace.Event
	require.Eventually(t, func() bool {
		col.ReadCollected(func(_ ThreadID, events []trace.Event) {
			first = append(first, events...)
		})
		return len(first) > 0
	}, time.Second, 10*time.Millisecond, "producer must block until the buffer fills and a drain occurs")

	require.Len(t, first, 4)

	<-done // producer must now complete, having unblocked after the drain

	var second []trace.Event
	col.ReadCollected(func(_ ThreadID, events []trace.Event) {
		second = append(second, events...)
	})
	require.Len(t, second, 2)
}
