//go:build unix

package patch

import (
	"testing"

	"github.com/hollowcore/profiler/internal/jumper"
	"github.com/hollowcore/profiler/internal/memalloc"
	"github.com/stretchr/testify/require"
)

type nopHooks struct{}

func (nopHooks) OnEnter(callee uintptr, ts int64, sp uintptr) {}
func (nopHooks) OnExit(ts int64) uintptr                      { return 0 }

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

func TestFunctionPatchReversibility(t *testing.T) {
	alloc, err := memalloc.New(jumper.Len() + 16)
	require.NoError(t, err)
	defer alloc.Close()

	entry := newPatchableFunction(t, alloc)

	fp, err := New(alloc, entry, nopHooks{}, func() int64 { return 1 })
	require.NoError(t, err)
	require.True(t, fp.Active())

	require.NoError(t, fp.Close())
	require.False(t, fp.Active())
}

func TestFunctionPatchTrampolineCallsHooks(t *testing.T) {
	alloc, err := memalloc.New(jumper.Len() + 16)
	require.NoError(t, err)
	defer alloc.Close()
	entry := newPatchableFunction(t, alloc)

	var entered, exited bool
	hooks := testHooks{
		onEnter: func(callee uintptr, ts int64, sp uintptr) { entered = true },
		onExit:  func(ts int64) uintptr { exited = true; return 0xABCD },
	}

	fp, err := New(alloc, entry, hooks, func() int64 { return 5 })
	require.NoError(t, err)
	defer fp.Close()

	fp.Trampoline().Call(0x10, func() {})
	require.True(t, entered)
	require.True(t, exited)
}

type testHooks struct {
	onEnter func(callee uintptr, ts int64, sp uintptr)
	onExit  func(ts int64) uintptr
}

func (h testHooks) OnEnter(callee uintptr, ts int64, sp uintptr) { h.onEnter(callee, ts, sp) }
func (h testHooks) OnExit(ts int64) uintptr                      { return h.onExit(ts) }
