//go:build unix

package jumper

import (
	"testing"

	"github.com/hollowcore/profiler/internal/memalloc"
	"github.com/stretchr/testify/require"
)

// newPatchableFunction allocates an executable slot pre-filled with
// filler bytes, standing in for a "function entry" we're allowed to
// overwrite without touching real running code.
func newPatchableFunction(t *testing.T, alloc *memalloc.Allocator) uintptr {
	t.Helper()
	slot, err := alloc.Allocate()
	require.NoError(t, err)
	b := slot.Bytes()
	for i := range b {
		b[i] = 0x90 // NOP filler
	}
	return slot.Pointer()
}

func TestJumperReversibility(t *testing.T) {
	alloc, err := memalloc.New(Len() + 16)
	require.NoError(t, err)
	defer alloc.Close()

	entry := newPatchableFunction(t, alloc)
	target := newPatchableFunction(t, alloc)

	j, err := New(entry, target)
	require.NoError(t, err)
	original := j.Original()

	require.NoError(t, j.Activate(true))
	require.True(t, j.Active())
	require.NotEqual(t, original, readCode(entry, Len()), "entry bytes should have changed once the jump is installed")

	require.NoError(t, j.Activate(false))
	require.False(t, j.Active())
	require.Equal(t, original, readCode(entry, Len()), "P1: reverting must reproduce the captured bytes bit-exactly")
}

func TestJumperActivateIsIdempotent(t *testing.T) {
	alloc, err := memalloc.New(Len() + 16)
	require.NoError(t, err)
	defer alloc.Close()

	entry := newPatchableFunction(t, alloc)
	target := newPatchableFunction(t, alloc)

	j, err := New(entry, target)
	require.NoError(t, err)

	require.NoError(t, j.Activate(true))
	afterFirst := readCode(entry, Len())
	require.NoError(t, j.Activate(true))
	require.Equal(t, afterFirst, readCode(entry, Len()))
}

func TestNewRejectsZeroAddresses(t *testing.T) {
	_, err := New(0, 1)
	require.Error(t, err)
	_, err = New(1, 0)
	require.Error(t, err)
}
