package trampoline

import (
	"testing"

	"github.com/hollowcore/profiler/internal/memalloc"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	entered []uintptr
	exited  int
}

func (r *recorder) OnEnter(callee uintptr, ts int64, sp uintptr) {
	r.entered = append(r.entered, callee)
}

func (r *recorder) OnExit(ts int64) uintptr {
	r.exited++
	return 0xDEAD
}

func fixedClock(n int64) Clock {
	return func() int64 { return n }
}

func TestNewRelocatesDisplacedBytes(t *testing.T) {
	alloc, err := memalloc.New(32)
	require.NoError(t, err)
	defer alloc.Close()

	slot, err := alloc.Allocate()
	require.NoError(t, err)

	displaced := []byte{0x48, 0x89, 0xE5, 0x5D} // arbitrary captured prologue bytes
	tr := New(slot, 0x1234, displaced, &recorder{}, fixedClock(1))

	require.Equal(t, displaced, tr.Displaced())
	require.Equal(t, displaced, slot.Bytes()[:len(displaced)])
	for _, b := range slot.Bytes()[len(displaced):] {
		require.Equal(t, byte(0x90), b)
	}
	require.Equal(t, slot.Pointer(), tr.Entry())
}

func TestCallFiresEnterThenBodyThenExit(t *testing.T) {
	alloc, err := memalloc.New(16)
	require.NoError(t, err)
	defer alloc.Close()
	slot, err := alloc.Allocate()
	require.NoError(t, err)

	rec := &recorder{}
	tr := New(slot, 0xCAFE, nil, rec, fixedClock(7))

	var bodyRan bool
	tr.Call(0x1000, func() { bodyRan = true })

	require.True(t, bodyRan)
	require.Equal(t, []uintptr{0xCAFE}, rec.entered)
	require.Equal(t, 1, rec.exited)
}

func TestExitReturnsRecoveredAddress(t *testing.T) {
	alloc, err := memalloc.New(16)
	require.NoError(t, err)
	defer alloc.Close()
	slot, err := alloc.Allocate()
	require.NoError(t, err)

	tr := New(slot, 1, nil, &recorder{}, fixedClock(1))
	tr.Enter(0x10)
	require.Equal(t, uintptr(0xDEAD), tr.Exit())
}
