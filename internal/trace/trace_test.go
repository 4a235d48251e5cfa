package trace

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOnEnterOnExitRegularNesting(t *testing.T) {
	th := New(16)

	th.OnEnter(0x1000, 1, 0xAAA0)
	th.OnEnter(0x2000, 2, 0xAAA8) // deeper frame, distinct sp
	require.Equal(t, 3, th.ShadowDepth())
	th.OnExit(3)
	require.Equal(t, 2, th.ShadowDepth())
	th.OnExit(4)
	require.Equal(t, 1, th.ShadowDepth())

	var got []Event
	n := th.Drain(func(events []Event) { got = append(got, events...) })
	require.Equal(t, 4, n)
	require.Equal(t, []Event{
		{Timestamp: 1, Callee: 0x1000},
		{Timestamp: 2, Callee: 0x2000},
		{Timestamp: 3, Callee: 0},
		{Timestamp: 4, Callee: 0},
	}, got)
}

func TestOnEnterDetectsTailCall(t *testing.T) {
	th := New(16)

	th.OnEnter(0x1000, 1, 0xAAA0)
	// Same sp as the enclosing frame: a tail call replaces it in place,
	// synthesizing an exit for the terminating frame (property P3).
	th.OnEnter(0x2000, 2, 0xAAA0)
	require.Equal(t, 2, th.ShadowDepth(), "tail call must not grow the shadow stack")

	var got []Event
	th.Drain(func(events []Event) { got = append(got, events...) })
	require.Equal(t, []Event{
		{Timestamp: 1, Callee: 0x1000},
		{Timestamp: 2, Callee: 0}, // synthetic exit of the tail-called-out frame
		{Timestamp: 2, Callee: 0x2000},
	}, got)
}

func TestDrainSwapsBuffersNotReader(t *testing.T) {
	th := New(4)
	th.OnEnter(0x10, 1, 1)

	var first, second []Event
	th.Drain(func(events []Event) { first = append(first, events...) })
	require.Len(t, first, 1)

	// nothing new since the last drain
	n := th.Drain(func(events []Event) { second = append(second, events...) })
	require.Zero(t, n)
	require.Empty(t, second)
}

func TestTrackBlocksUntilDrainWhenBufferFull(t *testing.T) {
	const capacity = 4
	th := New(capacity)

	for i := 0; i < capacity; i++ {
		th.track(Event{Timestamp: Timestamp(i), Callee: uintptr(i + 1)})
	}

	blocked := make(chan struct{})
	unblocked := make(chan struct{})
	go func() {
		close(blocked)
		th.track(Event{Timestamp: 99, Callee: 0xFF})
		close(unblocked)
	}()

	<-blocked
	select {
	case <-unblocked:
		t.Fatal("track should have blocked on the full buffer")
	case <-time.After(20 * time.Millisecond):
	}

	th.Drain(func(events []Event) { require.Len(t, events, capacity) })

	select {
	case <-unblocked:
	case <-time.After(time.Second):
		t.Fatal("track did not unblock after a drain freed the buffer")
	}
}

func TestConcurrentProducerAndConsumerNeverLoseEvents(t *testing.T) {
	th := New(32)
	const total = 5000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			th.track(Event{Timestamp: Timestamp(i), Callee: uintptr(i + 1)})
		}
	}()

	got := 0
	for got < total {
		got += th.Drain(func(events []Event) {})
	}
	wg.Wait()
	require.Equal(t, total, got)
}
