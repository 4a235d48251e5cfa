package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIngestInsertsZeroRecordThenAccumulates(t *testing.T) {
	s := New()
	s.Ingest(Delta{ThreadID: 1, ParentID: 0, Address: 0x100, TimesCalled: 1, InclusiveTime: 10, ExclusiveTime: 4})
	s.Ingest(Delta{ThreadID: 1, ParentID: 0, Address: 0x100, TimesCalled: 1, InclusiveTime: 20, ExclusiveTime: 6})

	recs := s.ByThread(1)
	require.Len(t, recs, 1)
	r := recs[0]
	require.EqualValues(t, 2, r.TimesCalled)
	require.EqualValues(t, 30, r.InclusiveTime)
	require.EqualValues(t, 10, r.ExclusiveTime)
}

func TestByCallNodeUniqueness(t *testing.T) {
	s := New()
	s.Ingest(Delta{ThreadID: 1, ParentID: 0, Address: 0x100, TimesCalled: 1})
	s.Ingest(Delta{ThreadID: 2, ParentID: 0, Address: 0x100, TimesCalled: 1}) // distinct thread
	s.Ingest(Delta{ThreadID: 1, ParentID: 0, Address: 0x200, TimesCalled: 1}) // distinct address

	require.Len(t, s.ByThread(1), 2)
	require.Len(t, s.ByThread(2), 1)
}

func TestMaxCombineFields(t *testing.T) {
	s := New()
	s.Ingest(Delta{ThreadID: 1, ParentID: 0, Address: 0x100, Reentrance: 1, CallTime: 50})
	s.Ingest(Delta{ThreadID: 1, ParentID: 0, Address: 0x100, Reentrance: 3, CallTime: 20})
	s.Ingest(Delta{ThreadID: 1, ParentID: 0, Address: 0x100, Reentrance: 2, CallTime: 90})

	r := s.ByThread(1)[0]
	require.EqualValues(t, 3, r.MaxReentrance)
	require.EqualValues(t, 90, r.MaxCallTime)
}

// TestReentrantInclusiveTimeSuppressed exercises property P4: a recursive
// call chain root(0x100) → mid(0x200) → inner(0x100) must not double-count
// inclusive_time on the outer 0x100 node.
func TestReentrantInclusiveTimeSuppressed(t *testing.T) {
	s := New()

	s.Ingest(Delta{ThreadID: 1, ParentID: 0, Address: 0x100, TimesCalled: 1, InclusiveTime: 100, ExclusiveTime: 10})
	outer := s.ByThread(1)[0]

	s.Ingest(Delta{ThreadID: 1, ParentID: outer.ID, Address: 0x200, TimesCalled: 1, InclusiveTime: 90, ExclusiveTime: 20})
	var mid *CallRecord
	for _, r := range s.ByThread(1) {
		if r.Address == 0x200 {
			mid = r
		}
	}
	require.NotNil(t, mid)

	// inner is a second invocation of 0x100, nested under mid, which is
	// nested under the original 0x100: a reentrant call.
	s.Ingest(Delta{ThreadID: 1, ParentID: mid.ID, Address: 0x100, TimesCalled: 1, InclusiveTime: 70, ExclusiveTime: 70})

	outerAfter, ok := s.ByID(outer.ID)
	require.True(t, ok)
	require.EqualValues(t, 100, outerAfter.InclusiveTime, "outer's inclusive time must not change when a later record sharing its address is ingested deeper in the same call path")

	var inner *CallRecord
	for _, r := range s.ByThread(1) {
		if r.Address == 0x100 && r.ID != outer.ID {
			inner = r
		}
	}
	require.NotNil(t, inner)
	require.EqualValues(t, 0, inner.InclusiveTime, "reentrant record's own inclusive time is suppressed")
	require.EqualValues(t, 70, inner.ExclusiveTime, "exclusive time still accumulates for a reentrant call")
	require.EqualValues(t, 1, inner.TimesCalled)
}

func TestNonRecursivePathAccumulatesNormally(t *testing.T) {
	s := New()
	s.Ingest(Delta{ThreadID: 1, ParentID: 0, Address: 0x100, InclusiveTime: 100})
	outer := s.ByThread(1)[0]
	s.Ingest(Delta{ThreadID: 1, ParentID: outer.ID, Address: 0x200, InclusiveTime: 40})

	var child *CallRecord
	for _, r := range s.ByThread(1) {
		if r.Address == 0x200 {
			child = r
		}
	}
	require.EqualValues(t, 40, child.InclusiveTime)
}

func TestHistogramMerges(t *testing.T) {
	s := New()
	s.Ingest(Delta{ThreadID: 1, ParentID: 0, Address: 0x100, HistogramAdd: map[int64]uint64{10: 2, 20: 1}})
	s.Ingest(Delta{ThreadID: 1, ParentID: 0, Address: 0x100, HistogramAdd: map[int64]uint64{10: 1, 30: 4}})

	r := s.ByThread(1)[0]
	require.Equal(t, map[int64]uint64{10: 3, 20: 1, 30: 4}, r.Histogram)
}

func TestFlushCoalescesInvalidation(t *testing.T) {
	s := New()
	s.Ingest(Delta{ThreadID: 1, Address: 0x100})
	s.Ingest(Delta{ThreadID: 1, Address: 0x200})
	s.Flush()

	select {
	case <-s.Invalidated():
	default:
		t.Fatal("expected exactly one coalesced invalidation signal")
	}
	select {
	case <-s.Invalidated():
		t.Fatal("invalidation signal should have been coalesced to one")
	default:
	}
}

func TestFlushWithoutIngestDoesNotSignal(t *testing.T) {
	s := New()
	s.Flush()
	select {
	case <-s.Invalidated():
		t.Fatal("no changes occurred; flush should not have signaled")
	default:
	}
}
