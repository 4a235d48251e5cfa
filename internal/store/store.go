// Package store implements component J of spec.md: the frontend's indexed
// call-record table, ingesting per-drain-cycle deltas from the protocol
// layer and maintaining the recursion-aware inclusive-time rule (property
// P4) plus a coalesced invalidation signal for the derived views built on
// top of it (component K).
package store

import (
	"sync"

	"golang.org/x/exp/constraints"

	"github.com/hollowcore/profiler/internal/ids"
)

// maxOf returns the larger of a and b, used for the store's max-combine
// fields (max_reentrance, max_call_time). Generic over constraints.Ordered
// the same way catrate's ring buffer is, in `joeycumines-go-utilpkg`.
func maxOf[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}

// ThreadID identifies a traced OS thread, matching collector.ThreadID's
// underlying type.
type ThreadID = uint64

// CallRecord is one node of the call hierarchy, keyed uniquely by
// (ThreadID, ParentID, Address). ParentID == 0 denotes a root call.
type CallRecord struct {
	ID            ids.ID
	ThreadID      ThreadID
	ParentID      ids.ID
	Address       uintptr
	TimesCalled   uint64
	InclusiveTime int64
	ExclusiveTime int64
	MaxReentrance uint32
	MaxCallTime   int64
	Histogram     map[int64]uint64 // call-time bucket → count (supplemented feature)
}

func (r *CallRecord) clone() *CallRecord {
	cp := *r
	if r.Histogram != nil {
		cp.Histogram = make(map[int64]uint64, len(r.Histogram))
		for k, v := range r.Histogram {
			cp.Histogram[k] = v
		}
	}
	return &cp
}

// Delta is one incremental update to a call record, as decoded from a
// statistics_update message.
type Delta struct {
	ThreadID      ThreadID
	ParentID      ids.ID
	Address       uintptr
	TimesCalled   uint64
	InclusiveTime int64
	ExclusiveTime int64
	Reentrance    uint32 // this delta's own reentrance depth, max-combined
	CallTime      int64  // this delta's own call duration, max-combined
	HistogramAdd  map[int64]uint64
}

type callNodeKey struct {
	threadID ThreadID
	parentID ids.ID
	address  uintptr
}

// Store is the call-record store of spec.md §4.J.
type Store struct {
	idAlloc ids.Allocator

	mu         sync.RWMutex
	byID       map[ids.ID]*CallRecord
	byCallNode map[callNodeKey]*CallRecord
	byParent   map[ids.ID][]*CallRecord
	byThread   map[ThreadID][]*CallRecord
	byAddress  map[uintptr][]*CallRecord

	dirty        bool
	invalidateCh chan struct{}
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		byID:         make(map[ids.ID]*CallRecord),
		byCallNode:   make(map[callNodeKey]*CallRecord),
		byParent:     make(map[ids.ID][]*CallRecord),
		byThread:     make(map[ThreadID][]*CallRecord),
		byAddress:    make(map[uintptr][]*CallRecord),
		invalidateCh: make(chan struct{}, 1),
	}
}

// Invalidated delivers one signal per drain cycle that produced at least
// one change, coalescing multiple Ingest calls within the cycle into a
// single notification (spec.md §4.J: "a single invalidation signal
// coalescing writes within a drain cycle").
func (s *Store) Invalidated() <-chan struct{} { return s.invalidateCh }

// Flush ends the current drain cycle: if any Ingest call since the last
// Flush changed state, it fires the invalidation signal exactly once.
func (s *Store) Flush() {
	s.mu.Lock()
	dirty := s.dirty
	s.dirty = false
	s.mu.Unlock()

	if !dirty {
		return
	}
	select {
	case s.invalidateCh <- struct{}{}:
	default:
	}
}

// Ingest applies delta to the call record it identifies, inserting a zero
// record first if this is the first time (thread_id, parent_id, address)
// has been seen (spec.md §4.J steps 1-3).
func (s *Store) Ingest(d Delta) {
	key := callNodeKey{threadID: d.ThreadID, parentID: d.ParentID, address: d.Address}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byCallNode[key]
	if !ok {
		r = &CallRecord{
			ID:       s.idAlloc.Next(),
			ThreadID: d.ThreadID,
			ParentID: d.ParentID,
			Address:  d.Address,
		}
		s.byID[r.ID] = r
		s.byCallNode[key] = r
		s.byParent[d.ParentID] = append(s.byParent[d.ParentID], r)
		s.byThread[d.ThreadID] = append(s.byThread[d.ThreadID], r)
		s.byAddress[d.Address] = append(s.byAddress[d.Address], r)
	}

	r.TimesCalled += d.TimesCalled
	if !s.isReentrantLocked(d.ParentID, d.Address) {
		r.InclusiveTime += d.InclusiveTime
	}
	r.ExclusiveTime += d.ExclusiveTime
	r.MaxReentrance = maxOf(r.MaxReentrance, d.Reentrance)
	r.MaxCallTime = maxOf(r.MaxCallTime, d.CallTime)
	if len(d.HistogramAdd) > 0 {
		if r.Histogram == nil {
			r.Histogram = make(map[int64]uint64, len(d.HistogramAdd))
		}
		for bucket, count := range d.HistogramAdd {
			r.Histogram[bucket] += count
		}
	}

	s.dirty = true
}

// isReentrantLocked implements spec.md §4.J's reentrancy rule: a delta is
// reentrant if address already occurs on the path from root to the node's
// parent (i.e. an enclosing frame on the same thread is already executing
// the same address). Property P4 follows from only ever accumulating
// inclusive_time on the outermost such frame.
func (s *Store) isReentrantLocked(parentID ids.ID, address uintptr) bool {
	for parentID != 0 {
		p, ok := s.byID[parentID]
		if !ok {
			return false
		}
		if p.Address == address {
			return true
		}
		parentID = p.ParentID
	}
	return false
}

// ByID returns a copy of the record with the given id, if any.
func (s *Store) ByID(id ids.ID) (*CallRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return r.clone(), true
}

// ByParent returns copies of every record whose parent_id is parentID.
func (s *Store) ByParent(parentID ids.ID) []*CallRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.byParent[parentID])
}

// ByThread returns copies of every record on threadID.
func (s *Store) ByThread(threadID ThreadID) []*CallRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.byThread[threadID])
}

// ByAddress returns copies of every record whose address is addr, across
// all threads. This index isn't named in spec.md §4.J's by_id/by_callnode/
// by_parent/by_thread list; it exists because component K's callers/
// callees transforms must scan "every record r where r.address ∈
// addresses" (spec.md §4.K), which isn't expressible over the other four
// indexes without a full table scan.
func (s *Store) ByAddress(addr uintptr) []*CallRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.byAddress[addr])
}

func cloneAll(in []*CallRecord) []*CallRecord {
	out := make([]*CallRecord, len(in))
	for i, r := range in {
		out[i] = r.clone()
	}
	return out
}
