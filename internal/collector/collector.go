// Package collector implements component G of spec.md: the in-process
// owner of every instrumented thread's trace, registering threads lazily
// and draining them on demand for the protocol layer to ship out.
package collector

import (
	"sync"
	"time"

	"github.com/hollowcore/profiler/internal/trace"
)

// ThreadID identifies a native OS thread, as reported by the trampoline
// layer. It is opaque to this package.
type ThreadID = uint64

type threadEntry struct {
	trace *trace.Thread

	// completed and completedAt are the thread-completion tracking this
	// port adds beyond spec.md's bare "threads register lazily": knowing
	// a thread will never produce another event lets a frontend render it
	// as finished rather than merely quiet, and lets this package evict
	// it deterministically instead of leaking its trace forever.
	completed              bool
	completedAt            time.Time
	drainedAfterCompletion bool
}

// Collector owns thread_id → trace for as long as the thread is live, plus
// one extra drain cycle after completion (spec.md's ownership rule: "a
// per-thread trace is owned by the collector for the thread's lifetime and
// survives the thread by at most one drain cycle").
type Collector struct {
	traceCapacity int

	mu      sync.RWMutex
	threads map[ThreadID]*threadEntry
}

// New creates a Collector whose per-thread traces each hold
// traceCapacityEvents events.
func New(traceCapacityEvents int) *Collector {
	return &Collector{
		traceCapacity: traceCapacityEvents,
		threads:       make(map[ThreadID]*threadEntry),
	}
}

func (c *Collector) getOrRegister(tid ThreadID) *threadEntry {
	c.mu.RLock()
	e, ok := c.threads[tid]
	c.mu.RUnlock()
	if ok {
		return e
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok = c.threads[tid]; ok {
		return e
	}
	e = &threadEntry{trace: trace.New(c.traceCapacity)}
	c.threads[tid] = e
	return e
}

// OnEnter is the trampoline-facing entry point: it registers tid on first
// use (spec.md §4.G: "Threads register lazily on first on_enter") and
// forwards to that thread's trace.
func (c *Collector) OnEnter(tid ThreadID, callee uintptr, ts trace.Timestamp, sp uintptr) {
	c.getOrRegister(tid).trace.OnEnter(callee, ts, sp)
}

// OnExit forwards to tid's trace. Exiting a thread that hasn't entered
// anything yet is a programmer error upstream, but this package tolerates
// it the same way OnEnter does (lazy registration), since trampoline exit
// stubs always pair with a prior entry in practice.
func (c *Collector) OnExit(tid ThreadID, ts trace.Timestamp) uintptr {
	return c.getOrRegister(tid).trace.OnExit(ts)
}

// MarkCompleted records that tid has exited the OS thread that was driving
// it, so its trace will receive no further events. The trace still
// receives exactly one more drain before it's evicted, so any events
// recorded between the thread's last on_exit and its OS-level exit are not
// lost.
func (c *Collector) MarkCompleted(tid ThreadID, when time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.threads[tid]
	if !ok {
		return
	}
	e.completed = true
	e.completedAt = when
}

// Completed reports whether tid has been marked completed, and when.
func (c *Collector) Completed(tid ThreadID) (when time.Time, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.threads[tid]
	if !ok || !e.completed {
		return time.Time{}, false
	}
	return e.completedAt, true
}

// ReadCollected drains every registered thread's trace and hands each
// non-empty slice to reader, matching spec.md §4.G's
// read_collected(reader). Threads marked completed are evicted once they
// have received one drain cycle following completion.
func (c *Collector) ReadCollected(reader func(tid ThreadID, events []trace.Event)) {
	type snapshot struct {
		tid ThreadID
		e   *threadEntry
	}

	c.mu.RLock()
	snap := make([]snapshot, 0, len(c.threads))
	for tid, e := range c.threads {
		snap = append(snap, snapshot{tid: tid, e: e})
	}
	c.mu.RUnlock()

	var evict []ThreadID
	for _, s := range snap {
		s.e.trace.Drain(func(events []trace.Event) {
			reader(s.tid, events)
		})
		if s.e.completed {
			if s.e.drainedAfterCompletion {
				evict = append(evict, s.tid)
			} else {
				s.e.drainedAfterCompletion = true
			}
		}
	}

	if len(evict) > 0 {
		c.mu.Lock()
		for _, tid := range evict {
			delete(c.threads, tid)
		}
		c.mu.Unlock()
	}
}

// ThreadIDs returns the currently registered thread IDs, for diagnostics
// and tests.
func (c *Collector) ThreadIDs() []ThreadID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ThreadID, 0, len(c.threads))
	for tid := range c.threads {
		out = append(out, tid)
	}
	return out
}
