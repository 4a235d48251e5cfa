// Command profiler-collectorctl is a thin demo harness driving the
// collector's full pipeline — executable allocation (A), jump patching
// (B), trampoline (C), function patch (D), per-thread trace (F) and the
// thread registry (G) — against a fake in-process target, the same shape
// as the original implementation's AppTests end-to-end harness
// (Integricity/AppTests/MTTests.cpp). It exists for manual inspection; the
// scripted assertions against this same pipeline live in
// internal/collector/integration_test.go.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/hollowcore/profiler/internal/collector"
	"github.com/hollowcore/profiler/internal/jumper"
	"github.com/hollowcore/profiler/internal/logging"
	"github.com/hollowcore/profiler/internal/memalloc"
	"github.com/hollowcore/profiler/internal/patch"
	"github.com/hollowcore/profiler/internal/trace"
)

func newMonotonicClock() func() int64 {
	return func() int64 { return time.Now().UnixNano() }
}

// boundInterceptor pins a Collector to a single synthetic thread id, the
// way a real trampoline build binds to whichever native thread is
// executing the patched function.
type boundInterceptor struct {
	c   *collector.Collector
	tid collector.ThreadID
}

func (b boundInterceptor) OnEnter(callee uintptr, ts int64, sp uintptr) {
	b.c.OnEnter(b.tid, callee, ts, sp)
}

func (b boundInterceptor) OnExit(ts int64) uintptr {
	return b.c.OnExit(b.tid, ts)
}

func main() {
	log := logging.New(nil)

	alloc, err := memalloc.New(jumper.Len() + 16)
	if err != nil {
		log.Err().Err(err).Log("allocate executable memory")
		os.Exit(1)
	}
	defer alloc.Close()

	// stand in for a real function's prologue: a slot of NOPs, patched the
	// same way function_patch_test.go's newPatchableFunction does.
	slot, err := alloc.Allocate()
	if err != nil {
		log.Err().Err(err).Log("allocate patch slot")
		os.Exit(1)
	}
	for i := range slot.Bytes() {
		slot.Bytes()[i] = 0x90
	}
	target := slot.Pointer()

	col := collector.New(256)
	const tid collector.ThreadID = 1
	hooks := boundInterceptor{c: col, tid: tid}

	clock := newMonotonicClock()

	fp, err := patch.New(alloc, target, hooks, clock)
	if err != nil {
		log.Err().Err(err).Log("install patch")
		os.Exit(1)
	}
	defer fp.Close()

	fmt.Printf("patched target=%#x, active=%v\n", target, fp.Active())

	for i := 0; i < 5; i++ {
		fp.Trampoline().Call(uintptr(0x1000+i), func() {})
	}

	col.ReadCollected(func(gotTID collector.ThreadID, events []trace.Event) {
		for _, e := range events {
			fmt.Printf("thread=%d ts=%d callee=%#x\n", gotTID, e.Timestamp, e.Callee)
		}
	})
}
