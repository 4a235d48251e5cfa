// Package memalloc implements component A of spec.md: a page-aligned,
// read/write/execute slab allocator for trampolines.
//
// Slots are fixed-size (one trampoline's byte length) and are carved out of
// whole OS pages mapped PROT_READ|PROT_WRITE|PROT_EXEC. Pages are never
// returned to the OS individually — the allocator is expected to live for
// the lifetime of the collector — but slots are freelist-recycled on
// Release so repeated patch/unpatch cycles don't grow unbounded.
package memalloc

import (
	"fmt"
	"sync"

	"github.com/hollowcore/profiler/internal/errkind"
)

// Slot is one fixed-size executable memory allocation. The zero value is
// not valid; obtain one from Allocator.Allocate.
type Slot struct {
	alloc *Allocator
	page  *page
	index int
}

// Pointer returns the slot's address. The memory is valid and executable
// until Release is called.
func (s Slot) Pointer() uintptr {
	return s.page.base + uintptr(s.index)*s.page.slotSize
}

// Bytes returns a []byte view over the slot's backing memory, for writing
// the generated trampoline body.
func (s Slot) Bytes() []byte {
	return s.page.mem[s.index*int(s.page.slotSize) : (s.index+1)*int(s.page.slotSize)]
}

// Release returns the slot to its page's freelist. It does not unmap the
// page. Releasing a slot twice is a programmer error.
func (s Slot) Release() {
	s.alloc.release(s)
}

type page struct {
	mem      []byte
	base     uintptr
	slotSize uintptr
	free     []int // indices available for (re)allocation
}

// Allocator allocates fixed-size executable slots. All methods are
// thread-safe.
type Allocator struct {
	mu       sync.Mutex
	slotSize uintptr
	pages    []*page
	mapPage  func(size int) ([]byte, error)
	unmap    func([]byte) error
}

// New creates an Allocator handing out slots of slotSize bytes. slotSize
// must be positive; it is rounded up by callers to the trampoline's actual
// generated length (component C).
func New(slotSize int) (*Allocator, error) {
	if slotSize <= 0 {
		return nil, errkind.NewProgrammer(fmt.Errorf("memalloc: slot size must be positive, got %d", slotSize))
	}
	return &Allocator{
		slotSize: uintptr(slotSize),
		mapPage:  mapExecutablePage,
		unmap:    unmapPage,
	}, nil
}

// slotsPerPage controls how many slots are carved from a single mapping
// (slotSize × slotsPerPage bytes, rounded up by the OS to whole pages)
// before a new one is requested from the OS.
const slotsPerPage = 64

// Allocate returns a slot whose pointer is valid and executable until
// Release is called.
func (a *Allocator) Allocate() (Slot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, p := range a.pages {
		if len(p.free) > 0 {
			idx := p.free[len(p.free)-1]
			p.free = p.free[:len(p.free)-1]
			return Slot{alloc: a, page: p, index: idx}, nil
		}
	}

	pageBytes := int(a.slotSize) * slotsPerPage
	mem, err := a.mapPage(pageBytes)
	if err != nil {
		return Slot{}, errkind.NewResource(fmt.Errorf("memalloc: map executable page: %w", err))
	}

	p := &page{
		mem:      mem,
		base:     addressOf(mem),
		slotSize: a.slotSize,
		free:     make([]int, 0, slotsPerPage-1),
	}
	for i := slotsPerPage - 1; i >= 1; i-- {
		p.free = append(p.free, i)
	}
	a.pages = append(a.pages, p)

	return Slot{alloc: a, page: p, index: 0}, nil
}

func (a *Allocator) release(s Slot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s.page.free = append(s.page.free, s.index)
}

// Close unmaps every page the allocator has ever mapped. It must not be
// called while any outstanding Slot is still in use.
func (a *Allocator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var firstErr error
	for _, p := range a.pages {
		if err := a.unmap(p.mem); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.pages = nil
	return firstErr
}
