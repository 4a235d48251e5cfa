package patch

import (
	"io"
	"sync"

	"github.com/hollowcore/profiler/internal/ids"
)

// State is one RVA's position in the patch state machine (spec.md §4
// "State machines (summary)"):
//
//	idle --apply--> requestedApply --ok--> active --revert--> requestedRevert --ok--> idle
//	any state --fail--> errorState (terminal)
type State int

const (
	StateIdle State = iota
	StateRequestedApply
	StateActive
	StateRequestedRevert
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequestedApply:
		return "requested_apply"
	case StateActive:
		return "active"
	case StateRequestedRevert:
		return "requested_revert"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Installer installs a patch at (moduleID, rva) and returns a handle whose
// Close reverts it. It is invoked off the caller's goroutine by Manager.
type Installer func(moduleID ids.ID, rva RVA) (io.Closer, error)

// slotDiscarder is implemented by patches (FunctionPatch) that can release
// their trampoline slot without reverting the jumper's installed bytes —
// the module-unmapped path, where byte-restore is unsafe (the memory is
// gone) but the slot still has to be freed.
type slotDiscarder interface {
	Discard()
}

type entry struct {
	state  State
	closer io.Closer
	err    error
}

// Manager is the image patch manager of spec.md §4.E: per module, it
// maintains rva → patch state and drives apply/revert asynchronously.
// Each module's rva → state table is guarded by that module's lock, so two
// RVAs in the same module cannot race each other's state transition. The
// Installer and each patch's Close run on their own goroutines outside that
// lock; the Manager does not serialize code-page writes itself (a
// FunctionPatch's writes are serialized process-wide by package jumper).
type Manager struct {
	install Installer

	mu      sync.Mutex
	modules map[ids.ID]*moduleState
}

type moduleState struct {
	mu      sync.Mutex
	entries map[RVA]*entry
}

// NewManager creates a Manager that installs patches via install.
func NewManager(install Installer) *Manager {
	return &Manager{install: install, modules: make(map[ids.ID]*moduleState)}
}

func (m *Manager) moduleLocked(id ids.ID) *moduleState {
	m.mu.Lock()
	defer m.mu.Unlock()
	mod, ok := m.modules[id]
	if !ok {
		mod = &moduleState{entries: make(map[RVA]*entry)}
		m.modules[id] = mod
	}
	return mod
}

// Apply transitions each of rvas through idle → requested_apply → active
// (or → error on failure), installing asynchronously. Applying an
// already-active or already-requested RVA is a no-op (property P6), and so
// is applying an RVA in the terminal error state.
func (m *Manager) Apply(moduleID ids.ID, rvas []RVA) {
	mod := m.moduleLocked(moduleID)
	for _, rva := range rvas {
		rva := rva
		mod.mu.Lock()
		e, ok := mod.entries[rva]
		if !ok {
			e = &entry{}
			mod.entries[rva] = e
		}
		if e.state == StateActive || e.state == StateRequestedApply || e.state == StateError {
			mod.mu.Unlock()
			continue
		}
		e.state = StateRequestedApply
		e.err = nil
		mod.mu.Unlock()

		go m.installOne(moduleID, mod, rva)
	}
}

func (m *Manager) installOne(moduleID ids.ID, mod *moduleState, rva RVA) {
	closer, err := m.install(moduleID, rva)

	mod.mu.Lock()
	defer mod.mu.Unlock()
	e, ok := mod.entries[rva]
	if !ok {
		// Module was unmapped (entries wiped) while install was in flight:
		// release the trampoline slot without reverting the jump, so no
		// writes are issued to unmapped memory.
		if d, ok := closer.(slotDiscarder); ok {
			d.Discard()
		}
		return
	}
	if err != nil {
		e.state = StateError
		e.err = err
		return
	}
	e.state = StateActive
	e.closer = closer
}

// Revert transitions each active RVA through active → requested_revert →
// idle (or → error on failure), reverting asynchronously. Reverting a
// non-active RVA is a no-op.
func (m *Manager) Revert(moduleID ids.ID, rvas []RVA) {
	mod := m.moduleLocked(moduleID)
	for _, rva := range rvas {
		rva := rva
		mod.mu.Lock()
		e, ok := mod.entries[rva]
		if !ok || e.state != StateActive {
			mod.mu.Unlock()
			continue
		}
		e.state = StateRequestedRevert
		closer := e.closer
		mod.mu.Unlock()

		go m.revertOne(mod, rva, closer)
	}
}

func (m *Manager) revertOne(mod *moduleState, rva RVA, closer io.Closer) {
	err := closer.Close()

	mod.mu.Lock()
	defer mod.mu.Unlock()
	e, ok := mod.entries[rva]
	if !ok {
		return
	}
	if err != nil {
		e.state = StateError
		e.err = err
		return
	}
	e.state = StateIdle
	e.closer = nil
}

// ModuleUnmapped implicitly reverts every patch in moduleID without issuing
// any writes, per spec.md §4.E: "Module unmap implicitly reverts all of its
// patches (no writes are issued to unmapped memory)." Each active entry's
// trampoline slot is still released back to the allocator — only the
// jumper's byte-restore write is skipped — or repeated load/unload of the
// same module leaks executable memory on every cycle.
func (m *Manager) ModuleUnmapped(moduleID ids.ID) {
	m.mu.Lock()
	mod, ok := m.modules[moduleID]
	delete(m.modules, moduleID)
	m.mu.Unlock()
	if !ok {
		return
	}

	mod.mu.Lock()
	defer mod.mu.Unlock()
	for rva, e := range mod.entries {
		if e.closer != nil {
			if d, ok := e.closer.(slotDiscarder); ok {
				d.Discard()
			}
		}
		delete(mod.entries, rva)
	}
}

// Snapshot returns the observable state of every tracked RVA, per module —
// the data an observing UI would render (spec.md §4.E snapshot()).
func (m *Manager) Snapshot() map[ids.ID]map[RVA]State {
	m.mu.Lock()
	mods := make([]ids.ID, 0, len(m.modules))
	modRefs := make(map[ids.ID]*moduleState, len(m.modules))
	for id, mod := range m.modules {
		mods = append(mods, id)
		modRefs[id] = mod
	}
	m.mu.Unlock()

	out := make(map[ids.ID]map[RVA]State, len(mods))
	for _, id := range mods {
		mod := modRefs[id]
		mod.mu.Lock()
		states := make(map[RVA]State, len(mod.entries))
		for rva, e := range mod.entries {
			states[rva] = e.state
		}
		mod.mu.Unlock()
		out[id] = states
	}
	return out
}

// Err returns the error recorded for an RVA in the error state, if any.
func (m *Manager) Err(moduleID ids.ID, rva RVA) error {
	mod := m.moduleLocked(moduleID)
	mod.mu.Lock()
	defer mod.mu.Unlock()
	if e, ok := mod.entries[rva]; ok {
		return e.err
	}
	return nil
}
