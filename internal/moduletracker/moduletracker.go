// Package moduletracker implements component H of spec.md: tracking OS
// module map/unmap notifications, grouping mappings that share file
// identity into a stable module_id, and computing each module's content
// hash lazily on first query (a feature spec.md leaves implicit; see
// SPEC_FULL.md's supplemented features).
package moduletracker

import (
	"crypto/sha256"
	"fmt"
	"os"
	"sync"

	"github.com/hollowcore/profiler/internal/errkind"
	"github.com/hollowcore/profiler/internal/ids"
)

func defaultReadFile(path string) ([]byte, error) { return os.ReadFile(path) }

// FileIdentity is the (device, inode) pair — or platform equivalent file
// id — that groups multiple mappings of the same on-disk image into one
// stable module_id, per spec.md §4.H.
type FileIdentity struct {
	Device uint64
	FileID uint64
}

// Mapping is one OS-level map event: a single load of an image into the
// address space, with the module_id it has been grouped under.
type Mapping struct {
	ID       ids.ID
	ModuleID ids.ID
	Path     string
	Base     uintptr
	Size     uintptr
	Identity FileIdentity
}

// ReadFile abstracts reading a module image's bytes for content hashing,
// so tests can substitute a fake without touching the filesystem. Defaults
// to os.ReadFile in New.
type ReadFile func(path string) ([]byte, error)

type moduleEntry struct {
	id       ids.ID
	path     string // path of whichever mapping first registered this module
	hash     [32]byte
	hashed   bool
	hashErr  error
	mappings map[ids.ID]struct{}
}

// Tracker is the module tracker of spec.md §4.H. The zero value is not
// valid; use New.
type Tracker struct {
	readFile ReadFile

	mappingIDs ids.Allocator
	moduleIDs  ids.Allocator

	mu            sync.Mutex
	byIdentity    map[FileIdentity]*moduleEntry
	modulesByID   map[ids.ID]*moduleEntry
	mappings      map[ids.ID]*Mapping
	pendingLoaded []Mapping
	pendingUnload []ids.ID
}

// New creates an empty Tracker. readFile, if nil, defaults to os.ReadFile.
func New(readFile ReadFile) *Tracker {
	if readFile == nil {
		readFile = defaultReadFile
	}
	return &Tracker{
		readFile:    readFile,
		byIdentity:  make(map[FileIdentity]*moduleEntry),
		modulesByID: make(map[ids.ID]*moduleEntry),
		mappings:    make(map[ids.ID]*Mapping),
	}
}

// OnMapped records a new OS map notification, assigning it a mapping id
// and grouping it into a (possibly new, possibly pre-existing) stable
// module_id by file identity. It returns the assigned mapping.
func (t *Tracker) OnMapped(path string, identity FileIdentity, base, size uintptr) Mapping {
	t.mu.Lock()
	defer t.mu.Unlock()

	mod, ok := t.byIdentity[identity]
	if !ok {
		mod = &moduleEntry{
			id:       t.moduleIDs.Next(),
			path:     path,
			mappings: make(map[ids.ID]struct{}),
		}
		t.byIdentity[identity] = mod
		t.modulesByID[mod.id] = mod
	}

	m := Mapping{
		ID:       t.mappingIDs.Next(),
		ModuleID: mod.id,
		Path:     path,
		Base:     base,
		Size:     size,
		Identity: identity,
	}
	mod.mappings[m.ID] = struct{}{}
	t.mappings[m.ID] = &m
	t.pendingLoaded = append(t.pendingLoaded, m)
	return m
}

// OnUnmapped records an OS unmap notification for a previously mapped
// mapping id. The module_id itself is never retired: remapping the same
// file later reuses the same stable module_id, per spec.md §4.H.
func (t *Tracker) OnUnmapped(mappingID ids.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.mappings[mappingID]
	if !ok {
		return
	}
	delete(t.mappings, mappingID)
	if mod, ok := t.modulesByID[m.ModuleID]; ok {
		delete(mod.mappings, mappingID)
	}
	t.pendingUnload = append(t.pendingUnload, mappingID)
}

// GetChanges returns every load/unload since the last call and clears the
// pending deltas, matching spec.md §4.H's get_changes(loaded_out,
// unloaded_out).
func (t *Tracker) GetChanges() (loaded []Mapping, unloaded []ids.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	loaded = t.pendingLoaded
	unloaded = t.pendingUnload
	t.pendingLoaded = nil
	t.pendingUnload = nil
	return loaded, unloaded
}

// ContentHash returns the SHA-256 of moduleID's backing image, computing
// it on first query and caching the result thereafter (spec.md §4.H:
// "Computes the content hash of the mapped image lazily on first query").
// A read failure is cached too, so a permanently-unreadable module doesn't
// retry on every query.
func (t *Tracker) ContentHash(moduleID ids.ID) ([32]byte, error) {
	t.mu.Lock()
	mod, ok := t.modulesByID[moduleID]
	if !ok {
		t.mu.Unlock()
		// A caller asking about a module_id that was never registered, or
		// one that unmapped concurrently, resolves to "unknown" rather
		// than a hard failure (spec.md §7 benign-race handling).
		return [32]byte{}, errkind.NewBenignRace(fmt.Errorf("moduletracker: unknown module %d", moduleID))
	}
	if mod.hashed {
		hash, err := mod.hash, mod.hashErr
		t.mu.Unlock()
		return hash, err
	}
	path := mod.path
	t.mu.Unlock()

	data, err := t.readFile(path)
	var hash [32]byte
	if err == nil {
		hash = sha256.Sum256(data)
	}

	t.mu.Lock()
	mod.hashed = true
	mod.hash = hash
	mod.hashErr = err
	t.mu.Unlock()

	return hash, err
}
