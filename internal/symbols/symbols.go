// Package symbols implements component L of spec.md: joining a process's
// currently mapped modules and their (externally supplied) symbol tables to
// an absolute address, producing a symbol name and, where source-file
// metadata is available, a file/line.
package symbols

import (
	"sync"

	"github.com/hollowcore/profiler/internal/ids"
)

// Symbol is one entry of a module's symbol table, unique on (module_id,
// rva) per spec.md §3.
type Symbol struct {
	RVA    uint32
	Size   uint32
	Name   string
	FileID uint32
	Line   uint32
}

// SourceFile is one entry of a module's source-file table, joined to a
// Symbol by FileID.
type SourceFile struct {
	ID   uint32
	Path string
}

// Metadata is the immutable-once-populated module metadata of spec.md §3:
// `{ module_id, file_id, path, content_hash, symbols[], source_files[] }`.
type Metadata struct {
	ModuleID    ids.ID
	FileID      uint64
	Path        string
	ContentHash [32]byte
	Symbols     []Symbol
	SourceFiles []SourceFile
}

type mappingRange struct {
	moduleID ids.ID
	base     uintptr
	size     uintptr
}

type moduleIndex struct {
	byRVA      map[uint32]Symbol
	sourceByID map[uint32]string
}

// Resolver is the symbol resolver of spec.md §4.L. The zero value is not
// valid; use New.
type Resolver struct {
	mu       sync.RWMutex
	mappings map[ids.ID]mappingRange // keyed by mapping id
	modules  map[ids.ID]*moduleIndex
}

// New creates an empty Resolver.
func New() *Resolver {
	return &Resolver{
		mappings: make(map[ids.ID]mappingRange),
		modules:  make(map[ids.ID]*moduleIndex),
	}
}

// OnMapped registers a mapping's address range so later lookups can find
// the module containing a given address. mappingID, moduleID, base and
// size mirror the fields of a moduletracker.Mapping; this package doesn't
// import moduletracker directly so the two components stay decoupled, per
// spec.md §2's dependency direction (H and L both feed off the same
// notifications, neither depends on the other).
func (r *Resolver) OnMapped(mappingID, moduleID ids.ID, base, size uintptr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mappings[mappingID] = mappingRange{moduleID: moduleID, base: base, size: size}
}

// OnUnmapped removes a mapping's address range. Module metadata previously
// loaded via LoadMetadata is left untouched: a module can be remapped, and
// its metadata (being immutable and keyed by module_id) stays valid.
func (r *Resolver) OnUnmapped(mappingID ids.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.mappings, mappingID)
}

// LoadMetadata installs (module_id, rva) → symbol and file_id → path
// indexes for a module, replacing any previously loaded metadata for the
// same module_id. This is the join's data source, ordinarily populated
// from component M (the metadata cache) or a symbol-file reader; both are
// external collaborators per spec.md §1, so this package only consumes
// metadata once loaded, never reads files itself.
func (r *Resolver) LoadMetadata(m Metadata) {
	idx := &moduleIndex{
		byRVA:      make(map[uint32]Symbol, len(m.Symbols)),
		sourceByID: make(map[uint32]string, len(m.SourceFiles)),
	}
	for _, s := range m.Symbols {
		idx.byRVA[s.RVA] = s
	}
	for _, f := range m.SourceFiles {
		idx.sourceByID[f.ID] = f.Path
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[m.ModuleID] = idx
}

// containingMappingLocked finds the mapping whose [base, base+size) range
// contains address, per spec.md §4.L: "finds the containing mapping by
// address range". Concurrent unmap during symbolization (spec.md §7:
// "benign races... resolve to unknown and continue") simply yields no
// match here, same as any other absent mapping.
func (r *Resolver) containingMappingLocked(address uintptr) (mappingRange, bool) {
	for _, m := range r.mappings {
		if address >= m.base && address < m.base+m.size {
			return m, true
		}
	}
	return mappingRange{}, false
}

// SymbolName resolves address to its symbol's name, or "" if the address
// isn't covered by any currently mapped module, or no symbol exists at
// that module's (rva = address − base), per spec.md §4.L / §8 scenario S6.
func (r *Resolver) SymbolName(address uintptr) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.containingMappingLocked(address)
	if !ok {
		return ""
	}
	idx, ok := r.modules[m.moduleID]
	if !ok {
		return ""
	}
	sym, ok := idx.byRVA[uint32(address-m.base)]
	if !ok {
		return ""
	}
	return sym.Name
}

// FileLine resolves address to its symbol's source file and line, adding
// the source-file join on top of SymbolName's lookup (spec.md §4.L:
// "`file_line(address)` adds the source-file join"). ok is false if
// address has no symbol, or its symbol has no associated source file.
func (r *Resolver) FileLine(address uintptr) (file string, line uint32, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, found := r.containingMappingLocked(address)
	if !found {
		return "", 0, false
	}
	idx, found := r.modules[m.moduleID]
	if !found {
		return "", 0, false
	}
	sym, found := idx.byRVA[uint32(address-m.base)]
	if !found {
		return "", 0, false
	}
	path, found := idx.sourceByID[sym.FileID]
	if !found {
		return "", 0, false
	}
	return path, sym.Line, true
}
