// Package metadatacache implements component M of spec.md: the persistent
// store of module metadata, symbol tables, source files and cached patch
// targets keyed by content hash, described in spec.md §6 as four
// relational tables (`module`, `symbol_info`, `source_file`,
// `cached_patch`). Since no SQL engine appears anywhere in the retrieved
// pack, the four tables are re-hosted as four top-level buckets in
// go.etcd.io/bbolt, an embedded ordered key/value store (see DESIGN.md for
// the full substitution rationale); values are gob-encoded.
//
// Opening the on-disk database is an environmental concern: a permissions
// or disk-space failure degrades to an in-memory-only Cache (spec.md §7's
// environmental-error policy — logged, local recovery — rather than a
// fatal start-up error), so a frontend without a writable cache directory
// still runs, just without persistence across restarts.
package metadatacache

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/hollowcore/profiler/internal/errkind"
	"github.com/hollowcore/profiler/internal/ids"
	"github.com/hollowcore/profiler/internal/logging"
)

// ModuleRow mirrors spec.md §6's `module(id pk, hash u32, path text,
// file_id text)` table.
type ModuleRow struct {
	ID     ids.ID
	Hash   uint32
	Path   string
	FileID string
}

// SymbolInfoRow mirrors `symbol_info(module_id fk, rva u32, size u32, name
// text, file_id u32, line u32)`.
type SymbolInfoRow struct {
	ModuleID ids.ID
	RVA      uint32
	Size     uint32
	Name     string
	FileID   uint32
	Line     uint32
}

// SourceFileRow mirrors `source_file(module_id fk, id u32, path text)`.
type SourceFileRow struct {
	ModuleID ids.ID
	FileID   uint32
	Path     string
}

// CachedPatchRow mirrors `cached_patch(id pk, module_id fk, rva u32)`.
type CachedPatchRow struct {
	ID       ids.ID
	ModuleID ids.ID
	RVA      uint32
}

var (
	bucketModule      = []byte("module")
	bucketSymbolInfo  = []byte("symbol_info")
	bucketSourceFile  = []byte("source_file")
	bucketCachedPatch = []byte("cached_patch")
)

// Cache is the persistent metadata cache contract: a degraded (in-memory)
// cache and a bbolt-backed one both satisfy it, so callers never need to
// know which one they got from Open.
type Cache interface {
	PutModule(row ModuleRow) error
	GetModule(id ids.ID) (ModuleRow, bool, error)
	ModuleByHash(hash uint32) (ModuleRow, bool, error)

	PutSymbolInfo(rows []SymbolInfoRow) error
	SymbolInfoForModule(moduleID ids.ID) ([]SymbolInfoRow, error)

	PutSourceFiles(rows []SourceFileRow) error
	SourceFilesForModule(moduleID ids.ID) ([]SourceFileRow, error)

	PutCachedPatch(row CachedPatchRow) error
	CachedPatchesForModule(moduleID ids.ID) ([]CachedPatchRow, error)
	DeleteCachedPatch(id ids.ID) error

	// Degraded reports whether this Cache fell back to in-memory-only
	// storage (no on-disk persistence across process restarts).
	Degraded() bool

	Close() error
}

// Open opens (creating if absent) a bbolt-backed Cache at path. If the
// database can't be opened — a permissions error, a full disk, a path
// under a read-only mount — the failure is logged at Warning and Open
// returns a degraded, purely in-memory Cache instead of failing, per
// spec.md §7's environmental-error recovery policy. Open never fails; a
// caller that must distinguish degraded mode calls Cache.Degraded.
func Open(path string, log *logging.Logger) Cache {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		if log != nil {
			log.Warning().Err(errkind.NewEnvironmental(fmt.Errorf("metadatacache: open %q: %w", path, err))).Log("metadata cache degraded to in-memory")
		}
		return newMemoryCache()
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketModule, bucketSymbolInfo, bucketSourceFile, bucketCachedPatch} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		if log != nil {
			log.Warning().Err(errkind.NewEnvironmental(fmt.Errorf("metadatacache: init buckets: %w", err))).Log("metadata cache degraded to in-memory")
		}
		return newMemoryCache()
	}

	return &boltCache{db: db, log: log}
}

func encodeID(id ids.ID) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(id))
	return b[:]
}

func encodeSymbolKey(moduleID ids.ID, rva uint32) []byte {
	var b [12]byte
	binary.BigEndian.PutUint64(b[:8], uint64(moduleID))
	binary.BigEndian.PutUint32(b[8:], rva)
	return b[:]
}

func gobEncode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, errkind.NewDataShape(fmt.Errorf("metadatacache: encode: %w", err))
	}
	return buf.Bytes(), nil
}

// gobDecode reports ok=false (not an error) on a malformed row, per
// spec.md §7: "data-shape errors... cache row skipped" rather than
// failing the whole read.
func gobDecode(data []byte, v any, log *logging.Logger, context string) bool {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		if log != nil {
			log.Warning().Err(errkind.NewDataShape(fmt.Errorf("metadatacache: decode %s: %w", context, err))).Log("skipping malformed cache row")
		}
		return false
	}
	return true
}
