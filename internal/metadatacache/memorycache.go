package metadatacache

import (
	"sync"

	"github.com/hollowcore/profiler/internal/ids"
)

// memoryCache is the degraded Cache returned by Open when the on-disk
// database can't be opened: same contract, no persistence.
type memoryCache struct {
	mu          sync.Mutex
	modules     map[ids.ID]ModuleRow
	symbolInfo  map[ids.ID][]SymbolInfoRow
	sourceFiles map[ids.ID][]SourceFileRow
	patches     map[ids.ID]CachedPatchRow
	nextPatchID ids.Allocator
}

func newMemoryCache() *memoryCache {
	return &memoryCache{
		modules:     make(map[ids.ID]ModuleRow),
		symbolInfo:  make(map[ids.ID][]SymbolInfoRow),
		sourceFiles: make(map[ids.ID][]SourceFileRow),
		patches:     make(map[ids.ID]CachedPatchRow),
	}
}

func (c *memoryCache) Degraded() bool { return true }

func (c *memoryCache) Close() error { return nil }

func (c *memoryCache) PutModule(row ModuleRow) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.modules[row.ID] = row
	return nil
}

func (c *memoryCache) GetModule(id ids.ID) (ModuleRow, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	row, ok := c.modules[id]
	return row, ok, nil
}

func (c *memoryCache) ModuleByHash(hash uint32) (ModuleRow, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, row := range c.modules {
		if row.Hash == hash {
			return row, true, nil
		}
	}
	return ModuleRow{}, false, nil
}

func (c *memoryCache) PutSymbolInfo(rows []SymbolInfoRow) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, row := range rows {
		existing := c.symbolInfo[row.ModuleID]
		replaced := false
		for i, e := range existing {
			if e.RVA == row.RVA {
				existing[i] = row
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, row)
		}
		c.symbolInfo[row.ModuleID] = existing
	}
	return nil
}

func (c *memoryCache) SymbolInfoForModule(moduleID ids.ID) ([]SymbolInfoRow, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SymbolInfoRow, len(c.symbolInfo[moduleID]))
	copy(out, c.symbolInfo[moduleID])
	return out, nil
}

func (c *memoryCache) PutSourceFiles(rows []SourceFileRow) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, row := range rows {
		existing := c.sourceFiles[row.ModuleID]
		replaced := false
		for i, e := range existing {
			if e.FileID == row.FileID {
				existing[i] = row
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, row)
		}
		c.sourceFiles[row.ModuleID] = existing
	}
	return nil
}

func (c *memoryCache) SourceFilesForModule(moduleID ids.ID) ([]SourceFileRow, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SourceFileRow, len(c.sourceFiles[moduleID]))
	copy(out, c.sourceFiles[moduleID])
	return out, nil
}

func (c *memoryCache) PutCachedPatch(row CachedPatchRow) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if row.ID == 0 {
		row.ID = c.nextPatchID.Next()
	}
	c.patches[row.ID] = row
	return nil
}

func (c *memoryCache) CachedPatchesForModule(moduleID ids.ID) ([]CachedPatchRow, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []CachedPatchRow
	for _, row := range c.patches {
		if row.ModuleID == moduleID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (c *memoryCache) DeleteCachedPatch(id ids.ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.patches, id)
	return nil
}
