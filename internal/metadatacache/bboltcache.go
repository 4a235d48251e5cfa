package metadatacache

import (
	"go.etcd.io/bbolt"

	"github.com/hollowcore/profiler/internal/ids"
	"github.com/hollowcore/profiler/internal/logging"
)

// boltCache is the persistent Cache, backed by an on-disk bbolt database.
type boltCache struct {
	db  *bbolt.DB
	log *logging.Logger
}

func (c *boltCache) Degraded() bool { return false }

func (c *boltCache) Close() error { return c.db.Close() }

func (c *boltCache) PutModule(row ModuleRow) error {
	data, err := gobEncode(row)
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketModule).Put(encodeID(row.ID), data)
	})
}

func (c *boltCache) GetModule(id ids.ID) (ModuleRow, bool, error) {
	var row ModuleRow
	found := false
	err := c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketModule).Get(encodeID(id))
		if data == nil {
			return nil
		}
		found = gobDecode(data, &row, c.log, "module row")
		return nil
	})
	if err != nil {
		return ModuleRow{}, false, err
	}
	return row, found, nil
}

func (c *boltCache) ModuleByHash(hash uint32) (ModuleRow, bool, error) {
	var row ModuleRow
	found := false
	err := c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketModule)
		return b.ForEach(func(_, data []byte) error {
			if found {
				return nil
			}
			var candidate ModuleRow
			if !gobDecode(data, &candidate, c.log, "module row") {
				return nil
			}
			if candidate.Hash == hash {
				row = candidate
				found = true
			}
			return nil
		})
	})
	if err != nil {
		return ModuleRow{}, false, err
	}
	return row, found, nil
}

func (c *boltCache) PutSymbolInfo(rows []SymbolInfoRow) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSymbolInfo)
		for _, row := range rows {
			data, err := gobEncode(row)
			if err != nil {
				return err
			}
			if err := b.Put(encodeSymbolKey(row.ModuleID, row.RVA), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *boltCache) SymbolInfoForModule(moduleID ids.ID) ([]SymbolInfoRow, error) {
	var rows []SymbolInfoRow
	prefix := encodeID(moduleID)
	err := c.db.View(func(tx *bbolt.Tx) error {
		cur := tx.Bucket(bucketSymbolInfo).Cursor()
		for k, v := cur.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = cur.Next() {
			var row SymbolInfoRow
			if gobDecode(v, &row, c.log, "symbol_info row") {
				rows = append(rows, row)
			}
		}
		return nil
	})
	return rows, err
}

func (c *boltCache) PutSourceFiles(rows []SourceFileRow) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSourceFile)
		for _, row := range rows {
			data, err := gobEncode(row)
			if err != nil {
				return err
			}
			if err := b.Put(encodeSymbolKey(row.ModuleID, row.FileID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *boltCache) SourceFilesForModule(moduleID ids.ID) ([]SourceFileRow, error) {
	var rows []SourceFileRow
	prefix := encodeID(moduleID)
	err := c.db.View(func(tx *bbolt.Tx) error {
		cur := tx.Bucket(bucketSourceFile).Cursor()
		for k, v := cur.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = cur.Next() {
			var row SourceFileRow
			if gobDecode(v, &row, c.log, "source_file row") {
				rows = append(rows, row)
			}
		}
		return nil
	})
	return rows, err
}

func (c *boltCache) PutCachedPatch(row CachedPatchRow) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketCachedPatch)
		if row.ID == 0 {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			row.ID = ids.ID(seq)
		}
		data, err := gobEncode(row)
		if err != nil {
			return err
		}
		return b.Put(encodeID(row.ID), data)
	})
}

func (c *boltCache) CachedPatchesForModule(moduleID ids.ID) ([]CachedPatchRow, error) {
	var rows []CachedPatchRow
	err := c.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCachedPatch).ForEach(func(_, data []byte) error {
			var row CachedPatchRow
			if !gobDecode(data, &row, c.log, "cached_patch row") {
				return nil
			}
			if row.ModuleID == moduleID {
				rows = append(rows, row)
			}
			return nil
		})
	})
	return rows, err
}

func (c *boltCache) DeleteCachedPatch(id ids.ID) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCachedPatch).Delete(encodeID(id))
	})
}

func hasPrefix(key, prefix []byte) bool {
	if len(key) < len(prefix) {
		return false
	}
	for i := range prefix {
		if key[i] != prefix[i] {
			return false
		}
	}
	return true
}
