package engine_util

import (
	"github.com/Connor1996/badger"
	"github.com/pingcap/errors"
)

type batchEntry struct {
	key    []byte
	value  []byte
	delete bool
}

// WriteBatch collects writes to several column families and applies them in one badger transaction.
type WriteBatch struct {
	entries []batchEntry
	size    int
}

const (
	// Cells of the region, keyed by codec.EncodeCellKey.
	CfDefault string = "default"
	// Transaction log records.
	CfTxnLog string = "txnlog"
)

var CFs [2]string = [2]string{CfDefault, CfTxnLog}

func (wb *WriteBatch) Len() int {
	return len(wb.entries)
}

func (wb *WriteBatch) Size() int {
	return wb.size
}

func (wb *WriteBatch) SetCF(cf string, key, val []byte) {
	wb.entries = append(wb.entries, batchEntry{
		key:   KeyWithCF(cf, key),
		value: val,
	})
	wb.size += len(key) + len(val)
}

func (wb *WriteBatch) DeleteCF(cf string, key []byte) {
	wb.entries = append(wb.entries, batchEntry{
		key:    KeyWithCF(cf, key),
		delete: true,
	})
	wb.size += len(key)
}

func (wb *WriteBatch) WriteToDB(db *badger.DB) error {
	if len(wb.entries) > 0 {
		err := db.Update(func(txn *badger.Txn) error {
			for _, entry := range wb.entries {
				var err1 error
				if entry.delete {
					err1 = txn.Delete(entry.key)
				} else {
					err1 = txn.Set(entry.key, entry.value)
				}
				if err1 != nil {
					return err1
				}
			}
			return nil
		})
		if err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}
