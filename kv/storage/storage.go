package storage

import (
	"github.com/pingcap-incubator/tinyocc/kv/util/engine_util"
)

// Storage represents the storage engine underneath a region. It reads and writes data to disk (or semi-permanent
// memory). Every call to Write is applied atomically and is durable once it returns.
type Storage interface {
	Start() error
	Stop() error
	Write(batch []Modify) error
	Reader() (StorageReader, error)
}

// StorageReader is a consistent view of a Storage. It must be closed after use.
type StorageReader interface {
	// When the key doesn't exist, return nil for the value
	GetCF(cf string, key []byte) ([]byte, error)
	IterCF(cf string) engine_util.DBIterator
	Close()
}
