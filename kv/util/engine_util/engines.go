package engine_util

import (
	"os"
	"path/filepath"

	"github.com/Connor1996/badger"
	"github.com/pingcap-incubator/tinyocc/kv/config"
	"github.com/pingcap-incubator/tinyocc/log"
)

// Engines keeps references to and data for the engines used by a region server.
// All engines are badger key/value databases.
// the Path fields are the filesystem path to where the data is stored.
type Engines struct {
	// Committed cells of the region.
	Kv     *badger.DB
	KvPath string
	// Transaction log records; read back only while reconstructing the region after a restart.
	TxnLog     *badger.DB
	TxnLogPath string
}

func NewEngines(kvEngine, txnLogEngine *badger.DB, kvPath, txnLogPath string) *Engines {
	return &Engines{
		Kv:         kvEngine,
		KvPath:     kvPath,
		TxnLog:     txnLogEngine,
		TxnLogPath: txnLogPath,
	}
}

// OpenEngines creates (or reopens) both engines below conf.DBPath.
func OpenEngines(conf *config.Config) *Engines {
	kvPath := filepath.Join(conf.DBPath, "kv")
	txnLogPath := filepath.Join(conf.DBPath, "txnlog")
	return NewEngines(CreateDB(kvPath, conf, false), CreateDB(txnLogPath, conf, true), kvPath, txnLogPath)
}

func (en *Engines) Close() error {
	if err := en.Kv.Close(); err != nil {
		return err
	}
	if err := en.TxnLog.Close(); err != nil {
		return err
	}
	return nil
}

// CreateDB creates a new Badger DB on disk at path.
func CreateDB(path string, conf *config.Config, txnLog bool) *badger.DB {
	opts := badger.DefaultOptions
	if txnLog {
		// Log records are small and deleted once replayed, keep them in the LSM tree.
		opts.ValueThreshold = 0
	}
	opts.Dir = path
	opts.ValueDir = opts.Dir
	opts.SyncWrites = true
	if conf.EngineMaxTableSize > 0 {
		opts.MaxTableSize = int64(conf.EngineMaxTableSize)
	}
	if conf.EngineValueLogFileSize > 0 {
		opts.ValueLogFileSize = int64(conf.EngineValueLogFileSize)
	}
	if err := os.MkdirAll(opts.Dir, os.ModePerm); err != nil {
		log.Fatal(err)
	}
	db, err := badger.Open(opts)
	if err != nil {
		log.Fatal(err)
	}
	return db
}
