package standalone_storage

import (
	"github.com/Connor1996/badger"
	"github.com/pingcap-incubator/tinyocc/kv/storage"
	"github.com/pingcap-incubator/tinyocc/kv/util/engine_util"
	"github.com/pingcap/errors"
)

// StandAloneStorage is an implementation of `Storage` over a single local badger engine. The engine is owned by
// the caller (see engine_util.Engines) and is not closed by Stop.
type StandAloneStorage struct {
	db *badger.DB
}

func NewStandAloneStorage(db *badger.DB) *StandAloneStorage {
	return &StandAloneStorage{db: db}
}

func (s *StandAloneStorage) Start() error {
	return nil
}

func (s *StandAloneStorage) Stop() error {
	return nil
}

// Reader returns a reader over a consistent snapshot of the engine. The caller must Close it.
func (s *StandAloneStorage) Reader() (storage.StorageReader, error) {
	return NewStandAloneReader(s.db.NewTransaction(false)), nil
}

// Write applies batch atomically and durably.
func (s *StandAloneStorage) Write(batch []storage.Modify) error {
	wb := new(engine_util.WriteBatch)
	for _, m := range batch {
		switch data := m.Data.(type) {
		case storage.Put:
			wb.SetCF(data.Cf, data.Key, data.Value)
		case storage.Delete:
			wb.DeleteCF(data.Cf, data.Key)
		default:
			return errors.Errorf("unknown modify type %T", m.Data)
		}
	}
	return wb.WriteToDB(s.db)
}

type StandAloneReader struct {
	txn   *badger.Txn
	iters []*readerIterator
}

// readerIterator lets both the caller and the reader close an iterator; badger panics when a transaction is
// discarded with open iterators.
type readerIterator struct {
	*engine_util.BadgerIterator
	closed bool
}

func (it *readerIterator) Close() {
	if !it.closed {
		it.closed = true
		it.BadgerIterator.Close()
	}
}

func NewStandAloneReader(txn *badger.Txn) *StandAloneReader {
	return &StandAloneReader{txn: txn}
}

// GetCF returns nil without error when the key does not exist.
func (r *StandAloneReader) GetCF(cf string, key []byte) ([]byte, error) {
	val, err := engine_util.GetCFFromTxn(r.txn, cf, key)
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	return val, errors.WithStack(err)
}

func (r *StandAloneReader) IterCF(cf string) engine_util.DBIterator {
	it := &readerIterator{BadgerIterator: engine_util.NewCFIterator(cf, r.txn)}
	r.iters = append(r.iters, it)
	return it
}

// Close releases the snapshot. Iterators obtained from the reader must not be used afterwards.
func (r *StandAloneReader) Close() {
	for _, it := range r.iters {
		it.Close()
	}
	r.iters = nil
	r.txn.Discard()
}
