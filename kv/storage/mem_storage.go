package storage

import (
	"bytes"
	"sync"

	"github.com/Connor1996/badger/y"
	"github.com/petar/GoLLRB/llrb"
	"github.com/pingcap-incubator/tinyocc/kv/util/engine_util"
)

// MemStorage is a simple storage backed by memory for testing. Data is not written to disk. It is intended for
// testing only. Readers observe live data rather than a snapshot.
type MemStorage struct {
	mu  sync.RWMutex
	cfs map[string]*llrb.LLRB
	// When set, Write fails with this error without applying anything.
	WriteErr error
}

func NewMemStorage() *MemStorage {
	s := &MemStorage{cfs: make(map[string]*llrb.LLRB)}
	for _, cf := range engine_util.CFs {
		s.cfs[cf] = llrb.New()
	}
	return s
}

func (s *MemStorage) Start() error {
	return nil
}

func (s *MemStorage) Stop() error {
	return nil
}

func (s *MemStorage) Reader() (StorageReader, error) {
	return &memReader{s}, nil
}

func (s *MemStorage) Write(batch []Modify) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WriteErr != nil {
		return s.WriteErr
	}
	for _, m := range batch {
		switch data := m.Data.(type) {
		case Put:
			s.tree(data.Cf).ReplaceOrInsert(memItem{data.Key, data.Value})
		case Delete:
			s.tree(data.Cf).Delete(memItem{key: data.Key})
		}
	}
	return nil
}

// tree must be called with mu held.
func (s *MemStorage) tree(cf string) *llrb.LLRB {
	t, ok := s.cfs[cf]
	if !ok {
		t = llrb.New()
		s.cfs[cf] = t
	}
	return t
}

func (s *MemStorage) Get(cf string, key []byte) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.cfs[cf]
	if !ok {
		return nil
	}
	result := t.Get(memItem{key: key})
	if result == nil {
		return nil
	}
	return result.(memItem).value
}

func (s *MemStorage) Set(cf string, key []byte, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree(cf).ReplaceOrInsert(memItem{key, value})
}

func (s *MemStorage) Len(cf string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.cfs[cf]; ok {
		return t.Len()
	}
	return 0
}

// memReader is a StorageReader which reads from a MemStorage.
type memReader struct {
	inner *MemStorage
}

func (mr *memReader) GetCF(cf string, key []byte) ([]byte, error) {
	return mr.inner.Get(cf, key), nil
}

func (mr *memReader) IterCF(cf string) engine_util.DBIterator {
	mr.inner.mu.Lock()
	data := mr.inner.tree(cf)
	mr.inner.mu.Unlock()

	it := &memIter{inner: mr.inner, data: data}
	it.Seek(nil)
	return it
}

func (r *memReader) Close() {}

type memIter struct {
	inner *MemStorage
	data  *llrb.LLRB
	item  memItem
}

func (it *memIter) Item() engine_util.DBItem {
	return it.item
}

func (it *memIter) Valid() bool {
	return it.item.key != nil
}

func (it *memIter) Next() {
	it.inner.mu.RLock()
	defer it.inner.mu.RUnlock()
	first := true
	oldItem := it.item
	it.item = memItem{}
	it.data.AscendGreaterOrEqual(oldItem, func(item llrb.Item) bool {
		// Skip the first item, which will be it.item
		if first && bytes.Equal(item.(memItem).key, oldItem.key) {
			first = false
			return true
		}

		it.item = item.(memItem)
		return false
	})
}

func (it *memIter) Seek(key []byte) {
	it.inner.mu.RLock()
	defer it.inner.mu.RUnlock()
	it.item = memItem{}
	if key == nil {
		key = []byte{}
	}
	it.data.AscendGreaterOrEqual(memItem{key: key}, func(item llrb.Item) bool {
		it.item = item.(memItem)
		return false
	})
}

func (it *memIter) Close() {}

type memItem struct {
	key   []byte
	value []byte
}

func (it memItem) Key() []byte {
	return it.key
}
func (it memItem) KeyCopy(dst []byte) []byte {
	return y.SafeCopy(dst, it.key)
}
func (it memItem) Value() ([]byte, error) {
	return it.value, nil
}
func (it memItem) ValueCopy(dst []byte) ([]byte, error) {
	return y.SafeCopy(dst, it.value), nil
}

func (it memItem) Less(than llrb.Item) bool {
	other := than.(memItem)
	return bytes.Compare(it.key, other.key) < 0
}
