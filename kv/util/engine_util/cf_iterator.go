package engine_util

import (
	"github.com/Connor1996/badger"
)

// DBIterator iterates the keys of one column family in ascending order.
type DBIterator interface {
	// Item returns the current pair. Only call it while Valid.
	Item() DBItem
	// Valid returns false once the iterator has run off the end of the column family.
	Valid() bool
	Next()
	// Seek moves to the first key at or after key.
	Seek(key []byte)
	Close()
}

// DBItem is a key/value pair of a column family. Key and Value are only valid until the iterator moves.
type DBItem interface {
	Key() []byte
	// KeyCopy copies the key into dst, allocating when dst is too small.
	KeyCopy(dst []byte) []byte
	Value() ([]byte, error)
	ValueCopy(dst []byte) ([]byte, error)
}

// cfItem strips the column family prefix from a badger item.
type cfItem struct {
	item      *badger.Item
	prefixLen int
}

func (i *cfItem) Key() []byte {
	return i.item.Key()[i.prefixLen:]
}

func (i *cfItem) KeyCopy(dst []byte) []byte {
	return i.item.KeyCopy(dst)[i.prefixLen:]
}

func (i *cfItem) Value() ([]byte, error) {
	return i.item.Value()
}

func (i *cfItem) ValueCopy(dst []byte) ([]byte, error) {
	return i.item.ValueCopy(dst)
}

// BadgerIterator confines a badger iterator to the keys of one column family.
type BadgerIterator struct {
	iter   *badger.Iterator
	prefix []byte
}

func NewCFIterator(cf string, txn *badger.Txn) *BadgerIterator {
	return &BadgerIterator{
		iter:   txn.NewIterator(badger.DefaultIteratorOptions),
		prefix: []byte(cf + "_"),
	}
}

func (it *BadgerIterator) Item() DBItem {
	return &cfItem{item: it.iter.Item(), prefixLen: len(it.prefix)}
}

func (it *BadgerIterator) Valid() bool {
	return it.iter.ValidForPrefix(it.prefix)
}

func (it *BadgerIterator) Next() {
	it.iter.Next()
}

func (it *BadgerIterator) Seek(key []byte) {
	seekKey := make([]byte, 0, len(it.prefix)+len(key))
	it.iter.Seek(append(append(seekKey, it.prefix...), key...))
}

func (it *BadgerIterator) Close() {
	it.iter.Close()
}
