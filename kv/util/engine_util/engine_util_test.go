package engine_util

import (
	"bytes"
	"io/ioutil"
	"os"
	"testing"

	"github.com/Connor1996/badger"
	"github.com/pingcap-incubator/tinyocc/kv/config"
	"github.com/stretchr/testify/require"
)

func TestEngineUtil(t *testing.T) {
	dir, err := ioutil.TempDir("", "engine_util")
	require.Nil(t, err)
	defer os.RemoveAll(dir)
	db := CreateDB(dir, config.NewTestConfig(), false)
	defer db.Close()

	batch := new(WriteBatch)
	batch.SetCF(CfDefault, []byte("a"), []byte("a1"))
	batch.SetCF(CfDefault, []byte("b"), []byte("b1"))
	batch.SetCF(CfDefault, []byte("c"), []byte("c1"))
	batch.SetCF(CfDefault, []byte("d"), []byte("d1"))
	batch.SetCF(CfTxnLog, []byte("a"), []byte("a2"))
	batch.SetCF(CfTxnLog, []byte("b"), []byte("b2"))
	batch.SetCF(CfTxnLog, []byte("d"), []byte("d2"))
	batch.SetCF(CfDefault, []byte("e"), []byte("e1"))
	batch.DeleteCF(CfDefault, []byte("e"))
	require.Equal(t, 9, batch.Len())
	err = batch.WriteToDB(db)
	require.Nil(t, err)

	_, err = GetCF(db, CfDefault, []byte("e"))
	require.Equal(t, err, badger.ErrKeyNotFound)

	var val []byte
	txn := db.NewTransaction(false)
	defaultIter := NewCFIterator(CfDefault, txn)
	defaultIter.Seek([]byte("a"))
	for _, expected := range []string{"a", "b", "c", "d"} {
		require.True(t, defaultIter.Valid())
		item := defaultIter.Item()
		require.True(t, bytes.Equal(item.Key(), []byte(expected)))
		val, _ = item.Value()
		require.True(t, bytes.Equal(val, []byte(expected+"1")))
		defaultIter.Next()
	}
	// The iterator must not run into the txnlog column family.
	require.False(t, defaultIter.Valid())
	defaultIter.Close()

	logIter := NewCFIterator(CfTxnLog, txn)
	logIter.Seek([]byte("b"))
	item := logIter.Item()
	require.True(t, bytes.Equal(item.Key(), []byte("b")))
	val, _ = item.Value()
	require.True(t, bytes.Equal(val, []byte("b2")))
	logIter.Next()
	item = logIter.Item()
	require.True(t, bytes.Equal(item.Key(), []byte("d")))
	logIter.Next()
	require.False(t, logIter.Valid())
	logIter.Close()
	txn.Discard()

	val, err = GetCF(db, CfTxnLog, []byte("a"))
	require.Nil(t, err)
	require.Equal(t, []byte("a2"), val)
}

func TestExceedEndKey(t *testing.T) {
	require.False(t, ExceedEndKey([]byte("z"), nil))
	require.False(t, ExceedEndKey([]byte("a"), []byte("b")))
	require.True(t, ExceedEndKey([]byte("b"), []byte("b")))
	require.True(t, ExceedEndKey([]byte("c"), []byte("b")))
}
