package standalone_storage

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/pingcap-incubator/tinyocc/kv/config"
	"github.com/pingcap-incubator/tinyocc/kv/storage"
	"github.com/pingcap-incubator/tinyocc/kv/util/engine_util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) (*StandAloneStorage, func()) {
	dir, err := ioutil.TempDir("", "standalone_storage")
	require.Nil(t, err)
	db := engine_util.CreateDB(dir, config.NewTestConfig(), false)
	s := NewStandAloneStorage(db)
	require.Nil(t, s.Start())
	return s, func() {
		s.Stop()
		db.Close()
		os.RemoveAll(dir)
	}
}

func TestReader(t *testing.T) {
	s, cleanUp := newTestStorage(t)
	defer cleanUp()

	cf := engine_util.CfDefault
	batch := []storage.Modify{
		{Data: storage.Put{Key: []byte("a"), Value: []byte("x"), Cf: cf}},
	}
	require.Nil(t, s.Write(batch))

	r, err := s.Reader()
	require.Nil(t, err)
	defer r.Close()
	ret, err := r.GetCF(cf, []byte("a"))
	require.Nil(t, err)
	assert.Equal(t, []byte("x"), ret)

	// Missing keys are not an error.
	ret, err = r.GetCF(cf, []byte("b"))
	assert.Nil(t, err)
	assert.Nil(t, ret)

	// Column families are isolated from each other.
	ret, err = r.GetCF(engine_util.CfTxnLog, []byte("a"))
	assert.Nil(t, err)
	assert.Nil(t, ret)
}

func TestReaderSnapshot(t *testing.T) {
	s, cleanUp := newTestStorage(t)
	defer cleanUp()

	cf := engine_util.CfDefault
	require.Nil(t, s.Write([]storage.Modify{{Data: storage.Put{Key: []byte("a"), Value: []byte("1"), Cf: cf}}}))
	r, err := s.Reader()
	require.Nil(t, err)
	defer r.Close()

	require.Nil(t, s.Write([]storage.Modify{
		{Data: storage.Put{Key: []byte("a"), Value: []byte("2"), Cf: cf}},
		{Data: storage.Put{Key: []byte("b"), Value: []byte("2"), Cf: cf}},
	}))
	ret, err := r.GetCF(cf, []byte("a"))
	require.Nil(t, err)
	assert.Equal(t, []byte("1"), ret)
	ret, err = r.GetCF(cf, []byte("b"))
	require.Nil(t, err)
	assert.Nil(t, ret)
}

func TestIterCF(t *testing.T) {
	s, cleanUp := newTestStorage(t)
	defer cleanUp()

	cf := engine_util.CfDefault
	batch := []storage.Modify{
		{Data: storage.Put{Key: []byte("a"), Value: []byte("x"), Cf: cf}},
		{Data: storage.Put{Key: []byte("b"), Value: []byte("y"), Cf: cf}},
		{Data: storage.Put{Key: []byte("c"), Value: []byte("z"), Cf: engine_util.CfTxnLog}},
	}
	require.Nil(t, s.Write(batch))
	require.Nil(t, s.Write([]storage.Modify{{Data: storage.Delete{Key: []byte("a"), Cf: cf}}}))
	require.Nil(t, s.Write([]storage.Modify{{Data: storage.Put{Key: []byte("a"), Value: []byte("w"), Cf: cf}}}))

	r, err := s.Reader()
	require.Nil(t, err)
	defer r.Close()
	iter := r.IterCF(cf)
	iter.Seek([]byte("a"))
	require.True(t, iter.Valid())
	item := iter.Item()
	assert.Equal(t, []byte("a"), item.Key())
	val, _ := item.Value()
	assert.Equal(t, []byte("w"), val)

	iter.Next()
	require.True(t, iter.Valid())
	item = iter.Item()
	assert.Equal(t, []byte("b"), item.Key())
	val, _ = item.Value()
	assert.Equal(t, []byte("y"), val)

	iter.Next()
	assert.False(t, iter.Valid())
	iter.Close()
}
