package storage

import (
	"testing"

	"github.com/pingcap-incubator/tinyocc/kv/util/engine_util"
	"github.com/pingcap/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStorage(t *testing.T) {
	s := NewMemStorage()
	require.Nil(t, s.Write([]Modify{
		{Data: Put{Key: []byte("b"), Value: []byte("2"), Cf: engine_util.CfDefault}},
		{Data: Put{Key: []byte("a"), Value: []byte("1"), Cf: engine_util.CfDefault}},
		{Data: Put{Key: []byte("c"), Value: []byte("3"), Cf: engine_util.CfDefault}},
		{Data: Put{Key: []byte("a"), Value: []byte("log"), Cf: engine_util.CfTxnLog}},
	}))
	require.Nil(t, s.Write([]Modify{{Data: Delete{Key: []byte("b"), Cf: engine_util.CfDefault}}}))
	assert.Equal(t, 2, s.Len(engine_util.CfDefault))
	assert.Equal(t, 1, s.Len(engine_util.CfTxnLog))

	r, err := s.Reader()
	require.Nil(t, err)
	defer r.Close()
	val, err := r.GetCF(engine_util.CfTxnLog, []byte("a"))
	require.Nil(t, err)
	assert.Equal(t, []byte("log"), val)

	var keys []string
	iter := r.IterCF(engine_util.CfDefault)
	for iter.Seek([]byte("a")); iter.Valid(); iter.Next() {
		keys = append(keys, string(iter.Item().Key()))
	}
	iter.Close()
	assert.Equal(t, []string{"a", "c"}, keys)

	// Unknown column families read as empty.
	iter = r.IterCF("unknown")
	assert.False(t, iter.Valid())
}

func TestMemStorageWriteErr(t *testing.T) {
	s := NewMemStorage()
	s.WriteErr = errors.New("disk full")
	err := s.Write([]Modify{{Data: Put{Key: []byte("a"), Value: []byte("1"), Cf: engine_util.CfDefault}}})
	assert.NotNil(t, err)
	assert.Equal(t, 0, s.Len(engine_util.CfDefault))
}
