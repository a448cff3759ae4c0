package region

import (
	"testing"

	"github.com/pingcap-incubator/tinyocc/kv/storage"
	"github.com/pingcap-incubator/tinyocc/kv/transaction/latches"
	"github.com/pingcap/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegion(startKey, endKey string) *Region {
	var end []byte
	if endKey != "" {
		end = []byte(endKey)
	}
	return New(1, []byte(startKey), end, storage.NewMemStorage(), nil)
}

func put(t *testing.T, r *Region, row, column, value string, ts uint64) {
	b := NewBatchUpdate([]byte(row), ts).Put([]byte(column), []byte(value))
	require.Nil(t, r.Apply(ts, b))
}

func values(cells []Cell) []string {
	var vals []string
	for _, c := range cells {
		vals = append(vals, string(c.Value))
	}
	return vals
}

func TestGetVersions(t *testing.T) {
	r := newTestRegion("", "")
	put(t, r, "r", "cf:a", "v10", 10)
	put(t, r, "r", "cf:a", "v20", 20)
	put(t, r, "r", "cf:a", "v30", 30)
	put(t, r, "r", "cf:b", "other", 40)

	cells, err := r.Get([]byte("r"), []byte("cf:a"), LatestTimestamp, 2)
	require.Nil(t, err)
	assert.Equal(t, []string{"v30", "v20"}, values(cells))
	assert.Equal(t, uint64(30), cells[0].Timestamp)

	cells, err = r.Get([]byte("r"), []byte("cf:a"), 25, 5)
	require.Nil(t, err)
	assert.Equal(t, []string{"v20", "v10"}, values(cells))

	// Zero versions reads the newest one.
	cells, err = r.Get([]byte("r"), []byte("cf:a"), LatestTimestamp, 0)
	require.Nil(t, err)
	assert.Equal(t, []string{"v30"}, values(cells))

	cells, err = r.Get([]byte("r"), []byte("cf:c"), LatestTimestamp, 1)
	require.Nil(t, err)
	assert.Empty(t, cells)
}

func TestDeleteHidesOlderVersions(t *testing.T) {
	r := newTestRegion("", "")
	put(t, r, "r", "cf:a", "v10", 10)
	put(t, r, "r", "cf:a", "v30", 30)
	require.Nil(t, r.Apply(0, NewBatchUpdate([]byte("r"), 20).Delete([]byte("cf:a"))))

	cells, err := r.Get([]byte("r"), []byte("cf:a"), LatestTimestamp, 3)
	require.Nil(t, err)
	assert.Equal(t, []string{"v30"}, values(cells))

	cells, err = r.Get([]byte("r"), []byte("cf:a"), 25, 3)
	require.Nil(t, err)
	assert.Empty(t, cells)

	cells, err = r.Get([]byte("r"), []byte("cf:a"), 15, 3)
	require.Nil(t, err)
	assert.Equal(t, []string{"v10"}, values(cells))

	full, err := r.GetFull([]byte("r"), nil, 25)
	require.Nil(t, err)
	assert.Empty(t, full)
}

func TestGetFullAndColumns(t *testing.T) {
	r := newTestRegion("", "")
	put(t, r, "r", "info:a", "1", 10)
	put(t, r, "r", "info:b", "2", 10)
	put(t, r, "r", "data:x", "3", 10)
	put(t, r, "r", "info:a", "4", 20)
	put(t, r, "s", "info:a", "5", 10)

	full, err := r.GetFull([]byte("r"), nil, LatestTimestamp)
	require.Nil(t, err)
	assert.Equal(t, map[string]Cell{
		"info:a": {Value: []byte("4"), Timestamp: 20},
		"info:b": {Value: []byte("2"), Timestamp: 10},
		"data:x": {Value: []byte("3"), Timestamp: 10},
	}, full)

	full, err = r.GetFull([]byte("r"), [][]byte{[]byte("info:")}, 15)
	require.Nil(t, err)
	assert.Equal(t, map[string]Cell{
		"info:a": {Value: []byte("1"), Timestamp: 10},
		"info:b": {Value: []byte("2"), Timestamp: 10},
	}, full)

	full, err = r.GetFull([]byte("q"), nil, LatestTimestamp)
	require.Nil(t, err)
	assert.Empty(t, full)

	columns, err := r.Columns([]byte("r"), LatestTimestamp)
	require.Nil(t, err)
	assert.Equal(t, [][]byte{[]byte("data:x"), []byte("info:a"), []byte("info:b")}, columns)
}

func TestApplyStampsLatest(t *testing.T) {
	var latched [][]byte
	l := latches.NewLatches()
	l.Validation = func(rows [][]byte) { latched = append(latched, rows...) }
	r := New(1, nil, nil, storage.NewMemStorage(), l)

	a := NewBatchUpdate([]byte("a"), LatestTimestamp).Put([]byte("cf:x"), []byte("1"))
	b := NewBatchUpdate([]byte("b"), 7).Put([]byte("cf:x"), []byte("2"))
	a2 := NewBatchUpdate([]byte("a"), LatestTimestamp).Put([]byte("cf:y"), []byte("3"))
	require.Nil(t, r.Apply(42, a, b, a2))
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b")}, latched)

	cells, err := r.Get([]byte("a"), []byte("cf:x"), LatestTimestamp, 1)
	require.Nil(t, err)
	require.Len(t, cells, 1)
	assert.Equal(t, uint64(42), cells[0].Timestamp)
	cells, err = r.Get([]byte("b"), []byte("cf:x"), LatestTimestamp, 1)
	require.Nil(t, err)
	require.Len(t, cells, 1)
	assert.Equal(t, uint64(7), cells[0].Timestamp)

	// The latches are released once the batch is written.
	assert.Nil(t, l.AcquireLatches([][]byte{[]byte("a"), []byte("b")}))
}

func TestRowNotInRegion(t *testing.T) {
	r := newTestRegion("b", "m")
	_, err := r.Get([]byte("a"), []byte("cf:x"), LatestTimestamp, 1)
	require.NotNil(t, err)
	_, ok := errors.Cause(err).(*ErrRowNotInRegion)
	assert.True(t, ok)

	err = r.Apply(1, NewBatchUpdate([]byte("m"), 1).Put([]byte("cf:x"), nil))
	_, ok = errors.Cause(err).(*ErrRowNotInRegion)
	assert.True(t, ok)

	assert.True(t, r.ContainsRow([]byte("b")))
	assert.True(t, r.ContainsRow([]byte("lzzz")))
	assert.False(t, r.ContainsRow([]byte("m")))
}

func TestParseBatchUpdate(t *testing.T) {
	b := NewBatchUpdate([]byte("row"), 99).Put([]byte("cf:a"), []byte("v")).Delete([]byte("cf:b")).Put([]byte("cf:c"), nil)
	data := b.ToBytes()
	parsed, err := ParseBatchUpdate(data)
	require.Nil(t, err)
	assert.Equal(t, []byte("row"), parsed.Row)
	assert.Equal(t, uint64(99), parsed.Timestamp)
	require.Len(t, parsed.Ops, 3)
	assert.True(t, parsed.Ops[1].Delete)
	assert.Equal(t, []byte("v"), parsed.Ops[0].Value)

	for i := 0; i < len(data); i++ {
		_, err := ParseBatchUpdate(data[:i])
		assert.NotNil(t, err, "truncated at %d", i)
	}
	_, err = ParseBatchUpdate(append(data, 0))
	assert.NotNil(t, err)
}
