package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeBytes(t *testing.T) {
	cases := [][]byte{{}, {1, 2, 3}, {1, 2, 3, 0}, {1, 2, 3, 4, 5, 6, 7, 8}, []byte("a longer row key spanning groups")}
	for _, c := range cases {
		left, decoded, err := DecodeBytes(EncodeBytes(c))
		require.Nil(t, err)
		assert.Empty(t, left)
		assert.Equal(t, c, decoded)
	}
	assert.Equal(t, []byte{1, 2, 3, 0, 0, 0, 0, 0, 250}, EncodeBytes([]byte{1, 2, 3}))
}

func TestCellKeyOrder(t *testing.T) {
	// Row first, then column, then newest timestamp first.
	keys := [][]byte{
		EncodeCellKey([]byte("a"), []byte("cf:x"), 20),
		EncodeCellKey([]byte("a"), []byte("cf:x"), 10),
		EncodeCellKey([]byte("a"), []byte("cf:y"), 30),
		EncodeCellKey([]byte("a\x00"), []byte("cf:a"), 1),
		EncodeCellKey([]byte("ab"), []byte("cf:a"), 1),
	}
	for i := 1; i < len(keys); i++ {
		assert.True(t, bytes.Compare(keys[i-1], keys[i]) < 0, "key %d should sort before key %d", i-1, i)
	}
}

func TestCellKeyPrefixes(t *testing.T) {
	key := EncodeCellKey([]byte("row"), []byte("cf:q"), 42)
	assert.True(t, bytes.HasPrefix(key, EncodeRowPrefix([]byte("row"))))
	assert.True(t, bytes.HasPrefix(key, EncodeColumnPrefix([]byte("row"), []byte("cf:q"))))
	assert.False(t, bytes.HasPrefix(key, EncodeRowPrefix([]byte("ro"))))

	row, column, ts, err := DecodeCellKey(key)
	require.Nil(t, err)
	assert.Equal(t, []byte("row"), row)
	assert.Equal(t, []byte("cf:q"), column)
	assert.Equal(t, uint64(42), ts)

	_, _, _, err = DecodeCellKey(EncodeColumnPrefix([]byte("row"), []byte("cf:q")))
	assert.NotNil(t, err)
}
