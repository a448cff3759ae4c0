package codec

import (
	"encoding/binary"

	"github.com/pingcap/errors"
)

// Cell key components are encoded in memcomparable groups: every 8 bytes of input are followed by a marker byte,
// and the last group is padded with zeros and marked with 0xFF minus the pad count. Encoded values sort like the
// raw values and none is a proper prefix of another, so components can be concatenated.
//   [] -> [0, 0, 0, 0, 0, 0, 0, 0, 247]
//   [1, 2, 3] -> [1, 2, 3, 0, 0, 0, 0, 0, 250]
//   [1, 2, 3, 4, 5, 6, 7, 8] -> [1, 2, 3, 4, 5, 6, 7, 8, 255, 0, 0, 0, 0, 0, 0, 0, 0, 247]
// See https://github.com/facebook/mysql-5.6/wiki/MyRocks-record-format#memcomparable-format
const (
	groupSize = 8
	marker    = byte(0xFF)
	tsLen     = 8
)

func encodedLen(n int) int {
	return (n/groupSize + 1) * (groupSize + 1)
}

func EncodeBytes(data []byte) []byte {
	return appendBytes(make([]byte, 0, encodedLen(len(data))), data)
}

func appendBytes(dst, data []byte) []byte {
	for len(data) >= groupSize {
		dst = append(dst, data[:groupSize]...)
		dst = append(dst, marker)
		data = data[groupSize:]
	}
	pad := groupSize - len(data)
	dst = append(dst, data...)
	for i := 0; i < pad; i++ {
		dst = append(dst, 0)
	}
	return append(dst, marker-byte(pad))
}

// DecodeBytes decodes one value encoded by EncodeBytes from the front of b and returns the bytes left over.
func DecodeBytes(b []byte) ([]byte, []byte, error) {
	data := make([]byte, 0, len(b))
	for {
		if len(b) < groupSize+1 {
			return nil, nil, errors.New("insufficient bytes to decode value")
		}
		group, m := b[:groupSize], b[groupSize]
		b = b[groupSize+1:]
		pad := int(marker - m)
		if pad > groupSize {
			return nil, nil, errors.Errorf("invalid marker byte %#x", m)
		}
		n := groupSize - pad
		data = append(data, group[:n]...)
		if pad == 0 {
			continue
		}
		for _, v := range group[n:] {
			if v != 0 {
				return nil, nil, errors.Errorf("invalid padding byte, group bytes %q", group)
			}
		}
		return b, data, nil
	}
}

// EncodeCellKey encodes the (row, column, ts) coordinates of a cell. Keys sort by row, then column (both ascending),
// then timestamp (descending), so the newest version of a column is met first when iterating.
func EncodeCellKey(row, column []byte, ts uint64) []byte {
	key := make([]byte, 0, encodedLen(len(row))+encodedLen(len(column))+tsLen)
	key = appendBytes(key, row)
	key = appendBytes(key, column)
	var buf [tsLen]byte
	binary.BigEndian.PutUint64(buf[:], ^ts)
	return append(key, buf[:]...)
}

// EncodeRowPrefix returns the prefix shared by all cell keys of row.
func EncodeRowPrefix(row []byte) []byte {
	return EncodeBytes(row)
}

// EncodeColumnPrefix returns the prefix shared by all versions of a column in row.
func EncodeColumnPrefix(row, column []byte) []byte {
	key := make([]byte, 0, encodedLen(len(row))+encodedLen(len(column)))
	return appendBytes(appendBytes(key, row), column)
}

// DecodeCellKey splits a key made by EncodeCellKey back into its coordinates.
func DecodeCellKey(key []byte) (row, column []byte, ts uint64, err error) {
	left, row, err := DecodeBytes(key)
	if err != nil {
		return nil, nil, 0, err
	}
	left, column, err = DecodeBytes(left)
	if err != nil {
		return nil, nil, 0, err
	}
	if len(left) != tsLen {
		return nil, nil, 0, errors.Errorf("invalid cell key, %d bytes left for timestamp", len(left))
	}
	return row, column, ^binary.BigEndian.Uint64(left), nil
}
