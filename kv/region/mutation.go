package region

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/pingcap/errors"
)

// LatestTimestamp as the timestamp of a BatchUpdate means the update is stamped when it is applied. As a read
// timestamp it selects the newest version of every cell.
const LatestTimestamp uint64 = math.MaxUint64

// CurrentTimestamp returns the wall clock in milliseconds, the unit of cell timestamps.
func CurrentTimestamp() uint64 {
	return uint64(time.Now().UnixNano() / int64(time.Millisecond))
}

// Cell is a single version of a column value.
type Cell struct {
	Value     []byte
	Timestamp uint64
}

// Op is one column mutation of a BatchUpdate.
type Op struct {
	Column []byte
	// Nil for deletes.
	Value  []byte
	Delete bool
}

// BatchUpdate is a set of mutations to a single row which are applied together.
type BatchUpdate struct {
	Row       []byte
	Timestamp uint64
	Ops       []Op
}

func NewBatchUpdate(row []byte, ts uint64) *BatchUpdate {
	return &BatchUpdate{Row: row, Timestamp: ts}
}

func (b *BatchUpdate) Put(column, value []byte) *BatchUpdate {
	b.Ops = append(b.Ops, Op{Column: column, Value: value})
	return b
}

// Delete hides every version of column at or below the update's timestamp.
func (b *BatchUpdate) Delete(column []byte) *BatchUpdate {
	b.Ops = append(b.Ops, Op{Column: column, Delete: true})
	return b
}

// ToBytes serializes the update as row | timestamp | op count | ops, where byte strings are uvarint length
// prefixed and each op is a kind byte followed by its column and, for puts, its value.
func (b *BatchUpdate) ToBytes() []byte {
	buf := make([]byte, 0, 32+len(b.Row))
	buf = appendBytes(buf, b.Row)
	buf = appendUint64(buf, b.Timestamp)
	buf = appendUvarint(buf, uint64(len(b.Ops)))
	for _, op := range b.Ops {
		if op.Delete {
			buf = append(buf, byte(cellKindDelete))
			buf = appendBytes(buf, op.Column)
			continue
		}
		buf = append(buf, byte(cellKindPut))
		buf = appendBytes(buf, op.Column)
		buf = appendBytes(buf, op.Value)
	}
	return buf
}

func ParseBatchUpdate(data []byte) (*BatchUpdate, error) {
	var err error
	b := new(BatchUpdate)
	if data, b.Row, err = readBytes(data); err != nil {
		return nil, err
	}
	if len(data) < 8 {
		return nil, errors.New("region: batch update truncated at timestamp")
	}
	b.Timestamp = binary.BigEndian.Uint64(data)
	data = data[8:]
	n, l := binary.Uvarint(data)
	if l <= 0 {
		return nil, errors.New("region: batch update truncated at op count")
	}
	data = data[l:]
	for i := uint64(0); i < n; i++ {
		if len(data) == 0 {
			return nil, errors.Errorf("region: batch update truncated at op %d", i)
		}
		var op Op
		kind := cellKind(data[0])
		data = data[1:]
		if data, op.Column, err = readBytes(data); err != nil {
			return nil, err
		}
		switch kind {
		case cellKindPut:
			if data, op.Value, err = readBytes(data); err != nil {
				return nil, err
			}
		case cellKindDelete:
			op.Delete = true
		default:
			return nil, errors.Errorf("region: unknown op kind %d", kind)
		}
		b.Ops = append(b.Ops, op)
	}
	if len(data) != 0 {
		return nil, errors.Errorf("region: %d trailing bytes after batch update", len(data))
	}
	return b, nil
}

func appendUvarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendBytes(buf []byte, b []byte) []byte {
	buf = appendUvarint(buf, uint64(len(b)))
	return append(buf, b...)
}

func readBytes(data []byte) ([]byte, []byte, error) {
	n, l := binary.Uvarint(data)
	if l <= 0 || uint64(len(data)-l) < n {
		return nil, nil, errors.New("region: byte string truncated")
	}
	data = data[l:]
	return data[n:], append([]byte{}, data[:n]...), nil
}

// cellKind is the first byte of every stored cell value.
type cellKind byte

const (
	cellKindPut    cellKind = 1
	cellKindDelete cellKind = 2
)

func encodeCellValue(kind cellKind, value []byte) []byte {
	buf := make([]byte, 0, len(value)+1)
	buf = append(buf, byte(kind))
	return append(buf, value...)
}

func parseCellValue(value []byte) (cellKind, []byte, error) {
	if len(value) == 0 {
		return 0, nil, errors.New("region: empty cell value")
	}
	kind := cellKind(value[0])
	if kind != cellKindPut && kind != cellKindDelete {
		return 0, nil, errors.Errorf("region: unknown cell kind %d", kind)
	}
	return kind, value[1:], nil
}
