package region

import (
	"bytes"

	"github.com/pingcap-incubator/tinyocc/kv/storage"
	"github.com/pingcap-incubator/tinyocc/kv/util/codec"
	"github.com/pingcap-incubator/tinyocc/kv/util/engine_util"
)

// Scanner iterates the rows of a region in order, starting at a given row, over a snapshot taken when it was created.
// Rows without any visible selected cell are skipped.
type Scanner struct {
	region  *Region
	reader  storage.StorageReader
	iter    engine_util.DBIterator
	columns [][]byte
	ts      uint64
	filter  RowFilter
	done    bool
}

// Scanner creates a scanner over the rows at or after startRow. filter may be nil.
func (r *Region) Scanner(columns [][]byte, startRow []byte, ts uint64, filter RowFilter) (*Scanner, error) {
	if bytes.Compare(startRow, r.StartKey) < 0 {
		startRow = r.StartKey
	}
	reader, err := r.storage.Reader()
	if err != nil {
		return nil, err
	}
	iter := reader.IterCF(engine_util.CfDefault)
	iter.Seek(codec.EncodeRowPrefix(startRow))
	return &Scanner{
		region:  r,
		reader:  reader,
		iter:    iter,
		columns: columns,
		ts:      ts,
		filter:  filter,
	}, nil
}

// Next returns the next row and its cells. It returns a nil row once the scanner is exhausted.
func (s *Scanner) Next() ([]byte, map[string]Cell, error) {
	for !s.done && s.iter.Valid() {
		if s.filter != nil && s.filter.FilterAllRemaining() {
			break
		}
		row, _, _, err := codec.DecodeCellKey(s.iter.Item().Key())
		if err != nil {
			return nil, nil, err
		}
		if engine_util.ExceedEndKey(row, s.region.EndKey) {
			break
		}
		if s.filter != nil && s.filter.FilterRowKey(row) {
			s.iter.Seek(codec.EncodeRowPrefix(append(row, 0)))
			continue
		}
		row, cells, err := readRow(s.iter, s.columns, s.ts)
		if err != nil {
			return nil, nil, err
		}
		if len(cells) == 0 {
			continue
		}
		if s.filter != nil && s.filter.FilterRow(row, cells) {
			continue
		}
		return row, cells, nil
	}
	s.done = true
	return nil, nil, nil
}

func (s *Scanner) Close() {
	s.iter.Close()
	s.reader.Close()
}
