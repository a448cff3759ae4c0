package region

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/pingcap-incubator/tinyocc/kv/storage"
	"github.com/pingcap-incubator/tinyocc/kv/transaction/latches"
	"github.com/pingcap-incubator/tinyocc/kv/util/codec"
	"github.com/pingcap-incubator/tinyocc/kv/util/engine_util"
	"github.com/pingcap/errors"
)

// ErrRowNotInRegion is returned when a row outside [StartKey, EndKey) is read or written.
type ErrRowNotInRegion struct {
	Row      []byte
	RegionID uint64
	StartKey []byte
	EndKey   []byte
}

func (e *ErrRowNotInRegion) Error() string {
	return fmt.Sprintf("row %q is not in region %d [%q, %q)", e.Row, e.RegionID, e.StartKey, e.EndKey)
}

// Region stores the committed cells of a contiguous range of rows. Every cell version is a separate key in the
// default column family (see codec.EncodeCellKey) so the newest version of a column is found first.
type Region struct {
	ID       uint64
	StartKey []byte
	// Empty means unbounded.
	EndKey []byte

	storage storage.Storage
	latches *latches.Latches
}

func New(id uint64, startKey, endKey []byte, store storage.Storage, l *latches.Latches) *Region {
	if l == nil {
		l = latches.NewLatches()
	}
	return &Region{
		ID:       id,
		StartKey: startKey,
		EndKey:   endKey,
		storage:  store,
		latches:  l,
	}
}

func (r *Region) ContainsRow(row []byte) bool {
	return bytes.Compare(row, r.StartKey) >= 0 && !engine_util.ExceedEndKey(row, r.EndKey)
}

func (r *Region) checkRow(row []byte) error {
	if !r.ContainsRow(row) {
		return errors.WithStack(&ErrRowNotInRegion{Row: row, RegionID: r.ID, StartKey: r.StartKey, EndKey: r.EndKey})
	}
	return nil
}

// Get returns up to versions versions of column, newest first, with timestamps at or below ts.
func (r *Region) Get(row, column []byte, ts uint64, versions int) ([]Cell, error) {
	if err := r.checkRow(row); err != nil {
		return nil, err
	}
	if versions < 1 {
		versions = 1
	}
	reader, err := r.storage.Reader()
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	iter := reader.IterCF(engine_util.CfDefault)
	defer iter.Close()

	prefix := codec.EncodeColumnPrefix(row, column)
	var cells []Cell
	for iter.Seek(codec.EncodeCellKey(row, column, ts)); iter.Valid() && len(cells) < versions; iter.Next() {
		item := iter.Item()
		if !bytes.HasPrefix(item.Key(), prefix) {
			break
		}
		_, _, cellTs, err := codec.DecodeCellKey(item.Key())
		if err != nil {
			return nil, err
		}
		value, err := item.ValueCopy(nil)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		kind, value, err := parseCellValue(value)
		if err != nil {
			return nil, err
		}
		if kind == cellKindDelete {
			break
		}
		cells = append(cells, Cell{Value: value, Timestamp: cellTs})
	}
	return cells, nil
}

// GetFull returns the newest visible cell at or below ts of every column of row matching columns. An empty columns
// selects all columns; a column ending in ':' selects the whole family.
func (r *Region) GetFull(row []byte, columns [][]byte, ts uint64) (map[string]Cell, error) {
	if err := r.checkRow(row); err != nil {
		return nil, err
	}
	reader, err := r.storage.Reader()
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	iter := reader.IterCF(engine_util.CfDefault)
	defer iter.Close()

	iter.Seek(codec.EncodeRowPrefix(row))
	if !iter.Valid() || !bytes.HasPrefix(iter.Item().Key(), codec.EncodeRowPrefix(row)) {
		return map[string]Cell{}, nil
	}
	_, cells, err := readRow(iter, columns, ts)
	return cells, err
}

// Columns lists the columns of row holding a visible value at ts, in order.
func (r *Region) Columns(row []byte, ts uint64) ([][]byte, error) {
	cells, err := r.GetFull(row, nil, ts)
	if err != nil {
		return nil, err
	}
	columns := make([][]byte, 0, len(cells))
	for column := range cells {
		columns = append(columns, []byte(column))
	}
	sort.Slice(columns, func(i, j int) bool {
		return bytes.Compare(columns[i], columns[j]) < 0
	})
	return columns, nil
}

// Apply writes updates to storage in one batch. Updates whose timestamp is LatestTimestamp are stamped with
// commitTs. The rows are latched while the batch is written.
func (r *Region) Apply(commitTs uint64, updates ...*BatchUpdate) error {
	var rows [][]byte
	seen := make(map[string]struct{}, len(updates))
	var batch []storage.Modify
	for _, b := range updates {
		if err := r.checkRow(b.Row); err != nil {
			return err
		}
		if _, ok := seen[string(b.Row)]; !ok {
			seen[string(b.Row)] = struct{}{}
			rows = append(rows, b.Row)
		}
		ts := b.Timestamp
		if ts == LatestTimestamp {
			ts = commitTs
		}
		for _, op := range b.Ops {
			kind := cellKindPut
			if op.Delete {
				kind = cellKindDelete
			}
			batch = append(batch, storage.Modify{Data: storage.Put{
				Key:   codec.EncodeCellKey(b.Row, op.Column, ts),
				Value: encodeCellValue(kind, op.Value),
				Cf:    engine_util.CfDefault,
			}})
		}
	}
	if len(batch) == 0 {
		return nil
	}

	r.latches.WaitForLatches(rows)
	defer r.latches.ReleaseLatches(rows)
	r.latches.Validate(rows)
	return r.storage.Write(batch)
}

// readRow consumes every key of the row under iter and returns the row with its visible cells. iter is left on the
// first key of the next row.
func readRow(iter engine_util.DBIterator, columns [][]byte, ts uint64) ([]byte, map[string]Cell, error) {
	row, _, _, err := codec.DecodeCellKey(iter.Item().Key())
	if err != nil {
		return nil, nil, err
	}
	prefix := codec.EncodeRowPrefix(row)
	cells := make(map[string]Cell)
	var resolved []byte
	for ; iter.Valid(); iter.Next() {
		item := iter.Item()
		if !bytes.HasPrefix(item.Key(), prefix) {
			break
		}
		_, column, cellTs, err := codec.DecodeCellKey(item.Key())
		if err != nil {
			return nil, nil, err
		}
		if cellTs > ts || (resolved != nil && bytes.Equal(column, resolved)) {
			continue
		}
		// The newest version at or below ts decides the column.
		resolved = column
		if !MatchColumn(columns, column) {
			continue
		}
		value, err := item.ValueCopy(nil)
		if err != nil {
			return nil, nil, errors.WithStack(err)
		}
		kind, value, err := parseCellValue(value)
		if err != nil {
			return nil, nil, err
		}
		if kind == cellKindPut {
			cells[string(column)] = Cell{Value: value, Timestamp: cellTs}
		}
	}
	return row, cells, nil
}

// MatchColumn reports whether column is selected by columns. An empty columns selects everything and a column
// ending in ':' selects its whole family.
func MatchColumn(columns [][]byte, column []byte) bool {
	if len(columns) == 0 {
		return true
	}
	for _, c := range columns {
		if bytes.Equal(c, column) {
			return true
		}
		if len(c) > 0 && c[len(c)-1] == ':' && bytes.HasPrefix(column, c) {
			return true
		}
	}
	return false
}

