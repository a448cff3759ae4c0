package region

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/pingcap/errors"
)

// RowFilter decides which rows a Scanner returns. Filters may keep state across rows of one scan and must not be
// shared between scans.
type RowFilter interface {
	// Tag names the filter type in the encoded form.
	Tag() string
	// Marshal encodes the filter's parameters, without the tag.
	Marshal() ([]byte, error)
	// FilterRowKey reports whether row can be skipped before its cells are read.
	FilterRowKey(row []byte) bool
	// FilterRow makes the final decision on whether row is skipped, given its selected cells.
	FilterRow(row []byte, cells map[string]Cell) bool
	// FilterAllRemaining reports whether every remaining row would be skipped, ending the scan.
	FilterAllRemaining() bool
}

// FilterDecoder rebuilds a filter from the parameters written by its Marshal.
type FilterDecoder func(data []byte) (RowFilter, error)

var (
	filterRegistryMu sync.RWMutex
	filterRegistry   = make(map[string]FilterDecoder)
)

// RegisterFilter makes a filter type decodable under tag. It panics if the tag is taken.
func RegisterFilter(tag string, decoder FilterDecoder) {
	filterRegistryMu.Lock()
	defer filterRegistryMu.Unlock()
	if _, ok := filterRegistry[tag]; ok {
		panic(fmt.Sprintf("filter %s registered twice", tag))
	}
	filterRegistry[tag] = decoder
}

// EncodeFilter encodes f as its tag followed by its parameters.
func EncodeFilter(f RowFilter) ([]byte, error) {
	payload, err := f.Marshal()
	if err != nil {
		return nil, err
	}
	buf := appendBytes(nil, []byte(f.Tag()))
	return append(buf, payload...), nil
}

// DecodeFilter decodes a filter written by EncodeFilter using the decoder registered for its tag.
func DecodeFilter(data []byte) (RowFilter, error) {
	payload, tag, err := readBytes(data)
	if err != nil {
		return nil, err
	}
	filterRegistryMu.RLock()
	decoder, ok := filterRegistry[string(tag)]
	filterRegistryMu.RUnlock()
	if !ok {
		return nil, errors.Errorf("region: unknown filter %q", tag)
	}
	return decoder(payload)
}

func init() {
	RegisterFilter(stopRowFilterTag, func(data []byte) (RowFilter, error) {
		return NewStopRowFilter(append([]byte{}, data...)), nil
	})
	RegisterFilter(prefixFilterTag, func(data []byte) (RowFilter, error) {
		return NewPrefixFilter(append([]byte{}, data...)), nil
	})
	RegisterFilter(columnValueFilterTag, decodeColumnValueFilter)
	RegisterFilter(filterSetTag, decodeFilterSet)
}

const (
	stopRowFilterTag     = "stop-row"
	prefixFilterTag      = "prefix"
	columnValueFilterTag = "column-value"
	filterSetTag         = "set"
)

// StopRowFilter passes rows strictly before StopRow.
type StopRowFilter struct {
	StopRow []byte
	stopped bool
}

func NewStopRowFilter(stopRow []byte) *StopRowFilter {
	return &StopRowFilter{StopRow: stopRow}
}

func (f *StopRowFilter) Tag() string              { return stopRowFilterTag }
func (f *StopRowFilter) Marshal() ([]byte, error) { return f.StopRow, nil }

func (f *StopRowFilter) FilterRowKey(row []byte) bool {
	if bytes.Compare(row, f.StopRow) >= 0 {
		f.stopped = true
	}
	return f.stopped
}

func (f *StopRowFilter) FilterRow(row []byte, cells map[string]Cell) bool {
	return bytes.Compare(row, f.StopRow) >= 0
}

func (f *StopRowFilter) FilterAllRemaining() bool { return f.stopped }

// PrefixFilter passes rows starting with Prefix.
type PrefixFilter struct {
	Prefix []byte
	passed bool
}

func NewPrefixFilter(prefix []byte) *PrefixFilter {
	return &PrefixFilter{Prefix: prefix}
}

func (f *PrefixFilter) Tag() string              { return prefixFilterTag }
func (f *PrefixFilter) Marshal() ([]byte, error) { return f.Prefix, nil }

func (f *PrefixFilter) FilterRowKey(row []byte) bool {
	if bytes.HasPrefix(row, f.Prefix) {
		return false
	}
	if bytes.Compare(row, f.Prefix) > 0 {
		f.passed = true
	}
	return true
}

func (f *PrefixFilter) FilterRow(row []byte, cells map[string]Cell) bool {
	return !bytes.HasPrefix(row, f.Prefix)
}

func (f *PrefixFilter) FilterAllRemaining() bool { return f.passed }

type CompareOp byte

const (
	Equal CompareOp = iota
	NotEqual
	Less
	LessOrEqual
	Greater
	GreaterOrEqual
)

func (op CompareOp) match(cmp int) bool {
	switch op {
	case Equal:
		return cmp == 0
	case NotEqual:
		return cmp != 0
	case Less:
		return cmp < 0
	case LessOrEqual:
		return cmp <= 0
	case Greater:
		return cmp > 0
	case GreaterOrEqual:
		return cmp >= 0
	}
	return false
}

// ColumnValueFilter passes rows whose Column value compares to Value as Op says. Rows missing the column are
// skipped.
type ColumnValueFilter struct {
	Column []byte
	Op     CompareOp
	Value  []byte
}

func NewColumnValueFilter(column []byte, op CompareOp, value []byte) *ColumnValueFilter {
	return &ColumnValueFilter{Column: column, Op: op, Value: value}
}

func (f *ColumnValueFilter) Tag() string { return columnValueFilterTag }

func (f *ColumnValueFilter) Marshal() ([]byte, error) {
	if f.Op > GreaterOrEqual {
		return nil, errors.Errorf("region: invalid compare op %d", f.Op)
	}
	buf := []byte{byte(f.Op)}
	buf = appendBytes(buf, f.Column)
	return appendBytes(buf, f.Value), nil
}

func decodeColumnValueFilter(data []byte) (RowFilter, error) {
	if len(data) == 0 {
		return nil, errors.New("region: column value filter truncated")
	}
	f := &ColumnValueFilter{Op: CompareOp(data[0])}
	if f.Op > GreaterOrEqual {
		return nil, errors.Errorf("region: invalid compare op %d", f.Op)
	}
	var err error
	data = data[1:]
	if data, f.Column, err = readBytes(data); err != nil {
		return nil, err
	}
	if _, f.Value, err = readBytes(data); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *ColumnValueFilter) FilterRowKey(row []byte) bool { return false }

func (f *ColumnValueFilter) FilterRow(row []byte, cells map[string]Cell) bool {
	cell, ok := cells[string(f.Column)]
	if !ok {
		return true
	}
	return !f.Op.match(bytes.Compare(cell.Value, f.Value))
}

func (f *ColumnValueFilter) FilterAllRemaining() bool { return false }

type SetOperator byte

const (
	// MustPassAll passes a row only if every filter passes it.
	MustPassAll SetOperator = iota
	// MustPassOne passes a row if any filter passes it.
	MustPassOne
)

// FilterSet combines filters.
type FilterSet struct {
	Operator SetOperator
	Filters  []RowFilter
}

func NewFilterSet(op SetOperator, filters ...RowFilter) *FilterSet {
	return &FilterSet{Operator: op, Filters: filters}
}

func (f *FilterSet) Tag() string { return filterSetTag }

func (f *FilterSet) Marshal() ([]byte, error) {
	buf := []byte{byte(f.Operator)}
	buf = appendUvarint(buf, uint64(len(f.Filters)))
	for _, sub := range f.Filters {
		data, err := EncodeFilter(sub)
		if err != nil {
			return nil, err
		}
		buf = appendBytes(buf, data)
	}
	return buf, nil
}

func decodeFilterSet(data []byte) (RowFilter, error) {
	if len(data) == 0 {
		return nil, errors.New("region: filter set truncated")
	}
	f := &FilterSet{Operator: SetOperator(data[0])}
	if f.Operator != MustPassAll && f.Operator != MustPassOne {
		return nil, errors.Errorf("region: invalid set operator %d", f.Operator)
	}
	n, l := binary.Uvarint(data[1:])
	if l <= 0 {
		return nil, errors.New("region: filter set truncated")
	}
	data = data[1+l:]
	for i := uint64(0); i < n; i++ {
		var sub []byte
		var err error
		if data, sub, err = readBytes(data); err != nil {
			return nil, err
		}
		filter, err := DecodeFilter(sub)
		if err != nil {
			return nil, err
		}
		f.Filters = append(f.Filters, filter)
	}
	return f, nil
}

// combine folds per-filter results. Every filter is consulted so stateful filters see every row.
func (f *FilterSet) combine(skip func(RowFilter) bool) bool {
	if len(f.Filters) == 0 {
		return false
	}
	allSkip, anySkip := true, false
	for _, sub := range f.Filters {
		if skip(sub) {
			anySkip = true
		} else {
			allSkip = false
		}
	}
	if f.Operator == MustPassAll {
		return anySkip
	}
	return allSkip
}

func (f *FilterSet) FilterRowKey(row []byte) bool {
	return f.combine(func(sub RowFilter) bool { return sub.FilterRowKey(row) })
}

func (f *FilterSet) FilterRow(row []byte, cells map[string]Cell) bool {
	return f.combine(func(sub RowFilter) bool { return sub.FilterRow(row, cells) })
}

func (f *FilterSet) FilterAllRemaining() bool {
	return f.combine(func(sub RowFilter) bool { return sub.FilterAllRemaining() })
}
