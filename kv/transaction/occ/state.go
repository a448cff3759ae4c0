package occ

import (
	"bytes"
	"fmt"

	"github.com/pingcap-incubator/tinyocc/kv/region"
	"go.uber.org/atomic"
)

type Status int32

const (
	Pending Status = iota
	CommitPending
	Committed
	Aborted
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case CommitPending:
		return "commit pending"
	case Committed:
		return "committed"
	case Aborted:
		return "aborted"
	}
	return fmt.Sprintf("status(%d)", int32(s))
}

// TransactionState is everything the coordinator knows about one transaction. Apart from the status, fields are
// only touched with the coordinator lock held.
type TransactionState struct {
	id     uint64
	status atomic.Int32

	// nextSequence of the coordinator when the transaction began.
	startSequence uint64
	// Assigned when the transaction votes yes with a non-empty write set.
	sequence    uint64
	hasSequence bool
	// Position of the start record in the transaction log.
	startLSN uint64
	// Chosen on the first commit attempt so that retries log and apply the same versions.
	commitTs uint64
	// Set once the commit record is durable. From then on the transaction can only commit.
	commitLogged bool

	readSet  map[string]struct{}
	writeSet []*region.BatchUpdate
	// Transactions whose writes must not intersect our reads.
	toCheck map[*TransactionState]struct{}
	// A scan reads the whole region as far as conflicts are concerned.
	hasScan bool
}

func newTransactionState(id, startSequence uint64) *TransactionState {
	return &TransactionState{
		id:            id,
		startSequence: startSequence,
		readSet:       make(map[string]struct{}),
		toCheck:       make(map[*TransactionState]struct{}),
	}
}

func (s *TransactionState) ID() uint64 {
	return s.id
}

func (s *TransactionState) Status() Status {
	return Status(s.status.Load())
}

func (s *TransactionState) setStatus(status Status) {
	s.status.Store(int32(status))
}

func (s *TransactionState) StartSequence() uint64 {
	return s.startSequence
}

// Sequence returns the commit sequence number, if one was assigned.
func (s *TransactionState) Sequence() (uint64, bool) {
	return s.sequence, s.hasSequence
}

func (s *TransactionState) addRead(row []byte) {
	s.readSet[string(row)] = struct{}{}
}

func (s *TransactionState) addWrite(b *region.BatchUpdate) {
	s.writeSet = append(s.writeSet, b)
}

func (s *TransactionState) hasWrites() bool {
	return len(s.writeSet) > 0
}

func (s *TransactionState) addTransactionToCheck(other *TransactionState) {
	s.toCheck[other] = struct{}{}
}

func (s *TransactionState) hasConflict() bool {
	for other := range s.toCheck {
		if s.hasConflictWith(other) {
			return true
		}
	}
	return false
}

func (s *TransactionState) hasConflictWith(other *TransactionState) bool {
	if other.Status() == Aborted {
		return false
	}
	for _, b := range other.writeSet {
		if s.hasScan {
			return true
		}
		if _, ok := s.readSet[string(b.Row)]; ok {
			return true
		}
	}
	return false
}

// localGet returns this transaction's own versions of column, newest first, ignoring updates newer than ts. deleted
// reports whether a delete of the column is newer than every returned version, hiding all stored versions.
func (s *TransactionState) localGet(row, column []byte, ts uint64) (cells []region.Cell, deleted bool) {
	for i := len(s.writeSet) - 1; i >= 0; i-- {
		b := s.writeSet[i]
		if !bytes.Equal(b.Row, row) || b.Timestamp > ts {
			continue
		}
		for j := len(b.Ops) - 1; j >= 0; j-- {
			op := b.Ops[j]
			if !bytes.Equal(op.Column, column) {
				continue
			}
			if op.Delete {
				return cells, true
			}
			cells = append(cells, region.Cell{Value: op.Value, Timestamp: b.Timestamp})
		}
	}
	return cells, false
}

// localGetFull returns the latest local put of every selected column of row, and the columns whose latest local
// write is a delete.
func (s *TransactionState) localGetFull(row []byte, columns [][]byte, ts uint64) (map[string]region.Cell, map[string]bool) {
	cells := make(map[string]region.Cell)
	deleted := make(map[string]bool)
	for _, b := range s.writeSet {
		if !bytes.Equal(b.Row, row) || b.Timestamp > ts {
			continue
		}
		for _, op := range b.Ops {
			if !region.MatchColumn(columns, op.Column) {
				continue
			}
			column := string(op.Column)
			if op.Delete {
				delete(cells, column)
				deleted[column] = true
				continue
			}
			cells[column] = region.Cell{Value: op.Value, Timestamp: b.Timestamp}
			delete(deleted, column)
		}
	}
	return cells, deleted
}

// localColumns lists the columns of row this transaction has put.
func (s *TransactionState) localColumns(row []byte, ts uint64) [][]byte {
	cells, _ := s.localGetFull(row, nil, ts)
	columns := make([][]byte, 0, len(cells))
	for column := range cells {
		columns = append(columns, []byte(column))
	}
	return columns
}

func (s *TransactionState) String() string {
	return fmt.Sprintf("txn %d [status: %s, start sequence: %d, reads: %d, writes: %d, scan: %v]",
		s.id, s.Status(), s.startSequence, len(s.readSet), len(s.writeSet), s.hasScan)
}
