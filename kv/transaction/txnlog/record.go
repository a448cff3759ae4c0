package txnlog

import (
	"encoding/binary"
	"fmt"

	"github.com/pingcap-incubator/tinyocc/kv/region"
	"github.com/pingcap/errors"
)

// ErrCorruptedRecord is the cause of every error returned for a record which cannot be decoded.
var ErrCorruptedRecord = errors.New("txnlog: corrupted record")

type RecordOp byte

const (
	OpStart  RecordOp = 1
	OpUpdate RecordOp = 2
	OpCommit RecordOp = 3
	OpAbort  RecordOp = 4
)

func (op RecordOp) String() string {
	switch op {
	case OpStart:
		return "start"
	case OpUpdate:
		return "update"
	case OpCommit:
		return "commit"
	case OpAbort:
		return "abort"
	}
	return fmt.Sprintf("op(%d)", byte(op))
}

// Record is a single entry of the transaction log.
type Record struct {
	Op    RecordOp
	TxnID uint64
	// Set for OpUpdate.
	Update *region.BatchUpdate
	// Set for OpCommit.
	CommitTs uint64
}

// ToBytes encodes the record as op | txn id | payload. The payload is the encoded update for OpUpdate and the
// commit timestamp for OpCommit.
func (r *Record) ToBytes() []byte {
	buf := append([]byte{byte(r.Op)}, 0, 0, 0, 0, 0, 0, 0, 0)
	binary.BigEndian.PutUint64(buf[1:], r.TxnID)
	switch r.Op {
	case OpUpdate:
		buf = append(buf, r.Update.ToBytes()...)
	case OpCommit:
		buf = append(buf, 0, 0, 0, 0, 0, 0, 0, 0)
		binary.BigEndian.PutUint64(buf[9:], r.CommitTs)
	}
	return buf
}

func ParseRecord(value []byte) (*Record, error) {
	if len(value) < 9 {
		return nil, errors.Annotatef(ErrCorruptedRecord, "length %d", len(value))
	}
	r := &Record{
		Op:    RecordOp(value[0]),
		TxnID: binary.BigEndian.Uint64(value[1:]),
	}
	payload := value[9:]
	switch r.Op {
	case OpStart, OpAbort:
		if len(payload) != 0 {
			return nil, errors.Annotatef(ErrCorruptedRecord, "%s record of txn %d has a payload", r.Op, r.TxnID)
		}
	case OpUpdate:
		update, err := region.ParseBatchUpdate(payload)
		if err != nil {
			return nil, errors.Annotatef(ErrCorruptedRecord, "update of txn %d: %v", r.TxnID, err)
		}
		r.Update = update
	case OpCommit:
		if len(payload) != 8 {
			return nil, errors.Annotatef(ErrCorruptedRecord, "commit of txn %d has a %d byte payload", r.TxnID, len(payload))
		}
		r.CommitTs = binary.BigEndian.Uint64(payload)
	default:
		return nil, errors.Annotatef(ErrCorruptedRecord, "unknown op %d", byte(r.Op))
	}
	return r, nil
}
