package txnlog

import (
	"bytes"
	"encoding/binary"
	"math"
	"sort"
	"sync"

	"github.com/pingcap-incubator/tinyocc/kv/region"
	"github.com/pingcap-incubator/tinyocc/kv/storage"
	"github.com/pingcap-incubator/tinyocc/kv/util/engine_util"
	"github.com/pingcap-incubator/tinyocc/log"
	"github.com/pingcap/errors"
)

const (
	recordPrefix byte = 'r'
	metaPrefix   byte = 'm'

	recordKeyLen   = 17
	purgeBatchSize = 1024
)

var segmentKey = []byte{metaPrefix, 's', 'e', 'g', 'm', 'e', 'n', 't'}

// recordKey is recordPrefix | segment | lsn, both big endian so records sort in append order.
func recordKey(segment, lsn uint64) []byte {
	key := make([]byte, recordKeyLen)
	key[0] = recordPrefix
	binary.BigEndian.PutUint64(key[1:], segment)
	binary.BigEndian.PutUint64(key[9:], lsn)
	return key
}

func segmentPrefix(segment uint64) []byte {
	return recordKey(segment, 0)[:9]
}

// Log is the write-ahead log of transaction records. Every process life appends to a fresh segment; segments of
// earlier lives are only read back to reconstruct the region and then purged.
type Log struct {
	store storage.Storage

	mu      sync.Mutex
	segment uint64
	nextLSN uint64

	truncateMu sync.Mutex
	// Records of the current segment below this position are gone.
	truncatedLSN uint64
}

// Open starts a new segment in store.
func Open(store storage.Storage) (*Log, error) {
	reader, err := store.Reader()
	if err != nil {
		return nil, err
	}
	val, err := reader.GetCF(engine_util.CfTxnLog, segmentKey)
	reader.Close()
	if err != nil {
		return nil, err
	}
	var segment uint64
	if val != nil {
		if len(val) != 8 {
			return nil, errors.Annotatef(ErrCorruptedRecord, "segment meta has %d bytes", len(val))
		}
		segment = binary.BigEndian.Uint64(val)
	}
	segment++
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, segment)
	if err := store.Write([]storage.Modify{{Data: storage.Put{Key: segmentKey, Value: buf, Cf: engine_util.CfTxnLog}}}); err != nil {
		return nil, err
	}
	log.Infof("txn log opened segment %d", segment)
	return &Log{store: store, segment: segment}, nil
}

// Segment returns the segment this log appends to.
func (l *Log) Segment() uint64 {
	return l.segment
}

func (l *Log) append(r *Record) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lsn := l.nextLSN
	err := l.store.Write([]storage.Modify{{Data: storage.Put{
		Key:   recordKey(l.segment, lsn),
		Value: r.ToBytes(),
		Cf:    engine_util.CfTxnLog,
	}}})
	if err != nil {
		return 0, errors.Annotatef(err, "append %s record of txn %d", r.Op, r.TxnID)
	}
	l.nextLSN++
	return lsn, nil
}

// NextLSN returns the position the next record will be appended at.
func (l *Log) NextLSN() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nextLSN
}

// Start records the start of a transaction and returns the position of the record.
func (l *Log) Start(txnID uint64) (uint64, error) {
	return l.append(&Record{Op: OpStart, TxnID: txnID})
}

func (l *Log) Update(txnID uint64, update *region.BatchUpdate) error {
	_, err := l.append(&Record{Op: OpUpdate, TxnID: txnID, Update: update})
	return err
}

// Commit records that the transaction committed, with the timestamp its updates are stamped with.
func (l *Log) Commit(txnID uint64, commitTs uint64) error {
	_, err := l.append(&Record{Op: OpCommit, TxnID: txnID, CommitTs: commitTs})
	return err
}

func (l *Log) Abort(txnID uint64) error {
	_, err := l.append(&Record{Op: OpAbort, TxnID: txnID})
	return err
}

// Segments lists the segments written before the current one which still hold records, in order.
func (l *Log) Segments() ([]uint64, error) {
	reader, err := l.store.Reader()
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	iter := reader.IterCF(engine_util.CfTxnLog)
	defer iter.Close()

	var segments []uint64
	for iter.Seek([]byte{recordPrefix}); iter.Valid(); {
		key := iter.Item().Key()
		if len(key) != recordKeyLen || key[0] != recordPrefix {
			break
		}
		segment := binary.BigEndian.Uint64(key[1:])
		if segment >= l.segment {
			break
		}
		segments = append(segments, segment)
		iter.Seek(segmentPrefix(segment + 1))
	}
	return segments, nil
}

// CommittedTxn is a transaction whose commit record was found in the log.
type CommittedTxn struct {
	ID       uint64
	CommitTs uint64
	Updates  []*region.BatchUpdate
	// Position of the last commit record of the transaction.
	CommitLSN uint64
}

// ReplayCommits reads segment and returns the transactions which committed in it, in the order their updates
// reached the region. Transactions which aborted or never finished are dropped. A commit record is final: an abort
// record following it is ignored.
func (l *Log) ReplayCommits(segment uint64) ([]*CommittedTxn, error) {
	reader, err := l.store.Reader()
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	iter := reader.IterCF(engine_util.CfTxnLog)
	defer iter.Close()

	prefix := segmentPrefix(segment)
	pending := make(map[uint64]*CommittedTxn)
	// The latest committed incarnation of each id, to match retried commit records.
	lastCommitted := make(map[uint64]*CommittedTxn)
	var committed []*CommittedTxn
	records := 0
	for iter.Seek(prefix); iter.Valid(); iter.Next() {
		item := iter.Item()
		key := item.Key()
		if !bytes.HasPrefix(key, prefix) || len(key) != recordKeyLen {
			break
		}
		lsn := binary.BigEndian.Uint64(key[len(prefix):])
		value, err := item.Value()
		if err != nil {
			return nil, errors.WithStack(err)
		}
		r, err := ParseRecord(value)
		if err != nil {
			return nil, err
		}
		records++
		switch r.Op {
		case OpStart:
			pending[r.TxnID] = &CommittedTxn{ID: r.TxnID}
		case OpUpdate:
			txn, ok := pending[r.TxnID]
			if !ok {
				log.Warnf("txn log segment %d: update of txn %d without start", segment, r.TxnID)
				txn = &CommittedTxn{ID: r.TxnID}
				pending[r.TxnID] = txn
			}
			txn.Updates = append(txn.Updates, r.Update)
		case OpCommit:
			txn, ok := pending[r.TxnID]
			if ok {
				committed = append(committed, txn)
			} else if txn, ok = lastCommitted[r.TxnID]; !ok {
				log.Warnf("txn log segment %d: commit of txn %d without start", segment, r.TxnID)
				txn = &CommittedTxn{ID: r.TxnID}
				committed = append(committed, txn)
			}
			txn.CommitTs = r.CommitTs
			txn.CommitLSN = lsn
			lastCommitted[r.TxnID] = txn
			delete(pending, r.TxnID)
		case OpAbort:
			if _, ok := pending[r.TxnID]; !ok {
				if _, ok := lastCommitted[r.TxnID]; ok {
					log.Warnf("txn log segment %d: abort of committed txn %d ignored", segment, r.TxnID)
				}
			}
			delete(pending, r.TxnID)
		}
	}
	// A retried commit is applied when its last commit record is written.
	sort.SliceStable(committed, func(i, j int) bool {
		return committed[i].CommitLSN < committed[j].CommitLSN
	})
	log.Infof("replayed %d records of txn log segment %d, %d committed, %d unfinished",
		records, segment, len(committed), len(pending))
	return committed, nil
}

// Purge deletes every record of segment.
func (l *Log) Purge(segment uint64) error {
	_, err := l.deleteRange(segment, 0, math.MaxUint64)
	return err
}

// Truncate deletes the records of the current segment below lsn. The caller must know that every transaction
// with a record there has finished and, if it committed, reached the region. It returns the number of records
// deleted.
func (l *Log) Truncate(lsn uint64) (int, error) {
	l.truncateMu.Lock()
	defer l.truncateMu.Unlock()
	if lsn <= l.truncatedLSN {
		return 0, nil
	}
	n, err := l.deleteRange(l.segment, l.truncatedLSN, lsn)
	if err != nil {
		return n, err
	}
	l.truncatedLSN = lsn
	return n, nil
}

// deleteRange deletes the records of segment in [from, to).
func (l *Log) deleteRange(segment, from, to uint64) (int, error) {
	reader, err := l.store.Reader()
	if err != nil {
		return 0, err
	}
	defer reader.Close()
	iter := reader.IterCF(engine_util.CfTxnLog)
	defer iter.Close()

	prefix := segmentPrefix(segment)
	end := recordKey(segment, to)
	deleted := 0
	var batch []storage.Modify
	for iter.Seek(recordKey(segment, from)); iter.Valid(); iter.Next() {
		key := iter.Item().KeyCopy(nil)
		if !bytes.HasPrefix(key, prefix) || bytes.Compare(key, end) >= 0 {
			break
		}
		batch = append(batch, storage.Modify{Data: storage.Delete{Key: key, Cf: engine_util.CfTxnLog}})
		if len(batch) >= purgeBatchSize {
			if err := l.store.Write(batch); err != nil {
				return deleted, err
			}
			deleted += len(batch)
			batch = batch[:0]
		}
	}
	if len(batch) == 0 {
		return deleted, nil
	}
	if err := l.store.Write(batch); err != nil {
		return deleted, err
	}
	return deleted + len(batch), nil
}
