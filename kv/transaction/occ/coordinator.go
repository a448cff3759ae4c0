package occ

import (
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/pingcap-incubator/tinyocc/kv/config"
	"github.com/pingcap-incubator/tinyocc/kv/region"
	"github.com/pingcap-incubator/tinyocc/kv/transaction/txnlog"
	"github.com/pingcap-incubator/tinyocc/kv/util/lease"
	"github.com/pingcap-incubator/tinyocc/kv/util/worker"
	"github.com/pingcap-incubator/tinyocc/log"
	"github.com/pingcap/errors"
)

// historyItem orders transactions in the commit history by sequence number.
type historyItem struct {
	sequence uint64
	state    *TransactionState
}

func (i *historyItem) Less(than btree.Item) bool {
	return i.sequence < than.(*historyItem).sequence
}

// gcTask asks the gc worker to drop commit history no active transaction needs.
type gcTask struct{}

// truncateTask asks the gc worker to drop transaction log records no active transaction needs.
type truncateTask struct{}

type gcHandler struct {
	c *Coordinator
}

func (h *gcHandler) Handle(t worker.Task) {
	switch t.(type) {
	case gcTask:
		h.c.mu.Lock()
		h.c.gcScheduled = false
		h.c.mu.Unlock()
		h.c.RemoveUnneededHistory()
	case truncateTask:
		if _, err := h.c.TruncateTxnLog(); err != nil {
			log.Warnf("truncate txn log of region %d failed, %v", h.c.region.ID, err)
		}
	default:
		log.Errorf("unexpected task %T", t)
	}
}

// Coordinator runs optimistic transactions against one region. Transactions buffer their writes and are validated
// against every transaction that voted to commit since they began.
type Coordinator struct {
	region      *region.Region
	txnLog      *txnlog.Log
	leases      *lease.Leases
	gcWorker    *worker.Worker
	wg          sync.WaitGroup
	gcThreshold int

	truncateInterval time.Duration
	closeCh          chan struct{}

	mu            sync.Mutex
	activeByID    map[uint64]*TransactionState
	history       *btree.BTree
	commitPending map[*TransactionState]struct{}
	nextSequence  uint64
	gcScheduled   bool
	closed        bool
}

func NewCoordinator(r *region.Region, txnLog *txnlog.Log, conf *config.Config) *Coordinator {
	c := &Coordinator{
		region:           r,
		txnLog:           txnLog,
		leases:           lease.NewLeases(conf.TxnLeaseTime.Duration, conf.TxnLeaseCheckInterval.Duration),
		gcThreshold:      conf.HistoryGCThreshold,
		truncateInterval: conf.TxnLogTruncateInterval.Duration,
		closeCh:          make(chan struct{}),
		activeByID:       make(map[uint64]*TransactionState),
		history:          btree.New(32),
		commitPending:    make(map[*TransactionState]struct{}),
	}
	c.gcWorker = worker.NewWorker("occ-gc", &c.wg)
	return c
}

// Start runs the lease sweeper, the gc worker and the ticker which schedules txn log truncation.
func (c *Coordinator) Start() {
	c.leases.Start()
	c.gcWorker.Start(&gcHandler{c: c})
	c.wg.Add(1)
	go c.runTruncateTicker()
}

func (c *Coordinator) runTruncateTicker() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.truncateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.closeCh:
			return
		case <-ticker.C:
			c.gcWorker.TrySend(truncateTask{})
		}
	}
}

// Close stops background work. Active transactions are left as they are.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	close(c.closeCh)
	c.gcWorker.Stop()
	c.wg.Wait()
	c.leases.Close()
}

func leaseName(id uint64) string {
	return strconv.FormatUint(id, 10)
}

// Begin starts transaction id. If id is already active the stale transaction is aborted and
// ErrDuplicateTransaction is returned.
func (c *Coordinator) Begin(id uint64) (*TransactionState, error) {
	c.mu.Lock()
	if stale, ok := c.activeByID[id]; ok {
		log.Warnf("transaction %d began twice, aborting %s", id, stale)
		if err := c.abortLocked(stale, true); err != nil {
			log.Warnf("stale transaction %d stays active, %v", id, err)
		}
		c.mu.Unlock()
		return nil, errors.WithStack(&ErrDuplicateTransaction{ID: id})
	}

	state := newTransactionState(id, c.nextSequence)
	// Snapshot the commit pending set before anything can leave it.
	for other := range c.commitPending {
		state.addTransactionToCheck(other)
	}
	c.activeByID[id] = state
	if err := c.leases.Create(leaseName(id), func() { c.expire(state) }); err != nil {
		log.Warnf("create lease of transaction %d failed, %v", id, err)
	}
	scheduleGC := c.history.Len() > c.gcThreshold && !c.gcScheduled && !c.closed
	if scheduleGC {
		c.gcScheduled = true
	}
	c.updateGaugesLocked()
	c.mu.Unlock()

	lsn, err := c.txnLog.Start(id)
	if err != nil {
		c.mu.Lock()
		state.setStatus(Aborted)
		c.retireLocked(state)
		c.mu.Unlock()
		return nil, err
	}

	c.mu.Lock()
	state.startLSN = lsn
	c.mu.Unlock()

	if scheduleGC && !c.gcWorker.TrySend(gcTask{}) {
		c.mu.Lock()
		c.gcScheduled = false
		c.mu.Unlock()
	}
	txnCounter.WithLabelValues("begin").Inc()
	log.Debugf("began %s", state)
	return state, nil
}

// getTransaction looks up an active transaction and renews its lease. Transactions which voted yes hold no lease.
func (c *Coordinator) getTransaction(id uint64) (*TransactionState, error) {
	c.mu.Lock()
	state, ok := c.activeByID[id]
	c.mu.Unlock()
	if !ok {
		return nil, errors.WithStack(&ErrUnknownTransaction{ID: id})
	}
	if state.Status() == Pending {
		if err := c.leases.Renew(leaseName(id)); err != nil {
			if errors.Cause(err) == lease.ErrUnknownLease && state.Status() == Pending {
				// The lease expired under us, the expiry callback is about to abort the transaction.
				return nil, errors.WithStack(&ErrUnknownTransaction{ID: id})
			}
		}
	}
	return state, nil
}

// Get reads up to versions versions of column at or below ts, including the transaction's own writes.
func (c *Coordinator) Get(id uint64, row, column []byte, ts uint64, versions int) ([]region.Cell, error) {
	state, err := c.getTransaction(id)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	state.addRead(row)
	local, deleted := state.localGet(row, column, ts)
	c.mu.Unlock()

	external, err := c.region.Get(row, column, ts, versions)
	if err != nil {
		return nil, err
	}
	return overlayCells(local, deleted, external, versions), nil
}

// GetFull reads the newest version of every selected column of row, including the transaction's own writes.
func (c *Coordinator) GetFull(id uint64, row []byte, columns [][]byte, ts uint64) (map[string]region.Cell, error) {
	state, err := c.getTransaction(id)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	state.addRead(row)
	local, deleted := state.localGetFull(row, columns, ts)
	c.mu.Unlock()

	external, err := c.region.GetFull(row, columns, ts)
	if err != nil {
		return nil, err
	}
	return overlayRow(external, local, deleted), nil
}

// Scanner scans the region from startRow on behalf of the transaction.
func (c *Coordinator) Scanner(id uint64, columns [][]byte, startRow []byte, ts uint64, filter region.RowFilter) (*Scanner, error) {
	if _, err := c.getTransaction(id); err != nil {
		return nil, err
	}
	inner, err := c.region.Scanner(columns, startRow, ts, filter)
	if err != nil {
		return nil, err
	}
	return &Scanner{
		coordinator: c,
		id:          id,
		columns:     columns,
		ts:          ts,
		inner:       inner,
	}, nil
}

// Write buffers b in the transaction. It is logged before Write returns but only reaches the region on commit.
func (c *Coordinator) Write(id uint64, b *region.BatchUpdate) error {
	state, err := c.getTransaction(id)
	if err != nil {
		return err
	}
	if !c.region.ContainsRow(b.Row) {
		return errors.WithStack(&region.ErrRowNotInRegion{
			Row: b.Row, RegionID: c.region.ID, StartKey: c.region.StartKey, EndKey: c.region.EndKey})
	}
	if status := state.Status(); status != Pending {
		return errors.WithStack(&ErrInvalidState{ID: id, Status: status, Op: "write"})
	}
	if err := c.txnLog.Update(id, b); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if status := state.Status(); status != Pending {
		return errors.WithStack(&ErrInvalidState{ID: id, Status: status, Op: "write"})
	}
	state.addWrite(b)
	return nil
}

// DeleteAll deletes every column of row at or below ts, as seen by the transaction.
func (c *Coordinator) DeleteAll(id uint64, row []byte, ts uint64) error {
	state, err := c.getTransaction(id)
	if err != nil {
		return err
	}
	columns, err := c.region.Columns(row, ts)
	if err != nil {
		return err
	}
	c.mu.Lock()
	local := state.localColumns(row, ts)
	c.mu.Unlock()

	b := region.NewBatchUpdate(row, ts)
	seen := make(map[string]struct{}, len(columns)+len(local))
	for _, column := range append(columns, local...) {
		if _, ok := seen[string(column)]; ok {
			continue
		}
		seen[string(column)] = struct{}{}
		b.Delete(column)
	}
	if len(b.Ops) == 0 {
		return nil
	}
	return c.Write(id, b)
}

// Validate is the vote of the transaction. It returns false, aborting the transaction, if a transaction which
// voted yes since it began wrote a row it read. Otherwise the transaction becomes commit pending and, if it wrote
// anything, is given the next sequence number.
func (c *Coordinator) Validate(id uint64) (bool, error) {
	start := time.Now()
	defer func() {
		validateDuration.Observe(time.Since(start).Seconds())
	}()

	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.activeByID[id]
	if !ok {
		return false, errors.WithStack(&ErrUnknownTransaction{ID: id})
	}
	if status := state.Status(); status != Pending {
		return false, errors.WithStack(&ErrInvalidState{ID: id, Status: status, Op: "validate"})
	}

	c.history.AscendRange(&historyItem{sequence: state.startSequence}, &historyItem{sequence: c.nextSequence},
		func(i btree.Item) bool {
			state.addTransactionToCheck(i.(*historyItem).state)
			return true
		})
	if state.hasConflict() {
		log.Debugf("conflict found for %s", state)
		state.setStatus(Aborted)
		c.retireLocked(state)
		txnCounter.WithLabelValues("conflict").Inc()
		return false, nil
	}

	state.setStatus(CommitPending)
	if state.hasWrites() {
		state.sequence = c.nextSequence
		state.hasSequence = true
		c.nextSequence++
		c.commitPending[state] = struct{}{}
		c.history.ReplaceOrInsert(&historyItem{sequence: state.sequence, state: state})
	}
	// Only an explicit commit or abort ends a commit pending transaction.
	if err := c.leases.Cancel(leaseName(id)); err != nil {
		log.Debugf("cancel lease of transaction %d, %v", id, err)
	}
	c.updateGaugesLocked()
	log.Debugf("%s voted to commit", state)
	return true, nil
}

// Commit applies the writes of a transaction which voted yes.
func (c *Coordinator) Commit(id uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.activeByID[id]
	if !ok {
		log.Errorf("asked to commit unknown transaction %d in region %d", id, c.region.ID)
		return errors.WithStack(&ErrUnknownTransaction{ID: id})
	}
	if status := state.Status(); status != CommitPending {
		log.Errorf("asked to commit %s", state)
		return errors.WithStack(&ErrInvalidState{ID: id, Status: status, Op: "commit"})
	}

	if state.hasWrites() {
		if state.commitTs == 0 {
			state.commitTs = region.CurrentTimestamp()
		}
		if err := c.txnLog.Commit(id, state.commitTs); err != nil {
			return err
		}
		state.commitLogged = true
		// The updates are in the log already. If they cannot be applied now the commit must be retried, a
		// restart would apply them anyway.
		if err := c.region.Apply(state.commitTs, state.writeSet...); err != nil {
			return err
		}
	}
	state.setStatus(Committed)
	c.retireLocked(state)
	txnCounter.WithLabelValues("commit").Inc()
	if state.hasWrites() {
		if _, ok := c.commitPending[state]; !ok {
			log.Errorf("committed %s was not commit pending", state)
			return errors.WithStack(&ErrInvalidState{ID: id, Status: Committed, Op: "commit corrupted"})
		}
		delete(c.commitPending, state)
	}
	log.Debugf("committed %s", state)
	return nil
}

// Abort discards the transaction. Aborting an unknown transaction is not an error since aborts race with expiry.
func (c *Coordinator) Abort(id uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.activeByID[id]
	if !ok {
		log.Infof("asked to abort unknown transaction %d", id)
		return nil
	}
	return c.abortLocked(state, false)
}

// abortLocked aborts state. A failure to log the abort is returned without changing anything, unless force is set.
// A transaction whose commit record is durable is decided and never aborted.
func (c *Coordinator) abortLocked(state *TransactionState, force bool) error {
	if state.commitLogged {
		log.Errorf("asked to abort %s after its commit was logged", state)
		return errors.WithStack(&ErrInvalidState{ID: state.id, Status: state.Status(), Op: "abort"})
	}
	if state.hasWrites() {
		if err := c.txnLog.Abort(state.id); err != nil {
			if !force {
				return err
			}
			log.Warnf("abort of transaction %d not logged, %v", state.id, err)
		}
	}
	state.setStatus(Aborted)
	if state.hasSequence {
		c.history.Delete(&historyItem{sequence: state.sequence})
	}
	delete(c.commitPending, state)
	c.retireLocked(state)
	txnCounter.WithLabelValues("abort").Inc()
	log.Debugf("aborted %s", state)
	return nil
}

// retireLocked cancels the lease and forgets the id. The transaction may stay in the history until collected.
func (c *Coordinator) retireLocked(state *TransactionState) {
	if err := c.leases.Cancel(leaseName(state.id)); err != nil {
		log.Debugf("cancel lease of transaction %d, %v", state.id, err)
	}
	if c.activeByID[state.id] == state {
		delete(c.activeByID, state.id)
	}
	c.updateGaugesLocked()
}

// expire is the lease callback. It runs on the lease sweeper without the registry lock held.
func (c *Coordinator) expire(state *TransactionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.activeByID[state.id] != state {
		return
	}
	switch state.Status() {
	case Pending:
		log.Infof("transaction %d expired, aborting", state.id)
		txnCounter.WithLabelValues("expire").Inc()
		c.abortLocked(state, true)
	case CommitPending:
		log.Warnf("lease of %s expired, waiting for an explicit commit or abort", state)
	}
}

// RemoveUnneededHistory drops history entries older than the oldest active transaction, or all of them when none
// is active. It returns the number of entries removed.
func (c *Coordinator) RemoveUnneededHistory() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	minStart := uint64(math.MaxUint64)
	for _, state := range c.activeByID {
		if state.startSequence < minStart {
			minStart = state.startSequence
		}
	}

	var unneeded []btree.Item
	c.history.AscendLessThan(&historyItem{sequence: minStart}, func(i btree.Item) bool {
		unneeded = append(unneeded, i)
		return true
	})
	for _, i := range unneeded {
		c.history.Delete(i)
	}
	c.updateGaugesLocked()
	if len(unneeded) > 0 {
		log.Debugf("removed %d transactions from history, %d left", len(unneeded), c.history.Len())
	}
	return len(unneeded)
}

// neededLSNLocked returns the first log position an active transaction may still need. Every record below it
// belongs to a transaction which finished, and whose updates reached the region if it committed. A transaction
// still beginning has startLSN 0 and holds back everything.
func (c *Coordinator) neededLSNLocked() uint64 {
	needed := c.txnLog.NextLSN()
	for _, state := range c.activeByID {
		if state.startLSN < needed {
			needed = state.startLSN
		}
	}
	return needed
}

// TruncateTxnLog deletes the transaction log records no active transaction needs and returns how many it deleted.
func (c *Coordinator) TruncateTxnLog() (int, error) {
	c.mu.Lock()
	needed := c.neededLSNLocked()
	c.mu.Unlock()

	n, err := c.txnLog.Truncate(needed)
	if n > 0 {
		txnLogTruncatedCounter.Add(float64(n))
		log.Debugf("truncated %d txn log records below %d", n, needed)
	}
	return n, err
}

func (c *Coordinator) updateGaugesLocked() {
	activeTxnGauge.Set(float64(len(c.activeByID)))
	historySizeGauge.Set(float64(c.history.Len()))
}

type Stats struct {
	RegionID      uint64 `json:"region_id"`
	Active        int    `json:"active"`
	CommitPending int    `json:"commit_pending"`
	HistorySize   int    `json:"history_size"`
	NextSequence  uint64 `json:"next_sequence"`
	TxnLogSegment uint64 `json:"txn_log_segment"`
	// Log records below this position are truncated on the next tick.
	NeededLSN uint64 `json:"needed_lsn"`
}

func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		RegionID:      c.region.ID,
		Active:        len(c.activeByID),
		CommitPending: len(c.commitPending),
		HistorySize:   c.history.Len(),
		NextSequence:  c.nextSequence,
		TxnLogSegment: c.txnLog.Segment(),
		NeededLSN:     c.neededLSNLocked(),
	}
}

func (c *Coordinator) HistoryLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.Len()
}
