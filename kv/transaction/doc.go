package transaction

// The transaction package implements TinyOCC's transaction layer: optimistic transactions scoped to a single region.
// A transaction buffers its writes, records which rows it read, and is validated when it votes to commit. Nothing is
// locked while a transaction runs; conflicts are found at validation time instead.
//
// Multi-region transactions are driven by an external two phase commit coordinator. It calls Begin, reads and writes
// on every region the transaction touches, then Validate (the vote) on every participant, and finally Commit on all
// of them if every vote was yes, or Abort otherwise.
//
// Within this package, `occ` holds the coordinator, the per-transaction state and the scan wrapper. `txnlog` is the
// write-ahead log of transaction records and `latches` serializes applying committed updates to storage.
//
// ## Validation
//
// Every transaction which votes yes with a non-empty write set is given the next sequence number and kept in the
// commit history, ordered by sequence number. A transaction remembers the next sequence number when it begins. When it
// validates, it checks its read set against the write set of every transaction in the history from that number on,
// plus every transaction which was commit pending when it began. Validation and sequence assignment happen under a
// single coordinator lock so concurrent validations always see each other.
//
// Conflicts are tracked per row, not per column. A transaction which scanned the region conflicts with any
// transaction that wrote anything, since it might have missed a row that was inserted.
//
// ## Leases
//
// Every pending transaction holds a lease which each operation renews. A transaction whose lease expires is aborted.
// Voting yes gives up the lease: a commit pending transaction waits for an explicit commit or abort, however long
// that takes.
//
// ## History garbage collection
//
// An entry of the history is needed only while some active transaction began before it was added. Once the history
// grows past a threshold, beginning a transaction schedules a collection on a background worker which drops every
// entry older than the oldest active transaction.
//
// ## Recovery
//
// Each process life appends to a new segment of the transaction log. Commit records carry the commit timestamp, so on
// restart the updates of committed transactions found in earlier segments are applied again at the same versions,
// which makes reapplying harmless. Transactions are applied in log order. Afterwards the old segments are purged.
//
// A transaction is decided once its commit record is durable. If applying its updates fails the commit has to be
// retried; it can no longer be aborted.
//
// While the process runs, records of the current segment below the start of the oldest active transaction are
// truncated periodically.
