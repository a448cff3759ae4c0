package occ

import "fmt"

// ErrUnknownTransaction is returned when an operation names a transaction which is not active, either because it
// never began or because it was already retired.
type ErrUnknownTransaction struct {
	ID uint64
}

func (e *ErrUnknownTransaction) Error() string {
	return fmt.Sprintf("unknown transaction %d", e.ID)
}

// ErrDuplicateTransaction is returned by Begin when the id is already active. The stale transaction is aborted.
type ErrDuplicateTransaction struct {
	ID uint64
}

func (e *ErrDuplicateTransaction) Error() string {
	return fmt.Sprintf("transaction %d already active", e.ID)
}

// ErrInvalidState means the caller broke the commit protocol, for example by committing a transaction which did
// not vote yes. It must not be retried.
type ErrInvalidState struct {
	ID     uint64
	Status Status
	Op     string
}

func (e *ErrInvalidState) Error() string {
	return fmt.Sprintf("cannot %s transaction %d in state %s", e.Op, e.ID, e.Status)
}
