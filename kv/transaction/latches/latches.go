package latches

import (
	"sync"
)

// Latches serialise the application of row mutation batches to storage. A latch is a per-row lock, and a batch
// latches all of its rows at once, so two batches touching the same row (a commit and a replayed commit, say) never
// interleave. Latches are unrelated to transaction validation, which happens before a batch reaches storage.
//
// All rows latched together share one channel, closed on release to wake every waiter.
type Latches struct {
	mu      sync.Mutex
	latched map[string]chan struct{}
	// An optional validation function, only used for testing.
	Validation func(latched [][]byte)
}

// NewLatches creates the latches of a region. There should be exactly one per region.
func NewLatches() *Latches {
	return &Latches{latched: make(map[string]chan struct{})}
}

// AcquireLatches latches either every row in rows or none of them. It returns nil on success, otherwise a channel
// which is closed once a conflicting latch is released.
func (l *Latches) AcquireLatches(rows [][]byte) <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, row := range rows {
		if ch, ok := l.latched[string(row)]; ok {
			return ch
		}
	}
	ch := make(chan struct{})
	for _, row := range rows {
		l.latched[string(row)] = ch
	}
	return nil
}

// ReleaseLatches releases rows, which must be exactly the rows of one successful AcquireLatches call.
func (l *Latches) ReleaseLatches(rows [][]byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var released chan struct{}
	for _, row := range rows {
		if ch, ok := l.latched[string(row)]; ok {
			released = ch
			delete(l.latched, string(row))
		}
	}
	if released != nil {
		close(released)
	}
}

// WaitForLatches blocks until it has latched every row in rows.
func (l *Latches) WaitForLatches(rows [][]byte) {
	for {
		ch := l.AcquireLatches(rows)
		if ch == nil {
			return
		}
		<-ch
	}
}

// Validate calls the function in Validation, if it exists.
func (l *Latches) Validate(latched [][]byte) {
	if l.Validation != nil {
		l.Validation(latched)
	}
}
