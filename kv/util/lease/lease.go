package lease

import (
	"container/heap"
	"sync"
	"time"

	"github.com/pingcap-incubator/tinyocc/log"
	"github.com/pingcap/errors"
	"go.uber.org/atomic"
)

var (
	// ErrUnknownLease is returned when renewing or cancelling a lease which does not exist. It commonly races with
	// natural expiry and callers are expected to tolerate it.
	ErrUnknownLease = errors.New("lease does not exist")
	// ErrLeaseStillHeld is returned when creating a lease whose name is already in use.
	ErrLeaseStillHeld = errors.New("lease still held")
)

// Leases tracks named leases held by clients which must be renewed periodically. Any lease not renewed within the
// lease period is removed and its expiry callback runs exactly once on the sweeper goroutine.
type Leases struct {
	period        time.Duration
	checkInterval time.Duration

	mu     sync.Mutex
	leases map[string]*lease
	queue  expiryQueue

	closed  atomic.Bool
	closeCh chan struct{}
	wg      sync.WaitGroup
	now     func() time.Time
}

type lease struct {
	name     string
	expireAt time.Time
	onExpire func()
	// index in the expiry queue, maintained by the heap.
	index int
}

// NewLeases creates a lease registry. Leases last for period and are checked every checkInterval once Start has
// been called.
func NewLeases(period, checkInterval time.Duration) *Leases {
	return &Leases{
		period:        period,
		checkInterval: checkInterval,
		leases:        make(map[string]*lease),
		closeCh:       make(chan struct{}),
		now:           time.Now,
	}
}

// Start runs the sweeper goroutine.
func (l *Leases) Start() {
	l.wg.Add(1)
	go l.run()
}

func (l *Leases) run() {
	defer l.wg.Done()
	ticker := time.NewTicker(l.checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.closeCh:
			return
		case <-ticker.C:
			l.expire()
		}
	}
}

// expire removes every lease past its expiry time and then runs the callbacks without holding the lock, so a
// callback may freely call back into the registry.
func (l *Leases) expire() int {
	now := l.now()
	var expired []*lease
	l.mu.Lock()
	for l.queue.Len() > 0 && !l.queue[0].expireAt.After(now) {
		ls := heap.Pop(&l.queue).(*lease)
		delete(l.leases, ls.name)
		expired = append(expired, ls)
	}
	l.mu.Unlock()

	for _, ls := range expired {
		log.Debugf("lease %s expired", ls.name)
		if ls.onExpire != nil {
			ls.onExpire()
		}
	}
	return len(expired)
}

// Close stops the sweeper. Outstanding leases are dropped without running their callbacks.
func (l *Leases) Close() {
	if l.closed.Swap(true) {
		return
	}
	close(l.closeCh)
	l.wg.Wait()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.leases = make(map[string]*lease)
	l.queue = nil
	log.Infof("closed leases")
}

// Create obtains a lease named name. onExpire is called if the lease is not renewed in time.
func (l *Leases) Create(name string, onExpire func()) error {
	if l.closed.Load() {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.leases[name]; ok {
		return errors.Annotatef(ErrLeaseStillHeld, "lease %s", name)
	}
	ls := &lease{
		name:     name,
		expireAt: l.now().Add(l.period),
		onExpire: onExpire,
	}
	l.leases[name] = ls
	heap.Push(&l.queue, ls)
	return nil
}

// Renew pushes the expiry of the named lease a full period into the future.
func (l *Leases) Renew(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	ls, ok := l.leases[name]
	if !ok {
		return errors.Annotatef(ErrUnknownLease, "lease %s", name)
	}
	ls.expireAt = l.now().Add(l.period)
	heap.Fix(&l.queue, ls.index)
	return nil
}

// Cancel removes the named lease without running its callback.
func (l *Leases) Cancel(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	ls, ok := l.leases[name]
	if !ok {
		return errors.Annotatef(ErrUnknownLease, "lease %s", name)
	}
	delete(l.leases, name)
	heap.Remove(&l.queue, ls.index)
	return nil
}

// Len returns the number of live leases.
func (l *Leases) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.leases)
}

// expiryQueue is a min-heap of leases ordered by expiry time.
type expiryQueue []*lease

func (q expiryQueue) Len() int {
	return len(q)
}

func (q expiryQueue) Less(i, j int) bool {
	return q[i].expireAt.Before(q[j].expireAt)
}

func (q expiryQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *expiryQueue) Push(x interface{}) {
	ls := x.(*lease)
	ls.index = len(*q)
	*q = append(*q, ls)
}

func (q *expiryQueue) Pop() interface{} {
	old := *q
	n := len(old)
	ls := old[n-1]
	old[n-1] = nil // avoid memory leak
	ls.index = -1
	*q = old[0 : n-1]
	return ls
}
