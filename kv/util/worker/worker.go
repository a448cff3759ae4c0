package worker

import (
	"sync"

	"github.com/pingcap-incubator/tinyocc/log"
)

type Task interface{}

type taskStop struct{}

type TaskHandler interface {
	Handle(t Task)
}

// Worker runs tasks one at a time on its own goroutine, in the order they were sent.
type Worker struct {
	name string
	ch   chan Task
	wg   *sync.WaitGroup
}

const defaultWorkerCapacity = 128

// NewWorker creates a worker whose goroutine is tracked by wg once started.
func NewWorker(name string, wg *sync.WaitGroup) *Worker {
	return &Worker{
		name: name,
		ch:   make(chan Task, defaultWorkerCapacity),
		wg:   wg,
	}
}

func (w *Worker) Start(handler TaskHandler) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		log.Debugf("worker %s started", w.name)
		for t := range w.ch {
			if _, ok := t.(taskStop); ok {
				log.Debugf("worker %s stopped", w.name)
				return
			}
			handler.Handle(t)
		}
	}()
}

// Send queues t, blocking while the queue is full.
func (w *Worker) Send(t Task) {
	w.ch <- t
}

// TrySend queues t unless the queue is full. It reports whether t was queued.
func (w *Worker) TrySend(t Task) bool {
	select {
	case w.ch <- t:
		return true
	default:
		return false
	}
}

// Stop asks the worker to exit once the tasks queued before it are handled.
func (w *Worker) Stop() {
	w.ch <- taskStop{}
}
