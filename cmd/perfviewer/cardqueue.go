package main

import (
	"sync"

	"github.com/iafilius/ThreadPerfMonitor/src/monitor"
	"github.com/iafilius/ThreadPerfMonitor/src/perfcard"
	"github.com/iafilius/ThreadPerfMonitor/src/types"
)

// cardQueue runs card changes one at a time, in the order the widgets queued
// them, off the UI goroutine.
type cardQueue struct {
	mu     sync.Mutex
	closed bool
	ops    chan func()
	done   chan struct{}
}

func newCardQueue(size int) *cardQueue {
	q := &cardQueue{ops: make(chan func(), size), done: make(chan struct{})}
	go q.run()
	return q
}

func (q *cardQueue) run() {
	defer close(q.done)
	for op := range q.ops {
		op()
	}
}

// Do queues op. It reports false once the queue is closed.
func (q *cardQueue) Do(op func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.ops <- op
	return true
}

// Close runs what is already queued and stops the worker.
func (q *cardQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ops)
	q.mu.Unlock()
	<-q.done
}

// chooseThread queues the selection of the thread named s.
func chooseThread(q *cardQueue, card *perfcard.Card, s string) error {
	th, err := types.ParseThreadName(s)
	if err != nil {
		return err
	}
	q.Do(func() {
		if err := card.Select(th); err != nil {
			monitor.Warnf("[viewer] select %s: %v", th, err)
		}
	})
	return nil
}
