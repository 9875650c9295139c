// Package dispatch provides serial task queues. Tasks submitted to a Queue
// run one at a time, in submission order, on a single goroutine.
package dispatch

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Queue runs submitted functions serially on its own goroutine.
// Submission never blocks, so tasks may enqueue further work on the
// queue they are running on.
type Queue struct {
	name string

	mu      sync.Mutex
	pending []func()
	closed  bool
	wake    chan struct{}
	done    chan struct{}
}

// NewQueue starts a serial queue. The name is used in logs.
func NewQueue(name string) *Queue {
	q := &Queue{
		name: name,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go q.loop()
	return q
}

// Name returns the queue label.
func (q *Queue) Name() string {
	return q.name
}

// Async schedules fn and returns immediately. It reports false if the
// queue has been closed and fn was dropped.
func (q *Queue) Async(fn func()) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		logrus.WithField("queue", q.name).Debug("Dropping task submitted to closed queue")
		return false
	}
	q.pending = append(q.pending, fn)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// Sync schedules fn and waits for it to finish. It must not be called from
// a task running on the same queue.
func (q *Queue) Sync(fn func()) bool {
	finished := make(chan struct{})
	if !q.Async(func() {
		defer close(finished)
		fn()
	}) {
		return false
	}
	<-finished
	return true
}

// Close stops accepting tasks and waits until the ones already queued have run.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	<-q.done
}

func (q *Queue) loop() {
	defer close(q.done)
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			if q.closed {
				q.mu.Unlock()
				return
			}
			q.mu.Unlock()
			<-q.wake
			continue
		}
		batch := q.pending
		q.pending = nil
		q.mu.Unlock()

		for _, fn := range batch {
			q.run(fn)
		}
	}
}

func (q *Queue) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"queue": q.name,
				"panic": r,
			}).Error("Task panicked")
		}
	}()
	fn()
}
