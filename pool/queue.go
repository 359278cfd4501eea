package pool

import (
	"sync"

	"github.com/gammazero/deque"
)

// workQueue is an unbounded FIFO of jobs shared by every worker in a pool.
// send never blocks; recv blocks until a job is queued or the queue is closed.
type workQueue struct {
	mu     sync.Mutex
	ready  *sync.Cond
	jobs   deque.Deque[Job]
	closed bool
}

func newWorkQueue() *workQueue {
	q := &workQueue{}
	q.ready = sync.NewCond(&q.mu)
	return q
}

// send enqueues job. Returns ErrPoolShutdown once the queue has been closed.
func (q *workQueue) send(job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrPoolShutdown
	}
	q.jobs.PushBack(job)
	q.ready.Signal()
	return nil
}

// recv returns the oldest unclaimed job. ok is false when the queue is closed
// and nothing is left to drain.
func (q *workQueue) recv() (job Job, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.jobs.Len() == 0 {
		if q.closed {
			return nil, false
		}
		q.ready.Wait()
	}
	return q.jobs.PopFront(), true
}

// close rejects further sends and wakes every blocked receiver. Jobs already
// queued are still handed out by recv. onClose, if non-nil, runs under the
// queue lock on the first close, so no send can be accepted after it runs.
func (q *workQueue) close(onClose func()) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	if onClose != nil {
		onClose()
	}
	q.ready.Broadcast()
}

// len reports how many jobs are waiting to be claimed.
func (q *workQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.jobs.Len()
}
