package pool

import (
	"runtime/debug"
)

// worker is one long-lived goroutine pulling jobs from the shared queue.
type worker struct {
	id   int
	pool *ThreadPool
	done chan struct{} // closed when the worker has drained the queue and stopped
}

func newWorker(id int, p *ThreadPool) *worker {
	w := &worker{
		id:   id,
		pool: p,
		done: make(chan struct{}),
	}
	go w.run()
	return w
}

// run executes jobs until the queue reports closed and drained. If a job
// ends the goroutine with runtime.Goexit, the loop resumes on a new goroutine
// so the worker keeps its place in the pool.
func (w *worker) run() {
	drained := false
	defer func() {
		if !drained {
			w.pool.logger.Warn("worker goroutine exited early, restarting", "worker_id", w.id)
			go w.run()
			return
		}
		close(w.done)
	}()

	for {
		job, ok := w.pool.queue.recv()
		if !ok {
			drained = true
			w.pool.logger.Debug("worker exiting", "worker_id", w.id)
			return
		}
		w.pool.logger.Debug("worker got a job, executing", "worker_id", w.id)
		w.execute(job)
	}
}

// execute runs job to completion, containing any panic or runtime.Goexit at
// this boundary.
func (w *worker) execute(job Job) {
	p := w.pool
	p.busy.Add(1)
	defer p.busy.Add(-1)

	returned := false
	defer func() {
		r := recover()
		if r == nil && returned {
			p.completed.Add(1)
			return
		}

		fault := &JobFault{WorkerID: w.id, Value: r, Stack: debug.Stack()}
		if r == nil {
			fault.Value = ErrJobExited
			p.logger.Error("job exited its goroutine", "worker_id", w.id, "stack", string(fault.Stack))
		} else {
			p.logger.Error("job panicked", "worker_id", w.id, "panic", r, "stack", string(fault.Stack))
		}
		p.faulted.Add(1)
		p.reportFault(fault)
	}()

	job()
	returned = true
}

// join blocks until the worker has stopped for good.
func (w *worker) join() {
	<-w.done
}
