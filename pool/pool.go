// Package pool provides a fixed-size pool of worker goroutines fed by an
// unbounded FIFO queue.
//
// A pool is created once with New, accepts jobs through Submit for as long as
// it is running, and is torn down exactly once by Shutdown, which rejects new
// submissions, drains every job already queued and waits for all workers to
// exit.
package pool

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Job is a single unit of work. It runs at most once, on exactly one worker.
type Job func()

// State is the lifecycle phase of a ThreadPool.
type State uint32

const (
	StateUninitialized State = iota
	StateRunning
	StateShuttingDown
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Stats is a point-in-time snapshot of pool counters.
type Stats struct {
	Size      int
	State     State
	Submitted uint64
	Completed uint64
	Faulted   uint64
	Rejected  uint64
	Queued    int
	Busy      int
}

// Option configures a ThreadPool.
type Option func(*ThreadPool)

// WithLogger sets the logger used for worker diagnostics and job faults.
func WithLogger(l *slog.Logger) Option {
	return func(p *ThreadPool) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithFaultHandler registers fn to be called, on the faulting worker, for
// every job that panics or calls runtime.Goexit.
func WithFaultHandler(fn func(*JobFault)) Option {
	return func(p *ThreadPool) {
		p.onFault = fn
	}
}

// ThreadPool owns a fixed set of workers and the sending side of their queue.
type ThreadPool struct {
	workers []*worker
	queue   *workQueue
	logger  *slog.Logger
	onFault func(*JobFault)

	state        atomic.Uint32
	shutdownOnce sync.Once

	submitted atomic.Uint64
	completed atomic.Uint64
	faulted   atomic.Uint64
	rejected  atomic.Uint64
	busy      atomic.Int64
}

// New starts a pool with size workers. Returns ErrInvalidSize if size < 1.
func New(size int, opts ...Option) (*ThreadPool, error) {
	if size < 1 {
		return nil, ErrInvalidSize
	}

	p := &ThreadPool{
		queue:  newWorkQueue(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.workers = make([]*worker, size)
	for id := range size {
		p.workers[id] = newWorker(id, p)
	}
	p.state.Store(uint32(StateRunning))

	p.logger.Debug("pool started", "workers", size)
	return p, nil
}

// Submit hands job to the next idle worker. It never blocks and reports no
// result. Returns ErrPoolShutdown once Shutdown has begun; the job is not run.
func (p *ThreadPool) Submit(job Job) error {
	if job == nil {
		return ErrNilJob
	}
	if err := p.queue.send(job); err != nil {
		p.rejected.Add(1)
		return err
	}
	p.submitted.Add(1)
	return nil
}

// Shutdown closes the queue, lets workers drain every queued job, and waits
// for all of them to exit. Calling it again, concurrently or later, waits for
// the first call and returns.
func (p *ThreadPool) Shutdown() {
	p.shutdownOnce.Do(func() {
		p.queue.close(func() {
			p.state.Store(uint32(StateShuttingDown))
		})
		p.logger.Debug("pool shutting down", "workers", len(p.workers), "queued", p.queue.len())

		for _, w := range p.workers {
			w.join()
			p.logger.Debug("worker joined", "worker_id", w.id)
		}

		p.state.Store(uint32(StateTerminated))
		p.logger.Debug("pool terminated")
	})
}

// Size returns the number of workers, fixed at construction.
func (p *ThreadPool) Size() int {
	return len(p.workers)
}

// State returns the current lifecycle phase.
func (p *ThreadPool) State() State {
	return State(p.state.Load())
}

// Stats returns a snapshot of the pool counters. Fields are read
// independently and may be mutually inconsistent under load.
func (p *ThreadPool) Stats() Stats {
	return Stats{
		Size:      len(p.workers),
		State:     p.State(),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Faulted:   p.faulted.Load(),
		Rejected:  p.rejected.Load(),
		Queued:    p.queue.len(),
		Busy:      int(p.busy.Load()),
	}
}

// reportFault hands f to the fault handler. A panicking handler is logged and
// swallowed so it cannot take the worker down.
func (p *ThreadPool) reportFault(f *JobFault) {
	if p.onFault == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("fault handler panicked", "worker_id", f.WorkerID, "panic", r)
		}
	}()
	p.onFault(f)
}
