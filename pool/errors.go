package pool

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSize is returned by New when asked for fewer than one worker.
	ErrInvalidSize = errors.New("pool: size must be at least 1")

	// ErrPoolShutdown is returned by Submit once shutdown has begun.
	ErrPoolShutdown = errors.New("pool: shut down")

	// ErrNilJob is returned by Submit for a nil job.
	ErrNilJob = errors.New("pool: nil job")

	// ErrJobExited is the JobFault value for a job that called runtime.Goexit.
	ErrJobExited = errors.New("pool: job exited its goroutine")
)

// JobFault describes a job that panicked, or called runtime.Goexit, on a
// worker. The fault is contained by the worker; it is logged and reported,
// never re-queued.
type JobFault struct {
	WorkerID int
	Value    any
	Stack    []byte
}

func (f *JobFault) Error() string {
	if f.Value == ErrJobExited {
		return fmt.Sprintf("pool: job exited its goroutine on worker %d", f.WorkerID)
	}
	return fmt.Sprintf("pool: job panicked on worker %d: %v", f.WorkerID, f.Value)
}

// Unwrap exposes the panic value when it was itself an error.
func (f *JobFault) Unwrap() error {
	if err, ok := f.Value.(error); ok {
		return err
	}
	return nil
}
