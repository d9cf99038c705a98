package litejob

import (
	"fmt"
	"sync/atomic"

	"github.com/oklog/ulid/v2"
)

// Job is a handle on a unit of work owned by the caller.
//
// The caller creates it with NewJob, hands it to QueueNewJob, and gets the same
// pointer back from RetrieveCompletedJob. The job system only holds the
// handle while the job is queued, executing or waiting for retrieval.
type Job struct {
	id     ulid.ULID
	exec   Executor
	status atomic.Int32
}

// NewJob wraps exec in a job handle in the Created state.
func NewJob(exec Executor) *Job {
	return &Job{
		id:   ulid.Make(),
		exec: exec,
	}
}

func (j *Job) ID() ulid.ULID { return j.id }

// Executor returns the wrapped executor, typically type-asserted by the
// caller to read results after retrieval.
func (j *Job) Executor() Executor { return j.exec }

// Status returns a snapshot of the job's lifecycle state. It is safe to call
// from any goroutine, but the value alone does not grant exclusive access to
// the executor.
func (j *Job) Status() Status { return Status(j.status.Load()) }

// Kind names the executor's concrete type.
func (j *Job) Kind() string {
	if j.exec == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%T", j.exec)
}

func (j *Job) String() string {
	return fmt.Sprintf("job %s (%s, %s)", j.id, j.Kind(), j.Status())
}

// advance moves the job from one state to the next one. It fails if the job is
// not in from, leaving the status untouched.
func (j *Job) advance(from, to Status) bool {
	return j.status.CompareAndSwap(int32(from), int32(to))
}
