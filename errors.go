package litejob

import (
	"errors"

	"github.com/jirevwe/litejob/queue"
)

var (
	// ErrAlreadyStarted is returned by a second call to Startup.
	ErrAlreadyStarted = errors.New("litejob: job system already started")

	// ErrShutdown is returned once Shutdown has begun.
	ErrShutdown = errors.New("litejob: job system is shutting down")

	// ErrQueueFull is returned by QueueNewJob when a bounded submitted queue
	// has no room left.
	ErrQueueFull = queue.ErrFull

	// ErrNilJob is returned when a nil job or a job without an executor is
	// submitted.
	ErrNilJob = errors.New("litejob: job or executor is nil")

	// ErrJobOwned is returned when a job that is not in the Created state is
	// submitted, i.e. it is already owned by the system or has been retired.
	ErrJobOwned = errors.New("litejob: job is not in the created state")
)
