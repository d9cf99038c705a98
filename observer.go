package litejob

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// CoordinatorID is the WorkerID reported for transitions performed by the
// coordinator rather than a worker.
const CoordinatorID = -1

// Transition describes one status change of one job.
type Transition struct {
	JobID    ulid.ULID
	Kind     string
	From     Status
	To       Status
	WorkerID int
	At       time.Time
}

// An Observer is told about every status transition.
//
// OnTransition runs while the queue lock that serializes the transition is
// held, so a job's transitions reach an observer in status order. It must
// return quickly and must not call back into the JobSystem.
type Observer interface {
	OnTransition(Transition)
}

// The ObserverFunc type is an adapter to allow the use of
// ordinary functions as an Observer.
type ObserverFunc func(Transition)

// OnTransition calls fn(t)
func (fn ObserverFunc) OnTransition(t Transition) {
	fn(t)
}
