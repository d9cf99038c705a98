package litejob

import "fmt"

// Status is a job's lifecycle state. Values are ordered: a job only ever
// moves to the next value.
type Status int32

const (
	StatusCreated Status = iota
	StatusQueued
	StatusClaimedExecuting
	StatusCompleted
	StatusRetrievedAndRetired
)

var statusNames = [...]string{
	StatusCreated:             "created",
	StatusQueued:              "queued",
	StatusClaimedExecuting:    "claimed_executing",
	StatusCompleted:           "completed",
	StatusRetrievedAndRetired: "retrieved_and_retired",
}

func (s Status) String() string {
	if s < StatusCreated || s > StatusRetrievedAndRetired {
		return fmt.Sprintf("status(%d)", int32(s))
	}
	return statusNames[s]
}

// Valid reports whether s is one of the defined states.
func (s Status) Valid() bool {
	return s >= StatusCreated && s <= StatusRetrievedAndRetired
}

// Terminal reports whether s is the final state.
func (s Status) Terminal() bool { return s == StatusRetrievedAndRetired }

// ParseStatus converts the String form back into a Status.
func ParseStatus(s string) (Status, error) {
	for i, name := range statusNames {
		if name == s {
			return Status(i), nil
		}
	}
	return StatusCreated, fmt.Errorf("unknown job status %q", s)
}
