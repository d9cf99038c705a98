package litejob

// Stats is a point-in-time view of the job system's counters. The fields are
// read independently, so under load they may not add up exactly.
type Stats struct {
	Workers int

	// totals since construction
	Submitted int64
	Claimed   int64
	Completed int64
	Retrieved int64

	// current occupancy
	Queued            int
	Executing         int64
	AwaitingRetrieval int
}

// Stats returns the current counters.
func (js *JobSystem) Stats() Stats {
	claimed := js.claimedCount.Load()
	completed := js.completedCount.Load()

	return Stats{
		Workers:           js.Workers(),
		Submitted:         js.submittedCount.Load(),
		Claimed:           claimed,
		Completed:         completed,
		Retrieved:         js.retrievedCount.Load(),
		Queued:            js.submitted.Len(),
		Executing:         claimed - completed,
		AwaitingRetrieval: js.completed.Len(),
	}
}
