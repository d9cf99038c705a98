package playground

import "time"

// TestJob is the demo workload: it sleeps for a fixed duration on a worker
// and records when it ran.
type TestJob struct {
	X, Y  int
	Sleep time.Duration

	StartedAt  time.Time
	FinishedAt time.Time
}

func NewTestJob(x, y int, sleep time.Duration) *TestJob {
	return &TestJob{X: x, Y: y, Sleep: sleep}
}

func (t *TestJob) Execute() {
	t.StartedAt = time.Now()
	time.Sleep(t.Sleep)
	t.FinishedAt = time.Now()
}

// Elapsed is how long the job actually ran. Only meaningful after retrieval.
func (t *TestJob) Elapsed() time.Duration {
	return t.FinishedAt.Sub(t.StartedAt)
}
