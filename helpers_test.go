package litejob

import (
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"
)

var slogger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

type TestJob struct {
	executeFunc func()
	wg          *sync.WaitGroup
	executions  atomic.Int32
}

func NewTestJob(executeFunc func(), wg *sync.WaitGroup) *TestJob {
	return &TestJob{
		executeFunc: executeFunc,
		wg:          wg,
	}
}

func (t *TestJob) Execute() {
	t.executions.Add(1)

	if t.wg != nil {
		defer t.wg.Done()
	}

	if t.executeFunc != nil {
		t.executeFunc()
	}
}

type counterTest struct {
	count int
	mu    *sync.Mutex
}

func NewCounterTest() *counterTest {
	return &counterTest{
		count: 0,
		mu:    &sync.Mutex{},
	}
}

func (c *counterTest) Inc() {
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
}

func (c *counterTest) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// recorder keeps every transition it observes in arrival order.
type recorder struct {
	mu          sync.Mutex
	transitions []Transition
}

func (r *recorder) OnTransition(t Transition) {
	r.mu.Lock()
	r.transitions = append(r.transitions, t)
	r.mu.Unlock()
}

func (r *recorder) to(status Status) []Transition {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Transition
	for _, t := range r.transitions {
		if t.To == status {
			out = append(out, t)
		}
	}
	return out
}

func (r *recorder) forJob(id ulid.ULID) []Transition {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Transition
	for _, t := range r.transitions {
		if t.JobID == id {
			out = append(out, t)
		}
	}
	return out
}

func newTestSystem(t *testing.T, workers int, opts ...Option) *JobSystem {
	t.Helper()

	cfg := DefaultConfig()
	cfg.NumWorkers = workers

	js, err := New(cfg, append([]Option{WithLogger(slogger)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(js.Shutdown)

	return js
}

// drain polls RetrieveCompletedJob until want jobs came back or the timeout hits.
func drain(t *testing.T, js *JobSystem, want int, timeout time.Duration) []*Job {
	t.Helper()

	var got []*Job
	deadline := time.After(timeout)
	for len(got) < want {
		if job := js.RetrieveCompletedJob(); job != nil {
			got = append(got, job)
			continue
		}

		select {
		case <-deadline:
			t.Fatalf("retrieved %d of %d jobs before timing out", len(got), want)
		case <-time.After(time.Millisecond):
		}
	}
	return got
}

func withHardwareParallelism(t *testing.T, n int) {
	t.Helper()
	prev := hardwareParallelism
	hardwareParallelism = func() int { return n }
	t.Cleanup(func() { hardwareParallelism = prev })
}
