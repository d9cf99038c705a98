package litejob

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobSystem_MultipleStartupShutdownDontPanic(t *testing.T) {
	js := newTestSystem(t, 5)

	// We're just checking to make sure repeated calls
	// are rejected or ignored instead of panicking
	require.NoError(t, js.Startup())
	require.ErrorIs(t, js.Startup(), ErrAlreadyStarted)
	require.Equal(t, 5, js.Workers())

	js.Shutdown()
	js.Shutdown()

	require.True(t, js.IsQuitting())
	require.Equal(t, 0, js.Workers())
	require.ErrorIs(t, js.Startup(), ErrShutdown)
}

func TestJobSystem_Work(t *testing.T) {
	js := newTestSystem(t, 4)
	require.NoError(t, js.Startup())

	wg := &sync.WaitGroup{}
	c := NewCounterTest()

	submitted := make(map[*Job]bool, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		job := NewJob(NewTestJob(c.Inc, wg))
		require.NoError(t, js.QueueNewJob(job))
		submitted[job] = true
	}

	got := drain(t, js, 100, 10*time.Second)

	// we'll get a timeout failure if the jobs weren't executed
	wg.Wait()
	require.Equal(t, 100, c.Count())

	seen := make(map[*Job]bool, len(got))
	for _, job := range got {
		require.False(t, seen[job], "%s retrieved twice", job)
		require.True(t, submitted[job], "%s was never submitted", job)
		seen[job] = true

		require.Equal(t, StatusRetrievedAndRetired, job.Status())
		require.EqualValues(t, 1, job.Executor().(*TestJob).executions.Load())
	}

	require.Nil(t, js.RetrieveCompletedJob())
}

func TestJobSystem_ZeroWorkersNeverComplete(t *testing.T) {
	tests := []struct {
		name     string
		workers  int
		hardware int
	}{
		{name: "configured zero", workers: 0, hardware: 8},
		{name: "auto with a single cpu", workers: AutoWorkers, hardware: 1},
		{name: "any negative value is auto", workers: -7, hardware: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withHardwareParallelism(t, tt.hardware)

			js := newTestSystem(t, tt.workers)
			require.NoError(t, js.Startup())
			require.Equal(t, 0, js.Workers())

			job := NewJob(NewTestJob(nil, nil))
			require.NoError(t, js.QueueNewJob(job))

			time.Sleep(50 * time.Millisecond)

			require.Nil(t, js.RetrieveCompletedJob())
			require.Equal(t, StatusQueued, job.Status())
			require.EqualValues(t, 0, job.Executor().(*TestJob).executions.Load())
		})
	}
}

func TestJobSystem_OutOfOrderCompletion(t *testing.T) {
	t.Run("two workers let the short job finish first", func(t *testing.T) {
		js := newTestSystem(t, 2)
		require.NoError(t, js.Startup())

		x := NewJob(NewTestJob(func() { time.Sleep(500 * time.Millisecond) }, nil))
		y := NewJob(NewTestJob(func() { time.Sleep(time.Millisecond) }, nil))
		require.NoError(t, js.QueueNewJob(x))
		require.NoError(t, js.QueueNewJob(y))

		got := drain(t, js, 2, 5*time.Second)
		require.Same(t, y, got[0])
		require.Same(t, x, got[1])
	})

	t.Run("one worker claims in submission order", func(t *testing.T) {
		rec := &recorder{}
		js := newTestSystem(t, 1, WithObserver(rec))

		x := NewJob(NewTestJob(func() { time.Sleep(100 * time.Millisecond) }, nil))
		y := NewJob(NewTestJob(func() { time.Sleep(time.Millisecond) }, nil))
		require.NoError(t, js.QueueNewJob(x))
		require.NoError(t, js.QueueNewJob(y))
		require.NoError(t, js.Startup())

		drain(t, js, 2, 5*time.Second)

		claims := rec.to(StatusClaimedExecuting)
		require.Len(t, claims, 2)
		require.Equal(t, x.ID(), claims[0].JobID)
		require.Equal(t, y.ID(), claims[1].JobID)
		require.Equal(t, 0, claims[0].WorkerID)
	})
}

func TestJobSystem_ClaimsFollowSubmissionOrder(t *testing.T) {
	rec := &recorder{}
	js := newTestSystem(t, 8, WithObserver(rec))

	const n = 500
	order := make([]ulid.ULID, 0, n)
	for i := 0; i < n; i++ {
		job := NewJob(NewTestJob(nil, nil))
		require.NoError(t, js.QueueNewJob(job))
		order = append(order, job.ID())
	}

	require.NoError(t, js.Startup())
	drain(t, js, n, 10*time.Second)

	claims := rec.to(StatusClaimedExecuting)
	require.Len(t, claims, n)
	for i, c := range claims {
		require.Equal(t, order[i], c.JobID, "claim %d out of submission order", i)
	}
}

func TestJobSystem_ClaimIsExactlyOnce(t *testing.T) {
	rec := &recorder{}
	js := newTestSystem(t, 16, WithObserver(rec))
	require.NoError(t, js.Startup())

	const n = 1000
	jobs := make([]*Job, 0, n)
	for i := 0; i < n; i++ {
		job := NewJob(NewTestJob(nil, nil))
		require.NoError(t, js.QueueNewJob(job))
		jobs = append(jobs, job)
	}

	drain(t, js, n, 10*time.Second)

	claimsPerJob := make(map[ulid.ULID]int, n)
	for _, c := range rec.to(StatusClaimedExecuting) {
		claimsPerJob[c.JobID]++
	}

	for _, job := range jobs {
		require.Equal(t, 1, claimsPerJob[job.ID()], "%s claimed %d times", job, claimsPerJob[job.ID()])
		require.EqualValues(t, 1, job.Executor().(*TestJob).executions.Load())
	}
}

func TestJobSystem_StatusIsMonotonic(t *testing.T) {
	rec := &recorder{}
	js := newTestSystem(t, 4, WithObserver(rec))
	require.NoError(t, js.Startup())

	const n = 200
	jobs := make([]*Job, 0, n)
	for i := 0; i < n; i++ {
		jobs = append(jobs, NewJob(NewTestJob(func() { time.Sleep(100 * time.Microsecond) }, nil)))
	}

	stop := make(chan struct{})
	violations := atomic.Int32{}
	sampler := &sync.WaitGroup{}
	sampler.Add(1)
	go func() {
		defer sampler.Done()
		last := make([]Status, n)
		for {
			select {
			case <-stop:
				return
			default:
			}
			for i, job := range jobs {
				s := job.Status()
				if s < last[i] {
					violations.Add(1)
				}
				last[i] = s
			}
		}
	}()

	for _, job := range jobs {
		require.NoError(t, js.QueueNewJob(job))
	}
	drain(t, js, n, 10*time.Second)

	close(stop)
	sampler.Wait()
	require.Zero(t, violations.Load())

	want := []Status{StatusQueued, StatusClaimedExecuting, StatusCompleted, StatusRetrievedAndRetired}
	for _, job := range jobs {
		history := rec.forJob(job.ID())
		require.Len(t, history, len(want))
		for i, tr := range history {
			assert.Equal(t, want[i], tr.To)
			assert.Equal(t, want[i]-1, tr.From)
		}
		assert.Equal(t, CoordinatorID, history[0].WorkerID)
		assert.Equal(t, CoordinatorID, history[3].WorkerID)
		assert.Equal(t, history[1].WorkerID, history[2].WorkerID)
	}
}

func TestJobSystem_ShutdownWithIdleWorkersIsPrompt(t *testing.T) {
	js := newTestSystem(t, 8)
	require.NoError(t, js.Startup())

	done := make(chan struct{})
	go func() {
		js.Shutdown()
		close(done)
	}()

	select {
	case <-time.After(time.Second):
		t.Fatal("failed because Shutdown is hanging on idle workers")
	case <-done:
	}

	require.Equal(t, 0, js.Workers())
}

func TestJobSystem_ShutdownLetsExecutingJobFinish(t *testing.T) {
	js := newTestSystem(t, 1)
	require.NoError(t, js.Startup())

	started := make(chan struct{})
	job := NewJob(NewTestJob(func() {
		close(started)
		time.Sleep(200 * time.Millisecond)
	}, nil))
	require.NoError(t, js.QueueNewJob(job))

	<-started
	js.Shutdown()

	// Shutdown only returns once the worker reported the job
	require.Equal(t, StatusCompleted, job.Status())
	require.Same(t, job, js.RetrieveCompletedJob())
	require.Equal(t, StatusRetrievedAndRetired, job.Status())
}

func TestJobSystem_ShutdownLeavesQueuedJobsQueued(t *testing.T) {
	js := newTestSystem(t, 1)
	require.NoError(t, js.Startup())

	block := make(chan struct{})
	first := NewJob(NewTestJob(func() { <-block }, nil))
	second := NewJob(NewTestJob(nil, nil))
	require.NoError(t, js.QueueNewJob(first))
	require.Eventually(t, func() bool {
		return first.Status() == StatusClaimedExecuting
	}, time.Second, time.Millisecond)
	require.NoError(t, js.QueueNewJob(second))

	go func() {
		assert.Eventually(t, js.IsQuitting, time.Second, time.Millisecond)
		close(block)
	}()
	js.Shutdown()

	require.Equal(t, StatusCompleted, first.Status())
	require.Equal(t, StatusQueued, second.Status())
	require.Equal(t, 1, js.Stats().Queued)
}

func TestJobSystem_QueueNewJobRejections(t *testing.T) {
	js := newTestSystem(t, 1)

	require.ErrorIs(t, js.QueueNewJob(nil), ErrNilJob)
	require.ErrorIs(t, js.QueueNewJob(NewJob(nil)), ErrNilJob)

	job := NewJob(NewTestJob(nil, nil))
	require.NoError(t, js.QueueNewJob(job))
	require.ErrorIs(t, js.QueueNewJob(job), ErrJobOwned)

	require.NoError(t, js.Startup())
	got := drain(t, js, 1, 5*time.Second)
	require.Same(t, job, got[0])

	// retired jobs cannot come back
	require.ErrorIs(t, js.QueueNewJob(job), ErrJobOwned)

	js.Shutdown()
	late := NewJob(NewTestJob(nil, nil))
	require.ErrorIs(t, js.QueueNewJob(late), ErrShutdown)
	require.Equal(t, StatusCreated, late.Status())
}

func TestJobSystem_BoundedQueueRejectsWhenFull(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumWorkers = 0
	cfg.MaxQueuedJobs = 2

	js, err := New(cfg, WithLogger(slogger))
	require.NoError(t, err)
	t.Cleanup(js.Shutdown)

	require.NoError(t, js.QueueNewJob(NewJob(NewTestJob(nil, nil))))
	require.NoError(t, js.QueueNewJob(NewJob(NewTestJob(nil, nil))))

	overflow := NewJob(NewTestJob(nil, nil))
	require.ErrorIs(t, js.QueueNewJob(overflow), ErrQueueFull)
	require.Equal(t, StatusCreated, overflow.Status())
}

func TestJobSystem_PanickingJobDoesNotKillWorker(t *testing.T) {
	js := newTestSystem(t, 1)
	require.NoError(t, js.Startup())

	bad := NewJob(ExecutorFunc(func() { panic("boom") }))
	good := NewJob(NewTestJob(nil, nil))
	require.NoError(t, js.QueueNewJob(bad))
	require.NoError(t, js.QueueNewJob(good))

	got := drain(t, js, 2, 5*time.Second)
	require.Same(t, bad, got[0])
	require.Same(t, good, got[1])
	require.Equal(t, 1, js.Workers())
}

func TestJobSystem_Stats(t *testing.T) {
	js := newTestSystem(t, 2)

	for i := 0; i < 10; i++ {
		require.NoError(t, js.QueueNewJob(NewJob(NewTestJob(nil, nil))))
	}

	stats := js.Stats()
	require.EqualValues(t, 10, stats.Submitted)
	require.Equal(t, 10, stats.Queued)
	require.Equal(t, 0, stats.Workers)

	require.NoError(t, js.Startup())
	require.Eventually(t, func() bool {
		return js.Stats().AwaitingRetrieval == 10
	}, 5*time.Second, time.Millisecond)

	drain(t, js, 10, time.Second)

	stats = js.Stats()
	require.Equal(t, 2, stats.Workers)
	require.EqualValues(t, 10, stats.Claimed)
	require.EqualValues(t, 10, stats.Completed)
	require.EqualValues(t, 10, stats.Retrieved)
	require.Zero(t, stats.Executing)
	require.Zero(t, stats.Queued)
	require.Zero(t, stats.AwaitingRetrieval)
}

func TestJobSystem_ConcurrentSubmitters(t *testing.T) {
	js := newTestSystem(t, 4)
	require.NoError(t, js.Startup())

	const submitters, perSubmitter = 8, 50
	wg := &sync.WaitGroup{}
	for s := 0; s < submitters; s++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perSubmitter; i++ {
				assert.NoError(t, js.QueueNewJob(NewJob(NewTestJob(nil, nil))))
			}
		}()
	}
	wg.Wait()

	got := drain(t, js, submitters*perSubmitter, 10*time.Second)

	seen := make(map[*Job]bool, len(got))
	for _, job := range got {
		require.False(t, seen[job])
		seen[job] = true
	}
}
