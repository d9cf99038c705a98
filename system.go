package litejob

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jirevwe/litejob/queue"
)

// JobSystem owns a fixed pool of workers and the two queues jobs travel
// through: submitted jobs wait in one until a worker claims them, executed
// jobs wait in the other until the application retrieves them.
//
// The two queue locks are never held at the same time by one operation, and
// neither is held while a job executes.
type JobSystem struct {
	cfg       Config
	log       *slog.Logger
	observers []Observer

	// jobs waiting for a worker
	submitted *queue.Queue[*Job]

	// executed jobs waiting for retrieval
	completed *queue.Queue[*Job]

	// read by every worker on each loop iteration
	quitting atomic.Bool

	// ensure the workers can only be stopped once
	stop sync.Once

	// guards started and workers
	mu      sync.Mutex
	started bool
	workers []*Worker

	submittedCount atomic.Int64
	claimedCount   atomic.Int64
	completedCount atomic.Int64
	retrievedCount atomic.Int64
}

// New validates cfg and builds a JobSystem. No worker runs until Startup.
func New(cfg Config, opts ...Option) (*JobSystem, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	js := &JobSystem{
		cfg:       cfg,
		log:       slog.New(slog.NewTextHandler(os.Stdout, nil)),
		submitted: queue.NewBounded[*Job](cfg.MaxQueuedJobs),
		completed: queue.New[*Job](),
	}

	for _, opt := range opts {
		opt(js)
	}

	return js, nil
}

// Startup spawns the configured number of workers, each immediately polling
// for jobs. It must be called at most once.
func (js *JobSystem) Startup() error {
	js.mu.Lock()
	defer js.mu.Unlock()

	if js.quitting.Load() {
		return ErrShutdown
	}
	if js.started {
		return ErrAlreadyStarted
	}
	js.started = true

	numWorkers := js.cfg.WorkerCount()
	if numWorkers == 0 {
		js.log.Warn("job system resolved to zero workers, submitted jobs will never run",
			slog.Int("configured_workers", js.cfg.NumWorkers),
		)
	}

	js.log.Info("starting job system",
		slog.Int("workers", numWorkers),
		slog.Duration("idle_interval", js.cfg.IdleInterval),
		slog.Int("max_queued_jobs", js.cfg.MaxQueuedJobs),
	)
	js.createWorkers(numWorkers)

	return nil
}

func (js *JobSystem) createWorkers(numWorkers int) {
	js.workers = make([]*Worker, 0, numWorkers)
	for i := 0; i < numWorkers; i++ {
		w := newWorker(i, js, js.log)
		js.workers = append(js.workers, w)
		w.start()
	}
}

// Shutdown raises the quitting flag and blocks until every worker has
// exited. A worker in the middle of a job finishes it, and reports it
// completed, before it notices the flag. Jobs still queued stay queued.
//
// Calling Shutdown more than once is safe; later calls wait for the first.
func (js *JobSystem) Shutdown() {
	js.stop.Do(func() {
		js.log.Info("stopping job system")

		js.mu.Lock()
		js.quitting.Store(true)
		workers := js.workers
		js.workers = nil
		js.mu.Unlock()

		js.destroyAllWorkers(workers)

		js.log.Info("job system has been stopped",
			slog.Int("left_queued", js.submitted.Len()),
			slog.Int("awaiting_retrieval", js.completed.Len()),
		)
	})
}

func (js *JobSystem) destroyAllWorkers(workers []*Worker) {
	for _, w := range workers {
		w.join()
	}
}

// IsQuitting reports whether Shutdown has begun.
func (js *JobSystem) IsQuitting() bool {
	return js.quitting.Load()
}

// Workers returns the number of running workers.
func (js *JobSystem) Workers() int {
	js.mu.Lock()
	defer js.mu.Unlock()
	return len(js.workers)
}

// QueueNewJob appends job to the submitted queue and marks it Queued.
//
// The job must be in the Created state; a job already owned by the system,
// or one that has been retired, is rejected with ErrJobOwned. After Shutdown
// has begun every submission fails with ErrShutdown, and a bounded queue that
// is full rejects with ErrQueueFull.
func (js *JobSystem) QueueNewJob(job *Job) error {
	if job == nil || job.exec == nil {
		return ErrNilJob
	}

	err := js.submitted.Push(job, func(j *Job) error {
		if js.quitting.Load() {
			return ErrShutdown
		}
		if !j.advance(StatusCreated, StatusQueued) {
			return fmt.Errorf("%w: %s", ErrJobOwned, j)
		}
		js.notify(j, StatusCreated, StatusQueued, CoordinatorID)
		return nil
	})
	if err != nil {
		return err
	}

	js.submittedCount.Add(1)
	return nil
}

// RetrieveCompletedJob removes the oldest completed job, marks it retired and
// hands it back to the caller. It returns nil immediately when no job has
// completed; callers poll it, typically once per tick, until it returns nil.
func (js *JobSystem) RetrieveCompletedJob() *Job {
	job, ok := js.completed.PopFront(func(j *Job) {
		j.advance(StatusCompleted, StatusRetrievedAndRetired)
		js.notify(j, StatusCompleted, StatusRetrievedAndRetired, CoordinatorID)
	})
	if !ok {
		return nil
	}

	js.retrievedCount.Add(1)
	return job
}

// claimJob pops the head of the submitted queue for workerID and marks it
// ClaimedExecuting, or returns nil when nothing is queued.
func (js *JobSystem) claimJob(workerID int) *Job {
	job, ok := js.submitted.PopFront(func(j *Job) {
		j.advance(StatusQueued, StatusClaimedExecuting)
		js.notify(j, StatusQueued, StatusClaimedExecuting, workerID)
	})
	if !ok {
		return nil
	}

	js.claimedCount.Add(1)
	return job
}

// reportCompletedJob moves an executed job into the completed queue.
func (js *JobSystem) reportCompletedJob(workerID int, job *Job) {
	err := js.completed.Push(job, func(j *Job) error {
		if !j.advance(StatusClaimedExecuting, StatusCompleted) {
			return fmt.Errorf("%s was not claimed", j)
		}
		js.notify(j, StatusClaimedExecuting, StatusCompleted, workerID)
		return nil
	})
	if err != nil {
		js.log.Error(fmt.Sprintf("worker %d failed to report completed job: %v", workerID, err))
		return
	}

	js.completedCount.Add(1)
}

func (js *JobSystem) notify(j *Job, from, to Status, workerID int) {
	if len(js.observers) == 0 {
		return
	}

	t := Transition{
		JobID:    j.id,
		Kind:     j.Kind(),
		From:     from,
		To:       to,
		WorkerID: workerID,
		At:       time.Now(),
	}
	for _, o := range js.observers {
		o.OnTransition(t)
	}
}
