package litejob

import (
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"time"
)

// Worker is one goroutine of the pool. It claims a job, runs it to completion
// on its own goroutine, reports it, and sleeps briefly whenever the submitted
// queue is empty. There is no wake-up signal: new work is found by polling.
type Worker struct {
	// the worker's index in the pool
	id int

	// the coordinator that owns this worker
	system *JobSystem

	// closed when the worker's goroutine returns
	done chan struct{}

	log *slog.Logger
}

func newWorker(id int, system *JobSystem, log *slog.Logger) *Worker {
	return &Worker{
		id:     id,
		system: system,
		done:   make(chan struct{}),
		log:    log,
	}
}

// ID returns the worker's 0-based index in the pool.
func (w *Worker) ID() int { return w.id }

func (w *Worker) start() {
	go w.run()
}

func (w *Worker) run() {
	w.log.Info(fmt.Sprintf("starting worker %d", w.id))

	defer func() {
		w.log.Info(fmt.Sprintf("worker %d has been stopped", w.id))
		close(w.done)
	}()

	for !w.system.IsQuitting() {
		job := w.system.claimJob(w.id)
		if job == nil {
			w.idle()
			continue
		}

		w.log.Debug(fmt.Sprintf("worker %d claimed job %s", w.id, job.id))

		w.execute(job)
		w.system.reportCompletedJob(w.id, job)
	}
}

// execute runs the job's executor. A panic is logged and swallowed so the
// worker keeps running; the job is still reported completed.
func (w *Worker) execute(job *Job) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error(fmt.Sprintf("job %s (%s) panicked on worker %d: %v", job.id, job.Kind(), w.id, r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	job.exec.Execute()
}

func (w *Worker) idle() {
	if d := w.system.cfg.IdleInterval; d > 0 {
		time.Sleep(d)
		return
	}
	runtime.Gosched()
}

// join blocks until the worker's goroutine has returned.
func (w *Worker) join() {
	<-w.done
}
