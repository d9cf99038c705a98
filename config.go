package litejob

import (
	"fmt"
	"runtime"
	"time"

	"github.com/go-playground/validator/v10"
)

// AutoWorkers asks the job system to size the pool from the hardware: one
// worker per logical CPU minus one, leaving a core for the submitting thread.
const AutoWorkers = -1

// hardwareParallelism reports the number of logical CPUs; tests override it.
var hardwareParallelism = runtime.NumCPU

// Config holds configuration for the JobSystem.
type Config struct {
	// NumWorkers is the number of worker goroutines. Any negative value means
	// AutoWorkers. Zero is accepted: jobs are then queued but never run.
	NumWorkers int `validate:"lte=1024"`

	// IdleInterval is how long a worker sleeps after finding the submitted
	// queue empty.
	IdleInterval time.Duration `validate:"gte=0s,lte=1s"`

	// MaxQueuedJobs bounds the submitted queue. Zero means unbounded.
	MaxQueuedJobs int `validate:"gte=0"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		NumWorkers:    AutoWorkers,
		IdleInterval:  time.Microsecond,
		MaxQueuedJobs: 0,
	}
}

var validate = validator.New()

// Validate checks the configuration's bounds.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("litejob: invalid config: %w", err)
	}
	return nil
}

// WorkerCount resolves NumWorkers into the number of workers to start.
// Negative values become hardware parallelism minus one, never below zero.
func (c Config) WorkerCount() int {
	n := c.NumWorkers
	if n < 0 {
		n = hardwareParallelism() - 1
	}
	if n < 0 {
		n = 0
	}
	return n
}
