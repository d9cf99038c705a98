package litejob

// An Executor performs the work of a job.
//
// Execute runs entirely on a worker goroutine and returns nothing the job
// system looks at. Results, including failures, must be written into the
// executor's own fields and read by the caller after the job is retrieved.
type Executor interface {
	Execute()
}

// The ExecutorFunc type is an adapter to allow the use of
// ordinary functions as an Executor. If f is a function
// with the appropriate signature, ExecutorFunc(f) is an
// Executor that calls f.
type ExecutorFunc func()

// Execute calls fn()
func (fn ExecutorFunc) Execute() {
	fn()
}
