package litejob

import "log/slog"

// Option configures a JobSystem.
type Option func(*JobSystem)

// WithLogger sets the logger used by the coordinator and its workers.
func WithLogger(logger *slog.Logger) Option {
	return func(js *JobSystem) {
		if logger != nil {
			js.log = logger
		}
	}
}

// WithObserver registers an observer for job status transitions.
func WithObserver(o Observer) Option {
	return func(js *JobSystem) {
		if o != nil {
			js.observers = append(js.observers, o)
		}
	}
}
