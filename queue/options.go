package queue

import (
	"time"

	automation "github.com/livingstone45/stayspot-sub007"
	"github.com/livingstone45/stayspot-sub007/runner"
)

type Option func(*Worker)

// WithLogger replaces the fallback logger.
func WithLogger(logger automation.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithPublisher wires the escalation publisher, typically the trigger
// dispatcher.
func WithPublisher(p Publisher) Option {
	return func(w *Worker) {
		w.publisher = p
	}
}

// WithHooks installs outcome callbacks.
func WithHooks(h Hooks) Option {
	return func(w *Worker) {
		w.hooks = h
	}
}

// WithPollInterval sets how long idle pollers sleep between store checks.
func WithPollInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithLeaseDuration sets how long an active job may run before the janitor
// considers it stalled.
func WithLeaseDuration(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.leaseDuration = d
		}
	}
}

// WithJobTimeout bounds a single handler invocation.
func WithJobTimeout(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.jobTimeout = d
		}
	}
}

// WithMaxAttempts sets the default attempt budget for jobs that do not
// override it.
func WithMaxAttempts(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.maxAttempts = n
		}
	}
}

// WithBackoff replaces the retry delay strategy.
func WithBackoff(s runner.RetryStrategy) Option {
	return func(w *Worker) {
		if s != nil {
			w.backoff = s
		}
	}
}

// WithStalledCheckInterval sets the janitor period.
func WithStalledCheckInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.stalledCheck = d
		}
	}
}

// WithEscalation controls the trigger published when a job at or above
// priority exhausts its attempts.
func WithEscalation(trigger string, priority automation.Priority) Option {
	return func(w *Worker) {
		if trigger != "" {
			w.escalateTrigger = trigger
		}
		if priority.Valid() {
			w.escalateAbove = priority
		}
	}
}
