package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	automation "github.com/livingstone45/stayspot-sub007"
	"github.com/livingstone45/stayspot-sub007/runner"
)

// HandlerFunc processes one job attempt. A nil return completes the job;
// an error schedules a retry until the attempt budget runs out.
type HandlerFunc func(ctx context.Context, job *Job) error

// Publisher receives escalation events when high-priority work is lost.
// trigger.Dispatcher satisfies it.
type Publisher interface {
	Publish(ctx context.Context, trigger string, data automation.Payload, rc automation.RequestContext)
}

// Hooks observe terminal job outcomes. All callbacks are optional and run
// on worker goroutines; keep them fast.
type Hooks struct {
	OnCompleted func(job *Job)
	OnFailed    func(job *Job)
	OnStalled   func(job *Job)
}

type registration struct {
	handler     HandlerFunc
	concurrency int
}

// Worker polls a Store and runs registered handlers with bounded per-type
// concurrency. One Worker instance serves one queue domain (notification,
// property, sync); each domain gets its own store prefix.
type Worker struct {
	name  string
	store Store

	logger    automation.Logger
	publisher Publisher
	hooks     Hooks

	handlers map[string]registration

	pollInterval    time.Duration
	leaseDuration   time.Duration
	jobTimeout      time.Duration
	maxAttempts     int
	backoff         runner.RetryStrategy
	stalledCheck    time.Duration
	escalateAbove   automation.Priority
	escalateTrigger string

	paused  atomic.Bool
	started bool

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	completedCount atomic.Int64
	failedCount    atomic.Int64
}

// NewWorker builds a worker for the named queue over store.
func NewWorker(name string, store Store, opts ...Option) *Worker {
	w := &Worker{
		name:            name,
		store:           store,
		logger:          automation.NewFmtLogger(nil),
		handlers:        make(map[string]registration),
		pollInterval:    time.Second,
		leaseDuration:   5 * time.Minute,
		jobTimeout:      2 * time.Minute,
		maxAttempts:     3,
		backoff:         runner.ExponentialBackoffStrategy{Base: 5 * time.Second, Max: 5 * time.Minute},
		stalledCheck:    30 * time.Second,
		escalateAbove:   automation.PriorityHigh,
		escalateTrigger: "system.error",
	}
	for _, o := range opts {
		if o != nil {
			o(w)
		}
	}
	return w
}

// Name returns the queue name.
func (w *Worker) Name() string { return w.name }

// RegisterHandler binds a handler to a job type with a fixed number of
// polling goroutines. Registration must happen before Start.
func (w *Worker) RegisterHandler(jobType string, handler HandlerFunc, concurrency int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return fmt.Errorf("queue %s: cannot register %q after start", w.name, jobType)
	}
	if jobType == "" {
		return fmt.Errorf("queue %s: job type is required", w.name)
	}
	if handler == nil {
		return fmt.Errorf("queue %s: handler for %q is required", w.name, jobType)
	}
	if _, ok := w.handlers[jobType]; ok {
		return fmt.Errorf("queue %s: job type %q already registered", w.name, jobType)
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	w.handlers[jobType] = registration{handler: handler, concurrency: concurrency}
	return nil
}

// AddJob enqueues a payload for jobType. When opts.ID names a job that is
// already stored the stored job is returned unchanged.
func (w *Worker) AddJob(ctx context.Context, jobType string, payload automation.Payload, opts JobOptions) (*Job, error) {
	w.mu.Lock()
	_, ok := w.handlers[jobType]
	w.mu.Unlock()
	if !ok {
		return nil, automation.ConfigError(automation.ErrJobTypeUnknown,
			fmt.Sprintf("unknown job type %q on queue %s", jobType, w.name),
			map[string]any{"job_type": jobType, "queue": w.name})
	}

	job := newJob(jobType, payload, opts, w.maxAttempts)
	stored, existing, err := w.store.Enqueue(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("queue %s: enqueue %s: %w", w.name, job.ID, err)
	}
	if existing {
		w.logger.Debug("queue %s: job %s already enqueued, skipping", w.name, stored.ID)
	}
	return stored, nil
}

// Start launches the polling goroutines and the stalled-job janitor.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return fmt.Errorf("queue %s: already started", w.name)
	}
	if len(w.handlers) == 0 {
		return fmt.Errorf("queue %s: no handlers registered", w.name)
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.started = true

	for jobType, reg := range w.handlers {
		for i := 0; i < reg.concurrency; i++ {
			w.wg.Add(1)
			go w.poll(runCtx, jobType, reg.handler)
		}
	}
	w.wg.Add(1)
	go w.janitor(runCtx)

	w.logger.Info("queue %s: started with %d job types", w.name, len(w.handlers))
	return nil
}

// Stop cancels polling and waits for in-flight handlers to return.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.started = false
	cancel := w.cancel
	w.mu.Unlock()

	cancel()
	w.wg.Wait()
	w.logger.Info("queue %s: stopped", w.name)
}

// Pause stops dequeuing new jobs. In-flight jobs finish normally and
// enqueues still land in the store.
func (w *Worker) Pause() {
	w.paused.Store(true)
	w.logger.Info("queue %s: paused", w.name)
}

// Resume re-enables dequeuing after a Pause.
func (w *Worker) Resume() {
	w.paused.Store(false)
	w.logger.Info("queue %s: resumed", w.name)
}

// Paused reports whether dequeuing is currently suspended.
func (w *Worker) Paused() bool { return w.paused.Load() }

// GetStats returns per-type counts plus a "total" rollup.
func (w *Worker) GetStats(ctx context.Context) (map[string]Stats, error) {
	stats, err := w.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("queue %s: stats: %w", w.name, err)
	}
	var total Stats
	for _, st := range stats {
		total = total.Add(st)
	}
	out := make(map[string]Stats, len(stats)+1)
	for t, st := range stats {
		out[t] = st
	}
	out["total"] = total
	return out, nil
}

// RemoveJob withdraws a waiting job. Returns false when the job is gone or
// already active.
func (w *Worker) RemoveJob(ctx context.Context, id string) (bool, error) {
	return w.store.RemoveWaiting(ctx, id)
}

// CleanupOldJobs evicts completed jobs older than daysOld days and failed
// jobs older than the 30-day retention window.
func (w *Worker) CleanupOldJobs(ctx context.Context, daysOld int) (int, error) {
	if daysOld <= 0 {
		daysOld = 1
	}
	now := time.Now().UTC()
	completedBefore := now.AddDate(0, 0, -daysOld)
	failedBefore := now.AddDate(0, 0, -30)
	removed, err := w.store.Cleanup(ctx, completedBefore, failedBefore)
	if err != nil {
		return removed, fmt.Errorf("queue %s: cleanup: %w", w.name, err)
	}
	if removed > 0 {
		w.logger.Info("queue %s: cleaned up %d old jobs", w.name, removed)
	}
	return removed, nil
}

func (w *Worker) poll(ctx context.Context, jobType string, handler HandlerFunc) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		if !w.paused.Load() {
			job, err := w.store.Acquire(ctx, jobType, time.Now().UTC(), time.Now().UTC().Add(w.leaseDuration))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				w.logger.Error("queue %s: acquire %s: %v", w.name, jobType, err)
			} else if job != nil {
				w.process(ctx, job, handler)
				// Drain the backlog before idling again.
				continue
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) process(ctx context.Context, job *Job, handler HandlerFunc) {
	log := w.logger
	if fl, ok := log.(automation.FieldsLogger); ok {
		log = fl.WithFields(map[string]any{
			"queue":    w.name,
			"job_id":   job.ID,
			"job_type": job.Type,
			"attempt":  job.Attempts,
		})
	}
	log.Debug("queue %s: processing job %s (attempt %d/%d)", w.name, job.ID, job.Attempts, job.MaxAttempts)

	attempt := runner.NewHandler(runner.WithTimeout(w.jobTimeout))
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("job handler panicked: %v", r)
			}
		}()
		return attempt.Run(ctx, func(ctx context.Context) error {
			return handler(ctx, job)
		})
	}()

	if err == nil {
		if cerr := w.store.Complete(ctx, job); cerr != nil {
			log.Error("queue %s: complete job %s: %v", w.name, job.ID, cerr)
			return
		}
		w.completedCount.Add(1)
		log.Debug("queue %s: job %s completed", w.name, job.ID)
		if w.hooks.OnCompleted != nil {
			w.hooks.OnCompleted(job)
		}
		return
	}

	job.LastError = err.Error()
	if job.Attempts >= job.MaxAttempts {
		w.fail(ctx, job, log, err)
		return
	}

	delay := w.backoff.SleepDuration(job.Attempts-1, err)
	readyAt := time.Now().UTC().Add(delay)
	if rerr := w.store.Retry(ctx, job, readyAt); rerr != nil {
		log.Error("queue %s: retry job %s: %v", w.name, job.ID, rerr)
		return
	}
	log.Warn("queue %s: job %s failed (attempt %d/%d), retrying in %s: %v",
		w.name, job.ID, job.Attempts, job.MaxAttempts, delay, err)
}

func (w *Worker) fail(ctx context.Context, job *Job, log automation.Logger, cause error) {
	if ferr := w.store.Fail(ctx, job); ferr != nil {
		log.Error("queue %s: fail job %s: %v", w.name, job.ID, ferr)
		return
	}
	w.failedCount.Add(1)
	log.Error("queue %s: job %s exhausted %d attempts: %v", w.name, job.ID, job.Attempts, cause)
	if w.hooks.OnFailed != nil {
		w.hooks.OnFailed(job)
	}

	if w.publisher != nil && job.Priority <= w.escalateAbove {
		w.publisher.Publish(ctx, w.escalateTrigger, automation.Payload{
			"source":   "queue",
			"queue":    w.name,
			"jobId":    job.ID,
			"jobType":  job.Type,
			"attempts": job.Attempts,
			"error":    cause.Error(),
		}, job.Context)
	}
}

func (w *Worker) janitor(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.stalledCheck)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		stalled, err := w.store.ReclaimStalled(ctx, time.Now().UTC())
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue %s: reclaim stalled: %v", w.name, err)
			continue
		}
		for _, job := range stalled {
			w.logger.Warn("queue %s: job %s stalled, re-queued for delivery", w.name, job.ID)
			if w.hooks.OnStalled != nil {
				w.hooks.OnStalled(job)
			}
		}
	}
}

// Counters returns the in-process completed/failed tallies since Start.
func (w *Worker) Counters() (completed, failed int64) {
	return w.completedCount.Load(), w.failedCount.Load()
}
