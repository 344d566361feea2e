package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	automation "github.com/livingstone45/stayspot-sub007"
	"github.com/livingstone45/stayspot-sub007/runner"

	rcron "github.com/robfig/cron/v3"
)

// Task is one recurring job's body. The context carries the configured
// per-run timeout.
type Task func(ctx context.Context) error

// JobStatus reports one registered job.
type JobStatus struct {
	Name       string    `json:"name"`
	Expression string    `json:"expression"`
	Running    bool      `json:"running"`
	LastRun    time.Time `json:"last_run,omitempty"`
	NextRun    time.Time `json:"next_run,omitempty"`
	Runs       int       `json:"runs"`
	Failures   int       `json:"failures"`
	Skips      int       `json:"skips"`
	LastError  string    `json:"last_error,omitempty"`
}

// Scheduler fires named recurring jobs on cron expressions. Expressions are
// opaque here; parsing and timing belong to the underlying cron runtime.
// Each job's task runs on its own goroutine per tick, so a slow or stuck job
// never delays another job's next tick. Overlap policy: a tick that fires
// while the previous run of the same job is still in flight is skipped and
// counted, never queued.
type Scheduler struct {
	mu           sync.Mutex
	cron         *rcron.Cron
	location     *time.Location
	parser       Parser
	logger       automation.Logger
	errorHandler func(error)
	jobTimeout   time.Duration
	jobRetries   int
	retryDelay   runner.RetryStrategy

	started bool
	jobs    map[string]*job
	order   []string
}

type job struct {
	name    string
	expr    string
	task    Task
	entryID rcron.EntryID
	sched   *Scheduler

	mu       sync.Mutex
	inFlight bool
	lastRun  time.Time
	lastErr  error
	runs     int
	failures int
	skips    int
}

// New creates a scheduler with the provided options.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		location:   time.Local,
		parser:     DefaultParser,
		jobs:       make(map[string]*job),
		retryDelay: runner.NoDelayStrategy{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = automation.NormalizeLogger(s.logger)
	if s.errorHandler == nil {
		s.errorHandler = func(err error) {
			s.logger.Error("scheduled job error: %v", err)
		}
	}
	s.cron = rcron.New(s.build()...)
	return s
}

// Schedule registers a named recurring job. The expression is handed to the
// cron runtime unparsed; an invalid expression surfaces here as an error.
func (s *Scheduler) Schedule(name, expression string, task Task) error {
	if name == "" {
		return fmt.Errorf("job name cannot be empty")
	}
	if expression == "" {
		return fmt.Errorf("cron expression cannot be empty")
	}
	if task == nil {
		return fmt.Errorf("job task cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job already scheduled: %s", name)
	}

	j := &job{name: name, expr: expression, task: task, sched: s}
	entryID, err := s.cron.AddJob(expression, rcron.FuncJob(j.tick))
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}
	j.entryID = entryID
	s.jobs[name] = j
	s.order = append(s.order, name)
	s.logger.Info("job scheduled: %s (%s)", name, expression)
	return nil
}

// Start begins firing all registered jobs.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.cron.Start()
	s.started = true
	s.logger.Info("scheduler started: %d jobs", len(s.jobs))
}

// Stop stops firing ticks for every job uniformly. In-flight task runs are
// not interrupted; Stop returns without waiting for them.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.cron.Stop()
	s.started = false
	s.logger.Info("scheduler stopped")
}

// Running reports whether the scheduler is firing ticks.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Status reports every job in registration order.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	started := s.started
	names := make([]string, len(s.order))
	copy(names, s.order)
	jobs := make([]*job, 0, len(names))
	for _, name := range names {
		jobs = append(jobs, s.jobs[name])
	}
	s.mu.Unlock()

	out := make([]JobStatus, 0, len(jobs))
	for _, j := range jobs {
		st := j.status()
		st.Running = started
		if started {
			st.NextRun = s.cron.Entry(j.entryID).Next
		}
		out = append(out, st)
	}
	return out
}

// tick runs one firing of the job. Failures are reported to the error
// handler and recorded on the job; they never cancel future ticks and never
// reach any other job.
func (j *job) tick() {
	j.mu.Lock()
	if j.inFlight {
		j.skips++
		j.mu.Unlock()
		j.sched.logger.Warn("job still running, skipping tick: %s", j.name)
		return
	}
	j.inFlight = true
	j.lastRun = time.Now()
	j.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("job panic: %v", r)
			j.recordResult(err)
			j.sched.errorHandler(fmt.Errorf("scheduled job failed: %s: %w", j.name, err))
		}
		j.mu.Lock()
		j.inFlight = false
		j.mu.Unlock()
	}()

	s := j.sched
	s.logger.Info("starting scheduled job: %s", j.name)

	h := runner.NewHandler(
		runner.WithTimeout(s.jobTimeout),
		runner.WithMaxRetries(s.jobRetries),
		runner.WithRetryStrategy(s.retryDelay),
		runner.WithErrorHandler(func(err error) {
			s.logger.Warn("scheduled job attempt failed: %s: %v", j.name, err)
		}),
	)
	err := h.Run(context.Background(), func(ctx context.Context) error {
		return j.task(ctx)
	})
	j.recordResult(err)

	if err != nil {
		s.errorHandler(fmt.Errorf("scheduled job failed: %s: %w", j.name, err))
		return
	}
	s.logger.Info("completed scheduled job: %s", j.name)
}

func (j *job) recordResult(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.runs++
	j.lastErr = err
	if err != nil {
		j.failures++
	}
}

func (j *job) status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	st := JobStatus{
		Name:       j.name,
		Expression: j.expr,
		LastRun:    j.lastRun,
		Runs:       j.runs,
		Failures:   j.failures,
		Skips:      j.skips,
	}
	if j.lastErr != nil {
		st.LastError = j.lastErr.Error()
	}
	return st
}
