package queue

import (
	"time"

	"github.com/google/uuid"
	automation "github.com/livingstone45/stayspot-sub007"
)

// Status tracks a job through the queue. Transitions are
// waiting -> active -> {completed | waiting (retry) | failed}; an active job
// whose lease expires is reported stalled and re-delivered as waiting.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusStalled   Status = "stalled"
)

// Job is one durable, retryable unit of work. The ID doubles as the
// idempotency key: enqueueing the same ID twice never creates a second
// record. Attempts increments each time the job is activated; handlers must
// tolerate re-invocation with the same payload.
type Job struct {
	ID          string              `json:"id"`
	Type        string              `json:"type"`
	Payload     automation.Payload  `json:"payload"`
	Priority    automation.Priority `json:"priority"`
	Attempts    int                 `json:"attempts"`
	MaxAttempts int                 `json:"max_attempts"`
	Status      Status              `json:"status"`
	LastError   string              `json:"last_error,omitempty"`
	ReadyAt     time.Time           `json:"ready_at"`
	LeaseUntil  time.Time           `json:"lease_until,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
	CompletedAt time.Time           `json:"completed_at,omitempty"`

	Context automation.RequestContext `json:"context,omitempty"`
}

// JobOptions tune one enqueue call.
type JobOptions struct {
	// ID is the idempotency key. Derive it from a logical key
	// (e.g. "email_" + notificationID) so re-submitting the same logical
	// unit is a no-op. Empty means a random ID.
	ID string
	// Priority defaults to automation.DefaultPriority.
	Priority automation.Priority
	// Delay postpones the first delivery.
	Delay time.Duration
	// MaxAttempts overrides the worker default when > 0.
	MaxAttempts int
	// Context carries the actor/request that caused the work.
	Context automation.RequestContext
}

func newJob(jobType string, payload automation.Payload, opts JobOptions, defaultMaxAttempts int) *Job {
	now := time.Now().UTC()
	id := opts.ID
	if id == "" {
		id = jobType + "_" + uuid.NewString()
	}
	priority := opts.Priority
	if !priority.Valid() {
		priority = automation.DefaultPriority
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Job{
		ID:          id,
		Type:        jobType,
		Payload:     payload.Clone(),
		Priority:    priority,
		MaxAttempts: maxAttempts,
		Status:      StatusWaiting,
		ReadyAt:     now.Add(opts.Delay),
		CreatedAt:   now,
		UpdatedAt:   now,
		Context:     opts.Context,
	}
}

// Stats holds per-state job counts for one job type.
type Stats struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Add accumulates counts, for whole-queue totals.
func (s Stats) Add(other Stats) Stats {
	s.Waiting += other.Waiting
	s.Active += other.Active
	s.Completed += other.Completed
	s.Failed += other.Failed
	return s
}
