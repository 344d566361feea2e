package workflow

import (
	"time"

	"github.com/google/uuid"
	automation "github.com/livingstone45/stayspot-sub007"
)

// ExecutionStatus tracks one workflow run. Transitions are strictly
// pending -> running -> {completed | failed}; terminal states never resume.
type ExecutionStatus string

const (
	StatusPending   ExecutionStatus = "pending"
	StatusRunning   ExecutionStatus = "running"
	StatusCompleted ExecutionStatus = "completed"
	StatusFailed    ExecutionStatus = "failed"
)

// ResultStatus is the outcome a step handler reports.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultFailed  ResultStatus = "failed"
)

// Result is the structured value an action handler returns. NextStep names
// another step id to resume at, the engine's only branching primitive.
type Result struct {
	Status   ResultStatus       `json:"status"`
	Message  string             `json:"message,omitempty"`
	Error    string             `json:"error,omitempty"`
	NextStep string             `json:"next_step,omitempty"`
	Fields   automation.Payload `json:"fields,omitempty"`
}

// Success builds a success result with an optional message.
func Success(message string) *Result {
	return &Result{Status: ResultSuccess, Message: message}
}

// Failure builds a failed result carrying the error text.
func Failure(errText string) *Result {
	return &Result{Status: ResultFailed, Error: errText}
}

// WithField attaches one output field, returning the same result for chaining.
func (r *Result) WithField(key string, value any) *Result {
	if r.Fields == nil {
		r.Fields = automation.Payload{}
	}
	r.Fields[key] = value
	return r
}

// WithNextStep sets the branching target.
func (r *Result) WithNextStep(stepID string) *Result {
	r.NextStep = stepID
	return r
}

// StepRecord is the trace of one step attempt. The record list on an
// execution grows monotonically and is never rewritten.
type StepRecord struct {
	StepID      string          `json:"step_id"`
	Name        string          `json:"name"`
	Action      string          `json:"action"`
	Result      *Result         `json:"result,omitempty"`
	Status      ExecutionStatus `json:"status"`
	Error       string          `json:"error,omitempty"`
	CompletedAt time.Time       `json:"completed_at"`
}

// Execution is the record of one supervised workflow run. It is created at
// execution start and mutated only by the engine goroutine running it.
type Execution struct {
	ID          string                    `json:"id"`
	WorkflowID  string                    `json:"workflow_id"`
	Data        automation.Payload        `json:"data"`
	Context     automation.RequestContext `json:"context"`
	Steps       []StepRecord              `json:"steps"`
	Status      ExecutionStatus           `json:"status"`
	StartedAt   time.Time                 `json:"started_at"`
	CompletedAt time.Time                 `json:"completed_at,omitempty"`
	Result      *Result                   `json:"result,omitempty"`
	Error       string                    `json:"error,omitempty"`
}

func newExecution(workflowID string, data automation.Payload, rc automation.RequestContext) *Execution {
	// Each execution owns its data: step output fields merge into it, and
	// concurrent executions of the same trigger must not see each other's.
	d := data.Clone()
	if d == nil {
		d = automation.Payload{}
	}
	return &Execution{
		ID:         "wf_" + uuid.NewString(),
		WorkflowID: workflowID,
		Data:       d,
		Context:    rc,
		Status:     StatusPending,
		StartedAt:  time.Now().UTC(),
	}
}

// Duration reports wall-clock run time once the execution is terminal.
func (e *Execution) Duration() time.Duration {
	if e.CompletedAt.IsZero() {
		return 0
	}
	return e.CompletedAt.Sub(e.StartedAt)
}

func (e *Execution) record(step Step, result *Result, status ExecutionStatus, errText string) StepRecord {
	rec := StepRecord{
		StepID:      step.ID,
		Name:        step.Name,
		Action:      step.Action,
		Result:      result,
		Status:      status,
		Error:       errText,
		CompletedAt: time.Now().UTC(),
	}
	e.Steps = append(e.Steps, rec)
	return rec
}

func (e *Execution) complete(result *Result) {
	e.Status = StatusCompleted
	e.Result = result
	e.CompletedAt = time.Now().UTC()
}

func (e *Execution) fail(errText string) {
	e.Status = StatusFailed
	e.Error = errText
	e.CompletedAt = time.Now().UTC()
}
