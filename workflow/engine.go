package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	automation "github.com/livingstone45/stayspot-sub007"
	"github.com/livingstone45/stayspot-sub007/audit"
)

// Observer receives execution lifecycle notifications. Optional.
type Observer interface {
	StepCompleted(exec *Execution, step Step, rec StepRecord)
	WorkflowCompleted(exec *Execution)
}

// Engine holds workflow definitions, the trigger binding table, and the
// action registry, and supervises executions. Registries are populated once
// at startup and treated as read-mostly afterward; independent executions
// run concurrently sharing nothing but the registries and the audit log.
type Engine struct {
	mu        sync.RWMutex
	workflows map[string]Definition
	bindings  map[string][]string

	actions     *ActionRegistry
	auditLog    audit.Log
	logger      automation.Logger
	observer    Observer
	stepTimeout time.Duration
	eager       bool
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithAuditLog sets the durable log for start/complete entries.
func WithAuditLog(log audit.Log) EngineOption {
	return func(e *Engine) {
		e.auditLog = log
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger automation.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithObserver attaches an execution observer.
func WithObserver(obs Observer) EngineOption {
	return func(e *Engine) {
		e.observer = obs
	}
}

// WithStepTimeout caps each step handler's run time. Zero disables the cap.
func WithStepTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.stepTimeout = d
	}
}

// WithEagerValidation toggles registration-time action resolution. On by
// default; turning it off defers unresolved-action detection to execution
// time, where it aborts the run as a configuration failure.
func WithEagerValidation(eager bool) EngineOption {
	return func(e *Engine) {
		e.eager = eager
	}
}

// NewEngine builds an engine around the given action registry.
func NewEngine(actions *ActionRegistry, opts ...EngineOption) *Engine {
	if actions == nil {
		actions = NewActionRegistry()
	}
	e := &Engine{
		workflows: make(map[string]Definition),
		bindings:  make(map[string][]string),
		actions:   actions,
		eager:     true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	e.logger = automation.NormalizeLogger(e.logger)
	return e
}

// RegisterWorkflow upserts a definition. Registration validates the
// definition structurally and, unless eager validation is disabled, resolves
// every step action against the registry so a misconfigured workflow fails
// at startup rather than on first execution.
func (e *Engine) RegisterWorkflow(id string, def Definition) error {
	def.ID = id
	if err := def.Validate(); err != nil {
		return err
	}
	if e.eager {
		for _, step := range def.Steps {
			if _, ok := e.actions.Lookup(step.Action); !ok {
				return automation.ConfigError(automation.ErrActionNotFound,
					fmt.Sprintf("workflow %s: step %s references unregistered action %s", id, step.ID, step.Action),
					map[string]any{"workflow_id": id, "step_id": step.ID, "action": step.Action})
			}
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.workflows[id] = def.clone()
	e.logger.Info("workflow registered: %s (%d steps)", id, len(def.Steps))
	return nil
}

// RegisterTriggerBinding appends workflowID to the workflows bound to
// triggerName. Many-to-many: a trigger may bind several workflows and a
// workflow may be bound by several triggers.
func (e *Engine) RegisterTriggerBinding(triggerName, workflowID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bindings[triggerName] = append(e.bindings[triggerName], workflowID)
	e.logger.Info("trigger bound: %s -> %s", triggerName, workflowID)
}

// SetWorkflowActive toggles a registered workflow. Inactive workflows stay
// registered but refuse execution.
func (e *Engine) SetWorkflowActive(id string, active bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	def, ok := e.workflows[id]
	if !ok {
		return automation.ConfigError(automation.ErrWorkflowNotFound,
			fmt.Sprintf("workflow not found: %s", id),
			map[string]any{"workflow_id": id})
	}
	def.Active = active
	e.workflows[id] = def
	return nil
}

// Workflow returns a copy of a registered definition.
func (e *Engine) Workflow(id string) (Definition, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	def, ok := e.workflows[id]
	if !ok {
		return Definition{}, false
	}
	return def.clone(), true
}

// BoundWorkflows returns the workflow ids bound to a trigger.
func (e *Engine) BoundWorkflows(triggerName string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, len(e.bindings[triggerName]))
	copy(ids, e.bindings[triggerName])
	return ids
}

// HandleTrigger executes every workflow bound to triggerName, sequentially.
// Per-workflow failures (configuration errors and failed executions alike)
// are logged and do not block the remaining bound workflows.
func (e *Engine) HandleTrigger(ctx context.Context, triggerName string, data automation.Payload, rc automation.RequestContext) error {
	ids := e.BoundWorkflows(triggerName)
	if len(ids) == 0 {
		e.logger.Debug("no workflows bound for trigger: %s", triggerName)
		return nil
	}

	e.logger.Info("handling trigger: %s (%d workflows)", triggerName, len(ids))
	for _, id := range ids {
		exec, err := e.ExecuteWorkflow(ctx, id, data, rc.WithTrigger(triggerName))
		if err != nil {
			e.logger.Error("workflow %s failed for trigger %s: %v", id, triggerName, err)
			continue
		}
		if exec.Status == StatusFailed {
			e.logger.Warn("workflow %s completed with failure for trigger %s: %s", id, triggerName, exec.Error)
		}
	}
	return nil
}

// ExecuteWorkflow runs one workflow to completion or failure. Business-level
// step failures never surface as an error; they are captured in the
// execution record. Only configuration errors (unknown or inactive workflow)
// return an error. Steps execute strictly one at a time.
func (e *Engine) ExecuteWorkflow(ctx context.Context, workflowID string, data automation.Payload, rc automation.RequestContext) (*Execution, error) {
	e.mu.RLock()
	def, ok := e.workflows[workflowID]
	e.mu.RUnlock()

	if !ok {
		return nil, automation.ConfigError(automation.ErrWorkflowNotFound,
			fmt.Sprintf("workflow not found: %s", workflowID),
			map[string]any{"workflow_id": workflowID})
	}
	if !def.Active {
		return nil, automation.ConfigError(automation.ErrWorkflowInactive,
			fmt.Sprintf("workflow is inactive: %s", workflowID),
			map[string]any{"workflow_id": workflowID})
	}

	exec := newExecution(workflowID, data, rc)
	e.logger.Info("starting workflow execution: %s (%s)", workflowID, exec.ID)

	e.logStart(ctx, exec)
	defer func() {
		e.logCompletion(ctx, exec)
		if e.observer != nil {
			e.observer.WorkflowCompleted(exec)
		}
		e.logger.Info("workflow execution finished: %s (%s) status=%s", workflowID, exec.ID, exec.Status)
	}()

	e.runSteps(ctx, def, exec)
	return exec, nil
}

// runSteps walks the step graph. Iteration starts at array index 0 and
// advances linearly; a handler result naming a NextStep jumps to that step's
// index. A visited set guards against cycles introduced through NextStep.
func (e *Engine) runSteps(ctx context.Context, def Definition, exec *Execution) {
	visited := make(map[int]bool, len(def.Steps))

	for i := 0; i < len(def.Steps); i++ {
		if visited[i] {
			exec.fail(fmt.Sprintf("workflow step cycle detected at step %s", def.Steps[i].ID))
			return
		}
		visited[i] = true

		step := def.Steps[i]
		exec.Status = StatusRunning
		e.logger.Debug("executing step: %s (%s)", step.ID, step.Name)

		action, ok := e.actions.Lookup(step.Action)
		if !ok {
			// Fatal configuration error: abort immediately, no retry.
			errText := fmt.Sprintf("action handler not found: %s", step.Action)
			exec.record(step, nil, StatusFailed, errText)
			exec.fail(errText)
			return
		}

		result, err := e.invokeAction(ctx, action, exec)
		if err != nil {
			rec := exec.record(step, nil, StatusFailed, err.Error())
			e.notifyStep(exec, step, rec)
			e.runFailureHandler(ctx, step, exec)
			exec.fail(err.Error())
			return
		}
		if result == nil {
			result = Success("")
		}

		status := StatusCompleted
		if result.Status == ResultFailed {
			status = StatusFailed
		}
		rec := exec.record(step, result, status, result.Error)
		e.notifyStep(exec, step, rec)

		if result.Status == ResultFailed {
			e.runFailureHandler(ctx, step, exec)
			exec.fail(result.Error)
			return
		}

		// Output fields flow into the data later steps see.
		for k, v := range result.Fields {
			exec.Data[k] = v
		}

		if result.NextStep != "" {
			if result.NextStep == TerminalStep {
				exec.complete(result)
				return
			}
			if idx := def.stepIndex(result.NextStep); idx != -1 {
				i = idx - 1 // loop increment lands on the target
				continue
			}
			e.logger.Warn("step %s requested unknown next step %s, continuing", step.ID, result.NextStep)
		}

		if i == len(def.Steps)-1 {
			exec.complete(result)
			return
		}
	}

	// Defensive: the loop above always terminates through complete or fail.
	if exec.Status == StatusRunning {
		exec.complete(nil)
	}
}

// invokeAction runs a handler under the configured step timeout, translating
// panics into step errors so one bad handler cannot take the process down.
func (e *Engine) invokeAction(ctx context.Context, action ActionFunc, exec *Execution) (result *Result, err error) {
	if e.stepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.stepTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("step handler panic: %v", r)
		}
	}()
	return action(ctx, exec.Data, exec.Context)
}

// runFailureHandler best-effort-invokes the step's failure handler. It fires
// at most once per execution because a failing step terminates the run.
func (e *Engine) runFailureHandler(ctx context.Context, step Step, exec *Execution) {
	if step.OnFailure == "" {
		return
	}
	handler, ok := e.actions.LookupFailure(step.OnFailure)
	if !ok {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("failure handler %s panicked: %v", step.OnFailure, r)
		}
	}()
	if err := handler(ctx, exec.Data, exec.Context); err != nil {
		e.logger.Error("failure handler %s failed: %v", step.OnFailure, err)
	}
}

func (e *Engine) notifyStep(exec *Execution, step Step, rec StepRecord) {
	if e.observer == nil {
		return
	}
	e.observer.StepCompleted(exec, step, rec)
}

func (e *Engine) logStart(ctx context.Context, exec *Execution) {
	if e.auditLog == nil {
		return
	}
	entry := audit.Entry{
		Action:      audit.ActionWorkflowStart,
		EntityType:  "workflow",
		EntityID:    exec.WorkflowID,
		ExecutionID: exec.ID,
		Details: automation.Payload{
			"data":    map[string]any(exec.Data),
			"trigger": exec.Context.Trigger,
		},
		Context:   exec.Context,
		CreatedAt: exec.StartedAt,
	}
	if err := e.auditLog.Append(ctx, entry); err != nil {
		e.logger.Error("failed to log workflow start: %v", err)
	}
}

func (e *Engine) logCompletion(ctx context.Context, exec *Execution) {
	if e.auditLog == nil {
		return
	}
	steps := make([]any, 0, len(exec.Steps))
	for _, rec := range exec.Steps {
		steps = append(steps, map[string]any{
			"step_id": rec.StepID,
			"action":  rec.Action,
			"status":  string(rec.Status),
			"error":   rec.Error,
		})
	}
	entry := audit.Entry{
		Action:      audit.ActionWorkflowComplete,
		EntityType:  "workflow",
		EntityID:    exec.WorkflowID,
		ExecutionID: exec.ID,
		Details: automation.Payload{
			"data":        map[string]any(exec.Data),
			"status":      string(exec.Status),
			"steps":       steps,
			"error":       exec.Error,
			"duration_ms": exec.Duration().Milliseconds(),
		},
		Context: exec.Context,
	}
	if err := e.auditLog.Append(ctx, entry); err != nil {
		e.logger.Error("failed to log workflow completion: %v", err)
	}
}
