package workflow

import (
	"context"
	"fmt"
	"sort"

	automation "github.com/livingstone45/stayspot-sub007"
)

// ActionFunc is the business-logic function a step delegates to.
type ActionFunc func(ctx context.Context, data automation.Payload, rc automation.RequestContext) (*Result, error)

// FailureFunc is a best-effort failure handler. Its own errors are swallowed.
type FailureFunc func(ctx context.Context, data automation.Payload, rc automation.RequestContext) error

// ActionRegistry stores named actions and failure handlers. Populated once
// at startup; read-only afterward, so lookups take no lock.
type ActionRegistry struct {
	actions  map[string]ActionFunc
	failures map[string]FailureFunc
}

// NewActionRegistry creates an empty registry.
func NewActionRegistry() *ActionRegistry {
	return &ActionRegistry{
		actions:  make(map[string]ActionFunc),
		failures: make(map[string]FailureFunc),
	}
}

// Register adds an action by name.
func (r *ActionRegistry) Register(name string, action ActionFunc) error {
	if name == "" || action == nil {
		return nil
	}
	if _, exists := r.actions[name]; exists {
		return fmt.Errorf("action %s already registered", name)
	}
	r.actions[name] = action
	return nil
}

// RegisterFailure adds a failure handler by name.
func (r *ActionRegistry) RegisterFailure(name string, handler FailureFunc) error {
	if name == "" || handler == nil {
		return nil
	}
	if _, exists := r.failures[name]; exists {
		return fmt.Errorf("failure handler %s already registered", name)
	}
	r.failures[name] = handler
	return nil
}

// Lookup retrieves an action by name.
func (r *ActionRegistry) Lookup(name string) (ActionFunc, bool) {
	if r == nil {
		return nil, false
	}
	act, ok := r.actions[name]
	return act, ok
}

// LookupFailure retrieves a failure handler by name.
func (r *ActionRegistry) LookupFailure(name string) (FailureFunc, bool) {
	if r == nil {
		return nil, false
	}
	h, ok := r.failures[name]
	return h, ok
}

// IDs returns sorted action names for deterministic catalogs.
func (r *ActionRegistry) IDs() []string {
	if r == nil || len(r.actions) == 0 {
		return nil
	}
	ids := make([]string, 0, len(r.actions))
	for id := range r.actions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
