package workflow

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// TerminalStep is the sentinel edge target that ends an execution
// successfully, usable in OnSuccess metadata and in a handler's NextStep.
const TerminalStep = "complete"

// Step is one unit of work in a workflow. Action names a handler in the
// engine's action registry. OnSuccess is declarative metadata describing the
// expected next step; the engine itself advances by array position and only
// branches when a handler result names a NextStep. OnFailure names a failure
// handler invoked at most once per execution, when this step fails.
type Step struct {
	ID        string `yaml:"id" json:"id"`
	Name      string `yaml:"name" json:"name"`
	Action    string `yaml:"action" json:"action"`
	OnSuccess string `yaml:"on_success,omitempty" json:"on_success,omitempty"`
	OnFailure string `yaml:"on_failure,omitempty" json:"on_failure,omitempty"`
}

// Definition is a named, ordered sequence of steps. Definitions are
// registered once at startup and treated as immutable afterward; the engine
// copies them on register so later mutation by the caller has no effect.
type Definition struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Steps       []Step `yaml:"steps" json:"steps"`
	Active      bool   `yaml:"active" json:"active"`
}

// UnmarshalYAML decodes a definition with Active defaulting to true, so
// config files only mention the flag to disable a workflow.
func (d *Definition) UnmarshalYAML(value *yaml.Node) error {
	type plain Definition
	p := plain{Active: true}
	if err := value.Decode(&p); err != nil {
		return err
	}
	*d = Definition(p)
	return nil
}

// Validate checks structural invariants that do not depend on registries.
func (d Definition) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("workflow id cannot be empty")
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("workflow %s has no steps", d.ID)
	}
	seen := make(map[string]struct{}, len(d.Steps))
	for i, step := range d.Steps {
		if strings.TrimSpace(step.ID) == "" {
			return fmt.Errorf("workflow %s: step %d has no id", d.ID, i)
		}
		if _, dup := seen[step.ID]; dup {
			return fmt.Errorf("workflow %s: duplicate step id %s", d.ID, step.ID)
		}
		seen[step.ID] = struct{}{}
		if strings.TrimSpace(step.Action) == "" {
			return fmt.Errorf("workflow %s: step %s has no action", d.ID, step.ID)
		}
	}
	for _, step := range d.Steps {
		if step.OnSuccess == "" || step.OnSuccess == TerminalStep {
			continue
		}
		if _, ok := seen[step.OnSuccess]; !ok {
			return fmt.Errorf("workflow %s: step %s references unknown on_success step %s", d.ID, step.ID, step.OnSuccess)
		}
	}
	return nil
}

// stepIndex returns the array position of a step id, or -1.
func (d Definition) stepIndex(id string) int {
	for i, step := range d.Steps {
		if step.ID == id {
			return i
		}
	}
	return -1
}

// clone copies the definition so registered workflows cannot be mutated
// through the caller's slice.
func (d Definition) clone() Definition {
	cp := d
	cp.Steps = make([]Step, len(d.Steps))
	copy(cp.Steps, d.Steps)
	return cp
}
