package audit

import (
	"context"
	"sync"
	"time"

	automation "github.com/livingstone45/stayspot-sub007"
)

// Actions recorded by the automation core.
const (
	ActionTriggerPublished = "trigger_published"
	ActionWorkflowStart    = "workflow_start"
	ActionWorkflowComplete = "workflow_complete"
)

// Entry is one immutable audit record. The log is append-only; entries are
// never updated or rewritten.
type Entry struct {
	ID          int64                     `json:"id,omitempty"`
	Action      string                    `json:"action"`
	EntityType  string                    `json:"entity_type"`
	EntityID    string                    `json:"entity_id"`
	ExecutionID string                    `json:"execution_id,omitempty"`
	Details     automation.Payload        `json:"details,omitempty"`
	Context     automation.RequestContext `json:"context"`
	CreatedAt   time.Time                 `json:"created_at"`
}

// Log is the durable append-only audit store. Append must be safe for
// concurrent use; workflow executions append from independent goroutines.
type Log interface {
	Append(ctx context.Context, entry Entry) error
	ByExecution(ctx context.Context, executionID string) ([]Entry, error)
	ByAction(ctx context.Context, action string, limit int) ([]Entry, error)
}

// InMemoryLog keeps entries in memory. Useful for tests and single-process
// setups that do not need durability.
type InMemoryLog struct {
	mu      sync.RWMutex
	nextID  int64
	entries []Entry
}

// NewInMemoryLog builds an empty in-memory log.
func NewInMemoryLog() *InMemoryLog {
	return &InMemoryLog{}
}

func (l *InMemoryLog) Append(_ context.Context, entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	entry.ID = l.nextID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	l.entries = append(l.entries, entry)
	return nil
}

func (l *InMemoryLog) ByExecution(_ context.Context, executionID string) ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Entry
	for _, e := range l.entries {
		if e.ExecutionID == executionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *InMemoryLog) ByAction(_ context.Context, action string, limit int) ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Entry
	for _, e := range l.entries {
		if e.Action == action {
			out = append(out, e)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// Len reports the number of appended entries.
func (l *InMemoryLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// All returns a copy of every entry in append order.
func (l *InMemoryLog) All() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}
