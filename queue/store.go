package queue

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store is the durable backing store for one queue. Implementations must be
// safe for concurrent use; worker goroutines acquire and update jobs in
// parallel.
type Store interface {
	// Enqueue persists a waiting job. When a job with the same ID already
	// exists the call is a no-op and the stored job is returned with
	// existing=true (idempotent enqueue).
	Enqueue(ctx context.Context, job *Job) (stored *Job, existing bool, err error)
	// Acquire activates the highest-priority due waiting job of jobType,
	// increments its attempt count, and sets its stall lease. Returns
	// (nil, nil) when nothing is due.
	Acquire(ctx context.Context, jobType string, now, leaseUntil time.Time) (*Job, error)
	// Complete marks an active job completed.
	Complete(ctx context.Context, job *Job) error
	// Retry moves an active job back to waiting, due at readyAt.
	Retry(ctx context.Context, job *Job, readyAt time.Time) error
	// Fail marks an active job terminally failed. Failed jobs are retained
	// for inspection until Cleanup evicts them.
	Fail(ctx context.Context, job *Job) error
	// Get loads a job by ID.
	Get(ctx context.Context, id string) (*Job, error)
	// RemoveWaiting withdraws a job that has not started yet. Active jobs
	// cannot be removed.
	RemoveWaiting(ctx context.Context, id string) (bool, error)
	// ReclaimStalled re-queues active jobs whose lease expired and returns
	// them so the worker can report them.
	ReclaimStalled(ctx context.Context, now time.Time) ([]*Job, error)
	// Stats counts jobs per type and state.
	Stats(ctx context.Context) (map[string]Stats, error)
	// Cleanup evicts completed jobs finished before completedBefore and
	// failed jobs finished before failedBefore, returning the eviction count.
	Cleanup(ctx context.Context, completedBefore, failedBefore time.Time) (int, error)
}

// MemoryStore keeps jobs in process memory. It backs tests and single-node
// deployments that can afford to lose queued work on restart.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	seq  int64
	ord  map[string]int64
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*Job),
		ord:  make(map[string]int64),
	}
}

func (s *MemoryStore) Enqueue(_ context.Context, job *Job) (*Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.jobs[job.ID]; ok {
		cp := *existing
		return &cp, true, nil
	}
	cp := *job
	s.seq++
	s.jobs[job.ID] = &cp
	s.ord[job.ID] = s.seq
	out := cp
	return &out, false, nil
}

func (s *MemoryStore) Acquire(_ context.Context, jobType string, now, leaseUntil time.Time) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *Job
	for _, j := range s.jobs {
		if j.Type != jobType || j.Status != StatusWaiting || j.ReadyAt.After(now) {
			continue
		}
		if best == nil || j.Priority < best.Priority ||
			(j.Priority == best.Priority && s.ord[j.ID] < s.ord[best.ID]) {
			best = j
		}
	}
	if best == nil {
		return nil, nil
	}

	best.Status = StatusActive
	best.Attempts++
	best.LeaseUntil = leaseUntil
	best.UpdatedAt = now
	cp := *best
	return &cp, nil
}

func (s *MemoryStore) Complete(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.jobs[job.ID]
	if !ok {
		return nil
	}
	now := time.Now().UTC()
	stored.Status = StatusCompleted
	stored.LastError = ""
	stored.CompletedAt = now
	stored.UpdatedAt = now
	return nil
}

func (s *MemoryStore) Retry(_ context.Context, job *Job, readyAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.jobs[job.ID]
	if !ok {
		return nil
	}
	stored.Status = StatusWaiting
	stored.Attempts = job.Attempts
	stored.LastError = job.LastError
	stored.ReadyAt = readyAt
	stored.LeaseUntil = time.Time{}
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) Fail(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.jobs[job.ID]
	if !ok {
		return nil
	}
	now := time.Now().UTC()
	stored.Status = StatusFailed
	stored.Attempts = job.Attempts
	stored.LastError = job.LastError
	stored.CompletedAt = now
	stored.UpdatedAt = now
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *stored
	return &cp, nil
}

func (s *MemoryStore) RemoveWaiting(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.jobs[id]
	if !ok || stored.Status != StatusWaiting {
		return false, nil
	}
	delete(s.jobs, id)
	delete(s.ord, id)
	return true, nil
}

func (s *MemoryStore) ReclaimStalled(_ context.Context, now time.Time) ([]*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stalled []*Job
	for _, j := range s.jobs {
		if j.Status != StatusActive || j.LeaseUntil.IsZero() || j.LeaseUntil.After(now) {
			continue
		}
		j.Status = StatusWaiting
		j.LeaseUntil = time.Time{}
		j.ReadyAt = now
		j.UpdatedAt = now
		cp := *j
		cp.Status = StatusStalled
		stalled = append(stalled, &cp)
	}
	sort.Slice(stalled, func(a, b int) bool { return stalled[a].ID < stalled[b].ID })
	return stalled, nil
}

func (s *MemoryStore) Stats(_ context.Context) (map[string]Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]Stats)
	for _, j := range s.jobs {
		st := out[j.Type]
		switch j.Status {
		case StatusWaiting:
			st.Waiting++
		case StatusActive:
			st.Active++
		case StatusCompleted:
			st.Completed++
		case StatusFailed:
			st.Failed++
		}
		out[j.Type] = st
	}
	return out, nil
}

func (s *MemoryStore) Cleanup(_ context.Context, completedBefore, failedBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, j := range s.jobs {
		evict := (j.Status == StatusCompleted && j.CompletedAt.Before(completedBefore)) ||
			(j.Status == StatusFailed && j.CompletedAt.Before(failedBefore))
		if evict {
			delete(s.jobs, id)
			delete(s.ord, id)
			removed++
		}
	}
	return removed, nil
}
