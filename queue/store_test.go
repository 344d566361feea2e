package queue

import (
	"context"
	"testing"
	"time"

	automation "github.com/livingstone45/stayspot-sub007"
)

func enqueue(t *testing.T, s Store, id, jobType string, priority automation.Priority, readyAt time.Time) *Job {
	t.Helper()
	now := time.Now().UTC()
	job := &Job{
		ID:          id,
		Type:        jobType,
		Payload:     automation.Payload{"id": id},
		Priority:    priority,
		MaxAttempts: 3,
		Status:      StatusWaiting,
		ReadyAt:     readyAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	stored, existing, err := s.Enqueue(context.Background(), job)
	if err != nil {
		t.Fatalf("enqueue %s: %v", id, err)
	}
	if existing {
		t.Fatalf("enqueue %s: unexpected existing", id)
	}
	return stored
}

func TestMemoryStoreEnqueueIsIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	first := enqueue(t, s, "email_n1", "send-email", automation.PriorityNormal, now)

	dup := *first
	dup.Payload = automation.Payload{"id": "different"}
	stored, existing, err := s.Enqueue(ctx, &dup)
	if err != nil {
		t.Fatalf("enqueue dup: %v", err)
	}
	if !existing {
		t.Fatal("expected existing=true on duplicate ID")
	}
	if v, _ := stored.Payload.String("id"); v != "email_n1" {
		t.Fatalf("expected original payload preserved, got %q", v)
	}
	stats, _ := s.Stats(ctx)
	if stats["send-email"].Waiting != 1 {
		t.Fatalf("expected one waiting job, got %+v", stats)
	}
}

func TestMemoryStoreAcquireHonorsPriorityThenOrder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	enqueue(t, s, "low", "work", automation.PriorityLow, now)
	enqueue(t, s, "normal-1", "work", automation.PriorityNormal, now)
	enqueue(t, s, "critical", "work", automation.PriorityCritical, now)
	enqueue(t, s, "normal-2", "work", automation.PriorityNormal, now)

	var got []string
	for {
		job, err := s.Acquire(ctx, "work", time.Now().UTC(), time.Now().UTC().Add(time.Minute))
		if err != nil {
			t.Fatalf("acquire: %v", err)
		}
		if job == nil {
			break
		}
		got = append(got, job.ID)
	}
	want := []string{"critical", "normal-1", "normal-2", "low"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestMemoryStoreAcquireRespectsDelay(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	enqueue(t, s, "later", "work", automation.PriorityCritical, now.Add(time.Hour))
	enqueue(t, s, "due", "work", automation.PriorityBulk, now)

	job, err := s.Acquire(ctx, "work", now, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if job == nil || job.ID != "due" {
		t.Fatalf("expected the due job despite lower priority, got %+v", job)
	}
	if job.Attempts != 1 {
		t.Fatalf("expected attempt counted on acquire, got %d", job.Attempts)
	}

	if job, _ = s.Acquire(ctx, "work", now, now.Add(time.Minute)); job != nil {
		t.Fatalf("expected nothing due, got %+v", job)
	}
	if job, _ = s.Acquire(ctx, "work", now.Add(2*time.Hour), now.Add(2*time.Hour+time.Minute)); job == nil || job.ID != "later" {
		t.Fatalf("expected delayed job once due, got %+v", job)
	}
}

func TestMemoryStoreAcquireIgnoresOtherTypes(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now().UTC()
	enqueue(t, s, "sms_1", "send-sms", automation.PriorityNormal, now)

	job, err := s.Acquire(context.Background(), "send-email", now, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if job != nil {
		t.Fatalf("expected no job for foreign type, got %+v", job)
	}
}

func TestMemoryStoreRetryAndFailTransitions(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	enqueue(t, s, "j1", "work", automation.PriorityNormal, now)
	job, _ := s.Acquire(ctx, "work", now, now.Add(time.Minute))

	job.LastError = "first failure"
	if err := s.Retry(ctx, job, now.Add(-time.Second)); err != nil {
		t.Fatalf("retry: %v", err)
	}
	stored, _ := s.Get(ctx, "j1")
	if stored.Status != StatusWaiting || stored.LastError != "first failure" {
		t.Fatalf("expected waiting with error after retry, got %+v", stored)
	}
	if !stored.LeaseUntil.IsZero() {
		t.Fatalf("expected lease released on retry, got %v", stored.LeaseUntil)
	}

	job, _ = s.Acquire(ctx, "work", now, now.Add(time.Minute))
	if job.Attempts != 2 {
		t.Fatalf("expected second attempt, got %d", job.Attempts)
	}
	job.LastError = "final failure"
	if err := s.Fail(ctx, job); err != nil {
		t.Fatalf("fail: %v", err)
	}
	stored, _ = s.Get(ctx, "j1")
	if stored.Status != StatusFailed || stored.CompletedAt.IsZero() {
		t.Fatalf("expected terminal failed job, got %+v", stored)
	}
}

func TestMemoryStoreRemoveWaitingOnlyRemovesWaiting(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	enqueue(t, s, "w", "work", automation.PriorityNormal, now)
	enqueue(t, s, "a", "work", automation.PriorityCritical, now)
	if _, err := s.Acquire(ctx, "work", now, now.Add(time.Minute)); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	if removed, _ := s.RemoveWaiting(ctx, "a"); removed {
		t.Fatal("active job must not be removable")
	}
	if removed, _ := s.RemoveWaiting(ctx, "missing"); removed {
		t.Fatal("missing job must not report removed")
	}
	if removed, _ := s.RemoveWaiting(ctx, "w"); !removed {
		t.Fatal("expected waiting job removed")
	}
	if stored, _ := s.Get(ctx, "w"); stored != nil {
		t.Fatalf("expected job gone, got %+v", stored)
	}
}

func TestMemoryStoreReclaimStalled(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	enqueue(t, s, "stuck", "work", automation.PriorityNormal, now)
	enqueue(t, s, "healthy", "work", automation.PriorityNormal, now)

	if _, err := s.Acquire(ctx, "work", now, now.Add(-time.Second)); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := s.Acquire(ctx, "work", now, now.Add(time.Hour)); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	stalled, err := s.ReclaimStalled(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if len(stalled) != 1 || stalled[0].ID != "stuck" || stalled[0].Status != StatusStalled {
		t.Fatalf("expected the expired-lease job reported stalled, got %+v", stalled)
	}

	stored, _ := s.Get(ctx, "stuck")
	if stored.Status != StatusWaiting {
		t.Fatalf("expected stalled job re-queued, got %s", stored.Status)
	}
	job, _ := s.Acquire(ctx, "work", time.Now().UTC(), time.Now().UTC().Add(time.Minute))
	if job == nil || job.ID != "stuck" || job.Attempts != 2 {
		t.Fatalf("expected redelivery with attempt counted, got %+v", job)
	}
}

func TestMemoryStoreCleanupEvictsByAge(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	for _, id := range []string{"old-done", "new-done", "old-failed"} {
		enqueue(t, s, id, "work", automation.PriorityNormal, now)
	}
	for i := 0; i < 3; i++ {
		job, _ := s.Acquire(ctx, "work", now, now.Add(time.Minute))
		switch job.ID {
		case "old-failed":
			s.Fail(ctx, job)
		default:
			s.Complete(ctx, job)
		}
	}
	// Backdate finish times directly; the store stamps time.Now on terminal
	// transitions.
	s.mu.Lock()
	s.jobs["old-done"].CompletedAt = now.AddDate(0, 0, -10)
	s.jobs["old-failed"].CompletedAt = now.AddDate(0, 0, -40)
	s.mu.Unlock()

	removed, err := s.Cleanup(ctx, now.AddDate(0, 0, -7), now.AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 evictions, got %d", removed)
	}
	if stored, _ := s.Get(ctx, "new-done"); stored == nil {
		t.Fatal("expected recent completed job retained")
	}
	if stored, _ := s.Get(ctx, "old-done"); stored != nil {
		t.Fatal("expected old completed job evicted")
	}
	if stored, _ := s.Get(ctx, "old-failed"); stored != nil {
		t.Fatal("expected old failed job evicted")
	}
}

func TestMemoryStoreStatsCountsPerTypeAndState(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	enqueue(t, s, "e1", "send-email", automation.PriorityNormal, now)
	enqueue(t, s, "e2", "send-email", automation.PriorityNormal, now)
	enqueue(t, s, "s1", "send-sms", automation.PriorityNormal, now)

	job, _ := s.Acquire(ctx, "send-email", now, now.Add(time.Minute))
	s.Complete(ctx, job)

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st := stats["send-email"]; st.Waiting != 1 || st.Completed != 1 {
		t.Fatalf("unexpected email stats %+v", st)
	}
	if st := stats["send-sms"]; st.Waiting != 1 {
		t.Fatalf("unexpected sms stats %+v", st)
	}
}
