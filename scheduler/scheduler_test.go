package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/livingstone45/stayspot-sub007/runner"
)

func TestScheduleValidation(t *testing.T) {
	s := New()
	task := func(context.Context) error { return nil }

	if err := s.Schedule("", "* * * * *", task); err == nil {
		t.Fatal("expected error for empty name")
	}
	if err := s.Schedule("job", "", task); err == nil {
		t.Fatal("expected error for empty expression")
	}
	if err := s.Schedule("job", "* * * * *", nil); err == nil {
		t.Fatal("expected error for nil task")
	}
	if err := s.Schedule("job", "not a cron line", task); err == nil {
		t.Fatal("expected error for invalid expression")
	}
	if err := s.Schedule("job", "*/5 * * * *", task); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := s.Schedule("job", "0 2 * * *", task); err == nil {
		t.Fatal("expected error for duplicate name")
	}
}

func TestStartStopIdempotent(t *testing.T) {
	s := New()
	if s.Running() {
		t.Fatal("expected not running before Start")
	}
	s.Start()
	s.Start()
	if !s.Running() {
		t.Fatal("expected running after Start")
	}
	s.Stop()
	s.Stop()
	if s.Running() {
		t.Fatal("expected stopped after Stop")
	}
}

func TestTickRunsTaskAndRecordsSuccess(t *testing.T) {
	s := New()
	var ran atomic.Int32
	if err := s.Schedule("nightly", "0 2 * * *", func(context.Context) error {
		ran.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	s.jobs["nightly"].tick()

	if ran.Load() != 1 {
		t.Fatalf("expected one run, got %d", ran.Load())
	}
	st := s.Status()
	if len(st) != 1 || st[0].Runs != 1 || st[0].Failures != 0 || st[0].LastError != "" {
		t.Fatalf("unexpected status %+v", st)
	}
	if st[0].LastRun.IsZero() {
		t.Fatal("expected last run recorded")
	}
}

func TestTickFailureReachesErrorHandlerOnly(t *testing.T) {
	var handled error
	s := New(WithErrorHandler(func(err error) { handled = err }))

	if err := s.Schedule("flaky", "* * * * *", func(context.Context) error {
		return errors.New("backend down")
	}); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	var siblingRan bool
	if err := s.Schedule("steady", "* * * * *", func(context.Context) error {
		siblingRan = true
		return nil
	}); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	s.jobs["flaky"].tick()
	s.jobs["steady"].tick()

	if handled == nil {
		t.Fatal("expected failure to reach error handler")
	}
	if !siblingRan {
		t.Fatal("expected sibling job unaffected by failure")
	}
	for _, st := range s.Status() {
		switch st.Name {
		case "flaky":
			if st.Failures != 1 || st.LastError == "" {
				t.Fatalf("unexpected flaky status %+v", st)
			}
		case "steady":
			if st.Failures != 0 || st.LastError != "" {
				t.Fatalf("unexpected steady status %+v", st)
			}
		}
	}
}

func TestTickRecoversFromPanic(t *testing.T) {
	var handled error
	s := New(WithErrorHandler(func(err error) { handled = err }))
	if err := s.Schedule("boom", "* * * * *", func(context.Context) error {
		panic("task exploded")
	}); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	s.jobs["boom"].tick()

	st := s.Status()[0]
	if st.Runs != 1 || st.Failures != 1 {
		t.Fatalf("expected panic counted as failure, got %+v", st)
	}
	if handled == nil || !strings.Contains(handled.Error(), "task exploded") {
		t.Fatalf("expected panic reported to error handler, got %v", handled)
	}
	if !strings.Contains(handled.Error(), "boom") {
		t.Fatalf("expected failing job named in handler error, got %v", handled)
	}
}

func TestTickSkipsOverlappingRun(t *testing.T) {
	s := New()
	release := make(chan struct{})
	started := make(chan struct{})
	if err := s.Schedule("slow", "* * * * *", func(context.Context) error {
		close(started)
		<-release
		return nil
	}); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	j := s.jobs["slow"]
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		j.tick()
	}()
	<-started

	j.tick() // overlapping fire while the first run is in flight
	close(release)
	wg.Wait()

	st := s.Status()[0]
	if st.Runs != 1 || st.Skips != 1 {
		t.Fatalf("expected one run and one skip, got %+v", st)
	}
}

func TestTickRetriesWithinRun(t *testing.T) {
	s := New(WithJobRetries(2, runner.NoDelayStrategy{}))
	var attempts atomic.Int32
	if err := s.Schedule("retrying", "* * * * *", func(context.Context) error {
		if attempts.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	s.jobs["retrying"].tick()

	if attempts.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts.Load())
	}
	st := s.Status()[0]
	if st.Failures != 0 {
		t.Fatalf("expected eventual success, got %+v", st)
	}
}

func TestTickJobTimeout(t *testing.T) {
	s := New(WithJobTimeout(20 * time.Millisecond))
	if err := s.Schedule("stuck", "* * * * *", func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return nil
		}
	}); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	done := make(chan struct{})
	go func() {
		s.jobs["stuck"].tick()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected timeout to end the run")
	}
	if st := s.Status()[0]; st.Failures != 1 {
		t.Fatalf("expected timed-out run counted as failure, got %+v", st)
	}
}

func TestSecondsParserAcceptsSixFields(t *testing.T) {
	s := New(WithParser(SecondsParser))
	if err := s.Schedule("fast", "*/1 * * * * *", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("schedule with seconds field: %v", err)
	}

	std := New(WithParser(StandardParser))
	if err := std.Schedule("fast", "*/1 * * * * *", func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected standard parser to reject six fields")
	}
}

func TestStatusReportsNextRunWhenStarted(t *testing.T) {
	s := New()
	if err := s.Schedule("nightly", "0 2 * * *", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	if st := s.Status()[0]; !st.NextRun.IsZero() || st.Running {
		t.Fatalf("expected no next run before start, got %+v", st)
	}
	s.Start()
	defer s.Stop()
	if st := s.Status()[0]; st.NextRun.IsZero() || !st.Running {
		t.Fatalf("expected next run after start, got %+v", st)
	}
}
