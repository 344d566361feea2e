package runner

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRunSucceedsFirstAttempt(t *testing.T) {
	h := NewHandler()
	calls := 0
	err := h.Run(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one call, got %d", calls)
	}
	if total, ok := h.Runs(); total != 1 || ok != 1 {
		t.Fatalf("expected 1/1 runs, got %d/%d", total, ok)
	}
}

func TestRunRetriesUntilSuccess(t *testing.T) {
	h := NewHandler(WithMaxRetries(3))
	calls := 0
	err := h.Run(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected three calls, got %d", calls)
	}
}

func TestRunReturnsLastErrorWhenExhausted(t *testing.T) {
	sentinel := errors.New("hard failure")
	var reported []error
	h := NewHandler(
		WithMaxRetries(2),
		WithErrorHandler(func(err error) { reported = append(reported, err) }),
	)
	calls := 0
	err := h.Run(context.Background(), func(context.Context) error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected wrapped sentinel, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected maxRetries+1 calls, got %d", calls)
	}
	// Two per-attempt reports plus the final exhaustion report.
	if len(reported) != 3 {
		t.Fatalf("expected 3 error reports, got %d", len(reported))
	}
	if total, ok := h.Runs(); total != 1 || ok != 0 {
		t.Fatalf("expected 1/0 runs, got %d/%d", total, ok)
	}
}

func TestRunTimeoutCancelsContext(t *testing.T) {
	h := NewHandler(WithTimeout(20 * time.Millisecond))
	err := h.Run(context.Background(), func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return nil
		}
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestRunStopsRetryingOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHandler(
		WithMaxRetries(10),
		WithRetryStrategy(FixedDelayStrategy{Delay: time.Hour}),
	)
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- h.Run(ctx, func(context.Context) error {
			calls++
			return errors.New("always")
		})
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after cancel")
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt before the hour-long delay, got %d", calls)
	}
}

func TestNoDelayStrategy(t *testing.T) {
	if d := (NoDelayStrategy{}).SleepDuration(5, errors.New("x")); d != 0 {
		t.Fatalf("expected zero delay, got %v", d)
	}
}

func TestFixedDelayStrategy(t *testing.T) {
	s := FixedDelayStrategy{Delay: 42 * time.Millisecond}
	for attempt := 0; attempt < 4; attempt++ {
		if d := s.SleepDuration(attempt, nil); d != 42*time.Millisecond {
			t.Fatalf("attempt %d: expected fixed delay, got %v", attempt, d)
		}
	}
}

func TestExponentialBackoffStrategy(t *testing.T) {
	s := ExponentialBackoffStrategy{Base: time.Second, Max: 10 * time.Second}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second, 10 * time.Second}
	for attempt, exp := range want {
		if d := s.SleepDuration(attempt, nil); d != exp {
			t.Fatalf("attempt %d: expected %v, got %v", attempt, exp, d)
		}
	}
	if d := s.SleepDuration(-3, nil); d != time.Second {
		t.Fatalf("negative attempt should clamp to base, got %v", d)
	}
	tripled := ExponentialBackoffStrategy{Base: time.Second, Factor: 3}
	if d := tripled.SleepDuration(2, nil); d != 9*time.Second {
		t.Fatalf("expected 9s with factor 3, got %v", d)
	}
}
