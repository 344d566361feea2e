package automation

import (
	"fmt"
	"testing"
	"time"
)

func TestPayloadAccessors(t *testing.T) {
	p := Payload{
		"name":    "Sea View Flat",
		"count":   3,
		"wide":    int64(7),
		"decoded": 42.0,
		"rent":    1250.5,
	}

	if v, ok := p.String("name"); !ok || v != "Sea View Flat" {
		t.Fatalf("String: got %q, %v", v, ok)
	}
	if _, ok := p.String("count"); ok {
		t.Fatal("String must reject non-string values")
	}
	if _, ok := p.String("missing"); ok {
		t.Fatal("String must reject missing keys")
	}

	// Int accepts int, int64, and the float64 JSON decoding produces.
	for key, want := range map[string]int{"count": 3, "wide": 7, "decoded": 42} {
		if v, ok := p.Int(key); !ok || v != want {
			t.Fatalf("Int(%s): got %d, %v", key, v, ok)
		}
	}
	if _, ok := p.Int("name"); ok {
		t.Fatal("Int must reject strings")
	}

	if v, ok := p.Float("rent"); !ok || v != 1250.5 {
		t.Fatalf("Float: got %v, %v", v, ok)
	}
	if v, ok := p.Float("count"); !ok || v != 3 {
		t.Fatalf("Float must coerce ints, got %v, %v", v, ok)
	}
}

func TestPayloadClone(t *testing.T) {
	var nilPayload Payload
	if nilPayload.Clone() != nil {
		t.Fatal("nil payload clones to nil")
	}

	p := Payload{"k": "v"}
	cp := p.Clone()
	cp["k"] = "changed"
	if p["k"] != "v" {
		t.Fatal("clone must not share storage")
	}
}

func TestNewTriggerEventStampsAndCopies(t *testing.T) {
	payload := Payload{"paymentId": 42}
	evt := NewTriggerEvent("payment.received", payload, RequestContext{ActorID: "u1"})

	if evt.Name != "payment.received" || evt.Context.ActorID != "u1" {
		t.Fatalf("unexpected event %+v", evt)
	}
	if evt.Timestamp.IsZero() || time.Since(evt.Timestamp) > time.Minute {
		t.Fatalf("unexpected timestamp %s", evt.Timestamp)
	}
	payload["paymentId"] = 99
	if v, _ := evt.Payload.Int("paymentId"); v != 42 {
		t.Fatalf("event payload must be a copy, got %d", v)
	}
}

func TestRequestContextWithTrigger(t *testing.T) {
	rc := RequestContext{ActorID: "u1"}
	stamped := rc.WithTrigger("payment.due")
	if stamped.Trigger != "payment.due" || stamped.ActorID != "u1" {
		t.Fatalf("unexpected context %+v", stamped)
	}
	if rc.Trigger != "" {
		t.Fatal("WithTrigger must not mutate the receiver")
	}
}

func TestPriorityOrderingAndValidity(t *testing.T) {
	if !(PriorityCritical < PriorityHigh && PriorityHigh < PriorityNormal &&
		PriorityNormal < PriorityLow && PriorityLow < PriorityBulk) {
		t.Fatal("lower priority values must sort first")
	}
	if DefaultPriority != PriorityNormal {
		t.Fatalf("unexpected default %v", DefaultPriority)
	}
	for p := PriorityCritical; p <= PriorityBulk; p++ {
		if !p.Valid() {
			t.Fatalf("%v must be valid", p)
		}
	}
	if Priority(0).Valid() || Priority(6).Valid() {
		t.Fatal("out-of-range priorities must be invalid")
	}
}

func TestPriorityStringsRoundTrip(t *testing.T) {
	for p := PriorityCritical; p <= PriorityBulk; p++ {
		if got := ParsePriority(p.String()); got != p {
			t.Fatalf("ParsePriority(%q) = %v, want %v", p.String(), got, p)
		}
	}
	if ParsePriority("urgent") != PriorityNormal {
		t.Fatal("unknown names default to normal")
	}
	if Priority(9).String() != "priority(9)" {
		t.Fatalf("unexpected fallback %q", Priority(9).String())
	}
}

func TestConfigErrorClonesBase(t *testing.T) {
	err := ConfigError(ErrWorkflowNotFound, "workflow not found: wf1", map[string]any{"workflow_id": "wf1"})
	if code := ErrorCode(err); code != ErrCodeWorkflowNotFound {
		t.Fatalf("unexpected code %q", code)
	}
	if err.Message != "workflow not found: wf1" {
		t.Fatalf("unexpected message %q", err.Message)
	}
	// The shared base must keep its original message.
	if ErrWorkflowNotFound.Message != "workflow not found" {
		t.Fatalf("base mutated: %q", ErrWorkflowNotFound.Message)
	}
}

func TestErrorCodeThroughWrapping(t *testing.T) {
	err := ConfigError(ErrJobTypeUnknown, "unknown job type: nope", nil)
	wrapped := fmt.Errorf("add job: %w", err)
	if code := ErrorCode(wrapped); code != ErrCodeJobTypeUnknown {
		t.Fatalf("code lost through wrapping, got %q", code)
	}
	if ErrorCode(fmt.Errorf("plain")) != "" {
		t.Fatal("plain errors carry no code")
	}
}

func TestIsConfigError(t *testing.T) {
	if !IsConfigError(ConfigError(ErrActionNotFound, "", nil)) {
		t.Fatal("expected config error")
	}
	if IsConfigError(fmt.Errorf("boom")) {
		t.Fatal("plain errors are not config errors")
	}
}
