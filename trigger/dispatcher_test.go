package trigger

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	automation "github.com/livingstone45/stayspot-sub007"
	"github.com/livingstone45/stayspot-sub007/audit"
)

func TestPublishDeliversToEverySubscriber(t *testing.T) {
	d := NewDispatcher()
	var a, b atomic.Int32
	d.Subscribe("property.created", func(context.Context, automation.TriggerEvent) error {
		a.Add(1)
		return nil
	})
	d.Subscribe("property.created", func(context.Context, automation.TriggerEvent) error {
		b.Add(1)
		return nil
	})
	d.Subscribe("tenant.move_in", func(context.Context, automation.TriggerEvent) error {
		t.Fatal("unrelated subscriber must not fire")
		return nil
	})

	d.Publish(context.Background(), "property.created", automation.Payload{"id": "p1"}, automation.RequestContext{})

	if a.Load() != 1 || b.Load() != 1 {
		t.Fatalf("expected both subscribers invoked once, got %d/%d", a.Load(), b.Load())
	}
}

func TestPublishIsolatesSubscriberFailures(t *testing.T) {
	d := NewDispatcher()
	var after atomic.Int32
	d.Subscribe("evt", func(context.Context, automation.TriggerEvent) error {
		return errors.New("subscriber broke")
	})
	d.Subscribe("evt", func(context.Context, automation.TriggerEvent) error {
		panic("subscriber panicked")
	})
	d.Subscribe("evt", func(context.Context, automation.TriggerEvent) error {
		after.Add(1)
		return nil
	})

	d.Publish(context.Background(), "evt", automation.Payload{}, automation.RequestContext{})

	if after.Load() != 1 {
		t.Fatalf("expected later subscriber to run despite earlier failures, got %d", after.Load())
	}
}

func TestPublishStampsEventAndClonesPayload(t *testing.T) {
	d := NewDispatcher()
	var seen automation.TriggerEvent
	d.Subscribe("evt", func(_ context.Context, evt automation.TriggerEvent) error {
		seen = evt
		return nil
	})

	payload := automation.Payload{"k": "v"}
	d.Publish(context.Background(), "evt", payload, automation.RequestContext{ActorID: "u1"})
	payload["k"] = "mutated"

	if seen.Name != "evt" || seen.Timestamp.IsZero() {
		t.Fatalf("expected stamped event, got %+v", seen)
	}
	if v, _ := seen.Payload.String("k"); v != "v" {
		t.Fatalf("expected cloned payload insulated from caller mutation, got %q", v)
	}
	if seen.Context.ActorID != "u1" {
		t.Fatalf("expected request context on event, got %+v", seen.Context)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	d := NewDispatcher()
	var count atomic.Int32
	sub := d.Subscribe("evt", func(context.Context, automation.TriggerEvent) error {
		count.Add(1)
		return nil
	})

	d.Publish(context.Background(), "evt", automation.Payload{}, automation.RequestContext{})
	sub.Unsubscribe()
	d.Publish(context.Background(), "evt", automation.Payload{}, automation.RequestContext{})

	if count.Load() != 1 {
		t.Fatalf("expected one delivery before unsubscribe, got %d", count.Load())
	}
	if n := d.SubscriberCount("evt"); n != 0 {
		t.Fatalf("expected zero subscribers after unsubscribe, got %d", n)
	}
}

type recordingForwarder struct {
	trigger string
	data    automation.Payload
	rc      automation.RequestContext
	err     error
}

func (f *recordingForwarder) HandleTrigger(_ context.Context, trigger string, data automation.Payload, rc automation.RequestContext) error {
	f.trigger = trigger
	f.data = data
	f.rc = rc
	return f.err
}

func TestPublishForwardsWithTriggerContext(t *testing.T) {
	fwd := &recordingForwarder{}
	d := NewDispatcher(WithForwarder(fwd))

	d.Publish(context.Background(), "payment.due", automation.Payload{"paymentId": 42}, automation.RequestContext{ActorID: "u7"})

	if fwd.trigger != "payment.due" {
		t.Fatalf("expected forwarded trigger, got %q", fwd.trigger)
	}
	if v, _ := fwd.data.Int("paymentId"); v != 42 {
		t.Fatalf("expected payload forwarded, got %+v", fwd.data)
	}
	if fwd.rc.Trigger != "payment.due" || fwd.rc.ActorID != "u7" {
		t.Fatalf("expected trigger stamped on context, got %+v", fwd.rc)
	}
}

func TestPublishSwallowsForwarderError(t *testing.T) {
	fwd := &recordingForwarder{err: errors.New("engine exploded")}
	log := audit.NewInMemoryLog()
	d := NewDispatcher(WithForwarder(fwd), WithAuditLog(log))

	d.Publish(context.Background(), "evt", automation.Payload{}, automation.RequestContext{})

	// The publish is still recorded.
	if log.Len() != 1 {
		t.Fatalf("expected audit entry despite forwarder error, got %d", log.Len())
	}
}

func TestPublishAppendsAuditEntry(t *testing.T) {
	log := audit.NewInMemoryLog()
	d := NewDispatcher(WithAuditLog(log))

	d.Publish(context.Background(), "property.created", automation.Payload{"propertyId": "p9"}, automation.RequestContext{ActorID: "u2"})

	entries, err := log.ByAction(context.Background(), audit.ActionTriggerPublished, 0)
	if err != nil {
		t.Fatalf("by action: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one trigger audit entry, got %d", len(entries))
	}
	e := entries[0]
	if e.EntityType != "trigger" || e.EntityID != "property.created" {
		t.Fatalf("unexpected entry %+v", e)
	}
	payload, ok := e.Details["payload"].(map[string]any)
	if !ok || payload["propertyId"] != "p9" {
		t.Fatalf("expected payload in details, got %+v", e.Details)
	}
}

func TestSetForwarderAfterConstruction(t *testing.T) {
	d := NewDispatcher()
	d.Publish(context.Background(), "evt", automation.Payload{}, automation.RequestContext{})

	fwd := &recordingForwarder{}
	d.SetForwarder(fwd)
	d.Publish(context.Background(), "evt", automation.Payload{}, automation.RequestContext{})

	if fwd.trigger != "evt" {
		t.Fatal("expected late-bound forwarder to receive events")
	}
}
