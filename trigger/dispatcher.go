package trigger

import (
	"context"
	"fmt"
	"sync"

	automation "github.com/livingstone45/stayspot-sub007"
	"github.com/livingstone45/stayspot-sub007/audit"
)

// Handler receives a published trigger event. A handler error is logged and
// isolated; it never reaches the publisher or sibling handlers.
type Handler func(ctx context.Context, evt automation.TriggerEvent) error

// Forwarder receives every published event after the subscribers ran. The
// workflow engine implements this to execute bound workflows inline.
type Forwarder interface {
	HandleTrigger(ctx context.Context, trigger string, data automation.Payload, rc automation.RequestContext) error
}

// Dispatcher is the in-process publish/subscribe hub for domain events.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]*subscription
	nextID   int64

	forwarder Forwarder
	auditLog  audit.Log
	logger    automation.Logger
}

// Option defines the functional option signature.
type Option func(*Dispatcher)

// WithForwarder binds the component that receives events after dispatch.
func WithForwarder(f Forwarder) Option {
	return func(d *Dispatcher) {
		d.forwarder = f
	}
}

// WithAuditLog sets the durable log that records every publish.
func WithAuditLog(log audit.Log) Option {
	return func(d *Dispatcher) {
		d.auditLog = log
	}
}

// WithLogger sets a custom logger for the dispatcher.
func WithLogger(logger automation.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// NewDispatcher applies the given options to a new instance of the dispatcher.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		handlers: make(map[string][]*subscription),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	d.logger = automation.NormalizeLogger(d.logger)
	return d
}

// SetForwarder binds the forwarder after construction. The engine and the
// dispatcher reference each other, so one side has to be attached late.
func (d *Dispatcher) SetForwarder(f Forwarder) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.forwarder = f
}

// Subscribe registers a handler for eventName and returns its subscription.
func (d *Dispatcher) Subscribe(eventName string, handler Handler) Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	sub := &subscription{
		dispatcher: d,
		eventName:  eventName,
		id:         d.nextID,
		handler:    handler,
	}
	d.handlers[eventName] = append(d.handlers[eventName], sub)
	return sub
}

// SubscriberCount reports how many handlers are registered for eventName.
func (d *Dispatcher) SubscriberCount(eventName string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[eventName])
}

// Publish dispatches an event to every subscriber, forwards it to the bound
// workflows, and appends an audit record. Bound workflow executions complete
// before Publish returns. Publish never fails from the caller's perspective:
// subscriber errors, forwarder errors, and audit errors are logged and
// swallowed so a failing observer cannot abort the business operation that
// triggered the event.
func (d *Dispatcher) Publish(ctx context.Context, eventName string, payload automation.Payload, rc automation.RequestContext) {
	evt := automation.NewTriggerEvent(eventName, payload, rc)

	d.mu.RLock()
	subs := make([]*subscription, len(d.handlers[eventName]))
	copy(subs, d.handlers[eventName])
	forwarder := d.forwarder
	d.mu.RUnlock()

	for _, sub := range subs {
		if err := d.invoke(ctx, sub, evt); err != nil {
			d.logger.Error("trigger subscriber failed: event=%s err=%v", eventName, err)
		}
	}

	if forwarder != nil {
		if err := forwarder.HandleTrigger(ctx, eventName, evt.Payload, rc.WithTrigger(eventName)); err != nil {
			d.logger.Error("trigger forwarding failed: event=%s err=%v", eventName, err)
		}
	}

	d.record(ctx, evt)
}

// invoke runs one subscriber with panic isolation.
func (d *Dispatcher) invoke(ctx context.Context, sub *subscription, evt automation.TriggerEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panic: %v", r)
		}
	}()
	return sub.handler(ctx, evt)
}

func (d *Dispatcher) record(ctx context.Context, evt automation.TriggerEvent) {
	if d.auditLog == nil {
		return
	}
	entry := audit.Entry{
		Action:     audit.ActionTriggerPublished,
		EntityType: "trigger",
		EntityID:   evt.Name,
		Details:    automation.Payload{"payload": map[string]any(evt.Payload)},
		Context:    evt.Context,
		CreatedAt:  evt.Timestamp,
	}
	if err := d.auditLog.Append(ctx, entry); err != nil {
		// Audit failures must never abort the triggering operation.
		d.logger.Error("audit append failed: event=%s err=%v", evt.Name, err)
	}
}
