package automation

import "time"

// Payload carries the arbitrary key/value data attached to a trigger event
// or a queue job.
type Payload map[string]any

// Clone returns a shallow copy so published events stay immutable from the
// publisher's point of view.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// String returns the value for key when it is a string.
func (p Payload) String(key string) (string, bool) {
	v, ok := p[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Int returns the value for key coerced to int. JSON and YAML decoding
// produce float64 and int respectively, so both are accepted.
func (p Payload) Int(key string) (int, bool) {
	switch v := p[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// Float returns the value for key coerced to float64.
func (p Payload) Float(key string) (float64, bool) {
	switch v := p[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// RequestContext identifies the actor and request behind a trigger event.
// It travels with the event through workflow executions and queue jobs.
type RequestContext struct {
	ActorID   string `json:"actor_id,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Trigger   string `json:"trigger,omitempty"`
}

// WithTrigger returns a copy carrying the trigger name that caused the
// downstream work.
func (rc RequestContext) WithTrigger(trigger string) RequestContext {
	rc.Trigger = trigger
	return rc
}

// TriggerEvent is one published domain event. Names are dot-namespaced,
// "<entity>.<verb>". Events are immutable once published.
type TriggerEvent struct {
	Name      string         `json:"name"`
	Payload   Payload        `json:"payload"`
	Context   RequestContext `json:"context"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewTriggerEvent stamps an event with the current time and a payload copy.
func NewTriggerEvent(name string, payload Payload, rc RequestContext) TriggerEvent {
	return TriggerEvent{
		Name:      name,
		Payload:   payload.Clone(),
		Context:   rc,
		Timestamp: time.Now().UTC(),
	}
}
