package automation

import "fmt"

// Priority orders queue jobs. Lower values dequeue first. The original call
// sites used ad hoc integers; this enum fixes the global ordering.
type Priority int

const (
	PriorityCritical Priority = 1
	PriorityHigh     Priority = 2
	PriorityNormal   Priority = 3
	PriorityLow      Priority = 4
	PriorityBulk     Priority = 5
)

// DefaultPriority is used when a call site does not pick one.
const DefaultPriority = PriorityNormal

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	case PriorityBulk:
		return "bulk"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// Valid reports whether p is one of the defined levels.
func (p Priority) Valid() bool {
	return p >= PriorityCritical && p <= PriorityBulk
}

// ParsePriority maps a config string to a Priority, defaulting to normal.
func ParsePriority(s string) Priority {
	switch s {
	case "critical":
		return PriorityCritical
	case "high":
		return PriorityHigh
	case "low":
		return PriorityLow
	case "bulk":
		return PriorityBulk
	default:
		return PriorityNormal
	}
}
