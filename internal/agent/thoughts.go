package agent

import "time"

// ThoughtType identifies the kind of entry in an agent's thought log.
type ThoughtType string

const (
	ThoughtObservation ThoughtType = "observation"
	ThoughtReasoning   ThoughtType = "reasoning"
	ThoughtPlan        ThoughtType = "plan"
	ThoughtAction      ThoughtType = "action"
	ThoughtResult      ThoughtType = "result"
)

// Thought is a single entry in an agent's append-only thought log.
// The log exists for introspection and UI display; the scheduler never
// reads it.
type Thought struct {
	Type      ThoughtType `json:"type"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}
