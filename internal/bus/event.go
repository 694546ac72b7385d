package bus

import (
	"time"

	"github.com/google/uuid"
)

// Event types carried on the bus. Types are hierarchical strings so
// subscribers can match whole families with "prefix:*".
const (
	EventSystemStart = "system:start"
	EventSystemStop  = "system:stop"

	EventAgentStart        = "agent:start"
	EventAgentThinking     = "agent:thinking"
	EventAgentComplete     = "agent:complete"
	EventAgentError        = "agent:error"
	EventAgentSpawned      = "agent:spawned"
	EventAgentTaskComplete = "agent:task_complete"
	EventAgentEscalation   = "agent:escalation"

	EventLLMRequest  = "llm:request"
	EventLLMChunk    = "llm:chunk"
	EventLLMResponse = "llm:response"

	EventSkillToolCall   = "skill:tool_call"
	EventSkillToolResult = "skill:tool_result"

	EventSecurityApproval = "security:approval"
	EventSecurityDenied   = "security:denied"

	EventNotification = "notify:delivered"
)

// Event is the unit of traffic on the bus. Data carries the payload,
// Metadata carries cross-cutting annotations added by middleware.
type Event struct {
	Type      string         `json:"type"`
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Source    string         `json:"source"`
	ParentID  string         `json:"parent_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewEvent builds an event with a fresh id and the current time.
func NewEvent(eventType, source string, data map[string]any) Event {
	if data == nil {
		data = map[string]any{}
	}
	return Event{
		Type:      eventType,
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Source:    source,
		Data:      data,
		Metadata:  map[string]any{},
	}
}

// Child derives a new event causally linked to e via ParentID.
func (e Event) Child(eventType string, data map[string]any) Event {
	child := NewEvent(eventType, e.Source, data)
	child.ParentID = e.ID
	return child
}

// String returns a stable value from Data, or "" when absent.
func (e Event) String(key string) string {
	if v, ok := e.Data[key].(string); ok {
		return v
	}
	return ""
}

// Int returns an integer value from Data, tolerating the numeric
// widenings JSON decoding produces.
func (e Event) Int(key string) int {
	switch v := e.Data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// Bool returns a boolean value from Data, or false when absent.
func (e Event) Bool(key string) bool {
	if v, ok := e.Data[key].(bool); ok {
		return v
	}
	return false
}
