// Package memory holds the in-session transcript and the token-budget
// context composer. Long-term memory (core facts, episodic retrieval,
// distillation) is an external collaborator behind the Manager
// interface.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/arclabs/arc/internal/providers"
)

// Manager is the long-term memory contract. Implementations own the
// three-tier store; the loop and composer consume only these calls.
type Manager interface {
	// CoreContext returns the formatted Tier 3 core facts.
	CoreContext(ctx context.Context) (string, error)

	// RetrieveRelevant returns formatted Tier 2 episodic memories
	// relevant to the query.
	RetrieveRelevant(ctx context.Context, query string, limit int) (string, error)

	// StoreTurn persists one user/assistant exchange.
	StoreTurn(ctx context.Context, userInput, assistantOutput string) error

	// ShouldDistill reports whether enough turns have accumulated to
	// run distillation.
	ShouldDistill() bool

	// Distill condenses recent messages into long-term memories.
	Distill(ctx context.Context, recent []providers.Message) error
}

// Session is the in-process conversation transcript: one system
// prompt plus the user/assistant/tool message history. Safe for
// concurrent use.
type Session struct {
	mu           sync.Mutex
	systemPrompt string
	messages     []providers.Message
}

// NewSession creates a session with the given system prompt.
func NewSession(systemPrompt string) *Session {
	return &Session{systemPrompt: systemPrompt}
}

// SystemPrompt returns the base system prompt.
func (s *Session) SystemPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.systemPrompt
}

// Append adds a message to the transcript, stamping its time.
func (s *Session) Append(m providers.Message) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
}

// AppendUser adds a user message.
func (s *Session) AppendUser(content string) {
	s.Append(providers.Message{Role: "user", Content: content})
}

// AppendAssistant adds an assistant message.
func (s *Session) AppendAssistant(content string, toolCalls []providers.ToolCall) {
	s.Append(providers.Message{Role: "assistant", Content: content, ToolCalls: toolCalls})
}

// AppendToolResult adds a tool message for one result.
func (s *Session) AppendToolResult(result providers.ToolResult) {
	content := result.Output
	if !result.Success {
		content = "Error: " + result.Error
	}
	s.Append(providers.Message{
		Role:       "tool",
		Content:    content,
		ToolCallID: result.ToolCallID,
	})
}

// Messages returns a copy of the transcript.
func (s *Session) Messages() []providers.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]providers.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Recent returns a copy of the last n messages.
func (s *Session) Recent(n int) []providers.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > len(s.messages) {
		n = len(s.messages)
	}
	out := make([]providers.Message, n)
	copy(out, s.messages[len(s.messages)-n:])
	return out
}

// Len returns the number of transcript messages (system excluded).
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Clear drops the transcript, keeping the system prompt.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
}
