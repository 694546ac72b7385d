package providers

import (
	"context"
	"fmt"
	"time"
)

// Capability is an atomic permission a tool requires. The set is
// closed; the security engine treats unknown strings as always-ask.
type Capability string

const (
	CapFileRead      Capability = "file:read"
	CapFileWrite     Capability = "file:write"
	CapFileDelete    Capability = "file:delete"
	CapShellExec     Capability = "shell:exec"
	CapNetworkHTTP   Capability = "network:http"
	CapNetworkSocket Capability = "network:socket"
	CapBrowser       Capability = "browser"
	CapSystemEnv     Capability = "system:env"
	CapSystemProcess Capability = "system:process"
)

// AllCapabilities lists every known capability.
var AllCapabilities = []Capability{
	CapFileRead, CapFileWrite, CapFileDelete,
	CapShellExec,
	CapNetworkHTTP, CapNetworkSocket,
	CapBrowser,
	CapSystemEnv, CapSystemProcess,
}

// Known reports whether c is a member of the closed capability set.
func (c Capability) Known() bool {
	for _, k := range AllCapabilities {
		if c == k {
			return true
		}
	}
	return false
}

// Message is one conversation turn.
type Message struct {
	Role       string     `json:"role"` // "system", "user", "assistant", "tool"
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // required when role="tool"
	Timestamp  time.Time  `json:"-"`
}

// ToolCall is a tool invocation requested by the LLM.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolResult is the outcome of executing one tool call.
type ToolResult struct {
	ToolCallID string         `json:"tool_call_id"`
	Success    bool           `json:"success"`
	Output     string         `json:"output"`
	Error      string         `json:"error,omitempty"`
	Artifacts  map[string]any `json:"artifacts,omitempty"`
	DurationMS int64          `json:"duration_ms"`
}

// OK builds a successful result.
func OK(output string) ToolResult {
	return ToolResult{Success: true, Output: output}
}

// Fail builds a failed result carrying the error text.
func Fail(errText string) ToolResult {
	return ToolResult{Success: false, Error: errText}
}

// ToolSpec describes one tool to the LLM and to the security engine.
// Parameters is JSON-Schema-shaped data, shipped as-is.
type ToolSpec struct {
	Name                 string         `json:"name"`
	Description          string         `json:"description"`
	Parameters           map[string]any `json:"parameters"`
	RequiredCapabilities []Capability   `json:"required_capabilities,omitempty"`
}

// StopReason explains why a stream ended. Only the final chunk of a
// generation carries a non-empty value.
type StopReason string

const (
	StopComplete  StopReason = "complete"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
	StopCancelled StopReason = "cancelled"
)

// Chunk is one streamed piece of a generation. Text chunks carry
// Text; the final chunk carries StopReason plus the token counts.
type Chunk struct {
	Text         string     `json:"text,omitempty"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	StopReason   StopReason `json:"stop_reason,omitempty"`
	InputTokens  int        `json:"input_tokens,omitempty"`
	OutputTokens int        `json:"output_tokens,omitempty"`
}

// ModelInfo describes the active model's limits and pricing.
type ModelInfo struct {
	Name               string  `json:"name"`
	ContextWindow      int     `json:"context_window"`
	MaxOutputTokens    int     `json:"max_output_tokens"`
	InputCostPerToken  float64 `json:"input_cost_per_token"`
	OutputCostPerToken float64 `json:"output_cost_per_token"`
	SupportsTools      bool    `json:"supports_tools"`
}

// GenerateRequest is the input to one streaming generation.
type GenerateRequest struct {
	Messages      []Message
	Tools         []ToolSpec
	Temperature   float64
	MaxTokens     int
	StopSequences []string
}

// Provider is the streaming LLM contract. Generate invokes onChunk for
// every streamed piece; the last chunk carries the stop reason and
// final token counts.
type Provider interface {
	Generate(ctx context.Context, req GenerateRequest, onChunk func(Chunk)) error

	// CountTokens estimates the token footprint of a transcript.
	CountTokens(messages []Message) int

	ModelInfo() ModelInfo
	Name() string
	Close() error
}

// Error wraps provider failures with a retryability flag and an
// optional user-facing hint.
type Error struct {
	Provider  string
	Retryable bool
	Hint      string
	Err       error
}

func (e *Error) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Provider, e.Err, e.Hint)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
