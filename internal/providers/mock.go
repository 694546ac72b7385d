package providers

import (
	"context"
	"sync"
)

// Mock replays scripted chunk sequences, one script per Generate
// call, cycling back to the last script when exhausted. Used by tests
// and the `--mock` chat flag.
type Mock struct {
	mu      sync.Mutex
	scripts [][]Chunk
	call    int

	// Requests records every request for assertions.
	Requests []GenerateRequest
}

// NewMock creates a mock provider. Each scripts element is the full
// chunk sequence for one Generate call; the final chunk of each script
// should carry a stop reason.
func NewMock(scripts ...[]Chunk) *Mock {
	return &Mock{scripts: scripts}
}

// TextScript is a convenience: a single text chunk followed by a
// complete-final chunk.
func TextScript(text string) []Chunk {
	return []Chunk{
		{Text: text},
		{StopReason: StopComplete, InputTokens: 10, OutputTokens: len(text) / 4},
	}
}

// ToolScript is a convenience: one tool-use turn.
func ToolScript(calls ...ToolCall) []Chunk {
	return []Chunk{
		{ToolCalls: calls, StopReason: StopToolUse, InputTokens: 10, OutputTokens: 5},
	}
}

func (m *Mock) Generate(ctx context.Context, req GenerateRequest, onChunk func(Chunk)) error {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	idx := m.call
	if idx >= len(m.scripts) {
		idx = len(m.scripts) - 1
	}
	m.call++
	var script []Chunk
	if idx >= 0 {
		script = m.scripts[idx]
	}
	m.mu.Unlock()

	if script == nil {
		onChunk(Chunk{StopReason: StopComplete})
		return nil
	}
	for _, c := range script {
		select {
		case <-ctx.Done():
			onChunk(Chunk{StopReason: StopCancelled})
			return nil
		default:
		}
		onChunk(c)
	}
	return nil
}

// Calls returns how many times Generate ran.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.call
}

func (m *Mock) CountTokens(messages []Message) int {
	total := 0
	for _, msg := range messages {
		total += len(msg.Content)/4 + 4
	}
	return total
}

func (m *Mock) ModelInfo() ModelInfo {
	return ModelInfo{
		Name:            "mock",
		ContextWindow:   8192,
		MaxOutputTokens: 2048,
		SupportsTools:   true,
	}
}

func (m *Mock) Name() string { return "mock" }
func (m *Mock) Close() error { return nil }
