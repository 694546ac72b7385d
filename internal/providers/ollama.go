package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// connectHint is shown when the Ollama server is unreachable.
const connectHint = "Cannot connect — is Ollama running?"

// Ollama streams chat completions from an Ollama server (/api/chat,
// NDJSON stream).
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
	info    ModelInfo
}

// OllamaOptions configures the client.
type OllamaOptions struct {
	BaseURL         string
	Model           string
	ContextWindow   int
	MaxOutputTokens int
	Timeout         time.Duration
}

// NewOllama creates a client. Zero options fall back to localhost
// defaults.
func NewOllama(opts OllamaOptions) *Ollama {
	if opts.BaseURL == "" {
		opts.BaseURL = "http://localhost:11434"
	}
	if opts.Model == "" {
		opts.Model = "qwen3:8b"
	}
	if opts.ContextWindow == 0 {
		opts.ContextWindow = 8192
	}
	if opts.MaxOutputTokens == 0 {
		opts.MaxOutputTokens = 2048
	}
	if opts.Timeout == 0 {
		opts.Timeout = 2 * time.Minute
	}
	return &Ollama{
		baseURL: opts.BaseURL,
		model:   opts.Model,
		client:  &http.Client{Timeout: opts.Timeout},
		info: ModelInfo{
			Name:            opts.Model,
			ContextWindow:   opts.ContextWindow,
			MaxOutputTokens: opts.MaxOutputTokens,
			SupportsTools:   true,
		},
	}
}

func (o *Ollama) Name() string        { return "ollama" }
func (o *Ollama) ModelInfo() ModelInfo { return o.info }
func (o *Ollama) Close() error         { return nil }

// CountTokens estimates roughly four characters per token plus a
// small per-message overhead.
func (o *Ollama) CountTokens(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += len(m.Content)/4 + 4
		for _, tc := range m.ToolCalls {
			total += len(tc.Name) / 4
			if raw, err := json.Marshal(tc.Arguments); err == nil {
				total += len(raw) / 4
			}
		}
	}
	return total
}

// Wire shapes for /api/chat.

type ollamaToolCall struct {
	Function struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"function"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Tools    []ollamaTool    `json:"tools,omitempty"`
	Stream   bool            `json:"stream"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaChatLine struct {
	Message struct {
		Role      string           `json:"role"`
		Content   string           `json:"content"`
		ToolCalls []ollamaToolCall `json:"tool_calls"`
	} `json:"message"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// Generate streams one chat completion. Tool calls are accumulated
// across stream lines and attached to the final chunk alongside the
// stop reason and token counts.
func (o *Ollama) Generate(ctx context.Context, req GenerateRequest, onChunk func(Chunk)) error {
	body := ollamaChatRequest{
		Model:    o.model,
		Messages: toOllamaMessages(req.Messages),
		Tools:    toOllamaTools(req.Tools),
		Stream:   true,
		Options:  map[string]any{"temperature": req.Temperature},
	}
	if req.MaxTokens > 0 {
		body.Options["num_predict"] = req.MaxTokens
	}
	if len(req.StopSequences) > 0 {
		body.Options["stop"] = req.StopSequences
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return &Error{Provider: "ollama", Err: fmt.Errorf("encode request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(raw))
	if err != nil {
		return &Error{Provider: "ollama", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			onChunk(Chunk{StopReason: StopCancelled})
			return nil
		}
		perr := &Error{Provider: "ollama", Retryable: true, Err: err}
		if errors.Is(err, syscall.ECONNREFUSED) {
			perr.Hint = connectHint
		}
		return perr
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var msg struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&msg)
		return &Error{
			Provider:  "ollama",
			Retryable: resp.StatusCode >= 500,
			Err:       fmt.Errorf("status %d: %s", resp.StatusCode, msg.Error),
		}
	}

	var toolCalls []ToolCall
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk ollamaChatLine
		if err := json.Unmarshal(line, &chunk); err != nil {
			return &Error{Provider: "ollama", Err: fmt.Errorf("decode stream line: %w", err)}
		}

		for _, tc := range chunk.Message.ToolCalls {
			toolCalls = append(toolCalls, ToolCall{
				ID:        "call_" + uuid.NewString()[:8],
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		if chunk.Message.Content != "" {
			onChunk(Chunk{Text: chunk.Message.Content})
		}
		if chunk.Done {
			onChunk(Chunk{
				ToolCalls:    toolCalls,
				StopReason:   stopReasonFor(chunk.DoneReason, len(toolCalls) > 0),
				InputTokens:  chunk.PromptEvalCount,
				OutputTokens: chunk.EvalCount,
			})
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			onChunk(Chunk{StopReason: StopCancelled})
			return nil
		}
		return &Error{Provider: "ollama", Retryable: true, Err: fmt.Errorf("read stream: %w", err)}
	}
	return &Error{Provider: "ollama", Retryable: true, Err: errors.New("stream ended without done marker")}
}

func stopReasonFor(doneReason string, hasToolCalls bool) StopReason {
	if hasToolCalls {
		return StopToolUse
	}
	switch doneReason {
	case "length":
		return StopMaxTokens
	default:
		return StopComplete
	}
}

func toOllamaMessages(messages []Message) []ollamaMessage {
	out := make([]ollamaMessage, 0, len(messages))
	for _, m := range messages {
		om := ollamaMessage{Role: m.Role, Content: m.Content}
		for _, tc := range m.ToolCalls {
			var otc ollamaToolCall
			otc.Function.Name = tc.Name
			otc.Function.Arguments = tc.Arguments
			om.ToolCalls = append(om.ToolCalls, otc)
		}
		out = append(out, om)
	}
	return out
}

func toOllamaTools(tools []ToolSpec) []ollamaTool {
	out := make([]ollamaTool, 0, len(tools))
	for _, t := range tools {
		var ot ollamaTool
		ot.Type = "function"
		ot.Function.Name = t.Name
		ot.Function.Description = t.Description
		ot.Function.Parameters = t.Parameters
		out = append(out, ot)
	}
	return out
}
