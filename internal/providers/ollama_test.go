package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestStopReasonFor(t *testing.T) {
	tests := []struct {
		doneReason string
		hasTools   bool
		want       StopReason
	}{
		{"stop", false, StopComplete},
		{"stop", true, StopToolUse},
		{"length", false, StopMaxTokens},
		{"", false, StopComplete},
	}
	for _, tt := range tests {
		if got := stopReasonFor(tt.doneReason, tt.hasTools); got != tt.want {
			t.Errorf("stopReasonFor(%q, %v) = %q, want %q", tt.doneReason, tt.hasTools, got, tt.want)
		}
	}
}

func TestOllamaGenerateStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q", r.URL.Path)
		}
		lines := []string{
			`{"message":{"role":"assistant","content":"Hel"},"done":false}`,
			`{"message":{"role":"assistant","content":"lo"},"done":false}`,
			`{"message":{"role":"assistant","content":""},"done":true,"done_reason":"stop","prompt_eval_count":12,"eval_count":3}`,
		}
		for _, l := range lines {
			w.Write([]byte(l + "\n"))
		}
	}))
	defer srv.Close()

	o := NewOllama(OllamaOptions{BaseURL: srv.URL, Model: "test"})
	var text strings.Builder
	var final Chunk
	err := o.Generate(context.Background(), GenerateRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	}, func(c Chunk) {
		text.WriteString(c.Text)
		if c.StopReason != "" {
			final = c
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if text.String() != "Hello" {
		t.Errorf("text = %q, want Hello", text.String())
	}
	if final.StopReason != StopComplete {
		t.Errorf("stop_reason = %q, want complete", final.StopReason)
	}
	if final.InputTokens != 12 || final.OutputTokens != 3 {
		t.Errorf("tokens = %d/%d, want 12/3", final.InputTokens, final.OutputTokens)
	}
}

func TestOllamaGenerateToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lines := []string{
			`{"message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"greet","arguments":{"name":"World"}}}]},"done":false}`,
			`{"message":{"role":"assistant","content":""},"done":true,"done_reason":"stop","prompt_eval_count":8,"eval_count":2}`,
		}
		for _, l := range lines {
			w.Write([]byte(l + "\n"))
		}
	}))
	defer srv.Close()

	o := NewOllama(OllamaOptions{BaseURL: srv.URL})
	var final Chunk
	err := o.Generate(context.Background(), GenerateRequest{}, func(c Chunk) {
		if c.StopReason != "" {
			final = c
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if final.StopReason != StopToolUse {
		t.Errorf("stop_reason = %q, want tool_use", final.StopReason)
	}
	if len(final.ToolCalls) != 1 || final.ToolCalls[0].Name != "greet" {
		t.Fatalf("tool_calls = %+v", final.ToolCalls)
	}
	if final.ToolCalls[0].ID == "" {
		t.Error("tool call id must be synthesized")
	}
}

func TestMockScripts(t *testing.T) {
	m := NewMock(
		ToolScript(ToolCall{ID: "1", Name: "greet", Arguments: map[string]any{"name": "World"}}),
		TextScript("I greeted World!"),
	)

	var first Chunk
	if err := m.Generate(context.Background(), GenerateRequest{}, func(c Chunk) { first = c }); err != nil {
		t.Fatal(err)
	}
	if first.StopReason != StopToolUse {
		t.Errorf("first stop = %q", first.StopReason)
	}

	var text strings.Builder
	if err := m.Generate(context.Background(), GenerateRequest{}, func(c Chunk) { text.WriteString(c.Text) }); err != nil {
		t.Fatal(err)
	}
	if text.String() != "I greeted World!" {
		t.Errorf("text = %q", text.String())
	}
	if m.Calls() != 2 {
		t.Errorf("calls = %d, want 2", m.Calls())
	}
}
