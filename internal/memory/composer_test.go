package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/arclabs/arc/internal/providers"
)

// countByLen charges one token per character of content so budgets are
// easy to reason about in tests.
func countByLen(messages []providers.Message) int {
	total := 0
	for _, m := range messages {
		total += len(m.Content)
	}
	return total
}

func TestComposeFitsUnchanged(t *testing.T) {
	s := NewSession("sys")
	s.AppendUser("hello")
	s.AppendAssistant("hi there", nil)

	c := NewComposer(countByLen, 1000, 10, nil, nil)
	got := c.Compose(context.Background(), s, "hello")

	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].Role != "system" || got[0].Content != "sys" {
		t.Errorf("system = %+v", got[0])
	}
	if got[2].Content != "hi there" {
		t.Errorf("last = %+v", got[2])
	}
}

func TestComposeTruncatesFromFront(t *testing.T) {
	s := NewSession("sys")
	for i := 0; i < 10; i++ {
		s.AppendUser(strings.Repeat("x", 20))
	}
	// Budget admits the system prompt plus roughly three history
	// messages.
	c := NewComposer(countByLen, 3+3*20, 10, nil, nil)
	got := c.Compose(context.Background(), s, "q")

	if got[0].Role != "system" {
		t.Fatal("system message dropped")
	}
	if len(got) != 4 {
		t.Fatalf("len = %d, want 4 (system + 3 recent)", len(got))
	}
	if countByLen(got) > 63 {
		t.Fatalf("composed transcript over budget: %d", countByLen(got))
	}
}

func TestComposeWorstCaseKeepsSystemOnly(t *testing.T) {
	s := NewSession(strings.Repeat("s", 100))
	s.AppendUser(strings.Repeat("x", 100))

	c := NewComposer(countByLen, 10, 10, nil, nil)
	got := c.Compose(context.Background(), s, "q")

	if len(got) != 1 || got[0].Role != "system" {
		t.Fatalf("got %d messages, want bare system prompt", len(got))
	}
}

func TestTrimSkipsDanglingToolResult(t *testing.T) {
	history := []providers.Message{
		{Role: "user", Content: "a"},
		{Role: "assistant", ToolCalls: []providers.ToolCall{{ID: "1", Name: "t"}}},
		{Role: "tool", Content: "r", ToolCallID: "1"},
		{Role: "assistant", Content: "done"},
	}
	got := trimToWindow(history, 2)
	if len(got) != 1 || got[0].Role != "assistant" {
		t.Fatalf("got %+v, want trailing assistant only", got)
	}
}

type fakeManager struct {
	core     string
	relevant string
}

func (f *fakeManager) CoreContext(ctx context.Context) (string, error) { return f.core, nil }
func (f *fakeManager) RetrieveRelevant(ctx context.Context, query string, limit int) (string, error) {
	return f.relevant, nil
}
func (f *fakeManager) StoreTurn(ctx context.Context, u, a string) error { return nil }
func (f *fakeManager) ShouldDistill() bool                              { return false }
func (f *fakeManager) Distill(ctx context.Context, recent []providers.Message) error {
	return nil
}

func TestComposeReadsLiveSystemPromptSource(t *testing.T) {
	s := NewSession("stale prompt")
	s.AppendUser("q")

	prompt := "persona v1"
	c := NewComposer(countByLen, 10000, 10, nil, nil)
	c.SetSystemPromptSource(func() string { return prompt })

	got := c.Compose(context.Background(), s, "q")
	if got[0].Content != "persona v1" {
		t.Errorf("system = %q, want the live source", got[0].Content)
	}

	// A reload between turns shows up on the next compose.
	prompt = "persona v2 with new skills"
	got = c.Compose(context.Background(), s, "q")
	if got[0].Content != "persona v2 with new skills" {
		t.Errorf("system = %q, want the reloaded prompt", got[0].Content)
	}
}

func TestComposeEnrichesSystemPrompt(t *testing.T) {
	s := NewSession("sys")
	s.AppendUser("q")
	mgr := &fakeManager{core: "likes go", relevant: "discussed caching"}

	c := NewComposer(countByLen, 10000, 10, mgr, nil)
	got := c.Compose(context.Background(), s, "q")

	sysContent := got[0].Content
	if !strings.Contains(sysContent, "likes go") {
		t.Error("core facts missing from system prompt")
	}
	if !strings.Contains(sysContent, "discussed caching") {
		t.Error("episodic memories missing from system prompt")
	}
}
