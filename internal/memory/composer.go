package memory

import (
	"context"
	"log/slog"
	"strings"

	"github.com/arclabs/arc/internal/providers"
)

// Composer assembles the message list sent to the LLM: the system
// prompt enriched with long-term memory, then as much of the recent
// transcript as fits the token budget.
type Composer struct {
	counter      func([]providers.Message) int
	budget       int
	recentWindow int
	manager      Manager
	promptSource func() string
	logger       *slog.Logger
}

// NewComposer builds a composer. budget is the input-token ceiling
// (context window minus reserved output tokens); manager may be nil
// when long-term memory is disabled.
func NewComposer(counter func([]providers.Message) int, budget, recentWindow int, manager Manager, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{
		counter:      counter,
		budget:       budget,
		recentWindow: recentWindow,
		manager:      manager,
		logger:       logger,
	}
}

// Compose returns the transcript for one LLM call. The system prompt
// is never dropped; when the transcript exceeds the budget the window
// of retained non-system messages shrinks from the front until it
// fits, down to the system prompt alone in the worst case.
// SetSystemPromptSource makes Compose read the system prompt from fn
// instead of the session's stored copy, so edits to soft skill files
// show up on the next turn without a restart.
func (c *Composer) SetSystemPromptSource(fn func() string) {
	c.promptSource = fn
}

func (c *Composer) Compose(ctx context.Context, session *Session, query string) []providers.Message {
	system := session.SystemPrompt()
	if c.promptSource != nil {
		if s := c.promptSource(); s != "" {
			system = s
		}
	}
	if c.manager != nil {
		if core, err := c.manager.CoreContext(ctx); err != nil {
			c.logger.Warn("core memory unavailable", "error", err)
		} else if core != "" {
			system += "\n\n## What you know about the user\n" + core
		}
		if relevant, err := c.manager.RetrieveRelevant(ctx, query, 5); err != nil {
			c.logger.Warn("episodic retrieval failed", "error", err)
		} else if relevant != "" {
			system += "\n\n## Relevant memories\n" + relevant
		}
	}

	history := session.Messages()
	full := append([]providers.Message{{Role: "system", Content: system}}, history...)
	if c.counter(full) <= c.budget {
		return full
	}

	for window := min(c.recentWindow, len(history)); window >= 0; window-- {
		candidate := append(
			[]providers.Message{{Role: "system", Content: system}},
			trimToWindow(history, window)...,
		)
		if c.counter(candidate) <= c.budget {
			if window < len(history) {
				c.logger.Debug("transcript truncated",
					"kept", window, "dropped", len(history)-window)
			}
			return candidate
		}
	}

	// Even the bare system prompt exceeds the budget; send it anyway.
	return []providers.Message{{Role: "system", Content: system}}
}

// trimToWindow keeps the last `window` messages but never lets the
// slice start with a dangling tool result.
func trimToWindow(history []providers.Message, window int) []providers.Message {
	if window >= len(history) {
		return history
	}
	start := len(history) - window
	for start < len(history) && history[start].Role == "tool" {
		start++
	}
	return history[start:]
}

// Preview renders a short single-line digest of a transcript, used in
// debug logs.
func Preview(messages []providers.Message, maxLen int) string {
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteString(" | ")
		}
		b.WriteString(m.Role)
		if m.Content != "" {
			b.WriteString(":")
			content := m.Content
			if len(content) > 40 {
				content = content[:40]
			}
			b.WriteString(content)
		}
		if b.Len() > maxLen {
			break
		}
	}
	s := b.String()
	if len(s) > maxLen {
		s = s[:maxLen] + "…"
	}
	return s
}
