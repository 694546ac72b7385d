// Package agent runs the streaming think/act/observe loop and tracks
// every background agent for graceful shutdown.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/arclabs/arc/internal/bus"
	"github.com/arclabs/arc/internal/memory"
	"github.com/arclabs/arc/internal/providers"
	"github.com/arclabs/arc/internal/security"
	"github.com/arclabs/arc/internal/skills"
)

// maxIterationsNudge is the user-role message for the final no-tools
// completion after the iteration budget runs out.
const maxIterationsNudge = "You have used the maximum number of tool calls. " +
	"Do NOT call any more. Answer from what you have."

// toolPreviewLen bounds the output preview in skill:tool_result events.
const toolPreviewLen = 200

// Config tunes one loop instance.
type Config struct {
	AgentID        string
	MaxIterations  int
	Temperature    float64
	RecentWindow   int
	ExcludedSkills []string
}

// Deps are the loop's collaborators.
type Deps struct {
	LLM      providers.Provider
	Skills   *skills.Manager
	Security *security.Engine
	Session  *memory.Session
	Composer *memory.Composer
	Memory   memory.Manager // nil disables long-term memory
	Events   *bus.Bus
	Logger   *slog.Logger

	// Spawn runs fire-and-forget work (memory persistence) on a
	// tracked goroutine; nil falls back to a plain goroutine.
	Spawn func(name string, fn func(ctx context.Context))
}

// Loop is a single conversation's think/act/observe driver. One
// active turn at a time.
type Loop struct {
	llm      providers.Provider
	skills   *skills.Manager
	security *security.Engine
	session  *memory.Session
	composer *memory.Composer
	memory   memory.Manager
	events   *bus.Bus
	spawn    func(name string, fn func(ctx context.Context))
	logger   *slog.Logger
	tracer   trace.Tracer
	cfg      Config

	state stateBox
}

// New builds a loop. Zero MaxIterations defaults to 20.
func New(deps Deps, cfg Config) *Loop {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 20
	}
	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = 10
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	spawn := deps.Spawn
	if spawn == nil {
		spawn = func(name string, fn func(ctx context.Context)) {
			go fn(context.Background())
		}
	}
	l := &Loop{
		llm:      deps.LLM,
		skills:   deps.Skills,
		security: deps.Security,
		session:  deps.Session,
		composer: deps.Composer,
		memory:   deps.Memory,
		events:   deps.Events,
		spawn:    spawn,
		logger:   deps.Logger,
		tracer:   otel.Tracer("arc/agent"),
		cfg:      cfg,
	}
	l.state.update(func(s *State) {
		s.AgentID = cfg.AgentID
		s.Status = StatusIdle
	})
	return l
}

// State returns a snapshot of the loop's progress.
func (l *Loop) State() State { return l.state.snapshot() }

// Session exposes the loop's transcript (for /clear and display).
func (l *Loop) Session() *memory.Session { return l.session }

func (l *Loop) setStatus(s Status) {
	l.state.update(func(st *State) { st.Status = s })
}

func (l *Loop) emitEvent(ctx context.Context, eventType string, data map[string]any) {
	ev := bus.NewEvent(eventType, l.cfg.AgentID, data)
	l.events.Emit(ctx, ev)
}

// Run executes one turn: append the user message, loop up to
// MaxIterations streaming LLM output through emit and dispatching
// tool calls, then fall back to a final no-tools completion when the
// budget runs out. LLM errors propagate to the caller after an
// agent:error event.
func (l *Loop) Run(ctx context.Context, userInput string, emit func(string)) error {
	ctx, span := l.tracer.Start(ctx, "agent.run",
		trace.WithAttributes(attribute.String("agent_id", l.cfg.AgentID)))
	defer span.End()

	l.session.AppendUser(userInput)
	l.state.update(func(s *State) {
		s.Status = StatusComposing
		s.Iteration = 0
		s.StartedAt = time.Now()
	})
	l.emitEvent(ctx, bus.EventAgentStart, map[string]any{
		"input_preview": preview(userInput, 80),
	})

	tools := l.allowedTools()
	iteration := 0
	for iteration < l.cfg.MaxIterations {
		iteration++
		l.state.update(func(s *State) { s.Iteration = iteration })
		l.emitEvent(ctx, bus.EventAgentThinking, map[string]any{"iteration": iteration})

		messages := l.composer.Compose(ctx, l.session, userInput)
		l.setStatus(StatusThinking)

		text, final, err := l.generate(ctx, messages, tools, emit)
		if err != nil {
			l.setStatus(StatusError)
			l.emitEvent(ctx, bus.EventAgentError, map[string]any{"error": err.Error()})
			return fmt.Errorf("llm generation: %w", err)
		}

		if final.StopReason != providers.StopToolUse || len(final.ToolCalls) == 0 {
			l.session.AppendAssistant(text, nil)
			l.setStatus(StatusComplete)
			l.persistTurn(userInput, text)
			l.emitEvent(ctx, bus.EventAgentComplete, map[string]any{
				"reason":     "complete",
				"iterations": iteration,
			})
			return nil
		}

		l.setStatus(StatusActing)
		l.session.AppendAssistant(text, final.ToolCalls)
		// Strictly sequential, in producer order, so the next turn
		// sees results deterministically.
		for _, call := range final.ToolCalls {
			result := l.executeToolWithApproval(ctx, call)
			l.session.AppendToolResult(result)
		}
	}

	// Iteration budget exhausted: one final completion without tools.
	emit("\n\n---\n\n")
	messages := l.composer.Compose(ctx, l.session, userInput)
	messages = append(messages, providers.Message{Role: "user", Content: maxIterationsNudge})
	text, _, err := l.generate(ctx, messages, nil, emit)
	if err != nil {
		l.setStatus(StatusError)
		l.emitEvent(ctx, bus.EventAgentError, map[string]any{"error": err.Error()})
		return fmt.Errorf("final completion: %w", err)
	}
	l.session.AppendAssistant(text, nil)
	l.setStatus(StatusComplete)
	l.persistTurn(userInput, text)
	l.emitEvent(ctx, bus.EventAgentComplete, map[string]any{
		"reason":     "max_iterations",
		"iterations": iteration,
	})
	return nil
}

// generate streams one LLM call, yielding text to emit as it arrives
// and returning the accumulated text plus the final chunk.
func (l *Loop) generate(ctx context.Context, messages []providers.Message, tools []providers.ToolSpec, emit func(string)) (string, providers.Chunk, error) {
	ctx, span := l.tracer.Start(ctx, "llm.generate",
		trace.WithAttributes(
			attribute.String("model", l.llm.ModelInfo().Name),
			attribute.Int("messages", len(messages)),
			attribute.Int("tools", len(tools)),
		))
	defer span.End()

	var text strings.Builder
	var final providers.Chunk
	err := l.llm.Generate(ctx, providers.GenerateRequest{
		Messages:    messages,
		Tools:       tools,
		Temperature: l.cfg.Temperature,
	}, func(c providers.Chunk) {
		if c.Text != "" {
			text.WriteString(c.Text)
			emit(c.Text)
		}
		if c.StopReason != "" {
			final = c
		}
	})
	if err != nil {
		return "", providers.Chunk{}, err
	}

	span.SetAttributes(
		attribute.Int("input_tokens", final.InputTokens),
		attribute.Int("output_tokens", final.OutputTokens),
		attribute.String("stop_reason", string(final.StopReason)),
	)
	l.state.update(func(s *State) {
		s.TokensUsed += final.InputTokens + final.OutputTokens
		info := l.llm.ModelInfo()
		s.CostSoFar += float64(final.InputTokens)*info.InputCostPerToken +
			float64(final.OutputTokens)*info.OutputCostPerToken
	})
	l.emitEvent(ctx, bus.EventLLMResponse, map[string]any{
		"stop_reason":   string(final.StopReason),
		"input_tokens":  final.InputTokens,
		"output_tokens": final.OutputTokens,
		"tool_calls":    len(final.ToolCalls),
	})
	return text.String(), final, nil
}

// executeToolWithApproval gates one tool call through the security
// engine and dispatches it. Denials and unknown tools come back as
// failure results, never errors.
func (l *Loop) executeToolWithApproval(ctx context.Context, call providers.ToolCall) providers.ToolResult {
	ctx, span := l.tracer.Start(ctx, "tool.execute",
		trace.WithAttributes(attribute.String("tool", call.Name)))
	defer span.End()

	spec, ok := l.skills.ToolSpec(call.Name)
	if !ok {
		result := providers.Fail(fmt.Sprintf("unknown tool %q", call.Name))
		result.ToolCallID = call.ID
		return result
	}

	l.setStatus(StatusWaitingApproval)
	decision := l.security.CheckAndApprove(ctx, spec, call.Arguments)
	l.setStatus(StatusActing)
	if !decision.Allowed {
		l.emitEvent(ctx, bus.EventSecurityDenied, map[string]any{
			"tool":   call.Name,
			"reason": decision.Reason,
		})
		result := providers.Fail("Permission denied: " + decision.Reason)
		result.ToolCallID = call.ID
		return result
	}

	l.emitEvent(ctx, bus.EventSkillToolCall, map[string]any{
		"tool":      call.Name,
		"arguments": call.Arguments,
	})
	result := l.skills.ExecuteTool(ctx, call.Name, call.Arguments)
	result.ToolCallID = call.ID
	span.SetAttributes(attribute.Bool("success", result.Success))

	l.emitEvent(ctx, bus.EventSkillToolResult, map[string]any{
		"tool":    call.Name,
		"success": result.Success,
		"preview": preview(resultText(result), toolPreviewLen),
	})
	return result
}

// persistTurn launches the fire-and-forget memory tasks.
func (l *Loop) persistTurn(userInput, assistantOutput string) {
	if l.memory == nil {
		return
	}
	mgr := l.memory
	recent := l.session.Recent(l.cfg.RecentWindow)
	l.spawn("memory_persist", func(ctx context.Context) {
		if err := mgr.StoreTurn(ctx, userInput, assistantOutput); err != nil {
			l.logger.Warn("store turn failed", "agent", l.cfg.AgentID, "error", err)
		}
		if mgr.ShouldDistill() {
			if err := mgr.Distill(ctx, recent); err != nil {
				l.logger.Warn("distillation failed", "agent", l.cfg.AgentID, "error", err)
			}
		}
	})
}

// allowedTools filters the registered tool specs by excluded skills.
func (l *Loop) allowedTools() []providers.ToolSpec {
	if len(l.cfg.ExcludedSkills) == 0 {
		return l.skills.AllToolSpecs()
	}
	excluded := make(map[string]bool, len(l.cfg.ExcludedSkills))
	for _, name := range l.cfg.ExcludedSkills {
		excluded[name] = true
	}
	var tools []providers.ToolSpec
	for _, spec := range l.skills.AllToolSpecs() {
		owner, ok := l.skills.SkillForTool(spec.Name)
		if ok && excluded[owner] {
			continue
		}
		tools = append(tools, spec)
	}
	return tools
}

func resultText(r providers.ToolResult) string {
	if r.Success {
		return r.Output
	}
	return r.Error
}

// preview truncates to at most n bytes without splitting a rune.
func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
