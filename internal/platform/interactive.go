package platform

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/arclabs/arc/internal/bus"
	"github.com/arclabs/arc/internal/escalation"
	"github.com/arclabs/arc/internal/notify"
	"github.com/arclabs/arc/internal/security"
)

// InteractiveOptions wires the terminal session.
type InteractiveOptions struct {
	In  io.Reader
	Out io.Writer

	Turn        TurnFunc
	Events      *bus.Bus
	Approvals   *security.ApprovalFlow
	Escalations *escalation.Bus
	Pending     *notify.CLIChannel

	// Commands maps slash-command names (without the slash) to their
	// bodies; args is the rest of the line. The returned string is
	// printed verbatim.
	Commands map[string]func(ctx context.Context, args string) string

	Logger *slog.Logger
}

// Interactive is the terminal chat session: a prompt loop that runs
// agent turns, answers approval and escalation prompts inline, and
// surfaces background notifications between turns.
type Interactive struct {
	in          *bufio.Scanner
	out         io.Writer
	turn        TurnFunc
	events      *bus.Bus
	approvals   *security.ApprovalFlow
	escalations *escalation.Bus
	pending     *notify.CLIChannel
	commands    map[string]func(ctx context.Context, args string) string
	logger      *slog.Logger

	turnInProgress atomic.Bool
	stopped        atomic.Bool
}

// NewInteractive builds the session.
func NewInteractive(opts InteractiveOptions) *Interactive {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Interactive{
		in:          bufio.NewScanner(opts.In),
		out:         opts.Out,
		turn:        opts.Turn,
		events:      opts.Events,
		approvals:   opts.Approvals,
		escalations: opts.Escalations,
		pending:     opts.Pending,
		commands:    opts.Commands,
		logger:      opts.Logger,
	}
}

func (p *Interactive) Name() string { return "interactive" }

// Stop ends the session after the current prompt read.
func (p *Interactive) Stop() error {
	p.stopped.Store(true)
	return nil
}

// Start runs the prompt loop until /exit, EOF, or ctx cancellation.
func (p *Interactive) Start(ctx context.Context) error {
	if p.pending != nil {
		p.pending.SetActive(true)
		defer p.pending.SetActive(false)
	}
	p.subscribe(ctx)
	go p.watchPending(ctx)

	for !p.stopped.Load() && ctx.Err() == nil {
		fmt.Fprint(p.out, "\nyou> ")
		if !p.in.Scan() {
			return p.in.Err()
		}
		line := strings.TrimSpace(p.in.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if p.runCommand(ctx, strings.TrimPrefix(line, "/")) {
				return nil
			}
			continue
		}
		p.runTurn(ctx, line)
	}
	return nil
}

// runCommand executes one slash command; true means exit.
func (p *Interactive) runCommand(ctx context.Context, line string) bool {
	name, args, _ := strings.Cut(line, " ")
	args = strings.TrimSpace(args)
	switch name {
	case "exit", "quit":
		return true
	case "help":
		fmt.Fprintln(p.out, "Commands:")
		fmt.Fprintln(p.out, "  /help  — this list")
		for cmd := range p.commands {
			fmt.Fprintf(p.out, "  /%s\n", cmd)
		}
		fmt.Fprintln(p.out, "  /exit  — leave the session")
		return false
	}
	if fn, ok := p.commands[name]; ok {
		fmt.Fprintln(p.out, fn(ctx, args))
		return false
	}
	fmt.Fprintf(p.out, "Unknown command /%s — try /help\n", name)
	return false
}

// runTurn prepends any queued background results to the user's
// message so the agent can react to them, then streams the reply.
func (p *Interactive) runTurn(ctx context.Context, userInput string) {
	input := userInput
	if p.pending != nil {
		if queued := p.pending.Drain(); len(queued) > 0 {
			var b strings.Builder
			b.WriteString("The following background task(s) completed; mention their key findings before responding.\n\n")
			for _, n := range queued {
				fmt.Fprintf(&b, "[Background task: %q completed at %s]\n%s\n\n",
					n.JobName, n.FiredAt.Format("15:04"), n.Content)
			}
			b.WriteString("\n---\nUser message: ")
			b.WriteString(userInput)
			input = b.String()
			fmt.Fprintf(p.out, "(including %d background result(s) in this turn)\n", len(queued))
		}
	}

	p.turnInProgress.Store(true)
	defer p.turnInProgress.Store(false)

	fmt.Fprint(p.out, "\n")
	err := p.turn(ctx, input, func(s string) { fmt.Fprint(p.out, s) })
	fmt.Fprint(p.out, "\n")
	if err != nil {
		fmt.Fprintf(p.out, "Error: %v\n", err)
	}
}

// subscribe attaches the session's event displays: activity lines for
// the main agent, spawn notices, and the blocking approval and
// escalation prompts.
func (p *Interactive) subscribe(ctx context.Context) {
	if p.events == nil {
		return
	}
	p.events.Subscribe("skill:*", func(ctx context.Context, ev bus.Event) error {
		if ev.Source != "main" {
			return nil
		}
		switch ev.Type {
		case bus.EventSkillToolCall:
			fmt.Fprintf(p.out, "\n  → %s\n", ev.String("tool"))
		case bus.EventSkillToolResult:
			status := "ok"
			if !ev.Bool("success") {
				status = "failed"
			}
			fmt.Fprintf(p.out, "  ← %s %s\n", ev.String("tool"), status)
		}
		return nil
	})
	p.events.Subscribe(bus.EventAgentSpawned, func(ctx context.Context, ev bus.Event) error {
		fmt.Fprintf(p.out, "\n🚀 background task started: %s\n", ev.String("task_name"))
		return nil
	})
	p.events.Subscribe(bus.EventAgentTaskComplete, func(ctx context.Context, ev bus.Event) error {
		status := "✅"
		if !ev.Bool("success") {
			status = "❌"
		}
		fmt.Fprintf(p.out, "\n%s background task finished: %s\n", status, ev.String("task_name"))
		return nil
	})
	if p.approvals != nil {
		p.events.Subscribe(bus.EventSecurityApproval, func(ctx context.Context, ev bus.Event) error {
			p.promptApproval(ev)
			return nil
		})
	}
	if p.escalations != nil {
		p.events.Subscribe(bus.EventAgentEscalation, func(ctx context.Context, ev bus.Event) error {
			p.promptEscalation(ev)
			return nil
		})
	}
}

// promptApproval renders the four-way permission prompt. The agent
// loop is parked inside the security engine until Resolve runs.
func (p *Interactive) promptApproval(ev bus.Event) {
	fmt.Fprintf(p.out, "\n🔐 Permission request: %s\n", ev.String("tool_name"))
	if desc := ev.String("tool_description"); desc != "" {
		fmt.Fprintf(p.out, "   %s\n", desc)
	}
	fmt.Fprintf(p.out, "   arguments: %v\n", ev.Data["arguments"])

	var choice string
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Allow this tool call?").
			Options(
				huh.NewOption("Allow once", string(security.AllowOnce)),
				huh.NewOption("Allow always", string(security.AllowAlways)),
				huh.NewOption("Deny", string(security.Deny)),
				huh.NewOption("Deny always", string(security.DenyAlways)),
			).
			Value(&choice),
	))
	if err := form.Run(); err != nil {
		p.logger.Warn("approval prompt failed", "error", err)
		choice = string(security.Deny)
	}
	p.approvals.Resolve(ev.String("request_id"), security.Response(choice))
}

// promptEscalation takes a free-text answer for a blocked background
// agent.
func (p *Interactive) promptEscalation(ev bus.Event) {
	fmt.Fprintf(p.out, "\n❓ %s asks:\n   %s\n", ev.String("from_agent"), ev.String("question"))

	var answer string
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Your answer (empty to let it decide)").
			Value(&answer),
	))
	if err := form.Run(); err != nil {
		p.logger.Warn("escalation prompt failed", "error", err)
	}
	if answer == "" {
		answer = escalation.FallbackAnswer
	}
	p.escalations.Resolve(ev.String("escalation_id"), answer)
}

// watchPending renders queued background results while the prompt is
// idle, so they never land in the middle of a streaming turn. Results
// arriving during a turn are drained at the start of the next one.
func (p *Interactive) watchPending(ctx context.Context) {
	if p.pending == nil {
		return
	}
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.turnInProgress.Load() || p.stopped.Load() || p.pending.Pending() == 0 {
				continue
			}
			for _, n := range p.pending.Drain() {
				p.renderPanel(n)
			}
		}
	}
}

// renderPanel draws one notification in a bordered block.
func (p *Interactive) renderPanel(n notify.Notification) {
	border := strings.Repeat("─", 56)
	fmt.Fprintf(p.out, "\n┌%s\n", border)
	fmt.Fprintf(p.out, "│ 🔔 %s (%s)\n", n.JobName, n.FiredAt.Format("15:04"))
	for _, line := range strings.Split(strings.TrimRight(n.Content, "\n"), "\n") {
		fmt.Fprintf(p.out, "│ %s\n", line)
	}
	fmt.Fprintf(p.out, "└%s\n", border)
}
