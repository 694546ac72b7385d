package platform

import (
	"context"
	"strings"
	"testing"

	"github.com/arclabs/arc/internal/notify"
)

func TestInteractiveTurnIncludesPendingResults(t *testing.T) {
	pending := notify.NewCLIChannel(10)
	pending.SetActive(true)
	if err := pending.Deliver(context.Background(), notify.Notification{
		JobName: "morning_brief",
		Content: "3 new emails",
	}); err != nil {
		t.Fatal(err)
	}

	var gotInput string
	var out strings.Builder
	p := NewInteractive(InteractiveOptions{
		In:  strings.NewReader("what did I miss?\n/exit\n"),
		Out: &out,
		Turn: func(ctx context.Context, input string, emit func(string)) error {
			gotInput = input
			emit("you missed a few things")
			return nil
		},
		Pending: pending,
	})

	if err := p.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	if !strings.HasPrefix(gotInput, "The following background task(s) completed") {
		t.Errorf("input missing instruction preamble: %q", gotInput)
	}
	if !strings.Contains(gotInput, `[Background task: "morning_brief" completed at`) {
		t.Errorf("input missing preamble: %q", gotInput)
	}
	if !strings.Contains(gotInput, "3 new emails") {
		t.Errorf("input missing task content: %q", gotInput)
	}
	if !strings.HasSuffix(gotInput, "\n---\nUser message: what did I miss?") {
		t.Errorf("input missing original message: %q", gotInput)
	}
	if !strings.Contains(out.String(), "you missed a few things") {
		t.Errorf("output = %q", out.String())
	}
	if pending.Pending() != 0 {
		t.Error("queue not drained")
	}
}

func TestInteractiveSlashCommands(t *testing.T) {
	var out strings.Builder
	p := NewInteractive(InteractiveOptions{
		In:  strings.NewReader("/cost\n/bogus\n/exit\n"),
		Out: &out,
		Turn: func(ctx context.Context, input string, emit func(string)) error {
			t.Error("slash command reached the agent")
			return nil
		},
		Commands: map[string]func(ctx context.Context, args string) string{
			"cost": func(ctx context.Context, args string) string { return "Total: $0.0042" },
		},
	})

	if err := p.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "Total: $0.0042") {
		t.Errorf("missing command output: %q", out.String())
	}
	if !strings.Contains(out.String(), "Unknown command /bogus") {
		t.Errorf("missing unknown-command notice: %q", out.String())
	}
}

func TestInteractivePlainMessageWithoutPending(t *testing.T) {
	var gotInput string
	var out strings.Builder
	p := NewInteractive(InteractiveOptions{
		In:  strings.NewReader("hello\n/exit\n"),
		Out: &out,
		Turn: func(ctx context.Context, input string, emit func(string)) error {
			gotInput = input
			return nil
		},
	})

	if err := p.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if gotInput != "hello" {
		t.Errorf("input = %q, want the bare message", gotInput)
	}
}
