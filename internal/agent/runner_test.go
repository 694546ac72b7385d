package agent

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/arclabs/arc/internal/bus"
	"github.com/arclabs/arc/internal/memory"
	"github.com/arclabs/arc/internal/providers"
	"github.com/arclabs/arc/internal/security"
	"github.com/arclabs/arc/internal/skills"
)

// execSkill declares a capability the interactive policy would gate
// behind a prompt.
type execSkill struct{ skills.Base }

func (execSkill) Manifest() skills.Manifest {
	return skills.Manifest{
		Name:    "runner",
		Version: "1.0",
		Tools: []providers.ToolSpec{
			{
				Name:                 "run_cmd",
				Description:          "Run a command",
				Parameters:           map[string]any{"type": "object", "properties": map[string]any{}},
				RequiredCapabilities: []providers.Capability{providers.CapShellExec},
			},
		},
	}
}

func (execSkill) ExecuteTool(ctx context.Context, name string, args map[string]any) (providers.ToolResult, error) {
	return providers.OK("exit 0"), nil
}

func TestWorkerRunnerPermissiveEngineNeverPrompts(t *testing.T) {
	events := bus.New(nil)
	skillMgr := skills.NewManager(nil)
	if err := skillMgr.Register(context.Background(), &execSkill{}, nil); err != nil {
		t.Fatal(err)
	}
	mock := providers.NewMock(
		providers.ToolScript(providers.ToolCall{ID: "c1", Name: "run_cmd"}),
		providers.TextScript("All clear."),
	)

	rec := &eventRecorder{}
	rec.attach(events, "security:*")

	run := NewWorkerRunner(func(params skills.WorkerRunParams) (*Loop, error) {
		return New(Deps{
			LLM:      mock,
			Skills:   skillMgr,
			Security: security.NewPermissive(events),
			Session:  memory.NewSession("You are a background worker."),
			Composer: memory.NewComposer(mock.CountTokens, 100000, 10, nil, nil),
			Events:   events,
		}, Config{
			AgentID:        "worker:" + params.TaskName,
			MaxIterations:  params.MaxIterations,
			ExcludedSkills: params.ExcludedSkills,
		}), nil
	}, nil)

	start := time.Now()
	got, err := run(context.Background(), skills.WorkerRunParams{
		TaskID:   "t1",
		TaskName: "check_disk",
		Prompt:   "check disk usage",
		Timeout:  30 * time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != "All clear." {
		t.Errorf("result = %q", got)
	}
	// A gated tool call would park on an approval nobody can answer.
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("worker blocked for %s", elapsed)
	}
	for _, typ := range rec.snapshot() {
		if strings.HasPrefix(typ, "security:") {
			t.Errorf("worker emitted %s, want no security prompts", typ)
		}
	}
}

func TestWorkerRunnerTimesOut(t *testing.T) {
	mock := providers.NewMock(
		providers.ToolScript(providers.ToolCall{ID: "c1", Name: "stall"}),
	)
	events := bus.New(nil)
	skillMgr := skills.NewManager(nil)
	if err := skillMgr.Register(context.Background(), &stallSkill{}, nil); err != nil {
		t.Fatal(err)
	}

	run := NewWorkerRunner(func(params skills.WorkerRunParams) (*Loop, error) {
		return New(Deps{
			LLM:      mock,
			Skills:   skillMgr,
			Security: security.NewPermissive(events),
			Session:  memory.NewSession("worker"),
			Composer: memory.NewComposer(mock.CountTokens, 100000, 10, nil, nil),
			Events:   events,
		}, Config{AgentID: "worker:slow"}), nil
	}, nil)

	_, err := run(context.Background(), skills.WorkerRunParams{
		TaskID:   "t2",
		TaskName: "slow",
		Prompt:   "take forever",
		Timeout:  50 * time.Millisecond,
	})
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Errorf("err = %v, want timeout", err)
	}
}

type stallSkill struct{ skills.Base }

func (stallSkill) Manifest() skills.Manifest {
	return skills.Manifest{
		Name:    "staller",
		Version: "1.0",
		Tools: []providers.ToolSpec{
			{
				Name:       "stall",
				Parameters: map[string]any{"type": "object", "properties": map[string]any{}},
			},
		},
	}
}

func (stallSkill) ExecuteTool(ctx context.Context, name string, args map[string]any) (providers.ToolResult, error) {
	<-ctx.Done()
	return providers.Fail("cancelled"), nil
}
