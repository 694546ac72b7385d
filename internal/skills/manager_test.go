package skills

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/arclabs/arc/internal/providers"
)

// testSkill is a scriptable skill for manager tests.
type testSkill struct {
	Base
	name      string
	tools     []providers.ToolSpec
	activates atomic.Int64
	shutdowns atomic.Int64
	execute   func(name string, args map[string]any) (providers.ToolResult, error)
}

func (s *testSkill) Manifest() Manifest {
	return Manifest{Name: s.name, Version: "1.0", Tools: s.tools}
}

func (s *testSkill) Activate(ctx context.Context) error {
	s.activates.Add(1)
	return nil
}

func (s *testSkill) Shutdown(ctx context.Context) error {
	s.shutdowns.Add(1)
	return nil
}

func (s *testSkill) ExecuteTool(ctx context.Context, name string, args map[string]any) (providers.ToolResult, error) {
	if s.execute != nil {
		return s.execute(name, args)
	}
	return providers.OK("ok"), nil
}

func greeterSkill() *testSkill {
	return &testSkill{
		name: "greeter",
		tools: []providers.ToolSpec{
			{Name: "greet", Description: "Say hello"},
		},
		execute: func(name string, args map[string]any) (providers.ToolResult, error) {
			who, _ := StringArg(args, "name")
			return providers.OK("Hello, " + who + "!"), nil
		},
	}
}

func TestExecuteUnknownToolListsKnown(t *testing.T) {
	m := NewManager(nil)
	if err := m.Register(context.Background(), greeterSkill(), nil); err != nil {
		t.Fatal(err)
	}

	result := m.ExecuteTool(context.Background(), "nope", nil)
	if result.Success {
		t.Fatal("unknown tool succeeded")
	}
	if !strings.Contains(result.Error, "greet") {
		t.Errorf("error %q does not list known tools", result.Error)
	}
}

func TestLazyActivationExactlyOnce(t *testing.T) {
	m := NewManager(nil)
	s := greeterSkill()
	if err := m.Register(context.Background(), s, nil); err != nil {
		t.Fatal(err)
	}
	if m.IsActivated("greeter") {
		t.Fatal("skill activated before first tool call")
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.ExecuteTool(context.Background(), "greet", map[string]any{"name": "World"})
		}()
	}
	wg.Wait()

	if got := s.activates.Load(); got != 1 {
		t.Fatalf("Activate called %d times, want 1", got)
	}
	if !m.IsActivated("greeter") {
		t.Fatal("skill not marked activated")
	}
}

func TestExecuteCapturesErrorsAndPanics(t *testing.T) {
	m := NewManager(nil)
	s := &testSkill{
		name:  "broken",
		tools: []providers.ToolSpec{{Name: "fail"}, {Name: "explode"}},
		execute: func(name string, args map[string]any) (providers.ToolResult, error) {
			if name == "explode" {
				panic("kaboom")
			}
			return providers.ToolResult{}, errors.New("deliberate failure")
		},
	}
	if err := m.Register(context.Background(), s, nil); err != nil {
		t.Fatal(err)
	}

	result := m.ExecuteTool(context.Background(), "fail", nil)
	if result.Success || !strings.Contains(result.Error, "deliberate failure") {
		t.Errorf("error result = %+v", result)
	}

	result = m.ExecuteTool(context.Background(), "explode", nil)
	if result.Success || !strings.Contains(result.Error, "kaboom") {
		t.Errorf("panic result = %+v", result)
	}
}

func TestShutdownOnlyActivated(t *testing.T) {
	m := NewManager(nil)
	used := greeterSkill()
	unused := &testSkill{name: "idle", tools: []providers.ToolSpec{{Name: "noop"}}}
	ctx := context.Background()
	if err := m.Register(ctx, used, nil); err != nil {
		t.Fatal(err)
	}
	if err := m.Register(ctx, unused, nil); err != nil {
		t.Fatal(err)
	}

	m.ExecuteTool(ctx, "greet", map[string]any{"name": "x"})
	m.ShutdownAll(ctx)

	if got := used.shutdowns.Load(); got != 1 {
		t.Errorf("activated skill shut down %d times, want 1", got)
	}
	if got := unused.shutdowns.Load(); got != 0 {
		t.Errorf("never-activated skill shut down %d times, want 0", got)
	}
}

func TestLastRegistrationWins(t *testing.T) {
	m := NewManager(nil)
	ctx := context.Background()
	first := &testSkill{
		name:  "first",
		tools: []providers.ToolSpec{{Name: "shared"}},
		execute: func(name string, args map[string]any) (providers.ToolResult, error) {
			return providers.OK("from first"), nil
		},
	}
	second := &testSkill{
		name:  "second",
		tools: []providers.ToolSpec{{Name: "shared"}},
		execute: func(name string, args map[string]any) (providers.ToolResult, error) {
			return providers.OK("from second"), nil
		},
	}
	if err := m.Register(ctx, first, nil); err != nil {
		t.Fatal(err)
	}
	if err := m.Register(ctx, second, nil); err != nil {
		t.Fatal(err)
	}

	result := m.ExecuteTool(ctx, "shared", nil)
	if result.Output != "from second" {
		t.Errorf("output = %q, want from second", result.Output)
	}
	owner, _ := m.SkillForTool("shared")
	if owner != "second" {
		t.Errorf("owner = %q, want second", owner)
	}
}

func TestAllToolSpecsSorted(t *testing.T) {
	m := NewManager(nil)
	ctx := context.Background()
	s := &testSkill{
		name:  "multi",
		tools: []providers.ToolSpec{{Name: "zeta"}, {Name: "alpha"}},
	}
	if err := m.Register(ctx, s, nil); err != nil {
		t.Fatal(err)
	}

	specs := m.AllToolSpecs()
	if len(specs) != 2 || specs[0].Name != "alpha" || specs[1].Name != "zeta" {
		t.Errorf("specs = %+v, want sorted [alpha zeta]", specs)
	}
}
