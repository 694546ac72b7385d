// Package skills defines the Skill contract and the manager that
// aggregates tool specs, lazily activates skills, and dispatches tool
// calls.
package skills

import (
	"context"

	"github.com/arclabs/arc/internal/providers"
)

// Manifest describes a skill and the tools it declares.
type Manifest struct {
	Name        string
	Version     string
	Description string
	Tools       []providers.ToolSpec
}

// Skill is a bundle of related tools with a lifecycle. Initialize is
// called once at registration; Activate is called lazily before the
// first tool execution and must be idempotent.
type Skill interface {
	Manifest() Manifest
	Initialize(ctx context.Context, cfg map[string]any) error
	Activate(ctx context.Context) error
	ExecuteTool(ctx context.Context, name string, args map[string]any) (providers.ToolResult, error)
	Deactivate(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// Base provides no-op lifecycle methods for skills that only need
// ExecuteTool. Embed it and override what matters.
type Base struct{}

func (Base) Initialize(ctx context.Context, cfg map[string]any) error { return nil }
func (Base) Activate(ctx context.Context) error                       { return nil }
func (Base) Deactivate(ctx context.Context) error                     { return nil }
func (Base) Shutdown(ctx context.Context) error                       { return nil }

// StringArg extracts a string argument, with ok=false when absent or
// of the wrong type.
func StringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key].(string)
	return v, ok
}

// IntArg extracts an integer argument, tolerating JSON float decoding.
func IntArg(args map[string]any, key string) (int, bool) {
	switch v := args[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// StringSliceArg extracts a []string argument from a JSON array.
func StringSliceArg(args map[string]any, key string) ([]string, bool) {
	raw, ok := args[key].([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}
