// Package security gates every tool call behind capability policy and,
// when the policy demands it, an interactive approval round-trip.
package security

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/arclabs/arc/internal/bus"
	"github.com/arclabs/arc/internal/config"
	"github.com/arclabs/arc/internal/providers"
)

// ErrNoApprovalFlow is returned when an interactive engine is built
// without an approval flow to prompt on.
var ErrNoApprovalFlow = errors.New("interactive security engine requires an approval flow")

// Decision is the outcome of a policy check.
type Decision struct {
	Allowed          bool
	Reason           string
	RequiresApproval bool
	UserResponse     Response
	Remembered       bool
}

// Engine evaluates four ordered policy layers per required capability:
// never-allow, remembered user decisions, auto-allow, always-ask.
// Unknown capabilities fall through to always-ask.
type Engine struct {
	bus       *bus.Bus
	approvals *ApprovalFlow
	logger    *slog.Logger

	permissive bool
	neverAllow map[providers.Capability]bool
	autoAllow  map[providers.Capability]bool
	alwaysAsk  map[providers.Capability]bool

	mu         sync.Mutex
	remembered map[string]Response // "tool|capability"
}

// NewEngine builds an interactive engine from policy config. The
// approval flow is mandatory: an always-ask policy without a way to
// ask would silently deny everything.
func NewEngine(cfg config.SecurityConfig, b *bus.Bus, approvals *ApprovalFlow, logger *slog.Logger) (*Engine, error) {
	if approvals == nil {
		return nil, ErrNoApprovalFlow
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		bus:        b,
		approvals:  approvals,
		logger:     logger,
		neverAllow: capSet(cfg.NeverAllow),
		autoAllow:  capSet(cfg.AutoAllow),
		alwaysAsk:  capSet(cfg.AlwaysAsk),
		remembered: make(map[string]Response),
	}
	for _, raw := range append(append(cfg.AutoAllow, cfg.AlwaysAsk...), cfg.NeverAllow...) {
		if !providers.Capability(raw).Known() {
			logger.Warn("unknown capability in security policy", "capability", raw)
		}
	}
	return e, nil
}

// NewPermissive builds the engine used by background agents: every
// capability is auto-allowed and no approval flow is attached, so a
// worker can never park on a prompt it has no terminal for. The
// permissive policy is fixed at construction and cannot be weakened
// into an asking one.
func NewPermissive(b *bus.Bus) *Engine {
	return &Engine{
		bus:        b,
		logger:     slog.Default(),
		permissive: true,
		remembered: make(map[string]Response),
	}
}

// Permissive reports whether this engine auto-allows everything.
func (e *Engine) Permissive() bool { return e.permissive }

func capSet(raw []string) map[providers.Capability]bool {
	set := make(map[providers.Capability]bool, len(raw))
	for _, r := range raw {
		set[providers.Capability(r)] = true
	}
	return set
}

func rememberKey(tool string, cap providers.Capability) string {
	return tool + "|" + string(cap)
}

// checkCapability evaluates the policy layers for one capability.
func (e *Engine) checkCapability(tool string, cap providers.Capability) Decision {
	if e.permissive {
		return Decision{Allowed: true, Reason: "policy:permissive"}
	}
	if e.neverAllow[cap] {
		return Decision{Allowed: false, Reason: fmt.Sprintf("policy:never_allow (%s)", cap)}
	}

	e.mu.Lock()
	resp, ok := e.remembered[rememberKey(tool, cap)]
	e.mu.Unlock()
	if ok {
		switch resp {
		case AllowAlways:
			return Decision{Allowed: true, Reason: fmt.Sprintf("user:remembered_allow (%s)", cap), UserResponse: resp, Remembered: true}
		case DenyAlways:
			return Decision{Allowed: false, Reason: fmt.Sprintf("user:remembered_deny (%s)", cap), UserResponse: resp, Remembered: true}
		}
	}

	if e.autoAllow[cap] {
		return Decision{Allowed: true, Reason: fmt.Sprintf("policy:auto_allow (%s)", cap)}
	}
	if e.alwaysAsk[cap] {
		return Decision{RequiresApproval: true, Reason: fmt.Sprintf("policy:always_ask (%s)", cap)}
	}
	return Decision{RequiresApproval: true, Reason: fmt.Sprintf("policy:unknown_capability (%s)", cap)}
}

// CheckTool evaluates a tool's capability set left to right. The first
// denial or approval requirement short-circuits; if every capability
// passes, the last allow decision is returned.
func (e *Engine) CheckTool(spec providers.ToolSpec) Decision {
	if len(spec.RequiredCapabilities) == 0 {
		return Decision{Allowed: true, Reason: "no_capabilities_required"}
	}
	var last Decision
	for _, cap := range spec.RequiredCapabilities {
		d := e.checkCapability(spec.Name, cap)
		if !d.Allowed {
			return d
		}
		last = d
	}
	return last
}

// CheckAndApprove runs the policy check and, if approval is required,
// round-trips through the approval flow. On timeout the decision is a
// denial with reason "approval_timeout". A *_always response is
// remembered for every capability the tool declares.
func (e *Engine) CheckAndApprove(ctx context.Context, spec providers.ToolSpec, args map[string]any) Decision {
	d := e.CheckTool(spec)
	if !d.RequiresApproval {
		return d
	}
	if e.approvals == nil {
		return Decision{Allowed: false, Reason: "no_approval_flow"}
	}

	resp, resolved := e.approvals.Request(ctx, spec, args)
	if !resolved {
		e.logger.Warn("approval timed out", "tool", spec.Name)
		return Decision{Allowed: false, Reason: "approval_timeout"}
	}

	switch resp {
	case AllowOnce:
		return Decision{Allowed: true, Reason: "user:allow_once", UserResponse: resp}
	case AllowAlways:
		e.rememberAll(spec, resp)
		return Decision{Allowed: true, Reason: "user:allow_always", UserResponse: resp, Remembered: true}
	case DenyAlways:
		e.rememberAll(spec, resp)
		return Decision{Allowed: false, Reason: "user:deny_always", UserResponse: resp, Remembered: true}
	default:
		return Decision{Allowed: false, Reason: "user:denied", UserResponse: Deny}
	}
}

func (e *Engine) rememberAll(spec providers.ToolSpec, resp Response) {
	for _, cap := range spec.RequiredCapabilities {
		e.RememberDecision(spec.Name, cap, resp)
	}
}

// RememberDecision stores a *_always response for (tool, capability).
// Other responses are ignored.
func (e *Engine) RememberDecision(tool string, cap providers.Capability, resp Response) {
	if resp != AllowAlways && resp != DenyAlways {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.remembered[rememberKey(tool, cap)] = resp
}

// RememberedDecisions returns a sorted snapshot for display (/perms).
func (e *Engine) RememberedDecisions() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.remembered))
	for key, resp := range e.remembered {
		out = append(out, fmt.Sprintf("%s → %s", key, resp))
	}
	sort.Strings(out)
	return out
}

// ClearRemembered forgets all remembered decisions.
func (e *Engine) ClearRemembered() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.remembered = make(map[string]Response)
}
