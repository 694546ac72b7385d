package security

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/arclabs/arc/internal/bus"
	"github.com/arclabs/arc/internal/config"
	"github.com/arclabs/arc/internal/providers"
)

func newTestEngine(t *testing.T, cfg config.SecurityConfig, timeout time.Duration) (*Engine, *bus.Bus, *ApprovalFlow) {
	t.Helper()
	b := bus.New(nil)
	flow := NewApprovalFlow(b, timeout)
	e, err := NewEngine(cfg, b, flow, nil)
	if err != nil {
		t.Fatal(err)
	}
	return e, b, flow
}

func TestEngineRequiresApprovalFlow(t *testing.T) {
	_, err := NewEngine(config.SecurityConfig{}, bus.New(nil), nil, nil)
	if err != ErrNoApprovalFlow {
		t.Fatalf("err = %v, want ErrNoApprovalFlow", err)
	}
}

func TestLayerOrdering(t *testing.T) {
	cfg := config.SecurityConfig{
		AutoAllow:  []string{"file:read"},
		AlwaysAsk:  []string{"file:write"},
		NeverAllow: []string{"shell:exec"},
	}
	e, _, _ := newTestEngine(t, cfg, time.Second)

	tests := []struct {
		name         string
		cap          providers.Capability
		wantAllowed  bool
		wantApproval bool
		wantReason   string
	}{
		{"never allow wins", providers.CapShellExec, false, false, "never_allow"},
		{"auto allow passes", providers.CapFileRead, true, false, "auto_allow"},
		{"always ask requires approval", providers.CapFileWrite, false, true, "always_ask"},
		{"unknown capability asks", providers.CapBrowser, false, true, "unknown_capability"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := e.checkCapability("some_tool", tt.cap)
			if d.Allowed != tt.wantAllowed || d.RequiresApproval != tt.wantApproval {
				t.Errorf("decision = %+v", d)
			}
			if !strings.Contains(d.Reason, tt.wantReason) {
				t.Errorf("reason = %q, want containing %q", d.Reason, tt.wantReason)
			}
		})
	}
}

func TestRememberedBeatsAutoAllowAndAsk(t *testing.T) {
	cfg := config.SecurityConfig{
		AutoAllow: []string{"file:read"},
		AlwaysAsk: []string{"file:write"},
	}
	e, _, _ := newTestEngine(t, cfg, time.Second)

	e.RememberDecision("t", providers.CapFileRead, DenyAlways)
	d := e.checkCapability("t", providers.CapFileRead)
	if d.Allowed || !d.Remembered {
		t.Errorf("remembered deny did not override auto_allow: %+v", d)
	}

	e.RememberDecision("t", providers.CapFileWrite, AllowAlways)
	d = e.checkCapability("t", providers.CapFileWrite)
	if !d.Allowed || !d.Remembered {
		t.Errorf("remembered allow did not override always_ask: %+v", d)
	}

	// Never-allow still wins over remembered decisions.
	cfg.NeverAllow = []string{"file:write"}
	e2, _, _ := newTestEngine(t, cfg, time.Second)
	e2.RememberDecision("t", providers.CapFileWrite, AllowAlways)
	d = e2.checkCapability("t", providers.CapFileWrite)
	if d.Allowed {
		t.Errorf("never_allow overridden by remembered decision: %+v", d)
	}
}

func TestCheckToolShortCircuits(t *testing.T) {
	cfg := config.SecurityConfig{
		AutoAllow:  []string{"file:read"},
		NeverAllow: []string{"shell:exec"},
	}
	e, _, _ := newTestEngine(t, cfg, time.Second)

	spec := providers.ToolSpec{
		Name:                 "mixed",
		RequiredCapabilities: []providers.Capability{providers.CapFileRead, providers.CapShellExec},
	}
	d := e.CheckTool(spec)
	if d.Allowed {
		t.Errorf("denied capability did not short-circuit: %+v", d)
	}

	noCaps := providers.ToolSpec{Name: "pure"}
	if d := e.CheckTool(noCaps); !d.Allowed {
		t.Errorf("capability-free tool denied: %+v", d)
	}
}

func TestPermissiveAllowsEverything(t *testing.T) {
	e := NewPermissive(bus.New(nil))
	if !e.Permissive() {
		t.Fatal("not permissive")
	}
	spec := providers.ToolSpec{
		Name:                 "anything",
		RequiredCapabilities: providers.AllCapabilities,
	}
	d := e.CheckAndApprove(context.Background(), spec, nil)
	if !d.Allowed {
		t.Fatalf("permissive engine denied: %+v", d)
	}
}

func TestApprovalResolveOnce(t *testing.T) {
	b := bus.New(nil)
	flow := NewApprovalFlow(b, time.Second)

	var requestID string
	ready := make(chan struct{})
	b.Subscribe(bus.EventSecurityApproval, func(ctx context.Context, ev bus.Event) error {
		requestID = ev.String("request_id")
		close(ready)
		return nil
	})

	type result struct {
		resp     Response
		resolved bool
	}
	done := make(chan result, 1)
	go func() {
		r, ok := flow.Request(context.Background(), providers.ToolSpec{Name: "t"}, nil)
		done <- result{r, ok}
	}()

	<-ready
	if !flow.Resolve(requestID, AllowOnce) {
		t.Fatal("first resolve returned false")
	}
	if flow.Resolve(requestID, Deny) {
		t.Fatal("second resolve must be a no-op")
	}

	got := <-done
	if !got.resolved || got.resp != AllowOnce {
		t.Fatalf("request returned %+v", got)
	}
	if flow.PendingCount() != 0 {
		t.Fatalf("pending = %d, want 0", flow.PendingCount())
	}
}

func TestApprovalTimeout(t *testing.T) {
	b := bus.New(nil)
	flow := NewApprovalFlow(b, 50*time.Millisecond)

	var requestID string
	b.Subscribe(bus.EventSecurityApproval, func(ctx context.Context, ev bus.Event) error {
		requestID = ev.String("request_id")
		return nil
	})

	_, resolved := flow.Request(context.Background(), providers.ToolSpec{Name: "t"}, nil)
	if resolved {
		t.Fatal("request resolved without a resolver")
	}
	// Resolution after timeout is a no-op.
	if flow.Resolve(requestID, AllowOnce) {
		t.Fatal("late resolve must return false")
	}
}

// Interactive approval end to end: allow_always is remembered for
// every declared capability so the second call never prompts, and a
// sleepy resolver yields a timeout denial.
func TestCheckAndApproveInteractive(t *testing.T) {
	cfg := config.SecurityConfig{
		AutoAllow: []string{"file:read"},
		AlwaysAsk: []string{"file:write"},
	}
	e, b, flow := newTestEngine(t, cfg, 500*time.Millisecond)

	prompts := make(chan string, 4)
	b.Subscribe(bus.EventSecurityApproval, func(ctx context.Context, ev bus.Event) error {
		prompts <- ev.String("request_id")
		return nil
	})
	go func() {
		id := <-prompts
		time.Sleep(50 * time.Millisecond)
		flow.Resolve(id, AllowAlways)
	}()

	spec := providers.ToolSpec{
		Name:                 "write_file",
		RequiredCapabilities: []providers.Capability{providers.CapFileWrite},
	}

	d := e.CheckAndApprove(context.Background(), spec, map[string]any{"path": "x.txt"})
	if !d.Allowed || !d.Remembered || d.UserResponse != AllowAlways {
		t.Fatalf("first decision = %+v", d)
	}

	// Second call must not emit another approval event.
	d = e.CheckAndApprove(context.Background(), spec, map[string]any{"path": "x.txt"})
	if !d.Allowed || !d.Remembered {
		t.Fatalf("second decision = %+v", d)
	}
	select {
	case id := <-prompts:
		t.Fatalf("unexpected second approval prompt %q", id)
	default:
	}

	// A fresh tool with a resolver sleeping past the timeout denies.
	slow := providers.ToolSpec{
		Name:                 "delete_file",
		RequiredCapabilities: []providers.Capability{providers.CapFileDelete},
	}
	go func() {
		id := <-prompts
		time.Sleep(2 * time.Second)
		flow.Resolve(id, AllowOnce)
	}()
	d = e.CheckAndApprove(context.Background(), slow, nil)
	if d.Allowed || !strings.Contains(d.Reason, "timeout") {
		t.Fatalf("timeout decision = %+v", d)
	}
}
