package security

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arclabs/arc/internal/bus"
	"github.com/arclabs/arc/internal/providers"
)

// Response is the user's answer to an approval prompt.
type Response string

const (
	AllowOnce   Response = "allow_once"
	AllowAlways Response = "allow_always"
	Deny        Response = "deny"
	DenyAlways  Response = "deny_always"
)

// ApprovalFlow bridges a blocked tool call to the interactive
// platform: the engine parks on a single-shot channel while the
// platform prompts the user and resolves it by request id.
type ApprovalFlow struct {
	bus     *bus.Bus
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]chan Response
}

// NewApprovalFlow creates a flow emitting security:approval events on
// b. A zero timeout defaults to 300 seconds.
func NewApprovalFlow(b *bus.Bus, timeout time.Duration) *ApprovalFlow {
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &ApprovalFlow{
		bus:     b,
		timeout: timeout,
		pending: make(map[string]chan Response),
	}
}

// Request emits security:approval and blocks until the request is
// resolved or the timeout expires. The wait is shielded from caller
// cancellation so a late resolver cannot race a vanished entry; the
// timeout is the only way out. Returns (response, true) on resolution
// and ("", false) on timeout.
func (f *ApprovalFlow) Request(ctx context.Context, spec providers.ToolSpec, args map[string]any) (Response, bool) {
	id := uuid.NewString()
	ch := make(chan Response, 1)

	f.mu.Lock()
	f.pending[id] = ch
	f.mu.Unlock()

	caps := make([]string, 0, len(spec.RequiredCapabilities))
	for _, c := range spec.RequiredCapabilities {
		caps = append(caps, string(c))
	}
	f.bus.Emit(ctx, bus.NewEvent(bus.EventSecurityApproval, "security", map[string]any{
		"request_id":       id,
		"tool_name":        spec.Name,
		"tool_description": spec.Description,
		"arguments":        args,
		"capabilities":     caps,
	}))

	timer := time.NewTimer(f.timeout)
	defer timer.Stop()
	select {
	case resp := <-ch:
		return resp, true
	case <-timer.C:
		f.mu.Lock()
		if _, ok := f.pending[id]; ok {
			delete(f.pending, id)
			f.mu.Unlock()
			return "", false
		}
		f.mu.Unlock()
		// A resolver won the race against the timer; its answer is
		// already buffered.
		return <-ch, true
	}
}

// Resolve completes a pending request. Returns false when the id is
// unknown or already resolved (including timed out); the call is then
// a no-op.
func (f *ApprovalFlow) Resolve(requestID string, resp Response) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.pending[requestID]
	if !ok {
		return false
	}
	delete(f.pending, requestID)
	ch <- resp
	return true
}

// PendingCount returns the number of unresolved requests.
func (f *ApprovalFlow) PendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}
