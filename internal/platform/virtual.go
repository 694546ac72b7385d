package platform

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Virtual is an in-process platform: messages go in through Send, the
// agent's handler produces the reply, callers get it back. Used by
// expert agents and scheduled jobs that have no real chat surface.
// One message is processed at a time; concurrent senders queue up.
type Virtual struct {
	name    string
	handler TurnFunc

	mu      sync.Mutex
	stopped bool
}

// NewVirtual creates a virtual platform around the agent's turn
// handler.
func NewVirtual(name string, handler TurnFunc) *Virtual {
	return &Virtual{name: name, handler: handler}
}

func (v *Virtual) Name() string { return v.name }

// Start is a no-op; a virtual platform has no pump to run.
func (v *Virtual) Start(ctx context.Context) error { return nil }

// Stop rejects further sends. In-flight sends finish first because
// Stop takes the same lock that serializes them.
func (v *Virtual) Stop() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stopped = true
	return nil
}

// Send runs one turn and returns the agent's full response. Handler
// failures come back as a bracketed error string rather than an
// error, mirroring what a chat user would see.
func (v *Virtual) Send(ctx context.Context, input string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.stopped {
		return "", fmt.Errorf("platform %s is stopped", v.name)
	}

	var out strings.Builder
	if err := v.handler(ctx, input, func(s string) { out.WriteString(s) }); err != nil {
		return fmt.Sprintf("[Error: %v]", err), nil
	}
	return out.String(), nil
}
