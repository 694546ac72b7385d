// Package escalation lets background agents ask the interactive user
// a blocking question and continue with a fallback when nobody
// answers.
package escalation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arclabs/arc/internal/bus"
)

// FallbackAnswer is returned when the user does not answer in time,
// so workers proceed instead of hanging.
const FallbackAnswer = "[No answer received — proceeding with best judgement]"

// Bus parks a background agent's question on a single-shot channel
// until the interactive platform resolves it by id.
type Bus struct {
	events  *bus.Bus
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[string]chan string
}

// New creates an escalation bus. A zero timeout defaults to 300
// seconds.
func New(events *bus.Bus, timeout time.Duration, logger *slog.Logger) *Bus {
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		events:  events,
		timeout: timeout,
		logger:  logger,
		pending: make(map[string]chan string),
	}
}

// AskManager emits agent:escalation and blocks for the user's answer.
// The wait is shielded from caller cancellation; on timeout the
// fallback string is returned so the caller can continue.
func (b *Bus) AskManager(ctx context.Context, fromAgent, question string) string {
	id := uuid.NewString()
	ch := make(chan string, 1)

	b.mu.Lock()
	b.pending[id] = ch
	b.mu.Unlock()

	b.events.Emit(ctx, bus.NewEvent(bus.EventAgentEscalation, fromAgent, map[string]any{
		"escalation_id": id,
		"from_agent":    fromAgent,
		"question":      question,
	}))

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()
	select {
	case answer := <-ch:
		return answer
	case <-timer.C:
		b.mu.Lock()
		if _, ok := b.pending[id]; ok {
			delete(b.pending, id)
			b.mu.Unlock()
			b.logger.Warn("escalation timed out", "from_agent", fromAgent)
			return FallbackAnswer
		}
		b.mu.Unlock()
		return <-ch
	}
}

// Resolve answers a pending escalation. Unknown or already-resolved
// ids return false and are no-ops.
func (b *Bus) Resolve(escalationID, answer string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.pending[escalationID]
	if !ok {
		return false
	}
	delete(b.pending, escalationID)
	ch <- answer
	return true
}

// PendingCount returns the number of unanswered escalations.
func (b *Bus) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
