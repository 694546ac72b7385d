package agent

import (
	"sync"
	"time"
)

// Status is the lifecycle phase of an agent loop.
type Status string

const (
	StatusIdle            Status = "idle"
	StatusComposing       Status = "composing"
	StatusThinking        Status = "thinking"
	StatusActing          Status = "acting"
	StatusWaitingApproval Status = "waiting_approval"
	StatusPaused          Status = "paused"
	StatusComplete        Status = "complete"
	StatusError           Status = "error"
)

// State is a snapshot of one agent's progress.
type State struct {
	AgentID    string
	Status     Status
	Iteration  int
	TokensUsed int
	CostSoFar  float64
	StartedAt  time.Time
}

// stateBox guards a State for concurrent readers.
type stateBox struct {
	mu    sync.Mutex
	state State
}

func (b *stateBox) snapshot() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *stateBox) update(fn func(*State)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(&b.state)
}
