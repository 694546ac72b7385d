package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Platform is the slice of a chat platform the registry needs: enough
// to stop an expert's message pump during shutdown.
type Platform interface {
	Name() string
	Stop() error
}

// Expert is a named long-lived agent with its own loop and platform.
type Expert struct {
	Name      string
	Specialty string
	Task      string
	Loop      *Loop
	Platform  Platform
	CreatedAt time.Time
}

type workerHandle struct {
	cancel context.CancelFunc
	done   <-chan struct{}
}

// Registry tracks every live agent: named experts and transient
// background workers. It satisfies the worker skill's tracker
// contract, and ShutdownAll tears everything down exactly once.
type Registry struct {
	logger *slog.Logger

	mu       sync.Mutex
	experts  map[string]*Expert
	workers  map[string]workerHandle
	shutdown bool
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:  logger,
		experts: make(map[string]*Expert),
		workers: make(map[string]workerHandle),
	}
}

// RegisterExpert adds a named expert. Names are unique.
func (r *Registry) RegisterExpert(e *Expert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shutdown {
		return fmt.Errorf("registry is shut down")
	}
	if _, exists := r.experts[e.Name]; exists {
		return fmt.Errorf("expert %q already registered", e.Name)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	r.experts[e.Name] = e
	return nil
}

// Expert looks up a named expert.
func (r *Registry) Expert(name string) (*Expert, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.experts[name]
	return e, ok
}

// Experts returns every expert, sorted by name.
func (r *Registry) Experts() []*Expert {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Expert, 0, len(r.experts))
	for _, e := range r.experts {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Sender is implemented by platforms that accept a direct message and
// return the full response (the virtual platform does).
type Sender interface {
	Send(ctx context.Context, input string) (string, error)
}

// SendToExpert routes one message to a named expert and returns its
// reply.
func (r *Registry) SendToExpert(ctx context.Context, name, message string) (string, error) {
	e, ok := r.Expert(name)
	if !ok {
		return "", fmt.Errorf("no expert named %q", name)
	}
	s, ok := e.Platform.(Sender)
	if !ok {
		return "", fmt.Errorf("expert %q does not accept direct messages", name)
	}
	return s.Send(ctx, message)
}

// RemoveExpert drops an expert without stopping its platform.
func (r *Registry) RemoveExpert(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.experts, name)
}

// TrackWorker records a running background worker's cancel handle and
// completion channel.
func (r *Registry) TrackWorker(taskID string, cancel context.CancelFunc, done <-chan struct{}) {
	r.mu.Lock()
	if r.shutdown {
		r.mu.Unlock()
		// Late arrival during teardown: cancel right away.
		cancel()
		return
	}
	r.workers[taskID] = workerHandle{cancel: cancel, done: done}
	r.mu.Unlock()
}

// UntrackWorker forgets a finished worker.
func (r *Registry) UntrackWorker(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.workers, taskID)
}

// RunningWorkers returns the task ids of live workers, sorted.
func (r *Registry) RunningWorkers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.workers))
	for id := range r.workers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ShutdownAll cancels every worker, stops every expert platform, and
// waits up to timeout for workers to wind down. Idempotent: the
// second call is a no-op.
func (r *Registry) ShutdownAll(timeout time.Duration) {
	r.mu.Lock()
	if r.shutdown {
		r.mu.Unlock()
		return
	}
	r.shutdown = true
	workers := make(map[string]workerHandle, len(r.workers))
	for id, h := range r.workers {
		workers[id] = h
	}
	experts := make([]*Expert, 0, len(r.experts))
	for _, e := range r.experts {
		experts = append(experts, e)
	}
	r.workers = make(map[string]workerHandle)
	r.experts = make(map[string]*Expert)
	r.mu.Unlock()

	for id, h := range workers {
		r.logger.Info("cancelling worker", "task_id", id)
		h.cancel()
	}
	for _, e := range experts {
		if e.Platform == nil {
			continue
		}
		if err := e.Platform.Stop(); err != nil {
			r.logger.Warn("expert platform stop failed",
				"expert", e.Name, "error", err)
		}
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for id, h := range workers {
		if h.done == nil {
			continue
		}
		select {
		case <-h.done:
		case <-deadline.C:
			r.logger.Warn("shutdown timed out waiting for workers", "task_id", id)
			return
		}
	}
}
