package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/arclabs/arc/internal/bus"
)

// RunJobFunc executes one fired job and returns the notification
// content. Injected by the composition root: plain jobs run a single
// LLM completion, use_tools jobs run a full sub-agent.
type RunJobFunc func(ctx context.Context, job Job) (string, error)

// NotifyFunc routes a fired job's result.
type NotifyFunc func(ctx context.Context, jobID, jobName, content string)

// Engine polls the store and fires due jobs. At most one fire per job
// is in flight; the guard is released only after next_run is
// persisted, so the next tick cannot double-fire.
type Engine struct {
	store  Store
	bus    *bus.Bus
	runJob RunJobFunc
	notify NotifyFunc
	poll   time.Duration
	logger *slog.Logger

	mu       sync.Mutex
	inFlight map[string]bool
	wg       sync.WaitGroup
}

// NewEngine builds the engine. Zero poll defaults to 30 seconds.
func NewEngine(store Store, b *bus.Bus, runJob RunJobFunc, notify NotifyFunc, poll time.Duration, logger *slog.Logger) *Engine {
	if poll <= 0 {
		poll = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    store,
		bus:      b,
		runJob:   runJob,
		notify:   notify,
		poll:     poll,
		logger:   logger,
		inFlight: make(map[string]bool),
	}
}

// Run executes the startup skip-forward pass and then polls until ctx
// is cancelled, waiting for in-flight fires before returning.
func (e *Engine) Run(ctx context.Context) {
	if err := e.skipForward(ctx); err != nil {
		e.logger.Error("scheduler startup pass failed", "error", err)
	}

	ticker := time.NewTicker(e.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			e.wg.Wait()
			return
		case <-ticker.C:
			e.Tick(ctx, time.Now().Unix())
		}
	}
}

// skipForward recomputes next_run from now for active jobs whose
// next_run is unset or already in the past. Missed fires are not
// replayed.
func (e *Engine) skipForward(ctx context.Context) error {
	jobs, err := e.store.GetAll(ctx, true)
	if err != nil {
		return err
	}
	now := time.Now().Unix()
	for _, job := range jobs {
		if job.NextRun > 0 && job.NextRun >= now {
			continue
		}
		next := job.Trigger.NextFire(now, now)
		if job.Trigger.Type == TriggerInterval && job.LastRun == 0 {
			// Never-run interval jobs still fire immediately.
			next = now
		}
		if err := e.store.SetNextRun(ctx, job.ID, next); err != nil {
			e.logger.Error("skip-forward update failed", "job", job.Name, "error", err)
			continue
		}
		e.logger.Info("job rescheduled on startup", "job", job.Name, "next_run", next)
	}
	return nil
}

// Tick fires every due job not already in flight. Exported for tests;
// Run calls it on each poll.
func (e *Engine) Tick(ctx context.Context, now int64) {
	due, err := e.store.GetDue(ctx, now)
	if err != nil {
		e.logger.Error("due-job query failed", "error", err)
		return
	}
	for _, job := range due {
		e.mu.Lock()
		if e.inFlight[job.ID] {
			e.mu.Unlock()
			continue
		}
		e.inFlight[job.ID] = true
		e.mu.Unlock()

		e.wg.Add(1)
		go func(job Job) {
			defer e.wg.Done()
			e.fireJob(ctx, job)
		}(job)
	}
}

func (e *Engine) fireJob(ctx context.Context, job Job) {
	agentID := "scheduler:" + job.Name
	e.bus.EmitNowait(bus.NewEvent(bus.EventAgentSpawned, agentID, map[string]any{
		"task_id":   job.ID,
		"task_name": job.Name,
	}))

	firedAt := time.Now().Unix()
	content, err := e.runJob(ctx, job)
	if err != nil {
		// next_run still advances below to avoid a tight failure loop.
		content = fmt.Sprintf("(job failed: %v)", err)
		e.logger.Error("job run failed", "job", job.Name, "error", err)
	}

	next := job.Trigger.NextFire(firedAt, firedAt)
	if next == 0 && job.Trigger.Type == TriggerOneShot {
		if derr := e.store.Delete(ctx, job.ID); derr != nil {
			e.logger.Error("one-shot cleanup failed", "job", job.Name, "error", derr)
		}
	} else {
		if uerr := e.store.UpdateAfterRun(ctx, job.ID, next, firedAt); uerr != nil {
			e.logger.Error("post-fire update failed", "job", job.Name, "error", uerr)
		}
	}

	// Persisted above; only now is a re-fire by the next tick safe.
	e.mu.Lock()
	delete(e.inFlight, job.ID)
	e.mu.Unlock()

	e.bus.EmitNowait(bus.NewEvent(bus.EventAgentTaskComplete, agentID, map[string]any{
		"task_id":   job.ID,
		"task_name": job.Name,
		"success":   err == nil,
	}))
	e.notify(ctx, job.ID, job.Name, content)
}

// InFlightCount reports how many fires are currently running.
func (e *Engine) InFlightCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.inFlight)
}

// Wait blocks until all in-flight fires finish. Used in tests and on
// shutdown.
func (e *Engine) Wait() { e.wg.Wait() }
