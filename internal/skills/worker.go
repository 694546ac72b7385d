package skills

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/arclabs/arc/internal/bus"
	"github.com/arclabs/arc/internal/providers"
)

// DefaultWorkerTimeout is the wall-clock limit for a background task
// when the caller does not set one. Scheduled jobs use it too.
const DefaultWorkerTimeout = 300 * time.Second

const (
	workerTimeoutMin  = 10 * time.Second
	workerTimeoutMax  = 1800 * time.Second
	workerIterDefault = 20
	workerIterMin     = 1
	workerIterMax     = 50
)

// WorkerRunParams describes one background worker attempt.
type WorkerRunParams struct {
	TaskID         string
	TaskName       string
	Prompt         string
	ExcludedSkills []string
	MaxIterations  int
	Timeout        time.Duration
}

// WorkerRunFunc runs a worker attempt to completion and returns its
// final text. Injected by the composition root to keep the skill free
// of an agent-loop dependency.
type WorkerRunFunc func(ctx context.Context, params WorkerRunParams) (string, error)

// WorkerTracker is the agent-registry slice the skill needs: worker
// handles for graceful shutdown plus the running list.
type WorkerTracker interface {
	TrackWorker(taskID string, cancel context.CancelFunc, done <-chan struct{})
	UntrackWorker(taskID string)
	RunningWorkers() []string
}

// NotifyFunc routes a finished worker's notification.
type NotifyFunc func(ctx context.Context, jobID, jobName, content string)

// WorkerSkill exposes fire-and-forget delegation: delegate_task spawns
// a background agent and returns immediately; the result arrives later
// as a routed notification. A failed run is retried exactly once.
type WorkerSkill struct {
	Base
	bus     *bus.Bus
	manager *Manager
	run     WorkerRunFunc
	tracker WorkerTracker
	notify  NotifyFunc
	logger  *slog.Logger
}

// NewWorkerSkill wires the skill. manager provides the skill names
// needed to invert allowed_skills into an exclusion set.
func NewWorkerSkill(b *bus.Bus, manager *Manager, run WorkerRunFunc, tracker WorkerTracker, notify NotifyFunc, logger *slog.Logger) *WorkerSkill {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkerSkill{
		bus:     b,
		manager: manager,
		run:     run,
		tracker: tracker,
		notify:  notify,
		logger:  logger,
	}
}

func (s *WorkerSkill) Manifest() Manifest {
	return Manifest{
		Name:        "worker",
		Version:     "1.0",
		Description: "Delegate tasks to background worker agents",
		Tools: []providers.ToolSpec{
			{
				Name: "delegate_task",
				Description: "Start a background worker agent for a task and return " +
					"immediately; the result is delivered as a notification when done",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"task_name": map[string]any{
							"type":        "string",
							"description": "Short label for the task",
						},
						"prompt": map[string]any{
							"type":        "string",
							"description": "Full instructions for the worker",
						},
						"allowed_skills": map[string]any{
							"type":        "array",
							"items":       map[string]any{"type": "string"},
							"description": "Skills the worker may use; all others are excluded",
						},
						"timeout_seconds": map[string]any{
							"type":        "integer",
							"description": "Wall-clock limit in seconds (10-1800, default 300)",
						},
						"max_iterations": map[string]any{
							"type":        "integer",
							"description": "Tool-loop iteration limit (1-50, default 20)",
						},
					},
					"required": []string{"task_name", "prompt"},
				},
			},
			{
				Name:        "list_workers",
				Description: "List the task ids of currently running background workers",
				Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
			},
		},
	}
}

func (s *WorkerSkill) ExecuteTool(ctx context.Context, name string, args map[string]any) (providers.ToolResult, error) {
	switch name {
	case "delegate_task":
		return s.delegateTask(args), nil
	case "list_workers":
		running := s.tracker.RunningWorkers()
		if len(running) == 0 {
			return providers.OK("No background workers running."), nil
		}
		return providers.OK("Running workers:\n" + strings.Join(running, "\n")), nil
	}
	return providers.Fail("unknown worker tool " + name), nil
}

func (s *WorkerSkill) delegateTask(args map[string]any) providers.ToolResult {
	taskName, ok := StringArg(args, "task_name")
	if !ok || taskName == "" {
		return providers.Fail("task_name is required")
	}
	prompt, ok := StringArg(args, "prompt")
	if !ok || prompt == "" {
		return providers.Fail("prompt is required")
	}

	timeout := DefaultWorkerTimeout
	if secs, ok := IntArg(args, "timeout_seconds"); ok {
		timeout = clampDuration(time.Duration(secs)*time.Second, workerTimeoutMin, workerTimeoutMax)
	}
	maxIter := workerIterDefault
	if n, ok := IntArg(args, "max_iterations"); ok {
		maxIter = clampInt(n, workerIterMin, workerIterMax)
	}

	excluded := s.excludedSkills(args)
	taskID := taskName + "_" + uuid.NewString()[:8]

	params := WorkerRunParams{
		TaskID:         taskID,
		TaskName:       taskName,
		Prompt:         prompt,
		ExcludedSkills: excluded,
		MaxIterations:  maxIter,
		Timeout:        timeout,
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.tracker.TrackWorker(taskID, cancel, done)

	go s.runAndNotify(runCtx, params, done)

	s.bus.EmitNowait(bus.NewEvent(bus.EventAgentSpawned, "worker:"+taskName, map[string]any{
		"task_id":   taskID,
		"task_name": taskName,
	}))

	return providers.OK(fmt.Sprintf(
		"Started background task %q (id %s). You will be notified when it completes.",
		taskName, taskID))
}

// excludedSkills inverts allowed_skills against the registered skill
// set; worker and scheduler are always excluded so a worker cannot
// spawn further background work.
func (s *WorkerSkill) excludedSkills(args map[string]any) []string {
	excluded := map[string]bool{"worker": true, "scheduler": true}
	if allowed, ok := StringSliceArg(args, "allowed_skills"); ok {
		allowedSet := make(map[string]bool, len(allowed))
		for _, name := range allowed {
			allowedSet[name] = true
		}
		for _, name := range s.manager.SkillNames() {
			if !allowedSet[name] {
				excluded[name] = true
			}
		}
	}
	out := make([]string, 0, len(excluded))
	for name := range excluded {
		out = append(out, name)
	}
	return out
}

// runAndNotify executes the worker, retrying exactly once on failure,
// then emits agent:task_complete and routes the result notification.
func (s *WorkerSkill) runAndNotify(ctx context.Context, params WorkerRunParams, done chan<- struct{}) {
	defer close(done)
	defer s.tracker.UntrackWorker(params.TaskID)

	result, err := s.run(ctx, params)
	if err != nil {
		s.logger.Warn("worker failed, retrying once",
			"task_id", params.TaskID, "error", err)
		result, err = s.run(ctx, params)
	}

	success := err == nil
	var content string
	if success {
		content = fmt.Sprintf("✅ %s completed:\n\n%s", params.TaskName, result)
	} else {
		content = fmt.Sprintf("❌ %s failed: %v", params.TaskName, err)
	}

	s.bus.EmitNowait(bus.NewEvent(bus.EventAgentTaskComplete, "worker:"+params.TaskName, map[string]any{
		"task_id":   params.TaskID,
		"task_name": params.TaskName,
		"success":   success,
	}))
	s.notify(context.Background(), params.TaskID, params.TaskName, content)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampDuration(v, lo, hi time.Duration) time.Duration {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
