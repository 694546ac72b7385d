package skills

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/arclabs/arc/internal/providers"
	"github.com/arclabs/arc/internal/scheduler"
)

// SchedulerSkill exposes job management over the scheduler store:
// schedule_task, list_scheduled, cancel_task. The polling engine picks
// new jobs up on its next tick.
type SchedulerSkill struct {
	Base
	store scheduler.Store
}

// NewSchedulerSkill wires the skill to a job store.
func NewSchedulerSkill(store scheduler.Store) *SchedulerSkill {
	return &SchedulerSkill{store: store}
}

func (s *SchedulerSkill) Manifest() Manifest {
	return Manifest{
		Name:        "scheduler",
		Version:     "1.0",
		Description: "Schedule recurring or one-off background tasks",
		Tools: []providers.ToolSpec{
			{
				Name: "schedule_task",
				Description: "Create a scheduled task that runs on a cron expression, " +
					"a fixed interval, or once at a given time",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"name": map[string]any{
							"type":        "string",
							"description": "Unique job name",
						},
						"prompt": map[string]any{
							"type":        "string",
							"description": "What the job should do when it fires",
						},
						"trigger_type": map[string]any{
							"type":        "string",
							"enum":        []string{"cron", "interval", "oneshot"},
							"description": "How the job is triggered",
						},
						"expression": map[string]any{
							"type":        "string",
							"description": "5-field cron expression (cron trigger)",
						},
						"seconds": map[string]any{
							"type":        "integer",
							"description": "Period in seconds (interval trigger)",
						},
						"at": map[string]any{
							"type":        "integer",
							"description": "Unix timestamp (oneshot trigger)",
						},
						"use_tools": map[string]any{
							"type":        "boolean",
							"description": "Whether the job may call tools when it runs",
						},
					},
					"required": []string{"name", "prompt", "trigger_type"},
				},
			},
			{
				Name:        "list_scheduled",
				Description: "List all scheduled tasks",
				Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
			},
			{
				Name:        "cancel_task",
				Description: "Cancel a scheduled task by name",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"name": map[string]any{
							"type":        "string",
							"description": "Name of the job to cancel",
						},
					},
					"required": []string{"name"},
				},
			},
		},
	}
}

func (s *SchedulerSkill) ExecuteTool(ctx context.Context, name string, args map[string]any) (providers.ToolResult, error) {
	switch name {
	case "schedule_task":
		return s.scheduleTask(ctx, args)
	case "list_scheduled":
		return s.listScheduled(ctx)
	case "cancel_task":
		return s.cancelTask(ctx, args)
	}
	return providers.Fail("unknown scheduler tool " + name), nil
}

func (s *SchedulerSkill) scheduleTask(ctx context.Context, args map[string]any) (providers.ToolResult, error) {
	jobName, ok := StringArg(args, "name")
	if !ok || jobName == "" {
		return providers.Fail("name is required"), nil
	}
	prompt, ok := StringArg(args, "prompt")
	if !ok || prompt == "" {
		return providers.Fail("prompt is required"), nil
	}

	trigger, err := triggerFromArgs(args)
	if err != nil {
		return providers.Fail(err.Error()), nil
	}
	if err := trigger.Validate(); err != nil {
		return providers.Fail(err.Error()), nil
	}

	now := time.Now().Unix()
	job := &scheduler.Job{
		Name:     jobName,
		Prompt:   prompt,
		Trigger:  trigger,
		NextRun:  trigger.NextFire(0, now),
		Active:   true,
		UseTools: boolArg(args, "use_tools"),
	}
	if job.NextRun == 0 {
		return providers.Fail("trigger never fires (is the oneshot time in the past?)"), nil
	}
	if err := s.store.Save(ctx, job); err != nil {
		if errors.Is(err, scheduler.ErrDuplicateName) {
			return providers.Fail(fmt.Sprintf("a job named %q already exists", jobName)), nil
		}
		return providers.Fail("save job: " + err.Error()), nil
	}
	return providers.OK(fmt.Sprintf("Scheduled %q (%s), first run %s.",
		jobName, trigger.Describe(), time.Unix(job.NextRun, 0).Format("2006-01-02 15:04"))), nil
}

func (s *SchedulerSkill) listScheduled(ctx context.Context) (providers.ToolResult, error) {
	jobs, err := s.store.GetAll(ctx, false)
	if err != nil {
		return providers.Fail("list jobs: " + err.Error()), nil
	}
	if len(jobs) == 0 {
		return providers.OK("No scheduled tasks."), nil
	}
	var b strings.Builder
	for _, job := range jobs {
		status := "active"
		if !job.Active {
			status = "inactive"
		}
		fmt.Fprintf(&b, "- %s (%s, %s), next run %s\n",
			job.Name, job.Trigger.Describe(), status,
			time.Unix(job.NextRun, 0).Format("2006-01-02 15:04"))
	}
	return providers.OK(strings.TrimRight(b.String(), "\n")), nil
}

func (s *SchedulerSkill) cancelTask(ctx context.Context, args map[string]any) (providers.ToolResult, error) {
	jobName, ok := StringArg(args, "name")
	if !ok || jobName == "" {
		return providers.Fail("name is required"), nil
	}
	job, err := s.store.GetByName(ctx, jobName)
	if err != nil {
		if errors.Is(err, scheduler.ErrNotFound) {
			return providers.Fail(fmt.Sprintf("no job named %q", jobName)), nil
		}
		return providers.Fail("look up job: " + err.Error()), nil
	}
	if err := s.store.Delete(ctx, job.ID); err != nil {
		return providers.Fail("delete job: " + err.Error()), nil
	}
	return providers.OK(fmt.Sprintf("Cancelled %q.", jobName)), nil
}

func triggerFromArgs(args map[string]any) (scheduler.Trigger, error) {
	triggerType, _ := StringArg(args, "trigger_type")
	switch triggerType {
	case scheduler.TriggerCron:
		expr, ok := StringArg(args, "expression")
		if !ok || expr == "" {
			return scheduler.Trigger{}, fmt.Errorf("expression is required for cron triggers")
		}
		return scheduler.Cron(expr), nil
	case scheduler.TriggerInterval:
		secs, ok := IntArg(args, "seconds")
		if !ok {
			return scheduler.Trigger{}, fmt.Errorf("seconds is required for interval triggers")
		}
		return scheduler.Interval(int64(secs)), nil
	case scheduler.TriggerOneShot:
		at, ok := IntArg(args, "at")
		if !ok {
			return scheduler.Trigger{}, fmt.Errorf("at is required for oneshot triggers")
		}
		return scheduler.OneShot(int64(at)), nil
	}
	return scheduler.Trigger{}, fmt.Errorf("unknown trigger_type %q", triggerType)
}

func boolArg(args map[string]any, key string) bool {
	v, _ := args[key].(bool)
	return v
}
