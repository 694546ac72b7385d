package agent

import (
	"context"
	"strings"
	"time"

	"github.com/arclabs/arc/internal/providers"
	"github.com/arclabs/arc/internal/scheduler"
	"github.com/arclabs/arc/internal/skills"
)

// proactiveSystemPrompt frames the plain completion used for jobs
// created without tool access.
const proactiveSystemPrompt = "You are a helpful proactive assistant completing a scheduled task. " +
	"Be concise and clear. Do not ask follow-up questions."

const plainJobTemperature = 0.5

// NewJobRunner adapts the worker runner into the scheduler's job
// callback. Jobs with tool access run a full sub-agent; the rest get
// one completion with no tools, so a plain reminder can never touch
// the filesystem or shell. Zero timeout falls back to the worker
// default.
func NewJobRunner(llm providers.Provider, run skills.WorkerRunFunc, maxIterations int, timeout time.Duration) scheduler.RunJobFunc {
	if timeout <= 0 {
		timeout = skills.DefaultWorkerTimeout
	}
	return func(ctx context.Context, job scheduler.Job) (string, error) {
		if !job.UseTools {
			return plainCompletion(ctx, llm, job.Prompt)
		}
		return run(ctx, skills.WorkerRunParams{
			TaskID:         job.ID,
			TaskName:       job.Name,
			Prompt:         job.Prompt,
			ExcludedSkills: []string{"worker", "scheduler"},
			MaxIterations:  maxIterations,
			Timeout:        timeout,
		})
	}
}

// plainCompletion runs a single text generation for a use_tools=false
// job.
func plainCompletion(ctx context.Context, llm providers.Provider, prompt string) (string, error) {
	var text strings.Builder
	err := llm.Generate(ctx, providers.GenerateRequest{
		Messages: []providers.Message{
			{Role: "system", Content: proactiveSystemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: plainJobTemperature,
	}, func(c providers.Chunk) {
		if c.Text != "" {
			text.WriteString(c.Text)
		}
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text.String()), nil
}
