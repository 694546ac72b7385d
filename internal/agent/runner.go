package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/arclabs/arc/internal/skills"
)

// LoopFactory builds a fresh loop for one worker attempt. The
// composition root supplies it so workers share the provider, skill
// manager, and security engine but get their own session.
type LoopFactory func(params skills.WorkerRunParams) (*Loop, error)

// NewWorkerRunner adapts a LoopFactory into the worker skill's run
// callback. Each attempt gets a fresh loop run under the params'
// wall-clock timeout; the final assistant message is the result.
func NewWorkerRunner(build LoopFactory, logger *slog.Logger) skills.WorkerRunFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, params skills.WorkerRunParams) (string, error) {
		loop, err := build(params)
		if err != nil {
			return "", fmt.Errorf("build worker loop: %w", err)
		}

		runCtx, cancel := context.WithTimeout(ctx, params.Timeout)
		defer cancel()

		var streamed strings.Builder
		err = loop.Run(runCtx, params.Prompt, func(s string) {
			streamed.WriteString(s)
		})
		// Providers may end a cancelled stream without an error, so
		// check the deadline first.
		if runCtx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("worker timed out after %s", params.Timeout)
		}
		if err != nil {
			return "", err
		}

		// The last assistant message is the worker's answer; the
		// streamed text spans every iteration, so fall back to it only
		// when the transcript has nothing.
		messages := loop.Session().Messages()
		for i := len(messages) - 1; i >= 0; i-- {
			if messages[i].Role == "assistant" && messages[i].Content != "" {
				return messages[i].Content, nil
			}
		}
		return streamed.String(), nil
	}
}
