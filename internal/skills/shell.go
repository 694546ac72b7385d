package skills

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/arclabs/arc/internal/providers"
)

// Command patterns denied regardless of security policy. The approval
// flow covers the rest.
var shellDenyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\brm\s+-[rf]{1,2}\b`),
	regexp.MustCompile(`\bdd\s+if=`),
	regexp.MustCompile(`\b(mkfs|shutdown|reboot|poweroff)\b`),
	regexp.MustCompile(`:\(\)\s*\{.*\};\s*:`), // fork bomb
	regexp.MustCompile(`\bcurl\b.*\|\s*(ba)?sh\b`),
	regexp.MustCompile(`\bsudo\b`),
}

// ShellSkill runs one-off shell commands with a wall-clock timeout.
type ShellSkill struct {
	Base
	workingDir string
	timeout    time.Duration
}

// NewShellSkill creates the skill. Zero timeout defaults to 60s.
func NewShellSkill(workingDir string, timeout time.Duration) *ShellSkill {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ShellSkill{workingDir: workingDir, timeout: timeout}
}

func (s *ShellSkill) Manifest() Manifest {
	return Manifest{
		Name:        "shell",
		Version:     "1.0",
		Description: "Execute shell commands",
		Tools: []providers.ToolSpec{
			{
				Name:        "run_command",
				Description: "Run a shell command and return its combined output",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"command": map[string]any{
							"type":        "string",
							"description": "The shell command to run",
						},
					},
					"required": []string{"command"},
				},
				RequiredCapabilities: []providers.Capability{providers.CapShellExec},
			},
		},
	}
}

func (s *ShellSkill) ExecuteTool(ctx context.Context, name string, args map[string]any) (providers.ToolResult, error) {
	if name != "run_command" {
		return providers.Fail("unknown shell tool " + name), nil
	}
	command, ok := StringArg(args, "command")
	if !ok || strings.TrimSpace(command) == "" {
		return providers.Fail("command is required"), nil
	}
	for _, pattern := range shellDenyPatterns {
		if pattern.MatchString(command) {
			return providers.Fail(fmt.Sprintf("command blocked by safety filter: %s", pattern)), nil
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	if s.workingDir != "" {
		cmd.Dir = s.workingDir
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	output := out.String()
	if runCtx.Err() == context.DeadlineExceeded {
		return providers.Fail(fmt.Sprintf("command timed out after %s", s.timeout)), nil
	}
	if err != nil {
		result := providers.Fail(fmt.Sprintf("command failed: %v", err))
		result.Output = output
		return result, nil
	}
	return providers.OK(output), nil
}
