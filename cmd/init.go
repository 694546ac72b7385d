package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/arclabs/arc/internal/config"
	"github.com/arclabs/arc/internal/identity"
)

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create ~/.arc with a config file and identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(force)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func runInit(force bool) error {
	cfgPath := config.UserConfigPath()
	if _, err := os.Stat(cfgPath); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", cfgPath)
	}

	defaults := config.Default()
	agentName := defaults.Agent.Name
	baseURL := defaults.LLM.BaseURL
	model := defaults.LLM.Model
	persona := identity.Default
	schedulerOn := true
	telegramToken := ""
	telegramChatID := ""

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Agent name").
				Value(&agentName),
			huh.NewInput().
				Title("Ollama base URL").
				Value(&baseURL),
			huh.NewInput().
				Title("Model").
				Value(&model),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Enable the job scheduler?").
				Value(&schedulerOn),
			huh.NewInput().
				Title("Telegram bot token (empty to skip)").
				Value(&telegramToken),
			huh.NewInput().
				Title("Telegram chat id").
				Value(&telegramChatID),
		),
		huh.NewGroup(
			huh.NewText().
				Title("Identity (markdown persona)").
				Value(&persona),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("init wizard: %w", err)
	}

	dir := config.Dir()
	for _, sub := range []string{"", "logs", "skills", "memory"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return fmt.Errorf("create %s: %w", filepath.Join(dir, sub), err)
		}
	}

	content := fmt.Sprintf(`[agent]
name = %q

[llm]
provider = "ollama"
base_url = %q
model = %q

[security]
auto_allow = ["file:read"]
always_ask = ["file:write", "file:delete", "shell:exec", "network:http"]
never_allow = []

[scheduler]
enabled = %t
store = "sqlite"

[identity]
path = %q

[telegram]
token = %q
chat_id = %q
`, agentName, baseURL, model, schedulerOn,
		filepath.Join(dir, "identity.md"), telegramToken, telegramChatID)

	if err := os.WriteFile(cfgPath, []byte(content), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", cfgPath, err)
	}
	if err := identity.Write(filepath.Join(dir, "identity.md"), persona); err != nil {
		return err
	}

	fmt.Printf("Wrote %s\nRun `arc chat` to start.\n", cfgPath)
	return nil
}
