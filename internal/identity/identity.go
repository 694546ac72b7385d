// Package identity loads the agent's persona file, the markdown that
// becomes the base of the system prompt.
package identity

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Default is the persona used until the user writes their own.
const Default = `# Identity

You are Arc, a personal assistant that lives in the user's terminal.

You are direct and concise. You use the tools you are given rather
than guessing, you delegate long-running work to background tasks, and
you ask before doing anything destructive.`

// Load reads the persona at path, falling back to Default when the
// path is empty or the file does not exist. An empty file also falls
// back, so a half-finished init never produces a blank persona.
func Load(path string) (string, error) {
	if path == "" {
		return Default, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default, nil
	}
	if err != nil {
		return "", fmt.Errorf("read identity %s: %w", path, err)
	}
	persona := strings.TrimSpace(string(data))
	if persona == "" {
		return Default, nil
	}
	return persona, nil
}

// Write saves a persona file, creating parent directories.
func Write(path, persona string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create identity dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(persona), 0o644); err != nil {
		return fmt.Errorf("write identity %s: %w", path, err)
	}
	return nil
}
