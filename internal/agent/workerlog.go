package agent

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/arclabs/arc/internal/bus"
)

const (
	workerLogLabelWidth = 14
	workerLogEventWidth = 10
)

// WorkerLog writes an aligned activity line per background-agent event
// so `arc workers --follow` is readable at a glance. The previous run's
// log rotates to <name>.prev.log on open.
type WorkerLog struct {
	logger *slog.Logger

	mu   sync.Mutex
	file *os.File
}

// NewWorkerLog opens (and rotates) the worker activity log.
func NewWorkerLog(path string, logger *slog.Logger) (*WorkerLog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		prev := strings.TrimSuffix(path, ".log") + ".prev.log"
		if err := os.Rename(path, prev); err != nil {
			logger.Warn("worker log rotation failed", "path", path, "error", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open worker log: %w", err)
	}
	return &WorkerLog{logger: logger, file: f}, nil
}

// Attach subscribes the log to background-agent activity on the bus.
// Events sourced from the interactive "main" agent are skipped; its
// activity is already on screen.
func (w *WorkerLog) Attach(b *bus.Bus) {
	handler := func(ev bus.Event) {
		if ev.Source == "main" || ev.Source == "" {
			return
		}
		event, detail, ok := describeEvent(ev)
		if !ok {
			return
		}
		w.Line(ev.Source, event, detail)
	}
	for _, pattern := range []string{"agent:*", "skill:*"} {
		b.Subscribe(pattern, func(ctx context.Context, ev bus.Event) error {
			handler(ev)
			return nil
		})
	}
}

// Line writes one aligned log line and flushes it.
func (w *WorkerLog) Line(label, event, detail string) {
	line := fmt.Sprintf("%s | %s | %s | %s\n",
		time.Now().Format("15:04:05"),
		pad(label, workerLogLabelWidth),
		pad(event, workerLogEventWidth),
		detail)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return
	}
	if _, err := w.file.WriteString(line); err != nil {
		w.logger.Warn("worker log write failed", "error", err)
	}
}

// Close closes the underlying file.
func (w *WorkerLog) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func describeEvent(ev bus.Event) (event, detail string, ok bool) {
	switch ev.Type {
	case bus.EventAgentSpawned:
		return "SPAWNED", ev.String("task_name"), true
	case bus.EventAgentThinking:
		return "THINKING", fmt.Sprintf("iteration %d", ev.Int("iteration")), true
	case bus.EventSkillToolCall:
		return "TOOL CALL", ev.String("tool"), true
	case bus.EventSkillToolResult:
		status := "ok"
		if !ev.Bool("success") {
			status = "failed"
		}
		return "TOOL DONE", ev.String("tool") + " " + status, true
	case bus.EventAgentTaskComplete:
		status := "ok"
		if !ev.Bool("success") {
			status = "failed"
		}
		return "COMPLETE", ev.String("task_name") + " " + status, true
	case bus.EventAgentComplete:
		return "COMPLETE", ev.String("reason"), true
	case bus.EventAgentError:
		return "ERROR", ev.String("error"), true
	}
	return "", "", false
}

// pad truncates to width (display cells, not bytes) then right-pads.
func pad(s string, width int) string {
	return runewidth.FillRight(runewidth.Truncate(s, width, "…"), width)
}
