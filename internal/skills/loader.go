package skills

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// SoftSkills loads plain-markdown skill files (~/.arc/skills/*.md)
// whose contents are appended verbatim to the system prompt, and hot
// reloads them when the directory changes.
type SoftSkills struct {
	dir    string
	logger *slog.Logger

	mu      sync.RWMutex
	content string
	names   []string
}

// NewSoftSkills creates a loader for dir. The directory may not exist
// yet; Load then yields empty content.
func NewSoftSkills(dir string, logger *slog.Logger) *SoftSkills {
	if logger == nil {
		logger = slog.Default()
	}
	return &SoftSkills{dir: dir, logger: logger}
}

// Load reads every *.md file in the directory, sorted by name, and
// rebuilds the combined prompt block.
func (s *SoftSkills) Load() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			s.mu.Lock()
			s.content, s.names = "", nil
			s.mu.Unlock()
			return nil
		}
		return fmt.Errorf("read skills dir: %w", err)
	}

	var names []string
	var blocks []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			s.logger.Warn("skip unreadable soft skill", "file", name, "error", err)
			continue
		}
		blocks = append(blocks, strings.TrimSpace(string(data)))
	}

	s.mu.Lock()
	s.names = names
	s.content = strings.Join(blocks, "\n\n")
	s.mu.Unlock()
	if len(names) > 0 {
		s.logger.Info("soft skills loaded", "count", len(names))
	}
	return nil
}

// Content returns the combined markdown block for the system prompt.
func (s *SoftSkills) Content() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.content
}

// Names returns the loaded file names, sorted.
func (s *SoftSkills) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.names...)
}

// Watch reloads on any change in the skills directory until ctx is
// cancelled. Returns immediately if the directory does not exist.
func (s *SoftSkills) Watch(ctx context.Context) error {
	if _, err := os.Stat(s.dir); err != nil {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", s.dir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				if err := s.Load(); err != nil {
					s.logger.Warn("soft skill reload failed", "error", err)
				} else {
					s.logger.Debug("soft skills reloaded", "trigger", ev.Name)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("skills watcher error", "error", err)
			}
		}
	}()
	return nil
}
