package skills

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/arclabs/arc/internal/providers"
)

// Manager owns every skill's lifecycle: registration captures the
// manifest and initializes the skill, activation happens lazily on the
// first tool call, and shutdown touches only what was activated.
type Manager struct {
	logger *slog.Logger

	mu          sync.Mutex
	skills      map[string]Skill
	manifests   map[string]Manifest
	toolToSkill map[string]string
	initialized map[string]bool
	activated   map[string]bool
}

// NewManager creates an empty manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger:      logger,
		skills:      make(map[string]Skill),
		manifests:   make(map[string]Manifest),
		toolToSkill: make(map[string]string),
		initialized: make(map[string]bool),
		activated:   make(map[string]bool),
	}
}

// Register captures the skill's manifest, maps its tools (last
// registration wins, with a warning), and initializes it.
func (m *Manager) Register(ctx context.Context, s Skill, cfg map[string]any) error {
	manifest := s.Manifest()
	if manifest.Name == "" {
		return fmt.Errorf("skill manifest has no name")
	}

	m.mu.Lock()
	m.skills[manifest.Name] = s
	m.manifests[manifest.Name] = manifest
	for _, tool := range manifest.Tools {
		if prev, taken := m.toolToSkill[tool.Name]; taken && prev != manifest.Name {
			m.logger.Warn("tool re-registered by another skill",
				"tool", tool.Name, "previous_skill", prev, "skill", manifest.Name)
		}
		m.toolToSkill[tool.Name] = manifest.Name
	}
	m.mu.Unlock()

	if err := s.Initialize(ctx, cfg); err != nil {
		return fmt.Errorf("initialize skill %s: %w", manifest.Name, err)
	}
	m.mu.Lock()
	m.initialized[manifest.Name] = true
	m.mu.Unlock()
	m.logger.Info("skill registered", "skill", manifest.Name, "tools", len(manifest.Tools))
	return nil
}

// ExecuteTool routes a tool call to its owning skill, activating the
// skill on first use. Failures of any kind come back as a failure
// ToolResult, never as an error.
func (m *Manager) ExecuteTool(ctx context.Context, name string, args map[string]any) providers.ToolResult {
	start := time.Now()

	m.mu.Lock()
	skillName, ok := m.toolToSkill[name]
	if !ok {
		known := make([]string, 0, len(m.toolToSkill))
		for t := range m.toolToSkill {
			known = append(known, t)
		}
		m.mu.Unlock()
		sort.Strings(known)
		return providers.Fail(fmt.Sprintf("unknown tool %q; known tools: %s", name, strings.Join(known, ", ")))
	}
	s := m.skills[skillName]
	needsActivation := !m.activated[skillName]
	if needsActivation {
		// Mark before releasing the lock so a concurrent call for the
		// same skill doesn't double-activate.
		m.activated[skillName] = true
	}
	m.mu.Unlock()

	if needsActivation {
		if err := s.Activate(ctx); err != nil {
			m.mu.Lock()
			delete(m.activated, skillName)
			m.mu.Unlock()
			return providers.Fail(fmt.Sprintf("activate skill %s: %v", skillName, err))
		}
		m.logger.Debug("skill activated", "skill", skillName)
	}

	result, err := m.executeSafely(ctx, s, name, args)
	if err != nil {
		result = providers.Fail(err.Error())
	}
	result.DurationMS = time.Since(start).Milliseconds()
	return result
}

// executeSafely converts panics in skill code into errors.
func (m *Manager) executeSafely(ctx context.Context, s Skill, name string, args map[string]any) (result providers.ToolResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool %s panicked: %v", name, r)
		}
	}()
	return s.ExecuteTool(ctx, name, args)
}

// AllToolSpecs returns every declared tool spec, sorted by name for a
// deterministic prompt.
func (m *Manager) AllToolSpecs() []providers.ToolSpec {
	m.mu.Lock()
	defer m.mu.Unlock()
	var specs []providers.ToolSpec
	for _, manifest := range m.manifests {
		specs = append(specs, manifest.Tools...)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// ToolSpec returns the spec for one tool.
func (m *Manager) ToolSpec(name string) (providers.ToolSpec, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	skillName, ok := m.toolToSkill[name]
	if !ok {
		return providers.ToolSpec{}, false
	}
	for _, spec := range m.manifests[skillName].Tools {
		if spec.Name == name {
			return spec, true
		}
	}
	return providers.ToolSpec{}, false
}

// SkillForTool returns the owning skill's name.
func (m *Manager) SkillForTool(tool string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.toolToSkill[tool]
	return s, ok
}

// SkillNames returns registered skill names, sorted.
func (m *Manager) SkillNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.skills))
	for name := range m.skills {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Manifests returns a snapshot of all manifests, sorted by name.
func (m *Manager) Manifests() []Manifest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Manifest, 0, len(m.manifests))
	for _, mf := range m.manifests {
		out = append(out, mf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// IsActivated reports whether a skill has been activated.
func (m *Manager) IsActivated(skill string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activated[skill]
}

// ShutdownAll shuts down every activated skill; skills that were never
// activated are left alone.
func (m *Manager) ShutdownAll(ctx context.Context) {
	m.mu.Lock()
	var active []Skill
	var names []string
	for name := range m.activated {
		active = append(active, m.skills[name])
		names = append(names, name)
	}
	m.activated = make(map[string]bool)
	m.mu.Unlock()

	for i, s := range active {
		if err := s.Shutdown(ctx); err != nil {
			m.logger.Error("skill shutdown failed", "skill", names[i], "error", err)
		}
	}
}
