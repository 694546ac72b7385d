package skills

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/arclabs/arc/internal/providers"
)

// FilesystemSkill exposes read/write/list/delete over a workspace
// directory. Paths are resolved against the workspace and, when
// restrict is set, must stay inside it.
type FilesystemSkill struct {
	Base
	workspace string
	restrict  bool
}

// NewFilesystemSkill creates the skill rooted at workspace. An empty
// workspace means the current directory.
func NewFilesystemSkill(workspace string, restrict bool) *FilesystemSkill {
	if workspace == "" {
		workspace = "."
	}
	return &FilesystemSkill{workspace: workspace, restrict: restrict}
}

func (s *FilesystemSkill) Manifest() Manifest {
	pathParam := func(desc string) map[string]any {
		return map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{"type": "string", "description": desc},
			},
			"required": []string{"path"},
		}
	}
	return Manifest{
		Name:        "filesystem",
		Version:     "1.0",
		Description: "Read, write, list and delete files in the workspace",
		Tools: []providers.ToolSpec{
			{
				Name:                 "read_file",
				Description:          "Read the contents of a file",
				Parameters:           pathParam("Path to the file to read"),
				RequiredCapabilities: []providers.Capability{providers.CapFileRead},
			},
			{
				Name:        "write_file",
				Description: "Write content to a file, creating it if needed",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"path":    map[string]any{"type": "string", "description": "Path to write"},
						"content": map[string]any{"type": "string", "description": "Content to write"},
					},
					"required": []string{"path", "content"},
				},
				RequiredCapabilities: []providers.Capability{providers.CapFileWrite},
			},
			{
				Name:                 "list_dir",
				Description:          "List the entries of a directory",
				Parameters:           pathParam("Directory to list"),
				RequiredCapabilities: []providers.Capability{providers.CapFileRead},
			},
			{
				Name:                 "delete_file",
				Description:          "Delete a file",
				Parameters:           pathParam("Path to delete"),
				RequiredCapabilities: []providers.Capability{providers.CapFileDelete},
			},
		},
	}
}

func (s *FilesystemSkill) ExecuteTool(ctx context.Context, name string, args map[string]any) (providers.ToolResult, error) {
	path, ok := StringArg(args, "path")
	if !ok || path == "" {
		return providers.Fail("path is required"), nil
	}
	resolved, err := s.resolve(path)
	if err != nil {
		return providers.Fail(err.Error()), nil
	}

	switch name {
	case "read_file":
		data, err := os.ReadFile(resolved)
		if err != nil {
			return providers.Fail(fmt.Sprintf("read %s: %v", path, err)), nil
		}
		return providers.OK(string(data)), nil

	case "write_file":
		content, ok := StringArg(args, "content")
		if !ok {
			return providers.Fail("content is required"), nil
		}
		if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
			return providers.Fail(fmt.Sprintf("create parent dir: %v", err)), nil
		}
		if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
			return providers.Fail(fmt.Sprintf("write %s: %v", path, err)), nil
		}
		return providers.OK(fmt.Sprintf("wrote %d bytes to %s", len(content), path)), nil

	case "list_dir":
		entries, err := os.ReadDir(resolved)
		if err != nil {
			return providers.Fail(fmt.Sprintf("list %s: %v", path, err)), nil
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			n := e.Name()
			if e.IsDir() {
				n += "/"
			}
			names = append(names, n)
		}
		sort.Strings(names)
		return providers.OK(strings.Join(names, "\n")), nil

	case "delete_file":
		if err := os.Remove(resolved); err != nil {
			return providers.Fail(fmt.Sprintf("delete %s: %v", path, err)), nil
		}
		return providers.OK("deleted " + path), nil
	}
	return providers.Fail("unknown filesystem tool " + name), nil
}

// resolve makes path absolute relative to the workspace and enforces
// the workspace boundary when restricted.
func (s *FilesystemSkill) resolve(path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.workspace, path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	if s.restrict {
		wsAbs, err := filepath.Abs(s.workspace)
		if err != nil {
			return "", fmt.Errorf("resolve workspace: %w", err)
		}
		if abs != wsAbs && !strings.HasPrefix(abs, wsAbs+string(os.PathSeparator)) {
			return "", fmt.Errorf("path %s escapes the workspace", path)
		}
	}
	return abs, nil
}
