package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// maxReadChars truncates read_file output.
const maxReadChars = 50_000

// sandbox resolves and optionally restricts filesystem paths to a root
// directory, matching the "optional allowed-directory sandbox" named for
// read_file/write_file/exec.
type sandbox struct {
	root     string
	restrict bool
}

func (s *sandbox) resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	expanded := path
	if strings.HasPrefix(expanded, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			expanded = filepath.Join(home, strings.TrimPrefix(expanded, "~"))
		}
	}
	if !filepath.IsAbs(expanded) {
		expanded = filepath.Join(s.root, expanded)
	}
	resolved, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	if s.restrict {
		rootAbs, err := filepath.Abs(s.root)
		if err != nil {
			return "", err
		}
		if resolved != rootAbs && !strings.HasPrefix(resolved, rootAbs+string(filepath.Separator)) {
			return "", fmt.Errorf("path %q escapes sandbox root %q", path, rootAbs)
		}
	}
	return resolved, nil
}

// ReadFileTool implements the read_file built-in.
type ReadFileTool struct{ sb sandbox }

func NewReadFileTool(root string, restrict bool) *ReadFileTool {
	return &ReadFileTool{sb: sandbox{root: root, restrict: restrict}}
}

func (t *ReadFileTool) Name() string        { return "read_file" }
func (t *ReadFileTool) Description() string { return "Read the contents of a file" }
func (t *ReadFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{"type": "string", "description": "Path to the file to read"},
		},
		"required": []string{"path"},
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, params map[string]interface{}) (string, error) {
	path, _ := params["path"].(string)
	resolved, err := t.sb.resolve(path)
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	content := string(b)
	if len(content) > maxReadChars {
		content = content[:maxReadChars] + "\n...[truncated]"
	}
	return content, nil
}

// WriteFileTool implements the write_file built-in.
type WriteFileTool struct{ sb sandbox }

func NewWriteFileTool(root string, restrict bool) *WriteFileTool {
	return &WriteFileTool{sb: sandbox{root: root, restrict: restrict}}
}

func (t *WriteFileTool) Name() string        { return "write_file" }
func (t *WriteFileTool) Description() string { return "Write content to a file, creating parent directories if needed" }
func (t *WriteFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path":    map[string]interface{}{"type": "string", "description": "Path to the file to write"},
			"content": map[string]interface{}{"type": "string", "description": "Content to write"},
		},
		"required": []string{"path", "content"},
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, params map[string]interface{}) (string, error) {
	path, _ := params["path"].(string)
	content, _ := params["content"].(string)
	resolved, err := t.sb.resolve(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return "", fmt.Errorf("create parent dirs: %w", err)
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return fmt.Sprintf("Wrote %d bytes to %s", len(content), path), nil
}

// EditFileTool implements the edit_file built-in: exact single-match
// substring replace.
type EditFileTool struct{ sb sandbox }

func NewEditFileTool(root string, restrict bool) *EditFileTool {
	return &EditFileTool{sb: sandbox{root: root, restrict: restrict}}
}

func (t *EditFileTool) Name() string        { return "edit_file" }
func (t *EditFileTool) Description() string { return "Replace an exact, uniquely-occurring span of text in a file" }
func (t *EditFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path":     map[string]interface{}{"type": "string"},
			"old_text": map[string]interface{}{"type": "string"},
			"new_text": map[string]interface{}{"type": "string"},
		},
		"required": []string{"path", "old_text", "new_text"},
	}
}

func (t *EditFileTool) Execute(ctx context.Context, params map[string]interface{}) (string, error) {
	path, _ := params["path"].(string)
	oldText, _ := params["old_text"].(string)
	newText, _ := params["new_text"].(string)

	resolved, err := t.sb.resolve(path)
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	content := string(b)
	count := strings.Count(content, oldText)
	if count == 0 {
		return "", fmt.Errorf("old_text not found in %s", path)
	}
	if count > 1 {
		return "", fmt.Errorf("old_text matches %d times in %s, must match exactly once", count, path)
	}
	updated := strings.Replace(content, oldText, newText, 1)
	if err := os.WriteFile(resolved, []byte(updated), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return fmt.Sprintf("Edited %s", path), nil
}

// ListDirTool implements the list_dir built-in.
type ListDirTool struct{ sb sandbox }

func NewListDirTool(root string, restrict bool) *ListDirTool {
	return &ListDirTool{sb: sandbox{root: root, restrict: restrict}}
}

func (t *ListDirTool) Name() string        { return "list_dir" }
func (t *ListDirTool) Description() string { return "List entries in a directory" }
func (t *ListDirTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{"type": "string"},
		},
		"required": []string{"path"},
	}
}

func (t *ListDirTool) Execute(ctx context.Context, params map[string]interface{}) (string, error) {
	path, _ := params["path"].(string)
	resolved, err := t.sb.resolve(path)
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return "", fmt.Errorf("list %s: %w", path, err)
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	sort.Strings(names)

	byName := make(map[string]os.DirEntry, len(entries))
	for _, e := range entries {
		byName[e.Name()] = e
	}

	var b strings.Builder
	for _, name := range names {
		if byName[name].IsDir() {
			fmt.Fprintf(&b, "[dir]  %s\n", name)
		} else {
			fmt.Fprintf(&b, "[file] %s\n", name)
		}
	}
	return b.String(), nil
}
