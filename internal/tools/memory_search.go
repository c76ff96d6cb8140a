package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/jaredwolff/patina-go/internal/memory"
)

const (
	memorySearchDefaultLimit = 5
	memorySearchMaxLimit     = 20
)

// MemorySearchTool implements the memory_search built-in: a proxy to
// the FTS5-backed memory index.
type MemorySearchTool struct {
	index *memory.Index
}

func NewMemorySearchTool(index *memory.Index) *MemorySearchTool {
	return &MemorySearchTool{index: index}
}

func (t *MemorySearchTool) Name() string        { return "memory_search" }
func (t *MemorySearchTool) Description() string { return "Full-text search over long-term memory files" }
func (t *MemorySearchTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{"type": "string"},
			"limit": map[string]interface{}{"type": "integer", "minimum": float64(1), "maximum": float64(memorySearchMaxLimit)},
		},
		"required": []string{"query"},
	}
}

func (t *MemorySearchTool) Execute(ctx context.Context, params map[string]interface{}) (string, error) {
	query, _ := params["query"].(string)
	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("query is required")
	}
	limit := memorySearchDefaultLimit
	if v, ok := numVal(params["limit"]); ok {
		limit = int(v)
	}
	if limit > memorySearchMaxLimit {
		limit = memorySearchMaxLimit
	}
	if limit < 1 {
		limit = 1
	}

	results, err := t.index.Search(query, limit)
	if err != nil {
		return "", fmt.Errorf("search memory: %w", err)
	}
	if len(results) == 0 {
		return "No matches found.", nil
	}

	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s:%d-%d (score %.3f)\n%s\n\n", i+1, r.Path, r.StartLine, r.EndLine, r.Score, r.Text)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
