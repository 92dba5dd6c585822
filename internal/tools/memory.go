package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/dayuer/kira-go/internal/memory"
)

// MemoryAddTool appends a core memory entry.
type MemoryAddTool struct {
	Core memory.CoreEditor
}

func (t *MemoryAddTool) Name() string { return "memory_add" }
func (t *MemoryAddTool) Description() string {
	return "Add an entry to core memory. Use it for lasting facts about people and things you should remember across chats."
}
func (t *MemoryAddTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{"type": "string", "description": "The memory text to record"},
		},
		"required": []string{"text"},
	}
}

func (t *MemoryAddTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	text := stringArg(args, "text")
	if text == "" {
		return "", errors.New("text is required")
	}
	if err := t.Core.Add(ctx, text); err != nil {
		return "", err
	}
	return "Core memory added", nil
}

// MemoryUpdateTool rewrites a core memory entry.
type MemoryUpdateTool struct {
	Core memory.CoreEditor
}

func (t *MemoryUpdateTool) Name() string        { return "memory_update" }
func (t *MemoryUpdateTool) Description() string { return "Replace the core memory entry with the given number." }
func (t *MemoryUpdateTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"index": map[string]any{"type": "number", "description": "Number of the memory entry to change"},
			"text":  map[string]any{"type": "string", "description": "New text for the entry"},
		},
		"required": []string{"index", "text"},
	}
}

func (t *MemoryUpdateTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	index, ok := intArg(args, "index")
	if !ok {
		return "", errors.New("index must be an integer")
	}
	err := t.Core.Update(ctx, index, stringArg(args, "text"))
	if errors.Is(err, memory.ErrIndexOutOfRange) {
		return "Index out of range", nil
	}
	if err != nil {
		return "", err
	}
	return "Core memory updated", nil
}

// MemoryRemoveTool deletes a core memory entry.
type MemoryRemoveTool struct {
	Core memory.CoreEditor
}

func (t *MemoryRemoveTool) Name() string        { return "memory_remove" }
func (t *MemoryRemoveTool) Description() string { return "Delete the core memory entry with the given number." }
func (t *MemoryRemoveTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"index": map[string]any{"type": "number", "description": "Number of the memory entry to delete"},
		},
		"required": []string{"index"},
	}
}

func (t *MemoryRemoveTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	index, ok := intArg(args, "index")
	if !ok {
		return "", errors.New("index must be an integer")
	}
	removed, err := t.Core.Remove(ctx, index)
	if errors.Is(err, memory.ErrIndexOutOfRange) {
		return "Index out of range", nil
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Core memory removed: %s", removed), nil
}

// MemoryTools returns the three core memory tools sharing one editor.
func MemoryTools(core memory.CoreEditor) []Tool {
	return []Tool{
		&MemoryAddTool{Core: core},
		&MemoryUpdateTool{Core: core},
		&MemoryRemoveTool{Core: core},
	}
}
