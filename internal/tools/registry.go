package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dayuer/kira-go/internal/providers"
)

// Registry holds all registered tools, keyed by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a registry holding tools.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds a tool, replacing any tool with the same name.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Get returns a tool by name, or nil if not found.
func (r *Registry) Get(name string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// All returns the registered tools sorted by name.
func (r *Registry) All() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name() < result[j].Name() })
	return result
}

// Defs returns the tool descriptions sent to the model.
func (r *Registry) Defs() []providers.ToolDef {
	tools := r.All()
	defs := make([]providers.ToolDef, len(tools))
	for i, t := range tools {
		defs[i] = ToDef(t)
	}
	return defs
}

// Invoke runs the tool a model call names and returns the content of the
// tool result message. Failures come back as {"error": ...} content; the
// error is returned as well so callers can log it.
//
// Blank or malformed arguments are treated as no arguments.
func (r *Registry) Invoke(ctx context.Context, call providers.ToolCall) (string, error) {
	tool := r.Get(call.Name)
	if tool == nil {
		err := fmt.Errorf("tool %s not implemented", call.Name)
		return errorContent(fmt.Sprintf("Tool %s not implemented", call.Name)), err
	}

	args := map[string]any{}
	if raw := strings.TrimSpace(call.Arguments); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
			args = map[string]any{}
		}
	}

	out, err := tool.Execute(ctx, args)
	if err != nil {
		return errorContent(fmt.Sprintf("Failed to call tool '%s': %v", call.Name, err)), err
	}
	return out, nil
}

func errorContent(msg string) string {
	data, _ := json.Marshal(map[string]string{"error": msg})
	return string(data)
}
