// Package tools defines the tools the agent can call and the registry that
// dispatches model tool calls to them.
package tools

import (
	"context"
	"strconv"
	"strings"

	"github.com/dayuer/kira-go/internal/providers"
)

// Tool is the interface that all agent tools must implement.
type Tool interface {
	// Name returns the tool name used in model function calls.
	Name() string

	// Description returns what the tool does.
	Description() string

	// Parameters returns the JSON Schema for tool parameters.
	Parameters() map[string]any

	// Execute runs the tool with the decoded arguments.
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// ToDef converts a tool to the provider's tool description.
func ToDef(t Tool) providers.ToolDef {
	return providers.ToolDef{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  t.Parameters(),
	}
}

// stringArg reads a string argument.
func stringArg(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return s
}

// intArg reads an integer argument that JSON decoded as a number or that the
// model sent as a numeric string.
func intArg(args map[string]any, name string) (int, bool) {
	switch v := args[name].(type) {
	case float64:
		if v != float64(int(v)) {
			return 0, false
		}
		return int(v), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		return n, err == nil
	}
	return 0, false
}
