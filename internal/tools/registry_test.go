package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dayuer/kira-go/internal/providers"
)

type echoTool struct {
	got map[string]any
	err error
}

func (t *echoTool) Name() string        { return "echo" }
func (t *echoTool) Description() string { return "echo" }
func (t *echoTool) Parameters() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}
func (t *echoTool) Execute(_ context.Context, args map[string]any) (string, error) {
	t.got = args
	if t.err != nil {
		return "", t.err
	}
	return "echoed", nil
}

func TestEchoTool_Contract(t *testing.T) {
	RunToolContractTests(t, &echoTool{})
}

func errorOf(t *testing.T, content string) string {
	t.Helper()
	var m map[string]string
	require.NoError(t, json.Unmarshal([]byte(content), &m))
	return m["error"]
}

func TestRegistry_Invoke(t *testing.T) {
	tool := &echoTool{}
	r := NewRegistry(tool)

	out, err := r.Invoke(context.Background(), providers.ToolCall{Name: "echo", Arguments: `{"a":1}`})
	require.NoError(t, err)
	assert.Equal(t, "echoed", out)
	assert.Equal(t, map[string]any{"a": 1.0}, tool.got)
}

func TestRegistry_InvokeMalformedArgsAreEmpty(t *testing.T) {
	tool := &echoTool{}
	r := NewRegistry(tool)

	for _, raw := range []string{"", "   ", "{not json", "null", "[1,2]"} {
		out, err := r.Invoke(context.Background(), providers.ToolCall{Name: "echo", Arguments: raw})
		require.NoError(t, err, raw)
		assert.Equal(t, "echoed", out)
		assert.Empty(t, tool.got, raw)
	}
}

func TestRegistry_InvokeUnknownTool(t *testing.T) {
	r := NewRegistry()
	out, err := r.Invoke(context.Background(), providers.ToolCall{Name: "nope"})
	assert.Error(t, err)
	assert.Equal(t, "Tool nope not implemented", errorOf(t, out))
}

func TestRegistry_InvokeToolError(t *testing.T) {
	r := NewRegistry(&echoTool{err: errors.New("disk full")})
	out, err := r.Invoke(context.Background(), providers.ToolCall{Name: "echo"})
	assert.Error(t, err)
	assert.Equal(t, "Failed to call tool 'echo': disk full", errorOf(t, out))
}

func TestRegistry_DefsSorted(t *testing.T) {
	r := NewRegistry(&WebSearchTool{}, &echoTool{}, &WebFetchTool{})
	defs := r.Defs()
	require.Len(t, defs, 3)
	assert.Equal(t, "echo", defs[0].Name)
	assert.Equal(t, "web_fetch", defs[1].Name)
	assert.Equal(t, "web_search", defs[2].Name)
	assert.Nil(t, r.Get("missing"))
}
