package agent

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dayuer/kira-go/internal/memory"
	"github.com/dayuer/kira-go/internal/providers"
	"github.com/dayuer/kira-go/internal/session"
	"github.com/dayuer/kira-go/internal/tools"
)

// mockProvider replays scripted responses and records each request.
type mockProvider struct {
	mu        sync.Mutex
	responses []*providers.Response
	errs      []error
	calls     [][]providers.Message
	repeat    *providers.Response
}

func (m *mockProvider) AgentRun(_ context.Context, msgs []providers.Message, _ []providers.ToolDef) (*providers.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := len(m.calls)
	m.calls = append(m.calls, append([]providers.Message(nil), msgs...))
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	if i < len(m.responses) {
		return m.responses[i], nil
	}
	if m.repeat != nil {
		return m.repeat, nil
	}
	return &providers.Response{Text: ""}, nil
}

func (m *mockProvider) Chat(ctx context.Context, msgs []providers.Message) (*providers.Response, error) {
	return m.AgentRun(ctx, msgs, nil)
}

func (m *mockProvider) DefaultModel() string { return "mock-model" }

type recordingSender struct {
	sent []string
	err  error
}

func (s *recordingSender) SendMarkup(_ context.Context, _ session.Key, markup string) (string, []string, error) {
	if s.err != nil {
		return "", nil, s.err
	}
	s.sent = append(s.sent, markup)
	return "annotated:" + markup, []string{"1"}, nil
}

type echoTool struct{}

func (echoTool) Name() string               { return "echo" }
func (echoTool) Description() string        { return "Echo the text argument" }
func (echoTool) Parameters() map[string]any { return map[string]any{"type": "object"} }
func (echoTool) Execute(_ context.Context, args map[string]any) (string, error) {
	s, _ := args["text"].(string)
	return "echo:" + s, nil
}

func newTestLoop(t *testing.T, p providers.LLMProvider, sender MarkupSender, maxToolLoop int) (*Loop, *memory.FileStore) {
	t.Helper()
	store, err := memory.NewFileStore(t.TempDir(), memory.DefaultMaxChunks, nil)
	require.NoError(t, err)
	loop := NewLoop(p, tools.NewRegistry(echoTool{}), store, NewContextBuilder(t.TempDir(), nil, nil), sender,
		Config{MaxToolLoop: maxToolLoop})
	return loop, store
}

var testKey = session.NewKey("qq", session.Group, "100")

func toolCall(id string) []providers.ToolCall {
	return []providers.ToolCall{{ID: id, Name: "echo", Arguments: `{"text":"hi"}`}}
}

func TestRunTurn_TextReply(t *testing.T) {
	mp := &mockProvider{responses: []*providers.Response{{Text: "  <msg><text>hello</text></msg> "}}}
	sender := &recordingSender{}
	loop, store := newTestLoop(t, mp, sender, 2)

	require.NoError(t, loop.RunTurn(context.Background(), testKey, "[user] | hi\n", ChatEnv{}, nil, nil))

	assert.Equal(t, []string{"<msg><text>hello</text></msg>"}, sender.sent)
	mem, err := store.Fetch(context.Background(), testKey)
	require.NoError(t, err)
	require.Len(t, mem, 2)
	assert.Equal(t, providers.Message{Role: providers.RoleUser, Content: "[user] | hi\n"}, mem[0])
	assert.Equal(t, providers.Message{Role: providers.RoleAssistant, Content: "annotated:<msg><text>hello</text></msg>"}, mem[1])

	require.Len(t, mp.calls, 1)
	assert.Equal(t, providers.RoleSystem, mp.calls[0][0].Role)
	assert.Equal(t, "[user] | hi\n", mp.calls[0][len(mp.calls[0])-1].Content)
}

func TestRunTurn_CallBoundWithDefaultLoop(t *testing.T) {
	mp := &mockProvider{repeat: &providers.Response{ToolCalls: toolCall("c")}}
	loop, store := newTestLoop(t, mp, &recordingSender{}, DefaultMaxToolLoop)

	require.NoError(t, loop.RunTurn(context.Background(), testKey, "go", ChatEnv{}, nil, nil))

	assert.Len(t, mp.calls, 3)
	mem, err := store.Fetch(context.Background(), testKey)
	require.NoError(t, err)
	// user, then assistant + tool result per step
	require.Len(t, mem, 7)
	assert.Equal(t, providers.RoleTool, mem[6].Role)
	assert.Equal(t, "echo:hi", mem[6].Content)
	assert.Equal(t, "c", mem[6].ToolCallID)
}

func TestRunTurn_ZeroToolLoopMakesOneCall(t *testing.T) {
	mp := &mockProvider{repeat: &providers.Response{ToolCalls: toolCall("c")}}
	loop, _ := newTestLoop(t, mp, &recordingSender{}, 0)

	require.NoError(t, loop.RunTurn(context.Background(), testKey, "go", ChatEnv{}, nil, nil))
	assert.Len(t, mp.calls, 1)
}

func TestRunTurn_ThreeCallExample(t *testing.T) {
	mp := &mockProvider{responses: []*providers.Response{
		{ToolCalls: toolCall("a")},
		{Text: "<msg><text>checking</text></msg>", ToolCalls: toolCall("b")},
		{Text: "<msg><text>done</text></msg>"},
	}}
	sender := &recordingSender{}
	loop, store := newTestLoop(t, mp, sender, 2)

	require.NoError(t, loop.RunTurn(context.Background(), testKey, "go", ChatEnv{}, nil, nil))

	assert.Len(t, mp.calls, 3)
	assert.Equal(t, []string{"<msg><text>checking</text></msg>", "<msg><text>done</text></msg>"}, sender.sent)

	mem, err := store.Fetch(context.Background(), testKey)
	require.NoError(t, err)
	require.Len(t, mem, 6)
	assert.Equal(t, "", mem[1].Content)
	assert.Len(t, mem[1].ToolCalls, 1)
	assert.Equal(t, "annotated:<msg><text>checking</text></msg>", mem[3].Content)
	assert.Equal(t, "annotated:<msg><text>done</text></msg>", mem[5].Content)

	// The third call sees both tool results.
	last := mp.calls[2]
	assert.Equal(t, providers.RoleTool, last[len(last)-1].Role)
}

func TestRunTurn_ProviderFailure(t *testing.T) {
	mp := &mockProvider{errs: []error{errors.New("503")}}
	sender := &recordingSender{}
	loop, store := newTestLoop(t, mp, sender, 2)

	require.NoError(t, loop.RunTurn(context.Background(), testKey, "hi", ChatEnv{}, nil, nil))

	assert.Len(t, mp.calls, 1)
	assert.Empty(t, sender.sent)
	mem, err := store.Fetch(context.Background(), testKey)
	require.NoError(t, err)
	require.Len(t, mem, 2)
	assert.Equal(t, providers.Message{Role: providers.RoleAssistant}, mem[1])
}

func TestRunTurn_UnknownToolReportsError(t *testing.T) {
	mp := &mockProvider{responses: []*providers.Response{
		{ToolCalls: []providers.ToolCall{{ID: "x", Name: "nope", Arguments: "{}"}}},
		{Text: ""},
	}}
	loop, store := newTestLoop(t, mp, &recordingSender{}, 2)

	require.NoError(t, loop.RunTurn(context.Background(), testKey, "hi", ChatEnv{}, nil, nil))

	mem, err := store.Fetch(context.Background(), testKey)
	require.NoError(t, err)
	require.Len(t, mem, 4)
	assert.JSONEq(t, `{"error":"Tool nope not implemented"}`, mem[2].Content)
	assert.Equal(t, providers.Message{Role: providers.RoleAssistant}, mem[3])
}

func TestRunTurn_EmptyReplySendsNothing(t *testing.T) {
	mp := &mockProvider{responses: []*providers.Response{{Text: "   "}}}
	sender := &recordingSender{}
	loop, _ := newTestLoop(t, mp, sender, 2)

	require.NoError(t, loop.RunTurn(context.Background(), testKey, "hi", ChatEnv{}, nil, nil))
	assert.Empty(t, sender.sent)
}

func TestRunTurn_SendFailureKeepsText(t *testing.T) {
	mp := &mockProvider{responses: []*providers.Response{{Text: "<msg><text>x</text></msg>"}}}
	loop, store := newTestLoop(t, mp, &recordingSender{err: context.Canceled}, 2)

	require.NoError(t, loop.RunTurn(context.Background(), testKey, "hi", ChatEnv{}, nil, nil))
	mem, err := store.Fetch(context.Background(), testKey)
	require.NoError(t, err)
	assert.Equal(t, "<msg><text>x</text></msg>", mem[1].Content)
}

func TestRunTurn_HistoryCarriesOver(t *testing.T) {
	mp := &mockProvider{repeat: &providers.Response{Text: "<msg><text>ok</text></msg>"}}
	loop, _ := newTestLoop(t, mp, &recordingSender{}, 2)
	ctx := context.Background()

	require.NoError(t, loop.RunTurn(ctx, testKey, "first", ChatEnv{}, nil, nil))
	require.NoError(t, loop.RunTurn(ctx, testKey, "second", ChatEnv{}, nil, nil))

	require.Len(t, mp.calls, 2)
	second := mp.calls[1]
	require.Len(t, second, 4)
	assert.Equal(t, "first", second[1].Content)
	assert.Equal(t, "annotated:<msg><text>ok</text></msg>", second[2].Content)
	assert.Equal(t, "second", second[3].Content)

	other, err := loop.Memory.Fetch(ctx, session.NewKey("qq", session.Direct, "100"))
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestNewLoop_NegativeMeansDefault(t *testing.T) {
	loop := NewLoop(&mockProvider{}, nil, nil, nil, nil, Config{MaxToolLoop: -1})
	assert.Equal(t, DefaultMaxToolLoop+1, loop.MaxSteps())
}
