package agent

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dayuer/kira-go/internal/bus"
	"github.com/dayuer/kira-go/internal/providers"
)

type staticCatalogue string

func (s staticCatalogue) Prompt() string { return string(s) }

func fixedBuilder(t *testing.T, ws string) *ContextBuilder {
	t.Helper()
	cb := NewContextBuilder(ws, []Account{{Platform: "qq", Adapter: "qq", Desc: "main", BotPID: "42"}}, staticCatalogue("[1] cat waving\n"))
	cb.now = func() time.Time { return time.Date(2025, 3, 7, 21, 5, 0, 0, time.UTC) }
	return cb
}

func TestBuildSystemPrompt_Sections(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(ws, PersonaFile), []byte("You are Mira."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(ws, FormatFile), []byte("Never use more than three messages."), 0o644))
	cb := fixedBuilder(t, ws)

	env := ChatEnv{Platform: "qq", ChatType: "GroupMessage", SelfID: "42", Sessions: []string{"qq:group:1"}}
	prompt := cb.BuildSystemPrompt(env, "[0] likes tea\n", nil, map[string]string{"14": "smile"})

	assert.Contains(t, prompt, "You are Mira.")
	assert.NotContains(t, prompt, defaultPersona)
	assert.Contains(t, prompt, "Never use more than three messages.")
	assert.Contains(t, prompt, "Mar 07 2025 21:05 Fri")
	assert.Contains(t, prompt, "chat_type: GroupMessage")
	assert.Contains(t, prompt, "qq:group:1")
	assert.Contains(t, prompt, "account_id: 42")
	assert.Contains(t, prompt, "[0] likes tea")
	assert.Contains(t, prompt, `{"14":"smile"}`)
	assert.Contains(t, prompt, "[1] cat waving")
	for _, tag := range []string{"<text>", "<img>", "<at>", "<reply>", "<record>", "<emoji>", "<sticker>", "<poke>"} {
		assert.Contains(t, prompt, tag)
	}
}

func TestBuildSystemPrompt_FiltersMessageTypes(t *testing.T) {
	cb := fixedBuilder(t, t.TempDir())
	prompt := cb.BuildSystemPrompt(ChatEnv{}, "", []string{"text", "emoji", "selfie", "video"}, nil)

	assert.Contains(t, prompt, "<text>")
	assert.Contains(t, prompt, "<emoji>")
	assert.Contains(t, prompt, "<selfie>")
	assert.NotContains(t, prompt, "<img>")
	assert.NotContains(t, prompt, "<sticker>")
	assert.NotContains(t, prompt, "<video>")
	assert.Contains(t, prompt, defaultPersona)
	assert.Contains(t, prompt, "(empty)")
}

func TestFormatUserMessage(t *testing.T) {
	cb := fixedBuilder(t, t.TempDir())
	ts := time.Date(2025, 1, 2, 3, 4, 0, 0, time.Local).Unix()

	group := bus.InboundEvent{
		MessageID: "m1", Timestamp: ts, Text: "hello",
		Sender: bus.User{ID: "u1", Nickname: "Ann"},
		Group:  &bus.Group{ID: "g1", Name: "Tea"},
	}
	assert.Equal(t,
		"[received_time: Jan 02 2025 03:04 Thu message_id: m1] [group_name: Tea group_id: g1 user_nickname: Ann, user_id: u1] | hello",
		cb.FormatUserMessage(group))

	direct := group
	direct.Group = nil
	assert.Equal(t,
		"[received_time: Jan 02 2025 03:04 Thu message_id: m1] [user_nickname: Ann, user_id: u1] | hello",
		cb.FormatUserMessage(direct))

	batch := cb.FormatBatch([]bus.InboundEvent{direct, direct})
	assert.Equal(t, 2, countLines(batch))
}

func countLines(s string) int {
	n := 0
	for _, r := range s {
		if r == '\n' {
			n++
		}
	}
	return n
}

func TestBuildMessages(t *testing.T) {
	cb := fixedBuilder(t, t.TempDir())
	history := []providers.Message{
		{Role: providers.RoleUser, Content: "Hello"},
		{Role: providers.RoleAssistant, Content: "Hi there!"},
	}
	msgs := cb.BuildMessages("sys", history, providers.Message{Role: providers.RoleUser, Content: "What's 2+2?"})

	require.Len(t, msgs, 4)
	assert.Equal(t, providers.RoleSystem, msgs[0].Role)
	assert.Equal(t, "sys", msgs[0].Content)
	assert.Equal(t, "Hello", msgs[1].Content)
	assert.Equal(t, "What's 2+2?", msgs[3].Content)
}
