package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dayuer/kira-go/internal/session"
)

func TestSendMessageTool_Contract(t *testing.T) {
	RunToolContractTests(t, &SendMessageTool{})
}

func TestSendMessageTool_Execute(t *testing.T) {
	var gotKey session.Key
	var gotMarkup string
	tool := &SendMessageTool{Send: func(_ context.Context, key session.Key, markup string) ([]string, error) {
		gotKey, gotMarkup = key, markup
		return []string{"11", ""}, nil
	}}

	out, err := tool.Execute(context.Background(), map[string]any{
		"target": "qq:dm:42",
		"xml":    "<msg><text>hi</text></msg><msg><text>again</text></msg>",
	})
	require.NoError(t, err)
	assert.Equal(t, session.NewKey("qq", session.Direct, "42"), gotKey)
	assert.Equal(t, "<msg><text>hi</text></msg><msg><text>again</text></msg>", gotMarkup)
	assert.Equal(t, "Sent 1 of 2 messages to qq:direct:42 (ids: 11,)", out)
}

func TestSendMessageTool_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := (&SendMessageTool{}).Execute(ctx, map[string]any{"target": "qq:dm:1", "xml": "<msg/>"})
	assert.Error(t, err)

	send := func(context.Context, session.Key, string) ([]string, error) { return nil, errors.New("offline") }
	tool := &SendMessageTool{Send: send}

	_, err = tool.Execute(ctx, map[string]any{"target": "nonsense", "xml": "<msg/>"})
	assert.ErrorIs(t, err, session.ErrInvalidKey)

	_, err = tool.Execute(ctx, map[string]any{"target": "qq:dm:1", "xml": " "})
	assert.Error(t, err)

	_, err = tool.Execute(ctx, map[string]any{"target": "qq:dm:1", "xml": "<msg/>"})
	assert.EqualError(t, err, "offline")
}
