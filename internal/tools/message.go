package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dayuer/kira-go/internal/session"
)

// SendFunc sends reply markup to a session and returns the platform ids.
type SendFunc func(ctx context.Context, key session.Key, markup string) ([]string, error)

// SendMessageTool lets the agent message any session, not only the one it
// is answering.
type SendMessageTool struct {
	Send SendFunc
}

func (t *SendMessageTool) Name() string { return "send_message" }
func (t *SendMessageTool) Description() string {
	return "Send messages to a direct or group chat. target looks like qq:direct:3429924750 or qq:group:123456; " +
		"xml is the message markup in the same format as your replies, every message wrapped in <msg>."
}
func (t *SendMessageTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"target": map[string]any{"type": "string", "description": "Session key, e.g. qq:direct:3429924750"},
			"xml":    map[string]any{"type": "string", "description": "Message markup, each message wrapped in <msg>"},
		},
		"required": []string{"target", "xml"},
	}
}

func (t *SendMessageTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	if t.Send == nil {
		return "", errors.New("message sending not configured")
	}
	key, err := session.ParseKey(stringArg(args, "target"))
	if err != nil {
		return "", err
	}
	markup := stringArg(args, "xml")
	if strings.TrimSpace(markup) == "" {
		return "", errors.New("xml is required")
	}

	ids, err := t.Send(ctx, key, markup)
	if err != nil {
		return "", err
	}
	sent := 0
	for _, id := range ids {
		if id != "" {
			sent++
		}
	}
	return fmt.Sprintf("Sent %d of %d messages to %s (ids: %s)", sent, len(ids), key, strings.Join(ids, ",")), nil
}
