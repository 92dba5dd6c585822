package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// NtfyTool pushes a notification to an ntfy topic.
type NtfyTool struct {
	URL    string // full topic endpoint
	Token  string // optional bearer token for protected topics
	Client *http.Client
}

func (t *NtfyTool) Name() string { return "ntfy" }
func (t *NtfyTool) Description() string {
	return "Push a notification to the owner's phone. Use sparingly, only for things worth interrupting them."
}
func (t *NtfyTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"msg":      map[string]any{"type": "string", "description": "Notification body"},
			"title":    map[string]any{"type": "string", "description": "Optional title"},
			"priority": map[string]any{"type": "integer", "description": "1 (min) to 5 (urgent), default 3"},
		},
		"required": []string{"msg"},
	}
}

func (t *NtfyTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	if t.URL == "" {
		return "", errors.New("ntfy url not configured")
	}
	if err := validateURL(t.URL); err != nil {
		return "", fmt.Errorf("ntfy url: %w", err)
	}
	msg := strings.TrimSpace(stringArg(args, "msg"))
	if msg == "" {
		return "", errors.New("msg is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewBufferString(msg))
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)
	if title := strings.TrimSpace(stringArg(args, "title")); title != "" {
		// Header values must be ASCII; ntfy decodes RFC 2047 words.
		req.Header.Set("Title", mime.BEncoding.Encode("UTF-8", title))
	}
	if p, ok := intArg(args, "priority"); ok && p >= 1 && p <= 5 {
		req.Header.Set("Priority", strconv.Itoa(p))
	}
	if t.Token != "" {
		req.Header.Set("Authorization", "Bearer "+t.Token)
	}

	resp, err := httpClient(t.Client, 10*time.Second).Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ntfy returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var sent struct {
		ID string `json:"id"`
	}
	if json.Unmarshal(body, &sent) == nil && sent.ID != "" {
		return "Notification sent (id " + sent.ID + ")", nil
	}
	return "Notification sent", nil
}
