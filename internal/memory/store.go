// Package memory persists per-session conversation history and the bot's
// core memory.
//
// History is a list of chunks per session. One chunk is everything a
// single turn produced: the user message, assistant replies, tool calls and
// tool results. Each session keeps at most MaxChunks chunks; appending past
// the cap evicts the oldest.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dayuer/kira-go/internal/providers"
	"github.com/dayuer/kira-go/internal/session"
)

// ErrIndexOutOfRange is returned by core memory edits with a bad index.
var ErrIndexOutOfRange = errors.New("index out of range")

// DefaultMaxChunks is the per-session history cap.
const DefaultMaxChunks = 10

// Chunk is the messages produced by one turn.
type Chunk []providers.Message

// Store is the conversation memory used by the agent loop.
type Store interface {
	// Fetch returns the session's chunks flattened oldest first.
	Fetch(ctx context.Context, key session.Key) ([]providers.Message, error)

	// Append adds a chunk, evicting the oldest once the cap is exceeded.
	Append(ctx context.Context, key session.Key, chunk Chunk) error

	// CoreMemory renders core memory as numbered lines.
	CoreMemory(ctx context.Context) (string, error)

	// Sessions lists the keys that have history.
	Sessions(ctx context.Context) ([]string, error)
}

// CoreEditor edits core memory. Indexes are the numbers shown by
// CoreMemory.
type CoreEditor interface {
	Add(ctx context.Context, text string) error
	Update(ctx context.Context, index int, text string) error
	Remove(ctx context.Context, index int) (string, error)
}

// RenderCore numbers core memory lines as "[i] line".
func RenderCore(lines []string) string {
	var b strings.Builder
	for i, line := range lines {
		fmt.Fprintf(&b, "[%d] %s\n", i, line)
	}
	return b.String()
}

// flatten concatenates chunks oldest first.
func flatten(chunks []Chunk) []providers.Message {
	var out []providers.Message
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

// singleLine keeps a core memory entry on one line.
func singleLine(text string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(text, "\n", " ")), " ")
}
