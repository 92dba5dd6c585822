// Package providers defines the LLM provider interface and message types.
package providers

import "context"

// Roles used in Message.Role.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall is a tool invocation requested by the model. Arguments holds the
// raw JSON string exactly as the model produced it.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one role-tagged chat message. It is stored verbatim in memory.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolDef describes a callable tool to the model.
type ToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Response is a model completion.
type Response struct {
	Text         string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        map[string]int
}

// HasToolCalls returns true if the response requests tool calls.
func (r *Response) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// LLMProvider is the interface for chat model backends.
type LLMProvider interface {
	// AgentRun sends messages with the tool catalogue attached.
	AgentRun(ctx context.Context, messages []Message, tools []ToolDef) (*Response, error)

	// Chat sends messages without tools.
	Chat(ctx context.Context, messages []Message) (*Response, error)

	// DefaultModel returns the default model identifier.
	DefaultModel() string
}

// ImageGenerator turns a prompt into an image. Exactly one of url or b64 is set.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (url, b64 string, err error)
}

// ImageEditor generates an image from a prompt and a reference picture.
type ImageEditor interface {
	EditImage(ctx context.Context, prompt string, image []byte, filename string) (url, b64 string, err error)
}

// SpeechSynthesizer turns text into base64 audio.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string) (string, error)
}

// Transcriber turns base64 audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, b64Audio string) (string, error)
}

// Describer describes an image given by URL or data URI.
type Describer interface {
	Describe(ctx context.Context, imageURL, prompt string) (string, error)
}
