package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// ErrNoChoices is returned when the backend answers without any choice.
var ErrNoChoices = errors.New("no choices in response")

// Client is the subset of the go-openai client the provider uses.
type Client interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateImage(ctx context.Context, req openai.ImageRequest) (openai.ImageResponse, error)
	CreateEditImage(ctx context.Context, req openai.ImageEditRequest) (openai.ImageResponse, error)
	CreateSpeech(ctx context.Context, req openai.CreateSpeechRequest) (openai.RawResponse, error)
	CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error)
}

// Options configures an OpenAIProvider.
type Options struct {
	APIKey      string
	APIBase     string
	Model       string
	MaxTokens   int
	Temperature float32

	ImageModel  string
	TTSModel    string
	TTSVoice    string
	STTModel    string
	VisionModel string
}

// OpenAIProvider talks to any OpenAI-compatible endpoint. It also serves
// the media capabilities: image generation, speech, transcription and
// image description.
type OpenAIProvider struct {
	client Client
	opts   Options
}

// NewOpenAIProvider builds a provider, resolving API base and key from the
// endpoint table when they are not configured.
func NewOpenAIProvider(opts Options) *OpenAIProvider {
	if opts.Model == "" {
		opts.Model = "gpt-4o-mini"
	}
	model, key, base := Resolve(opts.Model, opts.APIKey, opts.APIBase)
	opts.Model, opts.APIKey, opts.APIBase = model, key, base

	cfg := openai.DefaultConfig(key)
	cfg.BaseURL = base
	return NewOpenAIProviderWithClient(opts, openai.NewClientWithConfig(cfg))
}

// NewOpenAIProviderWithClient builds a provider around an existing client.
func NewOpenAIProviderWithClient(opts Options, client Client) *OpenAIProvider {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4096
	}
	if opts.VisionModel == "" {
		opts.VisionModel = opts.Model
	}
	return &OpenAIProvider{client: client, opts: opts}
}

// DefaultModel satisfies LLMProvider.
func (p *OpenAIProvider) DefaultModel() string { return p.opts.Model }

// AgentRun sends a completion request with tools attached.
func (p *OpenAIProvider) AgentRun(ctx context.Context, messages []Message, tools []ToolDef) (*Response, error) {
	req := p.request(messages)
	if len(tools) > 0 {
		req.Tools = toOpenAITools(tools)
		req.ToolChoice = "auto"
	}
	return p.complete(ctx, req)
}

// Chat sends a completion request without tools.
func (p *OpenAIProvider) Chat(ctx context.Context, messages []Message) (*Response, error) {
	return p.complete(ctx, p.request(messages))
}

func (p *OpenAIProvider) request(messages []Message) openai.ChatCompletionRequest {
	temp := p.opts.Temperature
	if t, ok := TemperatureFor(p.opts.Model); ok {
		temp = t
	}
	return openai.ChatCompletionRequest{
		Model:       p.opts.Model,
		Messages:    toOpenAIMessages(messages),
		MaxTokens:   p.opts.MaxTokens,
		Temperature: temp,
	}
}

func (p *OpenAIProvider) complete(ctx context.Context, req openai.ChatCompletionRequest) (*Response, error) {
	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrNoChoices
	}
	choice := resp.Choices[0]

	out := &Response{
		Text:         choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Usage: map[string]int{
			"prompt_tokens":     resp.Usage.PromptTokens,
			"completion_tokens": resp.Usage.CompletionTokens,
			"total_tokens":      resp.Usage.TotalTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	if out.FinishReason == "" {
		out.FinishReason = "stop"
	}
	return out, nil
}

// GenerateImage implements ImageGenerator.
func (p *OpenAIProvider) GenerateImage(ctx context.Context, prompt string) (string, string, error) {
	resp, err := p.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          p.opts.ImageModel,
		N:              1,
		Size:           openai.CreateImageSize1024x1024,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		return "", "", fmt.Errorf("generate image: %w", err)
	}
	if len(resp.Data) == 0 {
		return "", "", errors.New("generate image: empty result")
	}
	return resp.Data[0].URL, resp.Data[0].B64JSON, nil
}

// namedReader gives the multipart upload a filename.
type namedReader struct {
	*bytes.Reader
	name string
}

func (r namedReader) Name() string { return r.name }

// EditImage implements ImageEditor.
func (p *OpenAIProvider) EditImage(ctx context.Context, prompt string, image []byte, filename string) (string, string, error) {
	resp, err := p.client.CreateEditImage(ctx, openai.ImageEditRequest{
		Image:          namedReader{Reader: bytes.NewReader(image), name: filename},
		Prompt:         prompt,
		Model:          p.opts.ImageModel,
		N:              1,
		Size:           openai.CreateImageSize1024x1024,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		return "", "", fmt.Errorf("edit image: %w", err)
	}
	if len(resp.Data) == 0 {
		return "", "", errors.New("edit image: empty result")
	}
	return resp.Data[0].URL, resp.Data[0].B64JSON, nil
}

// Synthesize implements SpeechSynthesizer.
func (p *OpenAIProvider) Synthesize(ctx context.Context, text string) (string, error) {
	voice := p.opts.TTSVoice
	if voice == "" {
		voice = string(openai.VoiceAlloy)
	}
	model := p.opts.TTSModel
	if model == "" {
		model = string(openai.TTSModel1)
	}
	raw, err := p.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(model),
		Input:          text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return "", fmt.Errorf("synthesize speech: %w", err)
	}
	defer raw.Close()
	audio, err := io.ReadAll(raw)
	if err != nil {
		return "", fmt.Errorf("read speech: %w", err)
	}
	return base64.StdEncoding.EncodeToString(audio), nil
}

// Transcribe implements Transcriber.
func (p *OpenAIProvider) Transcribe(ctx context.Context, b64Audio string) (string, error) {
	audio, err := base64.StdEncoding.DecodeString(b64Audio)
	if err != nil {
		return "", fmt.Errorf("decode audio: %w", err)
	}
	model := p.opts.STTModel
	if model == "" {
		model = openai.Whisper1
	}
	resp, err := p.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    model,
		FilePath: "voice.mp3",
		Reader:   bytes.NewReader(audio),
	})
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	return resp.Text, nil
}

// Describe implements Describer using a vision-capable chat model.
func (p *OpenAIProvider) Describe(ctx context.Context, imageURL, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:     p.opts.VisionModel,
		MaxTokens: p.opts.MaxTokens,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: imageURL, Detail: openai.ImageURLDetailAuto}},
				{Type: openai.ChatMessagePartTypeText, Text: prompt},
			},
		}},
	}
	resp, err := p.complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("describe image: %w", err)
	}
	return resp.Text, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

func toOpenAITools(tools []ToolDef) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		params, err := json.Marshal(t.Parameters)
		if err != nil {
			params = []byte(`{"type":"object"}`)
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  json.RawMessage(params),
			},
		})
	}
	return out
}
