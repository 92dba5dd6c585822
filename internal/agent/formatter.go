package agent

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dayuer/kira-go/internal/bus"
	"github.com/dayuer/kira-go/internal/providers"
)

const (
	imagePrompt   = "Describe this chat image briefly and precisely. If it contains text, include the text. No markdown."
	stickerPrompt = "This is a sticker from a chat. Describe what it shows and when people use it, briefly. If it contains text, include the text. No markdown."
)

// Formatter renders inbound elements as text the model can read. Images
// and stickers are described by the vision model and voice clips are
// transcribed; when either is unavailable the description is left empty.
type Formatter struct {
	vision providers.Describer
	stt    providers.Transcriber
	logger *slog.Logger
}

// NewFormatter creates a formatter. vision and stt may be nil.
func NewFormatter(vision providers.Describer, stt providers.Transcriber, logger *slog.Logger) *Formatter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Formatter{vision: vision, stt: stt, logger: logger.With("component", "formatter")}
}

// Render renders elements in order.
func (f *Formatter) Render(ctx context.Context, elems []bus.Element) string {
	var b strings.Builder
	for _, el := range elems {
		switch e := el.(type) {
		case bus.Text:
			b.WriteString(e.Text)
		case bus.Emoji:
			b.WriteString("[Emoji " + e.ID + "]")
		case bus.At:
			if e.Nickname != "" {
				b.WriteString("[At " + e.Target + "(nickname: " + e.Nickname + ")]")
			} else {
				b.WriteString("[At " + e.Target + "]")
			}
		case bus.Image:
			b.WriteString("[Image " + f.describe(ctx, imageSource(e.URL, e.Base64), imagePrompt) + "]")
		case bus.Sticker:
			b.WriteString("[Sticker " + f.describe(ctx, imageSource("", e.Base64), stickerPrompt) + "]")
		case bus.Reply:
			if e.Quote != "" {
				b.WriteString("[Reply " + e.Quote + "]")
			} else {
				b.WriteString("[Reply " + e.MessageID + "]")
			}
		case bus.Voice:
			b.WriteString("[Record " + f.transcribe(ctx, e.Base64) + "]")
		case bus.Notice:
			b.WriteString(e.Text)
		case bus.Poke:
			b.WriteString("[Poke " + e.Target + "]")
		}
	}
	return b.String()
}

func (f *Formatter) describe(ctx context.Context, src, prompt string) string {
	if f.vision == nil || src == "" {
		return ""
	}
	desc, err := f.vision.Describe(ctx, src, prompt)
	if err != nil {
		f.logger.Warn("describe image failed", "error", err)
		return ""
	}
	return strings.TrimSpace(desc)
}

func (f *Formatter) transcribe(ctx context.Context, b64 string) string {
	if f.stt == nil || b64 == "" {
		return ""
	}
	text, err := f.stt.Transcribe(ctx, b64)
	if err != nil {
		f.logger.Warn("transcribe voice failed", "error", err)
		return ""
	}
	return strings.TrimSpace(text)
}

// imageSource prefers a URL and falls back to a data URI.
func imageSource(url, b64 string) string {
	if url != "" {
		return url
	}
	if b64 == "" {
		return ""
	}
	if strings.HasPrefix(b64, "data:") {
		return b64
	}
	return "data:image/png;base64," + b64
}
