// Package protocol converts the model's <msg> markup into outbound messages
// and writes platform message ids back into it.
//
// A reply is a sequence of <msg> fragments without a root element:
//
//	<msg><reply>123</reply><text>sure</text></msg>
//	<msg><emoji>14</emoji></msg>
//
// Each <msg> becomes one outbound message; each child tag becomes one
// element. Unknown tags are ignored.
package protocol

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dayuer/kira-go/internal/bus"
	"github.com/dayuer/kira-go/internal/metrics"
	"github.com/dayuer/kira-go/internal/providers"
)

const repairPrompt = `You are an XML format checker. The markup below failed to parse. ` +
	`Rewrite it into valid markup without changing any text inside the tags. ` +
	`The structure has no root element:
<msg>
    ...
</msg>
There may be several <msg> elements, each one a separate message. Each <msg> holds child tags ` +
	`for message elements, such as <text>hello</text>. Escape any unescaped special characters. ` +
	`Output only the corrected markup with no explanation.`

// Message is one outbound message. Slot is the index of the <msg> it was
// built from.
type Message struct {
	Slot     int
	Elements []bus.Element
}

// Batch is the set of messages built from one reply. Slots counts every
// <msg> in the reply, including ones that produced no elements.
type Batch struct {
	Messages []Message
	Slots    int
}

// Empty reports whether the batch has nothing to send.
func (b Batch) Empty() bool { return len(b.Messages) == 0 }

// RawFallback is the batch for text that could not be parsed: one message
// holding the text verbatim.
func RawFallback(text string) Batch {
	return Batch{
		Messages: []Message{{Slot: 0, Elements: []bus.Element{bus.Text{Text: text}}}},
		Slots:    1,
	}
}

// Repairer issues the corrective model call for malformed markup.
type Repairer interface {
	Chat(ctx context.Context, messages []providers.Message) (*providers.Response, error)
}

// Codec parses and annotates reply markup.
type Codec struct {
	repairer Repairer
	media    MediaResolver
	logger   *slog.Logger
}

// NewCodec creates a codec. A nil media resolver means media tags cannot
// be produced.
func NewCodec(repairer Repairer, media MediaResolver, logger *slog.Logger) *Codec {
	if media == nil {
		media = NoMedia{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Codec{repairer: repairer, media: media, logger: logger.With("component", "protocol")}
}

// Parse builds a batch from reply markup. The returned string is the markup
// the batch was built from: the input, its repaired form, or, when both
// fail to parse, the input again with a raw text batch.
func (c *Codec) Parse(ctx context.Context, text string) (Batch, string) {
	msgs, err := readDocument(wrap(text))
	if err == nil {
		metrics.RecordParse("direct")
		return c.build(ctx, msgs), text
	}
	c.logger.Warn("reply markup did not parse, requesting repair", "error", err)
	c.logger.Debug("malformed reply", "text", text)

	fixed, ok := c.repair(ctx, text)
	if ok {
		msgs, err := readDocument(wrap(fixed))
		if err == nil {
			metrics.RecordParse("repaired")
			return c.build(ctx, msgs), fixed
		}
		c.logger.Warn("repaired markup still malformed", "error", err)
	}
	metrics.RecordParse("fallback")
	return RawFallback(text), text
}

func (c *Codec) repair(ctx context.Context, text string) (string, bool) {
	if c.repairer == nil {
		return "", false
	}
	resp, err := c.repairer.Chat(ctx, []providers.Message{
		{Role: providers.RoleSystem, Content: repairPrompt},
		{Role: providers.RoleUser, Content: text},
	})
	metrics.RecordLLMCall("repair", err)
	if err != nil || resp == nil {
		c.logger.Error("repair call failed", "error", err)
		return "", false
	}
	return strings.TrimSpace(resp.Text), true
}

func (c *Codec) build(ctx context.Context, msgs []docMsg) Batch {
	batch := Batch{Slots: len(msgs)}
	for i, m := range msgs {
		var elems []bus.Element
		for _, ch := range m.children {
			if e := c.element(ctx, ch.tag, strings.TrimSpace(ch.text)); e != nil {
				elems = append(elems, e)
			}
		}
		if len(elems) > 0 {
			batch.Messages = append(batch.Messages, Message{Slot: i, Elements: elems})
		}
	}
	return batch
}

// element maps one child tag to an element, or nil when the tag is unknown
// or produces nothing.
func (c *Codec) element(ctx context.Context, tag, value string) bus.Element {
	switch tag {
	case "text":
		if value == "" {
			return nil
		}
		return bus.Text{Text: value}
	case "emoji":
		return bus.Emoji{ID: value}
	case "at":
		return bus.At{Target: value}
	case "reply":
		return bus.Reply{MessageID: value}
	case "poke":
		return bus.Poke{Target: value}
	case "img":
		img, err := c.media.Image(ctx, value)
		if err != nil {
			c.logger.Error("image generation failed", "error", err)
			return nil
		}
		return img
	case "record":
		voice, err := c.media.Voice(ctx, value)
		if err != nil {
			c.logger.Error("speech synthesis failed", "error", err)
			return bus.Text{Text: "<record>" + value + "</record>"}
		}
		return voice
	case "selfie":
		img, err := c.media.Selfie(ctx, value)
		if err != nil {
			c.logger.Error("selfie generation failed", "error", err)
			return nil
		}
		return img
	case "sticker":
		st, err := c.media.Sticker(ctx, value)
		if err != nil {
			c.logger.Error("sticker lookup failed", "sticker", value, "error", err)
			return nil
		}
		return st
	}
	return nil
}
