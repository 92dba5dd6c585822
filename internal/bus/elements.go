package bus

import (
	"encoding/json"
	"fmt"
)

// Element is one typed piece of a chat message. The set of implementations
// is closed: Text, Image, At, Reply, Emoji, Sticker, Voice, Notice, Poke.
type Element interface {
	Kind() string
	Repr() string
	element()
}

// Text is plain text.
type Text struct {
	Text string `json:"text"`
}

// Image carries either a URL or base64 data.
type Image struct {
	URL    string `json:"url,omitempty"`
	Base64 string `json:"base64,omitempty"`
}

// AtAll is the At target that mentions every group member.
const AtAll = "all"

// At mentions a user.
type At struct {
	Target   string `json:"target"`
	Nickname string `json:"nickname,omitempty"`
}

// IsAll reports whether the mention targets all members.
func (a At) IsAll() bool { return a.Target == AtAll }

// Reply references an earlier platform message.
type Reply struct {
	MessageID string `json:"message_id"`
	Quote     string `json:"quote,omitempty"`
}

// Emoji is a platform emoji id.
type Emoji struct {
	ID string `json:"id"`
}

// Sticker is a catalogue sticker, optionally resolved to base64 image data.
type Sticker struct {
	ID     string `json:"id"`
	Base64 string `json:"base64,omitempty"`
}

// Voice is an audio clip as base64.
type Voice struct {
	Base64 string `json:"base64"`
}

// Notice is a platform notice rendered as text.
type Notice struct {
	Text string `json:"text"`
}

// Poke nudges a user.
type Poke struct {
	Target string `json:"target"`
}

func (Text) Kind() string    { return "text" }
func (Image) Kind() string   { return "image" }
func (At) Kind() string      { return "at" }
func (Reply) Kind() string   { return "reply" }
func (Emoji) Kind() string   { return "emoji" }
func (Sticker) Kind() string { return "sticker" }
func (Voice) Kind() string   { return "voice" }
func (Notice) Kind() string  { return "notice" }
func (Poke) Kind() string    { return "poke" }

func (e Text) Repr() string { return e.Text }
func (e Image) Repr() string {
	if e.URL != "" {
		return "[Image " + e.URL + "]"
	}
	return "[Image]"
}
func (e At) Repr() string {
	if e.IsAll() {
		return "[At all]"
	}
	return fmt.Sprintf("[At %s(%s)]", e.Nickname, e.Target)
}
func (e Reply) Repr() string   { return "[Reply " + e.MessageID + "]" }
func (e Emoji) Repr() string   { return "[Emoji " + e.ID + "]" }
func (e Sticker) Repr() string { return "[Sticker " + e.ID + "]" }
func (Voice) Repr() string     { return "[Record]" }
func (e Notice) Repr() string  { return e.Text }
func (e Poke) Repr() string    { return "[Poke " + e.Target + "]" }

func (Text) element()    {}
func (Image) element()   {}
func (At) element()      {}
func (Reply) element()   {}
func (Emoji) element()   {}
func (Sticker) element() {}
func (Voice) element()   {}
func (Notice) element()  {}
func (Poke) element()    {}

// Repr joins the log rendering of a message's elements.
func Repr(elems []Element) string {
	var out string
	for _, e := range elems {
		out += e.Repr()
	}
	return out
}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MarshalElements encodes elements as [{"type": kind, "data": {...}}].
func MarshalElements(elems []Element) ([]byte, error) {
	out := make([]envelope, 0, len(elems))
	for _, e := range elems {
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal %s element: %w", e.Kind(), err)
		}
		out = append(out, envelope{Type: e.Kind(), Data: data})
	}
	return json.Marshal(out)
}

// UnmarshalElements decodes the MarshalElements format. Unknown element
// types are skipped.
func UnmarshalElements(raw []byte) ([]Element, error) {
	var envs []envelope
	if err := json.Unmarshal(raw, &envs); err != nil {
		return nil, fmt.Errorf("decode elements: %w", err)
	}
	elems := make([]Element, 0, len(envs))
	for _, env := range envs {
		e, err := decodeElement(env)
		if err != nil {
			return nil, err
		}
		if e != nil {
			elems = append(elems, e)
		}
	}
	return elems, nil
}

func decodeElement(env envelope) (Element, error) {
	var (
		e   Element
		err error
	)
	switch env.Type {
	case "text":
		e, err = decodeInto[Text](env.Data)
	case "image":
		e, err = decodeInto[Image](env.Data)
	case "at":
		e, err = decodeInto[At](env.Data)
	case "reply":
		e, err = decodeInto[Reply](env.Data)
	case "emoji":
		e, err = decodeInto[Emoji](env.Data)
	case "sticker":
		e, err = decodeInto[Sticker](env.Data)
	case "voice":
		e, err = decodeInto[Voice](env.Data)
	case "notice":
		e, err = decodeInto[Notice](env.Data)
	case "poke":
		e, err = decodeInto[Poke](env.Data)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s element: %w", env.Type, err)
	}
	return e, nil
}

func decodeInto[T Element](data json.RawMessage) (Element, error) {
	var v T
	if len(data) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
