package protocol

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dayuer/kira-go/internal/bus"
	"github.com/dayuer/kira-go/internal/providers"
)

type fakeRepairer struct {
	reply string
	err   error
	calls int
	got   []providers.Message
}

func (f *fakeRepairer) Chat(_ context.Context, messages []providers.Message) (*providers.Response, error) {
	f.calls++
	f.got = messages
	if f.err != nil {
		return nil, f.err
	}
	return &providers.Response{Text: f.reply}, nil
}

type fakeMedia struct {
	voiceErr error
}

func (fakeMedia) Image(_ context.Context, prompt string) (bus.Image, error) {
	return bus.Image{URL: "http://img/" + prompt}, nil
}

func (f fakeMedia) Voice(_ context.Context, text string) (bus.Voice, error) {
	if f.voiceErr != nil {
		return bus.Voice{}, f.voiceErr
	}
	return bus.Voice{Base64: "b64:" + text}, nil
}

func (fakeMedia) Sticker(_ context.Context, id string) (bus.Sticker, error) {
	if id == "missing" {
		return bus.Sticker{}, errors.New("not found")
	}
	return bus.Sticker{ID: id, Base64: "png"}, nil
}

func (fakeMedia) Selfie(_ context.Context, prompt string) (bus.Image, error) {
	if prompt == "" {
		return bus.Image{}, ErrNoReference
	}
	return bus.Image{Base64: "selfie:" + prompt}, nil
}

func TestParse_WellFormed(t *testing.T) {
	c := NewCodec(nil, fakeMedia{}, nil)
	in := `<msg><reply>55</reply><text> hi </text><at>all</at></msg><msg><emoji>14</emoji><poke>7</poke></msg>`

	batch, effective := c.Parse(context.Background(), in)
	assert.Equal(t, in, effective)
	assert.Equal(t, 2, batch.Slots)
	require.Len(t, batch.Messages, 2)
	assert.Equal(t, []bus.Element{bus.Reply{MessageID: "55"}, bus.Text{Text: "hi"}, bus.At{Target: "all"}}, batch.Messages[0].Elements)
	assert.Equal(t, []bus.Element{bus.Emoji{ID: "14"}, bus.Poke{Target: "7"}}, batch.Messages[1].Elements)
	assert.Equal(t, 1, batch.Messages[1].Slot)
}

func TestParse_IgnoresUnknownAndEmpty(t *testing.T) {
	c := NewCodec(nil, fakeMedia{}, nil)
	in := "<msg><video>x</video></msg>\n<msg><text>  </text></msg>\n<msg><text>ok</text><blink/></msg>"

	batch, _ := c.Parse(context.Background(), in)
	assert.Equal(t, 3, batch.Slots)
	require.Len(t, batch.Messages, 1)
	assert.Equal(t, 2, batch.Messages[0].Slot)
	assert.Equal(t, []bus.Element{bus.Text{Text: "ok"}}, batch.Messages[0].Elements)
}

func TestParse_ChildTextStopsAtNestedElement(t *testing.T) {
	c := NewCodec(nil, fakeMedia{}, nil)
	batch, _ := c.Parse(context.Background(), `<msg><text>a<b>x</b>c</text><at>9<i/>tail</at></msg>`)

	require.Len(t, batch.Messages, 1)
	assert.Equal(t, []bus.Element{bus.Text{Text: "a"}, bus.At{Target: "9"}}, batch.Messages[0].Elements)
}

func TestParse_Media(t *testing.T) {
	c := NewCodec(nil, fakeMedia{}, nil)
	batch, _ := c.Parse(context.Background(),
		`<msg><img>cat</img><record>hello</record><sticker>3</sticker><sticker>missing</sticker></msg>`)

	require.Len(t, batch.Messages, 1)
	assert.Equal(t, []bus.Element{
		bus.Image{URL: "http://img/cat"},
		bus.Voice{Base64: "b64:hello"},
		bus.Sticker{ID: "3", Base64: "png"},
	}, batch.Messages[0].Elements)
}

func TestParse_VoiceFailureDegradesToText(t *testing.T) {
	c := NewCodec(nil, fakeMedia{voiceErr: errors.New("tts down")}, nil)
	batch, _ := c.Parse(context.Background(), `<msg><record>hello</record></msg>`)
	require.Len(t, batch.Messages, 1)
	assert.Equal(t, []bus.Element{bus.Text{Text: "<record>hello</record>"}}, batch.Messages[0].Elements)
}

func TestParse_NoMediaDropsImages(t *testing.T) {
	c := NewCodec(nil, nil, nil)
	batch, _ := c.Parse(context.Background(), `<msg><img>cat</img></msg><msg><text>x</text></msg>`)
	assert.Equal(t, 2, batch.Slots)
	require.Len(t, batch.Messages, 1)
	assert.Equal(t, 1, batch.Messages[0].Slot)
}

func TestParse_RepairsMalformed(t *testing.T) {
	repairer := &fakeRepairer{reply: "<msg><text>Hello &amp; welcome</text></msg>"}
	c := NewCodec(repairer, nil, nil)

	batch, effective := c.Parse(context.Background(), "<msg><text>Hello & welcome</text></msg>")
	assert.Equal(t, 1, repairer.calls)
	assert.Equal(t, "<msg><text>Hello &amp; welcome</text></msg>", effective)
	require.Len(t, batch.Messages, 1)
	assert.Equal(t, []bus.Element{bus.Text{Text: "Hello & welcome"}}, batch.Messages[0].Elements)
	require.Len(t, repairer.got, 2)
	assert.Equal(t, providers.RoleSystem, repairer.got[0].Role)
	assert.Equal(t, "<msg><text>Hello & welcome</text></msg>", repairer.got[1].Content)
}

func TestParse_FallsBackToRawText(t *testing.T) {
	raw := "<msg><text>broken"
	for name, repairer := range map[string]*fakeRepairer{
		"still broken": {reply: "<msg><text>still broken"},
		"call failed":  {err: errors.New("timeout")},
	} {
		t.Run(name, func(t *testing.T) {
			c := NewCodec(repairer, nil, nil)
			batch, effective := c.Parse(context.Background(), raw)
			assert.Equal(t, raw, effective)
			assert.Equal(t, RawFallback(raw), batch)
			assert.Equal(t, 1, repairer.calls)
		})
	}
}

func TestParse_PlainTextWithoutMarkupIsEmptyBatch(t *testing.T) {
	c := NewCodec(nil, nil, nil)
	batch, effective := c.Parse(context.Background(), "just words")
	assert.Equal(t, "just words", effective)
	assert.True(t, batch.Empty())
	assert.Equal(t, 0, batch.Slots)
}

func TestParse_RejectsExtraRoot(t *testing.T) {
	c := NewCodec(nil, nil, nil)
	raw := "<msg><text>a</text></msg></root><root>"
	batch, effective := c.Parse(context.Background(), raw)
	assert.Equal(t, RawFallback(raw), batch)
	assert.Equal(t, raw, effective)
}

func TestAnnotate(t *testing.T) {
	in := "<msg><text>a</text></msg>\n<msg><text>b</text></msg>\n<msg/>"
	out := Annotate(in, []string{"101", "", "103"})
	assert.Equal(t, "<msg message_id=\"101\"><text>a</text></msg>\n<msg><text>b</text></msg>\n<msg message_id=\"103\"/>", out)

	_, err := readDocument(wrap(out))
	assert.NoError(t, err)
}

func TestAnnotate_ReplacesExistingID(t *testing.T) {
	out := Annotate(`<msg message_id='old' kind="x"><text>a</text></msg>`, []string{"new"})
	assert.Equal(t, `<msg kind="x" message_id="new"><text>a</text></msg>`, out)
}

func TestAnnotate_FewerIDsThanMessages(t *testing.T) {
	in := "<msg><text>a</text></msg><msg><text>b</text></msg>"
	out := Annotate(in, []string{"1"})
	assert.Equal(t, `<msg message_id="1"><text>a</text></msg><msg><text>b</text></msg>`, out)
}

func TestAnnotate_FailedSlotDropsModelID(t *testing.T) {
	out := Annotate(`<msg message_id="999"><text>x</text></msg>`, []string{""})
	assert.Equal(t, `<msg><text>x</text></msg>`, out)

	out = Annotate(`<msg><text>a</text></msg><msg message_id='7' kind="y"/>`, []string{"1"})
	assert.Equal(t, `<msg message_id="1"><text>a</text></msg><msg kind="y"/>`, out)
	assert.NotContains(t, out, "'7'")
}

func TestAnnotate_EscapesIDs(t *testing.T) {
	out := Annotate("<msg><text>a</text></msg>", []string{`a"<b`})
	_, err := readDocument(wrap(out))
	require.NoError(t, err)
	assert.True(t, strings.Contains(out, "&#34;"))
}

func TestAnnotate_UnparseableUnchanged(t *testing.T) {
	raw := "Hello & welcome"
	assert.Equal(t, raw, Annotate(raw, []string{"1"}))

	c := NewCodec(&fakeRepairer{err: errors.New("down")}, nil, nil)
	_, effective := c.Parse(context.Background(), raw)
	assert.Equal(t, raw, Annotate(effective, []string{"1"}))
}

func TestAnnotate_RoundTripAfterParse(t *testing.T) {
	c := NewCodec(nil, nil, nil)
	inputs := []string{
		"<msg><text>x &lt; y</text></msg>",
		"  <msg>\n  <text>one</text>\n</msg>  <msg><reply>3</reply><text>two</text></msg>",
		"<msg><![CDATA[ignored]]><text>cdata &amp; co</text></msg>",
	}
	for _, in := range inputs {
		batch, effective := c.Parse(context.Background(), in)
		ids := make([]string, batch.Slots)
		for i := range ids {
			ids[i] = "id-" + string(rune('a'+i))
		}
		out := Annotate(effective, ids)
		msgs, err := readDocument(wrap(out))
		require.NoError(t, err, in)
		for i, m := range msgs {
			require.NotEmpty(t, m.attrs, in)
			assert.Equal(t, ids[i], m.attrs[len(m.attrs)-1].Value)
		}
	}
}

func TestParse_Selfie(t *testing.T) {
	c := NewCodec(nil, fakeMedia{}, nil)
	batch, _ := c.Parse(context.Background(),
		`<msg><selfie>waving at the camera</selfie></msg><msg><selfie></selfie><text>oops</text></msg>`)

	require.Len(t, batch.Messages, 2)
	assert.Equal(t, []bus.Element{bus.Image{Base64: "selfie:waving at the camera"}}, batch.Messages[0].Elements)
	assert.Equal(t, []bus.Element{bus.Text{Text: "oops"}}, batch.Messages[1].Elements)
}
