package protocol

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dayuer/kira-go/internal/bus"
	"github.com/dayuer/kira-go/internal/providers"
)

// ErrUnsupported is returned for media the resolver cannot produce.
var ErrUnsupported = errors.New("media not supported")

// ErrNoReference is returned for a selfie when no reference picture is set
// or the file is missing.
var ErrNoReference = errors.New("selfie reference image not found")

// MediaResolver produces the elements behind media tags.
type MediaResolver interface {
	Image(ctx context.Context, prompt string) (bus.Image, error)
	Voice(ctx context.Context, text string) (bus.Voice, error)
	Sticker(ctx context.Context, id string) (bus.Sticker, error)
	Selfie(ctx context.Context, prompt string) (bus.Image, error)
}

// StickerSource loads a catalogue sticker as base64 image data.
type StickerSource interface {
	Load(id string) (string, error)
}

// NoMedia rejects every media tag.
type NoMedia struct{}

func (NoMedia) Image(context.Context, string) (bus.Image, error)     { return bus.Image{}, ErrUnsupported }
func (NoMedia) Voice(context.Context, string) (bus.Voice, error)     { return bus.Voice{}, ErrUnsupported }
func (NoMedia) Sticker(context.Context, string) (bus.Sticker, error) { return bus.Sticker{}, ErrUnsupported }
func (NoMedia) Selfie(context.Context, string) (bus.Image, error)     { return bus.Image{}, ErrUnsupported }

// Media resolves media tags through provider capabilities. Nil fields make
// the matching tag unsupported.
type Media struct {
	Images   providers.ImageGenerator
	Speech   providers.SpeechSynthesizer
	Stickers StickerSource

	// Editor and SelfieRef back the selfie tag: an image generated from the
	// prompt with the picture at SelfieRef as reference.
	Editor    providers.ImageEditor
	SelfieRef string
}

// Image generates an image from prompt.
func (m Media) Image(ctx context.Context, prompt string) (bus.Image, error) {
	if m.Images == nil {
		return bus.Image{}, ErrUnsupported
	}
	url, b64, err := m.Images.GenerateImage(ctx, prompt)
	if err != nil {
		return bus.Image{}, err
	}
	if url == "" && b64 == "" {
		return bus.Image{}, errors.New("image generation returned nothing")
	}
	return bus.Image{URL: url, Base64: b64}, nil
}

// Voice synthesizes speech for text.
func (m Media) Voice(ctx context.Context, text string) (bus.Voice, error) {
	if m.Speech == nil {
		return bus.Voice{}, ErrUnsupported
	}
	audio, err := m.Speech.Synthesize(ctx, text)
	if err != nil {
		return bus.Voice{}, err
	}
	return bus.Voice{Base64: audio}, nil
}

// Sticker loads a sticker from the catalogue.
func (m Media) Sticker(_ context.Context, id string) (bus.Sticker, error) {
	if m.Stickers == nil {
		return bus.Sticker{}, ErrUnsupported
	}
	data, err := m.Stickers.Load(id)
	if err != nil {
		return bus.Sticker{}, fmt.Errorf("sticker %s: %w", id, err)
	}
	return bus.Sticker{ID: id, Base64: data}, nil
}

// Selfie generates an image of the character from the reference picture.
func (m Media) Selfie(ctx context.Context, prompt string) (bus.Image, error) {
	if m.Editor == nil {
		return bus.Image{}, ErrUnsupported
	}
	if m.SelfieRef == "" {
		return bus.Image{}, ErrNoReference
	}
	ref, err := os.ReadFile(m.SelfieRef)
	if errors.Is(err, os.ErrNotExist) {
		return bus.Image{}, fmt.Errorf("%w: %s", ErrNoReference, m.SelfieRef)
	}
	if err != nil {
		return bus.Image{}, fmt.Errorf("read selfie reference: %w", err)
	}
	url, b64, err := m.Editor.EditImage(ctx, prompt, ref, filepath.Base(m.SelfieRef))
	if err != nil {
		return bus.Image{}, err
	}
	if url == "" && b64 == "" {
		return bus.Image{}, errors.New("selfie generation returned nothing")
	}
	if url != "" {
		return bus.Image{URL: url}, nil
	}
	return bus.Image{Base64: b64}, nil
}
