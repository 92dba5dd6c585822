// Package channels connects chat platforms to the message bus.
package channels

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dayuer/kira-go/internal/bus"
)

var (
	// ErrNotConnected is returned when sending through a bridge with no
	// live connection.
	ErrNotConnected = errors.New("adapter not connected")

	// ErrSendTimeout is returned when the platform does not acknowledge a
	// send in time.
	ErrSendTimeout = errors.New("send not acknowledged in time")
)

// DefaultSendTimeout bounds how long a send waits for its acknowledgement.
const DefaultSendTimeout = 10 * time.Second

// Adapter is the interface all chat platform integrations implement.
type Adapter interface {
	Name() string
	Platform() string

	// MessageTypes lists the protocol tags the platform supports. Empty
	// means all of them.
	MessageTypes() []string
	EmojiDict() map[string]string

	// SendGroupMessage and SendDirectMessage deliver one message and return
	// its platform id.
	SendGroupMessage(ctx context.Context, groupID string, elems []bus.Element) (string, error)
	SendDirectMessage(ctx context.Context, userID string, elems []bus.Element) (string, error)

	// Start connects and listens. It blocks until ctx is cancelled.
	Start(ctx context.Context) error
	Stop() error
	IsRunning() bool
}

// AdapterConfig is the configuration shared by every adapter.
type AdapterConfig struct {
	Name         string
	Platform     string
	Desc         string
	BotPID       string
	MessageTypes []string
	AllowFrom    []string
	EmojiDict    map[string]string
	SendTimeout  time.Duration

	// AccessToken, when set, must be presented by bridges as a bearer token.
	AccessToken string
}

// BaseChannel provides shared logic for all adapter implementations.
type BaseChannel struct {
	Config AdapterConfig
	Bus    *bus.MessageBus
	Logger *slog.Logger

	running atomic.Bool
}

func (b *BaseChannel) Name() string                 { return b.Config.Name }
func (b *BaseChannel) MessageTypes() []string       { return b.Config.MessageTypes }
func (b *BaseChannel) EmojiDict() map[string]string { return b.Config.EmojiDict }
func (b *BaseChannel) IsRunning() bool              { return b.running.Load() }

// Platform defaults to the adapter name.
func (b *BaseChannel) Platform() string {
	if b.Config.Platform != "" {
		return b.Config.Platform
	}
	return b.Config.Name
}

func (b *BaseChannel) setRunning(v bool) { b.running.Store(v) }

func (b *BaseChannel) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.Default().With("component", "adapter", "adapter", b.Config.Name)
	}
	return b.Logger
}

func (b *BaseChannel) sendTimeout() time.Duration {
	if b.Config.SendTimeout > 0 {
		return b.Config.SendTimeout
	}
	return DefaultSendTimeout
}

// IsAllowed checks if a sender is permitted to interact with the bot.
func (b *BaseChannel) IsAllowed(senderID string) bool {
	if len(b.Config.AllowFrom) == 0 {
		return true
	}
	for _, allowed := range b.Config.AllowFrom {
		if allowed == senderID {
			return true
		}
	}
	// Support pipe-separated sender IDs
	if strings.Contains(senderID, "|") {
		for _, part := range strings.Split(senderID, "|") {
			if part == "" {
				continue
			}
			for _, allowed := range b.Config.AllowFrom {
				if allowed == part {
					return true
				}
			}
		}
	}
	return false
}

// HandleEvent stamps ev with this adapter's identity, checks permissions and
// publishes it. It never blocks: a full bus drops the event.
func (b *BaseChannel) HandleEvent(ev bus.InboundEvent) bool {
	if !b.IsAllowed(ev.Sender.ID) {
		b.logger().Debug("sender not allowed", "sender", ev.Sender.ID)
		return false
	}
	ev.Adapter = b.Config.Name
	if ev.Platform == "" {
		ev.Platform = b.Platform()
	}
	if ev.MessageTypes == nil {
		ev.MessageTypes = b.Config.MessageTypes
	}
	if ev.SelfID == "" {
		ev.SelfID = b.Config.BotPID
	}
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().Unix()
	}
	if !b.Bus.TryPublishInbound(ev) {
		b.logger().Warn("inbound queue full, event dropped", "message_id", ev.MessageID)
		return false
	}
	return true
}
