// Package bus carries inbound chat events from adapters to the processor.
package bus

import (
	"fmt"
	"time"

	"github.com/dayuer/kira-go/internal/session"
)

// User is a message sender.
type User struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname,omitempty"`
}

// Group is a group conversation.
type Group struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// InboundEvent is one message received by an adapter.
type InboundEvent struct {
	Adapter   string    `json:"adapter"`
	Platform  string    `json:"platform,omitempty"`
	Sender    User      `json:"sender"`
	Group     *Group    `json:"group,omitempty"`
	Elements  []Element `json:"-"`
	MessageID string    `json:"message_id,omitempty"`
	Timestamp int64     `json:"timestamp"`
	SelfID    string    `json:"self_id,omitempty"`

	// MessageTypes are the protocol tags the adapter can deliver.
	MessageTypes []string `json:"message_types,omitempty"`

	// Text is the plain-text rendering, filled in before the agent runs.
	Text string `json:"-"`
}

// IsGroup reports whether the event came from a group conversation.
func (e *InboundEvent) IsGroup() bool { return e.Group != nil }

// SessionKey returns the conversation the event belongs to.
func (e *InboundEvent) SessionKey() session.Key {
	if e.Group != nil {
		return session.NewKey(e.Adapter, session.Group, e.Group.ID)
	}
	return session.NewKey(e.Adapter, session.Direct, e.Sender.ID)
}

// Time returns the event timestamp, falling back to now when unset.
func (e *InboundEvent) Time() time.Time {
	if e.Timestamp == 0 {
		return time.Now()
	}
	return time.Unix(e.Timestamp, 0)
}

// Repr is a one-line rendering for logs.
func (e *InboundEvent) Repr() string {
	if e.Group != nil {
		return fmt.Sprintf("[%s] [%s(%s)] %s(%s): %s",
			e.Adapter, e.Group.Name, e.Group.ID, e.Sender.Nickname, e.Sender.ID, Repr(e.Elements))
	}
	return fmt.Sprintf("[%s] %s(%s): %s", e.Adapter, e.Sender.Nickname, e.Sender.ID, Repr(e.Elements))
}
