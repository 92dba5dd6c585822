// Package session identifies conversations and serializes work per conversation.
package session

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidKey is returned when a session key string cannot be parsed.
var ErrInvalidKey = errors.New("invalid session key")

// Type distinguishes group conversations from one-to-one conversations.
type Type string

const (
	Group  Type = "group"
	Direct Type = "direct"
)

// Key identifies a conversation as adapter:type:id.
type Key struct {
	Adapter string
	Type    Type
	ID      string
}

// NewKey builds a key. It does not validate the parts.
func NewKey(adapter string, typ Type, id string) Key {
	return Key{Adapter: adapter, Type: typ, ID: id}
}

// String returns the canonical adapter:type:id form.
func (k Key) String() string {
	return k.Adapter + ":" + string(k.Type) + ":" + k.ID
}

// IsGroup reports whether the key names a group conversation.
func (k Key) IsGroup() bool { return k.Type == Group }

// ChatType returns the label used in prompts for this conversation kind.
func (k Key) ChatType() string {
	if k.IsGroup() {
		return "GroupMessage"
	}
	return "DirectMessage"
}

// ParseKey parses "adapter:type:id". The short forms "gm" and "dm" are
// accepted for group and direct. The id may itself contain colons.
func ParseKey(s string) (Key, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return Key{}, fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}
	var typ Type
	switch strings.ToLower(parts[1]) {
	case "group", "gm":
		typ = Group
	case "direct", "dm":
		typ = Direct
	default:
		return Key{}, fmt.Errorf("%w: unknown type %q", ErrInvalidKey, parts[1])
	}
	return Key{Adapter: parts[0], Type: typ, ID: parts[2]}, nil
}
