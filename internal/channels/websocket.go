package channels

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dayuer/kira-go/internal/bus"
	"github.com/dayuer/kira-go/internal/session"
)

// Frame types on the bridge connection.
const (
	FrameEvent = "event"
	FrameSend  = "send"
	FrameAck   = "ack"
)

// Frame is the JSON message exchanged with a bridge. Bridges push event
// frames; the adapter writes send frames and the bridge answers each with an
// ack carrying the same echo.
type Frame struct {
	Type string `json:"type"`
	Echo string `json:"echo,omitempty"`

	// event
	Sender    *bus.User  `json:"sender,omitempty"`
	Group     *bus.Group `json:"group,omitempty"`
	Timestamp int64      `json:"timestamp,omitempty"`
	SelfID    string     `json:"self_id,omitempty"`

	// send
	ChatType string `json:"chat_type,omitempty"`
	TargetID string `json:"target_id,omitempty"`

	// event, ack
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`

	// event, send
	Elements json.RawMessage `json:"elements,omitempty"`
}

// WebSocketChannel is an adapter for platforms reached through a bridge
// process. The bridge connects to the gateway over a websocket; one bridge
// connection is live at a time and a new one replaces the old. When an
// access token is configured, connections without it are refused before
// the upgrade and never displace the live bridge.
type WebSocketChannel struct {
	BaseChannel

	upgrader websocket.Upgrader

	mu       sync.Mutex
	conn     *websocket.Conn
	connDone chan struct{} // closed when conn stops reading
	ctx      context.Context

	writeMu sync.Mutex

	waitMu  sync.Mutex
	waiters map[string]chan Frame
}

// NewWebSocketChannel creates a bridge adapter.
func NewWebSocketChannel(cfg AdapterConfig, msgBus *bus.MessageBus, logger *slog.Logger) *WebSocketChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketChannel{
		BaseChannel: BaseChannel{
			Config: cfg,
			Bus:    msgBus,
			Logger: logger.With("component", "adapter", "adapter", cfg.Name),
		},
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		waiters:  make(map[string]chan Frame),
		ctx:      context.Background(),
	}
}

// Path is where the gateway mounts this adapter.
func (c *WebSocketChannel) Path() string { return "/ws/" + c.Config.Name }

// Start marks the adapter running and blocks until ctx is cancelled.
func (c *WebSocketChannel) Start(ctx context.Context) error {
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()
	c.setRunning(true)
	c.logger().Info("bridge endpoint ready", "path", c.Path())
	if c.Config.AccessToken == "" {
		c.logger().Warn("bridge endpoint has no access_token; any client can attach")
	}

	<-ctx.Done()
	return c.Stop()
}

// Stop closes the bridge connection.
func (c *WebSocketChannel) Stop() error {
	c.setRunning(false)
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Connected reports whether a bridge is attached.
func (c *WebSocketChannel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// ServeHTTP accepts a bridge connection and reads its frames until it
// disconnects.
func (c *WebSocketChannel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !c.authorized(r) {
		c.logger().Warn("bridge rejected", "remote", r.RemoteAddr)
		w.Header().Set("WWW-Authenticate", `Bearer realm="kira"`)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger().Warn("bridge upgrade failed", "error", err)
		return
	}

	done := make(chan struct{})
	c.mu.Lock()
	old := c.conn
	c.conn = conn
	c.connDone = done
	c.mu.Unlock()
	if old != nil {
		c.logger().Info("bridge replaced")
		old.Close()
	}
	c.logger().Info("bridge connected", "remote", r.RemoteAddr)

	c.listen(conn)
	close(done)

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.connDone = nil
	}
	c.mu.Unlock()
	conn.Close()
	c.logger().Info("bridge disconnected")
}

// authorized checks the bearer token from the Authorization header or the
// access_token query parameter.
func (c *WebSocketChannel) authorized(r *http.Request) bool {
	want := c.Config.AccessToken
	if want == "" {
		return true
	}
	got := r.URL.Query().Get("access_token")
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			got = strings.TrimSpace(token)
		}
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func (c *WebSocketChannel) listen(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger().Debug("bridge read ended", "error", err)
			}
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger().Warn("malformed frame", "error", err)
			continue
		}
		switch f.Type {
		case FrameEvent:
			c.handleEventFrame(f)
		case FrameAck:
			c.resolve(f)
		default:
			c.logger().Debug("ignoring frame", "type", f.Type)
		}
	}
}

func (c *WebSocketChannel) handleEventFrame(f Frame) {
	if f.Sender == nil || f.Sender.ID == "" {
		c.logger().Warn("event without sender", "message_id", f.MessageID)
		return
	}
	var elems []bus.Element
	if len(f.Elements) > 0 {
		var err error
		if elems, err = bus.UnmarshalElements(f.Elements); err != nil {
			c.logger().Warn("bad event elements", "message_id", f.MessageID, "error", err)
			return
		}
	}
	c.HandleEvent(bus.InboundEvent{
		Sender:    *f.Sender,
		Group:     f.Group,
		Elements:  elems,
		MessageID: f.MessageID,
		Timestamp: f.Timestamp,
		SelfID:    f.SelfID,
	})
}

func (c *WebSocketChannel) resolve(f Frame) {
	c.waitMu.Lock()
	ch := c.waiters[f.Echo]
	c.waitMu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- f:
	default:
	}
}

// SendGroupMessage sends to a group through the bridge.
func (c *WebSocketChannel) SendGroupMessage(ctx context.Context, groupID string, elems []bus.Element) (string, error) {
	return c.send(ctx, session.Group, groupID, elems)
}

// SendDirectMessage sends to a user through the bridge.
func (c *WebSocketChannel) SendDirectMessage(ctx context.Context, userID string, elems []bus.Element) (string, error) {
	return c.send(ctx, session.Direct, userID, elems)
}

func (c *WebSocketChannel) send(ctx context.Context, typ session.Type, target string, elems []bus.Element) (string, error) {
	c.mu.Lock()
	conn := c.conn
	gone := c.connDone
	stopped := c.ctx.Done()
	c.mu.Unlock()
	if conn == nil {
		return "", ErrNotConnected
	}

	payload, err := bus.MarshalElements(elems)
	if err != nil {
		return "", err
	}
	echo := uuid.NewString()
	waiter := make(chan Frame, 1)
	c.waitMu.Lock()
	c.waiters[echo] = waiter
	c.waitMu.Unlock()
	defer func() {
		c.waitMu.Lock()
		delete(c.waiters, echo)
		c.waitMu.Unlock()
	}()

	c.writeMu.Lock()
	err = conn.WriteJSON(Frame{Type: FrameSend, Echo: echo, ChatType: string(typ), TargetID: target, Elements: payload})
	c.writeMu.Unlock()
	if err != nil {
		return "", fmt.Errorf("write send frame: %w", err)
	}

	timer := time.NewTimer(c.sendTimeout())
	defer timer.Stop()
	select {
	case ack := <-waiter:
		if ack.Error != "" {
			return "", fmt.Errorf("bridge: %s", ack.Error)
		}
		return ack.MessageID, nil
	case <-timer.C:
		return "", ErrSendTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	case <-gone:
		// An ack read just before the disconnect still counts.
		select {
		case ack := <-waiter:
			if ack.Error == "" {
				return ack.MessageID, nil
			}
		default:
		}
		return "", ErrNotConnected
	case <-stopped:
		return "", ErrNotConnected
	}
}
