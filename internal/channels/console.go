package channels

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dayuer/kira-go/internal/bus"
)

// ConsoleUserID is the sender id of console input.
const ConsoleUserID = "console"

// ConsoleChannel is an adapter on a terminal: each input line is a direct
// message, replies are printed.
type ConsoleChannel struct {
	BaseChannel

	in  io.Reader
	out io.Writer

	outMu sync.Mutex
	seq   atomic.Int64
	done  chan struct{}
	once  sync.Once
}

// NewConsoleChannel creates a console adapter reading in and writing out.
func NewConsoleChannel(cfg AdapterConfig, msgBus *bus.MessageBus, in io.Reader, out io.Writer, logger *slog.Logger) *ConsoleChannel {
	if cfg.Name == "" {
		cfg.Name = "console"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsoleChannel{
		BaseChannel: BaseChannel{
			Config: cfg,
			Bus:    msgBus,
			Logger: logger.With("component", "adapter", "adapter", cfg.Name),
		},
		in:   in,
		out:  out,
		done: make(chan struct{}),
	}
}

// Done is closed when input reaches EOF.
func (c *ConsoleChannel) Done() <-chan struct{} { return c.done }

// Start reads lines until EOF or ctx is cancelled.
func (c *ConsoleChannel) Start(ctx context.Context) error {
	c.setRunning(true)
	defer c.setRunning(false)

	lines := make(chan string)
	go func() {
		defer c.once.Do(func() { close(c.done) })
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.done:
			return nil
		case line := <-lines:
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			c.HandleEvent(bus.InboundEvent{
				Sender:    bus.User{ID: ConsoleUserID, Nickname: "you"},
				Elements:  []bus.Element{bus.Text{Text: line}},
				MessageID: c.nextID(),
			})
		}
	}
}

// Stop is a no-op; the console stops with its context.
func (c *ConsoleChannel) Stop() error { return nil }

func (c *ConsoleChannel) SendGroupMessage(_ context.Context, groupID string, elems []bus.Element) (string, error) {
	return c.print("["+groupID+"] ", elems)
}

func (c *ConsoleChannel) SendDirectMessage(_ context.Context, _ string, elems []bus.Element) (string, error) {
	return c.print("", elems)
}

func (c *ConsoleChannel) print(prefix string, elems []bus.Element) (string, error) {
	id := c.nextID()
	c.outMu.Lock()
	defer c.outMu.Unlock()
	if _, err := fmt.Fprintf(c.out, "%skira> %s\n", prefix, bus.Repr(elems)); err != nil {
		return "", err
	}
	return id, nil
}

func (c *ConsoleChannel) nextID() string {
	return strconv.FormatInt(c.seq.Add(1), 10)
}
