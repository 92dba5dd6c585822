// Package processor drives inbound events through the pipeline: buffer,
// per-session turn lock, admission, rendering and the agent turn.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/dayuer/kira-go/internal/agent"
	"github.com/dayuer/kira-go/internal/bus"
	"github.com/dayuer/kira-go/internal/lane"
	"github.com/dayuer/kira-go/internal/memory"
	"github.com/dayuer/kira-go/internal/metrics"
	"github.com/dayuer/kira-go/internal/session"
)

// DefaultMaxConcurrent bounds concurrent turns when unset.
const DefaultMaxConcurrent = 3

// TurnRunner runs one agent turn. *agent.Loop implements it.
type TurnRunner interface {
	RunTurn(ctx context.Context, key session.Key, batchText string, env agent.ChatEnv,
		messageTypes []string, emojiDict map[string]string) error
}

// EmojiLookup returns an adapter's emoji dictionary.
type EmojiLookup interface {
	EmojiDict(adapter string) map[string]string
}

// Options wires a Processor.
type Options struct {
	Lanes     *lane.Manager
	Locks     *session.Serializer
	Agent     TurnRunner
	Formatter *agent.Formatter
	Context   *agent.ContextBuilder
	Memory    memory.Store
	Emoji     EmojiLookup // optional

	// MaxConcurrent bounds turns running at once across all sessions.
	MaxConcurrent int64
	Logger        *slog.Logger
}

// Processor handles inbound events.
type Processor struct {
	opts      Options
	admission *semaphore.Weighted
	logger    *slog.Logger
	wg        sync.WaitGroup
}

// New creates a processor.
func New(opts Options) *Processor {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.Locks == nil {
		opts.Locks = session.NewSerializer()
	}
	if opts.Lanes == nil {
		opts.Lanes = lane.NewManager(lane.ManagerConfig{Logger: opts.Logger})
	}
	if opts.Formatter == nil {
		opts.Formatter = agent.NewFormatter(nil, nil, opts.Logger)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		opts:      opts,
		admission: semaphore.NewWeighted(opts.MaxConcurrent),
		logger:    logger.With("component", "processor"),
	}
}

// Run consumes the bus until ctx is done, handling each event in its own
// goroutine, then waits for in-flight handlers.
func (p *Processor) Run(ctx context.Context, b *bus.MessageBus) {
	for {
		ev, ok := b.ConsumeInbound(ctx)
		if !ok {
			p.Wait()
			return
		}
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			if err := p.Handle(ctx, ev); err != nil && ctx.Err() == nil {
				p.logger.Error("handle message failed", "session", ev.SessionKey().String(), "error", err)
			}
		}()
	}
}

// Wait blocks until every handler started by Run has returned.
func (p *Processor) Wait() { p.wg.Wait() }

// Handle buffers ev and, if this call flushes the session's batch, runs the
// agent turn for it. Calls that hand their event to a later flush return nil
// at once.
func (p *Processor) Handle(ctx context.Context, ev bus.InboundEvent) error {
	metrics.RecordInbound(ev.Adapter)
	p.logger.Info("message received", "message_id", ev.MessageID, "event", ev.Repr())

	key := ev.SessionKey()
	batch, ok := p.opts.Lanes.Enqueue(ctx, key, ev)
	if !ok {
		return nil
	}
	metrics.RecordFlush(ev.Adapter, len(batch))

	return p.opts.Locks.WithTurn(ctx, key, func(ctx context.Context) error {
		if err := p.admission.Acquire(ctx, 1); err != nil {
			return err
		}
		defer p.admission.Release(1)
		metrics.TurnStarted()
		defer metrics.TurnFinished()
		return p.turn(ctx, key, batch)
	})
}

func (p *Processor) turn(ctx context.Context, key session.Key, batch []bus.InboundEvent) error {
	for i := range batch {
		batch[i].Text = p.opts.Formatter.Render(ctx, batch[i].Elements)
	}
	text := p.opts.Context.FormatBatch(batch)
	p.logger.Info("processing batch", "session", key.String(), "count", len(batch), "text", text)

	latest := batch[len(batch)-1]
	sessions, err := p.opts.Memory.Sessions(ctx)
	if err != nil {
		p.logger.Warn("list sessions failed", "error", err)
	}
	env := agent.ChatEnv{
		Platform: latest.Platform,
		ChatType: key.ChatType(),
		SelfID:   latest.SelfID,
		Sessions: sessions,
	}

	var emoji map[string]string
	if p.opts.Emoji != nil {
		emoji = p.opts.Emoji.EmojiDict(key.Adapter)
	}
	if err := p.opts.Agent.RunTurn(ctx, key, text, env, latest.MessageTypes, emoji); err != nil {
		return fmt.Errorf("run turn: %w", err)
	}
	return nil
}
