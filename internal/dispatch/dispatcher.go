// Package dispatch delivers outbound message batches to adapters.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/dayuer/kira-go/internal/bus"
	"github.com/dayuer/kira-go/internal/metrics"
	"github.com/dayuer/kira-go/internal/protocol"
	"github.com/dayuer/kira-go/internal/session"
)

// ErrUnknownAdapter is recorded when a session names no registered adapter.
var ErrUnknownAdapter = errors.New("unknown adapter")

// Sender is the outbound half of an adapter.
type Sender interface {
	SendGroupMessage(ctx context.Context, groupID string, elems []bus.Element) (string, error)
	SendDirectMessage(ctx context.Context, userID string, elems []bus.Element) (string, error)
}

// AdapterLookup resolves an adapter name to its sender.
type AdapterLookup interface {
	Sender(name string) (Sender, bool)
}

// Config configures a Dispatcher.
type Config struct {
	MinDelay time.Duration // pacing between messages of one batch
	MaxDelay time.Duration

	// RatePerSecond caps sends per adapter. Zero disables the limit.
	RatePerSecond float64
}

// Dispatcher sends batches one message at a time with randomized pacing.
type Dispatcher struct {
	adapters AdapterLookup
	locks    *session.Serializer
	codec    *protocol.Codec
	cfg      Config
	logger   *slog.Logger

	// sleep and jitter are replaced in tests.
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() float64

	limMu    sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates a dispatcher. locks serializes sends per session; codec is
// used by SendMarkup.
func New(adapters AdapterLookup, locks *session.Serializer, codec *protocol.Codec, cfg Config, logger *slog.Logger) *Dispatcher {
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		adapters: adapters,
		locks:    locks,
		codec:    codec,
		cfg:      cfg,
		logger:   logger.With("component", "dispatch"),
		sleep:    sleepCtx,
		jitter:   rand.Float64,
		limiters: make(map[string]*rate.Limiter),
	}
}

// SendBatch sends every message of batch to key's adapter and returns one
// id per <msg> slot. Failed or skipped slots hold "". It never fails: send
// errors are logged and leave an empty id. Callers must hold key's send
// lock; SendMarkup does this for them.
func (d *Dispatcher) SendBatch(ctx context.Context, key session.Key, batch protocol.Batch) []string {
	ids := make([]string, batch.Slots)
	sender, ok := d.adapters.Sender(key.Adapter)
	for i, msg := range batch.Messages {
		if i > 0 {
			if err := d.sleep(ctx, d.delay()); err != nil {
				return ids
			}
		}
		if !ok {
			d.logger.Error("no adapter for session", "session", key.String())
			metrics.RecordSend(key.Adapter, ErrUnknownAdapter)
			continue
		}
		id, err := d.send(ctx, sender, key, msg.Elements)
		metrics.RecordSend(key.Adapter, err)
		if err != nil {
			d.logger.Error("send failed", "session", key.String(), "error", err)
			continue
		}
		if msg.Slot < len(ids) {
			ids[msg.Slot] = id
		}
		d.logger.Info("sent", "session", key.String(), "message_id", id, "content", bus.Repr(msg.Elements))
	}
	return ids
}

func (d *Dispatcher) send(ctx context.Context, s Sender, key session.Key, elems []bus.Element) (string, error) {
	if lim := d.limiter(key.Adapter); lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit: %w", err)
		}
	}
	if key.IsGroup() {
		return s.SendGroupMessage(ctx, key.ID, elems)
	}
	return s.SendDirectMessage(ctx, key.ID, elems)
}

// SendMarkup parses reply markup, sends it under key's send lock and
// returns the annotated markup with the ids.
func (d *Dispatcher) SendMarkup(ctx context.Context, key session.Key, markup string) (string, []string, error) {
	batch, effective := d.codec.Parse(ctx, markup)
	var ids []string
	err := d.locks.WithSend(ctx, key, func(ctx context.Context) error {
		ids = d.SendBatch(ctx, key, batch)
		return nil
	})
	if err != nil {
		return effective, nil, err
	}
	return protocol.Annotate(effective, ids), ids, nil
}

// SendXML is SendMarkup without the annotated text, for the send_message tool.
func (d *Dispatcher) SendXML(ctx context.Context, key session.Key, markup string) ([]string, error) {
	_, ids, err := d.SendMarkup(ctx, key, markup)
	return ids, err
}

func (d *Dispatcher) delay() time.Duration {
	span := d.cfg.MaxDelay - d.cfg.MinDelay
	return d.cfg.MinDelay + time.Duration(d.jitter()*float64(span))
}

func (d *Dispatcher) limiter(adapter string) *rate.Limiter {
	if d.cfg.RatePerSecond <= 0 {
		return nil
	}
	d.limMu.Lock()
	defer d.limMu.Unlock()
	lim, ok := d.limiters[adapter]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(d.cfg.RatePerSecond), 1)
		d.limiters[adapter] = lim
	}
	return lim
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
