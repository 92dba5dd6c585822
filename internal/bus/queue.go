package bus

import (
	"context"
	"sync/atomic"
)

// MessageBus queues inbound events between adapters and the processor.
type MessageBus struct {
	Inbound chan InboundEvent

	dropped atomic.Int64
}

// NewMessageBus creates a bus with the given buffer size (100 when <= 0).
func NewMessageBus(size int) *MessageBus {
	if size <= 0 {
		size = 100
	}
	return &MessageBus{Inbound: make(chan InboundEvent, size)}
}

// PublishInbound queues an event, blocking while the buffer is full.
func (b *MessageBus) PublishInbound(ctx context.Context, ev InboundEvent) error {
	select {
	case b.Inbound <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPublishInbound queues an event without blocking. A full buffer drops
// the event and returns false.
func (b *MessageBus) TryPublishInbound(ev InboundEvent) bool {
	select {
	case b.Inbound <- ev:
		return true
	default:
		b.dropped.Add(1)
		return false
	}
}

// ConsumeInbound waits for the next event. It returns false once ctx is done.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundEvent, bool) {
	select {
	case ev := <-b.Inbound:
		return ev, true
	case <-ctx.Done():
		return InboundEvent{}, false
	}
}

// InboundSize returns the number of pending inbound events.
func (b *MessageBus) InboundSize() int {
	return len(b.Inbound)
}

// Dropped returns how many events were discarded because the buffer was full.
func (b *MessageBus) Dropped() int64 {
	return b.dropped.Load()
}
