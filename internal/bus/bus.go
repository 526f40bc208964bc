// Package bus decouples channel adapters from the agent dispatcher. Inbound
// messages and system events flow through buffered queues; system events are
// deduplicated by context key because upstream transports may deliver the
// same reaction or edit more than once.
package bus

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
)

const (
	inboundBuffer  = 256
	outboundBuffer = 256

	// seenContextKeys bounds the dedup window. Old keys are evicted FIFO;
	// a transport redelivering an event after ~4k newer events is out of
	// scope for at-most-once.
	seenContextKeys = 4096
)

// MessageBus routes inbound messages, outbound messages, and system events.
// Safe for concurrent use by multiple channel adapters.
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage

	mu          sync.Mutex
	subscribers map[string]EventHandler
	seen        map[string]bool
	seenOrder   *list.List // context keys, oldest first
}

// New creates a message bus.
func New() *MessageBus {
	return &MessageBus{
		inbound:     make(chan InboundMessage, inboundBuffer),
		outbound:    make(chan OutboundMessage, outboundBuffer),
		subscribers: make(map[string]EventHandler),
		seen:        make(map[string]bool),
		seenOrder:   list.New(),
	}
}

// PublishInbound queues an admitted message for the dispatcher.
// Drops with a warning when the dispatcher is backed up; access gating is
// upstream so nothing security-relevant is lost.
func (b *MessageBus) PublishInbound(msg InboundMessage) {
	select {
	case b.inbound <- msg:
	default:
		slog.Warn("inbound queue full, dropping message",
			"channel", msg.Channel, "chat_id", msg.ChatID)
	}
}

// ConsumeInbound blocks until a message arrives or ctx is done.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case <-ctx.Done():
		return InboundMessage{}, false
	case msg := <-b.inbound:
		return msg, true
	}
}

// PublishOutbound queues a reply for channel delivery.
func (b *MessageBus) PublishOutbound(msg OutboundMessage) {
	select {
	case b.outbound <- msg:
	default:
		slog.Warn("outbound queue full, dropping message",
			"channel", msg.Channel, "chat_id", msg.ChatID)
	}
}

// ConsumeOutbound blocks until an outbound message arrives or ctx is done.
func (b *MessageBus) ConsumeOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case <-ctx.Done():
		return OutboundMessage{}, false
	case msg := <-b.outbound:
		return msg, true
	}
}

// Subscribe registers a system event handler under an ID.
func (b *MessageBus) Subscribe(id string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[id] = handler
}

// Unsubscribe removes a handler.
func (b *MessageBus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, id)
}

// EnqueueSystemEvent broadcasts a system event to all subscribers at most
// once per context key. Returns true if the event was fresh.
func (b *MessageBus) EnqueueSystemEvent(text, sessionKey, contextKey string) bool {
	b.mu.Lock()
	if contextKey != "" {
		if b.seen[contextKey] {
			b.mu.Unlock()
			slog.Debug("duplicate system event suppressed", "context_key", contextKey)
			return false
		}
		b.seen[contextKey] = true
		b.seenOrder.PushBack(contextKey)
		for b.seenOrder.Len() > seenContextKeys {
			front := b.seenOrder.Front()
			delete(b.seen, front.Value.(string))
			b.seenOrder.Remove(front)
		}
	}
	handlers := make([]EventHandler, 0, len(b.subscribers))
	for _, h := range b.subscribers {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	ev := SystemEvent{Text: text, SessionKey: sessionKey, ContextKey: contextKey}
	for _, h := range handlers {
		h(ev)
	}
	return true
}
