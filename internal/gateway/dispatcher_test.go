package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/zk-armor/openclaw/internal/bus"
)

// captureBackend records routed messages for assertions.
type captureBackend struct {
	mu   sync.Mutex
	msgs []bus.InboundMessage
	done chan struct{}
}

func newCaptureBackend(expect int) *captureBackend {
	return &captureBackend{done: make(chan struct{}, expect)}
}

func (c *captureBackend) HandleMessage(_ context.Context, msg bus.InboundMessage) error {
	c.mu.Lock()
	c.msgs = append(c.msgs, msg)
	c.mu.Unlock()
	c.done <- struct{}{}
	return nil
}

func (c *captureBackend) wait(t *testing.T) bus.InboundMessage {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		t.Fatal("backend never received the message")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.msgs[len(c.msgs)-1]
}

func TestDispatcher_RouteKeys(t *testing.T) {
	msgBus := bus.New()
	backend := newCaptureBackend(1)
	d := NewDispatcher(msgBus, StaticRouter{AgentID: "default"}, backend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	msgBus.PublishInbound(bus.InboundMessage{
		Channel:  "telegram",
		SenderID: "42",
		ChatID:   "-100123",
		Content:  "hi",
		PeerKind: "group",
		Metadata: map[string]string{
			"event_kind": "message",
			"message_id": "555",
			"threaded":   "true",
			"thread_id":  "7",
		},
	})

	got := backend.wait(t)
	if got.SessionKey != "agent:default:telegram:group:-100123:topic:7" {
		t.Errorf("session key = %q", got.SessionKey)
	}
	if got.ContextKey != "telegram:message:-100123:555:42" {
		t.Errorf("context key = %q", got.ContextKey)
	}
	if got.AgentID != "default" {
		t.Errorf("agent id = %q", got.AgentID)
	}
}

func TestDispatcher_RouterOnlyFillsMissingAgent(t *testing.T) {
	msgBus := bus.New()
	backend := newCaptureBackend(1)
	d := NewDispatcher(msgBus, StaticRouter{AgentID: "fallback"}, backend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	msgBus.PublishInbound(bus.InboundMessage{
		Channel:  "discord",
		SenderID: "1",
		ChatID:   "chan1",
		PeerKind: "channel",
		AgentID:  "pinned",
		Metadata: map[string]string{"event_kind": "message", "message_id": "m1"},
	})

	got := backend.wait(t)
	if got.AgentID != "pinned" {
		t.Errorf("agent id = %q, want pinned", got.AgentID)
	}
	if got.SessionKey != "agent:pinned:discord:channel:chan1" {
		t.Errorf("session key = %q", got.SessionKey)
	}
}
