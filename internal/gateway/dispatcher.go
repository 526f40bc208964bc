// Package gateway consumes admitted events from the bus, resolves their
// agent route, derives route keys, and hands them to the agent backend.
package gateway

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zk-armor/openclaw/internal/bus"
	"github.com/zk-armor/openclaw/internal/routing"
)

// AgentRouter resolves which agent owns a conversation. Provided externally;
// the dispatcher only encodes the location into keys.
type AgentRouter interface {
	ResolveAgentRoute(channel, peerKind, chatID string) (agentID string)
}

// AgentBackend consumes routed messages. External collaborator.
type AgentBackend interface {
	HandleMessage(ctx context.Context, msg bus.InboundMessage) error
}

// StaticRouter routes every conversation to one agent.
type StaticRouter struct {
	AgentID string
}

func (r StaticRouter) ResolveAgentRoute(_, _, _ string) string { return r.AgentID }

// Dispatcher is the guarded boundary between channel adapters and the agent
// backend. No error or panic from routing or the backend propagates back to
// a platform adapter.
type Dispatcher struct {
	bus     *bus.MessageBus
	router  AgentRouter
	backend AgentBackend
	tracer  trace.Tracer
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(msgBus *bus.MessageBus, router AgentRouter, backend AgentBackend) *Dispatcher {
	return &Dispatcher{
		bus:     msgBus,
		router:  router,
		backend: backend,
		tracer:  otel.Tracer("openclaw/gateway"),
	}
}

// Run consumes inbound messages until ctx is done. Each message is handled
// in its own logical task; ordering between messages is not guaranteed and
// not required — dedup belongs to the context-key queue downstream.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		msg, ok := d.bus.ConsumeInbound(ctx)
		if !ok {
			return
		}
		go d.handle(ctx, msg)
	}
}

func (d *Dispatcher) handle(ctx context.Context, msg bus.InboundMessage) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("dispatch panicked",
				"channel", msg.Channel, "chat_id", msg.ChatID, "panic", r)
		}
	}()

	ctx, span := d.tracer.Start(ctx, "gateway.dispatch",
		trace.WithAttributes(
			attribute.String("channel", msg.Channel),
			attribute.String("peer_kind", msg.PeerKind),
		))
	defer span.End()

	agentID := msg.AgentID
	if agentID == "" {
		agentID = d.router.ResolveAgentRoute(msg.Channel, msg.PeerKind, msg.ChatID)
	}

	loc := locationFromMessage(msg)
	rk := routing.BuildRouteKey(
		agentID,
		msg.Channel,
		msg.Metadata["event_kind"],
		loc,
		msg.Metadata["message_id"],
		msg.SenderID,
	)
	msg.AgentID = agentID
	msg.SessionKey = rk.SessionKey
	msg.ContextKey = rk.ContextKey

	span.SetAttributes(
		attribute.String("agent_id", agentID),
		attribute.String("session_key", rk.SessionKey),
	)

	if err := d.backend.HandleMessage(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "backend dispatch failed")
		slog.Error("agent backend dispatch failed",
			"channel", msg.Channel, "session_key", rk.SessionKey, "error", err)
	}
}

// locationFromMessage rebuilds the normalized location from the wire shape
// the adapters publish.
func locationFromMessage(msg bus.InboundMessage) routing.Location {
	return routing.Location{
		Kind:     routing.LocationKind(msg.PeerKind),
		ID:       msg.ChatID,
		ParentID: msg.Metadata["parent_id"],
		Threaded: msg.Metadata["threaded"] == "true",
		ThreadID: msg.Metadata["thread_id"],
	}
}
