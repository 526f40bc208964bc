// Package channels provides the channel abstraction layer for multi-platform
// messaging. Adapters normalize raw platform events into engine shapes, gate
// them through the access policy, and publish admitted messages to the bus.
package channels

import (
	"context"
	"log/slog"
	"time"

	"github.com/zk-armor/openclaw/internal/bus"
	"github.com/zk-armor/openclaw/internal/config"
	"github.com/zk-armor/openclaw/internal/routing"
	"github.com/zk-armor/openclaw/internal/store"
)

// storeReadTimeout bounds the single pairing-store read per decision.
// The engine itself never touches the store.
const storeReadTimeout = 3 * time.Second

// Channel is the interface all platform adapters satisfy.
type Channel interface {
	// Name returns the channel identifier (e.g. "telegram", "discord").
	Name() string

	// Start begins listening for events. Non-blocking after setup.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the channel.
	Stop(ctx context.Context) error

	// Send delivers an outbound message to the channel.
	Send(ctx context.Context, msg bus.OutboundMessage) error

	// IsRunning reports whether the channel is actively processing events.
	IsRunning() bool
}

// Verdict is the full gate outcome for one event: the access decision plus
// the effective policy it was decided under, so adapters can reuse the
// resolved reaction mode and allowlist without resolving twice.
type Verdict struct {
	Decision routing.Decision
	Policy   routing.EffectivePolicy
}

// BaseChannel provides the shared gate wiring for adapter implementations,
// which embed it. It holds the shared live config rather than a copy, so
// access policy changes applied by the config watcher gate the next event.
type BaseChannel struct {
	name    string
	bus     *bus.MessageBus
	cfg     *config.Config
	pairing store.PairingStore
	agentID string
	running bool
}

// NewBaseChannel creates the shared adapter base. pairing may be nil, in
// which case store-backed policies see an empty allowlist.
func NewBaseChannel(name string, msgBus *bus.MessageBus, cfg *config.Config, pairing store.PairingStore) *BaseChannel {
	return &BaseChannel{
		name:    name,
		bus:     msgBus,
		cfg:     cfg,
		pairing: pairing,
	}
}

// Name returns the channel name.
func (c *BaseChannel) Name() string { return c.name }

// IsRunning reports whether the channel is running.
func (c *BaseChannel) IsRunning() bool { return c.running }

// SetRunning updates the running state.
func (c *BaseChannel) SetRunning(running bool) { c.running = running }

// Bus returns the message bus reference.
func (c *BaseChannel) Bus() *bus.MessageBus { return c.bus }

// AgentID returns the agent this channel routes to.
func (c *BaseChannel) AgentID() string { return c.agentID }

// SetAgentID sets the routing agent ID.
func (c *BaseChannel) SetAgentID(id string) { c.agentID = id }

// Pairing returns the pairing store (may be nil).
func (c *BaseChannel) Pairing() store.PairingStore { return c.pairing }

// ResolvePolicy resolves the effective policy for a location from the
// channel's scope chain, snapshotted from the live config. No store read
// happens here.
func (c *BaseChannel) ResolvePolicy(loc routing.Location) routing.EffectivePolicy {
	access, global := c.cfg.AccessSnapshot(c.name)
	tree := access.ScopeTree(global, loc.Kind)
	return routing.ResolveEffectivePolicy(tree, loc)
}

// Authorize resolves the effective policy for the location, reads the
// pairing-store snapshot once if the policy needs it, and evaluates the
// access decision. Store read failures degrade to an empty allowlist so
// store-backed policies fail closed.
func (c *BaseChannel) Authorize(ctx context.Context, sender routing.Identity, loc routing.Location, wasMentioned, isReplyToBot bool) Verdict {
	eff := c.ResolvePolicy(loc)

	var storeAllow []string
	if eff.Policy == routing.PolicyPairing || eff.Policy == routing.PolicyAllowlist {
		storeAllow = c.readStoreAllowFrom(ctx)
	}

	decision := routing.Decide(routing.AccessRequest{
		Policy:         eff,
		Sender:         sender,
		Location:       loc,
		StoreAllowFrom: storeAllow,
		WasMentioned:   wasMentioned,
		IsReplyToBot:   isReplyToBot,
	})
	return Verdict{Decision: decision, Policy: eff}
}

// readStoreAllowFrom performs the one external read per decision.
func (c *BaseChannel) readStoreAllowFrom(ctx context.Context) []string {
	if c.pairing == nil {
		return nil
	}
	readCtx, cancel := context.WithTimeout(ctx, storeReadTimeout)
	defer cancel()

	allow, err := c.pairing.ListAllowFrom(readCtx, c.name)
	if err != nil {
		slog.Warn("pairing store read failed, treating as empty allowlist",
			"channel", c.name, "error", err)
		return nil
	}
	return allow
}

// PublishInbound forwards an admitted message to the dispatcher. The
// location's nesting fields ride along in metadata so the dispatcher can
// rebuild it for route key derivation.
func (c *BaseChannel) PublishInbound(sender routing.Identity, loc routing.Location, content string, metadata map[string]string) {
	if metadata == nil {
		metadata = make(map[string]string)
	}
	if loc.ParentID != "" {
		metadata["parent_id"] = loc.ParentID
	}
	if loc.Threaded {
		metadata["threaded"] = "true"
	}
	if loc.ThreadID != "" {
		metadata["thread_id"] = loc.ThreadID
	}

	c.bus.PublishInbound(bus.InboundMessage{
		Channel:  c.name,
		SenderID: sender.ID,
		ChatID:   loc.ID,
		Content:  content,
		PeerKind: string(loc.Kind),
		AgentID:  c.agentID,
		Metadata: metadata,
	})
}

// Truncate shortens a string to maxLen, appending "..." if truncated.
// Used for log previews.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
