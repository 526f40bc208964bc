// Package routing implements the access policy and session routing engine.
//
// Every inbound platform event is normalized at the adapter boundary into an
// Identity + Location pair, gated through the layered policy resolver and the
// access decision engine, and — when admitted — mapped to a stable RouteKey
// that downstream session storage and event dedup key on.
//
// The engine is pure: no I/O, no hidden state. The only external input is the
// pairing-store allowlist snapshot, which the caller reads once per decision
// and passes in as a value.
package routing

// LocationKind classifies where an event happened.
type LocationKind string

const (
	LocationDirect  LocationKind = "direct"  // one-to-one chat
	LocationGroup   LocationKind = "group"   // Telegram group/supergroup
	LocationChannel LocationKind = "channel" // Discord guild channel
)

// Identity is the platform-neutral shape of a sender.
// Built fresh per event; never persisted.
type Identity struct {
	ID          string
	DisplayName string
	Username    string
	Tag         string // platform-qualified display identity, e.g. "name#1234"
	IsBot       bool
}

// Location is the platform-neutral shape of a chat, guild channel, or thread.
//
// ParentID links a nested location to its container (Discord: guild ID).
// ThreadID carries the forum topic or thread ID when the event structurally
// has one; it stays empty for event types that cannot carry it (e.g. Telegram
// reaction updates), in which case key building falls back to the default
// topic so all such events converge on one session.
type Location struct {
	Kind     LocationKind
	ID       string
	ParentID string
	Name     string
	Threaded bool // forum supergroup / threaded guild channel
	ThreadID string
}

// IsGroupLike reports whether the location is a multi-party conversation.
func (l Location) IsGroupLike() bool {
	return l.Kind == LocationGroup || l.Kind == LocationChannel
}

// ContainerID returns the ID of the outermost container the configuration
// tree is keyed by: the guild for nested guild channels, the location itself
// otherwise.
func (l Location) ContainerID() string {
	if l.ParentID != "" {
		return l.ParentID
	}
	return l.ID
}

// NestedID returns the key used to look up a nested override scope inside a
// group/guild entry: the forum topic or thread ID for groups, the channel ID
// for guild channels.
func (l Location) NestedID() string {
	switch l.Kind {
	case LocationChannel:
		return l.ID
	case LocationGroup:
		return l.ThreadID
	default:
		return ""
	}
}
