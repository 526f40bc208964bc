package bus

// InboundMessage is an admitted platform event on its way to the agent
// backend. SessionKey/ContextKey are filled by the dispatcher from the
// routing engine.
type InboundMessage struct {
	Channel    string            `json:"channel"`
	SenderID   string            `json:"sender_id"`
	ChatID     string            `json:"chat_id"`
	Content    string            `json:"content"`
	PeerKind   string            `json:"peer_kind,omitempty"` // "direct", "group", "channel"
	SessionKey string            `json:"session_key,omitempty"`
	ContextKey string            `json:"context_key,omitempty"`
	AgentID    string            `json:"agent_id,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// OutboundMessage is a reply or notice to deliver to a channel.
type OutboundMessage struct {
	Channel  string            `json:"channel"`
	ChatID   string            `json:"chat_id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SystemEvent is a non-message notification (reaction added, message edited)
// addressed to a session. ContextKey identifies the physical event; the queue
// delivers at most one event per ContextKey.
type SystemEvent struct {
	Text       string `json:"text"`
	SessionKey string `json:"session_key"`
	ContextKey string `json:"context_key"`
}

// EventHandler receives broadcast system events.
type EventHandler func(SystemEvent)
