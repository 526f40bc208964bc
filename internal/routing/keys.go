package routing

import (
	"fmt"

	"github.com/zk-armor/openclaw/internal/sessions"
)

// DefaultTopicID is the topic segment used when a threaded container's event
// structurally cannot carry a thread ID (Telegram's General topic). Falling
// back to a fixed segment, never an absent one, makes all such events in one
// container converge on one session.
const DefaultTopicID = "1"

// RouteKey pairs the stable session identity of a conversation with the
// unique identity of one physical event.
type RouteKey struct {
	SessionKey string
	ContextKey string
}

// BuildSessionKey derives the session key owning a conversation.
//
//	direct:              agent:{agent}:{channel}:direct:{id}
//	plain group/channel:  agent:{agent}:{channel}:{kind}:{id}
//	threaded, thread known:   ...:{id}:topic:{threadId}
//	threaded, thread unknown: ...:{id}:topic:1
func BuildSessionKey(agentID, channel string, loc Location) string {
	kind := peerKind(loc.Kind)
	if loc.Kind != LocationDirect && loc.Threaded {
		topic := loc.ThreadID
		if topic == "" {
			topic = DefaultTopicID
		}
		return sessions.BuildTopicKey(agentID, channel, kind, loc.ID, topic)
	}
	return sessions.BuildKey(agentID, channel, kind, loc.ID)
}

// BuildContextKey derives the dedup identity of one physical event:
//
//	{channel}:{eventKind}:{locationId}:{messageId}[:{actorId}]
//
// The external event queue deduplicates on it, so reaction-add and edit
// notifications redelivered by an unreliable transport collapse to one.
func BuildContextKey(channel, eventKind, locationID, messageID, actorID string) string {
	key := fmt.Sprintf("%s:%s:%s:%s", channel, eventKind, locationID, messageID)
	if actorID != "" {
		key += ":" + actorID
	}
	return key
}

// BuildRouteKey combines both keys for one event.
func BuildRouteKey(agentID, channel, eventKind string, loc Location, messageID, actorID string) RouteKey {
	return RouteKey{
		SessionKey: BuildSessionKey(agentID, channel, loc),
		ContextKey: BuildContextKey(channel, eventKind, loc.ID, messageID, actorID),
	}
}

func peerKind(k LocationKind) sessions.PeerKind {
	switch k {
	case LocationGroup:
		return sessions.PeerGroup
	case LocationChannel:
		return sessions.PeerChannel
	default:
		return sessions.PeerDirect
	}
}
