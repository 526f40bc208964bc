// Package sessions defines the canonical session key grammar.
//
// Session keys take the form:
//
//	agent:{agentId}:{channel}:{kind}:{locationId}
//	agent:{agentId}:{channel}:{kind}:{locationId}:topic:{topicId}
//
// Examples:
//
//	agent:default:telegram:direct:386246614
//	agent:default:telegram:group:-100123456:topic:99
//	agent:default:discord:channel:118223344
//
// The grammar is an internal contract with the session store: stable across
// releases, and reversible enough to recover the location kind and ID for
// display purposes.
package sessions

import (
	"fmt"
	"strings"
)

// PeerKind is the conversation kind segment of a session key.
type PeerKind string

const (
	PeerDirect  PeerKind = "direct"
	PeerGroup   PeerKind = "group"
	PeerChannel PeerKind = "channel"
)

// BuildKey builds the canonical session key for a conversation without
// topic/thread nesting.
func BuildKey(agentID, channel string, kind PeerKind, locationID string) string {
	return fmt.Sprintf("agent:%s:%s:%s:%s", agentID, channel, kind, locationID)
}

// BuildTopicKey builds the session key for a nested topic or thread. The
// parent location ID is always embedded, so two topics in the same group
// never collide.
func BuildTopicKey(agentID, channel string, kind PeerKind, locationID, topicID string) string {
	return fmt.Sprintf("agent:%s:%s:%s:%s:topic:%s", agentID, channel, kind, locationID, topicID)
}

// ParseKey extracts the agent ID and the remainder from a canonical key.
// Returns ("", "") if the key is not in the expected format.
func ParseKey(key string) (agentID, rest string) {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) < 3 || parts[0] != "agent" {
		return "", ""
	}
	return parts[1], parts[2]
}

// KeyInfo is the decoded shape of a session key, for display and debugging.
type KeyInfo struct {
	AgentID    string
	Channel    string
	Kind       PeerKind
	LocationID string
	TopicID    string
}

// DescribeKey decodes a canonical session key back into its parts.
// The second return is false for keys outside the grammar.
func DescribeKey(key string) (KeyInfo, bool) {
	agentID, rest := ParseKey(key)
	if agentID == "" {
		return KeyInfo{}, false
	}
	parts := strings.Split(rest, ":")
	if len(parts) < 3 {
		return KeyInfo{}, false
	}
	info := KeyInfo{
		AgentID:    agentID,
		Channel:    parts[0],
		Kind:       PeerKind(parts[1]),
		LocationID: parts[2],
	}
	switch info.Kind {
	case PeerDirect, PeerGroup, PeerChannel:
	default:
		return KeyInfo{}, false
	}
	if len(parts) >= 5 && parts[3] == "topic" {
		info.TopicID = strings.Join(parts[4:], ":")
	}
	return info, true
}
