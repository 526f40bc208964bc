// Package config holds the layered gateway configuration.
//
// Access control is configured as a chain of override scopes: global defaults
// → channel → group/guild entry → nested topic/thread entry. Each scope only
// overrides the fields it sets; allow_from replaces rather than merges.
package config

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/zk-armor/openclaw/internal/routing"
)

// FlexibleStringSlice accepts both ["str"] and [123] in JSON, since chat IDs
// are routinely pasted as bare numbers.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Config is the root gateway configuration.
type Config struct {
	Agents    AgentsConfig    `json:"agents"`
	Defaults  PolicyScope     `json:"defaults,omitempty"` // global access defaults
	Channels  ChannelsConfig  `json:"channels"`
	Gateway   GatewayConfig   `json:"gateway"`
	Store     StoreConfig     `json:"store,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
	mu        sync.RWMutex
}

// ReplaceFrom copies all data fields from src, preserving c's mutex.
// Used by the config watcher on reload.
func (c *Config) ReplaceFrom(src *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Agents = src.Agents
	c.Defaults = src.Defaults
	c.Channels = src.Channels
	c.Gateway = src.Gateway
	c.Store = src.Store
	c.Telemetry = src.Telemetry
}

// AccessSnapshot returns the named channel's access configuration together
// with the global defaults, as one consistent snapshot. Adapters call this per
// decision rather than copying config at construction, so a watcher reload
// takes effect on the next event.
func (c *Config) AccessSnapshot(channel string) (ChannelAccessConfig, PolicyScope) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch channel {
	case "telegram":
		return c.Channels.Telegram.ChannelAccessConfig, c.Defaults
	case "discord":
		return c.Channels.Discord.ChannelAccessConfig, c.Defaults
	default:
		return ChannelAccessConfig{}, c.Defaults
	}
}

// AgentsConfig names the agent backend conversations route to.
type AgentsConfig struct {
	Default string `json:"default,omitempty"` // agent ID for all routes (default "default")
}

// DefaultAgentID returns the configured default agent ID.
func (a AgentsConfig) DefaultAgentID() string {
	if a.Default == "" {
		return "default"
	}
	return a.Default
}

// GatewayConfig controls the operator event-stream server.
type GatewayConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	Token          string   `json:"token,omitempty"`           // bearer token for WS auth
	AllowedOrigins []string `json:"allowed_origins,omitempty"` // WebSocket origin whitelist (empty = allow all)
}

// StoreConfig locates the persisted pairing store.
type StoreConfig struct {
	PairingDB string `json:"pairing_db,omitempty"` // sqlite path (default ~/.openclaw/pairing.db)
}

// TelemetryConfig configures OpenTelemetry OTLP export.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"`     // e.g. "localhost:4317"
	Protocol    string            `json:"protocol,omitempty"`     // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`     // plaintext export for local dev
	ServiceName string            `json:"service_name,omitempty"` // default "openclaw-gateway"
	Headers     map[string]string `json:"headers,omitempty"`
}

// ChannelsConfig contains per-channel configuration.
type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
}

// PolicyScope is one configuration fragment in the override chain, attachable
// at any nesting level. Unset fields inherit from the parent scope.
type PolicyScope struct {
	Policy                string              `json:"policy,omitempty"`                 // "open", "allowlist", "pairing", "disabled"
	AllowFrom             FlexibleStringSlice `json:"allow_from,omitempty"`             // nil = inherit, [] = nobody, ["*"] = everyone
	RequireMention        *bool               `json:"require_mention,omitempty"`        // groups: require @bot mention (default true)
	ReactionNotifications string              `json:"reaction_notifications,omitempty"` // "off", "own" (default), "all", "allowlist"
}

// GroupConfig is a group/guild entry, keyed by ID or "*" in the groups map,
// with optional nested topic/thread override scopes.
type GroupConfig struct {
	PolicyScope
	Topics map[string]PolicyScope `json:"topics,omitempty"`
}

// ChannelAccessConfig is the access-control surface shared by all channels.
type ChannelAccessConfig struct {
	DMPolicy              string                 `json:"dm_policy,omitempty"`    // "pairing" (default), "allowlist", "open", "disabled"
	GroupPolicy           string                 `json:"group_policy,omitempty"` // "open" (default), "allowlist", "disabled"
	AllowFrom             FlexibleStringSlice    `json:"allow_from,omitempty"`
	RequireMention        *bool                  `json:"require_mention,omitempty"`
	ReactionNotifications string                 `json:"reaction_notifications,omitempty"`
	Groups                map[string]GroupConfig `json:"groups,omitempty"`
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	Proxy   string `json:"proxy,omitempty"`
	ChannelAccessConfig
}

type DiscordConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	ChannelAccessConfig
}

// toScope converts a config fragment to an engine scope.
func (p PolicyScope) toScope() routing.Scope {
	s := routing.Scope{
		Policy:                routing.Policy(p.Policy),
		RequireMention:        p.RequireMention,
		ReactionNotifications: routing.ReactionMode(p.ReactionNotifications),
	}
	if p.AllowFrom != nil {
		s.AllowFrom = []string(p.AllowFrom)
	}
	return s
}

// ScopeTree flattens this channel's access configuration into the engine's
// override chain for one location kind. The channel-level policy field is
// picked by kind: dm_policy gates direct chats, group_policy everything else.
func (c ChannelAccessConfig) ScopeTree(global PolicyScope, kind routing.LocationKind) routing.ScopeTree {
	channel := routing.Scope{
		ReactionNotifications: routing.ReactionMode(c.ReactionNotifications),
		RequireMention:        c.RequireMention,
	}
	if kind == routing.LocationDirect {
		channel.Policy = routing.Policy(c.DMPolicy)
	} else {
		channel.Policy = routing.Policy(c.GroupPolicy)
	}
	if c.AllowFrom != nil {
		channel.AllowFrom = []string(c.AllowFrom)
	}

	tree := routing.ScopeTree{
		Global:  global.toScope(),
		Channel: channel,
	}
	if len(c.Groups) > 0 {
		tree.Groups = make(map[string]routing.GroupScope, len(c.Groups))
		for id, g := range c.Groups {
			gs := routing.GroupScope{Scope: g.toScope()}
			if len(g.Topics) > 0 {
				gs.Topics = make(map[string]routing.Scope, len(g.Topics))
				for tid, topic := range g.Topics {
					gs.Topics[tid] = topic.toScope()
				}
			}
			tree.Groups[id] = gs
		}
	}
	return tree
}
