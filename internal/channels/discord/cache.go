package discord

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// ChannelInfo is the slice of guild channel metadata normalization needs.
type ChannelInfo struct {
	ID       string
	GuildID  string
	ParentID string
	Name     string
	IsThread bool
}

// ChannelInfoCache resolves guild channel metadata. The cache is an
// adapter-local performance optimization, not part of the decision core;
// Invalidate exists so tests and reload paths can evict entries.
type ChannelInfoCache interface {
	Get(channelID string) (ChannelInfo, error)
	Invalidate(channelID string)
}

// sessionChannelCache caches channel lookups against the Discord session,
// preferring gateway state over REST. Safe for concurrent use.
type sessionChannelCache struct {
	session *discordgo.Session
	mu      sync.RWMutex
	entries map[string]ChannelInfo
}

func newSessionChannelCache(session *discordgo.Session) *sessionChannelCache {
	return &sessionChannelCache{
		session: session,
		entries: make(map[string]ChannelInfo),
	}
}

func (c *sessionChannelCache) Get(channelID string) (ChannelInfo, error) {
	c.mu.RLock()
	info, ok := c.entries[channelID]
	c.mu.RUnlock()
	if ok {
		return info, nil
	}

	ch, err := c.session.State.Channel(channelID)
	if err != nil {
		ch, err = c.session.Channel(channelID)
		if err != nil {
			return ChannelInfo{}, fmt.Errorf("resolve discord channel %s: %w", channelID, err)
		}
	}

	info = ChannelInfo{
		ID:       ch.ID,
		GuildID:  ch.GuildID,
		ParentID: ch.ParentID,
		Name:     ch.Name,
		IsThread: ch.IsThread(),
	}
	c.mu.Lock()
	c.entries[channelID] = info
	c.mu.Unlock()
	return info, nil
}

func (c *sessionChannelCache) Invalidate(channelID string) {
	c.mu.Lock()
	delete(c.entries, channelID)
	c.mu.Unlock()
}
