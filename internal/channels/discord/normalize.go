package discord

import (
	"github.com/bwmarrin/discordgo"

	"github.com/zk-armor/openclaw/internal/routing"
)

// normalizeUser maps a Discord user to the engine identity shape.
// Display name priority: server nickname > global display name > username.
func normalizeUser(user *discordgo.User, member *discordgo.Member) routing.Identity {
	if user == nil {
		return routing.Identity{}
	}
	display := user.Username
	if user.GlobalName != "" {
		display = user.GlobalName
	}
	if member != nil && member.Nick != "" {
		display = member.Nick
	}

	tag := user.Username
	if user.Discriminator != "" && user.Discriminator != "0" {
		tag = user.Username + "#" + user.Discriminator
	}

	return routing.Identity{
		ID:          user.ID,
		DisplayName: display,
		Username:    user.Username,
		Tag:         tag,
		IsBot:       user.Bot,
	}
}

// normalizeLocation maps a Discord channel reference to the engine location.
//
// DMs have no guild. Thread messages normalize onto the parent channel with
// the thread riding in ThreadID, so the parent channel ID is always embedded
// in route keys and two threads of one channel never collide. Cache lookup
// failures degrade to a plain guild channel rather than erroring: the access
// gate still runs, only thread nesting is lost.
func normalizeLocation(guildID, channelID string, cache ChannelInfoCache) routing.Location {
	if guildID == "" {
		return routing.Location{Kind: routing.LocationDirect, ID: channelID}
	}

	loc := routing.Location{
		Kind:     routing.LocationChannel,
		ID:       channelID,
		ParentID: guildID,
	}

	info, err := cache.Get(channelID)
	if err != nil {
		return loc
	}
	loc.Name = info.Name
	if info.IsThread {
		loc.ID = info.ParentID
		loc.ThreadID = info.ID
		loc.Threaded = true
	}
	return loc
}

// mentionsBot reports whether the message @-mentions the bot directly.
func mentionsBot(m *discordgo.Message, botUserID string) bool {
	for _, u := range m.Mentions {
		if u != nil && u.ID == botUserID {
			return true
		}
	}
	return false
}

// repliesToBot reports whether the message replies to one of the bot's own
// messages, which counts as an implicit mention.
func repliesToBot(m *discordgo.Message, botUserID string) bool {
	ref := m.ReferencedMessage
	return ref != nil && ref.Author != nil && ref.Author.ID == botUserID
}
