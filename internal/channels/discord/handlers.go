package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/zk-armor/openclaw/internal/channels"
	"github.com/zk-armor/openclaw/internal/routing"
)

// onMessageCreate gates a new message and publishes it when admitted.
func (c *Channel) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Message == nil {
		return
	}
	c.handleMessage(m.Message, m.Member, "message")
}

// onMessageUpdate routes edits through the same gate as new messages; the
// context key marks them as edits so downstream dedup keeps them distinct.
func (c *Channel) onMessageUpdate(_ *discordgo.Session, m *discordgo.MessageUpdate) {
	if m.Message == nil || m.Message.Author == nil {
		// Embed-only updates (link unfurls) carry no author; nothing to gate.
		return
	}
	c.handleMessage(m.Message, m.Member, "edit")
}

// onChannelUpdate evicts stale metadata so renamed or re-parented channels
// normalize correctly on the next event.
func (c *Channel) onChannelUpdate(_ *discordgo.Session, ch *discordgo.ChannelUpdate) {
	if ch.Channel != nil {
		c.cache.Invalidate(ch.Channel.ID)
	}
}

func (c *Channel) handleMessage(m *discordgo.Message, member *discordgo.Member, eventKind string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("discord message handler panicked", "panic", r, "message_id", m.ID)
		}
	}()

	if m.Author == nil || m.Author.ID == c.botUserID || m.Author.Bot {
		return
	}

	sender := normalizeUser(m.Author, member)
	loc := normalizeLocation(m.GuildID, m.ChannelID, c.cache)

	mentioned := false
	replyToBot := false
	if loc.IsGroupLike() {
		mentioned = mentionsBot(m, c.botUserID)
		replyToBot = repliesToBot(m, c.botUserID)
	}

	ctx := context.Background()
	verdict := c.Authorize(ctx, sender, loc, mentioned, replyToBot)
	if !verdict.Decision.Allowed {
		slog.Debug("discord message denied",
			"reason", verdict.Decision.Reason,
			"channel_id", m.ChannelID,
			"user_id", sender.ID,
			"username", sender.Username,
		)
		c.sendDenyNotice(ctx, m, sender, verdict)
		return
	}

	content := m.Content
	for _, att := range m.Attachments {
		if content != "" {
			content += "\n"
		}
		content += fmt.Sprintf("[attachment: %s]", att.URL)
	}
	if content == "" {
		content = "[empty message]"
	}

	slog.Debug("discord message admitted",
		"reason", verdict.Decision.Reason,
		"channel_id", m.ChannelID,
		"user_id", sender.ID,
		"preview", channels.Truncate(content, 50),
	)

	metadata := map[string]string{
		"event_kind": eventKind,
		"message_id": m.ID,
		"username":   sender.Username,
		"guild_id":   m.GuildID,
	}
	c.PublishInbound(sender, loc, content, metadata)
}

// sendDenyNotice sends the adapter-owned "not authorized" reply for DM
// denials under store-backed policies. Guild denials stay silent.
func (c *Channel) sendDenyNotice(ctx context.Context, m *discordgo.Message, sender routing.Identity, verdict channels.Verdict) {
	if m.GuildID != "" || verdict.Decision.Reason != routing.ReasonNotAllowlisted {
		return
	}

	if verdict.Policy.Policy == routing.PolicyPairing && c.Pairing() != nil {
		code, err := c.Pairing().RequestPairing(ctx, c.Name(), sender.ID)
		if err != nil {
			slog.Debug("discord pairing request failed", "sender_id", sender.ID, "error", err)
			return
		}
		text := fmt.Sprintf(
			"Access not configured.\n\nYour Discord user ID: %s\nPairing code: %s\n\nAsk the bot owner to approve with:\n  openclaw pairing approve discord %s",
			sender.ID, code, code,
		)
		c.sendNotice(m.ChannelID, sender.ID, text)
		return
	}

	c.sendNotice(m.ChannelID, sender.ID, "You are not authorized to use this bot.")
}

// onReactionAdd evaluates the reaction notification policy for one added
// reaction. Discord delivers one event per emoji, so the update's new set is
// the single emoji; removals arrive as MessageReactionRemove, which this
// adapter deliberately has no handler for.
func (c *Channel) onReactionAdd(_ *discordgo.Session, r *discordgo.MessageReactionAdd) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("discord reaction handler panicked", "panic", rec)
		}
	}()

	if r.UserID == c.botUserID {
		return
	}

	reactor := routing.Identity{ID: r.UserID}
	if r.Member != nil && r.Member.User != nil {
		reactor = normalizeUser(r.Member.User, r.Member)
	}

	loc := normalizeLocation(r.GuildID, r.ChannelID, c.cache)
	emoji := r.Emoji.Name
	if emoji == "" && r.Emoji.ID != "" {
		emoji = "custom:" + r.Emoji.ID
	}

	eff := c.ResolvePolicy(loc)
	update := routing.ReactionUpdate{
		Reactor:          reactor,
		MessageAuthorBot: c.botMsgs.IsBotMessage(r.ChannelID, r.MessageID),
		NewEmoji:         []string{emoji},
	}
	if !routing.ShouldNotifyReaction(eff.ReactionNotifications, update, eff.AllowFrom) {
		return
	}

	sessionKey := routing.BuildSessionKey(c.AgentID(), c.Name(), loc)
	contextKey := routing.BuildContextKey(c.Name(), "reaction", loc.ID, r.MessageID+":"+emoji, reactor.ID)

	who := reactor.DisplayName
	if who == "" {
		who = reactor.ID
	}
	text := fmt.Sprintf("%s reacted with %s", who, emoji)
	if c.Bus().EnqueueSystemEvent(text, sessionKey, contextKey) {
		slog.Debug("discord reaction notified",
			"channel_id", r.ChannelID, "message_id", r.MessageID, "emoji", emoji)
	}
}

// botMessageTracker remembers bot-sent message IDs, bounded FIFO, so
// reaction events can tell reactions to the bot's own messages apart.
type botMessageTracker struct {
	mu    sync.Mutex
	seen  map[string]bool
	order []string
}

const botMessageWindow = 2048

func newBotMessageTracker() *botMessageTracker {
	return &botMessageTracker{seen: make(map[string]bool)}
}

func (t *botMessageTracker) Record(channelID, messageID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := channelID + ":" + messageID
	if t.seen[k] {
		return
	}
	t.seen[k] = true
	t.order = append(t.order, k)
	for len(t.order) > botMessageWindow {
		delete(t.seen, t.order[0])
		t.order = t.order[1:]
	}
}

func (t *botMessageTracker) IsBotMessage(channelID, messageID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seen[channelID+":"+messageID]
}
