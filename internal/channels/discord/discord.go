// Package discord connects the gateway to Discord via the gateway API.
package discord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/zk-armor/openclaw/internal/bus"
	"github.com/zk-armor/openclaw/internal/channels"
	"github.com/zk-armor/openclaw/internal/config"
	"github.com/zk-armor/openclaw/internal/store"
)

// messageChunkLimit is Discord's hard message length cap.
const messageChunkLimit = 2000

// Channel connects to Discord via the Bot API using gateway events.
type Channel struct {
	*channels.BaseChannel
	session   *discordgo.Session
	cfg       config.DiscordConfig
	cache     ChannelInfoCache
	notices   *channels.NoticeLimiter
	botMsgs   *botMessageTracker
	botUserID string // populated on start
}

// New creates a Discord channel. Access policy is resolved through the live
// config per event; the token is fixed at construction and needs a restart to
// change. pairing may be nil.
func New(cfg *config.Config, msgBus *bus.MessageBus, pairing store.PairingStore) (*Channel, error) {
	dcCfg := cfg.Channels.Discord

	session, err := discordgo.New("Bot " + dcCfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsDirectMessageReactions

	return &Channel{
		BaseChannel: channels.NewBaseChannel("discord", msgBus, cfg, pairing),
		session:     session,
		cfg:         dcCfg,
		cache:       newSessionChannelCache(session),
		notices:     channels.NewNoticeLimiter(1.0 / 60),
		botMsgs:     newBotMessageTracker(),
	}, nil
}

// SetChannelCache swaps the metadata cache. Used by tests to avoid live
// session lookups.
func (c *Channel) SetChannelCache(cache ChannelInfoCache) { c.cache = cache }

// Start opens the gateway connection and begins receiving events.
func (c *Channel) Start(_ context.Context) error {
	slog.Info("starting discord bot")

	c.session.AddHandler(c.onMessageCreate)
	c.session.AddHandler(c.onMessageUpdate)
	c.session.AddHandler(c.onReactionAdd)
	c.session.AddHandler(c.onChannelUpdate)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	user, err := c.session.User("@me")
	if err != nil {
		c.session.Close()
		return fmt.Errorf("fetch discord bot identity: %w", err)
	}
	c.botUserID = user.ID

	c.SetRunning(true)
	slog.Info("discord bot connected", "username", user.Username, "id", user.ID)
	return nil
}

// Stop closes the gateway connection.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping discord bot")
	c.SetRunning(false)
	return c.session.Close()
}

// Send delivers an outbound message, chunking at Discord's length cap and
// recording sent message IDs for "own" reaction detection.
func (c *Channel) Send(_ context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("discord bot not running")
	}
	channelID := msg.ChatID
	if tid := msg.Metadata["thread_id"]; tid != "" {
		// Replies into a thread go to the thread channel itself.
		channelID = tid
	}
	if channelID == "" {
		return fmt.Errorf("empty chat ID for discord send")
	}

	for _, chunk := range chunkText(msg.Content, messageChunkLimit) {
		sent, err := c.session.ChannelMessageSend(channelID, chunk)
		if err != nil {
			return fmt.Errorf("send discord message: %w", err)
		}
		c.botMsgs.Record(channelID, sent.ID)
	}
	return nil
}

// sendNotice sends a rate-limited plain-text notice. Best effort.
func (c *Channel) sendNotice(channelID, senderID, text string) {
	if !c.notices.Allow(senderID) {
		return
	}
	if _, err := c.session.ChannelMessageSend(channelID, text); err != nil {
		slog.Warn("discord notice send failed", "channel_id", channelID, "error", err)
	}
}

// chunkText splits text at the limit, preferring newline boundaries. The
// limit counts runes, not bytes: Discord's cap is characters, and a byte cut
// could split a multi-byte rune into invalid UTF-8.
func chunkText(text string, limit int) []string {
	var chunks []string
	runes := []rune(text)
	for len(runes) > 0 {
		if len(runes) <= limit {
			chunks = append(chunks, string(runes))
			break
		}
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	return chunks
}
