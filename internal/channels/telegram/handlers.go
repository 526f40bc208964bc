package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/mymmrac/telego"

	"github.com/zk-armor/openclaw/internal/channels"
	"github.com/zk-armor/openclaw/internal/routing"
)

// handleUpdate fans one Telegram update out to its handler. Runs inside a
// guarded boundary: a panic in one update never takes down polling.
func (c *Channel) handleUpdate(ctx context.Context, update telego.Update) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("telegram update handler panicked", "panic", r, "update_id", update.UpdateID)
		}
	}()

	switch {
	case update.Message != nil:
		c.handleMessage(ctx, update.Message, "message")
	case update.EditedMessage != nil:
		c.handleMessage(ctx, update.EditedMessage, "edit")
	case update.MessageReaction != nil:
		c.handleReaction(ctx, update.MessageReaction)
	case update.CallbackQuery != nil:
		c.handleCallbackQuery(ctx, update.CallbackQuery)
	default:
		slog.Debug("telegram update skipped", "update_id", update.UpdateID)
	}
}

// handleMessage gates an incoming message (or edit) and publishes it when
// admitted. eventKind distinguishes edits in the context key so downstream
// dedup treats an edit as a new physical event.
func (c *Channel) handleMessage(ctx context.Context, message *telego.Message, eventKind string) {
	if isServiceMessage(message) {
		slog.Debug("telegram service message skipped", "chat_id", message.Chat.ID)
		return
	}

	sender := normalizeSender(message.From)
	loc := normalizeChat(message.Chat, message.MessageThreadID)

	mentioned := false
	replyToBot := false
	if loc.IsGroupLike() {
		mentioned = detectMention(message, c.botUsername)
		replyToBot = isReplyToBot(message, c.botUsername)
	}

	verdict := c.Authorize(ctx, sender, loc, mentioned, replyToBot)
	if !verdict.Decision.Allowed {
		slog.Debug("telegram message denied",
			"reason", verdict.Decision.Reason,
			"chat_id", loc.ID,
			"user_id", sender.ID,
			"username", sender.Username,
		)
		c.sendDenyNotice(ctx, message, sender, verdict)
		return
	}

	content := message.Text
	if message.Caption != "" {
		if content != "" {
			content += "\n"
		}
		content += message.Caption
	}
	if content == "" {
		content = "[empty message]"
	}

	slog.Debug("telegram message admitted",
		"reason", verdict.Decision.Reason,
		"chat_id", loc.ID,
		"user_id", sender.ID,
		"preview", channels.Truncate(content, 50),
	)

	metadata := map[string]string{
		"event_kind": eventKind,
		"message_id": strconv.Itoa(message.MessageID),
		"username":   sender.Username,
	}
	c.PublishInbound(sender, loc, content, metadata)
}

// sendDenyNotice sends the one-time "not authorized" reply owned by the
// adapter. Only DM denials under store-backed policies get a notice; group
// denials stay silent so the bot does not spam shared chats.
func (c *Channel) sendDenyNotice(ctx context.Context, message *telego.Message, sender routing.Identity, verdict channels.Verdict) {
	if message.Chat.Type != "private" || verdict.Decision.Reason != routing.ReasonNotAllowlisted {
		return
	}

	if verdict.Policy.Policy == routing.PolicyPairing && c.Pairing() != nil {
		code, err := c.Pairing().RequestPairing(ctx, c.Name(), sender.ID)
		if err != nil {
			slog.Debug("telegram pairing request failed", "sender_id", sender.ID, "error", err)
			return
		}
		text := fmt.Sprintf(
			"Access not configured.\n\nYour Telegram user ID: %s\nPairing code: %s\n\nAsk the bot owner to approve with:\n  openclaw pairing approve telegram %s",
			sender.ID, code, code,
		)
		c.sendNotice(ctx, message.Chat.ID, 0, sender.ID, text)
		return
	}

	c.sendNotice(ctx, message.Chat.ID, 0, sender.ID, "You are not authorized to use this bot.")
}

// handleReaction evaluates the reaction notification policy for a
// message_reaction update and emits one system event per newly added emoji.
//
// Reaction updates never carry a topic ID, so in forum groups the route key
// falls back to the default topic and every reaction in the group converges
// on one session.
func (c *Channel) handleReaction(ctx context.Context, reaction *telego.MessageReactionUpdated) {
	reactor := normalizeSender(reaction.User)
	loc := normalizeChat(reaction.Chat, 0)
	messageID := strconv.Itoa(reaction.MessageID)

	eff := c.ResolvePolicy(loc)
	update := routing.ReactionUpdate{
		Reactor:          reactor,
		MessageAuthorBot: c.botMsgs.IsBotMessage(loc.ID, messageID),
		OldEmoji:         reactionEmojis(reaction.OldReaction),
		NewEmoji:         reactionEmojis(reaction.NewReaction),
	}

	if !routing.ShouldNotifyReaction(eff.ReactionNotifications, update, eff.AllowFrom) {
		return
	}

	agentID := c.AgentID()
	sessionKey := routing.BuildSessionKey(agentID, c.Name(), loc)

	for _, emoji := range update.NewlyAdded() {
		contextKey := routing.BuildContextKey(c.Name(), "reaction", loc.ID, messageID+":"+emoji, reactor.ID)
		who := reactor.DisplayName
		if who == "" {
			who = reactor.Username
		}
		text := fmt.Sprintf("%s reacted with %s", who, emoji)
		if c.Bus().EnqueueSystemEvent(text, sessionKey, contextKey) {
			slog.Debug("telegram reaction notified",
				"chat_id", loc.ID, "message_id", messageID, "emoji", emoji)
		}
	}
}

// handleCallbackQuery always acknowledges the query — even denied or unknown
// callbacks — so Telegram does not redeliver it in a retry storm.
func (c *Channel) handleCallbackQuery(ctx context.Context, query *telego.CallbackQuery) {
	defer func() {
		err := c.bot.AnswerCallbackQuery(ctx, &telego.AnswerCallbackQueryParams{
			CallbackQueryID: query.ID,
		})
		if err != nil {
			slog.Debug("telegram callback ack failed", "query_id", query.ID, "error", err)
		}
	}()

	msg := query.Message
	if msg == nil {
		return
	}
	accessible, ok := msg.(*telego.Message)
	if !ok {
		return
	}

	sender := normalizeSender(&query.From)
	loc := normalizeChat(accessible.Chat, accessible.MessageThreadID)

	// Callback presses are explicit interactions with the bot's own UI, so
	// the mention gate is considered satisfied.
	verdict := c.Authorize(ctx, sender, loc, true, false)
	if !verdict.Decision.Allowed {
		slog.Debug("telegram callback denied",
			"reason", verdict.Decision.Reason, "user_id", sender.ID)
		return
	}

	metadata := map[string]string{
		"event_kind": "callback",
		"message_id": strconv.Itoa(accessible.MessageID),
		"callback":   query.Data,
	}
	c.PublishInbound(sender, loc, query.Data, metadata)
}
