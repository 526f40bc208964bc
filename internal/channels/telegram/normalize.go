package telegram

import (
	"strconv"
	"strings"

	"github.com/mymmrac/telego"

	"github.com/zk-armor/openclaw/internal/routing"
)

// normalizeSender maps a Telegram user to the engine identity shape.
// Never fails: a nil user yields a zero identity, which the engine denies.
func normalizeSender(user *telego.User) routing.Identity {
	if user == nil {
		return routing.Identity{}
	}
	name := strings.TrimSpace(strings.TrimSpace(user.FirstName) + " " + strings.TrimSpace(user.LastName))
	return routing.Identity{
		ID:          strconv.FormatInt(user.ID, 10),
		DisplayName: name,
		Username:    user.Username,
		IsBot:       user.IsBot,
	}
}

// normalizeChat maps a Telegram chat plus the message's thread context to the
// engine location shape.
//
// Thread resolution: non-forum groups ignore message_thread_id entirely (it
// is reply context there, not a topic); forum events without one belong to
// the General topic and resolve to its fixed ID, so a topics["1"] override
// scope applies to General the same as to any other topic.
func normalizeChat(chat telego.Chat, messageThreadID int) routing.Location {
	isGroup := chat.Type == "group" || chat.Type == "supergroup"
	loc := routing.Location{
		ID:   strconv.FormatInt(chat.ID, 10),
		Name: chat.Title,
	}
	if !isGroup {
		loc.Kind = routing.LocationDirect
		return loc
	}

	loc.Kind = routing.LocationGroup
	loc.Threaded = chat.IsForum
	if chat.IsForum {
		if messageThreadID > 0 {
			loc.ThreadID = strconv.Itoa(messageThreadID)
		} else {
			loc.ThreadID = telegramGeneralTopicID
		}
	}
	return loc
}

// detectMention checks whether a message mentions the bot, via entities in
// text or caption (photos use Caption, not Text), with a substring fallback.
func detectMention(msg *telego.Message, botUsername string) bool {
	if botUsername == "" {
		return false
	}
	handle := "@" + strings.ToLower(botUsername)

	for _, pair := range []struct {
		entities []telego.MessageEntity
		text     string
	}{
		{msg.Entities, msg.Text},
		{msg.CaptionEntities, msg.Caption},
	} {
		if pair.text == "" {
			continue
		}
		for _, entity := range pair.entities {
			span := entitySpan(pair.text, entity.Offset, entity.Length)
			if span == "" {
				continue
			}
			switch entity.Type {
			case "mention":
				if strings.EqualFold(span, "@"+botUsername) {
					return true
				}
			case "bot_command":
				if strings.Contains(strings.ToLower(span), handle) {
					return true
				}
			}
		}
	}

	if strings.Contains(strings.ToLower(msg.Text), handle) {
		return true
	}
	return strings.Contains(strings.ToLower(msg.Caption), handle)
}

// entitySpan extracts the text covered by a message entity. Bot API entity
// offsets and lengths count UTF-16 code units, not bytes, so the span is
// recovered by walking runes and charging two units for astral code points.
// Out-of-range entities yield "".
func entitySpan(text string, offset, length int) string {
	if offset < 0 || length <= 0 {
		return ""
	}
	var b strings.Builder
	pos := 0
	for _, r := range text {
		if pos >= offset+length {
			break
		}
		if pos >= offset {
			b.WriteRune(r)
		}
		if r > 0xFFFF {
			pos += 2
		} else {
			pos++
		}
	}
	if pos < offset+length {
		return ""
	}
	return b.String()
}

// isReplyToBot reports whether the message replies to one of the bot's own
// messages. Upstream treats this as an implicit mention.
func isReplyToBot(msg *telego.Message, botUsername string) bool {
	if msg.ReplyToMessage == nil || msg.ReplyToMessage.From == nil {
		return false
	}
	return msg.ReplyToMessage.From.Username == botUsername
}

// isServiceMessage reports whether the message is a Telegram service message
// (member joined, title changed, pinned, ...) rather than user content.
func isServiceMessage(msg *telego.Message) bool {
	if msg.Text != "" || msg.Caption != "" {
		return false
	}
	if msg.Photo != nil || msg.Audio != nil || msg.Video != nil ||
		msg.Document != nil || msg.Voice != nil || msg.VideoNote != nil ||
		msg.Sticker != nil || msg.Animation != nil || msg.Contact != nil ||
		msg.Location != nil || msg.Venue != nil || msg.Poll != nil {
		return false
	}
	return true
}

// reactionEmojis flattens Telegram reaction variants into plain strings,
// preserving order. Custom emoji reactions are keyed by their custom ID so
// add/remove diffing still works for them.
func reactionEmojis(reactions []telego.ReactionType) []string {
	out := make([]string, 0, len(reactions))
	for _, r := range reactions {
		switch v := r.(type) {
		case *telego.ReactionTypeEmoji:
			out = append(out, v.Emoji)
		case *telego.ReactionTypeCustomEmoji:
			out = append(out, "custom:"+v.CustomEmojiID)
		}
	}
	return out
}
