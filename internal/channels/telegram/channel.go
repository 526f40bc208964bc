// Package telegram connects the gateway to Telegram via the Bot API.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/zk-armor/openclaw/internal/bus"
	"github.com/zk-armor/openclaw/internal/channels"
	"github.com/zk-armor/openclaw/internal/config"
	"github.com/zk-armor/openclaw/internal/store"
)

// telegramGeneralTopicID is the fixed ID of the "General" topic in forum
// supergroups. Messages in General carry no message_thread_id, and reaction
// updates never carry one; both fall back to this topic.
const telegramGeneralTopicID = "1"

// textChunkLimit is Telegram's hard message length cap.
const textChunkLimit = 4096

// botMessageWindow bounds how many of the bot's own message IDs are
// remembered per process for "own" reaction detection.
const botMessageWindow = 2048

// Channel connects to Telegram via long polling.
type Channel struct {
	*channels.BaseChannel
	bot         *telego.Bot
	cfg         config.TelegramConfig
	notices     *channels.NoticeLimiter
	botMsgs     *botMessageTracker
	pollCancel  context.CancelFunc
	pollDone    chan struct{}
	botUsername string
}

// New creates a Telegram channel. Access policy is resolved through the live
// config per event; token and proxy are fixed at construction and need a
// restart to change. pairing may be nil.
func New(cfg *config.Config, msgBus *bus.MessageBus, pairing store.PairingStore) (*Channel, error) {
	tgCfg := cfg.Channels.Telegram

	var opts []telego.BotOption
	if tgCfg.Proxy != "" {
		proxyURL, err := url.Parse(tgCfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", tgCfg.Proxy, err)
		}
		opts = append(opts, telego.WithHTTPClient(&http.Client{
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		}))
	}

	bot, err := telego.NewBot(tgCfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &Channel{
		BaseChannel: channels.NewBaseChannel("telegram", msgBus, cfg, pairing),
		bot:         bot,
		cfg:         tgCfg,
		notices:     channels.NewNoticeLimiter(1.0 / 60), // one notice per sender per minute
		botMsgs:     newBotMessageTracker(botMessageWindow),
	}, nil
}

// Start begins long polling for updates, including reaction updates, which
// Telegram only delivers when explicitly requested in allowed_updates.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting telegram bot (polling mode)")

	pollCtx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel
	c.pollDone = make(chan struct{})

	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout: 30,
		AllowedUpdates: []string{
			"message",
			"edited_message",
			"message_reaction",
			"callback_query",
		},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}

	c.botUsername = c.bot.Username()
	c.SetRunning(true)
	slog.Info("telegram bot connected", "username", c.botUsername)

	go func() {
		defer close(c.pollDone)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					slog.Info("telegram updates channel closed")
					return
				}
				c.handleUpdate(pollCtx, update)
			}
		}
	}()

	return nil
}

// Stop cancels long polling and waits for the polling goroutine, so Telegram
// releases the getUpdates lock before another instance starts.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping telegram bot")
	c.SetRunning(false)

	if c.pollCancel != nil {
		c.pollCancel()
	}
	if c.pollDone != nil {
		select {
		case <-c.pollDone:
			slog.Info("telegram bot stopped")
		case <-time.After(10 * time.Second):
			slog.Warn("telegram polling goroutine did not exit within timeout")
		}
	}
	return nil
}

// Send delivers an outbound message, chunking at Telegram's length cap and
// recording sent message IDs for "own" reaction detection.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("telegram bot not running")
	}
	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("parse telegram chat ID %q: %w", msg.ChatID, err)
	}

	threadID := 0
	if tid := msg.Metadata["thread_id"]; tid != "" && tid != telegramGeneralTopicID {
		// General topic must be omitted from send params; Telegram rejects it.
		threadID, _ = strconv.Atoi(tid)
	}

	for _, chunk := range chunkText(msg.Content, textChunkLimit) {
		params := tu.Message(tu.ID(chatID), chunk)
		if threadID > 0 {
			params.MessageThreadID = threadID
		}
		sent, err := c.bot.SendMessage(ctx, params)
		if err != nil {
			return fmt.Errorf("send telegram message: %w", err)
		}
		c.botMsgs.Record(msg.ChatID, strconv.Itoa(sent.MessageID))
	}
	return nil
}

// sendNotice sends a rate-limited plain-text notice (deny replies, pairing
// codes). Failures are logged, never propagated: notices are best effort.
func (c *Channel) sendNotice(ctx context.Context, chatID int64, threadID int, senderID, text string) {
	if !c.notices.Allow(senderID) {
		return
	}
	params := tu.Message(tu.ID(chatID), text)
	if threadID > 0 && strconv.Itoa(threadID) != telegramGeneralTopicID {
		params.MessageThreadID = threadID
	}
	if _, err := c.bot.SendMessage(ctx, params); err != nil {
		slog.Warn("telegram notice send failed", "chat_id", chatID, "error", err)
	}
}

// chunkText splits text at the limit, preferring newline boundaries. The
// limit counts runes, not bytes: Telegram's cap is characters, and a byte cut
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

// botMessageTracker remembers which message IDs this bot sent, bounded FIFO,
// so reaction updates can tell "reaction to the bot's own message" apart
// from reactions to other users' messages.
type botMessageTracker struct {
	mu    sync.Mutex
	seen  map[string]bool
	order []string
	cap   int
}

func newBotMessageTracker(capacity int) *botMessageTracker {
	return &botMessageTracker{seen: make(map[string]bool), cap: capacity}
}

func (t *botMessageTracker) key(chatID, messageID string) string {
	return chatID + ":" + messageID
}

// Record notes a bot-sent message.
func (t *botMessageTracker) Record(chatID, messageID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := t.key(chatID, messageID)
	if t.seen[k] {
		return
	}
	t.seen[k] = true
	t.order = append(t.order, k)
	for len(t.order) > t.cap {
		delete(t.seen, t.order[0])
		t.order = t.order[1:]
	}
}

// IsBotMessage reports whether the bot sent the message.
func (t *botMessageTracker) IsBotMessage(chatID, messageID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seen[t.key(chatID, messageID)]
}
