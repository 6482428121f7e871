package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"polymath/pkg/api"
	"polymath/pkg/chat"
	"polymath/pkg/llm"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramConfig encapsulates the credentials required to authenticate with
// the Telegram Bot API.
type TelegramConfig struct {
	Token        string  `json:"token"`         // The secret BOT API string provided by @BotFather
	AllowedChats []int64 `json:"allowed_chats"` // Empty means every chat may talk to the bot
	Disabled     bool    `json:"disabled"`
}

// TelegramChannel exposes the assistant as a Telegram bot. Each chat is one
// session; the API key is given with /key and the message holding it is
// deleted right away.
type TelegramChannel struct {
	config       TelegramConfig
	bot          *tgbotapi.BotAPI
	messageLimit int
	allowed      map[int64]bool
	stopCtx      context.Context    // Context used to forcibly abort the long-polling HTTP request
	stopCancel   context.CancelFunc // Function to trigger the abort
}

func NewTelegramChannel(cfg TelegramConfig, msgLimit int) (*TelegramChannel, error) {
	ctx, cancel := context.WithCancel(context.Background())

	// Tie every dial to stopCtx so Stop aborts the in-flight long poll and a
	// reloaded bot does not hit a 409 Conflict.
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	botHttpClient := &http.Client{
		Timeout: 90 * time.Second,
		Transport: &http.Transport{
			DialContext: func(dialCtx context.Context, network, addr string) (net.Conn, error) {
				mergedCtx, mergedCancel := context.WithCancel(dialCtx)
				go func() {
					select {
					case <-ctx.Done():
						mergedCancel()
					case <-mergedCtx.Done():
					}
				}()
				return dialer.DialContext(mergedCtx, network, addr)
			},
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}

	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, tgbotapi.APIEndpoint, botHttpClient)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	slog.Info("Telegram bot authorized", "username", bot.Self.UserName)

	allowed := make(map[int64]bool, len(cfg.AllowedChats))
	for _, id := range cfg.AllowedChats {
		allowed[id] = true
	}

	return &TelegramChannel{
		config:       cfg,
		bot:          bot,
		messageLimit: msgLimit,
		allowed:      allowed,
		stopCtx:      ctx,
		stopCancel:   cancel,
	}, nil
}

// ID returns the unique platform identifier "telegram".
func (t *TelegramChannel) ID() string {
	return "telegram"
}

// Start initiates the long-polling update loop in a background goroutine.
func (t *TelegramChannel) Start(ctx api.ChannelContext) error {
	go t.poll(ctx)
	return nil
}

func (t *TelegramChannel) poll(ctx api.ChannelContext) {
	offset := 0
	for {
		select {
		case <-t.stopCtx.Done():
			return
		default:
		}

		reqConfig := tgbotapi.NewUpdate(offset)
		reqConfig.Timeout = 60

		updates, err := t.bot.GetUpdates(reqConfig)
		if err != nil {
			select {
			case <-t.stopCtx.Done():
				return
			default:
				slog.Debug("Failed to get telegram updates", "error", err)
				time.Sleep(3 * time.Second)
				continue
			}
		}

		for _, update := range updates {
			if update.UpdateID < offset {
				continue
			}
			offset = update.UpdateID + 1
			if update.Message == nil || update.Message.From == nil {
				continue
			}
			t.dispatch(ctx, update.Message)
		}
	}
}

func (t *TelegramChannel) dispatch(ctx api.ChannelContext, m *tgbotapi.Message) {
	if len(t.allowed) > 0 && !t.allowed[m.Chat.ID] {
		slog.Warn("Ignoring message from chat not allowed", "chat", m.Chat.ID)
		return
	}

	chatID := strconv.FormatInt(m.Chat.ID, 10)
	session := api.SessionContext{
		ChannelID: t.ID(),
		SessionID: "tg:" + chatID,
		UserID:    strconv.FormatInt(m.From.ID, 10),
		ChatID:    chatID,
		Username:  m.From.UserName,
	}

	kind, content := command(m.Text)
	if kind == api.KindCredential {
		// The key must not linger in the chat.
		if _, err := t.bot.Request(tgbotapi.NewDeleteMessage(m.Chat.ID, m.MessageID)); err != nil {
			slog.Debug("Could not delete key message", "chat", chatID, "error", err)
		}
	}

	ctx.OnMessage(t.ID(), &api.UnifiedMessage{
		Session: session,
		Kind:    kind,
		Content: content,
		Raw:     m,
	})
}

// SendSignal implements the api.SignalingChannel interface
func (t *TelegramChannel) SendSignal(session api.SessionContext, signal string) error {
	if signal != api.SignalThinking {
		return nil
	}
	chatID, err := strconv.ParseInt(session.ChatID, 10, 64)
	if err != nil {
		return err
	}
	_, err = t.bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
	return err
}

func (t *TelegramChannel) Stop() error {
	t.stopCancel()

	if httpClient, ok := t.bot.Client.(*http.Client); ok && httpClient != nil {
		if transport, ok := httpClient.Transport.(*http.Transport); ok {
			transport.CloseIdleConnections()
		}
	}
	return nil
}

// Send delivers text, split into several messages when it exceeds the limit.
func (t *TelegramChannel) Send(session api.SessionContext, message string) error {
	chatID, err := strconv.ParseInt(session.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id for telegram: %s", session.ChatID)
	}
	if strings.TrimSpace(message) == "" {
		return nil
	}

	for i, part := range splitMessage(message, t.messageLimit) {
		if _, err := t.bot.Send(tgbotapi.NewMessage(chatID, part)); err != nil {
			return fmt.Errorf("telegram send failed at part %d: %w", i, err)
		}
	}
	return nil
}

// SendRecord posts assistant records. User records are the user's own
// messages and are already visible in the chat.
func (t *TelegramChannel) SendRecord(session api.SessionContext, record chat.Record) error {
	if record.Role != chat.RoleAssistant {
		return nil
	}
	return t.Send(session, record.Content)
}

func (t *TelegramChannel) SendHistory(session api.SessionContext, records []chat.Record) error {
	return t.Send(session, formatHistory(records))
}

// Stream collects the agent's thoughts and posts them as one message once
// the run is over, since Telegram has no cheap mid-message updates.
func (t *TelegramChannel) Stream(session api.SessionContext, blocks <-chan llm.ContentBlock) error {
	var thinkingBuf strings.Builder
	for block := range blocks {
		thinkingBuf.WriteString(block.Text)
	}
	if thinkingBuf.Len() == 0 {
		return nil
	}
	return t.Send(session, "💭 Reasoning process:\n\n"+strings.TrimSpace(thinkingBuf.String()))
}
