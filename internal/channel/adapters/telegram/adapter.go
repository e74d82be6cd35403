// Package telegram connects the assistant to Telegram via long polling and
// normalizes updates into channel messages for the router.
package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/donnahq/donna/internal/channel"
	"github.com/donnahq/donna/internal/users"
)

// maxDownloadBytes caps per-attachment downloads from Telegram's file API.
const maxDownloadBytes = 20 * 1024 * 1024

// Dispatcher routes normalized messages and clears conversations.
type Dispatcher interface {
	Route(ctx context.Context, msg channel.InboundMessage) string
	ClearUserSession(userID string)
}

// UserResolver maps a Telegram sender onto an internal user.
type UserResolver interface {
	GetOrCreateByTelegramID(ctx context.Context, telegramID int64, displayName string) (users.User, error)
}

// Adapter is the Telegram channel: one bot, long polling, synchronous
// per-update handling fanned out to goroutines.
type Adapter struct {
	bot        *tgbotapi.BotAPI
	dispatcher Dispatcher
	resolver   UserResolver
	httpClient *http.Client
	logger     *slog.Logger
	cancel     context.CancelFunc
}

// New creates the adapter from a bot token.
func New(log *slog.Logger, token string, dispatcher Dispatcher, resolver UserResolver) (*Adapter, error) {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Adapter{
		bot:        bot,
		dispatcher: dispatcher,
		resolver:   resolver,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     log.With(slog.String("adapter", "telegram")),
	}, nil
}

// Start begins long polling. It returns immediately; updates are consumed
// on a background goroutine until Stop or ctx cancellation.
func (a *Adapter) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 30
	updates := a.bot.GetUpdatesChan(updateConfig)

	pollCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.logger.Info("long polling started", slog.String("bot", a.bot.Self.UserName))
	go func() {
		for {
			select {
			case <-pollCtx.Done():
				a.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					a.logger.Info("updates channel closed")
					return
				}
				if update.Message == nil {
					continue
				}
				go a.handleUpdate(pollCtx, update.Message)
			}
		}
	}()
	return nil
}

// Stop halts long polling.
func (a *Adapter) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	a.bot.StopReceivingUpdates()
	a.logger.Info("stopped")
}

// Send delivers a reply to a Telegram chat id.
func (a *Adapter) Send(ctx context.Context, channelUserID, text string) error {
	chatID, err := strconv.ParseInt(channelUserID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram target must be a chat id: %w", err)
	}
	_, err = a.bot.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

func (a *Adapter) handleUpdate(ctx context.Context, m *tgbotapi.Message) {
	if m.From == nil || m.From.IsBot {
		return
	}
	user, err := a.resolver.GetOrCreateByTelegramID(ctx, m.From.ID, senderDisplayName(m.From))
	if err != nil {
		a.logger.Error("resolve sender failed",
			slog.Int64("telegram_id", m.From.ID),
			slog.Any("error", err),
		)
		return
	}
	chatID := strconv.FormatInt(m.Chat.ID, 10)

	text := strings.TrimSpace(m.Text)
	if text == "" {
		text = strings.TrimSpace(m.Caption)
	}

	// /new discards the running conversation.
	if text == "/new" || text == "/start" {
		a.dispatcher.ClearUserSession(user.ID)
		a.reply(ctx, chatID, "Starting a fresh conversation.")
		return
	}

	msg := channel.InboundMessage{
		Channel:       channel.ChannelTelegram,
		UserID:        user.ID,
		ChannelUserID: chatID,
		ContentType:   channel.ContentText,
		Text:          text,
		Raw:           m,
		ReceivedAt:    time.Unix(int64(m.Date), 0).UTC(),
	}
	a.collectAttachments(ctx, m, &msg)
	if msg.Text == "" && len(msg.Attachments) == 0 {
		return
	}

	a.logger.Info("inbound received",
		slog.String("user_id", user.ID),
		slog.String("chat_id", chatID),
		slog.String("content_type", string(msg.ContentType)),
	)

	reply := a.dispatcher.Route(ctx, msg)
	a.reply(ctx, chatID, reply)
}

func (a *Adapter) reply(ctx context.Context, chatID, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	if err := a.Send(ctx, chatID, text); err != nil {
		a.logger.Error("send reply failed",
			slog.String("chat_id", chatID),
			slog.Any("error", err),
		)
	}
}

// collectAttachments downloads photo and voice payloads and sets the
// message content type accordingly. Other media kinds are left as text-only
// messages.
func (a *Adapter) collectAttachments(ctx context.Context, m *tgbotapi.Message, msg *channel.InboundMessage) {
	if len(m.Photo) > 0 {
		photo := bestPhoto(m.Photo)
		if data, err := a.download(ctx, photo.FileID); err == nil {
			msg.ContentType = channel.ContentImage
			msg.Attachments = append(msg.Attachments, channel.Attachment{
				Data: data,
				Mime: "image/jpeg",
			})
		} else {
			a.logger.Warn("photo download failed", slog.Any("error", err))
		}
	}
	if m.Voice != nil {
		if data, err := a.download(ctx, m.Voice.FileID); err == nil {
			mime := m.Voice.MimeType
			if mime == "" {
				mime = "audio/ogg"
			}
			msg.ContentType = channel.ContentVoice
			msg.Attachments = append(msg.Attachments, channel.Attachment{
				Data: data,
				Mime: mime,
			})
		} else {
			a.logger.Warn("voice download failed", slog.Any("error", err))
		}
	}
	if m.Document != nil {
		if data, err := a.download(ctx, m.Document.FileID); err == nil {
			msg.ContentType = channel.ContentFile
			msg.Attachments = append(msg.Attachments, channel.Attachment{
				Data: data,
				Mime: m.Document.MimeType,
				Name: m.Document.FileName,
			})
		} else {
			a.logger.Warn("document download failed", slog.Any("error", err))
		}
	}
}

func (a *Adapter) download(ctx context.Context, fileID string) ([]byte, error) {
	url, err := a.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("resolve file url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
}

func senderDisplayName(from *tgbotapi.User) string {
	name := strings.TrimSpace(from.UserName)
	if name == "" {
		name = strings.TrimSpace(strings.TrimSpace(from.FirstName + " " + from.LastName))
	}
	return name
}

func bestPhoto(items []tgbotapi.PhotoSize) tgbotapi.PhotoSize {
	best := items[0]
	for _, item := range items[1:] {
		if item.FileSize > best.FileSize {
			best = item
			continue
		}
		if item.Width*item.Height > best.Width*best.Height {
			best = item
		}
	}
	return best
}
