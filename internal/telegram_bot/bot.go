package telegram_bot

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"incidentmap/internal/config"
	"incidentmap/internal/models"
)

// sender is the part of tgbotapi.BotAPI the bot needs for announcements.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Bot announces confirmed reports to a Telegram chat.
type Bot struct {
	api    *tgbotapi.BotAPI
	sender sender
	chatID int64
	mapURL string
	logger *zap.Logger
	wg     sync.WaitGroup
}

// NewBot creates a new Telegram bot instance. It returns nil, nil when
// telegram is disabled.
func NewBot(cfg *config.Config, logger *zap.Logger) (*Bot, error) {
	if !cfg.Telegram.Enabled || cfg.Telegram.BotToken == "" {
		logger.Info("Telegram bot is disabled (telegram.enabled=false or token is empty)")
		return nil, nil
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot API: %w", err)
	}

	logger.Info("Telegram bot authorized", zap.String("username", botAPI.Self.UserName))

	return &Bot{
		api:    botAPI,
		sender: botAPI,
		chatID: cfg.Telegram.ChatID,
		mapURL: cfg.Telegram.MapURL,
		logger: logger,
	}, nil
}

// Start answers /start and /help so operators can look up the chat ID to
// put in telegram.chat_id.
func (b *Bot) Start(ctx context.Context) error {
	if b == nil || b.api == nil {
		return nil
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	b.logger.Info("Telegram bot started, waiting for updates...")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Telegram bot shutting down...")
			b.api.StopReceivingUpdates()
			return nil
		case update := <-updates:
			if update.Message != nil {
				b.handleMessage(update.Message)
			}
		}
	}
}

func (b *Bot) handleMessage(message *tgbotapi.Message) {
	if !message.IsCommand() {
		return
	}
	switch message.Command() {
	case "start", "help":
		b.sendMessage(message.Chat.ID,
			"I post incident reports once the community confirms them.\n\n"+
				"Chat ID for telegram.chat_id: "+strconv.FormatInt(message.Chat.ID, 10))
	default:
		b.sendMessage(message.Chat.ID, "Unknown command. Use /help.")
	}
}

// ReportConfirmed posts the report in the background; delivery errors are
// only logged.
func (b *Bot) ReportConfirmed(_ context.Context, report *models.ReportView) {
	if b == nil {
		return
	}
	text := b.confirmationText(report)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		msg := tgbotapi.NewMessage(b.chatID, text)
		msg.DisableWebPagePreview = true
		if _, err := b.sender.Send(msg); err != nil {
			b.logger.Error("Failed to send confirmation notification",
				zap.String("report_id", report.ID),
				zap.Int64("chat_id", b.chatID),
				zap.Error(err),
			)
			return
		}
		b.logger.Info("Confirmation notification sent", zap.String("report_id", report.ID))
	}()
}

// Wait blocks until every pending notification has been sent.
func (b *Bot) Wait() {
	if b == nil {
		return
	}
	b.wg.Wait()
}

func (b *Bot) confirmationText(r *models.ReportView) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "⚠️ Confirmed: %s\n\n", strings.ReplaceAll(string(r.Type), "_", " "))
	if r.Description != nil {
		fmt.Fprintf(&sb, "%s\n\n", *r.Description)
	}
	fmt.Fprintf(&sb, "Score: %.2f (%d confirm / %d deny)\n", r.Score, r.ConfirmCount, r.DenyCount)
	fmt.Fprintf(&sb, "Location: %.5f, %.5f\n", r.Latitude, r.Longitude)
	sb.WriteString(b.mapLink(r))
	return sb.String()
}

func (b *Bot) mapLink(r *models.ReportView) string {
	if b.mapURL == "" {
		return fmt.Sprintf("https://www.google.com/maps?q=%f,%f", r.Latitude, r.Longitude)
	}
	u, err := url.Parse(b.mapURL)
	if err != nil {
		return b.mapURL
	}
	q := u.Query()
	q.Set("report", r.ID)
	u.RawQuery = q.Encode()
	return u.String()
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
