package telegram

import (
	"campusskill/backend/internal/localization"
	"campusskill/backend/internal/logger"
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// UpdateSource is the polling side of *tgbotapi.BotAPI.
type UpdateSource interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Commands answers bot commands. /start replies with the chat id the user
// has to link to their profile; everything else gets a short hint.
type Commands struct {
	Bot   Sender
	Texts *localization.Localizer
	Lang  string
	Log   *zap.Logger
}

func NewCommands(bot Sender, texts *localization.Localizer, lang string, log *zap.Logger) *Commands {
	return &Commands{Bot: bot, Texts: texts, Lang: lang, Log: logger.OrNop(log)}
}

// Run polls src until ctx is cancelled.
func (c *Commands) Run(ctx context.Context, src UpdateSource) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := src.GetUpdatesChan(u)
	defer src.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			c.Handle(update)
		}
	}
}

// Handle processes one update. Only private command messages are answered.
func (c *Commands) Handle(update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Chat.ID == 0 || !msg.IsCommand() {
		return
	}

	chatID := msg.Chat.ID
	var text string
	switch msg.Command() {
	case "start":
		text = c.Texts.Format(c.Lang, "telegram.start", chatID)
	default:
		text = c.Texts.GetString(c.Lang, "telegram.unknown_command")
	}

	if _, err := c.Bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		c.Log.Warn("telegram reply failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
