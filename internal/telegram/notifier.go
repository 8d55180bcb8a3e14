// Package telegram delivers task notifications to users who are not connected
// to the realtime hub, through a Telegram bot linked to their account.
package telegram

import (
	"campusskill/backend/internal/localization"
	"campusskill/backend/internal/logger"
	"campusskill/backend/internal/models"
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Sender is the part of *tgbotapi.BotAPI the notifier needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// UserLookup resolves the Telegram chat linked to a user. storage.Storage implements it.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

// Notifier sends notifications as Telegram messages. Users without a linked
// chat are skipped.
type Notifier struct {
	Bot   Sender
	Users UserLookup
	Texts *localization.Localizer
	Lang  string
	Log   *zap.Logger
}

func NewNotifier(bot Sender, users UserLookup, texts *localization.Localizer, lang string, log *zap.Logger) *Notifier {
	return &Notifier{
		Bot:   bot,
		Users: users,
		Texts: texts,
		Lang:  lang,
		Log:   logger.OrNop(log),
	}
}

// NewBotAPI authorizes token against the Telegram API.
func NewBotAPI(token string, log *zap.Logger) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: authorize bot: %w", err)
	}
	bot.Debug = false
	logger.OrNop(log).Info("telegram bot authorized", zap.String("account", bot.Self.UserName))
	return bot, nil
}

// Notify implements chathub.OfflineNotifier.
func (n *Notifier) Notify(ctx context.Context, userID string, note models.Notification) error {
	user, err := n.Users.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.TelegramChatID == nil || *user.TelegramChatID == 0 {
		return nil
	}

	msg := tgbotapi.NewMessage(*user.TelegramChatID, n.render(note))
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := n.Bot.Send(msg); err != nil {
		return fmt.Errorf("telegram: send to user %s: %w", userID, err)
	}
	n.Log.Debug("telegram notification sent", zap.String("user_id", userID), zap.String("type", string(note.Type)))
	return nil
}

func (n *Notifier) render(note models.Notification) string {
	header := n.Texts.GetString(n.Lang, "telegram.header")
	return "*" + escapeMarkdown(header) + "*\n" + escapeMarkdown(note.Message)
}

var markdownEscaper = strings.NewReplacer(
	"_", "\\_",
	"*", "\\*",
	"`", "\\`",
	"[", "\\[",
)

// escapeMarkdown escapes the characters legacy Markdown mode treats as markup.
func escapeMarkdown(text string) string {
	return markdownEscaper.Replace(text)
}
