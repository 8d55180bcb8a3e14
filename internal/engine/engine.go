// Package engine implements the task lifecycle: create, take, submit, review,
// reassign and delete. Every operation runs in one store transaction and
// writes the task status conditionally on the status it read. Notifications
// are sent after commit and are best-effort.
package engine

import (
	"campusskill/backend/internal/chat"
	"campusskill/backend/internal/ledger"
	"campusskill/backend/internal/localization"
	"campusskill/backend/internal/logger"
	"campusskill/backend/internal/models"
	"campusskill/backend/internal/storage"
	"context"
	"time"

	"go.uber.org/zap"
)

// Notifier delivers realtime side effects of committed transitions.
type Notifier interface {
	NotifyUser(ctx context.Context, userID string, n models.Notification)
	RelayMessage(ctx context.Context, roomID string, msg *models.Message)
}

type nopNotifier struct{}

func (nopNotifier) NotifyUser(context.Context, string, models.Notification) {}
func (nopNotifier) RelayMessage(context.Context, string, *models.Message)   {}

type Engine struct {
	Store    storage.Storage
	Ledger   *ledger.Ledger
	Chat     *chat.Manager
	Notifier Notifier
	Texts    *localization.Localizer
	// Lang selects the language of stored system messages and notifications.
	Lang string
	Log  *zap.Logger
	Now  func() time.Time
}

func New(store storage.Storage, l *ledger.Ledger, c *chat.Manager, n Notifier, texts *localization.Localizer, log *zap.Logger) *Engine {
	if n == nil {
		n = nopNotifier{}
	}
	return &Engine{
		Store:    store,
		Ledger:   l,
		Chat:     c,
		Notifier: n,
		Texts:    texts,
		Lang:     localization.DefaultLanguage,
		Log:      logger.OrNop(log),
		Now:      time.Now,
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) text(key string, args ...any) string {
	return e.Texts.Format(e.Lang, key, args...)
}

func (e *Engine) notifier() Notifier {
	if e.Notifier == nil {
		return nopNotifier{}
	}
	return e.Notifier
}

// relay forwards engine narration to the room's live connections.
func (e *Engine) relay(ctx context.Context, msg *models.Message) {
	if msg == nil {
		return
	}
	e.notifier().RelayMessage(ctx, msg.RoomID, msg)
}
