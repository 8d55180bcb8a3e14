package main

import (
	"campusskill/backend/internal/api/handler"
	"campusskill/backend/internal/auth"
	"campusskill/backend/internal/chat"
	"campusskill/backend/internal/chathub"
	"campusskill/backend/internal/config"
	"campusskill/backend/internal/engine"
	"campusskill/backend/internal/ledger"
	"campusskill/backend/internal/localization"
	"campusskill/backend/internal/logger"
	"campusskill/backend/internal/storage"
	"campusskill/backend/internal/telegram"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	opts := []fx.Option{
		fx.Provide(
			config.Load,
			logger.New,
			provideDB,
			provideRedis,
			provideStorage,
			provideBot,
			localization.NewLocalizer,
			ledger.New,
			chat.NewManager,
			provideHub,
			provideEngine,
			provideIssuer,
			provideHandler,
			provideHTTPServer,
		),
		fx.Invoke(
			runHub,
			runTelegramCommands,
			runHTTPServer,
		),
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)
	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, log *zap.Logger) fxevent.Logger {
	if cfg.IsDevelopment() {
		return &fxevent.ZapLogger{Logger: log}
	}
	return fxevent.NopLogger
})

func provideDB(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	db, err := storage.Open(cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	log.Info("database connected, migrations complete")

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})
	return db, nil
}

// provideRedis returns nil when REDIS_ADDR is empty; the hub then stays
// single-instance.
func provideRedis(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*redis.Client, error) {
	if cfg.RedisAddr == "" {
		log.Info("redis disabled, hub runs single-instance")
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return rdb.Close() },
	})
	return rdb, nil
}

func provideStorage(db *gorm.DB, rdb *redis.Client) storage.Storage {
	return storage.NewStorageService(db, rdb)
}

// provideBot returns nil when TELEGRAM_BOT_TOKEN is empty.
func provideBot(cfg *config.Config, log *zap.Logger) (*tgbotapi.BotAPI, error) {
	if cfg.TelegramBotToken == "" {
		log.Info("telegram notifications disabled")
		return nil, nil
	}
	return telegram.NewBotAPI(cfg.TelegramBotToken, log)
}

func provideHub(
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	store storage.Storage,
	chats *chat.Manager,
	texts *localization.Localizer,
	bot *tgbotapi.BotAPI,
) *chathub.ManagerService {
	opts := []chathub.Option{
		chathub.WithLogger(log),
		chathub.WithRoomGuard(chats),
	}
	if rdb != nil {
		opts = append(opts,
			chathub.WithBus(storage.NewRedisBus(rdb, log)),
			chathub.WithPresence(chathub.NewRedisPresence(rdb)),
		)
	}
	if bot != nil {
		opts = append(opts, chathub.WithOfflineNotifier(
			telegram.NewNotifier(bot, store, texts, cfg.DefaultLocale, log),
		))
	}
	return chathub.NewManagerService(opts...)
}

func provideEngine(
	cfg *config.Config,
	log *zap.Logger,
	store storage.Storage,
	l *ledger.Ledger,
	chats *chat.Manager,
	hub *chathub.ManagerService,
	texts *localization.Localizer,
) *engine.Engine {
	e := engine.New(store, l, chats, hub, texts, log)
	e.Lang = cfg.DefaultLocale
	return e
}

func provideIssuer(cfg *config.Config) *auth.Issuer {
	return auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL, cfg.JWTIssuer)
}

func provideHandler(
	cfg *config.Config,
	log *zap.Logger,
	store storage.Storage,
	eng *engine.Engine,
	l *ledger.Ledger,
	chats *chat.Manager,
	hub *chathub.ManagerService,
	issuer *auth.Issuer,
) *handler.Handler {
	return handler.NewHandler(store, eng, l, chats, hub, issuer, cfg.AllowOpenSignup, log)
}

func provideHTTPServer(h *handler.Handler, cfg *config.Config) *http.Server {
	return &http.Server{
		Addr:           cfg.HTTPAddr,
		Handler:        handler.NewRouter(h),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
}

// runHub runs the hub loop for the lifetime of the app.
func runHub(lc fx.Lifecycle, hub *chathub.ManagerService, log *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				if err := hub.Run(ctx); err != nil {
					log.Error("hub stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

func runTelegramCommands(lc fx.Lifecycle, bot *tgbotapi.BotAPI, cfg *config.Config, texts *localization.Localizer, log *zap.Logger) {
	if bot == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	commands := telegram.NewCommands(bot, texts, cfg.DefaultLocale, log)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go commands.Run(ctx, bot)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func runHTTPServer(lc fx.Lifecycle, srv *http.Server, cfg *config.Config, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				log.Info("starting HTTP server", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("HTTP server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down HTTP server")
			ctx, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	})
}
