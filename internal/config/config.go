package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds process settings read from the environment (and an optional .env file).
type Config struct {
	AppEnv   string
	LogLevel string
	HTTPAddr string

	DatabaseDSN string

	// RedisAddr empty means the hub runs single-instance with in-memory presence.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret string
	JWTTTL    time.Duration
	JWTIssuer string

	AllowOpenSignup bool
	DefaultLocale   string

	TelegramBotToken string

	ShutdownTimeout time.Duration
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// Load reads .env (if present) and the process environment and checks the
// settings the server cannot start without.
func Load() (*Config, error) {
	cfg := read()
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.JWTTTL <= 0 {
		return nil, errors.New("JWT_TTL must be positive")
	}
	return cfg, nil
}

// LoadForCLI reads the same settings as Load without requiring the token
// settings. Operator tools only talk to the database.
func LoadForCLI() *Config {
	return read()
}

func read() *Config {
	// .env is optional: in containers everything comes from the environment.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "production")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_DSN", "host=localhost user=user password=password dbname=campusskill port=5432 sslmode=disable")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("JWT_TTL", "168h")
	v.SetDefault("JWT_ISSUER", "campusskill")
	v.SetDefault("ALLOW_OPEN_SIGNUP", false)
	v.SetDefault("DEFAULT_LOCALE", "en")
	v.SetDefault("TELEGRAM_BOT_TOKEN", "")
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")

	return &Config{
		AppEnv:           v.GetString("APP_ENV"),
		LogLevel:         v.GetString("LOG_LEVEL"),
		HTTPAddr:         v.GetString("HTTP_ADDR"),
		DatabaseDSN:      v.GetString("DATABASE_DSN"),
		RedisAddr:        v.GetString("REDIS_ADDR"),
		RedisPassword:    v.GetString("REDIS_PASSWORD"),
		RedisDB:          v.GetInt("REDIS_DB"),
		JWTSecret:        v.GetString("JWT_SECRET"),
		JWTTTL:           v.GetDuration("JWT_TTL"),
		JWTIssuer:        v.GetString("JWT_ISSUER"),
		AllowOpenSignup:  v.GetBool("ALLOW_OPEN_SIGNUP"),
		DefaultLocale:    v.GetString("DEFAULT_LOCALE"),
		TelegramBotToken: v.GetString("TELEGRAM_BOT_TOKEN"),
		ShutdownTimeout:  v.GetDuration("SHUTDOWN_TIMEOUT"),
	}
}
