// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Telegram
	BotToken     string
	AdminChatID  int64 // 0 の場合はアラート通知を無効化する
	AlertEnabled bool

	// Portal
	PortalBaseURL    string
	PortalTimeout    time.Duration
	PortalMaxBody    int64
	CookieTTL        time.Duration
	MinLoginInterval time.Duration

	// Retry
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	RetryJitter      time.Duration

	// Notifications
	LeadMinutes     int
	DefaultTimezone string

	// Workers
	SyncMaxAge         time.Duration
	SyncInterval       time.Duration
	NotifyPollInterval time.Duration

	// Security
	CipherKey      string // base64エンコードされた32バイト鍵
	AllowPlaintext bool

	// Server
	ServerPort string

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.BotToken = os.Getenv("BOT_TOKEN")
	if cfg.BotToken == "" {
		missing = append(missing, "BOT_TOKEN")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// パスワード暗号鍵は必須。開発用に平文保存の逃げ道を用意する。
	cfg.CipherKey = os.Getenv("CIPHER_KEY")
	cfg.AllowPlaintext = getEnvBool("ALLOW_PLAINTEXT", false)
	if cfg.CipherKey == "" && !cfg.AllowPlaintext {
		return nil, fmt.Errorf("CIPHER_KEY is required unless ALLOW_PLAINTEXT=true")
	}

	// Optional fields with defaults
	cfg.AdminChatID = getEnvInt64("ADMIN_CHAT_ID", 0)
	cfg.AlertEnabled = cfg.AdminChatID != 0

	cfg.PortalBaseURL = getEnvString("PORTAL_BASE_URL", "https://lk.ssau.ru")
	cfg.PortalTimeout = getEnvDuration("PORTAL_TIMEOUT", 15*time.Second)
	cfg.PortalMaxBody = getEnvInt64("PORTAL_MAX_BODY", 5242880)
	cfg.CookieTTL = getEnvDuration("COOKIE_TTL", time.Hour)
	cfg.MinLoginInterval = getEnvDuration("MIN_LOGIN_INTERVAL", 10*time.Second)

	cfg.RetryMaxAttempts = getEnvInt("RETRY_MAX_ATTEMPTS", 3)
	cfg.RetryBaseDelay = getEnvDuration("RETRY_BASE_DELAY", 500*time.Millisecond)
	cfg.RetryMaxDelay = getEnvDuration("RETRY_MAX_DELAY", 5*time.Second)
	cfg.RetryJitter = getEnvDuration("RETRY_JITTER", 200*time.Millisecond)

	cfg.LeadMinutes = getEnvInt("LEAD_MINUTES", 15)
	cfg.DefaultTimezone = getEnvString("DEFAULT_TIMEZONE", "Europe/Samara")

	cfg.SyncMaxAge = getEnvDuration("SYNC_MAX_AGE", 12*time.Hour)
	cfg.SyncInterval = getEnvDuration("SYNC_INTERVAL", time.Hour)
	cfg.NotifyPollInterval = getEnvDuration("NOTIFY_POLL_INTERVAL", time.Minute)

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
