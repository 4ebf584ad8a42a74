// Package config は環境変数からのアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// ClickUp OAuth
	ClickUpClientID     string
	ClickUpClientSecret string
	ClickUpRedirectURL  string
	ClickUpAPIBase      string

	// Secrets
	SessionSecret string
	EncryptionKey string // AES-256用の32バイト鍵

	// Storage
	// DatabaseURLが空の場合は耐久ストレージなし（インメモリのみ）で起動する。
	DatabaseURL     string
	KVSweepInterval time.Duration

	// Sync
	SyncMaxConcurrent int
	SyncDeepTraversal bool

	// Rate Limit
	// RateLimitGeneralは15分窓、RateLimitSyncは1分窓あたりの許容リクエスト数。
	RateLimitGeneral int
	RateLimitSync    int

	// Server
	ServerPort string
	AppURL     string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.ClickUpClientID = os.Getenv("CLICKUP_CLIENT_ID")
	if cfg.ClickUpClientID == "" {
		missing = append(missing, "CLICKUP_CLIENT_ID")
	}

	cfg.ClickUpClientSecret = os.Getenv("CLICKUP_CLIENT_SECRET")
	if cfg.ClickUpClientSecret == "" {
		missing = append(missing, "CLICKUP_CLIENT_SECRET")
	}

	cfg.ClickUpRedirectURL = os.Getenv("CLICKUP_REDIRECT_URL")
	if cfg.ClickUpRedirectURL == "" {
		missing = append(missing, "CLICKUP_REDIRECT_URL")
	}

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}

	cfg.EncryptionKey = os.Getenv("ENCRYPTION_KEY")
	if cfg.EncryptionKey == "" {
		missing = append(missing, "ENCRYPTION_KEY")
	}

	cfg.AppURL = os.Getenv("APP_URL")
	if cfg.AppURL == "" {
		missing = append(missing, "APP_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// アクセストークン暗号化はAES-256のため鍵長は32バイト固定
	if len(cfg.EncryptionKey) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes, got %d", len(cfg.EncryptionKey))
	}

	// Optional fields with defaults
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.ClickUpAPIBase = getEnvString("CLICKUP_API_BASE", "https://api.clickup.com/api/v2")
	cfg.KVSweepInterval = getEnvDuration("KV_SWEEP_INTERVAL", 10*time.Minute)
	cfg.SyncMaxConcurrent = getEnvInt("SYNC_MAX_CONCURRENT", 4)
	cfg.SyncDeepTraversal = getEnvBool("SYNC_DEEP_TRAVERSAL", false)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 100)
	cfg.RateLimitSync = getEnvInt("RATE_LIMIT_SYNC", 6)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", cfg.AppURL)

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

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return defaultVal
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
