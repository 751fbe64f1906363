// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// セッションの保存先
const (
	SessionBackendCookie = "cookie"
	SessionBackendRedis  = "redis"
	SessionBackendMemory = "memory"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// 認証設定
	AppUsername      string // 固定ユーザー名（APP_PASSWORD_HASH と組で使用）
	AppPasswordHash  string // bcryptでハッシュ化されたパスワード（空ならモック認証）
	AdminStaticToken string // トークンログインで有効な唯一のトークン
	SessionSecret    string // セッション署名用の秘密鍵
	SessionBackend   string // cookie / redis / memory
	SessionTTLHours  int    // セッションの保持期間（時間）
	AuthLatencyMS    int    // 認証処理に挟む疑似レイテンシ（ミリ秒）
	RedirectDelayMS  int    // 未認証時にログインへ遷移するまでの待ち時間（ミリ秒）

	// ナビゲーション
	LoginRoute     string
	DashboardRoute string
	FallbackRoute  string

	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// Redis / 監査ログ設定
	RedisURL        string // セッション・監査ログ用Redis接続URL
	AuditEnabled    bool   // 監査ログを非同期で記録するか
	AuditMaxEntries int    // Redisに残す監査ログの件数
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	loadEnvFile()

	config := &Config{
		AppUsername:      getEnv("APP_USERNAME", ""),
		AppPasswordHash:  getEnv("APP_PASSWORD_HASH", ""),
		AdminStaticToken: getEnv("ADMIN_STATIC_TOKEN", "admin-token-123"),
		SessionSecret:    getEnv("SESSION_SECRET", ""),
		SessionBackend:   strings.ToLower(getEnv("SESSION_BACKEND", SessionBackendCookie)),
		SessionTTLHours:  getEnvAsInt("SESSION_TTL_HOURS", 12),
		AuthLatencyMS:    getEnvAsInt("AUTH_LATENCY_MS", 500),
		RedirectDelayMS:  getEnvAsInt("REDIRECT_DELAY_MS", 2000),

		LoginRoute:     getEnv("LOGIN_ROUTE", "/login"),
		DashboardRoute: getEnv("DASHBOARD_ROUTE", "/dashboard"),
		FallbackRoute:  getEnv("FALLBACK_ROUTE", "/dashboard"),

		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),

		RedisURL:        getEnv("REDIS_URL", "redis://127.0.0.1:6379/0"),
		AuditEnabled:    getEnvAsBool("AUDIT_ENABLED", false),
		AuditMaxEntries: getEnvAsInt("AUDIT_MAX_ENTRIES", 1000),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	switch c.SessionBackend {
	case SessionBackendCookie, SessionBackendRedis, SessionBackendMemory:
	default:
		return fmt.Errorf("SESSION_BACKEND must be one of cookie, redis, memory: %q", c.SessionBackend)
	}
	if c.AdminStaticToken == "" {
		return fmt.Errorf("ADMIN_STATIC_TOKEN must not be empty")
	}
	if c.AppPasswordHash != "" && c.AppUsername == "" {
		return fmt.Errorf("APP_USERNAME is required when APP_PASSWORD_HASH is set")
	}
	if (c.SessionBackend == SessionBackendRedis || c.AuditEnabled) && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required for redis sessions and audit logging")
	}

	// ローカル開発では秘密鍵は任意
	// 本番環境では厳格にチェックする想定
	if c.GinMode == "release" {
		if c.SessionSecret == "" {
			return fmt.Errorf("SESSION_SECRET is required in release mode")
		}
		if len(c.SessionSecret) < 32 {
			return fmt.Errorf("SESSION_SECRET must be at least 32 characters in release mode")
		}
	}

	return nil
}

// SessionTTL はセッションの保持期間を返します。
func (c *Config) SessionTTL() time.Duration {
	if c.SessionTTLHours <= 0 {
		return 12 * time.Hour
	}
	return time.Duration(c.SessionTTLHours) * time.Hour
}

// AuthLatency は認証処理の疑似レイテンシを返します。
func (c *Config) AuthLatency() time.Duration {
	if c.AuthLatencyMS <= 0 {
		return 0
	}
	return time.Duration(c.AuthLatencyMS) * time.Millisecond
}

// RedirectDelay はアクセス制限表示からログイン遷移までの待ち時間を返します。
func (c *Config) RedirectDelay() time.Duration {
	if c.RedirectDelayMS <= 0 {
		return 0
	}
	return time.Duration(c.RedirectDelayMS) * time.Millisecond
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool は環境変数を真偽値として取得します。
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
