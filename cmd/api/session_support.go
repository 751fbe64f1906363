package main

import (
	"fmt"
	"log"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/estate-admin/internal/auth"
	"github.com/yourusername/estate-admin/internal/config"
	"github.com/yourusername/estate-admin/internal/session"
)

// sessionStorage は SESSION_BACKEND に応じた保存先の取得方法を返します。
// redis / memory の場合、Cookie にはクライアントIDだけを保存します。
func sessionStorage(cfg *config.Config, rdb *redis.Client) auth.StorageFunc {
	switch cfg.SessionBackend {
	case config.SessionBackendRedis:
		ttl := cfg.SessionTTL()
		return func(c *gin.Context) (session.Storage, error) {
			id, err := session.ClientID(sessions.Default(c))
			if err != nil {
				return nil, fmt.Errorf("failed to issue client id: %w", err)
			}
			return session.NewRedisStorage(rdb, id, ttl), nil
		}
	case config.SessionBackendMemory:
		pool := session.NewMemoryPool(cfg.SessionTTL())
		return func(c *gin.Context) (session.Storage, error) {
			id, err := session.ClientID(sessions.Default(c))
			if err != nil {
				return nil, fmt.Errorf("failed to issue client id: %w", err)
			}
			return pool.Get(id), nil
		}
	default:
		return auth.CookieStorageFunc
	}
}

// newAuthenticator は APP_PASSWORD_HASH の有無で認証方式を選びます。
func newAuthenticator(cfg *config.Config) (auth.Authenticator, error) {
	tokens, err := auth.NewTokenIssuer(cfg.SessionSecret)
	if err != nil {
		return nil, err
	}
	if cfg.AppPasswordHash != "" {
		return &auth.StaticAuthenticator{
			ValidToken:   cfg.AdminStaticToken,
			Username:     cfg.AppUsername,
			PasswordHash: cfg.AppPasswordHash,
			Role:         auth.RoleSuperAdmin,
			Tokens:       tokens,
		}, nil
	}
	if cfg.GinMode == gin.ReleaseMode {
		log.Printf("WARNING: APP_PASSWORD_HASH is not set in release mode; using the mock authenticator with ADMIN_STATIC_TOKEN")
	}
	return &auth.MockAuthenticator{
		ValidToken: cfg.AdminStaticToken,
		Latency:    cfg.AuthLatency(),
		Tokens:     tokens,
	}, nil
}
