// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/estate-admin/internal/audit"
	"github.com/yourusername/estate-admin/internal/auth"
	"github.com/yourusername/estate-admin/internal/config"
	"github.com/yourusername/estate-admin/internal/guard"
	"github.com/yourusername/estate-admin/internal/metrics"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()

	// セッションストアの設定
	secret := cfg.SessionSecret
	if secret == "" {
		log.Printf("SESSION_SECRET is empty; using an insecure development key")
		secret = "estate-admin-insecure-development-key"
	}
	store := cookie.NewStore([]byte(secret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.SessionTTL().Seconds()),
		HttpOnly: true,
		Secure:   cfg.GinMode == gin.ReleaseMode,
		SameSite: http.SameSiteStrictMode,
	})
	router.Use(sessions.Sessions(auth.SessionCookieName, store))

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	// CORS許可オリジンを設定（カンマ区切りの文字列を配列に変換）
	origins := strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowOrigins = origins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization",
		"X-CSRF-Token", // CSRF保護用ヘッダー
	}
	// フロントエンドがレスポンスヘッダーから CSRF トークンを読み取れるように公開
	corsConfig.ExposeHeaders = []string{"X-CSRF-Token"}
	router.Use(cors.New(corsConfig))

	// Redis はセッション保存先または監査ログで使う場合のみ接続する
	var rdb *redis.Client
	if cfg.SessionBackend == config.SessionBackendRedis || cfg.AuditEnabled {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to parse REDIS_URL: %v", err)
		}
		rdb = redis.NewClient(opt)
		defer rdb.Close()
	}

	auditManager, err := setupAudit(cfg, rdb)
	if err != nil {
		log.Fatalf("Failed to initialize audit log: %v", err)
	}
	if auditManager != nil {
		auditManager.StartWorkers()
	}

	// メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// ルーティングの設定
	if err := setupRoutes(router, cfg, rdb, auditManager, m); err != nil {
		log.Fatalf("Failed to set up routes: %v", err)
	}

	// サーバーの起動
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := ":" + cfg.Port
	srv := &http.Server{Addr: addr, Handler: router}
	go func() {
		log.Printf("Starting API server on %s (mode: %s, sessions: %s)", addr, cfg.GinMode, cfg.SessionBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("Shutting down API server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	if auditManager != nil {
		if err := auditManager.Shutdown(shutdownCtx); err != nil {
			log.Printf("Audit shutdown error: %v", err)
		}
	}
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "estate-admin-api",
		"version": "0.1.0",
	})
}

// setupRoutes は API グループと認証周りの配線を行います。
func setupRoutes(router *gin.Engine, cfg *config.Config, rdb *redis.Client, auditManager *audit.Manager, m *metrics.Metrics) error {
	// まずは誰でも叩けるヘルスチェックを登録
	router.GET("/health", handleHealth)

	authn, err := newAuthenticator(cfg)
	if err != nil {
		return err
	}

	opts := auth.Options{
		Authenticator: authn,
		Storage:       sessionStorage(cfg, rdb),
		Metrics:       m,
		Logger:        log.Default(),
	}
	// nil の *audit.Manager をインターフェースに入れないように分岐する
	if auditManager != nil {
		opts.Auditor = auditManager
	}
	authManager := auth.NewManager(cfg, opts)

	gate := guard.NewGate(authManager, guard.GateOptions{
		Metrics:       m,
		LoginRoute:    cfg.LoginRoute,
		FallbackRoute: cfg.FallbackRoute,
		RedirectDelay: cfg.RedirectDelay(),
	})

	api := router.Group("/api")
	{
		authRoutes := api.Group("/auth")
		// ログイン前は CSRF トークンが無いので、保存済みの資格情報がある場合だけ検証される
		authRoutes.Use(authManager.VerifyCSRF())
		{
			authRoutes.POST("/login", authManager.Login)
			authRoutes.POST("/register", authManager.Register)
			// ログアウトは未ログインでも同じ結果を返すため RequireLogin を付けない
			authRoutes.POST("/logout", authManager.Logout)
			authRoutes.GET("/me", authManager.Me)
			authRoutes.GET("/check", authManager.Check)
		}

		protected := api.Group("")
		protected.Use(gate.RequireLogin(), authManager.VerifyCSRF())
		{
			protected.GET("/routes", gate.Routes)
			protected.GET("/routes/:route", gate.RequireRouteParam("route"), gate.RouteAccess)
			protected.GET("/audit", gate.RequireRoute(guard.RouteAuditLog, nil), auditListHandler(auditManager))
		}
	}
	return nil
}
