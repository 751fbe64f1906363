package main

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/estate-admin/internal/api"
	"github.com/yourusername/estate-admin/internal/audit"
	"github.com/yourusername/estate-admin/internal/config"
)

const defaultAuditLimit = 50

// setupAudit は監査ログが有効な場合に Manager を作成します。無効なら nil を返します。
func setupAudit(cfg *config.Config, rdb *redis.Client) (*audit.Manager, error) {
	if !cfg.AuditEnabled || rdb == nil {
		return nil, nil
	}
	store := audit.NewStore(rdb, cfg.AuditMaxEntries)
	return audit.NewManager(cfg.RedisURL, store, log.Default())
}

// auditListHandler は直近の監査イベントを返します。
func auditListHandler(manager *audit.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if manager == nil {
			api.Fail(c, http.StatusServiceUnavailable, "AUDIT_DISABLED", "監査ログは無効になっています")
			return
		}

		limit := defaultAuditLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				api.Fail(c, http.StatusBadRequest, "INVALID_INPUT", "limit は正の整数で指定してください")
				return
			}
			limit = n
		}

		events, err := manager.Recent(c.Request.Context(), limit)
		if err != nil {
			log.Printf("failed to load audit events: %v", err)
			api.Fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", "監査ログの取得に失敗しました")
			return
		}
		if events == nil {
			events = []audit.Event{}
		}
		api.OK(c, gin.H{"events": events})
	}
}
