package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/estate-admin/internal/api"
)

// VerifyCSRF は X-CSRF-Token ヘッダーを検証するミドルウェアです（ダブルサブミット方式）。
// 保存済みの資格情報が無いクライアントは守る対象が無いため検証しません。
func (m *Manager) VerifyCSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isSafeMethod(c.Request.Method) {
			c.Next()
			return
		}

		session := sessions.Default(c)
		expected, ok := session.Get(sessionKeyCSRF).(string)
		if !ok || expected == "" {
			actx, err := m.ContextFor(c)
			if err == nil && !actx.CheckAuth() {
				c.Next()
				return
			}
			api.Abort(c, http.StatusForbidden, api.Envelope{
				Code:  "CSRF_MISSING",
				Error: "CSRF トークンが設定されていません",
			})
			return
		}

		received := c.GetHeader(csrfHeader)
		if subtle.ConstantTimeCompare([]byte(expected), []byte(received)) != 1 {
			api.Abort(c, http.StatusForbidden, api.Envelope{
				Code:  "CSRF_INVALID",
				Error: "CSRF トークンが一致しません",
			})
			return
		}

		c.Next()
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}
