package guard

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/estate-admin/internal/api"
	"github.com/yourusername/estate-admin/internal/auth"
	"github.com/yourusername/estate-admin/internal/metrics"
)

// StateSource はリクエストの認証状態を返します。auth.Manager が実装します。
type StateSource interface {
	AuthState(c *gin.Context) auth.State
}

// ガード判定の結果（メトリクスのラベル）
const (
	outcomeAllowed         = "allowed"
	outcomeUnauthenticated = "unauthenticated"
	outcomeDenied          = "denied"
	outcomeFallback        = "fallback"

	anyRoute     = "any"
	unknownRoute = "unknown"
)

// GateOptions は Gate の設定です。
type GateOptions struct {
	Table         *Table
	Metrics       *metrics.Metrics
	LoginRoute    string
	FallbackRoute string
	RedirectDelay time.Duration
}

// Gate は RouteGuard / RoleGuard の判定を gin のミドルウェアとして提供します。
type Gate struct {
	src           StateSource
	table         *Table
	metrics       *metrics.Metrics
	loginRoute    string
	fallbackRoute string
	redirectDelay time.Duration
}

// NewGate は Gate を作成します。
func NewGate(src StateSource, opts GateOptions) *Gate {
	g := &Gate{
		src:           src,
		table:         opts.Table,
		metrics:       opts.Metrics,
		loginRoute:    opts.LoginRoute,
		fallbackRoute: opts.FallbackRoute,
		redirectDelay: opts.RedirectDelay,
	}
	if g.table == nil {
		g.table = DefaultTable
	}
	if g.loginRoute == "" {
		g.loginRoute = auth.DefaultLoginRoute
	}
	if g.fallbackRoute == "" {
		g.fallbackRoute = DefaultFallbackRoute
	}
	return g
}

// RequireLogin はログイン済みのリクエストだけを通します。判定は RouteGuard に任せます。
// 未ログインの場合は 401 と、遅延付きでログイン画面へ移る Refresh ヘッダーを返します。
func (g *Gate) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		st := g.src.AuthState(c)

		// HTTP では待ち時間を Refresh ヘッダーで伝えるので、遷移先はその場で受け取る
		var redirectTo string
		rg := NewRouteGuard(RouteGuardOptions{
			Navigator:  auth.NavigatorFunc(func(route string) { redirectTo = route }),
			LoginRoute: g.loginRoute,
			Delay:      -1,
		})
		defer rg.Stop()

		if rg.Render(st) != ViewContent {
			g.metrics.ObserveGuard(anyRoute, outcomeUnauthenticated)
			if redirectTo == "" {
				redirectTo = g.loginRoute
			}
			g.restricted(c, redirectTo)
			return
		}
		c.Set(auth.ContextUserKey, st.User)
		g.metrics.ObserveGuard(anyRoute, outcomeAllowed)
		c.Next()
	}
}

// RequireRoute は route を利用できるロールのリクエストだけを通します。
// fallback が nil でなければ、権限不足時に遷移先の代わりにその内容を返します。
func (g *Gate) RequireRoute(route string, fallback any) gin.HandlerFunc {
	return g.requireRoute(func(*gin.Context) string { return route }, fallback)
}

// RequireRouteParam はパスパラメーター param をルート識別子として RequireRoute と同じ判定をします。
func (g *Gate) RequireRouteParam(param string) gin.HandlerFunc {
	return g.requireRoute(func(c *gin.Context) string { return c.Param(param) }, nil)
}

// requireRoute はリクエストごとに RoleGuard を作り、その View を HTTP の応答に置き換えます。
func (g *Gate) requireRoute(routeOf func(*gin.Context) string, fallback any) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := routeOf(c)
		label := g.routeLabel(route)
		st := g.src.AuthState(c)

		var redirectTo string
		rg := NewRoleGuard(RoleGuardOptions{
			RequiredRoute: route,
			FallbackRoute: g.fallbackRoute,
			Fallback:      fallback,
			Table:         g.table,
			Navigator:     auth.NavigatorFunc(func(to string) { redirectTo = to }),
			LoginRoute:    g.loginRoute,
		})

		switch view := rg.Render(st); {
		case view == ViewContent:
			c.Set(auth.ContextUserKey, st.User)
			g.metrics.ObserveGuard(label, outcomeAllowed)
			c.Next()
		case view == ViewFallback:
			g.metrics.ObserveGuard(label, outcomeFallback)
			api.Abort(c, http.StatusForbidden, api.Envelope{
				Code:  "FORBIDDEN",
				Error: "このページを表示する権限がありません",
				Data:  gin.H{"fallback": rg.Fallback},
			})
		case !st.IsAuthenticated || st.User == nil:
			g.metrics.ObserveGuard(label, outcomeUnauthenticated)
			api.Abort(c, http.StatusUnauthorized, api.Envelope{
				Code:  "UNAUTHENTICATED",
				Error: "ログインが必要です",
				Data:  gin.H{"redirectTo": orDefault(redirectTo, g.loginRoute)},
			})
		default:
			g.metrics.ObserveGuard(label, outcomeDenied)
			api.Abort(c, http.StatusForbidden, api.Envelope{
				Code:  "FORBIDDEN",
				Error: "このページを表示する権限がありません",
				Data:  gin.H{"redirectTo": orDefault(redirectTo, rg.FallbackRoute)},
			})
		}
	}
}

// routeLabel は許可表に無いルートをまとめ、メトリクスの系列数を許可表の大きさで抑えます。
func (g *Gate) routeLabel(route string) string {
	if g.table.Has(route) {
		return route
	}
	return unknownRoute
}

// Routes は現在のユーザーが利用できるルート一覧を返すハンドラーです。RequireLogin の後ろに置きます。
func (g *Gate) Routes(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		g.restricted(c, g.loginRoute)
		return
	}
	api.OK(c, gin.H{
		"role":   user.Role,
		"routes": g.table.AccessibleRoutes(user.Role),
	})
}

// RouteAccess は RequireRouteParam を通過したリクエストに許可済みであることを返します。
func (g *Gate) RouteAccess(c *gin.Context) {
	api.OK(c, gin.H{"route": c.Param("route"), "allowed": true})
}

func (g *Gate) restricted(c *gin.Context, redirectTo string) {
	c.Header("Refresh", fmt.Sprintf("%d; url=%s", refreshSeconds(g.redirectDelay), redirectTo))
	api.Abort(c, http.StatusUnauthorized, api.Envelope{
		Code:  "UNAUTHENTICATED",
		Error: "アクセス制限: ログインが必要です",
		Data: gin.H{
			"redirectTo":      redirectTo,
			"redirectAfterMs": g.redirectDelay.Milliseconds(),
		},
	})
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func refreshSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64((d + time.Second - 1) / time.Second)
}
