package guard

import (
	"sync"

	"github.com/yourusername/estate-admin/internal/auth"
)

// DefaultFallbackRoute は権限不足時の既定の遷移先です。
const DefaultFallbackRoute = "/dashboard"

// RoleGuardOptions は RoleGuard の設定です。
type RoleGuardOptions struct {
	RequiredRoute string
	FallbackRoute string
	Fallback      any // 権限不足時に代わりに表示する内容（nil なら遷移）
	Table         *Table
	Navigator     auth.Navigator
	LoginRoute    string
}

// RoleGuard はログイン済みユーザーのロールが RequiredRoute を利用できるかで表示を切り替えます。
type RoleGuard struct {
	RequiredRoute string
	FallbackRoute string
	Fallback      any

	table      *Table
	nav        auth.Navigator
	loginRoute string

	mu         sync.Mutex
	redirected string
}

// NewRoleGuard は RoleGuard を作成します。
func NewRoleGuard(opts RoleGuardOptions) *RoleGuard {
	g := &RoleGuard{
		RequiredRoute: opts.RequiredRoute,
		FallbackRoute: opts.FallbackRoute,
		Fallback:      opts.Fallback,
		table:         opts.Table,
		nav:           opts.Navigator,
		loginRoute:    opts.LoginRoute,
	}
	if g.FallbackRoute == "" {
		g.FallbackRoute = DefaultFallbackRoute
	}
	if g.table == nil {
		g.table = DefaultTable
	}
	if g.loginRoute == "" {
		g.loginRoute = auth.DefaultLoginRoute
	}
	return g
}

// Render は認証状態と許可表から描画内容を決めます。
// 遷移は同じ判定が続く限り一度だけ行います。
func (g *RoleGuard) Render(st auth.State) View {
	switch {
	case st.IsLoading:
		g.settle()
		return ViewLoading
	case !st.IsAuthenticated || st.User == nil:
		// ログイン画面への遷移は FallbackRoute に関係なく固定
		g.redirectOnce(g.loginRoute)
		return ViewRedirecting
	case g.table.CanAccessRoute(st.User.Role, g.RequiredRoute):
		g.settle()
		return ViewContent
	case g.Fallback != nil:
		g.settle()
		return ViewFallback
	default:
		g.redirectOnce(g.FallbackRoute)
		return ViewRedirecting
	}
}

func (g *RoleGuard) redirectOnce(route string) {
	g.mu.Lock()
	if g.redirected == route {
		g.mu.Unlock()
		return
	}
	g.redirected = route
	nav := g.nav
	g.mu.Unlock()

	if nav != nil {
		nav.Navigate(route)
	}
}

func (g *RoleGuard) settle() {
	g.mu.Lock()
	g.redirected = ""
	g.mu.Unlock()
}
