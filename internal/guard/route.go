package guard

import (
	"fmt"
	"sync"
	"time"

	"github.com/yourusername/estate-admin/internal/auth"
)

// View はガードが描画すべき内容です。
type View int

const (
	ViewLoading     View = iota // 初期化中の読み込み表示
	ViewRestricted              // 「アクセス制限」表示（ログイン画面への遷移待ち）
	ViewContent                 // 保護された中身
	ViewFallback                // 権限不足時の代替表示
	ViewRedirecting             // 何も描画せず遷移する
)

func (v View) String() string {
	switch v {
	case ViewLoading:
		return "loading"
	case ViewRestricted:
		return "restricted"
	case ViewContent:
		return "content"
	case ViewFallback:
		return "fallback"
	case ViewRedirecting:
		return "redirecting"
	default:
		return fmt.Sprintf("View(%d)", int(v))
	}
}

// DefaultRedirectDelay は未ログイン時にログイン画面へ遷移するまでの待ち時間です。
const DefaultRedirectDelay = 2 * time.Second

type stopper interface {
	Stop() bool
}

// RouteGuardOptions は RouteGuard の設定です。
type RouteGuardOptions struct {
	Navigator  auth.Navigator
	LoginRoute string
	Delay      time.Duration // 0 なら DefaultRedirectDelay、負なら即時
}

// RouteGuard はログイン済みかどうかだけで保護対象の表示を切り替えます。
//
// 未ログインになるたびに、遅延付きのログイン画面への遷移を一度だけ予約します。
// ログイン済みに戻ると予約は取り消されます。
type RouteGuard struct {
	mu         sync.Mutex
	nav        auth.Navigator
	loginRoute string
	delay      time.Duration
	afterFunc  func(time.Duration, func()) stopper
	pending    stopper
	generation int
	scheduled  bool
	stopped    bool
}

// NewRouteGuard は RouteGuard を作成します。
func NewRouteGuard(opts RouteGuardOptions) *RouteGuard {
	loginRoute := opts.LoginRoute
	if loginRoute == "" {
		loginRoute = auth.DefaultLoginRoute
	}
	delay := opts.Delay
	if delay == 0 {
		delay = DefaultRedirectDelay
	}
	return &RouteGuard{
		nav:        opts.Navigator,
		loginRoute: loginRoute,
		delay:      delay,
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
	}
}

// Render は認証状態から描画内容を決めます。
func (g *RouteGuard) Render(st auth.State) View {
	g.mu.Lock()

	switch {
	case st.IsLoading:
		g.mu.Unlock()
		return ViewLoading
	case st.IsAuthenticated:
		g.cancelLocked()
		g.scheduled = false
		g.mu.Unlock()
		return ViewContent
	}

	if g.scheduled || g.stopped {
		g.mu.Unlock()
		return ViewRestricted
	}
	g.scheduled = true

	if g.delay < 0 {
		nav, route := g.nav, g.loginRoute
		g.mu.Unlock()
		if nav != nil {
			nav.Navigate(route)
		}
		return ViewRestricted
	}

	g.generation++
	gen := g.generation
	g.pending = g.afterFunc(g.delay, func() { g.fire(gen) })
	g.mu.Unlock()
	return ViewRestricted
}

func (g *RouteGuard) fire(gen int) {
	g.mu.Lock()
	if g.stopped || gen != g.generation || g.pending == nil {
		g.mu.Unlock()
		return
	}
	g.pending = nil
	nav, route := g.nav, g.loginRoute
	g.mu.Unlock()

	if nav != nil {
		nav.Navigate(route)
	}
}

func (g *RouteGuard) cancelLocked() {
	if g.pending != nil {
		g.pending.Stop()
		g.pending = nil
	}
	g.generation++
}

// Stop は予約済みの遷移を取り消し、以後の予約も行いません。画面を離れるときに呼びます。
func (g *RouteGuard) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelLocked()
	g.stopped = true
}
