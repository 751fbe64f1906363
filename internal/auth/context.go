package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/yourusername/estate-admin/internal/session"
)

// Status は認証状態の段階です。
type Status int

const (
	StatusInitializing Status = iota
	StatusAuthenticated
	StatusUnauthenticated
)

func (s Status) String() string {
	switch s {
	case StatusInitializing:
		return "initializing"
	case StatusAuthenticated:
		return "authenticated"
	case StatusUnauthenticated:
		return "unauthenticated"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// MarshalText は JSON 出力用に状態名を返します。
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// State は画面側に公開する認証状態のスナップショットです。
// IsLoading が false の間は IsAuthenticated == (User != nil) が常に成り立ちます。
type State struct {
	User            *session.User `json:"user"`
	IsAuthenticated bool          `json:"isAuthenticated"`
	IsLoading       bool          `json:"isLoading"`
	Status          Status        `json:"status"`
}

// Result は login / register の結果です。失敗は例外ではなく値で返します。
type Result struct {
	Success bool          `json:"success"`
	Error   string        `json:"error,omitempty"`
	Code    string        `json:"-"`
	Token   string        `json:"-"`
	User    *session.User `json:"-"`
}

// Navigator は画面遷移を行います。
type Navigator interface {
	Navigate(route string)
}

// NavigatorFunc は関数を Navigator として扱うためのアダプターです。
type NavigatorFunc func(route string)

func (f NavigatorFunc) Navigate(route string) { f(route) }

// DefaultLoginRoute はログイン画面のパスです。
const DefaultLoginRoute = "/login"

const (
	msgLoginFailed    = "ログインに失敗しました"
	msgRegisterFailed = "登録に失敗しました"
)

// Context は「誰がログインしているか」を一元的に管理する状態機械です。
//
// 読み込みごとに INITIALIZING から始まり、Init で保存済みセッションを読んで
// AUTHENTICATED か UNAUTHENTICATED に確定します。以降は Login / Register / Logout
// だけが状態を変えます。保存先への書き込みは session.Store を通してのみ行います。
type Context struct {
	mu               sync.Mutex
	status           Status
	user             *session.User
	store            *session.Store
	authn            Authenticator
	nav              Navigator
	loginRoute       string
	logger           *log.Logger
	inFlight         bool
	closed           bool
	logoutRedirected bool
}

// ContextOptions は Context の依存関係です。
type ContextOptions struct {
	Store         *session.Store
	Authenticator Authenticator
	Navigator     Navigator
	LoginRoute    string
	Logger        *log.Logger
}

// NewContext は INITIALIZING 状態の Context を作成します。
func NewContext(opts ContextOptions) *Context {
	loginRoute := opts.LoginRoute
	if loginRoute == "" {
		loginRoute = DefaultLoginRoute
	}
	return &Context{
		status:     StatusInitializing,
		store:      opts.Store,
		authn:      opts.Authenticator,
		nav:        opts.Navigator,
		loginRoute: loginRoute,
		logger:     opts.Logger,
	}
}

// Init は保存済みセッションを一度だけ読み、初期状態を確定させます。
// 2回目以降の呼び出しは何もしません。
func (c *Context) Init() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initLocked()
	return c.snapshotLocked()
}

func (c *Context) initLocked() {
	if c.status != StatusInitializing {
		return
	}
	if sess, ok := c.store.Read(); ok && c.verifyLocked(sess) {
		c.user = sess.User
		c.status = StatusAuthenticated
		return
	}
	c.user = nil
	c.status = StatusUnauthenticated
}

// verifyLocked は保存済みセッションを Authenticator に照合させます。
// 無効ならストレージを消して未ログインとして扱います。
func (c *Context) verifyLocked(sess session.Session) bool {
	v, ok := c.authn.(SessionVerifier)
	if !ok {
		return true
	}
	if err := v.VerifySession(sess.Token, sess.User); err != nil {
		c.logf("init: discarding stored session: %v", err)
		if err := c.store.Clear(); err != nil {
			c.logf("init: %v", err)
		}
		return false
	}
	return true
}

// State は現在の状態を返します。
func (c *Context) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Context) snapshotLocked() State {
	st := State{
		Status:    c.status,
		IsLoading: c.status == StatusInitializing,
	}
	if c.user != nil {
		u := *c.user
		st.User = &u
	}
	st.IsAuthenticated = c.status == StatusAuthenticated && st.User != nil
	return st
}

// Login はトークンまたはユーザー名・パスワードでログインします。
//
// ログイン済みの状態での再ログインと、処理中の二重呼び出しは失敗として返します。
func (c *Context) Login(ctx context.Context, cred Credentials) Result {
	if res, ok := c.begin(); !ok {
		return res
	}
	defer c.end()

	return c.run(msgLoginFailed, func() (*Identity, error) {
		return c.authn.Authenticate(ctx, cred)
	})
}

// Register は新規登録を行い、成功時はそのままログイン状態にします。
func (c *Context) Register(ctx context.Context, data RegisterData) Result {
	if res, ok := c.begin(); !ok {
		return res
	}
	defer c.end()

	return c.run(msgRegisterFailed, func() (*Identity, error) {
		return c.authn.Register(ctx, data)
	})
}

func (c *Context) begin() (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initLocked()

	switch {
	case c.closed:
		return Result{Code: CodeContextClosed, Error: "画面が閉じられています"}, false
	case c.inFlight:
		return Result{Code: CodeInProgress, Error: "処理中です。しばらくお待ちください"}, false
	case c.status == StatusAuthenticated:
		return Result{Code: CodeAlreadyAuthenticated, Error: "既にログインしています"}, false
	}
	c.inFlight = true
	return Result{}, true
}

func (c *Context) end() {
	c.mu.Lock()
	c.inFlight = false
	c.mu.Unlock()
}

func (c *Context) run(failMsg string, fn func() (*Identity, error)) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			c.logf("%s: recovered from panic: %v", failMsg, r)
			res = Result{Code: CodeAuthFailed, Error: failMsg}
		}
	}()

	if c.authn == nil {
		c.logf("%s: no authenticator configured", failMsg)
		return Result{Code: CodeAuthFailed, Error: failMsg}
	}

	identity, err := fn()
	if err != nil {
		var authErr *Error
		if errors.As(err, &authErr) {
			return Result{Code: authErr.Code, Error: authErr.Message}
		}
		c.logf("%s: %v", failMsg, err)
		return Result{Code: CodeAuthFailed, Error: failMsg}
	}
	if identity == nil || identity.User == nil || identity.Token == "" {
		c.logf("%s: authenticator returned an incomplete identity", failMsg)
		return Result{Code: CodeAuthFailed, Error: failMsg}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// 処理中に閉じられた場合は結果を反映しない
	if c.closed {
		return Result{Code: CodeContextClosed, Error: "画面が閉じられています"}
	}
	if err := c.store.Save(identity.Token, identity.User); err != nil {
		c.logf("%s: %v", failMsg, err)
		return Result{Code: CodeAuthFailed, Error: failMsg}
	}
	c.user = identity.User
	c.status = StatusAuthenticated
	c.logoutRedirected = false

	u := *identity.User
	return Result{Success: true, Token: identity.Token, User: &u}
}

// Logout はセッションを消去し、ログイン画面へ遷移させます。
// 続けて呼んでも状態は変わらず、遷移も一度だけです。
func (c *Context) Logout() {
	c.mu.Lock()
	if err := c.store.Clear(); err != nil {
		c.logf("logout: %v", err)
	}
	c.user = nil
	c.status = StatusUnauthenticated
	redirect := !c.logoutRedirected && !c.closed
	c.logoutRedirected = true
	nav, route := c.nav, c.loginRoute
	c.mu.Unlock()

	if redirect && nav != nil {
		nav.Navigate(route)
	}
}

// CheckAuth はトークンが保存されているかを同期的に確認します。状態機械とは独立しています。
func (c *Context) CheckAuth() bool {
	return c.store.HasToken()
}

// Close は Context を破棄済みにします。以降に完了した login / register の結果は反映されません。
func (c *Context) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *Context) logf(format string, args ...any) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}
