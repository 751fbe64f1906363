package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/singleflight"

	"github.com/yourusername/estate-admin/internal/api"
	"github.com/yourusername/estate-admin/internal/audit"
	"github.com/yourusername/estate-admin/internal/config"
	"github.com/yourusername/estate-admin/internal/metrics"
	"github.com/yourusername/estate-admin/internal/session"
)

const (
	SessionCookieName = "admin_session"
	sessionKeyCSRF    = "csrf_token"

	csrfHeader = "X-CSRF-Token"

	contextAuthKey     = "auth.context"
	contextRedirectKey = "auth.redirect"
)

// ContextUserKey は、ハンドラー間でログイン済みユーザーを共有するためのキーです。
const ContextUserKey = "auth.user"

// StorageFunc はリクエストに対応するクライアントの保存先を返します。
type StorageFunc func(c *gin.Context) (session.Storage, error)

// CookieStorageFunc は gin-contrib/sessions のCookieセッションを保存先にします。
func CookieStorageFunc(c *gin.Context) (session.Storage, error) {
	return session.NewCookieStorage(sessions.Default(c)), nil
}

// Auditor は認証イベントを記録します。
type Auditor interface {
	Record(ctx context.Context, event audit.Event)
}

// Options は Manager の依存関係です。
type Options struct {
	Authenticator Authenticator
	Storage       StorageFunc
	Auditor       Auditor
	Metrics       *metrics.Metrics
	Logger        *log.Logger
}

// Manager は認証処理を gin のハンドラーとして公開します。
type Manager struct {
	cfg      *config.Config
	authn    Authenticator
	storage  StorageFunc
	auditor  Auditor
	metrics  *metrics.Metrics
	logger   *log.Logger
	inflight singleflight.Group
}

// NewManager は認証マネージャーを作成します。
func NewManager(cfg *config.Config, opts Options) *Manager {
	storage := opts.Storage
	if storage == nil {
		storage = CookieStorageFunc
	}
	return &Manager{
		cfg:     cfg,
		authn:   opts.Authenticator,
		storage: storage,
		auditor: opts.Auditor,
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}
}

// ContextFor はリクエストに対応する認証 Context を返します。
// 同じリクエスト内では同じ Context を使い回し、初回に Init 済みにします。
func (m *Manager) ContextFor(c *gin.Context) (*Context, error) {
	if v, ok := c.Get(contextAuthKey); ok {
		if actx, ok := v.(*Context); ok {
			return actx, nil
		}
	}

	storage, err := m.storage(c)
	if err != nil {
		return nil, err
	}
	actx := NewContext(ContextOptions{
		Store:         session.NewStore(storage, m.logger),
		Authenticator: m.authn,
		Navigator: NavigatorFunc(func(route string) {
			c.Set(contextRedirectKey, route)
		}),
		LoginRoute: m.cfg.LoginRoute,
		Logger:     m.logger,
	})
	actx.Init()
	c.Set(contextAuthKey, actx)
	return actx, nil
}

// AuthState はリクエストの認証状態を返します。ログイン済みならユーザーを gin.Context にも設定します。
func (m *Manager) AuthState(c *gin.Context) State {
	actx, err := m.ContextFor(c)
	if err != nil {
		m.logf("failed to resolve session storage: %v", err)
		return State{Status: StatusUnauthenticated}
	}
	st := actx.State()
	if st.IsAuthenticated {
		c.Set(ContextUserKey, st.User)
	}
	return st
}

// CurrentUser は RequireLogin 等で設定されたユーザーを返します。
func CurrentUser(c *gin.Context) (*session.User, bool) {
	v, ok := c.Get(ContextUserKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*session.User)
	return user, ok && user != nil
}

var loginRules = api.Rules{
	{Field: "username", Tag: "required", Message: "ユーザー名を入力してください"},
	{Field: "password", Tag: "required", Message: "パスワードを入力してください"},
}

var registerRules = api.Rules{
	{Field: "username", Tag: "required", Message: "ユーザー名を入力してください"},
	{Field: "password", Tag: "required", Message: "パスワードを入力してください"},
	{Field: "email", Tag: "required", Message: "メールアドレスを入力してください"},
	{Field: "email", Tag: "email"},
}

// Login は /auth/login のハンドラーです。
func (m *Manager) Login(c *gin.Context) {
	var req Credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		api.Fail(c, http.StatusBadRequest, "INVALID_INPUT", "token または username と password を JSON で送ってください")
		return
	}

	if req.Token == "" {
		details := loginRules.Validate(map[string]any{
			"username": req.Username,
			"password": req.Password,
		})
		if len(details) > 0 {
			m.observe(c, audit.KindLogin, req.Method(), req.Username, Result{Code: CodeMissingFields})
			api.Fail(c, http.StatusBadRequest, CodeMissingFields, errMissingCredentials.Message, details...)
			return
		}
	}

	actx, err := m.ContextFor(c)
	if err != nil {
		m.logf("login: %v", err)
		api.Fail(c, http.StatusInternalServerError, CodeAuthFailed, msgLoginFailed)
		return
	}

	res, executed := m.coalesce(c, "login", fingerprint(req.Token, req.Username, req.Password), func() Result {
		return actx.Login(c.Request.Context(), req)
	})
	m.observe(c, audit.KindLogin, req.Method(), req.Username, res)
	m.respond(c, res, executed)
}

// Register は /auth/register のハンドラーです。
func (m *Manager) Register(c *gin.Context) {
	var req RegisterData
	if err := c.ShouldBindJSON(&req); err != nil {
		api.Fail(c, http.StatusBadRequest, "INVALID_INPUT", "username・password・email を JSON で送ってください")
		return
	}

	details := registerRules.Validate(map[string]any{
		"username": req.Username,
		"password": req.Password,
		"email":    req.Email,
	})
	if len(details) > 0 {
		m.observe(c, audit.KindRegister, session.LoginMethodRegister, req.Username, Result{Code: CodeMissingFields})
		api.Fail(c, http.StatusBadRequest, CodeMissingFields, "入力内容を確認してください", details...)
		return
	}

	actx, err := m.ContextFor(c)
	if err != nil {
		m.logf("register: %v", err)
		api.Fail(c, http.StatusInternalServerError, CodeAuthFailed, msgRegisterFailed)
		return
	}

	res, executed := m.coalesce(c, "register", fingerprint(req.Username, req.Email, req.Password), func() Result {
		return actx.Register(c.Request.Context(), req)
	})
	m.observe(c, audit.KindRegister, session.LoginMethodRegister, req.Username, res)
	m.respond(c, res, executed)
}

// Logout は /auth/logout のハンドラーです。何度呼ばれても同じ結果になります。
func (m *Manager) Logout(c *gin.Context) {
	actx, err := m.ContextFor(c)
	if err != nil {
		m.logf("logout: %v", err)
		api.Fail(c, http.StatusInternalServerError, "SESSION_CLEAR_FAILED", "セッションの削除に失敗しました")
		return
	}

	username := ""
	if st := actx.State(); st.User != nil {
		username = st.User.Username
	}
	actx.Logout()

	sess := sessions.Default(c)
	sess.Delete(sessionKeyCSRF)
	if err := sess.Save(); err != nil {
		m.logf("logout: failed to drop csrf token: %v", err)
	}

	m.metrics.ObserveLogout()
	m.record(c, audit.Event{Kind: audit.KindLogout, Success: true, Username: username})

	data := gin.H{}
	if route, ok := c.Get(contextRedirectKey); ok {
		data["redirectTo"] = route
	}
	api.OK(c, data)
}

// Me は現在の認証状態を返します。
func (m *Manager) Me(c *gin.Context) {
	api.OK(c, m.AuthState(c))
}

// Check は保存済みトークンの有無だけを返します。
func (m *Manager) Check(c *gin.Context) {
	actx, err := m.ContextFor(c)
	if err != nil {
		api.OK(c, gin.H{"authenticated": false})
		return
	}
	api.OK(c, gin.H{"authenticated": actx.CheckAuth()})
}

// coalesce は同じクライアント（セッションのクライアントID）から同じ内容で同時に送られた
// リクエストを1回の処理にまとめます。IP は複数のブラウザで共有され得るためキーに使いません。
// executed は、このリクエスト自身が処理を実行したかどうかです。
func (m *Manager) coalesce(c *gin.Context, op, identity string, fn func() Result) (Result, bool) {
	clientID, err := session.ClientID(sessions.Default(c))
	if err != nil {
		m.logf("%s: failed to resolve client id, running without coalescing: %v", op, err)
		return fn(), true
	}

	executed := false
	key := op + "\x00" + clientID + "\x00" + identity
	v, _, _ := m.inflight.Do(key, func() (any, error) {
		executed = true
		return fn(), nil
	})
	res, _ := v.(Result)
	return res, executed
}

func (m *Manager) respond(c *gin.Context, res Result, executed bool) {
	if !res.Success {
		api.Fail(c, statusForCode(res.Code), res.Code, res.Error)
		return
	}

	// 重複送信でまとめられた側はセッションに触れない（実行した側のCookieを上書きしないため）
	if executed {
		token, err := generateToken()
		if err != nil {
			api.Fail(c, http.StatusInternalServerError, "TOKEN_GENERATION_FAILED", "CSRF トークンの生成に失敗しました")
			return
		}
		sess := sessions.Default(c)
		sess.Set(sessionKeyCSRF, token)
		if err := sess.Save(); err != nil {
			api.Fail(c, http.StatusInternalServerError, "SESSION_SAVE_FAILED", "セッションの保存に失敗しました")
			return
		}
		c.Header(csrfHeader, token)
	}

	api.OK(c, gin.H{
		"token":      res.Token,
		"user":       res.User,
		"redirectTo": m.cfg.DashboardRoute,
	})
}

func (m *Manager) observe(c *gin.Context, kind audit.Kind, method, username string, res Result) {
	m.metrics.ObserveAuth(string(kind), method, res.Success)

	event := audit.Event{
		Kind:     kind,
		Success:  res.Success,
		Username: username,
		Method:   method,
		Error:    res.Code,
	}
	if res.User != nil {
		event.Username = res.User.Username
		event.Role = res.User.Role
	}
	m.record(c, event)
}

func (m *Manager) record(c *gin.Context, event audit.Event) {
	if m.auditor == nil {
		return
	}
	event.ClientIP = c.ClientIP()
	event.At = time.Now().UTC()
	m.auditor.Record(c.Request.Context(), event)
}

func (m *Manager) logf(format string, args ...any) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
	} else {
		log.Printf(format, args...)
	}
}

func statusForCode(code string) int {
	switch code {
	case CodeInvalidToken, CodeInvalidCredentials:
		return http.StatusUnauthorized
	case CodeMissingFields:
		return http.StatusBadRequest
	case CodeAlreadyAuthenticated, CodeInProgress:
		return http.StatusConflict
	case CodeRegistrationDisabled:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func fingerprint(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
