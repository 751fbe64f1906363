package auth

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/estate-admin/internal/session"
)

// ロール
const (
	RoleAdmin      = "admin"
	RoleSuperAdmin = "SuperAdmin"
)

// Credentials はログイン入力です。Token が空でなければトークンログインとして扱います。
type Credentials struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Method はログイン方式を返します。
func (c Credentials) Method() string {
	if c.Token != "" {
		return session.LoginMethodToken
	}
	return session.LoginMethodCredentials
}

// RegisterData は新規登録の入力です。
type RegisterData struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
	Name     string `json:"name"`
}

// Identity は認証に成功した結果です。
type Identity struct {
	Token string
	User  *session.User
}

// Authenticator は資格情報を検証してユーザーを確定させます。
// 想定内の失敗は *Error で返します。
type Authenticator interface {
	Authenticate(ctx context.Context, cred Credentials) (*Identity, error)
	Register(ctx context.Context, data RegisterData) (*Identity, error)
}

// SessionVerifier は保存済みセッションのトークンがまだ有効かを確かめます。
// Authenticator が実装していれば、Context は初期化時に呼び出します。
type SessionVerifier interface {
	VerifySession(token string, user *session.User) error
}

// TokenUser はトークンログイン時に使う固定の管理者ユーザーを返します。
func TokenUser() *session.User {
	return &session.User{
		ID:          "1",
		Username:    "admin",
		Email:       "admin@admin.com",
		Role:        RoleAdmin,
		Name:        "Administrator",
		LoginMethod: session.LoginMethodToken,
	}
}

// MockAuthenticator はバックエンドを持たない開発用の認証です。
//
// トークンログインは ValidToken と一致した場合のみ成功します。
// ユーザー名ログインは空でないユーザー名とパスワードなら何でも成功します。
type MockAuthenticator struct {
	ValidToken string
	Latency    time.Duration
	Tokens     *TokenIssuer
}

func (m *MockAuthenticator) Authenticate(ctx context.Context, cred Credentials) (*Identity, error) {
	if err := simulateLatency(ctx, m.Latency); err != nil {
		return nil, err
	}
	if cred.Token != "" {
		return tokenLogin(m.ValidToken, cred.Token)
	}

	username := strings.TrimSpace(cred.Username)
	if username == "" || cred.Password == "" {
		return nil, errMissingCredentials
	}

	user := &session.User{
		ID:          uuid.NewString(),
		Username:    username,
		Email:       username + "@admin.com",
		Role:        RoleAdmin,
		Name:        username,
		LoginMethod: session.LoginMethodCredentials,
	}
	return m.Tokens.identity(user)
}

func (m *MockAuthenticator) VerifySession(token string, user *session.User) error {
	return verifySession(m.ValidToken, m.Tokens, token, user)
}

func (m *MockAuthenticator) Register(ctx context.Context, data RegisterData) (*Identity, error) {
	if err := simulateLatency(ctx, m.Latency); err != nil {
		return nil, err
	}
	return registerIdentity(m.Tokens, data)
}

// StaticAuthenticator は設定されたユーザー名と bcrypt ハッシュで検証します。
// トークンログインの扱いは MockAuthenticator と同じです。
type StaticAuthenticator struct {
	ValidToken   string
	Username     string
	PasswordHash string
	Role         string
	Tokens       *TokenIssuer
}

func (s *StaticAuthenticator) Authenticate(ctx context.Context, cred Credentials) (*Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cred.Token != "" {
		return tokenLogin(s.ValidToken, cred.Token)
	}

	username := strings.TrimSpace(cred.Username)
	if username == "" || cred.Password == "" {
		return nil, errMissingCredentials
	}
	if username != s.Username || bcrypt.CompareHashAndPassword([]byte(s.PasswordHash), []byte(cred.Password)) != nil {
		return nil, errInvalidCredentials
	}

	role := s.Role
	if role == "" {
		role = RoleSuperAdmin
	}
	user := &session.User{
		ID:          "1",
		Username:    username,
		Email:       username + "@admin.com",
		Role:        role,
		Name:        username,
		LoginMethod: session.LoginMethodCredentials,
	}
	return s.Tokens.identity(user)
}

func (s *StaticAuthenticator) VerifySession(token string, user *session.User) error {
	return verifySession(s.ValidToken, s.Tokens, token, user)
}

func (s *StaticAuthenticator) Register(ctx context.Context, data RegisterData) (*Identity, error) {
	return nil, errRegistrationDisabled
}

func tokenLogin(valid, presented string) (*Identity, error) {
	if valid == "" || subtle.ConstantTimeCompare([]byte(valid), []byte(presented)) != 1 {
		return nil, errInvalidToken
	}
	return &Identity{Token: presented, User: TokenUser()}, nil
}

// verifySession はトークンログインなら固定トークンと、それ以外なら署名付きトークンの subject とユーザーIDを照合します。
// tokens が nil の場合は不透明なトークンしか発行していないので照合しません。
func verifySession(valid string, tokens *TokenIssuer, token string, user *session.User) error {
	if user == nil {
		return errInvalidToken
	}
	if user.LoginMethod == session.LoginMethodToken {
		_, err := tokenLogin(valid, token)
		return err
	}
	if tokens == nil {
		return nil
	}
	sub, err := tokens.Subject(token)
	if err != nil {
		return err
	}
	if sub != user.ID {
		return errInvalidToken
	}
	return nil
}

func registerIdentity(tokens *TokenIssuer, data RegisterData) (*Identity, error) {
	username := strings.TrimSpace(data.Username)
	email := strings.TrimSpace(data.Email)
	if username == "" || data.Password == "" || email == "" {
		return nil, errMissingRegisterData
	}
	name := strings.TrimSpace(data.Name)
	if name == "" {
		name = username
	}
	user := &session.User{
		ID:          uuid.NewString(),
		Username:    username,
		Email:       email,
		Role:        RoleAdmin,
		Name:        name,
		LoginMethod: session.LoginMethodRegister,
	}
	return tokens.identity(user)
}

func simulateLatency(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
