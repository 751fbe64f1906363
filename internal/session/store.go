// Package session は管理画面のログイン状態（トークンとユーザー）の永続化を提供します。
//
// トークンとユーザーは必ず組で保存・削除されます。片方だけが残った状態や、
// ユーザー情報が壊れている状態は「未ログイン」として扱い、自動的に消去します。
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
)

// 保存先で使用するキー
const (
	TokenKey = "admin_token"
	UserKey  = "admin_user"
)

// ログイン方式
const (
	LoginMethodToken       = "token"
	LoginMethodCredentials = "credentials"
	LoginMethodRegister    = "register"
)

// ErrEmptyToken は空のトークンを保存しようとした場合のエラーです。
var ErrEmptyToken = errors.New("session token is empty")

// ErrNilUser はユーザーなしで保存しようとした場合のエラーです。
var ErrNilUser = errors.New("session user is nil")

// User はログイン中の管理ユーザーを表します。
type User struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	Name        string `json:"name"`
	LoginMethod string `json:"loginMethod"`
}

// Session は保存されたトークンとユーザーの組です。
type Session struct {
	Token string
	User  *User
}

// Storage はクライアント単位の永続キーバリューストアです。
// SetItems と RemoveItems は渡されたキーをまとめて反映しなければなりません。
type Storage interface {
	GetItem(key string) (string, bool, error)
	SetItems(items map[string]string) error
	RemoveItems(keys ...string) error
}

// Store はトークンとユーザーの組を Storage に読み書きします。
// 保存先への変更は必ず Save / Clear を経由します。
type Store struct {
	storage Storage
	logger  *log.Logger
}

// NewStore は Store を作成します。logger が nil の場合はログを出力しません。
func NewStore(storage Storage, logger *log.Logger) *Store {
	return &Store{storage: storage, logger: logger}
}

// Save はトークンとユーザーを一度に書き込みます。
func (s *Store) Save(token string, user *User) error {
	if token == "" {
		return ErrEmptyToken
	}
	if user == nil {
		return ErrNilUser
	}
	payload, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode session user: %w", err)
	}
	if err := s.storage.SetItems(map[string]string{
		TokenKey: token,
		UserKey:  string(payload),
	}); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Read は保存されたセッションを返します。存在しない場合は ok=false です。
// ユーザー情報が壊れている場合や片方しか無い場合は両方を削除し、存在しないものとして扱います。
func (s *Store) Read() (Session, bool) {
	token, hasToken, err := s.storage.GetItem(TokenKey)
	if err != nil {
		s.logf("failed to read %s: %v", TokenKey, err)
		return Session{}, false
	}
	raw, hasUser, err := s.storage.GetItem(UserKey)
	if err != nil {
		s.logf("failed to read %s: %v", UserKey, err)
		return Session{}, false
	}

	if !hasToken && !hasUser {
		return Session{}, false
	}
	if !hasToken || token == "" || !hasUser {
		s.heal("incomplete session pair")
		return Session{}, false
	}

	var user User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		s.heal(fmt.Sprintf("corrupt user payload: %v", err))
		return Session{}, false
	}
	if user.Username == "" && user.ID == "" {
		s.heal("empty user payload")
		return Session{}, false
	}

	return Session{Token: token, User: &user}, true
}

// Clear はトークンとユーザーを無条件に削除します。
func (s *Store) Clear() error {
	if err := s.storage.RemoveItems(TokenKey, UserKey); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// HasToken はトークンが保存されているかだけを確認します。
func (s *Store) HasToken() bool {
	token, ok, err := s.storage.GetItem(TokenKey)
	if err != nil {
		return false
	}
	return ok && token != ""
}

func (s *Store) heal(reason string) {
	s.logf("discarding stored session: %s", reason)
	if err := s.Clear(); err != nil {
		s.logf("%v", err)
	}
}

func (s *Store) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
