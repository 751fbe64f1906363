package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"

	"github.com/yourusername/estate-admin/internal/session"
)

var tokenSigningMethod = jwt.SigningMethodHS256

type tokenClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	Method   string `json:"method"`
	jwt.RegisteredClaims
}

// TokenIssuer はログイン成功時に渡す署名付きトークンを発行します。
// クライアントから見たトークンは不透明な文字列で、有効期限は持ちません。
type TokenIssuer struct {
	secret []byte
	now    func() time.Time
}

// NewTokenIssuer は TokenIssuer を作成します。secret が空の場合は起動ごとにランダムな鍵を生成します。
func NewTokenIssuer(secret string) (*TokenIssuer, error) {
	key := []byte(secret)
	if len(key) == 0 {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("failed to generate token secret: %w", err)
		}
		key = buf
	}
	return &TokenIssuer{secret: key, now: time.Now}, nil
}

// Issue はユーザーに対するトークンを発行します。
func (t *TokenIssuer) Issue(user *session.User) (string, error) {
	claims := &tokenClaims{
		Username: user.Username,
		Role:     user.Role,
		Method:   user.LoginMethod,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  user.ID,
			IssuedAt: jwt.NewNumericDate(t.now()),
		},
	}
	signed, err := jwt.NewWithClaims(tokenSigningMethod, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("couldn't sign session token: %w", err)
	}
	return signed, nil
}

// Subject は自身が発行したトークンを検証し、ユーザーIDを返します。
func (t *TokenIssuer) Subject(token string) (string, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{tokenSigningMethod.Alg()}))
	claims := new(tokenClaims)
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", errInvalidToken
	}
	return claims.Subject, nil
}

func (t *TokenIssuer) identity(user *session.User) (*Identity, error) {
	if t == nil {
		buf := make([]byte, 24)
		if _, err := rand.Read(buf); err != nil {
			return nil, err
		}
		return &Identity{Token: hex.EncodeToString(buf), User: user}, nil
	}
	token, err := t.Issue(user)
	if err != nil {
		return nil, err
	}
	return &Identity{Token: token, User: user}, nil
}
