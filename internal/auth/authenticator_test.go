package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/estate-admin/internal/session"
)

func TestMockAuthenticatorTokenLogin(t *testing.T) {
	m := &MockAuthenticator{ValidToken: validToken}

	id, err := m.Authenticate(context.Background(), Credentials{Token: validToken})
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if id.Token != validToken || *id.User != *TokenUser() {
		t.Fatalf("unexpected identity: %#v %#v", id.Token, id.User)
	}

	_, err = m.Authenticate(context.Background(), Credentials{Token: "admin-token-124"})
	var authErr *Error
	if !errors.As(err, &authErr) || authErr.Code != CodeInvalidToken {
		t.Fatalf("expected invalid token error, got %v", err)
	}
}

func TestMockAuthenticatorWithoutValidTokenRejectsEverything(t *testing.T) {
	m := &MockAuthenticator{}
	if _, err := m.Authenticate(context.Background(), Credentials{Token: "x"}); err == nil {
		t.Fatal("expected error when no valid token is configured")
	}
}

func TestMockAuthenticatorIssuesVerifiableTokens(t *testing.T) {
	issuer, err := NewTokenIssuer("test-secret")
	if err != nil {
		t.Fatalf("NewTokenIssuer returned error: %v", err)
	}
	m := &MockAuthenticator{ValidToken: validToken, Tokens: issuer}

	id, err := m.Authenticate(context.Background(), Credentials{Username: "a", Password: "b"})
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	sub, err := issuer.Subject(id.Token)
	if err != nil {
		t.Fatalf("Subject returned error: %v", err)
	}
	if sub != id.User.ID {
		t.Fatalf("expected subject %q, got %q", id.User.ID, sub)
	}
}

func TestMockAuthenticatorLatency(t *testing.T) {
	m := &MockAuthenticator{ValidToken: validToken, Latency: 20 * time.Millisecond}
	start := time.Now()
	if _, err := m.Authenticate(context.Background(), Credentials{Token: validToken}); err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("expected simulated latency, took %v", elapsed)
	}
}

func TestStaticAuthenticator(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword returned error: %v", err)
	}
	s := &StaticAuthenticator{ValidToken: validToken, Username: "owner", PasswordHash: string(hash)}

	id, err := s.Authenticate(context.Background(), Credentials{Username: "owner", Password: "s3cret"})
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if id.User.Role != RoleSuperAdmin || id.User.LoginMethod != session.LoginMethodCredentials {
		t.Fatalf("unexpected user: %#v", id.User)
	}

	for _, cred := range []Credentials{
		{Username: "owner", Password: "wrong"},
		{Username: "intruder", Password: "s3cret"},
	} {
		_, err := s.Authenticate(context.Background(), cred)
		var authErr *Error
		if !errors.As(err, &authErr) || authErr.Code != CodeInvalidCredentials {
			t.Fatalf("%#v: expected invalid credentials, got %v", cred, err)
		}
	}

	if _, err := s.Authenticate(context.Background(), Credentials{Token: validToken}); err != nil {
		t.Fatalf("token login should still work: %v", err)
	}
}

func TestStaticAuthenticatorDisablesRegister(t *testing.T) {
	s := &StaticAuthenticator{}
	_, err := s.Register(context.Background(), RegisterData{Username: "u", Password: "p", Email: "e@x"})
	var authErr *Error
	if !errors.As(err, &authErr) || authErr.Code != CodeRegistrationDisabled {
		t.Fatalf("expected registration disabled, got %v", err)
	}
}

func TestRegisterDefaultsName(t *testing.T) {
	id, err := registerIdentity(nil, RegisterData{Username: " taro ", Password: "p", Email: "taro@example.com"})
	if err != nil {
		t.Fatalf("registerIdentity returned error: %v", err)
	}
	if id.User.Name != "taro" || id.User.Username != "taro" || id.Token == "" {
		t.Fatalf("unexpected identity: %#v %#v", id.Token, id.User)
	}
}

func TestTokenIssuerRejectsForeignTokens(t *testing.T) {
	a, _ := NewTokenIssuer("secret-a")
	b, _ := NewTokenIssuer("secret-b")

	token, err := a.Issue(TokenUser())
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if _, err := b.Subject(token); !errors.Is(err, errInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
	if _, err := a.Subject("not-a-jwt"); !errors.Is(err, errInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
}

func TestTokenIssuerGeneratesSecret(t *testing.T) {
	a, err := NewTokenIssuer("")
	if err != nil {
		t.Fatalf("NewTokenIssuer returned error: %v", err)
	}
	b, _ := NewTokenIssuer("")

	token, _ := a.Issue(TokenUser())
	if sub, err := a.Subject(token); err != nil || sub != "1" {
		t.Fatalf("unexpected subject %q err %v", sub, err)
	}
	if _, err := b.Subject(token); err == nil {
		t.Fatal("random secrets should differ between issuers")
	}
}
