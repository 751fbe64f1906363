package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yourusername/estate-admin/internal/session"
)

const validToken = "admin-token-123"

type recordingNavigator struct {
	mu     sync.Mutex
	routes []string
}

func (n *recordingNavigator) Navigate(route string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.routes = append(n.routes, route)
}

func (n *recordingNavigator) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.routes)
}

func newTestContext(t *testing.T, authn Authenticator) (*Context, *session.MemoryStorage, *recordingNavigator) {
	t.Helper()
	storage := session.NewMemoryStorage()
	nav := &recordingNavigator{}
	if authn == nil {
		authn = &MockAuthenticator{ValidToken: validToken}
	}
	actx := NewContext(ContextOptions{
		Store:         session.NewStore(storage, nil),
		Authenticator: authn,
		Navigator:     nav,
	})
	return actx, storage, nav
}

func assertInvariant(t *testing.T, st State) {
	t.Helper()
	if st.IsLoading {
		return
	}
	if st.IsAuthenticated != (st.User != nil) {
		t.Fatalf("invariant broken: %#v", st)
	}
}

func TestInitialStateIsLoading(t *testing.T) {
	actx, _, _ := newTestContext(t, nil)
	st := actx.State()
	if !st.IsLoading || st.Status != StatusInitializing || st.IsAuthenticated {
		t.Fatalf("unexpected initial state: %#v", st)
	}
}

func TestInitWithoutSession(t *testing.T) {
	actx, _, _ := newTestContext(t, nil)
	st := actx.Init()
	if st.IsLoading || st.IsAuthenticated || st.Status != StatusUnauthenticated {
		t.Fatalf("unexpected state: %#v", st)
	}
	assertInvariant(t, st)
}

func TestInitWithStoredSession(t *testing.T) {
	actx, storage, _ := newTestContext(t, nil)
	if err := session.NewStore(storage, nil).Save(validToken, TokenUser()); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	st := actx.Init()
	if !st.IsAuthenticated || st.Status != StatusAuthenticated || st.User.Username != "admin" {
		t.Fatalf("unexpected state: %#v", st)
	}
	assertInvariant(t, st)
}

func TestInitDiscardsSessionWithForeignToken(t *testing.T) {
	issuer, err := NewTokenIssuer("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("NewTokenIssuer returned error: %v", err)
	}
	other, err := NewTokenIssuer("another-secret-another-secret-xx")
	if err != nil {
		t.Fatalf("NewTokenIssuer returned error: %v", err)
	}
	user := &session.User{ID: "42", Username: "alice", Role: RoleAdmin, LoginMethod: session.LoginMethodCredentials}
	signed, err := issuer.Issue(user)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	foreign, err := other.Issue(user)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	escalated := *user
	escalated.ID = "1"
	escalated.Role = RoleSuperAdmin

	tests := []struct {
		name  string
		token string
		user  *session.User
		want  bool
	}{
		{"signed by us", signed, user, true},
		{"signed with another key", foreign, user, false},
		{"not a jwt", "tok", user, false},
		{"user swapped", signed, &escalated, false},
		{"fixed token mismatch", "tok", TokenUser(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actx, storage, _ := newTestContext(t, &MockAuthenticator{ValidToken: validToken, Tokens: issuer})
			if err := session.NewStore(storage, nil).Save(tt.token, tt.user); err != nil {
				t.Fatalf("Save returned error: %v", err)
			}

			st := actx.Init()
			if st.IsAuthenticated != tt.want {
				t.Fatalf("unexpected state: %#v", st)
			}
			assertInvariant(t, st)
			if _, ok, _ := storage.GetItem(session.TokenKey); ok != tt.want {
				t.Fatalf("stored token present = %v, want %v", ok, tt.want)
			}
		})
	}
}

func TestInitKeepsOpaqueTokensWithoutIssuer(t *testing.T) {
	actx, storage, _ := newTestContext(t, nil)
	user := &session.User{ID: "7", Username: "bob", Role: RoleAdmin, LoginMethod: session.LoginMethodCredentials}
	if err := session.NewStore(storage, nil).Save("opaque", user); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if st := actx.Init(); !st.IsAuthenticated {
		t.Fatalf("unexpected state: %#v", st)
	}
}

func TestInitWithCorruptSession(t *testing.T) {
	actx, storage, _ := newTestContext(t, nil)
	_ = storage.SetItems(map[string]string{session.TokenKey: "tok", session.UserKey: "{oops"})

	st := actx.Init()
	if st.IsAuthenticated || st.Status != StatusUnauthenticated {
		t.Fatalf("unexpected state: %#v", st)
	}
	if actx.CheckAuth() {
		t.Fatal("corrupt session should be cleared")
	}
}

func TestInitRunsOnce(t *testing.T) {
	actx, storage, _ := newTestContext(t, nil)
	actx.Init()
	_ = session.NewStore(storage, nil).Save("tok", TokenUser())
	if st := actx.Init(); st.IsAuthenticated {
		t.Fatal("second Init should not re-read storage")
	}
}

func TestLoginWithValidToken(t *testing.T) {
	actx, storage, _ := newTestContext(t, nil)
	actx.Init()

	res := actx.Login(context.Background(), Credentials{Token: validToken})
	if !res.Success || res.Error != "" {
		t.Fatalf("unexpected result: %#v", res)
	}

	sess, ok := session.NewStore(storage, nil).Read()
	if !ok {
		t.Fatal("expected stored session")
	}
	if sess.Token != validToken || *sess.User != *TokenUser() {
		t.Fatalf("unexpected stored session: %#v %#v", sess.Token, sess.User)
	}
	st := actx.State()
	if !st.IsAuthenticated || st.User.LoginMethod != session.LoginMethodToken {
		t.Fatalf("unexpected state: %#v", st)
	}
	assertInvariant(t, st)
}

func TestLoginWithInvalidTokenLeavesStoreUnchanged(t *testing.T) {
	actx, storage, _ := newTestContext(t, nil)
	actx.Init()

	res := actx.Login(context.Background(), Credentials{Token: "anything-else"})
	if res.Success || res.Code != CodeInvalidToken || res.Error == "" {
		t.Fatalf("unexpected result: %#v", res)
	}
	if _, ok, _ := storage.GetItem(session.TokenKey); ok {
		t.Fatal("store should be unchanged")
	}
	if st := actx.State(); st.IsAuthenticated {
		t.Fatalf("unexpected state: %#v", st)
	}
}

func TestLoginWithCredentials(t *testing.T) {
	actx, storage, _ := newTestContext(t, nil)

	res := actx.Login(context.Background(), Credentials{Username: "a", Password: "b"})
	if !res.Success {
		t.Fatalf("unexpected result: %#v", res)
	}
	if res.User.Email != "a@admin.com" || res.User.Username != "a" || res.User.Name != "a" {
		t.Fatalf("unexpected user: %#v", res.User)
	}
	if res.User.LoginMethod != session.LoginMethodCredentials || res.User.Role != RoleAdmin {
		t.Fatalf("unexpected user: %#v", res.User)
	}
	sess, ok := session.NewStore(storage, nil).Read()
	if !ok || sess.User.Email != "a@admin.com" || sess.Token != res.Token {
		t.Fatalf("unexpected stored session: %#v", sess)
	}
}

func TestLoginWithEmptyCredentialsFails(t *testing.T) {
	cases := []Credentials{
		{Username: "", Password: "b"},
		{Username: "a", Password: ""},
		{Username: "   ", Password: "b"},
	}
	for _, cred := range cases {
		actx, storage, _ := newTestContext(t, nil)
		actx.Init()
		res := actx.Login(context.Background(), cred)
		if res.Success || res.Code != CodeMissingFields {
			t.Fatalf("%#v: unexpected result %#v", cred, res)
		}
		if _, ok, _ := storage.GetItem(session.UserKey); ok {
			t.Fatalf("%#v: store should be unchanged", cred)
		}
		if st := actx.State(); st.Status != StatusUnauthenticated {
			t.Fatalf("%#v: unexpected state %#v", cred, st)
		}
	}
}

func TestReloginWhileAuthenticatedIsRejected(t *testing.T) {
	actx, storage, _ := newTestContext(t, nil)
	if res := actx.Login(context.Background(), Credentials{Token: validToken}); !res.Success {
		t.Fatalf("first login failed: %#v", res)
	}

	res := actx.Login(context.Background(), Credentials{Username: "other", Password: "x"})
	if res.Success || res.Code != CodeAlreadyAuthenticated {
		t.Fatalf("unexpected result: %#v", res)
	}
	sess, _ := session.NewStore(storage, nil).Read()
	if sess.User.Username != "admin" {
		t.Fatalf("session should be unchanged, got %#v", sess.User)
	}
}

type blockingAuthenticator struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingAuthenticator) Authenticate(ctx context.Context, cred Credentials) (*Identity, error) {
	close(b.started)
	<-b.release
	return &Identity{Token: "tok", User: TokenUser()}, nil
}

func (b *blockingAuthenticator) Register(ctx context.Context, data RegisterData) (*Identity, error) {
	return nil, errRegistrationDisabled
}

func TestOverlappingLoginIsRejected(t *testing.T) {
	authn := &blockingAuthenticator{started: make(chan struct{}), release: make(chan struct{})}
	actx, _, _ := newTestContext(t, authn)

	done := make(chan Result)
	go func() {
		done <- actx.Login(context.Background(), Credentials{Token: "tok"})
	}()
	<-authn.started

	second := actx.Login(context.Background(), Credentials{Token: "tok"})
	if second.Success || second.Code != CodeInProgress {
		t.Fatalf("unexpected result for overlapping login: %#v", second)
	}

	close(authn.release)
	if first := <-done; !first.Success {
		t.Fatalf("first login should succeed: %#v", first)
	}
}

func TestCloseDiscardsInFlightResult(t *testing.T) {
	authn := &blockingAuthenticator{started: make(chan struct{}), release: make(chan struct{})}
	actx, storage, _ := newTestContext(t, authn)

	done := make(chan Result)
	go func() {
		done <- actx.Login(context.Background(), Credentials{Token: "tok"})
	}()
	<-authn.started
	actx.Close()
	close(authn.release)

	res := <-done
	if res.Success || res.Code != CodeContextClosed {
		t.Fatalf("unexpected result: %#v", res)
	}
	if _, ok, _ := storage.GetItem(session.TokenKey); ok {
		t.Fatal("closed context must not write the session")
	}
}

type faultyAuthenticator struct {
	panicMsg string
	err      error
	identity *Identity
}

func (f *faultyAuthenticator) Authenticate(ctx context.Context, cred Credentials) (*Identity, error) {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.identity, f.err
}

func (f *faultyAuthenticator) Register(ctx context.Context, data RegisterData) (*Identity, error) {
	return f.Authenticate(ctx, Credentials{})
}

func TestUnexpectedFailuresBecomeGenericResults(t *testing.T) {
	cases := []*faultyAuthenticator{
		{panicMsg: "boom"},
		{err: errors.New("backend unavailable")},
		{identity: &Identity{Token: "", User: TokenUser()}},
	}
	for i, authn := range cases {
		actx, storage, _ := newTestContext(t, authn)
		res := actx.Login(context.Background(), Credentials{Token: "x"})
		if res.Success || res.Error != "ログインに失敗しました" || res.Code != CodeAuthFailed {
			t.Fatalf("case %d: unexpected result %#v", i, res)
		}
		if _, ok, _ := storage.GetItem(session.TokenKey); ok {
			t.Fatalf("case %d: store should be unchanged", i)
		}

		reg := actx.Register(context.Background(), RegisterData{Username: "u", Password: "p", Email: "e@x"})
		if reg.Success || reg.Error != "登録に失敗しました" {
			t.Fatalf("case %d: unexpected register result %#v", i, reg)
		}
	}
}

func TestLoginHonoursContextCancellation(t *testing.T) {
	actx, _, _ := newTestContext(t, &MockAuthenticator{ValidToken: validToken, Latency: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := actx.Login(ctx, Credentials{Token: validToken})
	if res.Success || res.Code != CodeAuthFailed {
		t.Fatalf("unexpected result: %#v", res)
	}
}

func TestRegister(t *testing.T) {
	actx, storage, _ := newTestContext(t, nil)

	res := actx.Register(context.Background(), RegisterData{Username: "newbie", Password: "pw", Email: "newbie@example.com"})
	if !res.Success {
		t.Fatalf("unexpected result: %#v", res)
	}
	if res.User.Email != "newbie@example.com" || res.User.LoginMethod != session.LoginMethodRegister {
		t.Fatalf("unexpected user: %#v", res.User)
	}
	if !actx.State().IsAuthenticated || !actx.CheckAuth() {
		t.Fatal("register should log the user in")
	}
	if _, ok := session.NewStore(storage, nil).Read(); !ok {
		t.Fatal("expected stored session")
	}
}

func TestRegisterMissingFields(t *testing.T) {
	actx, storage, _ := newTestContext(t, nil)
	res := actx.Register(context.Background(), RegisterData{Username: "u", Password: "p"})
	if res.Success || res.Code != CodeMissingFields {
		t.Fatalf("unexpected result: %#v", res)
	}
	if _, ok, _ := storage.GetItem(session.TokenKey); ok {
		t.Fatal("store should be unchanged")
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	actx, storage, nav := newTestContext(t, nil)
	if res := actx.Login(context.Background(), Credentials{Token: validToken}); !res.Success {
		t.Fatalf("login failed: %#v", res)
	}

	actx.Logout()
	first := actx.State()
	actx.Logout()
	second := actx.State()

	if first.Status != StatusUnauthenticated || second.Status != StatusUnauthenticated {
		t.Fatalf("unexpected states: %#v %#v", first, second)
	}
	if first.User != nil || second.User != nil {
		t.Fatal("user should be cleared")
	}
	if nav.count() != 1 || nav.routes[0] != DefaultLoginRoute {
		t.Fatalf("expected a single redirect to login, got %v", nav.routes)
	}
	for _, key := range []string{session.TokenKey, session.UserKey} {
		if _, ok, _ := storage.GetItem(key); ok {
			t.Fatalf("%s should be cleared", key)
		}
	}
}

func TestLoginAfterLogoutRedirectsAgainOnNextLogout(t *testing.T) {
	actx, _, nav := newTestContext(t, nil)
	actx.Login(context.Background(), Credentials{Token: validToken})
	actx.Logout()
	if res := actx.Login(context.Background(), Credentials{Token: validToken}); !res.Success {
		t.Fatalf("login after logout failed: %#v", res)
	}
	actx.Logout()
	if nav.count() != 2 {
		t.Fatalf("expected one redirect per logout transition, got %d", nav.count())
	}
}

func TestCheckAuthIsIndependentOfState(t *testing.T) {
	actx, storage, _ := newTestContext(t, nil)
	if actx.CheckAuth() {
		t.Fatal("expected no token")
	}
	_ = storage.SetItems(map[string]string{session.TokenKey: "tok"})
	if !actx.CheckAuth() {
		t.Fatal("CheckAuth should see the stored token before Init")
	}
	if actx.State().Status != StatusInitializing {
		t.Fatal("CheckAuth must not drive the state machine")
	}
}

func TestStatusString(t *testing.T) {
	if StatusAuthenticated.String() != "authenticated" || Status(9).String() != "Status(9)" {
		t.Fatal("unexpected status names")
	}
}
