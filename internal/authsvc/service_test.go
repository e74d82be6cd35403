package authsvc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/donnahq/donna/internal/config"
	"github.com/donnahq/donna/internal/tokenstore"
)

type fakeStore struct {
	mu    sync.Mutex
	creds map[string]tokenstore.Credential
	puts  int
	fail  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{creds: map[string]tokenstore.Credential{}}
}

func (f *fakeStore) key(userID, service string) string { return userID + "/" + service }

func (f *fakeStore) Get(ctx context.Context, userID, service string) (tokenstore.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return tokenstore.Credential{}, f.fail
	}
	cred, ok := f.creds[f.key(userID, service)]
	if !ok {
		return tokenstore.Credential{}, tokenstore.ErrNotFound
	}
	return cred, nil
}

func (f *fakeStore) Put(ctx context.Context, userID, service string, params tokenstore.PutParams) (tokenstore.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return tokenstore.Credential{}, f.fail
	}
	f.puts++
	prev := f.creds[f.key(userID, service)]
	cred := tokenstore.Credential{
		UserID:       userID,
		Service:      service,
		AccessToken:  params.AccessToken,
		RefreshToken: params.RefreshToken,
		ExpiresAt:    params.ExpiresAt,
		ExtraData:    params.ExtraData,
	}
	if cred.RefreshToken == "" {
		cred.RefreshToken = prev.RefreshToken
	}
	f.creds[f.key(userID, service)] = cred
	return cred, nil
}

func (f *fakeStore) set(userID, service string, cred tokenstore.Credential) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creds[f.key(userID, service)] = cred
}

// tokenEndpoint is an httptest server mimicking a provider refresh endpoint.
type tokenEndpoint struct {
	srv   *httptest.Server
	mu    sync.Mutex
	calls int
	fail  bool
}

func newTokenEndpoint(t *testing.T, accessToken string, expiresIn int) *tokenEndpoint {
	t.Helper()
	te := &tokenEndpoint{}
	te.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		te.mu.Lock()
		te.calls++
		fail := te.fail
		te.mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"invalid_grant"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":%q,"token_type":"Bearer","expires_in":%d,"scope":"tasks:read"}`, accessToken, expiresIn)
	}))
	t.Cleanup(te.srv.Close)
	return te
}

func (te *tokenEndpoint) callCount() int {
	te.mu.Lock()
	defer te.mu.Unlock()
	return te.calls
}

func newTestService(store CredentialStore, tokenURL string) *Service {
	oauthCfg := map[string]config.OAuthConfig{
		ProviderGoogle:   {ClientID: "cid", ClientSecret: "cs", TokenURL: tokenURL},
		ProviderTickTick: {ClientID: "cid", ClientSecret: "cs", TokenURL: tokenURL},
	}
	return NewService(nil, store, oauthCfg)
}

func TestTokenMissingCredential(t *testing.T) {
	te := newTokenEndpoint(t, "unused", 3600)
	svc := newTestService(newFakeStore(), te.srv.URL)

	_, err := svc.Token(context.Background(), "u1", ServiceCalendar)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Token = %v, want ErrUnavailable", err)
	}
	if te.callCount() != 0 {
		t.Fatalf("expected no refresh calls, got %d", te.callCount())
	}
}

func TestTokenFreshCredentialNoRefresh(t *testing.T) {
	te := newTokenEndpoint(t, "unused", 3600)
	store := newFakeStore()
	store.set("u1", ServiceCalendar, tokenstore.Credential{
		UserID:      "u1",
		Service:     ServiceCalendar,
		AccessToken: "fresh",
		ExpiresAt:   time.Now().Add(time.Hour),
	})
	svc := newTestService(store, te.srv.URL)

	tok, err := svc.Token(context.Background(), "u1", ServiceCalendar)
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok != "fresh" {
		t.Fatalf("Token = %q, want stored token unchanged", tok)
	}
	if te.callCount() != 0 {
		t.Fatalf("expected no refresh calls, got %d", te.callCount())
	}
}

func TestTokenNonExpiringCredential(t *testing.T) {
	te := newTokenEndpoint(t, "unused", 3600)
	store := newFakeStore()
	store.set("u1", ServiceTasks, tokenstore.Credential{
		UserID:      "u1",
		Service:     ServiceTasks,
		AccessToken: "forever",
	})
	svc := newTestService(store, te.srv.URL)

	tok, err := svc.Token(context.Background(), "u1", ServiceTasks)
	if err != nil || tok != "forever" {
		t.Fatalf("Token = %q, %v; want stored token", tok, err)
	}
}

func TestTokenExpiredWithRefresh(t *testing.T) {
	te := newTokenEndpoint(t, "new", 3600)
	store := newFakeStore()
	store.set("u2", ServiceTasks, tokenstore.Credential{
		UserID:       "u2",
		Service:      ServiceTasks,
		AccessToken:  "old",
		RefreshToken: "r1",
		ExpiresAt:    time.Now().Add(-time.Second),
	})
	svc := newTestService(store, te.srv.URL)

	before := time.Now()
	tok, err := svc.Token(context.Background(), "u2", ServiceTasks)
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok != "new" {
		t.Fatalf("Token = %q, want refreshed token", tok)
	}
	if te.callCount() != 1 {
		t.Fatalf("refresh calls = %d, want 1", te.callCount())
	}
	if store.puts != 1 {
		t.Fatalf("persisted updates = %d, want exactly 1", store.puts)
	}

	stored, _ := store.Get(context.Background(), "u2", ServiceTasks)
	if stored.AccessToken != "new" {
		t.Fatalf("stored access token = %q, want %q", stored.AccessToken, "new")
	}
	wantExpiry := before.Add(3600 * time.Second)
	if stored.ExpiresAt.Before(wantExpiry.Add(-time.Minute)) || stored.ExpiresAt.After(wantExpiry.Add(time.Minute)) {
		t.Fatalf("stored expiry = %v, want about %v", stored.ExpiresAt, wantExpiry)
	}
	if stored.RefreshToken != "r1" {
		t.Fatalf("refresh token = %q, want retained %q", stored.RefreshToken, "r1")
	}
}

func TestTokenExpiredWithoutRefreshToken(t *testing.T) {
	te := newTokenEndpoint(t, "unused", 3600)
	store := newFakeStore()
	store.set("u1", ServiceEmail, tokenstore.Credential{
		UserID:      "u1",
		Service:     ServiceEmail,
		AccessToken: "old",
		ExpiresAt:   time.Now().Add(-time.Minute),
	})
	svc := newTestService(store, te.srv.URL)

	_, err := svc.Token(context.Background(), "u1", ServiceEmail)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Token = %v, want ErrUnavailable", err)
	}
	if te.callCount() != 0 {
		t.Fatalf("expected no outbound HTTP calls, got %d", te.callCount())
	}
}

func TestTokenRefreshRejected(t *testing.T) {
	te := newTokenEndpoint(t, "unused", 3600)
	te.fail = true
	store := newFakeStore()
	store.set("u1", ServiceTasks, tokenstore.Credential{
		UserID:       "u1",
		Service:      ServiceTasks,
		AccessToken:  "old",
		RefreshToken: "revoked",
		ExpiresAt:    time.Now().Add(-time.Minute),
	})
	svc := newTestService(store, te.srv.URL)

	_, err := svc.Token(context.Background(), "u1", ServiceTasks)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Token = %v, want ErrUnavailable", err)
	}
	// The stale credential stays in place for a future re-auth to overwrite.
	stored, err := store.Get(context.Background(), "u1", ServiceTasks)
	if err != nil || stored.RefreshToken != "revoked" {
		t.Fatalf("stale credential should be left in place, got %+v, %v", stored, err)
	}
}

func TestTokenStoreFailureIsHardError(t *testing.T) {
	te := newTokenEndpoint(t, "unused", 3600)
	store := newFakeStore()
	store.fail = errors.New("connection refused")
	svc := newTestService(store, te.srv.URL)

	_, err := svc.Token(context.Background(), "u1", ServiceCalendar)
	if errors.Is(err, ErrUnavailable) || err == nil {
		t.Fatalf("Token = %v, want hard persistence error", err)
	}
}

func TestProviderFor(t *testing.T) {
	svc := newTestService(newFakeStore(), "http://127.0.0.1:0/token")
	for _, service := range []string{ServiceCalendar, ServiceEmail, ServiceTasks, ProviderGoogle} {
		if _, ok := svc.ProviderFor(service); !ok {
			t.Errorf("ProviderFor(%q) not found", service)
		}
	}
	if _, ok := svc.ProviderFor("unknown"); ok {
		t.Error("ProviderFor(unknown) should not resolve")
	}
}
