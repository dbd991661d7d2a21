package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"golang.org/x/oauth2"

	"davinci-agent/internal/model"
	"davinci-agent/internal/session"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// tokenServer 模拟提供方的 token 端点
func tokenServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if status != http.StatusOK {
			http.Error(w, `{"error":"invalid_grant"}`, status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.Form.Get("grant_type") {
		case "authorization_code":
			io.WriteString(w, `{"access_token":"access-1","token_type":"Bearer","refresh_token":"refresh-1","expires_in":3600}`)
		case "refresh_token":
			io.WriteString(w, `{"access_token":"access-2","token_type":"Bearer","expires_in":3600}`)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newManager(t *testing.T, tokenURL string) (*Manager, *session.MemoryStore) {
	t.Helper()
	store := session.NewMemoryStore()
	google := ProviderConfig{
		ClientID: "cid", ClientSecret: "secret", RedirectURL: "http://localhost/auth/google/callback",
		Enabled: true, AuthURL: "https://accounts.example.com/auth", TokenURL: tokenURL,
	}
	return NewManager(google, ProviderConfig{}, store, discard), store
}

func TestLoginURL(t *testing.T) {
	m, _ := newManager(t, "")
	if got := m.LoginURL("s 1", "google"); got != "/auth/google/login?session_id=s+1" {
		t.Errorf("LoginURL() = %q", got)
	}
}

func TestGet_MissingToken(t *testing.T) {
	m, _ := newManager(t, "")
	_, err := m.Get(context.Background(), "s1", "google")
	if !errors.Is(err, model.ErrMissingCredentials) {
		t.Errorf("Get() error = %v, want ErrMissingCredentials", err)
	}
}

func TestGet_DisabledProvider(t *testing.T) {
	m, _ := newManager(t, "")
	_, err := m.Get(context.Background(), "s1", "microsoft")
	if !errors.Is(err, model.ErrProviderDisabled) {
		t.Errorf("Get() error = %v, want ErrProviderDisabled", err)
	}
	if _, err := m.AuthCodeURL("s1", "microsoft"); !errors.Is(err, model.ErrProviderDisabled) {
		t.Errorf("AuthCodeURL() error = %v, want ErrProviderDisabled", err)
	}
}

func TestLoginFlow(t *testing.T) {
	srv := tokenServer(t, http.StatusOK)
	m, _ := newManager(t, srv.URL)
	ctx := context.Background()

	authURL, err := m.AuthCodeURL("s1", "google")
	if err != nil {
		t.Fatalf("AuthCodeURL() error = %v", err)
	}
	u, _ := url.Parse(authURL)
	q := u.Query()
	if q.Get("client_id") != "cid" || q.Get("access_type") != "offline" {
		t.Errorf("auth url query = %v", q)
	}
	if !strings.Contains(q.Get("scope"), "gmail.send") {
		t.Errorf("scope = %q", q.Get("scope"))
	}
	state := q.Get("state")

	if _, err := m.Exchange(ctx, "google", "bogus", "code"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Exchange(bogus) error = %v, want ErrInvalidState", err)
	}

	sid, err := m.Exchange(ctx, "google", state, "code-1")
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if sid != "s1" {
		t.Errorf("session = %q, want s1", sid)
	}
	if _, err := m.Exchange(ctx, "google", state, "code-1"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("state reused: error = %v", err)
	}

	creds, err := m.Get(ctx, "s1", "google")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if creds.AccessToken != "access-1" || creds.Authorization() != "Bearer access-1" {
		t.Errorf("creds = %+v", creds)
	}
}

func TestExchange_ExpiredState(t *testing.T) {
	srv := tokenServer(t, http.StatusOK)
	m, _ := newManager(t, srv.URL)
	authURL, _ := m.AuthCodeURL("s1", "google")
	u, _ := url.Parse(authURL)

	m.now = func() time.Time { return time.Now().Add(stateTTL + time.Minute) }
	if _, err := m.Exchange(context.Background(), "google", u.Query().Get("state"), "code"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Exchange() error = %v, want ErrInvalidState", err)
	}
}

func saveExpired(t *testing.T, store *session.MemoryStore) {
	t.Helper()
	tok := &oauth2.Token{AccessToken: "old", TokenType: "Bearer", RefreshToken: "refresh-1", Expiry: time.Now().Add(-time.Hour)}
	raw, _ := sonic.Marshal(tok)
	if err := store.SaveToken(context.Background(), "s1", "google", raw); err != nil {
		t.Fatalf("save token: %v", err)
	}
}

func TestGet_RefreshesExpiredToken(t *testing.T) {
	srv := tokenServer(t, http.StatusOK)
	m, store := newManager(t, srv.URL)
	saveExpired(t, store)

	creds, err := m.Get(context.Background(), "s1", "google")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if creds.AccessToken != "access-2" {
		t.Errorf("AccessToken = %q, want refreshed access-2", creds.AccessToken)
	}
	raw, _ := store.LoadToken(context.Background(), "s1", "google")
	if !strings.Contains(string(raw), "access-2") {
		t.Errorf("refreshed token not persisted: %s", raw)
	}
}

func TestGet_RefreshFailureIsMissingCredentials(t *testing.T) {
	srv := tokenServer(t, http.StatusBadRequest)
	m, store := newManager(t, srv.URL)
	saveExpired(t, store)

	var missing *model.MissingCredentialsError
	_, err := m.Get(context.Background(), "s1", "google")
	if !errors.As(err, &missing) || missing.Provider != "google" {
		t.Errorf("Get() error = %v, want MissingCredentialsError for google", err)
	}
}
