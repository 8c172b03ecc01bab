package runtime

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tjfontaine/creatorlink/internal/config"
	"github.com/tjfontaine/creatorlink/internal/identity"
	"github.com/tjfontaine/creatorlink/internal/mockapi"
	"github.com/tjfontaine/creatorlink/internal/session"
	"github.com/tjfontaine/creatorlink/internal/tokens"
	"github.com/tjfontaine/creatorlink/internal/tokens/memstore"
)

type recordingNav struct {
	mu    sync.Mutex
	paths []string
}

func (n *recordingNav) Navigate(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paths = append(n.paths, path)
}

func (n *recordingNav) seen() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.paths)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		API: config.APIConfig{
			BaseURL:   baseURL,
			Timeout:   5 * time.Second,
			UserAgent: "creatorlink-test",
		},
		Tokens:   config.TokensConfig{Store: config.StoreMemory},
		Cache:    config.CacheConfig{Size: 32, TTL: time.Minute},
		Payments: config.PaymentsConfig{PublishableKey: "pk_test", Currency: "inr", Mode: "payment"},
		Voice:    config.VoiceConfig{AgentID: "agent_test"},
	}
}

func startBackend(t *testing.T) (*mockapi.Server, string) {
	t.Helper()
	srv := mockapi.New(mockapi.Options{JWTSecret: "runtime-test", TokenTTL: time.Hour, Logger: quietLogger()})
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return srv, ts.URL
}

func TestClient_New_RequiresConfig(t *testing.T) {
	_, err := New(context.Background())
	if err == nil {
		t.Fatal("Expected error without config")
	}
	if err.Error() != "config required (use WithConfig or WithFileConfig)" {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestClient_New_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig("not a url")
	if _, err := New(context.Background(), WithConfig(cfg)); err == nil {
		t.Error("Expected error for invalid base url")
	}
}

func TestClient_SessionSurvivesRestart(t *testing.T) {
	srv, baseURL := startBackend(t)
	if _, err := srv.Store.AddUser(mockapi.User{Email: "brand@glow.in", FullName: "Glow", Kind: identity.KindBrand}, "secret123"); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "tokens.db")

	nav := &recordingNav{}
	first, err := New(ctx,
		WithConfig(testConfig(baseURL)),
		WithSQLiteTokens(dbPath),
		WithNavigator(nav),
		WithLogger(quietLogger()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := first.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if d := first.Session.Visit("/campaigns"); d.Redirect != "/login" {
		t.Errorf("anonymous visit = %+v, want redirect to /login", d)
	}

	if _, err := first.SignIn(ctx, "brand@glow.in", "secret123"); err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if tok, _ := first.Vault.Token(ctx); tok == "" {
		t.Fatal("token not persisted after sign in")
	}
	if err := first.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	nav = &recordingNav{}
	second, err := New(ctx,
		WithConfig(testConfig(baseURL)),
		WithSQLiteTokens(dbPath),
		WithNavigator(nav),
		WithLogger(quietLogger()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer second.Shutdown(ctx)
	if err := second.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	state, id := second.Session.Session()
	if state != session.StateAuthenticated || id.Email != "brand@glow.in" {
		t.Fatalf("restored session = %v %+v", state, id)
	}
	if d := second.Session.Visit("/"); d.Redirect != "/dashboard" {
		t.Errorf("authenticated root visit = %+v", d)
	}
	if _, err := second.Platform.Campaigns.List(ctx); err != nil {
		t.Fatalf("List() with restored token error = %v", err)
	}

	if err := second.Logout(ctx); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if tok, _ := second.Vault.Token(ctx); tok != "" {
		t.Errorf("token after logout = %q", tok)
	}
	if got := nav.seen(); got[len(got)-1] != "/" {
		t.Errorf("navigations = %v, want logout to end on /", got)
	}

	if _, err := second.Platform.Campaigns.List(ctx); err == nil {
		t.Fatal("List() after logout should be rejected")
	}
	if got := nav.seen(); got[len(got)-1] != "/login" {
		t.Errorf("navigations = %v, want /login after 401", got)
	}
}

func TestClient_ExpiredStoredTokenDropped(t *testing.T) {
	_, baseURL := startBackend(t)
	ctx := context.Background()

	claims := identity.Claims{
		Email: "old@brand.in",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	stale, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
	if err != nil {
		t.Fatal(err)
	}
	store := memstore.New()
	if err := store.Set(ctx, tokens.Key, stale, time.Time{}); err != nil {
		t.Fatal(err)
	}

	c, err := New(ctx,
		WithConfig(testConfig(baseURL)),
		WithTokenStore(store),
		WithNavigator(&recordingNav{}),
		WithLogger(quietLogger()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer c.Shutdown(ctx)
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if state, _ := c.Session.Session(); state != session.StateAnonymous {
		t.Errorf("state = %v, want anonymous", state)
	}
	if tok, _ := c.Vault.Token(ctx); tok != "" {
		t.Errorf("expired token kept: %q", tok)
	}
}

func TestClient_TokenChangePurgesCache(t *testing.T) {
	srv, baseURL := startBackend(t)
	for _, u := range []mockapi.User{
		{Email: "one@brand.in", FullName: "One", Kind: identity.KindBrand},
		{Email: "two@brand.in", FullName: "Two", Kind: identity.KindBrand},
	} {
		if _, err := srv.Store.AddUser(u, "secret123"); err != nil {
			t.Fatal(err)
		}
	}
	ctx := context.Background()

	c, err := New(ctx, WithConfig(testConfig(baseURL)), WithNavigator(&recordingNav{}), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer c.Shutdown(ctx)
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	waitForCache := func(what string, cond func(n int) bool) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for !cond(c.Cache.Len()) {
			if time.Now().After(deadline) {
				t.Fatalf("timed out waiting for %s, cache len = %d", what, c.Cache.Len())
			}
			time.Sleep(5 * time.Millisecond)
		}
	}
	signIn := func(email string) string {
		t.Helper()
		if _, err := c.SignIn(ctx, email, "secret123"); err != nil {
			t.Fatalf("SignIn(%s) error = %v", email, err)
		}
		var tok string
		deadline := time.Now().Add(2 * time.Second)
		for {
			tok, _ = c.Vault.Token(ctx)
			if _, id := c.Session.Session(); tok != "" && id != nil && id.Email == email {
				return tok
			}
			if time.Now().After(deadline) {
				t.Fatalf("token for %s never stored", email)
			}
			time.Sleep(5 * time.Millisecond)
		}
	}

	first := signIn("one@brand.in")
	if _, err := c.Platform.Campaigns.List(ctx); err != nil {
		t.Fatalf("List() error = %v", err)
	}
	waitForCache("first principal's read", func(n int) bool { return n > 0 })

	// Re-storing the same token is not a change.
	if err := c.Vault.Set(ctx, first, time.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if c.Cache.Len() == 0 {
		t.Error("cache purged by an unchanged token")
	}

	signIn("two@brand.in")
	waitForCache("purge after principal change", func(n int) bool { return n == 0 })

	if _, err := c.Platform.Campaigns.List(ctx); err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if err := c.Logout(ctx); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if n := c.Cache.Len(); n != 0 {
		t.Errorf("cache len after logout = %d, want 0", n)
	}
}

func TestClient_PaymentsConfigFromSettings(t *testing.T) {
	_, baseURL := startBackend(t)
	c, err := New(context.Background(), WithConfig(testConfig(baseURL)), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer c.Shutdown(context.Background())

	if got := c.Platform.Payments.Config(); got.PublishableKey != "pk_test" || got.Currency != "inr" {
		t.Errorf("payments config = %+v", got)
	}
	if got := c.Platform.VoiceAgentID(); got != "agent_test" {
		t.Errorf("voice agent id = %q", got)
	}
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	mem, err := OpenStore(ctx, config.TokensConfig{Store: config.StoreMemory})
	if err != nil {
		t.Fatalf("OpenStore(memory) error = %v", err)
	}
	mem.Close()

	lite, err := OpenStore(ctx, config.TokensConfig{
		Store:  config.StoreSQLite,
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "t.db")},
	})
	if err != nil {
		t.Fatalf("OpenStore(sqlite) error = %v", err)
	}
	lite.Close()

	if _, err := OpenStore(ctx, config.TokensConfig{Store: "etcd"}); err == nil {
		t.Error("Expected error for unknown store")
	}
}
