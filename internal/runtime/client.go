// Package runtime assembles the data-sync layer: token storage, the
// transport pair, the read cache, the identity provider, the session gate
// and the typed platform client, with their shared lifecycle.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/tjfontaine/creatorlink/internal/config"
	"github.com/tjfontaine/creatorlink/internal/identity"
	"github.com/tjfontaine/creatorlink/internal/platform"
	"github.com/tjfontaine/creatorlink/internal/query"
	"github.com/tjfontaine/creatorlink/internal/session"
	"github.com/tjfontaine/creatorlink/internal/tokens"
	"github.com/tjfontaine/creatorlink/internal/tokens/memstore"
	"github.com/tjfontaine/creatorlink/internal/tokens/redisstore"
	"github.com/tjfontaine/creatorlink/internal/tokens/sqlitestore"
	"github.com/tjfontaine/creatorlink/internal/transport"
)

// Client is the assembled client. Fields are valid after New returns.
type Client struct {
	Config    *config.Config
	Vault     *tokens.Vault
	Transport transport.Pair
	Cache     *query.Client
	Identity  *identity.Backend
	Session   *session.Gate
	Platform  *platform.Client

	// Dependencies (injected via options)
	store      tokens.Store
	nav        session.Navigator
	routes     *session.Routes
	httpClient *http.Client
	logger     *slog.Logger

	mu      sync.Mutex
	started bool

	// tokenMu guards lastToken. It is separate from mu because the vault
	// notifies while Start holds mu.
	tokenMu   sync.Mutex
	lastToken string
}

// New builds a Client. A config is required; the token store defaults to
// the one named in the config.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	c := &Client{logger: slog.Default()}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if c.Config == nil {
		return nil, errors.New("config required (use WithConfig or WithFileConfig)")
	}
	if c.store == nil {
		store, err := OpenStore(ctx, c.Config.Tokens)
		if err != nil {
			return nil, fmt.Errorf("open token store: %w", err)
		}
		c.store = store
	}
	if c.nav == nil {
		c.logger.Info("no navigator specified, redirects are only logged")
		c.nav = session.NavigatorFunc(func(path string) {
			c.logger.Info("navigate", slog.String("to", path))
		})
	}

	cfg := c.Config
	c.Vault = tokens.NewVault(c.store, c.logger)

	topts := []transport.ClientOption{
		transport.WithBaseURL(cfg.API.BaseURL),
		transport.WithTimeout(cfg.API.Timeout),
		transport.WithUserAgent(cfg.API.UserAgent),
		transport.WithRateLimit(cfg.API.RateLimit, cfg.API.RateBurst),
		transport.WithTokenSource(c.Vault),
		transport.WithLogger(c.logger),
	}
	if c.httpClient != nil {
		topts = append(topts, transport.WithHTTPClient(c.httpClient))
	}
	c.Transport = transport.NewPair(topts...)

	c.Cache = query.NewClient(
		query.WithSize(cfg.Cache.Size),
		query.WithTTL(cfg.Cache.TTL),
		query.WithLogger(c.logger),
	)
	c.Vault.OnChange(c.tokenChanged)

	c.Identity = identity.NewBackend(c.Transport.Public, identity.WithLogger(c.logger))

	gopts := []session.Option{session.WithLogger(c.logger)}
	if c.routes != nil {
		gopts = append(gopts, session.WithRoutes(*c.routes))
	}
	c.Session = session.New(c.Identity, c.Vault, c.Transport.Signals, c.nav, gopts...)

	c.Platform = platform.New(c.Transport, c.Cache,
		platform.WithLogger(c.logger),
		platform.WithPayments(platform.PaymentsConfig{
			PublishableKey: cfg.Payments.PublishableKey,
			Currency:       cfg.Payments.Currency,
			Mode:           cfg.Payments.Mode,
		}),
		platform.WithVoiceAgent(cfg.Voice.AgentID),
	)

	return c, nil
}

// Start resumes a stored session, if any, and starts the session gate. A
// stored token that is expired or unreadable is dropped by the gate.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}

	token, err := c.Vault.Token(ctx)
	if err != nil {
		return fmt.Errorf("read stored token: %w", err)
	}
	if token != "" {
		if _, err := c.Identity.Restore(token); err != nil {
			c.logger.Info("stored session not restored", slog.String("reason", err.Error()))
		}
	}

	c.Session.Start()
	c.started = true

	state, id := c.Session.Session()
	attrs := []any{slog.String("state", string(state))}
	if id != nil {
		attrs = append(attrs, slog.String("email", id.Email))
	}
	c.logger.Debug("session started", attrs...)
	return nil
}

// Shutdown stops the gate and closes the token store.
func (c *Client) Shutdown(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Session.Close()
	c.started = false

	if err := c.Vault.Close(); err != nil {
		c.logger.Error("failed to close token store", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// SignIn signs in through the identity provider. The gate persists the
// token when the identity change lands.
func (c *Client) SignIn(ctx context.Context, email, password string) (*identity.Identity, error) {
	return c.Identity.SignIn(ctx, email, password)
}

// Register signs up and, when the backend returns a token, signs in.
func (c *Client) Register(ctx context.Context, reg identity.Registration) (*identity.Identity, error) {
	return c.Identity.Register(ctx, reg)
}

// Logout signs out, clears the token and navigates to the landing page.
// Clearing the token purges the read cache.
func (c *Client) Logout(ctx context.Context) error {
	return c.Session.Logout(ctx)
}

// tokenChanged drops every cached read when the stored token changes, so
// one principal's data is never served to the next.
func (c *Client) tokenChanged(token string) {
	c.tokenMu.Lock()
	if token == c.lastToken {
		c.tokenMu.Unlock()
		return
	}
	c.lastToken = token
	c.tokenMu.Unlock()

	c.Cache.Purge()
	c.logger.Debug("token changed, read cache purged", slog.Bool("signed_in", token != ""))
}

// OpenStore opens the token store named by cfg.Store.
func OpenStore(ctx context.Context, cfg config.TokensConfig) (tokens.Store, error) {
	switch cfg.Store {
	case config.StoreMemory, "":
		return memstore.New(), nil
	case config.StoreSQLite:
		store, err := sqlitestore.New(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StoreRedis:
		store, err := redisstore.Dial(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Prefix)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	return nil, fmt.Errorf("unknown token store %q", cfg.Store)
}
