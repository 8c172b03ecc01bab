package runtime

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tjfontaine/creatorlink/internal/config"
	"github.com/tjfontaine/creatorlink/internal/session"
	"github.com/tjfontaine/creatorlink/internal/tokens"
	"github.com/tjfontaine/creatorlink/internal/tokens/memstore"
	"github.com/tjfontaine/creatorlink/internal/tokens/sqlitestore"
)

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithConfig uses an already loaded configuration.
func WithConfig(cfg *config.Config) Option {
	return func(c *Client) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		c.Config = cfg
		return nil
	}
}

// WithFileConfig loads configuration from path and the environment.
func WithFileConfig(path string) Option {
	return func(c *Client) error {
		cfg, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		c.Config = cfg
		return nil
	}
}

// WithTokenStore uses store instead of the configured one. The client
// closes it on Shutdown.
func WithTokenStore(store tokens.Store) Option {
	return func(c *Client) error {
		c.store = store
		return nil
	}
}

// WithMemoryTokens keeps the token for the life of the process only.
func WithMemoryTokens() Option {
	return WithTokenStore(memstore.New())
}

// WithSQLiteTokens persists the token in a SQLite file at path.
func WithSQLiteTokens(path string) Option {
	return func(c *Client) error {
		store, err := sqlitestore.New(path)
		if err != nil {
			return fmt.Errorf("create sqlite token store: %w", err)
		}
		c.store = store
		return nil
	}
}

// WithNavigator receives the session gate's redirects.
func WithNavigator(nav session.Navigator) Option {
	return func(c *Client) error {
		c.nav = nav
		return nil
	}
}

// WithRoutes replaces the public route table.
func WithRoutes(r session.Routes) Option {
	return func(c *Client) error {
		c.routes = &r
		return nil
	}
}

// WithHTTPClient sets the HTTP client used by both transports.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		c.logger = logger
		return nil
	}
}
