// Package session owns who is signed in and what that means for navigation.
//
// The Gate is the single writer of the stored token. It listens to the
// identity provider and to the transport's unauthorized signal, and decides
// redirects; nothing else navigates on auth grounds.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tjfontaine/creatorlink/internal/identity"
	"github.com/tjfontaine/creatorlink/internal/transport"
)

// State is the gate's view of the session.
type State string

const (
	StateLoading       State = "loading"
	StateAuthenticated State = "authenticated"
	StateAnonymous     State = "anonymous"
)

// Navigator performs redirects.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

// Navigate implements Navigator.
func (f NavigatorFunc) Navigate(path string) { f(path) }

// TokenStore is where the gate persists the bearer token. *tokens.Vault
// implements it.
type TokenStore interface {
	Set(ctx context.Context, token string, expiresAt time.Time) error
	Clear(ctx context.Context) error
}

// Decision is the outcome of visiting a path.
type Decision struct {
	// Render is true when the page may be shown.
	Render bool

	// Redirect is the path navigated to, empty when no redirect was issued.
	Redirect string
}

// Option configures a Gate.
type Option func(*Gate)

// WithRoutes replaces the default route table.
func WithRoutes(r Routes) Option {
	return func(g *Gate) {
		g.routes = r
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

type redirectKey struct {
	path  string
	state State
}

// Gate is the session owner.
type Gate struct {
	provider identity.Provider
	store    TokenStore
	signals  *transport.Signals
	nav      Navigator
	routes   Routes
	logger   *slog.Logger

	mu         sync.Mutex
	state      State
	identity   *identity.Identity
	path       string
	issued     map[redirectKey]bool
	loggingOut bool
	unsubs     []func()

	// writeMu orders every token write. epoch is bumped by each forced
	// sign-out so a Set started before it is dropped instead of landing
	// after the Clear.
	writeMu sync.Mutex
	epoch   uint64
}

// New creates a gate in the loading state. signals may be nil when there is
// no authenticated transport to watch.
func New(provider identity.Provider, store TokenStore, signals *transport.Signals, nav Navigator, opts ...Option) *Gate {
	g := &Gate{
		provider: provider,
		store:    store,
		signals:  signals,
		nav:      nav,
		routes:   DefaultRoutes(),
		logger:   slog.Default(),
		state:    StateLoading,
		issued:   make(map[redirectKey]bool),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Start subscribes to identity changes and unauthorized responses. The
// provider reports the current identity immediately, which resolves the
// loading state.
func (g *Gate) Start() {
	var unsubs []func()
	if g.signals != nil {
		unsubs = append(unsubs, g.signals.OnUnauthorized(g.onUnauthorized))
	}
	unsubs = append(unsubs, g.provider.OnIdentityChanged(g.onIdentity))

	g.mu.Lock()
	g.unsubs = append(g.unsubs, unsubs...)
	g.mu.Unlock()
}

// Close unsubscribes from everything Start subscribed to.
func (g *Gate) Close() {
	g.mu.Lock()
	unsubs := g.unsubs
	g.unsubs = nil
	g.mu.Unlock()
	for _, fn := range unsubs {
		fn()
	}
}

// Session returns the current state and identity.
func (g *Gate) Session() (State, *identity.Identity) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state, g.identity
}

// Visit records path as the current location and applies the route policy.
// Nothing is rendered and nothing redirects while the session is loading.
// A given redirect is issued once per path and state.
func (g *Gate) Visit(path string) Decision {
	path = cleanPath(path)

	g.mu.Lock()
	g.path = path
	d, redirect := g.decideLocked(path)
	g.mu.Unlock()

	if redirect {
		g.navigate(d.Redirect)
	}
	return d
}

// decideLocked must be called with g.mu held. redirect reports whether the
// caller has to navigate to d.Redirect.
func (g *Gate) decideLocked(path string) (d Decision, redirect bool) {
	var target string
	switch g.state {
	case StateLoading:
		return Decision{}, false
	case StateAnonymous:
		if !g.routes.IsPublic(path) {
			target = g.routes.Login
		}
	case StateAuthenticated:
		if path == g.routes.Landing {
			target = g.routes.Home
		}
	}
	if target == "" {
		return Decision{Render: true}, false
	}

	key := redirectKey{path: path, state: g.state}
	if g.issued[key] {
		return Decision{}, false
	}
	g.issued[key] = true
	return Decision{Redirect: target}, true
}

// Logout signs out upstream, clears the stored token and navigates to the
// landing page, in that order.
func (g *Gate) Logout(ctx context.Context) error {
	g.mu.Lock()
	g.loggingOut = true
	g.epoch++
	g.mu.Unlock()

	var errs []error
	if err := g.provider.SignOut(ctx); err != nil {
		errs = append(errs, fmt.Errorf("sign out: %w", err))
	}
	if err := g.clearToken(ctx); err != nil {
		errs = append(errs, err)
	}

	g.mu.Lock()
	g.loggingOut = false
	g.setStateLocked(StateAnonymous, nil)
	g.path = g.routes.Landing
	g.mu.Unlock()

	g.navigate(g.routes.Landing)
	return errors.Join(errs...)
}

func (g *Gate) onIdentity(id *identity.Identity) {
	ctx := context.Background()

	g.mu.Lock()
	loggingOut := g.loggingOut
	epoch := g.epoch
	if id != nil {
		g.setStateLocked(StateAuthenticated, id)
	} else {
		g.setStateLocked(StateAnonymous, nil)
	}
	g.mu.Unlock()

	if loggingOut {
		return
	}

	if id != nil && id.Token != "" {
		if err := g.setToken(ctx, epoch, id); err != nil {
			g.logger.Error("failed to persist token", slog.String("error", err.Error()))
		}
	} else if id == nil {
		if err := g.clearToken(ctx); err != nil {
			g.logger.Error("failed to clear token", slog.String("error", err.Error()))
		}
	}

	g.revisit()
}

func (g *Gate) onUnauthorized(ev transport.UnauthorizedEvent) {
	ctx := context.Background()

	g.mu.Lock()
	g.epoch++
	g.mu.Unlock()

	if err := g.clearToken(ctx); err != nil {
		g.logger.Error("failed to clear token", slog.String("error", err.Error()))
	}

	g.mu.Lock()
	alreadyOut := g.state == StateAnonymous && g.path == g.routes.Login
	g.setStateLocked(StateAnonymous, nil)
	g.path = g.routes.Login
	g.mu.Unlock()

	g.logger.Info("session rejected by backend",
		slog.String("method", ev.Method),
		slog.String("path", ev.Path),
		slog.String("request_id", ev.RequestID),
	)

	if !alreadyOut {
		g.navigate(g.routes.Login)
	}
	if err := g.provider.SignOut(ctx); err != nil {
		g.logger.Warn("sign out after unauthorized response failed", slog.String("error", err.Error()))
	}
}

// setToken persists id's token unless a sign-out happened after the
// identity event observed epoch.
func (g *Gate) setToken(ctx context.Context, epoch uint64, id *identity.Identity) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	g.mu.Lock()
	current := g.epoch
	g.mu.Unlock()
	if current != epoch {
		g.logger.Debug("dropping token write superseded by sign out")
		return nil
	}
	return g.store.Set(ctx, id.Token, id.ExpiresAt)
}

func (g *Gate) clearToken(ctx context.Context) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	return g.store.Clear(ctx)
}

// revisit re-applies the route policy to the current path after a state
// change.
func (g *Gate) revisit() {
	g.mu.Lock()
	if g.path == "" {
		g.mu.Unlock()
		return
	}
	d, redirect := g.decideLocked(g.path)
	g.mu.Unlock()

	if redirect {
		g.navigate(d.Redirect)
	}
}

// setStateLocked must be called with g.mu held.
func (g *Gate) setStateLocked(s State, id *identity.Identity) {
	if g.state != s {
		g.issued = make(map[redirectKey]bool)
	}
	g.state = s
	g.identity = id
}

func (g *Gate) navigate(path string) {
	g.logger.Debug("redirect", slog.String("to", path))
	g.nav.Navigate(path)
}
