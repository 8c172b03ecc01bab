package identity

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/tjfontaine/creatorlink/internal/apierr"
	"github.com/tjfontaine/creatorlink/internal/endpoints"
	"github.com/tjfontaine/creatorlink/internal/mutation"
	"github.com/tjfontaine/creatorlink/internal/transport"
)

// ErrSignInSuperseded is returned when a sign in completes after a sign out
// (or another sign in) that started later. Its result is discarded.
var ErrSignInSuperseded = errors.New("identity: sign in superseded")

// Credentials is the login payload.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// authResult is what the auth endpoints return, probed loosely since login
// and the register endpoints do not agree on a shape.
type authResult struct {
	Token string
	UID   string
	Email string
	Name  string
	Kind  Kind
}

func decodeAuth(resp *transport.Response) (authResult, error) {
	if resp == nil || len(resp.Body) == 0 {
		return authResult{}, nil
	}
	if !gjson.ValidBytes(resp.Body) {
		return authResult{}, errors.New("auth response is not JSON")
	}
	first := func(paths ...string) string {
		for _, p := range paths {
			if r := gjson.GetBytes(resp.Body, p); r.Exists() && r.String() != "" {
				return r.String()
			}
		}
		return ""
	}
	return authResult{
		Token: first("access_token", "token", "data.access_token", "data.token"),
		UID:   first("user.id", "data.user.id", "user.uid"),
		Email: first("user.email", "data.user.email"),
		Name:  first("user.full_name", "user.name", "data.user.full_name"),
		Kind:  Kind(first("user.user_type", "data.user.user_type")),
	}, nil
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) {
		b.now = now
	}
}

// Backend signs in with email and password against /auth/login and keeps the
// resulting identity in memory.
type Backend struct {
	public *transport.Client
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	current *Identity
	epoch   uint64
	subs    map[uint64]func(*Identity)
	nextID  uint64
}

var _ Provider = (*Backend)(nil)

// NewBackend creates a provider that talks to the backend through public,
// which must not attach credentials.
func NewBackend(public *transport.Client, opts ...Option) *Backend {
	b := &Backend{
		public: public,
		logger: slog.Default(),
		now:    time.Now,
		subs:   make(map[uint64]func(*Identity)),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Current returns the signed-in identity or nil.
func (b *Backend) Current() *Identity {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// OnIdentityChanged implements Provider.
func (b *Backend) OnIdentityChanged(fn func(*Identity)) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[id] = fn
	current := b.current
	b.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// SignIn exchanges credentials for a token. Failures are *apierr.Error.
func (b *Backend) SignIn(ctx context.Context, email, password string) (*Identity, error) {
	epoch := b.currentEpoch()

	m := mutation.Create(b.public, nil, endpoints.MustLookup(endpoints.Login), mutation.Config[Credentials, authResult]{
		Decode:   decodeAuth,
		Fallback: "Failed to sign in",
		Logger:   b.logger,
	})
	res, err := m.Mutate(ctx, Credentials{Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	if res.Token == "" {
		return nil, apierr.Invalid(errors.New("login response carried no token"), "")
	}

	id := b.identityFrom(res)
	if !b.adopt(epoch, id) {
		b.logger.Info("discarding sign in that finished after a sign out", slog.String("email", email))
		return nil, ErrSignInSuperseded
	}
	return id, nil
}

// Register signs up a brand or creator. When the backend answers with a
// token the new account is signed in; otherwise the returned identity is nil.
func (b *Backend) Register(ctx context.Context, reg Registration) (*Identity, error) {
	if fields := reg.Validate(); fields != nil {
		return nil, apierr.Validation(fields)
	}

	name := endpoints.Register
	if reg.Kind() == KindCreator {
		name = endpoints.RegisterCreator
	}

	epoch := b.currentEpoch()
	m := mutation.Create(b.public, nil, endpoints.MustLookup(name), mutation.Config[Registration, authResult]{
		Decode:   decodeAuth,
		Fallback: "Failed to create account",
		Logger:   b.logger,
	})
	res, err := m.Mutate(ctx, reg)
	if err != nil {
		return nil, err
	}
	if res.Token == "" {
		return nil, nil
	}

	id := b.identityFrom(res)
	if id.Kind == "" {
		id.Kind = reg.Kind()
	}
	if !b.adopt(epoch, id) {
		return nil, ErrSignInSuperseded
	}
	return id, nil
}

// Restore resumes a session from a stored token without contacting the
// backend.
func (b *Backend) Restore(token string) (*Identity, error) {
	epoch := b.currentEpoch()
	id, err := FromToken(token, b.now())
	if err != nil {
		return nil, err
	}
	if !b.adopt(epoch, id) {
		return nil, ErrSignInSuperseded
	}
	return id, nil
}

// SignOut forgets the identity and notifies subscribers. Any sign in still
// in flight is discarded when it completes.
func (b *Backend) SignOut(_ context.Context) error {
	b.mu.Lock()
	b.epoch++
	had := b.current != nil
	b.current = nil
	fns := b.snapshot()
	b.mu.Unlock()

	if had {
		for _, fn := range fns {
			fn(nil)
		}
	}
	return nil
}

func (b *Backend) identityFrom(res authResult) *Identity {
	id, err := FromToken(res.Token, b.now())
	if err != nil {
		// Opaque or unparseable token: trust the response body alone.
		id = &Identity{Token: res.Token}
	}
	if res.UID != "" {
		id.UID = res.UID
	}
	if res.Email != "" {
		id.Email = res.Email
	}
	if res.Name != "" {
		id.DisplayName = res.Name
	}
	if res.Kind != "" {
		id.Kind = res.Kind
	}
	return id
}

func (b *Backend) currentEpoch() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.epoch
}

// adopt installs id unless the identity changed since epoch was read.
func (b *Backend) adopt(epoch uint64, id *Identity) bool {
	b.mu.Lock()
	if b.epoch != epoch {
		b.mu.Unlock()
		return false
	}
	b.epoch++
	b.current = id
	fns := b.snapshot()
	b.mu.Unlock()

	for _, fn := range fns {
		fn(id)
	}
	return true
}

func (b *Backend) snapshot() []func(*Identity) {
	fns := make([]func(*Identity), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	return fns
}
