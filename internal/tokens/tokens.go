// Package tokens persists the bearer token across runs.
//
// A Store keeps opaque string values by key with an optional expiry. The
// Vault sits on top of a Store and is the only thing that reads or writes
// the auth token; the transport reads it through the Vault on every
// authenticated request.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Key is the storage key of the bearer token.
const Key = "authToken"

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("tokens: store closed")

// Store is a keyed value store with expiry. A zero expiresAt means the value
// never expires. Get reports found=false for missing and expired keys alike.
type Store interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string, expiresAt time.Time) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Vault holds the bearer token.
type Vault struct {
	store  Store
	logger *slog.Logger

	mu       sync.Mutex
	onChange []func(token string)
}

// NewVault wraps store.
func NewVault(store Store, logger *slog.Logger) *Vault {
	if logger == nil {
		logger = slog.Default()
	}
	return &Vault{store: store, logger: logger}
}

// Token returns the current token, or "" when none is stored. It satisfies
// transport.TokenSource.
func (v *Vault) Token(ctx context.Context) (string, error) {
	tok, found, err := v.store.Get(ctx, Key)
	if err != nil {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	if !found {
		return "", nil
	}
	return tok, nil
}

// Set stores token until expiresAt. An empty token clears the vault.
func (v *Vault) Set(ctx context.Context, token string, expiresAt time.Time) error {
	if token == "" {
		return v.Clear(ctx)
	}
	if err := v.store.Set(ctx, Key, token, expiresAt); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	v.notify(token)
	return nil
}

// Clear removes the token. Clearing an empty vault is not an error.
func (v *Vault) Clear(ctx context.Context) error {
	if err := v.store.Delete(ctx, Key); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	v.logger.Debug("auth token cleared")
	v.notify("")
	return nil
}

// OnChange registers fn to run after every Set or Clear.
func (v *Vault) OnChange(fn func(token string)) {
	v.mu.Lock()
	v.onChange = append(v.onChange, fn)
	v.mu.Unlock()
}

// Close closes the underlying store.
func (v *Vault) Close() error { return v.store.Close() }

func (v *Vault) notify(token string) {
	v.mu.Lock()
	fns := append([]func(string){}, v.onChange...)
	v.mu.Unlock()
	for _, fn := range fns {
		fn(token)
	}
}
