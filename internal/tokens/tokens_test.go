package tokens_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tjfontaine/creatorlink/internal/tokens"
	"github.com/tjfontaine/creatorlink/internal/tokens/memstore"
)

func TestVault_SetTokenClear(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	v := tokens.NewVault(store, nil)

	if tok, err := v.Token(ctx); err != nil || tok != "" {
		t.Fatalf("empty vault Token() = %q, %v", tok, err)
	}

	var changes []string
	v.OnChange(func(tok string) { changes = append(changes, tok) })

	if err := v.Set(ctx, "abc", time.Time{}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if tok, _ := v.Token(ctx); tok != "abc" {
		t.Errorf("Token() = %q, want abc", tok)
	}
	if raw, found, _ := store.Get(ctx, tokens.Key); !found || raw != "abc" {
		t.Errorf("stored under %q = %q, %v", tokens.Key, raw, found)
	}

	if err := v.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if tok, _ := v.Token(ctx); tok != "" {
		t.Errorf("Token() after Clear = %q", tok)
	}
	if err := v.Clear(ctx); err != nil {
		t.Errorf("second Clear() error = %v", err)
	}

	if len(changes) != 3 || changes[0] != "abc" || changes[1] != "" {
		t.Errorf("changes = %q", changes)
	}
}

func TestVault_SetEmptyClears(t *testing.T) {
	ctx := context.Background()
	v := tokens.NewVault(memstore.New(), nil)
	v.Set(ctx, "abc", time.Time{})
	v.Set(ctx, "", time.Time{})
	if tok, _ := v.Token(ctx); tok != "" {
		t.Errorf("Token() = %q, want empty", tok)
	}
}

func TestVault_ExpiredTokenIsAbsent(t *testing.T) {
	ctx := context.Background()
	v := tokens.NewVault(memstore.New(), nil)
	v.Set(ctx, "abc", time.Now().Add(-time.Second))
	if tok, _ := v.Token(ctx); tok != "" {
		t.Errorf("Token() = %q, want expired token dropped", tok)
	}
}

func TestVault_StoreErrors(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	v := tokens.NewVault(store, nil)
	store.Close()

	if _, err := v.Token(ctx); !errors.Is(err, tokens.ErrClosed) {
		t.Errorf("Token() error = %v, want ErrClosed", err)
	}
	if err := v.Set(ctx, "abc", time.Time{}); !errors.Is(err, tokens.ErrClosed) {
		t.Errorf("Set() error = %v, want ErrClosed", err)
	}
}
