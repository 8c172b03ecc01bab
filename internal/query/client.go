// Package query implements cached reads. A Client owns the cache shared by
// every read; Read binds one URL and configuration to it.
package query

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/tjfontaine/creatorlink/internal/apierr"
	"github.com/tjfontaine/creatorlink/internal/retry"
	"github.com/tjfontaine/creatorlink/internal/transport"
)

const (
	// DefaultSize is the number of entries kept before the least recently
	// used one is evicted.
	DefaultSize = 256

	// DefaultTTL is how long an entry lives after its last write.
	DefaultTTL = 5 * time.Minute
)

// Key identifies a cache entry. The same URL read with and without
// credentials yields two independent entries.
type Key struct {
	URL  string
	Mode transport.HeaderMode
}

func (k Key) String() string { return k.Mode.String() + " " + k.URL }

// Status is the lifecycle state of a read.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Entry is what the cache holds for a key. Raw is the untransformed response
// of the last successful fetch and survives later failures.
type Entry struct {
	Raw       *transport.Response
	Err       *apierr.Error
	Status    Status
	FetchedAt time.Time
	Stale     bool

	// seq orders writes to the cache; a higher seq arrived later.
	seq uint64
}

func (e Entry) fresh(staleTime time.Duration, now time.Time) bool {
	if e.Status != StatusSuccess || e.Stale {
		return false
	}
	return staleTime <= 0 || now.Sub(e.FetchedAt) < staleTime
}

// refetcher is an open query that reacts to invalidation.
type refetcher interface {
	invalidated(ctx context.Context) error
}

// Option configures a Client.
type Option func(*Client)

// WithSize bounds the number of cached entries.
func WithSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.size = n
		}
	}
}

// WithTTL sets how long an unused entry is kept.
func WithTTL(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithRetry sets the policy used by reads that do not carry their own.
func WithRetry(p retry.Policy) Option {
	return func(c *Client) {
		c.retry = p
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client is the read cache.
type Client struct {
	size   int
	ttl    time.Duration
	retry  retry.Policy
	logger *slog.Logger

	mu      sync.Mutex
	entries *expirable.LRU[Key, Entry]
	open    map[Key]map[uint64]refetcher
	nextID  uint64
	seq     uint64

	group singleflight.Group
}

// NewClient creates an empty cache.
func NewClient(opts ...Option) *Client {
	c := &Client{
		size:   DefaultSize,
		ttl:    DefaultTTL,
		retry:  retry.Read,
		logger: slog.Default(),
		open:   make(map[Key]map[uint64]refetcher),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.entries = expirable.NewLRU[Key, Entry](c.size, nil, c.ttl)
	return c
}

// Peek returns the entry for key without touching its recency.
func (c *Client) Peek(key Key) (Entry, bool) {
	return c.entries.Peek(key)
}

// Len returns the number of cached entries.
func (c *Client) Len() int { return c.entries.Len() }

// Purge drops every entry. Open queries stay registered.
func (c *Client) Purge() { c.entries.Purge() }

// Invalidate marks every entry for url stale, whatever its header mode, and
// refetches the open queries reading it. All refetches run to completion;
// their failures are joined.
func (c *Client) Invalidate(ctx context.Context, url string) error {
	c.mu.Lock()
	for _, key := range c.entries.Keys() {
		if key.URL != url {
			continue
		}
		if e, ok := c.entries.Peek(key); ok {
			e.Stale = true
			c.entries.Add(key, e)
		}
	}
	var targets []refetcher
	for key, subs := range c.open {
		if key.URL != url {
			continue
		}
		for _, r := range subs {
			targets = append(targets, r)
		}
	}
	c.mu.Unlock()

	if len(targets) == 0 {
		return nil
	}

	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, r := range targets {
		wg.Add(1)
		go func(i int, r refetcher) {
			defer wg.Done()
			errs[i] = r.invalidated(ctx)
		}(i, r)
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (c *Client) register(key Key, r refetcher) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	if c.open[key] == nil {
		c.open[key] = make(map[uint64]refetcher)
	}
	c.open[key][c.nextID] = r
	return c.nextID
}

func (c *Client) unregister(key Key, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.open[key], id)
	if len(c.open[key]) == 0 {
		delete(c.open, key)
	}
}

func (c *Client) lookup(key Key) (Entry, bool) {
	return c.entries.Get(key)
}

func (c *Client) markLoading(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, _ := c.entries.Peek(key)
	e.Status = StatusLoading
	c.entries.Add(key, e)
}

// store writes the outcome of a fetch. Whichever fetch finishes last wins.
// It returns the entry with its arrival sequence set.
func (c *Client) store(key Key, e Entry) Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	e.seq = c.seq
	if e.Status == StatusError {
		if prev, ok := c.entries.Peek(key); ok {
			e.Raw = prev.Raw
		}
	}
	c.entries.Add(key, e)
	return e
}

// fetch performs the network read for key and records the outcome.
func (c *Client) fetch(ctx context.Context, tc *transport.Client, key Key, policy retry.Policy, fallback string) Entry {
	c.markLoading(key)

	var resp *transport.Response
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		r, err := tc.Get(ctx, key.URL)
		if err != nil {
			c.logger.Debug("read attempt failed",
				slog.String("key", key.String()),
				slog.String("error", err.Error()),
			)
			return err
		}
		resp = r
		return nil
	})

	e := Entry{FetchedAt: time.Now()}
	if err != nil {
		e.Status = StatusError
		e.Err = apierr.Normalize(err, fallback)
	} else {
		e.Status = StatusSuccess
		e.Raw = resp
	}
	return c.store(key, e)
}

// fetchShared is fetch with concurrent callers for the same key collapsed
// into one request. The first caller's context governs the shared request.
func (c *Client) fetchShared(ctx context.Context, tc *transport.Client, key Key, policy retry.Policy, fallback string) Entry {
	v, _, _ := c.group.Do(key.String(), func() (any, error) {
		return c.fetch(ctx, tc, key, policy, fallback), nil
	})
	return v.(Entry)
}
