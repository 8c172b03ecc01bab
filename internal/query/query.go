package query

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tjfontaine/creatorlink/internal/apierr"
	"github.com/tjfontaine/creatorlink/internal/retry"
	"github.com/tjfontaine/creatorlink/internal/transport"
)

// Config configures a single read.
type Config[T any] struct {
	// Disabled keeps the read idle; no request is made.
	Disabled bool

	// Select turns the raw response into T. It defaults to decoding the JSON
	// body. A failing Select is logged and leaves the read successful with a
	// zero T.
	Select func(*transport.Response) (T, error)

	// OnSuccess runs after Select. Errors and panics are logged only.
	OnSuccess func(T) error

	// OnError runs when the fetch failed. Errors and panics are logged only.
	OnError func(*apierr.Error) error

	// Retry overrides the client's retry policy.
	Retry *retry.Policy

	// StaleTime is how long a successful entry is served without a request.
	// Zero keeps it fresh until invalidated or evicted.
	StaleTime time.Duration

	// Fallback is the error message used when neither the server nor the
	// transport provides one.
	Fallback string
}

// Result is a snapshot of a read.
type Result[T any] struct {
	Data      T
	Raw       *transport.Response
	Error     *apierr.Error
	Status    Status
	FetchedAt time.Time
}

// IsSuccess reports whether the last fetch succeeded.
func (r Result[T]) IsSuccess() bool { return r.Status == StatusSuccess }

// IsLoading reports whether a fetch is in flight.
func (r Result[T]) IsLoading() bool { return r.Status == StatusLoading }

// IsNetworkError reports whether the last fetch got no response.
func (r Result[T]) IsNetworkError() bool { return r.Error.IsNetworkError() }

// IsServerError reports a 5xx failure.
func (r Result[T]) IsServerError() bool { return r.Error.IsServerError() }

// IsClientError reports a 4xx failure.
func (r Result[T]) IsClientError() bool { return r.Error.IsClientError() }

// Query is an open read of one URL through one transport client.
type Query[T any] struct {
	qc     *Client
	client *transport.Client
	key    Key
	cfg    Config[T]
	id     uint64

	mu      sync.Mutex
	result  Result[T]
	applied uint64
	closed  bool
}

// Read opens a query for url. The cache key is the URL plus the client's
// header mode. Nothing is fetched until Fetch or Refetch is called.
func Read[T any](qc *Client, client *transport.Client, url string, cfg Config[T]) *Query[T] {
	q := &Query[T]{
		qc:     qc,
		client: client,
		key:    Key{URL: url, Mode: client.Mode()},
		cfg:    cfg,
		result: Result[T]{Status: StatusIdle},
	}
	q.id = qc.register(q.key, q)
	return q
}

// Key returns the cache key of the query.
func (q *Query[T]) Key() Key { return q.key }

// Result returns the latest snapshot.
func (q *Query[T]) Result() Result[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.result
}

// Fetch serves a fresh cached entry when there is one and otherwise reads
// from the network. Concurrent first loads of the same key share a request.
func (q *Query[T]) Fetch(ctx context.Context) Result[T] {
	if q.cfg.Disabled {
		return q.Result()
	}
	if e, ok := q.qc.lookup(q.key); ok && e.fresh(q.cfg.StaleTime, time.Now()) {
		return q.settle(e, false)
	}

	q.setLoading()
	return q.settle(q.qc.fetchShared(ctx, q.client, q.key, q.policy(), q.cfg.Fallback), true)
}

// Refetch always reads from the network. Concurrent refetches are not
// collapsed; the response that arrives last is the one kept.
func (q *Query[T]) Refetch(ctx context.Context) Result[T] {
	if q.cfg.Disabled {
		return q.Result()
	}
	q.setLoading()
	return q.settle(q.qc.fetch(ctx, q.client, q.key, q.policy(), q.cfg.Fallback), true)
}

// Close detaches the query. Later fetches still update the cache but no
// callback runs and invalidation no longer refetches it.
func (q *Query[T]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	q.qc.unregister(q.key, q.id)
}

func (q *Query[T]) invalidated(ctx context.Context) error {
	if q.cfg.Disabled {
		return nil
	}
	res := q.Refetch(ctx)
	if res.Error != nil {
		return res.Error
	}
	return nil
}

func (q *Query[T]) policy() retry.Policy {
	if q.cfg.Retry != nil {
		return *q.cfg.Retry
	}
	return q.qc.retry
}

func (q *Query[T]) setLoading() {
	q.mu.Lock()
	q.result.Status = StatusLoading
	q.mu.Unlock()
}

// settle turns a cache entry into the caller's result: transform first,
// then notify. An entry older than the one already applied is dropped so
// the result always matches the latest response to reach the cache.
func (q *Query[T]) settle(e Entry, notify bool) Result[T] {
	res := Result[T]{
		Raw:       e.Raw,
		Error:     e.Err,
		Status:    e.Status,
		FetchedAt: e.FetchedAt,
	}

	selected := false
	if e.Status == StatusSuccess {
		cbErr := apierr.Guard(q.qc.logger, "select "+q.key.String(), func() error {
			data, err := q.transform(e.Raw)
			if err != nil {
				return err
			}
			res.Data = data
			return nil
		})
		selected = cbErr == nil
	}

	q.mu.Lock()
	if e.seq < q.applied {
		latest := q.result
		q.mu.Unlock()
		return latest
	}
	q.applied = e.seq
	q.result = res
	closed := q.closed
	q.mu.Unlock()

	if !notify || closed {
		return res
	}

	switch {
	case e.Status == StatusError && q.cfg.OnError != nil:
		apierr.Guard(q.qc.logger, "onError "+q.key.String(), func() error {
			return q.cfg.OnError(e.Err)
		})
	case selected && q.cfg.OnSuccess != nil:
		apierr.Guard(q.qc.logger, "onSuccess "+q.key.String(), func() error {
			return q.cfg.OnSuccess(res.Data)
		})
	}
	return res
}

func (q *Query[T]) transform(resp *transport.Response) (T, error) {
	if q.cfg.Select != nil {
		return q.cfg.Select(resp)
	}
	var v T
	if resp == nil {
		return v, errors.New("no response to decode")
	}
	err := resp.Decode(&v)
	return v, err
}
