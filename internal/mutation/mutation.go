// Package mutation implements create, update and delete calls: URL
// templating, cache invalidation on success and guarded caller hooks.
package mutation

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/tjfontaine/creatorlink/internal/apierr"
	"github.com/tjfontaine/creatorlink/internal/endpoints"
	"github.com/tjfontaine/creatorlink/internal/retry"
	"github.com/tjfontaine/creatorlink/internal/transport"
)

// Fallback messages used when neither the server nor the transport explains
// a failure.
const (
	FallbackCreate = "Failed to create resource"
	FallbackUpdate = "Failed to update resource"
	FallbackDelete = "Failed to delete resource"
)

// Invalidator marks cached reads stale. *query.Client implements it.
type Invalidator interface {
	Invalidate(ctx context.Context, url string) error
}

// Status is the lifecycle state of the latest invocation.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// State reports the latest invocation only.
type State struct {
	Status Status
	Err    *apierr.Error

	// DecodeErr is set when the write succeeded but its response could not
	// be decoded. Status stays success.
	DecodeErr *apierr.Error
}

func (s State) IsPending() bool      { return s.Status == StatusPending }
func (s State) IsSuccess() bool      { return s.Status == StatusSuccess }
func (s State) IsError() bool        { return s.Status == StatusError }
func (s State) IsNetworkError() bool { return s.Err.IsNetworkError() }
func (s State) IsServerError() bool  { return s.Err.IsServerError() }
func (s State) IsClientError() bool  { return s.Err.IsClientError() }

// Config configures a write. V is the invocation payload, D the decoded
// response.
type Config[V, D any] struct {
	// Method overrides the HTTP method. Only PATCH is meaningful, on updates.
	Method string

	// Decode turns the response into D. It defaults to decoding the JSON body.
	// A failing Decode does not fail the write: Mutate returns a zero D and
	// a nil error, and the failure is reported on State().DecodeErr.
	Decode func(*transport.Response) (D, error)

	// OnSuccess runs after invalidation. Errors and panics are logged only.
	OnSuccess func(D, V) error

	// OnError runs with the error envelope. Errors and panics are logged only.
	OnError func(*apierr.Error, V) error

	// Invalidate lists read URLs to mark stale after a success. Entries may
	// carry placeholders; they are filled from the payload when possible.
	Invalidate []string

	// Retry overrides the verb's default policy.
	Retry *retry.Policy

	// Fallback overrides the verb's default error message.
	Fallback string

	Logger *slog.Logger
}

// Mutation is a reusable write bound to a URL template.
type Mutation[V, D any] struct {
	client   *transport.Client
	inv      Invalidator
	template string
	method   string
	body     bool
	policy   retry.Policy
	fallback string
	cfg      Config[V, D]
	logger   *slog.Logger

	mu    sync.Mutex
	seq   uint64
	state State
}

// Create builds a POST mutation. The payload is sent as the JSON body.
func Create[V, D any](client *transport.Client, inv Invalidator, template string, cfg Config[V, D]) *Mutation[V, D] {
	return newMutation(client, inv, template, http.MethodPost, true, retry.Create, FallbackCreate, cfg)
}

// Update builds a PUT mutation, or PATCH when cfg.Method says so.
func Update[V, D any](client *transport.Client, inv Invalidator, template string, cfg Config[V, D]) *Mutation[V, D] {
	method := http.MethodPut
	if cfg.Method == http.MethodPatch {
		method = http.MethodPatch
	}
	return newMutation(client, inv, template, method, true, retry.Update, FallbackUpdate, cfg)
}

// Delete builds a DELETE mutation. The payload only fills the URL; a bare
// scalar payload is taken as the id.
func Delete[V, D any](client *transport.Client, inv Invalidator, template string, cfg Config[V, D]) *Mutation[V, D] {
	return newMutation(client, inv, template, http.MethodDelete, false, retry.Delete, FallbackDelete, cfg)
}

func newMutation[V, D any](client *transport.Client, inv Invalidator, template, method string, body bool, policy retry.Policy, fallback string, cfg Config[V, D]) *Mutation[V, D] {
	m := &Mutation[V, D]{
		client:   client,
		inv:      inv,
		template: endpoints.Normalize(template),
		method:   method,
		body:     body,
		policy:   policy,
		fallback: fallback,
		cfg:      cfg,
		logger:   cfg.Logger,
		state:    State{Status: StatusIdle},
	}
	if cfg.Retry != nil {
		m.policy = *cfg.Retry
	}
	if cfg.Fallback != "" {
		m.fallback = cfg.Fallback
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// State returns the state of the latest invocation.
func (m *Mutation[V, D]) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Mutate performs one write. Every call dispatches its own request; identical
// concurrent calls are not merged. The returned error is always an
// *apierr.Error.
func (m *Mutation[V, D]) Mutate(ctx context.Context, vars V) (D, error) {
	var zero D
	seq := m.begin()

	path, err := endpoints.Resolve(m.template, endpoints.ParamsOf(vars))
	if err != nil {
		return zero, m.fail(seq, apierr.Invalid(err, m.fallback), vars)
	}

	var body any
	if m.body {
		body = vars
	}

	var resp *transport.Response
	err = retry.Do(ctx, m.policy, func(ctx context.Context) error {
		r, err := m.client.Do(ctx, m.method, path, body)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return zero, m.fail(seq, apierr.Normalize(err, m.fallback), vars)
	}

	var data D
	decodeErr := apierr.Guard(m.logger, fmt.Sprintf("decode %s %s", m.method, path), func() error {
		d, err := m.decode(resp)
		if err != nil {
			return err
		}
		data = d
		return nil
	})

	m.invalidate(ctx, endpoints.ParamsOf(vars))
	m.finish(seq, State{Status: StatusSuccess, DecodeErr: decodeErr})

	if m.cfg.OnSuccess != nil {
		apierr.Guard(m.logger, fmt.Sprintf("onSuccess %s %s", m.method, path), func() error {
			return m.cfg.OnSuccess(data, vars)
		})
	}
	return data, nil
}

func (m *Mutation[V, D]) fail(seq uint64, env *apierr.Error, vars V) *apierr.Error {
	m.finish(seq, State{Status: StatusError, Err: env})
	if m.cfg.OnError != nil {
		apierr.Guard(m.logger, fmt.Sprintf("onError %s %s", m.method, m.template), func() error {
			return m.cfg.OnError(env, vars)
		})
	}
	return env
}

// invalidate marks every configured key stale. Each key is attempted even
// when others fail; failures are logged by the guard.
func (m *Mutation[V, D]) invalidate(ctx context.Context, params map[string]string) {
	if m.inv == nil || len(m.cfg.Invalidate) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, key := range m.cfg.Invalidate {
		url := key
		if resolved, err := endpoints.Resolve(endpoints.Normalize(key), params); err == nil {
			url = resolved
		}
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			apierr.Guard(m.logger, "invalidate "+url, func() error {
				return m.inv.Invalidate(ctx, url)
			})
		}(url)
	}
	wg.Wait()
}

func (m *Mutation[V, D]) decode(resp *transport.Response) (D, error) {
	if m.cfg.Decode != nil {
		return m.cfg.Decode(resp)
	}
	var d D
	err := resp.Decode(&d)
	return d, err
}

func (m *Mutation[V, D]) begin() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.state = State{Status: StatusPending}
	return m.seq
}

// finish records st unless a newer invocation has started since.
func (m *Mutation[V, D]) finish(seq uint64, st State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if seq == m.seq {
		m.state = st
	}
}
