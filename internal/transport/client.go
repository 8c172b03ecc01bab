// Package transport builds the HTTP clients used to talk to the platform
// backend. There are two flavours: one that never attaches credentials and
// one that reads the bearer token from a TokenSource on every request.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/tjfontaine/creatorlink/internal/apierr"
)

const (
	// DefaultBaseURL is used when no base URL is configured.
	DefaultBaseURL = "http://localhost:8000"

	// DefaultTimeout is the ceiling applied to every outgoing request.
	DefaultTimeout = 30 * time.Second

	maxBodyBytes = 8 << 20
)

// HeaderMode selects whether credentials are attached. It is also half of
// every read cache key.
type HeaderMode int

const (
	WithAuth HeaderMode = iota
	WithoutAuth
)

func (m HeaderMode) String() string {
	if m == WithoutAuth {
		return "withoutAuth"
	}
	return "withAuth"
}

// TokenSource supplies the bearer token for authenticated requests. An empty
// token means no Authorization header is sent.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func(ctx context.Context) (string, error)

// Token implements TokenSource.
func (f TokenSourceFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// Response is a fully read HTTP response.
type Response struct {
	Status     int
	StatusText string
	Header     http.Header
	Body       []byte
	RequestID  string
}

// Decode unmarshals the JSON body into v. An empty body leaves v untouched.
func (r *Response) Decode(v any) error {
	if r == nil || len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets the backend base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimSuffix(baseURL, "/")
		}
	}
}

// WithHTTPClient sets a custom HTTP client. Its transport is used as-is.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout overrides the per-request ceiling.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithTokenSource sets where authenticated requests read their token from.
func WithTokenSource(ts TokenSource) ClientOption {
	return func(c *Client) {
		c.tokens = ts
	}
}

// WithSignals shares a signal hub between clients.
func WithSignals(s *Signals) ClientOption {
	return func(c *Client) {
		c.signals = s
	}
}

// WithRateLimit caps outgoing requests per second. Zero disables the limiter.
func WithRateLimit(perSecond float64, burst int) ClientOption {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// Client issues JSON requests against the backend.
type Client struct {
	mode       HeaderMode
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	tokens     TokenSource
	signals    *Signals
	limiter    *rate.Limiter
	logger     *slog.Logger
	userAgent  string
}

// New creates a client for the given header mode.
func New(mode HeaderMode, opts ...ClientOption) *Client {
	c := &Client{
		mode:      mode,
		baseURL:   DefaultBaseURL,
		timeout:   DefaultTimeout,
		logger:    slog.Default(),
		userAgent: "creatorlink",
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	if c.signals == nil {
		c.signals = NewSignals()
	}
	return c
}

// Pair is the public and authenticated client sharing one signal hub.
type Pair struct {
	Public        *Client
	Authenticated *Client
	Signals       *Signals
}

// NewPair builds both clients from the same options.
func NewPair(opts ...ClientOption) Pair {
	signals := NewSignals()
	shared := append([]ClientOption{WithSignals(signals)}, opts...)

	pub := New(WithoutAuth, shared...)
	auth := New(WithAuth, shared...)
	return Pair{Public: pub, Authenticated: auth, Signals: auth.signals}
}

// Mode returns the client's header mode.
func (c *Client) Mode() HeaderMode { return c.mode }

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Signals returns the hub unauthorized events are published on.
func (c *Client) Signals() *Signals { return c.signals }

// Do sends a request. body, when non-nil, is JSON encoded. Responses with a
// status of 400 or above are returned as *StatusError. Failures are not
// retried here.
func (c *Client) Do(ctx context.Context, method, path string, body any) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s %s: rate limit wait: %w", method, path, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, apierr.Invalid(fmt.Errorf("failed to marshal request: %w", err), "")
		}
		reader = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return nil, apierr.Invalid(fmt.Errorf("failed to create request: %w", err), "")
	}

	requestID := uuid.New().String()
	c.setHeaders(ctx, httpReq, requestID, body != nil)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Warn("request failed",
			slog.String("request_id", requestID),
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%s %s: failed to read response: %w", method, path, err)
	}

	out := &Response{
		Status:     resp.StatusCode,
		StatusText: statusText(resp),
		Header:     resp.Header,
		Body:       respBody,
		RequestID:  requestID,
	}

	c.logger.Debug("request completed",
		slog.String("request_id", requestID),
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < http.StatusBadRequest {
		return out, nil
	}

	c.intercept(method, path, out)
	return nil, &StatusError{Method: method, Path: path, Response: out}
}

// intercept applies the response policies shared by every call site.
func (c *Client) intercept(method, path string, resp *Response) {
	switch {
	case resp.Status == http.StatusUnauthorized && c.mode == WithAuth:
		c.logger.Info("unauthorized response, signalling logout",
			slog.String("request_id", resp.RequestID),
			slog.String("path", path),
		)
		c.signals.emitUnauthorized(UnauthorizedEvent{
			Method:    method,
			Path:      path,
			RequestID: resp.RequestID,
			At:        time.Now(),
		})
	case resp.Status == http.StatusForbidden:
		c.logger.Warn("access forbidden",
			slog.String("request_id", resp.RequestID),
			slog.String("path", path),
		)
	case resp.Status >= http.StatusInternalServerError:
		c.logger.Error("server error",
			slog.String("request_id", resp.RequestID),
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.Status),
			slog.String("body", truncate(resp.Body, 512)),
		)
	}
}

func (c *Client) setHeaders(ctx context.Context, req *http.Request, requestID string, hasBody bool) {
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	if c.mode != WithAuth || c.tokens == nil {
		return
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		c.logger.Warn("failed to read auth token", slog.String("error", err.Error()))
		return
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func (c *Client) url(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, nil)
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, http.MethodPost, path, body)
}

// Put performs a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, http.MethodPut, path, body)
}

// Patch performs a PATCH request with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, http.MethodPatch, path, body)
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, http.MethodDelete, path, nil)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "...(truncated)"
}
