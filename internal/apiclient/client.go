package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/shehryarbajwa/testbed/internal/metrics"
	"github.com/shehryarbajwa/testbed/internal/ratelimit"
	"github.com/shehryarbajwa/testbed/pkg/models"
)

const (
	// DefaultWorkers is the size of the async pool.
	DefaultWorkers = 5

	// DefaultLoginPath is where Authenticate posts credentials.
	DefaultLoginPath = "/auth/login"

	requestIDHeader = "X-Request-ID"
)

// Client issues JSON requests against one base URL. It holds its own bearer
// token and its own async worker pool; nothing is shared between clients.
// A Client is safe for concurrent use.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	ownsHTTP  bool
	loginPath string
	workers   int64
	limiter   *ratelimit.Limiter
	metrics   *metrics.Recorder
	log       *slog.Logger

	tokenMu sync.RWMutex
	token   string

	// pool bounds in-flight async calls; callers beyond capacity queue on it.
	pool     *semaphore.Weighted
	inflight sync.WaitGroup
	closeMu  sync.RWMutex
	closed   bool
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying transport client. The caller keeps
// ownership: Shutdown leaves its idle connections alone.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
		c.ownsHTTP = false
	}
}

// WithWorkers sets the async pool size. It panics if n < 1.
func WithWorkers(n int) Option {
	if n < 1 {
		panic(fmt.Sprintf("apiclient: worker count must be positive, got %d", n))
	}
	return func(c *Client) { c.workers = int64(n) }
}

// WithLogger sets the client's logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithMetrics records request counts and latency on r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(c *Client) { c.metrics = r }
}

// WithRateLimit paces every request through l, keyed by host.
func WithRateLimit(l *ratelimit.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithLoginPath overrides DefaultLoginPath.
func WithLoginPath(path string) Option {
	return func(c *Client) { c.loginPath = path }
}

// New creates a Client for baseURL and starts its async pool. Call Shutdown
// when done.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}

	c := &Client{
		baseURL:   u,
		http:      &http.Client{Timeout: 30 * time.Second},
		ownsHTTP:  true,
		loginPath: DefaultLoginPath,
		workers:   DefaultWorkers,
		log:       slog.Default().With("component", "apiclient"),
	}
	for _, o := range opts {
		o(c)
	}
	c.pool = semaphore.NewWeighted(c.workers)
	return c, nil
}

// BaseURL returns the endpoint every path is resolved against.
func (c *Client) BaseURL() string { return c.baseURL.String() }

// SetToken sets the bearer token for subsequent requests. An empty token
// clears it.
func (c *Client) SetToken(token string) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	c.token = token
}

// ClearToken removes the bearer token.
func (c *Client) ClearToken() { c.SetToken("") }

// Token returns the current bearer token, or "" when unauthenticated.
func (c *Client) Token() string {
	c.tokenMu.RLock()
	defer c.tokenMu.RUnlock()
	return c.token
}

// Authenticate posts credentials to the login path and stores the returned
// token. The token is read from the "token" field of the response body.
func (c *Client) Authenticate(ctx context.Context, username, password string) (string, error) {
	resp, err := c.Post(ctx, c.loginPath, models.LoginRequest{Username: username, Password: password})
	if err != nil {
		return "", fmt.Errorf("authenticate: %w", err)
	}
	if !resp.IsSuccess() {
		return "", fmt.Errorf("authenticate: %w", &ResponseError{Response: resp, Err: ErrUnexpectedStatus})
	}
	token := resp.Path("token")
	if !token.Exists() || token.String() == "" {
		return "", fmt.Errorf("authenticate: %w", &ResponseError{Response: resp, Err: ErrMissingToken})
	}

	c.SetToken(token.String())
	c.log.Info("authenticated", "user", username)
	return token.String(), nil
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, nil)
}

// Post issues a POST request with body.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, http.MethodPost, path, body)
}

// Put issues a PUT request with body.
func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, http.MethodPut, path, body)
}

// Patch issues a PATCH request with body.
func (c *Client) Patch(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, http.MethodPatch, path, body)
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, http.MethodDelete, path, nil)
}

// Do sends a request and reads the whole response. body may be nil, []byte,
// string, io.Reader, or any value encodable as JSON. Transport failures are
// returned as errors; every HTTP status is returned as a Response.
func (c *Client) Do(ctx context.Context, method, path string, body any) (*Response, error) {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, req.URL.Host); err != nil {
			return nil, fmt.Errorf("%s %s: rate limit: %w", method, path, err)
		}
	}

	start := time.Now()
	httpResp, err := c.http.Do(req)
	if err != nil {
		c.metrics.Request(method, 0, time.Since(start))
		c.log.Debug("request failed", "method", method, "path", path, "error", err)
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	elapsed := time.Since(start)
	if err != nil {
		c.metrics.Request(method, 0, elapsed)
		return nil, fmt.Errorf("%s %s: read body: %w", method, path, err)
	}

	c.metrics.Request(method, httpResp.StatusCode, elapsed)
	c.log.Debug("request",
		"method", method,
		"path", path,
		"status", httpResp.StatusCode,
		"request_id", req.Header.Get(requestIDHeader),
		"elapsed", elapsed,
	)

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
		Duration:   elapsed,
	}, nil
}

// newRequest builds the request; the token is read here so a change only
// affects requests built afterwards.
func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	reader, err := encodeBody(body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	target := c.baseURL.String() + "/" + strings.TrimLeft(path, "/")
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestIDHeader, uuid.NewString())
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func encodeBody(body any) (io.Reader, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return bytes.NewReader(b), nil
	case string:
		return strings.NewReader(b), nil
	case io.Reader:
		return b, nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		return bytes.NewReader(data), nil
	}
}

// GetAsync submits a GET to the worker pool.
func (c *Client) GetAsync(ctx context.Context, path string) (*PendingCall, error) {
	return c.DoAsync(ctx, http.MethodGet, path, nil)
}

// PostAsync submits a POST to the worker pool.
func (c *Client) PostAsync(ctx context.Context, path string, body any) (*PendingCall, error) {
	return c.DoAsync(ctx, http.MethodPost, path, body)
}

// DeleteAsync submits a DELETE to the worker pool.
func (c *Client) DeleteAsync(ctx context.Context, path string) (*PendingCall, error) {
	return c.DoAsync(ctx, http.MethodDelete, path, nil)
}

// DoAsync runs Do on the worker pool and returns immediately. At most the
// pool size calls run at once; the rest queue. After Shutdown it returns
// ErrClientClosed without submitting anything.
func (c *Client) DoAsync(ctx context.Context, method, path string, body any) (*PendingCall, error) {
	c.closeMu.RLock()
	defer c.closeMu.RUnlock()
	if c.closed {
		return nil, fmt.Errorf("%s %s: %w", method, path, ErrClientClosed)
	}

	call := newPendingCall()
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()

		if err := c.pool.Acquire(ctx, 1); err != nil {
			call.complete(nil, fmt.Errorf("%s %s: %w", method, path, err))
			return
		}
		defer c.pool.Release(1)

		call.complete(c.Do(ctx, method, path, body))
	}()
	return call, nil
}

// Shutdown stops accepting async submissions and waits for every call
// already submitted, queued or running, to complete. It is safe to call
// more than once.
func (c *Client) Shutdown() {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return
	}
	c.closed = true
	c.closeMu.Unlock()

	c.inflight.Wait()
	if c.ownsHTTP {
		c.http.CloseIdleConnections()
	}
	c.log.Debug("client shut down")
}
