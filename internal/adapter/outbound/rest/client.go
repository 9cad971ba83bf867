// Package rest is the HTTP adapter for the storefront backend. One Client
// implements every outbound gateway port: cart, identity, catalog and orders.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/storefront-dev/storefront/internal/domain/apierr"
	"github.com/storefront-dev/storefront/internal/port/outbound"
)

const (
	// DefaultBaseURL is the backend address used when none is configured.
	DefaultBaseURL = "http://localhost:8000"
	// DefaultTimeout bounds every request.
	DefaultTimeout = 10 * time.Second

	maxResponseBytes = 10 << 20
)

// Compile-time port checks.
var (
	_ outbound.CartGateway     = (*Client)(nil)
	_ outbound.IdentityGateway = (*Client)(nil)
	_ outbound.CatalogGateway  = (*Client)(nil)
	_ outbound.OrderGateway    = (*Client)(nil)
)

// CredentialSource returns the credential to attach to the next request,
// or "" for an anonymous request.
type CredentialSource func() string

// UnauthorizedHandler is called when a request that carried credential was
// rejected with 401. It runs synchronously before the error is returned.
type UnauthorizedHandler func(credential string)

// errServerStatus marks 5xx responses as breaker failures.
var errServerStatus = errors.New("server error status")

// Client talks to the storefront backend.
type Client struct {
	baseURL        string
	timeout        time.Duration
	httpClient     *http.Client
	credentials    CredentialSource
	onUnauthorized UnauthorizedHandler
	metrics        *Metrics
	breaker        *gobreaker.CircuitBreaker[*http.Response]
	logger         *slog.Logger
}

// NewClient creates a backend client. Without options it talks to
// DefaultBaseURL anonymously with DefaultTimeout.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Timeout:   c.timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	c.baseURL = strings.TrimRight(c.baseURL, "/")

	return c
}

// BaseURL returns the backend address requests are sent to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// call describes one backend request.
type call struct {
	// op names the operation in errors, logs and metrics.
	op string
	// fallback is the user-facing message when the response carries no detail.
	fallback string

	method string
	path   string
	query  url.Values

	// json is marshaled as the body when non-nil; form wins over json.
	json any
	form url.Values

	// credential overrides the CredentialSource. Requests with an explicit
	// credential never reach the UnauthorizedHandler.
	credential *string
	// anonymous suppresses the credential entirely.
	anonymous bool
}

// do executes a call and decodes a 2xx body into out when out is non-nil.
// An empty or null body leaves out untouched.
func (c *Client) do(ctx context.Context, cl call, out any) error {
	raw, err := c.send(ctx, cl)
	if err != nil {
		return err
	}
	if out == nil || isEmptyBody(raw) {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &apierr.Error{
			Kind:   apierr.KindServer,
			Op:     cl.op,
			Detail: cl.fallback,
			Err:    fmt.Errorf("failed to decode response: %w", err),
		}
	}
	return nil
}

// send executes a call and returns the raw 2xx body.
func (c *Client) send(ctx context.Context, cl call) ([]byte, error) {
	req, credential, hook, err := c.newRequest(ctx, cl)
	if err != nil {
		return nil, apierr.Network(cl.op, cl.fallback, err)
	}

	logger := c.logger.With("op", cl.op, "request_id", req.Header.Get("X-Request-ID"))
	start := time.Now()

	resp, err := c.execute(req)
	if err != nil {
		c.record(cl.op, "network", start)
		logger.Debug("backend request failed", "error", err)
		return nil, apierr.Network(cl.op, cl.fallback, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.record(cl.op, "network", start)
		return nil, apierr.Network(cl.op, cl.fallback, fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.record(cl.op, "ok", start)
		return body, nil
	}

	apiErr := apierr.FromResponse(cl.op, resp.StatusCode, body, cl.fallback)
	c.record(cl.op, apiErr.Kind.String(), start)
	logger.Debug("backend rejected request",
		"status", resp.StatusCode,
		"kind", apiErr.Kind.String(),
		"detail", apiErr.Message(),
	)

	if apiErr.Kind == apierr.KindAuth && credential != "" && hook {
		if c.metrics != nil {
			c.metrics.UnauthorizedTotal.Inc()
		}
		if c.onUnauthorized != nil {
			c.onUnauthorized(credential)
		}
	}
	return nil, apiErr
}

func (c *Client) newRequest(ctx context.Context, cl call) (*http.Request, string, bool, error) {
	target := c.baseURL + cl.path
	if len(cl.query) > 0 {
		target += "?" + cl.query.Encode()
	}

	var (
		body        io.Reader
		contentType string
	)
	switch {
	case cl.form != nil:
		body = strings.NewReader(cl.form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case cl.json != nil:
		data, err := json.Marshal(cl.json)
		if err != nil {
			return nil, "", false, fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, target, body)
	if err != nil {
		return nil, "", false, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.New().String())

	var (
		credential string
		hook       bool
	)
	switch {
	case cl.anonymous:
	case cl.credential != nil:
		credential = *cl.credential
	case c.credentials != nil:
		credential = c.credentials()
		hook = true
	}
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}
	return req, credential, hook, nil
}

// execute sends req through the circuit breaker when one is configured.
// Only transport failures and 5xx responses count against the breaker.
func (c *Client) execute(req *http.Request) (*http.Response, error) {
	if c.breaker == nil {
		return c.httpClient.Do(req)
	}

	var resp *http.Response
	_, err := c.breaker.Execute(func() (*http.Response, error) {
		r, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		resp = r
		if r.StatusCode >= 500 {
			return r, errServerStatus
		}
		return r, nil
	})
	if errors.Is(err, errServerStatus) {
		return resp, nil
	}
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, err
	}
	return resp, nil
}

func (c *Client) record(op, status string, start time.Time) {
	if c.metrics == nil {
		return
	}
	label := strings.ReplaceAll(op, " ", "_")
	c.metrics.RequestDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	c.metrics.RequestsTotal.WithLabelValues(label, status).Inc()
}

func isEmptyBody(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func escape(id fmt.Stringer) string {
	return url.PathEscape(id.String())
}
