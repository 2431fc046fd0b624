package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

// Client issues probe requests against a single backend deployment.
// All requests are resolved relative to the base URL, carry the suite's
// default headers, and attach the bearer token once Login has succeeded.
//
// Design decision: We keep one Client per suite rather than passing the
// http.Client around because the token, headers, and body-size limits are
// suite-scoped state that every request needs.
type Client struct {
	// baseURL is the backend root all paths are resolved against.
	baseURL *url.URL

	// httpClient is the underlying transport.
	httpClient *http.Client

	// token is the bearer token obtained by Login. Empty until then.
	token string

	// headers are sent with every request.
	headers map[string]string

	// maxBodySize bounds how many response bytes are read.
	maxBodySize int64

	// snippetSize bounds how many body bytes are kept for reports.
	snippetSize int

	// timeout is the per-request timeout.
	timeout time.Duration

	// proxyAddress is the optional SOCKS5 proxy, "host:port".
	proxyAddress string

	// insecure disables TLS certificate verification.
	insecure bool
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithHeaders sets headers sent with every request.
func WithHeaders(headers map[string]string) Option {
	return func(c *Client) {
		c.headers = headers
	}
}

// WithMaxBodySize bounds response body reads.
func WithMaxBodySize(size int64) Option {
	return func(c *Client) {
		if size > 0 {
			c.maxBodySize = size
		}
	}
}

// WithSnippetSize bounds the body snippet kept in results.
func WithSnippetSize(size int) Option {
	return func(c *Client) {
		if size > 0 {
			c.snippetSize = size
		}
	}
}

// WithProxy routes all requests through a SOCKS5 proxy at the given
// "host:port" address. Useful when the backend sits behind a bastion.
func WithProxy(address string) Option {
	return func(c *Client) {
		c.proxyAddress = address
	}
}

// WithInsecure disables TLS certificate verification, for staging
// deployments with self-signed certificates.
func WithInsecure(insecure bool) Option {
	return func(c *Client) {
		c.insecure = insecure
	}
}

// New creates a Client for the given base URL.
//
// Design decision: We validate the base URL here and the proxy address
// lazily in buildTransport, so a Client can be constructed from a suite
// file before the network is touched.
func New(baseURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBaseURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme must be http or https, got %q", ErrInvalidBaseURL, parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidBaseURL)
	}

	c := &Client{
		baseURL:     parsed,
		maxBodySize: 1 * 1024 * 1024,
		snippetSize: 512,
		timeout:     15 * time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	transport, err := c.buildTransport()
	if err != nil {
		return nil, err
	}

	c.httpClient = &http.Client{
		Transport: transport,
		Timeout:   c.timeout,
		// Redirects are not followed: a 3xx proves the route is wired,
		// and following it would probe a different route than declared.
		CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return c, nil
}

// buildTransport creates the HTTP transport, wiring in the SOCKS5 dialer
// when a proxy is configured.
func (c *Client) buildTransport() (*http.Transport, error) {
	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     30 * time.Second,
	}

	if c.insecure {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true, //nolint:gosec // Opt-in via --insecure for staging deployments
		}
	}

	if c.proxyAddress != "" {
		if !isValidProxyAddress(c.proxyAddress) {
			return nil, ErrInvalidProxyAddress
		}
		// nil auth: bastion-side SOCKS endpoints typically don't require it
		dialer, err := proxy.SOCKS5("tcp", c.proxyAddress, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		}
	}

	return transport, nil
}

// isValidProxyAddress checks that the address is "host:port" with a port
// in range. A simple check is enough; the format has no scheme or path.
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return false
	}
	return n >= 1 && n <= 65535
}

// Response is the outcome of one probe request.
type Response struct {
	// StatusCode is the HTTP status returned.
	StatusCode int

	// Header holds the response headers.
	Header http.Header

	// Body holds the response body, bounded by the client's max body size.
	Body []byte

	// Latency is how long the round trip took.
	Latency time.Duration
}

// Snippet returns the leading body bytes bounded by the snippet size,
// suitable for embedding in reports.
func (r *Response) Snippet(max int) string {
	if max <= 0 || len(r.Body) <= max {
		return string(r.Body)
	}
	return string(r.Body[:max])
}

// Do sends a request for the given method and path.
// path is resolved against the base URL; body may be empty. The bearer
// token is attached when present unless skipAuth is true.
//
// Transport-level failures are returned as errors; HTTP error statuses
// are not errors here, because classifying them is the caller's job.
func (c *Client) Do(ctx context.Context, method, path, body string, skipAuth bool) (*Response, error) {
	return c.do(ctx, method, path, body, nil, skipAuth)
}

// DoWithHeaders is Do with extra per-request headers.
func (c *Client) DoWithHeaders(ctx context.Context, method, path, body string, headers map[string]string, skipAuth bool) (*Response, error) {
	return c.do(ctx, method, path, body, headers, skipAuth)
}

func (c *Client) do(ctx context.Context, method, path, body string, extraHeaders map[string]string, skipAuth bool) (*Response, error) {
	target := c.resolve(path)

	var reader io.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}
	if body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" && !skipAuth {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(start)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Bounded read: classification needs the status code, not the payload
	limited := io.LimitReader(resp.Body, c.maxBodySize)
	data, err := io.ReadAll(limited)
	if err != nil {
		// A partial body is still a classifiable response
		data = nil
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		Latency:    latency,
	}, nil
}

// resolve joins the base URL with a request path.
func (c *Client) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	base := strings.TrimRight(c.baseURL.String(), "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

// Token returns the bearer token obtained by Login, or empty.
func (c *Client) Token() string {
	return c.token
}

// SetToken sets the bearer token directly. Used by tests and by callers
// that already hold a token.
func (c *Client) SetToken(token string) {
	c.token = token
}

// SnippetSize returns the configured report snippet bound.
func (c *Client) SnippetSize() int {
	return c.snippetSize
}
