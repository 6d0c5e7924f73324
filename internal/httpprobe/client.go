package httpprobe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jpalmerr/eventually"
)

const maxResponseBodySize = 1 << 20 // 1MB

// connection pooling limits; a wait command may probe many targets at once
const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 10
	defaultIdleConnTimeout     = 60 * time.Second
)

// Request describes one HTTP probe request.
type Request struct {
	// Method is the HTTP method. Empty means GET.
	Method string

	// URL is the target URL.
	URL string

	// Headers are set on every request.
	Headers map[string]string

	// Timeout bounds a single request. Zero means no per-request timeout;
	// the caller's context still applies.
	Timeout time.Duration
}

// Response holds the result of a request made by [Client.Fetch].
type Response struct {
	// Body contains the response body, limited to 1MB.
	Body []byte

	// StatusCode is the HTTP status code.
	// Zero if the request failed before receiving a response.
	StatusCode int

	// Latency is the total time taken for the request.
	Latency time.Duration

	// Error is set when no complete response was received.
	Error error
}

// Client is an HTTP client wrapper for probing endpoints.
//
// Timeouts are applied per request via the context, so different targets can
// use different budgets with one shared connection pool.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a [Client] with a pooled transport.
//
// Connection pooling configuration:
//   - MaxIdleConns: 100 total idle connections
//   - MaxIdleConnsPerHost: 10 idle connections per host
//   - MaxConnsPerHost: 10 concurrent connections per host
//   - IdleConnTimeout: 60 seconds before closing idle connections
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
	}
}

// Fetch performs req and returns a structured [Response].
//
// Fetch always returns a Response; errors are captured in the Error field
// rather than returned separately.
func (c *Client) Fetch(ctx context.Context, req Request) Response {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	start := time.Now()

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, nil)
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("failed to create request: %w", err),
		}
	}

	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("request failed: %w", err),
		}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return Response{
			StatusCode: resp.StatusCode,
			Latency:    time.Since(start),
			Error:      fmt.Errorf("failed to read response body: %w", err),
		}
	}

	return Response{
		Body:       body,
		StatusCode: resp.StatusCode,
		Latency:    time.Since(start),
	}
}

// Probe returns an eventually.Probe that performs req once per attempt and
// maps the response through extract. A nil extract means [DefaultExtractor].
//
// A request that gets no response fails the attempt with its error; any
// response is ready with the extracted status, so pair the probe with a
// matcher such as eventually.EqualTo(httpprobe.StatusUp).
//
// Example:
//
//	client := httpprobe.NewClient()
//	defer client.Close()
//	_, err := eventually.AssertThat(ctx, e, 30*time.Second, "API is healthy",
//	    client.Probe(httpprobe.Request{URL: "http://localhost:8080/health"}, nil),
//	    eventually.EqualTo(httpprobe.StatusUp))
func (c *Client) Probe(req Request, extract Extractor) eventually.Probe[Status] {
	if extract == nil {
		extract = DefaultExtractor
	}
	return func(ctx context.Context) eventually.Outcome[Status] {
		resp := c.Fetch(ctx, req)
		if resp.Error != nil {
			return eventually.Failed[Status](resp.Error)
		}
		return eventually.Ready(extract(resp.Body, resp.StatusCode))
	}
}

// Close closes all idle connections in the client's connection pool.
// Safe to call multiple times and on a nil Client; the client stays usable.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}
