// Package transport is the JSON-over-HTTP client shared by the identity and cart
// backends. It stamps every request with an X-Request-ID and maps transport
// failures to apperr.ErrNetwork.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"storefront/client/internal/apperr"
)

// maxBody caps how much of a response body is read.
const maxBody = 1 << 20

// HeaderRequestID carries the per-request correlation id.
const HeaderRequestID = "X-Request-ID"

// Client sends JSON requests to one backend base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a Client for baseURL with an instrumented transport and the given timeout.
func New(baseURL string, timeout time.Duration) *Client {
	return NewWithHTTPClient(baseURL, &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	})
}

// NewWithHTTPClient returns a Client using hc as is.
func NewWithHTTPClient(baseURL string, hc *http.Client) *Client {
	return &Client{baseURL: baseURL, httpClient: hc}
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Response is a fully read backend response.
type Response struct {
	Status    int
	Body      []byte
	RequestID string
}

// Do sends method path with body encoded as JSON (nil sends no body). The
// response body is read in full whatever the status; callers interpret it.
func (c *Client) Do(ctx context.Context, method, path string, body any, header http.Header) (*Response, error) {
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	requestID := uuid.NewString()
	req.Header.Set(HeaderRequestID, requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.requestError(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", apperr.ErrNetwork, err)
	}
	return &Response{Status: resp.StatusCode, Body: raw, RequestID: requestID}, nil
}

func (c *Client) requestError(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return fmt.Errorf("%w: request canceled", apperr.ErrNetwork)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: request timed out", apperr.ErrNetwork)
	default:
		return fmt.Errorf("%w: cannot connect to backend at %s: %v", apperr.ErrNetwork, c.baseURL, err)
	}
}

// Bearer returns an Authorization header for token.
func Bearer(token string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return h
}
