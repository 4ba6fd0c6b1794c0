package studio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/maauso/genmedia-relay/internal/relay"
)

// maxResponseBytes bounds relay answers; generated media travels inline.
const maxResponseBytes = 64 << 20

// Client defines the interface for calling the relay.
type Client interface {
	// Call performs one relay operation and decodes the success body into out.
	// apiKey is sent only when non-empty.
	Call(ctx context.Context, endpoint relay.Endpoint, apiKey string, payload, out any) error
}

// HTTPClient is the HTTP implementation of the relay Client interface.
// It never retries: every failure is reported to the caller as is.
type HTTPClient struct {
	url        string
	httpClient *http.Client
}

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(hc *HTTPClient) {
		if c != nil {
			hc.httpClient = c
		}
	}
}

// NewClient creates a relay client for the POST endpoint at url.
func NewClient(url string, opts ...ClientOption) (*HTTPClient, error) {
	if url == "" {
		return nil, ErrRelayRequired
	}

	c := &HTTPClient{
		url: url,
		// Image and video submissions can take a while on the remote side.
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// callRequest is the relay request body.
type callRequest struct {
	APIKey   string         `json:"apiKey,omitempty"`
	Endpoint relay.Endpoint `json:"endpoint"`
	Payload  any            `json:"payload"`
}

// errorResponse is the relay error body.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Call performs one relay operation.
func (c *HTTPClient) Call(ctx context.Context, endpoint relay.Endpoint, apiKey string, payload, out any) error {
	if payload == nil {
		payload = struct{}{}
	}
	body, err := json.Marshal(callRequest{APIKey: apiKey, Endpoint: endpoint, Payload: payload})
	if err != nil {
		return fmt.Errorf("%w: marshal %s request: %v", ErrBadRequest, endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: create request: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("studio: %s: %w", endpoint, ctxErr)
		}
		return fmt.Errorf("%w: %s: %v", ErrTransport, endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: read %s response: %v", ErrTransport, endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var er errorResponse
		if err := json.Unmarshal(respBody, &er); err != nil {
			er.Error = string(bytes.TrimSpace(respBody))
		}
		return newRelayError(endpoint, resp.StatusCode, er.Code, er.Error)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("%w: decode %s response: %v", ErrTransport, endpoint, err)
		}
	}
	return nil
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
