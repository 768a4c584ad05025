// Package agent is the client for the AI Agent backend: JSON request/response
// endpoints for auth, chat sessions and files, plus the streaming chat
// decoder. All authenticated calls obtain their token from auth.Manager and
// retry exactly once after a 401 that a forced refresh resolves.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/samsaffron/term-agent/internal/auth"
)

const requestTimeout = 30 * time.Second

// Client talks to one backend instance.
type Client struct {
	baseURL string
	tokens  *auth.Manager

	// http serves request/response calls and carries a timeout; stream
	// serves long-lived SSE requests and must not. Both share the token
	// cookie jar so the backend sees the same cookies the web client sends.
	http   *http.Client
	stream *http.Client

	debugRaw bool
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces both underlying HTTP clients. Mostly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
		c.stream = hc
	}
}

// WithDebugRaw dumps raw wire traffic to stderr.
func WithDebugRaw(enabled bool) Option {
	return func(c *Client) { c.debugRaw = enabled }
}

// New creates a Client for the backend at baseURL. Credentials come from
// tokens; its cookie jar is installed on the HTTP clients.
func New(baseURL string, tokens *auth.Manager, opts ...Option) *Client {
	jar := tokens.Jar()
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		http:    &http.Client{Timeout: requestTimeout, Jar: jar},
		stream:  &http.Client{Jar: jar},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend base URL the client was built with.
func (c *Client) BaseURL() string { return c.baseURL }

// Tokens exposes the credential manager, e.g. for logout.
func (c *Client) Tokens() *auth.Manager { return c.tokens }

// apiResponse is the backend's JSON envelope for chat and file endpoints.
type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// do performs an authenticated JSON call and decodes the bare response body
// into out (which may be nil). On a 401 it forces one token refresh and
// retries the request exactly once; a second rejection surfaces as
// auth.ErrUnauthenticated.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	data, err := c.roundTrip(ctx, method, path, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// doData is like do but unwraps the {success, message, data} envelope first.
func (c *Client) doData(ctx context.Context, method, path string, body, out interface{}) error {
	data, err := c.roundTrip(ctx, method, path, body)
	if err != nil {
		return err
	}
	var env apiResponse
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("parse response envelope: %w", err)
	}
	if !env.Success {
		return &APIError{StatusCode: http.StatusOK, Message: env.Message}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("parse response data: %w", err)
	}
	return nil
}

// doPublic performs an unauthenticated JSON call (login, register).
func (c *Client) doPublic(ctx context.Context, method, path string, body, out interface{}) error {
	payload, err := marshalBody(body)
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, method, path, payload, "")
	if err != nil {
		return err
	}
	data, err := c.send(req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// roundTrip sends one authenticated request with the 401-retry rule and
// returns the raw success body.
func (c *Client) roundTrip(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	payload, err := marshalBody(body)
	if err != nil {
		return nil, err
	}

	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	retried := false
	for {
		req, err := c.newRequest(ctx, method, path, payload, token)
		if err != nil {
			return nil, err
		}
		data, err := c.send(req)
		if apiErr, ok := err.(*APIError); ok && apiErr.StatusCode == http.StatusUnauthorized {
			if retried {
				return nil, fmt.Errorf("%w: server rejected refreshed token", auth.ErrUnauthenticated)
			}
			// The local expiry prediction was wrong (clock skew, revoked
			// session). One forced refresh, one retry, never more.
			token, err = c.tokens.Refresh(ctx)
			if err != nil {
				return nil, err
			}
			retried = true
			continue
		}
		return data, err
	}
}

func marshalBody(body interface{}) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return payload, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, payload []byte, token string) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// send executes req and returns the body on 2xx, or an *APIError otherwise.
func (c *Client) send(req *http.Request) ([]byte, error) {
	if c.debugRaw {
		debugRequest(req)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if c.debugRaw {
		debugResponse(resp, data)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(resp.StatusCode, data)
	}
	return data, nil
}
