// Package upstream is the single shared transport to the proxy-management
// backend. Every outgoing call gets the current bearer token attached, and
// every result is classified by status family; session-fatal classifications
// are broadcast on the event bus rather than handed back to whichever caller
// happened to trip over them.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tunneldeck-console/internal/events"
)

var (
	ErrUnauthorized = errors.New("upstream rejected credentials")
	ErrForbidden    = errors.New("upstream denied access")
	ErrServer       = errors.New("upstream server error")
	ErrBadStatus    = errors.New("upstream returned unexpected status")
)

// Client wraps one shared HTTP client. The session store is the sole writer
// of the token slot; the client itself never reads session state.
type Client struct {
	base string
	http *http.Client
	bus  *events.Bus

	mu    sync.RWMutex
	token string
}

// New creates a client for the backend at baseURL. Calls publish classified
// failures on bus.
func New(baseURL string, timeout time.Duration, bus *events.Bus) *Client {
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: timeout},
		bus:  bus,
	}
}

// SetAuthToken sets the bearer token attached to subsequent requests
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// ClearAuthToken removes the bearer token
func (c *Client) ClearAuthToken() {
	c.SetAuthToken("")
}

// Token returns the currently held bearer token, empty when unset
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// do performs one request and classifies the outcome. 401 clears the local
// token and broadcasts auth-expired; 403 broadcasts access-denied; 5xx
// broadcasts server-error. Network failures and remaining 4xx are returned
// to the caller with no broadcast. Never retries.
func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		// Transport-level self-defense: drop the dead token before anyone
		// else reacts
		c.ClearAuthToken()
		msg := errorPayload(resp.Body)
		c.bus.Publish(events.Event{Kind: events.AuthExpired, Status: resp.StatusCode, Message: msg})
		return fmt.Errorf("%w: %s", ErrUnauthorized, msg)

	case resp.StatusCode == http.StatusForbidden:
		msg := errorPayload(resp.Body)
		c.bus.Publish(events.Event{Kind: events.AccessDenied, Status: resp.StatusCode, Message: msg})
		return fmt.Errorf("%w: %s", ErrForbidden, msg)

	case resp.StatusCode >= http.StatusInternalServerError:
		msg := errorPayload(resp.Body)
		c.bus.Publish(events.Event{Kind: events.ServerError, Status: resp.StatusCode, Message: msg})
		return fmt.Errorf("%w: status %d: %s", ErrServer, resp.StatusCode, msg)

	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: status %d: %s", ErrBadStatus, resp.StatusCode, errorPayload(resp.Body))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode upstream response: %w", err)
	}
	return nil
}

// getJSON issues a GET and decodes the response into out
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, "", nil, out)
}

// postJSON issues a POST with a JSON body and decodes the response into out.
// body and out may each be nil.
func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(raw)
	}
	return c.do(ctx, http.MethodPost, path, "application/json", r, out)
}

// errorPayload extracts a human-readable message from an error response body.
// Backends answer with {"error": ...} or {"detail": ...}; anything else is
// returned as the (truncated) raw body.
func errorPayload(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(raw) == 0 {
		return ""
	}

	var payload struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Detail != "" {
			return payload.Detail
		}
	}

	return strings.TrimSpace(string(raw))
}
