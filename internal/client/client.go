// Package client talks to a z-support server over HTTP and the realtime
// websocket. Client satisfies chatsync.Backend.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/zhouzirui/z-support/backend/internal/chatsync"
	"github.com/zhouzirui/z-support/backend/internal/model/chat"
)

// ErrNotFound is returned for 404 responses.
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

var _ chatsync.Backend = (*Client)(nil)

// Client is safe for concurrent use.
type Client struct {
	baseURL *url.URL
	anonKey string
	http    *http.Client

	mu          sync.RWMutex
	accessToken string
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithAccessToken starts the client already signed in.
func WithAccessToken(token string) Option {
	return func(c *Client) { c.accessToken = token }
}

// New creates a client for the server at baseURL.
func New(baseURL, anonKey string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("base url is required")
	}
	if strings.TrimSpace(anonKey) == "" {
		return nil, errors.New("anon key is required")
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}

	c := &Client{
		baseURL: u,
		anonKey: anonKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// AccessToken returns the admin token, if signed in.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// SetAccessToken replaces the admin token.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) authorize(h http.Header) {
	h.Set("apikey", c.anonKey)
	if token := c.AccessToken(); token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
}

// doJSON sends in as JSON (when non-nil) and decodes the response into out
// (when non-nil).
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	c.authorize(req.Header)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var payload struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &payload) != nil || payload.Error == "" {
			payload.Error = strings.TrimSpace(string(raw))
		}
		return &APIError{Status: resp.StatusCode, Message: payload.Error}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// FindSessionsByVisitor lists a visitor's sessions, newest first.
func (c *Client) FindSessionsByVisitor(ctx context.Context, visitorID string) ([]chat.Session, error) {
	var out []chat.Session
	err := c.doJSON(ctx, http.MethodGet, "/api/sessions", url.Values{"visitor_id": {visitorID}}, nil, &out)
	return out, err
}

// GetSession fetches one session.
func (c *Client) GetSession(ctx context.Context, sessionID string) (chat.Session, error) {
	var out chat.Session
	err := c.doJSON(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(sessionID), nil, nil, &out)
	if errors.Is(err, ErrNotFound) {
		return chat.Session{}, fmt.Errorf("%w: %s: %w", chat.ErrSessionNotFound, sessionID, err)
	}
	return out, err
}

// CreateSession inserts a session and returns the stored row.
func (c *Client) CreateSession(ctx context.Context, session chat.Session) (chat.Session, error) {
	var out chat.Session
	err := c.doJSON(ctx, http.MethodPost, "/api/sessions", nil, session, &out)
	return out, err
}

// ListMessages returns a session's messages in creation order.
func (c *Client) ListMessages(ctx context.Context, sessionID string) ([]chat.Message, error) {
	var out []chat.Message
	err := c.doJSON(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(sessionID)+"/messages", nil, nil, &out)
	return out, err
}

// InsertMessage stores a message and returns the stored row.
func (c *Client) InsertMessage(ctx context.Context, message chat.Message) (chat.Message, error) {
	var out chat.Message
	err := c.doJSON(ctx, http.MethodPost, "/api/messages", nil, message, &out)
	return out, err
}

// MarkMessage sets a message's delivery status.
func (c *Client) MarkMessage(ctx context.Context, messageID string, status chat.MessageStatus) (chat.Message, error) {
	var out chat.Message
	err := c.doJSON(ctx, http.MethodPatch, "/api/messages/"+url.PathEscape(messageID), nil,
		map[string]chat.MessageStatus{"status": status}, &out)
	return out, err
}
