package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strconv"

	"github.com/zhouzirui/z-support/backend/internal/model/admin"
	"github.com/zhouzirui/z-support/backend/internal/model/chat"
	adminService "github.com/zhouzirui/z-support/backend/internal/service/admin"
	authService "github.com/zhouzirui/z-support/backend/internal/service/auth"
)

// SignIn exchanges admin credentials for a token and keeps it.
func (c *Client) SignIn(ctx context.Context, email, password string) (authService.Session, error) {
	var out authService.Session
	err := c.doJSON(ctx, http.MethodPost, "/api/auth/token", nil,
		map[string]string{"email": email, "password": password}, &out)
	if err != nil {
		return authService.Session{}, err
	}
	c.SetAccessToken(out.AccessToken)
	return out, nil
}

// SignOut revokes the current token and forgets it.
func (c *Client) SignOut(ctx context.Context) error {
	err := c.doJSON(ctx, http.MethodPost, "/api/auth/logout", nil, nil, nil)
	c.SetAccessToken("")
	return err
}

// RequestPasswordReset asks the server to mail a recovery link.
func (c *Client) RequestPasswordReset(ctx context.Context, email, redirectTo string) error {
	return c.doJSON(ctx, http.MethodPost, "/api/auth/recover", nil,
		map[string]string{"email": email, "redirect_to": redirectTo}, nil)
}

// CurrentUser returns the signed-in admin.
func (c *Client) CurrentUser(ctx context.Context) (admin.User, error) {
	var out admin.User
	err := c.doJSON(ctx, http.MethodGet, "/api/auth/user", nil, nil, &out)
	return out, err
}

// Dashboard loads the admin landing figures.
func (c *Client) Dashboard(ctx context.Context) (adminService.Dashboard, error) {
	var out adminService.Dashboard
	err := c.doJSON(ctx, http.MethodGet, "/api/admin/dashboard", nil, nil, &out)
	return out, err
}

// Conversations lists sessions with their last message.
func (c *Client) Conversations(ctx context.Context, limit int) ([]chat.Conversation, error) {
	var query url.Values
	if limit > 0 {
		query = url.Values{"limit": {strconv.Itoa(limit)}}
	}
	var out []chat.Conversation
	err := c.doJSON(ctx, http.MethodGet, "/api/admin/conversations", query, nil, &out)
	return out, err
}

// UpdateSessionStatus changes a session's lifecycle status.
func (c *Client) UpdateSessionStatus(ctx context.Context, sessionID string, status chat.SessionStatus) (chat.Session, error) {
	var out chat.Session
	err := c.doJSON(ctx, http.MethodPatch, "/api/admin/sessions/"+url.PathEscape(sessionID), nil,
		map[string]chat.SessionStatus{"status": status}, &out)
	return out, err
}

// Heartbeat marks the signed-in admin online.
func (c *Client) Heartbeat(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, "/api/admin/presence", nil, map[string]bool{"online": true}, nil)
}

// GoOffline marks the signed-in admin offline.
func (c *Client) GoOffline(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, "/api/admin/presence", nil, map[string]bool{"online": false}, nil)
}

// Peers lists the other admins and their presence.
func (c *Client) Peers(ctx context.Context) ([]admin.User, error) {
	var out []admin.User
	err := c.doJSON(ctx, http.MethodGet, "/api/admin/presence", nil, nil, &out)
	return out, err
}

// UploadImage uploads an image for a session and returns its public URL.
func (c *Client) UploadImage(ctx context.Context, sessionID, filename, contentType string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(filename)))
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint("/api/sessions/"+url.PathEscape(sessionID)+"/images", nil), &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out struct {
		URL string `json:"url"`
	}
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}
