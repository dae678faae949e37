package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/zhouzirui/z-support/backend/internal/model/chat"
)

var (
	ErrObjectExists     = errors.New("object already exists")
	ErrNotAnImage       = errors.New("only image uploads are accepted")
	ErrFilenameRequired = errors.New("filename is required")
)

// ObjectStore persists uploaded files and knows their public address.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) error
	PublicURL(key string) string
}

// SessionLookup confirms that an upload targets an existing session.
type SessionLookup interface {
	GetSession(ctx context.Context, sessionID string) (chat.Session, error)
}

// ImageKey builds the object key "{sessionId}/{unixMillis}_{filename}".
func ImageKey(sessionID, filename string, now time.Time) string {
	return fmt.Sprintf("%s/%d_%s", sessionID, now.UnixMilli(), cleanFilename(filename))
}

func cleanFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\x00':
			return -1
		case r == ' ':
			return '_'
		}
		return r
	}, name)
	if name == "." || name == ".." {
		return ""
	}
	return name
}

// Uploader stores chat images under their session.
type Uploader struct {
	objects  ObjectStore
	sessions SessionLookup
	now      func() time.Time
}

// NewUploader creates an image uploader.
func NewUploader(objects ObjectStore, sessions SessionLookup) *Uploader {
	return &Uploader{objects: objects, sessions: sessions, now: time.Now}
}

// UploadImage stores body and returns its public URL.
func (u *Uploader) UploadImage(ctx context.Context, sessionID, filename, contentType string, body io.Reader) (string, error) {
	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		return "", ErrNotAnImage
	}
	if cleanFilename(filename) == "" {
		return "", ErrFilenameRequired
	}
	if _, err := u.sessions.GetSession(ctx, sessionID); err != nil {
		return "", err
	}

	key := ImageKey(sessionID, filename, u.now())
	if err := u.objects.Put(ctx, key, contentType, body); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return u.objects.PublicURL(key), nil
}
