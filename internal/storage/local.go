package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Local keeps objects on disk below a root directory.
type Local struct {
	root    string
	baseURL string
}

// NewLocal creates the root directory if needed.
func NewLocal(root, baseURL string) (*Local, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, err
	}
	return &Local{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Root returns the directory objects are written to.
func (l *Local) Root() string {
	return l.root
}

func (l *Local) Put(_ context.Context, key, _ string, body io.Reader) error {
	target := filepath.Join(l.root, filepath.FromSlash(key))
	if rel, err := filepath.Rel(l.root, target); err != nil || strings.HasPrefix(rel, "..") {
		return errors.New("object key escapes storage root")
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return err
	}

	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return ErrObjectExists
		}
		return err
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(target)
		return err
	}
	return f.Close()
}

func (l *Local) PublicURL(key string) string {
	return l.baseURL + "/" + escapeKey(key)
}
