package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-support/backend/internal/model/chat"
)

var errNoSession = errors.New("no such session")

type sessionsStub map[string]bool

func (s sessionsStub) GetSession(_ context.Context, id string) (chat.Session, error) {
	if !s[id] {
		return chat.Session{}, errNoSession
	}
	return chat.Session{ID: id}, nil
}

func TestImageKey(t *testing.T) {
	at := time.UnixMilli(1717000000123)
	tests := []struct {
		filename string
		want     string
	}{
		{"photo.png", "s1/1717000000123_photo.png"},
		{"Screen Shot.png", "s1/1717000000123_Screen_Shot.png"},
		{"../../etc/passwd", "s1/1717000000123_passwd"},
		{`C:\Users\me\cat.jpg`, "s1/1717000000123_cat.jpg"},
	}
	for _, tt := range tests {
		if got := ImageKey("s1", tt.filename, at); got != tt.want {
			t.Errorf("ImageKey(%q) = %q, want %q", tt.filename, got, tt.want)
		}
	}
}

func TestCleanFilenameRejectsDots(t *testing.T) {
	for _, name := range []string{"", ".", "..", "/"} {
		if got := cleanFilename(name); got != "" {
			t.Errorf("cleanFilename(%q) = %q, want empty", name, got)
		}
	}
}

func TestLocalPut(t *testing.T) {
	root := t.TempDir()
	local, err := NewLocal(root, "http://localhost:8080/storage/")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, local.Put(ctx, "s1/1_a b.png", "image/png", strings.NewReader("png")))
	data, err := os.ReadFile(filepath.Join(root, "s1", "1_a b.png"))
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))
	assert.Equal(t, "http://localhost:8080/storage/s1/1_a%20b.png", local.PublicURL("s1/1_a b.png"))

	err = local.Put(ctx, "s1/1_a b.png", "image/png", strings.NewReader("again"))
	assert.ErrorIs(t, err, ErrObjectExists)

	assert.Error(t, local.Put(ctx, "../escape.png", "image/png", strings.NewReader("x")))
}

func TestS3PublicURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  S3Config
		want string
	}{
		{
			name: "public base",
			cfg:  S3Config{Bucket: "b", Region: "eu-west-1", PublicBaseURL: "https://cdn.example.com"},
			want: "https://cdn.example.com/s1/1_x%23.png",
		},
		{
			name: "custom endpoint",
			cfg:  S3Config{Bucket: "b", Endpoint: "http://minio:9000/"},
			want: "http://minio:9000/b/s1/1_x%23.png",
		},
		{
			name: "aws",
			cfg:  S3Config{Bucket: "b", Region: "eu-west-1"},
			want: "https://b.s3.eu-west-1.amazonaws.com/s1/1_x%23.png",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &S3{cfg: tt.cfg}
			assert.Equal(t, tt.want, s.PublicURL("s1/1_x#.png"))
		})
	}
}

func TestUploaderValidation(t *testing.T) {
	local, err := NewLocal(t.TempDir(), "http://host/storage")
	require.NoError(t, err)
	up := NewUploader(local, sessionsStub{"s1": true})
	up.now = func() time.Time { return time.UnixMilli(42) }
	ctx := context.Background()

	_, err = up.UploadImage(ctx, "s1", "notes.txt", "text/plain", bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrNotAnImage)

	_, err = up.UploadImage(ctx, "s1", "..", "image/png", bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrFilenameRequired)

	_, err = up.UploadImage(ctx, "ghost", "a.png", "image/png", bytes.NewReader(nil))
	assert.ErrorIs(t, err, errNoSession)

	url, err := up.UploadImage(ctx, "s1", "a.png", "IMAGE/PNG", strings.NewReader("png"))
	require.NoError(t, err)
	assert.Equal(t, "http://host/storage/s1/42_a.png", url)

	_, err = up.UploadImage(ctx, "s1", "a.png", "image/png", strings.NewReader("png"))
	assert.ErrorIs(t, err, ErrObjectExists)
}
