package config

import (
	"errors"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("ANON_KEY", "anon")
	t.Setenv("JWT_SECRET", "secret")
	for _, key := range []string{
		"PUBLIC_URL", "DB_DRIVER", "DB_DSN", "REALTIME_SOURCE", "REALTIME_EVENTS_PER_SECOND",
		"REALTIME_BUFFER", "STORAGE_BACKEND", "S3_USE_PATH_STYLE", "TOKEN_TTL", "RECOVERY_TTL",
		"PRESENCE_TTL", "PRESENCE_SWEEP_INTERVAL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("expected :8080, got %q", cfg.Server.Addr)
	}
	if cfg.Server.PublicURL != "http://localhost:8080" {
		t.Fatalf("unexpected public url %q", cfg.Server.PublicURL)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.DSN != "z-support.db" {
		t.Fatalf("unexpected database config %+v", cfg.Database)
	}
	if cfg.Realtime.Source != "local" || cfg.Realtime.EventsPerSecond != 10 {
		t.Fatalf("unexpected realtime config %+v", cfg.Realtime)
	}
	if cfg.Storage.Backend != "local" || cfg.Storage.LocalBaseURL != "http://localhost:8080/storage" {
		t.Fatalf("unexpected storage config %+v", cfg.Storage)
	}
	if cfg.Auth.TokenTTL != time.Hour {
		t.Fatalf("expected 1h token ttl, got %s", cfg.Auth.TokenTTL)
	}
	if cfg.Presence.TTL != 2*time.Minute {
		t.Fatalf("expected 2m presence ttl, got %s", cfg.Presence.TTL)
	}
}

func TestLoadMissingAnonKey(t *testing.T) {
	t.Setenv("ANON_KEY", "")
	t.Setenv("JWT_SECRET", "secret")

	_, err := Load()
	if !errors.Is(err, ErrMissingRequired) {
		t.Fatalf("expected ErrMissingRequired, got %v", err)
	}
}

func TestLoadMissingJWTSecret(t *testing.T) {
	t.Setenv("ANON_KEY", "anon")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	if !errors.Is(err, ErrMissingRequired) {
		t.Fatalf("expected ErrMissingRequired, got %v", err)
	}
}

func TestLoadPortForms(t *testing.T) {
	setRequired(t)

	cases := map[string]string{
		"9000":           ":9000",
		":9001":          ":9001",
		"127.0.0.1:9002": "127.0.0.1:9002",
	}
	for port, want := range cases {
		t.Setenv("PORT", port)
		cfg, err := Load()
		if err != nil {
			t.Fatalf("PORT=%q: unexpected error: %v", port, err)
		}
		if cfg.Server.Addr != want {
			t.Fatalf("PORT=%q: expected %q, got %q", port, want, cfg.Server.Addr)
		}
	}

	t.Setenv("PORT", "80 80")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for port with space")
	}
}

func TestLoadS3RequiresBucket(t *testing.T) {
	setRequired(t)
	t.Setenv("STORAGE_BACKEND", "s3")
	t.Setenv("S3_BUCKET", "")

	if _, err := Load(); !errors.Is(err, ErrMissingRequired) {
		t.Fatalf("expected ErrMissingRequired, got %v", err)
	}

	t.Setenv("S3_BUCKET", "chat-images")
	t.Setenv("S3_USE_PATH_STYLE", "true")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Storage.S3.UsePathStyle || cfg.Storage.S3.Bucket != "chat-images" {
		t.Fatalf("unexpected s3 config %+v", cfg.Storage.S3)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"REALTIME_SOURCE":            "kafka",
		"REALTIME_EVENTS_PER_SECOND": "fast",
		"STORAGE_BACKEND":            "ftp",
		"TOKEN_TTL":                  "-1h",
		"PRESENCE_TTL":               "soon",
		"S3_USE_PATH_STYLE":          "maybe",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			setRequired(t)
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", key, value)
			}
		})
	}
}

func TestLoadRealtimeOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("REALTIME_SOURCE", "postgres")
	t.Setenv("REALTIME_EVENTS_PER_SECOND", "2.5")
	t.Setenv("REALTIME_BUFFER", "16")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Realtime.Source != "postgres" || cfg.Realtime.EventsPerSecond != 2.5 || cfg.Realtime.Buffer != 16 {
		t.Fatalf("unexpected realtime config %+v", cfg.Realtime)
	}
}
