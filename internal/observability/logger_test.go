package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoggerFromContextAddsRequestID(t *testing.T) {
	prev := Logger()
	t.Cleanup(func() { logger.Store(prev); slog.SetDefault(prev) })

	var buf bytes.Buffer
	Setup(&buf, "json", "debug")

	ctx := WithRequestID(context.Background(), "req-1")
	LoggerFromContext(ctx).Debug("hello", "session_id", "s1")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line["request_id"] != "req-1" || line["session_id"] != "s1" || line["msg"] != "hello" {
		t.Fatalf("unexpected log line: %v", line)
	}
}

func TestSetupRespectsLevel(t *testing.T) {
	prev := Logger()
	t.Cleanup(func() { logger.Store(prev); slog.SetDefault(prev) })

	var buf bytes.Buffer
	Setup(&buf, "text", "error")
	Logger().Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info line written at error level: %q", buf.String())
	}
}
