package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNewWithLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithLevel("warn", &buf)
	log.Info("hidden")
	log.Warn("shown", "tick", 3)
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line not filtered: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "tick=3") {
		t.Fatalf("warn line missing: %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestContextRoundTrip(t *testing.T) {
	l := NewWithLevel("debug", &bytes.Buffer{})
	ctx := NewContext(context.Background(), l)
	if FromContext(ctx) != l {
		t.Fatalf("logger not stored in context")
	}
	if FromContext(context.Background()) != slog.Default() {
		t.Fatalf("expected default logger")
	}
}
