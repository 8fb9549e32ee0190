package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLoggerRespectsLevel(t *testing.T) {
	prev := Level()
	defer SetLevel(prev)

	var buf bytes.Buffer
	l := newLogger(&buf, false)

	SetLevel(slog.LevelWarn)
	l.Info("hidden", "day", 1)
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered at warn level, got %q", buf.String())
	}

	l.Warn("visible", "day", 2)
	out := buf.String()
	if !strings.Contains(out, "visible") || !strings.Contains(out, "day=2") {
		t.Fatalf("expected warn record with attrs, got %q", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("expected no ANSI color codes, got %q", out)
	}
}
