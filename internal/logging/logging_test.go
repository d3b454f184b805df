package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesToConfiguredFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taskmasterd.log")
	logger := New(Config{File: path, Level: slog.LevelInfo})
	logger.Info("hello", "key", "value")

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(b), "hello") {
		t.Fatalf("expected log line in file, got %q", string(b))
	}
}

func TestColorTextHandlerPrefixesLevel(t *testing.T) {
	var buf bytes.Buffer
	h := NewColorTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(h)
	logger.Warn("careful")
	if !strings.Contains(buf.String(), "WARN") {
		t.Fatalf("expected WARN level in output, got %q", buf.String())
	}
}

func TestValOrDefaults(t *testing.T) {
	if got := valOr(0, 7); got != 7 {
		t.Fatalf("expected default 7, got %d", got)
	}
	if got := valOr(3, 7); got != 3 {
		t.Fatalf("expected explicit 3, got %d", got)
	}
}
