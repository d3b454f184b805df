// Package logging sets up the supervisor's own operational log, as
// distinct from the per-Instance stdout/stderr redirection described in
// spec §6. It is backed by log/slog, with a rotating file sink via
// lumberjack when a log file is configured and a colorized text handler
// when logging to an interactive terminal.
package logging

import (
	"io"
	"log/slog"
	"os"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation thresholds, mirrored from the teacher's logger package.
const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 5
	DefaultMaxAgeDays = 14
)

// Config describes where and how the supervisor's own log is written.
type Config struct {
	File       string // path to the supervisor's own log file; empty means stderr
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	Level      slog.Level
	Color      bool // colorize output (only applies when File is empty and output goes to stderr)
}

// New builds the slog.Logger the supervisor uses for its own diagnostics.
func New(cfg Config) *slog.Logger {
	var w io.Writer = os.Stderr
	color := cfg.Color
	if cfg.File != "" {
		w = &lj.Logger{
			Filename:   cfg.File,
			MaxSize:    valOr(cfg.MaxSizeMB, DefaultMaxSizeMB),
			MaxBackups: valOr(cfg.MaxBackups, DefaultMaxBackups),
			MaxAge:     valOr(cfg.MaxAgeDays, DefaultMaxAgeDays),
			Compress:   cfg.Compress,
		}
		// A rotated log file is read by tools, not a terminal; never colorize it.
		color = false
	}

	opts := &slog.HandlerOptions{Level: cfg.Level}
	var h slog.Handler
	if color {
		h = NewColorTextHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

func valOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
