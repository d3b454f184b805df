// Package config is the external collaborator that loads and validates the
// YAML policy file (spec §6) and decodes it into the raw, per-program shape
// (policy.ProgramInput) that internal/policy.Build then turns into the
// Policy Model. YAML parsing and schema validation are explicitly out of
// scope for the supervision core (spec §1); this package is that seam,
// grounded on the teacher's viper+mapstructure loader in
// internal/config/config.go.
package config

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/arcbound/taskmaster/internal/policy"
)

// programEntry is the YAML shape of one entry under `programs:`, matching
// the fields enumerated in spec §3 one for one.
type programEntry struct {
	Cmd          string            `mapstructure:"cmd"`
	NumProcs     int               `mapstructure:"numprocs"`
	WorkingDir   string            `mapstructure:"workingdir"`
	Umask        string            `mapstructure:"umask"`
	Autostart    bool              `mapstructure:"autostart"`
	AutoRestart  string            `mapstructure:"autorestart"`
	ExitCodes    []int             `mapstructure:"exitcodes"`
	StartRetries *int              `mapstructure:"startretries"`
	StartTime    *float64          `mapstructure:"starttime"`
	StopSignal   string            `mapstructure:"stopsignal"`
	StopTime     *float64          `mapstructure:"stoptime"`
	StdoutPath   string            `mapstructure:"stdout_path"`
	StderrPath   string            `mapstructure:"stderr_path"`
	Env          map[string]string `mapstructure:"env"`
}

// LogConfig controls the supervisor's own rotating log (spec §6, ambient
// stack §A.1 of SPEC_FULL.md).
type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
	Level      string `mapstructure:"level"`
	Color      bool   `mapstructure:"color"`
}

// ServerConfig controls the read-only status dashboard (spec §4.5, §6).
type ServerConfig struct {
	Listen string `mapstructure:"listen"`
}

// MetricsConfig controls the optional Prometheus listener (SPEC_FULL.md §D).
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

type fileConfig struct {
	Programs map[string]programEntry `mapstructure:"programs"`
	Log      LogConfig               `mapstructure:"log"`
	Server   ServerConfig            `mapstructure:"server"`
	Metrics  MetricsConfig           `mapstructure:"metrics"`
}

// Config is the fully loaded, not-yet-Policy-Model-built configuration.
type Config struct {
	Programs []policy.ProgramInput
	Log      LogConfig
	Server   ServerConfig
	Metrics  MetricsConfig
}

// Load reads path (a YAML file) and decodes it into a Config. Unknown
// fields anywhere in the document are rejected, per spec §6.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}

	var fc fileConfig
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &fc,
	})
	if err != nil {
		return nil, fmt.Errorf("build config decoder: %w", err)
	}
	if err := dec.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decode config %q: %w", path, err)
	}

	if len(fc.Programs) == 0 {
		return nil, fmt.Errorf("config %q: programs section must declare at least one program", path)
	}

	names := make([]string, 0, len(fc.Programs))
	for name := range fc.Programs {
		names = append(names, name)
	}
	sort.Strings(names) // deterministic instance creation order

	cfg := &Config{Log: fc.Log, Server: fc.Server, Metrics: fc.Metrics}
	for _, name := range names {
		e := fc.Programs[name]
		cfg.Programs = append(cfg.Programs, policy.ProgramInput{
			Name:         name,
			Cmd:          e.Cmd,
			NumProcs:     e.NumProcs,
			WorkingDir:   e.WorkingDir,
			Umask:        e.Umask,
			Autostart:    e.Autostart,
			AutoRestart:  e.AutoRestart,
			ExitCodes:    e.ExitCodes,
			StartRetries: e.StartRetries,
			StartTime:    e.StartTime,
			StopSignal:   e.StopSignal,
			StopTime:     e.StopTime,
			StdoutPath:   e.StdoutPath,
			StderrPath:   e.StderrPath,
			Env:          e.Env,
		})
	}
	return cfg, nil
}

// LogLevel parses the configured textual level, defaulting to Info.
func (c LogConfig) LogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.Level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
